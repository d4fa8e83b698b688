package diagnostic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/msbuildls/pkg/document"
	"github.com/walteh/msbuildls/pkg/position"
	"github.com/walteh/msbuildls/pkg/xsnode"
)

// Diagnostics groups the findings for one snapshot by severity
type Diagnostics struct {
	URI      string
	Version  int32
	Errors   []Diagnostic
	Warnings []Diagnostic
}

// Diagnostic represents a single diagnostic message
type Diagnostic struct {
	Message  string
	Range    position.Range
	Severity DiagnosticSeverity
	Source   string
}

// DiagnosticSeverity represents the severity level of a diagnostic
type DiagnosticSeverity string

const (
	Error   DiagnosticSeverity = "error"
	Warning DiagnosticSeverity = "warning"
)

const (
	SourceXML        = "xml"
	SourceExpression = "expression"
	SourceProject    = "project"
)

// All returns every diagnostic ordered by range.
func (d *Diagnostics) All() []Diagnostic {
	all := make([]Diagnostic, 0, len(d.Errors)+len(d.Warnings))
	all = append(all, d.Errors...)
	all = append(all, d.Warnings...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Range.Compare(all[j].Range) < 0
	})
	return all
}

func (d *Diagnostics) add(diag Diagnostic) {
	switch diag.Severity {
	case Error:
		d.Errors = append(d.Errors, diag)
	default:
		d.Warnings = append(d.Warnings, diag)
	}
}

// Generate inspects a snapshot for malformed markup, unparseable conditions and a
// missing or misnamed Project element.
func Generate(ctx context.Context, snap *document.Snapshot) (*Diagnostics, error) {
	if snap == nil {
		return nil, errors.Errorf("snapshot is nil")
	}

	diagnostics := &Diagnostics{
		URI:      snap.URI,
		Version:  snap.Version,
		Errors:   make([]Diagnostic, 0),
		Warnings: make([]Diagnostic, 0),
	}

	xsnode.Walk(snap.XML.Root, func(n xsnode.Node) bool {
		if n.IsValid() || n.Problem() == "" {
			return true
		}
		rng := n.Range()
		if el, ok := n.(xsnode.ElementNode); ok {
			rng = el.NameRange()
		}
		diagnostics.add(Diagnostic{
			Message:  n.Problem(),
			Range:    rng,
			Severity: Error,
			Source:   SourceXML,
		})
		return true
	})

	for _, expr := range snap.Expressions {
		if expr.Result.Success() {
			continue
		}
		diagnostics.add(Diagnostic{
			Message:  failureMessage(expr),
			Range:    failureRange(expr),
			Severity: Error,
			Source:   SourceExpression,
		})
	}

	checkProject(snap, diagnostics)

	zerolog.Ctx(ctx).Debug().
		Str("uri", snap.URI).
		Int("errors", len(diagnostics.Errors)).
		Int("warnings", len(diagnostics.Warnings)).
		Msg("generated diagnostics")

	return diagnostics, nil
}

func failureMessage(expr *document.Expression) string {
	failure := expr.Result.Failure
	expected := make([]string, len(failure.Expectations))
	for i, e := range failure.Expectations {
		expected[i] = quoteExpectation(e)
	}
	return fmt.Sprintf("invalid %s %q: expected %s", expr.Kind, expr.Result.Text, strings.Join(expected, ", "))
}

func quoteExpectation(e string) string {
	switch e {
	case "symbol", "end of expression":
		return e
	case "'":
		return "quote"
	default:
		return "'" + e + "'"
	}
}

// failureRange spans from the failure to the end of the attribute value, or covers the
// whole value when the failure sits at its end.
func failureRange(expr *document.Expression) position.Range {
	value := expr.Attribute.ValueRange()
	start := expr.Result.Failure.Position
	if !start.Before(value.End) {
		return value
	}
	return position.MustNewRange(start, value.End)
}

func checkProject(snap *document.Snapshot, diagnostics *Diagnostics) {
	root := snap.XML.ProjectElement()
	if root == nil {
		diagnostics.add(Diagnostic{
			Message:  "document has no <Project> element",
			Range:    position.EmptyRange(position.Origin),
			Severity: Warning,
			Source:   SourceProject,
		})
		return
	}
	if root.Name() != "Project" {
		diagnostics.add(Diagnostic{
			Message:  fmt.Sprintf("root element is <%s>, expected <Project>", root.Name()),
			Range:    root.NameRange(),
			Severity: Warning,
			Source:   SourceProject,
		})
	}
}

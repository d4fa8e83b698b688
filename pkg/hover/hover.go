// Package hover provides functionality for generating hover information.
package hover

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/msbuildls/pkg/completion"
	"github.com/walteh/msbuildls/pkg/document"
	"github.com/walteh/msbuildls/pkg/expression"
	"github.com/walteh/msbuildls/pkg/position"
	"github.com/walteh/msbuildls/pkg/workspace"
	"github.com/walteh/msbuildls/pkg/xsnode"
)

// HoverInfo represents the information to be displayed in a hover tooltip
type HoverInfo struct {
	// Content is the markdown content to display, one paragraph per entry
	Content []string
	// Range is the range in the document that this hover applies to
	Range position.Range
}

// Markdown joins the content paragraphs.
func (h *HoverInfo) Markdown() string {
	return strings.Join(h.Content, "\n\n")
}

// BuildHoverResponse describes the syntax under pos. It returns nil when there is
// nothing worth showing.
func BuildHoverResponse(ctx context.Context, snap *document.Snapshot, pos position.Position) (*HoverInfo, error) {
	if snap == nil {
		return nil, errors.New("snapshot cannot be nil")
	}

	c := completion.Classify(ctx, snap, pos)
	zerolog.Ctx(ctx).Debug().Str("kind", c.Kind.String()).Str("path", c.ParentPath).Msg("building hover")

	switch c.Kind {
	case completion.Expression:
		return formatExpression(c.ExpressionNode), nil
	case completion.ElementName:
		content := []string{
			fmt.Sprintf("**Element** `<%s>`", c.Element.Name()),
			fmt.Sprintf("Path: `%s`", c.Element.Path()),
		}
		if c.Element == snap.XML.ProjectElement() {
			content = append(content, projectHeader(ctx, snap)...)
		}
		return &HoverInfo{Content: content, Range: c.Element.NameRange()}, nil
	case completion.AttributeName:
		return &HoverInfo{
			Content: []string{fmt.Sprintf("**Attribute** `%s` on `<%s>`", c.Attribute.Name(), c.Attribute.Element().Name())},
			Range:   c.Attribute.NameRange(),
		}, nil
	case completion.AttributeValue:
		content := []string{fmt.Sprintf("**Value** of `%s`: `%s`", c.Attribute.Name(), c.Attribute.Value())}
		if expr := snap.ExpressionFor(c.Attribute); expr != nil && !expr.Result.Success() {
			content = append(content, "Invalid "+expr.Kind.String()+": "+expr.Result.Err().Error())
		}
		return &HoverInfo{Content: content, Range: c.Attribute.ValueRange()}, nil
	case completion.Invalid:
		return &HoverInfo{Content: []string{"**Invalid markup**", c.Node.Problem()}, Range: c.Node.Range()}, nil
	}

	if c.Node != nil && !c.Node.IsValid() && c.Node.Problem() != "" {
		return &HoverInfo{Content: []string{c.Node.Problem()}, Range: problemRange(c.Node)}, nil
	}
	return nil, nil
}

// projectHeader summarizes the root element. It is only shown while the whole file
// is well-formed XML.
func projectHeader(ctx context.Context, snap *document.Snapshot) []string {
	info, err := workspace.ParseProjectInfo(snap.URI, []byte(snap.Text))
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("uri", snap.URI).Msg("no project header")
		return nil
	}

	var out []string
	if len(info.Sdks) > 0 {
		out = append(out, "SDK: "+codeList(info.Sdks))
	}
	if info.ToolsVersion != "" {
		out = append(out, fmt.Sprintf("Tools version: `%s`", info.ToolsVersion))
	}
	if len(info.DefaultTargets) > 0 {
		out = append(out, "Default targets: "+codeList(info.DefaultTargets))
	}
	if len(info.Imports) > 0 {
		out = append(out, "Imports: "+codeList(info.Imports))
	}
	return out
}

func codeList(items []string) string {
	return "`" + strings.Join(items, "`, `") + "`"
}

func problemRange(n xsnode.Node) position.Range {
	if el, ok := n.(xsnode.ElementNode); ok {
		return el.NameRange()
	}
	return n.Range()
}

func formatExpression(n expression.Node) *HoverInfo {
	info := &HoverInfo{Range: n.Range()}
	switch n := n.(type) {
	case *expression.Symbol:
		info.Content = formatSymbol(n)
	case *expression.Evaluate:
		info.Content = []string{fmt.Sprintf("**Property** `%s`", n.Body.String()), "Evaluates to the value of the property."}
	case *expression.ItemGroup:
		info.Content = []string{fmt.Sprintf("**Item type** `%s`", n.Body.String()), "Expands to the list of items of this type."}
	case *expression.ItemMetadata:
		info.Content = formatMetadata(n)
	case *expression.QuotedString:
		info.Content = []string{fmt.Sprintf("**String** `%s`", n.String())}
		if len(n.Evaluations) > 0 {
			info.Content = append(info.Content, fmt.Sprintf("Contains %d reference(s).", len(n.Evaluations)))
		}
	case *expression.Compare:
		op := "equal"
		if n.Op == expression.Inequality {
			op = "differ"
		}
		info.Content = []string{fmt.Sprintf("**Comparison** `%s`", n.String()), fmt.Sprintf("True when both sides %s.", op)}
	case *expression.Logical:
		op := n.Op.String()
		if n.Op == expression.Not {
			op = "Not"
		}
		info.Content = []string{fmt.Sprintf("**Logical %s** `%s`", op, n.String())}
	case *expression.SimpleListItem:
		info.Content = []string{fmt.Sprintf("**Item** `%s`", n.Value)}
	case *expression.SimpleList:
		info.Content = []string{fmt.Sprintf("**Item list** of %d entries", len(n.Items))}
	default:
		info.Content = []string{fmt.Sprintf("**Expression** `%s`", n.String())}
	}
	return info
}

func formatSymbol(s *expression.Symbol) []string {
	switch parent := s.Parent().(type) {
	case *expression.Evaluate:
		return []string{fmt.Sprintf("**Property** `%s`", s.Name), fmt.Sprintf("Referenced as `%s`.", parent.String())}
	case *expression.ItemGroup:
		return []string{fmt.Sprintf("**Item type** `%s`", s.Name), fmt.Sprintf("Referenced as `%s`.", parent.String())}
	case *expression.ItemMetadata:
		if parent.ItemType == s {
			return []string{fmt.Sprintf("**Item type** `%s`", s.Name)}
		}
		return formatMetadata(parent)
	default:
		return []string{fmt.Sprintf("**Symbol** `%s`", s.Name)}
	}
}

func formatMetadata(m *expression.ItemMetadata) []string {
	name := "`" + m.Metadata.Name + "`"
	if m.Metadata.IsPlaceholder() {
		name = "(name missing)"
	}
	if m.ItemType == nil {
		return []string{"**Metadata** " + name}
	}
	return []string{"**Metadata** " + name, fmt.Sprintf("Of item type `%s`.", m.ItemType.Name)}
}

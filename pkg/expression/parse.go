package expression

import (
	"fmt"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/msbuildls/pkg/position"
)

// ErrParse is wrapped by every *ParseError.
var ErrParse = errors.New("invalid expression")

// ErrNilTree is returned when a query is made against a missing tree.
var ErrNilTree = errors.New("expression tree is nil")

// Failure describes why the grammar rejected an expression.
type Failure struct {
	// Expectations lists the tokens that would have been accepted at Offset.
	Expectations []string
	// Offset is the byte offset in the expression text where parsing stopped.
	Offset int
	// Position is Offset expressed in document coordinates.
	Position position.Position
}

// Result is the outcome of parsing: exactly one of Root and Failure is set.
type Result struct {
	Text    string
	Root    *Root
	Failure *Failure
}

func (r Result) Success() bool {
	return r.Failure == nil
}

// Err converts a failed result into a *ParseError. It returns nil on success.
func (r Result) Err() error {
	if r.Success() {
		return nil
	}
	return &ParseError{
		Expression: r.Text,
		Expected:   r.Failure.Expectations,
		Offset:     r.Failure.Offset,
		Position:   r.Failure.Position,
	}
}

// ParseError is the descriptive form of a Failure.
type ParseError struct {
	Expression string
	Expected   []string
	Offset     int
	Position   position.Position
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s %q: expected one of [%s] at offset %d %s",
		ErrParse.Error(), e.Expression, strings.Join(e.Expected, ", "), e.Offset, e.Position)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

// ParseWithResult parses a condition expression whose first character sits at origin
// and returns a structured result instead of an error.
func ParseWithResult(text string, origin position.Position) Result {
	positions := position.NewTextPositions(text)
	p := newParser(text)

	root, ok := p.parseRoot()
	if !ok {
		failure := p.failure()
		failure.Position = positions.Position(failure.Offset).WithOrigin(origin)
		return Result{Text: text, Failure: failure}
	}

	PostParse(root, positions, origin)
	return Result{Text: text, Root: root}
}

// Parse parses a condition expression positioned at the document origin.
func Parse(text string) (*Root, error) {
	return ParseAt(text, position.Origin)
}

// ParseAt parses a condition expression embedded in a larger document, with its first
// character at origin.
func ParseAt(text string, origin position.Position) (*Root, error) {
	res := ParseWithResult(text, origin)
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res.Root, nil
}

// TryParse is Parse for callers that only need to know whether the text is valid.
func TryParse(text string) (*Root, bool) {
	res := ParseWithResult(text, position.Origin)
	return res.Root, res.Success()
}

// ParseSimpleList parses a semicolon-separated list embedded at origin. Every text is
// a valid list.
func ParseSimpleList(text string, origin position.Position) *Root {
	root := parseSimpleList(text)
	PostParse(root, position.NewTextPositions(text), origin)
	return root
}

// PostParse assigns every node below root its document range and parent link.
// Ranges are computed from each node's span in the text indexed by positions and
// re-expressed relative to origin. Running it again on the same tree is a no-op.
func PostParse(root Node, positions *position.TextPositions, origin position.Position) {
	assign(root, nil, positions, origin)
}

func assign(node Node, parent Node, positions *position.TextPositions, origin position.Position) {
	b := node.base()
	b.parent = parent
	b.rng = positions.Range(b.span.Start, b.span.End).WithOrigin(origin)
	for _, child := range node.Children() {
		assign(child, node, positions, origin)
	}
}

// FindDeepestNodeAt returns the innermost node whose range contains pos.
func FindDeepestNodeAt(root *Root, pos position.Position) (Node, error) {
	if root == nil {
		return nil, ErrNilTree
	}
	return position.FindDeepest[Node](root, pos), nil
}

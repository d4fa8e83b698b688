// Package document owns the parsed model of every open project file. Each edit builds
// a complete, immutable Snapshot off to the side and publishes it with a single atomic
// swap, so readers never observe a partially built tree.
package document

import (
	"github.com/google/uuid"

	"github.com/walteh/msbuildls/pkg/expression"
	"github.com/walteh/msbuildls/pkg/position"
	"github.com/walteh/msbuildls/pkg/xsnode"
)

type ExpressionKind int

const (
	// ConditionExpression is the value of a Condition attribute.
	ConditionExpression ExpressionKind = iota
	// ListExpression is a semicolon-separated item specification (Include, Exclude,
	// Remove, Update).
	ListExpression
)

func (k ExpressionKind) String() string {
	if k == ListExpression {
		return "list"
	}
	return "condition"
}

var listAttributes = map[string]bool{
	"Include": true,
	"Exclude": true,
	"Remove":  true,
	"Update":  true,
}

// Expression is an expression embedded in an attribute value. Its tree is positioned
// in document coordinates.
type Expression struct {
	Kind      ExpressionKind
	Attribute *xsnode.Attribute
	Result    expression.Result
}

func (e *Expression) Root() *expression.Root {
	return e.Result.Root
}

// Snapshot is one immutable parse of a document.
type Snapshot struct {
	ID  uuid.UUID
	URI string
	// DocumentURI is the URI the client opened the document with, or a file URI built
	// from the path for documents loaded from disk.
	DocumentURI string
	Version     int32
	Text        string
	Positions   *position.TextPositions
	XML         *xsnode.Tree
	// Expressions lists the embedded expressions in document order.
	Expressions []*Expression

	byAttribute map[*xsnode.Attribute]*Expression
}

// Build parses text into a new snapshot.
func Build(uri string, version int32, text string) (*Snapshot, error) {
	tree := xsnode.Build(text)
	snap := &Snapshot{
		ID:          uuid.New(),
		URI:         uri,
		Version:     version,
		Text:        text,
		Positions:   tree.Positions,
		XML:         tree,
		byAttribute: map[*xsnode.Attribute]*Expression{},
	}

	xsnode.Walk(tree.Root, func(n xsnode.Node) bool {
		attr, ok := n.(*xsnode.Attribute)
		if !ok || !attr.IsValid() {
			return true
		}
		var expr *Expression
		switch {
		case attr.Name() == "Condition":
			expr = &Expression{
				Kind:      ConditionExpression,
				Attribute: attr,
				Result:    expression.ParseWithResult(attr.Value(), attr.ValueRange().Start),
			}
		case listAttributes[attr.Name()]:
			root := expression.ParseSimpleList(attr.Value(), attr.ValueRange().Start)
			expr = &Expression{
				Kind:      ListExpression,
				Attribute: attr,
				Result:    expression.Result{Text: attr.Value(), Root: root},
			}
		default:
			return true
		}
		snap.Expressions = append(snap.Expressions, expr)
		snap.byAttribute[attr] = expr
		return true
	})

	return snap, nil
}

// ExpressionFor returns the expression parsed from attr, or nil.
func (s *Snapshot) ExpressionFor(attr *xsnode.Attribute) *Expression {
	return s.byAttribute[attr]
}

// NodeAt returns the innermost XML node at pos.
func (s *Snapshot) NodeAt(pos position.Position) xsnode.Node {
	return s.XML.FindDeepestNodeAt(pos)
}

// ExpressionAt returns the embedded expression whose attribute value contains pos and
// the innermost expression node at pos. It returns false when pos is not inside a
// successfully parsed expression.
func (s *Snapshot) ExpressionAt(pos position.Position) (*Expression, expression.Node, bool) {
	attr, ok := s.NodeAt(pos).(*xsnode.Attribute)
	if !ok {
		return nil, nil, false
	}
	return s.ExpressionInAttribute(attr, pos)
}

// ExpressionInAttribute is ExpressionAt for a known attribute. A position at the very
// end of the value counts as inside it.
func (s *Snapshot) ExpressionInAttribute(attr *xsnode.Attribute, pos position.Position) (*Expression, expression.Node, bool) {
	expr := s.byAttribute[attr]
	if expr == nil || expr.Root() == nil {
		return nil, nil, false
	}
	vr := attr.ValueRange()
	if !vr.Contains(pos) && !vr.End.Equal(pos.ToOneBased()) {
		return nil, nil, false
	}
	node, err := expression.FindDeepestNodeAt(expr.Root(), pos.ToOneBased())
	if err != nil {
		return nil, nil, false
	}
	return expr, node, true
}

// Package completion works out what the cursor is pointing at, so that completion
// providers can decide what to offer.
package completion

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/walteh/msbuildls/pkg/document"
	"github.com/walteh/msbuildls/pkg/expression"
	"github.com/walteh/msbuildls/pkg/position"
	"github.com/walteh/msbuildls/pkg/xsnode"
)

type ContextKind int

const (
	None ContextKind = iota
	ElementName
	AttributeName
	AttributeValue
	// OpeningTag is inside a start tag but not on its name or an attribute.
	OpeningTag
	ClosingTag
	ElementContent
	Whitespace
	Expression
	Comment
	Invalid
)

func (k ContextKind) String() string {
	switch k {
	case ElementName:
		return "ElementName"
	case AttributeName:
		return "AttributeName"
	case AttributeValue:
		return "AttributeValue"
	case OpeningTag:
		return "OpeningTag"
	case ClosingTag:
		return "ClosingTag"
	case ElementContent:
		return "ElementContent"
	case Whitespace:
		return "Whitespace"
	case Expression:
		return "Expression"
	case Comment:
		return "Comment"
	case Invalid:
		return "Invalid"
	default:
		return "None"
	}
}

// Context holds information about the completion request context
type Context struct {
	Kind     ContextKind
	Position position.Position

	// Node is the innermost XML node at Position.
	Node xsnode.Node
	// Element is the element Node belongs to, or Node itself when it is an element.
	Element xsnode.ElementNode
	// Attribute is set when Position is inside an attribute.
	Attribute *xsnode.Attribute

	// Expression and ExpressionNode are set for the Expression kind.
	Expression     *document.Expression
	ExpressionNode expression.Node

	// ParentPath is the path of the element enclosing Node, excluding Node itself.
	ParentPath string
}

// InPath reports whether the node under the cursor sits directly inside the element
// at path, e.g. "Project/PropertyGroup".
func (c Context) InPath(path string) bool {
	return c.ParentPath == path
}

// Classify inspects the snapshot at pos.
func Classify(ctx context.Context, snap *document.Snapshot, pos position.Position) Context {
	pos = pos.ToOneBased()
	n := snap.NodeAt(pos)

	// A cursor right after a name or an unterminated value belongs to it even though
	// ranges are half-open.
	if pos.Column > 1 {
		switch before := snap.NodeAt(pos.Move(0, -1)).(type) {
		case xsnode.ElementNode:
			if before.NameRange().End.Equal(pos) {
				n = before
			}
		case *xsnode.Attribute:
			if before.NameRange().End.Equal(pos) || before.ValueRange().End.Equal(pos) {
				n = before
			}
		}
	}

	c := Context{Position: pos, Node: n}
	if parent := n.Parent(); parent != nil {
		c.ParentPath = parent.Path()
	}
	c.Element = owningElement(n)
	c.Kind = classify(&c, snap, n, pos)

	zerolog.Ctx(ctx).Trace().
		Str("kind", c.Kind.String()).
		Str("node", xsnode.Describe(n)).
		Str("parent_path", c.ParentPath).
		Msg("classified completion context")

	return c
}

func owningElement(n xsnode.Node) xsnode.ElementNode {
	for ; n != nil; n = n.Parent() {
		if el, ok := n.(xsnode.ElementNode); ok {
			return el
		}
	}
	return nil
}

// touches reports whether pos is inside r or sits right at its end.
func touches(r position.Range, pos position.Position) bool {
	return r.Contains(pos) || r.End.Equal(pos)
}

func classify(c *Context, snap *document.Snapshot, n xsnode.Node, pos position.Position) ContextKind {
	switch n := n.(type) {
	case *xsnode.Attribute:
		c.Attribute = n
		switch {
		case touches(n.NameRange(), pos):
			return AttributeName
		case touches(n.ValueRange(), pos) && n.ValueRange().Start.Before(n.Range().End):
			if expr, node, ok := snap.ExpressionInAttribute(n, pos); ok {
				c.Expression = expr
				c.ExpressionNode = node
				return Expression
			}
			return AttributeValue
		default:
			return OpeningTag
		}
	case *xsnode.Element:
		switch {
		case touches(n.NameRange(), pos):
			return ElementName
		case n.OpeningTagRange().Contains(pos):
			return OpeningTag
		case touches(n.ContentRange(), pos):
			return ElementContent
		default:
			return ClosingTag
		}
	case *xsnode.EmptyElement, *xsnode.InvalidElement:
		if touches(n.(xsnode.ElementNode).NameRange(), pos) {
			return ElementName
		}
		return OpeningTag
	case *xsnode.Text:
		return ElementContent
	case *xsnode.Whitespace:
		return Whitespace
	case *xsnode.Comment:
		return Comment
	case *xsnode.Garbage:
		return Invalid
	default:
		return None
	}
}

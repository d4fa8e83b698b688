// Package xsnode overlays raw XML syntax with a semantic node tree. Every node knows
// its document range; elements additionally expose the ranges of their name, their
// attributes and (when they have an end tag) their opening tag, content and closing tag.
//
// Malformed markup is kept in the tree with IsValid() == false so that position
// queries keep working while a document is being edited.
package xsnode

import (
	"fmt"
	"strings"

	"github.com/walteh/msbuildls/pkg/position"
)

type Kind int

const (
	KindDocument Kind = iota
	KindElement
	KindEmptyElement
	KindInvalidElement
	KindAttribute
	KindText
	KindWhitespace
	KindComment
	KindGarbage
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "Document"
	case KindElement:
		return "Element"
	case KindEmptyElement:
		return "EmptyElement"
	case KindInvalidElement:
		return "InvalidElement"
	case KindAttribute:
		return "Attribute"
	case KindText:
		return "Text"
	case KindWhitespace:
		return "Whitespace"
	case KindComment:
		return "Comment"
	case KindGarbage:
		return "Garbage"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Node is implemented by *Document, *Element, *EmptyElement, *InvalidElement,
// *Attribute, *Text, *Whitespace, *Comment and *Garbage.
type Node interface {
	Kind() Kind
	Range() position.Range
	// Parent is nil only for the document.
	Parent() Node
	Children() []Node
	IsValid() bool
	// Problem describes why the node is invalid. It is always empty for valid nodes.
	Problem() string
	// Path is the slash-separated list of element names enclosing the node, including
	// the node itself when it is an element.
	Path() string

	sealed()
}

// ElementNode is implemented by the three element kinds.
type ElementNode interface {
	Node
	Name() string
	NameRange() position.Range
	AttributesRange() position.Range
	Attributes() []*Attribute
	Attribute(name string) *Attribute
}

type base struct {
	rng     position.Range
	parent  Node
	valid   bool
	problem string
}

func (b *base) Range() position.Range { return b.rng }
func (b *base) Parent() Node          { return b.parent }
func (b *base) IsValid() bool         { return b.valid }
func (b *base) Problem() string       { return b.problem }
func (b *base) sealed()               {}

func (b *base) Path() string {
	return parentPath(b.parent)
}

func parentPath(n Node) string {
	if n == nil {
		return ""
	}
	return n.Path()
}

type elementBase struct {
	base
	name            string
	nameRange       position.Range
	attributesRange position.Range
	attributes      []*Attribute
}

func (e *elementBase) Name() string                    { return e.name }
func (e *elementBase) NameRange() position.Range       { return e.nameRange }
func (e *elementBase) AttributesRange() position.Range { return e.attributesRange }
func (e *elementBase) Attributes() []*Attribute        { return e.attributes }

// Attribute returns the first attribute with the given name, or nil.
func (e *elementBase) Attribute(name string) *Attribute {
	for _, a := range e.attributes {
		if a.name == name {
			return a
		}
	}
	return nil
}

func (e *elementBase) Path() string {
	if p := parentPath(e.parent); p != "" {
		return p + "/" + e.name
	}
	return e.name
}

func (e *elementBase) attributeChildren() []Node {
	children := make([]Node, len(e.attributes))
	for i, a := range e.attributes {
		children[i] = a
	}
	return children
}

// Document is the root of every tree. Its children are the top-level nodes.
type Document struct {
	base
	nodes []Node
}

func (d *Document) Kind() Kind       { return KindDocument }
func (d *Document) Children() []Node { return d.nodes }
func (d *Document) Path() string     { return "" }

// Element is an element with a start tag followed by content and (when valid) an end tag.
// OpeningTagRange, ContentRange and ClosingTagRange are contiguous and together cover Range.
type Element struct {
	elementBase
	openingTagRange position.Range
	contentRange    position.Range
	closingTagRange position.Range
	content         []Node
}

func (e *Element) Kind() Kind                      { return KindElement }
func (e *Element) OpeningTagRange() position.Range { return e.openingTagRange }
func (e *Element) ContentRange() position.Range    { return e.contentRange }

// ClosingTagRange is empty, at the end of the content, when the end tag is missing.
func (e *Element) ClosingTagRange() position.Range { return e.closingTagRange }
func (e *Element) Content() []Node                 { return e.content }
func (e *Element) HasContent() bool                { return len(e.content) > 0 }

func (e *Element) Children() []Node {
	return append(e.attributeChildren(), e.content...)
}

// ChildElements returns the element nodes among the content.
func (e *Element) ChildElements() []ElementNode {
	var out []ElementNode
	for _, c := range e.content {
		if el, ok := c.(ElementNode); ok {
			out = append(out, el)
		}
	}
	return out
}

// EmptyElement is a self-closing element, <Name ... />.
type EmptyElement struct {
	elementBase
}

func (e *EmptyElement) Kind() Kind       { return KindEmptyElement }
func (e *EmptyElement) Children() []Node { return e.attributeChildren() }

// InvalidElement is an element whose start tag never closes. It is always invalid.
type InvalidElement struct {
	elementBase
}

func (e *InvalidElement) Kind() Kind       { return KindInvalidElement }
func (e *InvalidElement) Children() []Node { return e.attributeChildren() }

type Attribute struct {
	base
	name       string
	value      string
	nameRange  position.Range
	valueRange position.Range
}

func (a *Attribute) Kind() Kind                 { return KindAttribute }
func (a *Attribute) Children() []Node           { return nil }
func (a *Attribute) Name() string               { return a.name }
func (a *Attribute) Value() string              { return a.value }
func (a *Attribute) NameRange() position.Range  { return a.nameRange }
func (a *Attribute) ValueRange() position.Range { return a.valueRange }

// Element returns the element the attribute belongs to.
func (a *Attribute) Element() ElementNode {
	el, _ := a.parent.(ElementNode)
	return el
}

type textBase struct {
	base
	text string
}

func (t *textBase) Text() string     { return t.text }
func (t *textBase) Children() []Node { return nil }

type Text struct{ textBase }

func (t *Text) Kind() Kind { return KindText }

type Whitespace struct{ textBase }

func (w *Whitespace) Kind() Kind { return KindWhitespace }

type Comment struct{ textBase }

func (c *Comment) Kind() Kind { return KindComment }

// Garbage is markup that could not be understood. It is always invalid.
type Garbage struct{ textBase }

func (g *Garbage) Kind() Kind { return KindGarbage }

// Walk calls fn for node and its descendants in pre-order; returning false skips the
// node's children.
func Walk(node Node, fn func(Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	for _, child := range node.Children() {
		Walk(child, fn)
	}
}

// Describe returns a short human-readable label for a node.
func Describe(n Node) string {
	switch n := n.(type) {
	case *Document:
		return "document"
	case *Element:
		return "element <" + n.Name() + ">"
	case *EmptyElement:
		return "element <" + n.Name() + "/>"
	case *InvalidElement:
		return "incomplete element <" + n.Name()
	case *Attribute:
		return "attribute " + n.Name()
	case *Text:
		return "text " + quoteShort(n.Text())
	case *Whitespace:
		return "whitespace"
	case *Comment:
		return "comment"
	case *Garbage:
		return "invalid markup " + quoteShort(n.Text())
	default:
		return "unknown"
	}
}

func quoteShort(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 24 {
		s = s[:24] + "..."
	}
	return fmt.Sprintf("%q", s)
}

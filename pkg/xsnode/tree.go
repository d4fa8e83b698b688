package xsnode

import (
	"fmt"

	"github.com/walteh/msbuildls/pkg/position"
	"github.com/walteh/msbuildls/pkg/xmlsyntax"
)

// Tree is the semantic overlay of one document text.
type Tree struct {
	Text      string
	Positions *position.TextPositions
	Syntax    *xmlsyntax.Document
	Root      *Document
}

// Build scans text and constructs its semantic tree. It never fails; malformed markup
// yields invalid nodes.
func Build(text string) *Tree {
	return FromSyntax(xmlsyntax.Parse(text), position.NewTextPositions(text))
}

// FromSyntax builds the semantic tree for an already-scanned document.
func FromSyntax(doc *xmlsyntax.Document, positions *position.TextPositions) *Tree {
	b := &builder{positions: positions}
	root := &Document{}
	root.rng = positions.Range(0, positions.Len())
	root.valid = true
	root.nodes = b.nodes(doc.Nodes, root)
	return &Tree{Text: doc.Text, Positions: positions, Syntax: doc, Root: root}
}

// FindDeepestNodeAt returns the innermost node containing pos. Positions outside every
// top-level node resolve to the document itself.
func (t *Tree) FindDeepestNodeAt(pos position.Position) Node {
	return position.FindDeepest[Node](t.Root, pos.ToOneBased())
}

// NodesAt returns the chain of nodes containing pos, outermost (the document) first.
func (t *Tree) NodesAt(pos position.Position) []Node {
	return position.Ancestors[Node](t.Root, pos.ToOneBased())
}

// ProjectElement returns the first top-level element, or nil.
func (t *Tree) ProjectElement() ElementNode {
	for _, n := range t.Root.nodes {
		if el, ok := n.(ElementNode); ok {
			return el
		}
	}
	return nil
}

// Elements returns every element in document order.
func (t *Tree) Elements() []ElementNode {
	var out []ElementNode
	Walk(t.Root, func(n Node) bool {
		if el, ok := n.(ElementNode); ok {
			out = append(out, el)
		}
		return true
	})
	return out
}

type builder struct {
	positions *position.TextPositions
}

func (b *builder) rangeOf(s xmlsyntax.Span) position.Range {
	return b.positions.Range(s.Start, s.End)
}

func (b *builder) nodes(raw []*xmlsyntax.Node, parent Node) []Node {
	out := make([]Node, 0, len(raw))
	for _, r := range raw {
		if n := b.node(r, parent); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (b *builder) node(r *xmlsyntax.Node, parent Node) Node {
	switch r.Kind {
	case xmlsyntax.KindElement:
		return b.element(r, parent)
	case xmlsyntax.KindText:
		n := &Text{}
		b.fillText(&n.textBase, r, parent)
		return n
	case xmlsyntax.KindWhitespace:
		n := &Whitespace{}
		b.fillText(&n.textBase, r, parent)
		return n
	case xmlsyntax.KindComment:
		n := &Comment{}
		b.fillText(&n.textBase, r, parent)
		return n
	case xmlsyntax.KindGarbage:
		n := &Garbage{}
		b.fillText(&n.textBase, r, parent)
		n.valid = false
		return n
	default:
		// Declarations, processing instructions and CDATA carry nothing to navigate.
		return nil
	}
}

func (b *builder) fillText(t *textBase, r *xmlsyntax.Node, parent Node) {
	t.rng = b.rangeOf(r.Span)
	t.parent = parent
	t.valid = !r.Malformed
	t.text = r.Text
	if r.Malformed {
		switch r.Kind {
		case xmlsyntax.KindComment:
			t.problem = "comment is not terminated"
		default:
			t.problem = fmt.Sprintf("unexpected markup %q", r.Text)
		}
	}
}

func (b *builder) element(r *xmlsyntax.Node, parent Node) Node {
	fill := func(e *elementBase, self Node) {
		e.rng = b.rangeOf(r.Span)
		e.parent = parent
		e.valid = !r.Malformed
		e.name = r.Name
		e.nameRange = b.rangeOf(r.NameSpan)
		e.attributesRange = b.rangeOf(r.AttributesSpan)
		e.attributes = b.attributes(r.Attributes, self)
	}

	switch {
	case !r.StartTagClosed:
		n := &InvalidElement{}
		fill(&n.elementBase, n)
		n.valid = false
		n.problem = fmt.Sprintf("start tag of <%s> is not closed", r.Name)
		return n
	case r.SelfClosing:
		n := &EmptyElement{}
		fill(&n.elementBase, n)
		n.problem = elementProblem(r)
		return n
	default:
		n := &Element{}
		fill(&n.elementBase, n)
		n.openingTagRange = b.rangeOf(r.StartTagSpan)
		n.contentRange = b.rangeOf(r.ContentSpan)
		if r.HasEndTag {
			n.closingTagRange = b.rangeOf(r.EndTagSpan)
		} else {
			n.closingTagRange = position.EmptyRange(n.contentRange.End)
		}
		n.content = b.nodes(r.Children, n)
		n.problem = elementProblem(r)
		return n
	}
}

// elementProblem explains a malformed element whose start tag is closed. An element
// that is only invalid because of its attributes has no problem of its own; the
// attributes carry it.
func elementProblem(r *xmlsyntax.Node) string {
	if !r.Malformed {
		return ""
	}
	switch {
	case !r.SelfClosing && !r.HasEndTag:
		return fmt.Sprintf("<%s> has no matching end tag", r.Name)
	case r.HasEndTag && !r.EndTagClosed:
		return fmt.Sprintf("end tag of <%s> is not closed", r.Name)
	}
	for _, a := range r.Attributes {
		if a.Malformed() {
			return ""
		}
	}
	return fmt.Sprintf("unexpected characters in start tag of <%s>", r.Name)
}

func attributeProblem(r *xmlsyntax.Attribute) string {
	switch {
	case !r.HasEquals:
		return fmt.Sprintf("attribute %s has no value", r.Name)
	case !r.Quoted:
		return fmt.Sprintf("value of attribute %s must be quoted", r.Name)
	case !r.Terminated:
		return fmt.Sprintf("value of attribute %s is not terminated", r.Name)
	default:
		return ""
	}
}

func (b *builder) attributes(raw []*xmlsyntax.Attribute, owner Node) []*Attribute {
	out := make([]*Attribute, 0, len(raw))
	for _, r := range raw {
		a := &Attribute{
			name:       r.Name,
			value:      r.Value,
			nameRange:  b.rangeOf(r.NameSpan),
			valueRange: b.rangeOf(r.ValueSpan),
		}
		a.rng = b.rangeOf(r.Span)
		a.parent = owner
		a.valid = !r.Malformed()
		a.problem = attributeProblem(r)
		out = append(out, a)
	}
	return out
}

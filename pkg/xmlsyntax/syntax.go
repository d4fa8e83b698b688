// Package xmlsyntax is a tolerant XML scanner that keeps the byte span of every
// piece of markup it sees. It never rejects input: malformed constructs are kept and
// flagged so that callers can still reason about a document while it is being typed.
package xmlsyntax

import (
	"strings"
)

type Kind int

const (
	KindElement Kind = iota
	KindText
	KindWhitespace
	KindComment
	// KindOther covers processing instructions, DOCTYPE declarations and CDATA sections.
	KindOther
	// KindGarbage is markup that could not be understood, such as a stray end tag.
	KindGarbage
)

func (k Kind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindText:
		return "text"
	case KindWhitespace:
		return "whitespace"
	case KindComment:
		return "comment"
	case KindOther:
		return "other"
	case KindGarbage:
		return "garbage"
	default:
		return "unknown"
	}
}

// Span is a half-open byte span [Start, End).
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int {
	return s.End - s.Start
}

type Attribute struct {
	Span      Span
	Name      string
	NameSpan  Span
	HasEquals bool
	// Quoted is false when no opening quote follows the '='.
	Quoted bool
	// Terminated is false when the closing quote is missing.
	Terminated bool
	Value      string
	// ValueSpan excludes the quotes.
	ValueSpan Span
}

func (a *Attribute) Malformed() bool {
	return !a.HasEquals || !a.Quoted || !a.Terminated
}

type Node struct {
	Kind Kind
	Span Span

	// Text holds the raw text of text, whitespace, comment, other and garbage nodes.
	Text string

	// Element fields.
	Name           string
	NameSpan       Span
	Attributes     []*Attribute
	AttributesSpan Span
	StartTagSpan   Span
	// StartTagClosed is false when the start tag has no '>' or '/>'.
	StartTagClosed bool
	SelfClosing    bool
	Children       []*Node
	ContentSpan    Span
	HasEndTag      bool
	EndTagSpan     Span
	// EndTagClosed is false when the end tag has no '>'.
	EndTagClosed bool

	// Malformed is set on any node that does not represent well-formed markup.
	Malformed bool
}

// Document is the raw syntax of a whole text.
type Document struct {
	Text  string
	Nodes []*Node
}

// Root returns the first top-level element, or nil.
func (d *Document) Root() *Node {
	for _, n := range d.Nodes {
		if n.Kind == KindElement {
			return n
		}
	}
	return nil
}

// Parse scans text into a Document. It never fails.
func Parse(text string) *Document {
	s := &scanner{src: text}
	return &Document{Text: text, Nodes: s.parseContent(nil)}
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) atEnd() bool {
	return s.pos >= len(s.src)
}

func (s *scanner) hasPrefix(p string) bool {
	return strings.HasPrefix(s.src[s.pos:], p)
}

func (s *scanner) skipSpace() {
	for !s.atEnd() && isSpace(s.src[s.pos]) {
		s.pos++
	}
}

func (s *scanner) readName() (string, Span) {
	start := s.pos
	for !s.atEnd() && isNameByte(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos], Span{Start: start, End: s.pos}
}

// parseContent reads sibling nodes until the end of input or an end tag that closes
// one of the open elements (innermost last). That end tag is left unconsumed.
func (s *scanner) parseContent(open []string) []*Node {
	var nodes []*Node
	for !s.atEnd() {
		switch {
		case s.hasPrefix("</"):
			name := s.peekEndTagName()
			if containsName(open, name) {
				return nodes
			}
			nodes = append(nodes, s.parseStrayEndTag())
		case s.hasPrefix("<!--"):
			nodes = append(nodes, s.parseDelimited(KindComment, "<!--", "-->"))
		case s.hasPrefix("<![CDATA["):
			nodes = append(nodes, s.parseDelimited(KindOther, "<![CDATA[", "]]>"))
		case s.hasPrefix("<?"):
			nodes = append(nodes, s.parseDelimited(KindOther, "<?", "?>"))
		case s.hasPrefix("<!"):
			nodes = append(nodes, s.parseDelimited(KindOther, "<!", ">"))
		case s.src[s.pos] == '<' && s.pos+1 < len(s.src) && isNameStartByte(s.src[s.pos+1]):
			nodes = append(nodes, s.parseElement(open))
		case s.src[s.pos] == '<':
			nodes = append(nodes, &Node{
				Kind:      KindGarbage,
				Span:      Span{Start: s.pos, End: s.pos + 1},
				Text:      "<",
				Malformed: true,
			})
			s.pos++
		default:
			nodes = append(nodes, s.parseText())
		}
	}
	return nodes
}

func (s *scanner) peekEndTagName() string {
	save := s.pos
	s.pos += 2
	name, _ := s.readName()
	s.pos = save
	return name
}

func (s *scanner) parseStrayEndTag() *Node {
	start := s.pos
	rest := s.src[s.pos:]
	end := len(rest)
	if gt := strings.IndexByte(rest, '>'); gt >= 0 {
		end = gt + 1
	}
	if lt := strings.IndexByte(rest[1:], '<'); lt >= 0 && lt+1 < end {
		end = lt + 1
	}
	s.pos += end
	return &Node{Kind: KindGarbage, Span: Span{Start: start, End: s.pos}, Text: s.src[start:s.pos], Malformed: true}
}

func (s *scanner) parseDelimited(kind Kind, open, close string) *Node {
	start := s.pos
	s.pos += len(open)
	n := &Node{Kind: kind}
	idx := strings.Index(s.src[s.pos:], close)
	if idx < 0 {
		n.Text = s.src[s.pos:]
		s.pos = len(s.src)
		n.Malformed = true
	} else {
		n.Text = s.src[s.pos : s.pos+idx]
		s.pos += idx + len(close)
	}
	n.Span = Span{Start: start, End: s.pos}
	return n
}

func (s *scanner) parseText() *Node {
	start := s.pos
	idx := strings.IndexByte(s.src[s.pos:], '<')
	if idx < 0 {
		s.pos = len(s.src)
	} else {
		s.pos += idx
	}
	text := s.src[start:s.pos]
	kind := KindText
	if strings.TrimLeft(text, " \t\r\n") == "" {
		kind = KindWhitespace
	}
	return &Node{Kind: kind, Span: Span{Start: start, End: s.pos}, Text: text}
}

func (s *scanner) parseElement(open []string) *Node {
	n := &Node{Kind: KindElement}
	start := s.pos
	s.pos++
	n.Name, n.NameSpan = s.readName()

	attrStart := s.pos
	for {
		tagEnd := s.pos
		s.skipSpace()
		switch {
		case s.atEnd() || s.src[s.pos] == '<':
			// Unterminated start tag; trailing whitespace stays outside the element.
			s.pos = tagEnd
			n.AttributesSpan = Span{Start: attrStart, End: tagEnd}
			n.StartTagSpan = Span{Start: start, End: tagEnd}
			n.Span = n.StartTagSpan
			n.ContentSpan = Span{Start: tagEnd, End: tagEnd}
			n.Malformed = true
			return n
		case s.hasPrefix("/>"):
			n.AttributesSpan = Span{Start: attrStart, End: s.pos}
			s.pos += 2
			n.StartTagClosed = true
			n.SelfClosing = true
			n.StartTagSpan = Span{Start: start, End: s.pos}
			n.Span = n.StartTagSpan
			n.ContentSpan = Span{Start: s.pos, End: s.pos}
			return n
		case s.src[s.pos] == '>':
			n.AttributesSpan = Span{Start: attrStart, End: s.pos}
			s.pos++
			n.StartTagClosed = true
			n.StartTagSpan = Span{Start: start, End: s.pos}
			s.parseElementContent(n, start, open)
			return n
		case isNameStartByte(s.src[s.pos]):
			attr := s.parseAttribute()
			if attr.Malformed() {
				n.Malformed = true
			}
			n.Attributes = append(n.Attributes, attr)
		default:
			// Junk inside the start tag is skipped.
			s.pos++
			n.Malformed = true
		}
	}
}

func (s *scanner) parseElementContent(n *Node, start int, open []string) {
	contentStart := s.pos
	n.Children = s.parseContent(append(open, n.Name))
	n.ContentSpan = Span{Start: contentStart, End: s.pos}

	if s.atEnd() || s.peekEndTagName() != n.Name {
		// Missing end tag: the element ends where its content does.
		n.Malformed = true
		n.Span = Span{Start: start, End: s.pos}
		return
	}

	endStart := s.pos
	s.pos += 2
	s.readName()
	save := s.pos
	s.skipSpace()
	if !s.atEnd() && s.src[s.pos] == '>' {
		s.pos++
		n.EndTagClosed = true
	} else {
		s.pos = save
		n.Malformed = true
	}
	n.HasEndTag = true
	n.EndTagSpan = Span{Start: endStart, End: s.pos}
	n.Span = Span{Start: start, End: s.pos}
}

func (s *scanner) parseAttribute() *Attribute {
	a := &Attribute{}
	start := s.pos
	a.Name, a.NameSpan = s.readName()
	a.Span = Span{Start: start, End: s.pos}

	save := s.pos
	s.skipSpace()
	if s.atEnd() || s.src[s.pos] != '=' {
		s.pos = save
		a.ValueSpan = Span{Start: s.pos, End: s.pos}
		return a
	}
	s.pos++
	a.HasEquals = true
	a.Span.End = s.pos

	save = s.pos
	s.skipSpace()
	if s.atEnd() || (s.src[s.pos] != '"' && s.src[s.pos] != '\'') {
		s.pos = save
		a.ValueSpan = Span{Start: s.pos, End: s.pos}
		return a
	}
	quote := s.src[s.pos]
	s.pos++
	a.Quoted = true

	valueStart := s.pos
	for !s.atEnd() && s.src[s.pos] != quote && s.src[s.pos] != '<' {
		s.pos++
	}
	a.ValueSpan = Span{Start: valueStart, End: s.pos}
	a.Value = s.src[valueStart:s.pos]
	if !s.atEnd() && s.src[s.pos] == quote {
		s.pos++
		a.Terminated = true
	}
	a.Span.End = s.pos
	return a
}

func containsName(open []string, name string) bool {
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == name {
			return true
		}
	}
	return false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func isNameStartByte(b byte) bool {
	return b == '_' || b == ':' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b >= 0x80
}

func isNameByte(b byte) bool {
	return isNameStartByte(b) || b == '-' || b == '.' || (b >= '0' && b <= '9')
}

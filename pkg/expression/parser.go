package expression

import (
	"strings"
)

// Expectation labels reported when parsing fails.
const (
	expectSymbol       = "symbol"
	expectQuote        = "'"
	expectOpenParen    = "("
	expectCloseParen   = ")"
	expectNot          = "!"
	expectEvaluate     = "$("
	expectItemGroup    = "@("
	expectItemMetadata = "%("
	expectEquality     = "=="
	expectInequality   = "!="
	expectAnd          = "And"
	expectOr           = "Or"
	expectEnd          = "end of expression"
)

var operandExpectations = []string{
	expectNot, expectOpenParen, expectQuote, expectEvaluate, expectItemGroup, expectItemMetadata, expectSymbol,
}

// parser is a recursive-descent parser over a single expression string. It records
// the furthest offset at which an alternative failed along with every token that
// would have been accepted there.
type parser struct {
	src        string
	pos        int
	failOffset int
	expected   []string
}

func newParser(src string) *parser {
	return &parser{src: src, failOffset: -1}
}

func (p *parser) expect(offset int, what ...string) {
	if offset > p.failOffset {
		p.failOffset = offset
		p.expected = nil
	}
	if offset < p.failOffset {
		return
	}
	for _, w := range what {
		if !containsString(p.expected, w) {
			p.expected = append(p.expected, w)
		}
	}
}

func (p *parser) failure() *Failure {
	return &Failure{Expectations: append([]string(nil), p.expected...), Offset: p.failOffset}
}

func (p *parser) atEnd() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peekByte() byte {
	if p.atEnd() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) hasPrefix(s string) bool {
	return strings.HasPrefix(p.src[p.pos:], s)
}

func (p *parser) skipSpace() {
	for !p.atEnd() && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

// parseRoot parses a complete condition expression. Trailing whitespace and stray
// closing parentheses are tolerated; any other trailing text is a failure.
func (p *parser) parseRoot() (*Root, bool) {
	root := &Root{}
	root.span = Span{Start: 0, End: len(p.src)}

	p.skipSpace()
	if p.atEnd() {
		return root, true
	}

	expr, ok := p.parseLogical()
	if !ok {
		return nil, false
	}

	for {
		p.skipSpace()
		if p.peekByte() != ')' {
			break
		}
		p.pos++
	}
	if !p.atEnd() {
		p.expect(p.pos, expectEnd)
		return nil, false
	}

	root.Expression = expr
	return root, true
}

func (p *parser) parseLogical() (Node, bool) {
	left, ok := p.parseComparison()
	if !ok {
		return nil, false
	}

	var acc *Logical
	for {
		save := p.pos
		p.skipSpace()
		op, ok := p.acceptLogicalOperator()
		if !ok {
			p.pos = save
			return left, true
		}
		p.skipSpace()
		right, ok := p.parseComparison()
		if !ok {
			return nil, false
		}

		if acc != nil && acc.Op == op {
			acc.Operands = append(acc.Operands, right)
			acc.span.End = right.Span().End
			continue
		}
		acc = &Logical{Op: op, Operands: []Node{left, right}}
		acc.span = Span{Start: left.Span().Start, End: right.Span().End}
		left = acc
	}
}

func (p *parser) acceptLogicalOperator() (LogicalOperator, bool) {
	for _, kw := range []struct {
		word string
		op   LogicalOperator
	}{{"and", And}, {"or", Or}} {
		end := p.pos + len(kw.word)
		if end > len(p.src) || !strings.EqualFold(p.src[p.pos:end], kw.word) {
			continue
		}
		if end < len(p.src) && isSymbolByte(p.src[end]) {
			continue
		}
		p.pos = end
		return kw.op, true
	}
	p.expect(p.pos, expectAnd, expectOr)
	return 0, false
}

func (p *parser) parseComparison() (Node, bool) {
	left, ok := p.parseUnary()
	if !ok {
		return nil, false
	}

	save := p.pos
	p.skipSpace()

	var op CompareKind
	switch {
	case p.hasPrefix("=="):
		op = Equality
	case p.hasPrefix("!="):
		op = Inequality
	default:
		p.expect(p.pos, expectEquality, expectInequality)
		p.pos = save
		return left, true
	}
	p.pos += 2
	p.skipSpace()

	right, ok := p.parseUnary()
	if !ok {
		return nil, false
	}

	cmp := &Compare{Op: op, Left: left, Right: right}
	cmp.span = Span{Start: left.Span().Start, End: right.Span().End}
	return cmp, true
}

func (p *parser) parseUnary() (Node, bool) {
	if p.peekByte() == '!' && !p.hasPrefix("!=") {
		start := p.pos
		p.pos++
		p.skipSpace()
		operand, ok := p.parseUnary()
		if !ok {
			return nil, false
		}
		not := &Logical{Op: Not, Operands: []Node{operand}}
		not.span = Span{Start: start, End: operand.Span().End}
		return not, true
	}
	return p.parseOperand()
}

func (p *parser) parseOperand() (Node, bool) {
	switch {
	case p.peekByte() == '(':
		return p.parseGroup()
	case p.peekByte() == '\'':
		return p.parseQuotedString()
	case p.hasPrefix("$("), p.hasPrefix("@("), p.hasPrefix("%("):
		return p.parseReference()
	case isSymbolByte(p.peekByte()):
		start := p.pos
		sym, ok := p.parseSymbol()
		if !ok {
			return nil, false
		}
		if isKeyword(sym.Name) {
			p.pos = start
			p.expect(start, operandExpectations...)
			return nil, false
		}
		return sym, true
	default:
		p.expect(p.pos, operandExpectations...)
		return nil, false
	}
}

// parseGroup parses a parenthesised expression. Parentheses are transparent: the
// inner node is returned unchanged.
func (p *parser) parseGroup() (Node, bool) {
	p.pos++
	p.skipSpace()
	inner, ok := p.parseLogical()
	if !ok {
		return nil, false
	}
	p.skipSpace()
	if p.peekByte() != ')' {
		p.expect(p.pos, expectCloseParen)
		return nil, false
	}
	p.pos++
	return inner, true
}

func (p *parser) parseSymbol() (*Symbol, bool) {
	start := p.pos
	for !p.atEnd() && isSymbolByte(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		p.expect(start, expectSymbol)
		return nil, false
	}
	sym := &Symbol{Name: p.src[start:p.pos]}
	sym.span = Span{Start: start, End: p.pos}
	return sym, true
}

func (p *parser) parseQuotedString() (Node, bool) {
	start := p.pos
	p.pos++
	end := strings.IndexByte(p.src[p.pos:], '\'')
	if end < 0 {
		p.pos = len(p.src)
		p.expect(p.pos, expectQuote)
		return nil, false
	}
	contentStart := p.pos
	contentEnd := p.pos + end
	p.pos = contentEnd + 1

	str := &QuotedString{Content: p.src[contentStart:contentEnd]}
	str.span = Span{Start: start, End: p.pos}
	str.Evaluations = parseEmbedded(p.src, contentStart, contentEnd)
	return str, true
}

// parseEmbedded finds well-formed references inside [start, end) of src. Anything
// that does not parse as a reference is plain text.
func parseEmbedded(src string, start, end int) []Node {
	var refs []Node
	for i := start; i+1 < end; {
		if src[i+1] != '(' || (src[i] != '$' && src[i] != '@' && src[i] != '%') {
			i++
			continue
		}
		sub := newParser(src[:end])
		sub.pos = i
		ref, ok := sub.parseReference()
		if !ok {
			i += 2
			continue
		}
		refs = append(refs, ref)
		i = sub.pos
	}
	return refs
}

// parseReference parses $(Name), @(Name), %(Name) or %(Item.Name).
func (p *parser) parseReference() (Node, bool) {
	start := p.pos
	sigil := p.src[p.pos]
	p.pos += 2
	p.skipSpace()

	var node Node
	switch sigil {
	case '$', '@':
		sym, ok := p.parseSymbol()
		if !ok {
			return nil, false
		}
		if sigil == '$' {
			node = &Evaluate{Body: sym}
		} else {
			node = &ItemGroup{Body: sym}
		}
	case '%':
		md, ok := p.parseMetadataName()
		if !ok {
			return nil, false
		}
		node = md
	}

	p.skipSpace()
	if p.peekByte() != ')' {
		p.expect(p.pos, expectCloseParen)
		return nil, false
	}
	p.pos++
	node.base().span = Span{Start: start, End: p.pos}
	return node, true
}

func (p *parser) parseMetadataName() (*ItemMetadata, bool) {
	first, ok := p.parseSymbol()
	if !ok {
		return nil, false
	}
	if p.peekByte() != '.' {
		return &ItemMetadata{Metadata: first}, true
	}
	p.pos++

	if !isSymbolByte(p.peekByte()) {
		placeholder := &Symbol{}
		placeholder.span = Span{Start: p.pos, End: p.pos}
		return &ItemMetadata{ItemType: first, Metadata: placeholder}, true
	}
	name, ok := p.parseSymbol()
	if !ok {
		return nil, false
	}
	return &ItemMetadata{ItemType: first, Metadata: name}, true
}

// parseSimpleList splits the whole source on ';'. It cannot fail.
func parseSimpleList(src string) *Root {
	list := &SimpleList{}
	list.span = Span{Start: 0, End: len(src)}

	start := 0
	for {
		idx := strings.IndexByte(src[start:], ';')
		end := len(src)
		if idx >= 0 {
			end = start + idx
		}
		item := &SimpleListItem{Value: src[start:end]}
		item.span = Span{Start: start, End: end}
		list.Items = append(list.Items, item)
		if idx < 0 {
			break
		}
		start = end + 1
	}

	root := &Root{Expression: list}
	root.span = Span{Start: 0, End: len(src)}
	return root
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func isSymbolByte(b byte) bool {
	return b == '_' || b == '-' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') ||
		b >= 0x80
}

func isKeyword(s string) bool {
	return strings.EqualFold(s, "and") || strings.EqualFold(s, "or")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

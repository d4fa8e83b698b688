package position

import (
	"sort"
	"unicode/utf16"
	"unicode/utf8"
)

// TextPositions maps byte offsets in a text to one-based line/column positions and back.
// Columns count bytes within a line. Lines end at "\n"; a preceding "\r" stays part of the line.
type TextPositions struct {
	text       string
	length     int
	lineStarts []int
}

// NewTextPositions indexes the line starts of text.
func NewTextPositions(text string) *TextPositions {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &TextPositions{text: text, length: len(text), lineStarts: starts}
}

func (tp *TextPositions) Len() int {
	return tp.length
}

func (tp *TextPositions) LineCount() int {
	return len(tp.lineStarts)
}

// LineLength returns the number of bytes on a one-based line, excluding the line terminator.
func (tp *TextPositions) LineLength(line int) int {
	if line < 1 || line > len(tp.lineStarts) {
		return 0
	}
	start := tp.lineStarts[line-1]
	end := tp.length
	if line < len(tp.lineStarts) {
		end = tp.lineStarts[line] - 1
	}
	return end - start
}

// Position returns the one-based position of a byte offset. Offsets outside the text
// are clamped to its bounds.
func (tp *TextPositions) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > tp.length {
		offset = tp.length
	}
	line := sort.Search(len(tp.lineStarts), func(i int) bool {
		return tp.lineStarts[i] > offset
	}) - 1
	return NewPosition(line+1, offset-tp.lineStarts[line]+1)
}

// Offset returns the byte offset of p. Positions past the end of a line resolve to
// the line's end; positions past the last line resolve to the end of the text.
func (tp *TextPositions) Offset(p Position) int {
	p = p.ToOneBased()
	if p.Line < 1 {
		return 0
	}
	if p.Line > len(tp.lineStarts) {
		return tp.length
	}
	col := p.Column - 1
	if col < 0 {
		col = 0
	}
	if n := tp.LineLength(p.Line); col > n {
		col = n
	}
	return tp.lineStarts[p.Line-1] + col
}

// Range returns the range covering the byte span [start, end).
func (tp *TextPositions) Range(start, end int) Range {
	if end < start {
		end = start
	}
	return Range{Start: tp.Position(start), End: tp.Position(end)}
}

// End is the position immediately after the last byte of the text.
func (tp *TextPositions) End() Position {
	return tp.Position(tp.length)
}

// ColumnFromUTF16 returns the one-based byte column on a one-based line that follows
// the first units UTF-16 code units of the line. Counts past the end of the line
// resolve to its end; a count that splits a surrogate pair resolves to the start of
// that character.
func (tp *TextPositions) ColumnFromUTF16(line, units int) int {
	if line < 1 || line > len(tp.lineStarts) {
		return units + 1
	}
	start := tp.lineStarts[line-1]
	text := tp.text[start : start+tp.LineLength(line)]

	col := 0
	for col < len(text) && units > 0 {
		r, size := utf8.DecodeRuneInString(text[col:])
		n := utf16.RuneLen(r)
		if n < 1 {
			n = 1
		}
		if units < n {
			break
		}
		units -= n
		col += size
	}
	return col + 1
}

// UTF16Column returns how many UTF-16 code units precede p on its line. Columns past
// the end of the line count as the line's end.
func (tp *TextPositions) UTF16Column(p Position) int {
	p = p.ToOneBased()
	if p.Line < 1 || p.Line > len(tp.lineStarts) {
		return p.Column - 1
	}
	start := tp.lineStarts[p.Line-1]
	end := p.Column - 1
	if end < 0 {
		end = 0
	}
	if n := tp.LineLength(p.Line); end > n {
		end = n
	}

	units := 0
	for _, r := range tp.text[start : start+end] {
		n := utf16.RuneLen(r)
		if n < 1 {
			n = 1
		}
		units += n
	}
	return units
}

package lsp

import (
	"github.com/walteh/msbuildls/pkg/position"
)

// ToProtocolPosition converts a position of any basis to the zero-based wire form.
func ToProtocolPosition(p position.Position) Position {
	z := p.ToZeroBased()
	return Position{Line: z.Line, Character: z.Column}
}

// FromProtocolPosition wraps a wire position without shifting it.
func FromProtocolPosition(p Position) position.Position {
	return position.NewZeroBasedPosition(p.Line, p.Character)
}

func ToProtocolRange(r position.Range) Range {
	return Range{Start: ToProtocolPosition(r.Start), End: ToProtocolPosition(r.End)}
}

func FromProtocolRange(r Range) position.Range {
	return position.Range{Start: FromProtocolPosition(r.Start), End: FromProtocolPosition(r.End)}
}

// PositionEncoding names how the character offset of a wire position is counted.
type PositionEncoding string

const (
	EncodingUTF16 PositionEncoding = "utf-16"
	EncodingUTF8  PositionEncoding = "utf-8"
)

// NegotiateEncoding picks utf-8 when the client offers it. UTF-16 is the protocol
// default and is assumed otherwise.
func NegotiateEncoding(offered []PositionEncoding) PositionEncoding {
	for _, enc := range offered {
		if enc == EncodingUTF8 {
			return EncodingUTF8
		}
	}
	return EncodingUTF16
}

// Mapper converts positions of one document between byte columns and the negotiated
// wire encoding. Without Positions columns pass through as bytes.
type Mapper struct {
	Encoding  PositionEncoding
	Positions *position.TextPositions
}

func (m Mapper) countsUTF16() bool {
	return m.Encoding != EncodingUTF8 && m.Positions != nil
}

func (m Mapper) ToProtocol(p position.Position) Position {
	if !m.countsUTF16() {
		return ToProtocolPosition(p)
	}
	o := p.ToOneBased()
	return Position{Line: o.Line - 1, Character: m.Positions.UTF16Column(o)}
}

func (m Mapper) FromProtocol(p Position) position.Position {
	if !m.countsUTF16() {
		return FromProtocolPosition(p)
	}
	col := m.Positions.ColumnFromUTF16(p.Line+1, p.Character)
	return position.NewZeroBasedPosition(p.Line, col-1)
}

func (m Mapper) ToProtocolRange(r position.Range) Range {
	return Range{Start: m.ToProtocol(r.Start), End: m.ToProtocol(r.End)}
}

package position

import (
	"fmt"
)

// Basis describes whether a position counts lines and columns from zero or from one.
type Basis int

const (
	// ZeroBased is the basis used on the wire by line-server style protocols.
	ZeroBased Basis = iota
	// OneBased is the basis used internally by every tree in this module.
	OneBased
)

func (b Basis) String() string {
	switch b {
	case ZeroBased:
		return "zero-based"
	case OneBased:
		return "one-based"
	default:
		return "unknown"
	}
}

// Position is a line/column location in a document.
//
// Two positions compare equal when they denote the same logical location,
// regardless of basis. Ordering positions from different documents is meaningless.
type Position struct {
	Line   int
	Column int
	Basis  Basis
}

// NewPosition returns a one-based position.
func NewPosition(line, column int) Position {
	return Position{Line: line, Column: column, Basis: OneBased}
}

// NewZeroBasedPosition returns a zero-based position.
func NewZeroBasedPosition(line, column int) Position {
	return Position{Line: line, Column: column, Basis: ZeroBased}
}

// Origin is the first position of any document.
var Origin = NewPosition(1, 1)

func (p Position) IsOneBased() bool {
	return p.Basis == OneBased
}

// ToOneBased converts p to the one-based basis. Converting an already one-based
// position returns it unchanged.
func (p Position) ToOneBased() Position {
	if p.Basis == OneBased {
		return p
	}
	return Position{Line: p.Line + 1, Column: p.Column + 1, Basis: OneBased}
}

// ToZeroBased converts p to the zero-based basis. Converting an already zero-based
// position returns it unchanged.
func (p Position) ToZeroBased() Position {
	if p.Basis == ZeroBased {
		return p
	}
	return Position{Line: p.Line - 1, Column: p.Column - 1, Basis: ZeroBased}
}

// Move returns p shifted by the given number of lines and columns, in p's own basis.
func (p Position) Move(lines, columns int) Position {
	return Position{Line: p.Line + lines, Column: p.Column + columns, Basis: p.Basis}
}

// WithOrigin treats p as relative to the document origin (1,1) and re-expresses it
// relative to origin instead. Positions on the first line shift by the origin's column;
// positions on later lines keep their column and only shift by the origin's line.
func (p Position) WithOrigin(origin Position) Position {
	rel := p.ToOneBased()
	org := origin.ToOneBased()

	var moved Position
	if rel.Line == 1 {
		moved = NewPosition(org.Line, org.Column+rel.Column-1)
	} else {
		moved = NewPosition(org.Line+rel.Line-1, rel.Column)
	}
	return moved.inBasis(p.Basis)
}

// RelativeTo is the inverse of WithOrigin: it expresses p relative to origin as if
// origin were (1,1).
func (p Position) RelativeTo(origin Position) Position {
	abs := p.ToOneBased()
	org := origin.ToOneBased()

	var rel Position
	if abs.Line == org.Line {
		rel = NewPosition(1, abs.Column-org.Column+1)
	} else {
		rel = NewPosition(abs.Line-org.Line+1, abs.Column)
	}
	return rel.inBasis(p.Basis)
}

func (p Position) inBasis(b Basis) Position {
	if b == ZeroBased {
		return p.ToZeroBased()
	}
	return p.ToOneBased()
}

// Compare orders positions by line, then column, in the canonical basis.
func (p Position) Compare(other Position) int {
	a, b := p.ToOneBased(), other.ToOneBased()
	switch {
	case a.Line < b.Line:
		return -1
	case a.Line > b.Line:
		return 1
	case a.Column < b.Column:
		return -1
	case a.Column > b.Column:
		return 1
	default:
		return 0
	}
}

func (p Position) Equal(other Position) bool {
	return p.Compare(other) == 0
}

func (p Position) Before(other Position) bool {
	return p.Compare(other) < 0
}

func (p Position) After(other Position) bool {
	return p.Compare(other) > 0
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Line, p.Column)
}

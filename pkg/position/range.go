package position

import (
	"fmt"

	"gitlab.com/tozd/go/errors"
)

// ErrInvalidRange is returned when a range would end before it starts.
var ErrInvalidRange = errors.New("range end precedes start")

// Range is a half-open span of a document: it contains every position p with
// Start <= p < End.
type Range struct {
	Start Position
	End   Position
}

// NewRange returns the range [start, end).
func NewRange(start, end Position) (Range, error) {
	if start.After(end) {
		return Range{}, errors.Errorf("%w: start %s, end %s", ErrInvalidRange, start, end)
	}
	return Range{Start: start, End: end}, nil
}

// MustNewRange is NewRange for callers that already guarantee start <= end.
func MustNewRange(start, end Position) Range {
	r, err := NewRange(start, end)
	if err != nil {
		panic(err)
	}
	return r
}

// EmptyRange returns the zero-width range at p.
func EmptyRange(p Position) Range {
	return Range{Start: p, End: p}
}

func (r Range) IsEmpty() bool {
	return r.Start.Equal(r.End)
}

// Contains reports whether p lies in [Start, End).
func (r Range) Contains(p Position) bool {
	return !p.Before(r.Start) && p.Before(r.End)
}

// ContainsRange reports whether other lies entirely within r.
func (r Range) ContainsRange(other Range) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// Compare orders ranges by start position and then by end position.
//
// Ranges sharing a start currently sort shorter-first, so a container lands after
// the ranges it encloses. Whether containers should sort first instead is still open.
func (r Range) Compare(other Range) int {
	if c := r.Start.Compare(other.Start); c != 0 {
		return c
	}
	return r.End.Compare(other.End)
}

func (r Range) Equal(other Range) bool {
	return r.Start.Equal(other.Start) && r.End.Equal(other.End)
}

func (r Range) Move(lines, columns int) Range {
	return Range{Start: r.Start.Move(lines, columns), End: r.End.Move(lines, columns)}
}

// WithOrigin re-expresses a range built against a zero-origin buffer relative to origin.
func (r Range) WithOrigin(origin Position) Range {
	return Range{Start: r.Start.WithOrigin(origin), End: r.End.WithOrigin(origin)}
}

// RelativeTo is the inverse of WithOrigin.
func (r Range) RelativeTo(origin Position) Range {
	return Range{Start: r.Start.RelativeTo(origin), End: r.End.RelativeTo(origin)}
}

func (r Range) ToOneBased() Range {
	return Range{Start: r.Start.ToOneBased(), End: r.End.ToOneBased()}
}

func (r Range) ToZeroBased() Range {
	return Range{Start: r.Start.ToZeroBased(), End: r.End.ToZeroBased()}
}

func (r Range) String() string {
	return fmt.Sprintf("[%s..%s)", r.Start, r.End)
}

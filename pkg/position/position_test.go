package position_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/msbuildls/pkg/position"
)

func TestBasisConversionRoundTrips(t *testing.T) {
	tests := []struct {
		name string
		pos  position.Position
	}{
		{name: "origin one-based", pos: position.NewPosition(1, 1)},
		{name: "origin zero-based", pos: position.NewZeroBasedPosition(0, 0)},
		{name: "middle one-based", pos: position.NewPosition(12, 40)},
		{name: "middle zero-based", pos: position.NewZeroBasedPosition(7, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.pos.ToOneBased(), tt.pos.ToZeroBased().ToOneBased())
			assert.Equal(t, tt.pos.ToZeroBased(), tt.pos.ToOneBased().ToZeroBased())
			assert.Equal(t, tt.pos.ToOneBased(), tt.pos.ToOneBased().ToOneBased(), "converting twice must be stable")
			assert.Equal(t, tt.pos.ToZeroBased(), tt.pos.ToZeroBased().ToZeroBased(), "converting twice must be stable")
			assert.True(t, tt.pos.Equal(tt.pos.ToZeroBased()))
			assert.True(t, tt.pos.Equal(tt.pos.ToOneBased()))
		})
	}
}

func TestPositionCompareUsesCanonicalBasis(t *testing.T) {
	one := position.NewPosition(3, 5)
	zero := position.NewZeroBasedPosition(2, 4)

	assert.Equal(t, 0, one.Compare(zero))
	assert.True(t, one.Equal(zero))
	assert.True(t, position.NewZeroBasedPosition(2, 3).Before(one))
	assert.True(t, position.NewPosition(4, 1).After(zero))
}

func TestPositionOrigin(t *testing.T) {
	origin := position.NewPosition(5, 10)

	tests := []struct {
		name string
		rel  position.Position
		want position.Position
	}{
		{name: "first column", rel: position.NewPosition(1, 1), want: position.NewPosition(5, 10)},
		{name: "first line", rel: position.NewPosition(1, 4), want: position.NewPosition(5, 13)},
		{name: "later line", rel: position.NewPosition(3, 2), want: position.NewPosition(7, 2)},
		{name: "zero-based input keeps basis", rel: position.NewZeroBasedPosition(0, 3), want: position.NewZeroBasedPosition(4, 12)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rel.WithOrigin(origin)
			assert.Equal(t, tt.want, got)
			assert.True(t, tt.rel.Equal(got.RelativeTo(origin)))
		})
	}
}

func TestNewRangeRejectsInvertedBounds(t *testing.T) {
	_, err := position.NewRange(position.NewPosition(2, 1), position.NewPosition(1, 9))
	require.Error(t, err)
	assert.True(t, errors.Is(err, position.ErrInvalidRange))

	r, err := position.NewRange(position.NewPosition(1, 4), position.NewPosition(1, 4))
	require.NoError(t, err)
	assert.True(t, r.IsEmpty())
}

func TestRangeContainsIsHalfOpen(t *testing.T) {
	r := position.MustNewRange(position.NewPosition(1, 3), position.NewPosition(2, 2))

	tests := []struct {
		name string
		pos  position.Position
		want bool
	}{
		{name: "before start", pos: position.NewPosition(1, 2), want: false},
		{name: "at start", pos: position.NewPosition(1, 3), want: true},
		{name: "inside on first line", pos: position.NewPosition(1, 80), want: true},
		{name: "inside on last line", pos: position.NewPosition(2, 1), want: true},
		{name: "at end", pos: position.NewPosition(2, 2), want: false},
		{name: "after end", pos: position.NewPosition(3, 1), want: false},
		{name: "zero-based at start", pos: position.NewZeroBasedPosition(0, 2), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Contains(tt.pos))
			want := !tt.pos.Before(r.Start) && tt.pos.Before(r.End)
			assert.Equal(t, want, r.Contains(tt.pos))
		})
	}

	empty := position.EmptyRange(position.NewPosition(1, 3))
	assert.False(t, empty.Contains(position.NewPosition(1, 3)), "an empty range contains nothing")
}

func TestRangeContainsRange(t *testing.T) {
	outer := position.MustNewRange(position.NewPosition(1, 1), position.NewPosition(1, 10))

	assert.True(t, outer.ContainsRange(outer))
	assert.True(t, outer.ContainsRange(position.MustNewRange(position.NewPosition(1, 2), position.NewPosition(1, 10))))
	assert.False(t, outer.ContainsRange(position.MustNewRange(position.NewPosition(1, 2), position.NewPosition(1, 11))))
	assert.False(t, outer.ContainsRange(position.MustNewRange(position.NewPosition(0, 9), position.NewPosition(1, 3))))
}

func TestRangeCompare(t *testing.T) {
	a := position.MustNewRange(position.NewPosition(1, 1), position.NewPosition(1, 5))
	b := position.MustNewRange(position.NewPosition(1, 2), position.NewPosition(1, 3))

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

// Captures current ordering of ranges that share a start: the shorter range sorts
// first, so a sort does not place an enclosing range before the ranges it encloses.
func TestRangeCompareSameStartCurrentBehavior(t *testing.T) {
	short := position.MustNewRange(position.NewPosition(1, 1), position.NewPosition(1, 4))
	long := position.MustNewRange(position.NewPosition(1, 1), position.NewPosition(3, 1))

	assert.Equal(t, -1, short.Compare(long))
	assert.Equal(t, 1, long.Compare(short))
	assert.True(t, long.ContainsRange(short))

	ranges := []position.Range{long, short}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Compare(ranges[j]) < 0 })
	assert.Equal(t, []position.Range{short, long}, ranges, "container sorts after its nested range")
}

func TestRangeOriginRoundTrip(t *testing.T) {
	origin := position.NewPosition(10, 21)
	local := position.MustNewRange(position.NewPosition(1, 3), position.NewPosition(2, 4))

	moved := local.WithOrigin(origin)
	assert.Equal(t, position.NewPosition(10, 23), moved.Start)
	assert.Equal(t, position.NewPosition(11, 4), moved.End)
	assert.Equal(t, local, moved.RelativeTo(origin))

	assert.Equal(t, position.MustNewRange(position.NewPosition(2, 5), position.NewPosition(3, 6)), local.Move(1, 2))
	assert.Equal(t, local, local.ToZeroBased().ToOneBased())
}

func TestTextPositions(t *testing.T) {
	text := "ab\ncde\n\nf"
	tp := position.NewTextPositions(text)

	tests := []struct {
		name   string
		offset int
		want   position.Position
	}{
		{name: "start", offset: 0, want: position.NewPosition(1, 1)},
		{name: "end of first line", offset: 2, want: position.NewPosition(1, 3)},
		{name: "second line", offset: 4, want: position.NewPosition(2, 2)},
		{name: "empty line", offset: 7, want: position.NewPosition(3, 1)},
		{name: "last char", offset: 8, want: position.NewPosition(4, 1)},
		{name: "end of text", offset: 9, want: position.NewPosition(4, 2)},
		{name: "clamped", offset: 99, want: position.NewPosition(4, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tp.Position(tt.offset)
			assert.Equal(t, tt.want, got)
			if tt.offset <= len(text) {
				assert.Equal(t, tt.offset, tp.Offset(got))
			}
		})
	}

	assert.Equal(t, 4, tp.LineCount())
	assert.Equal(t, 3, tp.LineLength(2))
	assert.Equal(t, 0, tp.LineLength(3))
	assert.Equal(t, 6, tp.Offset(position.NewPosition(2, 50)), "columns past the line end clamp")
	assert.Equal(t, 4, tp.Offset(position.NewZeroBasedPosition(1, 1)))
	assert.Equal(t, position.MustNewRange(position.NewPosition(1, 2), position.NewPosition(2, 3)), tp.Range(1, 5))
}

func TestTextPositionsUTF16(t *testing.T) {
	tp := position.NewTextPositions("<!-- é --><Project>\n😀x")

	tests := []struct {
		name      string
		line      int
		units     int
		wantCol   int
		roundTrip bool
	}{
		{name: "ascii prefix", line: 1, units: 4, wantCol: 5, roundTrip: true},
		{name: "after two-byte rune", line: 1, units: 11, wantCol: 13, roundTrip: true},
		{name: "after surrogate pair", line: 2, units: 2, wantCol: 5, roundTrip: true},
		{name: "inside surrogate pair", line: 2, units: 1, wantCol: 1},
		{name: "past line end", line: 2, units: 99, wantCol: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := tp.ColumnFromUTF16(tt.line, tt.units)
			assert.Equal(t, tt.wantCol, col)
			if tt.roundTrip {
				assert.Equal(t, tt.units, tp.UTF16Column(position.NewPosition(tt.line, col)))
			}
		})
	}

	assert.Equal(t, 3, tp.UTF16Column(position.NewPosition(2, 50)), "columns past the line end clamp")
}

type testNode struct {
	name     string
	rng      position.Range
	children []*testNode
}

func (n *testNode) Range() position.Range { return n.rng }
func (n *testNode) Children() []*testNode { return n.children }

func span(startCol, endCol int) position.Range {
	return position.MustNewRange(position.NewPosition(1, startCol), position.NewPosition(1, endCol))
}

func TestFindDeepest(t *testing.T) {
	leafA := &testNode{name: "a", rng: span(2, 4)}
	placeholder := &testNode{name: "empty", rng: span(6, 6)}
	leafB := &testNode{name: "b", rng: span(6, 9)}
	mid := &testNode{name: "mid", rng: span(1, 10), children: []*testNode{leafA, placeholder, leafB}}
	root := &testNode{name: "root", rng: span(1, 12), children: []*testNode{mid}}

	tests := []struct {
		name string
		col  int
		want string
	}{
		{name: "at child start", col: 2, want: "a"},
		{name: "at child end", col: 4, want: "mid"},
		{name: "placeholder wins by declaration order", col: 6, want: "empty"},
		{name: "inside second leaf", col: 7, want: "b"},
		{name: "outside children", col: 11, want: "root"},
		{name: "outside root", col: 40, want: "root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := position.FindDeepest(root, position.NewPosition(1, tt.col))
			assert.Equal(t, tt.want, got.name)
		})
	}

	chain := position.Ancestors(root, position.NewPosition(1, 7))
	require.Len(t, chain, 3)
	assert.Equal(t, "b", chain[2].name)
}

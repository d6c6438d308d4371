package augmecon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGridIndexString(t *testing.T) {
	assert.Equal(t, "(3, 0)", GridIndex{3, 0}.String())
	assert.Equal(t, "(7)", GridIndex{7}.String())
}

func TestAdvance(t *testing.T) {
	c := GridIndex{0, 0}
	var seen []string
	for {
		seen = append(seen, c.String())
		if !advance(c, 2) {
			break
		}
	}
	assert.Equal(t, []string{"(0, 0)", "(1, 0)", "(0, 1)", "(1, 1)"}, seen)
	assert.Equal(t, GridIndex{0, 0}, c, "advance wraps to the origin when exhausted")
}

func TestSkipMapSingleDimension(t *testing.T) {
	m := NewSkipMap(10, 1)
	m.MarkInfeasible(GridIndex{3})
	assert.Equal(t, 7, m.Get(GridIndex{3}))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 6, m.After(GridIndex{3}), "the rest of the row after the solved point")
	assert.Equal(t, 0, m.After(GridIndex{4}))
}

func TestSkipMapMarkInfeasible(t *testing.T) {
	m := NewSkipMap(4, 2)
	m.MarkInfeasible(GridIndex{1, 2})

	assert.Equal(t, 3, m.Get(GridIndex{1, 2}))
	assert.Equal(t, 3, m.Get(GridIndex{1, 3}))
	assert.Equal(t, 0, m.Get(GridIndex{1, 1}), "looser rows stay unmarked")
	assert.Equal(t, 0, m.Get(GridIndex{0, 2}), "other fastest positions stay unmarked")
	assert.Equal(t, 2, m.Len())

	assert.Equal(t, 3, m.Resume(GridIndex{1, 3}, 0))
	assert.Equal(t, 2, m.After(GridIndex{1, 2}))
}

func TestSkipMapMarkBypass(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		at     GridIndex
		jumps  []int
		marked map[string]int
		after  int
	}{
		{
			name:   "reach within the grid",
			size:   4,
			at:     GridIndex{0, 1},
			jumps:  []int{2, 1},
			marked: map[string]int{"(0, 1)": 3, "(0, 2)": 3},
			after:  2,
		},
		{
			name:   "reach clamped at the last row",
			size:   4,
			at:     GridIndex{0, 3},
			jumps:  []int{0, 5},
			marked: map[string]int{"(0, 3)": 1},
			after:  0,
		},
		{
			name:   "fastest reach clamped at the row end",
			size:   4,
			at:     GridIndex{2, 0},
			jumps:  []int{9, 0},
			marked: map[string]int{"(2, 0)": 10},
			after:  1,
		},
		{
			name:   "negative jumps count as zero",
			size:   3,
			at:     GridIndex{1, 1},
			jumps:  []int{-1, -2},
			marked: map[string]int{"(1, 1)": 1},
			after:  0,
		},
		{
			name:  "three dimensions",
			size:  3,
			at:    GridIndex{0, 0, 1},
			jumps: []int{1, 1, 1},
			marked: map[string]int{
				"(0, 0, 1)": 2, "(0, 1, 1)": 2,
				"(0, 0, 2)": 2, "(0, 1, 2)": 2,
			},
			after: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewSkipMap(tt.size, len(tt.at))
			m.MarkBypass(tt.at, tt.jumps)
			assert.Equal(t, len(tt.marked), m.Len())

			c := make(GridIndex, len(tt.at))
			for {
				want := tt.marked[c.String()]
				assert.Equal(t, want, m.Get(c), "mark at %s", c)
				if !advance(c, tt.size) {
					break
				}
			}
			assert.Equal(t, tt.after, m.After(tt.at))
		})
	}
}

func TestSkipMapMarksNeverShrink(t *testing.T) {
	m := NewSkipMap(5, 2)
	m.MarkBypass(GridIndex{1, 0}, []int{3, 0})
	assert.Equal(t, 4, m.Get(GridIndex{1, 0}))

	m.MarkBypass(GridIndex{1, 0}, []int{0, 0})
	assert.Equal(t, 4, m.Get(GridIndex{1, 0}))

	m.MarkInfeasible(GridIndex{1, 0})
	assert.Equal(t, 4, m.Get(GridIndex{1, 0}), "infeasible mark of 4 equals the bypass mark")

	m.MarkInfeasible(GridIndex{0, 0})
	assert.Equal(t, 5, m.Get(GridIndex{0, 4}))
}

func TestSkipMapResume(t *testing.T) {
	m := NewSkipMap(5, 2)
	m.MarkInfeasible(GridIndex{2, 1})

	assert.Equal(t, 0, m.Resume(GridIndex{2, 0}, 0), "unmarked point")
	assert.Equal(t, 2, m.Resume(GridIndex{2, 0}, 2), "active skip wins")
	assert.Equal(t, 3, m.Resume(GridIndex{2, 1}, 0))
	assert.Equal(t, 1, m.Resume(GridIndex{2, 1}, 1), "active skip wins over a mark")

	m.MarkBypass(GridIndex{3, 3}, []int{6, 0})
	assert.Equal(t, 2, m.Resume(GridIndex{3, 3}, 0), "bounded by the points left in the row")
}

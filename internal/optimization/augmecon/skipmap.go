package augmecon

import (
	"strconv"
	"strings"
)

// GridIndex addresses one grid point: component k is the position of
// secondary objective k+2. Component 0 varies fastest during enumeration.
type GridIndex []int

// String formats the index as a tuple, e.g. "(3, 0)".
func (c GridIndex) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range c {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(v))
	}
	b.WriteByte(')')
	return b.String()
}

// advance moves c to the next index in enumeration order and reports whether
// one exists.
func advance(c GridIndex, size int) bool {
	for k := range c {
		c[k]++
		if c[k] < size {
			return true
		}
		c[k] = 0
	}
	return false
}

// SkipMap records, per grid point, how many consecutive points along the
// fastest dimension can be skipped once the scan reaches it.
//
// Marks are inserted by MarkInfeasible and MarkBypass and consumed by Resume
// and After. A mark never shrinks: each one is a separate proof that the
// points it covers add nothing new.
type SkipMap struct {
	size  int
	dims  int
	marks map[int]int
}

// NewSkipMap creates an empty map for dims dimensions of size points each.
func NewSkipMap(size, dims int) *SkipMap {
	return &SkipMap{size: size, dims: dims, marks: make(map[int]int)}
}

// Len returns the number of marked points.
func (m *SkipMap) Len() int {
	return len(m.marks)
}

// Get returns the mark of c, 0 when unmarked.
func (m *SkipMap) Get(c GridIndex) int {
	return m.marks[m.ordinal(c)]
}

// MarkInfeasible records that c is infeasible. Every point that is at least
// as tight as c in all slower dimensions and starts at c's fastest position
// is infeasible too, so the rest of those rows is skipped.
func (m *SkipMap) MarkInfeasible(c GridIndex) {
	lo := make([]int, m.dims)
	hi := make([]int, m.dims)
	for k := 1; k < m.dims; k++ {
		lo[k], hi[k] = c[k], m.size-1
	}
	m.markCone(c[0], lo, hi, m.size-c[0])
}

// MarkBypass records that the solution at c stays optimal for jumps[k] more
// steps of tightening in each dimension k. Rows within that reach in the
// slower dimensions skip jumps[0]+1 points from c's fastest position.
func (m *SkipMap) MarkBypass(c GridIndex, jumps []int) {
	lo := make([]int, m.dims)
	hi := make([]int, m.dims)
	for k := 1; k < m.dims; k++ {
		j := jumps[k]
		if j < 0 {
			j = 0
		}
		lo[k], hi[k] = c[k], min(m.size-1, c[k]+j)
	}
	first := jumps[0]
	if first < 0 {
		first = 0
	}
	m.markCone(c[0], lo, hi, first+1)
}

// Resume returns the skip count in effect on arrival at c. A skip already in
// progress wins; otherwise a mark on c starts one, bounded by the points left
// in the row.
func (m *SkipMap) Resume(c GridIndex, active int) int {
	if active != 0 {
		return active
	}
	mark := m.Get(c)
	if mark == 0 {
		return 0
	}
	return min(mark, m.size-c[0])
}

// After returns the skip count in effect after solving c: a mark on c covers
// c itself, so one fewer point is skipped, bounded by the points left in the
// row.
func (m *SkipMap) After(c GridIndex) int {
	mark := m.Get(c)
	if mark == 0 {
		return 0
	}
	return min(mark-1, m.size-c[0]-1)
}

// markCone marks every point with fastest position fast and slower
// components k within [lo[k], hi[k]].
func (m *SkipMap) markCone(fast int, lo, hi []int, count int) {
	if count <= 0 {
		return
	}
	t := make(GridIndex, m.dims)
	copy(t, lo)
	t[0] = fast
	for {
		m.mark(t, count)
		k := 1
		for ; k < m.dims; k++ {
			t[k]++
			if t[k] <= hi[k] {
				break
			}
			t[k] = lo[k]
		}
		if k == m.dims {
			return
		}
	}
}

func (m *SkipMap) mark(c GridIndex, count int) {
	o := m.ordinal(c)
	if count > m.marks[o] {
		m.marks[o] = count
	}
}

// ordinal is the position of c in enumeration order.
func (m *SkipMap) ordinal(c GridIndex) int {
	o := 0
	for k := m.dims - 1; k >= 0; k-- {
		o = o*m.size + c[k]
	}
	return o
}

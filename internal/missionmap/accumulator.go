package missionmap

// Accumulator owns the coverage mask and the visited-cell path.
//
// The mask only ever records in-bounds cells; the path records every cell,
// including those outside the map, so the trajectory is kept intact.
// An Accumulator is not safe for concurrent use; Session serialises access.
type Accumulator struct {
	width   int
	height  int
	mask    []uint8
	path    []Cell
	covered int
}

// NewAccumulator allocates an all-zero mask of width x height.
func NewAccumulator(width, height int) *Accumulator {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Accumulator{
		width:  width,
		height: height,
		mask:   make([]uint8, width*height),
	}
}

// Width returns the mask width in cells.
func (a *Accumulator) Width() int { return a.width }

// Height returns the mask height in cells.
func (a *Accumulator) Height() int { return a.height }

// InBounds reports whether c addresses a mask cell.
func (a *Accumulator) InBounds(c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < a.width && c.Y < a.height
}

// Mark sets c to Covered. Out-of-bounds cells are ignored. It reports
// whether the cell was newly covered.
func (a *Accumulator) Mark(c Cell) bool {
	if !a.InBounds(c) {
		return false
	}
	idx := c.Y*a.width + c.X
	if a.mask[idx] == Covered {
		return false
	}
	if a.mask[idx] == 0 {
		a.covered++
	}
	a.mask[idx] = Covered
	return true
}

// AppendPath records c, whether or not it is in bounds.
func (a *Accumulator) AppendPath(c Cell) {
	a.path = append(a.path, c)
}

// Reset zeroes the mask in place and empties the path.
func (a *Accumulator) Reset() {
	clear(a.mask)
	a.path = nil
	a.covered = 0
}

// CoveredCells returns the number of non-zero mask cells.
func (a *Accumulator) CoveredCells() int { return a.covered }

// PathLen returns the number of recorded path entries.
func (a *Accumulator) PathLen() int { return len(a.path) }

// Mask returns a copy of the mask, row-major.
func (a *Accumulator) Mask() []uint8 {
	out := make([]uint8, len(a.mask))
	copy(out, a.mask)
	return out
}

// Path returns a copy of the path in insertion order.
func (a *Accumulator) Path() []Cell {
	out := make([]Cell, len(a.path))
	copy(out, a.path)
	return out
}

package missionmap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// cellSnapTolerance absorbs floating point error in (x-x0)/resolution so a
// pose sitting on a cell boundary (0.3/0.1 = 2.9999999999999996) lands in
// the cell that starts at that boundary.
const cellSnapTolerance = 1e-9

// maxCellIndex bounds cell indices so far-off poses keep their sign and
// differences between two cells cannot overflow.
const maxCellIndex = 1 << 53

// Mapper converts world-frame coordinates into grid cells.
//
// Rounding rule: px = floor((x - x0) / resolution) and likewise for y, with
// quotients within cellSnapTolerance of an integer snapped onto it first.
// Negative offsets therefore map to negative cells (-0.05 at 0.1 m/cell is
// cell -1), never towards zero. Indices saturate at ±2^53.
type Mapper struct {
	resolution float64
	origin     Origin
	originVec  r2.Vec
}

// NewMapper validates the resolution and fixes the configuration for the
// mapper's lifetime.
func NewMapper(resolution float64, origin Origin) (*Mapper, error) {
	if math.IsNaN(resolution) || math.IsInf(resolution, 0) || resolution <= 0 {
		return nil, fmt.Errorf("%w: resolution must be positive and finite, got %v", ErrConfiguration, resolution)
	}
	if math.IsNaN(origin.X) || math.IsNaN(origin.Y) || math.IsInf(origin.X, 0) || math.IsInf(origin.Y, 0) {
		return nil, fmt.Errorf("%w: origin must be finite, got (%v, %v)", ErrConfiguration, origin.X, origin.Y)
	}
	return &Mapper{
		resolution: resolution,
		origin:     origin,
		originVec:  r2.Vec{X: origin.X, Y: origin.Y},
	}, nil
}

// Resolution returns the configured meters per cell.
func (m *Mapper) Resolution() float64 { return m.resolution }

// Origin returns the configured map origin.
func (m *Mapper) Origin() Origin { return m.origin }

// Transform maps a world coordinate to its grid cell. Results outside the
// map are valid; bounds are the accumulator's concern.
func (m *Mapper) Transform(x, y float64) Cell {
	d := r2.Sub(r2.Vec{X: x, Y: y}, m.originVec)
	return Cell{
		X: floorIndex(d.X / m.resolution),
		Y: floorIndex(d.Y / m.resolution),
	}
}

// CellCenter returns the world coordinate of the centre of c.
func (m *Mapper) CellCenter(c Cell) (x, y float64) {
	offset := r2.Scale(m.resolution, r2.Vec{X: float64(c.X) + 0.5, Y: float64(c.Y) + 0.5})
	p := r2.Add(m.originVec, offset)
	return p.X, p.Y
}

func floorIndex(q float64) int {
	switch {
	case q >= maxCellIndex:
		return maxCellIndex
	case q <= -maxCellIndex:
		return -maxCellIndex
	}
	if r := math.Round(q); math.Abs(q-r) < cellSnapTolerance {
		return int(r)
	}
	return int(math.Floor(q))
}

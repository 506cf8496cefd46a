package missionmap

import (
	"fmt"
	"time"
)

// Covered is the mask value written for a visited cell.
const Covered uint8 = 255

// Cell is one discrete grid position, equivalent to one pixel of the map
// raster. Y indexes rows, X indexes columns.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Origin is the world-frame pose of the map's (0,0) pixel. Theta is carried
// for completeness; maps are axis-aligned and it is never applied.
type Origin struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// MapMetadata describes how the grid relates to the world frame.
// Width and Height are advisory: buffers are sized from the decoded raster.
type MapMetadata struct {
	Resolution float64 `json:"resolution"` // meters per cell edge
	Origin     Origin  `json:"origin"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// BaseMap is the static environment raster, row-major with Pix[y*Width+x].
// Zero marks non-traversable or unknown cells.
type BaseMap struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewBaseMap allocates a width x height map filled with value.
func NewBaseMap(width, height int, value uint8) BaseMap {
	pix := make([]uint8, width*height)
	if value != 0 {
		for i := range pix {
			pix[i] = value
		}
	}
	return BaseMap{Width: width, Height: height, Pix: pix}
}

// Validate checks that the dimensions are positive and match the pixel buffer.
func (b BaseMap) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: base map has non-positive size %dx%d", ErrInputDecode, b.Width, b.Height)
	}
	if len(b.Pix) != b.Width*b.Height {
		return fmt.Errorf("%w: base map buffer holds %d pixels, want %d", ErrInputDecode, len(b.Pix), b.Width*b.Height)
	}
	return nil
}

// At returns the intensity at (x, y). The caller must stay in bounds.
func (b BaseMap) At(x, y int) uint8 {
	return b.Pix[y*b.Width+x]
}

// Clone returns a deep copy.
func (b BaseMap) Clone() BaseMap {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return BaseMap{Width: b.Width, Height: b.Height, Pix: pix}
}

// TraversableCells counts the non-zero cells, the denominator of coverage.
func (b BaseMap) TraversableCells() int {
	n := 0
	for _, v := range b.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// State is the recording lifecycle state of a Session.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateRecording
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateUnloaded; st <= StateStopped; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// CoverageSample is one point of the coverage-over-time series.
type CoverageSample struct {
	Index    int       `json:"index"` // number of recorded poses so far
	At       time.Time `json:"at"`
	Coverage float64   `json:"coverage"`
}

// Snapshot is a copy of everything an exporter needs from a session.
// It shares no memory with the session.
type Snapshot struct {
	ID        string
	State     State
	Metadata  MapMetadata
	Base      BaseMap
	Mask      []uint8
	Path      []Cell
	Stats     Stats
	Timeline  []CoverageSample
	StartedAt time.Time
	StoppedAt time.Time
}

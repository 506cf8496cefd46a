package missionmap

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/missionmap/internal/monitoring"
	"github.com/banshee-data/missionmap/internal/timeutil"
)

// DefaultSampleInterval records a timeline sample for every recorded pose.
const DefaultSampleInterval = 1

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the diagnostic logger. Messages are prefixed "[session]".
func WithLogger(logf monitoring.Logf) Option {
	return func(s *Session) { s.logf = monitoring.WithPrefix(logf, "session") }
}

// WithClock sets the clock used for timestamps and timeline samples.
func WithClock(c timeutil.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSampleInterval records a timeline sample every n recorded poses.
// Values below 1 are treated as 1.
func WithSampleInterval(n int) Option {
	return func(s *Session) {
		if n < 1 {
			n = 1
		}
		s.sampleEvery = n
	}
}

// Session drives the recording lifecycle over one loaded map.
//
// All methods are safe for concurrent use: the serial pose feed and HTTP
// control handlers call into the same Session.
type Session struct {
	mu          sync.Mutex
	logf        monitoring.Logf
	clock       timeutil.Clock
	sampleEvery int

	id          string
	state       State
	meta        MapMetadata
	base        BaseMap
	mapper      *Mapper
	acc         *Accumulator
	traversable int
	outOfBounds int
	timeline    []CoverageSample
	startedAt   time.Time
	stoppedAt   time.Time
}

// NewSession returns an Unloaded session.
func NewSession(opts ...Option) *Session {
	s := &Session{
		logf:        monitoring.WithPrefix(nil, "session"),
		clock:       timeutil.RealClock{},
		sampleEvery: DefaultSampleInterval,
		state:       StateUnloaded,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load installs a new base map and metadata. It may be called in any state;
// on success the session is Loaded with an empty mask and path. On error the
// session is left untouched.
func (s *Session) Load(base BaseMap, meta MapMetadata) error {
	if err := base.Validate(); err != nil {
		return fmt.Errorf("failed to load map: %w", err)
	}
	mapper, err := NewMapper(meta.Resolution, meta.Origin)
	if err != nil {
		return fmt.Errorf("failed to load map: %w", err)
	}
	if meta.Width <= 0 {
		meta.Width = base.Width
	}
	if meta.Height <= 0 {
		meta.Height = base.Height
	}
	if meta.Width != base.Width || meta.Height != base.Height {
		s.logf("metadata size %dx%d differs from raster %dx%d; using raster size for the mask",
			meta.Width, meta.Height, base.Width, base.Height)
	}

	own := base.Clone()
	traversable := own.TraversableCells()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.NewString()
	s.state = StateLoaded
	s.meta = meta
	s.base = own
	s.mapper = mapper
	s.acc = NewAccumulator(own.Width, own.Height)
	s.traversable = traversable
	s.outOfBounds = 0
	s.timeline = nil
	s.startedAt = time.Time{}
	s.stoppedAt = time.Time{}
	s.logf("loaded %dx%d map at %.3f m/cell, %d traversable cells", own.Width, own.Height, meta.Resolution, traversable)
	return nil
}

// Start begins a fresh recording. Calling it while Recording or Paused
// discards the recording in progress.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnloaded {
		return fmt.Errorf("cannot start recording: %w: no map loaded", ErrPrecondition)
	}
	if s.state == StateRecording || s.state == StatePaused {
		s.logf("restarting recording %s; %d path entries discarded", s.id, s.acc.PathLen())
	}
	s.acc.Reset()
	s.outOfBounds = 0
	s.timeline = nil
	s.id = uuid.NewString()
	s.startedAt = s.clock.Now()
	s.stoppedAt = time.Time{}
	s.state = StateRecording
	s.logf("recording %s started", s.id)
	return nil
}

// Pause suspends pose intake. It is a no-op unless Recording.
func (s *Session) Pause() error {
	return s.transition("pause", StateRecording, StatePaused)
}

// Resume continues pose intake. It is a no-op unless Paused.
func (s *Session) Resume() error {
	return s.transition("resume", StatePaused, StateRecording)
}

// Stop ends the recording. Mask and path remain available for export.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateUnloaded:
		return fmt.Errorf("cannot stop: %w: no map loaded", ErrPrecondition)
	case StateRecording, StatePaused:
		s.state = StateStopped
		s.stoppedAt = s.clock.Now()
		s.logf("recording %s stopped after %d poses, coverage %.2f%%",
			s.id, s.acc.PathLen(), coveragePercent(s.acc.CoveredCells(), s.traversable))
	}
	return nil
}

func (s *Session) transition(op string, from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnloaded {
		return fmt.Errorf("cannot %s: %w: no map loaded", op, ErrPrecondition)
	}
	if s.state == from {
		s.state = to
	}
	return nil
}

// UpdatePose feeds one pose. It reports whether the pose was recorded, which
// only happens while Recording. theta is accepted for interface
// compatibility and unused. Non-finite coordinates are dropped.
func (s *Session) UpdatePose(x, y, theta float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return false
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		s.logf("dropping non-finite pose (%v, %v)", x, y)
		return false
	}

	cell := s.mapper.Transform(x, y)
	if !s.acc.InBounds(cell) {
		s.outOfBounds++
	}
	s.acc.Mark(cell)
	s.acc.AppendPath(cell)

	if n := s.acc.PathLen(); n%s.sampleEvery == 0 {
		s.timeline = append(s.timeline, CoverageSample{
			Index:    n,
			At:       s.clock.Now(),
			Coverage: coveragePercent(s.acc.CoveredCells(), s.traversable),
		})
	}
	return true
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the identifier of the current recording, or "" when Unloaded.
// A new id is issued on every Load and Start.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Stats returns coverage statistics for the current mask.
func (s *Session) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnloaded {
		return Stats{}, fmt.Errorf("cannot compute stats: %w: no map loaded", ErrPrecondition)
	}
	return s.statsLocked(), nil
}

func (s *Session) statsLocked() Stats {
	st := newStats(s.acc.CoveredCells(), s.traversable)
	st.PathLength = s.acc.PathLen()
	st.OutOfBoundsPoses = s.outOfBounds
	return st
}

// Metadata returns the loaded map metadata.
func (s *Session) Metadata() (MapMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnloaded {
		return MapMetadata{}, fmt.Errorf("no metadata: %w: no map loaded", ErrPrecondition)
	}
	return s.meta, nil
}

// Mapper returns the coordinate mapper of the loaded map.
func (s *Session) Mapper() (*Mapper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnloaded {
		return nil, fmt.Errorf("no mapper: %w: no map loaded", ErrPrecondition)
	}
	return s.mapper, nil
}

// Path returns a copy of the recorded path.
func (s *Session) Path() ([]Cell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnloaded {
		return nil, fmt.Errorf("no path: %w: no map loaded", ErrPrecondition)
	}
	return s.acc.Path(), nil
}

// Mask returns a copy of the coverage mask.
func (s *Session) Mask() ([]uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnloaded {
		return nil, fmt.Errorf("no mask: %w: no map loaded", ErrPrecondition)
	}
	return s.acc.Mask(), nil
}

// Timeline returns a copy of the coverage samples of the current recording.
func (s *Session) Timeline() ([]CoverageSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnloaded {
		return nil, fmt.Errorf("no timeline: %w: no map loaded", ErrPrecondition)
	}
	out := make([]CoverageSample, len(s.timeline))
	copy(out, s.timeline)
	return out, nil
}

// Snapshot copies everything an exporter needs under a single lock.
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnloaded {
		return Snapshot{}, fmt.Errorf("no snapshot: %w: no map loaded", ErrPrecondition)
	}
	timeline := make([]CoverageSample, len(s.timeline))
	copy(timeline, s.timeline)
	return Snapshot{
		ID:        s.id,
		State:     s.state,
		Metadata:  s.meta,
		Base:      s.base.Clone(),
		Mask:      s.acc.Mask(),
		Path:      s.acc.Path(),
		Stats:     s.statsLocked(),
		Timeline:  timeline,
		StartedAt: s.startedAt,
		StoppedAt: s.stoppedAt,
	}, nil
}

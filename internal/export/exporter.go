// Package export writes a mission map session to disk: coverage and path
// rasters, a combined overlay, a JSON coverage report, a coverage timeline
// plot and the path as GeoJSON.
package export

import (
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/missionmap/internal/fsutil"
	"github.com/banshee-data/missionmap/internal/mapio"
	"github.com/banshee-data/missionmap/internal/missionmap"
	"github.com/banshee-data/missionmap/internal/monitoring"
	"github.com/banshee-data/missionmap/internal/timeutil"
)

// Output file names.
const (
	CoverageFile = "sim_real_mowing.pgm"
	PathFile     = "sim_robot_path.pgm"
	CombinedFile = "combined_map.jpg"
	ReportFile   = "coverage_report.json"
	TimelineFile = "coverage_timeline.png"
	GeoJSONFile  = "robot_path.geojson"
)

// JPEGQuality is the quality of the combined overlay.
const JPEGQuality = 95

// Report is the content of coverage_report.json. Coverage and Miss are
// percentages.
type Report struct {
	SessionID        string     `json:"session_id"`
	Label            string     `json:"label,omitempty"`
	State            string     `json:"state"`
	Coverage         float64    `json:"coverage"`
	Miss             float64    `json:"miss"`
	CoveredCells     int        `json:"covered_cells"`
	TraversableCells int        `json:"traversable_cells"`
	PathLength       int        `json:"path_length"`
	OutOfBoundsPoses int        `json:"out_of_bounds_poses"`
	Resolution       float64    `json:"resolution"`
	Width            int        `json:"width"`
	Height           int        `json:"height"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	StoppedAt        *time.Time `json:"stopped_at,omitempty"`
	ExportedAt       time.Time  `json:"exported_at"`
	Dir              string     `json:"dir"`
	Files            []string   `json:"files"`
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the diagnostic logger. Messages are prefixed "[export]".
func WithLogger(logf monitoring.Logf) Option {
	return func(e *Exporter) { e.logf = monitoring.WithPrefix(logf, "export") }
}

// WithClock sets the clock used for the report's exported_at.
func WithClock(c timeutil.Clock) Option {
	return func(e *Exporter) {
		if c != nil {
			e.clock = c
		}
	}
}

type output struct {
	name  string
	write func(io.Writer) error
}

// Exporter writes session snapshots through a FileSystem.
type Exporter struct {
	fs    fsutil.FileSystem
	logf  monitoring.Logf
	clock timeutil.Clock
}

// New returns an Exporter writing through fsys.
func New(fsys fsutil.FileSystem, opts ...Option) *Exporter {
	e := &Exporter{
		fs:    fsys,
		logf:  monitoring.WithPrefix(nil, "export"),
		clock: timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export creates dir if needed and writes every output file into it.
// The first failing write aborts the export.
func (e *Exporter) Export(snap missionmap.Snapshot, dir, label string) (Report, error) {
	if err := snap.Base.Validate(); err != nil {
		return Report{}, fmt.Errorf("cannot export: %w", err)
	}
	if err := e.fs.MkdirAll(dir, 0755); err != nil {
		return Report{}, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	report := newReport(snap, label, e.clock.Now())
	report.Dir = dir

	writers := []output{
		{CoverageFile, func(w io.Writer) error { return mapio.EncodePGM(w, CoverageRaster(snap)) }},
		{PathFile, func(w io.Writer) error { return mapio.EncodePGM(w, PathRaster(snap)) }},
		{CombinedFile, func(w io.Writer) error {
			return jpeg.Encode(w, CombinedImage(snap), &jpeg.Options{Quality: JPEGQuality})
		}},
		{GeoJSONFile, func(w io.Writer) error { return writeGeoJSON(w, snap) }},
	}
	if len(snap.Timeline) > 0 {
		writers = append(writers, output{TimelineFile, func(w io.Writer) error { return writeTimeline(w, snap) }})
	}

	for _, out := range writers {
		if err := fsutil.WriteWith(e.fs, filepath.Join(dir, out.name), out.write); err != nil {
			return Report{}, err
		}
		report.Files = append(report.Files, out.name)
	}
	report.Files = append(report.Files, ReportFile)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return Report{}, fmt.Errorf("failed to encode report: %w", err)
	}
	if err := e.fs.WriteFile(filepath.Join(dir, ReportFile), data, 0644); err != nil {
		return Report{}, fmt.Errorf("failed to write %s: %w", ReportFile, err)
	}

	e.logf("exported session %s to %s (coverage %.2f%%, %d files)", snap.ID, dir, report.Coverage, len(report.Files))
	return report, nil
}

func newReport(snap missionmap.Snapshot, label string, now time.Time) Report {
	r := Report{
		SessionID:        snap.ID,
		Label:            label,
		State:            snap.State.String(),
		Coverage:         snap.Stats.Coverage,
		Miss:             snap.Stats.Miss,
		CoveredCells:     snap.Stats.CoveredCells,
		TraversableCells: snap.Stats.TraversableCells,
		PathLength:       snap.Stats.PathLength,
		OutOfBoundsPoses: snap.Stats.OutOfBoundsPoses,
		Resolution:       snap.Metadata.Resolution,
		Width:            snap.Metadata.Width,
		Height:           snap.Metadata.Height,
		ExportedAt:       now.UTC(),
	}
	if !snap.StartedAt.IsZero() {
		t := snap.StartedAt.UTC()
		r.StartedAt = &t
	}
	if !snap.StoppedAt.IsZero() {
		t := snap.StoppedAt.UTC()
		r.StoppedAt = &t
	}
	return r
}

// writeTimeline renders coverage percentage against pose index as a PNG.
func writeTimeline(w io.Writer, snap missionmap.Snapshot) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Coverage - session %s", snap.ID)
	p.X.Label.Text = "Pose"
	p.Y.Label.Text = "Coverage (%)"
	p.Y.Min = 0

	pts := make(plotter.XYs, 0, len(snap.Timeline))
	for _, s := range snap.Timeline {
		pts = append(pts, plotter.XY{X: float64(s.Index), Y: s.Coverage})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = coverageColor
	line.Width = vg.Points(1)
	p.Add(line, plotter.NewGrid())

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

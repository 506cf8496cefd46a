package export

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/missionmap/internal/fsutil"
	"github.com/banshee-data/missionmap/internal/mapio"
	"github.com/banshee-data/missionmap/internal/missionmap"
	"github.com/banshee-data/missionmap/internal/monitoring"
	"github.com/banshee-data/missionmap/internal/testutil"
	"github.com/banshee-data/missionmap/internal/timeutil"
)

var exportTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestExporter(fsys fsutil.FileSystem) *Exporter {
	return New(fsys, WithLogger(monitoring.Discard), WithClock(timeutil.NewMockClock(exportTime)))
}

func demoSnapshot(t *testing.T) missionmap.Snapshot {
	t.Helper()
	snap, err := testutil.RecordDemo(t).Snapshot()
	require.NoError(t, err)
	return snap
}

func TestExport_WritesAllFiles(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	snap := demoSnapshot(t)

	report, err := newTestExporter(mfs).Export(snap, "/out/demo", "demo")
	require.NoError(t, err)

	want := []string{CombinedFile, ReportFile, TimelineFile, GeoJSONFile, CoverageFile, PathFile}
	if diff := cmp.Diff(mfs.List("/out/demo"), want); diff != "" {
		t.Errorf("files mismatch (-got +want):\n%s", diff)
	}
	assert.Len(t, report.Files, 6)
	assert.Equal(t, "/out/demo", report.Dir)
	assert.Equal(t, exportTime, report.ExportedAt)
}

func TestExport_Report(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	snap := demoSnapshot(t)
	_, err := newTestExporter(mfs).Export(snap, "/out", "")
	require.NoError(t, err)

	data, err := mfs.ReadFile("/out/" + ReportFile)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.InDelta(t, 0.4, raw["coverage"], 1e-9)
	assert.InDelta(t, 99.6, raw["miss"], 1e-9)
	assert.Equal(t, snap.ID, raw["session_id"])
	assert.Equal(t, "stopped", raw["state"])
	assert.EqualValues(t, 10, raw["path_length"])
	assert.EqualValues(t, 2500, raw["traversable_cells"])
	assert.NotContains(t, raw, "label")
}

func TestExport_CoverageRoundTrip(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	base := missionmap.NewBaseMap(6, 4, 0)
	for x := 0; x < 6; x++ {
		base.Pix[1*6+x] = 120 // one traversable row
	}
	s := testutil.LoadedSession(t, base, missionmap.MapMetadata{Resolution: 1})
	require.NoError(t, s.Start())
	s.UpdatePose(0.5, 0.5, 0) // cell (0,0): not traversable
	s.UpdatePose(2.5, 1.5, 0) // cell (2,1): traversable
	s.UpdatePose(5.5, 3.5, 0) // cell (5,3)
	snap, err := s.Snapshot()
	require.NoError(t, err)

	_, err = newTestExporter(mfs).Export(snap, "/rt", "")
	require.NoError(t, err)

	data, err := mfs.ReadFile("/rt/" + CoverageFile)
	require.NoError(t, err)
	decoded, err := mapio.DecodeRaster(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, base.Width, decoded.Width)
	require.Equal(t, base.Height, decoded.Height)

	for i := range decoded.Pix {
		want := base.Pix[i] != 0 || snap.Mask[i] != 0
		if got := decoded.Pix[i] != 0; got != want {
			t.Errorf("pixel %d (%d,%d) non-zero = %v, want %v", i, i%6, i/6, got, want)
		}
	}
	assert.Equal(t, uint8(255), decoded.Pix[1*6+2], "covered traversable cell is max(120, 255)")
	assert.Equal(t, uint8(120), decoded.Pix[1*6+3])
}

func TestExport_SkipsTimelineWithoutSamples(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	s := testutil.LoadedSession(t, testutil.BlankMap(4, 200), missionmap.MapMetadata{Resolution: 1})
	snap, err := s.Snapshot()
	require.NoError(t, err)

	report, err := newTestExporter(mfs).Export(snap, "/empty", "")
	require.NoError(t, err)
	assert.NotContains(t, report.Files, TimelineFile)
	assert.False(t, mfs.Exists("/empty/"+TimelineFile))
	assert.Nil(t, report.StartedAt)

	path, err := mfs.ReadFile("/empty/" + PathFile)
	require.NoError(t, err)
	decoded, err := mapio.DecodeRaster(bytes.NewReader(path))
	require.NoError(t, err)
	assert.Equal(t, make([]uint8, 16), decoded.Pix, "empty path leaves the canvas blank")
}

func TestExport_OSFileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "run")
	snap := demoSnapshot(t)
	_, err := newTestExporter(fsutil.OSFileSystem{}).Export(snap, dir, "")
	require.NoError(t, err)

	f, err := fsutil.OSFileSystem{}.Open(filepath.Join(dir, CombinedFile))
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 50), img.Bounds())
}

func TestExport_InvalidSnapshot(t *testing.T) {
	_, err := newTestExporter(fsutil.NewMemoryFileSystem()).Export(missionmap.Snapshot{}, "/x", "")
	assert.ErrorIs(t, err, missionmap.ErrInputDecode)
}

func TestPathRaster(t *testing.T) {
	t.Parallel()
	snapWith := func(path ...missionmap.Cell) missionmap.Snapshot {
		return missionmap.Snapshot{
			Metadata: missionmap.MapMetadata{Width: 5, Height: 4},
			Base:     missionmap.NewBaseMap(5, 4, 0),
			Path:     path,
		}
	}
	lit := func(img *image.Gray) []image.Point {
		var pts []image.Point
		for y := 0; y < img.Bounds().Dy(); y++ {
			for x := 0; x < img.Bounds().Dx(); x++ {
				if v := img.GrayAt(x, y).Y; v != 0 {
					require.Equal(t, uint8(255), v)
					pts = append(pts, image.Pt(x, y))
				}
			}
		}
		return pts
	}

	tests := []struct {
		name string
		snap missionmap.Snapshot
		want []image.Point
	}{
		{"empty", snapWith(), nil},
		{"single point", snapWith(missionmap.Cell{X: 2, Y: 1}), []image.Point{{2, 1}}},
		{"diagonal", snapWith(missionmap.Cell{X: 0, Y: 0}, missionmap.Cell{X: 3, Y: 3}),
			[]image.Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}}},
		{"horizontal then back", snapWith(missionmap.Cell{X: 1, Y: 0}, missionmap.Cell{X: 3, Y: 0}, missionmap.Cell{X: 1, Y: 0}),
			[]image.Point{{1, 0}, {2, 0}, {3, 0}}},
		{"clipped at edge", snapWith(missionmap.Cell{X: -2, Y: 2}, missionmap.Cell{X: 1, Y: 2}),
			[]image.Point{{0, 2}, {1, 2}}},
		{"entirely outside", snapWith(missionmap.Cell{X: -5, Y: 0}, missionmap.Cell{X: -1, Y: 3}), nil},
		{"single point outside", snapWith(missionmap.Cell{X: 9, Y: 9}), nil},
		{"far endpoint", snapWith(missionmap.Cell{X: 2, Y: 1}, missionmap.Cell{X: 2_000_000_000, Y: 1}),
			[]image.Point{{2, 1}, {3, 1}, {4, 1}}},
		{"extreme endpoints", snapWith(missionmap.Cell{X: math.MinInt, Y: 2}, missionmap.Cell{X: math.MaxInt, Y: 2}),
			[]image.Point{{0, 2}, {1, 2}, {2, 2}, {3, 2}, {4, 2}}},
		{"far diagonal misses canvas", snapWith(missionmap.Cell{X: -1_000_000, Y: 0}, missionmap.Cell{X: 0, Y: 1_000_000}), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := PathRaster(tt.snap)
			assert.Equal(t, image.Rect(0, 0, 5, 4), img.Bounds())
			if diff := cmp.Diff(lit(img), tt.want); diff != "" {
				t.Errorf("lit pixels mismatch (-got +want):\n%s", diff)
			}
		})
	}
}

func TestPathRaster_CanvasFromMetadata(t *testing.T) {
	t.Parallel()
	snap := missionmap.Snapshot{
		Metadata: missionmap.MapMetadata{Width: 8, Height: 2},
		Base:     missionmap.NewBaseMap(3, 3, 0),
	}
	assert.Equal(t, image.Rect(0, 0, 8, 2), PathRaster(snap).Bounds())

	snap.Metadata = missionmap.MapMetadata{}
	assert.Equal(t, image.Rect(0, 0, 3, 3), PathRaster(snap).Bounds())
}

func TestCombinedImage(t *testing.T) {
	t.Parallel()
	base := missionmap.NewBaseMap(6, 6, 100)
	mask := make([]uint8, 36)
	mask[5*6+5] = missionmap.Covered
	snap := missionmap.Snapshot{
		Base: base,
		Mask: mask,
		Path: []missionmap.Cell{{X: 0, Y: 0}, {X: 2, Y: 0}},
	}
	img := CombinedImage(snap)

	assert.Equal(t, color.RGBA{R: 100, G: 100, B: 100, A: 255}, img.RGBAAt(4, 3))
	assert.Equal(t, coverageColor, img.RGBAAt(5, 5))
	for _, p := range []image.Point{{0, 0}, {1, 0}, {2, 0}, {3, 0}, {0, 1}, {3, 1}} {
		assert.Equal(t, pathColor, img.RGBAAt(p.X, p.Y), "pixel %v", p)
	}
	assert.NotEqual(t, pathColor, img.RGBAAt(4, 0))
}

func TestRasters_FarOffPose(t *testing.T) {
	t.Parallel()
	s := testutil.LoadedSession(t, testutil.BlankMap(50, 200), missionmap.MapMetadata{Resolution: 0.05})
	require.NoError(t, s.Start())
	s.UpdatePose(1, 1, 0)
	s.UpdatePose(1e8, 1, 0)
	s.UpdatePose(1e300, 1, 0)
	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Equal(t, []missionmap.Cell{{X: 20, Y: 20}, {X: 2_000_000_000, Y: 20}, {X: 1 << 53, Y: 20}}, snap.Path)

	path := PathRaster(snap)
	combined := CombinedImage(snap)
	for x := 20; x < 50; x++ {
		assert.Equal(t, missionmap.Covered, path.GrayAt(x, 20).Y, "x=%d", x)
		assert.Equal(t, pathColor, combined.RGBAAt(x, 20), "x=%d", x)
	}
	assert.Zero(t, path.GrayAt(19, 20).Y)
}

func TestPathFeatures(t *testing.T) {
	t.Parallel()
	snap := missionmap.Snapshot{
		ID:       "abc",
		Metadata: missionmap.MapMetadata{Resolution: 0.1, Origin: missionmap.Origin{X: 1, Y: 2}},
		Path:     []missionmap.Cell{{X: 0, Y: 0}, {X: 10, Y: 0}},
	}
	fc, err := PathFeatures(snap)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)

	ls, ok := fc.Features[0].Geometry.(orb.LineString)
	require.True(t, ok, "geometry is %T", fc.Features[0].Geometry)
	require.Len(t, ls, 2)
	assert.InDelta(t, 1.05, ls[0][0], 1e-9)
	assert.InDelta(t, 2.05, ls[0][1], 1e-9)
	assert.InDelta(t, 2.05, ls[1][0], 1e-9)
	assert.InDelta(t, 1.0, fc.Features[0].Properties["length_m"], 1e-9)
	assert.Equal(t, "abc", fc.Features[0].Properties["session_id"])

	snap.Path = snap.Path[:1]
	fc, err = PathFeatures(snap)
	require.NoError(t, err)
	_, ok = fc.Features[0].Geometry.(orb.Point)
	assert.True(t, ok)

	snap.Path = nil
	fc, err = PathFeatures(snap)
	require.NoError(t, err)
	assert.Empty(t, fc.Features)
}

func TestGeoJSONFileParses(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	_, err := newTestExporter(mfs).Export(demoSnapshot(t), "/geo", "")
	require.NoError(t, err)

	data, err := mfs.ReadFile("/geo/" + GeoJSONFile)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "LineString", fc.Features[0].Geometry.GeoJSONType())
}

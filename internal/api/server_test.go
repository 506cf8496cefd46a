package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/missionmap/internal/db"
	"github.com/banshee-data/missionmap/internal/export"
	"github.com/banshee-data/missionmap/internal/fsutil"
	"github.com/banshee-data/missionmap/internal/httputil"
	"github.com/banshee-data/missionmap/internal/missionmap"
	"github.com/banshee-data/missionmap/internal/monitoring"
	"github.com/banshee-data/missionmap/internal/serialmux"
	"github.com/banshee-data/missionmap/internal/testutil"
	"github.com/banshee-data/missionmap/internal/timeutil"
)

const demoSidecar = `{"resolution": 0.1, "origin": [0, 0, 0], "width": 50, "height": 50}`

type fixture struct {
	handler   http.Handler
	session   *missionmap.Session
	store     *db.DB
	port      *serialmux.MockSerialPort
	clock     *timeutil.MockClock
	poses     []serialmux.PoseEvent
	dataDir   string
	outputDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		dataDir:   filepath.Join(root, "data"),
		outputDir: filepath.Join(root, "output"),
		clock:     timeutil.NewMockClock(time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)),
		port:      serialmux.NewMockSerialPort(),
	}
	testutil.WriteMapFixture(t, fsutil.OSFileSystem{}, f.dataDir, "yard", testutil.BlankMap(50, 200), demoSidecar)

	store, err := db.NewDB(filepath.Join(root, "missionmap.db"))
	require.NoError(t, err)
	store.SetLogger(monitoring.Discard)
	t.Cleanup(func() { _ = store.Close() })
	f.store = store

	f.session = missionmap.NewSession(missionmap.WithLogger(monitoring.Discard), missionmap.WithClock(f.clock))
	srv := NewServer(f.session, serialmux.NewSerialMux(f.port), store, f.dataDir, f.outputDir,
		WithLogger(monitoring.Discard),
		WithClock(f.clock),
		WithPoseLog(func(e serialmux.PoseEvent) error {
			f.poses = append(f.poses, e)
			return nil
		}),
	)
	f.handler = srv.ServeMux()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = testutil.NewJSONRequest(t, method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/session", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, missionmap.StateUnloaded, decode[SessionView](t, rec).State)

	rec = f.do(t, http.MethodPost, "/session/start", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusConflict)

	rec = f.do(t, http.MethodPost, "/session/load", LoadRequest{MapPath: "yard.pgm", MetaPath: "yard.json"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	view := decode[SessionView](t, rec)
	assert.Equal(t, missionmap.StateLoaded, view.State)
	require.NotNil(t, view.Metadata)
	assert.Equal(t, 0.1, view.Metadata.Resolution)
	assert.Equal(t, 2500, view.Stats.TraversableCells)

	rec = f.do(t, http.MethodPost, "/session/start", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, missionmap.StateRecording, decode[SessionView](t, rec).State)

	for _, p := range testutil.DiagonalPoses() {
		x, y := p[0], p[1]
		rec = f.do(t, http.MethodPost, "/session/pose", PoseRequest{X: &x, Y: &y})
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		assert.True(t, decode[PoseResponse](t, rec).Recorded)
	}

	f.clock.Advance(time.Minute)
	rec = f.do(t, http.MethodPost, "/session/stop", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	view = decode[SessionView](t, rec)
	assert.Equal(t, missionmap.StateStopped, view.State)
	assert.InDelta(t, 0.4, view.Stats.Coverage, 1e-9)
	assert.InDelta(t, 99.6, view.Stats.Miss, 1e-9)
	require.NotNil(t, view.StoppedAt)
	assert.True(t, f.clock.Now().Equal(*view.StoppedAt))

	rec = f.do(t, http.MethodGet, "/session/path", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	path := decode[PathView](t, rec)
	require.Len(t, path.Cells, 10)
	assert.Equal(t, missionmap.Cell{X: 45, Y: 45}, path.Cells[9])

	require.Len(t, f.poses, 10)
	assert.Equal(t, view.ID, f.poses[0].SessionID)
	assert.True(t, f.poses[0].Recorded)

	rec = f.do(t, http.MethodPost, "/session/export", ExportRequest{Label: "north lawn"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	exp := decode[ExportResponse](t, rec)
	assert.Equal(t, int64(1), exp.ID)
	assert.Equal(t, filepath.Join(f.outputDir, "north_lawn"), exp.Report.Dir)
	assert.Equal(t, "north lawn", exp.Report.Label)
	assert.Contains(t, exp.Report.Files, export.ReportFile)
	assert.True(t, fsutil.OSFileSystem{}.Exists(filepath.Join(f.outputDir, "north_lawn", export.CoverageFile)))

	rec = f.do(t, http.MethodGet, "/reports", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	records := decode[[]db.ReportRecord](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, view.ID, records[0].SessionID)

	rec = f.do(t, http.MethodGet, "/reports/1", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	record := decode[db.ReportRecord](t, rec)
	assert.InDelta(t, 0.4, record.Coverage, 1e-9)
	assert.Equal(t, 10, record.PathLength)
}

func TestExportDefaultsToSessionID(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/session/load", LoadRequest{MapPath: "yard.pgm"})
	f.do(t, http.MethodPost, "/session/start", nil)

	rec := f.do(t, http.MethodPost, "/session/export", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	exp := decode[ExportResponse](t, rec)
	assert.Equal(t, filepath.Join(f.outputDir, f.session.ID()), exp.Report.Dir)
	assert.Equal(t, "recording", exp.Report.State)
}

func TestLoadErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"escape data dir", LoadRequest{MapPath: "../../etc/passwd"}, http.StatusBadRequest},
		{"escape via sidecar", LoadRequest{MapPath: "yard.pgm", MetaPath: "/etc/hosts.json"}, http.StatusBadRequest},
		{"missing file", LoadRequest{MapPath: "nowhere.pgm"}, http.StatusBadRequest},
		{"empty path", LoadRequest{}, http.StatusBadRequest},
		{"unknown field", map[string]string{"map": "yard.pgm"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/session/load", tt.body)
			testutil.AssertStatusCode(t, rec.Code, tt.want)
			assert.NotEmpty(t, decode[httputil.ErrorBody](t, rec).Error)
		})
	}
	assert.Equal(t, missionmap.StateUnloaded, f.session.State())

	rec := f.do(t, http.MethodGet, "/session/load", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestPoseErrors(t *testing.T) {
	f := newFixture(t)
	one := 1.0

	rec := f.do(t, http.MethodPost, "/session/pose", PoseRequest{X: &one, Y: &one})
	testutil.AssertStatusCode(t, rec.Code, http.StatusConflict)

	f.do(t, http.MethodPost, "/session/load", LoadRequest{MapPath: "yard.pgm"})

	rec = f.do(t, http.MethodPost, "/session/pose", PoseRequest{X: &one})
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = f.do(t, http.MethodPost, "/session/pose", PoseRequest{X: &one, Y: &one})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	resp := decode[PoseResponse](t, rec)
	assert.False(t, resp.Recorded, "loaded but not recording")
	assert.Equal(t, missionmap.StateLoaded, resp.State)
	require.Len(t, f.poses, 1)
	assert.False(t, f.poses[0].Recorded)

	req := httptest.NewRequest(http.MethodPost, "/session/pose", strings.NewReader(`{"x": 1, "y": `))
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestPauseResumeOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/session/load", LoadRequest{MapPath: "yard.pgm", MetaPath: "yard.json"})
	f.do(t, http.MethodPost, "/session/start", nil)

	rec := f.do(t, http.MethodPost, "/session/pause", nil)
	assert.Equal(t, missionmap.StatePaused, decode[SessionView](t, rec).State)

	x, y := 0.5, 0.5
	rec = f.do(t, http.MethodPost, "/session/pose", PoseRequest{X: &x, Y: &y})
	assert.False(t, decode[PoseResponse](t, rec).Recorded)

	rec = f.do(t, http.MethodPost, "/session/resume", nil)
	assert.Equal(t, missionmap.StateRecording, decode[SessionView](t, rec).State)

	rec = f.do(t, http.MethodPost, "/session/pose", PoseRequest{X: &x, Y: &y})
	assert.True(t, decode[PoseResponse](t, rec).Recorded)

	rec = f.do(t, http.MethodGet, "/session/pause", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestReportErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/reports/99", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	rec = f.do(t, http.MethodGet, "/reports/abc", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = f.do(t, http.MethodGet, "/reports?limit=0", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = f.do(t, http.MethodGet, "/reports", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = f.do(t, http.MethodPost, "/session/export", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusConflict)
}

func TestReportsWithoutStore(t *testing.T) {
	session := missionmap.NewSession(missionmap.WithLogger(monitoring.Discard))
	h := NewServer(session, serialmux.NewDisabledSerialMux(), nil, t.TempDir(), t.TempDir(),
		WithLogger(monitoring.Discard)).ServeMux()

	for _, path := range []string{"/reports", "/reports/1"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
	}
}

func TestDebugCharts(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/debug/coverage", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusConflict)

	f.do(t, http.MethodPost, "/session/load", LoadRequest{MapPath: "yard.pgm", MetaPath: "yard.json"})
	f.do(t, http.MethodPost, "/session/start", nil)
	for _, p := range testutil.DiagonalPoses() {
		x, y := p[0], p[1]
		f.do(t, http.MethodPost, "/session/pose", PoseRequest{X: &x, Y: &y})
	}

	rec = f.do(t, http.MethodGet, "/debug/coverage?max_points=500", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "Mission map coverage")
	assert.Contains(t, body, "covered")

	rec = f.do(t, http.MethodGet, "/debug/timeline", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "Coverage over time")
}

func TestDownsample(t *testing.T) {
	data := make([]opts.ScatterData, 1000)
	out, stride := downsample(data, 300)
	assert.Equal(t, 4, stride)
	assert.Len(t, out, 250)

	out, stride = downsample(data[:10], 300)
	assert.Equal(t, 1, stride)
	assert.Len(t, out, 10)
}

func TestSendCommandAndVersion(t *testing.T) {
	f := newFixture(t)

	form := url.Values{"command": {"status"}}
	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "status\n", f.port.Written())

	rec = f.do(t, http.MethodPost, "/command", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = f.do(t, http.MethodGet, "/version", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, decode[map[string]string](t, rec), "git_sha")
}

func TestClientAgainstServer(t *testing.T) {
	f := newFixture(t)
	c := NewClient("", httputil.HandlerClient{Handler: f.handler})
	ctx := context.Background()

	_, err := c.Pause(ctx)
	var se *httputil.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusConflict, se.Code)

	view, err := c.Load(ctx, "yard.pgm", "yard.json")
	require.NoError(t, err)
	assert.Equal(t, missionmap.StateLoaded, view.State)

	_, err = c.Start(ctx)
	require.NoError(t, err)
	for _, p := range testutil.DiagonalPoses() {
		resp, err := c.Pose(ctx, p[0], p[1], 0)
		require.NoError(t, err)
		assert.True(t, resp.Recorded)
	}
	_, err = c.Pause(ctx)
	require.NoError(t, err)
	_, err = c.Resume(ctx)
	require.NoError(t, err)
	view, err = c.Stop(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, view.Stats.Coverage, 1e-9)

	view, err = c.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, missionmap.StateStopped, view.State)

	exp, err := c.Export(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.outputDir, "demo"), exp.Report.Dir)
}

func TestLoggingMiddleware(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"409"+colorReset, statusCodeColor(409))
	assert.Equal(t, colorBoldRed+"500"+colorReset, statusCodeColor(500))
	assert.Equal(t, "101", statusCodeColor(101))
}

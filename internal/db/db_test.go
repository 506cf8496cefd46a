package db

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/missionmap/internal/export"
	"github.com/banshee-data/missionmap/internal/monitoring"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.SetLogger(monitoring.Discard)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleReport(id string, exported time.Time) export.Report {
	started := exported.Add(-time.Minute)
	return export.Report{
		SessionID:        id,
		Label:            "north lawn",
		State:            "stopped",
		Coverage:         0.4,
		Miss:             99.6,
		CoveredCells:     10,
		TraversableCells: 2500,
		PathLength:       10,
		Resolution:       0.1,
		Width:            50,
		Height:           50,
		StartedAt:        &started,
		ExportedAt:       exported,
		Dir:              "/out/" + id,
		Files:            []string{export.CoverageFile, export.ReportFile},
	}
}

func TestNewDB_Migrates(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	for _, table := range []string{"session_reports", "pose_events"} {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s", table)
	}

	// Re-running is a no-op.
	require.NoError(t, db.MigrateUp(MigrationsFS()))
}

func TestMigrateDown(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.MigrateDown(MigrationsFS()))

	version, _, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name='pose_events'`).Scan(&n))
	assert.Zero(t, n)
}

func TestMigrate_NilFS(t *testing.T) {
	db := newTestDB(t)
	assert.Error(t, db.MigrateUp(nil))
}

func TestRecordReport_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	exported := time.Date(2025, 6, 1, 12, 0, 0, 123, time.UTC)
	want := sampleReport("session-a", exported)

	id, err := db.RecordReport(want)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	got, err := db.ReportByID(id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	if diff := cmp.Diff(got.Report, want); diff != "" {
		t.Errorf("report mismatch (-got +want):\n%s", diff)
	}
	assert.Nil(t, got.StoppedAt)
}

func TestReportByID_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.ReportByID(42)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestReports_NewestFirstWithLimit(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		_, err := db.RecordReport(sampleReport(id, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	all, err := db.Reports(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].SessionID, all[1].SessionID, all[2].SessionID})

	two, err := db.Reports(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestReports_EmptyIsNotNil(t *testing.T) {
	db := newTestDB(t)
	reports, err := db.Reports(10)
	require.NoError(t, err)
	assert.NotNil(t, reports)
	assert.Empty(t, reports)
}

func TestPoseEvents(t *testing.T) {
	db := newTestDB(t)
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	events := []PoseEvent{
		{SessionID: "s1", X: 0.1, Y: 0.2, Theta: 0, Recorded: true, ReceivedAt: at},
		{SessionID: "s2", X: 9, Y: 9, ReceivedAt: at},
		{SessionID: "s1", X: 0.3, Y: 0.4, Theta: 1.5, Recorded: false, ReceivedAt: at.Add(time.Second)},
	}
	for _, e := range events {
		require.NoError(t, db.RecordPose(e))
	}

	got, err := db.PoseEvents("s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.1, got[0].X)
	assert.True(t, got[0].Recorded)
	assert.False(t, got[1].Recorded)
	assert.Equal(t, at.Add(time.Second), got[1].ReceivedAt)
}

func TestRunMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	require.NoError(t, RunMigrateCommand(&out, []string{"up"}, dbPath))
	assert.Contains(t, out.String(), "schema version 2")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"down"}, dbPath))
	assert.Contains(t, out.String(), "schema version 1")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"status"}, dbPath))
	assert.Contains(t, out.String(), "schema version 1 (dirty: false)")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"force", "2"}, dbPath))
	assert.Contains(t, out.String(), "schema version 2")

	assert.Error(t, RunMigrateCommand(&out, nil, dbPath))
	assert.Error(t, RunMigrateCommand(&out, []string{"sideways"}, dbPath))
	assert.Error(t, RunMigrateCommand(&out, []string{"force"}, dbPath))
	assert.Error(t, RunMigrateCommand(&out, []string{"force", "two"}, dbPath))
}

func TestAttachAdminRoutes_Backup(t *testing.T) {
	db := newTestDB(t)
	_, err := db.RecordReport(sampleReport("backup", time.Now()))
	require.NoError(t, err)

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("SQLite format 3")), "backup is a sqlite file")
}

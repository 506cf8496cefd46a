// Package testutil provides shared test utilities and map fixtures.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/missionmap/internal/fsutil"
	"github.com/banshee-data/missionmap/internal/mapio"
	"github.com/banshee-data/missionmap/internal/missionmap"
	"github.com/banshee-data/missionmap/internal/monitoring"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewJSONRequest creates a test HTTP request with body encoded as JSON.
// A nil body sends no payload.
func NewJSONRequest(t testing.TB, method, path string, body any) *http.Request {
	t.Helper()
	if body == nil {
		return httptest.NewRequest(method, path, nil)
	}
	data, err := json.Marshal(body)
	AssertNoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// BlankMap returns a size x size map with every cell at intensity.
func BlankMap(size int, intensity uint8) missionmap.BaseMap {
	return missionmap.NewBaseMap(size, size, intensity)
}

// DemoMetadata is the metadata of the 50x50 demonstration map.
func DemoMetadata() missionmap.MapMetadata {
	return missionmap.MapMetadata{Resolution: 0.1, Width: 50, Height: 50}
}

// DiagonalPoses returns the demonstration trajectory: (i*0.1, i*0.1) for
// i = 0, 5, ..., 45.
func DiagonalPoses() [][2]float64 {
	var poses [][2]float64
	for i := 0; i < 50; i += 5 {
		v := float64(i) * 0.1
		poses = append(poses, [2]float64{v, v})
	}
	return poses
}

// WriteMapFixture writes base as <dir>/<name>.pgm and sidecar as
// <dir>/<name>.json, creating dir. It returns both paths.
func WriteMapFixture(t testing.TB, fsys fsutil.FileSystem, dir, name string, base missionmap.BaseMap, sidecar string) (mapPath, metaPath string) {
	t.Helper()
	AssertNoError(t, fsys.MkdirAll(dir, 0755))

	var buf bytes.Buffer
	AssertNoError(t, mapio.EncodePGM(&buf, mapio.ToGray(base.Width, base.Height, base.Pix)))
	mapPath = filepath.Join(dir, name+".pgm")
	AssertNoError(t, fsys.WriteFile(mapPath, buf.Bytes(), 0644))

	metaPath = filepath.Join(dir, name+".json")
	AssertNoError(t, fsys.WriteFile(metaPath, []byte(sidecar), 0644))
	return mapPath, metaPath
}

// LoadedSession returns a session with base loaded under meta, logging
// discarded.
func LoadedSession(t testing.TB, base missionmap.BaseMap, meta missionmap.MapMetadata, opts ...missionmap.Option) *missionmap.Session {
	t.Helper()
	s := missionmap.NewSession(append([]missionmap.Option{missionmap.WithLogger(monitoring.Discard)}, opts...)...)
	AssertNoError(t, s.Load(base, meta))
	return s
}

// RecordDemo loads the demonstration map, records the diagonal trajectory
// and stops.
func RecordDemo(t testing.TB, opts ...missionmap.Option) *missionmap.Session {
	t.Helper()
	s := LoadedSession(t, BlankMap(50, 200), DemoMetadata(), opts...)
	AssertNoError(t, s.Start())
	for _, p := range DiagonalPoses() {
		s.UpdatePose(p[0], p[1], 0)
	}
	AssertNoError(t, s.Stop())
	return s
}

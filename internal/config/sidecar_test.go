package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/missionmap/internal/fsutil"
	"github.com/banshee-data/missionmap/internal/missionmap"
)

func TestParseMapSidecar_Defaults(t *testing.T) {
	cfg, err := ParseMapSidecar([]byte(`{}`))
	require.NoError(t, err)

	meta := cfg.Metadata(640, 480)
	assert.Equal(t, missionmap.MapMetadata{
		Resolution: 0.05,
		Origin:     missionmap.Origin{},
		Width:      640,
		Height:     480,
	}, meta)
}

func TestParseMapSidecar_AllFields(t *testing.T) {
	cfg, err := ParseMapSidecar([]byte(`{
  "resolution": 0.1,
  "origin": [-12.5, 3.0, 1.57],
  "width": 50,
  "height": 40,
  "image": "yard.pgm",
  "negate": 0
}`))
	require.NoError(t, err)

	meta := cfg.Metadata(60, 60)
	assert.Equal(t, 0.1, meta.Resolution)
	assert.Equal(t, missionmap.Origin{X: -12.5, Y: 3.0, Theta: 1.57}, meta.Origin)
	assert.Equal(t, 50, meta.Width)
	assert.Equal(t, 40, meta.Height)
}

func TestParseMapSidecar_Errors(t *testing.T) {
	tests := []struct {
		name string
		json string
		want error
	}{
		{"malformed", `{"resolution": `, missionmap.ErrInputDecode},
		{"not an object", `[1, 2, 3]`, missionmap.ErrInputDecode},
		{"resolution string", `{"resolution": "fine"}`, missionmap.ErrInputDecode},
		{"origin too short", `{"origin": [1, 2]}`, missionmap.ErrInputDecode},
		{"origin empty", `{"origin": []}`, missionmap.ErrInputDecode},
		{"origin not numbers", `{"origin": ["a", "b", "c"]}`, missionmap.ErrInputDecode},
		{"width fractional", `{"width": 12.5}`, missionmap.ErrInputDecode},
		{"resolution zero", `{"resolution": 0}`, missionmap.ErrConfiguration},
		{"resolution negative", `{"resolution": -0.05}`, missionmap.ErrConfiguration},
		{"height negative", `{"height": -1}`, missionmap.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMapSidecar([]byte(tt.json))
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseMapSidecar(%s) error = %v, want %v", tt.json, err, tt.want)
			}
		})
	}
}

func TestLoadMapSidecar(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("/maps", 0755))
	require.NoError(t, mfs.WriteFile("/maps/yard.json", []byte(`{"resolution": 0.1}`), 0644))
	require.NoError(t, mfs.WriteFile("/maps/yard.yaml", []byte(`resolution: 0.1`), 0644))
	require.NoError(t, mfs.WriteFile("/maps/huge.json", make([]byte, maxConfigFileSize+1), 0644))

	cfg, err := LoadMapSidecar(mfs, "/maps/yard.json")
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.GetResolution())

	_, err = LoadMapSidecar(mfs, "/maps/yard.yaml")
	assert.ErrorIs(t, err, missionmap.ErrInputDecode)

	_, err = LoadMapSidecar(mfs, "/maps/huge.json")
	assert.ErrorContains(t, err, "too large")

	_, err = LoadMapSidecar(mfs, "/maps/missing.json")
	assert.Error(t, err)
}

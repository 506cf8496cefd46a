package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"

	"github.com/banshee-data/missionmap/internal/fsutil"
	"github.com/banshee-data/missionmap/internal/missionmap"
)

// DefaultResolution is the map resolution in meters per cell used when the
// sidecar omits one.
const DefaultResolution = 0.05

// maxConfigFileSize caps every JSON file this package reads.
const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// MapSidecar is the JSON metadata file that accompanies a map raster.
// Omitted fields fall back to defaults via the Get* methods; unknown keys
// are ignored.
type MapSidecar struct {
	Resolution *float64  `json:"resolution,omitempty"`
	Origin     []float64 `json:"origin,omitempty"` // [x0, y0, theta0]
	Width      *int      `json:"width,omitempty"`
	Height     *int      `json:"height,omitempty"`
}

// ParseMapSidecar decodes and validates sidecar JSON. Malformed JSON and
// wrongly typed values wrap missionmap.ErrInputDecode; a non-positive
// resolution wraps missionmap.ErrConfiguration.
func ParseMapSidecar(data []byte) (*MapSidecar, error) {
	cfg := &MapSidecar{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse map metadata: %w: %v", missionmap.ErrInputDecode, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadMapSidecar reads a sidecar through fsys. The file must have a .json
// extension and be under 1MB.
func LoadMapSidecar(fsys fsutil.FileSystem, path string) (*MapSidecar, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("map metadata must have .json extension, got %q: %w", ext, missionmap.ErrInputDecode)
	}
	data, err := fsutil.ReadFileLimited(fsys, cleanPath, maxConfigFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load map metadata: %w", err)
	}
	return ParseMapSidecar(data)
}

// Validate checks the values that were set.
func (c *MapSidecar) Validate() error {
	if c.Resolution != nil {
		r := *c.Resolution
		if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
			return fmt.Errorf("resolution must be positive, got %v: %w", r, missionmap.ErrConfiguration)
		}
	}
	if c.Origin != nil && len(c.Origin) != 3 {
		return fmt.Errorf("origin must hold 3 numbers, got %d: %w", len(c.Origin), missionmap.ErrInputDecode)
	}
	if c.Width != nil && *c.Width < 0 {
		return fmt.Errorf("width must be non-negative, got %d: %w", *c.Width, missionmap.ErrConfiguration)
	}
	if c.Height != nil && *c.Height < 0 {
		return fmt.Errorf("height must be non-negative, got %d: %w", *c.Height, missionmap.ErrConfiguration)
	}
	return nil
}

// GetResolution returns the resolution or the default.
func (c *MapSidecar) GetResolution() float64 {
	if c.Resolution == nil {
		return DefaultResolution
	}
	return *c.Resolution
}

// GetOrigin returns the origin or (0, 0, 0).
func (c *MapSidecar) GetOrigin() missionmap.Origin {
	if len(c.Origin) != 3 {
		return missionmap.Origin{}
	}
	return missionmap.Origin{X: c.Origin[0], Y: c.Origin[1], Theta: c.Origin[2]}
}

// GetWidth returns the width, or rasterWidth when unset or zero.
func (c *MapSidecar) GetWidth(rasterWidth int) int {
	if c.Width == nil || *c.Width == 0 {
		return rasterWidth
	}
	return *c.Width
}

// GetHeight returns the height, or rasterHeight when unset or zero.
func (c *MapSidecar) GetHeight(rasterHeight int) int {
	if c.Height == nil || *c.Height == 0 {
		return rasterHeight
	}
	return *c.Height
}

// Metadata resolves the sidecar against the decoded raster dimensions.
func (c *MapSidecar) Metadata(rasterWidth, rasterHeight int) missionmap.MapMetadata {
	return missionmap.MapMetadata{
		Resolution: c.GetResolution(),
		Origin:     c.GetOrigin(),
		Width:      c.GetWidth(rasterWidth),
		Height:     c.GetHeight(rasterHeight),
	}
}

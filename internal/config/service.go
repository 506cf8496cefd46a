package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/missionmap/internal/serialmux"
)

// ServiceConfig is the optional JSON configuration of cmd/missionmap.
// Command-line flags override whatever is set here.
type ServiceConfig struct {
	Listen         *string                `json:"listen,omitempty"`
	SerialPort     *string                `json:"serial_port,omitempty"`
	Serial         *serialmux.PortOptions `json:"serial,omitempty"`
	DataDir        *string                `json:"data_dir,omitempty"`
	OutputDir      *string                `json:"output_dir,omitempty"`
	DBPath         *string                `json:"db_path,omitempty"`
	MapPath        *string                `json:"map_path,omitempty"`
	MetaPath       *string                `json:"meta_path,omitempty"`
	SampleInterval *int                   `json:"sample_interval,omitempty"` // poses per timeline sample
	ReplayInterval *string                `json:"replay_interval,omitempty"` // duration string like "200ms"
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// DefaultServiceConfig returns a ServiceConfig with every field populated.
func DefaultServiceConfig() *ServiceConfig {
	c := &ServiceConfig{}
	opts := c.GetSerial()
	return &ServiceConfig{
		Listen:         ptrString(c.GetListen()),
		SerialPort:     ptrString(c.GetSerialPort()),
		Serial:         &opts,
		DataDir:        ptrString(c.GetDataDir()),
		OutputDir:      ptrString(c.GetOutputDir()),
		DBPath:         ptrString(c.GetDBPath()),
		MapPath:        ptrString(c.GetMapPath()),
		MetaPath:       ptrString(c.GetMetaPath()),
		SampleInterval: ptrInt(c.GetSampleInterval()),
		ReplayInterval: ptrString(c.GetReplayInterval().String()),
	}
}

// LoadServiceConfig loads a ServiceConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ServiceConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ServiceConfig) Validate() error {
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("invalid serial options: %w", err)
		}
	}
	if c.SampleInterval != nil && *c.SampleInterval < 1 {
		return fmt.Errorf("sample_interval must be at least 1, got %d", *c.SampleInterval)
	}
	if c.ReplayInterval != nil && *c.ReplayInterval != "" {
		d, err := time.ParseDuration(*c.ReplayInterval)
		if err != nil {
			return fmt.Errorf("invalid replay_interval '%s': %w", *c.ReplayInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("replay_interval must be positive, got %s", d)
		}
	}
	return nil
}

// GetListen returns the HTTP listen address or the default.
func (c *ServiceConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080" // default
	}
	return *c.Listen
}

// GetSerialPort returns the serial device path or the default.
func (c *ServiceConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyUSB0" // default
	}
	return *c.SerialPort
}

// GetSerial returns the normalised serial options, falling back to the
// defaults when unset or invalid.
func (c *ServiceConfig) GetSerial() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	normalized, err := opts.Normalize()
	if err != nil {
		normalized, _ = serialmux.PortOptions{}.Normalize()
	}
	return normalized
}

// GetDataDir returns the directory that maps are loaded from.
func (c *ServiceConfig) GetDataDir() string {
	if c.DataDir == nil || *c.DataDir == "" {
		return "data" // default
	}
	return *c.DataDir
}

// GetOutputDir returns the directory that exports are written under.
func (c *ServiceConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "output" // default
	}
	return *c.OutputDir
}

// GetDBPath returns the sqlite database path.
func (c *ServiceConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "missionmap.db" // default
	}
	return *c.DBPath
}

// GetMapPath returns the map raster loaded at startup, or "" for none.
func (c *ServiceConfig) GetMapPath() string {
	if c.MapPath == nil {
		return ""
	}
	return *c.MapPath
}

// GetMetaPath returns the sidecar loaded at startup, or "" for none.
func (c *ServiceConfig) GetMetaPath() string {
	if c.MetaPath == nil {
		return ""
	}
	return *c.MetaPath
}

// GetSampleInterval returns the number of poses between timeline samples.
func (c *ServiceConfig) GetSampleInterval() int {
	if c.SampleInterval == nil || *c.SampleInterval < 1 {
		return 1 // default
	}
	return *c.SampleInterval
}

// GetReplayInterval returns the delay between fixture lines in dev mode.
func (c *ServiceConfig) GetReplayInterval() time.Duration {
	if c.ReplayInterval == nil || *c.ReplayInterval == "" {
		return 200 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.ReplayInterval)
	if err != nil || d <= 0 {
		return 200 * time.Millisecond // default on parse error
	}
	return d
}

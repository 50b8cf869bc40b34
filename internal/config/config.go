// Package config loads and hot-reloads the session configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk session configuration. Session-geometry fields
// (SlotDuration, OverlapDuration, GracePercent, NotifyBefore,
// RequiredSubtitlers) are frozen for the duration of an active run: a
// reload that changes them while fragment mode is active is logged and
// ignored until the run stops.
type Config struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Source SourceConfig `yaml:"source" json:"source"`
	Slot   SlotConfig   `yaml:"slot" json:"slot"`
}

type ServerConfig struct {
	Port int `yaml:"port" json:"port"`
}

// SourceConfig points at the upstream transcoder's playlist.
type SourceConfig struct {
	PlaylistPath    string `yaml:"playlist_path" json:"playlist_path"`
	SegmentDuration int    `yaml:"segment_duration" json:"segment_duration"`
}

// SlotConfig mirrors engine.Config in YAML form. It is loaded and
// hot-reloaded, but nothing converts it into an engine.Config: runs take
// their geometry and delay from the /live/start and /fragment/start request
// bodies.
type SlotConfig struct {
	DelaySec           int `yaml:"delay_sec" json:"delay_sec"`
	SlotDuration       int `yaml:"slot_duration" json:"slot_duration"`
	OverlapDuration    int `yaml:"overlap_duration" json:"overlap_duration"`
	GracePercent       int `yaml:"grace_percent" json:"grace_percent"`
	NotifyBefore       int `yaml:"notify_before" json:"notify_before"`
	RequiredSubtitlers int `yaml:"required_subtitlers" json:"required_subtitlers"`
}

// Load reads and parses the config file at path, applying defaults for any
// unset field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{Port: 8899},
		Source: SourceConfig{PlaylistPath: "stream.m3u8", SegmentDuration: 2},
		Slot: SlotConfig{
			DelaySec:           10,
			SlotDuration:       10,
			OverlapDuration:    4,
			GracePercent:       20,
			NotifyBefore:       3,
			RequiredSubtitlers: 3,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg back to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Package config loads process-wide vPlayer settings from an optional YAML
// file plus environment variable overrides, following the env-tag/default-tag
// convention used across the ffmpeg transcoder plugin's own config package.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the playback preparation pipeline. Fields
// carry `env` and `default` tags; Load applies defaults, then the YAML file
// if present, then environment overrides, in that order.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	HLS     HLSConfig     `yaml:"hls"`
	Paths   PathsConfig   `yaml:"paths"`
	Session SessionConfig `yaml:"session"`
}

// ServerConfig controls the local loopback HTTP server (spec.md §4.4).
type ServerConfig struct {
	Host          string `yaml:"host" env:"VPLAYER_HTTP_HOST" default:"127.0.0.1"`
	Port          int    `yaml:"port" env:"VPLAYER_HTTP_PORT" default:"39453"`
	ChunkSize     int    `yaml:"chunk_size" env:"VPLAYER_CHUNK_SIZE" default:"1048576"`
	AllowPortHunt bool   `yaml:"allow_port_hunt" env:"VPLAYER_ALLOW_PORT_HUNT" default:"true"`
}

// HLSConfig controls the coordinator's HLS-readiness poll loop (spec.md §4.3).
type HLSConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"VPLAYER_HLS_POLL_INTERVAL" default:"200ms"`
	ReadyTimeout time.Duration `yaml:"ready_timeout" env:"VPLAYER_HLS_READY_TIMEOUT" default:"8s"`
	SegmentTime  int           `yaml:"segment_time" env:"VPLAYER_HLS_SEGMENT_TIME" default:"4"`
}

// PathsConfig controls scratch directory and binary overrides (spec.md §6).
type PathsConfig struct {
	ScratchRoot string `yaml:"scratch_root" env:"VPLAYER_SCRATCH_ROOT" default:""`
	FFmpegPath  string `yaml:"ffmpeg_path" env:"VPLAYER_FFMPEG_PATH" default:""`
	FFprobePath string `yaml:"ffprobe_path" env:"VPLAYER_FFPROBE_PATH" default:""`
	HistoryFile string `yaml:"history_file" env:"VPLAYER_HISTORY_FILE" default:""`
}

// SessionConfig controls playback session controller timing (spec.md §4.5).
type SessionConfig struct {
	ReplayCountdown  time.Duration `yaml:"replay_countdown" env:"VPLAYER_REPLAY_COUNTDOWN" default:"3s"`
	PersistThreshold time.Duration `yaml:"persist_threshold" env:"VPLAYER_PERSIST_THRESHOLD" default:"1s"`
}

var cfg *Config

// Default returns the zero-config baseline (all defaults, no file, no env).
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "127.0.0.1",
			Port:          39453,
			ChunkSize:     1 << 20,
			AllowPortHunt: true,
		},
		HLS: HLSConfig{
			PollInterval: 200 * time.Millisecond,
			ReadyTimeout: 8 * time.Second,
			SegmentTime:  4,
		},
		Session: SessionConfig{
			ReplayCountdown:  3 * time.Second,
			PersistThreshold: 1 * time.Second,
		},
	}
}

// Load reads path (if non-empty and present) over the defaults, then applies
// environment variable overrides, and caches the result. Subsequent calls to
// Get return the cached value; Load itself may be called more than once (each
// call replaces the cache) which is convenient for tests.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(c)

	cfg = c
	return c, nil
}

// Get returns the process-wide config, loading defaults if Load was never
// called.
func Get() *Config {
	if cfg == nil {
		cfg, _ = Load("")
	}
	return cfg
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("VPLAYER_HTTP_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("VPLAYER_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("VPLAYER_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.ChunkSize = n
		}
	}
	if v := os.Getenv("VPLAYER_ALLOW_PORT_HUNT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Server.AllowPortHunt = b
		}
	}
	if v := os.Getenv("VPLAYER_HLS_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HLS.PollInterval = d
		}
	}
	if v := os.Getenv("VPLAYER_HLS_READY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HLS.ReadyTimeout = d
		}
	}
	if v := os.Getenv("VPLAYER_HLS_SEGMENT_TIME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HLS.SegmentTime = n
		}
	}
	if v := os.Getenv("VPLAYER_SCRATCH_ROOT"); v != "" {
		c.Paths.ScratchRoot = v
	}
	if v := os.Getenv("VPLAYER_FFMPEG_PATH"); v != "" {
		c.Paths.FFmpegPath = v
	}
	if v := os.Getenv("VPLAYER_FFPROBE_PATH"); v != "" {
		c.Paths.FFprobePath = v
	}
	if v := os.Getenv("VPLAYER_HISTORY_FILE"); v != "" {
		c.Paths.HistoryFile = v
	}
	if v := os.Getenv("VPLAYER_REPLAY_COUNTDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Session.ReplayCountdown = d
		}
	}
	if v := os.Getenv("VPLAYER_PERSIST_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Session.PersistThreshold = d
		}
	}
}

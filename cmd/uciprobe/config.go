package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the probe's YAML configuration.
type Config struct {
	Engine   EngineConfig `yaml:"engine"`
	Analysis Analysis     `yaml:"analysis"`
}

// EngineConfig locates and configures the engine binary.
type EngineConfig struct {
	// Path to the engine binary. The UCIPROBE_ENGINE environment variable
	// (possibly from a .env file) takes precedence.
	Path string `yaml:"path"`

	// Options are setoption name/value pairs applied after the handshake.
	Options map[string]string `yaml:"options"`
}

// Analysis describes the single search the probe runs.
type Analysis struct {
	// FEN is the base position; empty means the standard initial position.
	FEN string `yaml:"fen"`

	// Moves are applied to the base position in order.
	Moves []string `yaml:"moves"`

	// Depth bounds the search; 0 runs until interrupted.
	Depth int `yaml:"depth"`

	// MultiPV asks the engine for this many ranked candidate lines.
	MultiPV int `yaml:"multipv"`
}

// loadConfig reads the YAML config file, then applies environment
// overrides and defaults.
func loadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if env := os.Getenv("UCIPROBE_ENGINE"); env != "" {
		cfg.Engine.Path = env
	}
	if cfg.Engine.Path == "" {
		return nil, fmt.Errorf("no engine binary: set engine.path or UCIPROBE_ENGINE")
	}
	if cfg.Analysis.Depth == 0 {
		cfg.Analysis.Depth = 20
	}
	return &cfg, nil
}

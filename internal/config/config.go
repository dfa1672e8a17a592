// Package config loads neurolab settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"neurolab/internal/logging"
	"neurolab/internal/neuro"
	"neurolab/internal/storage"
)

type Config struct {
	Workers      int          `yaml:"workers"`
	Store        StoreConfig  `yaml:"store"`
	Log          LogConfig    `yaml:"log"`
	Dynamics     neuro.Params `yaml:"dynamics"`
	Run          RunConfig    `yaml:"run"`
	ArtifactsDir string       `yaml:"artifacts_dir"`
}

type StoreConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RunConfig struct {
	Steps         int `yaml:"steps"`
	SnapshotEvery int `yaml:"snapshot_every"`
}

func Default() Config {
	return Config{
		Workers:      runtime.GOMAXPROCS(0),
		Store:        StoreConfig{Kind: "memory"},
		Log:          LogConfig{Level: "info", Format: "text"},
		Dynamics:     neuro.DefaultParams(),
		Run:          RunConfig{Steps: 100},
		ArtifactsDir: "neurolab_artifacts",
	}
}

// Load reads path over the defaults, applies NEUROLAB_* environment
// overrides and validates the result. An empty or missing path yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("NEUROLAB_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NEUROLAB_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("NEUROLAB_STORE"); v != "" {
		cfg.Store.Kind = v
	}
	if v := os.Getenv("NEUROLAB_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("NEUROLAB_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NEUROLAB_ARTIFACTS_DIR"); v != "" {
		cfg.ArtifactsDir = v
	}
	return nil
}

func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	if !slices.Contains(storage.Kinds, c.Store.Kind) {
		return fmt.Errorf("unsupported store kind %q", c.Store.Kind)
	}
	if c.Store.Kind == "sqlite" && c.Store.Path == "" {
		return errors.New("store.path is required for sqlite")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Dynamics.Decay < 0 || c.Dynamics.Decay > 1 {
		return fmt.Errorf("dynamics.decay must be in [0,1], got %g", c.Dynamics.Decay)
	}
	if c.Dynamics.LearnTime < 1 {
		return fmt.Errorf("dynamics.learn_time must be at least 1, got %g", c.Dynamics.LearnTime)
	}
	for name, rate := range map[string]float32{
		"link_learn_rate":  c.Dynamics.LinkLearnRate,
		"node_learn_rate":  c.Dynamics.NodeLearnRate,
		"node_forget_rate": c.Dynamics.NodeForgetRate,
	} {
		if rate < 0 {
			return fmt.Errorf("dynamics.%s must be non-negative, got %g", name, rate)
		}
	}
	if c.Run.Steps < 0 || c.Run.SnapshotEvery < 0 {
		return errors.New("run.steps and run.snapshot_every must be non-negative")
	}
	return nil
}

package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv populates target from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// FromEnv returns a SimConfig holding only the SOC_* variables that are set.
func FromEnv() (*SimConfig, error) {
	cfg := &SimConfig{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return cfg, nil
}

// Resolve layers the optional file at path under the environment.
// An empty path skips the file.
func Resolve(path string) (*SimConfig, error) {
	cfg := &SimConfig{}
	if path != "" {
		fileCfg, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileCfg)
	}
	envCfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	cfg.Merge(envCfg)
	return cfg, nil
}

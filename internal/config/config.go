// Package config loads simulation settings from JSON, YAML or HCL files and
// SOC_* environment variables.
//
// Every field is a pointer so a partial file or a partial environment only
// overrides what it names. The Get* accessors supply defaults for anything
// left unset.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/avalanche/internal/models"
)

// Defaults for a run when neither file, environment nor flags set a value.
const (
	DefaultModel         = "btw"
	DefaultL             = 20
	DefaultSteps         = 10000
	DefaultSaveEvery     = 100
	DefaultWaitForNIters = 1000
	DefaultLogLevel      = "ops"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// SimConfig holds the settings for one simulation run.
type SimConfig struct {
	Model         *string `json:"model,omitempty" yaml:"model,omitempty" hcl:"model,optional" env:"SOC_MODEL"`
	L             *int    `json:"l,omitempty" yaml:"l,omitempty" hcl:"l,optional" env:"SOC_L"`
	Steps         *int    `json:"steps,omitempty" yaml:"steps,omitempty" hcl:"steps,optional" env:"SOC_STEPS"`
	SaveEvery     *int    `json:"save_every,omitempty" yaml:"save_every,omitempty" hcl:"save_every,optional" env:"SOC_SAVE_EVERY"`
	WaitForNIters *int    `json:"wait_for_n_iters,omitempty" yaml:"wait_for_n_iters,omitempty" hcl:"wait_for_n_iters,optional" env:"SOC_WAIT_FOR_N_ITERS"`
	Seed          *uint64 `json:"seed,omitempty" yaml:"seed,omitempty" hcl:"seed,optional" env:"SOC_SEED"`
	Store         *string `json:"store,omitempty" yaml:"store,omitempty" hcl:"store,optional" env:"SOC_STORE"`
	LogLevel      *string `json:"log_level,omitempty" yaml:"log_level,omitempty" hcl:"log_level,optional" env:"SOC_LOG_LEVEL"`

	// Model parameters
	NumParticles      *int     `json:"num_particles,omitempty" yaml:"num_particles,omitempty" hcl:"num_particles,optional" env:"SOC_NUM_PARTICLES"`
	CriticalValue     *float64 `json:"critical_value,omitempty" yaml:"critical_value,omitempty" hcl:"critical_value,optional" env:"SOC_CRITICAL_VALUE"`
	Abelian           *bool    `json:"abelian,omitempty" yaml:"abelian,omitempty" hcl:"abelian,optional" env:"SOC_ABELIAN"`
	ConservationLevel *float64 `json:"conservation_level,omitempty" yaml:"conservation_level,omitempty" hcl:"conservation_level,optional" env:"SOC_CONSERVATION_LEVEL"`
	MaxIterations     *int     `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" hcl:"max_iterations,optional" env:"SOC_MAX_ITERATIONS"`
	P                 *float64 `json:"p,omitempty" yaml:"p,omitempty" hcl:"p,optional" env:"SOC_P"`
	F                 *float64 `json:"f,omitempty" yaml:"f,omitempty" hcl:"f,optional" env:"SOC_F"`
}

// Load reads a config file, choosing the decoder by extension
// (.json, .yaml, .yml or .hcl), and validates the result.
func Load(path string) (*SimConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml", ".hcl":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml, .yml or .hcl extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &SimConfig{}
	switch ext {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".hcl":
		err = decodeHCL(data, cleanPath, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func decodeHCL(data []byte, filename string, cfg *SimConfig) error {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return diags
	}
	if diags := gohcl.DecodeBody(file.Body, nil, cfg); diags.HasErrors() {
		return diags
	}
	return nil
}

// Merge copies every field set in o over c.
func (c *SimConfig) Merge(o *SimConfig) {
	if o == nil {
		return
	}
	mergePtr(&c.Model, o.Model)
	mergePtr(&c.L, o.L)
	mergePtr(&c.Steps, o.Steps)
	mergePtr(&c.SaveEvery, o.SaveEvery)
	mergePtr(&c.WaitForNIters, o.WaitForNIters)
	mergePtr(&c.Seed, o.Seed)
	mergePtr(&c.Store, o.Store)
	mergePtr(&c.LogLevel, o.LogLevel)
	mergePtr(&c.NumParticles, o.NumParticles)
	mergePtr(&c.CriticalValue, o.CriticalValue)
	mergePtr(&c.Abelian, o.Abelian)
	mergePtr(&c.ConservationLevel, o.ConservationLevel)
	mergePtr(&c.MaxIterations, o.MaxIterations)
	mergePtr(&c.P, o.P)
	mergePtr(&c.F, o.F)
}

func mergePtr[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

// Validate checks the fields that are set. Model-specific parameter
// ranges are checked again by the model constructors.
func (c *SimConfig) Validate() error {
	if c.L != nil && *c.L <= 0 {
		return fmt.Errorf("l must be positive, got %d", *c.L)
	}
	if c.Steps != nil && *c.Steps < 0 {
		return fmt.Errorf("steps must be non-negative, got %d", *c.Steps)
	}
	if c.SaveEvery != nil && *c.SaveEvery < 0 {
		return fmt.Errorf("save_every must be non-negative, got %d", *c.SaveEvery)
	}
	if c.WaitForNIters != nil && *c.WaitForNIters < 0 {
		return fmt.Errorf("wait_for_n_iters must be non-negative, got %d", *c.WaitForNIters)
	}
	if c.NumParticles != nil && *c.NumParticles <= 0 {
		return fmt.Errorf("num_particles must be positive, got %d", *c.NumParticles)
	}
	if c.ConservationLevel != nil && (*c.ConservationLevel <= 0 || *c.ConservationLevel > 0.25) {
		return fmt.Errorf("conservation_level must be in (0, 0.25], got %f", *c.ConservationLevel)
	}
	if c.MaxIterations != nil && *c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", *c.MaxIterations)
	}
	if c.P != nil && (*c.P < 0 || *c.P > 1) {
		return fmt.Errorf("p must be between 0 and 1, got %f", *c.P)
	}
	if c.F != nil && (*c.F < 0 || *c.F > 1) {
		return fmt.Errorf("f must be between 0 and 1, got %f", *c.F)
	}
	return nil
}

// GetModel returns the model name or the default.
func (c *SimConfig) GetModel() string {
	if c.Model == nil || *c.Model == "" {
		return DefaultModel
	}
	return strings.ToLower(*c.Model)
}

// GetL returns the interior lattice size or the default.
func (c *SimConfig) GetL() int {
	if c.L == nil {
		return DefaultL
	}
	return *c.L
}

// GetSteps returns the number of kept steps or the default.
func (c *SimConfig) GetSteps() int {
	if c.Steps == nil {
		return DefaultSteps
	}
	return *c.Steps
}

// GetSaveEvery returns the snapshot cadence or the default. Zero disables snapshots.
func (c *SimConfig) GetSaveEvery() int {
	if c.SaveEvery == nil {
		return DefaultSaveEvery
	}
	return *c.SaveEvery
}

// GetWaitForNIters returns the warm-up length or the default.
func (c *SimConfig) GetWaitForNIters() int {
	if c.WaitForNIters == nil {
		return DefaultWaitForNIters
	}
	return *c.WaitForNIters
}

// GetSeed returns the seed; zero means draw one from crypto/rand.
func (c *SimConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetStore returns the store path, empty when none was configured.
func (c *SimConfig) GetStore() string {
	if c.Store == nil {
		return ""
	}
	return *c.Store
}

// GetLogLevel returns the log level or the default.
func (c *SimConfig) GetLogLevel() string {
	if c.LogLevel == nil || *c.LogLevel == "" {
		return DefaultLogLevel
	}
	return *c.LogLevel
}

// ModelParams overlays the model parameters that are set on
// models.DefaultParams(GetL()).
func (c *SimConfig) ModelParams() models.Params {
	p := models.DefaultParams(c.GetL())
	if c.NumParticles != nil {
		p.NumParticles = *c.NumParticles
	}
	if c.CriticalValue != nil {
		p.CriticalValue = *c.CriticalValue
	}
	if c.Abelian != nil {
		p.Abelian = *c.Abelian
	}
	if c.ConservationLevel != nil {
		p.ConservationLevel = *c.ConservationLevel
	}
	if c.MaxIterations != nil {
		p.MaxIterations = *c.MaxIterations
	}
	if c.P != nil {
		p.P = *c.P
	}
	if c.F != nil {
		p.F = *c.F
	}
	return p
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/avalanche/internal/models"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &SimConfig{}
	if got := cfg.GetModel(); got != "btw" {
		t.Errorf("GetModel() = %q, want btw", got)
	}
	if got := cfg.GetL(); got != DefaultL {
		t.Errorf("GetL() = %d, want %d", got, DefaultL)
	}
	if got := cfg.GetSteps(); got != DefaultSteps {
		t.Errorf("GetSteps() = %d, want %d", got, DefaultSteps)
	}
	if got := cfg.GetSaveEvery(); got != DefaultSaveEvery {
		t.Errorf("GetSaveEvery() = %d, want %d", got, DefaultSaveEvery)
	}
	if got := cfg.GetWaitForNIters(); got != DefaultWaitForNIters {
		t.Errorf("GetWaitForNIters() = %d, want %d", got, DefaultWaitForNIters)
	}
	if (DefaultSteps+DefaultWaitForNIters)%DefaultSaveEvery != 0 {
		t.Error("default step counts must be divisible by the default save_every")
	}
	if cfg.GetSeed() != 0 || cfg.GetStore() != "" || cfg.GetLogLevel() != "ops" {
		t.Errorf("unexpected defaults: seed=%d store=%q log=%q", cfg.GetSeed(), cfg.GetStore(), cfg.GetLogLevel())
	}
}

func TestLoad_Formats(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"json", "run.json", `{"model": "OFC", "l": 32, "save_every": 50, "conservation_level": 0.2, "seed": 7}`},
		{"yaml", "run.yaml", "model: OFC\nl: 32\nsave_every: 50\nconservation_level: 0.2\nseed: 7\n"},
		{"yml", "run.yml", "model: OFC\nl: 32\nsave_every: 50\nconservation_level: 0.2\nseed: 7\n"},
		{"hcl", "run.hcl", "model = \"OFC\"\nl = 32\nsave_every = 50\nconservation_level = 0.2\nseed = 7\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.file, tt.body))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.GetModel() != "ofc" {
				t.Errorf("GetModel() = %q, want ofc", cfg.GetModel())
			}
			if cfg.GetL() != 32 {
				t.Errorf("GetL() = %d, want 32", cfg.GetL())
			}
			if cfg.GetSaveEvery() != 50 {
				t.Errorf("GetSaveEvery() = %d, want 50", cfg.GetSaveEvery())
			}
			if cfg.ConservationLevel == nil || *cfg.ConservationLevel != 0.2 {
				t.Errorf("ConservationLevel = %v, want 0.2", cfg.ConservationLevel)
			}
			if cfg.GetSeed() != 7 {
				t.Errorf("GetSeed() = %d, want 7", cfg.GetSeed())
			}
			if cfg.Steps != nil {
				t.Errorf("Steps should stay unset, got %d", *cfg.Steps)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"bad extension", "run.toml", "l = 3", "extension"},
		{"bad json", "run.json", "{", "failed to parse"},
		{"bad yaml", "run.yaml", "l: [", "failed to parse"},
		{"unknown hcl attribute", "run.hcl", "lattice = 3\n", "failed to parse"},
		{"negative l", "run.json", `{"l": -4}`, "l must be positive"},
		{"conservation too high", "run.yaml", "conservation_level: 0.5\n", "conservation_level"},
		{"p out of range", "run.hcl", "p = 1.5\n", "p must be between"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_TooLarge(t *testing.T) {
	body := `{"model": "btw"` + strings.Repeat(" ", maxFileSize) + `}`
	if _, err := Load(writeConfig(t, "big.json", body)); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	l, steps := 8, 100
	base := &SimConfig{L: &l, Steps: &steps}
	l2, model := 16, "manna"
	base.Merge(&SimConfig{L: &l2, Model: &model})

	if base.GetL() != 16 || base.GetModel() != "manna" || base.GetSteps() != 100 {
		t.Errorf("merge result: L=%d model=%s steps=%d", base.GetL(), base.GetModel(), base.GetSteps())
	}
	l2 = 99
	if base.GetL() != 16 {
		t.Error("Merge must copy values, not alias them")
	}
	base.Merge(nil)
}

func TestModelParams(t *testing.T) {
	cfg := &SimConfig{}
	if got, want := cfg.ModelParams(), models.DefaultParams(DefaultL); got != want {
		t.Errorf("ModelParams() = %+v, want defaults %+v", got, want)
	}

	l, cons, abelian, p := 8, 0.2, false, 0.3
	cfg = &SimConfig{L: &l, ConservationLevel: &cons, Abelian: &abelian, P: &p}
	got := cfg.ModelParams()
	if got.L != 8 || got.ConservationLevel != 0.2 || got.Abelian || got.P != 0.3 {
		t.Errorf("ModelParams() = %+v", got)
	}
	if got.NumParticles != 1 {
		t.Errorf("unset NumParticles = %d, want default 1", got.NumParticles)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SOC_MODEL", "forest")
	t.Setenv("SOC_L", "12")
	t.Setenv("SOC_P", "0.3")
	t.Setenv("SOC_ABELIAN", "false")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.GetModel() != "forest" || cfg.GetL() != 12 {
		t.Errorf("got model=%s L=%d", cfg.GetModel(), cfg.GetL())
	}
	if cfg.P == nil || *cfg.P != 0.3 {
		t.Errorf("P = %v, want 0.3", cfg.P)
	}
	if cfg.Abelian == nil || *cfg.Abelian {
		t.Errorf("Abelian = %v, want false", cfg.Abelian)
	}
	if cfg.Steps != nil {
		t.Error("unset variables must leave fields nil")
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Setenv("SOC_L", "twelve")
	_, err := FromEnv()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Errorf("expected parse env error, got %v", err)
	}

	t.Setenv("SOC_L", "-1")
	if _, err := FromEnv(); err == nil {
		t.Error("expected validation error for negative L")
	}
}

func TestResolve_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "run.json", `{"model": "btw", "l": 10, "steps": 500}`)
	t.Setenv("SOC_L", "40")

	cfg, err := Resolve(path)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.GetL() != 40 {
		t.Errorf("GetL() = %d, want env value 40", cfg.GetL())
	}
	if cfg.GetSteps() != 500 {
		t.Errorf("GetSteps() = %d, want file value 500", cfg.GetSteps())
	}

	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve without file failed: %v", err)
	}
	if cfg.GetL() != 40 || cfg.Steps != nil {
		t.Errorf("env-only resolve: L=%d steps=%v", cfg.GetL(), cfg.Steps)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Run.MaxIterations != 5 || cfg.Run.Threshold != 10.0 {
		t.Errorf("run defaults = %+v", cfg.Run)
	}
	if cfg.Run.EvalRuns != 3 || cfg.Run.MaxLoops != 3 {
		t.Errorf("run defaults = %+v", cfg.Run)
	}
	if cfg.Generator.Provider != "cerebras" || cfg.Generator.BaseURL == "" {
		t.Errorf("generator defaults = %+v", cfg.Generator)
	}
	if cfg.Judge.Provider != "anthropic" || cfg.Judge.Model == "" {
		t.Errorf("judge defaults = %+v", cfg.Judge)
	}
	if cfg.Output.Dir != "results" {
		t.Errorf("output defaults = %+v", cfg.Output)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	doc := `run:
  max_iterations: 8
  threshold: 15.5
  transfer: true
generator:
  provider: gemini
  model: custom-model
output:
  dir: /tmp/out
  database: /tmp/out/results.db
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Run.MaxIterations != 8 || cfg.Run.Threshold != 15.5 || !cfg.Run.Transfer {
		t.Errorf("run = %+v", cfg.Run)
	}
	// Untouched fields keep their defaults.
	if cfg.Run.EvalRuns != 3 {
		t.Errorf("eval runs = %d, want default 3", cfg.Run.EvalRuns)
	}
	if cfg.Generator.Provider != "gemini" || cfg.Generator.Model != "custom-model" {
		t.Errorf("generator = %+v", cfg.Generator)
	}
	if cfg.Judge.Provider != "anthropic" {
		t.Errorf("judge = %+v", cfg.Judge)
	}
	if cfg.Output.Database != "/tmp/out/results.db" {
		t.Errorf("output = %+v", cfg.Output)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Run.MaxIterations != Default().Run.MaxIterations {
		t.Errorf("cfg = %+v", cfg.Run)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("run: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolveKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // no key files
	t.Setenv("CEREBRAS_API_KEY", "env-gen-key")
	t.Setenv("ANTHROPIC_API_KEY", "env-judge-key")

	cfg := Default()
	cfg.Judge.APIKey = "explicit-key"
	if err := cfg.ResolveKeys(); err != nil {
		t.Fatalf("ResolveKeys: %v", err)
	}
	if cfg.Generator.APIKey != "env-gen-key" {
		t.Errorf("generator key = %q", cfg.Generator.APIKey)
	}
	// Explicit YAML keys are never overwritten.
	if cfg.Judge.APIKey != "explicit-key" {
		t.Errorf("judge key = %q", cfg.Judge.APIKey)
	}
}

func TestResolveKeysMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CEREBRAS_API_KEY", "")

	cfg := Default()
	if err := cfg.ResolveKeys(); err == nil {
		t.Fatal("expected error when no key source exists")
	}
}

package main

import (
	"context"
	"path/filepath"
	"testing"

	"orgbench/internal/config"
)

func TestBuildClientUnknownProvider(t *testing.T) {
	_, err := buildClient(context.Background(), config.ProviderConfig{Provider: "llamafarm"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestBuildClientRequiresKey(t *testing.T) {
	for _, provider := range []string{"cerebras", "anthropic"} {
		if _, err := buildClient(context.Background(), config.ProviderConfig{Provider: provider}); err == nil {
			t.Errorf("%s: expected error without API key", provider)
		}
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Dir = "out"
	if got := databasePath(cfg); got != filepath.Join("out", "results.db") {
		t.Errorf("databasePath = %q", got)
	}

	cfg.Output.Database = "explicit.db"
	if got := databasePath(cfg); got != "explicit.db" {
		t.Errorf("databasePath = %q", got)
	}

	cfg.Output.Database = ""
	cfg.Output.Dir = ""
	if got := databasePath(cfg); got != "" {
		t.Errorf("databasePath = %q, want empty", got)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Resolver.FreshThreshold != 3*time.Second || cfg.Resolver.DownThreshold != 15*time.Second {
		t.Fatalf("got %+v", cfg.Resolver)
	}
	if cfg.Hysteresis.RunningPromoteSecs != 8*time.Second || cfg.Hysteresis.RunningDemoteSecs != 45*time.Second {
		t.Fatalf("got %+v", cfg.Hysteresis)
	}
	if cfg.Health.FailureThreshold != 2 || cfg.Health.RecoveryThreshold != 2 {
		t.Fatalf("got %+v", cfg.Health)
	}
	if cfg.Supervisor.InitialBackoff != time.Second || cfg.Supervisor.Multiplier != 2.0 || cfg.Supervisor.FailureBudget != 5 {
		t.Fatalf("got %+v", cfg.Supervisor)
	}
	if cfg.Binding.TombstoneGrace != 120*time.Second {
		t.Fatalf("got %+v", cfg.Binding)
	}
}

func TestLoadOrDefaultFallsBackWhenMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Supervisor.FailureBudget != 5 {
		t.Fatalf("expected default config, got %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "sources:\n  poller: false\nsupervisor:\n  failure_budget: 10\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sources.Poller {
		t.Fatalf("expected poller source disabled by override")
	}
	if cfg.Supervisor.FailureBudget != 10 {
		t.Fatalf("expected failure_budget overridden, got %d", cfg.Supervisor.FailureBudget)
	}
	// Untouched sections must retain their defaults.
	if cfg.Resolver.FreshThreshold != 3*time.Second {
		t.Fatalf("expected resolver defaults preserved, got %+v", cfg.Resolver)
	}
}

func TestDiffReportsChangedSections(t *testing.T) {
	old := defaultConfig()
	updated := defaultConfig()
	updated.Supervisor.FailureBudget = 10
	updated.Sources.Poller = false

	changes := Diff(old, updated)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changed sections, got %v", changes)
	}
}

func TestDiffReportsNoChanges(t *testing.T) {
	old := defaultConfig()
	same := defaultConfig()
	if changes := Diff(old, same); len(changes) != 0 {
		t.Fatalf("expected no changes, got %v", changes)
	}
}

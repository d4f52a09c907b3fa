package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Identity.Name != "gestalt" {
		t.Errorf("unexpected identity name: %s", cfg.Identity.Name)
	}
	if cfg.Integrity.HealCeiling != 2 {
		t.Errorf("expected heal ceiling 2, got %d", cfg.Integrity.HealCeiling)
	}
	if cfg.Knowledge.ExperienceCap != 200 {
		t.Errorf("expected experience cap 200, got %d", cfg.Knowledge.ExperienceCap)
	}
	if cfg.Knowledge.LearnWindow != 5*time.Minute {
		t.Errorf("expected 5m learn window, got %v", cfg.Knowledge.LearnWindow)
	}
	if cfg.Listener.Enabled {
		t.Error("listener must be disabled by default")
	}
	if cfg.Skills.AllowExternal {
		t.Error("external skills must be disabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gestalt.yaml")
	content := `
identity:
  name: chloe
  version: v3.3.0
  grains:
    - alpha:2
    - beta:1
listener:
  enabled: true
  port: 7777
knowledge:
  distill_top_k: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Identity.Name != "chloe" {
		t.Errorf("unexpected identity: %s", cfg.Identity.Name)
	}
	if len(cfg.Identity.Grains) != 2 || cfg.Identity.Grains[0] != "alpha:2" {
		t.Errorf("unexpected grains: %v", cfg.Identity.Grains)
	}
	if !cfg.Listener.Enabled || cfg.Listener.Port != 7777 {
		t.Errorf("unexpected listener config: %+v", cfg.Listener)
	}
	if cfg.Knowledge.DistillTopK != 10 {
		t.Errorf("expected top-k 10, got %d", cfg.Knowledge.DistillTopK)
	}
	// Untouched keys keep defaults.
	if cfg.Loop.SaveEvery != 10 {
		t.Errorf("expected save_every default 10, got %d", cfg.Loop.SaveEvery)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("GESTALT_WORKDIR", "/tmp/gestalt-test")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WorkDir != "/tmp/gestalt-test" {
		t.Errorf("env override not applied: %s", cfg.WorkDir)
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gestalt.yaml")
	if err := os.WriteFile(path, []byte("identity:\n  version: v1.0.0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w, err := NewWatcher([]string{path}, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if w.Config().Identity.Version != "v1.0.0" {
		t.Fatalf("unexpected initial version: %s", w.Config().Identity.Version)
	}

	reloaded := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	// Ensure the mtime moves forward even on coarse filesystems.
	time.Sleep(20 * time.Millisecond)
	if err := os.WriteFile(path, []byte("identity:\n  version: v1.0.1\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Identity.Version != "v1.0.1" {
			t.Errorf("expected reloaded version v1.0.1, got %s", cfg.Identity.Version)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report reload")
	}
}

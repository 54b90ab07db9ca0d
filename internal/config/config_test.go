package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadParsesDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
quiz:
  ttl: 2m
session:
  ttl: 12h
  graceWindow: 3s
  cleanupInterval: 30m
  maxAge: 48h
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("port = %q", cfg.Server.Port)
	}
	if got := cfg.QuizTTL(); got != 2*time.Minute {
		t.Fatalf("quiz ttl = %v", got)
	}
	if got := cfg.SessionTTL(); got != 12*time.Hour {
		t.Fatalf("session ttl = %v", got)
	}
	if got := cfg.GraceWindow(); got != 3*time.Second {
		t.Fatalf("grace window = %v", got)
	}
	if got := cfg.CleanupInterval(); got != 30*time.Minute {
		t.Fatalf("cleanup interval = %v", got)
	}
	if got := cfg.SessionMaxAge(); got != 48*time.Hour {
		t.Fatalf("max age = %v", got)
	}
}

func TestDurationDefaults(t *testing.T) {
	var cfg Config
	if got := cfg.QuizTTL(); got != 10*time.Minute {
		t.Fatalf("quiz ttl default = %v", got)
	}
	if got := cfg.SessionTTL(); got != 24*time.Hour {
		t.Fatalf("session ttl default = %v", got)
	}
	if got := cfg.GraceWindow(); got != 5*time.Second {
		t.Fatalf("grace window default = %v", got)
	}
	if got := cfg.CleanupInterval(); got != time.Hour {
		t.Fatalf("cleanup interval default = %v", got)
	}
	if got := cfg.SessionMaxAge(); got != 24*time.Hour {
		t.Fatalf("max age default = %v", got)
	}

	cfg.Session.GraceWindow = "not-a-duration"
	if got := cfg.GraceWindow(); got != 5*time.Second {
		t.Fatalf("invalid grace window should fall back, got %v", got)
	}
}

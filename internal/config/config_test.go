package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.Server.Addr = "0.0.0.0:4000"
	cfg.Outbox.MaxAttempts = 5
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Server.Addr != "0.0.0.0:4000" {
		t.Errorf("Server.Addr = %q, want 0.0.0.0:4000", loaded.Server.Addr)
	}
	if loaded.Outbox.MaxAttempts != 5 {
		t.Errorf("Outbox.MaxAttempts = %d, want 5", loaded.Outbox.MaxAttempts)
	}
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("Load() error = %v, want defaults for missing file", err)
	}
	if cfg.Server.Addr != "127.0.0.1:3001" {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
	if cfg.Cache.MaxChats != 512 {
		t.Errorf("Cache.MaxChats = %d, want 512", cfg.Cache.MaxChats)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	partial := "[server]\naddr = \"127.0.0.1:9999\"\n"
	if err := os.WriteFile(path, []byte(partial), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("Server.Addr = %q, want override", cfg.Server.Addr)
	}
	if cfg.Backoff.InitialMS != 2000 {
		t.Errorf("Backoff.InitialMS = %d, want default 2000", cfg.Backoff.InitialMS)
	}
	if cfg.Outbox.MaxAttempts != 3 {
		t.Errorf("Outbox.MaxAttempts = %d, want default 3", cfg.Outbox.MaxAttempts)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty addr", "[server]\naddr = \"\"\n"},
		{"backoff max below initial", "[backoff]\ninitial_ms = 5000\nmax_ms = 1000\n"},
		{"backoff factor below one", "[backoff]\nfactor = 0.5\n"},
		{"zero cache bound", "[cache]\nmax_chats = 0\n"},
		{"zero attempts", "[outbox]\nmax_attempts = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.body), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() expected validation error")
			}
		})
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected parse error")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if got := cfg.BackoffInitial().Milliseconds(); got != 2000 {
		t.Errorf("BackoffInitial = %dms, want 2000", got)
	}
	if got := cfg.SendTimeout().Milliseconds(); got != 30000 {
		t.Errorf("SendTimeout = %dms, want 30000", got)
	}
	if got := cfg.OutboxPollInterval().Milliseconds(); got != 500 {
		t.Errorf("OutboxPollInterval = %dms, want 500", got)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

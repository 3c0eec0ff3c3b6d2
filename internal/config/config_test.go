package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.PprofPort != 0 {
		t.Errorf("pprof port = %d, want 0 (disabled)", cfg.Server.PprofPort)
	}
	if cfg.Hold.TTL <= 0 {
		t.Errorf("hold TTL = %v, want positive", cfg.Hold.TTL)
	}
	if !cfg.IsDevelopment() {
		t.Errorf("environment = %q, want development by default", cfg.App.Environment)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PPROF_PORT", "6060")
	t.Setenv("HOLD_TTL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}

	if cfg.Server.PprofPort != 6060 {
		t.Errorf("pprof port = %d, want 6060", cfg.Server.PprofPort)
	}
	if cfg.Hold.TTL != 5*time.Minute {
		t.Errorf("hold TTL = %v, want 5m", cfg.Hold.TTL)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}

	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for server port 0")
	}
}

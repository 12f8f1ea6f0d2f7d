package config

import "testing"

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("LUMISCAN_BACKEND_URL", "")
	t.Setenv("LUMISCAN_STORE_PATH", "")
	t.Setenv("LUMISCAN_ENV", "")

	cfg := FromEnv()
	if cfg.BackendURL != "https://api.lumiscan.app" {
		t.Errorf("unexpected backend url %q", cfg.BackendURL)
	}
	if cfg.StorePath != ".lumiscan/store.db" {
		t.Errorf("unexpected store path %q", cfg.StorePath)
	}
	if cfg.Env != "development" {
		t.Errorf("unexpected env %q", cfg.Env)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LUMISCAN_BACKEND_URL", "http://localhost:8080")
	t.Setenv("LUMISCAN_ENV", "production")

	cfg := FromEnv()
	if cfg.BackendURL != "http://localhost:8080" {
		t.Errorf("override lost: %q", cfg.BackendURL)
	}
	if cfg.Env != "production" {
		t.Errorf("override lost: %q", cfg.Env)
	}
}

package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected defaults to load, got %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.BackendURL != "http://localhost:9000" {
		t.Errorf("Expected default backend URL, got %s", cfg.BackendURL)
	}
	if cfg.ChatStreamTimeout != 45*time.Second {
		t.Errorf("Expected 45s chat timeout, got %s", cfg.ChatStreamTimeout)
	}
	if cfg.AnalysisStreamTimeout != 5*time.Minute {
		t.Errorf("Expected 5m analysis timeout, got %s", cfg.AnalysisStreamTimeout)
	}
	if cfg.SimulationPeriods != 12 {
		t.Errorf("Expected 12 simulation periods, got %d", cfg.SimulationPeriods)
	}
	if !cfg.ExclusiveDispatch {
		t.Error("Expected exclusive dispatch on by default")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9191")
	t.Setenv("BACKEND_URL", "http://worker:7000")
	t.Setenv("CHAT_STREAM_TIMEOUT", "90s")
	t.Setenv("SIMULATION_PERIODS", "6")
	t.Setenv("SIMULATION_FACETS", "cash-flow, discipline")
	t.Setenv("EXCLUSIVE_DISPATCH", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected config to load, got %v", err)
	}

	if cfg.Port != "9191" {
		t.Errorf("Expected port 9191, got %s", cfg.Port)
	}
	if cfg.BackendURL != "http://worker:7000" {
		t.Errorf("Expected overridden backend URL, got %s", cfg.BackendURL)
	}
	if cfg.ChatStreamTimeout != 90*time.Second {
		t.Errorf("Expected 90s chat timeout, got %s", cfg.ChatStreamTimeout)
	}
	if cfg.SimulationPeriods != 6 {
		t.Errorf("Expected 6 periods, got %d", cfg.SimulationPeriods)
	}
	want := []string{"cash-flow", "discipline"}
	if !reflect.DeepEqual(cfg.SimulationFacets, want) {
		t.Errorf("Expected facets %v, got %v", want, cfg.SimulationFacets)
	}
	if cfg.ExclusiveDispatch {
		t.Error("Expected exclusive dispatch disabled")
	}
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("SIMULATION_PERIODS", "a dozen")
	t.Setenv("CHAT_STREAM_TIMEOUT", "soon")
	t.Setenv("EXCLUSIVE_DISPATCH", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected config to load, got %v", err)
	}

	if cfg.SimulationPeriods != 12 {
		t.Errorf("Expected fallback periods 12, got %d", cfg.SimulationPeriods)
	}
	if cfg.ChatStreamTimeout != 45*time.Second {
		t.Errorf("Expected fallback chat timeout, got %s", cfg.ChatStreamTimeout)
	}
	if !cfg.ExclusiveDispatch {
		t.Error("Expected fallback exclusive dispatch")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:                  "8080",
			DBPath:                "./data/test.db",
			BackendURL:            "http://localhost:9000",
			ChatStreamTimeout:     time.Second,
			AnalysisStreamTimeout: time.Second,
			SimulationPeriods:     1,
			SimulationFacets:      []string{"cash-flow"},
		}
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"empty db path", func(c *Config) { c.DBPath = "" }, true},
		{"empty backend", func(c *Config) { c.BackendURL = "" }, true},
		{"zero chat timeout", func(c *Config) { c.ChatStreamTimeout = 0 }, true},
		{"zero analysis timeout", func(c *Config) { c.AnalysisStreamTimeout = 0 }, true},
		{"zero periods", func(c *Config) { c.SimulationPeriods = 0 }, true},
		{"no facets", func(c *Config) { c.SimulationFacets = nil }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected valid config, got %v", err)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	cases := []struct {
		frontendURL string
		want        bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:3000", true},
		{"https://app.mentora.example", false},
	}

	for _, tc := range cases {
		cfg := &Config{FrontendURL: tc.frontendURL}
		if got := cfg.IsDevelopment(); got != tc.want {
			t.Errorf("Expected IsDevelopment=%v for %q, got %v", tc.want, tc.frontendURL, got)
		}
	}
}

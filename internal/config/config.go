// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	// BackendURL is the base URL of the remote AI worker.
	BackendURL string
	// ChatStreamTimeout bounds streamed chat replies.
	ChatStreamTimeout time.Duration
	// AnalysisStreamTimeout bounds streamed document analysis, which is
	// resource-intensive and allowed to run much longer.
	AnalysisStreamTimeout time.Duration
	// SimulationPeriods is the expected period range for simulation runs.
	SimulationPeriods int
	// SimulationFacets are the facet names tracked for completion.
	SimulationFacets []string
	// ExclusiveDispatch cancels an agent's in-flight task when another
	// agent is activated over it.
	ExclusiveDispatch bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		FrontendURL:           getEnv("FRONTEND_URL", ""),
		DBPath:                getEnv("DB_PATH", "./data/mentora.db"),
		BackendURL:            getEnv("BACKEND_URL", "http://localhost:9000"),
		ChatStreamTimeout:     getEnvDuration("CHAT_STREAM_TIMEOUT", 45*time.Second),
		AnalysisStreamTimeout: getEnvDuration("ANALYSIS_STREAM_TIMEOUT", 5*time.Minute),
		SimulationPeriods:     getEnvInt("SIMULATION_PERIODS", 12),
		SimulationFacets:      getEnvList("SIMULATION_FACETS", []string{"cash-flow", "discipline", "goal-status", "behavior"}),
		ExclusiveDispatch:     getEnvBool("EXCLUSIVE_DISPATCH", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL cannot be empty")
	}
	if c.ChatStreamTimeout <= 0 {
		return fmt.Errorf("CHAT_STREAM_TIMEOUT must be positive")
	}
	if c.AnalysisStreamTimeout <= 0 {
		return fmt.Errorf("ANALYSIS_STREAM_TIMEOUT must be positive")
	}
	if c.SimulationPeriods <= 0 {
		return fmt.Errorf("SIMULATION_PERIODS must be positive")
	}
	if len(c.SimulationFacets) == 0 {
		return fmt.Errorf("SIMULATION_FACETS cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

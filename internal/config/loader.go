package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, merges it over Default(), then applies
// CVWIZARD_-prefixed environment overrides for secrets that should not live
// in a checked-in config file (API keys, DSNs, blob credentials).
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))
		decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := decoder.Decode(&struct{}{}); err != io.EOF {
			return Config{}, fmt.Errorf("parse config %s: expected a single YAML document", path)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides lets deployment secrets win over file contents without
// requiring them to be written to disk.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CVWIZARD_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("CVWIZARD_OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAI.APIKey = v
	}
	if v := os.Getenv("CVWIZARD_ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.Anthropic.APIKey = v
	}
	if v := os.Getenv("CVWIZARD_SESSION_DATABASE_URL"); v != "" {
		cfg.Session.DatabaseURL = v
	}
	if v := os.Getenv("CVWIZARD_BLOBSTORE_ACCESS_KEY_ID"); v != "" {
		cfg.Blobstore.AccessKeyID = v
	}
	if v := os.Getenv("CVWIZARD_BLOBSTORE_SECRET_ACCESS_KEY"); v != "" {
		cfg.Blobstore.SecretAccessKey = v
	}
	if v := os.Getenv("CVWIZARD_BLOBSTORE_ENDPOINT"); v != "" {
		cfg.Blobstore.Endpoint = v
	}
	if v := os.Getenv("CVWIZARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CVWIZARD_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CVWIZARD_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.TTL = d
		}
	}
	if v := os.Getenv("CVWIZARD_DASHBOARD_DIAGNOSTIC_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LLM.DashboardDiagnosticMode = b
		}
	}
}

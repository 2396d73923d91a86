package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Helper to clear all config-related env vars
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"WAYPOINT_PORT",
		"WAYPOINT_READ_TIMEOUT",
		"WAYPOINT_WRITE_TIMEOUT",
		"WAYPOINT_SHUTDOWN_TIMEOUT",
		"WAYPOINT_DB_PATH",
		"STRIPE_SECRET_KEY",
		"STRIPE_WEBHOOK_SECRET",
		"WAYPOINT_CURRENCY",
		"WAYPOINT_RETURN_ORIGIN",
		"OPENAI_API_KEY",
		"WAYPOINT_ASSISTANT_MODEL",
		"WAYPOINT_API_KEY",
		"WAYPOINT_TREE_MAX_DEPTH",
		"WAYPOINT_TREE_MAX_CONCURRENCY",
		"WAYPOINT_TRANSFER_PRESERVE_IDS",
		"WAYPOINT_SETTLEMENT_INTERVAL",
		"WAYPOINT_RECONCILE_INTERVAL",
		"WAYPOINT_LOG_LEVEL",
		"WAYPOINT_LOG_FORMAT",
		"WAYPOINT_CONFIG_PATH",
		"WAYPOINT_DEV_MODE",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func setDevModeEnv(t *testing.T) {
	t.Helper()
	os.Setenv("WAYPOINT_DEV_MODE", "true")
}

func setProdEnv(t *testing.T) {
	t.Helper()
	os.Setenv("STRIPE_SECRET_KEY", "sk_test_stripe")
	os.Setenv("WAYPOINT_API_KEY", "test-api-key")
}

// dur converts Duration to time.Duration for comparison
func dur(d Duration) time.Duration {
	return time.Duration(d)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if dur(cfg.Server.ReadTimeout) != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 30s", dur(cfg.Server.ReadTimeout))
	}
	if cfg.Database.Path != "data/waypoint.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Payment.Currency != "jpy" {
		t.Errorf("Payment.Currency = %q, want jpy", cfg.Payment.Currency)
	}
	if cfg.Assistant.Model != "gpt-4o-mini" {
		t.Errorf("Assistant.Model = %q", cfg.Assistant.Model)
	}
	if cfg.Tree.MaxDepth != 32 || cfg.Tree.MaxConcurrency != 8 {
		t.Errorf("Tree = %+v", cfg.Tree)
	}
	if cfg.Transfer.PreserveIDs {
		t.Error("Transfer.PreserveIDs should default to false")
	}
	if dur(cfg.Worker.SettlementInterval) != 15*time.Minute {
		t.Errorf("Worker.SettlementInterval = %v, want 15m", dur(cfg.Worker.SettlementInterval))
	}
	if dur(cfg.Worker.ReconcileInterval) != 6*time.Hour {
		t.Errorf("Worker.ReconcileInterval = %v, want 6h", dur(cfg.Worker.ReconcileInterval))
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	yamlContent := `
server:
  port: 9090
  read_timeout: 45s
payment:
  currency: usd
tree:
  max_depth: 10
worker:
  settlement_interval: 5m
log:
  level: debug
  format: text
`
	path := filepath.Join(t.TempDir(), "waypoint.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	os.Setenv("WAYPOINT_CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if dur(cfg.Server.ReadTimeout) != 45*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 45s", dur(cfg.Server.ReadTimeout))
	}
	// values absent from the file keep their defaults
	if dur(cfg.Server.WriteTimeout) != 30*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want default 30s", dur(cfg.Server.WriteTimeout))
	}
	if cfg.Payment.Currency != "usd" {
		t.Errorf("Payment.Currency = %q, want usd", cfg.Payment.Currency)
	}
	if cfg.Tree.MaxDepth != 10 {
		t.Errorf("Tree.MaxDepth = %d, want 10", cfg.Tree.MaxDepth)
	}
	if dur(cfg.Worker.SettlementInterval) != 5*time.Minute {
		t.Errorf("Worker.SettlementInterval = %v, want 5m", dur(cfg.Worker.SettlementInterval))
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	yamlContent := `
server:
  port: 9090
payment:
  currency: usd
`
	path := filepath.Join(t.TempDir(), "waypoint.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	os.Setenv("WAYPOINT_CONFIG_PATH", path)
	os.Setenv("WAYPOINT_PORT", "7070")
	os.Setenv("WAYPOINT_CURRENCY", "eur")
	os.Setenv("WAYPOINT_TRANSFER_PRESERVE_IDS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Payment.Currency != "eur" {
		t.Errorf("Payment.Currency = %q, want eur", cfg.Payment.Currency)
	}
	if !cfg.Transfer.PreserveIDs {
		t.Error("Transfer.PreserveIDs should be overridden to true")
	}
}

func TestLoad_SecretsFromEnvOnly(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	// secrets in YAML are ignored; the fields are env-only
	yamlContent := `
payment:
  secretkey: sk_yaml_leak
auth:
  apikey: yaml-leak
`
	path := filepath.Join(t.TempDir(), "waypoint.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	os.Setenv("WAYPOINT_CONFIG_PATH", path)
	os.Setenv("STRIPE_SECRET_KEY", "sk_env_only")
	os.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_env")
	os.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Payment.SecretKey != "sk_env_only" {
		t.Errorf("Payment.SecretKey = %q, want env value", cfg.Payment.SecretKey)
	}
	if cfg.Payment.WebhookSecret != "whsec_env" {
		t.Errorf("Payment.WebhookSecret = %q", cfg.Payment.WebhookSecret)
	}
	if cfg.Auth.APIKey != "" {
		t.Errorf("Auth.APIKey = %q, YAML value should be ignored", cfg.Auth.APIKey)
	}
	if cfg.Assistant.APIKey != "sk-openai" {
		t.Errorf("Assistant.APIKey = %q", cfg.Assistant.APIKey)
	}
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail without secrets outside dev mode")
	}
	if !strings.Contains(err.Error(), "STRIPE_SECRET_KEY") {
		t.Errorf("error = %v, want mention of STRIPE_SECRET_KEY", err)
	}

	os.Setenv("STRIPE_SECRET_KEY", "sk_test")
	_, err = Load()
	if err == nil || !strings.Contains(err.Error(), "WAYPOINT_API_KEY") {
		t.Errorf("error = %v, want mention of WAYPOINT_API_KEY", err)
	}

	setProdEnv(t)
	if _, err := Load(); err != nil {
		t.Errorf("Load() with secrets error = %v", err)
	}
}

func TestLoadCLI_SkipsSecretValidation(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadCLI()
	if err != nil {
		t.Fatalf("LoadCLI() error = %v", err)
	}
	if cfg.Payment.SecretKey != "" {
		t.Errorf("SecretKey = %q, want empty", cfg.Payment.SecretKey)
	}
}

func TestLoad_InvalidTreeBounds(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	os.Setenv("WAYPOINT_TREE_MAX_DEPTH", "0")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject max_depth 0")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	yamlContent := `
server:
  read_timeout: not-a-duration
`
	path := filepath.Join(t.TempDir(), "waypoint.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	os.Setenv("WAYPOINT_CONFIG_PATH", path)

	if _, err := Load(); err == nil {
		t.Error("Load() should reject an unparsable duration")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	os.Setenv("WAYPOINT_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default", cfg.Server.Port)
	}
}

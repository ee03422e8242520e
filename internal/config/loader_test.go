package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Orchestrator.QualityThreshold != 0.5 {
		t.Errorf("expected quality threshold 0.5, got %v", cfg.Orchestrator.QualityThreshold)
	}
	if cfg.Orchestrator.Retention != 168*time.Hour {
		t.Errorf("expected retention 168h, got %v", cfg.Orchestrator.Retention)
	}
	if cfg.Orchestrator.CyclePolicy != "break" || cfg.Orchestrator.DependencyPolicy != "terminal" {
		t.Errorf("unexpected policies %q/%q", cfg.Orchestrator.CyclePolicy, cfg.Orchestrator.DependencyPolicy)
	}
	if len(cfg.Agents) != 8 {
		t.Errorf("expected an executor for each built-in agent type, got %d", len(cfg.Agents))
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9090"
  cors_origin: "http://example.com"
logging:
  level: "debug"
orchestrator:
  max_parallel: 8
  cycle_policy: "reject"
  task_timeout: 45s
agents:
  - type: browser
    kind: webhook
    url: "http://n8n:5678/webhook/scrape"
    rps: 2
    burst: 1
`)

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Orchestrator.MaxParallel != 8 || cfg.Orchestrator.CyclePolicy != "reject" {
		t.Errorf("orchestrator overrides not applied: %+v", cfg.Orchestrator)
	}
	if cfg.Orchestrator.TaskTimeout != 45*time.Second {
		t.Errorf("expected task timeout 45s, got %v", cfg.Orchestrator.TaskTimeout)
	}
	// Unchanged fields keep defaults
	if cfg.Orchestrator.QualityThreshold != 0.5 {
		t.Errorf("expected default threshold, got %v", cfg.Orchestrator.QualityThreshold)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].Kind != "webhook" || cfg.Agents[0].RPS != 2 {
		t.Errorf("expected agents list replaced by YAML, got %+v", cfg.Agents)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, "/nonexistent/path.yaml"); err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("AGENTPLAN_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("AGENTPLAN_LOG_LEVEL", "warn")
	t.Setenv("AGENTPLAN_BREAKER_TIMEOUT", "1m")
	t.Setenv("AGENTPLAN_ORCH_DEPENDENCY_POLICY", "success")
	t.Setenv("AGENTPLAN_ORCH_QUALITY_THRESHOLD", "0.7")
	t.Setenv("AGENTPLAN_ORCH_DERIVE_GROUPS", "false")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.NATS.URL != "nats://nats:4222" {
		t.Errorf("expected NATS URL, got %s", cfg.NATS.URL)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Breaker.Timeout != time.Minute {
		t.Errorf("expected breaker timeout 1m, got %v", cfg.Breaker.Timeout)
	}
	if cfg.Orchestrator.DependencyPolicy != "success" {
		t.Errorf("expected dependency policy success, got %s", cfg.Orchestrator.DependencyPolicy)
	}
	if cfg.Orchestrator.QualityThreshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %v", cfg.Orchestrator.QualityThreshold)
	}
	if cfg.Orchestrator.DeriveGroups {
		t.Error("expected derive_groups disabled")
	}
}

func TestEnvInvalidValuesIgnored(t *testing.T) {
	cfg := Defaults()

	t.Setenv("AGENTPLAN_PG_MAX_CONNS", "notanumber")
	t.Setenv("AGENTPLAN_BREAKER_TIMEOUT", "invalid-duration")
	t.Setenv("AGENTPLAN_RATE_RPS", "abc")

	loadEnv(&cfg)

	if cfg.Postgres.MaxConns != 10 {
		t.Errorf("invalid int env should be ignored: got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("invalid duration env should be ignored: got %v", cfg.Breaker.Timeout)
	}
	if cfg.Rate.RequestsPerSecond != 10 {
		t.Errorf("invalid float env should be ignored: got %v", cfg.Rate.RequestsPerSecond)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "zero max_conns with archive",
			modify: func(c *Config) { c.Postgres.DSN = "postgres://x"; c.Postgres.MaxConns = 0 },
			errMsg: "postgres.max_conns must be >= 1",
		},
		{
			name:   "zero breaker failures",
			modify: func(c *Config) { c.Breaker.MaxFailures = 0 },
			errMsg: "breaker.max_failures must be >= 1",
		},
		{
			name:   "zero max parallel",
			modify: func(c *Config) { c.Orchestrator.MaxParallel = 0 },
			errMsg: "orchestrator.max_parallel must be >= 1",
		},
		{
			name:   "threshold above one",
			modify: func(c *Config) { c.Orchestrator.QualityThreshold = 1.5 },
			errMsg: "orchestrator.quality_threshold must be within [0,1]",
		},
		{
			name:   "unknown cycle policy",
			modify: func(c *Config) { c.Orchestrator.CyclePolicy = "ignore" },
			errMsg: "orchestrator.cycle_policy",
		},
		{
			name:   "unknown dependency policy",
			modify: func(c *Config) { c.Orchestrator.DependencyPolicy = "any" },
			errMsg: "orchestrator.dependency_policy",
		},
		{
			name:   "webhook without url",
			modify: func(c *Config) { c.Agents = []Agent{{Type: "poster", Kind: "webhook"}} },
			errMsg: "url is required",
		},
		{
			name:   "duplicate agent type",
			modify: func(c *Config) { c.Agents = []Agent{{Type: "think", Kind: "llm"}, {Type: "think", Kind: "llm"}} },
			errMsg: "duplicate agent type",
		},
		{
			name:   "unknown agent kind",
			modify: func(c *Config) { c.Agents = []Agent{{Type: "think", Kind: "grpc"}} },
			errMsg: "kind \"grpc\"",
		},
		{
			name:   "non-terminal notify status",
			modify: func(c *Config) { c.Notify.Statuses = []string{"executing"} },
			errMsg: "notify.statuses",
		},
		{
			name:   "unknown notify kind",
			modify: func(c *Config) { c.Notify.Targets = []NotifyTarget{{Kind: "pager", WebhookURL: "http://x"}} },
			errMsg: "notify.targets[0].kind",
		},
		{
			name:   "notify target without url",
			modify: func(c *Config) { c.Notify.Targets = []NotifyTarget{{Kind: "slack"}} },
			errMsg: "webhook_url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected %q in %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestLoadFrom_FullHierarchy(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9090"
logging:
  level: "debug"
`)
	t.Setenv("AGENTPLAN_PORT", "7070")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("env should override YAML: got port %q", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("YAML should override defaults: got level %q", cfg.Logging.Level)
	}
}

func TestLoadFrom_MalformedYAML(t *testing.T) {
	path := writeYAML(t, `{{{invalid yaml`)
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected error for malformed YAML, got nil")
	}
}

func TestLoadFrom_ValidationAfterOverride(t *testing.T) {
	path := writeYAML(t, `
orchestrator:
  cycle_policy: "sometimes"
`)
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected validation error for unknown cycle policy, got nil")
	}
}

func TestParseFlags(t *testing.T) {
	flags, err := ParseFlags([]string{"--port", "9090", "--log-level", "debug"})
	if err != nil {
		t.Fatal(err)
	}
	if flags.Port == nil || *flags.Port != "9090" {
		t.Errorf("expected port 9090, got %v", flags.Port)
	}
	if flags.LogLevel == nil || *flags.LogLevel != "debug" {
		t.Errorf("expected log-level debug, got %v", flags.LogLevel)
	}
	if flags.DSN != nil || flags.NatsURL != nil || flags.ConfigPath != nil {
		t.Error("unset flags should remain nil")
	}
}

func TestParseFlagsShorthand(t *testing.T) {
	flags, err := ParseFlags([]string{"-p", "7070", "-c", "custom.yaml"})
	if err != nil {
		t.Fatal(err)
	}
	if flags.Port == nil || *flags.Port != "7070" {
		t.Errorf("expected port 7070, got %v", flags.Port)
	}
	if flags.ConfigPath == nil || *flags.ConfigPath != "custom.yaml" {
		t.Errorf("expected config custom.yaml, got %v", flags.ConfigPath)
	}
}

func TestParseFlagsInvalid(t *testing.T) {
	if _, err := ParseFlags([]string{"--unknown-flag"}); err == nil {
		t.Error("expected error for unknown flag, got nil")
	}
}

func TestCLIOverridesEnv(t *testing.T) {
	t.Setenv("AGENTPLAN_PORT", "7070")
	path := writeYAML(t, "")

	flags, err := ParseFlags([]string{"--config", path, "--port", "3333"})
	if err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := LoadWithCLI(flags)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("expected resolved path %s, got %s", path, resolved)
	}
	if cfg.Server.Port != "3333" {
		t.Errorf("expected CLI port 3333 to override ENV 7070, got %s", cfg.Server.Port)
	}
}

func TestApplyCLINilFlags(t *testing.T) {
	cfg := Defaults()
	original := cfg

	applyCLI(&cfg, CLIFlags{})

	if cfg.Server.Port != original.Server.Port || cfg.Logging.Level != original.Logging.Level {
		t.Error("nil flags must not change config")
	}
}

func TestLoadNotifyYAML(t *testing.T) {
	path := writeYAML(t, `
notify:
  statuses: [failed, completed]
  adapted: true
  targets:
    - kind: slack
      webhook_url: "https://hooks.slack.com/services/T/B/X"
      timeout: 5s
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	n := cfg.Notify
	if len(n.Statuses) != 2 || n.Statuses[1] != "completed" || !n.Adapted {
		t.Errorf("notify overrides not applied: %+v", n)
	}
	if len(n.Targets) != 1 || n.Targets[0].Kind != "slack" || n.Targets[0].Timeout != 5*time.Second {
		t.Errorf("unexpected targets %+v", n.Targets)
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/agentplan/internal/domain/plan"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentplan.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "AGENTPLAN_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTPLAN_CORS_ORIGIN")
	setString(&cfg.Logging.Level, "AGENTPLAN_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTPLAN_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTPLAN_LOG_ASYNC")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "AGENTPLAN_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "AGENTPLAN_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "AGENTPLAN_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "AGENTPLAN_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "AGENTPLAN_OTEL_SAMPLE_RATE")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "AGENTPLAN_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "AGENTPLAN_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "AGENTPLAN_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "AGENTPLAN_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "AGENTPLAN_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setInt(&cfg.Breaker.MaxFailures, "AGENTPLAN_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "AGENTPLAN_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "AGENTPLAN_RATE_RPS")
	setInt(&cfg.Rate.Burst, "AGENTPLAN_RATE_BURST")

	// Cache
	setBool(&cfg.Cache.Enabled, "AGENTPLAN_CACHE_ENABLED")
	setInt64(&cfg.Cache.L1MaxSizeMB, "AGENTPLAN_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "AGENTPLAN_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Bucket, "AGENTPLAN_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "AGENTPLAN_CACHE_L2_TTL")

	// Orchestrator
	setInt(&cfg.Orchestrator.MaxParallel, "AGENTPLAN_ORCH_MAX_PARALLEL")
	setDuration(&cfg.Orchestrator.TaskTimeout, "AGENTPLAN_ORCH_TASK_TIMEOUT")
	setFloat64(&cfg.Orchestrator.QualityThreshold, "AGENTPLAN_ORCH_QUALITY_THRESHOLD")
	setString(&cfg.Orchestrator.CyclePolicy, "AGENTPLAN_ORCH_CYCLE_POLICY")
	setString(&cfg.Orchestrator.DependencyPolicy, "AGENTPLAN_ORCH_DEPENDENCY_POLICY")
	setBool(&cfg.Orchestrator.DeriveGroups, "AGENTPLAN_ORCH_DERIVE_GROUPS")
	setDuration(&cfg.Orchestrator.Retention, "AGENTPLAN_ORCH_RETENTION")
	setDuration(&cfg.Orchestrator.CleanupInterval, "AGENTPLAN_ORCH_CLEANUP_INTERVAL")
	setString(&cfg.Orchestrator.PlannerModel, "AGENTPLAN_ORCH_PLANNER_MODEL")
	setInt(&cfg.Orchestrator.PlannerMaxTokens, "AGENTPLAN_ORCH_PLANNER_MAX_TOKENS")

	// MCP
	setBool(&cfg.MCP.Enabled, "AGENTPLAN_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "AGENTPLAN_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "AGENTPLAN_MCP_API_KEY")
}

// validate checks that required fields are set and values are usable.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN != "" && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	o := &cfg.Orchestrator
	if o.MaxParallel < 1 {
		return errors.New("orchestrator.max_parallel must be >= 1")
	}
	if o.TaskTimeout < 0 {
		return errors.New("orchestrator.task_timeout must be >= 0")
	}
	if o.QualityThreshold < 0 || o.QualityThreshold > 1 {
		return errors.New("orchestrator.quality_threshold must be within [0,1]")
	}
	if !plan.ValidCyclePolicy(o.CyclePolicy) {
		return fmt.Errorf("orchestrator.cycle_policy %q is not one of break, reject", o.CyclePolicy)
	}
	if !plan.ValidDependencyPolicy(o.DependencyPolicy) {
		return fmt.Errorf("orchestrator.dependency_policy %q is not one of terminal, success", o.DependencyPolicy)
	}
	seen := make(map[string]bool, len(cfg.Agents))
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		if a.Type == "" {
			return fmt.Errorf("agents[%d].type is required", i)
		}
		if seen[a.Type] {
			return fmt.Errorf("agents[%d]: duplicate agent type %q", i, a.Type)
		}
		seen[a.Type] = true
		switch a.Kind {
		case "llm":
		case "webhook":
			if a.URL == "" {
				return fmt.Errorf("agents[%d].url is required for webhook agents", i)
			}
		default:
			return fmt.Errorf("agents[%d].kind %q is not one of llm, webhook", i, a.Kind)
		}
		if a.RPS < 0 {
			return fmt.Errorf("agents[%d].rps must be >= 0", i)
		}
	}
	for _, st := range cfg.Notify.Statuses {
		if !plan.Status(st).IsTerminal() {
			return fmt.Errorf("notify.statuses: %q is not a finished plan status", st)
		}
	}
	for i := range cfg.Notify.Targets {
		t := &cfg.Notify.Targets[i]
		if t.Kind != "slack" && t.Kind != "discord" {
			return fmt.Errorf("notify.targets[%d].kind %q is not one of slack, discord", i, t.Kind)
		}
		if t.WebhookURL == "" {
			return fmt.Errorf("notify.targets[%d].webhook_url is required", i)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Package config provides hierarchical configuration loading for agentplan.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the agentplan service.
type Config struct {
	Server       Server       `yaml:"server"`
	Logging      Logging      `yaml:"logging"`
	OTEL         OTEL         `yaml:"otel"`
	Postgres     Postgres     `yaml:"postgres"`
	NATS         NATS         `yaml:"nats"`
	LiteLLM      LiteLLM      `yaml:"litellm"`
	Cache        Cache        `yaml:"cache"`
	Breaker      Breaker      `yaml:"breaker"`
	Rate         Rate         `yaml:"rate"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Agents       []Agent      `yaml:"agents"`
	MCP          MCP          `yaml:"mcp"`
	Notify       Notify       `yaml:"notify"`
}

// Orchestrator holds planning and execution configuration.
type Orchestrator struct {
	MaxParallel      int           `yaml:"max_parallel"`       // Max concurrent tasks per parallel group (default: 4)
	TaskTimeout      time.Duration `yaml:"task_timeout"`       // Per-task executor timeout, 0 = none
	QualityThreshold float64       `yaml:"quality_threshold"`  // Feedback below this triggers adaptation (default: 0.5)
	CyclePolicy      string        `yaml:"cycle_policy"`       // "break" | "reject" (default: "break")
	DependencyPolicy string        `yaml:"dependency_policy"`  // "terminal" | "success" (default: "terminal")
	DeriveGroups     bool          `yaml:"derive_groups"`      // Derive parallel groups when the planner's are unusable
	Retention        time.Duration `yaml:"retention"`          // Age after which terminal plans are cleared (default: 168h)
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`   // How often retention is enforced, 0 = never
	PlannerModel     string        `yaml:"planner_model"`      // LLM model used by the planner oracle
	PlannerMaxTokens int           `yaml:"planner_max_tokens"` // Max tokens for the planner response (default: 4096)
}

// Agent declares the executor that serves one agent type.
type Agent struct {
	Type         string        `yaml:"type"` // agent type tag, e.g. "research"
	Kind         string        `yaml:"kind"` // "llm" | "webhook"
	Model        string        `yaml:"model"`
	SystemPrompt string        `yaml:"system_prompt"`
	URL          string        `yaml:"url"`
	APIKey       string        `yaml:"api_key"` // webhook bearer token; llm agents default to the LiteLLM master key
	Timeout      time.Duration `yaml:"timeout"`
	RPS          float64       `yaml:"rps"` // 0 = unlimited
	Burst        int           `yaml:"burst"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Postgres holds PostgreSQL connection configuration. An empty DSN disables
// the plan archive.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS JetStream configuration. An empty URL disables event
// publishing and the L2 cache.
type NATS struct {
	URL string `yaml:"url"`
}

// LiteLLM holds LiteLLM proxy configuration.
type LiteLLM struct {
	URL       string `yaml:"url"`
	MasterKey string `yaml:"master_key"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// OTEL holds OpenTelemetry exporter configuration.
type OTEL struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Cache holds the planner response cache configuration.
type Cache struct {
	Enabled     bool          `yaml:"enabled"`
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	L1TTL       time.Duration `yaml:"l1_ttl"`
	L2Bucket    string        `yaml:"l2_bucket"`
	L2TTL       time.Duration `yaml:"l2_ttl"`
}

// Breaker holds circuit breaker configuration.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds HTTP rate limiter configuration.
type Rate struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// MCP holds the Model Context Protocol server configuration.
type MCP struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	APIKey  string `yaml:"api_key"` // empty = no authentication
}

// Notify holds plan outcome notification configuration.
type Notify struct {
	Statuses []string       `yaml:"statuses"` // finished plan statuses that notify (default: failed, stalled)
	Adapted  bool           `yaml:"adapted"`  // also notify when a plan is adapted
	Targets  []NotifyTarget `yaml:"targets"`
}

// NotifyTarget is one chat webhook.
type NotifyTarget struct {
	Kind       string        `yaml:"kind"` // "slack" | "discord"
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Logging: Logging{
			Level:   "info",
			Service: "agentplan",
		},
		OTEL: OTEL{
			Endpoint:    "localhost:4317",
			ServiceName: "agentplan",
			Insecure:    true,
			SampleRate:  1.0,
		},
		Postgres: Postgres{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		LiteLLM: LiteLLM{
			URL: "http://localhost:4000",
		},
		Cache: Cache{
			Enabled:     true,
			L1MaxSizeMB: 32,
			L1TTL:       10 * time.Minute,
			L2Bucket:    "PLANNER_CACHE",
			L2TTL:       time.Hour,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Rate: Rate{
			RequestsPerSecond: 10,
			Burst:             100,
		},
		Orchestrator: Orchestrator{
			MaxParallel:      4,
			QualityThreshold: 0.5,
			CyclePolicy:      "break",
			DependencyPolicy: "terminal",
			DeriveGroups:     true,
			Retention:        7 * 24 * time.Hour,
			CleanupInterval:  time.Hour,
			PlannerModel:     "openai/gpt-4o-mini",
			PlannerMaxTokens: 4096,
		},
		Agents: defaultAgents(),
		MCP: MCP{
			Addr: ":3001",
		},
		Notify: Notify{
			Statuses: []string{"failed", "stalled"},
		},
	}
}

// defaultAgents serves every built-in agent type with an LLM executor.
func defaultAgents() []Agent {
	types := []string{"research", "think", "media", "review", "browser", "helper", "poster", "video-analysis"}
	agents := make([]Agent, len(types))
	for i, t := range types {
		agents[i] = Agent{
			Type:    t,
			Kind:    "llm",
			Model:   "openai/gpt-4o-mini",
			Timeout: 2 * time.Minute,
		}
	}
	return agents
}

// Package config loads the daemon's environment-variable-driven
// configuration surface: model identifiers, the gateway's host/port/secret,
// the store DSN, log level/dir, scheduler intervals, healing thresholds,
// and per-collaborator-family credentials (messaging, payments, banking,
// trading).
//
// Grounded on the teacher's infrastructure/config (EnvOrSecret-style
// env-first loading) generalized from its Marble-secret-then-env fallback
// to plain struct-tag decoding via joeshaw/envdecode, since this daemon has
// no TEE/enclave secret store to fall back to. joho/godotenv loads an
// optional .env file first, matching the teacher's own development-time
// convenience.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	validatorpkg "github.com/go-playground/validator/v10"

	slruntime "github.com/sentineld/sentineld/internal/runtime"
)

// Config is the full environment-variable-driven configuration surface.
type Config struct {
	Env slruntime.Environment

	// Model / LLM backend
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL,default=claude-3-5-sonnet-latest"`

	// Gateway
	GatewayHost   string   `env:"GATEWAY_HOST,default=0.0.0.0"`
	GatewayPort   int      `env:"GATEWAY_PORT,default=8080"`
	GatewaySecret string   `env:"GATEWAY_SECRET" validate:"required"`
	CORSOrigins   []string `env:"CORS_ORIGINS,default=*"`

	// Store
	StoreDSN string `env:"STORE_DSN" validate:"required"`

	// Logging
	LogLevel   string `env:"LOG_LEVEL,default=info"`
	LogFormat  string `env:"LOG_FORMAT,default=json"`
	LogDir     string `env:"LOG_DIR,default=."`
	LogToFile  bool   `env:"LOG_TO_FILE,default=false"`

	// Scheduler
	SchedulerWorkers             int   `env:"SCHEDULER_WORKERS,default=1"`
	SelfEvaluationIntervalMs     int64 `env:"SELF_EVALUATION_INTERVAL_MS,default=86400000"`
	SyncPulseIntervalMs          int64 `env:"SYNC_PULSE_INTERVAL_MS,default=3600000"`
	MemoryConsolidationIntervalMs int64 `env:"MEMORY_CONSOLIDATION_INTERVAL_MS,default=21600000"`
	HealthCheckIntervalMs        int64 `env:"HEALTH_CHECK_INTERVAL_MS,default=30000"`
	BreakerEvaluationIntervalMs  int64 `env:"BREAKER_EVALUATION_INTERVAL_MS,default=60000"`
	DependencyAuditIntervalMs    int64 `env:"DEPENDENCY_AUDIT_INTERVAL_MS,default=21600000"`
	IntrospectionIntervalMs      int64 `env:"INTROSPECTION_INTERVAL_MS,default=3600000"`

	// Circuit breaker defaults
	BreakerFailureThreshold int   `env:"BREAKER_FAILURE_THRESHOLD,default=5"`
	BreakerCooldownMs       int64 `env:"BREAKER_COOLDOWN_MS,default=300000"`

	// Self-healing
	HealingUnhealthyThreshold int     `env:"HEALING_UNHEALTHY_THRESHOLD,default=3"`
	HealingMemoryUnhealthyMB  float64 `env:"HEALING_MEMORY_UNHEALTHY_MB,default=512"`
	HealingMemoryDegradedMB   float64 `env:"HEALING_MEMORY_DEGRADED_MB,default=384"`

	// Collaborator families (spec.md §6: "credentials for each collaborator
	// family: messaging, payments, banking, trading")
	MessagingEndpoint string `env:"MESSAGING_ENDPOINT"`
	MessagingToken    string `env:"MESSAGING_TOKEN"`
	PaymentsEndpoint  string `env:"PAYMENTS_ENDPOINT"`
	PaymentsAPIKey    string `env:"PAYMENTS_API_KEY"`
	BankingEndpoint   string `env:"BANKING_ENDPOINT"`
	BankingAPIKey     string `env:"BANKING_API_KEY"`
	TradingEndpoint   string `env:"TRADING_ENDPOINT"`
	TradingAPIKey     string `env:"TRADING_API_KEY"`

	// Operator notification
	SlackBotToken string `env:"SLACK_BOT_TOKEN"`
	SlackChannel  string `env:"SLACK_CHANNEL"`

	// ConfigFile, when set, is watched for hot-reload of non-identity
	// settings (log level, scheduler intervals) via WatchReload.
	ConfigFile string `env:"CONFIG_FILE"`
}

// Load reads an optional .env file (envFile, ignored if absent), decodes
// the process environment into a Config via struct tags, and validates it.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	cfg := &Config{Env: slruntime.Env()}
	if err := envdecode.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode environment: %w", err)
	}

	if err := validatorpkg.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// CollaboratorCredential bundles one collaborator family's endpoint and
// bearer credential, resolved by name for tool registration.
type CollaboratorCredential struct {
	Endpoint string
	Token    string
}

// Collaborator returns the configured endpoint/credential pair for one of
// the four collaborator families named in spec.md §6, or ok=false for an
// unknown or unconfigured family.
func (c *Config) Collaborator(family string) (CollaboratorCredential, bool) {
	var cred CollaboratorCredential
	switch strings.ToLower(family) {
	case "messaging":
		cred = CollaboratorCredential{Endpoint: c.MessagingEndpoint, Token: c.MessagingToken}
	case "payments":
		cred = CollaboratorCredential{Endpoint: c.PaymentsEndpoint, Token: c.PaymentsAPIKey}
	case "banking":
		cred = CollaboratorCredential{Endpoint: c.BankingEndpoint, Token: c.BankingAPIKey}
	case "trading":
		cred = CollaboratorCredential{Endpoint: c.TradingEndpoint, Token: c.TradingAPIKey}
	default:
		return CollaboratorCredential{}, false
	}
	if cred.Endpoint == "" && cred.Token == "" {
		return CollaboratorCredential{}, false
	}
	return cred, true
}

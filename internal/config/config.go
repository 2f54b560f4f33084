package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration, parsed from environment variables via
// struct tags (github.com/caarlos0/env). Recognized options per the external interface
// contract include DATABASE_URL, REDIS_URL, the event-bus URL, JWT_SECRET_KEY and
// friends, CREDENTIALS_ENCRYPTION_KEY, the circuit-breaker defaults, SESSION_TTL, the
// health-check heartbeat settings, VISION_MAX_TOKENS, MIN_RATINGS_NEEDED, and
// DISCORD_PUBLIC_KEY.
type Config struct {
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3002"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	Database   DatabaseConfig
	Otel       OtelConfig
	Redis      RedisConfig
	EventBus   EventBusConfig
	Auth       AuthConfig
	Embeddings EmbeddingsConfig
	LLM        LLMConfig
	Email      EmailConfig
	Storage    StorageConfig
	Workflows  WorkflowsConfig

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings. DatabaseURL, when set, takes
// precedence over the discrete POSTGRES_* fields.
type DatabaseConfig struct {
	URL          string        `env:"DATABASE_URL" envDefault:""`
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"opennotes"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"opennotes"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL when set.
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// RedisConfig configures the cache/lock layer, the token-bucket reclaimer's
// liveness checks, and the event bus transport unless EventBusConfig.URL overrides it.
type RedisConfig struct {
	URL         string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SessionTTL  time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
}

// EventBusConfig configures the durable pub/sub transport. Defaults to sharing
// the Redis connection when unset.
type EventBusConfig struct {
	URL           string `env:"EVENT_BUS_URL" envDefault:""`
	AppNamespace  string `env:"EVENT_BUS_NAMESPACE" envDefault:"OPENNOTES"`
	MaxDeliveries int    `env:"EVENT_BUS_MAX_DELIVERIES" envDefault:"5"`
}

// WorkflowsConfig tunes the durable workflow orchestrator's polling worker.
type WorkflowsConfig struct {
	PollInterval          time.Duration `env:"WORKFLOWS_POLL_INTERVAL" envDefault:"5s"`
	BatchSize             int           `env:"WORKFLOWS_BATCH_SIZE" envDefault:"10"`
	MaxAttempts           int           `env:"WORKFLOWS_MAX_ATTEMPTS" envDefault:"5"`
	BaseRetryDelaySec     int           `env:"WORKFLOWS_BASE_RETRY_DELAY_SEC" envDefault:"60"`
	MaxRetryDelaySec      int           `env:"WORKFLOWS_MAX_RETRY_DELAY_SEC" envDefault:"3600"`
	StaleThresholdMinutes int           `env:"WORKFLOWS_STALE_THRESHOLD_MINUTES" envDefault:"10"`
}

// EffectiveURL returns EventBusConfig.URL, falling back to the shared Redis URL.
func (e *EventBusConfig) EffectiveURL(redisURL string) string {
	if e.URL != "" {
		return e.URL
	}
	return redisURL
}

// AuthConfig holds the JWT/token parameters this repo consumes as an external
// capability: authentication primitives are issued elsewhere, and this repo only
// validates already-issued tokens' claims and enforces revocation/age policy.
type AuthConfig struct {
	JWTSecretKey             string        `env:"JWT_SECRET_KEY" envDefault:""`
	JWTAlgorithm             string        `env:"JWT_ALGORITHM" envDefault:"HS256"`
	AccessTokenExpireMinutes int           `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"15"`
	RefreshTokenExpireDays   int           `env:"REFRESH_TOKEN_EXPIRE_DAYS" envDefault:"30"`
	MaxTokenAgeSeconds       int64         `env:"MAX_TOKEN_AGE_SECONDS" envDefault:"2592000"`
	CredentialsEncryptionKey string        `env:"CREDENTIALS_ENCRYPTION_KEY" envDefault:""`
	CircuitBreakerThreshold  int           `env:"CIRCUIT_BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	CircuitBreakerTimeout    time.Duration `env:"CIRCUIT_BREAKER_TIMEOUT" envDefault:"60s"`
	HealthHeartbeatInterval  time.Duration `env:"HEALTH_CHECK_HEARTBEAT_INTERVAL" envDefault:"30s"`
	HealthUnhealthyTimeout   time.Duration `env:"HEALTH_CHECK_UNHEALTHY_TIMEOUT" envDefault:"90s"`
	VisionMaxTokens          int           `env:"VISION_MAX_TOKENS" envDefault:"1024"`
	MinRatingsNeeded         int           `env:"MIN_RATINGS_NEEDED" envDefault:"5"`
	DiscordPublicKey         string        `env:"DISCORD_PUBLIC_KEY" envDefault:""`
	MaxWebhookAgeSeconds     int64         `env:"MAX_WEBHOOK_AGE_SECONDS" envDefault:"300"`
}

// ValidateDiscordPublicKey refuses an empty key in production (bypassed outside
// production so local/test runs don't need one configured); any non-64-hex value
// always refuses regardless of environment.
func (a *AuthConfig) ValidateDiscordPublicKey(environment string) error {
	if a.DiscordPublicKey == "" {
		if environment == "production" {
			return fmt.Errorf("DISCORD_PUBLIC_KEY is required in production")
		}
		return nil
	}
	if len(a.DiscordPublicKey) != 64 {
		return fmt.Errorf("DISCORD_PUBLIC_KEY must be exactly 64 hex characters, got %d", len(a.DiscordPublicKey))
	}
	for _, c := range a.DiscordPublicKey {
		if !isHexDigit(c) {
			return fmt.Errorf("DISCORD_PUBLIC_KEY must be hex-encoded")
		}
	}
	return nil
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// EmbeddingsConfig holds embedding service configuration. Dimension defaults to 1536
// to match the chunk embedding column width; EMBEDDING_DIMENSION overrides it.
type EmbeddingsConfig struct {
	Provider         string `env:"EMBEDDING_PROVIDER" envDefault:""`
	GCPProjectID     string `env:"GCP_PROJECT_ID" envDefault:""`
	VertexAILocation string `env:"VERTEX_AI_LOCATION" envDefault:"us-central1"`
	Model            string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-004"`
	Dimension        int    `env:"EMBEDDING_DIMENSION" envDefault:"1536"`
	GoogleAPIKey     string `env:"GOOGLE_API_KEY" envDefault:""`
	NetworkDisabled  bool   `env:"EMBEDDINGS_NETWORK_DISABLED" envDefault:"false"`
}

// IsEnabled returns true if embeddings are configured.
func (e *EmbeddingsConfig) IsEnabled() bool {
	if e.NetworkDisabled {
		return false
	}
	return (e.GCPProjectID != "" && e.VertexAILocation != "") || e.GoogleAPIKey != ""
}

// UseVertexAI returns true if Vertex AI should be used.
func (e *EmbeddingsConfig) UseVertexAI() bool {
	return e.GCPProjectID != "" && e.VertexAILocation != ""
}

// LLMConfig holds LLM configuration for the bulk-scan flashpoint detector and the
// vision description worker.
type LLMConfig struct {
	GCPProjectID     string        `env:"GCP_PROJECT_ID" envDefault:""`
	VertexAILocation string        `env:"VERTEX_AI_LOCATION" envDefault:"global"`
	Model            string        `env:"VERTEX_AI_MODEL" envDefault:"gemini-3-flash-preview"`
	MaxOutputTokens  int           `env:"LLM_MAX_OUTPUT_TOKENS" envDefault:"8192"`
	Temperature      float64       `env:"LLM_TEMPERATURE" envDefault:"0"`
	Timeout          time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`
	GoogleAPIKey     string        `env:"GOOGLE_API_KEY" envDefault:""`
	NetworkDisabled  bool          `env:"LLM_NETWORK_DISABLED" envDefault:"false"`
}

// IsEnabled returns true if LLM calls are configured.
func (l *LLMConfig) IsEnabled() bool {
	if l.NetworkDisabled {
		return false
	}
	return l.UseVertexAI() || l.GoogleAPIKey != ""
}

// UseVertexAI returns true if Vertex AI should be used.
func (l *LLMConfig) UseVertexAI() bool {
	return l.GCPProjectID != "" && l.VertexAILocation != ""
}

// EmailConfig holds service-account provisioning notice configuration.
type EmailConfig struct {
	Enabled       bool   `env:"EMAIL_ENABLED" envDefault:"false"`
	MailgunDomain string `env:"MAILGUN_DOMAIN" envDefault:""`
	MailgunAPIKey string `env:"MAILGUN_API_KEY" envDefault:""`
	FromEmail     string `env:"EMAIL_FROM_ADDRESS" envDefault:"noreply@opennotes.example"`
	FromName      string `env:"EMAIL_FROM_NAME" envDefault:"OpenNotes"`
}

// IsConfigured returns true if Mailgun is configured.
func (e *EmailConfig) IsConfigured() bool {
	return e.MailgunDomain != "" && e.MailgunAPIKey != ""
}

// StorageConfig holds object-storage configuration for vision attachments and
// bulk-scan message-batch archives.
type StorageConfig struct {
	Endpoint        string `env:"STORAGE_ENDPOINT" envDefault:""`
	AccessKeyID     string `env:"STORAGE_ACCESS_KEY" envDefault:""`
	SecretAccessKey string `env:"STORAGE_SECRET_KEY" envDefault:""`
	Bucket          string `env:"STORAGE_BUCKET" envDefault:"opennotes"`
	UseSSL          bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
	Region          string `env:"STORAGE_REGION" envDefault:"us-east-1"`
}

// IsConfigured returns true if object storage is configured.
func (s *StorageConfig) IsConfigured() bool {
	return s.Endpoint != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// NewConfig loads configuration from environment variables.
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Auth.ValidateDiscordPublicKey(cfg.Environment); err != nil {
		return nil, err
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
	)

	return cfg, nil
}

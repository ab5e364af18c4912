package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Zitadel   ZitadelConfig
	Gateway   GatewayConfig
	Sonauto   SonautoConfig
	MusicAI   MusicAIConfig
	Storage   StorageConfig
	Documents DocumentsConfig
	Pipeline  PipelineConfig
	Events    EventsConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	GeneratePerHour int
	JobsPerHour     int
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

type SonautoConfig struct {
	APIKey  string
	BaseURL string
}

type MusicAIConfig struct {
	APIKey   string
	BaseURL  string
	Workflow string
}

// StorageConfig describes an S3 compatible bucket (R2, MinIO, AWS)
type StorageConfig struct {
	Endpoint        string
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	Region          string
}

// DocumentsConfig selects where track documents are stored
type DocumentsConfig struct {
	Backend     string // "redis" or "postgres"
	PostgresDSN string
}

type PipelineConfig struct {
	DefaultPrompt         string
	PollInterval          time.Duration
	GenerationMaxAttempts int
	SeparationMaxAttempts int
	RunTimeout            time.Duration
	FetchTimeout          time.Duration
	CleanupOnFailure      bool
}

type EventsConfig struct {
	NatsURL string
	Subject string
}

func Load() (*Config, error) {
	// A missing .env file is fine; real deployments inject the environment
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("SONAUTO_API_KEY")
	readSecret("MUSICAI_API_KEY")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")
	readSecret("POSTGRES_DSN")
	readSecret("ZITADEL_CLIENT_ID")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.api_domain", "API_DOMAIN")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = v.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = v.BindEnv("ratelimit.jobs_per_hour", "RATELIMIT_JOBS_PER_HOUR")
	_ = v.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = v.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = v.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = v.BindEnv("sonauto.api_key", "SONAUTO_API_KEY")
	_ = v.BindEnv("sonauto.base_url", "SONAUTO_BASE_URL")
	_ = v.BindEnv("musicai.api_key", "MUSICAI_API_KEY")
	_ = v.BindEnv("musicai.base_url", "MUSICAI_BASE_URL")
	_ = v.BindEnv("musicai.workflow", "MUSICAI_WORKFLOW")
	_ = v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = v.BindEnv("storage.account_id", "STORAGE_ACCOUNT_ID")
	_ = v.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = v.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = v.BindEnv("storage.region", "STORAGE_REGION")
	_ = v.BindEnv("documents.backend", "DOCUMENTS_BACKEND")
	_ = v.BindEnv("documents.postgres_dsn", "POSTGRES_DSN")
	_ = v.BindEnv("pipeline.default_prompt", "PIPELINE_DEFAULT_PROMPT")
	_ = v.BindEnv("pipeline.poll_interval", "PIPELINE_POLL_INTERVAL")
	_ = v.BindEnv("pipeline.generation_max_attempts", "PIPELINE_GENERATION_MAX_ATTEMPTS")
	_ = v.BindEnv("pipeline.separation_max_attempts", "PIPELINE_SEPARATION_MAX_ATTEMPTS")
	_ = v.BindEnv("pipeline.run_timeout", "PIPELINE_RUN_TIMEOUT")
	_ = v.BindEnv("pipeline.fetch_timeout", "PIPELINE_FETCH_TIMEOUT")
	_ = v.BindEnv("pipeline.cleanup_on_failure", "PIPELINE_CLEANUP_ON_FAILURE")
	_ = v.BindEnv("events.nats_url", "NATS_URL")
	_ = v.BindEnv("events.subject", "EVENTS_SUBJECT")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("ratelimit.generate_per_hour", 10)
	v.SetDefault("ratelimit.jobs_per_hour", 10)
	v.SetDefault("gateway.enabled", false)

	// Remote job services
	v.SetDefault("sonauto.base_url", "https://api.sonauto.ai/v1")
	v.SetDefault("musicai.base_url", "https://api.music.ai/api")
	v.SetDefault("musicai.workflow", "music-ai/stems-vocals-accompaniment")

	// Storage
	v.SetDefault("storage.region", "auto")
	v.SetDefault("documents.backend", "redis")

	// Pipeline
	v.SetDefault("pipeline.default_prompt", "AI-generated track")
	v.SetDefault("pipeline.poll_interval", 5*time.Second)
	v.SetDefault("pipeline.generation_max_attempts", 120)
	v.SetDefault("pipeline.separation_max_attempts", 120)
	v.SetDefault("pipeline.run_timeout", 30*time.Minute)
	v.SetDefault("pipeline.fetch_timeout", 120*time.Second)
	v.SetDefault("pipeline.cleanup_on_failure", false)

	v.SetDefault("events.subject", "tracks.created")

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			ApiDomain: v.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
			JobsPerHour:     v.GetInt("ratelimit.jobs_per_hour"),
		},
		Zitadel: ZitadelConfig{
			Domain:   v.GetString("zitadel.domain"),
			ClientID: v.GetString("zitadel.client_id"),
			Issuer:   v.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		Sonauto: SonautoConfig{
			APIKey:  v.GetString("sonauto.api_key"),
			BaseURL: v.GetString("sonauto.base_url"),
		},
		MusicAI: MusicAIConfig{
			APIKey:   v.GetString("musicai.api_key"),
			BaseURL:  v.GetString("musicai.base_url"),
			Workflow: v.GetString("musicai.workflow"),
		},
		Storage: StorageConfig{
			Endpoint:        v.GetString("storage.endpoint"),
			AccountID:       v.GetString("storage.account_id"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			BucketName:      v.GetString("storage.bucket_name"),
			PublicURL:       v.GetString("storage.public_url"),
			Region:          v.GetString("storage.region"),
		},
		Documents: DocumentsConfig{
			Backend:     strings.ToLower(v.GetString("documents.backend")),
			PostgresDSN: v.GetString("documents.postgres_dsn"),
		},
		Pipeline: PipelineConfig{
			DefaultPrompt:         v.GetString("pipeline.default_prompt"),
			PollInterval:          v.GetDuration("pipeline.poll_interval"),
			GenerationMaxAttempts: v.GetInt("pipeline.generation_max_attempts"),
			SeparationMaxAttempts: v.GetInt("pipeline.separation_max_attempts"),
			RunTimeout:            v.GetDuration("pipeline.run_timeout"),
			FetchTimeout:          v.GetDuration("pipeline.fetch_timeout"),
			CleanupOnFailure:      v.GetBool("pipeline.cleanup_on_failure"),
		},
		Events: EventsConfig{
			NatsURL: v.GetString("events.nats_url"),
			Subject: v.GetString("events.subject"),
		},
	}

	return cfg, nil
}

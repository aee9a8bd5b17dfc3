package config

import (
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server       Server       `yaml:"server"`
	Database     Database     `yaml:"database"`
	Identity     Identity     `yaml:"identity"`
	Conversation Conversation `yaml:"conversation"`
	Media        Media        `yaml:"media"`
	S3           S3           `yaml:"s3"`
	Sweeper      Sweeper      `yaml:"sweeper"`
}

// Server holds HTTP server configuration
type Server struct {
	Host         string        `yaml:"host" env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port         string        `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
}

// Address returns the full server address
func (s Server) Address() string {
	return s.Host + ":" + s.Port
}

// Database holds database configuration
type Database struct {
	PostgresDSN string `yaml:"postgres_dsn" env:"DATABASE_URL"`

	MaxConns int32 `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"25"`
	MinConns int32 `yaml:"min_conns" env:"DB_MIN_CONNS" env-default:"5"`
}

// Identity holds the auth/profile service configuration
type Identity struct {
	BaseURL string `yaml:"base_url" env:"IDENTITY_BASE_URL" env-default:"https://id.flint.app"`
}

// Conversation holds conversation window configuration
type Conversation struct {
	InitialWindow     time.Duration `yaml:"initial_window" env:"CONVERSATION_INITIAL_WINDOW" env-default:"24h"`
	ExtensionDuration time.Duration `yaml:"extension_duration" env:"CONVERSATION_EXTENSION" env-default:"60m"`
}

// Media holds ephemeral photo configuration
type Media struct {
	DefaultViewDuration time.Duration `yaml:"default_view_duration" env:"MEDIA_DEFAULT_VIEW_DURATION" env-default:"10s"`
	SessionTTL          time.Duration `yaml:"session_ttl" env:"MEDIA_SESSION_TTL" env-default:"1h"`
}

// S3 holds S3/MinIO storage configuration
type S3 struct {
	Endpoint        string        `yaml:"endpoint" env:"S3_ENDPOINT" env-default:"http://localhost:9000"`
	AccessKeyID     string        `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID" env-default:"minioadmin"`
	SecretAccessKey string        `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY" env-default:"minioadmin"`
	Bucket          string        `yaml:"bucket" env:"S3_BUCKET" env-default:"ephemeral-media"`
	Region          string        `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	URLTTL          time.Duration `yaml:"url_ttl" env:"S3_URL_TTL" env-default:"1m"`
}

// Sweeper holds background expiry sweeper configuration
type Sweeper struct {
	Enabled   bool          `yaml:"enabled" env:"SWEEPER_ENABLED" env-default:"true"`
	Interval  time.Duration `yaml:"interval" env:"SWEEPER_INTERVAL" env-default:"1m"`
	Lookback  time.Duration `yaml:"lookback" env:"SWEEPER_LOOKBACK" env-default:"5m"`
	BatchSize int           `yaml:"batch_size" env:"SWEEPER_BATCH_SIZE" env-default:"100"`
}

// MustLoad loads configuration from environment and panics on error
func MustLoad() Config {
	// Load .env file if exists (for development)
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	return cfg
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

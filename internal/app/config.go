package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	RedisAddr   string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPrefix string `envconfig:"REDIS_PREFIX" default:"academy"`

	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	TokenSecret string        `envconfig:"TOKEN_SECRET" required:"true"`
	TokenTTL    time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	TokenIssuer string        `envconfig:"TOKEN_ISSUER" default:"academyhub"`

	DefaultLocale    string   `envconfig:"DEFAULT_LOCALE" default:"en"`
	SupportedLocales []string `envconfig:"SUPPORTED_LOCALES" default:"en,es"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"10"`
	WorkerConcurrency  int `envconfig:"WORKER_CONCURRENCY" default:"5"`

	MailFrom string `envconfig:"MAIL_FROM" default:"no-reply@academy.local"`
}

// LoadConfig reads configuration from environment variables. Values from the
// file named by ENV_FILE (default .env) fill in variables that are not already
// set; a missing file is ignored.
func LoadConfig() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret must be provided")
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	if cfg.TokenSecret == "" {
		return nil, errors.New("token secret must be provided")
	}
	return &cfg, nil
}

func loadEnvFile() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Locales returns the supported locales with the default first.
func (c *Config) Locales() []string {
	out := []string{c.DefaultLocale}
	for _, l := range c.SupportedLocales {
		if l != "" && l != c.DefaultLocale {
			out = append(out, l)
		}
	}
	return out
}

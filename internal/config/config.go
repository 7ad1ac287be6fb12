package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/blake2b"
)

const (
	// devTokenSeed derives the token key outside production when none is set.
	devTokenSeed = "letters-dev-token-key"
	// devAPIKey matches the LETTERS_API_KEY default and is refused in production.
	devAPIKey = "letters-dev-api-key"
)

type Config struct {
	Addr        string `env:"API_ADDR" envDefault:":8787"`
	Env         string `env:"LETTERS_ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite:./data/letters.db"`
	AppName     string `env:"LETTERS_APP_NAME" envDefault:"Letters"`
	BaseURL     string `env:"LETTERS_BASE_URL" envDefault:"http://localhost:5173"`
	APIKey      string `env:"LETTERS_API_KEY" envDefault:"letters-dev-api-key"`
	CORSOrigin  string `env:"LETTERS_CORS_ORIGIN" envDefault:"*"`

	// TokenKeyHex is 32 bytes, hex encoded. Required in production.
	TokenKeyHex string        `env:"LETTERS_TOKEN_KEY"`
	TokenGrace  time.Duration `env:"LETTERS_TOKEN_GRACE" envDefault:"168h"`

	// SMTP - empty by default, messages are logged if not configured
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Letters"`

	EmailMaxTries     uint          `env:"LETTERS_EMAIL_MAX_TRIES" envDefault:"4"`
	EmailRetryInitial time.Duration `env:"LETTERS_EMAIL_RETRY_INITIAL" envDefault:"500ms"`
	EmailRetryMaxWait time.Duration `env:"LETTERS_EMAIL_RETRY_MAX_WAIT" envDefault:"10s"`

	// Redis - optional, guards the sweep across replicas
	RedisURL string `env:"REDIS_URL"`

	// MinIO - optional, letters are kept in the database without it
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"letters"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	OTelEndpoint string `env:"LETTERS_OTEL_ENDPOINT"`

	// SweepInterval of zero disables the in-process scheduler.
	SweepInterval time.Duration `env:"LETTERS_SWEEP_INTERVAL" envDefault:"5m"`
	SweepBatch    int           `env:"LETTERS_SWEEP_BATCH" envDefault:"200"`
	SweepLockTTL  time.Duration `env:"LETTERS_SWEEP_LOCK_TTL" envDefault:"5m"`

	// TokenKey is decoded from TokenKeyHex by Load.
	TokenKey []byte
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return parse(env.Options{})
}

// FromMap builds a Config from explicit values instead of the environment.
func FromMap(values map[string]string) (Config, error) {
	return parse(env.Options{Environment: values})
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	switch {
	case cfg.TokenKeyHex != "":
		key, err := hex.DecodeString(cfg.TokenKeyHex)
		if err != nil || len(key) != 32 {
			return Config{}, errors.New("LETTERS_TOKEN_KEY must be 32 bytes of hex")
		}
		cfg.TokenKey = key
	case cfg.IsProduction():
		return Config{}, errors.New("LETTERS_TOKEN_KEY is required in production")
	default:
		sum := blake2b.Sum256([]byte(devTokenSeed))
		cfg.TokenKey = sum[:]
	}

	if cfg.IsProduction() && (strings.TrimSpace(cfg.APIKey) == "" || cfg.APIKey == devAPIKey) {
		return Config{}, errors.New("LETTERS_API_KEY must be set in production")
	}
	if cfg.TokenGrace < 0 {
		return Config{}, errors.New("LETTERS_TOKEN_GRACE must not be negative")
	}
	if cfg.SweepBatch <= 0 {
		return Config{}, errors.New("LETTERS_SWEEP_BATCH must be positive")
	}
	if cfg.EmailMaxTries == 0 {
		cfg.EmailMaxTries = 1
	}
	return cfg, nil
}

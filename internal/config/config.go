package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

type Config struct {
	Port                string `env:"PORT" envDefault:"8080"`
	AppEnv              string `env:"APP_ENV" envDefault:"production"`
	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
	StoreDriver         string `env:"STORE_DRIVER" envDefault:"postgres"`
	DBUrl               string `env:"DB_URL"`
	JWTSecret           string `env:"JWT_SECRET"`
	PublicBaseURL       string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	FrontendURL         string `env:"FRONTEND_URL"`
	CORSOrigins         string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	CookieHashKey       string `env:"COOKIE_HASH_KEY"`
	CookieBlockKey      string `env:"COOKIE_BLOCK_KEY"`
	Timezone            string `env:"APP_TIMEZONE" envDefault:"UTC"`
	BootstrapOwnerEmail string `env:"BOOTSTRAP_OWNER_EMAIL"`
	EnableDocs          bool   `env:"ENABLE_DOCS" envDefault:"false"`

	Mongo   Mongo   `envPrefix:"MONGO_"`
	Google  Google  `envPrefix:"GOOGLE_"`
	Storage Storage `envPrefix:"MINIO_"`
}

type Mongo struct {
	URI      string `env:"URI"`
	Database string `env:"DATABASE" envDefault:"calibrate"`
}

type Google struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// Storage configures the export archive. It is optional.
type Storage struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"calibrate-exports"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

func (s Storage) Enabled() bool {
	return s.Endpoint != ""
}

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	return Parse(env.ToMap(os.Environ()))
}

// Parse builds a Config from the given variables.
func Parse(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.AppEnv = normalizeEnv(cfg.AppEnv)
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.StoreDriver {
	case StorePostgres:
		if c.DBUrl == "" {
			errs = append(errs, errors.New("DB_URL is required for the postgres store"))
		}
	case StoreMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid APP_TIMEZONE: %w", err))
	}
	for name, key := range map[string]string{"COOKIE_HASH_KEY": c.CookieHashKey, "COOKIE_BLOCK_KEY": c.CookieBlockKey} {
		if key != "" && len(key) < 32 {
			errs = append(errs, fmt.Errorf("%s must be at least 32 bytes", name))
		}
	}
	return errors.Join(errs...)
}

// Location is the time zone used for "today" in food logs.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// GoogleEnabled reports whether federated sign-in is configured.
func (c *Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

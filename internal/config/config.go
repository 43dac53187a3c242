package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type Config struct {
	Mode     Mode   `yaml:"mode"`
	HTTPAddr string `yaml:"http_addr"`
	LogMode  string `yaml:"log_mode"` // dev|prod, defaults to Mode
	LogSalt  string `yaml:"log_salt"`

	Content Content `yaml:"content"`

	DBDriver string `yaml:"db_driver"` // sqlite|postgres|none
	DBDSN    string `yaml:"db_dsn"`
	SiteID   string `yaml:"site_id"`

	RedisAddr     string        `yaml:"redis_addr"` // empty uses an in-process lock
	SubmitLockTTL time.Duration `yaml:"submit_lock_ttl"`

	// AnswerWriteConcurrency caps parallel answer writes per submission.
	AnswerWriteConcurrency int `yaml:"answer_write_concurrency"`

	AuthHMACSecret string   `yaml:"auth_hmac_secret"`
	CORSOrigins    []string `yaml:"cors_origins"`

	OTelEnabled      bool    `yaml:"otel_enabled"`
	OTelExporter     string  `yaml:"otel_exporter"` // stdout|otlp
	OTelSamplerRatio float64 `yaml:"otel_sampler_ratio"`
	ServiceName      string  `yaml:"service_name"`
}

type Content struct {
	Driver         string        `yaml:"driver"` // rest|memory
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	AuthCollection string        `yaml:"auth_collection"`
	TokenURL       string        `yaml:"token_url"`
	ClientID       string        `yaml:"client_id"`
	ClientSecret   string        `yaml:"client_secret"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

func Defaults() Config {
	return Config{
		Mode:     ModeDev,
		HTTPAddr: ":8080",
		Content: Content{
			Driver:         "rest",
			AuthCollection: "users",
			Timeout:        10 * time.Second,
			MaxRetries:     3,
		},
		DBDriver:               "sqlite",
		SiteID:                 "local",
		SubmitLockTTL:          30 * time.Second,
		AnswerWriteConcurrency: 8,
		CORSOrigins:            []string{"http://localhost:3000"},
		OTelExporter:           "stdout",
		OTelSamplerRatio:       1,
		ServiceName:            "gradingd",
	}
}

// Load layers defaults, then the YAML file named by CONFIG_FILE if any, then
// environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if cfg.LogMode == "" {
		cfg.LogMode = string(cfg.Mode)
	}
	return cfg, cfg.Validate()
}

func applyEnv(c *Config) {
	c.Mode = Mode(envOr("MODE", string(c.Mode)))
	c.HTTPAddr = envOr("HTTP_ADDR", c.HTTPAddr)
	c.LogMode = envOr("LOG_MODE", c.LogMode)
	c.LogSalt = envOr("LOG_HASH_SALT", c.LogSalt)

	c.Content.Driver = envOr("CONTENT_DRIVER", c.Content.Driver)
	c.Content.BaseURL = envOr("CONTENT_BASE_URL", c.Content.BaseURL)
	c.Content.APIKey = envOr("CONTENT_API_KEY", c.Content.APIKey)
	c.Content.AuthCollection = envOr("CONTENT_AUTH_COLLECTION", c.Content.AuthCollection)
	c.Content.TokenURL = envOr("CONTENT_TOKEN_URL", c.Content.TokenURL)
	c.Content.ClientID = envOr("CONTENT_CLIENT_ID", c.Content.ClientID)
	c.Content.ClientSecret = envOr("CONTENT_CLIENT_SECRET", c.Content.ClientSecret)
	c.Content.Timeout = envDuration("CONTENT_TIMEOUT", c.Content.Timeout)
	c.Content.MaxRetries = envInt("CONTENT_MAX_RETRIES", c.Content.MaxRetries)

	c.DBDriver = envOr("DB_DRIVER", c.DBDriver)
	c.DBDSN = envOr("DB_DSN", c.DBDSN)
	c.SiteID = envOr("SITE_ID", c.SiteID)

	c.RedisAddr = envOr("REDIS_ADDR", c.RedisAddr)
	c.SubmitLockTTL = envDuration("SUBMIT_LOCK_TTL", c.SubmitLockTTL)
	c.AnswerWriteConcurrency = envInt("ANSWER_WRITE_CONCURRENCY", c.AnswerWriteConcurrency)

	c.AuthHMACSecret = envOr("AUTH_HMAC_SECRET", c.AuthHMACSecret)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = csv(v)
	}

	c.OTelEnabled = envBool("OTEL_ENABLED", c.OTelEnabled)
	c.OTelExporter = envOr("OTEL_EXPORTER", c.OTelExporter)
	c.OTelSamplerRatio = envFloat("OTEL_SAMPLER_RATIO", c.OTelSamplerRatio)
	c.ServiceName = envOr("OTEL_SERVICE_NAME", c.ServiceName)
}

func (c Config) Validate() error {
	var errs []error
	switch c.Content.Driver {
	case "rest":
		if c.Content.BaseURL == "" {
			errs = append(errs, errors.New("CONTENT_BASE_URL is required for the rest content driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown CONTENT_DRIVER %q", c.Content.Driver))
	}
	switch c.DBDriver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}
	if c.AuthHMACSecret == "" && c.Mode == ModeProd {
		errs = append(errs, errors.New("AUTH_HMAC_SECRET is required in prod mode"))
	}
	if c.AnswerWriteConcurrency < 1 {
		errs = append(errs, fmt.Errorf("ANSWER_WRITE_CONCURRENCY must be at least 1, got %d", c.AnswerWriteConcurrency))
	}
	if c.OTelSamplerRatio < 0 || c.OTelSamplerRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLER_RATIO %v out of [0,1]", c.OTelSamplerRatio))
	}
	return errors.Join(errs...)
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil {
		return f
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return d
	}
	return def
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

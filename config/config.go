package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	raven "github.com/getsentry/raven-go"
	"github.com/joho/godotenv"

	"github.com/localpass/site-backend/util"
)

// Config is the runtime configuration for the site backend. Values come from
// the process environment, optionally seeded from a .env file.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// CaptchaEnabled selects the Turnstile-protected variant of the
	// submission endpoints.
	CaptchaEnabled     bool          `env:"CAPTCHA_ENABLED" envDefault:"true"`
	TurnstileSecret    string        `env:"TURNSTILE_SECRET_KEY"`
	TurnstileSiteKey   string        `env:"TURNSTILE_SITE_KEY"`
	TurnstileVerifyURL string        `env:"TURNSTILE_VERIFY_URL" envDefault:"https://challenges.cloudflare.com/turnstile/v0/siteverify"`
	CaptchaTimeout     time.Duration `env:"CAPTCHA_TIMEOUT" envDefault:"5s"`

	// No fallback form ID: a stale literal would silently route
	// submissions to the wrong place.
	FormspreeFormID       string        `env:"FORMSPREE_FORM_ID"`
	FormspreeStudioFormID string        `env:"FORMSPREE_STUDIO_FORM_ID"`
	FormspreeBaseURL      string        `env:"FORMSPREE_BASE_URL" envDefault:"https://formspree.io/f"`
	RelayTimeout          time.Duration `env:"RELAY_TIMEOUT" envDefault:"5s"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// Per-IP limit on submission endpoints. A limit of 0 disables throttling.
	RateLimit  int64         `env:"SUBSCRIBE_RATE_LIMIT" envDefault:"20"`
	RatePeriod time.Duration `env:"SUBSCRIBE_RATE_PERIOD" envDefault:"1h"`
	// Take the client IP from X-Forwarded-For. Enable only behind a proxy
	// that overwrites the header.
	TrustForwardHeader bool `env:"TRUST_FORWARD_HEADER" envDefault:"false"`

	// Address of the private Prometheus listener, e.g. "127.0.0.1:9090".
	// Empty disables metrics exposition.
	MetricsAddr string `env:"METRICS_ADDR"`
}

// LoadEnvFile loads variables from the given dotenv files into the process
// environment without overriding ones that are already set. Missing files
// are ignored. raven-go reads SENTRY_DSN when it is initialized, so the DSN
// is applied again once the files are loaded.
func LoadEnvFile(filenames ...string) error {
	for _, name := range filenames {
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	if err := raven.SetDSN(os.Getenv("SENTRY_DSN")); err != nil {
		return fmt.Errorf("SENTRY_DSN: %w", err)
	}
	return nil
}

// LoadEnvironmentVariables parses the environment into a Config and checks it.
// All problems are reported together.
func LoadEnvironmentVariables() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	err := cfg.Validate()
	return cfg, err
}

// Validate reports every missing or malformed setting.
func (c *Config) Validate() error {
	varErrs := util.Errors{}
	port, err := util.ValidPort(c.Port)
	varErrs.Add(err)
	if err == nil {
		c.Port = port
	}
	if c.FormspreeFormID == "" {
		varErrs.Add(errors.New("environment variable FORMSPREE_FORM_ID must be set"))
	}
	if c.CaptchaEnabled && c.TurnstileSecret == "" {
		varErrs.Add(errors.New("environment variable TURNSTILE_SECRET_KEY must be set when CAPTCHA_ENABLED is true"))
	}
	if c.CaptchaTimeout <= 0 {
		varErrs.Add(fmt.Errorf("CAPTCHA_TIMEOUT must be positive, got %s", c.CaptchaTimeout))
	}
	if c.RelayTimeout <= 0 {
		varErrs.Add(fmt.Errorf("RELAY_TIMEOUT must be positive, got %s", c.RelayTimeout))
	}
	if c.RateLimit < 0 {
		varErrs.Add(fmt.Errorf("SUBSCRIBE_RATE_LIMIT must not be negative, got %d", c.RateLimit))
	}
	if c.RateLimit > 0 && c.RatePeriod <= 0 {
		varErrs.Add(fmt.Errorf("SUBSCRIBE_RATE_PERIOD must be positive, got %s", c.RatePeriod))
	}
	return varErrs.ErrOrNil()
}

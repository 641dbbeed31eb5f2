package app

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the development backend configuration.
type Config struct {
	Addr            string        `env:"BLOG_ADDR"             envDefault:":8080"`
	DatabaseURL     string        `env:"BLOG_DATABASE_URL"     envDefault:"./blog.db"`
	SessionLifetime time.Duration `env:"BLOG_SESSION_LIFETIME" envDefault:"24h"`
	TokenSecret     string        `env:"BLOG_TOKEN_SECRET"     envDefault:"dev-secret-change-me"`
	AdminEmails     []string      `env:"BLOG_ADMIN_EMAILS"     envSeparator:","`
	CookieSecure    bool          `env:"BLOG_COOKIE_SECURE"    envDefault:"false"`
	RequestTimeout  time.Duration `env:"BLOG_REQUEST_TIMEOUT"  envDefault:"5s"`
}

// ClientConfig configures blogctl.
type ClientConfig struct {
	APIURL      string        `env:"BLOG_API_URL"      envDefault:"http://localhost:8080"`
	HTTPTimeout time.Duration `env:"BLOG_HTTP_TIMEOUT" envDefault:"10s"`
	CookieDB    string        `env:"BLOG_COOKIE_DB"    envDefault:"./blogctl.db"`
	Verbose     bool          `env:"BLOG_VERBOSE"      envDefault:"false"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.SessionLifetime <= 0 {
		cfg.SessionLifetime = 24 * time.Hour
	}
	for i, e := range cfg.AdminEmails {
		cfg.AdminEmails[i] = strings.ToLower(strings.TrimSpace(e))
	}
	return cfg, nil
}

func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := ParseEnv(&cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// IsAdminEmail reports whether email is configured as an admin account.
func (c Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, e := range c.AdminEmails {
		if e != "" && e == email {
			return true
		}
	}
	return false
}

func Must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// Package appconfig loads the process configuration of the Cherry Circuit server.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Session store kinds
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// ServerConfig holds everything the server reads from the environment
type ServerConfig struct {
	Host         string        `env:"CHERRY_HOST" envDefault:"localhost"`
	Port         int           `env:"CHERRY_PORT" envDefault:"8080"`
	ConfigDir    string        `env:"CONFIG_DIR" envDefault:"configs"`
	SessionsDir  string        `env:"SESSIONS_DIR" envDefault:"sessions"`
	SessionStore string        `env:"SESSION_STORE" envDefault:"file"`
	SQLitePath   string        `env:"SQLITE_PATH" envDefault:"sessions.db"`
	TickHz       int           `env:"TICK_HZ" envDefault:"30"`
	MaxAge       time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h"`
	SyncInterval time.Duration `env:"SESSION_SYNC_INTERVAL" envDefault:"5s"`
	Debug        bool          `env:"CHERRY_DEBUG"`

	Ngrok NgrokConfig
}

// NgrokConfig configures the optional public tunnel
type NgrokConfig struct {
	Enabled   bool   `env:"NGROK_ENABLED"`
	AuthToken string `env:"NGROK_AUTHTOKEN"`
	// Underscore spelling accepted as a fallback
	AuthTokenAlt string `env:"NGROK_AUTH_TOKEN"`
	Domain       string `env:"NGROK_DOMAIN"`
}

// Token returns the ngrok auth token from either variable
func (n NgrokConfig) Token() string {
	if n.AuthToken != "" {
		return n.AuthToken
	}
	return n.AuthTokenAlt
}

// Addr returns host:port
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the values that the env parser cannot
func (c *ServerConfig) Validate() error {
	c.SessionStore = strings.ToLower(strings.TrimSpace(c.SessionStore))
	switch c.SessionStore {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreFile, StoreSQLite, c.SessionStore)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("CHERRY_PORT out of range: %d", c.Port)
	}
	if c.TickHz < 1 || c.TickHz > 240 {
		return fmt.Errorf("TICK_HZ must be between 1 and 240, got %d", c.TickHz)
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive, got %s", c.MaxAge)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("SESSION_SYNC_INTERVAL must be positive, got %s", c.SyncInterval)
	}
	return nil
}

// LoadDotEnv loads the given .env files (".env" when none) into the process environment.
// Missing files are not an error; loaded reports whether anything was read.
func LoadDotEnv(files ...string) (loaded bool, err error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("load %s: %w", f, err)
		}
		loaded = true
	}
	return loaded, nil
}

// Load parses ServerConfig from the environment and validates it
func Load() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

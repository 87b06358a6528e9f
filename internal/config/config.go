package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "MYSTERY"

type Config struct {
	ServerAddr       string        `envconfig:"ADDR" default:":8000"`
	DatabaseDSN      string        `envconfig:"DATABASE_DSN"`
	SigningSecret    string        `envconfig:"SIGNING_KEY" required:"true"`
	AllowedOrigins   []string      `envconfig:"ALLOWED_ORIGINS"`
	PollInterval     time.Duration `envconfig:"POLL_INTERVAL" default:"2s"`
	ChatPollInterval time.Duration `envconfig:"CHAT_POLL_INTERVAL" default:"1s"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding      string        `envconfig:"LOG_ENCODING" default:"json"`

	SigningKey []byte `ignored:"true"`
}

// Load reads the configuration from the environment. If envFile is set and
// exists it is loaded first; variables already in the environment win.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Override applies non-empty command line values on top of the loaded config.
func (c *Config) Override(addr, dsn string) {
	if addr != "" {
		c.ServerAddr = addr
	}
	if dsn != "" {
		c.DatabaseDSN = dsn
	}
}

func (c *Config) finalize() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.SigningSecret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}
	if c.PollInterval <= 0 || c.ChatPollInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}

	signingKey, err := decodeSigningSecret(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = signingKey

	return nil
}

// StoreConfigured reports whether the durable store can be used. When it is
// false the process runs against the in-memory demo store.
func (c *Config) StoreConfigured() bool {
	dsn := strings.TrimSpace(c.DatabaseDSN)
	if dsn == "" {
		return false
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		return err == nil && u.Host != ""
	}

	// key=value connection string
	return strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=")
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("signing key is empty")
	}
	return key, nil
}

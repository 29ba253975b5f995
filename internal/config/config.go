// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/cache"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

type Config struct {
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	SnowflakeNode int64  `env:"SNOWFLAKE_NODE" envDefault:"1"`

	Log      utilities.Config
	Database database.Config
	Cache    cache.Config
	Auth     auth.Config
}

// Load reads the given .env files (".env" when none are named; missing
// files are skipped), then parses the environment. Variables already set in
// the process win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if _, err := cfg.SigningKey(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SigningKey decodes JWT_SECRET.
func (c Config) SigningKey() ([]byte, error) {
	return auth.DecodeSecret(c.Auth.Secret)
}

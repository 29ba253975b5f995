package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

// clearEnv unsets keys for the test; t.Setenv restores them afterwards.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "HTTP_ADDR", "DATABASE_DRIVER", "DATABASE_MAX_CONNS", "CACHE_TTL",
		"CACHE_MAX_ENTRIES", "REDIS_ADDR", "JWT_TTL")
	t.Setenv("JWT_SECRET", secret)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Database.MaxConns)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 10000, cfg.Cache.MaxEntries)
	assert.Empty(t, cfg.Cache.RedisAddr)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TTL)

	key, err := cfg.SigningKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "JWT_SECRET=" + secret + "\n" +
		"DATABASE_DRIVER=sqlite\n" +
		"DATABASE_URL=file:test.db\n" +
		"CACHE_TTL=30s\n" +
		"LOG_DEV=true\n" +
		"HTTP_ADDR=127.0.0.1:9000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	clearEnv(t, "JWT_SECRET", "DATABASE_DRIVER", "DATABASE_URL", "CACHE_TTL", "LOG_DEV")
	t.Setenv("HTTP_ADDR", "127.0.0.1:7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:test.db", cfg.Database.DSN)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.True(t, cfg.Log.Dev)
	assert.Equal(t, "127.0.0.1:7000", cfg.HTTPAddr, "process env wins over the file")
}

func TestLoadRejectsBadSecret(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Setenv("JWT_SECRET", "")
	_, err := Load(missing)
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", base64.StdEncoding.EncodeToString([]byte("too-short")))
	_, err = Load(missing)
	assert.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("CACHE_TTL", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

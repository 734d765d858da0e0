package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp keeps a stray .env in the working directory out of the test.
func chdirTemp(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	for _, key := range []string{"ACCESS_TOKEN_SECRET", "COEDIT_DB_DRIVER", "PORT", "LOG_LEVEL", "CACHE_DRIVER", "EMAIL_PORT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Execution.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Execution.PollInterval)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoadFiles(t *testing.T) {
	chdirTemp(t)

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "json",
			file:    "config.json",
			content: `{"server":{"port":9000},"log_level":"debug","auth":{"token_secret":"s"}}`,
		},
		{
			name: "toml",
			file: "config.toml",
			content: `log_level = "debug"
[server]
port = 9000
[auth]
token_secret = "s"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 9000, cfg.Server.Port)
			assert.Equal(t, "debug", cfg.LogLevel)
			assert.Equal(t, "s", cfg.Auth.TokenSecret)
			assert.Equal(t, "badger", cfg.Database.Driver)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ACCESS_TOKEN_SECRET", "secret")
	t.Setenv("COEDIT_DB_DRIVER", "mongo")
	t.Setenv("PORT", "7000")
	t.Setenv("CACHE_DRIVER", "redis")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Auth.TokenSecret)
	assert.Equal(t, "mongo", cfg.Database.Driver)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "0.0.0.0:7000", cfg.Addr())
}

func TestLoadBadPort(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PORT", "eighty")

	_, err := Load(filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"no secret", func(c *Config) { c.Auth.TokenSecret = "" }, false},
		{"bad driver", func(c *Config) { c.Database.Driver = "sqlite" }, false},
		{"bad cache", func(c *Config) { c.Cache.Driver = "memcached" }, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.TokenSecret = "secret"
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

// internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		Host        string `json:"host" toml:"host"`
		Port        int    `json:"port" toml:"port"`
		FrontendURL string `json:"frontend_url" toml:"frontend_url"`
	} `json:"server" toml:"server"`

	Database struct {
		Driver        string `json:"driver" toml:"driver"` // badger, mongo
		Path          string `json:"path" toml:"path"`
		MongoURI      string `json:"mongo_uri" toml:"mongo_uri"`
		MongoDatabase string `json:"mongo_database" toml:"mongo_database"`
	} `json:"database" toml:"database"`

	Auth struct {
		TokenSecret string        `json:"token_secret" toml:"token_secret"`
		TokenTTL    time.Duration `json:"token_ttl" toml:"token_ttl"`
	} `json:"auth" toml:"auth"`

	Execution struct {
		URL          string        `json:"url" toml:"url"`
		APIKey       string        `json:"api_key" toml:"api_key"`
		PollInterval time.Duration `json:"poll_interval" toml:"poll_interval"`
		MaxAttempts  int           `json:"max_attempts" toml:"max_attempts"`
	} `json:"execution" toml:"execution"`

	Email struct {
		Host     string `json:"host" toml:"host"`
		Port     int    `json:"port" toml:"port"`
		User     string `json:"user" toml:"user"`
		Password string `json:"password" toml:"password"`
	} `json:"email" toml:"email"`

	Cache struct {
		Driver        string        `json:"driver" toml:"driver"` // lru, redis
		Size          int           `json:"size" toml:"size"`
		TTL           time.Duration `json:"ttl" toml:"ttl"`
		RedisAddr     string        `json:"redis_addr" toml:"redis_addr"`
		RedisPassword string        `json:"redis_password" toml:"redis_password"`
	} `json:"cache" toml:"cache"`

	Environment string `json:"environment" toml:"environment"` // development, production
	LogLevel    string `json:"log_level" toml:"log_level"`     // debug, info, warn, error
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var c Config
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 5000
	c.Server.FrontendURL = "http://localhost:5173"
	c.Database.Driver = "badger"
	c.Database.Path = "data"
	c.Database.MongoURI = "mongodb://localhost:27017"
	c.Database.MongoDatabase = "coedit"
	c.Auth.TokenTTL = 24 * time.Hour
	c.Execution.URL = "https://judge0-ce.p.rapidapi.com/submissions"
	c.Execution.PollInterval = time.Second
	c.Execution.MaxAttempts = 10
	c.Email.Port = 587
	c.Cache.Driver = "lru"
	c.Cache.Size = 1024
	c.Cache.TTL = 10 * time.Minute
	c.Cache.RedisAddr = "localhost:6379"
	c.Environment = "development"
	c.LogLevel = "info"
	return &c
}

func getConfigPath() string {
	env := os.Getenv("COEDIT_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load reads path (JSON, or TOML for a .toml suffix) over the defaults, then
// applies a .env file and the environment. An empty path picks the file for
// COEDIT_ENV. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = getConfigPath()
	}

	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	if strings.HasSuffix(path, ".toml") {
		_, err := toml.DecodeFile(path, cfg)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
		return nil
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Database.Driver = getenvStr("COEDIT_DB_DRIVER", c.Database.Driver)
	c.Database.Path = getenvStr("COEDIT_DB_PATH", c.Database.Path)
	c.Database.MongoURI = getenvStr("MONGO_URI", c.Database.MongoURI)
	c.Database.MongoDatabase = getenvStr("MONGO_DATABASE", c.Database.MongoDatabase)

	c.Auth.TokenSecret = getenvStr("ACCESS_TOKEN_SECRET", c.Auth.TokenSecret)

	c.Execution.APIKey = getenvStr("RAPIDAPI_KEY", c.Execution.APIKey)
	c.Execution.URL = getenvStr("JUDGE0_URL", c.Execution.URL)

	c.Email.User = getenvStr("EMAIL_USER", c.Email.User)
	c.Email.Password = getenvStr("EMAIL_PASSWORD", c.Email.Password)
	c.Email.Host = getenvStr("EMAIL_HOST", c.Email.Host)

	c.Server.FrontendURL = getenvStr("FRONTEND_URL", c.Server.FrontendURL)
	c.Server.Host = getenvStr("HOST", c.Server.Host)
	c.LogLevel = getenvStr("LOG_LEVEL", c.LogLevel)

	c.Cache.Driver = getenvStr("CACHE_DRIVER", c.Cache.Driver)
	c.Cache.RedisAddr = getenvStr("REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.RedisPassword = getenvStr("REDIS_PASSWORD", c.Cache.RedisPassword)

	var err error
	if c.Email.Port, err = getenvInt("EMAIL_PORT", c.Email.Port); err != nil {
		return fmt.Errorf("EMAIL_PORT: %w", err)
	}
	if c.Server.Port, err = getenvInt("PORT", c.Server.Port); err != nil {
		return fmt.Errorf("PORT: %w", err)
	}
	return nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("ACCESS_TOKEN_SECRET is required")
	}
	switch c.Database.Driver {
	case "badger":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for badger")
		}
	case "mongo":
		if c.Database.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for mongo")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Cache.Driver {
	case "lru", "redis":
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getenvStr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	if value, ok := os.LookupEnv(key); ok {
		return strconv.Atoi(value)
	}
	return fallback, nil
}

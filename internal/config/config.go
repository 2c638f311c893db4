package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models teaminova.yml.
type Config struct {
	Store struct {
		DSN            string `yaml:"dsn"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"store"`
	Defaults struct {
		Project string `yaml:"project"`
	} `yaml:"defaults"`
	Auth struct {
		LegacyAdminEmail string `yaml:"legacy_admin_email"`
		JWTSecretEnv     string `yaml:"jwt_secret_env"`
	} `yaml:"auth"`
	Cache struct {
		RedisAddr  string `yaml:"redis_addr"`
		TTLSeconds int    `yaml:"ttl_seconds"`
	} `yaml:"cache"`
	Server struct {
		Addr        string   `yaml:"addr"`
		BasePath    string   `yaml:"base_path"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Identity struct {
		FirebaseCredentials string `yaml:"firebase_credentials"`
	} `yaml:"identity"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig describes one outbound notice endpoint.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
	Actions        []string `yaml:"actions"`
	FailuresOnly   bool     `yaml:"failures_only"`
}

const (
	DefaultStoreTimeout = 10 * time.Second
	DefaultCacheTTL     = 5 * time.Minute
	DefaultAddr         = "127.0.0.1:8080"
	DefaultBasePath     = "/v1"
	DefaultJWTSecretEnv = "TEAMINOVA_JWT_SECRET"
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with tm config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns Default() if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Store.TimeoutSeconds < 0 {
		return fmt.Errorf("config.store.timeout_seconds must not be negative")
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("config.cache.ttl_seconds must not be negative")
	}
	if bp := c.Server.BasePath; bp != "" && !strings.HasPrefix(bp, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if !strings.HasPrefix(hook.URL, "http://") && !strings.HasPrefix(hook.URL, "https://") {
			return fmt.Errorf("config.webhooks[%d].url must be http(s)", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

func (c *Config) StoreTimeout() time.Duration {
	if c == nil || c.Store.TimeoutSeconds <= 0 {
		return DefaultStoreTimeout
	}
	return time.Duration(c.Store.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	if c == nil || c.Cache.TTLSeconds <= 0 {
		return DefaultCacheTTL
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	if c == nil || c.Server.Addr == "" {
		return DefaultAddr
	}
	return c.Server.Addr
}

func (c *Config) BasePath() string {
	if c == nil || c.Server.BasePath == "" {
		return DefaultBasePath
	}
	return strings.TrimRight(c.Server.BasePath, "/")
}

func (c *Config) JWTSecretEnv() string {
	if c == nil || c.Auth.JWTSecretEnv == "" {
		return DefaultJWTSecretEnv
	}
	return c.Auth.JWTSecretEnv
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "teaminova.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `store:
  # sqlite under .teaminova/ when empty; postgres://... for PostgreSQL
  dsn: ""
  timeout_seconds: 10

defaults:
  project: ""

auth:
  legacy_admin_email: ""
  jwt_secret_env: TEAMINOVA_JWT_SECRET

cache:
  redis_addr: ""
  ttl_seconds: 300

server:
  addr: 127.0.0.1:8080
  base_path: /v1
  cors_origins: []

identity:
  firebase_credentials: ""

webhooks: []
`

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Agent backend modes.
const (
	AgentModeScripted = "scripted"
	AgentModeHTTP     = "http"
	AgentModeModel    = "model"
)

// Config represents runtime configuration for the site server.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Agent       AgentConfig               `json:"agent"`
	Contact     ContactConfig             `json:"contact"`
	RabbitMQ    RabbitMQConfig            `json:"rabbitmq"`
}

type BasicConfig struct {
	ServerAddress      string   `json:"server_address"`
	GinMode            string   `json:"gin_mode"`
	TokenTTLHours      int      `json:"token_ttl_hours"`
	SessionIdleMinutes int      `json:"session_idle_minutes"`
	ChatQueueLength    int      `json:"chat_queue_length"`
	AllowedOrigins     []string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// AgentConfig selects and tunes the backend answering demo chat messages.
type AgentConfig struct {
	Mode           string `json:"mode"`
	Endpoint       string `json:"endpoint"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	SigningKey     string `json:"signing_key"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	SystemPrompt   string `json:"system_prompt"`
	WebSearch      bool   `json:"web_search"`
	ReplyDelayMS   int    `json:"reply_delay_ms"`
}

type ContactConfig struct {
	FormURL        string `json:"form_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type RabbitMQConfig struct {
	URL   string `json:"url"`
	Queue string `json:"queue"`
}

const (
	DefaultServerAddress = ":8090"
	DefaultSQLiteDSN     = "data/coralbricks.db"
	defaultQueueLength   = 16
)

// Load reads configuration from the provided path (defaults to config.json).
// A missing file is not an error: the defaults plus environment overrides
// describe a working local setup.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	for name, dbCfg := range cfg.Databases {
		if !isSQLite(name) || dbCfg.DSN == "" || dbCfg.DSN == ":memory:" || filepath.IsAbs(dbCfg.DSN) {
			continue
		}
		dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
		cfg.Databases[name] = dbCfg
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration combinations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Agent.Mode {
	case AgentModeScripted:
	case AgentModeHTTP:
		if strings.TrimSpace(c.Agent.Endpoint) == "" {
			return errors.New("agent.endpoint must be configured for http mode")
		}
	case AgentModeModel:
		if _, ok := c.Providers[c.Agent.Provider]; !ok {
			return fmt.Errorf("agent provider %q not configured", c.Agent.Provider)
		}
	default:
		return fmt.Errorf("unsupported agent mode: %s", c.Agent.Mode)
	}
	return nil
}

// DatabaseDriver returns the driver selected through CORALBRICKS_DB, or sqlite3.
func DatabaseDriver() string {
	if v := strings.TrimSpace(os.Getenv("CORALBRICKS_DB")); v != "" {
		return v
	}
	return "sqlite3"
}

func (b BasicConfig) TokenTTL() time.Duration {
	return time.Duration(b.TokenTTLHours) * time.Hour
}

func (b BasicConfig) SessionIdle() time.Duration {
	return time.Duration(b.SessionIdleMinutes) * time.Minute
}

func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func (a AgentConfig) ReplyDelay() time.Duration {
	return time.Duration(a.ReplyDelayMS) * time.Millisecond
}

func (c ContactConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AGENT_ENDPOINT"); v != "" {
		cfg.Agent.Endpoint = v
		if cfg.Agent.Mode == "" {
			cfg.Agent.Mode = AgentModeHTTP
		}
	}
	if v := os.Getenv("AGENT_SIGNING_KEY"); v != "" {
		cfg.Agent.SigningKey = v
	}
	if v := os.Getenv("CONTACT_FORM_URL"); v != "" {
		cfg.Contact.FormURL = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		cfg.RabbitMQ.URL = v
	}
	for name, provCfg := range cfg.Providers {
		key := strings.ToUpper(name) + "_API_KEY"
		if v := os.Getenv(key); v != "" {
			provCfg.APIKey = v
			cfg.Providers[name] = provCfg
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.BasicConfig.ServerAddress == "" {
		cfg.BasicConfig.ServerAddress = DefaultServerAddress
	}
	if cfg.BasicConfig.TokenTTLHours <= 0 {
		cfg.BasicConfig.TokenTTLHours = 24
	}
	if cfg.BasicConfig.SessionIdleMinutes <= 0 {
		cfg.BasicConfig.SessionIdleMinutes = 30
	}
	if cfg.BasicConfig.ChatQueueLength <= 0 {
		cfg.BasicConfig.ChatQueueLength = defaultQueueLength
	}
	if len(cfg.Databases) == 0 {
		cfg.Databases = map[string]DatabaseConfig{
			"sqlite3": {DSN: DefaultSQLiteDSN},
		}
	}
	if cfg.Agent.Mode == "" {
		cfg.Agent.Mode = AgentModeScripted
	}
	if cfg.Agent.TimeoutSeconds <= 0 {
		cfg.Agent.TimeoutSeconds = 60
	}
	if cfg.Contact.TimeoutSeconds <= 0 {
		cfg.Contact.TimeoutSeconds = 10
	}
	if cfg.RabbitMQ.Queue == "" {
		cfg.RabbitMQ.Queue = "coralbricks.contact"
	}
}

func isSQLite(name string) bool {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Journal JournalConfig `mapstructure:"journal"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type EngineConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	WebSocketURL     string        `mapstructure:"websocket_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
}

type ProxyConfig struct {
	ImagePath string `mapstructure:"image_path"`
}

type JournalConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	JSONFormat bool   `mapstructure:"json_format"`
}

func Load() (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env", ".env.local")

	v := viper.New()

	// Set defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.max_concurrent_jobs", 0)
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("engine.base_url", "http://localhost:8188")
	v.SetDefault("engine.websocket_url", "ws://localhost:8188/ws")
	v.SetDefault("engine.timeout", "30s")
	v.SetDefault("engine.handshake_timeout", "10s")
	v.SetDefault("engine.ping_interval", "10s")
	v.SetDefault("engine.read_timeout", "30s")
	v.SetDefault("proxy.image_path", "/proxy/image")
	v.SetDefault("journal.path", "data/jobs.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json_format", false)

	// Config file locations
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/comfy-bridge")

	// Environment variables
	v.SetEnvPrefix("COMFY_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxConcurrentJobs < 0 {
		return fmt.Errorf("server.max_concurrent_jobs must not be negative")
	}
	if err := validateURL("engine.base_url", c.Engine.BaseURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("engine.websocket_url", c.Engine.WebSocketURL, "ws", "wss"); err != nil {
		return err
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("engine.timeout must be positive")
	}
	if c.Engine.PingInterval <= 0 || c.Engine.ReadTimeout <= c.Engine.PingInterval {
		return fmt.Errorf("engine.read_timeout must be greater than engine.ping_interval")
	}
	if !strings.HasPrefix(c.Proxy.ImagePath, "/") {
		return fmt.Errorf("proxy.image_path must start with /")
	}
	return nil
}

func validateURL(key, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of %v, got %q", key, schemes, u.Scheme)
}

// Package config loads the gateway configuration from an optional YAML file
// overlaid with SUWATHA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigFile         = "SUWATHA_CONFIG_FILE"
	suwathaDirName        = ".suwatha"
	defaultConfigFileName = "config.yaml"
)

const (
	DefaultHTTPAddr        = ":8080"
	DefaultAdminSocketPath = ".suwatha/run/admin.sock"
	DefaultPublicBaseURL   = "http://localhost:8080"
	DefaultLogLevel        = "info"
	DefaultDBDriver        = "sqlite"
	DefaultDBDSN           = "suwatha.db"
	DefaultAMQPExchange    = "suwatha.notifications"
	DefaultSMTPPort        = 587
	DefaultShutdownTimeout = 10 * time.Second
)

type Config struct {
	HTTPAddr        string        `yaml:"http_addr" env:"SUWATHA_HTTP_ADDR"`
	AdminSocketPath string        `yaml:"admin_socket_path" env:"SUWATHA_ADMIN_SOCKET_PATH"`
	PublicBaseURL   string        `yaml:"public_base_url" env:"SUWATHA_PUBLIC_BASE_URL"`
	LogLevel        string        `yaml:"log_level" env:"SUWATHA_LOG_LEVEL"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SUWATHA_SHUTDOWN_TIMEOUT"`

	DB     DBConfig     `yaml:"db" envPrefix:"SUWATHA_DB_"`
	Auth   AuthConfig   `yaml:"auth" envPrefix:"SUWATHA_AUTH_"`
	Notify NotifyConfig `yaml:"notify" envPrefix:"SUWATHA_NOTIFY_"`
	SMTP   SMTPConfig   `yaml:"smtp" envPrefix:"SUWATHA_SMTP_"`
}

type DBConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTIssuer string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
}

type NotifyConfig struct {
	WebhookURLs      []string `yaml:"webhook_urls" env:"WEBHOOK_URLS"`
	WebhookSecret    string   `yaml:"webhook_secret" env:"WEBHOOK_SECRET"`
	DiscordBotToken  string   `yaml:"discord_bot_token" env:"DISCORD_BOT_TOKEN"`
	DiscordChannelID string   `yaml:"discord_channel_id" env:"DISCORD_CHANNEL_ID"`
	AMQPURL          string   `yaml:"amqp_url" env:"AMQP_URL"`
	AMQPExchange     string   `yaml:"amqp_exchange" env:"AMQP_EXCHANGE"`
}

type SMTPConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	From     string `yaml:"from" env:"FROM"`
}

func (s SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

func Default() Config {
	return Config{
		HTTPAddr:        DefaultHTTPAddr,
		AdminSocketPath: DefaultAdminSocketPath,
		PublicBaseURL:   DefaultPublicBaseURL,
		LogLevel:        DefaultLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		DB:              DBConfig{Driver: DefaultDBDriver, DSN: DefaultDBDSN},
		Notify:          NotifyConfig{AMQPExchange: DefaultAMQPExchange},
		SMTP:            SMTPConfig{Port: DefaultSMTPPort},
	}
}

// Load applies defaults, then the config file if one is found, then the
// environment. Unset variables leave earlier values in place.
func Load() (Config, error) {
	cfg := Default()

	path, ok, err := resolveConfigFilePath()
	if err != nil {
		return Config{}, err
	}
	if ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.HTTPAddr = strings.TrimSpace(c.HTTPAddr)
	c.AdminSocketPath = strings.TrimSpace(c.AdminSocketPath)
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	c.DB.DSN = strings.TrimSpace(c.DB.DSN)
	c.Notify.AMQPExchange = strings.TrimSpace(c.Notify.AMQPExchange)

	urls := c.Notify.WebhookURLs[:0]
	for _, raw := range c.Notify.WebhookURLs {
		if v := strings.TrimSpace(raw); v != "" {
			urls = append(urls, v)
		}
	}
	c.Notify.WebhookURLs = urls
}

func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("SUWATHA_HTTP_ADDR must not be empty")
	}
	if c.AdminSocketPath == "" {
		return errors.New("SUWATHA_ADMIN_SOCKET_PATH must not be empty")
	}
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return errors.New("SUWATHA_DB_DRIVER must be sqlite or postgres")
	}
	if c.DB.DSN == "" {
		return errors.New("SUWATHA_DB_DSN must not be empty")
	}
	base, err := url.Parse(c.PublicBaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("SUWATHA_PUBLIC_BASE_URL must be an absolute url, got %q", c.PublicBaseURL)
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("SUWATHA_AUTH_JWT_SECRET must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SUWATHA_SHUTDOWN_TIMEOUT must be > 0")
	}
	for _, raw := range c.Notify.WebhookURLs {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("SUWATHA_NOTIFY_WEBHOOK_URLS has invalid url %q", raw)
		}
	}
	if (c.Notify.DiscordBotToken == "") != (c.Notify.DiscordChannelID == "") {
		return errors.New("SUWATHA_NOTIFY_DISCORD_BOT_TOKEN and SUWATHA_NOTIFY_DISCORD_CHANNEL_ID must be set together")
	}
	if c.SMTP.Enabled() {
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return errors.New("SUWATHA_SMTP_PORT must be a valid port")
		}
		if strings.TrimSpace(c.SMTP.From) == "" {
			return errors.New("SUWATHA_SMTP_FROM must not be empty when SMTP is enabled")
		}
	}
	return nil
}

func resolveConfigFilePath() (string, bool, error) {
	if explicit := strings.TrimSpace(os.Getenv(EnvConfigFile)); explicit != "" {
		info, err := os.Stat(explicit)
		if err != nil {
			return "", false, fmt.Errorf("config file %s: %w", explicit, err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config file %s is a directory", explicit)
		}
		return explicit, true, nil
	}

	candidate := filepath.Join(suwathaDirName, defaultConfigFileName)
	info, err := os.Stat(candidate)
	if err == nil {
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %s is a directory", candidate)
		}
		return candidate, true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", false, fmt.Errorf("stat config file %s: %w", candidate, err)
	}
	return "", false, nil
}

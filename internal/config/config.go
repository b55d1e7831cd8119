package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Feed      FeedConfig      `yaml:"feed"`
	History   HistoryConfig   `yaml:"history"`
	Risk      RiskConfig      `yaml:"risk"`
	HTTP      HTTPConfig      `yaml:"http"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Journal   JournalConfig   `yaml:"journal"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
}

type FeedConfig struct {
	URL            string        `yaml:"url" default:"wss://stream.binance.com:9443/ws" validate:"required,url"`
	Symbol         string        `yaml:"symbol" default:"PAXGUSDT" validate:"required,alphanum"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"3s" validate:"gt=0"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s" validate:"gte=0"`
	QueueSize      int           `yaml:"queue_size" default:"1024" validate:"gt=0"`
	RESTURL        string        `yaml:"rest_url" default:"https://api.binance.com" validate:"required,url"`
	RESTTimeout    time.Duration `yaml:"rest_timeout" default:"10s" validate:"gt=0"`
	// CheckSymbol looks the symbol up over REST before subscribing.
	CheckSymbol *bool `yaml:"check_symbol" default:"true"`
}

func (f FeedConfig) CheckSymbolValue() bool {
	return f.CheckSymbol == nil || *f.CheckSymbol
}

type HistoryConfig struct {
	Interval time.Duration `yaml:"interval" default:"1m" validate:"gt=0"`
	// Align fires samples on wall-clock multiples of Interval.
	Align *bool `yaml:"align" default:"true"`
}

func (h HistoryConfig) AlignValue() bool {
	return h.Align == nil || *h.Align
}

type RiskConfig struct {
	MaxFeedAge time.Duration `yaml:"max_feed_age" default:"30s" validate:"gte=0"`
}

type HTTPConfig struct {
	Enabled *bool  `yaml:"enabled" default:"true"`
	Address string `yaml:"address" default:"127.0.0.1:8080" validate:"required,hostname_port"`
}

func (h HTTPConfig) EnabledValue() bool {
	return h.Enabled == nil || *h.Enabled
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled == nil || *m.Enabled
}

type JournalConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SQLitePath string `yaml:"sqlite_path" default:"data/sentinel.db"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema" default:"public"`
	QueueSize       int           `yaml:"queue_size" default:"256" validate:"gte=0"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"gte=0"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr" default:"127.0.0.1:6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Key      string        `yaml:"key" default:"sentinel:snapshot"`
	Channel  string        `yaml:"channel" default:"sentinel:snapshots"`
	TTL      time.Duration `yaml:"ttl" default:"5m" validate:"gte=0"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"sentinel.snapshots"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s" validate:"gte=0"`
	Async        bool          `yaml:"async"`
}

type TelegramConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Token       string        `yaml:"token"`
	ChatID      string        `yaml:"chat_id"`
	MinInterval time.Duration `yaml:"min_interval" default:"1m" validate:"gte=0"`
	Burst       int           `yaml:"burst" default:"1" validate:"gte=1"`
}

var validate = validator.New()

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	return &cfg, validateConfig(&cfg)
}

// Default returns a config with every default applied, for runs without a file.
func Default() (*Config, error) {
	var cfg Config
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	return &cfg, validateConfig(&cfg)
}

func applyDefaults(cfg *Config) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	cfg.Feed.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Feed.Symbol))
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SENTINEL_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("SENTINEL_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("SENTINEL_TIMESCALE_DSN")); v != "" {
		cfg.Timescale.DSN = v
	}
	if v := os.Getenv("SENTINEL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
}

func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Metrics.EnabledValue() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Journal.Enabled && strings.TrimSpace(cfg.Journal.SQLitePath) == "" {
		return errors.New("journal.sqlite_path is required when journal is enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required when kafka is enabled")
		}
		if strings.TrimSpace(cfg.Kafka.Topic) == "" {
			return errors.New("kafka.topic is required when kafka is enabled")
		}
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	if err := applyDefaults(cfg); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("expected info log level, got %q", cfg.Log.Level)
	}
	if cfg.Feed.Symbol != "PAXGUSDT" {
		t.Fatalf("expected PAXGUSDT, got %q", cfg.Feed.Symbol)
	}
	if cfg.Feed.URL != "wss://stream.binance.com:9443/ws" {
		t.Fatalf("unexpected feed url %q", cfg.Feed.URL)
	}
	if cfg.Feed.ReconnectDelay != 3*time.Second {
		t.Fatalf("expected 3s reconnect delay, got %v", cfg.Feed.ReconnectDelay)
	}
	if cfg.Feed.QueueSize != 1024 {
		t.Fatalf("expected queue size 1024, got %d", cfg.Feed.QueueSize)
	}
	if cfg.Feed.RESTURL != "https://api.binance.com" || !cfg.Feed.CheckSymbolValue() {
		t.Fatalf("expected symbol check against api.binance.com, got %+v", cfg.Feed)
	}
	if cfg.History.Interval != time.Minute || !cfg.History.AlignValue() {
		t.Fatalf("expected aligned 1m history sampling, got %+v", cfg.History)
	}
	if !cfg.Metrics.EnabledValue() || cfg.Metrics.Path != "/metrics" {
		t.Fatalf("expected metrics enabled at /metrics, got %+v", cfg.Metrics)
	}
	if cfg.Telegram.Burst != 1 || cfg.Telegram.MinInterval != time.Minute {
		t.Fatalf("unexpected telegram defaults %+v", cfg.Telegram)
	}
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadRespectsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "" +
		"feed:\n" +
		"  symbol: btcusdt\n" +
		"  reconnect_delay: 500ms\n" +
		"history:\n" +
		"  interval: 1s\n" +
		"  align: false\n" +
		"metrics:\n" +
		"  enabled: false\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Feed.Symbol != "BTCUSDT" {
		t.Fatalf("expected upper-cased symbol, got %q", cfg.Feed.Symbol)
	}
	if cfg.Feed.ReconnectDelay != 500*time.Millisecond {
		t.Fatalf("expected 500ms reconnect delay, got %v", cfg.Feed.ReconnectDelay)
	}
	if cfg.History.Interval != time.Second || cfg.History.AlignValue() {
		t.Fatalf("expected unaligned 1s history, got %+v", cfg.History)
	}
	if cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics disabled")
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := &Config{Log: LoggingConfig{Level: "verbose"}}
	if err := applyDefaults(cfg); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}

func TestValidateRejectsNegativePingInterval(t *testing.T) {
	cfg := &Config{Feed: FeedConfig{PingInterval: -time.Second}}
	if err := applyDefaults(cfg); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected error for negative ping interval")
	}
}

func TestValidateRejectsMetricsPathWithoutSlash(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Path: "metrics"}}
	if err := applyDefaults(cfg); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected error for metrics path without leading slash")
	}
}

func TestValidateRejectsTimescaleWithoutDSN(t *testing.T) {
	t.Setenv("SENTINEL_TIMESCALE_DSN", "")
	cfg := &Config{Timescale: TimescaleConfig{Enabled: true}}
	if err := applyDefaults(cfg); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	applyEnvOverrides(cfg)
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected error for missing timescale dsn")
	}
}

func TestValidateRejectsKafkaWithoutBrokers(t *testing.T) {
	cfg := &Config{Kafka: KafkaConfig{Enabled: true}}
	if err := applyDefaults(cfg); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected error for missing kafka brokers")
	}
}

func TestValidateRejectsTelegramEnabledWithoutConfig(t *testing.T) {
	t.Setenv("SENTINEL_TELEGRAM_TOKEN", "")
	t.Setenv("SENTINEL_TELEGRAM_CHAT_ID", "")
	cfg := &Config{Telegram: TelegramConfig{Enabled: true}}
	if err := applyDefaults(cfg); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	applyEnvOverrides(cfg)
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected error for missing telegram token/chat_id")
	}
}

func TestTelegramEnvOverridesConfig(t *testing.T) {
	t.Setenv("SENTINEL_TELEGRAM_TOKEN", "env-token")
	t.Setenv("SENTINEL_TELEGRAM_CHAT_ID", "123")
	cfg := &Config{Telegram: TelegramConfig{Enabled: true, Token: "config-token", ChatID: "999"}}
	if err := applyDefaults(cfg); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	applyEnvOverrides(cfg)
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("expected env token override, got %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.ChatID != "123" {
		t.Fatalf("expected env chat id override, got %q", cfg.Telegram.ChatID)
	}
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("expected valid config with env overrides, got %v", err)
	}
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.Feed.Symbol != "PAXGUSDT" || cfg.History.Interval != time.Minute {
		t.Fatalf("unexpected example config %+v", cfg.Feed)
	}
	if cfg.Journal.Enabled || cfg.Timescale.Enabled || cfg.Redis.Enabled || cfg.Kafka.Enabled {
		t.Fatalf("expected optional sinks disabled in example")
	}
}

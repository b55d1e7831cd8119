package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"flux-sentinel/internal/config"
	"flux-sentinel/internal/stats"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const telegramBaseURL = "https://api.telegram.org"

// ErrRateLimited is returned when an alert is skipped to respect min_interval.
var ErrRateLimited = errors.New("telegram alert rate limited")

type Telegram struct {
	enabled bool
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL, &http.Client{Timeout: 10 * time.Second})
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.MinInterval > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), burst)
	}
	return &Telegram{
		enabled: cfg.Enabled,
		token:   strings.TrimSpace(cfg.Token),
		chatID:  strings.TrimSpace(cfg.ChatID),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: limiter,
		log:     log,
	}
}

func (t *Telegram) Enabled() bool {
	return t != nil && t.enabled
}

// NotifyRegime reports a regime transition. Transitions arriving faster than
// the limiter allows are skipped with ErrRateLimited.
func (t *Telegram) NotifyRegime(ctx context.Context, symbol string, from stats.Regime, snap stats.Snapshot) error {
	if !t.Enabled() {
		return nil
	}
	if !t.limiter.Allow() {
		t.log.Debug("regime alert skipped", zap.String("regime", string(snap.Regime)))
		return ErrRateLimited
	}
	return t.Send(ctx, FormatRegimeChange(symbol, from, snap))
}

func FormatRegimeChange(symbol string, from stats.Regime, snap stats.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s regime %s -> %s\n", symbol, from, snap.Regime)
	fmt.Fprintf(&b, "price %.2f  vol %.4f  z %.2f\n", snap.Price, snap.Volatility, snap.ZScore)
	fmt.Fprintf(&b, "rsi %.1f  premium %.2f%%\n", snap.RSI, snap.RiskPremium*100)
	fmt.Fprintf(&b, "bull %.2f  bear %.2f", snap.Vectors.Bull, snap.Vectors.Bear)
	return b.String()
}

func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.Enabled() {
		return nil
	}
	if t.token == "" || t.chatID == "" {
		return errors.New("telegram token and chat_id are required")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("telegram message is empty")
	}
	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    message,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("telegram send failed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			desc := strings.TrimSpace(result.Description)
			if desc == "" {
				desc = "unknown telegram error"
			}
			return fmt.Errorf("telegram send failed: %s", desc)
		}
	}
	return nil
}

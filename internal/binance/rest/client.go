package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrUnknownSymbol    = errors.New("unknown symbol")
	ErrSymbolNotTrading = errors.New("symbol not trading")
)

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Symbol looks the symbol up in exchangeInfo.
func (c *Client) Symbol(ctx context.Context, symbol string) (SymbolInfo, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	var resp struct {
		Symbols []SymbolInfo `json:"symbols"`
	}
	status, err := c.get(ctx, "/api/v3/exchangeInfo", url.Values{"symbol": {symbol}}, &resp)
	if err != nil {
		if status == http.StatusBadRequest {
			return SymbolInfo{}, fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
		}
		return SymbolInfo{}, err
	}
	for _, info := range resp.Symbols {
		if info.Symbol == symbol {
			return info, nil
		}
	}
	return SymbolInfo{}, fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
}

// CheckTradable fails unless the symbol exists and is in TRADING status.
func (c *Client) CheckTradable(ctx context.Context, symbol string) (SymbolInfo, error) {
	info, err := c.Symbol(ctx, symbol)
	if err != nil {
		return info, err
	}
	if info.Status != "TRADING" {
		return info, fmt.Errorf("%s status %s: %w", info.Symbol, info.Status, ErrSymbolNotTrading)
	}
	return info, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) (int, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return resp.StatusCode, fmt.Errorf("http %d: code %d: %s", resp.StatusCode, apiErr.Code, apiErr.Msg)
		}
		return resp.StatusCode, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}

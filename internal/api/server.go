// Package api serves the engine's current state over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"flux-sentinel/internal/journal"
	"flux-sentinel/internal/stats"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type Status struct {
	Session      string       `json:"session"`
	Symbol       string       `json:"symbol"`
	Running      bool         `json:"running"`
	Paused       bool         `json:"paused"`
	Connected    bool         `json:"connected"`
	Stale        bool         `json:"stale"`
	StartedAt    time.Time    `json:"started_at"`
	LastTradeAt  *time.Time   `json:"last_trade_at,omitempty"`
	LastTradeAge string       `json:"last_trade_age,omitempty"`
	Ticks        uint64       `json:"ticks"`
	Discarded    uint64       `json:"discarded"`
	Regime       stats.Regime `json:"regime"`
}

// Source is what the API reads from and controls.
type Source interface {
	Symbol() string
	Snapshot() stats.Snapshot
	History() []float64
	HistoryInterval() time.Duration
	Flow() *stats.FlowWindow
	Status() Status
	Transitions(ctx context.Context, limit int) ([]journal.Transition, error)
	Pause() bool
	Resume() bool
}

type Options struct {
	Address        string
	MetricsPath    string
	MetricsHandler http.Handler
	Log            *zap.Logger
}

type Server struct {
	echo    *echo.Echo
	address string
	log     *zap.Logger
}

func New(source Source, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogging(log))

	h := &handler{source: source, log: log}
	h.register(e)
	if opts.MetricsHandler != nil && opts.MetricsPath != "" {
		e.GET(opts.MetricsPath, echo.WrapHandler(opts.MetricsHandler))
	}
	return &Server{echo: e, address: opts.Address, log: log}
}

// Handler exposes the router for in-process use.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) {
	go func() {
		s.log.Info("http server listening", zap.String("address", s.address))
		if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("http shutdown failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestLogging(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			log.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
			)
			return nil
		}
	}
}

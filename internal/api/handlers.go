package api

import (
	"net/http"
	"time"

	"flux-sentinel/internal/journal"
	"flux-sentinel/internal/stats"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var validate = validator.New()

type handler struct {
	source Source
	log    *zap.Logger
}

type snapshotResponse struct {
	Symbol   string         `json:"symbol"`
	Snapshot stats.Snapshot `json:"snapshot"`
	BuyRatio float64        `json:"buy_ratio"`
}

type historyResponse struct {
	IntervalSeconds float64   `json:"interval_seconds"`
	Values          []float64 `json:"values"`
}

type flowResponse struct {
	Buy      int               `json:"buy"`
	Sell     int               `json:"sell"`
	BuyRatio float64           `json:"buy_ratio"`
	Entries  []stats.FlowEntry `json:"entries,omitempty"`
}

type flowRequest struct {
	Entries bool `query:"entries"`
}

type transitionsRequest struct {
	Limit int `query:"limit" default:"50" validate:"gte=1,lte=500"`
}

type transitionView struct {
	Time     time.Time      `json:"time"`
	From     stats.Regime   `json:"from"`
	To       stats.Regime   `json:"to"`
	Snapshot stats.Snapshot `json:"snapshot"`
}

type controlResponse struct {
	Paused  bool `json:"paused"`
	Changed bool `json:"changed"`
}

func (h *handler) register(e *echo.Echo) {
	e.GET("/healthz", h.health)
	g := e.Group("/api")
	g.GET("/snapshot", h.snapshot)
	g.GET("/history", h.history)
	g.GET("/flow", h.flow)
	g.GET("/status", h.status)
	g.GET("/transitions", h.transitions)
	g.POST("/pause", h.pause)
	g.POST("/resume", h.resume)
}

func (h *handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) snapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, snapshotResponse{
		Symbol:   h.source.Symbol(),
		Snapshot: h.source.Snapshot(),
		BuyRatio: h.source.Flow().BuyRatio(),
	})
}

func (h *handler) history(c echo.Context) error {
	return c.JSON(http.StatusOK, historyResponse{
		IntervalSeconds: h.source.HistoryInterval().Seconds(),
		Values:          h.source.History(),
	})
}

func (h *handler) flow(c echo.Context) error {
	var req flowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	window := h.source.Flow()
	buy, sell := window.Counts()
	resp := flowResponse{Buy: buy, Sell: sell, BuyRatio: window.BuyRatio()}
	if req.Entries {
		resp.Entries = window.Entries()
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *handler) status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.source.Status())
}

func (h *handler) transitions(c echo.Context) error {
	var req transitionsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := defaults.Set(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.StructCtx(c.Request().Context(), &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	items, err := h.source.Transitions(c.Request().Context(), req.Limit)
	if err != nil {
		h.log.Warn("transitions query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "transitions unavailable")
	}
	return c.JSON(http.StatusOK, toTransitionViews(items))
}

func (h *handler) pause(c echo.Context) error {
	changed := h.source.Pause()
	return c.JSON(http.StatusOK, controlResponse{Paused: true, Changed: changed})
}

func (h *handler) resume(c echo.Context) error {
	changed := h.source.Resume()
	return c.JSON(http.StatusOK, controlResponse{Paused: false, Changed: changed})
}

func toTransitionViews(items []journal.Transition) []transitionView {
	out := make([]transitionView, 0, len(items))
	for _, tr := range items {
		out = append(out, transitionView{Time: tr.Time, From: tr.From, To: tr.To, Snapshot: tr.Snapshot})
	}
	return out
}

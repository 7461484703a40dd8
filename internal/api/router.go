package api

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"hostmon/internal/alert"
	"hostmon/internal/pipeline"
	"hostmon/internal/storage"
)

const serviceName = "hostmon"

// StatsSource exposes loop counters.
type StatsSource interface {
	Stats() pipeline.Stats
}

// AlertSource lists rules that are currently breaching or firing.
type AlertSource interface {
	Active() []alert.Active
}

// Options wires the API to the running collector.
// Params: identity, live sources, and optional history store (nil in dry-run mode).
// Returns: router dependencies.
type Options struct {
	Host         string
	Version      string
	HistoryStart string
	Cache        *LiveCache
	Hub          *Hub
	Querier      storage.Querier
	Stats        StatsSource
	Alerts       AlertSource
	Now          func() time.Time
}

type handlers struct {
	opts   Options
	logger *slog.Logger
}

// NewRouter builds the gin engine with every API route.
// Params: opts runtime dependencies; logger request diagnostics.
// Returns: configured engine.
func NewRouter(opts Options, logger *slog.Logger) *gin.Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if strings.TrimSpace(opts.HistoryStart) == "" {
		opts.HistoryStart = "-1h"
	}
	h := &handlers{opts: opts, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/", h.root)
	router.GET("/health", h.health)
	router.GET("/readiness", h.readiness)
	router.GET("/liveness", h.liveness)
	router.GET("/metrics", h.exposition)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/metrics/current", h.current)
		v1.GET("/metrics/history", h.history)
		v1.GET("/metrics/summary", h.summary)
		v1.GET("/metrics/stream", h.stream)
		v1.GET("/alerts/active", h.activeAlerts)
	}

	return router
}

// requestLogger logs one debug line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug("api request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(started)),
		)
	}
}

func (h *handlers) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": serviceName,
		"version": h.opts.Version,
		"host":    h.opts.Host,
		"status":  "running",
	})
}

func (h *handlers) health(c *gin.Context) {
	body := gin.H{
		"status":    "healthy",
		"timestamp": h.opts.Now().UTC(),
		"service":   serviceName,
	}
	if h.opts.Stats != nil {
		body["collector"] = h.opts.Stats.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// readiness is ready once the loop runs and a snapshot is cached.
func (h *handlers) readiness(c *gin.Context) {
	now := h.opts.Now().UTC()
	if h.opts.Stats != nil && h.opts.Stats.Stats().State != pipeline.StateRunning.String() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "collector is not running", "timestamp": now})
		return
	}
	if h.opts.Cache != nil {
		if _, ok := h.opts.Cache.Latest(); !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "no snapshot collected yet", "timestamp": now})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "timestamp": now})
}

func (h *handlers) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "timestamp": h.opts.Now().UTC()})
}

func (h *handlers) exposition(c *gin.Context) {
	exp := newExposition(h.opts.Host)
	if h.opts.Cache != nil {
		if snap, ok := h.opts.Cache.Latest(); ok {
			exp.addSnapshot(snap)
		}
	}
	if h.opts.Stats != nil {
		exp.addStats(h.opts.Stats.Stats())
	}
	if h.opts.Alerts != nil {
		exp.addAlerts(h.opts.Alerts.Active())
	}

	var buf bytes.Buffer
	if err := exp.write(&buf); err != nil {
		h.logger.Error("render exposition failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render metrics"})
		return
	}
	c.Data(http.StatusOK, contentType(), buf.Bytes())
}

func (h *handlers) current(c *gin.Context) {
	if h.opts.Cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live cache disabled"})
		return
	}
	snap, ok := h.opts.Cache.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no snapshot collected yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// history returns stored points of one measurement.
// Query params: metric (group name), start (default history_start), end (default now()), fields (comma list).
func (h *handlers) history(c *gin.Context) {
	req, ok := h.queryRequest(c, c.DefaultQuery("start", h.opts.HistoryStart), c.Query("end"))
	if !ok {
		return
	}
	points, ok := h.runQuery(c, req)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metric": req.Measurement,
		"start":  req.Start,
		"end":    req.End,
		"count":  len(points),
		"data":   points,
	})
}

// summary returns count/avg/min/max/p95 per field over period (default history_start) up to now.
func (h *handlers) summary(c *gin.Context) {
	period := c.DefaultQuery("period", h.opts.HistoryStart)
	req, ok := h.queryRequest(c, period, "")
	if !ok {
		return
	}
	points, ok := h.runQuery(c, req)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metric":  req.Measurement,
		"period":  period,
		"summary": storage.Summarize(points),
	})
}

func (h *handlers) stream(c *gin.Context) {
	if h.opts.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live stream disabled"})
		return
	}
	h.opts.Hub.ServeWS(c.Writer, c.Request)
}

func (h *handlers) activeAlerts(c *gin.Context) {
	active := []alert.Active{}
	if h.opts.Alerts != nil {
		active = append(active, h.opts.Alerts.Active()...)
	}
	c.JSON(http.StatusOK, gin.H{"count": len(active), "alerts": active})
}

// queryRequest parses metric/range/fields parameters and answers 400 on failure.
func (h *handlers) queryRequest(c *gin.Context, start, end string) (storage.QueryRequest, bool) {
	req := storage.QueryRequest{Measurement: strings.TrimSpace(c.Query("metric"))}
	if req.Measurement == "" {
		req.Measurement = strings.TrimSpace(c.Query("measurement"))
	}
	if raw := strings.TrimSpace(c.Query("fields")); raw != "" {
		req.Fields = strings.Split(raw, ",")
		for idx := range req.Fields {
			req.Fields[idx] = strings.TrimSpace(req.Fields[idx])
		}
	}

	from, to, err := storage.ParseRange(start, end, h.opts.Now())
	if err == nil {
		req.Start, req.End = from, to
		err = req.Validate()
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return storage.QueryRequest{}, false
	}
	return req, true
}

func (h *handlers) runQuery(c *gin.Context, req storage.QueryRequest) ([]storage.Point, bool) {
	if h.opts.Querier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is unavailable in dry-run mode"})
		return nil, false
	}

	points, err := h.opts.Querier.Query(c.Request.Context(), req)
	if err != nil {
		var validation *storage.ValidationError
		if errors.As(err, &validation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		h.logger.Error("history query failed", slog.String("metric", req.Measurement), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query metrics: " + err.Error()})
		return nil, false
	}
	if points == nil {
		points = []storage.Point{}
	}
	return points, true
}

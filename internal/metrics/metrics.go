// Package metrics exposes Prometheus instrumentation plus a /healthz
// endpoint for the trading engine.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading engine.
type Metrics struct {
	TradesTotal     prometheus.Counter
	CandlesTotal    prometheus.Counter
	TickersTotal    prometheus.Counter
	WSReconnects    prometheus.Counter
	GapsFilled      prometheus.Counter
	LateCandles     prometheus.Counter
	LogBufOverflow  prometheus.Counter
	SQLiteCommitDur prometheus.Histogram
	RedisWriteDur   prometheus.Histogram

	// Signal pipeline
	Decisions     *prometheus.CounterVec // labels: symbol, decision
	EvalDur       prometheus.Histogram
	OpenPositions prometheus.Gauge
	Strategies    prometheus.Gauge

	// Order execution
	OrdersPlaced   *prometheus.CounterVec // labels: side
	OrdersRejected prometheus.Counter
	OrdersFailed   prometheus.Counter
	OrderFillDur   prometheus.Histogram
}

// New registers and returns all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobot_trades_total",
			Help: "Total raw trades received from the feed",
		}),
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobot_candles_total",
			Help: "Total candle updates ingested",
		}),
		TickersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobot_tickers_total",
			Help: "Total book ticker updates received",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobot_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),
		GapsFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobot_gaps_filled_total",
			Help: "Placeholder rows inserted to keep series contiguous",
		}),
		LateCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobot_late_candles_total",
			Help: "Candle updates dropped because they predate the series tail",
		}),
		LogBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobot_log_buffer_overflow_total",
			Help: "Strategy log entries dropped due to a full ring buffer",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptobot_sqlite_commit_duration_seconds",
			Help:    "Trade journal insert latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptobot_redis_write_duration_seconds",
			Help:    "Redis stream publish latency",
			Buckets: prometheus.DefBuckets,
		}),

		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobot_decisions_total",
			Help: "Signal evaluator decisions by symbol",
		}, []string{"symbol", "decision"}),
		EvalDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptobot_eval_duration_seconds",
			Help:    "Signal evaluation latency per closed candle",
			Buckets: []float64{0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobot_open_positions",
			Help: "Strategies currently holding an open position",
		}),
		Strategies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobot_strategies",
			Help: "Running strategy instances",
		}),

		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobot_orders_placed_total",
			Help: "Market orders placed, by side",
		}, []string{"side"}),
		OrdersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobot_orders_rejected_total",
			Help: "Buys skipped for insufficient size or balance",
		}),
		OrdersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobot_orders_failed_total",
			Help: "Orders that ended canceled, rejected or expired",
		}),
		OrderFillDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptobot_order_fill_duration_seconds",
			Help:    "Time from order placement to observed fill",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30},
		}),
	}

	prometheus.MustRegister(
		m.TradesTotal,
		m.CandlesTotal,
		m.TickersTotal,
		m.WSReconnects,
		m.GapsFilled,
		m.LateCandles,
		m.LogBufOverflow,
		m.SQLiteCommitDur,
		m.RedisWriteDur,
		m.Decisions,
		m.EvalDur,
		m.OpenPositions,
		m.Strategies,
		m.OrdersPlaced,
		m.OrdersRejected,
		m.OrdersFailed,
		m.OrderFillDur,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool      `json:"ws_connected"`
	LastEventTime  time.Time `json:"last_event_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	redisEnabled bool
}

// NewHealthStatus returns a default health status. redisEnabled controls
// whether Redis connectivity counts toward overall health.
func NewHealthStatus(redisEnabled bool) *HealthStatus {
	return &HealthStatus{
		StartedAt:    time.Now(),
		redisEnabled: redisEnabled,
	}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEventTime(t time.Time) {
	h.mu.Lock()
	h.LastEventTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisOK := h.RedisConnected || !h.redisEnabled
	if !h.WSConnected || !redisOK || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.WSConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	eventAge := ""
	if !h.LastEventTime.IsZero() {
		eventAge = time.Since(h.LastEventTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		WSConnected     bool    `json:"ws_connected"`
		LastEventTime   string  `json:"last_event_time"`
		EventAge        string  `json:"event_age"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:     h.WSConnected,
		LastEventTime:   h.LastEventTime.Format(time.RFC3339),
		EventAge:        eventAge,
		RedisEnabled:    h.redisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

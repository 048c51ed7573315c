// Package gateway exposes the dashboard HTTP API: strategy lifecycle,
// watchlist management, log draining and the trade journal. Mutating
// endpoints are guarded by a TOTP code so a leaked dashboard URL cannot
// move funds.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"cryptobot/internal/engine"
	"cryptobot/internal/journal"
	"cryptobot/internal/model"
	"cryptobot/internal/strategy"
)

// Core is the engine surface the gateway drives.
type Core interface {
	StartStrategy(ctx context.Context, cfg strategy.Config) (strategy.Snapshot, error)
	StopStrategy(ctx context.Context, id string) error
	Watch(ctx context.Context, symbol string) error
	Unwatch(ctx context.Context, symbol string) error
	Watchlist(ctx context.Context) ([]engine.WatchEntry, error)
	Snapshots(ctx context.Context) ([]strategy.Snapshot, error)
	Snapshot(ctx context.Context, id string) (strategy.Snapshot, error)
	DrainLogs(ctx context.Context, id string) ([]model.LogEntry, error)
}

// Defaults fills request fields the dashboard leaves empty.
type Defaults struct {
	TakeProfit float64
	StopLoss   float64
	BuyPct     float64
	SeedLimit  int
}

// Server holds the gateway dependencies.
type Server struct {
	core       Core
	journal    *journal.Journal // nil disables /api/trades
	totpSecret string           // empty disables the TOTP guard
	defaults   Defaults
}

// NewServer creates a gateway server.
func NewServer(core Core, jnl *journal.Journal, totpSecret string, defaults Defaults) *Server {
	return &Server{core: core, journal: jnl, totpSecret: totpSecret, defaults: defaults}
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-TOTP-Code")
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/strategies", s.handleStrategies)
	mux.HandleFunc("/api/strategies/", s.handleStrategy)
	mux.HandleFunc("/api/watchlist", s.handleWatchlist)
	mux.HandleFunc("/api/watchlist/", s.handleWatchSymbol)
	mux.HandleFunc("/api/trades", s.handleTrades)
}

// guard validates the TOTP code on mutating requests.
func (s *Server) guard(w http.ResponseWriter, r *http.Request) bool {
	if s.totpSecret == "" {
		return true
	}
	code := r.Header.Get("X-TOTP-Code")
	if code == "" || !totp.Validate(code, s.totpSecret) {
		log.Printf("[api_gateway] rejected %s %s: bad TOTP code", r.Method, r.URL.Path)
		writeError(w, http.StatusUnauthorized, "invalid TOTP code")
		return false
	}
	return true
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

	case http.MethodGet:
		snaps, err := s.core.Snapshots(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if snaps == nil {
			snaps = []strategy.Snapshot{}
		}
		json.NewEncoder(w).Encode(snaps)

	case http.MethodPost:
		if !s.guard(w, r) {
			return
		}
		var req StartStrategyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		cfg, err := req.toConfig(s.defaults)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		snap, err := s.core.StartStrategy(r.Context(), cfg)
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Printf("[api_gateway] started strategy %s", snap.ID)
		json.NewEncoder(w).Encode(snap)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleStrategy serves /api/strategies/{id} and /api/strategies/{id}/logs.
func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/strategies/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing strategy id")
		return
	}

	switch {
	case sub == "logs" && r.Method == http.MethodGet:
		entries, err := s.core.DrainLogs(r.Context(), id)
		if err != nil {
			writeNotFound(w, err)
			return
		}
		if entries == nil {
			entries = []model.LogEntry{}
		}
		json.NewEncoder(w).Encode(entries)

	case sub == "" && r.Method == http.MethodGet:
		snap, err := s.core.Snapshot(r.Context(), id)
		if err != nil {
			writeNotFound(w, err)
			return
		}
		json.NewEncoder(w).Encode(snap)

	case sub == "" && r.Method == http.MethodDelete:
		if !s.guard(w, r) {
			return
		}
		if err := s.core.StopStrategy(r.Context(), id); err != nil {
			writeNotFound(w, err)
			return
		}
		log.Printf("[api_gateway] stopped strategy %s", id)
		json.NewEncoder(w).Encode(map[string]string{"status": "stopped"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

	case http.MethodGet:
		entries, err := s.core.Watchlist(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if entries == nil {
			entries = []engine.WatchEntry{}
		}
		json.NewEncoder(w).Encode(entries)

	case http.MethodPost:
		if !s.guard(w, r) {
			return
		}
		var req struct {
			Symbol string `json:"symbol"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Symbol == "" {
			writeError(w, http.StatusBadRequest, "symbol required")
			return
		}
		if err := s.core.Watch(r.Context(), strings.ToUpper(req.Symbol)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "watching"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleWatchSymbol serves DELETE /api/watchlist/{symbol}.
func (s *Server) handleWatchSymbol(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.guard(w, r) {
		return
	}

	symbol := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/watchlist/"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}
	if err := s.core.Unwatch(r.Context(), symbol); err != nil {
		// A held symbol is an expected refusal, not a server fault.
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "unwatched"})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "trade journal disabled")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	trades, err := s.journal.Trades(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if trades == nil {
		trades = []journal.TradeRecord{}
	}
	json.NewEncoder(w).Encode(trades)
}

func writeNotFound(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusServiceUnavailable, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Run serves the gateway until ctx is cancelled.
func Run(ctx context.Context, addr string, s *Server) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[api_gateway] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

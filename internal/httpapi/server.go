// Package httpapi exposes the read-only HTTP surface collaborators poll
// (§6.1): health, last-collected stats, recent exchange rates and pool
// observations, and the combined metrics+LOS view the UI consumes.
//
// Grounded on orbas1-Synnergy's APINode (core/api_node.go):
// http.ServeMux + http.Server with explicit Read/Write/Idle timeouts,
// started in its own goroutine, shut down via context.Context. No router
// library is wired here: no repo in the reference set actually calls
// go-chi or gorilla/mux from working code (both appear only as unused
// go.mod entries), so this plain ServeMux shape is the better-grounded
// choice over a nominally-available but nowhere-exercised router
// dependency.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"crossliquid/internal/allocation"
	"crossliquid/internal/metrics"
	"crossliquid/internal/timeseries"
)

// Status tracks the two periodic loops' most recent outcome, surfaced at
// /stats per §7's "failures appear in /stats.lastError". The Stats loop's
// lastError stays empty: stats.Collector.Tick logs per-chain failures and
// returns nothing, so cmd/agent records every Stats tick as a success.
type Status struct {
	mu              sync.RWMutex
	lastStatsTick   time.Time
	lastStatsError  string
	lastActionTick  time.Time
	lastActionError string
}

// RecordStats records the outcome of one Stats loop tick.
func (s *Status) RecordStats(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStatsTick = time.Now()
	if err != nil {
		s.lastStatsError = err.Error()
	}
}

// RecordAction records the outcome of one action-loop tick.
func (s *Status) RecordAction(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActionTick = time.Now()
	if err != nil {
		s.lastActionError = err.Error()
	}
}

func (s *Status) snapshot() (time.Time, string, time.Time, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStatsTick, s.lastStatsError, s.lastActionTick, s.lastActionError
}

// Server wires the read-only stores and computations behind the HTTP
// surface. It never writes to either store.
type Server struct {
	TimeSeries timeseries.Store
	Metrics    *metrics.Engine
	Allocation *allocation.Cache
	ChainIDs   []int64
	Status     *Status

	srv *http.Server
}

// Start builds the mux and begins serving in the background. Returns
// immediately, without waiting for the listener to bind (ListenAndServe
// runs in its own goroutine); a bind failure is reported on the returned
// channel.
func (s *Server) Start(addr string) <-chan error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/rates", s.handleRates)
	mux.HandleFunc("/pool-prices", s.handlePoolPrices)
	mux.HandleFunc("/metrics", s.handleMetrics)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	lastStatsTick, lastStatsErr, lastActionTick, lastActionErr := s.Status.snapshot()

	perChain := make(map[string]any, len(s.ChainIDs))
	for _, id := range s.ChainIDs {
		chain := id
		rates, err := s.TimeSeries.GetRecentRates(r.Context(), &chain, 1)
		if err != nil || len(rates) == 0 {
			continue
		}
		perChain[strconv.FormatInt(id, 10)] = rates[0]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lastExchangeRateByChain": perChain,
		"statsLoop": map[string]any{
			"lastTick":  lastStatsTick,
			"lastError": lastStatsErr,
		},
		"actionLoop": map[string]any{
			"lastTick":  lastActionTick,
			"lastError": lastActionErr,
		},
	})
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	var chainID *int64
	if raw := r.URL.Query().Get("chainId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid chainId", http.StatusBadRequest)
			return
		}
		chainID = &id
	}
	rows, err := s.TimeSeries.GetRecentRates(r.Context(), chainID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handlePoolPrices(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	rows, err := s.TimeSeries.GetRecentPoolPrices(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	out := make([]map[string]any, 0, len(s.ChainIDs))
	for _, id := range s.ChainIDs {
		m, err := s.Metrics.Compute(r.Context(), id, now)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		target, _ := s.Allocation.TargetAllocationPct(r.Context(), id)
		current, _ := s.Allocation.CurrentAllocationPct(r.Context(), id)
		out = append(out, map[string]any{
			"chainId":           id,
			"metrics":           m,
			"targetAllocation":  target,
			"currentAllocation": current,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

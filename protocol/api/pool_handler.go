// Package api serves the admin HTTP surface of a running pool.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/guileen/rpcpool/lifecycle"
	"github.com/guileen/rpcpool/logger"
	"github.com/guileen/rpcpool/pool"
)

// Pool is the view of a pool back end the handler needs.
type Pool interface {
	// Probe checks out a connection, which runs its validation, and hands it back.
	Probe(ctx context.Context) error
	Name() string
	Stats() pool.Stats
}

// DefaultProbeTimeout bounds a /probe request.
const DefaultProbeTimeout = 10 * time.Second

type PoolHandler struct {
	pool         Pool
	probeTimeout time.Duration
}

func NewPoolHandler(p Pool) *PoolHandler {
	return &PoolHandler{pool: p, probeTimeout: DefaultProbeTimeout}
}

func (h *PoolHandler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/stats", h.GetStats)
	r.Post("/probe", h.Probe)
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ProbeResponse struct {
	Status   string `json:"status"`
	Duration string `json:"duration"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *PoolHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *PoolHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Stats())
}

func (h *PoolHandler) Probe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.probeTimeout)
	defer cancel()
	ctx = logger.WithContextValue(ctx, logger.PoolKey, h.pool.Name())
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		ctx = logger.WithContextValue(ctx, logger.RequestIDKey, reqID)
	}

	start := time.Now()
	if err := h.pool.Probe(ctx); err != nil {
		logger.WarnContext(ctx, "probe failed", logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, ProbeResponse{Status: "ok", Duration: time.Since(start).String()})
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}

// Blocking adapts a BlockingPool. Its checkout does not observe ctx; it is
// bounded by the pool's own ConnectionTimeout.
func Blocking[C lifecycle.Connection](p *pool.BlockingPool[C]) Pool {
	return blockingPool[C]{p}
}

type blockingPool[C lifecycle.Connection] struct {
	p *pool.BlockingPool[C]
}

func (b blockingPool[C]) Probe(ctx context.Context) error {
	checkout, err := b.p.Get()
	if err != nil {
		return err
	}
	checkout.Release()
	return nil
}

func (b blockingPool[C]) Name() string     { return b.p.Name() }
func (b blockingPool[C]) Stats() pool.Stats { return b.p.Stats() }

// Suspending adapts a SuspendingPool.
func Suspending[C lifecycle.Connection](p *pool.SuspendingPool[C]) Pool {
	return suspendingPool[C]{p}
}

type suspendingPool[C lifecycle.Connection] struct {
	p *pool.SuspendingPool[C]
}

func (s suspendingPool[C]) Probe(ctx context.Context) error {
	lease, err := s.p.Acquire(ctx)
	if err != nil {
		return err
	}
	lease.Release()
	return nil
}

func (s suspendingPool[C]) Name() string     { return s.p.Name() }
func (s suspendingPool[C]) Stats() pool.Stats { return s.p.Stats() }

package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/api"
	"github.com/nilayparikh/loanflow/escalation"
	"github.com/nilayparikh/loanflow/history"
	"github.com/nilayparikh/loanflow/internal/cache"
	"github.com/nilayparikh/loanflow/types"
)

// StatsHandler serves the aggregate dashboard numbers.
type StatsHandler struct {
	store   escalation.Store
	history *history.Store
	cache   *cache.Manager
	logger  *zap.Logger
}

// NewStatsHandler creates the stats handler. History and cache are
// optional; their sections stay zero or absent when unwired.
func NewStatsHandler(store escalation.Store, hist *history.Store, logger *zap.Logger) *StatsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsHandler{
		store:   store,
		history: hist,
		logger:  logger.With(zap.String("component", "stats_handler")),
	}
}

// WithCache adds model-verdict cache counters to the stats payload.
func (h *StatsHandler) WithCache(manager *cache.Manager) *StatsHandler {
	h.cache = manager
	return h
}

// HandleStats merges processed-loan totals with the live review-queue
// state. The queue numbers are authoritative for pending work; the
// history totals cover every run ever recorded.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	queueStats, err := h.store.Stats(r.Context())
	if err != nil {
		WriteError(w, r, types.NewDependencyError("review queue unavailable").WithCause(err), h.logger)
		return
	}

	resp := api.StatsResponse{
		Pending:       queueStats.Pending,
		HumanApproved: queueStats.Approved,
		HumanDeclined: queueStats.Declined,
		InfoRequested: queueStats.InfoRequested,
	}
	if queueStats.OldestPendingAge > 0 {
		resp.OldestPendingAge = queueStats.OldestPendingAge.String()
	}
	if queueStats.AverageDecisionTime > 0 {
		resp.AverageDecisionTime = queueStats.AverageDecisionTime.String()
	}

	if h.history != nil {
		summary, err := h.history.Summary(r.Context())
		if err != nil {
			WriteError(w, r, types.NewDependencyError("loan history unavailable").WithCause(err), h.logger)
			return
		}
		resp.Total = summary.Total
		resp.Approved = summary.Approved
		resp.Declined = summary.Declined
		resp.Escalated = summary.Escalated
	}

	if h.cache != nil {
		if cacheStats, err := h.cache.GetStats(r.Context()); err == nil {
			resp.Cache = &api.CacheStats{
				Hits:   cacheStats.Hits,
				Misses: cacheStats.Misses,
				Keys:   cacheStats.Keys,
			}
		} else {
			h.logger.Warn("cache stats unavailable", zap.Error(err))
		}
	}

	WriteSuccess(w, r, resp)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/api"
	"github.com/nilayparikh/loanflow/escalation"
	"github.com/nilayparikh/loanflow/history"
	"github.com/nilayparikh/loanflow/internal/ctxkeys"
	"github.com/nilayparikh/loanflow/internal/metrics"
	"github.com/nilayparikh/loanflow/loan"
	"github.com/nilayparikh/loanflow/types"
)

const (
	// watchWriteTimeout bounds a single event write to a watcher.
	watchWriteTimeout = 5 * time.Second
	// watchPingInterval keeps idle watch connections alive and weeds
	// out dead peers.
	watchPingInterval = 30 * time.Second
)

// EscalationHandler serves the human review queue: listing, deciding,
// and the live event feed.
type EscalationHandler struct {
	store          escalation.Store
	hub            *escalation.Hub
	history        *history.Store
	metrics        *metrics.Collector
	originPatterns []string
	logger         *zap.Logger
}

// NewEscalationHandler creates the review-queue handler. The store is
// the queue itself; the hub feeds the watch endpoint.
func NewEscalationHandler(store escalation.Store, hub *escalation.Hub, logger *zap.Logger) *EscalationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationHandler{
		store:  store,
		hub:    hub,
		logger: logger.With(zap.String("component", "escalation_handler")),
	}
}

// WithHistory mirrors reviewer verdicts onto the loan history.
func (h *EscalationHandler) WithHistory(store *history.Store) *EscalationHandler {
	h.history = store
	return h
}

// WithMetrics records decision events.
func (h *EscalationHandler) WithMetrics(collector *metrics.Collector) *EscalationHandler {
	h.metrics = collector
	return h
}

// WithOriginPatterns allows browser watch connections from the given
// origins. Non-browser clients are always accepted.
func (h *EscalationHandler) WithOriginPatterns(patterns ...string) *EscalationHandler {
	h.originPatterns = patterns
	return h
}

// HandleListPending returns PENDING records, oldest first.
func (h *EscalationHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListPending(r.Context())
	if err != nil {
		h.writeQueueError(w, r, err)
		return
	}
	WriteSuccess(w, r, nonNilRecords(records))
}

// HandleListAll returns every record regardless of status, oldest
// first. This is the review audit trail.
func (h *EscalationHandler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListAll(r.Context())
	if err != nil {
		h.writeQueueError(w, r, err)
		return
	}
	WriteSuccess(w, r, nonNilRecords(records))
}

// HandleGet returns one record by id.
func (h *EscalationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := extractPathID(r, "/api/v1/escalations/")
	if id == "" {
		WriteError(w, r, types.NewInvalidRequestError("escalation id is required"), h.logger)
		return
	}

	record, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeQueueError(w, r, err)
		return
	}
	WriteSuccess(w, r, record)
}

// HandleDecide applies a human verdict to a PENDING record. The
// reviewer identity comes from the auth token when present, otherwise
// from the request body.
func (h *EscalationHandler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	id := extractPathID(r, "/api/v1/escalations/")
	if id == "" {
		WriteError(w, r, types.NewInvalidRequestError("escalation id is required"), h.logger)
		return
	}

	var req api.DecideRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	decision, err := loan.ParseReviewDecision(req.Decision)
	if err != nil {
		WriteError(w, r, types.NewInvalidRequestError(err.Error()), h.logger)
		return
	}

	reviewer := strings.TrimSpace(req.Reviewer)
	if tokenReviewer, ok := ctxkeys.Reviewer(r.Context()); ok {
		reviewer = tokenReviewer
	}
	if reviewer == "" {
		WriteError(w, r, types.NewInvalidRequestError("reviewer is required"), h.logger)
		return
	}

	record, err := h.store.Decide(r.Context(), id, decision, reviewer, req.Notes)
	if err != nil {
		h.writeQueueError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordEscalationEvent("decided")
	}
	h.syncHistory(r.Context(), record, decision, reviewer, req.Notes)

	h.logger.Info("escalation decided",
		zap.String("escalation_id", record.ID),
		zap.String("applicant_id", record.ApplicantID),
		zap.String("decision", string(decision)),
		zap.String("reviewer", reviewer),
	)
	WriteSuccess(w, r, record)
}

// syncHistory mirrors the verdict onto the loan history. The queue
// record is already decided at this point, so a history failure is
// logged, not returned.
func (h *EscalationHandler) syncHistory(ctx context.Context, record *loan.EscalationRecord, decision loan.ReviewStatus, reviewer, notes string) {
	if h.history == nil {
		return
	}
	if _, err := h.history.SyncDecision(ctx, record.ApplicantID, decision, reviewer, notes); err != nil {
		h.logger.Warn("loan history decision sync failed",
			zap.String("applicant_id", record.ApplicantID),
			zap.Error(err),
		)
	}
}

// HandleWatch upgrades to a WebSocket and streams queue events as JSON
// until the client disconnects. A watcher that falls behind misses
// events and should re-sync from the pending list.
func (h *EscalationHandler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("watch upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "watch aborted")

	events, cancel := h.hub.Subscribe()
	defer cancel()

	// The feed is write-only; CloseRead pumps control frames and
	// cancels the context when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	h.logger.Debug("watch connected", zap.String("remote", r.RemoteAddr))

	ping := time.NewTicker(watchPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case <-ping.C:
			if err := h.pingWatcher(ctx, conn); err != nil {
				h.logger.Debug("watch ping failed", zap.Error(err))
				return
			}

		case event, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "event feed shut down")
				return
			}
			if err := writeWatchEvent(ctx, conn, event); err != nil {
				h.logger.Debug("watch write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *EscalationHandler) pingWatcher(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, watchWriteTimeout)
	defer cancel()
	return conn.Ping(ctx)
}

func writeWatchEvent(ctx context.Context, conn *websocket.Conn, event escalation.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, watchWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// writeQueueError maps store errors onto the API error taxonomy.
func (h *EscalationHandler) writeQueueError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, escalation.ErrNotFound):
		WriteError(w, r, types.NewNotFoundError("escalation not found"), h.logger)
	case errors.Is(err, escalation.ErrAlreadyDecided):
		WriteError(w, r, types.NewConflictError("escalation already decided"), h.logger)
	case errors.Is(err, escalation.ErrAlreadyExists):
		WriteError(w, r, types.NewConflictError("escalation already queued for applicant"), h.logger)
	case errors.Is(err, escalation.ErrInvalidInput):
		WriteError(w, r, types.NewInvalidRequestError("invalid escalation request"), h.logger)
	default:
		WriteError(w, r, types.NewDependencyError("review queue unavailable").WithCause(err), h.logger)
	}
}

func nonNilRecords(records []*loan.EscalationRecord) []*loan.EscalationRecord {
	if records == nil {
		return []*loan.EscalationRecord{}
	}
	return records
}

// extractPathID pulls the id segment from the URL. It prefers the
// Go 1.22 pattern value and falls back to trimming the route prefix,
// so the handlers work under both mux styles.
func extractPathID(r *http.Request, prefix string) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)
	path = strings.TrimSuffix(path, "/decide")
	if path != "" && path != r.URL.Path && !strings.Contains(path, "/") {
		return path
	}
	return ""
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/api"
	"github.com/nilayparikh/loanflow/history"
	"github.com/nilayparikh/loanflow/pipeline"
	"github.com/nilayparikh/loanflow/types"
)

// defaultLoanListLimit bounds an unqualified history listing.
const defaultLoanListLimit = 100

// LoanHandler serves the processed-loan history and runs single
// applications through the pipeline.
type LoanHandler struct {
	pipeline *pipeline.Pipeline
	history  *history.Store
	logger   *zap.Logger
}

// NewLoanHandler creates the loan handler. The history store may be
// nil when the audit log is disabled; the listing endpoints then
// report 503 while processing keeps working.
func NewLoanHandler(p *pipeline.Pipeline, hist *history.Store, logger *zap.Logger) *LoanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanHandler{
		pipeline: p,
		history:  hist,
		logger:   logger.With(zap.String("component", "loan_handler")),
	}
}

// HandleList returns processed loans, newest first. The limit query
// parameter caps the page; limit=0 returns everything.
func (h *LoanHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeHistoryDisabled(w, r)
		return
	}

	limit := defaultLoanListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			WriteError(w, r, types.NewInvalidRequestError("limit must be a non-negative integer"), h.logger)
			return
		}
		limit = parsed
	}

	loans, err := h.history.List(r.Context(), limit)
	if err != nil {
		WriteError(w, r, types.NewDependencyError("loan history unavailable").WithCause(err), h.logger)
		return
	}
	if loans == nil {
		loans = []*history.ProcessedLoan{}
	}
	WriteSuccess(w, r, loans)
}

// HandleGet returns the most recent processed loan for an applicant.
func (h *LoanHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeHistoryDisabled(w, r)
		return
	}

	applicantID := extractApplicantID(r)
	if applicantID == "" {
		WriteError(w, r, types.NewInvalidRequestError("applicant id is required"), h.logger)
		return
	}

	entry, err := h.history.Get(r.Context(), applicantID)
	if errors.Is(err, history.ErrNotFound) {
		WriteError(w, r, types.NewNotFoundError("no processed loan for applicant"), h.logger)
		return
	}
	if err != nil {
		WriteError(w, r, types.NewDependencyError("loan history unavailable").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, r, entry)
}

// HandleProcess runs one application through the pipeline. An invalid
// application is a REJECTED outcome, not an HTTP error; only
// infrastructure failures surface as error envelopes.
func (h *LoanHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	var req api.ProcessRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	result, err := h.pipeline.Process(r.Context(), &req.Application)
	if err != nil {
		WriteTypedError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, toProcessResponse(result))
}

func (h *LoanHandler) writeHistoryDisabled(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "loan history is disabled").
		WithHTTPStatus(http.StatusServiceUnavailable), h.logger)
}

func toProcessResponse(result *pipeline.Result) api.ProcessResponse {
	resp := api.ProcessResponse{
		RunID:        result.RunID,
		ApplicantID:  result.ApplicantID,
		Outcome:      result.Outcome(),
		EscalationID: result.EscalationID,
		Intake:       result.Intake,
		Assessment:   result.Assessment,
		Compliance:   result.Compliance,
		Decision:     result.Decision,
		Elapsed:      result.Elapsed.String(),
		ProcessedAt:  result.ProcessedAt,
	}
	if result.Decision != nil {
		resp.Reason = result.Decision.Reason
	}
	return resp
}

// extractApplicantID pulls the applicant id from the loans route.
func extractApplicantID(r *http.Request) string {
	if id := r.PathValue("applicantID"); id != "" {
		return id
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/loans/")
	if path != "" && path != r.URL.Path && !strings.Contains(path, "/") {
		return path
	}
	return ""
}

package api

import (
	"time"

	"github.com/nilayparikh/loanflow/loan"
)

// DecideRequest submits a human verdict on an escalated application.
type DecideRequest struct {
	// Decision is APPROVED, DECLINED, or INFO_REQUESTED.
	Decision string `json:"decision"`
	// Reviewer identifies who decided. Ignored when the request
	// carries an authenticated reviewer token.
	Reviewer string `json:"reviewer,omitempty"`
	// Notes is the free-form review commentary.
	Notes string `json:"notes,omitempty"`
}

// ProcessRequest carries one application into the screening pipeline.
type ProcessRequest struct {
	Application loan.Application `json:"application"`
}

// ProcessResponse summarizes one pipeline run for API clients. The
// full stage outputs ride along so a reviewer UI can show the complete
// audit trail without a second call.
type ProcessResponse struct {
	RunID        string                 `json:"run_id"`
	ApplicantID  string                 `json:"applicant_id"`
	Outcome      loan.Outcome           `json:"outcome"`
	Reason       string                 `json:"reason"`
	EscalationID string                 `json:"escalation_id,omitempty"`
	Intake       *loan.IntakeResult     `json:"intake,omitempty"`
	Assessment   *loan.RiskAssessment   `json:"assessment,omitempty"`
	Compliance   *loan.ComplianceReport `json:"compliance,omitempty"`
	Decision     *loan.Decision         `json:"decision,omitempty"`
	Elapsed      string                 `json:"elapsed"`
	ProcessedAt  time.Time              `json:"processed_at"`
}

// StatsResponse merges the processed-loan totals with the live state
// of the review queue.
type StatsResponse struct {
	// Totals from the loan history, one row per pipeline run.
	Total     int64 `json:"total"`
	Approved  int64 `json:"approved"`
	Declined  int64 `json:"declined"`
	Escalated int64 `json:"escalated"`

	// Review-queue state.
	Pending       int64 `json:"pending"`
	HumanApproved int64 `json:"human_approved"`
	HumanDeclined int64 `json:"human_declined"`
	InfoRequested int64 `json:"info_requested"`

	// OldestPendingAge is how long the head of the queue has waited,
	// empty when nothing is pending.
	OldestPendingAge string `json:"oldest_pending_age,omitempty"`
	// AverageDecisionTime across decided records, empty before the
	// first decision.
	AverageDecisionTime string `json:"average_decision_time,omitempty"`

	// Cache reports model-verdict cache effectiveness when the cache
	// is enabled.
	Cache *CacheStats `json:"cache,omitempty"`
}

// CacheStats mirrors the model-verdict cache counters.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Keys   int64  `json:"keys"`
}

// VersionInfo reports the running build.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}

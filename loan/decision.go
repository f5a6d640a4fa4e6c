package loan

import (
	"time"

	"github.com/nilayparikh/loanflow/types"
)

// Outcome is a terminal routing result for one pipeline run.
type Outcome string

const (
	OutcomeApproved      Outcome = "APPROVED"
	OutcomeDeclined      Outcome = "DECLINED"
	OutcomePendingReview Outcome = "PENDING_REVIEW"
	// OutcomeRejected marks applications that failed intake validation;
	// no later stage ever ran.
	OutcomeRejected Outcome = "REJECTED"
)

// Thresholds is the router's configuration contract: composite scores
// at or below Approve auto-approve, at or above Decline auto-decline,
// and the open interval between them escalates.
type Thresholds struct {
	Approve float64 `json:"approve"`
	Decline float64 `json:"decline"`
}

// Validate enforces the ordering contract. Approve must be strictly
// below Decline or every score in between would be unroutable.
func (t Thresholds) Validate() error {
	if t.Approve < 0 || t.Decline > 100 {
		return types.NewConfigurationError("thresholds must lie within the 0-100 score scale")
	}
	if t.Approve >= t.Decline {
		return types.NewConfigurationError("approve threshold must be strictly below decline threshold")
	}
	return nil
}

// Decision is the router's output: the outcome, the score that
// triggered it, and a snapshot of the thresholds in force.
type Decision struct {
	ApplicantID string     `json:"applicant_id"`
	Outcome     Outcome    `json:"outcome"`
	Score       float64    `json:"score"`
	Thresholds  Thresholds `json:"thresholds"`
	Reason      string     `json:"reason"`
	DecidedAt   time.Time  `json:"decided_at"`
}

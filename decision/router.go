// Package decision maps composite risk scores onto loan outcomes. Two
// configured thresholds split the score range: at or below the approve
// threshold is APPROVED, at or above the decline threshold is DECLINED,
// and the open interval between them is PENDING_REVIEW. A hard
// compliance failure forces DECLINED regardless of score; that policy
// is encoded here, once, so no caller can route around it.
package decision

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/loan"
)

// Programmer errors. The pipeline never passes nil stage outputs.
var (
	ErrNilAssessment = errors.New("risk assessment must not be nil")
	ErrNilReport     = errors.New("compliance report must not be nil")
)

// Router applies the threshold policy. Stateless and safe for
// concurrent use.
type Router struct {
	thresholds loan.Thresholds
	logger     *zap.Logger
}

// NewRouter creates a Router. Misordered thresholds fail construction;
// a router that silently swapped them would invert every outcome.
func NewRouter(thresholds loan.Thresholds, logger *zap.Logger) (*Router, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		thresholds: thresholds,
		logger:     logger.With(zap.String("component", "decision_router")),
	}, nil
}

// Thresholds returns the configured threshold snapshot.
func (r *Router) Thresholds() loan.Thresholds { return r.thresholds }

// Route chooses the outcome for one assessed, compliance-checked
// application. The returned error is non-nil only for nil inputs.
func (r *Router) Route(assessment *loan.RiskAssessment, report *loan.ComplianceReport) (*loan.Decision, error) {
	if assessment == nil {
		return nil, ErrNilAssessment
	}
	if report == nil {
		return nil, ErrNilReport
	}

	d := &loan.Decision{
		ApplicantID: assessment.ApplicantID,
		Score:       assessment.CompositeScore,
		Thresholds:  r.thresholds,
		DecidedAt:   time.Now().UTC(),
	}

	switch {
	case len(report.HardFlags()) > 0:
		d.Outcome = loan.OutcomeDeclined
		d.Reason = "Hard compliance failure: " + joinHardFlags(report)
	case assessment.CompositeScore <= r.thresholds.Approve:
		d.Outcome = loan.OutcomeApproved
		d.Reason = fmt.Sprintf("Score %.1f at or below approve threshold %.1f",
			assessment.CompositeScore, r.thresholds.Approve)
	case assessment.CompositeScore >= r.thresholds.Decline:
		d.Outcome = loan.OutcomeDeclined
		d.Reason = fmt.Sprintf("Score %.1f at or above decline threshold %.1f",
			assessment.CompositeScore, r.thresholds.Decline)
	default:
		d.Outcome = loan.OutcomePendingReview
		d.Reason = fmt.Sprintf("Score %.1f between thresholds (%.1f, %.1f); routed to human review",
			assessment.CompositeScore, r.thresholds.Approve, r.thresholds.Decline)
	}

	r.logger.Info("decision routed",
		zap.String("applicant_id", d.ApplicantID),
		zap.String("outcome", string(d.Outcome)),
		zap.Float64("score", d.Score),
		zap.String("reason", d.Reason),
	)

	return d, nil
}

func joinHardFlags(report *loan.ComplianceReport) string {
	hard := report.HardFlags()
	msgs := make([]string, 0, len(hard))
	for _, f := range hard {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

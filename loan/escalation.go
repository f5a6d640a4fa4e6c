package loan

import (
	"fmt"
	"strings"
	"time"
)

// ReviewStatus is the lifecycle state of an escalated application.
// Records are created PENDING and transition away exactly once.
type ReviewStatus string

const (
	ReviewPending       ReviewStatus = "PENDING"
	ReviewApproved      ReviewStatus = "APPROVED"
	ReviewDeclined      ReviewStatus = "DECLINED"
	ReviewInfoRequested ReviewStatus = "INFO_REQUESTED"
)

// ParseReviewDecision validates a human decision submission. PENDING is
// not a decision; anything else unknown is an error.
func ParseReviewDecision(s string) (ReviewStatus, error) {
	switch ReviewStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case ReviewApproved:
		return ReviewApproved, nil
	case ReviewDeclined:
		return ReviewDeclined, nil
	case ReviewInfoRequested:
		return ReviewInfoRequested, nil
	default:
		return "", fmt.Errorf("invalid review decision %q (want APPROVED, DECLINED, or INFO_REQUESTED)", s)
	}
}

// EscalationRecord is the full audit context handed to a human
// reviewer: the application plus the risk and compliance outputs that
// made it borderline. Created only for PENDING_REVIEW decisions; the
// store owns it afterwards and it is never deleted.
type EscalationRecord struct {
	ID                   string           `json:"id"`
	ApplicantID          string           `json:"applicant_id"`
	FullName             string           `json:"full_name"`
	Application          Application      `json:"application"`
	RiskScore            float64          `json:"risk_score"`
	Rationale            string           `json:"rationale"`
	RiskFactors          []string         `json:"risk_factors"`
	CompensatingFactors  []string         `json:"compensating_factors"`
	ComplianceFlags      []ComplianceFlag `json:"compliance_flags"`
	ComplianceConditions []string         `json:"compliance_conditions"`
	Status               ReviewStatus     `json:"status"`
	EscalatedAt          time.Time        `json:"escalated_at"`
	DecidedAt            *time.Time       `json:"decided_at,omitempty"`
	DecidedBy            string           `json:"decided_by,omitempty"`
	DecisionNotes        string           `json:"decision_notes,omitempty"`
}

// Decided reports whether the record has left PENDING.
func (r *EscalationRecord) Decided() bool {
	return r.Status != ReviewPending
}

// Clone returns a deep copy so store reads never alias internal state.
func (r *EscalationRecord) Clone() *EscalationRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.RiskFactors = append([]string(nil), r.RiskFactors...)
	cp.CompensatingFactors = append([]string(nil), r.CompensatingFactors...)
	cp.ComplianceFlags = append([]ComplianceFlag(nil), r.ComplianceFlags...)
	cp.ComplianceConditions = append([]string(nil), r.ComplianceConditions...)
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		cp.DecidedAt = &t
	}
	return &cp
}

// Package history persists one processed-loan row per pipeline run, the
// audit trail behind the loans API and the dashboard stats. Rows are
// append-only; the single mutation is SyncDecision, which mirrors a
// human reviewer's verdict back onto the stored outcome.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nilayparikh/loanflow/loan"
)

// ErrNotFound is returned when no row matches the requested applicant.
var ErrNotFound = errors.New("loan record not found")

// Action describes how the pipeline disposed of the application.
type Action string

const (
	ActionAutoApprove    Action = "AUTO_APPROVE"
	ActionAutoDecline    Action = "AUTO_DECLINE"
	ActionEscalate       Action = "ESCALATE"
	ActionIntakeRejected Action = "INTAKE_REJECTED"
)

// ActionForCategory maps a risk category onto the recorded action.
func ActionForCategory(category loan.RiskCategory) Action {
	switch category {
	case loan.CategoryAutoApprove:
		return ActionAutoApprove
	case loan.CategoryAutoDecline:
		return ActionAutoDecline
	default:
		return ActionEscalate
	}
}

// ProcessedLoan is one completed pipeline run. Human* fields stay empty
// until a reviewer decides the linked escalation.
type ProcessedLoan struct {
	ID                  string                `json:"id"`
	ApplicantID         string                `json:"applicant_id"`
	FullName            string                `json:"full_name"`
	Decision            loan.Outcome          `json:"decision"`
	Action              Action                `json:"action"`
	Reason              string                `json:"reason"`
	Score               float64               `json:"score"`
	Compliant           bool                  `json:"compliant"`
	RiskFactors         []string              `json:"risk_factors,omitempty"`
	CompensatingFactors []string              `json:"compensating_factors,omitempty"`
	Flags               []loan.ComplianceFlag `json:"flags,omitempty"`
	Conditions          []string              `json:"conditions,omitempty"`
	Rationale           string                `json:"rationale,omitempty"`
	Application         loan.Application      `json:"application"`
	Thresholds          loan.Thresholds       `json:"thresholds"`
	EscalationID        string                `json:"escalation_id,omitempty"`
	ProcessedAt         time.Time             `json:"processed_at"`
	HumanDecision       string                `json:"human_decision,omitempty"`
	HumanDecidedAt      *time.Time            `json:"human_decided_at,omitempty"`
	HumanDecidedBy      string                `json:"human_decided_by,omitempty"`
	HumanDecisionNotes  string                `json:"human_decision_notes,omitempty"`
}

// Summary aggregates the history table for the stats endpoint.
type Summary struct {
	Total     int64 `json:"total"`
	Approved  int64 `json:"approved"`
	Declined  int64 `json:"declined"`
	Escalated int64 `json:"escalated"`
}

// processedLoanRow is the relational shape. Queryable lifecycle fields
// live in columns; the immutable assessment detail rides in Payload.
type processedLoanRow struct {
	ID                 string     `gorm:"primaryKey;size:64"`
	ApplicantID        string     `gorm:"size:64;not null;index"`
	FullName           string     `gorm:"size:255"`
	Decision           string     `gorm:"size:20;not null;index"`
	Action             string     `gorm:"size:20;not null"`
	Reason             string     `gorm:"type:text"`
	Score              float64    `gorm:"not null"`
	Compliant          bool       `gorm:"not null"`
	EscalationID       string     `gorm:"size:64;index"`
	ProcessedAt        time.Time  `gorm:"not null;index"`
	HumanDecision      string     `gorm:"size:20"`
	HumanDecidedAt     *time.Time
	HumanDecidedBy     string     `gorm:"size:255"`
	HumanDecisionNotes string     `gorm:"type:text"`
	Payload            []byte     `gorm:"type:text"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (processedLoanRow) TableName() string {
	return "loan_history"
}

type loanPayload struct {
	Application         loan.Application      `json:"application"`
	Thresholds          loan.Thresholds       `json:"thresholds"`
	RiskFactors         []string              `json:"risk_factors,omitempty"`
	CompensatingFactors []string              `json:"compensating_factors,omitempty"`
	Flags               []loan.ComplianceFlag `json:"flags,omitempty"`
	Conditions          []string              `json:"conditions,omitempty"`
	Rationale           string                `json:"rationale,omitempty"`
}

// Store is the gorm-backed processed-loan history.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New wires the store onto a shared gorm handle.
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("history store requires a database handle")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "loan_history")),
	}, nil
}

// AutoMigrate creates or updates the loan_history table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&processedLoanRow{})
}

// Record appends one processed loan. It assigns the id and timestamp
// when the caller left them empty.
func (s *Store) Record(ctx context.Context, entry *ProcessedLoan) error {
	if entry == nil || entry.ApplicantID == "" {
		return fmt.Errorf("history entry requires an applicant id")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}

	row, err := rowFromEntry(entry)
	if err != nil {
		return fmt.Errorf("encode loan record: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("store loan record: %w", err)
	}

	s.logger.Info("loan history stored",
		zap.String("applicant_id", entry.ApplicantID),
		zap.String("id", entry.ID),
		zap.String("decision", string(entry.Decision)),
		zap.Float64("score", entry.Score),
	)
	return nil
}

// List returns processed loans newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*ProcessedLoan, error) {
	q := s.db.WithContext(ctx).Order("processed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []processedLoanRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list loan records: %w", err)
	}

	entries := make([]*ProcessedLoan, 0, len(rows))
	for i := range rows {
		entry, err := entryFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Get returns the most recent processed loan for the applicant.
func (s *Store) Get(ctx context.Context, applicantID string) (*ProcessedLoan, error) {
	var row processedLoanRow
	err := s.db.WithContext(ctx).
		Where("applicant_id = ?", applicantID).
		Order("processed_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load loan record: %w", err)
	}
	return entryFromRow(&row)
}

// SyncDecision mirrors a human review verdict onto the newest escalated
// row for the applicant. APPROVED and DECLINED replace the stored
// outcome; INFO_REQUESTED only records the reviewer fields.
func (s *Store) SyncDecision(ctx context.Context, applicantID string, decision loan.ReviewStatus, reviewer, notes string) (*ProcessedLoan, error) {
	var row processedLoanRow
	err := s.db.WithContext(ctx).
		Where("applicant_id = ? AND escalation_id <> ''", applicantID).
		Order("processed_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load loan record: %w", err)
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"human_decision":       string(decision),
		"human_decided_at":     &now,
		"human_decided_by":     reviewer,
		"human_decision_notes": notes,
		"updated_at":           now,
	}
	switch decision {
	case loan.ReviewApproved:
		updates["decision"] = string(loan.OutcomeApproved)
	case loan.ReviewDeclined:
		updates["decision"] = string(loan.OutcomeDeclined)
	}

	err = s.db.WithContext(ctx).Model(&processedLoanRow{}).
		Where("id = ?", row.ID).
		Updates(updates).Error
	if err != nil {
		return nil, fmt.Errorf("sync decision: %w", err)
	}

	s.logger.Info("human decision synced to loan history",
		zap.String("applicant_id", applicantID),
		zap.String("id", row.ID),
		zap.String("decision", string(decision)),
		zap.String("reviewer", reviewer),
	)
	return s.Get(ctx, applicantID)
}

// Summary aggregates outcome counts for the stats endpoint.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	var counts []struct {
		Decision string
		N        int64
	}
	err := s.db.WithContext(ctx).Model(&processedLoanRow{}).
		Select("decision, COUNT(*) AS n").
		Group("decision").
		Find(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("summarize loan records: %w", err)
	}
	for _, c := range counts {
		summary.Total += c.N
		switch loan.Outcome(c.Decision) {
		case loan.OutcomeApproved:
			summary.Approved = c.N
		case loan.OutcomeDeclined:
			summary.Declined = c.N
		}
	}

	err = s.db.WithContext(ctx).Model(&processedLoanRow{}).
		Where("action = ?", string(ActionEscalate)).
		Count(&summary.Escalated).Error
	if err != nil {
		return nil, fmt.Errorf("count escalated loans: %w", err)
	}
	return summary, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func rowFromEntry(e *ProcessedLoan) (*processedLoanRow, error) {
	payload, err := json.Marshal(loanPayload{
		Application:         e.Application,
		Thresholds:          e.Thresholds,
		RiskFactors:         e.RiskFactors,
		CompensatingFactors: e.CompensatingFactors,
		Flags:               e.Flags,
		Conditions:          e.Conditions,
		Rationale:           e.Rationale,
	})
	if err != nil {
		return nil, err
	}
	return &processedLoanRow{
		ID:                 e.ID,
		ApplicantID:        e.ApplicantID,
		FullName:           e.FullName,
		Decision:           string(e.Decision),
		Action:             string(e.Action),
		Reason:             e.Reason,
		Score:              e.Score,
		Compliant:          e.Compliant,
		EscalationID:       e.EscalationID,
		ProcessedAt:        e.ProcessedAt,
		HumanDecision:      e.HumanDecision,
		HumanDecidedAt:     e.HumanDecidedAt,
		HumanDecidedBy:     e.HumanDecidedBy,
		HumanDecisionNotes: e.HumanDecisionNotes,
		Payload:            payload,
	}, nil
}

func entryFromRow(row *processedLoanRow) (*ProcessedLoan, error) {
	var payload loanPayload
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode loan record %s: %w", row.ID, err)
		}
	}
	return &ProcessedLoan{
		ID:                  row.ID,
		ApplicantID:         row.ApplicantID,
		FullName:            row.FullName,
		Decision:            loan.Outcome(row.Decision),
		Action:              Action(row.Action),
		Reason:              row.Reason,
		Score:               row.Score,
		Compliant:           row.Compliant,
		RiskFactors:         payload.RiskFactors,
		CompensatingFactors: payload.CompensatingFactors,
		Flags:               payload.Flags,
		Conditions:          payload.Conditions,
		Rationale:           payload.Rationale,
		Application:         payload.Application,
		Thresholds:          payload.Thresholds,
		EscalationID:        row.EscalationID,
		ProcessedAt:         row.ProcessedAt,
		HumanDecision:       row.HumanDecision,
		HumanDecidedAt:      row.HumanDecidedAt,
		HumanDecidedBy:      row.HumanDecidedBy,
		HumanDecisionNotes:  row.HumanDecisionNotes,
	}, nil
}

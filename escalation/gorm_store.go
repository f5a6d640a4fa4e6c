package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nilayparikh/loanflow/loan"
)

// escalationRow is the relational shape of an EscalationRecord. The
// mutable lifecycle lives in columns so the decision transition is one
// guarded UPDATE; the immutable assessment payload is a JSON blob.
type escalationRow struct {
	ID            string     `gorm:"primaryKey;size:64"`
	ApplicantID   string     `gorm:"size:64;not null;uniqueIndex:idx_escalations_applicant"`
	FullName      string     `gorm:"size:255"`
	RiskScore     float64    `gorm:""`
	Status        string     `gorm:"size:20;not null;index:idx_escalations_status"`
	EscalatedAt   time.Time  `gorm:"not null;index:idx_escalations_escalated_at"`
	DecidedAt     *time.Time `gorm:""`
	DecidedBy     string     `gorm:"size:255"`
	DecisionNotes string     `gorm:"type:text"`
	Payload       []byte     `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName sets the table name for escalation records.
func (escalationRow) TableName() string {
	return "escalations"
}

// recordPayload holds the parts of a record that never change after
// escalation.
type recordPayload struct {
	Application          loan.Application      `json:"application"`
	Rationale            string                `json:"rationale"`
	RiskFactors          []string              `json:"risk_factors,omitempty"`
	CompensatingFactors  []string              `json:"compensating_factors,omitempty"`
	ComplianceFlags      []loan.ComplianceFlag `json:"compliance_flags,omitempty"`
	ComplianceConditions []string              `json:"compliance_conditions,omitempty"`
}

// GormStore is a database-backed implementation of Store. The decision
// CAS is a single UPDATE guarded on status PENDING, so any SQL backend
// with atomic row updates gives exactly-one-winner semantics without
// application locks.
//
// Duplicate detection relies on the applicant unique index and GORM's
// TranslateError option; open the shared connection with it enabled.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a database-backed escalation store on an open
// connection. The connection's lifecycle belongs to the caller; Close
// is a no-op.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if db == nil {
		return nil, ErrInvalidInput
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "escalation_store"), zap.String("backend", "database")),
	}, nil
}

// AutoMigrate creates the escalations table when migrations are not
// managed externally. Test helper and dev convenience.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&escalationRow{})
}

// Add inserts a new PENDING record, rejecting duplicate applicants.
func (s *GormStore) Add(ctx context.Context, record *loan.EscalationRecord) error {
	if err := validateNewRecord(record); err != nil {
		return err
	}

	r := prepareRecord(record)
	row, err := rowFromRecord(r)
	if err != nil {
		return fmt.Errorf("encode escalation payload: %w", err)
	}

	err = s.db.WithContext(ctx).Create(row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert escalation: %w", err)
	}

	record.ID = r.ID
	record.Status = r.Status
	record.EscalatedAt = r.EscalatedAt
	return nil
}

// Get retrieves a record by id.
func (s *GormStore) Get(ctx context.Context, id string) (*loan.EscalationRecord, error) {
	var row escalationRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load escalation: %w", err)
	}
	return recordFromRow(&row)
}

// ListPending returns PENDING records, oldest escalation first.
func (s *GormStore) ListPending(ctx context.Context) ([]*loan.EscalationRecord, error) {
	return s.list(ctx, s.db.Where("status = ?", string(loan.ReviewPending)))
}

// ListAll returns every record, oldest escalation first.
func (s *GormStore) ListAll(ctx context.Context) ([]*loan.EscalationRecord, error) {
	return s.list(ctx, s.db)
}

func (s *GormStore) list(ctx context.Context, tx *gorm.DB) ([]*loan.EscalationRecord, error) {
	var rows []escalationRow
	err := tx.WithContext(ctx).Order("escalated_at ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}

	records := make([]*loan.EscalationRecord, 0, len(rows))
	for i := range rows {
		r, err := recordFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Decide updates the record iff it is still PENDING. RowsAffected
// disambiguates success from the two failure modes.
func (s *GormStore) Decide(ctx context.Context, id string, decision loan.ReviewStatus, reviewer, notes string) (*loan.EscalationRecord, error) {
	if err := validateDecision(decision, reviewer); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&escalationRow{}).
		Where("id = ? AND status = ?", id, string(loan.ReviewPending)).
		Updates(map[string]any{
			"status":         string(decision),
			"decided_at":     now,
			"decided_by":     reviewer,
			"decision_notes": notes,
			"updated_at":     now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("update escalation decision: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyDecided
	}

	s.logger.Info("escalation decided",
		zap.String("id", id),
		zap.String("decision", string(decision)),
		zap.String("reviewer", reviewer),
	)
	return s.Get(ctx, id)
}

// Stats summarizes the queue.
func (s *GormStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	var counts []struct {
		Status string
		N      int64
	}
	err := s.db.WithContext(ctx).Model(&escalationRow{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Find(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("count escalations: %w", err)
	}
	for _, c := range counts {
		stats.Total += c.N
		switch loan.ReviewStatus(c.Status) {
		case loan.ReviewPending:
			stats.Pending = c.N
		case loan.ReviewApproved:
			stats.Approved = c.N
		case loan.ReviewDeclined:
			stats.Declined = c.N
		case loan.ReviewInfoRequested:
			stats.InfoRequested = c.N
		}
	}

	if stats.Pending > 0 {
		var oldest escalationRow
		err = s.db.WithContext(ctx).
			Where("status = ?", string(loan.ReviewPending)).
			Order("escalated_at ASC").
			First(&oldest).Error
		if err != nil {
			return nil, fmt.Errorf("oldest pending escalation: %w", err)
		}
		stats.OldestPendingAge = time.Since(oldest.EscalatedAt)
	}

	var decided []struct {
		EscalatedAt time.Time
		DecidedAt   time.Time
	}
	err = s.db.WithContext(ctx).Model(&escalationRow{}).
		Where("decided_at IS NOT NULL").
		Select("escalated_at, decided_at").
		Find(&decided).Error
	if err != nil {
		return nil, fmt.Errorf("decided escalations: %w", err)
	}
	if len(decided) > 0 {
		var total time.Duration
		for _, d := range decided {
			total += d.DecidedAt.Sub(d.EscalatedAt)
		}
		stats.AverageDecisionTime = total / time.Duration(len(decided))
	}

	return stats, nil
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close is a no-op; the shared connection belongs to the caller.
func (s *GormStore) Close() error {
	return nil
}

func rowFromRecord(r *loan.EscalationRecord) (*escalationRow, error) {
	payload, err := json.Marshal(recordPayload{
		Application:          r.Application,
		Rationale:            r.Rationale,
		RiskFactors:          r.RiskFactors,
		CompensatingFactors:  r.CompensatingFactors,
		ComplianceFlags:      r.ComplianceFlags,
		ComplianceConditions: r.ComplianceConditions,
	})
	if err != nil {
		return nil, err
	}
	return &escalationRow{
		ID:            r.ID,
		ApplicantID:   r.ApplicantID,
		FullName:      r.FullName,
		RiskScore:     r.RiskScore,
		Status:        string(r.Status),
		EscalatedAt:   r.EscalatedAt,
		DecidedAt:     r.DecidedAt,
		DecidedBy:     r.DecidedBy,
		DecisionNotes: r.DecisionNotes,
		Payload:       payload,
	}, nil
}

func recordFromRow(row *escalationRow) (*loan.EscalationRecord, error) {
	var payload recordPayload
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode escalation payload: %w", err)
		}
	}
	return &loan.EscalationRecord{
		ID:                   row.ID,
		ApplicantID:          row.ApplicantID,
		FullName:             row.FullName,
		Application:          payload.Application,
		RiskScore:            row.RiskScore,
		Rationale:            payload.Rationale,
		RiskFactors:          payload.RiskFactors,
		CompensatingFactors:  payload.CompensatingFactors,
		ComplianceFlags:      payload.ComplianceFlags,
		ComplianceConditions: payload.ComplianceConditions,
		Status:               loan.ReviewStatus(row.Status),
		EscalatedAt:          row.EscalatedAt,
		DecidedAt:            row.DecidedAt,
		DecidedBy:            row.DecidedBy,
		DecisionNotes:        row.DecisionNotes,
	}, nil
}

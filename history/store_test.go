package history

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nilayparikh/loanflow/loan"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Each sqlite :memory: connection gets its own database; keep the
	// pool at one so every query sees the same tables.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store, err := New(db, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate())
	return store
}

func processedLoan(applicantID string, decision loan.Outcome, action Action, age time.Duration) *ProcessedLoan {
	return &ProcessedLoan{
		ApplicantID: applicantID,
		FullName:    "Alice Chen",
		Decision:    decision,
		Action:      action,
		Reason:      "Score 44.0 between thresholds (40.0, 80.0); routed to human review",
		Score:       44.0,
		Compliant:   true,
		RiskFactors: []string{"Credit score 730 below prime threshold 740"},
		CompensatingFactors: []string{
			"DTI 0.2804 within 0.36 target",
			"48 months continuous employment",
		},
		Conditions: []string{"PMI required (LTV > 80%)"},
		Rationale:  "Solid profile with modest credit drag.",
		Application: loan.Application{
			ApplicantID:  applicantID,
			FullName:     "Alice Chen",
			CreditScore:  730,
			AnnualIncome: 95000,
			LoanAmount:   380000,
			LoanType:     loan.LoanTypeConventional,
		},
		Thresholds:  loan.Thresholds{Approve: 40, Decline: 80},
		ProcessedAt: time.Now().UTC().Add(-age),
	}
}

func TestRecordAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	entry := processedLoan("APP-2024-001", loan.OutcomePendingReview, ActionEscalate, 0)
	entry.ProcessedAt = time.Time{}
	entry.EscalationID = "esc-123"
	require.NoError(t, store.Record(ctx, entry))

	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.ProcessedAt.IsZero())

	got, err := store.Get(ctx, "APP-2024-001")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, loan.OutcomePendingReview, got.Decision)
	assert.Equal(t, ActionEscalate, got.Action)
	assert.Equal(t, "esc-123", got.EscalationID)
	assert.Equal(t, 44.0, got.Score)
	assert.Equal(t, 730, got.Application.CreditScore)
	assert.Equal(t, loan.Thresholds{Approve: 40, Decline: 80}, got.Thresholds)
	assert.Len(t, got.CompensatingFactors, 2)
	assert.Equal(t, []string{"PMI required (LTV > 80%)"}, got.Conditions)
	assert.Empty(t, got.HumanDecision)
}

func TestRecordRequiresApplicant(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.Error(t, store.Record(ctx, nil))
	require.Error(t, store.Record(ctx, &ProcessedLoan{}))
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.Record(ctx, processedLoan("APP-OLD", loan.OutcomeApproved, ActionAutoApprove, 3*time.Hour)))
	require.NoError(t, store.Record(ctx, processedLoan("APP-NEW", loan.OutcomeDeclined, ActionAutoDecline, time.Hour)))
	require.NoError(t, store.Record(ctx, processedLoan("APP-MID", loan.OutcomePendingReview, ActionEscalate, 2*time.Hour)))

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "APP-NEW", all[0].ApplicantID)
	assert.Equal(t, "APP-MID", all[1].ApplicantID)
	assert.Equal(t, "APP-OLD", all[2].ApplicantID)

	top, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "APP-NEW", top[0].ApplicantID)
	assert.Equal(t, "APP-MID", top[1].ApplicantID)
}

func TestGetReturnsLatestRun(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.Record(ctx, processedLoan("APP-2024-001", loan.OutcomeDeclined, ActionAutoDecline, 2*time.Hour)))
	require.NoError(t, store.Record(ctx, processedLoan("APP-2024-001", loan.OutcomeApproved, ActionAutoApprove, time.Hour)))

	got, err := store.Get(ctx, "APP-2024-001")
	require.NoError(t, err)
	assert.Equal(t, loan.OutcomeApproved, got.Decision)

	_, err = store.Get(ctx, "APP-MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSyncDecisionOverwritesOutcome(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	entry := processedLoan("APP-2024-001", loan.OutcomePendingReview, ActionEscalate, time.Hour)
	entry.EscalationID = "esc-123"
	require.NoError(t, store.Record(ctx, entry))

	synced, err := store.SyncDecision(ctx, "APP-2024-001", loan.ReviewApproved, "senior-underwriter", "reserves verified")
	require.NoError(t, err)
	assert.Equal(t, loan.OutcomeApproved, synced.Decision)
	assert.Equal(t, string(loan.ReviewApproved), synced.HumanDecision)
	assert.Equal(t, "senior-underwriter", synced.HumanDecidedBy)
	assert.Equal(t, "reserves verified", synced.HumanDecisionNotes)
	require.NotNil(t, synced.HumanDecidedAt)

	// The escalate action is history; only the outcome moves.
	assert.Equal(t, ActionEscalate, synced.Action)
}

func TestSyncDecisionInfoRequestedKeepsOutcome(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	entry := processedLoan("APP-2024-001", loan.OutcomePendingReview, ActionEscalate, time.Hour)
	entry.EscalationID = "esc-123"
	require.NoError(t, store.Record(ctx, entry))

	synced, err := store.SyncDecision(ctx, "APP-2024-001", loan.ReviewInfoRequested, "reviewer", "need bank statements")
	require.NoError(t, err)
	assert.Equal(t, loan.OutcomePendingReview, synced.Decision)
	assert.Equal(t, string(loan.ReviewInfoRequested), synced.HumanDecision)
}

func TestSyncDecisionRequiresEscalatedRow(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	// Auto-decided runs carry no escalation id and cannot be synced.
	require.NoError(t, store.Record(ctx, processedLoan("APP-2024-001", loan.OutcomeApproved, ActionAutoApprove, time.Hour)))

	_, err := store.SyncDecision(ctx, "APP-2024-001", loan.ReviewApproved, "reviewer", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.Record(ctx, processedLoan("APP-A", loan.OutcomeApproved, ActionAutoApprove, 4*time.Hour)))
	require.NoError(t, store.Record(ctx, processedLoan("APP-B", loan.OutcomeDeclined, ActionAutoDecline, 3*time.Hour)))
	require.NoError(t, store.Record(ctx, processedLoan("APP-C", loan.OutcomePendingReview, ActionEscalate, 2*time.Hour)))
	require.NoError(t, store.Record(ctx, processedLoan("APP-D", loan.OutcomeRejected, ActionIntakeRejected, time.Hour)))

	summary, err := store.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.Total)
	assert.Equal(t, int64(1), summary.Approved)
	assert.Equal(t, int64(1), summary.Declined)
	assert.Equal(t, int64(1), summary.Escalated)
}

func TestSummaryAfterSync(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	entry := processedLoan("APP-C", loan.OutcomePendingReview, ActionEscalate, time.Hour)
	entry.EscalationID = "esc-123"
	require.NoError(t, store.Record(ctx, entry))

	_, err := store.SyncDecision(ctx, "APP-C", loan.ReviewApproved, "reviewer", "")
	require.NoError(t, err)

	summary, err := store.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Total)
	assert.Equal(t, int64(1), summary.Approved)
	assert.Equal(t, int64(1), summary.Escalated)
}

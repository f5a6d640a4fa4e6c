package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nilayparikh/loanflow/api"
	"github.com/nilayparikh/loanflow/escalation"
	"github.com/nilayparikh/loanflow/history"
	"github.com/nilayparikh/loanflow/loan"
	"github.com/nilayparikh/loanflow/pipeline"
)

type loanEnvelope struct {
	Success bool                   `json:"success"`
	Data    *history.ProcessedLoan `json:"data"`
	Error   *ErrorInfo             `json:"error"`
}

type loansEnvelope struct {
	Success bool                     `json:"success"`
	Data    []*history.ProcessedLoan `json:"data"`
}

type processEnvelope struct {
	Success bool                 `json:"success"`
	Data    *api.ProcessResponse `json:"data"`
	Error   *ErrorInfo           `json:"error"`
}

func newHistoryStore(t *testing.T) *history.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Each sqlite :memory: connection gets its own database; keep the
	// pool at one so every query sees the same tables.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store, err := history.New(db, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate())
	return store
}

func newLoanHandler(t *testing.T) (*LoanHandler, *history.Store) {
	t.Helper()
	hist := newHistoryStore(t)

	store := escalation.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	p, err := pipeline.New(pipeline.Config{
		Thresholds: loan.Thresholds{Approve: 40, Decline: 80},
	}, pipeline.Dependencies{
		Provider: &mockProvider{name: "stub"},
		Store:    store,
		History:  hist,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return NewLoanHandler(p, hist, zap.NewNop()), hist
}

// Rule score 0 across all five bands; composite stays well under the
// approve threshold regardless of the stub model score.
func strongApplication() loan.Application {
	return loan.Application{
		ApplicantID:            "APP-3001",
		FullName:               "Priya Raman",
		CreditScore:            780,
		AnnualIncome:           125000,
		MonthlyDebtPayments:    800,
		LoanAmount:             350000,
		PropertyValue:          440000,
		EmploymentMonths:       60,
		LoanType:               loan.LoanTypeConventional,
		ProposedMonthlyPayment: 2100,
	}
}

func historyEntry(applicantID string, age time.Duration) *history.ProcessedLoan {
	return &history.ProcessedLoan{
		ApplicantID: applicantID,
		FullName:    "Alice Chen",
		Decision:    loan.OutcomeApproved,
		Action:      history.ActionAutoApprove,
		Reason:      "Score 24.0 at or below approval threshold 40.0",
		Score:       24.0,
		Compliant:   true,
		Application: loan.Application{
			ApplicantID: applicantID,
			FullName:    "Alice Chen",
			CreditScore: 730,
			LoanType:    loan.LoanTypeConventional,
		},
		Thresholds:  loan.Thresholds{Approve: 40, Decline: 80},
		ProcessedAt: time.Now().UTC().Add(-age),
	}
}

func processRequest(t *testing.T, app loan.Application) *http.Request {
	t.Helper()
	body, err := json.Marshal(api.ProcessRequest{Application: app})
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/loans/process", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestLoanHandler_HandleProcess(t *testing.T) {
	h, hist := newLoanHandler(t)

	w := httptest.NewRecorder()
	h.HandleProcess(w, processRequest(t, strongApplication()))

	require.Equal(t, http.StatusOK, w.Code)

	var resp processEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.Equal(t, loan.OutcomeApproved, resp.Data.Outcome)
	assert.Equal(t, "APP-3001", resp.Data.ApplicantID)
	assert.NotEmpty(t, resp.Data.RunID)
	assert.NotEmpty(t, resp.Data.Reason)
	assert.NotEmpty(t, resp.Data.Elapsed)
	require.NotNil(t, resp.Data.Decision)
	assert.Empty(t, resp.Data.EscalationID)

	// The run lands in the audit history.
	entry, err := hist.Get(context.Background(), "APP-3001")
	require.NoError(t, err)
	assert.Equal(t, loan.OutcomeApproved, entry.Decision)
	assert.Equal(t, history.ActionAutoApprove, entry.Action)
}

func TestLoanHandler_HandleProcess_InvalidApplication(t *testing.T) {
	h, _ := newLoanHandler(t)

	w := httptest.NewRecorder()
	h.HandleProcess(w, processRequest(t, loan.Application{ApplicantID: "APP-3002"}))

	// A failed intake is a screening outcome, not a transport error.
	require.Equal(t, http.StatusOK, w.Code)

	var resp processEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.Equal(t, loan.OutcomeRejected, resp.Data.Outcome)
	require.NotNil(t, resp.Data.Intake)
	assert.False(t, resp.Data.Intake.Valid)
	assert.NotEmpty(t, resp.Data.Intake.Errors)
	assert.Nil(t, resp.Data.Assessment)
}

func TestLoanHandler_HandleProcess_BadJSON(t *testing.T) {
	h, _ := newLoanHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/loans/process", strings.NewReader(`{not json`))
	r.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	h.HandleProcess(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoanHandler_HandleList(t *testing.T) {
	h, hist := newLoanHandler(t)
	ctx := context.Background()
	require.NoError(t, hist.Record(ctx, historyEntry("APP-OLD", 3*time.Hour)))
	require.NoError(t, hist.Record(ctx, historyEntry("APP-MID", 2*time.Hour)))
	require.NoError(t, hist.Record(ctx, historyEntry("APP-NEW", time.Hour)))

	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/loans", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp loansEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "APP-NEW", resp.Data[0].ApplicantID)
	assert.Equal(t, "APP-OLD", resp.Data[2].ApplicantID)

	limited := httptest.NewRecorder()
	h.HandleList(limited, httptest.NewRequest(http.MethodGet, "/api/v1/loans?limit=2", nil))

	var page loansEnvelope
	require.NoError(t, json.NewDecoder(limited.Body).Decode(&page))
	require.Len(t, page.Data, 2)
	assert.Equal(t, "APP-NEW", page.Data[0].ApplicantID)
}

func TestLoanHandler_HandleList_Empty(t *testing.T) {
	h, _ := newLoanHandler(t)

	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/loans", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestLoanHandler_HandleList_InvalidLimit(t *testing.T) {
	h, _ := newLoanHandler(t)

	for _, raw := range []string{"abc", "-1", "1.5"} {
		t.Run(raw, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/loans?limit="+raw, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestLoanHandler_HandleList_HistoryDisabled(t *testing.T) {
	h := NewLoanHandler(nil, nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/loans", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp loanEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)
}

func TestLoanHandler_HandleGet(t *testing.T) {
	h, hist := newLoanHandler(t)
	require.NoError(t, hist.Record(context.Background(), historyEntry("APP-2024-001", time.Hour)))

	w := httptest.NewRecorder()
	h.HandleGet(w, httptest.NewRequest(http.MethodGet, "/api/v1/loans/APP-2024-001", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp loanEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Data)
	assert.Equal(t, "APP-2024-001", resp.Data.ApplicantID)
	assert.Equal(t, loan.OutcomeApproved, resp.Data.Decision)
}

func TestLoanHandler_HandleGet_NotFound(t *testing.T) {
	h, _ := newLoanHandler(t)

	w := httptest.NewRecorder()
	h.HandleGet(w, httptest.NewRequest(http.MethodGet, "/api/v1/loans/APP-UNKNOWN", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp loanEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

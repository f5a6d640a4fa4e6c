package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nilayparikh/loanflow/escalation"
	"github.com/nilayparikh/loanflow/history"
	"github.com/nilayparikh/loanflow/internal/ctxkeys"
	"github.com/nilayparikh/loanflow/loan"
)

type recordEnvelope struct {
	Success bool                   `json:"success"`
	Data    *loan.EscalationRecord `json:"data"`
	Error   *ErrorInfo             `json:"error"`
}

type recordsEnvelope struct {
	Success bool                     `json:"success"`
	Data    []*loan.EscalationRecord `json:"data"`
}

func newEscalationHandler(t *testing.T) (*EscalationHandler, escalation.Store) {
	t.Helper()
	hub := escalation.NewHub(zap.NewNop())
	t.Cleanup(hub.Close)
	store := escalation.NewNotifyingStore(escalation.NewMemoryStore(), hub)
	return NewEscalationHandler(store, hub, zap.NewNop()), store
}

func pendingRecord(applicantID, fullName string) *loan.EscalationRecord {
	return &loan.EscalationRecord{
		ApplicantID: applicantID,
		FullName:    fullName,
		Application: loan.Application{
			ApplicantID:  applicantID,
			FullName:     fullName,
			CreditScore:  612,
			AnnualIncome: 68000,
			LoanAmount:   255000,
			LoanType:     loan.LoanTypeFHA,
		},
		RiskScore:            52.5,
		Rationale:            "Borderline composite with a resolved collection.",
		RiskFactors:          []string{"Credit score 612 below prime threshold"},
		CompensatingFactors:  []string{"18 months continuous employment"},
		ComplianceConditions: []string{"Upfront MIP of 1.75% required"},
	}
}

func seedRecord(t *testing.T, store escalation.Store, applicantID, fullName string) *loan.EscalationRecord {
	t.Helper()
	record := pendingRecord(applicantID, fullName)
	require.NoError(t, store.Add(context.Background(), record))
	return record
}

func TestEscalationHandler_ListPending(t *testing.T) {
	h, store := newEscalationHandler(t)
	seedRecord(t, store, "APP-2024-003", "Carol Martinez")
	seedRecord(t, store, "APP-2024-006", "Frank Osei")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/escalations/pending", nil)
	h.HandleListPending(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp recordsEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 2)
	for _, record := range resp.Data {
		assert.Equal(t, loan.ReviewPending, record.Status)
	}
}

func TestEscalationHandler_ListPending_Empty(t *testing.T) {
	h, _ := newEscalationHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/escalations/pending", nil)
	h.HandleListPending(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	// The empty queue must serialize as [], not null.
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestEscalationHandler_ListAll_IncludesDecided(t *testing.T) {
	h, store := newEscalationHandler(t)
	first := seedRecord(t, store, "APP-2024-003", "Carol Martinez")
	seedRecord(t, store, "APP-2024-006", "Frank Osei")

	_, err := store.Decide(context.Background(), first.ID, loan.ReviewApproved, "senior.underwriter", "strong compensating factors")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/escalations", nil)
	h.HandleListAll(w, r)

	var resp recordsEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data, 2)

	pendingW := httptest.NewRecorder()
	h.HandleListPending(pendingW, httptest.NewRequest(http.MethodGet, "/api/v1/escalations/pending", nil))

	var pending recordsEnvelope
	require.NoError(t, json.NewDecoder(pendingW.Body).Decode(&pending))
	assert.Len(t, pending.Data, 1, "decided records must leave the pending view")
}

func TestEscalationHandler_Get(t *testing.T) {
	h, store := newEscalationHandler(t)
	record := seedRecord(t, store, "APP-2024-003", "Carol Martinez")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/escalations/"+record.ID, nil)
	h.HandleGet(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp recordEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Data)
	assert.Equal(t, record.ID, resp.Data.ID)
	assert.Equal(t, "Carol Martinez", resp.Data.FullName)
	assert.Equal(t, []string{"Upfront MIP of 1.75% required"}, resp.Data.ComplianceConditions)
}

func TestEscalationHandler_Get_NotFound(t *testing.T) {
	h, _ := newEscalationHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/escalations/no-such-id", nil)
	h.HandleGet(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp recordEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func decideRequest(id, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/escalations/"+id+"/decide", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestEscalationHandler_Decide(t *testing.T) {
	h, store := newEscalationHandler(t)
	record := seedRecord(t, store, "APP-2024-003", "Carol Martinez")

	w := httptest.NewRecorder()
	h.HandleDecide(w, decideRequest(record.ID,
		`{"decision":"APPROVED","reviewer":"senior.underwriter","notes":"resolved collection, strong residuals"}`))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp recordEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Data)
	assert.Equal(t, loan.ReviewApproved, resp.Data.Status)
	assert.Equal(t, "senior.underwriter", resp.Data.DecidedBy)
	assert.NotNil(t, resp.Data.DecidedAt)

	stored, err := store.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.ReviewApproved, stored.Status)
}

func TestEscalationHandler_Decide_Conflict(t *testing.T) {
	h, store := newEscalationHandler(t)
	record := seedRecord(t, store, "APP-2024-003", "Carol Martinez")

	first := httptest.NewRecorder()
	h.HandleDecide(first, decideRequest(record.ID, `{"decision":"APPROVED","reviewer":"alice.reviewer"}`))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.HandleDecide(second, decideRequest(record.ID, `{"decision":"DECLINED","reviewer":"bob.reviewer"}`))
	assert.Equal(t, http.StatusConflict, second.Code)

	// The first verdict stands.
	stored, err := store.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.ReviewApproved, stored.Status)
	assert.Equal(t, "alice.reviewer", stored.DecidedBy)
}

func TestEscalationHandler_Decide_NotFound(t *testing.T) {
	h, _ := newEscalationHandler(t)

	w := httptest.NewRecorder()
	h.HandleDecide(w, decideRequest("no-such-id", `{"decision":"APPROVED","reviewer":"alice.reviewer"}`))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEscalationHandler_Decide_InvalidDecision(t *testing.T) {
	h, store := newEscalationHandler(t)
	record := seedRecord(t, store, "APP-2024-003", "Carol Martinez")

	w := httptest.NewRecorder()
	h.HandleDecide(w, decideRequest(record.ID, `{"decision":"MAYBE","reviewer":"alice.reviewer"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stored, err := store.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.ReviewPending, stored.Status, "an invalid decision must not touch the record")
}

func TestEscalationHandler_Decide_MissingReviewer(t *testing.T) {
	h, store := newEscalationHandler(t)
	record := seedRecord(t, store, "APP-2024-003", "Carol Martinez")

	w := httptest.NewRecorder()
	h.HandleDecide(w, decideRequest(record.ID, `{"decision":"APPROVED"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEscalationHandler_Decide_ReviewerFromContext(t *testing.T) {
	h, store := newEscalationHandler(t)
	record := seedRecord(t, store, "APP-2024-003", "Carol Martinez")

	r := decideRequest(record.ID, `{"decision":"DECLINED","reviewer":"body.reviewer"}`)
	r = r.WithContext(ctxkeys.WithReviewer(r.Context(), "token.reviewer"))

	w := httptest.NewRecorder()
	h.HandleDecide(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	stored, err := store.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, "token.reviewer", stored.DecidedBy,
		"the authenticated identity must win over the body field")
}

func TestEscalationHandler_Decide_SyncsHistory(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	hist, err := history.New(db, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, hist.AutoMigrate())

	h, store := newEscalationHandler(t)
	h.WithHistory(hist)
	record := seedRecord(t, store, "APP-2024-003", "Carol Martinez")

	require.NoError(t, hist.Record(context.Background(), &history.ProcessedLoan{
		ApplicantID:  "APP-2024-003",
		FullName:     "Carol Martinez",
		Decision:     loan.OutcomePendingReview,
		Action:       history.ActionEscalate,
		Score:        52.5,
		Compliant:    true,
		EscalationID: record.ID,
	}))

	w := httptest.NewRecorder()
	h.HandleDecide(w, decideRequest(record.ID, `{"decision":"APPROVED","reviewer":"senior.underwriter"}`))
	require.Equal(t, http.StatusOK, w.Code)

	entry, err := hist.Get(context.Background(), "APP-2024-003")
	require.NoError(t, err)
	assert.Equal(t, loan.OutcomeApproved, entry.Decision)
	assert.Equal(t, "APPROVED", entry.HumanDecision)
	assert.Equal(t, "senior.underwriter", entry.HumanDecidedBy)
}

func TestEscalationHandler_Watch(t *testing.T) {
	hub := escalation.NewHub(zap.NewNop())
	t.Cleanup(hub.Close)
	store := escalation.NewNotifyingStore(escalation.NewMemoryStore(), hub)
	h := NewEscalationHandler(store, hub, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWatch))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })

	// Give the server loop a beat to subscribe before publishing.
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	record := seedRecord(t, store, "APP-2024-003", "Carol Martinez")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var escalated escalation.Event
	require.NoError(t, json.Unmarshal(data, &escalated))
	assert.Equal(t, escalation.EventEscalated, escalated.Type)
	require.NotNil(t, escalated.Record)
	assert.Equal(t, "APP-2024-003", escalated.Record.ApplicantID)

	_, err = store.Decide(context.Background(), record.ID, loan.ReviewApproved, "senior.underwriter", "")
	require.NoError(t, err)

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)

	var decided escalation.Event
	require.NoError(t, json.Unmarshal(data, &decided))
	assert.Equal(t, escalation.EventDecided, decided.Type)
	assert.Equal(t, loan.ReviewApproved, decided.Record.Status)
}

func TestExtractPathID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/escalations/esc-1", "esc-1"},
		{"/api/v1/escalations/esc-1/decide", "esc-1"},
		{"/api/v1/escalations/", ""},
		{"/api/v1/escalations/a/b/c", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.want, extractPathID(r, "/api/v1/escalations/"))
		})
	}
}

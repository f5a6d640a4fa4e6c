package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nilayparikh/loanflow/loan"
)

func newTestRecord(applicantID string) *loan.EscalationRecord {
	return &loan.EscalationRecord{
		ApplicantID: applicantID,
		FullName:    "Carol Martinez",
		Application: loan.Application{
			ApplicantID:        applicantID,
			FullName:           "Carol Martinez",
			CreditScore:        612,
			AnnualIncome:       68000,
			LoanAmount:         255000,
			PropertyValue:      264250,
			EmploymentMonths:   18,
			LoanType:           loan.LoanTypeFHA,
			FirstTimeHomebuyer: true,
		},
		RiskScore:            56.4,
		Rationale:            "Borderline credit offset by a healthy debt ratio.",
		RiskFactors:          []string{"Credit score 612 below 670"},
		CompensatingFactors:  []string{"DTI 0.3424 within 0.36 target"},
		ComplianceFlags:      nil,
		ComplianceConditions: []string{"Upfront MIP of 1.75% required"},
	}
}

// runStoreConformance exercises the Store contract. Every backend must
// pass it unchanged.
func runStoreConformance(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("AddAssignsIdentityAndPending", func(t *testing.T) {
		store := newStore(t)
		rec := newTestRecord("APP-2024-003")

		if err := store.Add(ctx, rec); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if rec.ID == "" {
			t.Error("Add did not assign an id")
		}
		if rec.Status != loan.ReviewPending {
			t.Errorf("status = %s, want PENDING", rec.Status)
		}
		if rec.EscalatedAt.IsZero() {
			t.Error("Add did not stamp the escalation time")
		}

		got, err := store.Get(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.ApplicantID != "APP-2024-003" {
			t.Errorf("ApplicantID = %s", got.ApplicantID)
		}
		if got.Application.CreditScore != 612 {
			t.Errorf("payload lost: credit score = %d", got.Application.CreditScore)
		}
		if len(got.ComplianceConditions) != 1 {
			t.Errorf("payload lost: conditions = %v", got.ComplianceConditions)
		}
	})

	t.Run("AddRejectsInvalidInput", func(t *testing.T) {
		store := newStore(t)

		if err := store.Add(ctx, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Add(nil) = %v, want ErrInvalidInput", err)
		}
		if err := store.Add(ctx, &loan.EscalationRecord{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Add(no applicant) = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("AddRejectsDuplicateApplicant", func(t *testing.T) {
		store := newStore(t)

		if err := store.Add(ctx, newTestRecord("APP-2024-003")); err != nil {
			t.Fatalf("first Add failed: %v", err)
		}
		err := store.Add(ctx, newTestRecord("APP-2024-003"))
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("duplicate Add = %v, want ErrAlreadyExists", err)
		}

		all, err := store.ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll failed: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("duplicate Add created a second record: %d records", len(all))
		}
	})

	t.Run("GetUnknownID", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListPendingOrderedByEscalationTime", func(t *testing.T) {
		store := newStore(t)
		base := time.Now().UTC().Add(-time.Hour)

		for i, applicant := range []string{"APP-B", "APP-C", "APP-A"} {
			rec := newTestRecord(applicant)
			// Deliberately out of insertion order: B newest, A oldest.
			rec.EscalatedAt = base.Add(time.Duration(2-i) * time.Minute)
			if err := store.Add(ctx, rec); err != nil {
				t.Fatalf("Add %s failed: %v", applicant, err)
			}
		}

		pending, err := store.ListPending(ctx)
		if err != nil {
			t.Fatalf("ListPending failed: %v", err)
		}
		if len(pending) != 3 {
			t.Fatalf("pending = %d records, want 3", len(pending))
		}
		want := []string{"APP-A", "APP-C", "APP-B"}
		for i, rec := range pending {
			if rec.ApplicantID != want[i] {
				t.Errorf("pending[%d] = %s, want %s", i, rec.ApplicantID, want[i])
			}
		}
	})

	t.Run("DecideTransitionsOnce", func(t *testing.T) {
		store := newStore(t)
		rec := newTestRecord("APP-2024-003")
		if err := store.Add(ctx, rec); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		decided, err := store.Decide(ctx, rec.ID, loan.ReviewApproved, "senior-underwriter", "Compensating factors hold up")
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if decided.Status != loan.ReviewApproved {
			t.Errorf("status = %s", decided.Status)
		}
		if decided.DecidedAt == nil {
			t.Error("DecidedAt not set")
		}
		if decided.DecidedBy != "senior-underwriter" {
			t.Errorf("DecidedBy = %s", decided.DecidedBy)
		}

		// The decision is final: a second attempt fails and changes nothing.
		if _, err := store.Decide(ctx, rec.ID, loan.ReviewDeclined, "second-reviewer", "overrule"); !errors.Is(err, ErrAlreadyDecided) {
			t.Fatalf("second Decide = %v, want ErrAlreadyDecided", err)
		}
		got, err := store.Get(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Status != loan.ReviewApproved || got.DecidedBy != "senior-underwriter" {
			t.Errorf("decision overwritten: status=%s by=%s", got.Status, got.DecidedBy)
		}

		// Decided records leave the pending queue but stay listed.
		pending, _ := store.ListPending(ctx)
		if len(pending) != 0 {
			t.Errorf("pending = %d records after decision", len(pending))
		}
		all, _ := store.ListAll(ctx)
		if len(all) != 1 {
			t.Errorf("decided record dropped from ListAll")
		}
	})

	t.Run("DecideValidation", func(t *testing.T) {
		store := newStore(t)
		rec := newTestRecord("APP-2024-003")
		if err := store.Add(ctx, rec); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		if _, err := store.Decide(ctx, "missing", loan.ReviewApproved, "r", ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("unknown id = %v, want ErrNotFound", err)
		}
		if _, err := store.Decide(ctx, rec.ID, loan.ReviewPending, "r", ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("PENDING decision = %v, want ErrInvalidInput", err)
		}
		if _, err := store.Decide(ctx, rec.ID, loan.ReviewApproved, "  ", ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("blank reviewer = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("InfoRequestedIsTerminal", func(t *testing.T) {
		store := newStore(t)
		rec := newTestRecord("APP-2024-003")
		if err := store.Add(ctx, rec); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if _, err := store.Decide(ctx, rec.ID, loan.ReviewInfoRequested, "reviewer", "need bank statements"); err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if _, err := store.Decide(ctx, rec.ID, loan.ReviewApproved, "reviewer", ""); !errors.Is(err, ErrAlreadyDecided) {
			t.Errorf("decide after INFO_REQUESTED = %v, want ErrAlreadyDecided", err)
		}
	})

	t.Run("ConcurrentDecideOneWinner", func(t *testing.T) {
		store := newStore(t)
		rec := newTestRecord("APP-2024-003")
		if err := store.Add(ctx, rec); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		const reviewers = 16
		var wg sync.WaitGroup
		errs := make([]error, reviewers)

		for i := 0; i < reviewers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				decision := loan.ReviewApproved
				if i%2 == 1 {
					decision = loan.ReviewDeclined
				}
				_, errs[i] = store.Decide(ctx, rec.ID, decision, "reviewer", "")
			}(i)
		}
		wg.Wait()

		var wins, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyDecided):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		if wins != 1 {
			t.Errorf("wins = %d, want exactly 1", wins)
		}
		if conflicts != reviewers-1 {
			t.Errorf("conflicts = %d, want %d", conflicts, reviewers-1)
		}

		got, err := store.Get(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Status == loan.ReviewPending {
			t.Error("record still PENDING after a winning decision")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		store := newStore(t)

		a := newTestRecord("APP-A")
		a.EscalatedAt = time.Now().UTC().Add(-10 * time.Minute)
		b := newTestRecord("APP-B")
		c := newTestRecord("APP-C")
		for _, rec := range []*loan.EscalationRecord{a, b, c} {
			if err := store.Add(ctx, rec); err != nil {
				t.Fatalf("Add failed: %v", err)
			}
		}
		if _, err := store.Decide(ctx, b.ID, loan.ReviewApproved, "reviewer", ""); err != nil {
			t.Fatalf("Decide failed: %v", err)
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.Total != 3 {
			t.Errorf("Total = %d, want 3", stats.Total)
		}
		if stats.Pending != 2 {
			t.Errorf("Pending = %d, want 2", stats.Pending)
		}
		if stats.Approved != 1 {
			t.Errorf("Approved = %d, want 1", stats.Approved)
		}
		if stats.OldestPendingAge < 9*time.Minute {
			t.Errorf("OldestPendingAge = %v, want >= 9m", stats.OldestPendingAge)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)
		if err := store.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

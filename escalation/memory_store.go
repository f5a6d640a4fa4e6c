package escalation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nilayparikh/loanflow/loan"
)

// MemoryStore is an in-memory implementation of Store. Suitable for
// development and testing. Data is lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[string]*loan.EscalationRecord
	byApplicant map[string]string
	closed      bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory escalation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]*loan.EscalationRecord),
		byApplicant: make(map[string]string),
	}
}

// Add inserts a new PENDING record, rejecting duplicate applicants.
func (s *MemoryStore) Add(ctx context.Context, record *loan.EscalationRecord) error {
	if err := validateNewRecord(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, exists := s.byApplicant[record.ApplicantID]; exists {
		return ErrAlreadyExists
	}

	r := prepareRecord(record)
	s.records[r.ID] = r
	s.byApplicant[r.ApplicantID] = r.ID

	// Report the assigned id back to the caller.
	record.ID = r.ID
	record.Status = r.Status
	record.EscalatedAt = r.EscalatedAt
	return nil
}

// Get retrieves a record by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*loan.EscalationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// ListPending returns PENDING records, oldest escalation first.
func (s *MemoryStore) ListPending(ctx context.Context) ([]*loan.EscalationRecord, error) {
	return s.list(func(r *loan.EscalationRecord) bool { return r.Status == loan.ReviewPending })
}

// ListAll returns every record, oldest escalation first.
func (s *MemoryStore) ListAll(ctx context.Context) ([]*loan.EscalationRecord, error) {
	return s.list(func(*loan.EscalationRecord) bool { return true })
}

func (s *MemoryStore) list(keep func(*loan.EscalationRecord) bool) ([]*loan.EscalationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	result := make([]*loan.EscalationRecord, 0)
	for _, r := range s.records {
		if keep(r) {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EscalatedAt.Before(result[j].EscalatedAt)
	})
	return result, nil
}

// Decide performs the PENDING to decided transition under the store
// lock, so one of any set of concurrent callers wins and the rest get
// ErrAlreadyDecided.
func (s *MemoryStore) Decide(ctx context.Context, id string, decision loan.ReviewStatus, reviewer, notes string) (*loan.EscalationRecord, error) {
	if err := validateDecision(decision, reviewer); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != loan.ReviewPending {
		return nil, ErrAlreadyDecided
	}

	now := time.Now().UTC()
	r.Status = decision
	r.DecidedAt = &now
	r.DecidedBy = reviewer
	r.DecisionNotes = notes

	return r.Clone(), nil
}

// Stats summarizes the queue.
func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	stats := &Stats{}
	var oldestPending time.Time
	var totalDecisionTime time.Duration
	var decidedCount int64

	for _, r := range s.records {
		stats.Total++
		switch r.Status {
		case loan.ReviewPending:
			stats.Pending++
			if oldestPending.IsZero() || r.EscalatedAt.Before(oldestPending) {
				oldestPending = r.EscalatedAt
			}
		case loan.ReviewApproved:
			stats.Approved++
		case loan.ReviewDeclined:
			stats.Declined++
		case loan.ReviewInfoRequested:
			stats.InfoRequested++
		}
		if r.DecidedAt != nil {
			totalDecisionTime += r.DecidedAt.Sub(r.EscalatedAt)
			decidedCount++
		}
	}

	if !oldestPending.IsZero() {
		stats.OldestPendingAge = time.Since(oldestPending)
	}
	if decidedCount > 0 {
		stats.AverageDecisionTime = totalDecisionTime / time.Duration(decidedCount)
	}
	return stats, nil
}

// Ping checks if the store is healthy.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close closes the store. Records are retained until process exit so
// late readers fail with ErrStoreClosed rather than seeing an empty
// queue.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Package escalation holds borderline loan applications pending a
// human decision.
//
// Records enter with status PENDING and leave it exactly once: the
// PENDING to decided transition is a compare-and-swap keyed by record
// id, so concurrent reviewers racing on the same record produce one
// winner and clean conflicts for the rest. Records are never deleted;
// the queue doubles as the review audit trail.
//
// Supported backends:
// - Memory: for development and testing (default)
// - Database: SQLite, PostgreSQL, or MySQL through GORM
// - Mongo: for deployments already running MongoDB
package escalation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nilayparikh/loanflow/loan"
)

// Common errors
var (
	ErrNotFound       = errors.New("escalation not found")
	ErrAlreadyExists  = errors.New("escalation already exists for applicant")
	ErrAlreadyDecided = errors.New("escalation already decided")
	ErrStoreClosed    = errors.New("store is closed")
	ErrInvalidInput   = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeDatabase StoreType = "database"
	StoreTypeMongo    StoreType = "mongo"
)

// ParseStoreType converts a configuration string to a StoreType.
func ParseStoreType(s string) (StoreType, error) {
	switch StoreType(strings.ToLower(strings.TrimSpace(s))) {
	case StoreTypeMemory:
		return StoreTypeMemory, nil
	case StoreTypeDatabase:
		return StoreTypeDatabase, nil
	case StoreTypeMongo:
		return StoreTypeMongo, nil
	default:
		return "", errors.New("unsupported store type: " + s)
	}
}

// MongoConfig contains Mongo-specific configuration.
type MongoConfig struct {
	// URI is the MongoDB connection string.
	URI string `json:"uri" yaml:"uri"`

	// Database defaults to "loanflow".
	Database string `json:"database" yaml:"database"`

	// Collection defaults to "escalations".
	Collection string `json:"collection" yaml:"collection"`

	// ConnectTimeout bounds the initial ping. Defaults to 10s.
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// Config selects and configures a store backend. Database-backed
// stores receive their connection through Dependencies rather than
// opening one here; the review queue shares the process-wide pool.
type Config struct {
	// Type is the storage backend type.
	Type StoreType `json:"type" yaml:"type"`

	// Mongo configuration (only used when Type is "mongo").
	Mongo MongoConfig `json:"mongo" yaml:"mongo"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Type: StoreTypeMemory,
		Mongo: MongoConfig{
			Database:       "loanflow",
			Collection:     "escalations",
			ConnectTimeout: 10 * time.Second,
		},
	}
}

// Stats summarizes the review queue.
type Stats struct {
	Total               int64         `json:"total"`
	Pending             int64         `json:"pending"`
	Approved            int64         `json:"approved"`
	Declined            int64         `json:"declined"`
	InfoRequested       int64         `json:"info_requested"`
	OldestPendingAge    time.Duration `json:"oldest_pending_age"`
	AverageDecisionTime time.Duration `json:"average_decision_time"`
}

// Store is the review queue contract. Add and Decide must be
// linearizable per record: Add rejects a second record for the same
// applicant, and Decide performs the single PENDING to decided
// transition atomically.
type Store interface {
	// Add inserts a new PENDING record. Fails with ErrAlreadyExists
	// when a record for the same applicant id is already queued.
	Add(ctx context.Context, record *loan.EscalationRecord) error

	// Get returns the record by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*loan.EscalationRecord, error)

	// ListPending returns PENDING records ordered by escalation time
	// ascending, oldest first.
	ListPending(ctx context.Context) ([]*loan.EscalationRecord, error)

	// ListAll returns every record regardless of status, ordered by
	// escalation time ascending.
	ListAll(ctx context.Context) ([]*loan.EscalationRecord, error)

	// Decide transitions a PENDING record to the given terminal status
	// and returns the updated record. Fails with ErrNotFound for an
	// unknown id and ErrAlreadyDecided when the record has already
	// left PENDING; the existing decision is never overwritten.
	Decide(ctx context.Context, id string, decision loan.ReviewStatus, reviewer, notes string) (*loan.EscalationRecord, error)

	// Stats summarizes queue depth and decision latency.
	Stats(ctx context.Context) (*Stats, error)

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}

// prepareRecord normalizes an incoming record: a fresh id when unset,
// forced PENDING status, UTC escalation time, and no leftover decision
// fields regardless of what the caller passed.
func prepareRecord(record *loan.EscalationRecord) *loan.EscalationRecord {
	r := record.Clone()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.EscalatedAt.IsZero() {
		r.EscalatedAt = time.Now().UTC()
	}
	r.Status = loan.ReviewPending
	r.DecidedAt = nil
	r.DecidedBy = ""
	r.DecisionNotes = ""
	return r
}

func validateNewRecord(record *loan.EscalationRecord) error {
	if record == nil || record.ApplicantID == "" {
		return ErrInvalidInput
	}
	return nil
}

func validateDecision(decision loan.ReviewStatus, reviewer string) error {
	switch decision {
	case loan.ReviewApproved, loan.ReviewDeclined, loan.ReviewInfoRequested:
	default:
		return ErrInvalidInput
	}
	if strings.TrimSpace(reviewer) == "" {
		return ErrInvalidInput
	}
	return nil
}

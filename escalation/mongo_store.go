package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/loan"
)

type escalationDoc struct {
	ID            string        `bson:"_id"`
	ApplicantID   string        `bson:"applicant_id"`
	FullName      string        `bson:"full_name,omitempty"`
	RiskScore     float64       `bson:"risk_score"`
	Status        string        `bson:"status"`
	EscalatedAt   time.Time     `bson:"escalated_at"`
	DecidedAt     *time.Time    `bson:"decided_at,omitempty"`
	DecidedBy     string        `bson:"decided_by,omitempty"`
	DecisionNotes string        `bson:"decision_notes,omitempty"`
	Payload       recordPayload `bson:"payload"`
	CreatedAt     time.Time     `bson:"created_at"`
	UpdatedAt     time.Time     `bson:"updated_at"`
}

// MongoStore is a MongoDB-backed implementation of Store. The decision
// CAS is a FindOneAndUpdate filtered on {_id, status: PENDING}; the
// single-document atomicity guarantee gives exactly-one-winner
// semantics without transactions.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to MongoDB, verifies reachability, and
// ensures the applicant unique index.
func NewMongoStore(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo store requires a connection URI")
	}
	if cfg.Database == "" {
		cfg.Database = "loanflow"
	}
	if cfg.Collection == "" {
		cfg.Collection = "escalations"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(pingCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "applicant_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure applicant index: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   coll,
		logger: logger.With(zap.String("component", "escalation_store"), zap.String("backend", "mongo")),
	}, nil
}

// Add inserts a new PENDING record, rejecting duplicate applicants.
func (s *MongoStore) Add(ctx context.Context, record *loan.EscalationRecord) error {
	if err := validateNewRecord(record); err != nil {
		return err
	}

	r := prepareRecord(record)
	now := time.Now().UTC()
	doc := escalationDoc{
		ID:          r.ID,
		ApplicantID: r.ApplicantID,
		FullName:    r.FullName,
		RiskScore:   r.RiskScore,
		Status:      string(r.Status),
		EscalatedAt: r.EscalatedAt,
		Payload: recordPayload{
			Application:          r.Application,
			Rationale:            r.Rationale,
			RiskFactors:          r.RiskFactors,
			CompensatingFactors:  r.CompensatingFactors,
			ComplianceFlags:      r.ComplianceFlags,
			ComplianceConditions: r.ComplianceConditions,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
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
func (s *MongoStore) Get(ctx context.Context, id string) (*loan.EscalationRecord, error) {
	var doc escalationDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load escalation: %w", err)
	}
	return recordFromDoc(&doc), nil
}

// ListPending returns PENDING records, oldest escalation first.
func (s *MongoStore) ListPending(ctx context.Context) ([]*loan.EscalationRecord, error) {
	return s.find(ctx, bson.M{"status": string(loan.ReviewPending)})
}

// ListAll returns every record, oldest escalation first.
func (s *MongoStore) ListAll(ctx context.Context) ([]*loan.EscalationRecord, error) {
	return s.find(ctx, bson.M{})
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]*loan.EscalationRecord, error) {
	cur, err := s.coll.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "escalated_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer cur.Close(ctx)

	var docs []escalationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode escalations: %w", err)
	}

	records := make([]*loan.EscalationRecord, 0, len(docs))
	for i := range docs {
		records = append(records, recordFromDoc(&docs[i]))
	}
	return records, nil
}

// Decide atomically updates the record iff it is still PENDING.
func (s *MongoStore) Decide(ctx context.Context, id string, decision loan.ReviewStatus, reviewer, notes string) (*loan.EscalationRecord, error) {
	if err := validateDecision(decision, reviewer); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": string(loan.ReviewPending)},
		bson.M{"$set": bson.M{
			"status":         string(decision),
			"decided_at":     now,
			"decided_by":     reviewer,
			"decision_notes": notes,
			"updated_at":     now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var doc escalationDoc
	err := res.Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyDecided
	}
	if err != nil {
		return nil, fmt.Errorf("update escalation decision: %w", err)
	}

	s.logger.Info("escalation decided",
		zap.String("id", id),
		zap.String("decision", string(decision)),
		zap.String("reviewer", reviewer),
	)
	return recordFromDoc(&doc), nil
}

// Stats summarizes the queue.
func (s *MongoStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	cur, err := s.coll.Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("count escalations: %w", err)
	}
	var counts []struct {
		Status string `bson:"_id"`
		N      int64  `bson:"n"`
	}
	if err := cur.All(ctx, &counts); err != nil {
		return nil, fmt.Errorf("decode status counts: %w", err)
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
		var oldest struct {
			EscalatedAt time.Time `bson:"escalated_at"`
		}
		err := s.coll.FindOne(ctx,
			bson.M{"status": string(loan.ReviewPending)},
			options.FindOne().
				SetSort(bson.D{{Key: "escalated_at", Value: 1}}).
				SetProjection(bson.M{"escalated_at": 1}),
		).Decode(&oldest)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("oldest pending escalation: %w", err)
		}
		if !oldest.EscalatedAt.IsZero() {
			stats.OldestPendingAge = time.Since(oldest.EscalatedAt)
		}
	}

	avgCur, err := s.coll.Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "decided_at", Value: bson.D{{Key: "$ne", Value: nil}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "decision_ms", Value: bson.D{{Key: "$subtract", Value: bson.A{"$decided_at", "$escalated_at"}}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "avg_ms", Value: bson.D{{Key: "$avg", Value: "$decision_ms"}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("average decision time: %w", err)
	}
	var avg []struct {
		AvgMS float64 `bson:"avg_ms"`
	}
	if err := avgCur.All(ctx, &avg); err != nil {
		return nil, fmt.Errorf("decode average decision time: %w", err)
	}
	if len(avg) > 0 {
		stats.AverageDecisionTime = time.Duration(avg[0].AvgMS * float64(time.Millisecond))
	}

	return stats, nil
}

// Ping checks MongoDB connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func recordFromDoc(doc *escalationDoc) *loan.EscalationRecord {
	return &loan.EscalationRecord{
		ID:                   doc.ID,
		ApplicantID:          doc.ApplicantID,
		FullName:             doc.FullName,
		Application:          doc.Payload.Application,
		RiskScore:            doc.RiskScore,
		Rationale:            doc.Payload.Rationale,
		RiskFactors:          doc.Payload.RiskFactors,
		CompensatingFactors:  doc.Payload.CompensatingFactors,
		ComplianceFlags:      doc.Payload.ComplianceFlags,
		ComplianceConditions: doc.Payload.ComplianceConditions,
		Status:               loan.ReviewStatus(doc.Status),
		EscalatedAt:          doc.EscalatedAt,
		DecidedAt:            doc.DecidedAt,
		DecidedBy:            doc.DecidedBy,
		DecisionNotes:        doc.DecisionNotes,
	}
}

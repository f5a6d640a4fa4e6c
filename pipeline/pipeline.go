// Package pipeline sequences a loan application through intake, risk
// scoring, compliance checking, threshold routing and, for borderline
// cases, escalation into the human review queue. Every run produces one
// append-only Result carrying the full audit trail, and is mirrored
// into the processed-loan history when a history store is wired.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/compliance"
	"github.com/nilayparikh/loanflow/decision"
	"github.com/nilayparikh/loanflow/escalation"
	"github.com/nilayparikh/loanflow/history"
	"github.com/nilayparikh/loanflow/intake"
	"github.com/nilayparikh/loanflow/internal/ctxkeys"
	"github.com/nilayparikh/loanflow/internal/metrics"
	"github.com/nilayparikh/loanflow/loan"
	"github.com/nilayparikh/loanflow/risk"
	"github.com/nilayparikh/loanflow/riskmodel"
	"github.com/nilayparikh/loanflow/types"
)

// Stage names one pipeline phase, used in timings, logs and metrics.
type Stage string

const (
	StageIntake     Stage = "intake"
	StageRisk       Stage = "risk_scorer"
	StageCompliance Stage = "compliance"
	StageRouting    Stage = "decision_router"
	StageEscalation Stage = "escalation"
)

// StageTiming records how long one stage took.
type StageTiming struct {
	Stage   Stage         `json:"stage"`
	Elapsed time.Duration `json:"elapsed"`
}

// Result is the audit record for one pipeline run. Stages that never
// ran (after an intake rejection) stay nil.
type Result struct {
	RunID        string                 `json:"run_id"`
	ApplicantID  string                 `json:"applicant_id"`
	Intake       *loan.IntakeResult     `json:"intake"`
	Assessment   *loan.RiskAssessment   `json:"assessment,omitempty"`
	Compliance   *loan.ComplianceReport `json:"compliance,omitempty"`
	Decision     *loan.Decision         `json:"decision"`
	EscalationID string                 `json:"escalation_id,omitempty"`
	Stages       []StageTiming          `json:"stages"`
	Elapsed      time.Duration          `json:"elapsed"`
	ProcessedAt  time.Time              `json:"processed_at"`
}

// Outcome returns the routed outcome, or empty before routing.
func (r *Result) Outcome() loan.Outcome {
	if r.Decision == nil {
		return ""
	}
	return r.Decision.Outcome
}

// Escalated reports whether this run queued a record for human review.
func (r *Result) Escalated() bool {
	return r.EscalationID != ""
}

// Config carries the pipeline's routing thresholds and the bound on a
// single model call.
type Config struct {
	Thresholds   loan.Thresholds
	ModelTimeout time.Duration
}

// Dependencies are the pipeline's collaborators. Provider and Store are
// required; History and Metrics are optional.
type Dependencies struct {
	Provider riskmodel.Provider
	Store    escalation.Store
	History  *history.Store
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

// Pipeline runs applications through the five stages in order.
type Pipeline struct {
	validator *intake.Validator
	scorer    *risk.Scorer
	checker   *compliance.Checker
	router    *decision.Router

	store   escalation.Store
	history *history.Store
	metrics *metrics.Collector
	logger  *zap.Logger
	tracer  trace.Tracer

	thresholds loan.Thresholds
}

// New validates the configuration and assembles the pipeline. Threshold
// or provider problems surface here, not on the first application.
func New(cfg Config, deps Dependencies) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, types.NewConfigurationError("pipeline requires an escalation store")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	scorer, err := risk.NewScorer(risk.Config{
		Thresholds:   cfg.Thresholds,
		ModelTimeout: cfg.ModelTimeout,
	}, deps.Provider, logger)
	if err != nil {
		return nil, err
	}
	router, err := decision.NewRouter(cfg.Thresholds, logger)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		validator:  intake.NewValidator(logger),
		scorer:     scorer,
		checker:    compliance.NewChecker(logger),
		router:     router,
		store:      deps.Store,
		history:    deps.History,
		metrics:    deps.Metrics,
		logger:     logger.With(zap.String("component", "pipeline")),
		tracer:     otel.Tracer("loanflow/pipeline"),
		thresholds: cfg.Thresholds,
	}, nil
}

// Process runs one application end to end. Invalid applications come
// back as a REJECTED Result with a nil error; only infrastructure and
// configuration problems surface as errors.
func (p *Pipeline) Process(ctx context.Context, app *loan.Application) (*Result, error) {
	runID, ok := ctxkeys.RunID(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = ctxkeys.WithRunID(ctx, runID)
	}

	applicantID := ""
	fullName := ""
	if app != nil {
		applicantID = app.ApplicantID
		fullName = app.FullName
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("applicant_id", applicantID),
		),
	)
	defer span.End()

	logger := p.logger.With(
		zap.String("run_id", runID),
		zap.String("applicant_id", applicantID),
	)
	logger.Info("pipeline started", zap.String("full_name", fullName))

	start := time.Now()
	result := &Result{
		RunID:       runID,
		ApplicantID: applicantID,
		ProcessedAt: start.UTC(),
	}

	// Stage 1: intake validation.
	stageStart := time.Now()
	intakeResult, err := p.validator.Validate(app)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result.Intake = intakeResult
	result.ApplicantID = intakeResult.Application.ApplicantID
	p.observeStage(result, StageIntake, stageStart, logger)

	if !intakeResult.Valid {
		result.Decision = &loan.Decision{
			ApplicantID: result.ApplicantID,
			Outcome:     loan.OutcomeRejected,
			Thresholds:  p.thresholds,
			Reason:      "Application failed intake validation",
			DecidedAt:   time.Now().UTC(),
		}
		span.SetAttributes(attribute.String("outcome", string(loan.OutcomeRejected)))
		logger.Warn("pipeline aborted, intake validation failed",
			zap.Strings("errors", intakeResult.Errors),
		)
		p.finish(ctx, result, start, logger)
		return result, nil
	}

	// Stage 2: risk scoring. Model failures degrade inside the scorer
	// and never abort the run.
	stageStart = time.Now()
	assessment, err := p.scorer.Score(ctx, intakeResult)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result.Assessment = assessment
	p.observeStage(result, StageRisk, stageStart, logger)
	span.SetAttributes(
		attribute.Float64("risk_score", assessment.CompositeScore),
		attribute.String("risk_category", string(assessment.Category)),
		attribute.Bool("degraded", assessment.Degraded),
	)
	if assessment.Degraded && p.metrics != nil {
		p.metrics.RecordDegradedRun()
	}

	// Stage 3: compliance check.
	stageStart = time.Now()
	report, err := p.checker.Check(intakeResult)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result.Compliance = report
	p.observeStage(result, StageCompliance, stageStart, logger)

	// Stage 4: threshold routing.
	stageStart = time.Now()
	routed, err := p.router.Route(assessment, report)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result.Decision = routed
	p.observeStage(result, StageRouting, stageStart, logger)
	span.SetAttributes(attribute.String("outcome", string(routed.Outcome)))

	// Stage 5: escalation, only for borderline outcomes.
	if routed.Outcome == loan.OutcomePendingReview {
		stageStart = time.Now()
		if err := p.escalate(ctx, result, logger); err != nil {
			span.RecordError(err)
			return nil, err
		}
		p.observeStage(result, StageEscalation, stageStart, logger)
	}
	span.SetAttributes(attribute.Bool("escalated", result.Escalated()))

	p.finish(ctx, result, start, logger)
	return result, nil
}

// escalate queues the run for human review. A duplicate applicant means
// an earlier run is already awaiting review; the run completes without
// a new record.
func (p *Pipeline) escalate(ctx context.Context, result *Result, logger *zap.Logger) error {
	record := &loan.EscalationRecord{
		ApplicantID:          result.ApplicantID,
		FullName:             result.Intake.Application.FullName,
		Application:          result.Intake.Application,
		RiskScore:            result.Assessment.CompositeScore,
		Rationale:            result.Assessment.Rationale,
		RiskFactors:          result.Assessment.RiskFactors,
		CompensatingFactors:  result.Assessment.CompensatingFactors,
		ComplianceFlags:      result.Compliance.Flags,
		ComplianceConditions: result.Compliance.Conditions,
	}

	err := p.store.Add(ctx, record)
	switch {
	case err == nil:
		result.EscalationID = record.ID
		if p.metrics != nil {
			p.metrics.RecordEscalationEvent("escalated")
		}
		logger.Info("escalation queued",
			zap.String("escalation_id", record.ID),
			zap.Float64("risk_score", record.RiskScore),
		)
		return nil
	case errors.Is(err, escalation.ErrAlreadyExists):
		logger.Warn("applicant already awaiting review, no new escalation created")
		return nil
	default:
		return types.NewDependencyError("escalation store unavailable").
			WithStage(string(StageEscalation)).
			WithCause(err)
	}
}

// finish stamps the total elapsed time, mirrors the run into history
// and metrics, and writes the closing log line.
func (p *Pipeline) finish(ctx context.Context, result *Result, start time.Time, logger *zap.Logger) {
	result.Elapsed = time.Since(start)

	if p.history != nil {
		if err := p.history.Record(ctx, p.historyEntry(result)); err != nil {
			logger.Warn("loan history write failed", zap.Error(err))
		}
	}
	if p.metrics != nil {
		p.metrics.RecordPipelineRun(string(result.Outcome()), result.Elapsed)
	}

	logger.Info("pipeline complete",
		zap.String("outcome", string(result.Outcome())),
		zap.Duration("elapsed", result.Elapsed),
		zap.Bool("escalated", result.Escalated()),
	)
}

func (p *Pipeline) observeStage(result *Result, stage Stage, start time.Time, logger *zap.Logger) {
	elapsed := time.Since(start)
	result.Stages = append(result.Stages, StageTiming{Stage: stage, Elapsed: elapsed})
	if p.metrics != nil {
		p.metrics.RecordPipelineStage(string(stage), elapsed)
	}
	logger.Debug("stage complete",
		zap.String("stage", string(stage)),
		zap.Duration("elapsed", elapsed),
	)
}

// historyEntry flattens the run into a processed-loan row.
func (p *Pipeline) historyEntry(result *Result) *history.ProcessedLoan {
	entry := &history.ProcessedLoan{
		ApplicantID:  result.ApplicantID,
		FullName:     result.Intake.Application.FullName,
		Decision:     result.Outcome(),
		Action:       history.ActionIntakeRejected,
		Reason:       result.Decision.Reason,
		Compliant:    true,
		Application:  result.Intake.Application,
		Thresholds:   result.Decision.Thresholds,
		EscalationID: result.EscalationID,
		ProcessedAt:  result.ProcessedAt,
	}
	if result.Assessment != nil {
		entry.Action = history.ActionForCategory(result.Assessment.Category)
		entry.Score = result.Assessment.CompositeScore
		entry.RiskFactors = result.Assessment.RiskFactors
		entry.CompensatingFactors = result.Assessment.CompensatingFactors
		entry.Rationale = result.Assessment.Rationale
	}
	if result.Compliance != nil {
		entry.Compliant = result.Compliance.Compliant
		entry.Flags = result.Compliance.Flags
		entry.Conditions = result.Compliance.Conditions
	}
	return entry
}

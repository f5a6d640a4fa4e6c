// Package risk computes composite risk scores for validated loan
// applications. A deterministic rule pass carries 40% of the score and
// a model assessment carries 60%; when the model is unreachable the
// rule score carries full weight and the assessment is flagged
// degraded instead of failing the run.
package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/loan"
	"github.com/nilayparikh/loanflow/riskmodel"
	"github.com/nilayparikh/loanflow/types"
)

// ErrNilIntake marks a programmer error, not a scoring failure.
var ErrNilIntake = errors.New("intake result must not be nil")

// Composite blend weights.
const (
	ruleWeight  = 0.4
	modelWeight = 0.6
)

// Rule band cut points. Each of the five checks awards 0, 10, or 20
// points, so the rule score spans [0,100] with higher meaning riskier.
const (
	primeCreditScore = 740
	fairCreditScore  = 670

	targetDTI  = 0.36
	ceilingDTI = 0.43

	equityLTV  = 0.80
	stretchLTV = 0.95

	stableEmploymentMonths = 36
	minEmploymentMonths    = 12

	strongCoverageRatio = 0.3
	thinCoverageRatio   = 0.2
)

// Config holds Scorer construction parameters.
type Config struct {
	// Thresholds band the composite score into categories that mirror
	// the routing outcomes.
	Thresholds loan.Thresholds

	// ModelTimeout bounds the single model call. Defaults to 45s.
	ModelTimeout time.Duration
}

// Scorer blends rule evaluation with one bounded model call per
// application. Safe for concurrent use.
type Scorer struct {
	provider     riskmodel.Provider
	thresholds   loan.Thresholds
	modelTimeout time.Duration
	logger       *zap.Logger
}

// NewScorer creates a Scorer. The thresholds are validated here so a
// misordered pair fails construction rather than the first scoring run.
func NewScorer(cfg Config, provider riskmodel.Provider, logger *zap.Logger) (*Scorer, error) {
	if provider == nil {
		return nil, types.NewConfigurationError("risk scorer requires a model provider")
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if cfg.ModelTimeout == 0 {
		cfg.ModelTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		provider:     provider,
		thresholds:   cfg.Thresholds,
		modelTimeout: cfg.ModelTimeout,
		logger:       logger.With(zap.String("component", "risk_scorer")),
	}, nil
}

// Score assesses one validated application. The model call is bounded
// by the configured timeout; any model failure degrades the assessment
// to the rule score at full weight. The returned error is non-nil only
// for a nil intake result.
func (s *Scorer) Score(ctx context.Context, result *loan.IntakeResult) (*loan.RiskAssessment, error) {
	if result == nil {
		return nil, ErrNilIntake
	}
	app := result.Application

	rule, riskFactors, compensating := ruleScore(app, result.DTI, result.LTV)
	s.logger.Debug("rule evaluation complete",
		zap.String("applicant_id", app.ApplicantID),
		zap.Int("rule_score", rule),
	)

	assessment := &loan.RiskAssessment{
		ApplicantID: app.ApplicantID,
		RuleScore:   rule,
	}

	mctx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	defer cancel()

	verdict, err := s.provider.Assess(mctx, riskmodel.Input{
		Application: app,
		DTI:         result.DTI,
		LTV:         result.LTV,
		RuleScore:   rule,
	})
	if err != nil {
		s.logger.Warn("model assessment failed, rule score carries full weight",
			zap.String("applicant_id", app.ApplicantID),
			zap.String("provider", s.provider.Name()),
			zap.Error(err),
		)
		assessment.CompositeScore = float64(rule)
		assessment.Degraded = true
		assessment.DegradedReason = err.Error()
		assessment.Rationale = "Model assessment unavailable; deterministic rules carried full weight."
		assessment.RiskFactors = riskFactors
		assessment.CompensatingFactors = compensating
	} else {
		assessment.ModelScore = verdict.Score
		assessment.CompositeScore = Composite(rule, verdict.Score)
		assessment.Rationale = verdict.Reasoning
		assessment.RiskFactors = append(riskFactors, verdict.RiskFactors...)
		assessment.CompensatingFactors = append(compensating, verdict.CompensatingFactors...)
	}

	assessment.Category = s.categorize(assessment.CompositeScore)

	s.logger.Info("risk scoring complete",
		zap.String("applicant_id", app.ApplicantID),
		zap.Float64("composite_score", assessment.CompositeScore),
		zap.Int("rule_score", rule),
		zap.Float64("model_score", assessment.ModelScore),
		zap.String("category", string(assessment.Category)),
		zap.Bool("degraded", assessment.Degraded),
	)

	return assessment, nil
}

// Composite blends the two scores: 0.4 x rule + 0.6 x model.
func Composite(rule int, model float64) float64 {
	return ruleWeight*float64(rule) + modelWeight*model
}

func (s *Scorer) categorize(score float64) loan.RiskCategory {
	switch {
	case score <= s.thresholds.Approve:
		return loan.CategoryAutoApprove
	case score >= s.thresholds.Decline:
		return loan.CategoryAutoDecline
	default:
		return loan.CategoryEscalate
	}
}

// ruleScore runs the five deterministic checks. Zero-point bands
// become compensating factors and scoring bands become risk factors,
// so reviewers see the same evidence the score was built from.
func ruleScore(app loan.Application, dti, ltv float64) (total int, riskFactors, compensating []string) {
	score := func(points int, note string) {
		total += points
		if points == 0 {
			compensating = append(compensating, note)
		} else {
			riskFactors = append(riskFactors, note)
		}
	}
	score(creditBand(app.CreditScore))
	score(dtiBand(dti))
	score(ltvBand(ltv))
	score(employmentBand(app.EmploymentMonths))
	score(coverageBand(app.AnnualIncome, app.LoanAmount))
	return total, riskFactors, compensating
}

func creditBand(cs int) (int, string) {
	switch {
	case cs >= primeCreditScore:
		return 0, fmt.Sprintf("Credit score %d in prime range", cs)
	case cs >= fairCreditScore:
		return 10, fmt.Sprintf("Credit score %d below prime threshold %d", cs, primeCreditScore)
	default:
		return 20, fmt.Sprintf("Credit score %d below %d", cs, fairCreditScore)
	}
}

func dtiBand(dti float64) (int, string) {
	switch {
	case dti <= targetDTI:
		return 0, fmt.Sprintf("DTI %.4f within %.2f target", dti, targetDTI)
	case dti <= ceilingDTI:
		return 10, fmt.Sprintf("DTI %.4f above %.2f target", dti, targetDTI)
	default:
		return 20, fmt.Sprintf("DTI %.4f above %.2f ceiling", dti, ceilingDTI)
	}
}

func ltvBand(ltv float64) (int, string) {
	switch {
	case ltv <= equityLTV:
		return 0, fmt.Sprintf("LTV %.4f within %.2f equity threshold", ltv, equityLTV)
	case ltv <= stretchLTV:
		return 10, fmt.Sprintf("LTV %.4f above %.2f", ltv, equityLTV)
	default:
		return 20, fmt.Sprintf("LTV %.4f above %.2f", ltv, stretchLTV)
	}
}

func employmentBand(months int) (int, string) {
	switch {
	case months >= stableEmploymentMonths:
		return 0, fmt.Sprintf("%d months continuous employment", months)
	case months >= minEmploymentMonths:
		return 10, fmt.Sprintf("%d months employment below %d", months, stableEmploymentMonths)
	default:
		return 20, fmt.Sprintf("%d months employment below %d", months, minEmploymentMonths)
	}
}

func coverageBand(income, loanAmount float64) (int, string) {
	ratio := income / loanAmount
	switch {
	case ratio >= strongCoverageRatio:
		return 0, fmt.Sprintf("Annual income covers %.1f%% of loan amount", ratio*100)
	case ratio >= thinCoverageRatio:
		return 10, fmt.Sprintf("Annual income covers only %.1f%% of loan amount", ratio*100)
	default:
		return 20, fmt.Sprintf("Annual income below %.0f%% of loan amount", thinCoverageRatio*100)
	}
}

// Package riskmodel is the boundary to the external model/completion
// service that produces the judgment component of a risk score. The
// provider is treated as opaque, slow, and failure-prone: one
// timeout-bounded call per assessment, no retries, and every failure
// surfaces as a typed dependency error the Risk Scorer can degrade on.
package riskmodel

import (
	"context"

	"github.com/nilayparikh/loanflow/loan"
)

// Input carries the application facts the model reasons over, plus the
// deterministic rule score for context.
type Input struct {
	Application loan.Application `json:"application"`
	DTI         float64          `json:"dti_ratio"`
	LTV         float64          `json:"ltv_ratio"`
	RuleScore   int              `json:"rule_score"`
}

// Assessment is the model's structured verdict. Score is on the same
// 0-100 risk scale as the deterministic component.
type Assessment struct {
	Score               float64  `json:"llm_score"`
	Reasoning           string   `json:"reasoning"`
	RiskFactors         []string `json:"risk_factors"`
	CompensatingFactors []string `json:"compensating_factors"`
}

// Provider produces model assessments. Implementations must honor ctx
// cancellation and return *types.Error values so callers can
// distinguish dependency failures from programming errors.
type Provider interface {
	// Name identifies the backing service for logs and metrics.
	Name() string

	// Assess performs one bounded model call.
	Assess(ctx context.Context, input Input) (*Assessment, error)

	// HealthCheck verifies the service is reachable.
	HealthCheck(ctx context.Context) error
}

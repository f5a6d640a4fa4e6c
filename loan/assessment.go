package loan

// IntakeResult is the outcome of field validation and ratio derivation.
// Created once per Application and never mutated. When Valid is false
// the ratios are zero and Errors lists every failed check.
type IntakeResult struct {
	Valid         bool        `json:"valid"`
	Errors        []string    `json:"errors,omitempty"`
	Application   Application `json:"application"`
	MonthlyIncome float64     `json:"monthly_income"`
	DTI           float64     `json:"dti_ratio"`
	LTV           float64     `json:"ltv_ratio"`
}

// RiskCategory bands a composite score using the router thresholds, so
// category and routing can never disagree.
type RiskCategory string

const (
	CategoryAutoApprove RiskCategory = "AUTO_APPROVE"
	CategoryEscalate    RiskCategory = "ESCALATE"
	CategoryAutoDecline RiskCategory = "AUTO_DECLINE"
)

// RiskAssessment blends the deterministic rule score with the model
// score. Composite = 0.4*rule + 0.6*model on the 0-100 scale; when the
// model call fails the composite falls back to the rule score alone and
// Degraded is set.
type RiskAssessment struct {
	ApplicantID         string       `json:"applicant_id"`
	CompositeScore      float64      `json:"composite_score"`
	RuleScore           int          `json:"rule_score"`
	ModelScore          float64      `json:"model_score"`
	Category            RiskCategory `json:"category"`
	Rationale           string       `json:"rationale"`
	RiskFactors         []string     `json:"risk_factors"`
	CompensatingFactors []string     `json:"compensating_factors"`
	Degraded            bool         `json:"degraded"`
	DegradedReason      string       `json:"degraded_reason,omitempty"`
}

package loan

// Severity classifies a compliance flag. Breaches of a rule set's
// ceiling fields (DTI ceiling, minimum credit score) are hard; breaches
// of a designated soft threshold are soft.
type Severity string

const (
	SeverityHard Severity = "hard"
	SeveritySoft Severity = "soft"
)

// ComplianceFlag records one rule breach.
type ComplianceFlag struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ComplianceReport is the result of evaluating the rule set for the
// application's loan type. Compliant is true iff no hard flags were
// raised; soft flags and conditions ride along for the reviewer.
type ComplianceReport struct {
	ApplicantID string           `json:"applicant_id"`
	LoanType    LoanType         `json:"loan_type"`
	Compliant   bool             `json:"compliant"`
	Flags       []ComplianceFlag `json:"flags"`
	Exceptions  []string         `json:"exceptions,omitempty"`
	Conditions  []string         `json:"conditions,omitempty"`
}

// HardFlags returns the flags that make the report non-compliant.
func (r ComplianceReport) HardFlags() []ComplianceFlag {
	var hard []ComplianceFlag
	for _, f := range r.Flags {
		if f.Severity == SeverityHard {
			hard = append(hard, f)
		}
	}
	return hard
}

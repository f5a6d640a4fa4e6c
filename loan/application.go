package loan

import (
	"fmt"
	"strings"
)

// LoanType tags an application with the regulatory program it is
// underwritten against. Each type carries its own compliance rule set.
type LoanType string

const (
	LoanTypeConventional LoanType = "conventional"
	LoanTypeFHA          LoanType = "fha"
	LoanTypeVA           LoanType = "va"
)

// ParseLoanType normalizes a loan-type tag. Unknown tags are an error,
// never silently defaulted.
func ParseLoanType(s string) (LoanType, error) {
	switch LoanType(strings.ToLower(strings.TrimSpace(s))) {
	case LoanTypeConventional:
		return LoanTypeConventional, nil
	case LoanTypeFHA:
		return LoanTypeFHA, nil
	case LoanTypeVA:
		return LoanTypeVA, nil
	default:
		return "", fmt.Errorf("unknown loan type %q", s)
	}
}

// Valid reports whether t is one of the defined loan types.
func (t LoanType) Valid() bool {
	_, err := ParseLoanType(string(t))
	return err == nil
}

// Application is the raw input to the pipeline, immutable once
// submitted. Monetary amounts are USD.
type Application struct {
	ApplicantID            string   `json:"applicant_id"`
	FullName               string   `json:"full_name"`
	CreditScore            int      `json:"credit_score"`
	AnnualIncome           float64  `json:"annual_income_usd"`
	MonthlyDebtPayments    float64  `json:"monthly_debt_payments_usd"`
	LoanAmount             float64  `json:"loan_amount"`
	PropertyValue          float64  `json:"property_value"`
	EmploymentMonths       int      `json:"employment_months"`
	DerogatoryMarks        int      `json:"derogatory_marks"`
	DerogatoryMarkNotes    string   `json:"derogatory_mark_notes,omitempty"`
	LoanType               LoanType `json:"loan_type"`
	FirstTimeHomebuyer     bool     `json:"first_time_homebuyer"`
	HasLetterOfExplanation bool     `json:"has_letter_of_explanation"`
	ProposedMonthlyPayment float64  `json:"proposed_monthly_payment"`
}

// MonthlyIncome returns gross monthly income. Zero when annual income
// is not positive; Intake rejects such applications before any ratio
// is derived.
func (a Application) MonthlyIncome() float64 {
	if a.AnnualIncome <= 0 {
		return 0
	}
	return a.AnnualIncome / 12.0
}

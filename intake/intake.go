// Package intake validates raw loan applications and derives the two
// ratios every later stage consumes. Validation failures are business
// results, not errors: the pipeline short-circuits to REJECTED on an
// invalid IntakeResult without invoking any other stage.
package intake

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/loan"
)

// ErrNilApplication marks a programmer error, not a validation failure.
var ErrNilApplication = errors.New("application must not be nil")

// Validator checks required fields and value ranges, then normalizes
// the application by computing monthly income, DTI, and LTV. Pure
// aside from logging; one Validator is safe for concurrent use.
type Validator struct {
	logger *zap.Logger
}

// NewValidator creates a Validator. A nil logger disables logging.
func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger.With(zap.String("component", "intake"))}
}

// Validate returns an IntakeResult for app. All checks run and all
// failures are collected; a single failed check never hides the rest.
// The returned error is non-nil only for a nil application.
func (v *Validator) Validate(app *loan.Application) (*loan.IntakeResult, error) {
	if app == nil {
		return nil, ErrNilApplication
	}

	errs := v.checkRequiredFields(app)
	errs = append(errs, v.checkValueRanges(app)...)

	if len(errs) > 0 {
		v.logger.Warn("validation failed",
			zap.String("applicant_id", app.ApplicantID),
			zap.Int("error_count", len(errs)),
			zap.Strings("errors", errs),
		)
		return &loan.IntakeResult{Valid: false, Errors: errs, Application: *app}, nil
	}

	monthlyIncome := round2(app.MonthlyIncome())
	dti := round4((app.MonthlyDebtPayments + app.ProposedMonthlyPayment) / app.MonthlyIncome())
	ltv := round4(app.LoanAmount / app.PropertyValue)

	v.logger.Info("validation passed",
		zap.String("applicant_id", app.ApplicantID),
		zap.Float64("dti_ratio", dti),
		zap.Float64("ltv_ratio", ltv),
		zap.Float64("monthly_income", monthlyIncome),
	)

	return &loan.IntakeResult{
		Valid:         true,
		Application:   *app,
		MonthlyIncome: monthlyIncome,
		DTI:           dti,
		LTV:           ltv,
	}, nil
}

func (v *Validator) checkRequiredFields(app *loan.Application) []string {
	var errs []string
	if app.ApplicantID == "" {
		errs = append(errs, "Missing required field: applicant_id")
	}
	if app.FullName == "" {
		errs = append(errs, "Missing required field: full_name")
	}
	if app.LoanType == "" {
		errs = append(errs, "Missing required field: loan_type")
	}
	return errs
}

func (v *Validator) checkValueRanges(app *loan.Application) []string {
	var errs []string

	if app.CreditScore < 300 || app.CreditScore > 850 {
		errs = append(errs, fmt.Sprintf("Credit score %d out of range [300, 850]", app.CreditScore))
	}
	if app.AnnualIncome <= 0 {
		errs = append(errs, "Annual income must be positive")
	}
	if app.LoanAmount <= 0 {
		errs = append(errs, "Loan amount must be positive")
	}
	if app.PropertyValue <= 0 {
		errs = append(errs, "Property value must be positive")
	}
	if app.MonthlyDebtPayments < 0 {
		errs = append(errs, "Monthly debt payments must not be negative")
	}
	if app.ProposedMonthlyPayment < 0 {
		errs = append(errs, "Proposed monthly payment must not be negative")
	}
	if app.EmploymentMonths < 0 {
		errs = append(errs, "Employment months must not be negative")
	}
	if app.DerogatoryMarks < 0 {
		errs = append(errs, "Derogatory marks must not be negative")
	}
	if app.LoanType != "" && !app.LoanType.Valid() {
		errs = append(errs, fmt.Sprintf("Unknown loan type: %s", app.LoanType))
	}

	return errs
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

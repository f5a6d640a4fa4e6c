// Package compliance evaluates loan-type-specific lending rules. Each
// loan type has a rule set with a DTI ceiling, an optional LTV ceiling,
// a credit score floor, and required closing conditions. Breaching a
// ceiling or floor raises a hard flag; the LTV thresholds are advisory
// and raise soft flags. A report is compliant when it has no hard
// flags.
package compliance

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/loan"
	"github.com/nilayparikh/loanflow/types"
)

// ErrNilIntake marks a programmer error, not a compliance failure.
var ErrNilIntake = errors.New("intake result must not be nil")

// ruleSet holds one loan type's ceilings and type-specific extras.
// The extras hook appends conditions, exceptions, and advisory flags
// the generic checks cannot express.
type ruleSet struct {
	code             string
	label            string
	minCreditScore   int
	creditNoun       string
	dtiCeiling       float64
	fthbDTIAllowance float64
	ltvCeiling       float64
	extras           func(app loan.Application, ltv float64, rpt *loan.ComplianceReport)
}

func defaultRules() map[loan.LoanType]ruleSet {
	return map[loan.LoanType]ruleSet{
		loan.LoanTypeFHA: {
			code:             "fha",
			label:            "FHA",
			minCreditScore:   580,
			creditNoun:       "FHA floor",
			dtiCeiling:       0.43,
			fthbDTIAllowance: 0.01,
			ltvCeiling:       0.965,
			extras: func(app loan.Application, _ float64, rpt *loan.ComplianceReport) {
				if strings.Contains(strings.ToLower(app.DerogatoryMarkNotes), "medical") {
					rpt.Exceptions = append(rpt.Exceptions, "FHA medical collection exception applies")
				}
				rpt.Conditions = append(rpt.Conditions, "Upfront MIP of 1.75% required")
			},
		},
		loan.LoanTypeVA: {
			code:           "va",
			label:          "VA",
			minCreditScore: 580,
			creditNoun:     "VA lender overlay",
			dtiCeiling:     0.41,
			extras: func(_ loan.Application, _ float64, rpt *loan.ComplianceReport) {
				rpt.Exceptions = append(rpt.Exceptions, "VA: No PMI required")
				rpt.Conditions = append(rpt.Conditions,
					"Certificate of Eligibility required",
					"VA funding fee of 2.15% applies (first use)",
				)
			},
		},
		loan.LoanTypeConventional: {
			code:           "conv",
			label:          "conventional",
			minCreditScore: 620,
			creditNoun:     "conventional minimum",
			dtiCeiling:     0.45,
			ltvCeiling:     0.97,
			extras: func(app loan.Application, ltv float64, rpt *loan.ComplianceReport) {
				if ltv > 0.80 {
					rpt.Conditions = append(rpt.Conditions, "PMI required (LTV > 80%)")
				}
				if app.DerogatoryMarks > 2 {
					rpt.Flags = append(rpt.Flags, loan.ComplianceFlag{
						Rule:     "conv_derogatory",
						Severity: loan.SeveritySoft,
						Message: fmt.Sprintf("%d derogatory marks exceeds conventional guideline of 2",
							app.DerogatoryMarks),
					})
				}
			},
		},
	}
}

// Checker evaluates one rule set per application. Safe for concurrent
// use; the rule table is never mutated after construction.
type Checker struct {
	rules  map[loan.LoanType]ruleSet
	logger *zap.Logger
}

// NewChecker creates a Checker with the built-in rule table.
func NewChecker(logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		rules:  defaultRules(),
		logger: logger.With(zap.String("component", "compliance")),
	}
}

// Check evaluates the application against its loan type's rules. A
// loan type missing from the rule table is a configuration error, not
// a compliance result.
func (c *Checker) Check(result *loan.IntakeResult) (*loan.ComplianceReport, error) {
	if result == nil {
		return nil, ErrNilIntake
	}
	app := result.Application

	rules, ok := c.rules[app.LoanType]
	if !ok {
		return nil, types.NewConfigurationError(
			fmt.Sprintf("no compliance rules for loan type %q", app.LoanType)).WithStage("compliance")
	}

	rpt := &loan.ComplianceReport{
		ApplicantID: app.ApplicantID,
		LoanType:    app.LoanType,
	}

	if app.CreditScore < rules.minCreditScore {
		rpt.Flags = append(rpt.Flags, loan.ComplianceFlag{
			Rule:     rules.code + "_min_cs",
			Severity: loan.SeverityHard,
			Message: fmt.Sprintf("Credit score %d below %s of %d",
				app.CreditScore, rules.creditNoun, rules.minCreditScore),
		})
	}

	maxDTI := rules.dtiCeiling
	if app.FirstTimeHomebuyer && rules.fthbDTIAllowance > 0 {
		maxDTI += rules.fthbDTIAllowance
		rpt.Exceptions = append(rpt.Exceptions, "First-time homebuyer DPA: +1% DTI allowance")
	}
	if result.DTI > maxDTI {
		rpt.Flags = append(rpt.Flags, loan.ComplianceFlag{
			Rule:     rules.code + "_dti",
			Severity: loan.SeverityHard,
			Message: fmt.Sprintf("DTI %.1f%% exceeds %s max %.1f%%",
				result.DTI*100, rules.label, maxDTI*100),
		})
	}

	if rules.ltvCeiling > 0 && result.LTV > rules.ltvCeiling {
		rpt.Flags = append(rpt.Flags, loan.ComplianceFlag{
			Rule:     rules.code + "_ltv",
			Severity: loan.SeveritySoft,
			Message: fmt.Sprintf("LTV %.1f%% exceeds %s max %.1f%%",
				result.LTV*100, rules.label, rules.ltvCeiling*100),
		})
	}

	if rules.extras != nil {
		rules.extras(app, result.LTV, rpt)
	}

	rpt.Compliant = len(rpt.HardFlags()) == 0
	c.logReport(rpt)

	return rpt, nil
}

func (c *Checker) logReport(rpt *loan.ComplianceReport) {
	for _, flag := range rpt.Flags {
		fields := []zap.Field{
			zap.String("applicant_id", rpt.ApplicantID),
			zap.String("rule", flag.Rule),
			zap.String("message", flag.Message),
		}
		if flag.Severity == loan.SeverityHard {
			c.logger.Warn("compliance flag raised", fields...)
		} else {
			c.logger.Info("compliance flag raised", fields...)
		}
	}

	c.logger.Info("compliance check complete",
		zap.String("applicant_id", rpt.ApplicantID),
		zap.String("loan_type", string(rpt.LoanType)),
		zap.Bool("compliant", rpt.Compliant),
		zap.Int("flag_count", len(rpt.Flags)),
		zap.Int("hard_flag_count", len(rpt.HardFlags())),
		zap.Strings("conditions", rpt.Conditions),
		zap.Strings("exceptions", rpt.Exceptions),
	)
}

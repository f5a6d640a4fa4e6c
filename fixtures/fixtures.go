// Package fixtures ships eight synthetic loan applications covering
// the full screening spectrum, from textbook approvals to stacked hard
// failures. The batch command and the end-to-end tests run on them.
package fixtures

import "github.com/nilayparikh/loanflow/loan"

// samples is the canonical dataset. Callers receive copies, never
// these values, so a mutated application cannot leak between runs.
var samples = [...]loan.Application{
	// Alice Chen: textbook approve. Credit 730, DTI 0.2804, LTV
	// exactly 0.80, 48 months employed, conventional.
	{
		ApplicantID:            "APP-2024-001",
		FullName:               "Alice Chen",
		CreditScore:            730,
		AnnualIncome:           95000,
		MonthlyDebtPayments:    420,
		LoanAmount:             380000,
		PropertyValue:          475000,
		EmploymentMonths:       48,
		LoanType:               loan.LoanTypeConventional,
		ProposedMonthlyPayment: 1800,
	},
	// Bob Kwan: textbook decline. Credit 545 and DTI 0.80 both break
	// conventional hard limits, 8 months employed, 4 derogatory marks.
	{
		ApplicantID:         "APP-2024-002",
		FullName:            "Bob Kwan",
		CreditScore:         545,
		AnnualIncome:        42000,
		MonthlyDebtPayments: 1100,
		LoanAmount:          310000,
		PropertyValue:       340000,
		EmploymentMonths:    8,
		DerogatoryMarks:     4,
		DerogatoryMarkNotes: "Late payments on two credit cards (2023), " +
			"one collection (medical, unresolved), one judgement.",
		LoanType:               loan.LoanTypeConventional,
		FirstTimeHomebuyer:     true,
		ProposedMonthlyPayment: 1700,
	},
	// Carol Martinez: the genuine edge case. Credit 612 and LTV 0.9650
	// would fail conventional underwriting but pass the FHA program;
	// one resolved medical collection with a letter of explanation.
	// Routes to human review.
	{
		ApplicantID:         "APP-2024-003",
		FullName:            "Carol Martinez",
		CreditScore:         612,
		AnnualIncome:        68000,
		MonthlyDebtPayments: 520,
		LoanAmount:          255000,
		PropertyValue:       264250,
		EmploymentMonths:    18,
		DerogatoryMarks:     1,
		DerogatoryMarkNotes: "One medical collection ($1,800 dental surgery, Sep 2021) " +
			"fully paid/discharged Jun 2022. No other derogatory history.",
		LoanType:               loan.LoanTypeFHA,
		FirstTimeHomebuyer:     true,
		HasLetterOfExplanation: true,
		ProposedMonthlyPayment: 1420,
	},
	// David Park: VA zero-down approve. Credit 780, DTI 0.2182, LTV
	// 1.00 is fine under the VA program, ten years employed.
	{
		ApplicantID:            "APP-2024-004",
		FullName:               "David Park",
		CreditScore:            780,
		AnnualIncome:           110000,
		MonthlyDebtPayments:    300,
		LoanAmount:             420000,
		PropertyValue:          420000,
		EmploymentMonths:       120,
		LoanType:               loan.LoanTypeVA,
		ProposedMonthlyPayment: 1700,
	},
	// Elena Volkov: stacked hard failures. Credit 595 below the
	// conventional floor, DTI 0.5444 over the ceiling, 10 months
	// employed. Declined with every failure cited.
	{
		ApplicantID:            "APP-2024-005",
		FullName:               "Elena Volkov",
		CreditScore:            595,
		AnnualIncome:           54000,
		MonthlyDebtPayments:    950,
		LoanAmount:             270000,
		PropertyValue:          300000,
		EmploymentMonths:       10,
		DerogatoryMarks:        2,
		DerogatoryMarkNotes:    "Two 30-day late payments on student loan (2024-Q1, 2024-Q2).",
		LoanType:               loan.LoanTypeConventional,
		ProposedMonthlyPayment: 1500,
	},
	// Frank Osei: everything barely passes. Credit 655, DTI 0.3533,
	// LTV 0.9650 right on the FHA line, 24 months employed, one
	// resolved utility dispute. Routes to human review for the tight
	// margins.
	{
		ApplicantID:         "APP-2024-006",
		FullName:            "Frank Osei",
		CreditScore:         655,
		AnnualIncome:        72000,
		MonthlyDebtPayments: 600,
		LoanAmount:          290000,
		PropertyValue:       300518,
		EmploymentMonths:    24,
		DerogatoryMarks:     1,
		DerogatoryMarkNotes: "Utility company billing dispute (resolved May 2023). " +
			"Previously reported as collection, now removed from bureau.",
		LoanType:               loan.LoanTypeFHA,
		FirstTimeHomebuyer:     true,
		HasLetterOfExplanation: true,
		ProposedMonthlyPayment: 1520,
	},
	// Grace Tanaka: strong approve with equity. Credit 710, DTI 0.24,
	// LTV 0.70 from a 30% down payment, five years employed.
	{
		ApplicantID:            "APP-2024-007",
		FullName:               "Grace Tanaka",
		CreditScore:            710,
		AnnualIncome:           145000,
		MonthlyDebtPayments:    800,
		LoanAmount:             490000,
		PropertyValue:          700000,
		EmploymentMonths:       60,
		LoanType:               loan.LoanTypeConventional,
		ProposedMonthlyPayment: 2100,
	},
	// Hassan Ali: clean file, wrong program. DTI 0.3155, LTV 0.89,
	// three years employed, zero derogatory marks, but credit 560 sits
	// below the FHA 580 floor. The hard flag declines the file no
	// matter how well the ratios score.
	{
		ApplicantID:            "APP-2024-008",
		FullName:               "Hassan Ali",
		CreditScore:            560,
		AnnualIncome:           62000,
		MonthlyDebtPayments:    350,
		LoanAmount:             222500,
		PropertyValue:          250000,
		EmploymentMonths:       36,
		LoanType:               loan.LoanTypeFHA,
		FirstTimeHomebuyer:     true,
		ProposedMonthlyPayment: 1280,
	},
}

// SampleApplications returns fresh copies of the eight sample
// applicants in submission order.
func SampleApplications() []*loan.Application {
	apps := make([]*loan.Application, len(samples))
	for i := range samples {
		app := samples[i]
		apps[i] = &app
	}
	return apps
}

// ByID returns a fresh copy of the sample with the given applicant id,
// or false when no sample carries it.
func ByID(applicantID string) (*loan.Application, bool) {
	for i := range samples {
		if samples[i].ApplicantID == applicantID {
			app := samples[i]
			return &app, true
		}
	}
	return nil, false
}

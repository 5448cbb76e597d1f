package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayHeader is the per-employee, per-period part of a payroll record.
// EmployeeID and Period are pass-through identifiers.
type PayHeader struct {
	EmployeeID string
	Period     string
	BaseMin    decimal.Decimal
	YearsOfExp decimal.Decimal
}

// PayLine is one itemized component of pay or deduction.
type PayLine struct {
	Category Category
	Kind     AllowanceKind
	Label    string
	Currency Currency
	Amount   decimal.Decimal
}

// NewPayLine builds a line and assigns its allowance kind from the category
// and label.
func NewPayLine(category Category, label string, currency Currency, amount decimal.Decimal) PayLine {
	category = normalizeCategory(string(category))
	return PayLine{
		Category: category,
		Kind:     KindFor(category, label),
		Label:    label,
		Currency: normalizeCurrency(string(currency)),
		Amount:   amount,
	}
}

// TotalsResult is the currency-partitioned summary of a payroll record.
type TotalsResult struct {
	TotalAllowances MoneyPair `json:"totalAllowances"`
	IndemnMonthly   MoneyPair `json:"indemnMonthly"`
	Gross           MoneyPair `json:"gross"`
	TotalDeductions MoneyPair `json:"totalDeductions"`
	Net             MoneyPair `json:"net"`
	Allowances      []PayLine `json:"allowances"`
	Breakdown       []PayLine `json:"breakdown"`
	Cash            []PayLine `json:"cash"`
	Indemnity       []PayLine `json:"indemnity"`
}

type Record struct {
	ID                string
	EmployeeID        string
	Period            string
	Header            PayHeader
	Lines             []PayLine
	ExperienceRateTRY decimal.Decimal
	Totals            TotalsResult
	CreatedBy         string
	CreatedAt         time.Time
}

// RecordSummary is the list view of a stored record.
type RecordSummary struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employeeId"`
	Period     string    `json:"period"`
	Net        MoneyPair `json:"net"`
	CreatedAt  time.Time `json:"createdAt"`
}

type SaveInput struct {
	Header            PayHeader
	Lines             []PayLine
	ExperienceRateTRY *decimal.Decimal
}

type ListFilter struct {
	EmployeeID string
	Period     string
}

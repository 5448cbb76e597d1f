package payroll

type Currency string

const (
	CurrencyTRY Currency = "TRY"
	CurrencyUSD Currency = "USD"
)

type Category string

const (
	CategoryAllowance Category = "allowance"
	CategoryException Category = "exception"
	CategoryBreakdown Category = "breakdown"
	CategoryCash      Category = "cash"
	CategoryIndemnity Category = "indemnity"
	CategoryDeduction Category = "deduction"
)

// AllowanceKind is the subtype of a line that contributes to total allowances.
// Lines outside the allowance and exception categories carry KindNone.
type AllowanceKind string

const (
	KindNone           AllowanceKind = ""
	KindMinimumBase    AllowanceKind = "minimum_base"
	KindAdministrative AllowanceKind = "administrative"
	KindEducation      AllowanceKind = "education"
	KindExperience     AllowanceKind = "experience"
	KindExceptional    AllowanceKind = "exceptional"
	KindDynamic        AllowanceKind = "dynamic"
)

// Reserved allowance labels, as stored by the records API.
const (
	LabelMinimumBase    = "الحد الأدنى"
	LabelAdministrative = "بدل علاوة إدارية"
	LabelEducation      = "بدل المؤهل العلمي"
	LabelExperience     = "بدل خبرة"
)

// MonthsPerYear divides total allowances into the monthly end-of-service accrual.
const MonthsPerYear = 12

const (
	AuditActionSave   = "payroll.record.save"
	AuditActionDelete = "payroll.record.delete"
	AuditEntityRecord = "payroll_record"
)

var Categories = []Category{
	CategoryAllowance,
	CategoryException,
	CategoryBreakdown,
	CategoryCash,
	CategoryIndemnity,
	CategoryDeduction,
}

var Currencies = []Currency{CurrencyTRY, CurrencyUSD}

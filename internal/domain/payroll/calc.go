package payroll

import "github.com/shopspring/decimal"

// ComputeTotals turns a pay header and its lines into a currency-partitioned
// summary. It is pure and never fails: missing amounts are already zero by the
// time lines reach it.
//
// experienceRateTRY is a per-year rate in TRY. There is no USD experience
// rate, so the experience allowance always lands in the TRY channel even for
// employees paid mostly in USD.
func ComputeTotals(header PayHeader, lines []PayLine, experienceRateTRY decimal.Decimal) TotalsResult {
	lines = classifyLines(lines)
	minimumBase := PayLine{
		Category: CategoryAllowance,
		Kind:     KindMinimumBase,
		Label:    LabelMinimumBase,
		Currency: CurrencyTRY,
		Amount:   header.BaseMin,
	}
	administrative := selectLines(lines, byKind(KindAdministrative))
	education := selectLines(lines, byKind(KindEducation))
	experience := PayLine{
		Category: CategoryAllowance,
		Kind:     KindExperience,
		Label:    LabelExperience,
		Currency: CurrencyTRY,
		Amount:   experienceRateTRY.Mul(header.YearsOfExp),
	}
	exceptional := selectLines(lines, byCategory(CategoryException))
	dynamic := selectLines(lines, byKind(KindDynamic))

	allowances := make([]PayLine, 0, 2+len(administrative)+len(education)+len(exceptional)+len(dynamic))
	allowances = append(allowances, minimumBase)
	allowances = append(allowances, administrative...)
	allowances = append(allowances, education...)
	allowances = append(allowances, experience)
	allowances = append(allowances, exceptional...)
	allowances = append(allowances, dynamic...)

	totalAllowances := sumLines(allowances)
	indemnMonthly := totalAllowances.DivInt(MonthsPerYear)
	gross := totalAllowances.Add(indemnMonthly)
	totalDeductions := sumLines(selectLines(lines, byCategory(CategoryDeduction)))
	net := gross.Sub(totalDeductions).Sub(indemnMonthly)

	return TotalsResult{
		TotalAllowances: totalAllowances,
		IndemnMonthly:   indemnMonthly,
		Gross:           gross,
		TotalDeductions: totalDeductions,
		Net:             net,
		Allowances:      allowances,
		Breakdown:       selectLines(lines, byCategory(CategoryBreakdown)),
		Cash:            selectLines(lines, byCategory(CategoryCash)),
		Indemnity:       selectLines(lines, byCategory(CategoryIndemnity)),
	}
}

// classifyLines returns a copy of lines with every kind derived from the
// category and label, whatever the caller set.
func classifyLines(lines []PayLine) []PayLine {
	out := make([]PayLine, len(lines))
	for i, line := range lines {
		line.Category = normalizeCategory(string(line.Category))
		line.Kind = KindFor(line.Category, line.Label)
		out[i] = line
	}
	return out
}

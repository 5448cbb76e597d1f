package payroll

import "strings"

var reservedAllowanceKinds = map[string]AllowanceKind{
	LabelMinimumBase:    KindMinimumBase,
	LabelAdministrative: KindAdministrative,
	LabelEducation:      KindEducation,
	LabelExperience:     KindExperience,
}

// KindFor is the only place where free-text labels are mapped to allowance
// subtypes. Reserved labels match exactly; a label with extra whitespace is a
// dynamic allowance.
func KindFor(category Category, label string) AllowanceKind {
	switch category {
	case CategoryException:
		return KindExceptional
	case CategoryAllowance:
		if kind, ok := reservedAllowanceKinds[label]; ok {
			return kind
		}
		return KindDynamic
	default:
		return KindNone
	}
}

func normalizeCategory(raw string) Category {
	return Category(strings.ToLower(strings.TrimSpace(raw)))
}

func normalizeCurrency(raw string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(raw)))
}

func (c Category) Valid() bool {
	for _, candidate := range Categories {
		if c == candidate {
			return true
		}
	}
	return false
}

func (c Currency) Valid() bool {
	return c == CurrencyTRY || c == CurrencyUSD
}

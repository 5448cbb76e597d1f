package payroll

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	periodYearFirst  = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})$`)
	periodMonthFirst = regexp.MustCompile(`^(\d{1,2})[-/.](\d{4})$`)
	periodCompact    = regexp.MustCompile(`^(\d{4})(\d{2})$`)
)

// NormalizePeriod returns the canonical YYYY-MM form of a pay period.
// Accepted inputs: YYYY-MM, YYYY/MM, YYYY.MM, MM-YYYY, MM/YYYY, MM.YYYY and
// YYYYMM; the month may have one digit. Empty input gives empty output.
func NormalizePeriod(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", nil
	}

	var year, month string
	switch {
	case periodYearFirst.MatchString(value):
		m := periodYearFirst.FindStringSubmatch(value)
		year, month = m[1], m[2]
	case periodMonthFirst.MatchString(value):
		m := periodMonthFirst.FindStringSubmatch(value)
		month, year = m[1], m[2]
	case periodCompact.MatchString(value):
		m := periodCompact.FindStringSubmatch(value)
		year, month = m[1], m[2]
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}

	monthNum, err := strconv.Atoi(month)
	if err != nil || monthNum < 1 || monthNum > 12 {
		return "", fmt.Errorf("%w: month out of range in %q", ErrInvalidPeriod, raw)
	}
	return fmt.Sprintf("%s-%02d", year, monthNum), nil
}

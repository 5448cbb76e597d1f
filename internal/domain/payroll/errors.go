package payroll

import "errors"

var (
	ErrRecordNotFound   = errors.New("payroll record not found")
	ErrEmployeeRequired = errors.New("employee id is required")
	ErrPeriodRequired   = errors.New("pay period is required")
	ErrInvalidPeriod    = errors.New("invalid pay period")
)

package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores and lookups for a missing row/entity.
var ErrNotFound = errors.New("not found")

// NoContractError: no instrument survived contract selection. Expected and
// reportable, never retried.
type NoContractError struct {
	Currency     string
	Underlying   string
	TargetDelta  float64
	MinTenorDays int
	Reason       string
}

func (e *NoContractError) Error() string {
	return fmt.Sprintf("no contract for %s/%s delta=%.4f minTenor=%dd: %s",
		e.Currency, e.Underlying, e.TargetDelta, e.MinTenorDays, e.Reason)
}

// SpreadTooWideError: market condition, caller may retry later.
type SpreadTooWideError struct {
	Instrument string
	Ratio      float64
	Limit      float64
}

func (e *SpreadTooWideError) Error() string {
	return fmt.Sprintf("spread too wide on %s: ratio=%.4f limit=%.4f",
		e.Instrument, e.Ratio, e.Limit)
}

// InvalidQuantityError: computed order size <= 0.
type InvalidQuantityError struct {
	Instrument string
	Amount     float64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %.8f for %s", e.Amount, e.Instrument)
}

// APIError is a typed exchange-level rejection (the venue answered, with an
// error code). Transport failures stay plain wrapped errors.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange error %d: %s", e.Code, e.Message)
}

// IsReportable distinguishes expected market/selection outcomes from
// system errors, so callers can pick a message instead of an alert.
func IsReportable(err error) bool {
	var nc *NoContractError
	var sw *SpreadTooWideError
	var iq *InvalidQuantityError
	return errors.As(err, &nc) || errors.As(err, &sw) || errors.As(err, &iq)
}

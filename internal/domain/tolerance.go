package domain

import "github.com/shopspring/decimal"

// WithinTolerance reports whether |expected - actual| <= tolerance.
func WithinTolerance(expected, actual, tolerance decimal.Decimal) bool {
	return expected.Sub(actual).Abs().LessThanOrEqual(tolerance)
}

package detectors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned for unrecognized detector settings, such as an unknown method.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrParameterRange is returned when a numeric parameter falls outside its allowed range.
	ErrParameterRange = errors.New("parameter out of range")
	// ErrNotFitted is returned when scoring is requested before a successful Fit.
	ErrNotFitted = errors.New("model not trained")
	// ErrEmptyData is returned for an input matrix without rows or columns.
	ErrEmptyData = errors.New("empty data")
	// ErrNonFinite is returned when the input contains NaN or infinite values.
	ErrNonFinite = errors.New("input contains NaN or infinity")
)

// DimensionMismatchError indicates rows whose feature count differs from the expected one.
type DimensionMismatchError struct {
	Row      int
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch at row %d: expected %d features, got %d", e.Row, e.Expected, e.Actual)
}

// RangeError builds an ErrParameterRange error for name outside [low, high].
func RangeError(name string, value, low, high any) error {
	return fmt.Errorf("%w: %s=%v must be in [%v, %v]", ErrParameterRange, name, value, low, high)
}

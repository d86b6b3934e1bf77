package detectors

import (
	"fmt"
	"math"
)

// CheckArray verifies that data is a non-empty rectangular matrix of finite values.
// If nFeatures is positive every row must have exactly that many columns.
// It returns the number of features per row.
func CheckArray(data [][]float64, nFeatures int) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: no samples", ErrEmptyData)
	}
	want := nFeatures
	if want <= 0 {
		want = len(data[0])
	}
	if want == 0 {
		return 0, fmt.Errorf("%w: no features", ErrEmptyData)
	}
	for i, row := range data {
		if len(row) != want {
			return 0, &DimensionMismatchError{Row: i, Expected: want, Actual: len(row)}
		}
		if err := checkFinite(row); err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return want, nil
}

// CheckSample verifies a single sample against the fitted feature count.
func CheckSample(sample []float64, nFeatures int) error {
	if len(sample) != nFeatures {
		return &DimensionMismatchError{Expected: nFeatures, Actual: len(sample)}
	}
	return checkFinite(sample)
}

func checkFinite(row []float64) error {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFinite
		}
	}
	return nil
}

// CloneMatrix deep-copies data so a fitted model never aliases caller memory.
func CloneMatrix(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

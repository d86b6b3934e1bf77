// Package io defines the data sources detectors are fitted from and the sinks
// their results are written to.
package io

// Reader loads a dataset for fitting or scoring.
type Reader interface {
	// Read returns every sample as a row of features.
	Read() ([][]float64, error)

	// Close releases resources.
	Close() error
}

// FeatureSource is a Reader that can name its columns.
type FeatureSource interface {
	Reader

	// FeatureNames returns one name per column of Read's rows.
	FeatureNames() []string
}

// Writer is the interface for writing detection results.
type Writer interface {
	// Write outputs a single result.
	Write(result Result) error

	// WriteAll outputs multiple results.
	WriteAll(results []Result) error

	// Close flushes pending output and releases resources.
	Close() error
}

// Result is the outcome of scoring one sample.
type Result struct {
	// Index is the row position of the sample in its input.
	Index int `json:"index"`
	// Score is the anomaly score; NaN when the detector could not score the sample.
	Score     float64 `json:"score"`
	IsAnomaly bool    `json:"is_anomaly"`
}

// Results pairs scores with labels, row by row. labels may be nil.
func Results(scores []float64, labels []int) []Result {
	out := make([]Result, len(scores))
	for i, s := range scores {
		out[i] = Result{Index: i, Score: s}
		if i < len(labels) {
			out[i].IsAnomaly = labels[i] == 1
		}
	}
	return out
}

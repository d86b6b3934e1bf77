// Package detectors provides unsupervised anomaly detection algorithms.
package detectors

import "runtime"

// Detector is the common interface for all anomaly detection algorithms.
type Detector interface {
	// Fit trains the detector on historical data.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(data [][]float64) error

	// Predict returns anomaly scores for the given samples.
	// Higher values indicate anomalies; the range depends on the algorithm.
	Predict(data [][]float64) ([]float64, error)

	// PredictOne returns the anomaly score for a single sample.
	PredictOne(sample []float64) (float64, error)

	// PredictLabels returns 1 for samples scoring above the fitted threshold, 0 otherwise.
	PredictLabels(data [][]float64) ([]int, error)

	// Classify returns scores and labels for the given samples from one scoring pass.
	Classify(data [][]float64) ([]float64, []int, error)

	// DecisionScores returns the anomaly scores of the training samples.
	DecisionScores() []float64

	// Labels returns the binary labels of the training samples.
	Labels() []int

	// Threshold returns the score threshold derived from contamination.
	Threshold() float64

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}

// Config holds common configuration for detectors.
type Config struct {
	// Contamination is the expected proportion of anomalies in training data.
	Contamination float64
	// Workers bounds the number of samples scored concurrently.
	Workers int
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.1,
		Workers:       runtime.GOMAXPROCS(0),
		RandomSeed:    42,
	}
}

// Package lof implements the Local Outlier Factor algorithm for anomaly detection.
package lof

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/hed1ad/goabod/pkg/detectors"
	"github.com/hed1ad/goabod/pkg/neighbors"
)

// lrdEpsilon keeps the local reachability density finite for duplicated points.
const lrdEpsilon = 1e-10

var _ detectors.Detector = (*LOF)(nil)

// LOF scores samples by how much sparser their neighborhood is than the
// neighborhoods of their k nearest training points.
type LOF struct {
	mu sync.RWMutex

	// Configuration
	nNeighbors    int
	contamination float64
	algorithm     neighbors.Algorithm
	leafSize      int
	logger        *zap.Logger

	// Trained model
	train     [][]float64
	nFeatures int
	k         int
	kDistance []float64
	lrd       []float64
	index     neighbors.Index
	shell     *detectors.Shell
}

// Option configures a LOF detector.
type Option func(*LOF)

// WithNeighbors sets the neighborhood size.
func WithNeighbors(k int) Option {
	return func(l *LOF) {
		l.nNeighbors = k
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(l *LOF) {
		l.contamination = c
	}
}

// WithAlgorithm sets the neighbor index implementation.
func WithAlgorithm(alg neighbors.Algorithm) Option {
	return func(l *LOF) {
		l.algorithm = alg
	}
}

// WithLeafSize sets the kd-tree bucket size.
func WithLeafSize(n int) Option {
	return func(l *LOF) {
		l.leafSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *LOF) {
		l.logger = logger
	}
}

// New creates a new LOF detector with the given options.
func New(opts ...Option) *LOF {
	l := &LOF{
		nNeighbors:    20,
		contamination: 0.1,
		algorithm:     neighbors.AlgorithmAuto,
		leafSize:      neighbors.DefaultLeafSize,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	l.shell = detectors.NewShell(l.contamination)
	return l
}

// Fit computes k-distances and local reachability densities of the training data.
// A k at or above the sample count is reduced to n-1.
func (l *LOF) Fit(data [][]float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := detectors.ValidateContamination(l.contamination); err != nil {
		return err
	}
	nFeatures, err := detectors.CheckArray(data, 0)
	if err != nil {
		return fmt.Errorf("lof: fit: %w", err)
	}
	n := len(data)
	if n < 2 {
		return fmt.Errorf("%w: lof needs at least 2 samples, got %d", detectors.ErrParameterRange, n)
	}
	if l.nNeighbors < 1 {
		return detectors.RangeError("n_neighbors", l.nNeighbors, 1, n-1)
	}

	k := l.nNeighbors
	if k >= n {
		l.logger.Warn("n_neighbors is not smaller than the sample count, using n-1",
			zap.Int("n_neighbors", k), zap.Int("samples", n))
		k = n - 1
	}

	train := detectors.CloneMatrix(data)
	index, err := neighbors.New(l.algorithm, train, neighbors.WithLeafSize(l.leafSize))
	if err != nil {
		return fmt.Errorf("lof: build neighbor index: %w", err)
	}

	hood := make([][]neighbors.Neighbor, n)
	kDistance := make([]float64, n)
	for i, p := range train {
		hits, err := index.Search(p, k+1)
		if err != nil {
			return fmt.Errorf("lof: sample %d: %w", i, err)
		}
		hood[i] = withoutSelf(hits, i, k)
		kDistance[i] = hood[i][k-1].Distance
	}

	lrd := make([]float64, n)
	for i := range train {
		lrd[i] = reachDensity(hood[i], kDistance)
	}

	scores := make([]float64, n)
	for i := range train {
		scores[i] = outlierFactor(hood[i], lrd, lrd[i])
	}

	shell := detectors.NewShell(l.contamination)
	shell.Process(scores)

	l.train = train
	l.nFeatures = nFeatures
	l.k = k
	l.kDistance = kDistance
	l.lrd = lrd
	l.index = index
	l.shell = shell

	l.logger.Debug("lof fitted",
		zap.Int("samples", n),
		zap.Int("features", nFeatures),
		zap.Int("k", k),
		zap.Float64("threshold", shell.Threshold()),
	)
	return nil
}

// Predict returns the local outlier factor of each sample against the training data.
func (l *LOF) Predict(data [][]float64) ([]float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.predict(data)
}

func (l *LOF) predict(data [][]float64) ([]float64, error) {
	if err := l.shell.CheckFitted(); err != nil {
		return nil, err
	}
	if _, err := detectors.CheckArray(data, l.nFeatures); err != nil {
		return nil, fmt.Errorf("lof: predict: %w", err)
	}

	scores := make([]float64, len(data))
	for i, sample := range data {
		score, err := l.predictOne(sample)
		if err != nil {
			return nil, err
		}
		scores[i] = score
	}
	return scores, nil
}

// PredictOne returns the local outlier factor of a single sample.
func (l *LOF) PredictOne(sample []float64) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.shell.CheckFitted(); err != nil {
		return 0, err
	}
	if err := detectors.CheckSample(sample, l.nFeatures); err != nil {
		return 0, fmt.Errorf("lof: predict: %w", err)
	}
	return l.predictOne(sample)
}

func (l *LOF) predictOne(sample []float64) (float64, error) {
	hood, err := l.index.Search(sample, l.k)
	if err != nil {
		return 0, fmt.Errorf("lof: %w", err)
	}
	return outlierFactor(hood, l.lrd, reachDensity(hood, l.kDistance)), nil
}

// PredictLabels returns 1 for samples whose score exceeds the threshold.
func (l *LOF) PredictLabels(data [][]float64) ([]int, error) {
	_, labels, err := l.Classify(data)
	return labels, err
}

// Classify scores data once and labels the scores against the current threshold.
func (l *LOF) Classify(data [][]float64) ([]float64, []int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	scores, err := l.predict(data)
	if err != nil {
		return nil, nil, err
	}
	return scores, l.shell.LabelsFor(scores), nil
}

// DecisionScores returns the training anomaly scores.
func (l *LOF) DecisionScores() []float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.shell.DecisionScores()
}

// Labels returns the training labels.
func (l *LOF) Labels() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.shell.Labels()
}

// Threshold returns the current anomaly threshold.
func (l *LOF) Threshold() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.shell.Threshold()
}

type model struct {
	K         int
	Algorithm neighbors.Algorithm
	LeafSize  int
	NFeatures int
	Train     [][]float64
	KDistance []float64
	LRD       []float64
	Shell     detectors.ShellState
}

// Save serializes the trained model.
func (l *LOF) Save() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.shell.CheckFitted(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(model{
		K:         l.k,
		Algorithm: l.algorithm,
		LeafSize:  l.leafSize,
		NFeatures: l.nFeatures,
		Train:     l.train,
		KDistance: l.kDistance,
		LRD:       l.lrd,
		Shell:     l.shell.Snapshot(),
	})
	if err != nil {
		return nil, fmt.Errorf("lof: encode model: %w", err)
	}
	return buf.Bytes(), nil
}

// Load deserializes a trained model and rebuilds its neighbor index.
func (l *LOF) Load(data []byte) error {
	var m model
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return fmt.Errorf("lof: decode model: %w", err)
	}
	index, err := neighbors.New(m.Algorithm, m.Train, neighbors.WithLeafSize(m.LeafSize))
	if err != nil {
		return fmt.Errorf("lof: rebuild neighbor index: %w", err)
	}
	shell := detectors.NewShell(m.Shell.Contamination)
	shell.Restore(m.Shell)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.nNeighbors = m.K
	l.k = m.K
	l.algorithm = m.Algorithm
	l.leafSize = m.LeafSize
	l.contamination = m.Shell.Contamination
	l.nFeatures = m.NFeatures
	l.train = m.Train
	l.kDistance = m.KDistance
	l.lrd = m.LRD
	l.index = index
	l.shell = shell

	return nil
}

// withoutSelf drops the training point itself from its k+1 neighbors. When
// duplicates push it out of the list the farthest neighbor is dropped instead.
func withoutSelf(hits []neighbors.Neighbor, self, k int) []neighbors.Neighbor {
	out := make([]neighbors.Neighbor, 0, k)
	for _, h := range hits {
		if h.Index != self && len(out) < k {
			out = append(out, h)
		}
	}
	return out
}

// reachDensity is the inverse mean reachability distance from a point to its neighborhood.
func reachDensity(hood []neighbors.Neighbor, kDistance []float64) float64 {
	reach := make([]float64, len(hood))
	for i, h := range hood {
		reach[i] = max(kDistance[h.Index], h.Distance)
	}
	return 1 / (stat.Mean(reach, nil) + lrdEpsilon)
}

func outlierFactor(hood []neighbors.Neighbor, lrd []float64, own float64) float64 {
	densities := make([]float64, len(hood))
	for i, h := range hood {
		densities[i] = lrd[h.Index]
	}
	return stat.Mean(densities, nil) / own
}

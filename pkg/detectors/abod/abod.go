// Package abod implements Angle-Based Outlier Detection.
//
// Every sample is scored by the variance of the distance-weighted cosine of
// the angles it forms with pairs of training points. Points inside a cluster
// see their neighbors in all directions and get a high variance; isolated
// points see everything under a narrow angle and get a low one. Scores are
// negated so that higher means more anomalous.
//
// Two methods are supported. MethodDefault pairs every other training point
// and costs O(n^3). MethodFast restricts the pairs to the k nearest neighbors
// found through a neighbors.Index.
package abod

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/hed1ad/goabod/pkg/detectors"
	"github.com/hed1ad/goabod/pkg/neighbors"
)

// Method selects how candidate points are chosen for each pivot.
type Method string

const (
	// MethodFast only pairs the k nearest training points.
	MethodFast Method = "fast"
	// MethodDefault pairs every training point.
	MethodDefault Method = "default"
)

var _ detectors.Detector = (*ABOD)(nil)

// ABOD is an angle-based outlier detector.
type ABOD struct {
	mu sync.RWMutex

	// Configuration
	method        Method
	nNeighbors    int
	contamination float64
	algorithm     neighbors.Algorithm
	leafSize      int
	workers       int
	logger        *zap.Logger

	// Trained model
	train     [][]float64
	nFeatures int
	index     neighbors.Index
	shell     *detectors.Shell
}

// Option configures an ABOD detector.
type Option func(*ABOD)

// WithMethod sets the scoring method. Unknown methods are rejected by Fit.
func WithMethod(m Method) Option {
	return func(d *ABOD) {
		d.method = m
	}
}

// WithNeighbors sets k for MethodFast.
func WithNeighbors(k int) Option {
	return func(d *ABOD) {
		d.nNeighbors = k
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(d *ABOD) {
		d.contamination = c
	}
}

// WithAlgorithm sets the neighbor index used by MethodFast.
func WithAlgorithm(alg neighbors.Algorithm) Option {
	return func(d *ABOD) {
		d.algorithm = alg
	}
}

// WithLeafSize sets the kd-tree bucket size.
func WithLeafSize(n int) Option {
	return func(d *ABOD) {
		d.leafSize = n
	}
}

// WithWorkers bounds how many samples are scored concurrently.
func WithWorkers(n int) Option {
	return func(d *ABOD) {
		d.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *ABOD) {
		d.logger = l
	}
}

// New creates a new ABOD detector with the given options.
func New(opts ...Option) *ABOD {
	d := &ABOD{
		method:        MethodFast,
		nNeighbors:    5,
		contamination: 0.1,
		algorithm:     neighbors.AlgorithmAuto,
		leafSize:      neighbors.DefaultLeafSize,
		workers:       runtime.GOMAXPROCS(0),
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.workers < 1 {
		d.workers = 1
	}
	d.shell = detectors.NewShell(d.contamination)

	return d
}

// Method returns the configured scoring method.
func (d *ABOD) Method() Method {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.method
}

// Neighbors returns the configured k.
func (d *ABOD) Neighbors() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nNeighbors
}

// Fit scores every training sample and derives the anomaly threshold.
// On error the detector keeps its previous state.
func (d *ABOD) Fit(data [][]float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.method != MethodFast && d.method != MethodDefault {
		return fmt.Errorf("%w: %q is not a valid method", detectors.ErrInvalidConfig, d.method)
	}
	if err := detectors.ValidateContamination(d.contamination); err != nil {
		return err
	}
	nFeatures, err := detectors.CheckArray(data, 0)
	if err != nil {
		return fmt.Errorf("abod: fit: %w", err)
	}

	n := len(data)
	if d.method == MethodFast && (d.nNeighbors < 1 || d.nNeighbors > n) {
		return detectors.RangeError("n_neighbors", d.nNeighbors, 1, n)
	}

	log := d.logger.With(
		zap.String("method", string(d.method)),
		zap.Int("samples", n),
		zap.Int("features", nFeatures),
	)

	train := detectors.CloneMatrix(data)

	var (
		index      neighbors.Index
		candidates func(i int) ([]int, error)
	)
	switch d.method {
	case MethodFast:
		index, err = neighbors.New(d.algorithm, train, neighbors.WithLeafSize(d.leafSize))
		if err != nil {
			return fmt.Errorf("abod: build neighbor index: %w", err)
		}
		log = log.With(zap.Int("k", d.nNeighbors))
		candidates = func(i int) ([]int, error) {
			return nearest(index, train[i], d.nNeighbors)
		}
	case MethodDefault:
		candidates = func(i int) ([]int, error) {
			return allExcept(n, i), nil
		}
	}

	log.Debug("fitting abod")
	scores, err := d.scorePoints(train, train, candidates)
	if err != nil {
		return fmt.Errorf("abod: fit: %w", err)
	}

	if nan := countNaN(scores); nan > 0 {
		log.Warn("degenerate angle variance", zap.Int("nan_scores", nan))
	}

	shell := detectors.NewShell(d.contamination)
	shell.Process(scores)

	d.train = train
	d.nFeatures = nFeatures
	d.index = index
	d.shell = shell

	log.Debug("abod fitted", zap.Float64("threshold", shell.Threshold()))
	return nil
}

// Predict returns anomaly scores for the given samples.
func (d *ABOD) Predict(data [][]float64) ([]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.checkedPredict(data)
}

func (d *ABOD) checkedPredict(data [][]float64) ([]float64, error) {
	if err := d.shell.CheckFitted(); err != nil {
		return nil, err
	}
	if _, err := detectors.CheckArray(data, d.nFeatures); err != nil {
		return nil, fmt.Errorf("abod: predict: %w", err)
	}
	return d.predict(data)
}

// PredictOne returns the anomaly score for a single sample.
func (d *ABOD) PredictOne(sample []float64) (float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.shell.CheckFitted(); err != nil {
		return 0, err
	}
	if err := detectors.CheckSample(sample, d.nFeatures); err != nil {
		return 0, fmt.Errorf("abod: predict: %w", err)
	}

	scores, err := d.predict([][]float64{sample})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// PredictLabels returns 1 for samples whose score exceeds the threshold.
func (d *ABOD) PredictLabels(data [][]float64) ([]int, error) {
	_, labels, err := d.Classify(data)
	return labels, err
}

// Classify scores data once and labels the scores against the current threshold.
func (d *ABOD) Classify(data [][]float64) ([]float64, []int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	scores, err := d.checkedPredict(data)
	if err != nil {
		return nil, nil, err
	}
	return scores, d.shell.LabelsFor(scores), nil
}

// predict scores data against every training point, or against the k nearest
// ones in fast mode. A query point never excludes itself: it is not a training index.
func (d *ABOD) predict(data [][]float64) ([]float64, error) {
	var candidates func(i int) ([]int, error)

	switch d.method {
	case MethodFast:
		candidates = func(i int) ([]int, error) {
			return nearest(d.index, data[i], d.nNeighbors)
		}
	default:
		all := allExcept(len(d.train), -1)
		candidates = func(int) ([]int, error) {
			return all, nil
		}
	}

	return d.scorePoints(data, d.train, candidates)
}

// scorePoints computes the negated WOCS of every pivot in parallel. Each task
// writes only its own slot of the result.
func (d *ABOD) scorePoints(pivots, train [][]float64, candidates func(i int) ([]int, error)) ([]float64, error) {
	scores := make([]float64, len(pivots))

	var g errgroup.Group
	g.SetLimit(d.workers)
	for i := range pivots {
		g.Go(func() error {
			ids, err := candidates(i)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			scores[i] = WOCS(pivots[i], train, ids)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// outliers have a low angle variance; flip so that higher is more anomalous
	floats.Scale(-1, scores)
	return scores, nil
}

// DecisionScores returns the training anomaly scores.
func (d *ABOD) DecisionScores() []float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.shell.DecisionScores()
}

// Labels returns the training labels.
func (d *ABOD) Labels() []int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.shell.Labels()
}

// Threshold returns the current anomaly threshold.
func (d *ABOD) Threshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.shell.Threshold()
}

// SetThreshold updates the anomaly threshold.
func (d *ABOD) SetThreshold(t float64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	d.shell.SetThreshold(t)
}

type model struct {
	Method     Method
	NNeighbors int
	Algorithm  neighbors.Algorithm
	LeafSize   int
	NFeatures  int
	Train      [][]float64
	Shell      detectors.ShellState
}

// Save serializes the trained model.
func (d *ABOD) Save() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.shell.CheckFitted(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(model{
		Method:     d.method,
		NNeighbors: d.nNeighbors,
		Algorithm:  d.algorithm,
		LeafSize:   d.leafSize,
		NFeatures:  d.nFeatures,
		Train:      d.train,
		Shell:      d.shell.Snapshot(),
	})
	if err != nil {
		return nil, fmt.Errorf("abod: encode model: %w", err)
	}
	return buf.Bytes(), nil
}

// Load deserializes a trained model. The neighbor index is rebuilt in fast mode.
func (d *ABOD) Load(data []byte) error {
	var m model
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return fmt.Errorf("abod: decode model: %w", err)
	}

	var index neighbors.Index
	if m.Method == MethodFast {
		var err error
		index, err = neighbors.New(m.Algorithm, m.Train, neighbors.WithLeafSize(m.LeafSize))
		if err != nil {
			return fmt.Errorf("abod: rebuild neighbor index: %w", err)
		}
	}

	shell := detectors.NewShell(m.Shell.Contamination)
	shell.Restore(m.Shell)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.method = m.Method
	d.nNeighbors = m.NNeighbors
	d.algorithm = m.Algorithm
	d.leafSize = m.LeafSize
	d.contamination = m.Shell.Contamination
	d.nFeatures = m.NFeatures
	d.train = m.Train
	d.index = index
	d.shell = shell

	return nil
}

func nearest(index neighbors.Index, point []float64, k int) ([]int, error) {
	hits, err := index.Search(point, k)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(hits))
	for i, h := range hits {
		ids[i] = h.Index
	}
	return ids, nil
}

// allExcept returns 0..n-1 without skip. A negative skip keeps every index.
func allExcept(n, skip int) []int {
	ids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i != skip {
			ids = append(ids, i)
		}
	}
	return ids
}

func countNaN(scores []float64) int {
	var n int
	for _, s := range scores {
		if math.IsNaN(s) {
			n++
		}
	}
	return n
}

// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/hed1ad/goabod/pkg/detectors"
)

// eulerGamma approximates the harmonic number H(n) as ln(n) + eulerGamma.
const eulerGamma = 0.5772156649

var _ detectors.Detector = (*IsolationForest)(nil)

// IsolationForest implements unsupervised anomaly detection using isolation trees.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	seed          int64
	logger        *zap.Logger

	// Trained model
	trees         []*Tree
	nFeatures     int
	avgPathLength float64
	shell         *detectors.Shell
}

// Tree is a single isolation tree.
type Tree struct {
	Root *Node
}

// Node is a node of an isolation tree. Leaves have no children.
type Node struct {
	SplitFeature int
	SplitValue   float64
	Left         *Node
	Right        *Node
	// Size is the number of samples that reached a leaf.
	Size int
}

func (n *Node) leaf() bool {
	return n.Left == nil && n.Right == nil
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *IsolationForest) {
		f.logger = l
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.1,
		seed:          42,
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	f.shell = detectors.NewShell(f.contamination)

	return f
}

// Fit grows the forest on random subsamples of data. Every Fit with the same
// seed and data grows the same forest.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := detectors.ValidateContamination(f.contamination); err != nil {
		return err
	}
	if f.nTrees < 1 {
		return detectors.RangeError("n_trees", f.nTrees, 1, "inf")
	}
	if f.sampleSize < 1 {
		return detectors.RangeError("sample_size", f.sampleSize, 1, "inf")
	}
	nFeatures, err := detectors.CheckArray(data, 0)
	if err != nil {
		return fmt.Errorf("iforest: fit: %w", err)
	}

	sampleSize := min(f.sampleSize, len(data))
	b := builder{
		rng:      rand.New(rand.NewSource(f.seed)),
		features: nFeatures,
		maxDepth: int(math.Ceil(math.Log2(float64(sampleSize)))),
	}

	trees := make([]*Tree, f.nTrees)
	for i := range trees {
		// Sample without replacement
		indices := b.rng.Perm(len(data))[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}
		trees[i] = &Tree{Root: b.grow(sample, 0)}
	}

	avgPathLength := averagePathLength(float64(sampleSize))
	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = anomalyScore(trees, avgPathLength, sample)
	}

	shell := detectors.NewShell(f.contamination)
	shell.Process(scores)

	f.trees = trees
	f.nFeatures = nFeatures
	f.avgPathLength = avgPathLength
	f.shell = shell

	f.logger.Debug("isolation forest fitted",
		zap.Int("trees", f.nTrees),
		zap.Int("sample_size", sampleSize),
		zap.Float64("threshold", shell.Threshold()),
	)
	return nil
}

type builder struct {
	rng      *rand.Rand
	features int
	maxDepth int
}

func (b *builder) grow(data [][]float64, depth int) *Node {
	n := len(data)

	// Terminal conditions
	if depth >= b.maxDepth || n <= 1 {
		return &Node{Size: n}
	}

	feature := b.rng.Intn(b.features)

	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		minVal = math.Min(minVal, row[feature])
		maxVal = math.Max(maxVal, row[feature])
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return &Node{Size: n}
	}

	splitValue := minVal + b.rng.Float64()*(maxVal-minVal)

	var left, right [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &Node{
		SplitFeature: feature,
		SplitValue:   splitValue,
		Left:         b.grow(left, depth+1),
		Right:        b.grow(right, depth+1),
	}
}

// Predict returns anomaly scores in [0, 1] for the given samples.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.predict(data)
}

func (f *IsolationForest) predict(data [][]float64) ([]float64, error) {
	if err := f.shell.CheckFitted(); err != nil {
		return nil, err
	}
	if _, err := detectors.CheckArray(data, f.nFeatures); err != nil {
		return nil, fmt.Errorf("iforest: predict: %w", err)
	}

	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = anomalyScore(f.trees, f.avgPathLength, sample)
	}
	return scores, nil
}

// PredictOne returns the anomaly score for a single sample.
func (f *IsolationForest) PredictOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.shell.CheckFitted(); err != nil {
		return 0, err
	}
	if err := detectors.CheckSample(sample, f.nFeatures); err != nil {
		return 0, fmt.Errorf("iforest: predict: %w", err)
	}
	return anomalyScore(f.trees, f.avgPathLength, sample), nil
}

// PredictLabels returns 1 for samples whose score exceeds the threshold.
func (f *IsolationForest) PredictLabels(data [][]float64) ([]int, error) {
	_, labels, err := f.Classify(data)
	return labels, err
}

// Classify scores data once and labels the scores against the current threshold.
func (f *IsolationForest) Classify(data [][]float64) ([]float64, []int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	scores, err := f.predict(data)
	if err != nil {
		return nil, nil, err
	}
	return scores, f.shell.LabelsFor(scores), nil
}

// anomalyScore is 2^(-E[h(x)] / c(n)); higher means more anomalous.
func anomalyScore(trees []*Tree, avgPathLength float64, sample []float64) float64 {
	var totalPath float64
	for _, tree := range trees {
		totalPath += pathLength(sample, tree.Root, 0)
	}
	avgPath := totalPath / float64(len(trees))
	if avgPathLength == 0 {
		// a single-sample forest cannot isolate anything
		return 0.5
	}
	return math.Pow(2, -avgPath/avgPathLength)
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *Node, depth int) float64 {
	if n.leaf() {
		// Leaf node: add expected path length for remaining isolation
		return float64(depth) + averagePathLength(float64(n.Size))
	}

	if sample[n.SplitFeature] < n.SplitValue {
		return pathLength(sample, n.Left, depth+1)
	}
	return pathLength(sample, n.Right, depth+1)
}

// averagePathLength returns the average path length of an unsuccessful search in a BST of n nodes:
// c(n) = 2*H(n-1) - 2*(n-1)/n.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+eulerGamma) - 2*(n-1)/n
}

// DecisionScores returns the training anomaly scores.
func (f *IsolationForest) DecisionScores() []float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.shell.DecisionScores()
}

// Labels returns the training labels.
func (f *IsolationForest) Labels() []int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.shell.Labels()
}

// Threshold returns the current anomaly threshold.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.shell.Threshold()
}

// SetThreshold updates the anomaly threshold.
func (f *IsolationForest) SetThreshold(t float64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	f.shell.SetThreshold(t)
}

type model struct {
	NTrees        int
	SampleSize    int
	Seed          int64
	NFeatures     int
	AvgPathLength float64
	Trees         []*Tree
	Shell         detectors.ShellState
}

// Save serializes the trained model.
func (f *IsolationForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.shell.CheckFitted(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(model{
		NTrees:        f.nTrees,
		SampleSize:    f.sampleSize,
		Seed:          f.seed,
		NFeatures:     f.nFeatures,
		AvgPathLength: f.avgPathLength,
		Trees:         f.trees,
		Shell:         f.shell.Snapshot(),
	})
	if err != nil {
		return nil, fmt.Errorf("iforest: encode model: %w", err)
	}
	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (f *IsolationForest) Load(data []byte) error {
	var m model
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return fmt.Errorf("iforest: decode model: %w", err)
	}
	shell := detectors.NewShell(m.Shell.Contamination)
	shell.Restore(m.Shell)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nTrees = m.NTrees
	f.sampleSize = m.SampleSize
	f.seed = m.Seed
	f.contamination = m.Shell.Contamination
	f.nFeatures = m.NFeatures
	f.avgPathLength = m.AvgPathLength
	f.trees = m.Trees
	f.shell = shell

	return nil
}

package detectors

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Shell carries the fit lifecycle shared by every detector: it turns the
// training decision scores into a threshold and binary labels.
type Shell struct {
	mu sync.RWMutex

	contamination  float64
	decisionScores []float64
	threshold      float64
	labels         []int
	fitted         bool
}

// ShellState is the serializable form of a fitted Shell.
type ShellState struct {
	Contamination  float64
	DecisionScores []float64
	Threshold      float64
	Labels         []int
}

// NewShell creates an unfitted Shell.
func NewShell(contamination float64) *Shell {
	return &Shell{contamination: contamination}
}

// ValidateContamination checks that c lies in (0, 0.5].
func ValidateContamination(c float64) error {
	if !(c > 0 && c <= 0.5) {
		return fmt.Errorf("%w: contamination=%v must be in (0, 0.5]", ErrParameterRange, c)
	}
	return nil
}

// Contamination returns the configured contamination.
func (s *Shell) Contamination() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contamination
}

// Process stores the training scores and derives threshold and labels from them.
// The threshold is the (1-contamination) percentile of the non-NaN scores.
func (s *Shell) Process(scores []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisionScores = scores
	s.threshold = Percentile(scores, 100*(1-s.contamination))
	s.labels = binarize(scores, s.threshold)
	s.fitted = true
}

// CheckFitted fails with ErrNotFitted unless Process has run.
func (s *Shell) CheckFitted() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.fitted {
		return fmt.Errorf("%w: missing decision_scores, threshold, labels; call Fit first", ErrNotFitted)
	}
	return nil
}

// Fitted reports whether Process has run.
func (s *Shell) Fitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// Threshold returns the fitted score threshold.
func (s *Shell) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SetThreshold overrides the fitted threshold and relabels the training scores.
func (s *Shell) SetThreshold(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = t
	s.labels = binarize(s.decisionScores, t)
}

// DecisionScores returns a copy of the training scores.
func (s *Shell) DecisionScores() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64(nil), s.decisionScores...)
}

// Labels returns a copy of the training labels.
func (s *Shell) Labels() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.labels...)
}

// LabelsFor binarizes scores against the fitted threshold.
func (s *Shell) LabelsFor(scores []float64) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return binarize(scores, s.threshold)
}

// Snapshot returns the serializable state.
func (s *Shell) Snapshot() ShellState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ShellState{
		Contamination:  s.contamination,
		DecisionScores: s.decisionScores,
		Threshold:      s.threshold,
		Labels:         s.labels,
	}
}

// Restore replaces the Shell state with st and marks it fitted.
func (s *Shell) Restore(st ShellState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contamination = st.Contamination
	s.decisionScores = st.DecisionScores
	s.threshold = st.Threshold
	s.labels = st.Labels
	s.fitted = true
}

func binarize(scores []float64, threshold float64) []int {
	labels := make([]int, len(scores))
	for i, v := range scores {
		if v > threshold {
			labels[i] = 1
		}
	}
	return labels
}

// Percentile returns the p-th percentile of the non-NaN values in data using
// linear interpolation between closest ranks. It returns NaN when no value is left.
func Percentile(data []float64, p float64) float64 {
	sorted := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return math.NaN()
	}
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

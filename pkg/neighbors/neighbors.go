// Package neighbors provides exact k-nearest-neighbor indexes over a fixed point set.
//
// Results are ordered by ascending Euclidean distance; ties are broken by
// ascending point index. Indexes never exclude a query point from its own
// neighbor list. An index is immutable once built and safe for concurrent queries.
package neighbors

import (
	"fmt"

	"github.com/hed1ad/goabod/pkg/detectors"
)

// Neighbor is a single k-NN hit.
type Neighbor struct {
	Index    int
	Distance float64
}

// Index answers k-nearest-neighbor queries against the points it was built from.
type Index interface {
	// Search returns the k nearest indexed points to point.
	Search(point []float64, k int) ([]Neighbor, error)
	// Query returns, for each point, the indices of its k nearest indexed points.
	Query(points [][]float64, k int) ([][]int, error)
	// Len returns the number of indexed points.
	Len() int
	// Dimensions returns the feature count of the indexed points.
	Dimensions() int
}

// Algorithm selects an Index implementation.
type Algorithm string

const (
	AlgorithmAuto   Algorithm = "auto"
	AlgorithmKDTree Algorithm = "kd_tree"
	AlgorithmBrute  Algorithm = "brute"
)

// DefaultLeafSize is the kd-tree bucket size.
const DefaultLeafSize = 30

// Option configures index construction.
type Option func(*options)

type options struct {
	leafSize int
}

// WithLeafSize sets the maximum number of points stored in a kd-tree leaf.
func WithLeafSize(n int) Option {
	return func(o *options) {
		o.leafSize = n
	}
}

// New builds an index over points with the requested algorithm.
// Auto chooses brute force when the data set is too small or too wide
// for space partitioning to pay off.
func New(alg Algorithm, points [][]float64, opts ...Option) (Index, error) {
	o := options{leafSize: DefaultLeafSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.leafSize < 1 {
		return nil, detectors.RangeError("leaf_size", o.leafSize, 1, "inf")
	}

	switch alg {
	case AlgorithmBrute:
		return NewBrute(points)
	case AlgorithmKDTree:
		return NewKDTree(points, o.leafSize)
	case AlgorithmAuto, "":
		if len(points) <= o.leafSize || (len(points) > 0 && len(points[0]) > 15) {
			return NewBrute(points)
		}
		return NewKDTree(points, o.leafSize)
	default:
		return nil, fmt.Errorf("%w: unknown neighbor algorithm %q", detectors.ErrInvalidConfig, alg)
	}
}

func checkPoints(points [][]float64) (int, error) {
	return detectors.CheckArray(points, 0)
}

func checkQuery(point []float64, k, n, dim int) error {
	if k < 1 || k > n {
		return detectors.RangeError("k", k, 1, n)
	}
	if len(point) != dim {
		return &detectors.DimensionMismatchError{Expected: dim, Actual: len(point)}
	}
	return nil
}

func query(idx Index, points [][]float64, k int) ([][]int, error) {
	out := make([][]int, len(points))
	for i, p := range points {
		hits, err := idx.Search(p, k)
		if err != nil {
			return nil, fmt.Errorf("query point %d: %w", i, err)
		}
		ids := make([]int, len(hits))
		for j, h := range hits {
			ids[j] = h.Index
		}
		out[i] = ids
	}
	return out, nil
}

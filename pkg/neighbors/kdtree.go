package neighbors

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// KDTree partitions the indexed points on the widest dimension at the median
// until buckets hold at most leafSize points.
type KDTree struct {
	points   [][]float64
	dim      int
	leafSize int
	root     *kdNode
}

var _ Index = (*KDTree)(nil)

type kdNode struct {
	// leaf bucket
	indices []int

	// internal node
	splitDim   int
	splitValue float64
	left       *kdNode
	right      *kdNode
}

func (n *kdNode) leaf() bool {
	return n.left == nil && n.right == nil
}

// NewKDTree indexes points without copying them; callers must not mutate them afterwards.
func NewKDTree(points [][]float64, leafSize int) (*KDTree, error) {
	dim, err := checkPoints(points)
	if err != nil {
		return nil, err
	}
	if leafSize < 1 {
		leafSize = DefaultLeafSize
	}
	t := &KDTree{points: points, dim: dim, leafSize: leafSize}

	indices := make([]int, len(points))
	for i := range indices {
		indices[i] = i
	}
	t.root = t.build(indices)
	return t, nil
}

func (t *KDTree) build(indices []int) *kdNode {
	if len(indices) <= t.leafSize {
		return &kdNode{indices: indices}
	}

	splitDim, spread := t.widestDimension(indices)
	if spread == 0 {
		// every point is identical; nothing to split on
		return &kdNode{indices: indices}
	}

	sort.Slice(indices, func(i, j int) bool {
		return t.points[indices[i]][splitDim] < t.points[indices[j]][splitDim]
	})
	mid := len(indices) / 2
	// read before the children re-sort their halves
	splitValue := t.points[indices[mid]][splitDim]

	return &kdNode{
		splitDim:   splitDim,
		splitValue: splitValue,
		left:       t.build(indices[:mid]),
		right:      t.build(indices[mid:]),
	}
}

func (t *KDTree) widestDimension(indices []int) (int, float64) {
	bestDim, bestSpread := 0, -1.0
	for d := 0; d < t.dim; d++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, i := range indices {
			v := t.points[i][d]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if hi-lo > bestSpread {
			bestDim, bestSpread = d, hi-lo
		}
	}
	return bestDim, bestSpread
}

func (t *KDTree) Search(point []float64, k int) ([]Neighbor, error) {
	if err := checkQuery(point, k, len(t.points), t.dim); err != nil {
		return nil, err
	}
	best := newKBest(k)
	t.search(t.root, point, best)
	return best.sorted(), nil
}

func (t *KDTree) search(n *kdNode, point []float64, best *kBest) {
	if n.leaf() {
		for _, i := range n.indices {
			best.offer(Neighbor{Index: i, Distance: floats.Distance(point, t.points[i], 2)})
		}
		return
	}

	diff := point[n.splitDim] - n.splitValue
	near, far := n.left, n.right
	if diff >= 0 {
		near, far = n.right, n.left
	}

	t.search(near, point, best)
	// equal distances must still be visited so ties resolve by index
	if !best.full() || math.Abs(diff) <= best.bound() {
		t.search(far, point, best)
	}
}

func (t *KDTree) Query(points [][]float64, k int) ([][]int, error) {
	return query(t, points, k)
}

func (t *KDTree) Len() int { return len(t.points) }

func (t *KDTree) Dimensions() int { return t.dim }

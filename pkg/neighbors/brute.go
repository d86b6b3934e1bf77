package neighbors

import (
	"gonum.org/v1/gonum/floats"
)

// Brute scans every indexed point for each query.
type Brute struct {
	points [][]float64
	dim    int
}

var _ Index = (*Brute)(nil)

// NewBrute indexes points without copying them; callers must not mutate them afterwards.
func NewBrute(points [][]float64) (*Brute, error) {
	dim, err := checkPoints(points)
	if err != nil {
		return nil, err
	}
	return &Brute{points: points, dim: dim}, nil
}

func (b *Brute) Search(point []float64, k int) ([]Neighbor, error) {
	if err := checkQuery(point, k, len(b.points), b.dim); err != nil {
		return nil, err
	}
	best := newKBest(k)
	for i, p := range b.points {
		best.offer(Neighbor{Index: i, Distance: floats.Distance(point, p, 2)})
	}
	return best.sorted(), nil
}

func (b *Brute) Query(points [][]float64, k int) ([][]int, error) {
	return query(b, points, k)
}

func (b *Brute) Len() int { return len(b.points) }

func (b *Brute) Dimensions() int { return b.dim }

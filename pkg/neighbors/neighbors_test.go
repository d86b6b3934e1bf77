package neighbors

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/goabod/pkg/detectors"
)

func TestNew(t *testing.T) {
	points := generatePoints(rand.New(rand.NewSource(1)), 100, 3)

	tests := []struct {
		name    string
		alg     Algorithm
		opts    []Option
		want    any
		wantErr error
	}{
		{name: "brute", alg: AlgorithmBrute, want: &Brute{}},
		{name: "kd tree", alg: AlgorithmKDTree, want: &KDTree{}},
		{name: "auto large", alg: AlgorithmAuto, want: &KDTree{}},
		{name: "auto small leaf", alg: AlgorithmAuto, opts: []Option{WithLeafSize(200)}, want: &Brute{}},
		{name: "unknown", alg: "ball_tree", wantErr: detectors.ErrInvalidConfig},
		{name: "bad leaf size", alg: AlgorithmKDTree, opts: []Option{WithLeafSize(0)}, wantErr: detectors.ErrParameterRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := New(tt.alg, points, tt.opts...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, idx)
			assert.Equal(t, 100, idx.Len())
			assert.Equal(t, 3, idx.Dimensions())
		})
	}
}

func TestSearchOrdering(t *testing.T) {
	points := [][]float64{{0, 0}, {3, 0}, {1, 0}, {-1, 0}, {0, 5}}

	for _, alg := range []Algorithm{AlgorithmBrute, AlgorithmKDTree} {
		t.Run(string(alg), func(t *testing.T) {
			idx, err := New(alg, points, WithLeafSize(1))
			require.NoError(t, err)

			hits, err := idx.Search([]float64{0, 0}, 4)
			require.NoError(t, err)

			// the query point itself comes first; the tie at distance 1 resolves by index
			assert.Equal(t, []Neighbor{
				{Index: 0, Distance: 0},
				{Index: 2, Distance: 1},
				{Index: 3, Distance: 1},
				{Index: 1, Distance: 3},
			}, hits)
		})
	}
}

func TestSearchErrors(t *testing.T) {
	idx, err := NewBrute([][]float64{{0, 0}, {1, 1}})
	require.NoError(t, err)

	_, err = idx.Search([]float64{0, 0}, 3)
	assert.ErrorIs(t, err, detectors.ErrParameterRange)

	_, err = idx.Search([]float64{0, 0}, 0)
	assert.ErrorIs(t, err, detectors.ErrParameterRange)

	var dm *detectors.DimensionMismatchError
	_, err = idx.Search([]float64{0}, 1)
	assert.ErrorAs(t, err, &dm)

	_, err = NewKDTree(nil, 10)
	assert.ErrorIs(t, err, detectors.ErrEmptyData)
}

func TestKDTreeMatchesBrute(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	points := generatePoints(rng, 500, 4)
	// duplicates exercise tie breaking across buckets
	points = append(points, points[3], points[3], points[42])

	brute, err := NewBrute(points)
	require.NoError(t, err)
	tree, err := NewKDTree(points, 8)
	require.NoError(t, err)

	queries := append(generatePoints(rng, 50, 4), points[3], points[42], points[100])
	for _, k := range []int{1, 5, 17, len(points)} {
		want, err := brute.Query(queries, k)
		require.NoError(t, err)
		got, err := tree.Query(queries, k)
		require.NoError(t, err)
		assert.Equal(t, want, got, "k=%d", k)
	}
}

func TestKDTreeSplitInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	points := generatePoints(rng, 400, 3)
	tree, err := NewKDTree(points, 5)
	require.NoError(t, err)

	var collect func(n *kdNode) []int
	collect = func(n *kdNode) []int {
		if n.leaf() {
			return n.indices
		}
		return append(append([]int(nil), collect(n.left)...), collect(n.right)...)
	}

	var check func(n *kdNode)
	check = func(n *kdNode) {
		if n.leaf() {
			return
		}
		for _, i := range collect(n.left) {
			assert.LessOrEqual(t, points[i][n.splitDim], n.splitValue)
		}
		for _, i := range collect(n.right) {
			assert.GreaterOrEqual(t, points[i][n.splitDim], n.splitValue)
		}
		check(n.left)
		check(n.right)
	}
	check(tree.root)
}

func TestKDTreeMatchesBruteSmallK(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	points := generatePoints(rng, 300, 2)

	brute, err := NewBrute(points)
	require.NoError(t, err)
	tree, err := NewKDTree(points, DefaultLeafSize)
	require.NoError(t, err)

	for _, k := range []int{2, 3, 10} {
		want, err := brute.Query(points, k)
		require.NoError(t, err)
		got, err := tree.Query(points, k)
		require.NoError(t, err)
		assert.Equal(t, want, got, "k=%d", k)
	}
}

func TestKDTreeIdenticalPoints(t *testing.T) {
	points := make([][]float64, 50)
	for i := range points {
		points[i] = []float64{1, 1}
	}
	tree, err := NewKDTree(points, 4)
	require.NoError(t, err)

	ids, err := tree.Query([][]float64{{1, 1}}, 3)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2}}, ids)
}

func BenchmarkKDTreeSearch(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	points := generatePoints(rng, 10000, 5)
	tree, _ := NewKDTree(points, DefaultLeafSize)
	q := points[0]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.Search(q, 10)
	}
}

func BenchmarkBruteSearch(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	points := generatePoints(rng, 10000, 5)
	brute, _ := NewBrute(points)
	q := points[0]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		brute.Search(q, 10)
	}
}

func generatePoints(rng *rand.Rand, n, dim int) [][]float64 {
	points := make([][]float64, n)
	for i := range points {
		points[i] = make([]float64, dim)
		for j := range points[i] {
			points[i][j] = rng.NormFloat64()
		}
	}
	return points
}

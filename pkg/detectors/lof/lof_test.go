package lof

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hed1ad/goabod/pkg/detectors"
	"github.com/hed1ad/goabod/pkg/neighbors"
)

var clustered = [][]float64{
	{0, 0},
	{0, 1},
	{1, 0},
	{1, 1},
	{10, 10},
}

func TestFit(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		data    [][]float64
		wantErr error
	}{
		{name: "empty data", data: nil, wantErr: detectors.ErrEmptyData},
		{name: "single sample", data: [][]float64{{1, 2}}, wantErr: detectors.ErrParameterRange},
		{name: "zero neighbors", opts: []Option{WithNeighbors(0)}, data: clustered, wantErr: detectors.ErrParameterRange},
		{name: "bad contamination", opts: []Option{WithContamination(0)}, data: clustered, wantErr: detectors.ErrParameterRange},
		{name: "clustered", opts: []Option{WithNeighbors(2)}, data: clustered},
		{name: "kd tree", opts: []Option{WithAlgorithm(neighbors.AlgorithmKDTree), WithLeafSize(5)}, data: generateTestData(200, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.opts...)
			err := l.Fit(tt.data)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, l.DecisionScores(), len(tt.data))
		})
	}
}

func TestOutlierFactor(t *testing.T) {
	l := New(WithNeighbors(2))
	require.NoError(t, l.Fit(clustered))

	scores := l.DecisionScores()
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 1.0, scores[i], 1e-6, "cluster point %d", i)
	}
	// mean reachability of the outlier is (|(9,9)| + |(10,9)|) / 2
	assert.InDelta(t, 13.0908, scores[4], 1e-3)
	assert.Equal(t, []int{0, 0, 0, 0, 1}, l.Labels())
}

func TestNeighborsClampedToSampleCount(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l := New(WithNeighbors(20), WithLogger(zap.New(core)))

	require.NoError(t, l.Fit(clustered))
	assert.Equal(t, len(clustered)-1, l.k)
	assert.Equal(t, 1, logs.Len())
}

func TestPredict(t *testing.T) {
	trainData := generateTestData(300, 3)
	l := New(WithNeighbors(10))
	require.NoError(t, l.Fit(trainData))

	scores, err := l.Predict([][]float64{{0, 0, 0}, {40, 40, 40}})
	require.NoError(t, err)
	assert.Greater(t, scores[1], scores[0])
	assert.Greater(t, scores[1], l.Threshold())

	one, err := l.PredictOne([]float64{40, 40, 40})
	require.NoError(t, err)
	assert.Equal(t, scores[1], one)

	labels, err := l.PredictLabels([][]float64{{40, 40, 40}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, labels)

	var dm *detectors.DimensionMismatchError
	_, err = l.Predict([][]float64{{1}})
	assert.ErrorAs(t, err, &dm)

	_, err = New().Predict(trainData)
	assert.ErrorIs(t, err, detectors.ErrNotFitted)
	_, err = New().PredictOne(trainData[0])
	assert.ErrorIs(t, err, detectors.ErrNotFitted)
}

func TestSaveLoad(t *testing.T) {
	trainData := generateTestData(100, 4)
	original := New(WithNeighbors(7), WithContamination(0.2))
	require.NoError(t, original.Fit(trainData))

	testData := generateTestData(20, 4)
	want, err := original.Predict(testData)
	require.NoError(t, err)

	data, err := original.Save()
	require.NoError(t, err)

	loaded := New()
	require.NoError(t, loaded.Load(data))

	got, err := loaded.Predict(testData)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, original.Threshold(), loaded.Threshold())
	assert.Equal(t, original.Labels(), loaded.Labels())

	_, err = New().Save()
	assert.ErrorIs(t, err, detectors.ErrNotFitted)
}

func BenchmarkFit(b *testing.B) {
	data := generateTestData(5000, 5)
	l := New()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Fit(data)
	}
}

func generateTestData(n, features int) [][]float64 {
	data := make([][]float64, n)
	for i := 0; i < n; i++ {
		data[i] = make([]float64, features)
		for j := 0; j < features; j++ {
			data[i][j] = rand.NormFloat64()
		}
	}
	return data
}

func TestClassify(t *testing.T) {
	d := New(WithNeighbors(10))
	_, _, err := d.Classify([][]float64{{0, 0, 0}})
	assert.ErrorIs(t, err, detectors.ErrNotFitted)

	require.NoError(t, d.Fit(generateTestData(150, 3)))
	query := append(generateTestData(20, 3), []float64{30, 30, 30})

	scores, labels, err := d.Classify(query)
	require.NoError(t, err)

	wantScores, err := d.Predict(query)
	require.NoError(t, err)
	wantLabels, err := d.PredictLabels(query)
	require.NoError(t, err)
	assert.Equal(t, wantScores, scores)
	assert.Equal(t, wantLabels, labels)
	assert.Equal(t, 1, labels[len(labels)-1])
}

func TestClassifyDuringFit(t *testing.T) {
	d := New(WithNeighbors(10))
	require.NoError(t, d.Fit(generateTestData(100, 3)))
	query := generateTestData(10, 3)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Fit(generateTestData(100, 3)))
		}()
		go func() {
			defer wg.Done()
			scores, labels, err := d.Classify(query)
			assert.NoError(t, err)
			assert.Len(t, labels, len(scores))
		}()
	}
	wg.Wait()
}

package iforest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/goabod/pkg/detectors"
)

func TestNewIsolationForest(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		wantNTrees int
	}{
		{
			name:       "default configuration",
			opts:       nil,
			wantNTrees: 100,
		},
		{
			name:       "custom trees",
			opts:       []Option{WithTrees(50)},
			wantNTrees: 50,
		},
		{
			name:       "multiple options",
			opts:       []Option{WithTrees(200), WithContamination(0.05), WithSeed(123)},
			wantNTrees: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.opts...)
			assert.Equal(t, tt.wantNTrees, f.nTrees)
		})
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		data    [][]float64
		wantErr error
	}{
		{
			name:    "empty data",
			data:    [][]float64{},
			wantErr: detectors.ErrEmptyData,
		},
		{
			name:    "no trees",
			opts:    []Option{WithTrees(0)},
			data:    generateTestData(10, 2),
			wantErr: detectors.ErrParameterRange,
		},
		{
			name:    "bad contamination",
			opts:    []Option{WithContamination(0.9)},
			data:    generateTestData(10, 2),
			wantErr: detectors.ErrParameterRange,
		},
		{
			name: "single sample",
			data: [][]float64{{1.0, 2.0, 3.0}},
		},
		{
			name: "normal data",
			data: generateTestData(100, 5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(append([]Option{WithTrees(10), WithSeed(42)}, tt.opts...)...)
			err := f.Fit(tt.data)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, f.trees)
				return
			}
			require.NoError(t, err)
			assert.Len(t, f.trees, f.nTrees)
			assert.Len(t, f.DecisionScores(), len(tt.data))
		})
	}
}

func TestFitIsDeterministic(t *testing.T) {
	data := generateTestData(150, 3)

	a := New(WithTrees(20), WithSeed(7))
	require.NoError(t, a.Fit(data))
	b := New(WithTrees(20), WithSeed(7))
	require.NoError(t, b.Fit(data))

	assert.Equal(t, a.DecisionScores(), b.DecisionScores())
}

func TestPredict(t *testing.T) {
	// Train on normal data
	trainData := generateTestData(500, 5)
	f := New(WithTrees(50), WithSampleSize(100), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	t.Run("predict on normal data", func(t *testing.T) {
		testData := generateTestData(100, 5)
		scores, err := f.Predict(testData)

		require.NoError(t, err)
		assert.Len(t, scores, len(testData))

		// All scores should be in [0, 1]
		for _, score := range scores {
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})

	t.Run("predict on anomalies", func(t *testing.T) {
		// Anomalous data: very different from training
		anomalies := [][]float64{
			{1000, 1000, 1000, 1000, 1000},
			{-500, -500, -500, -500, -500},
		}
		scores, err := f.Predict(anomalies)

		require.NoError(t, err)
		for _, score := range scores {
			assert.Greater(t, score, 0.4, "anomalies should have high scores")
		}

		labels, err := f.PredictLabels(anomalies)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 1}, labels)
	})

	t.Run("predict before fit", func(t *testing.T) {
		untrained := New()
		_, err := untrained.Predict(trainData)
		assert.ErrorIs(t, err, detectors.ErrNotFitted)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		var dm *detectors.DimensionMismatchError
		_, err := f.Predict([][]float64{{1, 2}})
		assert.ErrorAs(t, err, &dm)
	})
}

func TestPredictOne(t *testing.T) {
	trainData := generateTestData(200, 3)
	f := New(WithTrees(20), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	score, err := f.PredictOne([]float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)

	_, err = New().PredictOne([]float64{0.5, 0.5, 0.5})
	assert.ErrorIs(t, err, detectors.ErrNotFitted)
}

func TestSaveLoad(t *testing.T) {
	trainData := generateTestData(200, 4)
	original := New(WithTrees(30), WithContamination(0.15), WithSeed(42))
	require.NoError(t, original.Fit(trainData))

	// Get predictions before save
	testData := generateTestData(50, 4)
	originalScores, err := original.Predict(testData)
	require.NoError(t, err)

	data, err := original.Save()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	loaded := New()
	require.NoError(t, loaded.Load(data))

	// Predictions should match
	loadedScores, err := loaded.Predict(testData)
	require.NoError(t, err)

	assert.Equal(t, originalScores, loadedScores)
	assert.Equal(t, original.Threshold(), loaded.Threshold())
}

func TestThreshold(t *testing.T) {
	f := New(WithTrees(10))
	require.NoError(t, f.Fit(generateTestData(50, 2)))

	f.SetThreshold(0.7)
	assert.Equal(t, 0.7, f.Threshold())
}

func BenchmarkFit(b *testing.B) {
	data := generateTestData(10000, 10)
	f := New(WithTrees(100), WithSampleSize(256))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Fit(data)
	}
}

func BenchmarkPredict(b *testing.B) {
	trainData := generateTestData(5000, 10)
	testData := generateTestData(1000, 10)

	f := New(WithTrees(100), WithSampleSize(256))
	f.Fit(trainData)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Predict(testData)
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
	f := New(WithTrees(20), WithSeed(42))
	require.NoError(t, f.Fit(generateTestData(200, 3)))
	query := generateTestData(20, 3)

	scores, labels, err := f.Classify(query)
	require.NoError(t, err)

	wantScores, err := f.Predict(query)
	require.NoError(t, err)
	wantLabels, err := f.PredictLabels(query)
	require.NoError(t, err)
	assert.Equal(t, wantScores, scores)
	assert.Equal(t, wantLabels, labels)

	_, _, err = New().Classify(query)
	assert.ErrorIs(t, err, detectors.ErrNotFitted)
}

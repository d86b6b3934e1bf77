package io

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResults(t *testing.T) {
	got := Results([]float64{0.1, 0.9, 0.2}, []int{0, 1})

	assert.Equal(t, []Result{
		{Index: 0, Score: 0.1},
		{Index: 1, Score: 0.9, IsAnomaly: true},
		{Index: 2, Score: 0.2},
	}, got)
	assert.Empty(t, Results(nil, nil))
}

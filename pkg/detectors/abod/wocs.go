package abod

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WOCS returns the variance of the weighted cosine between every unordered
// pair of candidate points as seen from pivot:
//
//	wcos(a, b) = <a-p, b-p> / |a-p|^2 / |b-p|^2
//
// Pairs containing a point coincident with pivot are skipped. The variance is
// the population variance, so no pairs yields NaN and a single pair yields 0.
func WOCS(pivot []float64, data [][]float64, candidates []int) float64 {
	disp := make([][]float64, 0, len(candidates))
	sqNorm := make([]float64, 0, len(candidates))
	for _, idx := range candidates {
		x := data[idx]
		if floats.Equal(x, pivot) {
			continue
		}
		d := make([]float64, len(pivot))
		floats.SubTo(d, x, pivot)
		disp = append(disp, d)
		sqNorm = append(sqNorm, floats.Dot(d, d))
	}

	n := len(disp)
	wcos := make([]float64, 0, n*(n-1)/2+1)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			wcos = append(wcos, floats.Dot(disp[i], disp[j])/sqNorm[i]/sqNorm[j])
		}
	}
	return stat.PopVariance(wcos, nil)
}

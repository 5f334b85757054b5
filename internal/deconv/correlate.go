package deconv

import (
	"math"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"

	"github.com/524D/mzdecon/internal/smooth"
)

// Fewest grid points a correlation is computed on
const minCorrPoints = 5

// Correlate returns the Pearson correlation of two profiles over their
// common RT range. Both profiles are linearly interpolated on an equally
// spaced grid of pointsPerMinute density. Profiles that don't overlap, or
// are flat, correlate 0.
func Correlate(a, b []smooth.Point, pointsPerMinute float64) float64 {
	lo, hi, ok := commonRange(a, b)
	if !ok {
		return 0
	}
	pa, ok := profile(a)
	if !ok {
		return 0
	}
	pb, ok := profile(b)
	if !ok {
		return 0
	}
	n := max(int((hi-lo)*pointsPerMinute)+1, minCorrPoints)
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		rt := lo + (hi-lo)*float64(i)/float64(n-1)
		x[i] = pa.Predict(rt)
		y[i] = pb.Predict(rt)
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

func commonRange(a, b []smooth.Point) (float64, float64, bool) {
	if len(a) < 2 || len(b) < 2 {
		return 0, 0, false
	}
	lo := math.Max(a[0].RT, b[0].RT)
	hi := math.Min(a[len(a)-1].RT, b[len(b)-1].RT)
	return lo, hi, hi > lo
}

// profile fits a piecewise linear function through the points, which must
// have strictly increasing RT
func profile(pts []smooth.Point) (*interp.PiecewiseLinear, bool) {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		if i > 0 && p.RT <= pts[i-1].RT {
			return nil, false
		}
		xs[i], ys[i] = p.RT, p.Intensity
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, false
	}
	return &pl, true
}

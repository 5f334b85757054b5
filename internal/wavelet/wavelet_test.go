package wavelet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzdecon/internal/smooth"
)

func gaussianSeries(start, end, step float64, apexes ...float64) []smooth.Point {
	var s []smooth.Point
	n := int(math.Round((end - start) / step))
	for i := 0; i <= n; i++ {
		rt := start + float64(i)*step
		y := 0.0
		for _, a := range apexes {
			d := (rt - a) / 0.08
			y += 1000 * math.Exp(-d*d/2)
		}
		s = append(s, smooth.Point{RT: rt, Intensity: y})
	}
	return s
}

func testDetector() Detector {
	return Detector{SymThreshold: 0.3, MaxCurveRTRange: 3, PointsPerMinute: 150}
}

func TestKernelShape(t *testing.T) {
	want := 2 / (math.Sqrt(3) * math.Pow(math.Pi, 0.25))
	assert.InDelta(t, want, kernel(0), 1e-3)
	assert.InDelta(t, 0, kernel(1), 1e-3)
	assert.Less(t, kernel(2), 0.0)
	assert.Equal(t, 0.0, kernel(6))
	assert.Equal(t, 0.0, kernel(-6))
}

func TestMaxScale(t *testing.T) {
	d := testDetector()
	s := gaussianSeries(9, 11.05, 1.0/150, 10)
	assert.Equal(t, 30, d.MaxScale(s))

	// Short series are widened to half a minute
	s = gaussianSeries(10, 10.1, 1.0/150, 10.05)
	assert.Equal(t, 7, d.MaxScale(s))

	assert.Equal(t, 0, d.MaxScale(s[:1]))
}

func TestRidgesSinglePeak(t *testing.T) {
	d := testDetector()
	s := gaussianSeries(9, 11.05, 1.0/150, 10)
	ridges := d.Ridges(s)
	require.Len(t, ridges, d.MaxScale(s))
	for scale, list := range ridges {
		require.NotEmpty(t, list, "scale %d", scale)
		best := list[0]
		for _, r := range list {
			if r.Response > best.Response {
				best = r
			}
		}
		assert.InDelta(t, 10.0, best.RT, 0.02, "scale %d", scale)
	}
}

func TestRidgesTwoPeaks(t *testing.T) {
	d := testDetector()
	s := gaussianSeries(9.5, 11.5, 1.0/150, 10, 11)
	ridges := d.Ridges(s)
	coarsest := ridges[0]
	require.NotEmpty(t, coarsest)
	var near10, near11 bool
	for _, r := range coarsest {
		// The negative lobe of the neighbouring peak shifts the maxima apart
		switch {
		case math.Abs(r.RT-10) < 0.1:
			near10 = true
		case math.Abs(r.RT-11) < 0.1:
			near11 = true
		default:
			t.Errorf("unexpected ridge at RT %f", r.RT)
		}
	}
	assert.True(t, near10 && near11, "ridges %+v", coarsest)
}

func TestRidgesEmptyResponse(t *testing.T) {
	d := testDetector()
	s := gaussianSeries(9, 11.05, 1.0/150)
	ridges := d.Ridges(s)
	require.Len(t, ridges, d.MaxScale(s))
	for _, list := range ridges {
		assert.Empty(t, list)
	}
}

// Package wavelet finds peak apex candidates in a smoothed chromatographic
// trace with a continuous wavelet transform (Mexican hat kernel).
package wavelet

import (
	"math"

	"github.com/524D/mzdecon/internal/smooth"
)

const (
	nPoints   = 60000 // Number of tabulated kernel values
	kernelESL = -5.0  // Left end of kernel support
	kernelESR = 5.0   // Right end of kernel support
	minScale  = 5     // Width of the finest scale, in samples
	scaleStep = 2
)

// Tabulated Mexican hat wavelet over [kernelESL, kernelESR]
var mexicanHat = tabulateMexicanHat()

func tabulateMexicanHat() []float64 {
	y := make([]float64, nPoints)
	c := 2 / (math.Sqrt(3) * math.Pow(math.Pi, 0.25))
	for i := range y {
		x := kernelESL + float64(i)*(kernelESR-kernelESL)/float64(nPoints-1)
		y[i] = c * (1 - x*x) * math.Exp(-x*x/2)
	}
	return y
}

// kernel returns the tabulated wavelet value nearest to x
func kernel(x float64) float64 {
	if x < kernelESL || x > kernelESR {
		return 0
	}
	i := int(math.Round((x - kernelESL) * float64(nPoints-1) / (kernelESR - kernelESL)))
	return mexicanHat[i]
}

// Ridge is a local maximum of the wavelet response at one scale
type Ridge struct {
	Index     int     // Index in the smoothed series
	RT        float64 // Retention time of the maximum
	Response  float64 // Wavelet response at the maximum
	Intensity float64 // Smoothed intensity at the maximum
}

// Detector holds the parameters of ridge detection
type Detector struct {
	SymThreshold    float64 // Max relative difference of the minima around a ridge
	MaxCurveRTRange float64 // Longest RT span considered for the scale count
	PointsPerMinute float64 // Sampling density of the smoothed series
}

// MaxScale returns the number of scales that are computed for a series
func (d Detector) MaxScale(series []smooth.Point) int {
	if len(series) < 2 {
		return 0
	}
	span := series[len(series)-1].RT - series[0].RT
	w := math.Max(math.Min(span, d.MaxCurveRTRange), 0.5)
	return int(w * d.PointsPerMinute / (2 * kernelESR))
}

// Ridges runs the wavelet transform at each scale and returns the ridge
// candidates found per scale, coarsest scale first. A scale without
// response yields an empty list.
func (d Detector) Ridges(series []smooth.Point) [][]Ridge {
	maxScale := d.MaxScale(series)
	out := make([][]Ridge, 0, maxScale)
	for s := maxScale - 1; s >= 0; s-- {
		resp := cwt(series, minScale+scaleStep*s)
		out = append(out, d.peaks(series, resp))
	}
	return out
}

// cwt computes the wavelet response at a single scale width, negative
// responses are clamped to zero
func cwt(series []smooth.Point, width int) []float64 {
	n := len(series)
	resp := make([]float64, n)
	w := float64(width)
	sqrtW := math.Sqrt(w)
	for dx := 0; dx < n; dx++ {
		t1 := dx + int(kernelESL*w)
		if t1 < 0 {
			t1 = 0
		}
		t2 := dx + int(kernelESR*w)
		if t2 > n-1 {
			t2 = n - 1
		}
		sum := 0.0
		for i := t1; i <= t2; i++ {
			sum += series[i].Intensity * kernel(float64(i-dx)/w)
		}
		sum /= sqrtW
		if sum > 0 {
			resp[dx] = sum
		}
	}
	return resp
}

// peaks returns local maxima of resp that are bounded by minima of similar
// height, or that fall off monotonically to one end of the series
func (d Detector) peaks(series []smooth.Point, resp []float64) []Ridge {
	var ridges []Ridge
	n := len(resp)
	for i := 1; i < n-1; i++ {
		h := resp[i]
		if h <= 0 || h < resp[i-1] || h <= resp[i+1] {
			continue
		}
		l := i
		for l > 0 && resp[l-1] <= resp[l] {
			l--
		}
		r := i
		for r < n-1 && resp[r+1] <= resp[r] {
			r++
		}
		leftBound := l == 0
		rightBound := r == n-1
		if leftBound || rightBound || math.Abs(resp[l]-resp[r]) <= d.SymThreshold*h {
			ridges = append(ridges, Ridge{
				Index:     i,
				RT:        series[i].RT,
				Response:  h,
				Intensity: series[i].Intensity,
			})
		}
	}
	return ridges
}

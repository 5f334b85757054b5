package smooth

import (
	"errors"
	"math"
	"sort"
	"strings"
)

// Point is a single (retention time, intensity) sample
type Point struct {
	RT        float64
	Intensity float64
}

// Method selects the resampling strategy
type Method int

const (
	BSplineMethod Method = iota
	LinearMethod
)

// SplineDegree is the degree of the B-spline used for smoothing traces
const SplineDegree = 2

// Points closer than rtMergeTol are merged after resampling
const rtMergeTol = 1e-9

// ErrUnknownMethod is returned for an unrecognized smoothing method name
var ErrUnknownMethod = errors.New("unknown smoothing method")

// ParseMethod converts a method name as used in the parameter file
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ``, `bspline`, `spline`:
		return BSplineMethod, nil
	case `linear`, `gapfill`:
		return LinearMethod, nil
	}
	return 0, ErrUnknownMethod
}

func (m Method) String() string {
	if m == LinearMethod {
		return `linear`
	}
	return `bspline`
}

// Steps returns the number of output points for a trace: at least the number
// of input points, or pointsPerMinute times the RT width when that is more.
func Steps(pts []Point, pointsPerMinute float64) int {
	n := len(pts)
	if n == 0 {
		return 0
	}
	lo, hi := rtRange(pts)
	s := int(pointsPerMinute * (hi - lo))
	if s < n {
		s = n
	}
	return s
}

// Apply smooths pts with the given method. The input is not modified.
func Apply(m Method, pts []Point, pointsPerMinute float64) []Point {
	steps := Steps(pts, pointsPerMinute)
	switch m {
	case LinearMethod:
		return GapFill(pts, steps)
	default:
		return BSpline(pts, SplineDegree, steps)
	}
}

func rtRange(pts []Point) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		if p.RT < lo {
			lo = p.RT
		}
		if p.RT > hi {
			hi = p.RT
		}
	}
	return lo, hi
}

// sortMerge sorts points by RT and merges points with (nearly) equal RT,
// retaining the highest intensity
func sortMerge(pts []Point) []Point {
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].RT < pts[j].RT })
	k := 0
	for i := range pts {
		if k > 0 && pts[i].RT-pts[k-1].RT < rtMergeTol {
			if pts[i].Intensity > pts[k-1].Intensity {
				pts[k-1].Intensity = pts[i].Intensity
			}
			continue
		}
		pts[k] = pts[i]
		k++
	}
	return pts[:k]
}

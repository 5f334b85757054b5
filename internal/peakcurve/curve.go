// Package peakcurve holds the extracted ion chromatogram of a single mass
// trace, and splits traces that contain more than one elution peak.
package peakcurve

import (
	"sort"

	"github.com/524D/mzdecon/internal/smooth"
)

// Sample is a single centroid peak of a trace
type Sample struct {
	RT        float64
	Mz        float64
	Intensity float64
}

// Curve is one mass trace across a run: raw samples, the smoothed profile,
// and summary values (weighted m/z, apex, RT range).
type Curve struct {
	Index   int // Index in the curve store, -1 if not stored
	MSLevel int
	Window  int // DIA window index for MS2 traces, -1 for MS1

	TargetMz      float64 // Intensity^2 weighted mean m/z
	ApexRT        float64
	ApexIntensity float64
	StartRT       float64
	EndRT         float64
	RidgeRTs      []float64 // Apex candidates found during segmentation

	raw       []Sample
	smoothed  []smooth.Point
	weightSum float64 // Sum of squared intensities
	released  bool
}

// New returns an empty curve
func New(msLevel int, window int) *Curve {
	return &Curve{Index: -1, MSLevel: msLevel, Window: window}
}

// FromSamples builds a curve from RT ordered samples
func FromSamples(msLevel int, window int, samples []Sample) *Curve {
	c := New(msLevel, window)
	c.raw = make([]Sample, 0, len(samples))
	for _, s := range samples {
		c.AddPeak(s.RT, s.Mz, s.Intensity)
	}
	return c
}

// AddPeak appends a sample. The weighted mean m/z is updated incrementally.
func (c *Curve) AddPeak(rt, mz, intensity float64) {
	s := Sample{RT: rt, Mz: mz, Intensity: intensity}
	n := len(c.raw)
	if n == 0 || rt >= c.raw[n-1].RT {
		c.raw = append(c.raw, s)
	} else {
		i := sort.Search(n, func(i int) bool { return c.raw[i].RT > rt })
		c.raw = append(c.raw, Sample{})
		copy(c.raw[i+1:], c.raw[i:])
		c.raw[i] = s
	}

	w := intensity * intensity
	c.weightSum += w
	if c.weightSum > 0 {
		c.TargetMz += (mz - c.TargetMz) * w / c.weightSum
	} else if n == 0 {
		c.TargetMz = mz
	}

	if n == 0 || intensity > c.ApexIntensity {
		c.ApexIntensity = intensity
		c.ApexRT = rt
	}
	if n == 0 || rt < c.StartRT {
		c.StartRT = rt
	}
	if n == 0 || rt > c.EndRT {
		c.EndRT = rt
	}
}

// Len returns the number of raw samples
func (c *Curve) Len() int {
	return len(c.raw)
}

// Raw returns the raw samples, ordered by RT. The slice must not be modified.
func (c *Curve) Raw() []Sample {
	return c.raw
}

// Smoothed returns the smoothed profile, or nil if the curve was not
// smoothed or has been released
func (c *Curve) Smoothed() []smooth.Point {
	return c.smoothed
}

// RTWidth returns the RT span of the curve
func (c *Curve) RTWidth() float64 {
	return c.EndRT - c.StartRT
}

// Smooth computes the smoothed profile from the raw samples, and moves the
// apex to the maximum of the smoothed profile
func (c *Curve) Smooth(m smooth.Method, pointsPerMinute float64) {
	pts := make([]smooth.Point, len(c.raw))
	for i, s := range c.raw {
		pts[i] = smooth.Point{RT: s.RT, Intensity: s.Intensity}
	}
	c.setSmoothed(smooth.Apply(m, pts, pointsPerMinute))
}

func (c *Curve) setSmoothed(pts []smooth.Point) {
	c.smoothed = pts
	for i, p := range pts {
		if i == 0 || p.Intensity > c.ApexIntensity {
			c.ApexIntensity = p.Intensity
			c.ApexRT = p.RT
		}
	}
}

// Released reports whether the sample buffers were dropped
func (c *Curve) Released() bool {
	return c.released
}

// Release drops the raw and smoothed buffers. Summary values are retained.
func (c *Curve) Release() {
	c.raw = nil
	c.smoothed = nil
	c.released = true
}

// Overlap returns the length of the RT range shared by two curves,
// zero if they don't overlap
func (c *Curve) Overlap(o *Curve) float64 {
	return OverlapRange(c.StartRT, c.EndRT, o.StartRT, o.EndRT)
}

// OverlapRange returns the length of the overlap of [s1,e1] and [s2,e2]
func OverlapRange(s1, e1, s2, e2 float64) float64 {
	s := s1
	if s2 > s {
		s = s2
	}
	e := e1
	if e2 < e {
		e = e2
	}
	if e <= s {
		return 0
	}
	return e - s
}

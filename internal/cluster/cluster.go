// Package cluster groups isotope curves of one precursor ion into a cluster,
// and holds the curves and clusters of a run in an arena.
package cluster

import (
	"math"
	"sort"
	"sync"

	"github.com/524D/mzdecon/internal/isotope"
	"github.com/524D/mzdecon/internal/peakcurve"
	"github.com/524D/mzdecon/internal/smooth"
)

// Fragment is a fragment peak assigned to a cluster
type Fragment struct {
	Curve     int // Curve index in the store
	Mz        float64
	Intensity float64
	Corr      float64
}

// Cluster is a group of isotope curves with the same charge. Slot 0 holds
// the monoisotopic curve; empty slots hold -1.
type Cluster struct {
	Index   int
	Charge  int
	MSLevel int
	Window  int // DIA window of MS2 clusters, -1 for MS1

	Slots    []int
	Mz       []float64
	Height   []float64
	HeightRT []float64
	Area     []float64
	Corrs    []float64 // Correlation of slot 0 with slot k+1

	ApexRT  float64
	StartRT float64
	EndRT   float64

	Identified bool
	ChiSquare  float64
	PValue     float64

	mu         sync.RWMutex
	fragments  []Fragment
	normalized func() []Fragment
}

// New returns a cluster with n empty isotope slots
func New(charge, msLevel, window, n int) *Cluster {
	c := &Cluster{
		Index:    -1,
		Charge:   charge,
		MSLevel:  msLevel,
		Window:   window,
		Slots:    make([]int, n),
		Mz:       make([]float64, n),
		Height:   make([]float64, n),
		HeightRT: make([]float64, n),
		Area:     make([]float64, n),
		Corrs:    make([]float64, max(n-1, 0)),
	}
	for i := range c.Slots {
		c.Slots[i] = -1
	}
	c.normalized = sync.OnceValue(c.normalize)
	return c
}

// NumSlots returns the number of isotope slots
func (c *Cluster) NumSlots() int {
	return len(c.Slots)
}

// CompleteTo reports whether slots 0..k-1 are all filled
func (c *Cluster) CompleteTo(k int) bool {
	if k > len(c.Slots) {
		return false
	}
	for i := 0; i < k; i++ {
		if c.Slots[i] < 0 {
			return false
		}
	}
	return true
}

// IsotopeCount returns the number of filled leading slots
func (c *Cluster) IsotopeCount() int {
	n := 0
	for n < len(c.Slots) && c.Slots[n] >= 0 {
		n++
	}
	return n
}

// NeutralMass returns the uncharged monoisotopic mass
func (c *Cluster) NeutralMass() float64 {
	return (c.Mz[0] - isotope.Proton) * float64(c.Charge)
}

// MH returns the singly protonated monoisotopic mass
func (c *Cluster) MH() float64 {
	return c.NeutralMass() + isotope.Proton
}

// MzRange returns the m/z range of the filled isotopes
func (c *Cluster) MzRange() (float64, float64) {
	n := max(c.IsotopeCount(), 1)
	return c.Mz[0], c.Mz[n-1]
}

// ContainsRT reports whether rt lies within [StartRT,EndRT]
func (c *Cluster) ContainsRT(rt float64) bool {
	return rt >= c.StartRT && rt <= c.EndRT
}

// ConsensusWindow returns the RT window where the first two isotopes
// overlap, or the span of the monoisotopic curve if there is no overlap
func ConsensusWindow(mono, second *peakcurve.Curve) (float64, float64) {
	if second == nil {
		return mono.StartRT, mono.EndRT
	}
	start := math.Max(mono.StartRT, second.StartRT)
	end := math.Min(mono.EndRT, second.EndRT)
	if start >= end {
		return mono.StartRT, mono.EndRT
	}
	return start, end
}

// Build computes RT window, per slot m/z, height and area, and the
// isotope pattern score. curve resolves a store index to its curve.
func (c *Cluster) Build(curve func(int) *peakcurve.Curve) {
	n := c.IsotopeCount()
	if n == 0 {
		return
	}
	mono := curve(c.Slots[0])
	var second *peakcurve.Curve
	if n > 1 {
		second = curve(c.Slots[1])
	}
	c.StartRT, c.EndRT = ConsensusWindow(mono, second)
	c.ApexRT = mono.ApexRT

	for k := 0; k < n; k++ {
		cv := curve(c.Slots[k])
		c.Mz[k] = cv.TargetMz
		c.Area[k], c.Height[k], c.HeightRT[k] = areaInWindow(cv, c.StartRT, c.EndRT)
	}
	c.ChiSquare, c.PValue = isotope.ChiSquare(c.NeutralMass(), c.Area[:n])
}

// areaInWindow sums the curve profile within [start,end]. The smoothed
// profile is used if present, the raw samples otherwise.
func areaInWindow(cv *peakcurve.Curve, start, end float64) (area, height, heightRT float64) {
	pts := cv.Smoothed()
	if pts == nil {
		for _, s := range cv.Raw() {
			pts = append(pts, smooth.Point{RT: s.RT, Intensity: s.Intensity})
		}
	}
	for _, p := range pts {
		if p.RT < start || p.RT > end {
			continue
		}
		area += p.Intensity
		if p.Intensity > height {
			height, heightRT = p.Intensity, p.RT
		}
	}
	if height == 0 {
		// Released curve or no profile inside the window
		height, heightRT = cv.ApexIntensity, cv.ApexRT
	}
	return area, height, heightRT
}

// AddFragments appends assigned fragments. Safe for concurrent use.
func (c *Cluster) AddFragments(f ...Fragment) {
	c.mu.Lock()
	c.fragments = append(c.fragments, f...)
	c.mu.Unlock()
}

// Fragments returns a copy of the assigned fragments
func (c *Cluster) Fragments() []Fragment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Fragment(nil), c.fragments...)
}

// NumFragments returns the number of assigned fragments
func (c *Cluster) NumFragments() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fragments)
}

// NormalizedFragments returns the fragments sorted by m/z with intensities
// scaled to a maximum of 1. It is computed on the first call; fragments
// added afterwards are not reflected.
func (c *Cluster) NormalizedFragments() []Fragment {
	return c.normalized()
}

func (c *Cluster) normalize() []Fragment {
	frags := c.Fragments()
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].Mz < frags[j].Mz })
	top := 0.0
	for _, f := range frags {
		top = math.Max(top, f.Intensity)
	}
	if top > 0 {
		for i := range frags {
			frags[i].Intensity /= top
		}
	}
	return frags
}

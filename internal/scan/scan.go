// Package scan holds the spectra of a DIA run, grouped by MS level and
// isolation window.
package scan

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Peak is a centroid peak
type Peak struct {
	Mz        float64
	Intensity float64
}

// Scan is a single spectrum. RT is in minutes. For MS2 scans, IsoLow and
// IsoHigh are the bounds of the isolation window.
type Scan struct {
	Num     int
	MSLevel int
	RT      float64
	IsoLow  float64
	IsoHigh float64
	Peaks   []Peak
}

// Window is a DIA isolation window
type Window struct {
	Index int
	Low   float64
	High  float64
}

// Contains reports whether mz falls inside the window
func (w Window) Contains(mz float64) bool {
	return mz >= w.Low && mz <= w.High
}

// Overlaps reports whether [lo,hi] overlaps the window
func (w Window) Overlaps(lo, hi float64) bool {
	return hi >= w.Low && lo <= w.High
}

// Windows of different scans with bounds closer than this are the same window
const windowTolerance = 0.01

var (
	// ErrNoMS1 means the run contains no MS1 scans
	ErrNoMS1 = errors.New("scan: no MS1 scans")
	// ErrNoWindow means an MS2 scan has no valid isolation window
	ErrNoWindow = errors.New("scan: MS2 scan without isolation window")
)

// Collection is a run, with scans sorted by RT within each group
type Collection struct {
	ms1     []Scan
	ms2     [][]Scan // Per window
	windows []Window // Sorted by lower bound
}

// NewCollection groups scans by MS level and isolation window. Scans of MS
// level above 2 are ignored.
func NewCollection(scans []Scan) (*Collection, error) {
	c := &Collection{}
	var ms2 []Scan
	for _, s := range scans {
		switch s.MSLevel {
		case 1:
			c.ms1 = append(c.ms1, s)
		case 2:
			if !(s.IsoHigh > s.IsoLow) {
				return nil, fmt.Errorf("scan %d: %w", s.Num, ErrNoWindow)
			}
			ms2 = append(ms2, s)
		}
	}
	if len(c.ms1) == 0 {
		return nil, ErrNoMS1
	}
	sort.SliceStable(c.ms1, func(i, j int) bool { return c.ms1[i].RT < c.ms1[j].RT })

	for _, s := range ms2 {
		if findWindow(c.windows, s.IsoLow, s.IsoHigh) < 0 {
			c.windows = append(c.windows, Window{Low: s.IsoLow, High: s.IsoHigh})
		}
	}
	sort.Slice(c.windows, func(i, j int) bool { return c.windows[i].Low < c.windows[j].Low })
	c.ms2 = make([][]Scan, len(c.windows))
	for i := range c.windows {
		c.windows[i].Index = i
	}
	for _, s := range ms2 {
		w := findWindow(c.windows, s.IsoLow, s.IsoHigh)
		c.ms2[w] = append(c.ms2[w], s)
	}
	for _, group := range c.ms2 {
		sort.SliceStable(group, func(i, j int) bool { return group[i].RT < group[j].RT })
	}
	return c, nil
}

func findWindow(windows []Window, lo, hi float64) int {
	for i, w := range windows {
		if math.Abs(w.Low-lo) < windowTolerance && math.Abs(w.High-hi) < windowTolerance {
			return i
		}
	}
	return -1
}

// MS1 returns the MS1 scans sorted by RT
func (c *Collection) MS1() []Scan {
	return c.ms1
}

// MS2 returns the MS2 scans of a window sorted by RT
func (c *Collection) MS2(window int) []Scan {
	if window < 0 || window >= len(c.ms2) {
		return nil
	}
	return c.ms2[window]
}

// Windows returns the DIA windows sorted by lower bound
func (c *Collection) Windows() []Window {
	return c.windows
}

// OwnerWindow returns the lowest window overlapping the m/z range
// [lo,hi], or -1
func (c *Collection) OwnerWindow(lo, hi float64) int {
	for _, w := range c.windows {
		if w.Overlaps(lo, hi) {
			return w.Index
		}
	}
	return -1
}

// RTRange returns the RT of the first and last MS1 scan
func (c *Collection) RTRange() (float64, float64) {
	return c.ms1[0].RT, c.ms1[len(c.ms1)-1].RT
}

// FindRT returns the index of the last scan with RT before rt, or the first
// scan if there is none
func FindRT(scans []Scan, rt float64) int {
	j := sort.Search(len(scans), func(i int) bool { return scans[i].RT >= rt })
	if j > 0 {
		j--
	}
	return j
}

// ScansInRT returns the scans with RT in [rtMin,rtMax]
func ScansInRT(scans []Scan, rtMin, rtMax float64) []Scan {
	i := sort.Search(len(scans), func(i int) bool { return scans[i].RT >= rtMin })
	j := sort.Search(len(scans), func(i int) bool { return scans[i].RT > rtMax })
	if i >= j {
		return nil
	}
	return scans[i:j]
}

// Package detect extracts mass traces from centroid scans and groups
// co-eluting traces into isotope clusters.
package detect

import (
	"math"
	"sort"

	"github.com/524D/mzdecon/internal/peakcurve"
	"github.com/524D/mzdecon/internal/scan"
)

// TraceParams controls trace extraction
type TraceParams struct {
	PPM           float64 // m/z tolerance for extending a trace
	MaxMissedScan int     // Scans a trace may miss before it is closed
	MinPeakCount  int     // Traces with fewer samples are dropped
	MinIntensity  float64 // Peaks below this intensity are ignored
}

type activeTrace struct {
	curve  *peakcurve.Curve
	missed int
	hit    bool
}

// ExtractTraces follows peaks of similar m/z through RT ordered scans.
// Higher peaks claim traces first. Returned curves are ordered by start RT,
// then m/z.
func ExtractTraces(scans []scan.Scan, msLevel, window int, p TraceParams) []*peakcurve.Curve {
	var active []*activeTrace // Sorted by target m/z
	var done []*peakcurve.Curve

	closeTrace := func(t *activeTrace) {
		if t.curve.Len() >= p.MinPeakCount {
			done = append(done, t.curve)
		}
	}

	for _, s := range scans {
		peaks := make([]scan.Peak, 0, len(s.Peaks))
		for _, pk := range s.Peaks {
			if pk.Intensity >= p.MinIntensity && pk.Intensity > 0 {
				peaks = append(peaks, pk)
			}
		}
		sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].Intensity > peaks[j].Intensity })

		var started []*activeTrace
		for _, pk := range peaks {
			if t := closest(active, pk.Mz, p.PPM); t != nil {
				t.curve.AddPeak(s.RT, pk.Mz, pk.Intensity)
				t.hit = true
				continue
			}
			c := peakcurve.New(msLevel, window)
			c.AddPeak(s.RT, pk.Mz, pk.Intensity)
			started = append(started, &activeTrace{curve: c, hit: true})
		}

		kept := active[:0]
		for _, t := range active {
			if t.hit {
				t.missed = 0
			} else {
				t.missed++
			}
			if t.missed > p.MaxMissedScan {
				closeTrace(t)
				continue
			}
			t.hit = false
			kept = append(kept, t)
		}
		for _, t := range started {
			t.hit = false
		}
		active = append(kept, started...)
		sort.SliceStable(active, func(i, j int) bool { return active[i].curve.TargetMz < active[j].curve.TargetMz })
	}
	for _, t := range active {
		closeTrace(t)
	}
	sort.SliceStable(done, func(i, j int) bool {
		if done[i].StartRT != done[j].StartRT {
			return done[i].StartRT < done[j].StartRT
		}
		return done[i].TargetMz < done[j].TargetMz
	})
	return done
}

// closest returns the trace nearest to mz within ppm that was not yet
// extended in the current scan
func closest(active []*activeTrace, mz, ppm float64) *activeTrace {
	tol := mz * ppm * 1e-6
	i := sort.Search(len(active), func(i int) bool { return active[i].curve.TargetMz >= mz-tol })
	var best *activeTrace
	bestDist := math.Inf(1)
	for ; i < len(active) && active[i].curve.TargetMz <= mz+tol; i++ {
		t := active[i]
		if t.hit {
			continue
		}
		if d := math.Abs(t.curve.TargetMz - mz); d < bestDist {
			best, bestDist = t, d
		}
	}
	return best
}

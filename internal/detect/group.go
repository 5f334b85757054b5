package detect

import (
	"sort"

	"github.com/524D/mzdecon/internal/cluster"
	"github.com/524D/mzdecon/internal/deconv"
	"github.com/524D/mzdecon/internal/isotope"
	"github.com/524D/mzdecon/internal/peakcurve"
	"github.com/524D/mzdecon/internal/spatial"
)

// GroupParams controls isotope grouping
type GroupParams struct {
	StartCharge      int
	EndCharge        int
	PPM              float64
	IsoCorrThreshold float64 // Min profile correlation of an isotope with the monoisotope
	MinNoPeakCluster int     // Min number of isotopes
	MaxNoPeakCluster int     // Number of isotope slots
	PointsPerMinute  float64
}

// GroupIsotopes builds isotope clusters from stored curves of one MS level
// and window. Curves are tried as monoisotope in order of decreasing apex
// intensity; charges from EndCharge down to StartCharge. The first charge
// that yields enough isotopes wins. A curve is placed in at most one
// cluster, as monoisotope or as higher isotope. Clusters are built but not
// stored.
func GroupIsotopes(st *cluster.Store, curves []*peakcurve.Curve, msLevel, window int, p GroupParams) []*cluster.Cluster {
	index := spatial.NewCurveIndex(curves)
	order := append([]*peakcurve.Curve(nil), curves...)
	sort.SliceStable(order, func(i, j int) bool { return order[i].ApexIntensity > order[j].ApexIntensity })

	used := make(map[int]bool)
	var out []*cluster.Cluster
	for _, mono := range order {
		if used[mono.Index] {
			continue
		}
		for z := p.EndCharge; z >= p.StartCharge; z-- {
			slots, corrs := findIsotopes(index, mono, z, used, p)
			if len(slots) < p.MinNoPeakCluster {
				continue
			}
			cl := cluster.New(z, msLevel, window, p.MaxNoPeakCluster)
			for k, cv := range slots {
				cl.Slots[k] = cv.Index
				used[cv.Index] = true
				if k > 0 {
					cl.Corrs[k-1] = corrs[k-1]
				}
			}
			cl.Build(st.Curve)
			out = append(out, cl)
			break
		}
	}
	return out
}

// findIsotopes returns the monoisotope followed by the consecutive isotopes
// found for charge z, and their correlations with the monoisotope. Used
// curves are skipped.
func findIsotopes(index *spatial.CurveIndex, mono *peakcurve.Curve, z int, used map[int]bool, p GroupParams) ([]*peakcurve.Curve, []float64) {
	slots := []*peakcurve.Curve{mono}
	var corrs []float64
	for k := 1; k < p.MaxNoPeakCluster; k++ {
		mz := mono.TargetMz + float64(k)*isotope.C13Diff/float64(z)
		tol := mz * p.PPM * 1e-6
		var best *peakcurve.Curve
		bestCorr := 0.0
		for _, c := range index.Query(mono.StartRT, mono.EndRT, mz-tol, mz+tol) {
			if c.Index == mono.Index || used[c.Index] || mono.Overlap(c) <= 0 {
				continue
			}
			r := deconv.Correlate(mono.Smoothed(), c.Smoothed(), p.PointsPerMinute)
			if r >= p.IsoCorrThreshold && (best == nil || r > bestCorr) {
				best, bestCorr = c, r
			}
		}
		if best == nil {
			break
		}
		slots = append(slots, best)
		corrs = append(corrs, bestCorr)
	}
	return slots, corrs
}

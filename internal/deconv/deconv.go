// Package deconv assigns DIA fragment curves to the precursor clusters they
// co-elute with, and assembles the pseudo-spectra of the precursors.
package deconv

import (
	"log"
	"math"

	"github.com/524D/mzdecon/internal/cluster"
	"github.com/524D/mzdecon/internal/peakcurve"
	"github.com/524D/mzdecon/internal/scan"
	"github.com/524D/mzdecon/internal/spatial"
)

// Params controls edge construction and filtering
type Params struct {
	Filter          FilterParams
	PointsPerMinute float64 // Grid density for profile correlation
	MinMS2Intensity float64 // Fragment curves with a lower apex are ignored
}

// Window is the input of one DIA window
type Window struct {
	Window      scan.Window
	Precursors  []*cluster.Cluster // MS1 clusters with isotopes inside the window
	MS2Clusters []*cluster.Cluster // Isotope clusters found in the MS2 data
	Curves      []*peakcurve.Curve // MS2 curves of the window
}

// Result holds the edges of one window. Edges are ranked; the filtered
// maps are keyed by cluster index.
type Result struct {
	Window         int
	Edges          []Edge
	Filtered       map[int][]Edge
	Unfragmented   []Edge
	UnfragFiltered map[int][]Edge
}

// Deconvolver runs the deconvolution of DIA windows over a store
type Deconvolver struct {
	Store  *cluster.Store
	Params Params
}

// PrecursorsOf returns the MS1 clusters whose isotope m/z range overlaps
// the window
func PrecursorsOf(w scan.Window, clusters []*cluster.Cluster) []*cluster.Cluster {
	var out []*cluster.Cluster
	for _, c := range clusters {
		lo, hi := c.MzRange()
		if w.Overlaps(lo, hi) {
			out = append(out, c)
		}
	}
	return out
}

// Run computes, ranks and filters the edges of a window, then correlates
// the curves without a precursor against the window's MS2 clusters.
func (d *Deconvolver) Run(w Window) Result {
	res := Result{Window: w.Window.Index}
	frags := d.fragmentCurves(w.Curves)
	if len(frags) == 0 {
		log.Printf("window %d (%.2f-%.2f): no fragment curves", w.Window.Index, w.Window.Low, w.Window.High)
		return res
	}
	index := spatial.NewCurveIndex(frags)

	res.Edges = d.edges(w.Precursors, index, nil)
	Rank(res.Edges)
	res.Filtered = Filter(res.Edges, d.Params.Filter)

	assigned := make(map[int]bool)
	for _, list := range res.Filtered {
		for _, e := range list {
			assigned[e.Curve] = true
		}
	}
	var left []*peakcurve.Curve
	for _, c := range frags {
		if !assigned[c.Index] {
			left = append(left, c)
		}
	}
	if len(left) > 0 && len(w.MS2Clusters) > 0 {
		res.Unfragmented = d.edges(w.MS2Clusters, spatial.NewCurveIndex(left), isotopeCurves(w.MS2Clusters))
		Rank(res.Unfragmented)
		res.UnfragFiltered = Filter(res.Unfragmented, d.Params.Filter)
	}
	return res
}

// Assign adds the filtered fragments to their clusters
func (d *Deconvolver) Assign(res Result) {
	for _, m := range []map[int][]Edge{res.Filtered, res.UnfragFiltered} {
		for ci, list := range m {
			frags := make([]cluster.Fragment, len(list))
			for i, e := range list {
				frags[i] = e.Fragment()
			}
			d.Store.Clusters[ci].AddFragments(frags...)
		}
	}
}

func (d *Deconvolver) fragmentCurves(curves []*peakcurve.Curve) []*peakcurve.Curve {
	var out []*peakcurve.Curve
	for _, c := range curves {
		if c.ApexIntensity >= d.Params.MinMS2Intensity {
			out = append(out, c)
		}
	}
	return out
}

// edges correlates each cluster against the curves of the index whose RT
// range overlaps the cluster. Curves listed in skip are not used.
func (d *Deconvolver) edges(clusters []*cluster.Cluster, index *spatial.CurveIndex, skip map[int]bool) []Edge {
	var edges []Edge
	widen := index.MaxWidth()
	for _, c := range clusters {
		if c.Slots[0] < 0 {
			continue
		}
		mono := d.Store.Curve(c.Slots[0])
		// Apexes of curves overlapping the cluster lie within one curve
		// width of its range
		cands := index.Query(c.StartRT-widen, c.EndRT+widen, 0, math.MaxFloat64)
		for _, f := range cands {
			if skip[f.Index] {
				continue
			}
			if e, ok := newEdge(c, mono, f, d.Params.PointsPerMinute); ok {
				edges = append(edges, e)
			}
		}
	}
	return edges
}

// isotopeCurves returns the curve indices used as isotopes by the clusters
func isotopeCurves(clusters []*cluster.Cluster) map[int]bool {
	m := make(map[int]bool)
	for _, c := range clusters {
		for _, s := range c.Slots {
			if s >= 0 {
				m[s] = true
			}
		}
	}
	return m
}

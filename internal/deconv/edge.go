package deconv

import (
	"math"
	"sort"

	"github.com/524D/mzdecon/internal/cluster"
	"github.com/524D/mzdecon/internal/peakcurve"
)

// Edge links a precursor cluster to a fragment curve
type Edge struct {
	Precursor int     // Cluster index
	Curve     int     // Fragment curve index
	Corr      float64 // Profile correlation
	Intensity float64 // Fragment apex intensity
	Mz        float64 // Fragment m/z
	PPM       float64 // Offset of the fragment to the precursor m/z
	ApexDelta float64 // |fragment apex RT - precursor apex RT|
	Overlap   float64 // Shared RT range as fraction of the shorter span
	Rank      int     // Rank by score among the edges of the precursor, 1 based
	MS1Rank   int     // Rank by correlation among the edges of the curve, 1 based
}

// Score combines correlation and fragment intensity. Intensities below 1
// count as 1.
func (e Edge) Score() float64 {
	return e.Corr * e.Corr * math.Log(math.Max(e.Intensity, 1))
}

// Fragment converts the edge to a fragment of its precursor
func (e Edge) Fragment() cluster.Fragment {
	return cluster.Fragment{Curve: e.Curve, Mz: e.Mz, Intensity: e.Intensity, Corr: e.Corr}
}

// newEdge computes the edge between a precursor cluster, represented by
// its monoisotopic curve, and a fragment curve. ok is false if the RT
// ranges don't overlap.
func newEdge(prec *cluster.Cluster, mono, frag *peakcurve.Curve, pointsPerMinute float64) (Edge, bool) {
	ov := peakcurve.OverlapRange(prec.StartRT, prec.EndRT, frag.StartRT, frag.EndRT)
	if ov <= 0 {
		return Edge{}, false
	}
	e := Edge{
		Precursor: prec.Index,
		Curve:     frag.Index,
		Corr:      Correlate(mono.Smoothed(), frag.Smoothed(), pointsPerMinute),
		Intensity: frag.ApexIntensity,
		Mz:        frag.TargetMz,
		ApexDelta: math.Abs(frag.ApexRT - prec.ApexRT),
	}
	if mz0 := prec.Mz[0]; mz0 > 0 {
		e.PPM = (frag.TargetMz - mz0) / mz0 * 1e6
	}
	if shorter := math.Min(prec.EndRT-prec.StartRT, frag.RTWidth()); shorter > 0 {
		e.Overlap = math.Min(ov/shorter, 1)
	} else {
		e.Overlap = 1
	}
	return e, true
}

// Rank sets Rank and MS1Rank of all edges. Rank orders the edges of a
// precursor by descending score, ties by ascending curve index. MS1Rank
// orders the edges of a fragment curve by descending correlation, ties by
// ascending precursor index.
func Rank(edges []Edge) {
	byPrec := make(map[int][]int)
	byCurve := make(map[int][]int)
	for i, e := range edges {
		byPrec[e.Precursor] = append(byPrec[e.Precursor], i)
		byCurve[e.Curve] = append(byCurve[e.Curve], i)
	}
	for _, idx := range byPrec {
		sort.Slice(idx, func(a, b int) bool {
			ea, eb := &edges[idx[a]], &edges[idx[b]]
			sa, sb := ea.Score(), eb.Score()
			if sa != sb {
				return sa > sb
			}
			return ea.Curve < eb.Curve
		})
		for r, i := range idx {
			edges[i].Rank = r + 1
		}
	}
	for _, idx := range byCurve {
		sort.Slice(idx, func(a, b int) bool {
			ea, eb := &edges[idx[a]], &edges[idx[b]]
			if ea.Corr != eb.Corr {
				return ea.Corr > eb.Corr
			}
			return ea.Precursor < eb.Precursor
		})
		for r, i := range idx {
			edges[i].MS1Rank = r + 1
		}
	}
}

// FilterParams holds the conditions an edge must meet to be kept
type FilterParams struct {
	CorrThreshold float64
	FragmentRank  int // Max rank of a fragment among the edges of its precursor
	PrecursorRank int // Max rank of a precursor among the edges of its fragment
	ApexDelta     float64
	RTOverlap     float64 // Min overlap fraction
}

// Keep reports whether an edge meets all conditions
func (p FilterParams) Keep(e Edge) bool {
	return e.Corr >= p.CorrThreshold &&
		e.Rank <= p.FragmentRank &&
		e.MS1Rank <= p.PrecursorRank &&
		e.ApexDelta <= p.ApexDelta &&
		e.Overlap >= p.RTOverlap
}

// Filter returns the ranked edges that meet all conditions, grouped by
// precursor and ordered by rank. The edges are not modified.
func Filter(edges []Edge, p FilterParams) map[int][]Edge {
	out := make(map[int][]Edge)
	for _, e := range edges {
		if p.Keep(e) {
			out[e.Precursor] = append(out[e.Precursor], e)
		}
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].Rank < list[j].Rank })
	}
	return out
}

// Package spatial provides (RT, mass) range queries over clusters and
// curves, backed by k-d trees that are built on first use.
package spatial

import (
	"log"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/524D/mzdecon/internal/cluster"
	"github.com/524D/mzdecon/internal/peakcurve"
)

// Keys closer than this are considered equal
const keyEpsilon = 1e-9

// point is a stored (RT, key) pair with the arena index of its item
type point struct {
	rt  float64
	key float64
	idx int
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.rt - q.rt
	case 1:
		return p.key - q.key
	default:
		panic("illegal dimension")
	}
}

func (p point) Dims() int { return 2 }

func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dr := p.rt - q.rt
	dk := p.key - q.key
	return dr*dr + dk*dk
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Pivot(d kdtree.Dim) int                { return plane{points: p, Dim: d}.Pivot() }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

type plane struct {
	kdtree.Dim
	points
}

func (p plane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.points[i].rt < p.points[j].rt
	}
	return p.points[i].key < p.points[j].key
}
func (p plane) Pivot() int                             { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer { p.points = p.points[start:end]; return p }
func (p plane) Swap(i, j int)                          { p.points[i], p.points[j] = p.points[j], p.points[i] }

// tree is a lazily built k-d tree. load supplies the points when the tree
// is (re)built.
type tree struct {
	mu    sync.Mutex
	t     *kdtree.Tree
	load  func() points
	name  string
	dupes int
}

// ensureBuilt builds the tree if it was never built or was invalidated
func (tr *tree) ensureBuilt() *kdtree.Tree {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.t != nil {
		return tr.t
	}
	tr.t, tr.dupes = build(tr.load(), tr.name)
	return tr.t
}

func (tr *tree) invalidate() {
	tr.mu.Lock()
	tr.t = nil
	tr.mu.Unlock()
}

// build creates a tree, skipping points whose key duplicates an earlier one
func build(pts points, name string) (*kdtree.Tree, int) {
	type k struct{ rt, key float64 }
	seen := make(map[k]int, len(pts))
	uniq := make(points, 0, len(pts))
	dupes := 0
	for _, p := range pts {
		key := k{p.rt, p.key}
		if first, ok := seen[key]; ok {
			log.Printf("%s index: item %d has the same RT %.4f and key %.4f as item %d, skipped",
				name, p.idx, p.rt, p.key, first)
			dupes++
			continue
		}
		seen[key] = p.idx
		uniq = append(uniq, p)
	}
	return kdtree.New(uniq, false), dupes
}

// query returns the indices of all points in the box, in ascending order
func query(t *kdtree.Tree, rtLo, rtHi, keyLo, keyHi float64) []int {
	var out []int
	b := &kdtree.Bounding{
		Min: point{rt: rtLo - keyEpsilon, key: keyLo - keyEpsilon},
		Max: point{rt: rtHi + keyEpsilon, key: keyHi + keyEpsilon},
	}
	t.DoBounded(b, func(c kdtree.Comparable, _ *kdtree.Bounding, _ int) bool {
		out = append(out, c.(point).idx)
		return false
	})
	sort.Ints(out)
	return out
}

// ppmWindow returns the bounds of a ppm tolerance around v
func ppmWindow(v, ppm float64) (float64, float64) {
	d := v * ppm * 1e-6
	return v - d, v + d
}

// ClusterIndex indexes clusters by apex RT and [M+H]+ mass
type ClusterIndex struct {
	clusters []*cluster.Cluster
	tree     tree
}

// NewClusterIndex returns an index over the given clusters. The tree is
// built on the first query.
func NewClusterIndex(clusters []*cluster.Cluster) *ClusterIndex {
	ci := &ClusterIndex{clusters: clusters}
	ci.tree = tree{name: "cluster", load: ci.points}
	return ci
}

func (ci *ClusterIndex) points() points {
	pts := make(points, 0, len(ci.clusters))
	for i, c := range ci.clusters {
		pts = append(pts, point{rt: c.ApexRT, key: c.MH(), idx: i})
	}
	return pts
}

// Invalidate forces a rebuild on the next query
func (ci *ClusterIndex) Invalidate() {
	ci.tree.invalidate()
}

// Skipped returns the number of duplicate keys skipped by the last build
func (ci *ClusterIndex) Skipped() int {
	ci.tree.ensureBuilt()
	ci.tree.mu.Lock()
	defer ci.tree.mu.Unlock()
	return ci.tree.dupes
}

// Query returns the clusters of the given charge with apex within rtTol of
// rt and [M+H]+ mass within ppm of mh. If some of them span rt, only
// those are returned.
func (ci *ClusterIndex) Query(rt, rtTol, mh, ppm float64, charge int) []*cluster.Cluster {
	t := ci.tree.ensureBuilt()
	lo, hi := ppmWindow(mh, ppm)
	var tight, tolerant []*cluster.Cluster
	for _, i := range query(t, rt-rtTol, rt+rtTol, lo, hi) {
		c := ci.clusters[i]
		if c.Charge != charge {
			continue
		}
		tolerant = append(tolerant, c)
		if c.ContainsRT(rt) {
			tight = append(tight, c)
		}
	}
	if len(tight) > 0 {
		return tight
	}
	return tolerant
}

// CurveIndex indexes curves by apex RT and target m/z
type CurveIndex struct {
	curves []*peakcurve.Curve
	tree   tree
}

// NewCurveIndex returns an index over the given curves
func NewCurveIndex(curves []*peakcurve.Curve) *CurveIndex {
	ci := &CurveIndex{curves: curves}
	ci.tree = tree{name: "curve", load: ci.points}
	return ci
}

func (ci *CurveIndex) points() points {
	pts := make(points, 0, len(ci.curves))
	for i, c := range ci.curves {
		pts = append(pts, point{rt: c.ApexRT, key: c.TargetMz, idx: i})
	}
	return pts
}

// Invalidate forces a rebuild on the next query
func (ci *CurveIndex) Invalidate() {
	ci.tree.invalidate()
}

// Query returns the curves with apex RT in [rtLo,rtHi] and target m/z in
// [mzLo,mzHi]
func (ci *CurveIndex) Query(rtLo, rtHi, mzLo, mzHi float64) []*peakcurve.Curve {
	t := ci.tree.ensureBuilt()
	idx := query(t, rtLo, rtHi, mzLo, mzHi)
	out := make([]*peakcurve.Curve, len(idx))
	for i, j := range idx {
		out[i] = ci.curves[j]
	}
	return out
}

// QueryPPM returns the curves with apex within rtTol of rt and target m/z
// within ppm of mz
func (ci *CurveIndex) QueryPPM(rt, rtTol, mz, ppm float64) []*peakcurve.Curve {
	lo, hi := ppmWindow(mz, ppm)
	return ci.Query(rt-rtTol, rt+rtTol, lo, hi)
}

// MaxWidth returns the largest RT width of the indexed curves
func (ci *CurveIndex) MaxWidth() float64 {
	w := 0.0
	for _, c := range ci.curves {
		w = math.Max(w, c.RTWidth())
	}
	return w
}

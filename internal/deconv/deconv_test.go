package deconv

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzdecon/internal/cluster"
	"github.com/524D/mzdecon/internal/peakcurve"
	"github.com/524D/mzdecon/internal/scan"
	"github.com/524D/mzdecon/internal/smooth"
)

const ppm = 150

func gaussian(start, end, apex, height float64) []smooth.Point {
	var pts []smooth.Point
	n := int(math.Round((end - start) / 0.01))
	for i := 0; i <= n; i++ {
		rt := start + float64(i)*0.01
		d := (rt - apex) / 0.08
		pts = append(pts, smooth.Point{RT: rt, Intensity: 1 + height*math.Exp(-d*d/2)})
	}
	return pts
}

func storeCurve(st *cluster.Store, msLevel, window int, mz, start, end, apex, height float64) *peakcurve.Curve {
	c := peakcurve.New(msLevel, window)
	for _, p := range gaussian(start, end, apex, height) {
		c.AddPeak(p.RT, mz, p.Intensity)
	}
	c.Smooth(smooth.BSplineMethod, ppm)
	st.AddCurve(c)
	return c
}

func storeCluster(st *cluster.Store, msLevel, window, charge int, curves ...*peakcurve.Curve) *cluster.Cluster {
	cl := cluster.New(charge, msLevel, window, 4)
	for k, c := range curves {
		cl.Slots[k] = c.Index
	}
	cl.Build(st.Curve)
	st.AddCluster(cl)
	return cl
}

func testParams() Params {
	return Params{
		Filter: FilterParams{
			CorrThreshold: 0.5,
			FragmentRank:  100,
			PrecursorRank: 5,
			ApexDelta:     0.3,
			RTOverlap:     0.3,
		},
		PointsPerMinute: ppm,
	}
}

func TestCorrelate(t *testing.T) {
	a := gaussian(9.5, 10.5, 10, 1000)
	b := gaussian(9.6, 10.4, 10, 50)
	assert.InDelta(t, 1.0, Correlate(a, b, ppm), 1e-3)
	assert.InDelta(t, 1.0, Correlate(b, a, ppm), 1e-3)

	shifted := gaussian(9.7, 10.7, 10.2, 1000)
	r := Correlate(a, shifted, ppm)
	assert.Less(t, r, 0.9)
	assert.Greater(t, r, -1.0)

	far := gaussian(11, 12, 11.5, 1000)
	assert.Equal(t, 0.0, Correlate(a, far, ppm))

	flat := []smooth.Point{{RT: 9.5, Intensity: 5}, {RT: 10.5, Intensity: 5}}
	assert.Equal(t, 0.0, Correlate(a, flat, ppm))
	assert.Equal(t, 0.0, Correlate(a, a[:1], ppm))

	unsorted := []smooth.Point{{RT: 10, Intensity: 1}, {RT: 9.9, Intensity: 2}, {RT: 10.2, Intensity: 3}}
	assert.Equal(t, 0.0, Correlate(a, unsorted, ppm))
}

func TestScore(t *testing.T) {
	assert.Equal(t, 0.0, Edge{Corr: 0.9, Intensity: 0.5}.Score())
	assert.InDelta(t, 0.81*math.Log(100), Edge{Corr: 0.9, Intensity: 100}.Score(), 1e-12)
}

func TestRank(t *testing.T) {
	edges := []Edge{
		{Precursor: 0, Curve: 3, Corr: 0.9, Intensity: 100},
		{Precursor: 0, Curve: 1, Corr: 0.9, Intensity: 100},
		{Precursor: 0, Curve: 2, Corr: 0.95, Intensity: 1000},
		{Precursor: 1, Curve: 1, Corr: 0.9, Intensity: 100},
		{Precursor: 2, Curve: 1, Corr: 0.99, Intensity: 100},
	}
	Rank(edges)
	type rr struct{ Rank, MS1Rank int }
	var got []rr
	for _, e := range edges {
		got = append(got, rr{e.Rank, e.MS1Rank})
	}
	want := []rr{
		{3, 1}, // curve 3 ties curve 1 on score, higher index ranks lower
		{2, 2}, // curve 1 ties precursor 1 on corr, lower precursor first
		{1, 1},
		{1, 3},
		{1, 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ranks (-want +got):\n%s", diff)
	}
}

func TestRankStable(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	var edges []Edge
	for p := 0; p < 20; p++ {
		for c := 0; c < 30; c++ {
			edges = append(edges, Edge{
				Precursor: p,
				Curve:     c,
				Corr:      float64(r.Intn(10)) / 10,
				Intensity: float64(1 + r.Intn(3)*100),
			})
		}
	}
	ref := append([]Edge(nil), edges...)
	Rank(ref)
	key := func(e Edge) [2]int { return [2]int{e.Precursor, e.Curve} }
	want := make(map[[2]int][2]int)
	for _, e := range ref {
		want[key(e)] = [2]int{e.Rank, e.MS1Rank}
	}
	for i := 0; i < 5; i++ {
		shuffled := append([]Edge(nil), edges...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		Rank(shuffled)
		for _, e := range shuffled {
			require.Equal(t, want[key(e)], [2]int{e.Rank, e.MS1Rank}, "edge %v", key(e))
		}
	}
}

func TestFilterCorrelationScenario(t *testing.T) {
	edges := []Edge{
		{Precursor: 0, Curve: 7, Corr: 1.0, Intensity: 500, Overlap: 1},
		{Precursor: 1, Curve: 7, Corr: 0.1, Intensity: 500, Overlap: 1},
	}
	Rank(edges)
	before := append([]Edge(nil), edges...)
	got := Filter(edges, testParams().Filter)
	require.Len(t, got, 1)
	require.Len(t, got[0], 1)
	assert.Equal(t, 7, got[0][0].Curve)
	assert.Empty(t, got[1])
	if diff := cmp.Diff(before, edges); diff != "" {
		t.Errorf("Filter modified edges (-before +after):\n%s", diff)
	}
}

func TestFilterConditions(t *testing.T) {
	p := testParams().Filter
	base := Edge{Corr: 0.8, Rank: 1, MS1Rank: 1, ApexDelta: 0.1, Overlap: 0.9}
	assert.True(t, p.Keep(base))
	mods := map[string]func(*Edge){
		"corr":      func(e *Edge) { e.Corr = 0.4 },
		"rank":      func(e *Edge) { e.Rank = 101 },
		"ms1 rank":  func(e *Edge) { e.MS1Rank = 6 },
		"apexDelta": func(e *Edge) { e.ApexDelta = 0.5 },
		"overlap":   func(e *Edge) { e.Overlap = 0.1 },
	}
	for name, mod := range mods {
		e := base
		mod(&e)
		assert.False(t, p.Keep(e), name)
	}
}

func TestRunAssignsToCoElutingPrecursor(t *testing.T) {
	st := &cluster.Store{}
	a := storeCluster(st, 1, -1, 2,
		storeCurve(st, 1, -1, 500.0, 9.5, 10.5, 10, 1000),
		storeCurve(st, 1, -1, 500.5, 9.5, 10.5, 10, 600))
	b := storeCluster(st, 1, -1, 2,
		storeCurve(st, 1, -1, 505.0, 10.1, 11.1, 10.6, 1000),
		storeCurve(st, 1, -1, 505.5, 10.1, 11.1, 10.6, 600))
	frag := storeCurve(st, 2, 0, 300.2, 9.6, 10.4, 10, 200)
	lone := storeCurve(st, 2, 0, 410.3, 12.0, 13.0, 12.5, 300)

	d := &Deconvolver{Store: st, Params: testParams()}
	w := scan.Window{Index: 0, Low: 490, High: 515}
	res := d.Run(Window{
		Window:     w,
		Precursors: PrecursorsOf(w, st.ClustersOf(1, -1)),
		Curves:     st.CurvesOf(2, 0),
	})
	require.Len(t, res.Filtered, 1)
	require.Len(t, res.Filtered[a.Index], 1)
	e := res.Filtered[a.Index][0]
	assert.Equal(t, frag.Index, e.Curve)
	assert.InDelta(t, 1.0, e.Corr, 0.01)
	assert.InDelta(t, (300.2-500.0)/500.0*1e6, e.PPM, 1e-6)
	assert.Empty(t, res.Filtered[b.Index])
	for _, e := range res.Edges {
		assert.NotEqual(t, lone.Index, e.Curve, "curve outside all precursors got an edge")
	}

	d.Assign(res)
	assert.Equal(t, 1, a.NumFragments())
	assert.Equal(t, 0, b.NumFragments())
}

func TestRunUnfragmented(t *testing.T) {
	st := &cluster.Store{}
	iso0 := storeCurve(st, 2, 0, 600.0, 9.5, 10.5, 10, 800)
	iso1 := storeCurve(st, 2, 0, 600.5, 9.5, 10.5, 10, 500)
	frag := storeCurve(st, 2, 0, 250.1, 9.6, 10.4, 10, 300)
	ms2 := storeCluster(st, 2, 0, 2, iso0, iso1)

	d := &Deconvolver{Store: st, Params: testParams()}
	res := d.Run(Window{
		Window:      scan.Window{Index: 0, Low: 590, High: 615},
		MS2Clusters: []*cluster.Cluster{ms2},
		Curves:      st.CurvesOf(2, 0),
	})
	assert.Empty(t, res.Filtered)
	require.Len(t, res.UnfragFiltered[ms2.Index], 1)
	assert.Equal(t, frag.Index, res.UnfragFiltered[ms2.Index][0].Curve)
}

type memSink struct {
	mu      sync.Mutex
	spectra []Spectrum
}

func (m *memSink) WriteSpectrum(s Spectrum) error {
	m.mu.Lock()
	m.spectra = append(m.spectra, s)
	m.mu.Unlock()
	return nil
}

func TestEmitter(t *testing.T) {
	st := &cluster.Store{}
	var clusters []*cluster.Cluster
	for i, n := range []int{3, 2, 1} {
		cl := cluster.New(2, 1, -1, 4)
		for k := 0; k < n; k++ {
			cl.Slots[k] = 100 + k
			cl.Mz[k] = 410 + float64(i) + 0.5*float64(k)
		}
		st.AddCluster(cl)
		clusters = append(clusters, cl)
	}
	clusters[0].AddFragments(cluster.Fragment{Mz: 300, Intensity: 50}, cluster.Fragment{Mz: 200, Intensity: 100})
	clusters[1].AddFragments(cluster.Fragment{Mz: 300, Intensity: 50}, cluster.Fragment{Mz: 250, Intensity: 10})
	clusters[2].AddFragments(cluster.Fragment{Mz: 300, Intensity: 50})
	ms2 := cluster.New(1, 2, 1, 4)
	ms2.Slots[0] = 1
	ms2.Mz[0] = 430
	ms2.AddFragments(cluster.Fragment{Mz: 100, Intensity: 1}, cluster.Fragment{Mz: 110, Intensity: 2})
	st.AddCluster(ms2)
	clusters = append(clusters, ms2)

	windows := []scan.Window{{Index: 0, Low: 400, High: 425}, {Index: 1, Low: 405, High: 450}}
	owner := func(lo, hi float64) int {
		for _, w := range windows {
			if w.Overlaps(lo, hi) {
				return w.Index
			}
		}
		return -1
	}
	sink := &memSink{}
	em := NewEmitter(2, sink)
	var wg sync.WaitGroup
	for _, w := range windows {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			_, err := em.EmitWindow(w, clusters, owner)
			assert.NoError(t, err)
		}(w.Index)
	}
	wg.Wait()
	// Emitting again writes nothing
	n, err := em.EmitWindow(0, clusters, owner)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, sink.spectra, 3)
	assert.Equal(t, uint64(3), em.Claimed())
	byCluster := make(map[int]Spectrum)
	for _, s := range sink.spectra {
		byCluster[s.Cluster] = s
	}
	assert.Equal(t, Q1, byCluster[0].Partition)
	assert.Equal(t, Q2, byCluster[1].Partition)
	assert.Equal(t, Q3, byCluster[3].Partition)
	assert.NotContains(t, byCluster, 2, "cluster with too few fragments emitted")

	want := []scan.Peak{{Mz: 200, Intensity: 100}, {Mz: 300, Intensity: 50}}
	if diff := cmp.Diff(want, byCluster[0].Peaks); diff != "" {
		t.Errorf("peaks (-want +got):\n%s", diff)
	}
	wantNorm := []scan.Peak{{Mz: 200, Intensity: 1}, {Mz: 300, Intensity: 0.5}}
	if diff := cmp.Diff(wantNorm, byCluster[0].Normalized); diff != "" {
		t.Errorf("normalized peaks (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Q3", Q3.String())
}

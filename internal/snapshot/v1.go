package snapshot

// Version 1 stored only the monoisotopic m/z and kept the edges inside
// their precursor. Edges had no window or unfragmented flag.
type snapshotV1 struct {
	Version  int
	Program  string
	Clusters []clusterV1
}

type clusterV1 struct {
	Index     int
	Charge    int
	MSLevel   int
	Window    int
	Mz        float64
	RT        float64
	StartRT   float64
	EndRT     float64
	Area      []float64
	ChiSquare float64
	PValue    float64
	Edges     []edgeV1
}

type edgeV1 struct {
	Curve     int
	Corr      float64
	Intensity float64
	Mz        float64
	Rank      int
}

func (old snapshotV1) migrate() Snapshot {
	s := Snapshot{Version: Version, Program: old.Program}
	for _, oc := range old.Clusters {
		c := Cluster{
			Index:     oc.Index,
			Charge:    oc.Charge,
			MSLevel:   oc.MSLevel,
			Window:    oc.Window,
			Mz:        []float64{oc.Mz},
			Area:      oc.Area,
			ApexRT:    oc.RT,
			StartRT:   oc.StartRT,
			EndRT:     oc.EndRT,
			ChiSquare: oc.ChiSquare,
			PValue:    oc.PValue,
		}
		window := -1
		if oc.MSLevel != 1 {
			window = oc.Window
		}
		for _, oe := range oc.Edges {
			c.Fragments = append(c.Fragments, Fragment{Curve: oe.Curve, Mz: oe.Mz, Intensity: oe.Intensity, Corr: oe.Corr})
			s.Edges = append(s.Edges, Edge{
				Window:       window,
				Precursor:    oc.Index,
				Curve:        oe.Curve,
				Corr:         oe.Corr,
				Intensity:    oe.Intensity,
				Mz:           oe.Mz,
				Rank:         oe.Rank,
				Unfragmented: oc.MSLevel != 1,
			})
		}
		s.Clusters = append(s.Clusters, c)
	}
	return s
}

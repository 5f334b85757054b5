package cluster

import (
	"github.com/524D/mzdecon/internal/peakcurve"
)

// Store owns all curves and clusters of a run. Curves and clusters refer
// to each other by index into the store.
type Store struct {
	Curves   []*peakcurve.Curve
	Clusters []*Cluster
}

// AddCurve stores a curve and sets its index
func (s *Store) AddCurve(c *peakcurve.Curve) int {
	c.Index = len(s.Curves)
	s.Curves = append(s.Curves, c)
	return c.Index
}

// AddCluster stores a cluster and sets its index
func (s *Store) AddCluster(c *Cluster) int {
	c.Index = len(s.Clusters)
	s.Clusters = append(s.Clusters, c)
	return c.Index
}

// Curve returns the curve with index i
func (s *Store) Curve(i int) *peakcurve.Curve {
	return s.Curves[i]
}

// CurvesOf returns the curves of a given MS level and window
func (s *Store) CurvesOf(msLevel, window int) []*peakcurve.Curve {
	var out []*peakcurve.Curve
	for _, c := range s.Curves {
		if c.MSLevel == msLevel && (msLevel == 1 || c.Window == window) {
			out = append(out, c)
		}
	}
	return out
}

// ClustersOf returns the clusters of a given MS level and window
func (s *Store) ClustersOf(msLevel, window int) []*Cluster {
	var out []*Cluster
	for _, c := range s.Clusters {
		if c.MSLevel == msLevel && (msLevel == 1 || c.Window == window) {
			out = append(out, c)
		}
	}
	return out
}

// ReleaseCurves drops the sample buffers of all curves
func (s *Store) ReleaseCurves() {
	for _, c := range s.Curves {
		c.Release()
	}
}

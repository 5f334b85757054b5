package deconv

import (
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/524D/mzdecon/internal/cluster"
	"github.com/524D/mzdecon/internal/scan"
)

// Partition is an output group of pseudo-spectra
type Partition int

const (
	// Q1 holds MS1 precursors with at least 3 isotopes
	Q1 Partition = iota
	// Q2 holds MS1 precursors with less than 3 isotopes
	Q2
	// Q3 holds isotope clusters found in the MS2 data
	Q3
)

// Partitions lists all partitions in output order
var Partitions = []Partition{Q1, Q2, Q3}

func (p Partition) String() string {
	switch p {
	case Q1:
		return "Q1"
	case Q2:
		return "Q2"
	case Q3:
		return "Q3"
	}
	return fmt.Sprintf("Partition(%d)", int(p))
}

// PartitionOf returns the partition of a cluster
func PartitionOf(c *cluster.Cluster) Partition {
	if c.MSLevel != 1 {
		return Q3
	}
	if c.IsotopeCount() >= 3 {
		return Q1
	}
	return Q2
}

// Spectrum is a pseudo-spectrum of one precursor cluster
type Spectrum struct {
	Cluster    int
	Partition  Partition
	Mz         float64 // Monoisotopic m/z
	Charge     int
	RT         float64 // Minutes
	Peaks      []scan.Peak
	Normalized []scan.Peak // Peaks scaled to a base peak of 1
}

// Sink receives pseudo-spectra. Implementations must be safe for
// concurrent use.
type Sink interface {
	WriteSpectrum(s Spectrum) error
}

// Emitter writes the pseudo-spectra of clusters with enough fragments.
// Each cluster is written at most once.
type Emitter struct {
	MinFrag int
	Sinks   []Sink

	mu      sync.Mutex
	claimed *roaring.Bitmap
}

// NewEmitter returns an emitter writing to the given sinks
func NewEmitter(minFrag int, sinks ...Sink) *Emitter {
	return &Emitter{MinFrag: minFrag, Sinks: sinks, claimed: roaring.New()}
}

// claim marks a cluster as emitted, and reports whether it was not before
func (e *Emitter) claim(idx int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.claimed.CheckedAdd(uint32(idx))
}

// Claimed returns the number of emitted clusters
func (e *Emitter) Claimed() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.claimed.GetCardinality()
}

// EmitWindow writes the spectra of the clusters owned by a window. An MS1
// cluster is owned by the lowest window overlapping its isotope m/z range,
// the same rule PrecursorsOf uses. An MS2 cluster is owned by the window it
// was found in. It returns the number of spectra written.
func (e *Emitter) EmitWindow(window int, clusters []*cluster.Cluster, owner func(lo, hi float64) int) (int, error) {
	n := 0
	for _, c := range clusters {
		if c.MSLevel == 1 && owner(c.MzRange()) != window {
			continue
		}
		if c.MSLevel != 1 && c.Window != window {
			continue
		}
		if c.NumFragments() < e.MinFrag {
			continue
		}
		if !e.claim(c.Index) {
			continue
		}
		s := NewSpectrum(c)
		for _, sink := range e.Sinks {
			if err := sink.WriteSpectrum(s); err != nil {
				return n, fmt.Errorf("cluster %d: %w", c.Index, err)
			}
		}
		n++
	}
	return n, nil
}

// NewSpectrum assembles the pseudo-spectrum of a cluster, with peaks
// sorted by m/z
func NewSpectrum(c *cluster.Cluster) Spectrum {
	frags := c.Fragments()
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].Mz < frags[j].Mz })
	s := Spectrum{
		Cluster:   c.Index,
		Partition: PartitionOf(c),
		Mz:        c.Mz[0],
		Charge:    c.Charge,
		RT:        c.ApexRT,
		Peaks:     make([]scan.Peak, len(frags)),
	}
	for i, f := range frags {
		s.Peaks[i] = scan.Peak{Mz: f.Mz, Intensity: f.Intensity}
	}
	norm := c.NormalizedFragments()
	s.Normalized = make([]scan.Peak, len(norm))
	for i, f := range norm {
		s.Normalized[i] = scan.Peak{Mz: f.Mz, Intensity: f.Intensity}
	}
	return s
}

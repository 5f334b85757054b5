// Package snapshot saves the clusters and assigned edges of a run as zstd
// compressed JSON, and reads them back.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/524D/mzdecon/internal/cluster"
	"github.com/524D/mzdecon/internal/deconv"
)

// Version is the version written by Write
const Version = 2

// ErrUnknownVersion means the snapshot was written by a newer or unknown
// program version
var ErrUnknownVersion = errors.New("unknown snapshot version")

// Snapshot is the saved result of a run
type Snapshot struct {
	Version  int
	Program  string `json:",omitempty"`
	Input    string `json:",omitempty"`
	Clusters []Cluster
	Edges    []Edge
}

// Cluster is the saved form of an isotope cluster
type Cluster struct {
	Index      int
	Charge     int
	MSLevel    int
	Window     int
	Mz         []float64
	Height     []float64
	HeightRT   []float64
	Area       []float64
	Corrs      []float64
	ApexRT     float64
	StartRT    float64
	EndRT      float64
	ChiSquare  float64
	PValue     float64
	Identified bool       `json:",omitempty"`
	Fragments  []Fragment `json:",omitempty"`
}

// Fragment is the saved form of an assigned fragment
type Fragment struct {
	Curve     int
	Mz        float64
	Intensity float64
	Corr      float64
}

// Edge is the saved form of a kept precursor-fragment edge
type Edge struct {
	Window       int
	Precursor    int
	Curve        int
	Corr         float64
	Intensity    float64
	Mz           float64
	PPM          float64
	ApexDelta    float64
	Overlap      float64
	Rank         int
	MS1Rank      int
	Unfragmented bool `json:",omitempty"`
}

// FromRun builds a snapshot from the clusters of a run and the
// deconvolution results of its windows
func FromRun(clusters []*cluster.Cluster, results []deconv.Result) Snapshot {
	s := Snapshot{Version: Version, Clusters: make([]Cluster, 0, len(clusters))}
	for _, c := range clusters {
		rec := Cluster{
			Index:      c.Index,
			Charge:     c.Charge,
			MSLevel:    c.MSLevel,
			Window:     c.Window,
			Mz:         c.Mz,
			Height:     c.Height,
			HeightRT:   c.HeightRT,
			Area:       c.Area,
			Corrs:      c.Corrs,
			ApexRT:     c.ApexRT,
			StartRT:    c.StartRT,
			EndRT:      c.EndRT,
			ChiSquare:  c.ChiSquare,
			PValue:     c.PValue,
			Identified: c.Identified,
		}
		for _, f := range c.Fragments() {
			rec.Fragments = append(rec.Fragments, Fragment(f))
		}
		s.Clusters = append(s.Clusters, rec)
	}
	for _, r := range results {
		s.Edges = append(s.Edges, edges(r.Window, r.Filtered, false)...)
		s.Edges = append(s.Edges, edges(r.Window, r.UnfragFiltered, true)...)
	}
	return s
}

func edges(window int, m map[int][]deconv.Edge, unfrag bool) []Edge {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	var out []Edge
	for _, k := range keys {
		for _, e := range m[k] {
			out = append(out, Edge{
				Window:       window,
				Precursor:    e.Precursor,
				Curve:        e.Curve,
				Corr:         e.Corr,
				Intensity:    e.Intensity,
				Mz:           e.Mz,
				PPM:          e.PPM,
				ApexDelta:    e.ApexDelta,
				Overlap:      e.Overlap,
				Rank:         e.Rank,
				MS1Rank:      e.MS1Rank,
				Unfragmented: unfrag,
			})
		}
	}
	return out
}

// Write writes s compressed to w, with the current version
func Write(w io.Writer, s Snapshot) error {
	s.Version = Version
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating compressor: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(s); err != nil {
		enc.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return enc.Close()
}

// Read reads a snapshot. Older versions are converted to the current one.
func Read(r io.Reader) (Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("creating decompressor: %w", err)
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decompressing snapshot: %w", err)
	}

	var probe struct{ Version int }
	if err := json.Unmarshal(data, &probe); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	switch probe.Version {
	case Version:
		var s Snapshot
		err := json.NewDecoder(bytes.NewReader(data)).Decode(&s)
		return s, err
	case 1:
		var old snapshotV1
		if err := json.Unmarshal(data, &old); err != nil {
			return Snapshot{}, fmt.Errorf("decoding version 1 snapshot: %w", err)
		}
		log.Printf("Converting version 1 snapshot (%d clusters)", len(old.Clusters))
		return old.migrate(), nil
	}
	return Snapshot{}, fmt.Errorf("version %d: %w", probe.Version, ErrUnknownVersion)
}

// WriteFile writes a snapshot file
func WriteFile(fileName string, s Snapshot) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	if err := Write(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads a snapshot file
func ReadFile(fileName string) (Snapshot, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return Snapshot{}, err
	}
	defer f.Close()
	return Read(f)
}

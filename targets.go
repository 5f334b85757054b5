package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/524D/mzdecon/internal/cluster"
	"github.com/524D/mzdecon/internal/isotope"
	"github.com/524D/mzdecon/internal/mzidentml"
	"github.com/524D/mzdecon/internal/spatial"
)

// A target is a precursor that is known to be present, e.g. from a search
// of an earlier run
type target struct {
	mz     float64
	charge int
	rt     float64 // Minutes
}

// mh returns the singly protonated mass of the target
func (t target) mh() float64 {
	return (t.mz-isotope.Proton)*float64(t.charge) + isotope.Proton
}

// readTargets reads an mzIdentML file (extension .mzid) or a text file
// with lines "mz charge rt"
func readTargets(fileName string) ([]target, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var targets []target
	if strings.EqualFold(filepath.Ext(fileName), ".mzid") {
		targets, err = identTargets(f)
	} else {
		targets, err = parseTargets(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return targets, nil
}

// parseTargets reads lines "mz charge rt". Empty lines and lines starting
// with # are skipped.
func parseTargets(r io.Reader) ([]target, error) {
	var targets []target
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		fields := strings.Fields(s)
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: want 'mz charge rt', got %q", line, s)
		}
		var t target
		var err error
		if t.mz, err = strconv.ParseFloat(fields[0], 64); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if t.charge, err = strconv.Atoi(fields[1]); err != nil || t.charge < 1 {
			return nil, fmt.Errorf("line %d: invalid charge %q", line, fields[1])
		}
		if t.rt, err = strconv.ParseFloat(fields[2], 64); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		targets = append(targets, t)
	}
	return targets, sc.Err()
}

// identTargets uses the accepted identifications of an mzIdentML file
func identTargets(r io.Reader) ([]target, error) {
	mzIdentML, err := mzidentml.Read(r)
	if err != nil {
		return nil, err
	}
	idents, err := mzIdentML.Precursors()
	if err != nil {
		return nil, err
	}
	targets := make([]target, len(idents))
	for i, id := range idents {
		targets[i] = target{mz: id.Mz, charge: id.Charge, rt: id.RetentionTime}
	}
	return targets, nil
}

// markIdentified flags the clusters that match a target and returns the
// number of targets with a match
func markIdentified(clusters []*cluster.Cluster, targets []target, rtTol, ppm float64) int {
	index := spatial.NewClusterIndex(clusters)
	n := 0
	for _, t := range targets {
		hits := index.Query(t.rt, rtTol, t.mh(), ppm, t.charge)
		for _, c := range hits {
			c.Identified = true
		}
		if len(hits) > 0 {
			n++
		}
	}
	return n
}

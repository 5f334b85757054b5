// Package mgf writes pseudo-spectra in Mascot Generic Format, one file per
// output partition.
package mgf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/524D/mzdecon/internal/deconv"
)

// Writer writes the spectra of one partition. Spectrum IDs increase by one
// per spectrum, in file order. Safe for concurrent use.
type Writer struct {
	Name string

	mu      sync.Mutex
	w       *bufio.Writer
	mapping *bufio.Writer
	lastID  atomic.Int64
}

// NewWriter returns a writer that writes spectra to w and one
// "<spectrumID>_<clusterIndex>" line per spectrum to mapping
func NewWriter(name string, w io.Writer, mapping io.Writer) *Writer {
	return &Writer{Name: name, w: bufio.NewWriter(w), mapping: bufio.NewWriter(mapping)}
}

// Write writes a spectrum and returns its ID
func (w *Writer) Write(s deconv.Spectrum) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := int(w.lastID.Add(1))

	fmt.Fprintf(w.w, "BEGIN IONS\n")
	fmt.Fprintf(w.w, "PEPMASS=%.5f\n", s.Mz)
	fmt.Fprintf(w.w, "CHARGE=%d+\n", s.Charge)
	fmt.Fprintf(w.w, "RTINSECONDS=%.2f\n", s.RT*60)
	fmt.Fprintf(w.w, "TITLE=%s.%d.%d.%d\n", w.Name, id, id, s.Charge)
	for _, p := range s.Peaks {
		fmt.Fprintf(w.w, "%.5f %.2f\n", p.Mz, p.Intensity)
	}
	if _, err := fmt.Fprintf(w.w, "END IONS\n\n"); err != nil {
		return id, err
	}
	_, err := fmt.Fprintf(w.mapping, "%d_%d\n", id, s.Cluster)
	return id, err
}

// Count returns the number of spectra written
func (w *Writer) Count() int {
	return int(w.lastID.Load())
}

// Flush writes buffered data to the underlying writers
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Join(w.w.Flush(), w.mapping.Flush())
}

// Set is a group of partition files: <base>_<partition>.mgf and
// <base>_<partition>.mapping
type Set struct {
	writers map[deconv.Partition]*Writer
	files   []*os.File
}

// Create creates the files of all partitions in dir
func Create(dir, base string) (*Set, error) {
	s := &Set{writers: make(map[deconv.Partition]*Writer)}
	for _, p := range deconv.Partitions {
		name := fmt.Sprintf("%s_%s", base, p)
		spec, err := os.Create(filepath.Join(dir, name+".mgf"))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.files = append(s.files, spec)
		mapping, err := os.Create(filepath.Join(dir, name+".mapping"))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.files = append(s.files, mapping)
		s.writers[p] = NewWriter(name, spec, mapping)
	}
	return s, nil
}

// WriteSpectrum writes a spectrum to the file of its partition
func (s *Set) WriteSpectrum(sp deconv.Spectrum) error {
	w, ok := s.writers[sp.Partition]
	if !ok {
		return fmt.Errorf("no output for partition %v", sp.Partition)
	}
	_, err := w.Write(sp)
	return err
}

// Counts returns the number of spectra written per partition
func (s *Set) Counts() map[deconv.Partition]int {
	m := make(map[deconv.Partition]int, len(s.writers))
	for p, w := range s.writers {
		m[p] = w.Count()
	}
	return m
}

// Close flushes and closes all files
func (s *Set) Close() error {
	var errs []error
	for _, w := range s.writers {
		errs = append(errs, w.Flush())
	}
	for _, f := range s.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

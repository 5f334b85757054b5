// Package specdb stores pseudo-spectra in an SQLite database. Peak lists
// are kept as lz4 compressed blobs.
package specdb

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pierrec/lz4/v4"

	"github.com/524D/mzdecon/internal/deconv"
	"github.com/524D/mzdecon/internal/scan"
)

// blob layout: uint32 number of peaks, uint32 compressed size (0 if stored
// uncompressed), then the peaks as little endian float64 m/z, intensity pairs
const blobHeaderSize = 8

// ErrBadBlob means a stored peak list can't be decoded
var ErrBadBlob = errors.New("bad peak blob")

// Writer writes spectra to a database file. Safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	db   *sql.DB
	stmt *sql.Stmt
	n    int
}

// Create opens or creates the database at path. Spectra of an earlier run
// in the same file are removed.
func Create(path string) (*Writer, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening spectrum database: %w", err)
	}
	w := &Writer{db: db}
	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	w.stmt, err = db.Prepare(`INSERT INTO Spectrum
		(ClusterIndex, Partition, PrecursorMz, Charge, RetentionTime, NumPeaks, blobPeaks, blobNormalized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	return w, nil
}

func (w *Writer) createTables() error {
	schema := `
	DROP TABLE IF EXISTS Spectrum;
	CREATE TABLE Spectrum (
		SpectrumId INTEGER PRIMARY KEY,
		ClusterIndex INTEGER NOT NULL UNIQUE,
		Partition TEXT NOT NULL,
		PrecursorMz DOUBLE,
		Charge INTEGER,
		RetentionTime DOUBLE,
		NumPeaks INTEGER,
		blobPeaks BLOB,
		blobNormalized BLOB
	);
	CREATE INDEX SpectrumPartition ON Spectrum(Partition);
	`
	if _, err := w.db.Exec(schema); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

// WriteSpectrum inserts a spectrum
func (w *Writer) WriteSpectrum(s deconv.Spectrum) error {
	peaks, err := encodePeaks(s.Peaks)
	if err != nil {
		return err
	}
	norm, err := encodePeaks(s.Normalized)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.stmt.Exec(s.Cluster, s.Partition.String(), s.Mz, s.Charge, s.RT, len(s.Peaks), peaks, norm)
	if err != nil {
		return fmt.Errorf("inserting spectrum of cluster %d: %w", s.Cluster, err)
	}
	w.n++
	return nil
}

// Count returns the number of spectra written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Close closes the database
func (w *Writer) Close() error {
	return errors.Join(w.stmt.Close(), w.db.Close())
}

// Spectra reads all spectra of a database, ordered by cluster index
func Spectra(path string) ([]deconv.Spectrum, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening spectrum database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT ClusterIndex, Partition, PrecursorMz, Charge, RetentionTime, blobPeaks, blobNormalized
		FROM Spectrum ORDER BY ClusterIndex`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specs []deconv.Spectrum
	for rows.Next() {
		var s deconv.Spectrum
		var part string
		var peaks, norm []byte
		if err := rows.Scan(&s.Cluster, &part, &s.Mz, &s.Charge, &s.RT, &peaks, &norm); err != nil {
			return nil, err
		}
		for _, p := range deconv.Partitions {
			if p.String() == part {
				s.Partition = p
			}
		}
		if s.Peaks, err = decodePeaks(peaks); err != nil {
			return nil, fmt.Errorf("cluster %d: %w", s.Cluster, err)
		}
		if s.Normalized, err = decodePeaks(norm); err != nil {
			return nil, fmt.Errorf("cluster %d: %w", s.Cluster, err)
		}
		specs = append(specs, s)
	}
	return specs, rows.Err()
}

func encodePeaks(peaks []scan.Peak) ([]byte, error) {
	raw := make([]byte, 16*len(peaks))
	for i, p := range peaks {
		binary.LittleEndian.PutUint64(raw[16*i:], math.Float64bits(p.Mz))
		binary.LittleEndian.PutUint64(raw[16*i+8:], math.Float64bits(p.Intensity))
	}
	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("compressing peaks: %w", err)
	}
	var blob []byte
	if n == 0 || n >= len(raw) {
		// Incompressible
		blob = make([]byte, blobHeaderSize+len(raw))
		copy(blob[blobHeaderSize:], raw)
		n = 0
	} else {
		blob = make([]byte, blobHeaderSize+n)
		copy(blob[blobHeaderSize:], compressed[:n])
	}
	binary.LittleEndian.PutUint32(blob[0:], uint32(len(peaks)))
	binary.LittleEndian.PutUint32(blob[4:], uint32(n))
	return blob, nil
}

func decodePeaks(blob []byte) ([]scan.Peak, error) {
	if len(blob) < blobHeaderSize {
		return nil, fmt.Errorf("%d bytes: %w", len(blob), ErrBadBlob)
	}
	count := int(binary.LittleEndian.Uint32(blob[0:]))
	size := int(binary.LittleEndian.Uint32(blob[4:]))
	raw := make([]byte, 16*count)
	if size == 0 {
		if len(blob)-blobHeaderSize != len(raw) {
			return nil, fmt.Errorf("size mismatch: %w", ErrBadBlob)
		}
		copy(raw, blob[blobHeaderSize:])
	} else {
		if len(blob)-blobHeaderSize < size {
			return nil, fmt.Errorf("truncated: %w", ErrBadBlob)
		}
		n, err := lz4.UncompressBlock(blob[blobHeaderSize:blobHeaderSize+size], raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadBlob, err)
		}
		if n != len(raw) {
			return nil, fmt.Errorf("decompressed size mismatch: %w", ErrBadBlob)
		}
	}
	if count == 0 {
		return nil, nil
	}
	peaks := make([]scan.Peak, count)
	for i := range peaks {
		peaks[i].Mz = math.Float64frombits(binary.LittleEndian.Uint64(raw[16*i:]))
		peaks[i].Intensity = math.Float64frombits(binary.LittleEndian.Uint64(raw[16*i+8:]))
	}
	return peaks, nil
}

package specdb

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzdecon/internal/deconv"
	"github.com/524D/mzdecon/internal/scan"
)

func TestPeakBlob(t *testing.T) {
	tests := []struct {
		name  string
		peaks []scan.Peak
	}{
		{"empty", nil},
		{"single", []scan.Peak{{Mz: 175.119, Intensity: 3.5e4}}},
		{"repetitive", func() []scan.Peak {
			p := make([]scan.Peak, 200)
			for i := range p {
				p[i] = scan.Peak{Mz: 100, Intensity: 1}
			}
			return p
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := encodePeaks(tt.peaks)
			require.NoError(t, err)
			got, err := decodePeaks(blob)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.peaks, got); diff != "" {
				t.Errorf("decodePeaks (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRepetitiveBlobIsCompressed(t *testing.T) {
	p := make([]scan.Peak, 200)
	for i := range p {
		p[i] = scan.Peak{Mz: 100, Intensity: 1}
	}
	blob, err := encodePeaks(p)
	require.NoError(t, err)
	assert.Less(t, len(blob), 16*len(p))
}

func TestBadBlob(t *testing.T) {
	_, err := decodePeaks([]byte{1, 2})
	assert.ErrorIs(t, err, ErrBadBlob)
	blob, err := encodePeaks([]scan.Peak{{Mz: 1, Intensity: 2}})
	require.NoError(t, err)
	_, err = decodePeaks(blob[:len(blob)-1])
	assert.ErrorIs(t, err, ErrBadBlob)
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spectra.db")
	w, err := Create(path)
	require.NoError(t, err)

	want := []deconv.Spectrum{
		{
			Cluster: 3, Partition: deconv.Q1, Mz: 500, Charge: 2, RT: 10,
			Peaks:      []scan.Peak{{Mz: 200, Intensity: 500}, {Mz: 300, Intensity: 1000}},
			Normalized: []scan.Peak{{Mz: 200, Intensity: 0.5}, {Mz: 300, Intensity: 1}},
		},
		{
			Cluster: 8, Partition: deconv.Q3, Mz: 612.3, Charge: 3, RT: 22.5,
			Peaks:      []scan.Peak{{Mz: 250, Intensity: 40}},
			Normalized: []scan.Peak{{Mz: 250, Intensity: 1}},
		},
	}
	var wg sync.WaitGroup
	for _, s := range want {
		wg.Add(1)
		go func(s deconv.Spectrum) {
			defer wg.Done()
			assert.NoError(t, w.WriteSpectrum(s))
		}(s)
	}
	wg.Wait()
	assert.Equal(t, 2, w.Count())
	assert.Error(t, w.WriteSpectrum(want[0]), "cluster index is unique")
	require.NoError(t, w.Close())

	got, err := Spectra(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Spectra (-want +got):\n%s", diff)
	}
}

func TestCreateReplacesEarlierRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spectra.db")
	first := deconv.Spectrum{Cluster: 1, Partition: deconv.Q1, Mz: 500, Charge: 2, RT: 10,
		Peaks: []scan.Peak{{Mz: 200, Intensity: 1}}, Normalized: []scan.Peak{{Mz: 200, Intensity: 1}}}
	second := deconv.Spectrum{Cluster: 1, Partition: deconv.Q2, Mz: 600, Charge: 3, RT: 12,
		Peaks: []scan.Peak{{Mz: 300, Intensity: 2}}, Normalized: []scan.Peak{{Mz: 300, Intensity: 1}}}
	for _, s := range []deconv.Spectrum{first, second} {
		w, err := Create(path)
		require.NoError(t, err)
		require.NoError(t, w.WriteSpectrum(s))
		require.NoError(t, w.Close())
	}
	got, err := Spectra(path)
	require.NoError(t, err)
	if diff := cmp.Diff([]deconv.Spectrum{second}, got); diff != "" {
		t.Errorf("Spectra (-want +got):\n%s", diff)
	}
}

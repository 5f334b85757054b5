package param

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzdecon/internal/smooth"
)

const testParamFile = `# mzDecon parameters
MS1PPM = 15
MS2PPM = 25
CorrThreshold = 0.35
StartCharge = 1
EndCharge = 5
SmoothMethod = linear
MinFrag = 3
`

func TestLoad(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "mzdecon.params")
	require.NoError(t, os.WriteFile(fn, []byte(testParamFile), 0o644))

	p, err := Load(fn)
	require.NoError(t, err)
	want := Default()
	want.MS1PPM = 15
	want.MS2PPM = 25
	want.CorrThreshold = 0.35
	want.StartCharge = 1
	want.EndCharge = 5
	want.SmoothMethod = "linear"
	want.MinFrag = 3
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("Load (-want +got):\n%s", diff)
	}
	assert.Equal(t, smooth.LinearMethod, p.Segmenter().Method)
	assert.Equal(t, 25.0, p.Trace(2).PPM)
	assert.Equal(t, 15.0, p.Group(1).PPM)
	assert.Equal(t, 0.35, p.Deconv().Filter.CorrThreshold)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.params"))
	assert.Error(t, err)
}

func TestFromViperOverride(t *testing.T) {
	v := viper.New()
	v.Set("MinFrag", 7)
	v.Set("threads", 2)
	p, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 7, p.MinFrag)
	assert.Equal(t, 2, p.Threads)
	assert.Equal(t, Default().MS1PPM, p.MS1PPM)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
	bad := []func(*Params){
		func(p *Params) { p.NoPeakPerMin = 0 },
		func(p *Params) { p.StartCharge, p.EndCharge = 4, 2 },
		func(p *Params) { p.MinNoPeakCluster = 5 },
		func(p *Params) { p.MS2PPM = -1 },
		func(p *Params) { p.FragmentRank = 0 },
	}
	for i, mod := range bad {
		p := Default()
		mod(&p)
		err := p.Validate()
		assert.True(t, errors.Is(err, ErrInvalid), "case %d: %v", i, err)
	}
	p := Default()
	p.SmoothMethod = "cubic"
	assert.ErrorIs(t, p.Validate(), smooth.ErrUnknownMethod)
}

func TestPointsPerMinute(t *testing.T) {
	p := Default()
	p.SmoothFactor = 2
	assert.Equal(t, 300.0, p.PointsPerMinute())
	assert.Equal(t, 300.0, p.Segmenter().Detector.PointsPerMinute)
}

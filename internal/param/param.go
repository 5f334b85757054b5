// Package param holds the processing parameters, read from a
// "Key = value" parameter file.
package param

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/524D/mzdecon/internal/deconv"
	"github.com/524D/mzdecon/internal/detect"
	"github.com/524D/mzdecon/internal/peakcurve"
	"github.com/524D/mzdecon/internal/smooth"
	"github.com/524D/mzdecon/internal/wavelet"
)

// ErrInvalid means a parameter has a value that can't be used
var ErrInvalid = errors.New("invalid parameter")

// Params are all processing parameters. RT values are in minutes.
type Params struct {
	// Peak detection
	MaxCurveRTRange float64 `mapstructure:"MaxCurveRTRange"`
	MinRTRange      float64 `mapstructure:"MinRTRange"`
	SymThreshold    float64 `mapstructure:"SymThreshold"`
	NoPeakPerMin    float64 `mapstructure:"NoPeakPerMin"`
	SmoothFactor    float64 `mapstructure:"SmoothFactor"`
	SmoothMethod    string  `mapstructure:"SmoothMethod"`
	MinPeakCount    int     `mapstructure:"MinPeakCount"`
	MinIntensity    float64 `mapstructure:"MinIntensity"`
	MaxMissedScan   int     `mapstructure:"MaxMissedScan"`

	// Isotope clusters
	MS1PPM           float64 `mapstructure:"MS1PPM"`
	MS2PPM           float64 `mapstructure:"MS2PPM"`
	StartCharge      int     `mapstructure:"StartCharge"`
	EndCharge        int     `mapstructure:"EndCharge"`
	MaxNoPeakCluster int     `mapstructure:"MaxNoPeakCluster"`
	MinNoPeakCluster int     `mapstructure:"MinNoPeakCluster"`
	IsoCorrThreshold float64 `mapstructure:"IsoCorrThreshold"`

	// Deconvolution
	CorrThreshold   float64 `mapstructure:"CorrThreshold"`
	FragmentRank    int     `mapstructure:"FragmentRank"`
	PrecursorRank   int     `mapstructure:"PrecursorRank"`
	ApexDelta       float64 `mapstructure:"ApexDelta"`
	RTOverlap       float64 `mapstructure:"RTOverlap"`
	MinFrag         int     `mapstructure:"MinFrag"`
	MinMS2Intensity float64 `mapstructure:"MinMS2Intensity"`

	Threads int `mapstructure:"Threads"`
}

// Default returns the default parameters
func Default() Params {
	return Params{
		MaxCurveRTRange: 2,
		MinRTRange:      0.1,
		SymThreshold:    0.3,
		NoPeakPerMin:    150,
		SmoothFactor:    1,
		SmoothMethod:    "bspline",
		MinPeakCount:    4,
		MinIntensity:    0,
		MaxMissedScan:   1,

		MS1PPM:           30,
		MS2PPM:           40,
		StartCharge:      2,
		EndCharge:        4,
		MaxNoPeakCluster: 4,
		MinNoPeakCluster: 2,
		IsoCorrThreshold: 0.5,

		CorrThreshold:   0.2,
		FragmentRank:    300,
		PrecursorRank:   25,
		ApexDelta:       0.3,
		RTOverlap:       0.3,
		MinFrag:         10,
		MinMS2Intensity: 0,

		Threads: 0,
	}
}

// Load reads a parameter file on top of the defaults
func Load(fileName string) (Params, error) {
	v := viper.New()
	v.SetConfigFile(fileName)
	v.SetConfigType("properties")
	if err := v.ReadInConfig(); err != nil {
		return Params{}, fmt.Errorf("reading parameter file %s: %w", fileName, err)
	}
	return FromViper(v)
}

// FromViper decodes the settings of v on top of the defaults
func FromViper(v *viper.Viper) (Params, error) {
	p := Default()
	if err := v.Unmarshal(&p); err != nil {
		return Params{}, fmt.Errorf("decoding parameters: %w", err)
	}
	return p, p.Validate()
}

// Validate checks parameter ranges
func (p Params) Validate() error {
	switch {
	case p.NoPeakPerMin <= 0:
		return fmt.Errorf("NoPeakPerMin %g: %w", p.NoPeakPerMin, ErrInvalid)
	case p.SmoothFactor <= 0:
		return fmt.Errorf("SmoothFactor %g: %w", p.SmoothFactor, ErrInvalid)
	case p.MaxCurveRTRange <= 0:
		return fmt.Errorf("MaxCurveRTRange %g: %w", p.MaxCurveRTRange, ErrInvalid)
	case p.MS1PPM <= 0 || p.MS2PPM <= 0:
		return fmt.Errorf("MS1PPM %g, MS2PPM %g: %w", p.MS1PPM, p.MS2PPM, ErrInvalid)
	case p.StartCharge < 1 || p.EndCharge < p.StartCharge:
		return fmt.Errorf("charge range %d:%d: %w", p.StartCharge, p.EndCharge, ErrInvalid)
	case p.MinNoPeakCluster < 1 || p.MaxNoPeakCluster < p.MinNoPeakCluster:
		return fmt.Errorf("isotope count range %d:%d: %w", p.MinNoPeakCluster, p.MaxNoPeakCluster, ErrInvalid)
	case p.FragmentRank < 1 || p.PrecursorRank < 1:
		return fmt.Errorf("FragmentRank %d, PrecursorRank %d: %w", p.FragmentRank, p.PrecursorRank, ErrInvalid)
	case p.MinPeakCount < 1:
		return fmt.Errorf("MinPeakCount %d: %w", p.MinPeakCount, ErrInvalid)
	}
	if _, err := smooth.ParseMethod(p.SmoothMethod); err != nil {
		return err
	}
	return nil
}

// PointsPerMinute returns the density of smoothed profiles
func (p Params) PointsPerMinute() float64 {
	return p.NoPeakPerMin * p.SmoothFactor
}

// Segmenter returns the curve segmentation settings
func (p Params) Segmenter() peakcurve.Segmenter {
	m, _ := smooth.ParseMethod(p.SmoothMethod)
	return peakcurve.Segmenter{
		Detector: wavelet.Detector{
			SymThreshold:    p.SymThreshold,
			MaxCurveRTRange: p.MaxCurveRTRange,
			PointsPerMinute: p.PointsPerMinute(),
		},
		MinRTRange:      p.MinRTRange,
		SymThreshold:    p.SymThreshold,
		MaxCurveRTRange: p.MaxCurveRTRange,
		Method:          m,
		PointsPerMinute: p.PointsPerMinute(),
	}
}

// Trace returns the trace extraction settings for an MS level
func (p Params) Trace(msLevel int) detect.TraceParams {
	tp := detect.TraceParams{
		PPM:           p.MS1PPM,
		MaxMissedScan: p.MaxMissedScan,
		MinPeakCount:  p.MinPeakCount,
		MinIntensity:  p.MinIntensity,
	}
	if msLevel == 2 {
		tp.PPM = p.MS2PPM
	}
	return tp
}

// Group returns the isotope grouping settings for an MS level
func (p Params) Group(msLevel int) detect.GroupParams {
	gp := detect.GroupParams{
		StartCharge:      p.StartCharge,
		EndCharge:        p.EndCharge,
		PPM:              p.MS1PPM,
		IsoCorrThreshold: p.IsoCorrThreshold,
		MinNoPeakCluster: p.MinNoPeakCluster,
		MaxNoPeakCluster: p.MaxNoPeakCluster,
		PointsPerMinute:  p.PointsPerMinute(),
	}
	if msLevel == 2 {
		gp.PPM = p.MS2PPM
	}
	return gp
}

// Deconv returns the deconvolution settings
func (p Params) Deconv() deconv.Params {
	return deconv.Params{
		Filter: deconv.FilterParams{
			CorrThreshold: p.CorrThreshold,
			FragmentRank:  p.FragmentRank,
			PrecursorRank: p.PrecursorRank,
			ApexDelta:     p.ApexDelta,
			RTOverlap:     p.RTOverlap,
		},
		PointsPerMinute: p.PointsPerMinute(),
		MinMS2Intensity: p.MinMS2Intensity,
	}
}

// Package isotope scores observed isotope patterns against the averagine
// model.
package isotope

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// Proton is the mass of a proton
	Proton = 1.007276
	// C13Diff is the mass difference between 13C and 12C
	C13Diff = 1.00335

	massStep    = 100.0   // Envelope table resolution in Da
	maxMass     = 10000.0 // Largest tabulated mass
	numIsotopes = 10      // Isotopes per tabulated envelope
	// Expected number of 13C (and other heavy isotopes) per Dalton of an
	// averagine peptide
	lambdaPerDa = 1 / 1800.0
	// Observed and expected patterns are compared in percent of their total
	chiScale = 100.0
)

// Envelope holds relative isotope intensities, summing to one
type Envelope []float64

var table = buildTable()

// buildTable tabulates Poisson envelopes at massStep intervals
func buildTable() []Envelope {
	n := int(maxMass/massStep) + 1
	t := make([]Envelope, n)
	for i := range t {
		t[i] = poisson(float64(i)*massStep*lambdaPerDa, numIsotopes)
	}
	return t
}

func poisson(lambda float64, n int) Envelope {
	e := make(Envelope, n)
	p := math.Exp(-lambda)
	for k := 0; k < n; k++ {
		if k > 0 {
			p *= lambda / float64(k)
		}
		e[k] = p
	}
	floats.Scale(1/floats.Sum(e), e)
	return e
}

// EnvelopeAt returns the tabulated envelope closest to a neutral mass
func EnvelopeAt(mass float64) Envelope {
	i := int(math.Round(mass / massStep))
	if i < 0 {
		i = 0
	}
	if i >= len(table) {
		i = len(table) - 1
	}
	return table[i]
}

// ChiSquare compares observed isotope intensities (monoisotopic first) with
// the averagine envelope of the given neutral mass. It returns the Pearson
// chi-square statistic over the observed isotopes, both patterns scaled to
// percent, and its p-value. With fewer than two observed isotopes, or no
// observed intensity, the statistic is zero and the p-value one.
func ChiSquare(mass float64, observed []float64) (float64, float64) {
	n := min(len(observed), numIsotopes)
	if n < 2 {
		return 0, 1
	}
	obsTotal := floats.Sum(observed[:n])
	if obsTotal <= 0 {
		return 0, 1
	}
	env := EnvelopeAt(mass)
	expTotal := floats.Sum(env[:n])

	chi2 := 0.0
	for k := 0; k < n; k++ {
		o := observed[k] / obsTotal * chiScale
		e := env[k] / expTotal * chiScale
		if e <= 0 {
			continue
		}
		chi2 += (o - e) * (o - e) / e
	}
	dist := distuv.ChiSquared{K: float64(n - 1)}
	return chi2, dist.Survival(chi2)
}

package isotope

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
)

func TestEnvelopeShape(t *testing.T) {
	small := EnvelopeAt(800)
	large := EnvelopeAt(4000)
	assert.InDelta(t, 1.0, floats.Sum(small), 1e-12)
	assert.InDelta(t, 1.0, floats.Sum(large), 1e-12)
	// Small peptides have the monoisotopic peak highest
	assert.Equal(t, 0, floats.MaxIdx(small))
	// Large ones do not
	assert.Greater(t, floats.MaxIdx(large), 0)

	// Out of range masses are clamped to the table
	assert.Equal(t, EnvelopeAt(0), EnvelopeAt(-50))
	assert.Equal(t, EnvelopeAt(maxMass), EnvelopeAt(1e6))
}

func TestChiSquare(t *testing.T) {
	mass := 1500.0
	env := EnvelopeAt(mass)
	perfect := []float64{env[0] * 1e6, env[1] * 1e6, env[2] * 1e6}
	chi2, p := ChiSquare(mass, perfect)
	assert.InDelta(t, 0, chi2, 1e-9)
	assert.InDelta(t, 1, p, 1e-9)

	// Reversed pattern fits worse
	reversed := []float64{perfect[2], perfect[1], perfect[0]}
	chi2r, pr := ChiSquare(mass, reversed)
	assert.Greater(t, chi2r, chi2)
	assert.Less(t, pr, p)
	assert.False(t, math.IsNaN(pr))

	chi2, p = ChiSquare(mass, []float64{100})
	assert.Equal(t, 0.0, chi2)
	assert.Equal(t, 1.0, p)
	chi2, p = ChiSquare(mass, []float64{0, 0})
	assert.Equal(t, 0.0, chi2)
	assert.Equal(t, 1.0, p)
}

// Package mzidentml reads peptide identifications from mzIdentML files, to
// be used as known precursors of a run.
package mzidentml

import (
	"encoding/xml"
	"errors"
)

// Types for parsing mzIdentML

// MzIdentML holds only the part of mzIdentML files
// in which we are interested
type MzIdentML struct {
	seqID2PepIdx map[string]int
	identList    []identRef
	content      mzIdentMLContent
}

type identRef struct {
	resultIdx int // Index into SpectrumIdentificationResult
	itemIdx   int // Index into its SpectrumIdentificationItem
}

// Identification is one peptide-spectrum match
type Identification struct {
	PepSeq        string
	Charge        int
	Mz            float64 // Experimental precursor m/z
	CalcMz        float64 // Calculated precursor m/z, 0 if absent
	Rank          int
	Pass          bool // Passed the threshold of the search engine
	SpecID        string
	RetentionTime float64 // Minutes, -1 if absent
}

type mzIdentMLContent struct {
	XMLName                      xml.Name                       `xml:"MzIdentML"`
	Peptide                      []peptide                      `xml:"SequenceCollection>Peptide"`
	SpectrumIdentificationResult []spectrumIdentificationResult `xml:"DataCollection>AnalysisData>SpectrumIdentificationList>SpectrumIdentificationResult"`
}

type peptide struct {
	ID              string `xml:"id,attr"`
	PeptideSequence string
}

type spectrumIdentificationResult struct {
	SpectrumID                 string `xml:"spectrumID,attr"`
	SpectrumIdentificationItem []spectrumIdentificationItem
	CvPar                      []cvParam `xml:"cvParam"`
}

type spectrumIdentificationItem struct {
	ChargeState              int     `xml:"chargeState,attr"`
	ExperimentalMassToCharge float64 `xml:"experimentalMassToCharge,attr"`
	CalculatedMassToCharge   float64 `xml:"calculatedMassToCharge,attr"`
	Rank                     int     `xml:"rank,attr"`
	PassThreshold            bool    `xml:"passThreshold,attr"`
	PeptideRef               string  `xml:"peptide_ref,attr"`
}

type cvParam struct {
	Accession     string `xml:"accession,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

var (
	ErrInvalidIdentIndex = errors.New("mzIdentML: invalid identification index")
)

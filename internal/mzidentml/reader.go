package mzidentml

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"

	"golang.org/x/net/html/charset"
)

// Read reads mzIdentML content from io.reader
func Read(reader io.Reader) (MzIdentML, error) {
	var mzIdentML MzIdentML
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	err := d.Decode(&mzIdentML.content)
	if err != nil {
		return mzIdentML, err
	}
	mzIdentML.buildPepID2Sequence()
	mzIdentML.buildIdentList()
	return mzIdentML, err
}

func (m *MzIdentML) buildPepID2Sequence() {
	m.seqID2PepIdx = make(map[string]int, len(m.content.Peptide))
	for i, p := range m.content.Peptide {
		m.seqID2PepIdx[p.ID] = i
	}
}

func (m *MzIdentML) buildIdentList() {
	for i, res := range m.content.SpectrumIdentificationResult {
		for j := range res.SpectrumIdentificationItem {
			m.identList = append(m.identList, identRef{resultIdx: i, itemIdx: j})
		}
	}
}

// NumIdents returns the total number of identifications. Some spectra may
// have more than one.
func (m *MzIdentML) NumIdents() int {
	return len(m.identList)
}

// Ident returns identification i, 0 <= i < NumIdents()
func (m *MzIdentML) Ident(i int) (Identification, error) {
	var ident Identification
	if i < 0 || i >= len(m.identList) {
		return ident, ErrInvalidIdentIndex
	}
	res := &m.content.SpectrumIdentificationResult[m.identList[i].resultIdx]
	item := &res.SpectrumIdentificationItem[m.identList[i].itemIdx]

	if pepIdx, ok := m.seqID2PepIdx[item.PeptideRef]; ok {
		ident.PepSeq = m.content.Peptide[pepIdx].PeptideSequence
	}
	ident.Charge = item.ChargeState
	ident.Mz = item.ExperimentalMassToCharge
	ident.CalcMz = item.CalculatedMassToCharge
	ident.Rank = item.Rank
	ident.Pass = item.PassThreshold
	ident.SpecID = res.SpectrumID

	rt, err := retentionTime(res.CvPar)
	if err != nil {
		return ident, fmt.Errorf("%s: %w", res.SpectrumID, err)
	}
	ident.RetentionTime = rt
	return ident, nil
}

// retentionTime returns the RT in minutes from the cvParams of a result,
// or -1 if there is none. In order of decreasing preference we use:
// MS:1000016 scan start time, MS:1000894 retention time,
// MS:1000826 elution time, MS:1001114 retention time (deprecated).
func retentionTime(cvs []cvParam) (float64, error) {
	prio := map[string]int{
		"MS:1000016": 1,
		"MS:1000894": 2,
		"MS:1000826": 3,
		"MS:1001114": 4,
	}
	best := math.MaxInt32
	rt := float64(-1)
	for _, cv := range cvs {
		p, ok := prio[cv.Accession]
		if !ok || p >= best {
			continue
		}
		t, err := strconv.ParseFloat(cv.Value, 64)
		if err != nil {
			return -1, err
		}
		// Seconds unless the unit says minutes
		if cv.UnitAccession != "UO:0000031" && cv.UnitAccession != "MS:1000038" {
			t /= 60
		}
		best, rt = p, t
	}
	return rt, nil
}

// Precursors returns the rank 1 identifications that passed the threshold
// and have a retention time
func (m *MzIdentML) Precursors() ([]Identification, error) {
	var out []Identification
	for i := range m.identList {
		ident, err := m.Ident(i)
		if err != nil {
			return nil, err
		}
		if !ident.Pass || ident.Rank > 1 || ident.RetentionTime < 0 || ident.Charge < 1 {
			continue
		}
		out = append(out, ident)
	}
	return out, nil
}

package mzidentml

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMzid = `<?xml version="1.0" encoding="ISO-8859-1"?>
<MzIdentML xmlns="http://psidev.info/psi/pi/mzIdentML/1.1" id="test" version="1.1.0">
  <SequenceCollection>
    <Peptide id="PEP_1"><PeptideSequence>LVNELTEFAK</PeptideSequence></Peptide>
    <Peptide id="PEP_2"><PeptideSequence>YLYEIAR</PeptideSequence></Peptide>
  </SequenceCollection>
  <DataCollection>
    <AnalysisData>
      <SpectrumIdentificationList id="SIL_1">
        <SpectrumIdentificationResult id="SIR_1" spectrumID="scan=100">
          <SpectrumIdentificationItem id="SII_1_1" chargeState="2" experimentalMassToCharge="582.3190" calculatedMassToCharge="582.3195" peptide_ref="PEP_1" rank="1" passThreshold="true"/>
          <SpectrumIdentificationItem id="SII_1_2" chargeState="2" experimentalMassToCharge="582.3190" peptide_ref="PEP_2" rank="2" passThreshold="true"/>
          <cvParam accession="MS:1000894" name="retention time" value="1260" unitAccession="UO:0000010"/>
          <cvParam accession="MS:1000016" name="scan start time" value="21.5" unitAccession="UO:0000031"/>
        </SpectrumIdentificationResult>
        <SpectrumIdentificationResult id="SIR_2" spectrumID="scan=200">
          <SpectrumIdentificationItem id="SII_2_1" chargeState="2" experimentalMassToCharge="464.2500" peptide_ref="PEP_2" rank="1" passThreshold="false"/>
          <cvParam accession="MS:1000016" name="scan start time" value="1800"/>
        </SpectrumIdentificationResult>
        <SpectrumIdentificationResult id="SIR_3" spectrumID="scan=300">
          <SpectrumIdentificationItem id="SII_3_1" chargeState="3" experimentalMassToCharge="400.5" peptide_ref="PEP_2" rank="1" passThreshold="true"/>
        </SpectrumIdentificationResult>
      </SpectrumIdentificationList>
    </AnalysisData>
  </DataCollection>
</MzIdentML>`

func TestRead(t *testing.T) {
	f, err := Read(strings.NewReader(testMzid))
	require.NoError(t, err)
	assert.Equal(t, 4, f.NumIdents())

	ident, err := f.Ident(0)
	require.NoError(t, err)
	want := Identification{
		PepSeq:        "LVNELTEFAK",
		Charge:        2,
		Mz:            582.3190,
		CalcMz:        582.3195,
		Rank:          1,
		Pass:          true,
		SpecID:        "scan=100",
		RetentionTime: 21.5,
	}
	if diff := cmp.Diff(want, ident); diff != "" {
		t.Errorf("Ident(0) (-want +got):\n%s", diff)
	}

	ident, err = f.Ident(2)
	require.NoError(t, err)
	assert.Equal(t, 30.0, ident.RetentionTime, "seconds are converted to minutes")

	ident, err = f.Ident(3)
	require.NoError(t, err)
	assert.Equal(t, -1.0, ident.RetentionTime)

	_, err = f.Ident(4)
	assert.ErrorIs(t, err, ErrInvalidIdentIndex)
}

func TestPrecursors(t *testing.T) {
	f, err := Read(strings.NewReader(testMzid))
	require.NoError(t, err)
	p, err := f.Precursors()
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, "LVNELTEFAK", p[0].PepSeq)
}

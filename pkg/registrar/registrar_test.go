package registrar

import (
	"testing"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)

func TestForRTA(t *testing.T) {
	t.Run("karvy", func(t *testing.T) {
		p, err := ForRTA(models.RTAKarvy)
		require.NoError(t, err)
		assert.Equal(t, "karvy", p.Name())
		assert.Equal(t, models.RTAKarvy, p.RTAID())
	})

	t.Run("cams", func(t *testing.T) {
		p, err := ForRTA(models.RTACAMS)
		require.NoError(t, err)
		assert.Equal(t, "cams", p.Name())
	})

	t.Run("unknown registrar is rejected", func(t *testing.T) {
		_, err := ForRTA(99)
		require.Error(t, err)
	})
}

func TestKarvyConsolidatedNaming(t *testing.T) {
	p := &Karvy{}

	assert.Equal(t, "INAAOF20260828_ABCDE1234F_7.zip",
		p.ConsolidatedArchiveName(testDate, "AOF", "ABCDE1234F", 7))
	assert.Equal(t, "0005280826007.dbf", p.ConsolidatedDBFName(testDate, "ABCDE1234F", 7))
	assert.Equal(t, "0005000000000042.tif",
		p.ConsolidatedTIFFName(ConsolidatedEntry{InvestorID: 42}))

	// flat archive: no per-holder grouping
	assert.Empty(t, p.HolderFolder(testDate, "ABCDE1234F"))
	assert.True(t, p.BatchedDBF())
}

func TestKarvyConsolidatedRecord(t *testing.T) {
	p := &Karvy{}
	entry := ConsolidatedEntry{
		Date:           testDate,
		BatchNumber:    7,
		SequenceNumber: 12,
		BrokerCode:     "ARN-12345",
		InvestorID:     42,
		HolderName:     "ASHA MEHTA",
		HolderRank:     models.HolderSecondary,
		PAN:            "ABCDE1234F",
	}

	record := p.ConsolidatedRecord(entry)
	require.Len(t, record, len(p.ConsolidatedSchema()))
	assert.Equal(t, []string{
		"20260828", "7", "12", "ARN-12345", "ASHA MEHTA", "2",
		"ABCDE1234F", "0005000000000042.tif",
	}, record)
}

func TestCAMSConsolidatedNaming(t *testing.T) {
	p := &CAMS{}

	assert.Equal(t, "INV_20260828_ABCDE1234F", p.HolderFolder(testDate, "ABCDE1234F"))
	assert.Equal(t, "Text_ABCDE1234F.dbf", p.ConsolidatedDBFName(testDate, "ABCDE1234F", 7))
	assert.Equal(t, "ARN0005$ABCDE1234F$ALL.tif",
		p.ConsolidatedTIFFName(ConsolidatedEntry{PAN: "ABCDE1234F"}))
	assert.False(t, p.BatchedDBF())
}

func TestCAMSConsolidatedRecord(t *testing.T) {
	p := &CAMS{}
	entry := ConsolidatedEntry{
		Date:       testDate,
		HolderName: "ASHA MEHTA",
		HolderRank: models.HolderPrimary,
		PAN:        "ABCDE1234F",
	}

	record := p.ConsolidatedRecord(entry)
	require.Len(t, record, len(p.ConsolidatedSchema()))
	assert.Equal(t, "ARN0005", record[0])
	assert.Equal(t, "ARN0005$ABCDE1234F$ALL", record[1])
	assert.Equal(t, "ALL", record[2])
	assert.Equal(t, "20260828", record[6])
}

func TestNomineeNaming(t *testing.T) {
	entry := NomineeEntry{
		Date:         testDate,
		AMCCode:      "P",
		UserCode:     "FERN01",
		UniqueID:     "TXN9001",
		PAN:          "ABCDE1234F",
		HolderName:   "ASHA MEHTA",
		DocumentID:   "NOM",
		DocumentType: "TIFF",
		SequenceCode: "0042",
	}

	t.Run("karvy is a bare tif, no dbf", func(t *testing.T) {
		p := &Karvy{}
		assert.Equal(t, "P~0005~TXN9001.tif", p.NomineeTIFFName(entry))
		assert.Equal(t, "P~0005~TXN9001_0042.zip", p.NomineeArchiveName(entry))
		assert.Nil(t, p.NomineeDBFSchema())
	})

	t.Run("cams carries an eight field manifest", func(t *testing.T) {
		p := &CAMS{}
		assert.Equal(t, "ARN0005$ABCDE1234F$ALL.tif", p.NomineeTIFFName(entry))
		assert.Equal(t, "Text_ABCDE1234F.dbf", p.NomineeDBFName(entry))

		schema := p.NomineeDBFSchema()
		require.Len(t, schema, 8)
		require.NoError(t, schema.Validate())

		record := p.NomineeRecord(entry)
		require.Len(t, record, 8)
		assert.Equal(t, "P", record[0])
		assert.Equal(t, "TXN9001", record[2])
		assert.Equal(t, "ARN0005$ABCDE1234F$ALL.tif", record[5])
	})
}

func TestConsolidatedSchemasValidate(t *testing.T) {
	require.NoError(t, (&Karvy{}).ConsolidatedSchema().Validate())
	require.NoError(t, (&CAMS{}).ConsolidatedSchema().Validate())
}

package registrar

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Ramsey-B/fern/pkg/dbf"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Karvy bundles are flat: every TIFF and the single run-wide DBF sit in
// the archive root. The DBF accumulates one row per pancard-bearing
// holder across the whole run.
type Karvy struct{}

func (k *Karvy) RTAID() int64 { return models.RTAKarvy }
func (k *Karvy) Name() string { return "karvy" }

func (k *Karvy) HolderFolder(time.Time, string) string { return "" }

func (k *Karvy) ConsolidatedArchiveName(date time.Time, docCode, pan string, batchNumber int) string {
	return fmt.Sprintf("INA%s%s_%s_%d.zip", docCode, date.Format("20060102"), pan, batchNumber)
}

func (k *Karvy) ConsolidatedDBFName(date time.Time, _ string, batchNumber int) string {
	return fmt.Sprintf("%s%s%03d.dbf", memberCode, date.Format("020106"), batchNumber)
}

func (k *Karvy) ConsolidatedTIFFName(entry ConsolidatedEntry) string {
	return fmt.Sprintf("%s%012d.tif", memberCode, entry.InvestorID)
}

func (k *Karvy) ConsolidatedSchema() dbf.Schema {
	return dbf.Schema{
		{Name: "ENTRY_DATE", Type: dbf.Date, Length: 8},
		{Name: "BATCH_NO", Type: dbf.Numeric, Length: 3},
		{Name: "SEQ_NO", Type: dbf.Numeric, Length: 5},
		{Name: "BRK_CODE", Type: dbf.Character, Length: 20},
		{Name: "INV_NAME", Type: dbf.Character, Length: 40},
		{Name: "HOLD_FLAG", Type: dbf.Numeric, Length: 1},
		{Name: "PAN_NO", Type: dbf.Character, Length: 10},
		{Name: "DOC_FILEN", Type: dbf.Character, Length: 30},
	}
}

func (k *Karvy) ConsolidatedRecord(entry ConsolidatedEntry) []string {
	return []string{
		entry.Date.Format("20060102"),
		strconv.Itoa(entry.BatchNumber),
		strconv.Itoa(entry.SequenceNumber),
		entry.BrokerCode,
		entry.HolderName,
		strconv.Itoa(int(entry.HolderRank)),
		entry.PAN,
		k.ConsolidatedTIFFName(entry),
	}
}

func (k *Karvy) BatchedDBF() bool { return true }

func (k *Karvy) NomineeArchiveName(entry NomineeEntry) string {
	return fmt.Sprintf("%s~%s~%s_%s.zip", entry.AMCCode, memberCode, entry.UniqueID, entry.SequenceCode)
}

func (k *Karvy) NomineeTIFFName(entry NomineeEntry) string {
	return fmt.Sprintf("%s~%s~%s.tif", entry.AMCCode, memberCode, entry.UniqueID)
}

// Karvy takes nominee bundles as bare TIFFs, no DBF manifest.
func (k *Karvy) NomineeDBFSchema() dbf.Schema        { return nil }
func (k *Karvy) NomineeDBFName(NomineeEntry) string  { return "" }
func (k *Karvy) NomineeRecord(NomineeEntry) []string { return nil }

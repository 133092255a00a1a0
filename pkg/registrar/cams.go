package registrar

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Ramsey-B/fern/pkg/dbf"
	"github.com/Ramsey-B/fern/pkg/models"
)

// camsARN is the platform's broker code as registered with CAMS. CAMS
// keys every file in a bundle on the concatenation ARN$PAN$ALL.
const camsARN = "ARN" + memberCode

// camsSchemeCode marks a bundle as applying to all of a holder's schemes.
const camsSchemeCode = "ALL"

// CAMS bundles group each holder's files into an INV_<date>_<PAN>
// subfolder holding that holder's own DBF and TIFF.
type CAMS struct{}

func (c *CAMS) RTAID() int64 { return models.RTACAMS }
func (c *CAMS) Name() string { return "cams" }

func (c *CAMS) HolderFolder(date time.Time, pan string) string {
	return fmt.Sprintf("INV_%s_%s", date.Format("20060102"), pan)
}

func (c *CAMS) ConsolidatedArchiveName(date time.Time, docCode, pan string, batchNumber int) string {
	return fmt.Sprintf("%s_%s_%s_%d.zip", camsARN, docCode, date.Format("20060102"), batchNumber)
}

func (c *CAMS) ConsolidatedDBFName(_ time.Time, pan string, _ int) string {
	return fmt.Sprintf("Text_%s.dbf", pan)
}

func (c *CAMS) ConsolidatedTIFFName(entry ConsolidatedEntry) string {
	return fmt.Sprintf("%s$%s$%s.tif", camsARN, entry.PAN, camsSchemeCode)
}

func (c *CAMS) ConsolidatedSchema() dbf.Schema {
	return dbf.Schema{
		{Name: "ARN_CODE", Type: dbf.Character, Length: 15},
		{Name: "KEY_ID", Type: dbf.Character, Length: 40},
		{Name: "SCHEME", Type: dbf.Character, Length: 5},
		{Name: "PAN_NO", Type: dbf.Character, Length: 10},
		{Name: "INV_NAME", Type: dbf.Character, Length: 40},
		{Name: "HOLD_FLAG", Type: dbf.Numeric, Length: 1},
		{Name: "ENTRY_DATE", Type: dbf.Date, Length: 8},
	}
}

func (c *CAMS) ConsolidatedRecord(entry ConsolidatedEntry) []string {
	return []string{
		camsARN,
		fmt.Sprintf("%s$%s$%s", camsARN, entry.PAN, camsSchemeCode),
		camsSchemeCode,
		entry.PAN,
		entry.HolderName,
		strconv.Itoa(int(entry.HolderRank)),
		entry.Date.Format("20060102"),
	}
}

func (c *CAMS) BatchedDBF() bool { return false }

func (c *CAMS) NomineeArchiveName(entry NomineeEntry) string {
	return fmt.Sprintf("%s_%s_%s_%s.zip", entry.AMCCode, entry.Date.Format("20060102"), entry.UniqueID, entry.SequenceCode)
}

func (c *CAMS) NomineeTIFFName(entry NomineeEntry) string {
	return fmt.Sprintf("%s$%s$%s.tif", camsARN, entry.PAN, camsSchemeCode)
}

func (c *CAMS) NomineeDBFSchema() dbf.Schema {
	return dbf.Schema{
		{Name: "AMC_CODE", Type: dbf.Character, Length: 10},
		{Name: "USER_CODE", Type: dbf.Character, Length: 10},
		{Name: "USR_TRXNN", Type: dbf.Character, Length: 15},
		{Name: "PAN", Type: dbf.Character, Length: 10},
		{Name: "FH_NAME", Type: dbf.Character, Length: 40},
		{Name: "DOC_FILEN", Type: dbf.Character, Length: 50},
		{Name: "DOC_ID", Type: dbf.Character, Length: 10},
		{Name: "DOC_TYPE", Type: dbf.Character, Length: 10},
	}
}

func (c *CAMS) NomineeDBFName(entry NomineeEntry) string {
	return fmt.Sprintf("Text_%s.dbf", entry.PAN)
}

func (c *CAMS) NomineeRecord(entry NomineeEntry) []string {
	return []string{
		entry.AMCCode,
		entry.UserCode,
		entry.UniqueID,
		entry.PAN,
		entry.HolderName,
		c.NomineeTIFFName(entry),
		entry.DocumentID,
		entry.DocumentType,
	}
}

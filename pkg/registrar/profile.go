// Package registrar encodes the per-RTA conventions for generated
// document bundles: file naming, DBF field layouts and archive layout.
// Each registrar gets one Profile implementation, selected once at job
// start and consumed uniformly by the generation engines.
package registrar

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Ramsey-B/fern/pkg/dbf"
	"github.com/Ramsey-B/fern/pkg/models"
)

// memberCode is the platform's registered member code with both RTAs.
const memberCode = "0005"

// UserCode is the platform's submission user registered with the RTAs,
// carried in nominee DBF manifests.
const UserCode = "FERN1"

// ConsolidatedEntry carries everything a profile needs to name and
// encode one holder's row in a consolidated (AOF) run.
type ConsolidatedEntry struct {
	Date           time.Time
	BatchNumber    int
	SequenceNumber int
	BrokerCode     string
	InvestorID     int64
	HolderName     string
	HolderRank     models.HolderRank
	PAN            string
}

// NomineeEntry carries the per-order-item values for a nominee bundle.
type NomineeEntry struct {
	Date         time.Time
	AMCCode      string
	UserCode     string
	UniqueID     string
	PAN          string
	HolderName   string
	DocumentID   string
	DocumentType string
	SequenceCode string
}

// Profile is the registrar strategy consumed by the generation engines.
// Folder values of "" mean the entry goes in the archive root.
type Profile interface {
	RTAID() int64
	Name() string

	// HolderFolder returns the archive subfolder for a holder's files.
	HolderFolder(date time.Time, pan string) string

	ConsolidatedArchiveName(date time.Time, docCode, pan string, batchNumber int) string
	ConsolidatedDBFName(date time.Time, pan string, batchNumber int) string
	ConsolidatedTIFFName(entry ConsolidatedEntry) string
	ConsolidatedSchema() dbf.Schema
	ConsolidatedRecord(entry ConsolidatedEntry) []string

	// BatchedDBF reports whether all of a run's rows accumulate into a
	// single DBF file instead of one file per holder.
	BatchedDBF() bool

	NomineeArchiveName(entry NomineeEntry) string
	NomineeTIFFName(entry NomineeEntry) string

	// NomineeDBFSchema returns nil when the registrar takes nominee
	// bundles without a DBF manifest.
	NomineeDBFSchema() dbf.Schema
	NomineeDBFName(entry NomineeEntry) string
	NomineeRecord(entry NomineeEntry) []string
}

// ForRTA returns the profile registered for the given registrar id.
func ForRTA(rtaID int64) (Profile, error) {
	switch rtaID {
	case models.RTAKarvy:
		return &Karvy{}, nil
	case models.RTACAMS:
		return &CAMS{}, nil
	default:
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unsupported registrar id %d", rtaID)
	}
}

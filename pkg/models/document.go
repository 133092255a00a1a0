package models

import "time"

// Registrar identifiers. The registrar profile abstraction in pkg/registrar
// is keyed by these values.
const (
	RTAKarvy int64 = 1
	RTACAMS  int64 = 2
)

// Document tracking statuses.
const (
	DocumentStatusPending   = "pending"
	DocumentStatusGenerated = "generated"
	DocumentStatusExpired   = "expired"
)

// AppFile is a record of one uploaded archive or stored document.
// Immutable once created.
type AppFile struct {
	ID            int64     `json:"id" db:"id"`
	ContainerName string    `json:"container_name" db:"container_name"`
	Name          string    `json:"name" db:"name"`
	Size          int64     `json:"size" db:"size"`
	Checksum      string    `json:"checksum" db:"checksum"`
	MimeType      string    `json:"mime_type" db:"mime_type"`
	Extension     string    `json:"extension" db:"extension"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// ConsolidatedDocument tracks AOF bundle generation per account/registrar.
type ConsolidatedDocument struct {
	ID            int64      `json:"id" db:"id"`
	AccountID     int64      `json:"account_id" db:"account_id"`
	RTAID         int64      `json:"rta_id" db:"rta_id"`
	Status        *string    `json:"status,omitempty" db:"status"`
	GeneratedDate *time.Time `json:"generated_date,omitempty" db:"generated_date"`
	AppFileID     *int64     `json:"app_file_id,omitempty" db:"app_file_id"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// NomineeDocument tracks nominee document generation per order item. A row is
// created inactive before the archive is assembled, claiming the work; it is
// flipped active with an app file reference only after upload succeeds.
type NomineeDocument struct {
	ID                int64      `json:"id" db:"id"`
	AccountID         int64      `json:"account_id" db:"account_id"`
	RTAID             int64      `json:"rta_id" db:"rta_id"`
	ServiceProviderID int64      `json:"service_provider_id" db:"service_provider_id"`
	Status            *string    `json:"status,omitempty" db:"status"`
	GeneratedDate     *time.Time `json:"generated_date,omitempty" db:"generated_date"`
	AppFileID         *int64     `json:"app_file_id,omitempty" db:"app_file_id"`
	Remarks           *string    `json:"remarks,omitempty" db:"remarks"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// AnnexureFeedEntry is one row of the append-only per-run sequencing ledger.
// The batch number is shared across a run; the sequence number increments per
// holder processed within the run.
type AnnexureFeedEntry struct {
	ID                  int64     `json:"id" db:"id"`
	RTAID               int64     `json:"rta_id" db:"rta_id"`
	AccountID           int64     `json:"account_id" db:"account_id"`
	BatchNumber         int       `json:"batch_number" db:"batch_number"`
	BatchSequenceNumber int       `json:"batch_sequence_number" db:"batch_sequence_number"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

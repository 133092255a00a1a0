package models

import "time"

// Transaction types eligible for nominee document generation.
const (
	TransactionTypePurchase = 1
	TransactionTypeSwitch   = 2
)

// ServiceProvider is an AMC the platform transacts with.
type ServiceProvider struct {
	ID             int64  `json:"id" db:"id"`
	Name           string `json:"name" db:"name"`
	PrimaryAMCCode string `json:"primary_amc_code" db:"primary_amc_code"`
	RTAID          int64  `json:"rta_id" db:"rta_id"`
}

// Instrument is a fund scheme offered by a service provider.
type Instrument struct {
	ID                int64            `json:"id" db:"id"`
	Name              string           `json:"name" db:"name"`
	ServiceProviderID int64            `json:"service_provider_id" db:"service_provider_id"`
	ServiceProvider   *ServiceProvider `json:"service_provider,omitempty"`
}

// TransactionFeedLog records an RTA feed exchange; order items reference the
// feed row they were reported in.
type TransactionFeedLog struct {
	ID        int64     `json:"id" db:"id"`
	RTAID     int64     `json:"rta_id" db:"rta_id"`
	FeedDate  time.Time `json:"feed_date" db:"feed_date"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// OrderItem is a transaction line tied to an account and an instrument.
// IsNomineeDocumentGenerated is the idempotency guard: once true the item is
// excluded from future nominee-document batches.
type OrderItem struct {
	ID                         int64       `json:"id" db:"id"`
	OrderID                    int64       `json:"order_id" db:"order_id"`
	AccountID                  int64       `json:"account_id" db:"account_id"`
	InstrumentID               int64       `json:"instrument_id" db:"instrument_id"`
	UniqueID                   string      `json:"unique_id" db:"unique_id"`
	RTAID                      int64       `json:"rta_id" db:"rta_id"`
	TransactionType            int         `json:"transaction_type" db:"transaction_type"`
	TransactionFeedLogID       *int64      `json:"transaction_feed_log_id,omitempty" db:"transaction_feed_log_id"`
	IsServiceProviderAccount   bool        `json:"is_service_provider_account" db:"is_service_provider_account"`
	IsNomineeDocumentGenerated bool        `json:"is_nominee_document_generated" db:"is_nominee_document_generated"`
	Account                    *Account    `json:"account,omitempty"`
	Instrument                 *Instrument `json:"instrument,omitempty"`
	CreatedAt                  time.Time   `json:"created_at" db:"created_at"`
}

package models

import "time"

// HolderRank identifies an account participant's position.
type HolderRank int

const (
	HolderPrimary   HolderRank = 1
	HolderSecondary HolderRank = 2
	HolderTertiary  HolderRank = 3
)

// InvestorDetail carries the KYC identity of a holder.
type InvestorDetail struct {
	ID         int64   `json:"id" db:"id"`
	InvestorID int64   `json:"investor_id" db:"investor_id"`
	FirstName  string  `json:"first_name" db:"first_name"`
	MiddleName *string `json:"middle_name,omitempty" db:"middle_name"`
	LastName   string  `json:"last_name" db:"last_name"`
	PANNumber  *string `json:"pan_number,omitempty" db:"pan_number"`
}

// FullName joins the name parts, skipping an absent middle name.
func (d InvestorDetail) FullName() string {
	name := d.FirstName
	if d.MiddleName != nil && *d.MiddleName != "" {
		name += " " + *d.MiddleName
	}
	if d.LastName != "" {
		name += " " + d.LastName
	}
	return name
}

// Holder is an account participant (primary/secondary/tertiary).
type Holder struct {
	ID             int64           `json:"id" db:"id"`
	AccountID      int64           `json:"account_id" db:"account_id"`
	Rank           HolderRank      `json:"rank" db:"rank"`
	InvestorDetail *InvestorDetail `json:"investor_detail,omitempty"`
}

// HasPAN reports whether the holder carries investor details with a PAN.
func (h *Holder) HasPAN() bool {
	return h != nil && h.InvestorDetail != nil &&
		h.InvestorDetail.PANNumber != nil && *h.InvestorDetail.PANNumber != ""
}

// PAN returns the holder's PAN number or an empty string.
func (h *Holder) PAN() string {
	if !h.HasPAN() {
		return ""
	}
	return *h.InvestorDetail.PANNumber
}

// BankAccount is a bank account linked to an investment account.
type BankAccount struct {
	ID            int64  `json:"id" db:"id"`
	AccountID     int64  `json:"account_id" db:"account_id"`
	AccountNumber string `json:"account_number" db:"account_number"`
	IFSCCode      string `json:"ifsc_code" db:"ifsc_code"`
	IsDefault     bool   `json:"is_default" db:"is_default"`
}

// AccountAppFile links an account to a previously generated identity
// document stored in the object store, newest first.
type AccountAppFile struct {
	ID        int64     `json:"id" db:"id"`
	AccountID int64     `json:"account_id" db:"account_id"`
	AppFileID int64     `json:"app_file_id" db:"app_file_id"`
	AppFile   *AppFile  `json:"app_file,omitempty"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Account is an investment account with up to three holders.
type Account struct {
	ID           int64            `json:"id" db:"id"`
	AccountCode  string           `json:"account_code" db:"account_code"`
	IsActive     bool             `json:"is_active" db:"is_active"`
	Holders      []Holder         `json:"holders,omitempty"`
	BankAccounts []BankAccount    `json:"bank_accounts,omitempty"`
	AppFiles     []AccountAppFile `json:"app_files,omitempty"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// PrimaryHolder returns the primary holder, or nil when absent.
func (a *Account) PrimaryHolder() *Holder {
	return a.HolderByRank(HolderPrimary)
}

// HolderByRank returns the holder at the given rank, or nil.
func (a *Account) HolderByRank(rank HolderRank) *Holder {
	for i := range a.Holders {
		if a.Holders[i].Rank == rank {
			return &a.Holders[i]
		}
	}
	return nil
}

// PANHolders returns the account's pancard-bearing holders in
// primary/secondary/tertiary order. Registrar flat files depend on this
// ordering matching the accompanying image order.
func (a *Account) PANHolders() []Holder {
	holders := make([]Holder, 0, 3)
	for _, rank := range []HolderRank{HolderPrimary, HolderSecondary, HolderTertiary} {
		if h := a.HolderByRank(rank); h.HasPAN() {
			holders = append(holders, *h)
		}
	}
	return holders
}

// LatestAppFile returns the most recent generated identity document linked
// to the account, or nil when none was ever generated.
func (a *Account) LatestAppFile() *AppFile {
	if len(a.AppFiles) == 0 {
		return nil
	}
	return a.AppFiles[0].AppFile
}

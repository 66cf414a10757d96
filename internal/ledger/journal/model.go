package journal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates journal entry lifecycle values. Confirmed and Voided are
// terminal; voiding is the only way out of Confirmed and always leaves a
// reversing counter-entry behind.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusConfirmed Status = "CONFIRMED"
	StatusVoided    Status = "VOIDED"
)

// Entry captures posting metadata for one dated accounting event.
type Entry struct {
	ID           int64
	OrgID        int64
	Number       int64
	Date         time.Time
	Description  string
	Status       Status
	SourceModule string
	SourceRef    uuid.UUID
	CreatedBy    int64
	// VoidedByID links to the reversing entry once voided; ReversesID marks
	// this entry as the reversal of another. Both stay set forever.
	VoidedByID *int64
	ReversesID *int64
	VoidReason string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Lines      []Line
}

// Line stores a debit or credit amount against one posting-leaf account.
type Line struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Memo      string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	PartyID   *int64
	CreatedAt time.Time
}

// Totals returns the summed debit and credit across the entry's lines.
func (e Entry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// Balanced reports whether debits equal credits and the entry is non-zero.
func (e Entry) Balanced() bool {
	debit, credit := e.Totals()
	return debit.Equal(credit) && debit.IsPositive()
}

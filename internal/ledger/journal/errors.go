package journal

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnbalanced indicates total debit != total credit, or a zero entry.
	ErrUnbalanced = errors.New("journal: entry lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("journal: entry requires at least two lines")
	// ErrPeriodClosed rejects postings dated in a non-open period.
	ErrPeriodClosed = errors.New("journal: accounting period is not open")
	// ErrEntryNotFound indicates a missing entry.
	ErrEntryNotFound = errors.New("journal: entry not found")
	// ErrInvalidStatus indicates a lifecycle transition the engine forbids.
	ErrInvalidStatus = errors.New("journal: invalid status transition")
	// ErrSourceConflict indicates the source ref was already posted.
	ErrSourceConflict = errors.New("journal: source already posted")
)

// CashThresholdError rejects large totals routed through a cash account.
type CashThresholdError struct {
	Total       decimal.Decimal
	Limit       decimal.Decimal
	AccountCode string
}

func (e *CashThresholdError) Error() string {
	return fmt.Sprintf("journal: total %s exceeds cash handling limit %s on account %s; use a bank account",
		e.Total.StringFixed(2), e.Limit.StringFixed(2), e.AccountCode)
}

// NonPostableError identifies a line account that cannot receive postings.
type NonPostableError struct {
	AccountID   int64
	AccountCode string
	Reason      string
}

func (e *NonPostableError) Error() string {
	if e.AccountCode != "" {
		return fmt.Sprintf("journal: account %s is not postable: %s", e.AccountCode, e.Reason)
	}
	return fmt.Sprintf("journal: account %d is not postable: %s", e.AccountID, e.Reason)
}

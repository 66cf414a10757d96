package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineInput describes a journal line for a posting request.
type LineInput struct {
	AccountID int64 `validate:"required"`
	Memo      string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	PartyID   *int64
}

// EntryInput groups fields required to create a journal entry.
type EntryInput struct {
	OrgID        int64     `validate:"required"`
	Date         time.Time `validate:"required"`
	Description  string
	SourceModule string
	SourceRef    uuid.UUID
	CreatedBy    int64
	AutoConfirm  bool
	Lines        []LineInput `validate:"required,min=2"`
}

var inputValidator = validator.New()

// Validate ensures posting input meets minimum criteria.
func (in EntryInput) Validate() error {
	if err := inputValidator.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 && fieldErrs[0].Field() == "Lines" {
			return ErrTooFewLines
		}
		return fmt.Errorf("journal: %w", err)
	}
	var debit, credit decimal.Decimal
	for idx, line := range in.Lines {
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("journal: line %d has a negative amount", idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("journal: line %d cannot carry both debit and credit", idx)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("journal: line %d must carry a debit or a credit", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s, credit %s, difference %s",
			ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2), debit.Sub(credit).Abs().StringFixed(2))
	}
	if debit.IsZero() {
		return fmt.Errorf("%w: entry total is zero", ErrUnbalanced)
	}
	return nil
}

// Total returns the entry total (the debit side; input is validated balanced).
func (in EntryInput) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range in.Lines {
		total = total.Add(line.Debit)
	}
	return total
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	OrgID   int64
	EntryID int64
	ActorID int64
	Reason  string
}

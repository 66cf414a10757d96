package statements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quipu-ledger/quipu/internal/ledger/accounts"
	"github.com/quipu-ledger/quipu/internal/ledger/journal"
)

const (
	equityRootCode       = "3"
	retainedEarningsCode = "3.2"
)

// ErrNothingToClose indicates every result account already sits at zero.
var ErrNothingToClose = errors.New("statements: no result balances to close")

// GenerateClosingEntry zeroes every revenue, cost and expense leaf over
// [from, to] and moves the net to retained earnings in one balanced entry.
// The entry posts Confirmed through the journal, so it obeys period checks
// and is voidable like any other posting.
func (s *Service) GenerateClosingEntry(ctx context.Context, orgID int64, from, to time.Time, actorID int64) (journal.Entry, error) {
	idemKey := fmt.Sprintf("closing:%d:%d", orgID, to.Year())
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idemKey, "statements"); err != nil {
			return journal.Entry{}, err
		}
	}
	entry, err := s.generateClosingEntry(ctx, orgID, from, to, actorID)
	if err != nil && s.idem != nil {
		// A failed close may be retried.
		_ = s.idem.Delete(ctx, idemKey)
	}
	return entry, err
}

func (s *Service) generateClosingEntry(ctx context.Context, orgID int64, from, to time.Time, actorID int64) (journal.Entry, error) {
	retained, err := s.ensureRetainedEarnings(ctx, orgID, actorID)
	if err != nil {
		return journal.Entry{}, err
	}

	leaves, err := s.chart.ListLeaves(ctx, orgID,
		accounts.CategoryRevenue, accounts.CategoryCost, accounts.CategoryExpense)
	if err != nil {
		return journal.Entry{}, err
	}

	var lines []journal.LineInput
	net := decimal.Zero
	for _, acct := range leaves {
		b, err := s.balance.AccountBalances(ctx, acct, &from, &to)
		if err != nil {
			return journal.Entry{}, err
		}
		if b.Closing.IsZero() {
			continue
		}
		// Each line is the mirror of the account's signed closing, driving
		// the account to zero. Revenue is credit-normal so a positive
		// closing closes with a debit; costs and expenses close with credits.
		line := journal.LineInput{AccountID: acct.ID, Memo: "Period closing"}
		closeOnDebit := acct.Normal == accounts.NormalCredit
		amount := b.Closing
		if amount.IsNegative() {
			closeOnDebit = !closeOnDebit
			amount = amount.Abs()
		}
		if closeOnDebit {
			line.Debit = amount
		} else {
			line.Credit = amount
		}
		lines = append(lines, line)

		if acct.Category == accounts.CategoryRevenue {
			net = net.Add(b.Closing)
		} else {
			net = net.Sub(b.Closing)
		}
	}
	if len(lines) == 0 {
		return journal.Entry{}, ErrNothingToClose
	}

	result := journal.LineInput{AccountID: retained.ID, Memo: "Net result for the period"}
	switch {
	case net.IsPositive():
		result.Credit = net
	case net.IsNegative():
		result.Debit = net.Abs()
	}
	if !net.IsZero() {
		lines = append(lines, result)
	}

	return s.journal.CreateEntry(ctx, journal.EntryInput{
		OrgID:        orgID,
		Date:         to,
		Description:  fmt.Sprintf("Closing entry %s to %s", from.Format("2006-01-02"), to.Format("2006-01-02")),
		SourceModule: "closing",
		CreatedBy:    actorID,
		AutoConfirm:  true,
		Lines:        lines,
	})
}

// ensureRetainedEarnings returns the retained earnings account, creating it
// (and the equity root above it) on first close.
func (s *Service) ensureRetainedEarnings(ctx context.Context, orgID, actorID int64) (accounts.Account, error) {
	retained, err := s.chart.Get(ctx, orgID, retainedEarningsCode)
	if err == nil {
		return retained, nil
	}
	if !errors.Is(err, accounts.ErrNotFound) {
		return accounts.Account{}, err
	}

	if _, err := s.chart.Get(ctx, orgID, equityRootCode); err != nil {
		if !errors.Is(err, accounts.ErrNotFound) {
			return accounts.Account{}, err
		}
		if _, err := s.chart.Create(ctx, accounts.CreateInput{
			OrgID:    orgID,
			Code:     equityRootCode,
			Name:     "Equity",
			Category: accounts.CategoryEquity,
			ActorID:  actorID,
		}); err != nil {
			return accounts.Account{}, err
		}
	}
	return s.chart.Create(ctx, accounts.CreateInput{
		OrgID:      orgID,
		ParentCode: equityRootCode,
		Code:       retainedEarningsCode,
		Name:       "Retained earnings",
		Category:   accounts.CategoryEquity,
		IsLeaf:     true,
		ActorID:    actorID,
	})
}

package balance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quipu-ledger/quipu/internal/ledger/accounts"
)

// Sums carries raw debit and credit totals for one account filter and range.
type Sums struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Query selects the confirmed lines a sum runs over. Exactly one of AccountID
// or CodePrefix is set: leaf accounts match by id, summary accounts aggregate
// every posting leaf whose code starts with theirs.
type Query struct {
	OrgID      int64
	AccountID  int64
	CodePrefix string
	// From and To bound the entry date, inclusive. Nil means unbounded.
	From *time.Time
	To   *time.Time
}

// Source supplies debit/credit sums over confirmed, non-reversal entries.
// Voided entries and the reversals they produced are both excluded so a
// voided pair never inflates turnover.
type Source interface {
	Sums(ctx context.Context, q Query) (Sums, error)
}

// Balances is the four-column result of a ledger computation. Opening and
// Closing are signed by the account's normal balance; Debit and Credit are
// the raw period turnover.
type Balances struct {
	Opening decimal.Decimal
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Closing decimal.Decimal
}

// Engine computes account balances. It holds no state beyond its source and
// performs no writes.
type Engine struct {
	src Source
}

// NewEngine builds a balance engine over the given source.
func NewEngine(src Source) *Engine {
	return &Engine{src: src}
}

// signed collapses raw sums into a single figure from the account's point of
// view: debit-normal accounts grow with debits, credit-normal with credits.
func signed(normal accounts.NormalBalance, s Sums) decimal.Decimal {
	if normal == accounts.NormalDebit {
		return s.Debit.Sub(s.Credit)
	}
	return s.Credit.Sub(s.Debit)
}

// AccountBalances computes opening, period turnover and closing for one
// account over [from, to]. A nil from yields a zero opening; a nil to runs
// the period to the end of recorded history.
func (e *Engine) AccountBalances(ctx context.Context, acct accounts.Account, from, to *time.Time) (Balances, error) {
	q := Query{OrgID: acct.OrgID}
	if acct.IsLeaf {
		q.AccountID = acct.ID
	} else {
		q.CodePrefix = acct.Code
	}

	var opening decimal.Decimal
	if from != nil {
		before := from.AddDate(0, 0, -1)
		openQ := q
		openQ.From = nil
		openQ.To = &before
		sums, err := e.src.Sums(ctx, openQ)
		if err != nil {
			return Balances{}, err
		}
		opening = signed(acct.Normal, sums)
	}

	periodQ := q
	periodQ.From = from
	periodQ.To = to
	period, err := e.src.Sums(ctx, periodQ)
	if err != nil {
		return Balances{}, err
	}

	return Balances{
		Opening: opening,
		Debit:   period.Debit,
		Credit:  period.Credit,
		Closing: opening.Add(signed(acct.Normal, period)),
	}, nil
}

// ClosingBalance is a shorthand for the closing figure as of a date.
func (e *Engine) ClosingBalance(ctx context.Context, acct accounts.Account, asOf *time.Time) (decimal.Decimal, error) {
	b, err := e.AccountBalances(ctx, acct, nil, asOf)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return b.Closing, nil
}

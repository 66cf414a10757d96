package statements

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quipu-ledger/quipu/internal/ledger/accounts"
	"github.com/quipu-ledger/quipu/internal/ledger/balance"
	"github.com/quipu-ledger/quipu/internal/ledger/journal"
)

// ChartPort is the slice of the chart-of-accounts service statements need.
// ListLeaves must include deactivated accounts: their balances survive
// retirement and still belong on every report.
type ChartPort interface {
	Get(ctx context.Context, orgID int64, code string) (accounts.Account, error)
	Create(ctx context.Context, in accounts.CreateInput) (accounts.Account, error)
	ListLeaves(ctx context.Context, orgID int64, cats ...accounts.Category) ([]accounts.Account, error)
}

// BalancePort computes account balances.
type BalancePort interface {
	AccountBalances(ctx context.Context, acct accounts.Account, from, to *time.Time) (balance.Balances, error)
}

// JournalPort posts the generated closing entry.
type JournalPort interface {
	CreateEntry(ctx context.Context, in journal.EntryInput) (journal.Entry, error)
}

// IdempotencyPort guards one-shot operations like the yearly close.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service assembles financial statements from the chart and the balance
// engine. Statements are derived reads; only the closing entry writes, and it
// writes through the journal like any other posting.
type Service struct {
	chart   ChartPort
	balance BalancePort
	journal JournalPort
	idem    IdempotencyPort
}

// NewService builds the statements service. idem may be nil, disabling the
// duplicate-close guard.
func NewService(chart ChartPort, bal BalancePort, jrn JournalPort, idem IdempotencyPort) *Service {
	return &Service{chart: chart, balance: bal, journal: jrn, idem: idem}
}

// section computes one statement section by summing closing balances of the
// leaves in the given categories. Zero-balance accounts are omitted.
func (s *Service) section(ctx context.Context, orgID int64, title string, from, to *time.Time, cats ...accounts.Category) (Section, error) {
	leaves, err := s.chart.ListLeaves(ctx, orgID, cats...)
	if err != nil {
		return Section{}, err
	}
	lines := make([]StatementLine, 0, len(leaves))
	for _, acct := range leaves {
		b, err := s.balance.AccountBalances(ctx, acct, from, to)
		if err != nil {
			return Section{}, err
		}
		if b.Closing.IsZero() {
			continue
		}
		lines = append(lines, StatementLine{Code: acct.Code, Name: acct.Name, Amount: b.Closing})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Code < lines[j].Code })
	return Section{Title: title, Lines: lines, Total: sum(lines)}, nil
}

// BalanceSheet builds the position statement as of a date. Equity is reported
// before closing, so the balancing check folds in the running net income of
// the not-yet-closed result accounts.
func (s *Service) BalanceSheet(ctx context.Context, orgID int64, asOf time.Time) (BalanceSheet, error) {
	bs := BalanceSheet{OrgID: orgID, AsOf: asOf}
	var revenue, charges Section

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bs.Assets, err = s.section(gctx, orgID, "Assets", nil, &asOf, accounts.CategoryAsset)
		return err
	})
	g.Go(func() error {
		var err error
		bs.Liabilities, err = s.section(gctx, orgID, "Liabilities", nil, &asOf, accounts.CategoryLiability)
		return err
	})
	g.Go(func() error {
		var err error
		bs.Equity, err = s.section(gctx, orgID, "Equity", nil, &asOf, accounts.CategoryEquity)
		return err
	})
	g.Go(func() error {
		var err error
		revenue, err = s.section(gctx, orgID, "Revenue", nil, &asOf, accounts.CategoryRevenue)
		return err
	})
	g.Go(func() error {
		var err error
		charges, err = s.section(gctx, orgID, "Charges", nil, &asOf,
			accounts.CategoryCost, accounts.CategoryExpense)
		return err
	})
	if err := g.Wait(); err != nil {
		return BalanceSheet{}, err
	}

	// Result accounts not yet closed to equity still belong on the equity
	// side of the equation: revenue closings are credit-signed, cost and
	// expense debit-signed, so the running net income is their difference.
	bs.NetIncome = revenue.Total.Sub(charges.Total)
	bs.Balanced = bs.Assets.Total.Equal(bs.Liabilities.Total.Add(bs.Equity.Total).Add(bs.NetIncome))
	return bs, nil
}

// TrialBalance lists every leaf account with nonzero turnover or balance over
// [from, to]. Closing balances are cumulative from the start of history, so
// both column pairs must total equal on a healthy ledger.
func (s *Service) TrialBalance(ctx context.Context, orgID int64, from, to time.Time) (TrialBalance, error) {
	tb := TrialBalance{OrgID: orgID, From: from, To: to}
	leaves, err := s.chart.ListLeaves(ctx, orgID,
		accounts.CategoryAsset, accounts.CategoryLiability, accounts.CategoryEquity,
		accounts.CategoryRevenue, accounts.CategoryCost, accounts.CategoryExpense)
	if err != nil {
		return TrialBalance{}, err
	}
	for _, acct := range leaves {
		b, err := s.balance.AccountBalances(ctx, acct, &from, &to)
		if err != nil {
			return TrialBalance{}, err
		}
		row := TrialBalanceRow{Code: acct.Code, Name: acct.Name, Debit: b.Debit, Credit: b.Credit}
		// Closing is signed by the normal side; fold the sign back into the
		// classic debtor/creditor columns.
		onDebit := acct.Normal == accounts.NormalDebit
		amount := b.Closing
		if amount.IsNegative() {
			onDebit = !onDebit
			amount = amount.Abs()
		}
		if onDebit {
			row.DebtorBalance = amount
		} else {
			row.CreditorBalance = amount
		}
		if row.Debit.IsZero() && row.Credit.IsZero() && amount.IsZero() {
			continue
		}
		tb.Rows = append(tb.Rows, row)
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
		tb.TotalDebtor = tb.TotalDebtor.Add(row.DebtorBalance)
		tb.TotalCreditor = tb.TotalCreditor.Add(row.CreditorBalance)
	}
	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].Code < tb.Rows[j].Code })
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit) && tb.TotalDebtor.Equal(tb.TotalCreditor)
	return tb, nil
}

// IncomeStatement builds the performance statement over [from, to].
func (s *Service) IncomeStatement(ctx context.Context, orgID int64, from, to time.Time) (IncomeStatement, error) {
	is := IncomeStatement{OrgID: orgID, From: from, To: to}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		is.Revenue, err = s.section(gctx, orgID, "Revenue", &from, &to, accounts.CategoryRevenue)
		return err
	})
	g.Go(func() error {
		var err error
		is.Cost, err = s.section(gctx, orgID, "Cost of sales", &from, &to, accounts.CategoryCost)
		return err
	})
	g.Go(func() error {
		var err error
		is.Expenses, err = s.section(gctx, orgID, "Operating expenses", &from, &to, accounts.CategoryExpense)
		return err
	})
	if err := g.Wait(); err != nil {
		return IncomeStatement{}, err
	}

	is.GrossProfit = is.Revenue.Total.Sub(is.Cost.Total)
	is.NetIncome = is.GrossProfit.Sub(is.Expenses.Total)
	return is, nil
}

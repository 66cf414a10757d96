package statements

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/quipu-ledger/quipu/internal/ledger/accounts"
	"github.com/quipu-ledger/quipu/internal/ledger/balance"
	"github.com/quipu-ledger/quipu/internal/ledger/journal"
	"github.com/quipu-ledger/quipu/internal/shared"
)

type fakeChart struct {
	nextID int64
	byCode map[string]accounts.Account
}

func newFakeChart() *fakeChart {
	return &fakeChart{byCode: map[string]accounts.Account{}}
}

func (f *fakeChart) add(code string, cat accounts.Category, leaf bool) accounts.Account {
	f.nextID++
	a := accounts.Account{
		ID: f.nextID, OrgID: 1, Code: code, Name: code, Category: cat,
		Normal: accounts.DefaultNormal(cat), IsLeaf: leaf, IsActive: true,
	}
	f.byCode[code] = a
	return a
}

func (f *fakeChart) deactivate(code string) {
	a := f.byCode[code]
	a.IsActive = false
	f.byCode[code] = a
}

func (f *fakeChart) Get(ctx context.Context, orgID int64, code string) (accounts.Account, error) {
	if a, ok := f.byCode[code]; ok {
		return a, nil
	}
	return accounts.Account{}, accounts.ErrNotFound
}

func (f *fakeChart) Create(ctx context.Context, in accounts.CreateInput) (accounts.Account, error) {
	return f.add(in.Code, in.Category, in.IsLeaf), nil
}

func (f *fakeChart) ListLeaves(ctx context.Context, orgID int64, cats ...accounts.Category) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, a := range f.byCode {
		if !a.IsLeaf {
			continue
		}
		for _, c := range cats {
			if a.Category == c {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

// fakeBalances serves signed closings by account ID; sums, when set, carries
// full four-column results.
type fakeBalances struct {
	closings map[int64]decimal.Decimal
	sums     map[int64]balance.Balances
}

func (f *fakeBalances) AccountBalances(ctx context.Context, acct accounts.Account, from, to *time.Time) (balance.Balances, error) {
	if b, ok := f.sums[acct.ID]; ok {
		return b, nil
	}
	return balance.Balances{Closing: f.closings[acct.ID]}, nil
}

type fakeJournal struct {
	created []journal.EntryInput
}

func (f *fakeJournal) CreateEntry(ctx context.Context, in journal.EntryInput) (journal.Entry, error) {
	if err := in.Validate(); err != nil {
		return journal.Entry{}, err
	}
	f.created = append(f.created, in)
	e := journal.Entry{ID: int64(len(f.created)), OrgID: in.OrgID, Date: in.Date, Status: journal.StatusConfirmed}
	for _, l := range in.Lines {
		e.Lines = append(e.Lines, journal.Line{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit})
	}
	return e, nil
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fakeIdem struct {
	keys map[string]bool
}

func (f *fakeIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdem) Delete(ctx context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

func fixture() (*Service, *fakeChart, *fakeBalances, *fakeJournal) {
	chart := newFakeChart()
	bal := &fakeBalances{closings: map[int64]decimal.Decimal{}}
	jrn := &fakeJournal{}
	return NewService(chart, bal, jrn, &fakeIdem{keys: map[string]bool{}}), chart, bal, jrn
}

func TestBalanceSheetBalanced(t *testing.T) {
	svc, chart, bal, _ := fixture()
	cash := chart.add("1.1.02", accounts.CategoryAsset, true)
	payable := chart.add("2.1", accounts.CategoryLiability, true)
	capital := chart.add("3.1", accounts.CategoryEquity, true)
	sales := chart.add("4.1", accounts.CategoryRevenue, true)
	rent := chart.add("6.1", accounts.CategoryExpense, true)

	bal.closings[cash.ID] = dec(1000)
	bal.closings[payable.ID] = dec(200)
	bal.closings[capital.ID] = dec(300)
	bal.closings[sales.ID] = dec(800)
	bal.closings[rent.ID] = dec(300)

	bs, err := svc.BalanceSheet(context.Background(), 1, time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, bs.Assets.Total.Equal(dec(1000)))
	require.True(t, bs.Liabilities.Total.Equal(dec(200)))
	require.True(t, bs.Equity.Total.Equal(dec(300)))
	require.True(t, bs.NetIncome.Equal(dec(500)))
	require.True(t, bs.Balanced)
}

func TestBalanceSheetDetectsImbalance(t *testing.T) {
	svc, chart, bal, _ := fixture()
	cash := chart.add("1.1.02", accounts.CategoryAsset, true)
	capital := chart.add("3.1", accounts.CategoryEquity, true)

	bal.closings[cash.ID] = dec(1000)
	bal.closings[capital.ID] = dec(999)

	bs, err := svc.BalanceSheet(context.Background(), 1, time.Now())
	require.NoError(t, err)
	require.False(t, bs.Balanced)
}

func TestBalanceSheetIncludesDeactivatedAccounts(t *testing.T) {
	svc, chart, bal, _ := fixture()
	cash := chart.add("1.1.02", accounts.CategoryAsset, true)
	retired := chart.add("1.1.09", accounts.CategoryAsset, true)
	capital := chart.add("3.1", accounts.CategoryEquity, true)
	chart.deactivate("1.1.09")

	bal.closings[cash.ID] = dec(600)
	bal.closings[retired.ID] = dec(400)
	bal.closings[capital.ID] = dec(1000)

	bs, err := svc.BalanceSheet(context.Background(), 1, time.Now())
	require.NoError(t, err)
	require.Len(t, bs.Assets.Lines, 2)
	require.True(t, bs.Assets.Total.Equal(dec(1000)))
	require.True(t, bs.Balanced)
}

func TestBalanceSheetOmitsZeroAccounts(t *testing.T) {
	svc, chart, bal, _ := fixture()
	cash := chart.add("1.1.02", accounts.CategoryAsset, true)
	chart.add("1.1.03", accounts.CategoryAsset, true)
	bal.closings[cash.ID] = dec(100)

	bs, err := svc.BalanceSheet(context.Background(), 1, time.Now())
	require.NoError(t, err)
	require.Len(t, bs.Assets.Lines, 1)
	require.Equal(t, "1.1.02", bs.Assets.Lines[0].Code)
}

func TestIncomeStatement(t *testing.T) {
	svc, chart, bal, _ := fixture()
	sales := chart.add("4.1", accounts.CategoryRevenue, true)
	cogs := chart.add("5.1", accounts.CategoryCost, true)
	rent := chart.add("6.1", accounts.CategoryExpense, true)

	bal.closings[sales.ID] = dec(1000)
	bal.closings[cogs.ID] = dec(400)
	bal.closings[rent.ID] = dec(250)

	from := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)
	is, err := svc.IncomeStatement(context.Background(), 1, from, to)
	require.NoError(t, err)
	require.True(t, is.GrossProfit.Equal(dec(600)))
	require.True(t, is.NetIncome.Equal(dec(350)))
}

func TestTrialBalance(t *testing.T) {
	svc, chart, bal, _ := fixture()
	cash := chart.add("1.1.02", accounts.CategoryAsset, true)
	bank := chart.add("1.1.03", accounts.CategoryAsset, true)
	capital := chart.add("3.1", accounts.CategoryEquity, true)
	chart.add("6.1", accounts.CategoryExpense, true)

	bal.sums = map[int64]balance.Balances{
		cash.ID:    {Debit: dec(600), Closing: dec(600)},
		bank.ID:    {Credit: dec(100), Closing: dec(-100)},
		capital.ID: {Credit: dec(500), Closing: dec(500)},
	}

	from := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)
	tb, err := svc.TrialBalance(context.Background(), 1, from, to)
	require.NoError(t, err)

	// The untouched expense account is omitted.
	require.Len(t, tb.Rows, 3)
	require.Equal(t, "1.1.02", tb.Rows[0].Code)

	// The overdrawn bank flips to the creditor column.
	require.Equal(t, "1.1.03", tb.Rows[1].Code)
	require.True(t, tb.Rows[1].CreditorBalance.Equal(dec(100)))
	require.True(t, tb.Rows[1].DebtorBalance.IsZero())

	require.True(t, tb.TotalDebit.Equal(dec(600)))
	require.True(t, tb.TotalCredit.Equal(dec(600)))
	require.True(t, tb.TotalDebtor.Equal(dec(600)))
	require.True(t, tb.TotalCreditor.Equal(dec(600)))
	require.True(t, tb.Balanced)
}

func TestTrialBalanceDetectsImbalance(t *testing.T) {
	svc, chart, bal, _ := fixture()
	cash := chart.add("1.1.02", accounts.CategoryAsset, true)
	bal.sums = map[int64]balance.Balances{
		cash.ID: {Debit: dec(100), Closing: dec(100)},
	}

	tb, err := svc.TrialBalance(context.Background(), 1,
		time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.False(t, tb.Balanced)
}

func TestGenerateClosingEntry(t *testing.T) {
	svc, chart, bal, jrn := fixture()
	chart.add("3", accounts.CategoryEquity, false)
	retained := chart.add("3.2", accounts.CategoryEquity, true)
	sales := chart.add("4.1", accounts.CategoryRevenue, true)
	rent := chart.add("6.1", accounts.CategoryExpense, true)

	bal.closings[sales.ID] = dec(800)
	bal.closings[rent.ID] = dec(300)

	from := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC)
	entry, err := svc.GenerateClosingEntry(context.Background(), 1, from, to, 7)
	require.NoError(t, err)
	require.True(t, entry.Balanced())

	byAccount := map[int64]journal.Line{}
	for _, l := range entry.Lines {
		byAccount[l.AccountID] = l
	}
	// Revenue closes with a debit, the expense with a credit, and the net
	// lands on retained earnings.
	require.True(t, byAccount[sales.ID].Debit.Equal(dec(800)))
	require.True(t, byAccount[rent.ID].Credit.Equal(dec(300)))
	require.True(t, byAccount[retained.ID].Credit.Equal(dec(500)))

	require.Len(t, jrn.created, 1)
	require.True(t, jrn.created[0].AutoConfirm)
	require.Equal(t, "closing", jrn.created[0].SourceModule)
}

func TestGenerateClosingEntryCreatesRetainedEarnings(t *testing.T) {
	svc, chart, bal, _ := fixture()
	sales := chart.add("4.1", accounts.CategoryRevenue, true)
	bal.closings[sales.ID] = dec(100)

	_, err := svc.GenerateClosingEntry(context.Background(), 1,
		time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC), 7)
	require.NoError(t, err)

	retained, err := chart.Get(context.Background(), 1, "3.2")
	require.NoError(t, err)
	require.Equal(t, accounts.CategoryEquity, retained.Category)
	require.True(t, retained.IsLeaf)

	root, err := chart.Get(context.Background(), 1, "3")
	require.NoError(t, err)
	require.False(t, root.IsLeaf)
}

func TestGenerateClosingEntryOncePerYear(t *testing.T) {
	svc, chart, bal, _ := fixture()
	sales := chart.add("4.1", accounts.CategoryRevenue, true)
	bal.closings[sales.ID] = dec(100)

	from := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC)
	_, err := svc.GenerateClosingEntry(context.Background(), 1, from, to, 7)
	require.NoError(t, err)

	_, err = svc.GenerateClosingEntry(context.Background(), 1, from, to, 7)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestGenerateClosingEntryRetryAfterFailure(t *testing.T) {
	svc, chart, _, _ := fixture()
	chart.add("4.1", accounts.CategoryRevenue, true)

	from := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC)
	// Nothing to close fails the attempt and releases the key for a retry.
	_, err := svc.GenerateClosingEntry(context.Background(), 1, from, to, 7)
	require.ErrorIs(t, err, ErrNothingToClose)
	_, err = svc.GenerateClosingEntry(context.Background(), 1, from, to, 7)
	require.ErrorIs(t, err, ErrNothingToClose)
}

func TestGenerateClosingEntryNothingToClose(t *testing.T) {
	svc, chart, _, _ := fixture()
	chart.add("4.1", accounts.CategoryRevenue, true)

	_, err := svc.GenerateClosingEntry(context.Background(), 1,
		time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC), 7)
	require.ErrorIs(t, err, ErrNothingToClose)
}

func TestFormatterAmount(t *testing.T) {
	f := NewFormatter("en")
	require.Equal(t, "1,234,567.89", f.Amount(decimal.RequireFromString("1234567.89")))

	// Unknown locales fall back to English.
	f = NewFormatter("not-a-locale")
	require.Equal(t, "1,000.00", f.Amount(dec(1000)))
}

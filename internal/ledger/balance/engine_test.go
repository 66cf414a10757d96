package balance

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/quipu-ledger/quipu/internal/ledger/accounts"
)

// fakeSource serves canned sums: the opening read is the only query with an
// unbounded start and a bounded end when the engine was given a from date.
type fakeSource struct {
	opening Sums
	period  Sums
	queries []Query
}

func (f *fakeSource) Sums(ctx context.Context, q Query) (Sums, error) {
	f.queries = append(f.queries, q)
	if q.From == nil && q.To != nil {
		return f.opening, nil
	}
	return f.period, nil
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func debitAccount() accounts.Account {
	return accounts.Account{ID: 10, OrgID: 1, Code: "1.1.02", Category: accounts.CategoryAsset,
		Normal: accounts.NormalDebit, IsLeaf: true, IsActive: true}
}

func creditAccount() accounts.Account {
	return accounts.Account{ID: 20, OrgID: 1, Code: "4.1", Category: accounts.CategoryRevenue,
		Normal: accounts.NormalCredit, IsLeaf: true, IsActive: true}
}

func TestDebitNormalSigning(t *testing.T) {
	src := &fakeSource{
		opening: Sums{Debit: dec(500), Credit: dec(200)},
		period:  Sums{Debit: dec(1000), Credit: dec(300)},
	}
	engine := NewEngine(src)
	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)

	b, err := engine.AccountBalances(context.Background(), debitAccount(), &from, &to)
	require.NoError(t, err)
	require.True(t, b.Opening.Equal(dec(300)), "opening %s", b.Opening)
	require.True(t, b.Debit.Equal(dec(1000)))
	require.True(t, b.Credit.Equal(dec(300)))
	require.True(t, b.Closing.Equal(dec(1000)), "closing %s", b.Closing)
}

func TestCreditNormalSigning(t *testing.T) {
	src := &fakeSource{
		opening: Sums{Debit: dec(100), Credit: dec(400)},
		period:  Sums{Debit: dec(50), Credit: dec(800)},
	}
	engine := NewEngine(src)
	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)

	b, err := engine.AccountBalances(context.Background(), creditAccount(), &from, &to)
	require.NoError(t, err)
	require.True(t, b.Opening.Equal(dec(300)))
	require.True(t, b.Closing.Equal(dec(1050)), "closing %s", b.Closing)
}

func TestNilFromSkipsOpeningRead(t *testing.T) {
	src := &fakeSource{period: Sums{Debit: dec(100), Credit: dec(40)}}
	engine := NewEngine(src)

	b, err := engine.AccountBalances(context.Background(), debitAccount(), nil, nil)
	require.NoError(t, err)
	require.True(t, b.Opening.IsZero())
	require.True(t, b.Closing.Equal(dec(60)))
	require.Len(t, src.queries, 1)
}

func TestLeafQueriesByID(t *testing.T) {
	src := &fakeSource{}
	engine := NewEngine(src)

	_, err := engine.AccountBalances(context.Background(), debitAccount(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(10), src.queries[0].AccountID)
	require.Empty(t, src.queries[0].CodePrefix)
}

func TestSummaryQueriesByCodePrefix(t *testing.T) {
	src := &fakeSource{}
	engine := NewEngine(src)
	summary := accounts.Account{ID: 1, OrgID: 1, Code: "1.1", Category: accounts.CategoryAsset,
		Normal: accounts.NormalDebit, IsLeaf: false, IsActive: true}

	_, err := engine.AccountBalances(context.Background(), summary, nil, nil)
	require.NoError(t, err)
	require.Zero(t, src.queries[0].AccountID)
	require.Equal(t, "1.1", src.queries[0].CodePrefix)
}

func TestOpeningWindowEndsBeforePeriod(t *testing.T) {
	src := &fakeSource{}
	engine := NewEngine(src)
	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)

	_, err := engine.AccountBalances(context.Background(), debitAccount(), &from, &to)
	require.NoError(t, err)
	require.Len(t, src.queries, 2)

	opening := src.queries[0]
	require.Nil(t, opening.From)
	require.Equal(t, time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC), *opening.To)

	period := src.queries[1]
	require.Equal(t, from, *period.From)
	require.Equal(t, to, *period.To)
}

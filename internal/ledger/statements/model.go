package statements

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatementLine is one account row inside a statement section.
type StatementLine struct {
	Code   string
	Name   string
	Amount decimal.Decimal
}

// Section groups statement lines under a heading with their total.
type Section struct {
	Title string
	Lines []StatementLine
	Total decimal.Decimal
}

// BalanceSheet is the position statement as of a date. Balanced reports
// whether assets equal liabilities plus equity plus period net income; a
// false value signals corrupted postings and is surfaced, never hidden.
type BalanceSheet struct {
	OrgID       int64
	AsOf        time.Time
	Assets      Section
	Liabilities Section
	Equity      Section
	NetIncome   decimal.Decimal
	Balanced    bool
}

// IncomeStatement is the performance statement over a date range.
type IncomeStatement struct {
	OrgID       int64
	From        time.Time
	To          time.Time
	Revenue     Section
	Cost        Section
	Expenses    Section
	GrossProfit decimal.Decimal
	NetIncome   decimal.Decimal
}

// TrialBalanceRow is one leaf account on the trial balance: period turnover
// plus the closing balance folded onto its debtor or creditor side.
type TrialBalanceRow struct {
	Code            string
	Name            string
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	DebtorBalance   decimal.Decimal
	CreditorBalance decimal.Decimal
}

// TrialBalance is the arithmetic cross-check of the ledger over [From, To]:
// turnover debits pair off against credits, debtor balances against creditor
// balances. Balanced false signals corrupted postings.
type TrialBalance struct {
	OrgID         int64
	From          time.Time
	To            time.Time
	Rows          []TrialBalanceRow
	TotalDebit    decimal.Decimal
	TotalCredit   decimal.Decimal
	TotalDebtor   decimal.Decimal
	TotalCreditor decimal.Decimal
	Balanced      bool
}

func sum(lines []StatementLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

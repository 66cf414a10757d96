package kardex

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ReportRow is one card line with its running balance columns.
type ReportRow struct {
	Date         time.Time
	Type         MovementType
	Reference    string
	Qty          decimal.Decimal
	UnitCost     decimal.Decimal
	TotalCost    decimal.Decimal
	BalanceQty   decimal.Decimal
	BalanceAvg   decimal.Decimal
	BalanceValue decimal.Decimal
}

// Report is the kardex card of one item over a date range.
type Report struct {
	Item         Item
	From         time.Time
	To           time.Time
	OpeningQty   decimal.Decimal
	OpeningValue decimal.Decimal
	InQty        decimal.Decimal
	OutQty       decimal.Decimal
	Rows         []ReportRow
	ClosingQty   decimal.Decimal
	ClosingValue decimal.Decimal
}

// Report builds the card for one item over [from, to]. Opening state is
// reconstructed from the snapshot on the last movement before the range.
func (s *Service) Report(ctx context.Context, orgID int64, sku string, from, to time.Time) (Report, error) {
	item, err := s.repo.GetItem(ctx, orgID, sku)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Item: item, From: from, To: to}

	// Movements from the dawn of time through `to`; the pre-range tail gives
	// the opening snapshot.
	all, err := s.repo.ListMovements(ctx, orgID, sku, time.Time{}, to)
	if err != nil {
		return Report{}, err
	}
	for _, m := range all {
		if m.Date.Before(from) {
			rep.OpeningQty = m.BalanceQty
			rep.OpeningValue = m.BalanceValue()
			continue
		}
		if m.Type.Inbound() {
			rep.InQty = rep.InQty.Add(m.Qty)
		} else {
			rep.OutQty = rep.OutQty.Add(m.Qty)
		}
		rep.Rows = append(rep.Rows, ReportRow{
			Date:         m.Date,
			Type:         m.Type,
			Reference:    m.Reference,
			Qty:          m.Qty,
			UnitCost:     m.UnitCost,
			TotalCost:    m.TotalCost(),
			BalanceQty:   m.BalanceQty,
			BalanceAvg:   m.BalanceAvg,
			BalanceValue: m.BalanceValue(),
		})
	}

	if len(rep.Rows) > 0 {
		last := rep.Rows[len(rep.Rows)-1]
		rep.ClosingQty = last.BalanceQty
		rep.ClosingValue = last.BalanceValue
	} else {
		rep.ClosingQty = rep.OpeningQty
		rep.ClosingValue = rep.OpeningValue
	}
	return rep, nil
}

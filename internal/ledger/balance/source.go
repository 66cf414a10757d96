package balance

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type pgSource struct {
	db *pgxpool.Pool
}

// NewSource returns a pgx-backed sum source over confirmed journal lines.
func NewSource(db *pgxpool.Pool) Source {
	return &pgSource{db: db}
}

// Sums aggregates confirmed original entries only: voided entries drop out by
// status, and their generated reversals drop out via reverses_id, so the two
// cancel without double-counting turnover.
func (s *pgSource) Sums(ctx context.Context, q Query) (Sums, error) {
	sql := `SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
JOIN accounts a ON a.id = l.account_id
WHERE e.org_id = $1 AND e.status = 'CONFIRMED' AND e.reverses_id IS NULL`
	args := []any{q.OrgID}

	switch {
	case q.AccountID != 0:
		args = append(args, q.AccountID)
		sql += fmt.Sprintf(" AND l.account_id = $%d", len(args))
	case q.CodePrefix != "":
		// Segment-boundary match: summary "1" covers "1.1" but not "11".
		args = append(args, q.CodePrefix)
		sql += fmt.Sprintf(" AND (a.code = $%d OR a.code LIKE $%d || '.%%')", len(args), len(args))
	}
	if q.From != nil {
		args = append(args, *q.From)
		sql += fmt.Sprintf(" AND e.date >= $%d", len(args))
	}
	if q.To != nil {
		args = append(args, *q.To)
		sql += fmt.Sprintf(" AND e.date <= $%d", len(args))
	}

	var sums Sums
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&sums.Debit, &sums.Credit); err != nil {
		return Sums{}, err
	}
	return sums, nil
}

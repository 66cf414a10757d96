package journal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quipu-ledger/quipu/internal/ledger/accounts"
	"github.com/quipu-ledger/quipu/internal/ledger/periods"
	"github.com/quipu-ledger/quipu/internal/platform/db"
)

// PostingAccount bundles an account with the child check needed on the
// posting path.
type PostingAccount struct {
	accounts.Account
	HasChildren bool
}

// Repository encapsulates DB operations for journal entries.
type Repository interface {
	List(ctx context.Context, orgID int64) ([]Entry, error)
	Get(ctx context.Context, orgID, entryID int64) (Entry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	NextNumber(ctx context.Context, orgID int64) (int64, error)
	InsertEntry(ctx context.Context, e Entry) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []Line) error
	GetEntryForUpdate(ctx context.Context, orgID, entryID int64) (Entry, error)
	GetLines(ctx context.Context, entryID int64) ([]Line, error)
	UpdateStatus(ctx context.Context, entryID int64, status Status, reason string) error
	SetVoidLink(ctx context.Context, originalID, reversalID int64) error

	// Period and account lookups needed inside the posting transaction.
	FindPeriodForDate(ctx context.Context, orgID int64, date time.Time) (periods.Period, error)
	PostingAccounts(ctx context.Context, orgID int64, accountIDs []int64) (map[int64]PostingAccount, error)
}

const entryColumns = `id, org_id, number, date, description, status, source_module, source_ref, created_by, voided_by_id, reverses_id, void_reason, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.OrgID, &e.Number, &e.Date, &e.Description, &e.Status, &e.SourceModule, &e.SourceRef,
		&e.CreatedBy, &e.VoidedByID, &e.ReversesID, &e.VoidReason, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *repository) List(ctx context.Context, orgID int64) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE org_id=$1 ORDER BY number DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OrgID, &e.Number, &e.Date, &e.Description, &e.Status, &e.SourceModule, &e.SourceRef,
			&e.CreatedBy, &e.VoidedByID, &e.ReversesID, &e.VoidReason, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) Get(ctx context.Context, orgID, entryID int64) (Entry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE org_id=$1 AND id=$2`, orgID, entryID))
	if err != nil {
		return Entry{}, err
	}
	lines, err := queryLines(ctx, r.db, entryID)
	if err != nil {
		return Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an existing transaction so another module (the kardex)
// can post entries inside its own atomic boundary.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// NextNumber increments the per-organization entry counter inside the posting
// transaction, so numbering stays gapless under concurrency.
func (r *txRepository) NextNumber(ctx context.Context, orgID int64) (int64, error) {
	var number int64
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_counters (org_id, last_number) VALUES ($1, 1)
ON CONFLICT (org_id) DO UPDATE SET last_number = journal_counters.last_number + 1
RETURNING last_number`, orgID).Scan(&number)
	return number, err
}

func (r *txRepository) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (org_id, number, date, description, status, source_module, source_ref, created_by, reverses_id, void_reason)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at, updated_at`,
		e.OrgID, e.Number, e.Date, e.Description, e.Status, e.SourceModule, e.SourceRef, e.CreatedBy, e.ReversesID, e.VoidReason)
	if err := row.Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journal_entries_source" {
			return Entry{}, ErrSourceConflict
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []Line) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_id, memo, debit, credit, party_id)
VALUES ($1,$2,$3,$4,$5,$6)`, entryID, line.AccountID, line.Memo, line.Debit, line.Credit, line.PartyID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, orgID, entryID int64) (Entry, error) {
	return scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, entryID))
}

func (r *txRepository) GetLines(ctx context.Context, entryID int64) ([]Line, error) {
	return queryLines(ctx, r.tx, entryID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, entryID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, memo, debit, credit, party_id, created_at
FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Memo, &line.Debit, &line.Credit, &line.PartyID, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) UpdateStatus(ctx context.Context, entryID int64, status Status, reason string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, void_reason=COALESCE(NULLIF($3,''), void_reason), updated_at=NOW() WHERE id=$1`, entryID, status, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) SetVoidLink(ctx context.Context, originalID, reversalID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET voided_by_id=$2, updated_at=NOW() WHERE id=$1`, originalID, reversalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) FindPeriodForDate(ctx context.Context, orgID int64, date time.Time) (periods.Period, error) {
	var p periods.Period
	var month int
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, year, month, status, closed_by, closed_at, locked_by, locked_at, created_at, updated_at
FROM accounting_periods WHERE org_id=$1 AND year=$2 AND month=$3 FOR SHARE`, orgID, date.Year(), int(date.Month())).
		Scan(&p.ID, &p.OrgID, &p.Year, &month, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.LockedBy, &p.LockedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, periods.ErrNotFound
		}
		return periods.Period{}, err
	}
	p.Month = time.Month(month)
	return p, nil
}

func (r *txRepository) PostingAccounts(ctx context.Context, orgID int64, accountIDs []int64) (map[int64]PostingAccount, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.id, a.org_id, a.code, a.name, a.category, a.normal_balance, a.is_leaf, a.is_active, a.is_cash_equivalent, a.parent_id, a.created_at, a.updated_at,
EXISTS(SELECT 1 FROM accounts c WHERE c.parent_id = a.id) AS has_children
FROM accounts a WHERE a.org_id=$1 AND a.id = ANY($2)`, orgID, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	resolved := make(map[int64]PostingAccount, len(accountIDs))
	for rows.Next() {
		var pa PostingAccount
		if err := rows.Scan(&pa.ID, &pa.OrgID, &pa.Code, &pa.Name, &pa.Category, &pa.Normal, &pa.IsLeaf, &pa.IsActive,
			&pa.IsCashEquivalent, &pa.ParentID, &pa.CreatedAt, &pa.UpdatedAt, &pa.HasChildren); err != nil {
			return nil, err
		}
		resolved[pa.ID] = pa
	}
	return resolved, rows.Err()
}

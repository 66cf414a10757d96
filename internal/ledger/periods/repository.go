package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quipu-ledger/quipu/internal/platform/db"
)

// ErrNotFound indicates a missing period.
var ErrNotFound = errors.New("periods: period not found")

// ErrExists indicates the (org, year, month) period already exists.
var ErrExists = errors.New("periods: period already exists")

// Repository encapsulates DB operations for accounting periods.
type Repository interface {
	Find(ctx context.Context, orgID int64, year int, month time.Month) (Period, error)
	List(ctx context.Context, orgID int64, year int) ([]Period, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, orgID int64, year int, month time.Month) (Period, error)
	Insert(ctx context.Context, p Period) (Period, error)
	UpdateStatus(ctx context.Context, id int64, status Status, actorID int64, at time.Time) error
	CountDraftEntries(ctx context.Context, orgID int64, from, to time.Time) (int64, error)
}

const periodColumns = `id, org_id, year, month, status, closed_by, closed_at, locked_by, locked_at, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var month int
	err := row.Scan(&p.ID, &p.OrgID, &p.Year, &month, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.LockedBy, &p.LockedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrNotFound
		}
		return Period{}, err
	}
	p.Month = time.Month(month)
	return p, nil
}

func (r *repository) Find(ctx context.Context, orgID int64, year int, month time.Month) (Period, error) {
	return scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE org_id=$1 AND year=$2 AND month=$3`, orgID, year, int(month)))
}

func (r *repository) List(ctx context.Context, orgID int64, year int) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE org_id=$1 AND year=$2 ORDER BY month`, orgID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		var p Period
		var month int
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Year, &month, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.LockedBy, &p.LockedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Month = time.Month(month)
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, orgID int64, year int, month time.Month) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE org_id=$1 AND year=$2 AND month=$3 FOR UPDATE`, orgID, year, int(month)))
}

func (r *txRepository) Insert(ctx context.Context, p Period) (Period, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounting_periods (org_id, year, month, status) VALUES ($1,$2,$3,$4) RETURNING id, created_at, updated_at`,
		p.OrgID, p.Year, int(p.Month), p.Status)
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Period{}, ErrExists
		}
		return Period{}, err
	}
	return p, nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, actorID int64, at time.Time) error {
	var query string
	switch status {
	case StatusClosed:
		query = `UPDATE accounting_periods SET status=$2, closed_by=$3, closed_at=$4, updated_at=NOW() WHERE id=$1`
	case StatusLocked:
		query = `UPDATE accounting_periods SET status=$2, locked_by=$3, locked_at=$4, updated_at=NOW() WHERE id=$1`
	default:
		query = `UPDATE accounting_periods SET status=$2, closed_by=NULL, closed_at=NULL, updated_at=NOW() WHERE id=$1`
		cmd, err := r.tx.Exec(ctx, query, id, status)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	}
	cmd, err := r.tx.Exec(ctx, query, id, status, actorID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) CountDraftEntries(ctx context.Context, orgID int64, from, to time.Time) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE org_id=$1 AND status='DRAFT' AND date BETWEEN $2 AND $3`, orgID, from, to).Scan(&count)
	return count, err
}

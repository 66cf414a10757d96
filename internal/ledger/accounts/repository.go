package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quipu-ledger/quipu/internal/platform/db"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	Get(ctx context.Context, orgID int64, code string) (Account, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	List(ctx context.Context, orgID int64) ([]Account, error)
	ListLeaves(ctx context.Context, orgID int64, cats ...Category) ([]Account, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, orgID int64, code string) (Account, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	Insert(ctx context.Context, a Account) (Account, error)
	UpdateParent(ctx context.Context, id int64, parentID *int64) error
	SetActive(ctx context.Context, id int64, active bool) error
	SetLeaf(ctx context.Context, id int64, leaf bool) error
	HasChildren(ctx context.Context, id int64) (bool, error)
	HasPostings(ctx context.Context, id int64) (bool, error)
}

const accountColumns = `id, org_id, code, name, category, normal_balance, is_leaf, is_active, is_cash_equivalent, parent_id, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &a.Category, &a.Normal, &a.IsLeaf, &a.IsActive, &a.IsCashEquivalent, &a.ParentID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) Get(ctx context.Context, orgID int64, code string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE org_id=$1 AND code=$2`, orgID, code))
}

func (r *repository) GetByID(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *repository) List(ctx context.Context, orgID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE org_id=$1 ORDER BY code`, orgID)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *repository) ListLeaves(ctx context.Context, orgID int64, cats ...Category) ([]Account, error) {
	catStrings := make([]string, 0, len(cats))
	for _, c := range cats {
		catStrings = append(catStrings, string(c))
	}
	// Deactivated leaves stay listed: an account retired with postings keeps
	// its balance, and reports that skipped it would no longer add up. The
	// active gate applies only when resolving posting targets.
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE org_id=$1 AND is_leaf AND category = ANY($2) ORDER BY code`, orgID, catStrings)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &a.Category, &a.Normal, &a.IsLeaf, &a.IsActive, &a.IsCashEquivalent, &a.ParentID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an existing transaction, for callers that own the tx boundary.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetForUpdate(ctx context.Context, orgID int64, code string) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE org_id=$1 AND code=$2 FOR UPDATE`, orgID, code))
}

func (r *txRepository) GetByID(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *txRepository) Insert(ctx context.Context, a Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (org_id, code, name, category, normal_balance, is_leaf, is_active, is_cash_equivalent, parent_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at, updated_at`,
		a.OrgID, a.Code, a.Name, a.Category, a.Normal, a.IsLeaf, a.IsActive, a.IsCashEquivalent, a.ParentID)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrCodeTaken
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) UpdateParent(ctx context.Context, id int64, parentID *int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET parent_id=$2, updated_at=NOW() WHERE id=$1`, id, parentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SetActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SetLeaf(ctx context.Context, id int64, leaf bool) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET is_leaf=$2, updated_at=NOW() WHERE id=$1`, id, leaf)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) HasChildren(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE parent_id=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *txRepository) HasPostings(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM journal_lines WHERE account_id=$1)`, id).Scan(&exists)
	return exists, err
}

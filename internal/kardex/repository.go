package kardex

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quipu-ledger/quipu/internal/ledger/journal"
	"github.com/quipu-ledger/quipu/internal/platform/db"
)

// Repository encapsulates DB operations for items and movements.
type Repository interface {
	GetItem(ctx context.Context, orgID int64, sku string) (Item, error)
	ListItems(ctx context.Context, orgID int64) ([]Item, error)
	ListMovements(ctx context.Context, orgID int64, sku string, from, to time.Time) ([]Movement, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a movement transaction.
// Journal returns a journal repository bound to the same transaction, so the
// movement and its generated entry commit or roll back together.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, orgID int64, sku string) (Item, error)
	GetItemByIDForUpdate(ctx context.Context, itemID int64) (Item, error)
	InsertItem(ctx context.Context, item Item) (Item, error)
	UpdateItemRunning(ctx context.Context, itemID int64, qty, avgCost decimal.Decimal) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	LatestMovementForUpdate(ctx context.Context, itemID int64) (Movement, error)
	GetMovement(ctx context.Context, orgID, movementID int64) (Movement, error)
	DeleteMovement(ctx context.Context, movementID int64) error
	Journal() journal.TxRepository
}

const itemColumns = `id, org_id, sku, name, unit, method, inventory_account_id, cogs_account_id, qty, avg_cost, created_at, updated_at`

const movementColumns = `id, item_id, org_id, type, date, reference, source_ref, qty, unit_cost, entry_id, balance_qty, balance_avg, created_by, created_at`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.OrgID, &it.SKU, &it.Name, &it.Unit, &it.Method, &it.InventoryAccountID,
		&it.COGSAccountID, &it.Qty, &it.AvgCost, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return it, nil
}

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.ItemID, &m.OrgID, &m.Type, &m.Date, &m.Reference, &m.SourceRef,
		&m.Qty, &m.UnitCost, &m.EntryID, &m.BalanceQty, &m.BalanceAvg, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrMovementNotFound
		}
		return Movement{}, err
	}
	return m, nil
}

func (r *repository) GetItem(ctx context.Context, orgID int64, sku string) (Item, error) {
	return scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE org_id=$1 AND sku=$2`, orgID, sku))
}

func (r *repository) ListItems(ctx context.Context, orgID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE org_id=$1 ORDER BY sku ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrgID, &it.SKU, &it.Name, &it.Unit, &it.Method, &it.InventoryAccountID,
			&it.COGSAccountID, &it.Qty, &it.AvgCost, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) ListMovements(ctx context.Context, orgID int64, sku string, from, to time.Time) ([]Movement, error) {
	rows, err := r.db.Query(ctx, `SELECT m.id, m.item_id, m.org_id, m.type, m.date, m.reference, m.source_ref, m.qty, m.unit_cost, m.entry_id, m.balance_qty, m.balance_avg, m.created_by, m.created_at
FROM stock_movements m
JOIN stock_items i ON i.id = m.item_id
WHERE m.org_id=$1 AND i.sku=$2 AND m.date >= $3 AND m.date <= $4
ORDER BY m.id ASC`, orgID, sku, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.OrgID, &m.Type, &m.Date, &m.Reference, &m.SourceRef,
			&m.Qty, &m.UnitCost, &m.EntryID, &m.BalanceQty, &m.BalanceAvg, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Journal() journal.TxRepository {
	return journal.NewTxRepository(r.tx)
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, orgID int64, sku string) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE org_id=$1 AND sku=$2 FOR UPDATE`, orgID, sku))
}

func (r *txRepository) GetItemByIDForUpdate(ctx context.Context, itemID int64) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id=$1 FOR UPDATE`, itemID))
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) (Item, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO stock_items (org_id, sku, name, unit, method, inventory_account_id, cogs_account_id, qty, avg_cost)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at, updated_at`,
		item.OrgID, item.SKU, item.Name, item.Unit, item.Method, item.InventoryAccountID, item.COGSAccountID, item.Qty, item.AvgCost)
	if err := row.Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Item{}, ErrSKUTaken
		}
		return Item{}, err
	}
	return item, nil
}

func (r *txRepository) UpdateItemRunning(ctx context.Context, itemID int64, qty, avgCost decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE stock_items SET qty=$2, avg_cost=$3, updated_at=NOW() WHERE id=$1`, itemID, qty, avgCost)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (item_id, org_id, type, date, reference, source_ref, qty, unit_cost, entry_id, balance_qty, balance_avg, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id, created_at`,
		m.ItemID, m.OrgID, m.Type, m.Date, m.Reference, m.SourceRef, m.Qty, m.UnitCost, m.EntryID, m.BalanceQty, m.BalanceAvg, m.CreatedBy)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Movement{}, ErrDuplicateMovement
		}
		return Movement{}, err
	}
	return m, nil
}

func (r *txRepository) LatestMovementForUpdate(ctx context.Context, itemID int64) (Movement, error) {
	return scanMovement(r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE item_id=$1 ORDER BY id DESC LIMIT 1 FOR UPDATE`, itemID))
}

func (r *txRepository) GetMovement(ctx context.Context, orgID, movementID int64) (Movement, error) {
	return scanMovement(r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE org_id=$1 AND id=$2`, orgID, movementID))
}

func (r *txRepository) DeleteMovement(ctx context.Context, movementID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM stock_movements WHERE id=$1`, movementID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMovementNotFound
	}
	return nil
}

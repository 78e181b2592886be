package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vantage-erp/vantage-erp/internal/ledger"
	"github.com/vantage-erp/vantage-erp/internal/platform/db"
)

// Repository persists inventory entities in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.lockTimeout, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, tenantID, itemID, warehouseID int64) (Balance, error) {
	var b Balance
	err := r.tx.QueryRow(ctx, `SELECT tenant_id, item_id, warehouse_id, on_hand, allocated, on_order, updated_at
FROM inventory_balances WHERE tenant_id=$1 AND item_id=$2 AND warehouse_id=$3 FOR UPDATE`,
		tenantID, itemID, warehouseID).
		Scan(&b.TenantID, &b.ItemID, &b.WarehouseID, &b.OnHand, &b.Allocated, &b.OnOrder, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, db.TranslateLockError(err)
	}
	return b, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_balances (tenant_id, item_id, warehouse_id, on_hand, allocated, on_order, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (tenant_id, item_id, warehouse_id)
DO UPDATE SET on_hand=EXCLUDED.on_hand, allocated=EXCLUDED.allocated, on_order=EXCLUDED.on_order, updated_at=EXCLUDED.updated_at`,
		balance.TenantID, balance.ItemID, balance.WarehouseID, balance.OnHand, balance.Allocated, balance.OnOrder, balance.UpdatedAt)
	return err
}

func (r *txRepository) InsertLayer(ctx context.Context, layer Layer) (Layer, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO inventory_layers (tenant_id, item_id, warehouse_id, received_at, original_qty, remaining_qty, unit_cost, depleted)
VALUES ($1,$2,$3,$4,$5,$6,$7,false) RETURNING id, created_at`,
		layer.TenantID, layer.ItemID, layer.WarehouseID, layer.ReceivedAt, layer.OriginalQty, layer.RemainingQty, layer.UnitCost)
	if err := row.Scan(&layer.ID, &layer.CreatedAt); err != nil {
		return Layer{}, err
	}
	return layer, nil
}

// ListOpenLayersForUpdate locks the undepleted layers for an item, oldest
// receipt first with the row id as tie-break so consumption order is total.
func (r *txRepository) ListOpenLayersForUpdate(ctx context.Context, tenantID, itemID, warehouseID int64) ([]Layer, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, item_id, warehouse_id, received_at, original_qty, remaining_qty, unit_cost, depleted, created_at
FROM inventory_layers
WHERE tenant_id=$1 AND item_id=$2 AND warehouse_id=$3 AND NOT depleted
ORDER BY received_at ASC, id ASC
FOR UPDATE`, tenantID, itemID, warehouseID)
	if err != nil {
		return nil, db.TranslateLockError(err)
	}
	defer rows.Close()
	var layers []Layer
	for rows.Next() {
		var l Layer
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ItemID, &l.WarehouseID, &l.ReceivedAt, &l.OriginalQty, &l.RemainingQty, &l.UnitCost, &l.Depleted, &l.CreatedAt); err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

func (r *txRepository) UpdateLayerRemaining(ctx context.Context, layerID int64, remaining decimal.Decimal, depleted bool) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE inventory_layers SET remaining_qty=$2, depleted=$3 WHERE id=$1`,
		layerID, remaining, depleted)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errors.New("inventory: layer not found")
	}
	return nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_transactions (tenant_id, tx_type, item_id, warehouse_id, quantity, unit_cost, entry_id, code, actor_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		txn.TenantID, txn.Type, txn.ItemID, txn.WarehouseID, txn.Quantity, txn.UnitCost, txn.EntryID, txn.Code, txn.ActorID, txn.OccurredAt).Scan(&id)
	return id, err
}

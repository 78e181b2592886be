package inventory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vantage-erp/vantage-erp/internal/ledger"
)

// RepositoryPort abstracts transactional repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside one atomic unit of
// work. Ledger() yields a ledger repository bound to the same transaction so
// journal postings commit or roll back with the stock mutation.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, tenantID, itemID, warehouseID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertLayer(ctx context.Context, layer Layer) (Layer, error)
	ListOpenLayersForUpdate(ctx context.Context, tenantID, itemID, warehouseID int64) ([]Layer, error)
	UpdateLayerRemaining(ctx context.Context, layerID int64, remaining decimal.Decimal, depleted bool) error
	InsertTransaction(ctx context.Context, txn Transaction) (int64, error)
	Ledger() ledger.TxRepository
}

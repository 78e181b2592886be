// Package inventory implements FIFO cost layer accounting: receipts create
// cost layers, shipments deplete them oldest-first, and every stock movement
// posts a balanced journal entry in the same transaction.
package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Layer is a cost lot created by one receipt. Remaining only ever decreases;
// layers are never deleted so the costing audit trail stays complete.
type Layer struct {
	ID           int64
	TenantID     int64
	ItemID       int64
	WarehouseID  int64
	ReceivedAt   time.Time
	OriginalQty  decimal.Decimal
	RemainingQty decimal.Decimal
	UnitCost     decimal.Decimal
	Depleted     bool
	CreatedAt    time.Time
}

// Balance summarises stock per item and warehouse.
type Balance struct {
	TenantID    int64
	ItemID      int64
	WarehouseID int64
	OnHand      decimal.Decimal
	Allocated   decimal.Decimal
	OnOrder     decimal.Decimal
	UpdatedAt   time.Time
}

// Available returns the quantity free for allocation.
func (b Balance) Available() decimal.Decimal {
	return b.OnHand.Sub(b.Allocated)
}

// TransactionType enumerates audit log event kinds.
type TransactionType string

const (
	TransactionReceipt  TransactionType = "RECEIPT"
	TransactionAllocate TransactionType = "ALLOCATE"
	TransactionIssue    TransactionType = "ISSUE"
)

// Transaction is one append-only audit row for a stock mutation.
type Transaction struct {
	ID          int64
	TenantID    int64
	Type        TransactionType
	ItemID      int64
	WarehouseID int64
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	EntryID     *int64
	Code        string
	ActorID     int64
	OccurredAt  time.Time
}

// AccountOverrides lets a caller pin the ledger accounts used by a stock
// operation; unset fields fall back to entity-level then tenant-default
// mappings.
type AccountOverrides struct {
	InventoryAccountID int64
	PayableAccountID   int64
	COGSAccountID      int64
}

// ReceiveInput describes a stock receipt.
type ReceiveInput struct {
	TenantID    int64
	ItemID      int64
	WarehouseID int64
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	VendorID    int64
	ReceivedAt  time.Time
	Code        string
	ActorID     int64
	Overrides   AccountOverrides
}

// AllocateInput describes a stock reservation.
type AllocateInput struct {
	TenantID    int64
	ItemID      int64
	WarehouseID int64
	Quantity    decimal.Decimal
	ActorID     int64
}

// ShipInput describes a shipment.
type ShipInput struct {
	TenantID    int64
	ItemID      int64
	WarehouseID int64
	Quantity    decimal.Decimal
	ShippedAt   time.Time
	Code        string
	ActorID     int64
	Overrides   AccountOverrides
}

// Consumption records how much one layer contributed to a shipment.
type Consumption struct {
	LayerID  int64
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
	Cost     decimal.Decimal
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrBalanceNotFound indicates a missing balance row.
	ErrBalanceNotFound = errors.New("inventory: balance not found")
)

// InsufficientAvailableError reports an allocation exceeding available stock.
type InsufficientAvailableError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientAvailableError) Error() string {
	return fmt.Sprintf("inventory: requested %s exceeds available %s",
		e.Requested.String(), e.Available.String())
}

// InsufficientStockError reports a shipment exceeding on-hand stock.
type InsufficientStockError struct {
	Requested decimal.Decimal
	OnHand    decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: requested %s exceeds on-hand %s",
		e.Requested.String(), e.OnHand.String())
}

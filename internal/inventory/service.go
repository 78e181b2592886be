package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vantage-erp/vantage-erp/internal/ledger"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// LedgerPoster creates and posts a balanced journal entry inside a
// caller-supplied ledger transaction. The dependency is one-directional: the
// costing service calls into the ledger, never the other way around.
type LedgerPoster interface {
	PostPreparedEntry(ctx context.Context, tx ledger.TxRepository, input ledger.CreateEntryInput) (ledger.JournalEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Mapping modules consulted when resolving posting accounts.
const (
	MappingInventoryAsset  = "INVENTORY_ASSET"
	MappingAccountsPayable = "ACCOUNTS_PAYABLE"
	MappingCOGS            = "COGS"
)

// Service coordinates FIFO costing operations. Every mutation runs in one
// repository transaction; the journal entry a receipt or shipment emits
// commits atomically with the layer and balance changes.
type Service struct {
	repo        RepositoryPort
	poster      LedgerPoster
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, poster LedgerPoster, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, poster: poster, audit: audit, idempotency: idem, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ReceiveResult reports the effects of a stock receipt.
type ReceiveResult struct {
	Layer   Layer
	Balance Balance
	Entry   ledger.JournalEntry
}

// ShipResult reports the effects of a shipment.
type ShipResult struct {
	Consumed  []Consumption
	TotalCOGS decimal.Decimal
	Balance   Balance
	Entry     ledger.JournalEntry
}

// ReceiveStock creates a new cost layer, raises the on-hand balance and
// posts the receipt journal (debit inventory asset, credit accounts payable)
// in one atomic unit of work.
func (s *Service) ReceiveStock(ctx context.Context, input ReceiveInput) (ReceiveResult, error) {
	if input.TenantID == 0 || input.ItemID == 0 || input.WarehouseID == 0 {
		return ReceiveResult{}, errors.New("inventory: tenant, item and warehouse required")
	}
	if !input.Quantity.IsPositive() {
		return ReceiveResult{}, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return ReceiveResult{}, ErrInvalidUnitCost
	}
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now().UTC()
	}

	inserted, key, err := s.claimIdempotency(ctx, TransactionReceipt, input.Code, input.TenantID, input.ItemID, input.WarehouseID)
	if err != nil {
		return ReceiveResult{}, err
	}

	var result ReceiveResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Balance row lock first, ledger rows second: consistent ordering
		// across receive and ship avoids lock-order inversion.
		balance, err := tx.GetBalanceForUpdate(ctx, input.TenantID, input.ItemID, input.WarehouseID)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		if errors.Is(err, ErrBalanceNotFound) {
			balance = Balance{TenantID: input.TenantID, ItemID: input.ItemID, WarehouseID: input.WarehouseID}
		}

		layer, err := tx.InsertLayer(ctx, Layer{
			TenantID:     input.TenantID,
			ItemID:       input.ItemID,
			WarehouseID:  input.WarehouseID,
			ReceivedAt:   receivedAt,
			OriginalQty:  input.Quantity,
			RemainingQty: input.Quantity,
			UnitCost:     input.UnitCost,
		})
		if err != nil {
			return err
		}

		balance.OnHand = balance.OnHand.Add(input.Quantity)
		balance.OnOrder = decimal.Max(balance.OnOrder.Sub(input.Quantity), decimal.Zero)
		balance.UpdatedAt = s.now().UTC()
		if err := tx.UpsertBalance(ctx, balance); err != nil {
			return err
		}

		amount := input.Quantity.Mul(input.UnitCost).Round(2)
		var entryID *int64
		if amount.IsPositive() {
			assetAccount, err := s.resolveAccount(ctx, tx, input.TenantID, input.Overrides.InventoryAccountID, MappingInventoryAsset, input.ItemID)
			if err != nil {
				return err
			}
			payableAccount, err := s.resolveAccount(ctx, tx, input.TenantID, input.Overrides.PayableAccountID, MappingAccountsPayable, input.ItemID)
			if err != nil {
				return err
			}
			entry, err := s.poster.PostPreparedEntry(ctx, tx.Ledger(), ledger.CreateEntryInput{
				TenantID:  input.TenantID,
				Date:      receivedAt,
				Memo:      fmt.Sprintf("Stock receipt item %d", input.ItemID),
				Type:      ledger.EntryTypeStandard,
				Reference: input.Code,
				Source:    ledger.SourceRef{Kind: ledger.SourceInventoryReceipt, ID: uuid.New()},
				Lines: []ledger.LineInput{
					{AccountID: assetAccount, Description: "Inventory received", Debit: amount},
					{AccountID: payableAccount, Description: "Vendor payable", Credit: amount},
				},
				CreatedBy: input.ActorID,
			})
			if err != nil {
				return err
			}
			result.Entry = entry
			entryID = &entry.ID
		}

		if _, err := tx.InsertTransaction(ctx, Transaction{
			TenantID:    input.TenantID,
			Type:        TransactionReceipt,
			ItemID:      input.ItemID,
			WarehouseID: input.WarehouseID,
			Quantity:    input.Quantity,
			UnitCost:    input.UnitCost,
			EntryID:     entryID,
			Code:        input.Code,
			ActorID:     input.ActorID,
			OccurredAt:  receivedAt,
		}); err != nil {
			return err
		}

		result.Layer = layer
		result.Balance = balance
		return nil
	})
	if err != nil {
		s.releaseIdempotency(ctx, inserted, key)
		return ReceiveResult{}, err
	}
	s.recordAudit(ctx, input.TenantID, input.ActorID, "inventory.receive", input.ItemID, map[string]any{
		"warehouse_id": input.WarehouseID,
		"quantity":     input.Quantity.String(),
		"unit_cost":    input.UnitCost.String(),
	})
	return result, nil
}

// AllocateInventory reserves stock against the available quantity. It is a
// pure reservation: on-hand, layers and the ledger are untouched.
func (s *Service) AllocateInventory(ctx context.Context, input AllocateInput) (Balance, error) {
	if input.TenantID == 0 || input.ItemID == 0 || input.WarehouseID == 0 {
		return Balance{}, errors.New("inventory: tenant, item and warehouse required")
	}
	if !input.Quantity.IsPositive() {
		return Balance{}, ErrInvalidQuantity
	}
	var result Balance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.GetBalanceForUpdate(ctx, input.TenantID, input.ItemID, input.WarehouseID)
		if err != nil {
			if errors.Is(err, ErrBalanceNotFound) {
				return &InsufficientAvailableError{Requested: input.Quantity, Available: decimal.Zero}
			}
			return err
		}
		if balance.Available().LessThan(input.Quantity) {
			return &InsufficientAvailableError{Requested: input.Quantity, Available: balance.Available()}
		}
		balance.Allocated = balance.Allocated.Add(input.Quantity)
		balance.UpdatedAt = s.now().UTC()
		if err := tx.UpsertBalance(ctx, balance); err != nil {
			return err
		}
		if _, err := tx.InsertTransaction(ctx, Transaction{
			TenantID:    input.TenantID,
			Type:        TransactionAllocate,
			ItemID:      input.ItemID,
			WarehouseID: input.WarehouseID,
			Quantity:    input.Quantity,
			ActorID:     input.ActorID,
			OccurredAt:  s.now().UTC(),
		}); err != nil {
			return err
		}
		result = balance
		return nil
	})
	if err != nil {
		return Balance{}, err
	}
	return result, nil
}

// ShipStock depletes cost layers oldest-first, lowers the on-hand balance
// and posts the COGS journal (debit COGS, credit inventory asset) in one
// atomic unit of work. No partial shipment is ever committed.
func (s *Service) ShipStock(ctx context.Context, input ShipInput) (ShipResult, error) {
	if input.TenantID == 0 || input.ItemID == 0 || input.WarehouseID == 0 {
		return ShipResult{}, errors.New("inventory: tenant, item and warehouse required")
	}
	if !input.Quantity.IsPositive() {
		return ShipResult{}, ErrInvalidQuantity
	}
	shippedAt := input.ShippedAt
	if shippedAt.IsZero() {
		shippedAt = s.now().UTC()
	}

	inserted, key, err := s.claimIdempotency(ctx, TransactionIssue, input.Code, input.TenantID, input.ItemID, input.WarehouseID)
	if err != nil {
		return ShipResult{}, err
	}

	var result ShipResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.GetBalanceForUpdate(ctx, input.TenantID, input.ItemID, input.WarehouseID)
		if err != nil {
			if errors.Is(err, ErrBalanceNotFound) {
				return &InsufficientStockError{Requested: input.Quantity, OnHand: decimal.Zero}
			}
			return err
		}

		layers, err := tx.ListOpenLayersForUpdate(ctx, input.TenantID, input.ItemID, input.WarehouseID)
		if err != nil {
			return err
		}
		consumed, totalCOGS, err := PlanConsumption(layers, input.Quantity)
		if err != nil {
			return err
		}
		byID := make(map[int64]Layer, len(layers))
		for _, layer := range layers {
			byID[layer.ID] = layer
		}
		for _, c := range consumed {
			layer := byID[c.LayerID]
			remaining := layer.RemainingQty.Sub(c.Quantity)
			if err := tx.UpdateLayerRemaining(ctx, c.LayerID, remaining, remaining.IsZero()); err != nil {
				return err
			}
		}

		balance.OnHand = balance.OnHand.Sub(input.Quantity)
		balance.Allocated = decimal.Max(balance.Allocated.Sub(input.Quantity), decimal.Zero)
		balance.UpdatedAt = s.now().UTC()
		if err := tx.UpsertBalance(ctx, balance); err != nil {
			return err
		}

		var entryID *int64
		if totalCOGS.IsPositive() {
			cogsAccount, err := s.resolveAccount(ctx, tx, input.TenantID, input.Overrides.COGSAccountID, MappingCOGS, input.ItemID)
			if err != nil {
				return err
			}
			assetAccount, err := s.resolveAccount(ctx, tx, input.TenantID, input.Overrides.InventoryAccountID, MappingInventoryAsset, input.ItemID)
			if err != nil {
				return err
			}
			entry, err := s.poster.PostPreparedEntry(ctx, tx.Ledger(), ledger.CreateEntryInput{
				TenantID:  input.TenantID,
				Date:      shippedAt,
				Memo:      fmt.Sprintf("Stock issue item %d", input.ItemID),
				Type:      ledger.EntryTypeStandard,
				Reference: input.Code,
				Source:    ledger.SourceRef{Kind: ledger.SourceInventoryIssue, ID: uuid.New()},
				Lines: []ledger.LineInput{
					{AccountID: cogsAccount, Description: "Cost of goods sold", Debit: totalCOGS},
					{AccountID: assetAccount, Description: "Inventory issued", Credit: totalCOGS},
				},
				CreatedBy: input.ActorID,
			})
			if err != nil {
				return err
			}
			result.Entry = entry
			entryID = &entry.ID
		}

		if _, err := tx.InsertTransaction(ctx, Transaction{
			TenantID:    input.TenantID,
			Type:        TransactionIssue,
			ItemID:      input.ItemID,
			WarehouseID: input.WarehouseID,
			Quantity:    input.Quantity,
			EntryID:     entryID,
			Code:        input.Code,
			ActorID:     input.ActorID,
			OccurredAt:  shippedAt,
		}); err != nil {
			return err
		}

		result.Consumed = consumed
		result.TotalCOGS = totalCOGS
		result.Balance = balance
		return nil
	})
	if err != nil {
		s.releaseIdempotency(ctx, inserted, key)
		return ShipResult{}, err
	}
	s.recordAudit(ctx, input.TenantID, input.ActorID, "inventory.ship", input.ItemID, map[string]any{
		"warehouse_id": input.WarehouseID,
		"quantity":     input.Quantity.String(),
		"total_cogs":   result.TotalCOGS.String(),
	})
	return result, nil
}

// GetBalance returns the stock balance for an item and warehouse.
func (s *Service) GetBalance(ctx context.Context, tenantID, itemID, warehouseID int64) (Balance, error) {
	var balance Balance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		balance, err = tx.GetBalanceForUpdate(ctx, tenantID, itemID, warehouseID)
		return err
	})
	if err != nil {
		return Balance{}, err
	}
	return balance, nil
}

// resolveAccount walks the mapping fallback chain: explicit override,
// item-level mapping, tenant default.
func (s *Service) resolveAccount(ctx context.Context, tx TxRepository, tenantID, override int64, module string, itemID int64) (int64, error) {
	if override != 0 {
		return override, nil
	}
	ltx := tx.Ledger()
	entityKey := fmt.Sprintf("item:%d", itemID)
	id, err := ltx.LookupMapping(ctx, tenantID, module, entityKey)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ledger.ErrMappingNotFound) {
		return 0, err
	}
	id, err = ltx.LookupMapping(ctx, tenantID, module, ledger.DefaultMappingKey)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Service) claimIdempotency(ctx context.Context, txType TransactionType, code string, tenantID, itemID, warehouseID int64) (bool, string, error) {
	if s.idempotency == nil || code == "" {
		return false, "", nil
	}
	key := fmt.Sprintf("%s:%s:%d:%d:%d", txType, code, tenantID, itemID, warehouseID)
	if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
		return false, "", err
	}
	return true, key, nil
}

func (s *Service) releaseIdempotency(ctx context.Context, inserted bool, key string) {
	if inserted {
		_ = s.idempotency.Delete(ctx, key)
	}
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, itemID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_item",
		EntityID: fmt.Sprintf("%d", itemID),
		Meta:     meta,
		At:       s.now(),
	})
}

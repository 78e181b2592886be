package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vantage-erp/vantage-erp/internal/ledger"
)

type memoryRepo struct {
	balances     map[string]Balance
	layers       []Layer
	transactions []Transaction
	mappings     map[string]int64
	nextID       int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		balances: make(map[string]Balance),
		mappings: make(map[string]int64),
	}
}

func balanceKey(tenantID, itemID, warehouseID int64) string {
	return fmt.Sprintf("%d:%d:%d", tenantID, itemID, warehouseID)
}

// WithTx snapshots state before running fn so a returned error rolls every
// mutation back, mirroring the transactional repository.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	balances := make(map[string]Balance, len(r.balances))
	for k, v := range r.balances {
		balances[k] = v
	}
	layers := append([]Layer(nil), r.layers...)
	transactions := append([]Transaction(nil), r.transactions...)
	nextID := r.nextID

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.balances = balances
		r.layers = layers
		r.transactions = transactions
		r.nextID = nextID
		return err
	}
	return nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, tenantID, itemID, warehouseID int64) (Balance, error) {
	if bal, ok := tx.repo.balances[balanceKey(tenantID, itemID, warehouseID)]; ok {
		return bal, nil
	}
	return Balance{}, ErrBalanceNotFound
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, balance Balance) error {
	tx.repo.balances[balanceKey(balance.TenantID, balance.ItemID, balance.WarehouseID)] = balance
	return nil
}

func (tx *memoryTx) InsertLayer(ctx context.Context, layer Layer) (Layer, error) {
	tx.repo.nextID++
	layer.ID = tx.repo.nextID
	layer.CreatedAt = time.Now()
	tx.repo.layers = append(tx.repo.layers, layer)
	return layer, nil
}

func (tx *memoryTx) ListOpenLayersForUpdate(ctx context.Context, tenantID, itemID, warehouseID int64) ([]Layer, error) {
	var open []Layer
	for _, l := range tx.repo.layers {
		if l.TenantID == tenantID && l.ItemID == itemID && l.WarehouseID == warehouseID && !l.Depleted {
			open = append(open, l)
		}
	}
	return open, nil
}

func (tx *memoryTx) UpdateLayerRemaining(ctx context.Context, layerID int64, remaining decimal.Decimal, depleted bool) error {
	for i := range tx.repo.layers {
		if tx.repo.layers[i].ID == layerID {
			tx.repo.layers[i].RemainingQty = remaining
			tx.repo.layers[i].Depleted = depleted
			return nil
		}
	}
	return errors.New("layer not found")
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, txn Transaction) (int64, error) {
	tx.repo.nextID++
	txn.ID = tx.repo.nextID
	tx.repo.transactions = append(tx.repo.transactions, txn)
	return txn.ID, nil
}

func (tx *memoryTx) Ledger() ledger.TxRepository {
	return &memoryLedgerTx{repo: tx.repo}
}

// memoryLedgerTx satisfies ledger.TxRepository for mapping lookups; the
// costing service never touches the other methods because posting goes
// through the poster fake.
type memoryLedgerTx struct {
	ledger.TxRepository
	repo *memoryRepo
}

func (tx *memoryLedgerTx) LookupMapping(ctx context.Context, tenantID int64, module, key string) (int64, error) {
	if id, ok := tx.repo.mappings[fmt.Sprintf("%d:%s:%s", tenantID, module, key)]; ok {
		return id, nil
	}
	return 0, ledger.ErrMappingNotFound
}

type fakePoster struct {
	entries []ledger.CreateEntryInput
	nextID  int64
	fail    error
}

func (p *fakePoster) PostPreparedEntry(ctx context.Context, tx ledger.TxRepository, input ledger.CreateEntryInput) (ledger.JournalEntry, error) {
	if p.fail != nil {
		return ledger.JournalEntry{}, p.fail
	}
	p.entries = append(p.entries, input)
	p.nextID++
	return ledger.JournalEntry{ID: p.nextID, TenantID: input.TenantID, Status: ledger.EntryStatusPosted}, nil
}

func newTestService(repo *memoryRepo, poster *fakePoster) *Service {
	svc := NewService(repo, poster, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) })
	return svc
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedMappings(repo *memoryRepo, tenantID int64) {
	repo.mappings[fmt.Sprintf("%d:%s:DEFAULT", tenantID, MappingInventoryAsset)] = 100
	repo.mappings[fmt.Sprintf("%d:%s:DEFAULT", tenantID, MappingAccountsPayable)] = 200
	repo.mappings[fmt.Sprintf("%d:%s:DEFAULT", tenantID, MappingCOGS)] = 300
}

func TestReceiveStockCreatesLayerAndPostsJournal(t *testing.T) {
	repo := newMemoryRepo()
	seedMappings(repo, 1)
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	res, err := svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2,
		Quantity: dec("100"), UnitCost: dec("5.00"),
	})
	require.NoError(t, err)
	require.True(t, res.Layer.RemainingQty.Equal(dec("100")))
	require.True(t, res.Balance.OnHand.Equal(dec("100")))
	require.True(t, res.Balance.Allocated.IsZero())

	require.Len(t, poster.entries, 1)
	entry := poster.entries[0]
	require.Len(t, entry.Lines, 2)
	require.Equal(t, int64(100), entry.Lines[0].AccountID)
	require.True(t, entry.Lines[0].Debit.Equal(dec("500.00")))
	require.Equal(t, int64(200), entry.Lines[1].AccountID)
	require.True(t, entry.Lines[1].Credit.Equal(dec("500.00")))
	require.Equal(t, ledger.SourceInventoryReceipt, entry.Source.Kind)

	require.Len(t, repo.transactions, 1)
	require.Equal(t, TransactionReceipt, repo.transactions[0].Type)
	require.NotNil(t, repo.transactions[0].EntryID)
}

func TestReceiveStockReducesOnOrderWithoutGoingNegative(t *testing.T) {
	repo := newMemoryRepo()
	seedMappings(repo, 1)
	svc := newTestService(repo, &fakePoster{})

	repo.balances[balanceKey(1, 7, 2)] = Balance{
		TenantID: 1, ItemID: 7, WarehouseID: 2, OnOrder: dec("60"),
	}

	res, err := svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2,
		Quantity: dec("100"), UnitCost: dec("4.00"),
	})
	require.NoError(t, err)
	require.True(t, res.Balance.OnHand.Equal(dec("100")))
	require.True(t, res.Balance.OnOrder.IsZero())
}

func TestReceiveStockAccountOverrideSkipsMappings(t *testing.T) {
	repo := newMemoryRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	// No mappings seeded: only the overrides make the posting resolvable.
	_, err := svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2,
		Quantity: dec("10"), UnitCost: dec("2.00"),
		Overrides: AccountOverrides{InventoryAccountID: 910, PayableAccountID: 920},
	})
	require.NoError(t, err)
	require.Equal(t, int64(910), poster.entries[0].Lines[0].AccountID)
	require.Equal(t, int64(920), poster.entries[0].Lines[1].AccountID)
}

func TestReceiveStockItemMappingBeatsDefault(t *testing.T) {
	repo := newMemoryRepo()
	seedMappings(repo, 1)
	repo.mappings[fmt.Sprintf("1:%s:item:7", MappingInventoryAsset)] = 150
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	_, err := svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2,
		Quantity: dec("10"), UnitCost: dec("2.00"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(150), poster.entries[0].Lines[0].AccountID)
	require.Equal(t, int64(200), poster.entries[0].Lines[1].AccountID)
}

func TestReceiveStockMissingMappingFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakePoster{})

	_, err := svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2,
		Quantity: dec("10"), UnitCost: dec("2.00"),
	})
	require.True(t, errors.Is(err, ledger.ErrMappingNotFound))
	// The failed posting must not leave a layer or balance behind.
	require.Empty(t, repo.layers)
	require.Empty(t, repo.balances)
}

func TestReceiveStockZeroCostSkipsJournal(t *testing.T) {
	repo := newMemoryRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	res, err := svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2,
		Quantity: dec("25"), UnitCost: dec("0"),
	})
	require.NoError(t, err)
	require.Empty(t, poster.entries)
	require.True(t, res.Balance.OnHand.Equal(dec("25")))
	require.Nil(t, repo.transactions[0].EntryID)
}

func TestReceiveStockValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &fakePoster{})

	_, err := svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("0"), UnitCost: dec("1"),
	})
	require.True(t, errors.Is(err, ErrInvalidQuantity))

	_, err = svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("5"), UnitCost: dec("-1"),
	})
	require.True(t, errors.Is(err, ErrInvalidUnitCost))
}

func TestAllocateInventoryReservesStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakePoster{})
	repo.balances[balanceKey(1, 7, 2)] = Balance{
		TenantID: 1, ItemID: 7, WarehouseID: 2, OnHand: dec("50"),
	}

	bal, err := svc.AllocateInventory(context.Background(), AllocateInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("30"),
	})
	require.NoError(t, err)
	require.True(t, bal.Allocated.Equal(dec("30")))
	require.True(t, bal.Available().Equal(dec("20")))
	require.Len(t, repo.transactions, 1)
	require.Equal(t, TransactionAllocate, repo.transactions[0].Type)
}

func TestAllocateInventoryRejectsOverAllocation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakePoster{})
	repo.balances[balanceKey(1, 7, 2)] = Balance{
		TenantID: 1, ItemID: 7, WarehouseID: 2, OnHand: dec("50"), Allocated: dec("45"),
	}

	_, err := svc.AllocateInventory(context.Background(), AllocateInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("6"),
	})
	var insufficient *InsufficientAvailableError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Available.Equal(dec("5")))
}

func TestAllocateInventoryNoBalanceMeansNothingAvailable(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &fakePoster{})

	_, err := svc.AllocateInventory(context.Background(), AllocateInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("1"),
	})
	var insufficient *InsufficientAvailableError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Available.IsZero())
}

func TestShipStockConsumesFIFOAndPostsCOGS(t *testing.T) {
	repo := newMemoryRepo()
	seedMappings(repo, 1)
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	_, err := svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("100"), UnitCost: dec("5.00"),
		ReceivedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("40"), UnitCost: dec("7.00"),
		ReceivedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	res, err := svc.ShipStock(context.Background(), ShipInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("120"),
	})
	require.NoError(t, err)

	// 100 @ 5.00 plus 20 @ 7.00.
	require.True(t, res.TotalCOGS.Equal(dec("640.00")))
	require.Len(t, res.Consumed, 2)
	require.True(t, res.Balance.OnHand.Equal(dec("20")))

	require.True(t, repo.layers[0].Depleted)
	require.True(t, repo.layers[0].RemainingQty.IsZero())
	require.False(t, repo.layers[1].Depleted)
	require.True(t, repo.layers[1].RemainingQty.Equal(dec("20")))

	cogsEntry := poster.entries[len(poster.entries)-1]
	require.Equal(t, int64(300), cogsEntry.Lines[0].AccountID)
	require.True(t, cogsEntry.Lines[0].Debit.Equal(dec("640.00")))
	require.Equal(t, int64(100), cogsEntry.Lines[1].AccountID)
	require.True(t, cogsEntry.Lines[1].Credit.Equal(dec("640.00")))
	require.Equal(t, ledger.SourceInventoryIssue, cogsEntry.Source.Kind)
}

func TestShipStockReleasesAllocation(t *testing.T) {
	repo := newMemoryRepo()
	seedMappings(repo, 1)
	svc := newTestService(repo, &fakePoster{})

	_, err := svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("50"), UnitCost: dec("2.00"),
	})
	require.NoError(t, err)
	_, err = svc.AllocateInventory(context.Background(), AllocateInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("30"),
	})
	require.NoError(t, err)

	res, err := svc.ShipStock(context.Background(), ShipInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("30"),
	})
	require.NoError(t, err)
	require.True(t, res.Balance.OnHand.Equal(dec("20")))
	require.True(t, res.Balance.Allocated.IsZero())
}

func TestShipStockOverShipmentClampsAllocationAtZero(t *testing.T) {
	repo := newMemoryRepo()
	seedMappings(repo, 1)
	svc := newTestService(repo, &fakePoster{})

	_, err := svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("50"), UnitCost: dec("2.00"),
	})
	require.NoError(t, err)
	_, err = svc.AllocateInventory(context.Background(), AllocateInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("10"),
	})
	require.NoError(t, err)

	res, err := svc.ShipStock(context.Background(), ShipInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("40"),
	})
	require.NoError(t, err)
	require.True(t, res.Balance.Allocated.IsZero())
}

func TestShipStockInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	seedMappings(repo, 1)
	svc := newTestService(repo, &fakePoster{})

	_, err := svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("10"), UnitCost: dec("2.00"),
	})
	require.NoError(t, err)

	_, err = svc.ShipStock(context.Background(), ShipInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("11"),
	})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.OnHand.Equal(dec("10")))

	// Nothing was consumed.
	require.True(t, repo.layers[0].RemainingQty.Equal(dec("10")))
}

func TestShipStockRollsBackOnPostingFailure(t *testing.T) {
	repo := newMemoryRepo()
	seedMappings(repo, 1)
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	_, err := svc.ReceiveStock(context.Background(), ReceiveInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("30"), UnitCost: dec("4.00"),
	})
	require.NoError(t, err)

	poster.fail = errors.New("boom")
	_, err = svc.ShipStock(context.Background(), ShipInput{
		TenantID: 1, ItemID: 7, WarehouseID: 2, Quantity: dec("10"),
	})
	require.Error(t, err)

	// Layers and balance are untouched after rollback.
	require.True(t, repo.layers[0].RemainingQty.Equal(dec("30")))
	require.False(t, repo.layers[0].Depleted)
	bal := repo.balances[balanceKey(1, 7, 2)]
	require.True(t, bal.OnHand.Equal(dec("30")))
	require.Len(t, repo.transactions, 1)
}

func TestGetBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakePoster{})
	repo.balances[balanceKey(1, 7, 2)] = Balance{
		TenantID: 1, ItemID: 7, WarehouseID: 2, OnHand: dec("12"),
	}

	bal, err := svc.GetBalance(context.Background(), 1, 7, 2)
	require.NoError(t, err)
	require.True(t, bal.OnHand.Equal(dec("12")))

	_, err = svc.GetBalance(context.Background(), 1, 8, 2)
	require.True(t, errors.Is(err, ErrBalanceNotFound))
}

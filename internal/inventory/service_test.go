package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	records   map[string]Record
	movements []Movement
	locations map[int64]Location
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[string]Record), locations: make(map[int64]Location)}
}

func recordKey(productID, warehouseID int64, locationID *int64) string {
	loc := int64(0)
	if locationID != nil {
		loc = *locationID
	}
	return fmt.Sprintf("%d:%d:%d", productID, warehouseID, loc)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshotRecords := make(map[string]Record, len(r.records))
	for k, v := range r.records {
		snapshotRecords[k] = v
	}
	snapshotMovements := len(r.movements)
	snapshotID := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.records = snapshotRecords
		r.movements = r.movements[:snapshotMovements]
		r.nextID = snapshotID
		return err
	}
	return nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	result := make([]Movement, 0, len(r.movements))
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if filter.MovementType != "" && m.MovementType != filter.MovementType {
			continue
		}
		if !filter.From.IsZero() && m.CreatedAt.Before(filter.From) {
			continue
		}
		result = append(result, m)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (r *memoryRepo) ListStock(ctx context.Context, productID int64) ([]StockRow, error) {
	rows := []StockRow{}
	for _, rec := range r.records {
		if rec.ProductID != productID {
			continue
		}
		row := StockRow{Record: rec}
		if rec.LocationID != nil {
			if loc, ok := r.locations[*rec.LocationID]; ok {
				row.Location = &loc
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *memoryRepo) SumLedger(ctx context.Context, productID, warehouseID int64, locationID *int64) (float64, error) {
	var total float64
	for _, m := range r.movements {
		if m.ProductID != productID || m.WarehouseID != warehouseID {
			continue
		}
		if !sameLocation(m.LocationID, locationID) {
			continue
		}
		total += m.TransactionType.Sign() * m.Quantity
	}
	return total, nil
}

func sameLocation(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	tx.repo.nextID++
	movement.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, movement)
	return movement.ID, nil
}

func (tx *memoryTx) GetRecordForUpdate(ctx context.Context, productID, warehouseID int64, locationID *int64) (Record, error) {
	if rec, ok := tx.repo.records[recordKey(productID, warehouseID, locationID)]; ok {
		return rec, nil
	}
	return Record{}, ErrRecordNotFound
}

func (tx *memoryTx) UpsertRecord(ctx context.Context, record Record) error {
	tx.repo.records[recordKey(record.ProductID, record.WarehouseID, record.LocationID)] = record
	return nil
}

func newTestService(repo *memoryRepo, cfg ServiceConfig) *Service {
	return NewService(repo, nil, nil, nil, cfg)
}

func TestAppendMovementInfersMovementType(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	movement, err := svc.AppendMovement(ctx, MovementInput{
		ProductID: 1, WarehouseID: 1, TransactionType: TransactionReceipt, Quantity: 10,
	})
	require.NoError(t, err)
	require.Equal(t, MovementIn, movement.MovementType)
	require.NotZero(t, movement.ID)

	movement, err = svc.AppendMovement(ctx, MovementInput{
		ProductID: 1, WarehouseID: 1, TransactionType: TransactionCycleCount, Quantity: 2,
	})
	require.NoError(t, err)
	require.Equal(t, MovementCount, movement.MovementType)
}

func TestAppendMovementRejectsBadInput(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.AppendMovement(ctx, MovementInput{ProductID: 1, WarehouseID: 1, TransactionType: TransactionReceipt})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.AppendMovement(ctx, MovementInput{ProductID: 1, WarehouseID: 1, TransactionType: TransactionReceipt, Quantity: -3})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.AppendMovement(ctx, MovementInput{ProductID: 1, WarehouseID: 1, TransactionType: "DELIVERY", Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidTransactionType)

	_, err = svc.AppendMovement(ctx, MovementInput{
		ProductID: 1, WarehouseID: 1, MovementType: MovementOut, TransactionType: TransactionReceipt, Quantity: 1,
	})
	require.ErrorIs(t, err, ErrIncompatibleTypes)

	_, err = svc.AppendMovement(ctx, MovementInput{
		ProductID: 1, WarehouseID: 1, MovementType: "SHRINKAGE", TransactionType: TransactionReceipt, Quantity: 1,
	})
	require.ErrorIs(t, err, ErrInvalidMovementType)

	_, err = svc.AppendMovement(ctx, MovementInput{WarehouseID: 1, TransactionType: TransactionReceipt, Quantity: 1})
	require.ErrorIs(t, err, ErrMissingReference)

	require.Empty(t, repo.movements)
}

func TestLedgerAndRecordStayConsistent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	steps := []struct {
		txType TransactionType
		qty    float64
	}{
		{TransactionReceipt, 50},
		{TransactionShipment, 12},
		{TransactionAdjustmentOut, 3},
		{TransactionTransferIn, 7},
		{TransactionAdjustmentIn, 1},
	}
	for _, step := range steps {
		_, err := svc.AppendMovement(ctx, MovementInput{
			ProductID: 9, WarehouseID: 2, TransactionType: step.txType, Quantity: step.qty,
		})
		require.NoError(t, err)
	}

	sum, err := svc.Quantity(ctx, 9, 2, nil)
	require.NoError(t, err)
	require.InDelta(t, 43.0, sum, 0.0001)

	rec := repo.records[recordKey(9, 2, nil)]
	require.InDelta(t, sum, rec.Quantity, 0.0001)
}

func TestQuantityScopedToWarehouse(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.AppendMovement(ctx, MovementInput{
		ProductID: 1, WarehouseID: 1, TransactionType: TransactionReceipt, Quantity: 5,
	})
	require.NoError(t, err)
	_, err = svc.AppendMovement(ctx, MovementInput{
		ProductID: 1, WarehouseID: 2, TransactionType: TransactionReceipt, Quantity: 7,
	})
	require.NoError(t, err)

	// Each warehouse sum matches its own cached record, never a
	// cross-warehouse total.
	sum, err := svc.Quantity(ctx, 1, 1, nil)
	require.NoError(t, err)
	require.InDelta(t, 5.0, sum, 0.0001)
	require.InDelta(t, sum, repo.records[recordKey(1, 1, nil)].Quantity, 0.0001)

	sum, err = svc.Quantity(ctx, 1, 2, nil)
	require.NoError(t, err)
	require.InDelta(t, 7.0, sum, 0.0001)
	require.InDelta(t, sum, repo.records[recordKey(1, 2, nil)].Quantity, 0.0001)

	_, err = svc.Quantity(ctx, 1, 0, nil)
	require.ErrorIs(t, err, ErrMissingReference)
}

func TestOutboundRejectedWhenInsufficient(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.AppendMovement(ctx, MovementInput{
		ProductID: 1, WarehouseID: 1, TransactionType: TransactionReceipt, Quantity: 5,
	})
	require.NoError(t, err)

	_, err = svc.AppendMovement(ctx, MovementInput{
		ProductID: 1, WarehouseID: 1, TransactionType: TransactionShipment, Quantity: 8,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Rejected movement must not reach the ledger.
	sum, err := svc.Quantity(ctx, 1, 1, nil)
	require.NoError(t, err)
	require.InDelta(t, 5.0, sum, 0.0001)
}

func TestNegativeStockAllowedWhenConfigured(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{AllowNegativeStock: true})
	ctx := context.Background()

	_, err := svc.AppendMovement(ctx, MovementInput{
		ProductID: 1, WarehouseID: 1, TransactionType: TransactionShipment, Quantity: 4,
	})
	require.NoError(t, err)

	sum, err := svc.Quantity(ctx, 1, 1, nil)
	require.NoError(t, err)
	require.InDelta(t, -4.0, sum, 0.0001)
}

func TestIngestBatchIsolation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	result := svc.IngestBatch(ctx, []MovementInput{
		{ProductID: 1, WarehouseID: 1, TransactionType: TransactionReceipt, Quantity: 10},
		{ProductID: 1, WarehouseID: 1, TransactionType: TransactionReceipt, Quantity: 0},
		{ProductID: 2, WarehouseID: 1, TransactionType: TransactionAdjustmentIn, Quantity: 3},
		{ProductID: 2, WarehouseID: 1, MovementType: MovementIn, TransactionType: TransactionShipment, Quantity: 1},
		{ProductID: 1, WarehouseID: 1, TransactionType: TransactionShipment, Quantity: 4},
	})

	require.Equal(t, 3, result.Created)
	require.Len(t, result.Results, 3)
	require.Len(t, result.Errors, 2)
	require.Equal(t, 1, result.Errors[0].Index)
	require.Equal(t, 3, result.Errors[1].Index)

	// Entries after a failed row still applied.
	sum, err := svc.Quantity(ctx, 1, 1, nil)
	require.NoError(t, err)
	require.InDelta(t, 6.0, sum, 0.0001)
}

func TestListMovementsFilters(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.AppendMovement(ctx, MovementInput{ProductID: 1, WarehouseID: 1, TransactionType: TransactionReceipt, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.AppendMovement(ctx, MovementInput{ProductID: 1, WarehouseID: 1, TransactionType: TransactionShipment, Quantity: 2})
	require.NoError(t, err)

	movements, err := svc.ListMovements(ctx, "IN", "7days", 0)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, MovementIn, movements[0].MovementType)

	movements, err = svc.ListMovements(ctx, "all", "all", 0)
	require.NoError(t, err)
	require.Len(t, movements, 2)

	_, err = svc.ListMovements(ctx, "IN", "90days", 0)
	require.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = svc.ListMovements(ctx, "INBOUND", "", 0)
	require.ErrorIs(t, err, ErrInvalidMovementType)
}

func TestStockSplitsByLocationType(t *testing.T) {
	repo := newMemoryRepo()
	recvLoc, storageLoc := int64(1), int64(2)
	repo.locations[recvLoc] = Location{ID: recvLoc, Code: "RECV-01", LocationType: "receiving", WarehouseID: 1}
	repo.locations[storageLoc] = Location{ID: storageLoc, Code: "A-01-01", LocationType: "storage", WarehouseID: 1}
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.AppendMovement(ctx, MovementInput{
		ProductID: 5, WarehouseID: 1, LocationID: &recvLoc, TransactionType: TransactionReceipt, Quantity: 8,
	})
	require.NoError(t, err)
	_, err = svc.AppendMovement(ctx, MovementInput{
		ProductID: 5, WarehouseID: 1, LocationID: &storageLoc, TransactionType: TransactionReceipt, Quantity: 20,
	})
	require.NoError(t, err)

	summary, err := svc.Stock(ctx, 5)
	require.NoError(t, err)
	require.InDelta(t, 20.0, summary.Available, 0.0001)
	require.InDelta(t, 8.0, summary.Pending, 0.0001)
	require.Len(t, summary.Rows, 2)
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	from, err := periodStart("1day", now)
	require.NoError(t, err)
	require.Equal(t, now.AddDate(0, 0, -1), from)

	from, err = periodStart("30days", now)
	require.NoError(t, err)
	require.Equal(t, now.AddDate(0, 0, -30), from)

	from, err = periodStart("all", now)
	require.NoError(t, err)
	require.True(t, from.IsZero())

	_, err = periodStart("fortnight", now)
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

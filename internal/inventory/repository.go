package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	GetRecordForUpdate(ctx context.Context, productID, warehouseID int64, locationID *int64) (Record, error)
	UpsertRecord(ctx context.Context, record Record) error
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an already-open transaction. Receiving composes this
// with its own rows so ledger appends share the caller's transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// ErrRecordNotFound indicates a missing cached inventory row.
var ErrRecordNotFound = errors.New("inventory record not found")

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ListMovements reads ledger events, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, warehouse_id, location_id, movement_type, transaction_type, quantity, unit_cost, lot_number, expiry_date, reference_number, reference_type, reason, notes, performed_by, created_at
FROM inventory_movements
WHERE ($1 = '' OR movement_type = $1)
  AND created_at >= COALESCE($2, '-infinity'::timestamptz)
ORDER BY created_at DESC, id DESC
LIMIT $3`, string(filter.MovementType), nullTime(filter.From), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		movement, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, movement)
	}
	return movements, rows.Err()
}

// ListStock joins cached records with their locations for one product.
func (r *Repository) ListStock(ctx context.Context, productID int64) ([]StockRow, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT i.product_id, i.warehouse_id, i.location_id, i.quantity, i.reserved_quantity, i.updated_at,
       l.id, l.code, l.location_type, l.warehouse_id
FROM inventory i
LEFT JOIN locations l ON l.id = i.location_id
WHERE i.product_id = $1
ORDER BY i.warehouse_id, i.location_id NULLS FIRST`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stock := []StockRow{}
	for rows.Next() {
		var row StockRow
		var locID, locWarehouse *int64
		var locCode, locType *string
		if err := rows.Scan(&row.Record.ProductID, &row.Record.WarehouseID, &row.Record.LocationID,
			&row.Record.Quantity, &row.Record.ReservedQuantity, &row.Record.UpdatedAt,
			&locID, &locCode, &locType, &locWarehouse); err != nil {
			return nil, err
		}
		if locID != nil {
			row.Location = &Location{ID: *locID, Code: deref(locCode), LocationType: deref(locType), WarehouseID: derefInt(locWarehouse)}
		}
		stock = append(stock, row)
	}
	return stock, rows.Err()
}

// SumLedger recomputes the signed quantity sum for one
// (product, warehouse, location) key, the same key the cached record is
// written under.
func (r *Repository) SumLedger(ctx context.Context, productID, warehouseID int64, locationID *int64) (float64, error) {
	if r == nil {
		return 0, errors.New("inventory repository not initialised")
	}
	var sum float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN transaction_type IN ('RECEIPT','TRANSFER_IN','ADJUSTMENT_IN','CYCLE_COUNT') THEN quantity ELSE -quantity END), 0)
FROM inventory_movements
WHERE product_id = $1 AND warehouse_id = $2 AND location_id IS NOT DISTINCT FROM $3`, productID, warehouseID, locationID).Scan(&sum)
	return sum, err
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements (product_id, warehouse_id, location_id, movement_type, transaction_type, quantity, unit_cost, lot_number, expiry_date, reference_number, reference_type, reason, notes, performed_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15) RETURNING id`,
		movement.ProductID, movement.WarehouseID, movement.LocationID,
		string(movement.MovementType), string(movement.TransactionType), movement.Quantity,
		nullDecimal(movement.UnitCost), nullString(movement.LotNumber), movement.ExpiryDate,
		nullString(movement.ReferenceNumber), nullString(movement.ReferenceType),
		nullString(movement.Reason), nullString(movement.Notes),
		nullInt(movement.PerformedBy), movement.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetRecordForUpdate(ctx context.Context, productID, warehouseID int64, locationID *int64) (Record, error) {
	var record Record
	err := r.tx.QueryRow(ctx, `SELECT product_id, warehouse_id, location_id, quantity, reserved_quantity, updated_at
FROM inventory
WHERE product_id = $1 AND warehouse_id = $2 AND location_id IS NOT DISTINCT FROM $3
FOR UPDATE`, productID, warehouseID, locationID).
		Scan(&record.ProductID, &record.WarehouseID, &record.LocationID, &record.Quantity, &record.ReservedQuantity, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{ProductID: productID, WarehouseID: warehouseID, LocationID: locationID}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return record, nil
}

func (r *txRepository) UpsertRecord(ctx context.Context, record Record) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory (product_id, warehouse_id, location_id, quantity, reserved_quantity, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (product_id, warehouse_id, COALESCE(location_id, 0)) DO UPDATE
SET quantity = EXCLUDED.quantity, reserved_quantity = EXCLUDED.reserved_quantity, updated_at = NOW()`,
		record.ProductID, record.WarehouseID, record.LocationID, record.Quantity, record.ReservedQuantity)
	return err
}

func scanMovement(rows pgx.Rows) (Movement, error) {
	var m Movement
	var unitCost decimal.NullDecimal
	var lot, refNumber, refType, reason, notes *string
	var performedBy *int64
	err := rows.Scan(&m.ID, &m.ProductID, &m.WarehouseID, &m.LocationID, &m.MovementType, &m.TransactionType,
		&m.Quantity, &unitCost, &lot, &m.ExpiryDate, &refNumber, &refType, &reason, &notes, &performedBy, &m.CreatedAt)
	if err != nil {
		return Movement{}, err
	}
	m.UnitCost = unitCost.Decimal
	m.LotNumber = deref(lot)
	m.ReferenceNumber = deref(refNumber)
	m.ReferenceType = deref(refType)
	m.Reason = deref(reason)
	m.Notes = deref(notes)
	m.PerformedBy = derefInt(performedBy)
	return m, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: !d.IsZero()}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

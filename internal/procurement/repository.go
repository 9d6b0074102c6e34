package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wareline/wareline/internal/inventory"
)

// Repository persists procurement data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service. Ledger
// returns an inventory transaction view bound to the same database
// transaction.
type TxRepository interface {
	Ledger() inventory.TxRepository
	NextPONumber(ctx context.Context, day time.Time) (string, error)
	InsertOrder(ctx context.Context, order PurchaseOrder) (int64, error)
	InsertItem(ctx context.Context, item PurchaseOrderItem) (int64, error)
	GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	GetItemForUpdate(ctx context.Context, orderID, itemID int64) (PurchaseOrderItem, error)
	AddReceivedQuantity(ctx context.Context, itemID int64, qty float64) error
	ListItems(ctx context.Context, orderID int64) ([]PurchaseOrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status Status, receivedDate *time.Time) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
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

// GetOrder loads the order header and its items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, []PurchaseOrderItem, error) {
	if r == nil {
		return PurchaseOrder{}, nil, errors.New("procurement repository not initialised")
	}
	var order PurchaseOrder
	err := r.pool.QueryRow(ctx, `SELECT id, po_number, warehouse_id, supplier_id, status, order_date, expected_date, received_date, total_amount, created_at
FROM purchase_orders WHERE id = $1`, id).
		Scan(&order.ID, &order.PONumber, &order.WarehouseID, &order.SupplierID, &order.Status,
			&order.OrderDate, &order.ExpectedDate, &order.ReceivedDate, &order.TotalAmount, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, nil, ErrNotFound
		}
		return PurchaseOrder{}, nil, err
	}
	items, err := listItems(ctx, r.pool, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return order, items, nil
}

func (r *txRepository) Ledger() inventory.TxRepository {
	return inventory.NewTxRepository(r.tx)
}

// NextPONumber allocates the next per-day sequence value and formats the
// PO-YYYYMMDD-NNNNN document number.
func (r *txRepository) NextPONumber(ctx context.Context, day time.Time) (string, error) {
	dayKey := day.UTC().Format("2006-01-02")
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_order_counters (day, last_value)
VALUES ($1, 1)
ON CONFLICT (day) DO UPDATE SET last_value = purchase_order_counters.last_value + 1
RETURNING last_value`, dayKey).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PO-%s-%05d", day.UTC().Format("20060102"), seq), nil
}

func (r *txRepository) InsertOrder(ctx context.Context, order PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (po_number, warehouse_id, supplier_id, status, order_date, expected_date, received_date, total_amount, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		order.PONumber, order.WarehouseID, order.SupplierID, string(order.Status),
		order.OrderDate, order.ExpectedDate, order.ReceivedDate, order.TotalAmount).Scan(&id)
	return id, err
}

func (r *txRepository) InsertItem(ctx context.Context, item PurchaseOrderItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_order_items (purchase_order_id, product_id, quantity, received_quantity, unit_price)
VALUES ($1,$2,$3,0,$4) RETURNING id`,
		item.PurchaseOrderID, item.ProductID, item.Quantity, item.UnitPrice).Scan(&id)
	return id, err
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	var order PurchaseOrder
	err := r.tx.QueryRow(ctx, `SELECT id, po_number, warehouse_id, supplier_id, status, order_date, expected_date, received_date, total_amount, created_at
FROM purchase_orders WHERE id = $1 FOR UPDATE`, id).
		Scan(&order.ID, &order.PONumber, &order.WarehouseID, &order.SupplierID, &order.Status,
			&order.OrderDate, &order.ExpectedDate, &order.ReceivedDate, &order.TotalAmount, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	return order, nil
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, orderID, itemID int64) (PurchaseOrderItem, error) {
	var item PurchaseOrderItem
	err := r.tx.QueryRow(ctx, `SELECT id, purchase_order_id, product_id, quantity, received_quantity, unit_price
FROM purchase_order_items WHERE id = $1 AND purchase_order_id = $2 FOR UPDATE`, itemID, orderID).
		Scan(&item.ID, &item.PurchaseOrderID, &item.ProductID, &item.Quantity, &item.ReceivedQuantity, &item.UnitPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrderItem{}, ErrItemNotFound
		}
		return PurchaseOrderItem{}, err
	}
	return item, nil
}

// AddReceivedQuantity increments received_quantity with the ordered quantity
// as a hard ceiling. The predicate keeps the invariant even if a writer
// bypasses the row lock.
func (r *txRepository) AddReceivedQuantity(ctx context.Context, itemID int64, qty float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_order_items
SET received_quantity = received_quantity + $2
WHERE id = $1 AND received_quantity + $2 <= quantity`, itemID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReceiveCeiling
	}
	return nil
}

func (r *txRepository) ListItems(ctx context.Context, orderID int64) ([]PurchaseOrderItem, error) {
	return listItems(ctx, r.tx, orderID)
}

func (r *txRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status Status, receivedDate *time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders
SET status = $2, received_date = COALESCE($3, received_date)
WHERE id = $1`, orderID, string(status), receivedDate)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listItems(ctx context.Context, q querier, orderID int64) ([]PurchaseOrderItem, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_order_id, product_id, quantity, received_quantity, unit_price
FROM purchase_order_items WHERE purchase_order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []PurchaseOrderItem{}
	for rows.Next() {
		var item PurchaseOrderItem
		var price decimal.Decimal
		if err := rows.Scan(&item.ID, &item.PurchaseOrderID, &item.ProductID, &item.Quantity, &item.ReceivedQuantity, &price); err != nil {
			return nil, err
		}
		item.UnitPrice = price
		items = append(items, item)
	}
	return items, rows.Err()
}

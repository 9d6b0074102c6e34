package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Purchase order lifecycle statuses. An order moves draft → partial →
// received as line items are reconciled against receipts.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPartial  Status = "partial"
	StatusReceived Status = "received"
)

// PurchaseOrder domain model. Status, received date and total amount are
// mutated only by the receiving reconciler.
type PurchaseOrder struct {
	ID           int64           `json:"id"`
	PONumber     string          `json:"po_number"`
	WarehouseID  int64           `json:"warehouse_id"`
	SupplierID   *int64          `json:"supplier_id,omitempty"`
	Status       Status          `json:"status"`
	OrderDate    time.Time       `json:"order_date"`
	ExpectedDate *time.Time      `json:"expected_date,omitempty"`
	ReceivedDate *time.Time      `json:"received_date,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PurchaseOrderItem is one ordered line. ReceivedQuantity is cumulative and
// never exceeds Quantity.
type PurchaseOrderItem struct {
	ID               int64           `json:"id"`
	PurchaseOrderID  int64           `json:"purchase_order_id"`
	ProductID        int64           `json:"product_id"`
	Quantity         float64         `json:"quantity"`
	ReceivedQuantity float64         `json:"received_quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
}

// FullyReceived reports whether the ordered quantity has arrived in full.
func (i PurchaseOrderItem) FullyReceived() bool {
	return i.ReceivedQuantity >= i.Quantity
}

var (
	// ErrNotFound indicates the purchase order does not exist.
	ErrNotFound = errors.New("procurement: purchase order not found")
	// ErrItemNotFound indicates a receipt line referenced an unknown order item.
	ErrItemNotFound = errors.New("procurement: purchase order item not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
	// ErrReceiveCeiling indicates a concurrent receive pushed the item past its ordered quantity.
	ErrReceiveCeiling = errors.New("procurement: received quantity would exceed ordered quantity")
)

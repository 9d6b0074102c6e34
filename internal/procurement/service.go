package procurement

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wareline/wareline/internal/inventory"
	"github.com/wareline/wareline/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, []PurchaseOrderItem, error)
}

// LedgerPort appends receipt movements inside the caller's transaction, so a
// failed line rolls back both the ledger event and the item update.
type LedgerPort interface {
	AppendMovementInTx(ctx context.Context, tx inventory.TxRepository, input inventory.MovementInput) (inventory.Movement, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates purchase order creation and receiving reconciliation.
type Service struct {
	repo        RepositoryPort
	ledger      LedgerPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, ledger LedgerPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, ledger: ledger, audit: audit, idempotency: idem}
}

// OrderItemInput describes one requested line.
type OrderItemInput struct {
	ProductID int64
	Quantity  float64
	UnitPrice decimal.Decimal
}

// CreateOrderInput describes creation payload.
type CreateOrderInput struct {
	WarehouseID  int64
	SupplierID   *int64
	OrderDate    time.Time
	ExpectedDate *time.Time
	Items        []OrderItemInput
}

// CreatePurchaseOrder persists the order header and lines, generating the
// PO-YYYYMMDD-NNNNN number from a per-day sequence.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreateOrderInput) (PurchaseOrder, []PurchaseOrderItem, error) {
	if input.WarehouseID == 0 {
		return PurchaseOrder{}, nil, fmt.Errorf("%w: warehouse required", ErrValidation)
	}
	if len(input.Items) == 0 {
		return PurchaseOrder{}, nil, fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	orderDate := input.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}
	total := decimal.Zero
	for _, item := range input.Items {
		if item.ProductID == 0 || item.Quantity <= 0 {
			return PurchaseOrder{}, nil, fmt.Errorf("%w: item product and positive quantity required", ErrValidation)
		}
		if item.UnitPrice.IsNegative() {
			return PurchaseOrder{}, nil, fmt.Errorf("%w: unit price must not be negative", ErrValidation)
		}
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromFloat(item.Quantity)))
	}

	order := PurchaseOrder{
		WarehouseID:  input.WarehouseID,
		SupplierID:   input.SupplierID,
		Status:       StatusDraft,
		OrderDate:    orderDate,
		ExpectedDate: input.ExpectedDate,
		TotalAmount:  total,
	}
	var items []PurchaseOrderItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextPONumber(ctx, orderDate)
		if err != nil {
			return err
		}
		order.PONumber = number
		orderID, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID
		for _, line := range input.Items {
			item := PurchaseOrderItem{
				PurchaseOrderID: orderID,
				ProductID:       line.ProductID,
				Quantity:        line.Quantity,
				UnitPrice:       line.UnitPrice,
			}
			itemID, err := tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	s.recordAudit(ctx, "PO_CREATE", order.ID, map[string]any{"po_number": order.PONumber})
	return order, items, nil
}

// GetPurchaseOrder returns the order with its items.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []PurchaseOrderItem, error) {
	return s.repo.GetOrder(ctx, id)
}

// ReceiptLine is one requested receipt against an order item.
type ReceiptLine struct {
	ItemID     int64
	Quantity   float64
	LocationID *int64
	LotNumber  string
	UnitCost   decimal.Decimal
}

// ReceiveOptions carries request metadata.
type ReceiveOptions struct {
	ActorID        int64
	IdempotencyKey string
}

// ReceiveResult reports the outcome of one receive call.
type ReceiveResult struct {
	ReceivedQty float64 `json:"receivedQty"`
	Status      Status  `json:"status"`
}

// Receive reconciles receipt lines against the order's items.
//
// Per line: pending = max(0, ordered - received); receiveQty = min(pending,
// requested). Lines with receiveQty <= 0 are skipped without error, which
// absorbs over-receipt replays and zero or negative requests. A line whose
// item cannot be found aborts the whole call; all lines share one
// transaction, so nothing is committed on failure. After the lines, order
// status is recomputed: received when every item is fully received,
// otherwise partial; received_date is set only on the received transition.
func (s *Service) Receive(ctx context.Context, orderID int64, lines []ReceiptLine, opts ReceiveOptions) (ReceiveResult, error) {
	if len(lines) == 0 {
		return ReceiveResult{}, fmt.Errorf("%w: items must not be empty", ErrValidation)
	}

	insertedKey := false
	idemKey := fmt.Sprintf("po-receive:%d:%s", orderID, opts.IdempotencyKey)
	if s.idempotency != nil && opts.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "procurement"); err != nil {
			return ReceiveResult{}, err
		}
		insertedKey = true
	}

	var result ReceiveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		var receivedTotal float64
		for _, line := range lines {
			item, err := tx.GetItemForUpdate(ctx, orderID, line.ItemID)
			if err != nil {
				return err
			}
			pending := math.Max(0, item.Quantity-item.ReceivedQuantity)
			receiveQty := math.Min(pending, line.Quantity)
			if receiveQty <= 0 {
				continue
			}
			_, err = s.ledger.AppendMovementInTx(ctx, tx.Ledger(), inventory.MovementInput{
				ProductID:       item.ProductID,
				WarehouseID:     order.WarehouseID,
				LocationID:      line.LocationID,
				TransactionType: inventory.TransactionReceipt,
				Quantity:        receiveQty,
				UnitCost:        line.UnitCost,
				LotNumber:       line.LotNumber,
				ReferenceNumber: order.PONumber,
				ReferenceType:   "purchase_order",
				PerformedBy:     opts.ActorID,
			})
			if err != nil {
				return err
			}
			if err := tx.AddReceivedQuantity(ctx, item.ID, receiveQty); err != nil {
				return err
			}
			receivedTotal += receiveQty
		}

		items, err := tx.ListItems(ctx, orderID)
		if err != nil {
			return err
		}
		status := StatusReceived
		for _, item := range items {
			if !item.FullyReceived() {
				status = StatusPartial
				break
			}
		}
		var receivedDate *time.Time
		if status == StatusReceived && order.ReceivedDate == nil {
			now := time.Now().UTC()
			receivedDate = &now
		}
		if err := tx.UpdateOrderStatus(ctx, orderID, status, receivedDate); err != nil {
			return err
		}
		result = ReceiveResult{ReceivedQty: receivedTotal, Status: status}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return ReceiveResult{}, err
	}
	s.recordAudit(ctx, "PO_RECEIVE", orderID, map[string]any{"received_qty": result.ReceivedQty, "status": string(result.Status)})
	return result, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "purchase_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

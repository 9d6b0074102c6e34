package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wareline/wareline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ListStock(ctx context.Context, productID int64) ([]StockRow, error)
	SumLedger(ctx context.Context, productID, warehouseID int64, locationID *int64) (float64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MovementCounter receives a tick per appended ledger movement.
type MovementCounter interface {
	CountMovement(transactionType string)
}

// Service coordinates ledger writes and derived stock reads.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	cache    *StockCache
	counter  MovementCounter
	allowNeg bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cache *StockCache, counter MovementCounter, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, counter: counter, allowNeg: cfg.AllowNegativeStock}
}

// MovementInput describes a requested ledger append.
type MovementInput struct {
	ProductID       int64
	WarehouseID     int64
	LocationID      *int64
	MovementType    MovementType
	TransactionType TransactionType
	Quantity        float64
	UnitCost        decimal.Decimal
	LotNumber       string
	ExpiryDate      *time.Time
	ReferenceNumber string
	ReferenceType   string
	Reason          string
	Notes           string
	PerformedBy     int64
}

func (in MovementInput) validate() (MovementType, error) {
	if in.ProductID == 0 || in.WarehouseID == 0 {
		return "", ErrMissingReference
	}
	if in.Quantity <= 0 {
		return "", ErrInvalidQuantity
	}
	if !in.TransactionType.Valid() {
		return "", ErrInvalidTransactionType
	}
	expected := movementTypeFor[in.TransactionType]
	if in.MovementType == "" {
		return expected, nil
	}
	if !in.MovementType.Valid() {
		return "", ErrInvalidMovementType
	}
	if in.MovementType != expected {
		return "", ErrIncompatibleTypes
	}
	return expected, nil
}

// AppendMovement validates the input, appends the movement and updates the
// cached record within one transaction.
func (s *Service) AppendMovement(ctx context.Context, input MovementInput) (Movement, error) {
	var created Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = s.AppendMovementInTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.afterAppend(ctx, created)
	return created, nil
}

// AppendMovementInTx performs the append against an already-open transaction.
// Callers composing larger units of work (receiving) use this so the ledger
// write commits or rolls back together with their own rows.
func (s *Service) AppendMovementInTx(ctx context.Context, tx TxRepository, input MovementInput) (Movement, error) {
	movementType, err := input.validate()
	if err != nil {
		return Movement{}, err
	}

	record, err := tx.GetRecordForUpdate(ctx, input.ProductID, input.WarehouseID, input.LocationID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return Movement{}, err
	}
	if errors.Is(err, ErrRecordNotFound) {
		record = Record{ProductID: input.ProductID, WarehouseID: input.WarehouseID, LocationID: input.LocationID}
	}

	newQty := record.Quantity + input.TransactionType.Sign()*input.Quantity
	if !s.allowNeg && newQty < 0 {
		return Movement{}, ErrInsufficientStock
	}

	movement := Movement{
		ProductID:       input.ProductID,
		WarehouseID:     input.WarehouseID,
		LocationID:      input.LocationID,
		MovementType:    movementType,
		TransactionType: input.TransactionType,
		Quantity:        input.Quantity,
		UnitCost:        input.UnitCost,
		LotNumber:       input.LotNumber,
		ExpiryDate:      input.ExpiryDate,
		ReferenceNumber: input.ReferenceNumber,
		ReferenceType:   input.ReferenceType,
		Reason:          input.Reason,
		Notes:           input.Notes,
		PerformedBy:     input.PerformedBy,
		CreatedAt:       time.Now().UTC(),
	}
	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	movement.ID = id

	record.Quantity = newQty
	record.UpdatedAt = movement.CreatedAt
	if err := tx.UpsertRecord(ctx, record); err != nil {
		return Movement{}, err
	}
	return movement, nil
}

func (s *Service) afterAppend(ctx context.Context, movement Movement) {
	if s.counter != nil {
		s.counter.CountMovement(string(movement.TransactionType))
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  movement.PerformedBy,
			Action:   fmt.Sprintf("inventory:%s", movement.TransactionType),
			Entity:   "inventory_movement",
			EntityID: fmt.Sprintf("%d", movement.ID),
			Meta: map[string]any{
				"product_id":   movement.ProductID,
				"warehouse_id": movement.WarehouseID,
				"qty":          movement.Quantity,
				"reference":    movement.ReferenceNumber,
			},
		})
	}
}

// BatchRow reports one successfully ingested batch entry.
type BatchRow struct {
	Index int   `json:"index"`
	ID    int64 `json:"id"`
}

// BatchError reports one rejected batch entry.
type BatchError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchResult summarises a batch ingest call.
type BatchResult struct {
	Created int          `json:"created"`
	Results []BatchRow   `json:"results"`
	Errors  []BatchError `json:"errors"`
}

// IngestBatch applies each movement independently, in caller order. A failed
// entry is reported in Errors and never aborts the remaining entries.
func (s *Service) IngestBatch(ctx context.Context, inputs []MovementInput) BatchResult {
	result := BatchResult{Results: []BatchRow{}, Errors: []BatchError{}}
	for i, input := range inputs {
		movement, err := s.AppendMovement(ctx, input)
		if err != nil {
			result.Errors = append(result.Errors, BatchError{Index: i, Error: err.Error()})
			continue
		}
		result.Created++
		result.Results = append(result.Results, BatchRow{Index: i, ID: movement.ID})
	}
	return result
}

// ListMovements reads the ledger filtered by movement type and period.
// movementType accepts an enum member or "all"; period accepts
// 1day, 7days, 30days or all.
func (s *Service) ListMovements(ctx context.Context, movementType, period string, limit int) ([]Movement, error) {
	filter := MovementFilter{Limit: limit}
	if movementType != "" && movementType != "all" {
		mt := MovementType(movementType)
		if !mt.Valid() {
			return nil, ErrInvalidMovementType
		}
		filter.MovementType = mt
	}
	from, err := periodStart(period, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	filter.From = from
	return s.repo.ListMovements(ctx, filter)
}

func periodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case "", "all":
		return time.Time{}, nil
	case "1day":
		return now.AddDate(0, 0, -1), nil
	case "7days":
		return now.AddDate(0, 0, -7), nil
	case "30days":
		return now.AddDate(0, 0, -30), nil
	}
	return time.Time{}, ErrInvalidPeriod
}

// Quantity recomputes the signed ledger sum for one
// (product, warehouse, location) key. The cached record written under the
// same key must always agree with this value.
func (s *Service) Quantity(ctx context.Context, productID, warehouseID int64, locationID *int64) (float64, error) {
	if productID == 0 || warehouseID == 0 {
		return 0, ErrMissingReference
	}
	return s.repo.SumLedger(ctx, productID, warehouseID, locationID)
}

// StockSummary describes a product's stock split for displays.
type StockSummary struct {
	ProductID int64      `json:"product_id"`
	Available float64    `json:"available"`
	Pending   float64    `json:"pending"`
	Rows      []StockRow `json:"rows"`
}

// Stock returns the classifier split for a product, served from the
// short-lived Redis cache when available.
func (s *Service) Stock(ctx context.Context, productID int64) (StockSummary, error) {
	if productID == 0 {
		return StockSummary{}, ErrMissingReference
	}
	load := func(ctx context.Context) (StockSummary, error) {
		rows, err := s.repo.ListStock(ctx, productID)
		if err != nil {
			return StockSummary{}, err
		}
		split := SplitStock(rows)
		return StockSummary{ProductID: productID, Available: split.Available, Pending: split.Pending, Rows: rows}, nil
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.Fetch(ctx, productID, load)
}

package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/wareline/wareline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handleCreateMovement)
	r.Post("/movements/batch", h.handleBatchMovements)
	r.Get("/movements", h.handleListMovements)
	r.Get("/stock", h.handleStock)
}

type movementRequest struct {
	ProductID       int64           `json:"product_id" validate:"required"`
	WarehouseID     int64           `json:"warehouse_id" validate:"required"`
	LocationID      *int64          `json:"location_id"`
	MovementType    string          `json:"movement_type"`
	TransactionType string          `json:"transaction_type" validate:"required"`
	Quantity        float64         `json:"quantity" validate:"required"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	LotNumber       string          `json:"lot_number"`
	ExpiryDate      *time.Time      `json:"expiry_date"`
	ReferenceNumber string          `json:"reference_number"`
	ReferenceType   string          `json:"reference_type"`
	Reason          string          `json:"reason"`
	Notes           string          `json:"notes"`
	PerformedBy     int64           `json:"performed_by"`
}

func (req movementRequest) toInput() MovementInput {
	return MovementInput{
		ProductID:       req.ProductID,
		WarehouseID:     req.WarehouseID,
		LocationID:      req.LocationID,
		MovementType:    MovementType(req.MovementType),
		TransactionType: TransactionType(req.TransactionType),
		Quantity:        req.Quantity,
		UnitCost:        req.UnitCost,
		LotNumber:       req.LotNumber,
		ExpiryDate:      req.ExpiryDate,
		ReferenceNumber: req.ReferenceNumber,
		ReferenceType:   req.ReferenceType,
		Reason:          req.Reason,
		Notes:           req.Notes,
		PerformedBy:     req.PerformedBy,
	}
}

type batchRequest struct {
	Movements []movementRequest `json:"movements"`
}

func (h *Handler) handleCreateMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, err := h.service.AppendMovement(r.Context(), req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleBatchMovements(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if len(req.Movements) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "movements must not be empty")
		return
	}
	inputs := make([]MovementInput, len(req.Movements))
	for i, m := range req.Movements {
		inputs[i] = m.toInput()
	}
	result := h.service.IngestBatch(r.Context(), inputs)
	// 201 reflects that the batch was processed; per-row outcomes are in the body.
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	movements, err := h.service.ListMovements(r.Context(), q.Get("type"), q.Get("period"), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id is required")
		return
	}
	summary, err := h.service.Stock(r.Context(), productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidMovementType),
		errors.Is(err, ErrInvalidTransactionType),
		errors.Is(err, ErrIncompatibleTypes),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidPeriod),
		errors.Is(err, ErrMissingReference):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

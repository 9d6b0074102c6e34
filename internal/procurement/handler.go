package procurement

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
	"github.com/wareline/wareline/internal/shared"
)

// Handler wires HTTP endpoints for purchase orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/receive", h.handleReceive)
}

type orderItemRequest struct {
	ProductID int64           `json:"product_id" validate:"required"`
	Quantity  float64         `json:"quantity" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type createOrderRequest struct {
	WarehouseID  int64              `json:"warehouse_id" validate:"required"`
	SupplierID   *int64             `json:"supplier_id"`
	OrderDate    *time.Time         `json:"order_date"`
	ExpectedDate *time.Time         `json:"expected_date"`
	Items        []orderItemRequest `json:"items" validate:"required,min=1"`
}

type receiptLineRequest struct {
	ItemID     int64           `json:"item_id" validate:"required"`
	Quantity   float64         `json:"quantity"`
	LocationID *int64          `json:"location_id"`
	LotNumber  string          `json:"lot_number"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

type receiveRequest struct {
	Items []receiptLineRequest `json:"items"`
}

type orderResponse struct {
	Order PurchaseOrder       `json:"order"`
	Items []PurchaseOrderItem `json:"items"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateOrderInput{
		WarehouseID:  req.WarehouseID,
		SupplierID:   req.SupplierID,
		ExpectedDate: req.ExpectedDate,
	}
	if req.OrderDate != nil {
		input.OrderDate = *req.OrderDate
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, OrderItemInput{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	order, items, err := h.service.CreatePurchaseOrder(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, orderResponse{Order: order, Items: items})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase order id")
		return
	}
	order, items, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse{Order: order, Items: items})
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase order id")
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	lines := make([]ReceiptLine, len(req.Items))
	for i, line := range req.Items {
		lines[i] = ReceiptLine{
			ItemID:     line.ItemID,
			Quantity:   line.Quantity,
			LocationID: line.LocationID,
			LotNumber:  line.LotNumber,
			UnitCost:   line.UnitCost,
		}
	}
	result, err := h.service.Receive(r.Context(), id, lines, ReceiveOptions{
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"receivedQty": result.ReceivedQty,
		"status":      result.Status,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrReceiveCeiling), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wareline/wareline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the product catalog.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/import", h.handleImport)
}

type importRequest struct {
	Products []ImportRecord `json:"products"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	summary, err := h.service.ReconcileImport(r.Context(), req.Products)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{Search: q.Get("search")}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filters.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filters.Offset = offset
	}
	if active := q.Get("is_active"); active != "" {
		isActive := active == "true"
		filters.IsActive = &isActive
	}
	products, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("catalog request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

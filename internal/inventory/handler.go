package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/vantage-erp/vantage-erp/internal/ledger"
	"github.com/vantage-erp/vantage-erp/internal/platform/db"
	"github.com/vantage-erp/vantage-erp/internal/platform/httpx"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// Handler exposes the costing service over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Post("/receipts", h.receive)
		r.Post("/allocations", h.allocate)
		r.Post("/shipments", h.ship)
		r.Get("/balances/{itemID}/{warehouseID}", h.balance)
	})
}

type receiveRequest struct {
	ItemID      int64  `json:"item_id" validate:"required"`
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	Quantity    string `json:"quantity" validate:"required"`
	UnitCost    string `json:"unit_cost" validate:"required"`
	Code        string `json:"code"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quantity")
		return
	}
	unitCost, err := decimal.NewFromString(req.UnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid unit cost")
		return
	}
	result, err := h.service.ReceiveStock(r.Context(), ReceiveInput{
		TenantID:    tenantID,
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Quantity:    quantity,
		UnitCost:    unitCost,
		Code:        req.Code,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type allocateRequest struct {
	ItemID      int64  `json:"item_id" validate:"required"`
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	Quantity    string `json:"quantity" validate:"required"`
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req allocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quantity")
		return
	}
	balance, err := h.service.AllocateInventory(r.Context(), AllocateInput{
		TenantID:    tenantID,
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Quantity:    quantity,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

type shipRequest struct {
	ItemID      int64  `json:"item_id" validate:"required"`
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	Quantity    string `json:"quantity" validate:"required"`
	Code        string `json:"code"`
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req shipRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quantity")
		return
	}
	result, err := h.service.ShipStock(r.Context(), ShipInput{
		TenantID:    tenantID,
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Quantity:    quantity,
		Code:        req.Code,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	warehouseID, err := strconv.ParseInt(chi.URLParam(r, "warehouseID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse id")
		return
	}
	balance, err := h.service.GetBalance(r.Context(), tenantID, itemID, warehouseID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var available *InsufficientAvailableError
	var stock *InsufficientStockError
	switch {
	case errors.As(err, &available):
		httpx.ProblemWithMeta(w, http.StatusUnprocessableEntity, "Insufficient Available", err.Error(), map[string]string{
			"requested": available.Requested.String(),
			"available": available.Available.String(),
		})
	case errors.As(err, &stock):
		httpx.ProblemWithMeta(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error(), map[string]string{
			"requested": stock.Requested.String(),
			"on_hand":   stock.OnHand.String(),
		})
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrBalanceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledger.ErrMappingNotFound):
		httpx.Problem(w, http.StatusConflict, "Mapping Missing", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, db.ErrLockContention):
		w.Header().Set("Retry-After", "1")
		httpx.Problem(w, http.StatusServiceUnavailable, "Busy", "concurrent update in progress, retry")
	default:
		h.logger.Error("inventory request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Lixing-Zhang/restaurant-backend/internal/service"
	"github.com/shopspring/decimal"
)

// DishHandler handles dish HTTP requests
type DishHandler struct {
	menu   *service.MenuService
	orders *service.OrderService
	logger *slog.Logger
}

// NewDishHandler creates a new dish handler
func NewDishHandler(menu *service.MenuService, orders *service.OrderService, logger *slog.Logger) *DishHandler {
	return &DishHandler{
		menu:   menu,
		orders: orders,
		logger: logger,
	}
}

// PriceRequest is the body of a price update
type PriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// RestockRequest is the body of a restock
type RestockRequest struct {
	Quantity int `json:"quantity"`
}

// GetDish handles GET /api/dish/{dishId}
// - 200: successful operation
// - 400: Invalid ID supplied
// - 404: Dish not found
func (h *DishHandler) GetDish(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "dishId")
	if err != nil {
		h.logger.Warn("invalid dish ID format", "path", r.URL.Path)
		WriteError(w, http.StatusBadRequest, "Invalid ID supplied", h.logger)
		return
	}

	dish, err := h.menu.FindDish(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, dish, h.logger)
}

// UpdatePrice handles PUT /api/dish/{dishId}/price
func (h *DishHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "dishId")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid ID supplied", h.logger)
		return
	}

	var req PriceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", h.logger)
		return
	}

	dish, err := h.menu.UpdateDishPrice(r.Context(), id, req.Price)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, dish, h.logger)
}

// Restock handles POST /api/dish/{dishId}/restock
func (h *DishHandler) Restock(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "dishId")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid ID supplied", h.logger)
		return
	}

	var req RestockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", h.logger)
		return
	}

	dish, err := h.orders.RestockDish(r.Context(), id, req.Quantity)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, dish, h.logger)
}

// DeleteDish handles DELETE /api/dish/{dishId}
func (h *DishHandler) DeleteDish(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "dishId")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid ID supplied", h.logger)
		return
	}

	if err := h.menu.DeleteDish(r.Context(), id); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

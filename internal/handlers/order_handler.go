package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/Lixing-Zhang/restaurant-backend/internal/service"
	"github.com/go-chi/chi/v5"
)

const quantityFieldPrefix = "quantity_"

var errBadForm = errors.New("invalid order form")

// OrderHandler handles order-related HTTP requests
type OrderHandler struct {
	orderService *service.OrderService
	log          *slog.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService *service.OrderService, log *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		log:          log,
	}
}

// PaidRequest is the body of a payment update
type PaidRequest struct {
	Paid *bool `json:"paid"`
}

// OrderResponse is an order with its derived total
type OrderResponse struct {
	models.Order
	Total string `json:"total"`
}

func newOrderResponse(o *models.Order) OrderResponse {
	return OrderResponse{Order: *o, Total: o.Total().StringFixed(2)}
}

// CreateOrder handles POST /api/order
// Accepts a JSON OrderRequest or a form with customer_label and quantity_<dishId> fields.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var (
		req models.OrderRequest
		err error
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		req, err = h.orderFromForm(w, r)
		if errors.Is(err, errBadForm) {
			h.log.Warn("failed to parse order form", "error", err)
			WriteError(w, http.StatusBadRequest, "Invalid form", h.log)
			return
		}
		if err != nil {
			WriteServiceError(w, err, h.log)
			return
		}
	default:
		if err := decodeJSON(w, r, &req); err != nil {
			h.log.Warn("failed to decode order request", "error", err)
			WriteError(w, http.StatusBadRequest, "Invalid request body", h.log)
			return
		}
	}

	order, err := h.orderService.PlaceOrder(r.Context(), req.CustomerLabel, req.Items)
	if err != nil {
		WriteServiceError(w, err, h.log)
		return
	}

	WriteJSON(w, http.StatusCreated, newOrderResponse(order), h.log)
}

// orderFromForm reads the waiter form. Blank and zero quantities are left out.
func (h *OrderHandler) orderFromForm(w http.ResponseWriter, r *http.Request) (models.OrderRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return models.OrderRequest{}, fmt.Errorf("%w: %v", errBadForm, err)
	}

	req := models.OrderRequest{CustomerLabel: r.PostForm.Get("customer_label")}

	keys := make([]string, 0, len(r.PostForm))
	for key := range r.PostForm {
		if strings.HasPrefix(key, quantityFieldPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		dishID, err := strconv.ParseInt(strings.TrimPrefix(key, quantityFieldPrefix), 10, 64)
		if err != nil {
			return models.OrderRequest{}, fmt.Errorf("%w: field %s", errBadForm, key)
		}
		qty, err := service.ParseQuantity(r.PostForm.Get(key))
		if err != nil {
			return models.OrderRequest{}, err
		}
		if qty == 0 {
			continue
		}
		req.Items = append(req.Items, models.LineRequest{DishID: dishID, Quantity: qty})
	}
	return req, nil
}

// ListOrders handles GET /api/order
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderService.ListOrders(r.Context())
	if err != nil {
		WriteServiceError(w, err, h.log)
		return
	}

	resp := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	WriteJSON(w, http.StatusOK, resp, h.log)
}

// GetOrder handles GET /api/order/{orderId}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		WriteServiceError(w, err, h.log)
		return
	}
	WriteJSON(w, http.StatusOK, newOrderResponse(order), h.log)
}

// MarkPaid handles PUT /api/order/{orderId}/paid
// An empty body marks the order as paid.
func (h *OrderHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	paid := true
	if r.ContentLength != 0 {
		var req PaidRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid request body", h.log)
			return
		}
		if req.Paid != nil {
			paid = *req.Paid
		}
	}

	order, err := h.orderService.MarkPaid(r.Context(), chi.URLParam(r, "orderId"), paid)
	if err != nil {
		WriteServiceError(w, err, h.log)
		return
	}
	WriteJSON(w, http.StatusOK, newOrderResponse(order), h.log)
}

// DeleteOrder handles DELETE /api/order/{orderId}
func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orderService.DeleteOrder(r.Context(), chi.URLParam(r, "orderId")); err != nil {
		WriteServiceError(w, err, h.log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/Lixing-Zhang/restaurant-backend/internal/repository"
	"github.com/go-chi/chi/v5"
)

func TestOrderHandler_CreateOrder(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		expectedStatus int
		checkResponse  func(*testing.T, *OrderResponse)
		checkError     func(*testing.T, *ErrorResponse)
	}{
		{
			name: "successful order",
			requestBody: models.OrderRequest{
				CustomerLabel: "Mesa 3",
				Items: []models.LineRequest{
					{DishID: dishP1, Quantity: 2},
					{DishID: dishP2, Quantity: 2},
				},
			},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, order *OrderResponse) {
				if order.ID == "" {
					t.Error("order ID is empty")
				}
				if order.CustomerLabel != "Mesa 3" {
					t.Errorf("customerLabel = %q, want %q", order.CustomerLabel, "Mesa 3")
				}
				if len(order.Lines) != 2 {
					t.Errorf("expected 2 lines, got %d", len(order.Lines))
				}
				if order.Total != "80.00" {
					t.Errorf("total = %s, want 80.00", order.Total)
				}
			},
		},
		{
			name: "insufficient stock",
			requestBody: models.OrderRequest{
				CustomerLabel: "Mesa 4",
				Items:         []models.LineRequest{{DishID: dishP2, Quantity: 3}},
			},
			expectedStatus: http.StatusConflict,
			checkError: func(t *testing.T, resp *ErrorResponse) {
				if resp.DishID != dishP2 {
					t.Errorf("dishId = %d, want %d", resp.DishID, dishP2)
				}
				if resp.Requested == nil || *resp.Requested != 3 {
					t.Errorf("requested = %v, want 3", resp.Requested)
				}
				if resp.Available == nil || *resp.Available != 2 {
					t.Errorf("available = %v, want 2", resp.Available)
				}
			},
		},
		{
			name: "sold out dish",
			requestBody: models.OrderRequest{
				CustomerLabel: "Mesa 4",
				Items:         []models.LineRequest{{DishID: dishB2, Quantity: 1}},
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "empty order",
			requestBody: models.OrderRequest{
				CustomerLabel: "Mesa 5",
				Items:         []models.LineRequest{},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing customer label",
			requestBody: models.OrderRequest{
				Items: []models.LineRequest{{DishID: dishP1, Quantity: 1}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "negative quantity",
			requestBody: models.OrderRequest{
				CustomerLabel: "Mesa 6",
				Items:         []models.LineRequest{{DishID: dishP1, Quantity: -1}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown dish",
			requestBody: models.OrderRequest{
				CustomerLabel: "Mesa 7",
				Items:         []models.LineRequest{{DishID: 99999, Quantity: 1}},
			},
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, resp *ErrorResponse) {
				if resp.DishID != 99999 {
					t.Errorf("dishId = %d, want 99999", resp.DishID)
				}
			},
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid json",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown field",
			requestBody:    `{"customerLabel":"Mesa 8","items":[],"couponCode":"X"}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			handler := NewOrderHandler(env.orders, env.log)

			var body []byte
			var err error

			if str, ok := tt.requestBody.(string); ok {
				body = []byte(str)
			} else {
				body, err = json.Marshal(tt.requestBody)
				if err != nil {
					t.Fatalf("failed to marshal request: %v", err)
				}
			}

			req := httptest.NewRequest(http.MethodPost, "/api/order", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.CreateOrder(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d, body: %s", w.Code, tt.expectedStatus, w.Body.String())
			}

			if tt.checkResponse != nil {
				var order OrderResponse
				if err := json.NewDecoder(w.Body).Decode(&order); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				tt.checkResponse(t, &order)
			}
			if tt.checkError != nil {
				var resp ErrorResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode error: %v", err)
				}
				tt.checkError(t, &resp)
			}
		})
	}
}

func TestOrderHandler_CreateOrderLeavesStockOnRejection(t *testing.T) {
	env := newTestEnv(t)
	handler := NewOrderHandler(env.orders, env.log)

	body := `{"customerLabel":"Mesa 3","items":[{"dishId":3,"quantity":2},{"dishId":4,"quantity":5}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/order", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.CreateOrder(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if got := env.stock(t, dishP1); got != 10 {
		t.Errorf("P1 stock = %d, want 10", got)
	}
	if got := env.stock(t, dishP2); got != 2 {
		t.Errorf("P2 stock = %d, want 2", got)
	}
}

func TestOrderHandler_CreateOrderFromForm(t *testing.T) {
	tests := []struct {
		name           string
		form           url.Values
		expectedStatus int
		expectedLines  int
	}{
		{
			name: "blank and zero fields are ignored",
			form: url.Values{
				"customer_label": {"Mesa 3"},
				"quantity_3":     {"2"},
				"quantity_4":     {""},
				"quantity_1":     {"0"},
			},
			expectedStatus: http.StatusCreated,
			expectedLines:  1,
		},
		{
			name: "non numeric quantity",
			form: url.Values{
				"customer_label": {"Mesa 3"},
				"quantity_3":     {"dois"},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "malformed dish field",
			form: url.Values{
				"customer_label": {"Mesa 3"},
				"quantity_abc":   {"1"},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "nothing selected",
			form: url.Values{
				"customer_label": {"Mesa 3"},
				"quantity_3":     {""},
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			handler := NewOrderHandler(env.orders, env.log)

			req := httptest.NewRequest(http.MethodPost, "/api/order", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()

			handler.CreateOrder(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d, body: %s", w.Code, tt.expectedStatus, w.Body.String())
			}
			if tt.expectedStatus != http.StatusCreated {
				return
			}

			var order OrderResponse
			if err := json.NewDecoder(w.Body).Decode(&order); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(order.Lines) != tt.expectedLines {
				t.Errorf("expected %d lines, got %d", tt.expectedLines, len(order.Lines))
			}
		})
	}
}

func TestOrderHandler_StorageUnavailable(t *testing.T) {
	env := newTestEnvWithStore(t, unavailableStore{Store: repository.NewMemoryStore()})
	handler := NewOrderHandler(env.orders, env.log)

	body := `{"customerLabel":"Mesa 3","items":[{"dishId":3,"quantity":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/order", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.CreateOrder(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if !resp.Retryable {
		t.Error("expected retryable error")
	}
	if strings.Contains(resp.Error, "connection reset") {
		t.Errorf("storage detail leaked to client: %q", resp.Error)
	}
}

func TestOrderHandler_OrderLifecycle(t *testing.T) {
	env := newTestEnv(t)
	handler := NewOrderHandler(env.orders, env.log)

	r := chi.NewRouter()
	r.Post("/api/order", handler.CreateOrder)
	r.Get("/api/order", handler.ListOrders)
	r.Get("/api/order/{orderId}", handler.GetOrder)
	r.Put("/api/order/{orderId}/paid", handler.MarkPaid)
	r.Delete("/api/order/{orderId}", handler.DeleteOrder)

	placed, err := env.orders.PlaceOrder(context.Background(), "Mesa 9", []models.LineRequest{
		{DishID: dishB1, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}

	t.Run("get order", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/order/"+placed.ID, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var order OrderResponse
		if err := json.NewDecoder(w.Body).Decode(&order); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if order.Total != "13.00" {
			t.Errorf("total = %s, want 13.00", order.Total)
		}
		if order.Paid {
			t.Error("new order should not be paid")
		}
	})

	t.Run("list orders", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/order", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var orders []OrderResponse
		if err := json.NewDecoder(w.Body).Decode(&orders); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(orders) != 1 || orders[0].ID != placed.ID {
			t.Errorf("unexpected orders: %+v", orders)
		}
	})

	t.Run("mark paid with empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/order/"+placed.ID+"/paid", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var order OrderResponse
		if err := json.NewDecoder(w.Body).Decode(&order); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !order.Paid {
			t.Error("expected order to be paid")
		}
	})

	t.Run("mark unpaid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/order/"+placed.ID+"/paid", strings.NewReader(`{"paid":false}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var order OrderResponse
		if err := json.NewDecoder(w.Body).Decode(&order); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if order.Paid {
			t.Error("expected order to be unpaid")
		}
	})

	t.Run("delete order keeps stock", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/order/"+placed.ID, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if got := env.stock(t, dishB1); got != 18 {
			t.Errorf("B1 stock = %d, want 18", got)
		}
	})

	t.Run("deleted order is gone", func(t *testing.T) {
		for _, method := range []string{http.MethodGet, http.MethodDelete} {
			req := httptest.NewRequest(method, "/api/order/"+placed.ID, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("%s status = %d, want %d", method, w.Code, http.StatusNotFound)
			}
		}
	})
}

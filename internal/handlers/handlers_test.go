package handlers

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/Lixing-Zhang/restaurant-backend/internal/repository"
	"github.com/Lixing-Zhang/restaurant-backend/internal/service"
	"github.com/Lixing-Zhang/restaurant-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// Seeded dish IDs: categories are created by name, dishes by code.
const (
	dishB1 = int64(1) // Suco de Laranja, 6.50, stock 20
	dishB2 = int64(2) // Refrigerante, 5.00, sold out
	dishP1 = int64(3) // Bife à Parmegiana, 25.00, stock 10
	dishP2 = int64(4) // Frango Grelhado, 15.00, stock 2
)

type testEnv struct {
	store  repository.Store
	menu   *service.MenuService
	orders *service.OrderService
	log    *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, repository.NewMemoryStore())
}

func newTestEnvWithStore(t *testing.T, store repository.Store) *testEnv {
	t.Helper()

	log := logger.New("error")
	menu := service.NewMenuService(store, log)
	if _, err := menu.ImportMenu(context.Background(), models.MenuImport{
		"Pratos Principais": {
			"P1": {Name: "Bife à Parmegiana", Price: decimal.RequireFromString("25.00"), Stock: 10},
			"P2": {Name: "Frango Grelhado", Price: decimal.RequireFromString("15.00"), Stock: 2},
		},
		"Bebidas": {
			"B1": {Name: "Suco de Laranja", Price: decimal.RequireFromString("6.50"), Stock: 20},
			"B2": {Name: "Refrigerante", Price: decimal.RequireFromString("5.00"), Stock: 0},
		},
	}); err != nil {
		t.Fatalf("failed to seed menu: %v", err)
	}

	return &testEnv{
		store:  store,
		menu:   menu,
		orders: service.NewOrderService(store, service.NewStockLedger(store), log),
		log:    log,
	}
}

func (e *testEnv) stock(t *testing.T, id int64) int {
	t.Helper()
	dish, err := e.store.GetDish(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to read dish %d: %v", id, err)
	}
	return dish.Stock
}

// unavailableStore fails every transaction, like a database that dropped its connection
type unavailableStore struct {
	repository.Store
}

func (unavailableStore) Begin(context.Context) (repository.Tx, error) {
	return nil, errors.New("connection reset by peer")
}

func (unavailableStore) ListOrders(context.Context) ([]models.Order, error) {
	return nil, errors.New("connection reset by peer")
}

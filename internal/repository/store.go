package repository

import (
	"context"
	"errors"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrDishNotFound     = errors.New("dish not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrDishReferenced   = errors.New("dish is referenced by an order")
	ErrNegativeStock    = errors.New("stock cannot be negative")
	ErrDishNotLocked    = errors.New("dish must be locked with GetDishForUpdate before it is written")
	ErrDuplicateOrder   = errors.New("order already exists")
	ErrTxDone           = errors.New("transaction already committed or rolled back")
)

// Store is the persistence gateway for the menu and its orders.
// Reads return copies; callers never hold references into store state.
type Store interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListDishes(ctx context.Context) ([]models.Dish, error)
	GetDish(ctx context.Context, id int64) (*models.Dish, error)
	GetDishByCode(ctx context.Context, code string) (*models.Dish, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)

	// ImportMenu upserts categories by name and dishes by code.
	ImportMenu(ctx context.Context, menu models.MenuImport) (*models.ImportResult, error)
	UpdateDishPrice(ctx context.Context, id int64, price decimal.Decimal) (*models.Dish, error)
	// DeleteDish fails with ErrDishReferenced if any order line points at the dish.
	DeleteDish(ctx context.Context, id int64) error
	// DeleteCategory removes the category and its dishes.
	DeleteCategory(ctx context.Context, id int64) error
	SetOrderPaid(ctx context.Context, id string, paid bool) (*models.Order, error)
	// DeleteOrder removes the order and its lines.
	DeleteOrder(ctx context.Context, id string) error

	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is a unit of work over dish stock and new orders.
// Nothing written through a Tx is visible to readers before Commit.
type Tx interface {
	// GetDishForUpdate returns the current dish and holds it exclusively
	// until Commit or Rollback.
	GetDishForUpdate(ctx context.Context, id int64) (*models.Dish, error)
	UpdateDishStock(ctx context.Context, id int64, stock int) error
	InsertOrder(ctx context.Context, order *models.Order) error
	InsertOrderLine(ctx context.Context, line *models.OrderLine) error
	Commit(ctx context.Context) error
	// Rollback discards the transaction. It is a no-op after Commit.
	Rollback(ctx context.Context) error
}

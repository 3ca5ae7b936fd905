package service

import (
	"context"
	"errors"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/Lixing-Zhang/restaurant-backend/internal/repository"
)

// MaxQuantity bounds a single reservation or restock
const MaxQuantity = 1_000_000

// StockLedger is the only writer of dish stock.
// Every change happens under the dish's row lock inside a store transaction.
type StockLedger struct {
	store repository.Store
}

// NewStockLedger creates a new stock ledger
func NewStockLedger(store repository.Store) *StockLedger {
	return &StockLedger{store: store}
}

// Reserve locks the dish in tx and takes quantity units from its stock.
// When the stock is short nothing is written and an *InsufficientStockError
// carrying the available amount is returned.
// The returned dish reflects the stock after the reservation.
func (l *StockLedger) Reserve(ctx context.Context, tx repository.Tx, dishID int64, quantity int) (*models.Dish, error) {
	if quantity <= 0 || quantity > MaxQuantity {
		return nil, &InvalidQuantityError{DishID: dishID, Quantity: quantity}
	}

	dish, err := tx.GetDishForUpdate(ctx, dishID)
	if err != nil {
		if errors.Is(err, repository.ErrDishNotFound) {
			return nil, &UnknownDishError{DishID: dishID}
		}
		return nil, storageError("lock dish", err)
	}

	if dish.Stock < quantity {
		return nil, &InsufficientStockError{
			DishID:    dish.ID,
			DishName:  dish.Name,
			Requested: quantity,
			Available: dish.Stock,
		}
	}

	if err := tx.UpdateDishStock(ctx, dishID, dish.Stock-quantity); err != nil {
		return nil, storageError("update stock", err)
	}
	dish.Stock -= quantity
	return dish, nil
}

// Restock adds quantity units to a dish in its own transaction and returns the new stock
func (l *StockLedger) Restock(ctx context.Context, dishID int64, quantity int) (int, error) {
	if quantity <= 0 || quantity > MaxQuantity {
		return 0, &InvalidQuantityError{DishID: dishID, Quantity: quantity}
	}

	tx, err := l.store.Begin(ctx)
	if err != nil {
		return 0, storageError("begin", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	dish, err := tx.GetDishForUpdate(ctx, dishID)
	if err != nil {
		return 0, translate("lock dish", err)
	}

	newStock := dish.Stock + quantity
	if err := tx.UpdateDishStock(ctx, dishID, newStock); err != nil {
		return 0, storageError("update stock", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, storageError("commit", err)
	}
	return newStock, nil
}

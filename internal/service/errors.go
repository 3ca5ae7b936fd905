package service

import (
	"errors"
	"fmt"

	"github.com/Lixing-Zhang/restaurant-backend/internal/repository"
)

var (
	ErrEmptyOrder        = errors.New("order must have a customer label and at least one item")
	ErrUnknownDish       = errors.New("unknown dish")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDishNotFound      = errors.New("dish not found")
	ErrStorageFailure    = errors.New("storage failure")
	ErrOrderNotFound     = errors.New("order not found")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrDishReferenced    = errors.New("dish is referenced by an existing order")
	ErrInvalidPrice      = errors.New("price must be non-negative with at most 2 decimal places")
)

// UnknownDishError is returned when an order line names a dish that does not exist
type UnknownDishError struct {
	DishID int64
}

func (e *UnknownDishError) Error() string {
	return fmt.Sprintf("unknown dish %d", e.DishID)
}

func (e *UnknownDishError) Is(target error) bool {
	return target == ErrUnknownDish
}

// InvalidQuantityError describes a rejected quantity.
// Input holds the raw text when the quantity could not be parsed.
type InvalidQuantityError struct {
	DishID   int64
	Quantity int
	Input    string
}

func (e *InvalidQuantityError) Error() string {
	switch {
	case e.Input != "":
		return fmt.Sprintf("invalid quantity %q", e.Input)
	case e.DishID != 0:
		return fmt.Sprintf("invalid quantity %d for dish %d", e.Quantity, e.DishID)
	default:
		return fmt.Sprintf("invalid quantity %d", e.Quantity)
	}
}

func (e *InvalidQuantityError) Is(target error) bool {
	return target == ErrInvalidQuantity
}

// InsufficientStockError reports the dish that could not be reserved and what was left
type InsufficientStockError struct {
	DishID    int64
	DishName  string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.DishName, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// StorageError wraps a failure of the persistence layer. The operation
// had no effect and may be retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// translate maps repository errors onto service errors.
// Anything unrecognised is a storage failure.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDishNotFound):
		return ErrDishNotFound
	case errors.Is(err, repository.ErrCategoryNotFound):
		return ErrCategoryNotFound
	case errors.Is(err, repository.ErrOrderNotFound):
		return ErrOrderNotFound
	case errors.Is(err, repository.ErrDishReferenced):
		return ErrDishReferenced
	default:
		return storageError(op, err)
	}
}

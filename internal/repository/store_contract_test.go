package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMenu() models.MenuImport {
	return models.MenuImport{
		"Pratos Principais": {
			"P1": {Name: "Bife à Parmegiana", Price: decimal.RequireFromString("25.00"), Stock: 10},
			"P2": {Name: "Frango Grelhado", Price: decimal.RequireFromString("15.00"), Stock: 2},
		},
		"Bebidas": {
			"B1": {Name: "Suco de Laranja", Price: decimal.RequireFromString("6.50"), Stock: 20},
		},
	}
}

func mustDish(t *testing.T, s Store, code string) *models.Dish {
	t.Helper()
	d, err := s.GetDishByCode(context.Background(), code)
	require.NoError(t, err)
	return d
}

// placeTestOrder writes an order through a Tx the way the order service does
func placeTestOrder(t *testing.T, s Store, label string, createdAt time.Time, dish *models.Dish, qty int) *models.Order {
	t.Helper()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	locked, err := tx.GetDishForUpdate(ctx, dish.ID)
	require.NoError(t, err)
	require.NoError(t, tx.UpdateDishStock(ctx, dish.ID, locked.Stock-qty))

	order := &models.Order{ID: uuid.NewString(), CustomerLabel: label, CreatedAt: createdAt}
	require.NoError(t, tx.InsertOrder(ctx, order))
	require.NoError(t, tx.InsertOrderLine(ctx, &models.OrderLine{
		OrderID: order.ID, DishID: dish.ID, Quantity: qty, UnitPrice: locked.Price,
	}))
	require.NoError(t, tx.Commit(ctx))
	return order
}

// runStoreContract checks the behaviour every Store backend must share
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("import creates then upserts", func(t *testing.T) {
		s := newStore(t)

		res, err := s.ImportMenu(ctx, testMenu())
		require.NoError(t, err)
		assert.Equal(t, models.ImportResult{CategoriesCreated: 2, DishesCreated: 3}, *res)

		menu := testMenu()
		menu["Bebidas"]["B1"] = models.DishSeed{Name: "Suco de Uva", Price: decimal.RequireFromString("7.00"), Stock: 5}
		res, err = s.ImportMenu(ctx, menu)
		require.NoError(t, err)
		assert.Equal(t, models.ImportResult{DishesUpdated: 3}, *res)

		b1 := mustDish(t, s, "B1")
		assert.Equal(t, "Suco de Uva", b1.Name)
		assert.Equal(t, "Bebidas", b1.Category)
		assert.True(t, decimal.RequireFromString("7.00").Equal(b1.Price))
		assert.Equal(t, 5, b1.Stock)

		categories, err := s.ListCategories(ctx)
		require.NoError(t, err)
		assert.Len(t, categories, 2)

		dishes, err := s.ListDishes(ctx)
		require.NoError(t, err)
		assert.Len(t, dishes, 3)
	})

	t.Run("lookups", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ImportMenu(ctx, testMenu())
		require.NoError(t, err)

		p1 := mustDish(t, s, "p1")
		assert.Equal(t, "P1", p1.Code)

		byID, err := s.GetDish(ctx, p1.ID)
		require.NoError(t, err)
		assert.Equal(t, p1.Name, byID.Name)

		_, err = s.GetDish(ctx, 9999)
		assert.ErrorIs(t, err, ErrDishNotFound)
		_, err = s.GetDishByCode(ctx, "ZZ")
		assert.ErrorIs(t, err, ErrDishNotFound)
		_, err = s.GetOrder(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("commit applies stock and order together", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ImportMenu(ctx, testMenu())
		require.NoError(t, err)
		p1 := mustDish(t, s, "P1")

		order := placeTestOrder(t, s, "Mesa 1", time.Now().UTC(), p1, 3)

		assert.Equal(t, 7, mustDish(t, s, "P1").Stock)

		got, err := s.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, "Mesa 1", got.CustomerLabel)
		assert.False(t, got.Paid)
		require.Len(t, got.Lines, 1)
		assert.Equal(t, "P1", got.Lines[0].DishCode)
		assert.Equal(t, 3, got.Lines[0].Quantity)
		assert.True(t, decimal.RequireFromString("75.00").Equal(got.Total()))
	})

	t.Run("rollback discards everything", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ImportMenu(ctx, testMenu())
		require.NoError(t, err)
		p1 := mustDish(t, s, "P1")

		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		_, err = tx.GetDishForUpdate(ctx, p1.ID)
		require.NoError(t, err)
		require.NoError(t, tx.UpdateDishStock(ctx, p1.ID, 1))
		order := &models.Order{ID: uuid.NewString(), CustomerLabel: "Mesa 2", CreatedAt: time.Now().UTC()}
		require.NoError(t, tx.InsertOrder(ctx, order))
		require.NoError(t, tx.Rollback(ctx))

		assert.Equal(t, 10, mustDish(t, s, "P1").Stock)
		_, err = s.GetOrder(ctx, order.ID)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("stock writes need the row lock and stay non-negative", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ImportMenu(ctx, testMenu())
		require.NoError(t, err)
		p1 := mustDish(t, s, "P1")

		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		assert.ErrorIs(t, tx.UpdateDishStock(ctx, p1.ID, 5), ErrDishNotLocked)

		_, err = tx.GetDishForUpdate(ctx, p1.ID)
		require.NoError(t, err)
		assert.ErrorIs(t, tx.UpdateDishStock(ctx, p1.ID, -1), ErrNegativeStock)

		_, err = tx.GetDishForUpdate(ctx, 9999)
		assert.ErrorIs(t, err, ErrDishNotFound)
	})

	t.Run("price edits do not touch recorded line prices", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ImportMenu(ctx, testMenu())
		require.NoError(t, err)
		p1 := mustDish(t, s, "P1")
		order := placeTestOrder(t, s, "Mesa 3", time.Now().UTC(), p1, 2)

		updated, err := s.UpdateDishPrice(ctx, p1.ID, decimal.RequireFromString("99.90"))
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("99.90").Equal(updated.Price))

		got, err := s.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("50.00").Equal(got.Total()))

		_, err = s.UpdateDishPrice(ctx, 9999, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, ErrDishNotFound)
	})

	t.Run("deletes respect references", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ImportMenu(ctx, testMenu())
		require.NoError(t, err)
		p1 := mustDish(t, s, "P1")
		b1 := mustDish(t, s, "B1")
		order := placeTestOrder(t, s, "Mesa 4", time.Now().UTC(), p1, 1)

		assert.ErrorIs(t, s.DeleteDish(ctx, p1.ID), ErrDishReferenced)
		assert.ErrorIs(t, s.DeleteCategory(ctx, p1.CategoryID), ErrDishReferenced)
		assert.ErrorIs(t, s.DeleteDish(ctx, 9999), ErrDishNotFound)
		assert.ErrorIs(t, s.DeleteCategory(ctx, 9999), ErrCategoryNotFound)

		require.NoError(t, s.DeleteCategory(ctx, b1.CategoryID))
		_, err = s.GetDish(ctx, b1.ID)
		assert.ErrorIs(t, err, ErrDishNotFound)

		require.NoError(t, s.DeleteOrder(ctx, order.ID))
		assert.ErrorIs(t, s.DeleteOrder(ctx, order.ID), ErrOrderNotFound)

		require.NoError(t, s.DeleteDish(ctx, p1.ID))
	})

	t.Run("orders list newest first and toggle paid", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ImportMenu(ctx, testMenu())
		require.NoError(t, err)
		b1 := mustDish(t, s, "B1")

		base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		first := placeTestOrder(t, s, "Mesa 5", base, b1, 1)
		second := placeTestOrder(t, s, "Mesa 6", base.Add(time.Minute), b1, 2)

		orders, err := s.ListOrders(ctx)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, second.ID, orders[0].ID)
		assert.Equal(t, first.ID, orders[1].ID)
		assert.Len(t, orders[0].Lines, 1)

		paid, err := s.SetOrderPaid(ctx, first.ID, true)
		require.NoError(t, err)
		assert.True(t, paid.Paid)
		paid, err = s.SetOrderPaid(ctx, first.ID, true)
		require.NoError(t, err)
		assert.True(t, paid.Paid)

		_, err = s.SetOrderPaid(ctx, uuid.NewString(), true)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("malformed order ids are not found", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetOrder(ctx, "mesa-1")
		assert.ErrorIs(t, err, ErrOrderNotFound)
		_, err = s.SetOrderPaid(ctx, "mesa-1", true)
		assert.ErrorIs(t, err, ErrOrderNotFound)
		assert.ErrorIs(t, s.DeleteOrder(ctx, "mesa-1"), ErrOrderNotFound)
	})

	t.Run("import matches names and codes ignoring case", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ImportMenu(ctx, testMenu())
		require.NoError(t, err)

		res, err := s.ImportMenu(ctx, models.MenuImport{
			"bebidas": {
				"b1": {Name: "Suco de Caju", Price: decimal.RequireFromString("6.00"), Stock: 8},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, models.ImportResult{DishesUpdated: 1}, *res)

		categories, err := s.ListCategories(ctx)
		require.NoError(t, err)
		assert.Len(t, categories, 2)

		b1 := mustDish(t, s, "B1")
		assert.Equal(t, "B1", b1.Code)
		assert.Equal(t, "Bebidas", b1.Category)
		assert.Equal(t, "Suco de Caju", b1.Name)

		dishes, err := s.ListDishes(ctx)
		require.NoError(t, err)
		assert.Len(t, dishes, 3)
	})

	t.Run("a locked dish waits for its holder", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ImportMenu(ctx, testMenu())
		require.NoError(t, err)
		p1 := mustDish(t, s, "P1")

		first, err := s.Begin(ctx)
		require.NoError(t, err)
		locked, err := first.GetDishForUpdate(ctx, p1.ID)
		require.NoError(t, err)
		require.NoError(t, first.UpdateDishStock(ctx, p1.ID, locked.Stock-4))

		seen := make(chan int, 1)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			second, err := s.Begin(ctx)
			if err != nil {
				return
			}
			defer second.Rollback(ctx)
			d, err := second.GetDishForUpdate(ctx, p1.ID)
			if err != nil {
				return
			}
			seen <- d.Stock
		}()

		select {
		case <-seen:
			t.Fatal("second transaction got the dish while the first still held it")
		case <-time.After(100 * time.Millisecond):
		}

		require.NoError(t, first.Commit(ctx))
		wg.Wait()
		require.Len(t, seen, 1)
		assert.Equal(t, 6, <-seen)
	})

	t.Run("concurrent decrements lose no updates", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ImportMenu(ctx, testMenu())
		require.NoError(t, err)
		b1 := mustDish(t, s, "B1")

		var (
			wg        sync.WaitGroup
			committed atomic.Int32
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tx, err := s.Begin(ctx)
				if err != nil {
					return
				}
				defer tx.Rollback(ctx)
				d, err := tx.GetDishForUpdate(ctx, b1.ID)
				if err != nil || d.Stock == 0 {
					return
				}
				if err := tx.UpdateDishStock(ctx, b1.ID, d.Stock-1); err != nil {
					return
				}
				if tx.Commit(ctx) == nil {
					committed.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(20), committed.Load())
		assert.Equal(t, 0, mustDish(t, s, "B1").Stock)
	})
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/shopspring/decimal"
)

// memoryState is the committed content of a MemoryStore
type memoryState struct {
	categories     map[int64]models.Category
	dishes         map[int64]models.Dish
	orders         map[string]models.Order
	nextCategoryID int64
	nextDishID     int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		categories: make(map[int64]models.Category),
		dishes:     make(map[int64]models.Dish),
		orders:     make(map[string]models.Order),
	}
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		categories:     make(map[int64]models.Category, len(st.categories)),
		dishes:         make(map[int64]models.Dish, len(st.dishes)),
		orders:         make(map[string]models.Order, len(st.orders)),
		nextCategoryID: st.nextCategoryID,
		nextDishID:     st.nextDishID,
	}
	for id, cat := range st.categories {
		c.categories[id] = cat
	}
	for id, dish := range st.dishes {
		c.dishes[id] = dish
	}
	for id, order := range st.orders {
		order.Lines = append([]models.OrderLine(nil), order.Lines...)
		c.orders[id] = order
	}
	return c
}

func (st *memoryState) categoryByName(name string) (models.Category, bool) {
	for _, cat := range st.categories {
		if strings.EqualFold(cat.Name, name) {
			return cat, true
		}
	}
	return models.Category{}, false
}

func (st *memoryState) dishByCode(code string) (models.Dish, bool) {
	for _, dish := range st.dishes {
		if strings.EqualFold(dish.Code, code) {
			return dish, true
		}
	}
	return models.Dish{}, false
}

func (st *memoryState) dishReferenced(id int64) bool {
	for _, order := range st.orders {
		for _, line := range order.Lines {
			if line.DishID == id {
				return true
			}
		}
	}
	return false
}

func (st *memoryState) dishIDsInCategory(categoryID int64) []int64 {
	var ids []int64
	for id, dish := range st.dishes {
		if dish.CategoryID == categoryID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// dish returns a copy of the dish with its category name filled in
func (st *memoryState) dish(id int64) (*models.Dish, bool) {
	d, ok := st.dishes[id]
	if !ok {
		return nil, false
	}
	d.Category = st.categories[d.CategoryID].Name
	return &d, true
}

// order returns a copy of the order with display fields of its lines filled in
func (st *memoryState) order(id string) (*models.Order, bool) {
	o, ok := st.orders[id]
	if !ok {
		return nil, false
	}
	lines := make([]models.OrderLine, len(o.Lines))
	for i, line := range o.Lines {
		if d, ok := st.dishes[line.DishID]; ok {
			line.DishCode = d.Code
			line.DishName = d.Name
		}
		lines[i] = line
	}
	o.Lines = lines
	return &o, true
}

// MemoryStore implements Store in memory.
// Every dish has its own lock so transactions touching disjoint dishes
// never wait on each other. The store-wide RWMutex only guards map access
// and is never held while a transaction is open.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
	// locks holds one 1-buffered channel per dish; a send acquires, a receive releases.
	locks map[int64]chan struct{}
	// persist, when set, must durably accept the next state before it replaces the current one.
	persist func(*memoryState) error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return newMemoryStore(newMemoryState(), nil)
}

func newMemoryStore(state *memoryState, persist func(*memoryState) error) *MemoryStore {
	s := &MemoryStore{
		state:   state,
		locks:   make(map[int64]chan struct{}, len(state.dishes)),
		persist: persist,
	}
	for id := range state.dishes {
		s.locks[id] = make(chan struct{}, 1)
	}
	return s
}

// mutate runs fn against the committed state under the write lock.
// fn must validate before it changes anything. With a persist hook, fn works
// on a copy that only replaces the state once persisted.
func (s *MemoryStore) mutate(fn func(st *memoryState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	if s.persist != nil {
		next = s.state.clone()
	}

	if err := fn(next); err != nil {
		return err
	}

	if s.persist != nil {
		if err := s.persist(next); err != nil {
			return fmt.Errorf("persist state: %w", err)
		}
		s.state = next
	}
	return nil
}

func (s *MemoryStore) read(fn func(st *memoryState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// acquire takes the dish lock, waiting until it is free or ctx is done
func (s *MemoryStore) acquire(ctx context.Context, id int64) (chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	lock, ok := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrDishNotFound
	}

	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// the dish may have been deleted while we waited
	var exists bool
	s.read(func(st *memoryState) { _, exists = st.dishes[id] })
	if !exists {
		<-lock
		return nil, ErrDishNotFound
	}
	return lock, nil
}

// lockDishes acquires the given dish locks in ascending id order
func (s *MemoryStore) lockDishes(ctx context.Context, ids []int64) (func(), error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	held := make([]chan struct{}, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, id := range sorted {
		lock, err := s.acquire(ctx, id)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, lock)
	}
	return release, nil
}

func (s *MemoryStore) allDishIDs() []int64 {
	var ids []int64
	s.read(func(st *memoryState) {
		ids = make([]int64, 0, len(st.dishes))
		for id := range st.dishes {
			ids = append(ids, id)
		}
	})
	return ids
}

// ListCategories returns all categories ordered by id
func (s *MemoryStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	s.read(func(st *memoryState) {
		categories = make([]models.Category, 0, len(st.categories))
		for _, cat := range st.categories {
			categories = append(categories, cat)
		}
	})
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return categories, nil
}

// ListDishes returns all dishes ordered by id
func (s *MemoryStore) ListDishes(ctx context.Context) ([]models.Dish, error) {
	var dishes []models.Dish
	s.read(func(st *memoryState) {
		dishes = make([]models.Dish, 0, len(st.dishes))
		for id := range st.dishes {
			d, _ := st.dish(id)
			dishes = append(dishes, *d)
		}
	})
	sort.Slice(dishes, func(i, j int) bool { return dishes[i].ID < dishes[j].ID })
	return dishes, nil
}

// GetDish returns a dish by its id
func (s *MemoryStore) GetDish(ctx context.Context, id int64) (*models.Dish, error) {
	var (
		dish *models.Dish
		ok   bool
	)
	s.read(func(st *memoryState) { dish, ok = st.dish(id) })
	if !ok {
		return nil, ErrDishNotFound
	}
	return dish, nil
}

// GetDishByCode returns a dish by its menu code, ignoring case
func (s *MemoryStore) GetDishByCode(ctx context.Context, code string) (*models.Dish, error) {
	var (
		dish *models.Dish
		ok   bool
	)
	s.read(func(st *memoryState) {
		var d models.Dish
		if d, ok = st.dishByCode(code); ok {
			dish, _ = st.dish(d.ID)
		}
	})
	if !ok {
		return nil, ErrDishNotFound
	}
	return dish, nil
}

// GetOrder returns an order with its lines
func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var (
		order *models.Order
		ok    bool
	)
	s.read(func(st *memoryState) { order, ok = st.order(id) })
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns all orders, newest first
func (s *MemoryStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	s.read(func(st *memoryState) {
		orders = make([]models.Order, 0, len(st.orders))
		for id := range st.orders {
			o, _ := st.order(id)
			orders = append(orders, *o)
		}
	})
	sortOrdersNewestFirst(orders)
	return orders, nil
}

func sortOrdersNewestFirst(orders []models.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
}

// ImportMenu upserts categories by name and dishes by code.
// Categories and codes are visited in sorted order so ids are deterministic.
func (s *MemoryStore) ImportMenu(ctx context.Context, menu models.MenuImport) (*models.ImportResult, error) {
	release, err := s.lockDishes(ctx, s.allDishIDs())
	if err != nil {
		return nil, err
	}
	defer release()

	result := &models.ImportResult{}
	err = s.mutate(func(st *memoryState) error {
		for _, categoryName := range sortedKeys(menu) {
			cat, ok := st.categoryByName(categoryName)
			if !ok {
				st.nextCategoryID++
				cat = models.Category{ID: st.nextCategoryID, Name: categoryName}
				st.categories[cat.ID] = cat
				result.CategoriesCreated++
			}

			dishes := menu[categoryName]
			for _, code := range sortedKeys(dishes) {
				seed := dishes[code]
				if existing, ok := st.dishByCode(code); ok {
					existing.Name = seed.Name
					existing.CategoryID = cat.ID
					existing.Price = seed.Price
					existing.Stock = seed.Stock
					st.dishes[existing.ID] = existing
					result.DishesUpdated++
					continue
				}

				st.nextDishID++
				st.dishes[st.nextDishID] = models.Dish{
					ID:         st.nextDishID,
					Code:       code,
					Name:       seed.Name,
					CategoryID: cat.ID,
					Price:      seed.Price,
					Stock:      seed.Stock,
				}
				if _, ok := s.locks[st.nextDishID]; !ok {
					s.locks[st.nextDishID] = make(chan struct{}, 1)
				}
				result.DishesCreated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateDishPrice changes the live price of a dish
func (s *MemoryStore) UpdateDishPrice(ctx context.Context, id int64, price decimal.Decimal) (*models.Dish, error) {
	release, err := s.lockDishes(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	defer release()

	var dish *models.Dish
	err = s.mutate(func(st *memoryState) error {
		d, ok := st.dishes[id]
		if !ok {
			return ErrDishNotFound
		}
		d.Price = price
		st.dishes[id] = d
		dish, _ = st.dish(id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dish, nil
}

// DeleteDish removes a dish that no order line references
func (s *MemoryStore) DeleteDish(ctx context.Context, id int64) error {
	release, err := s.lockDishes(ctx, []int64{id})
	if err != nil {
		return err
	}
	defer release()

	err = s.mutate(func(st *memoryState) error {
		if _, ok := st.dishes[id]; !ok {
			return ErrDishNotFound
		}
		if st.dishReferenced(id) {
			return ErrDishReferenced
		}
		delete(st.dishes, id)
		return nil
	})
	if err != nil {
		return err
	}
	s.dropLocks([]int64{id})
	return nil
}

// dropLocks forgets the locks of deleted dishes. Holders keep their channel.
func (s *MemoryStore) dropLocks(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.locks, id)
	}
}

// DeleteCategory removes a category and its dishes
func (s *MemoryStore) DeleteCategory(ctx context.Context, id int64) error {
	for {
		var ids []int64
		s.read(func(st *memoryState) { ids = st.dishIDsInCategory(id) })

		release, err := s.lockDishes(ctx, ids)
		if err != nil {
			return err
		}

		retry := false
		err = s.mutate(func(st *memoryState) error {
			if _, ok := st.categories[id]; !ok {
				return ErrCategoryNotFound
			}
			current := st.dishIDsInCategory(id)
			if !equalIDs(current, ids) {
				retry = true
				return nil
			}
			for _, dishID := range current {
				if st.dishReferenced(dishID) {
					return ErrDishReferenced
				}
			}
			for _, dishID := range current {
				delete(st.dishes, dishID)
			}
			delete(st.categories, id)
			return nil
		})
		release()

		if err != nil {
			return err
		}
		if !retry {
			s.dropLocks(ids)
			return nil
		}
	}
}

// SetOrderPaid sets the paid flag of an order
func (s *MemoryStore) SetOrderPaid(ctx context.Context, id string, paid bool) (*models.Order, error) {
	var order *models.Order
	err := s.mutate(func(st *memoryState) error {
		o, ok := st.orders[id]
		if !ok {
			return ErrOrderNotFound
		}
		o.Paid = paid
		st.orders[id] = o
		order, _ = st.order(id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// DeleteOrder removes an order and its lines
func (s *MemoryStore) DeleteOrder(ctx context.Context, id string) error {
	return s.mutate(func(st *memoryState) error {
		if _, ok := st.orders[id]; !ok {
			return ErrOrderNotFound
		}
		delete(st.orders, id)
		return nil
	})
}

// Begin starts a transaction
func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{
		store: s,
		held:  make(map[int64]chan struct{}),
		stock: make(map[int64]int),
	}, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// memoryTx stages stock changes and new orders until Commit
type memoryTx struct {
	store    *MemoryStore
	held     map[int64]chan struct{}
	acquired []int64
	stock    map[int64]int
	orders   []models.Order
	done     bool
}

func (tx *memoryTx) GetDishForUpdate(ctx context.Context, id int64) (*models.Dish, error) {
	if tx.done {
		return nil, ErrTxDone
	}

	if _, ok := tx.held[id]; !ok {
		lock, err := tx.store.acquire(ctx, id)
		if err != nil {
			return nil, err
		}
		tx.held[id] = lock
		tx.acquired = append(tx.acquired, id)
	}

	dish, err := tx.store.GetDish(ctx, id)
	if err != nil {
		return nil, err
	}
	if staged, ok := tx.stock[id]; ok {
		dish.Stock = staged
	}
	return dish, nil
}

func (tx *memoryTx) UpdateDishStock(ctx context.Context, id int64, stock int) error {
	if tx.done {
		return ErrTxDone
	}
	if _, ok := tx.held[id]; !ok {
		return ErrDishNotLocked
	}
	if stock < 0 {
		return ErrNegativeStock
	}
	tx.stock[id] = stock
	return nil
}

func (tx *memoryTx) InsertOrder(ctx context.Context, order *models.Order) error {
	if tx.done {
		return ErrTxDone
	}
	if order.ID == "" {
		return errors.New("order id is required")
	}
	for _, staged := range tx.orders {
		if staged.ID == order.ID {
			return ErrDuplicateOrder
		}
	}
	var exists bool
	tx.store.read(func(st *memoryState) { _, exists = st.orders[order.ID] })
	if exists {
		return ErrDuplicateOrder
	}

	header := *order
	header.Lines = nil
	tx.orders = append(tx.orders, header)
	return nil
}

func (tx *memoryTx) InsertOrderLine(ctx context.Context, line *models.OrderLine) error {
	if tx.done {
		return ErrTxDone
	}
	if line.Quantity <= 0 {
		return fmt.Errorf("order line quantity must be positive, got %d", line.Quantity)
	}

	var exists bool
	tx.store.read(func(st *memoryState) { _, exists = st.dishes[line.DishID] })
	if !exists {
		return ErrDishNotFound
	}

	for i := range tx.orders {
		if tx.orders[i].ID == line.OrderID {
			tx.orders[i].Lines = append(tx.orders[i].Lines, *line)
			return nil
		}
	}
	return ErrOrderNotFound
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	defer tx.finish()

	return tx.store.mutate(func(st *memoryState) error {
		for id := range tx.stock {
			if _, ok := st.dishes[id]; !ok {
				return ErrDishNotFound
			}
		}
		for _, order := range tx.orders {
			if _, exists := st.orders[order.ID]; exists {
				return ErrDuplicateOrder
			}
		}

		for id, stock := range tx.stock {
			d := st.dishes[id]
			d.Stock = stock
			st.dishes[id] = d
		}
		for _, order := range tx.orders {
			st.orders[order.ID] = order
		}
		return nil
	})
}

func (tx *memoryTx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.finish()
	return nil
}

// finish releases held locks in reverse acquisition order and drops the stage
func (tx *memoryTx) finish() {
	tx.done = true
	for i := len(tx.acquired) - 1; i >= 0; i-- {
		<-tx.held[tx.acquired[i]]
	}
	tx.held = nil
	tx.acquired = nil
	tx.stock = nil
	tx.orders = nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

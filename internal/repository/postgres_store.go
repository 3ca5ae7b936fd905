package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgreSQL error codes
const (
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgUniqueViolation     = "23505"
)

// PostgresStore implements Store on PostgreSQL.
// Dish rows are locked with SELECT ... FOR UPDATE for the life of a Tx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and verifies the connection
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Ping checks that the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate creates the schema if it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_categories_name ON categories (lower(name))`,

		`CREATE TABLE IF NOT EXISTS dishes (
			id BIGSERIAL PRIMARY KEY,
			category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
			code VARCHAR(10) NOT NULL,
			name VARCHAR(200) NOT NULL,
			price NUMERIC(8,2) NOT NULL CHECK (price >= 0),
			stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_dishes_code ON dishes (upper(code))`,
		`CREATE INDEX IF NOT EXISTS idx_dishes_category_id ON dishes(category_id)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			customer_label VARCHAR(255) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			paid BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,

		`CREATE TABLE IF NOT EXISTS order_lines (
			id BIGSERIAL PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			dish_id BIGINT NOT NULL REFERENCES dishes(id) ON DELETE RESTRICT,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			unit_price NUMERIC(8,2) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_lines_order_id ON order_lines(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_order_lines_dish_id ON order_lines(dish_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}

const dishColumns = `d.id, d.code, d.name, d.category_id, c.name, d.price::text, d.stock`

const dishFrom = ` FROM dishes d JOIN categories c ON c.id = d.category_id`

func scanDish(row pgx.Row) (*models.Dish, error) {
	var (
		d     models.Dish
		price string
	)
	if err := row.Scan(&d.ID, &d.Code, &d.Name, &d.CategoryID, &d.Category, &price, &d.Stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDishNotFound
		}
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q for dish %d: %w", price, d.ID, err)
	}
	d.Price = p
	return &d, nil
}

// ListCategories returns all categories ordered by id
func (s *PostgresStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ListDishes returns all dishes ordered by id
func (s *PostgresStore) ListDishes(ctx context.Context) ([]models.Dish, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+dishColumns+dishFrom+` ORDER BY d.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dishes := []models.Dish{}
	for rows.Next() {
		d, err := scanDish(rows)
		if err != nil {
			return nil, err
		}
		dishes = append(dishes, *d)
	}
	return dishes, rows.Err()
}

// GetDish returns a dish by its id
func (s *PostgresStore) GetDish(ctx context.Context, id int64) (*models.Dish, error) {
	return scanDish(s.pool.QueryRow(ctx, `SELECT `+dishColumns+dishFrom+` WHERE d.id = $1`, id))
}

// GetDishByCode returns a dish by its menu code, ignoring case
func (s *PostgresStore) GetDishByCode(ctx context.Context, code string) (*models.Dish, error) {
	return scanDish(s.pool.QueryRow(ctx,
		`SELECT `+dishColumns+dishFrom+` WHERE upper(d.code) = upper($1) ORDER BY d.id LIMIT 1`, code))
}

// GetOrder returns an order with its lines
func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	id, err := parseOrderID(id)
	if err != nil {
		return nil, err
	}

	var o models.Order
	err = s.pool.QueryRow(ctx,
		`SELECT id::text, customer_label, created_at, paid FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.CustomerLabel, &o.CreatedAt, &o.Paid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	lines, err := s.orderLines(ctx, `WHERE l.order_id = $1`, id)
	if err != nil {
		return nil, err
	}
	o.Lines = lines[o.ID]
	return &o, nil
}

// ListOrders returns all orders, newest first
func (s *PostgresStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, customer_label, created_at, paid FROM orders ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.CustomerLabel, &o.CreatedAt, &o.Paid); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := s.orderLines(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

// orderLines loads lines grouped by order id
func (s *PostgresStore) orderLines(ctx context.Context, where string, args ...any) (map[string][]models.OrderLine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.order_id::text, l.dish_id, d.code, d.name, l.quantity, l.unit_price::text
		FROM order_lines l JOIN dishes d ON d.id = l.dish_id
		`+where+`
		ORDER BY l.order_id, l.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make(map[string][]models.OrderLine)
	for rows.Next() {
		var (
			l     models.OrderLine
			price string
		)
		if err := rows.Scan(&l.OrderID, &l.DishID, &l.DishCode, &l.DishName, &l.Quantity, &price); err != nil {
			return nil, err
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid unit price %q: %w", price, err)
		}
		lines[l.OrderID] = append(lines[l.OrderID], l)
	}
	return lines, rows.Err()
}

// ImportMenu upserts categories by name and dishes by code in one transaction
func (s *PostgresStore) ImportMenu(ctx context.Context, menu models.MenuImport) (*models.ImportResult, error) {
	result := &models.ImportResult{}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, categoryName := range sortedKeys(menu) {
			var (
				categoryID int64
				inserted   bool
			)
			err := tx.QueryRow(ctx, `
				INSERT INTO categories (name) VALUES ($1)
				ON CONFLICT ((lower(name))) DO UPDATE SET name = categories.name
				RETURNING id, (xmax = 0)`, categoryName,
			).Scan(&categoryID, &inserted)
			if err != nil {
				return fmt.Errorf("failed to upsert category %q: %w", categoryName, err)
			}
			if inserted {
				result.CategoriesCreated++
			}

			dishes := menu[categoryName]
			for _, code := range sortedKeys(dishes) {
				seed := dishes[code]
				err := tx.QueryRow(ctx, `
					INSERT INTO dishes (category_id, code, name, price, stock)
					VALUES ($1, $2, $3, $4::numeric, $5)
					ON CONFLICT ((upper(code))) DO UPDATE
					SET category_id = EXCLUDED.category_id,
					    name = EXCLUDED.name,
					    price = EXCLUDED.price,
					    stock = EXCLUDED.stock
					RETURNING (xmax = 0)`,
					categoryID, code, seed.Name, seed.Price.StringFixed(2), seed.Stock,
				).Scan(&inserted)
				if err != nil {
					return fmt.Errorf("failed to upsert dish %q: %w", code, err)
				}
				if inserted {
					result.DishesCreated++
				} else {
					result.DishesUpdated++
				}
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
func (s *PostgresStore) UpdateDishPrice(ctx context.Context, id int64, price decimal.Decimal) (*models.Dish, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE dishes SET price = $2::numeric WHERE id = $1`, id, price.StringFixed(2))
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrDishNotFound
	}
	return s.GetDish(ctx, id)
}

// DeleteDish removes a dish that no order line references
func (s *PostgresStore) DeleteDish(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dishes WHERE id = $1`, id)
	if err != nil {
		return translateDeleteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDishNotFound
	}
	return nil
}

// DeleteCategory removes a category and, by cascade, its dishes
func (s *PostgresStore) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return translateDeleteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// SetOrderPaid sets the paid flag of an order
func (s *PostgresStore) SetOrderPaid(ctx context.Context, id string, paid bool) (*models.Order, error) {
	id, err := parseOrderID(id)
	if err != nil {
		return nil, err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE orders SET paid = $2 WHERE id = $1`, id, paid)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrOrderNotFound
	}
	return s.GetOrder(ctx, id)
}

// DeleteOrder removes an order and, by cascade, its lines
func (s *PostgresStore) DeleteOrder(ctx context.Context, id string) error {
	id, err := parseOrderID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// parseOrderID returns id in canonical form. Anything that is not a UUID
// cannot name an order.
func parseOrderID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", ErrOrderNotFound
	}
	return u.String(), nil
}

// Begin starts a read-committed transaction; row locks provide the isolation
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &postgresTx{tx: tx, locked: make(map[int64]bool)}, nil
}

type postgresTx struct {
	tx     pgx.Tx
	locked map[int64]bool
	done   bool
}

func (t *postgresTx) GetDishForUpdate(ctx context.Context, id int64) (*models.Dish, error) {
	if t.done {
		return nil, ErrTxDone
	}
	d, err := scanDish(t.tx.QueryRow(ctx,
		`SELECT `+dishColumns+dishFrom+` WHERE d.id = $1 FOR UPDATE OF d`, id))
	if err != nil {
		return nil, err
	}
	t.locked[id] = true
	return d, nil
}

func (t *postgresTx) UpdateDishStock(ctx context.Context, id int64, stock int) error {
	if t.done {
		return ErrTxDone
	}
	if !t.locked[id] {
		return ErrDishNotLocked
	}
	if stock < 0 {
		return ErrNegativeStock
	}
	tag, err := t.tx.Exec(ctx, `UPDATE dishes SET stock = $2 WHERE id = $1`, id, stock)
	if err != nil {
		return translateWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDishNotFound
	}
	return nil
}

func (t *postgresTx) InsertOrder(ctx context.Context, order *models.Order) error {
	if t.done {
		return ErrTxDone
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO orders (id, customer_label, created_at, paid) VALUES ($1::uuid, $2, $3, $4)`,
		order.ID, order.CustomerLabel, order.CreatedAt, order.Paid)
	return translateWriteError(err)
}

func (t *postgresTx) InsertOrderLine(ctx context.Context, line *models.OrderLine) error {
	if t.done {
		return ErrTxDone
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO order_lines (order_id, dish_id, quantity, unit_price) VALUES ($1::uuid, $2, $3, $4::numeric)`,
		line.OrderID, line.DishID, line.Quantity, line.UnitPrice.StringFixed(2))
	return translateWriteError(err)
}

func (t *postgresTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return t.tx.Commit(ctx)
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func pgErrorCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// translateDeleteError maps a restricted delete onto ErrDishReferenced
func translateDeleteError(err error) error {
	if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
		return ErrDishReferenced
	}
	return err
}

// translateWriteError maps constraint violations of order and stock writes
func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	code, constraint := pgErrorCode(err)
	switch code {
	case pgForeignKeyViolation:
		if constraint == "order_lines_order_id_fkey" {
			return ErrOrderNotFound
		}
		return ErrDishNotFound
	case pgCheckViolation:
		if constraint == "dishes_stock_check" {
			return ErrNegativeStock
		}
	case pgUniqueViolation:
		if constraint == "orders_pkey" {
			return ErrDuplicateOrder
		}
	}
	return err
}

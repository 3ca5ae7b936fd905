package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/Lixing-Zhang/restaurant-backend/internal/repository"
	"github.com/google/uuid"
)

// TicketSink receives every committed order, e.g. to print a kitchen ticket
type TicketSink interface {
	Send(ctx context.Context, order *models.Order) error
}

// DefaultTicketTimeout bounds a single ticket delivery
const DefaultTicketTimeout = 5 * time.Second

// Recorder collects order and stock metrics
type Recorder interface {
	OrderPlaced(order *models.Order)
	OrderRejected(reason string)
	DishRestocked(units int)
}

type noopRecorder struct{}

func (noopRecorder) OrderPlaced(*models.Order) {}
func (noopRecorder) OrderRejected(string)      {}
func (noopRecorder) DishRestocked(int)         {}

// Option configures an OrderService
type Option func(*OrderService)

// WithTicketSink sends a ticket for every placed order
func WithTicketSink(sink TicketSink) Option {
	return func(s *OrderService) { s.tickets = sink }
}

// WithTicketTimeout bounds each ticket delivery
func WithTicketTimeout(d time.Duration) Option {
	return func(s *OrderService) {
		if d > 0 {
			s.ticketTimeout = d
		}
	}
}

// WithRecorder records order metrics
func WithRecorder(r Recorder) Option {
	return func(s *OrderService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock overrides the order timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *OrderService) { s.now = now }
}

// OrderService handles order business logic
type OrderService struct {
	store    repository.Store
	ledger   *StockLedger
	tickets  TicketSink
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	ticketTimeout time.Duration
}

// NewOrderService creates a new order service
func NewOrderService(store repository.Store, ledger *StockLedger, logger *slog.Logger, opts ...Option) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &OrderService{
		store:    store,
		ledger:   ledger,
		recorder: noopRecorder{},
		logger:   logger,
		now:      time.Now,

		ticketTimeout: DefaultTicketTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lineItem is one dish of an order after repeated lines are merged
type lineItem struct {
	dishID   int64
	quantity int
}

// PlaceOrder validates the requested lines against live stock and either
// records the whole order with its stock reservations or changes nothing.
func (s *OrderService) PlaceOrder(ctx context.Context, customerLabel string, lines []models.LineRequest) (*models.Order, error) {
	orderID := uuid.New().String()
	log := s.logger.With("order_id", orderID)

	order, err := s.placeOrder(ctx, log, orderID, customerLabel, lines)
	if err != nil {
		s.recorder.OrderRejected(RejectReason(err))
		if errors.Is(err, ErrStorageFailure) {
			log.Error("order failed", "error", err)
		} else {
			log.Info("order rejected", "error", err)
		}
		return nil, err
	}

	s.recorder.OrderPlaced(order)
	log.Info("order placed",
		"customer", order.CustomerLabel,
		"lines", len(order.Lines),
		"total", order.Total().StringFixed(2),
	)

	if s.tickets != nil {
		s.sendTicket(ctx, log, order)
	}
	return order, nil
}

// sendTicket delivers the ticket of a committed order. The order stands even
// if the caller goes away, so delivery only inherits the caller's values.
func (s *OrderService) sendTicket(ctx context.Context, log *slog.Logger, order *models.Order) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ticketTimeout)
	defer cancel()
	if err := s.tickets.Send(ctx, order); err != nil {
		log.Error("failed to send kitchen ticket", "error", err)
	}
}

func (s *OrderService) placeOrder(ctx context.Context, log *slog.Logger, orderID, customerLabel string, lines []models.LineRequest) (*models.Order, error) {
	log.Debug("collecting order", "lines", len(lines))

	label := strings.TrimSpace(customerLabel)
	if label == "" || len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	items, err := collect(lines)
	if err != nil {
		return nil, err
	}

	log.Debug("validating order", "dishes", len(items))
	for _, item := range items {
		if _, err := s.store.GetDish(ctx, item.dishID); err != nil {
			if errors.Is(err, repository.ErrDishNotFound) {
				return nil, &UnknownDishError{DishID: item.dishID}
			}
			return nil, storageError("look up dish", err)
		}
	}

	log.Debug("committing order")
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, storageError("begin", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
			log.Error("rollback failed", "error", err)
		}
		log.Debug("order rolled back")
	}()

	order := &models.Order{
		ID:            orderID,
		CustomerLabel: label,
		CreatedAt:     s.now().UTC(),
	}

	// items are sorted by dish id so concurrent orders lock in the same order
	reserved := make([]*models.Dish, len(items))
	for i, item := range items {
		dish, err := s.ledger.Reserve(ctx, tx, item.dishID, item.quantity)
		if err != nil {
			return nil, err
		}
		log.Debug("stock reserved", "dish_id", dish.ID, "quantity", item.quantity, "remaining", dish.Stock)
		reserved[i] = dish
	}

	if err := tx.InsertOrder(ctx, order); err != nil {
		return nil, storageError("insert order", err)
	}
	order.Lines = make([]models.OrderLine, 0, len(items))
	for i, item := range items {
		line := models.OrderLine{
			OrderID:   order.ID,
			DishID:    item.dishID,
			DishCode:  reserved[i].Code,
			DishName:  reserved[i].Name,
			Quantity:  item.quantity,
			UnitPrice: reserved[i].Price,
		}
		if err := tx.InsertOrderLine(ctx, &line); err != nil {
			return nil, storageError("insert order line", err)
		}
		order.Lines = append(order.Lines, line)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageError("commit", err)
	}
	committed = true
	return order, nil
}

// collect merges repeated dishes and drops zero quantity lines.
// A negative quantity rejects the whole order.
func collect(lines []models.LineRequest) ([]lineItem, error) {
	quantities := make(map[int64]int, len(lines))
	for _, line := range lines {
		switch {
		case line.Quantity < 0:
			return nil, &InvalidQuantityError{DishID: line.DishID, Quantity: line.Quantity}
		case line.Quantity == 0:
			continue
		case line.DishID <= 0:
			return nil, &UnknownDishError{DishID: line.DishID}
		}

		total := quantities[line.DishID] + line.Quantity
		if line.Quantity > MaxQuantity || total > MaxQuantity {
			return nil, &InvalidQuantityError{DishID: line.DishID, Quantity: total}
		}
		quantities[line.DishID] = total
	}

	if len(quantities) == 0 {
		return nil, ErrEmptyOrder
	}

	items := make([]lineItem, 0, len(quantities))
	for id, qty := range quantities {
		items = append(items, lineItem{dishID: id, quantity: qty})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].dishID < items[j].dishID })
	return items, nil
}

// RestockDish adds units to a dish's stock
func (s *OrderService) RestockDish(ctx context.Context, dishID int64, quantity int) (*models.Dish, error) {
	newStock, err := s.ledger.Restock(ctx, dishID, quantity)
	if err != nil {
		return nil, err
	}
	s.recorder.DishRestocked(quantity)
	s.logger.Info("dish restocked", "dish_id", dishID, "quantity", quantity, "stock", newStock)

	dish, err := s.store.GetDish(ctx, dishID)
	if err != nil {
		return nil, translate("find dish", err)
	}
	dish.Stock = newStock
	return dish, nil
}

// GetOrder returns an order with its lines
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, translate("get order", err)
	}
	return order, nil
}

// ListOrders returns all orders, newest first
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		return nil, translate("list orders", err)
	}
	return orders, nil
}

// MarkPaid sets the paid flag of an order. Repeating the call is harmless.
func (s *OrderService) MarkPaid(ctx context.Context, id string, paid bool) (*models.Order, error) {
	order, err := s.store.SetOrderPaid(ctx, id, paid)
	if err != nil {
		return nil, translate("mark paid", err)
	}
	s.logger.Info("order payment updated", "order_id", id, "paid", paid)
	return order, nil
}

// DeleteOrder removes an order and its lines. Reserved stock is not returned.
func (s *OrderService) DeleteOrder(ctx context.Context, id string) error {
	if err := s.store.DeleteOrder(ctx, id); err != nil {
		return translate("delete order", err)
	}
	s.logger.Info("order deleted", "order_id", id)
	return nil
}

// ParseQuantity reads a quantity typed by a user.
// Blank input means 0 so that untouched form fields are ignored.
func ParseQuantity(input string) (int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(input)
	if err != nil {
		return 0, &InvalidQuantityError{Input: input}
	}
	return n, nil
}

// RejectReason classifies an order error for metrics and logs
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyOrder):
		return "empty_order"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrUnknownDish):
		return "unknown_dish"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrStorageFailure):
		return "storage_failure"
	default:
		return "other"
	}
}

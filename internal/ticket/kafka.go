package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const eventOrderPlaced = "order.placed"

// MessageWriter is the part of *kafka.Writer the sink uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the JSON payload published for a placed order
type Event struct {
	Type          string          `json:"type"`
	OrderID       string          `json:"orderId"`
	CustomerLabel string          `json:"customerLabel"`
	CreatedAt     time.Time       `json:"createdAt"`
	Lines         []EventLine     `json:"lines"`
	Total         decimal.Decimal `json:"total"`
}

type EventLine struct {
	DishID    int64           `json:"dishId"`
	DishCode  string          `json:"dishCode"`
	DishName  string          `json:"dishName"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// NewEvent builds the published form of an order
func NewEvent(order *models.Order) Event {
	ev := Event{
		Type:          eventOrderPlaced,
		OrderID:       order.ID,
		CustomerLabel: order.CustomerLabel,
		CreatedAt:     order.CreatedAt,
		Lines:         make([]EventLine, 0, len(order.Lines)),
		Total:         order.Total(),
	}
	for _, l := range order.Lines {
		ev.Lines = append(ev.Lines, EventLine{
			DishID:    l.DishID,
			DishCode:  l.DishCode,
			DishName:  l.DishName,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}
	return ev
}

// KafkaSink publishes orders to a Kafka topic keyed by order id
type KafkaSink struct {
	writer MessageWriter
}

// NewKafkaWriter creates a writer for the kitchen ticket topic
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaSink wraps a writer
func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Send(ctx context.Context, order *models.Order) error {
	payload, err := json.Marshal(NewEvent(order))
	if err != nil {
		return fmt.Errorf("failed to encode order event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(order.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventOrderPlaced)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish order %s: %w", order.ID, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

package cart

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const orderPlacedEvent = "order.placed"

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

// OrderConsumer empties a user's cart when an order.placed event arrives.
// Order placement clears the cart synchronously; the consumer covers the
// case where that call failed after the order was committed. Only the cart
// version the order was priced from is cleared, so a late or redelivered
// event leaves a newer cart alone.
type OrderConsumer struct {
	carts  *Service
	reader MessageReader
	log    *zap.Logger
}

func NewOrderConsumer(carts *Service, reader MessageReader, log *zap.Logger) *OrderConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderConsumer{carts: carts, reader: reader, log: log}
}

func (c *OrderConsumer) Run(ctx context.Context) {
	for ctx.Err() == nil {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("error reading message", zap.Error(err))
			}
			continue
		}
		c.handle(ctx, m)
	}
}

func (c *OrderConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Warn("error closing reader", zap.Error(err))
	}
}

func (c *OrderConsumer) handle(ctx context.Context, m kafka.Message) {
	if eventType(m) != orderPlacedEvent {
		return
	}

	var payload struct {
		UserID      string `json:"user_id"`
		CartVersion int64  `json:"cart_version"`
	}
	if err := json.Unmarshal(m.Value, &payload); err != nil {
		c.log.Warn("error parsing message", zap.ByteString("key", m.Key), zap.Error(err))
		return
	}
	if payload.UserID == "" {
		c.log.Warn("missing user_id in order event", zap.ByteString("key", m.Key))
		return
	}

	if payload.CartVersion <= 0 {
		c.log.Warn("missing cart_version in order event", zap.ByteString("key", m.Key))
		return
	}

	cleared, err := c.carts.ClearAt(ctx, payload.UserID, payload.CartVersion)
	if err != nil {
		c.log.Error("failed to clear cart", zap.String("user_id", payload.UserID), zap.Error(err))
		return
	}
	c.log.Debug("order event handled", zap.String("user_id", payload.UserID),
		zap.Int64("cart_version", payload.CartVersion), zap.Bool("cleared", cleared))
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}

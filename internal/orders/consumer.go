package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the consumer-group side of *kafka.Reader. Offsets are
// committed explicitly, only once a message has been handled.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	retryBackoff    = 500 * time.Millisecond
	maxRetryBackoff = 10 * time.Second
)

// errMalformedEvent marks messages that can never be stored; they are
// committed and skipped instead of retried.
var errMalformedEvent = errors.New("malformed order event")

// Consumer records OrderPlaced events into the order history.
type Consumer struct {
	repo    OrderRepository
	reader  MessageReader
	logger  *zap.Logger
	backoff time.Duration
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewConsumer(repo OrderRepository, reader MessageReader, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{repo: repo, reader: reader, logger: logger, backoff: retryBackoff}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.logger.Error("error fetching message", zap.Error(err))
		return
	}

	// A later commit would move the offset past m, so m is retried in place
	// until it is stored or the consumer stops.
	delay := c.backoff
	for {
		err := c.handleMessage(ctx, m)
		if err == nil {
			break
		}
		if errors.Is(err, errMalformedEvent) {
			c.logger.Error("dropping malformed order event",
				zap.String("key", string(m.Key)), zap.Int64("offset", m.Offset), zap.Error(err))
			break
		}

		c.logger.Error("failed to record order, retrying",
			zap.String("key", string(m.Key)), zap.Int64("offset", m.Offset),
			zap.Duration("backoff", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryBackoff)
	}

	if err := c.reader.CommitMessages(ctx, m); err != nil {
		c.logger.Error("failed to commit offset", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

// handleMessage stores one event. Events of other types and redeliveries of
// an already recorded order are skipped without error.
func (c *Consumer) handleMessage(ctx context.Context, m kafka.Message) error {
	if eventType := header(m, "event_type"); eventType != "" && eventType != domain.EventTypeOrderPlaced {
		c.logger.Debug("skipping event", zap.String("event_type", eventType))
		return nil
	}

	var order domain.Order
	if err := json.Unmarshal(m.Value, &order); err != nil {
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	if order.ID == uuid.Nil {
		return fmt.Errorf("%w: missing order id", errMalformedEvent)
	}
	if order.Currency == "" {
		order.Currency = domain.DefaultCurrency
	}

	if err := c.repo.SaveOrder(ctx, &order); err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			c.logger.Info("order already recorded, skipping", zap.String("order_id", order.ID.String()))
			return nil
		}
		return err
	}

	c.logger.Info("order recorded",
		zap.String("order_id", order.ID.String()),
		zap.Int64("user_id", order.UserID),
		zap.Float64("total_amount", order.TotalAmount),
	)
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

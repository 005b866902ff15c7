package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	defaultBatchSize = 100
	defaultTick      = time.Second
)

// MessageWriter is the subset of *kafka.Writer the poller needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	repo      repository.OutboxQueries
	writer    MessageWriter
	cb        *gobreaker.CircuitBreaker[struct{}]
	logger    *zap.Logger
	tick      time.Duration
	timeout   time.Duration
	batchSize int
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
}

func NewOutboxPoller(repo repository.OutboxQueries, writer MessageWriter, tick time.Duration, logger *zap.Logger) *OutboxPoller {
	if tick <= 0 {
		tick = defaultTick
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        "kafka-outbox",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &OutboxPoller{
		repo:      repo,
		writer:    writer,
		cb:        gobreaker.NewCircuitBreaker[struct{}](settings),
		logger:    logger,
		tick:      tick,
		timeout:   5 * time.Second,
		batchSize: defaultBatchSize,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents publishes one batch in creation order and returns
// how many events were marked published. Publishing stops at the first
// failure so events of one order are never sent out of order.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnpublishedEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				p.logger.Warn("circuit breaker open, skipping outbox batch")
			} else {
				p.logger.Error("failed to publish outbox event",
					zap.String("event_id", event.ID.String()), zap.Error(err))
			}
			return published
		}

		if err := p.repo.MarkEventPublished(ctx, event.ID); err != nil {
			p.logger.Error("failed to mark outbox event published",
				zap.String("event_id", event.ID.String()), zap.Error(err))
			return published
		}
		published++
	}

	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event *domain.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID.String())},
		},
	}

	_, err := p.cb.Execute(func() (struct{}, error) {
		writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return struct{}{}, p.writer.WriteMessages(writeCtx, msg)
	})
	return err
}

package orders

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const pollBatch = 100

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a writer for the order events topic.
func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// OutboxPoller moves committed outbox events to the message broker. An event
// is marked processed only after the broker accepted it, so delivery is at
// least once.
type OutboxPoller struct {
	eventTick time.Duration
	repo      OutboxRepository
	writer    MessageWriter
	log       *zap.Logger
}

func NewOutboxPoller(repo OutboxRepository, writer MessageWriter, tick time.Duration, log *zap.Logger) *OutboxPoller {
	if tick <= 0 {
		tick = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxPoller{eventTick: tick, repo: repo, writer: writer, log: log}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents returns the number of events published.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, pollBatch)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.log.Warn("failed to publish outbox event", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Warn("failed to mark outbox event processed", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		published++
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event *OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps events of one order on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

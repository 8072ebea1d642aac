package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// OutboxSource is the read side of the outbox, implemented by PostgresStore.
type OutboxSource interface {
	Unpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []string) error
}

// BrokerSink publishes one record, implemented by the kafka producer.
type BrokerSink interface {
	Publish(ctx context.Context, key, value []byte) error
}

const outboxBatchSize = 100

// KafkaPublisher drains the outbox to the broker on an interval. Rows are
// only stamped published after a successful hand-off, so a broker outage
// means redelivery, never loss.
type KafkaPublisher struct {
	outbox   OutboxSource
	sink     BrokerSink
	interval time.Duration
	logger   *slog.Logger
}

func NewKafkaPublisher(outbox OutboxSource, sink BrokerSink, interval time.Duration, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		outbox:   outbox,
		sink:     sink,
		interval: interval,
		logger:   logger,
	}
}

func (p *KafkaPublisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Drain(ctx); err != nil {
				p.logger.Error("outbox drain failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Drain publishes one batch of unpublished outbox rows.
func (p *KafkaPublisher) Drain(ctx context.Context) error {
	events, err := p.outbox.Unpublished(ctx, outboxBatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	published := make([]string, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("skipping unmarshalable audit event",
				slog.String("id", event.ID),
				slog.String("error", err.Error()))
			continue
		}
		if err := p.sink.Publish(ctx, []byte(event.Source), value); err != nil {
			// Stop the batch here; unpublished rows are retried next tick.
			if merr := p.outbox.MarkPublished(ctx, published); merr != nil {
				p.logger.Error("failed to mark published outbox rows", slog.String("error", merr.Error()))
			}
			return err
		}
		published = append(published, event.ID)
	}
	return p.outbox.MarkPublished(ctx, published)
}

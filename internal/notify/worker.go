package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"charter/internal/platform/metrics"
)

// Publisher delivers a serialized intent to the transport.
type Publisher interface {
	Publish(ctx context.Context, intent Intent) error
}

// KafkaPublisher produces intents to the configured topic, keyed by family
// so per-family ordering survives partitioning.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, intent Intent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(intent.Document.FamilyKey.String()),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce intent: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// Worker drains the outbox to the publisher. Failures leave the intent
// pending; the next pass retries it.
type Worker struct {
	outbox    Outbox
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
}

func NewWorker(outbox Outbox, publisher Publisher, logger *slog.Logger, m *metrics.Metrics) *Worker {
	return &Worker{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		interval:  5 * time.Second,
		batchSize: 100,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (w *Worker) drain(ctx context.Context) error {
	pending, err := w.outbox.ListPending(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	for _, intent := range pending {
		if err := w.publisher.Publish(ctx, intent); err != nil {
			if w.metrics != nil {
				w.metrics.OutboxPublishFailures.Inc()
			}
			w.logger.WarnContext(ctx, "intent publish failed, will retry",
				"intent_id", intent.ID.String(),
				"event_type", string(intent.EventType),
				"error", err,
			)
			continue
		}
		if err := w.outbox.MarkPublished(ctx, intent.ID, time.Now()); err != nil {
			return fmt.Errorf("mark published: %w", err)
		}
		if w.metrics != nil {
			w.metrics.OutboxPublished.Inc()
		}
	}
	return nil
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"arbiter/internal/decision"
)

// Kafka produces decision envelopes to the topic derived from the routing
// target, keyed by decision id so consumers can dedupe and partitioning
// stays stable per decision.
type Kafka struct {
	client *kgo.Client
	logger *slog.Logger
}

type KafkaOption func(*Kafka)

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(k *Kafka) { k.logger = logger }
}

// NewKafka connects a producer to the given brokers.
func NewKafka(brokers []string, opts ...KafkaOption) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(0),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	k := &Kafka{client: client}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Dispatch produces the envelope synchronously. At-least-once: a retryable
// broker failure surfaces as an error and the caller's retry may duplicate,
// which consumers absorb by deduping on decision id.
func (k *Kafka) Dispatch(ctx context.Context, result *decision.Result) error {
	value, err := marshalEnvelope(result)
	if err != nil {
		return fmt.Errorf("marshal decision envelope: %w", err)
	}
	record := &kgo.Record{
		Topic: TopicFor(result.RoutingTarget),
		Key:   []byte(result.ID.String()),
		Value: value,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce decision %s to %s: %w", result.ID, record.Topic, err)
	}
	if k.logger != nil {
		k.logger.DebugContext(ctx, "decision dispatched",
			"decision_id", result.ID, "topic", record.Topic)
	}
	return nil
}

// Close flushes pending records and releases the client.
func (k *Kafka) Close() {
	k.client.Close()
}

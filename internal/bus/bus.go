package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

// Topic defaults sized for parallel consumption; a single-broker dev
// cluster only supports RF=1.
const (
	defaultPartitions  = int32(8)
	defaultReplication = int16(1)
)

// Config configures a Bus instance.
type Config struct {
	Brokers         []string
	TransactionalID string // producer transactional ID, must be unique per process
	Retry           domain.RetryConfig
	// MaxWorkers caps each subscription's worker pool. Zero means the
	// built-in default.
	MaxWorkers int
	// HandlerTimeout bounds each handler invocation. A deadline exceedance reads as transient and the
	// envelope is redelivered. Zero disables the per-handler deadline.
	HandlerTimeout time.Duration
	// MaxPayloadBytes caps an envelope's payload; an oversize publish fails
	// with domain.ErrPublishRejected before anything reaches the broker.
	// Zero means the default of 8 MiB.
	MaxPayloadBytes int
}

const defaultMaxPayloadBytes = 8 << 20

// Bus is the Kafka/Redpanda-backed implementation of domain.Bus. One Bus
// owns a single transactional producer shared by Publish and by every
// Subscribe loop's redelivery/DLQ routing; each Subscribe call opens its own
// consumer-group client.
type Bus struct {
	cfg      Config
	producer *kgo.Client
	txChan   chan struct{} // serializes producer transactions

	subsMu sync.Mutex
	subs   []*subscription
}

// New constructs a Bus with a transactional producer. Brokers must be
// non-empty; TransactionalID defaults to a derived value if empty.
func New(cfg Config) (*Bus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("bus: no seed brokers configured")
	}
	if cfg.TransactionalID == "" {
		cfg.TransactionalID = "recruiter-pipeline-producer"
	}
	if cfg.Retry.MaxDeliveries == 0 {
		cfg.Retry = domain.DefaultRetryConfig()
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = defaultMaxPayloadBytes
	}

	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	kotelService := kotel.NewKotel(kotel.WithTracer(tracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.TransactionalID(cfg.TransactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: new producer client: %w", err)
	}

	return &Bus{
		cfg:      cfg,
		producer: client,
		txChan:   make(chan struct{}, 1),
	}, nil
}

// Publish produces env to subject's topic, creating the topic on first use.
// The record key is the correlation ID so that all events for one jobId
// land on the same partition and are processed in order by one consumer.
func (b *Bus) Publish(ctx domain.Context, subject string, env domain.Envelope) error {
	if err := b.checkPayload(env); err != nil {
		return err
	}
	if err := b.ensureTopicReady(ctx, subject); err != nil {
		slog.Warn("bus publish: topic provisioning failed, attempting publish anyway",
			slog.String("subject", subject), slog.Any("error", err))
	}
	return b.publishRecord(ctx, subject, env)
}

// checkPayload rejects envelopes over the configured payload cap. Oversize
// is both a publish rejection and a permanent (invalid-argument) failure, so
// a handler republish path dead-letters instead of retrying.
func (b *Bus) checkPayload(env domain.Envelope) error {
	if len(env.Payload) > b.cfg.MaxPayloadBytes {
		return fmt.Errorf("%w: %w: payload %d bytes exceeds max %d",
			domain.ErrPublishRejected, domain.ErrInvalidArgument, len(env.Payload), b.cfg.MaxPayloadBytes)
	}
	return nil
}

func (b *Bus) publishRecord(ctx context.Context, topic string, env domain.Envelope) error {
	if err := b.checkPayload(env); err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(env.CorrelationID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "message_id", Value: []byte(env.MessageID)},
			{Key: "subject", Value: []byte(env.Subject)},
		},
	}

	select {
	case b.txChan <- struct{}{}:
		defer func() { <-b.txChan }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := b.producer.BeginTransaction(); err != nil {
		return fmt.Errorf("bus: begin transaction: %w", err)
	}

	promise := kgo.AbortingFirstErrPromise(b.producer)
	b.producer.Produce(ctx, record, promise.Promise())
	if err := promise.Err(); err != nil {
		if abortErr := b.producer.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("bus: failed to abort transaction", slog.Any("error", abortErr))
		}
		// Broker unreachable or stream full: the publish never became
		// durable, so the caller treats it as never happened.
		return fmt.Errorf("%w: bus: produce to %s: %v", domain.ErrPublishRejected, topic, err)
	}

	if err := b.producer.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return fmt.Errorf("%w: bus: commit transaction: %v", domain.ErrPublishRejected, err)
	}
	observability.RecordPublish(topic)
	return nil
}

func (b *Bus) ensureTopicReady(ctx context.Context, subject string) error {
	if err := ensureTopic(ctx, b.producer, subject, defaultPartitions, defaultReplication); err != nil {
		return err
	}
	return ensureTopic(ctx, b.producer, dlqSubject(subject), 1, defaultReplication)
}

// Ping verifies broker reachability; used by readiness probes.
func (b *Bus) Ping(ctx domain.Context) error {
	return b.producer.Ping(ctx)
}

// Close releases the producer and every active subscription.
func (b *Bus) Close() error {
	b.subsMu.Lock()
	for _, s := range b.subs {
		s.close()
	}
	b.subsMu.Unlock()

	if b.producer != nil {
		b.producer.Close()
	}
	return nil
}

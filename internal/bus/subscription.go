package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

// Worker-pool scaling defaults (maxWorkers from config, minWorkers =
// max(1, maxWorkers/2)).
const (
	defaultMaxWorkers    = 10
	defaultScaleInterval = 5 * time.Second
	defaultIdleTimeout   = 30 * time.Second
	defaultQueueDepth    = 256
)

// subscription runs one consumer-group client against one subject, fanning
// fetched records out to a dynamically sized worker pool.
type subscription struct {
	subject string
	group   string
	handler domain.HandlerFunc
	bus     *Bus
	client  *kgo.Client
	poller  *adaptivePoller

	minWorkers int
	maxWorkers int
	jobQueue   chan *kgo.Record

	scaleInterval time.Duration
	idleTimeout   time.Duration

	active   int32
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// Subscribe starts a consumer-group client for subject and dispatches each
// delivered Envelope to handler through a bounded, auto-scaling worker pool.
// Acks are explicit: a record is only marked committed after the handler
// succeeds, or after its failure has been durably routed to redelivery or
// the subject's DLQ — never before.
func (b *Bus) Subscribe(ctx domain.Context, subject, groupName string, handler domain.HandlerFunc) error {
	if err := b.ensureTopicReady(ctx, subject); err != nil {
		return fmt.Errorf("bus subscribe: provision topics: %w", err)
	}

	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	kotelService := kotel.NewKotel(kotel.WithTracer(tracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(b.cfg.Brokers...),
		kgo.ConsumerGroup(groupName),
		kgo.ConsumeTopics(subject),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.DisableAutoCommit(),
		kgo.Balancers(kgo.CooperativeStickyBalancer()),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return fmt.Errorf("bus subscribe: new consumer client: %w", err)
	}

	maxWorkers := b.cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	minWorkers := maxWorkers / 2
	if minWorkers < 1 {
		minWorkers = 1
	}

	s := &subscription{
		subject:       subject,
		group:         groupName,
		handler:       handler,
		bus:           b,
		client:        client,
		poller:        newAdaptivePoller(100 * time.Millisecond),
		minWorkers:    minWorkers,
		maxWorkers:    maxWorkers,
		jobQueue:      make(chan *kgo.Record, defaultQueueDepth),
		scaleInterval: defaultScaleInterval,
		idleTimeout:   defaultIdleTimeout,
		stopCh:        make(chan struct{}),
	}

	b.subsMu.Lock()
	b.subs = append(b.subs, s)
	b.subsMu.Unlock()

	s.start(ctx)
	return nil
}

func (s *subscription) start(ctx context.Context) {
	for i := 0; i < s.minWorkers; i++ {
		s.spawnWorker(ctx)
	}
	s.wg.Add(2)
	go s.messageFetcher(ctx)
	go s.workerPoolManager(ctx)
}

// messageFetcher polls the consumer-group client and fans records into
// jobQueue. PollFetches blocks natively when nothing is available, so the
// adaptivePoller here only governs the backoff sleep after a fetch error.
func (s *subscription) messageFetcher(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		fetches := s.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}

		var fetchErr error
		fetches.EachError(func(topic string, partition int32, err error) {
			fetchErr = err
			slog.Error("bus fetch error", slog.String("subject", s.subject),
				slog.String("topic", topic), slog.Int("partition", int(partition)), slog.Any("error", err))
		})
		if fetchErr != nil {
			s.poller.recordFailure()
			select {
			case <-time.After(s.poller.nextInterval()):
			case <-s.stopCh:
				return
			}
			continue
		}
		s.poller.recordSuccess()

		fetches.EachRecord(func(r *kgo.Record) {
			select {
			case s.jobQueue <- r:
			case <-s.stopCh:
			}
		})
	}
}

// workerPoolManager scales the active worker count between minWorkers and
// maxWorkers based on queue depth.
func (s *subscription) workerPoolManager(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.scaleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scaleWorkers(ctx)
		}
	}
}

func (s *subscription) scaleWorkers(ctx context.Context) {
	depth := len(s.jobQueue)
	active := int(atomic.LoadInt32(&s.active))

	switch {
	case depth > cap(s.jobQueue)/2 && active < s.maxWorkers:
		s.spawnWorker(ctx)
	case depth == 0 && active > s.minWorkers:
		// signal one idle worker to exit by sending a nil sentinel
		select {
		case s.jobQueue <- nil:
		default:
		}
	}
}

func (s *subscription) spawnWorker(ctx context.Context) {
	atomic.AddInt32(&s.active, 1)
	s.wg.Add(1)
	go s.worker(ctx)
}

func (s *subscription) worker(ctx context.Context) {
	defer s.wg.Done()
	defer atomic.AddInt32(&s.active, -1)

	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case rec, ok := <-s.jobQueue:
			if !ok {
				return
			}
			if rec == nil {
				// scale-down sentinel: this worker exits if above minWorkers
				if int(atomic.LoadInt32(&s.active)) > s.minWorkers {
					return
				}
				continue
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(s.idleTimeout)
			s.processRecord(ctx, rec)
		case <-idle.C:
			if int(atomic.LoadInt32(&s.active)) > s.minWorkers {
				return
			}
			idle.Reset(s.idleTimeout)
		}
	}
}

func (s *subscription) processRecord(ctx context.Context, rec *kgo.Record) {
	var env domain.Envelope
	if err := json.Unmarshal(rec.Value, &env); err != nil {
		slog.Error("bus: dropping unparsable record", slog.String("subject", s.subject), slog.Any("error", err))
		s.commit(ctx, rec)
		return
	}

	// Major schema-version mismatches are permanent: dead-letter immediately
	// instead of burning redelivery attempts.
	if !domain.SchemaCompatible(env.SchemaVersion) {
		if s.routeToDLQ(ctx, env, fmt.Errorf("%w: unsupported schema version %q", domain.ErrSchemaInvalid, env.SchemaVersion)) {
			observability.RecordConsume(s.subject, s.group, "dlq")
			observability.RecordDLQ(s.subject)
			s.commit(ctx, rec)
		}
		return
	}

	hctx := ctx
	if t := s.bus.cfg.HandlerTimeout; t > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	start := time.Now()
	handlerErr := s.handler(hctx, env)
	observability.ObserveHandlerDuration(s.subject, s.group, time.Since(start))
	if handlerErr == nil {
		observability.RecordConsume(s.subject, s.group, "ok")
		s.commit(ctx, rec)
		return
	}

	cfg := s.bus.cfg.Retry
	info := domain.DeliveryInfo{MessageID: env.MessageID, Subject: env.Subject, AttemptCount: env.Attempt}
	if info.ShouldRetry(handlerErr, cfg) {
		// The first redelivery waits InitialDelay; each later one multiplies it.
		delay := (&domain.DeliveryInfo{AttemptCount: env.Attempt - 1}).NextDelay(cfg)
		env.Attempt++
		info.RecordAttempt(handlerErr)
		// Exponential backoff before the redelivery republish. The wait
		// happens here in the worker so the retry record is only durable
		// after the delay; the original offset stays uncommitted until the
		// republish succeeds, preserving at-least-once across a crash.
		select {
		case <-time.After(delay):
		case <-s.stopCh:
			return
		}
		if err := s.bus.publishRecord(ctx, s.subject, env); err != nil {
			slog.Error("bus: requeue for redelivery failed", slog.String("subject", s.subject), slog.Any("error", err))
			return
		}
		observability.RecordConsume(s.subject, s.group, "redelivered")
		observability.RecordRedelivery(s.subject)
	} else {
		if !s.routeToDLQ(ctx, env, handlerErr) {
			return
		}
		observability.RecordConsume(s.subject, s.group, "dlq")
		observability.RecordDLQ(s.subject)
	}
	s.commit(ctx, rec)
}

func (s *subscription) routeToDLQ(ctx context.Context, env domain.Envelope, cause error) bool {
	dlq := domain.DLQEnvelope{
		Envelope: env,
		Failure: domain.Failure{
			Reason:      cause.Error(),
			LastAttempt: time.Now().UTC(),
		},
	}
	value, err := json.Marshal(dlq)
	if err != nil {
		slog.Error("bus: marshal dlq envelope failed", slog.Any("error", err))
		return false
	}
	dlqEnv := env
	dlqEnv.Payload = value
	if err := s.bus.publishRecord(ctx, dlqSubject(s.subject), dlqEnv); err != nil {
		slog.Error("bus: publish to dlq failed", slog.String("subject", s.subject), slog.Any("error", err))
		return false
	}
	return true
}

func (s *subscription) commit(ctx context.Context, rec *kgo.Record) {
	if err := s.client.CommitRecords(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("bus: commit failed", slog.String("subject", s.subject), slog.Any("error", err))
	}
}

func (s *subscription) close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.client.Close()
}

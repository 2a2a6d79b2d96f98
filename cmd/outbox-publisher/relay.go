package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/echo-commerce-backend/pkg/config"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db/models"
	"github.com/angelmondragon/echo-commerce-backend/pkg/enums"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

const (
	outcomePublished  = "published"
	outcomeRetry      = "retry"
	outcomeDeadLetter = "dead_letter"
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRows interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type relayMetrics interface {
	IncRelayed(eventType, outcome string)
	ObserveBatch(d time.Duration)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type relayOptions struct {
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func optionsFromConfig(cfg config.OutboxConfig) relayOptions {
	opts := relayOptions{
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		pollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
	if opts.batchSize <= 0 {
		opts.batchSize = defaultBatchSize
	}
	if opts.maxAttempts <= 0 {
		opts.maxAttempts = defaultMaxAttempts
	}
	if opts.pollInterval <= 0 {
		opts.pollInterval = defaultPollInterval
	}
	return opts
}

type RelayParams struct {
	Outbox           config.OutboxConfig
	Logger           *logger.Logger
	DB               txRunner
	PubSub           topicSource
	Rows             outboxRows
	Registry         eventResolver
	DeadLetters      deadLetters
	PublisherFactory publisherFactory
	Metrics          relayMetrics
}

// Relay moves committed outbox rows onto their pub/sub topics. Rows that can
// never be delivered are copied to the dead-letter table and closed.
type Relay struct {
	logg         *logger.Logger
	db           txRunner
	pubsub       topicSource
	rows         outboxRows
	registry     eventResolver
	deadLetters  deadLetters
	publisherFor publisherFactory
	metrics      relayMetrics
	opts         relayOptions
	now          func() time.Time
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Rows == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}
	return &Relay{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		rows:         params.Rows,
		registry:     params.Registry,
		deadLetters:  params.DeadLetters,
		publisherFor: factory,
		metrics:      params.Metrics,
		opts:         optionsFromConfig(params.Outbox),
		now:          time.Now,
	}, nil
}

func (r *Relay) ensureReadiness(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": r.db.Ping,
		"pubsub":   r.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	return nil
}

func (r *Relay) failureBackoff() retry.Backoff {
	return retry.WithJitter(jitterWindow, retry.WithCappedDuration(maxBackoff, retry.NewExponential(r.opts.pollInterval)))
}

// Run relays batches until ctx ends. A full batch is followed immediately by
// the next; an empty one waits one poll interval. Batch errors back off
// exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.ensureReadiness(ctx); err != nil {
		return err
	}

	idle := retry.WithJitter(jitterWindow, retry.NewConstant(r.opts.pollInterval))
	failures := r.failureBackoff()
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay context canceled")
			return err
		}

		busy, err := r.relayBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait, _ = failures.Next()
		case busy:
			failures = r.failureBackoff()
			continue
		default:
			failures = r.failureBackoff()
			wait, _ = idle.Next()
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// relayBatch handles up to one batch of rows in a single transaction and
// reports whether any rows were found.
func (r *Relay) relayBatch(ctx context.Context) (bool, error) {
	started := r.now()
	busy := false
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.rows.FetchUnpublishedForPublish(tx, r.opts.batchSize, r.opts.maxAttempts)
		if err != nil {
			return err
		}
		busy = len(rows) > 0
		for _, row := range rows {
			outcome, err := r.relayRow(ctx, tx, row)
			if err != nil {
				return err
			}
			if r.metrics != nil {
				r.metrics.IncRelayed(string(row.EventType), outcome)
			}
		}
		return nil
	})
	if busy && r.metrics != nil {
		r.metrics.ObserveBatch(r.now().Sub(started))
	}
	return busy, err
}

func (r *Relay) relayRow(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (string, error) {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return outcomeDeadLetter, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, r.rowFields(row, outbox.PayloadEnvelope{}, ""))
	}

	fields := r.rowFields(row, resolved.Envelope, resolved.Descriptor.Topic)
	pubErr := r.publishAll(ctx, row, resolved)
	if pubErr == nil {
		if err := r.rows.MarkPublishedTx(tx, row.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "outbox event published")
		return outcomePublished, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(pubErr, &nonRetry) {
		return outcomeDeadLetter, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, pubErr, fields)
	}

	attempt := row.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= r.opts.maxAttempts {
		fields["terminal_reason"] = "max_attempts"
		return outcomeDeadLetter, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", pubErr), fields)
	}

	logCtx := r.logg.WithField(r.logg.WithFields(ctx, fields), "error", pubErr.Error())
	r.logg.Warn(logCtx, "outbox publish failed; row stays pending")
	if err := r.rows.MarkFailedTx(tx, row.ID, pubErr); err != nil {
		return "", fmt.Errorf("mark failure %s: %w", row.ID, err)
	}
	return outcomeRetry, nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	logCtx := r.logg.WithField(r.logg.WithFields(ctx, fields), "error", cause.Error())
	r.logg.Warn(logCtx, "outbox event moved to dead letters")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if err := r.deadLetters.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.rows.MarkTerminalTx(tx, row.ID, cause, r.opts.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

// publishAll sends the row to its primary topic and then each fan-out topic.
// Any failure fails the row and the retry republishes to every topic, so
// consumers dedupe on event_id.
func (r *Relay) publishAll(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	msg := &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	for _, topic := range resolved.Descriptor.Topics() {
		if err := r.publishTo(ctx, topic, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relay) publishTo(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := r.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (r *Relay) rowFields(row models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"batch_size":     r.opts.batchSize,
		"attempt_count":  row.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type gcpPublisher struct {
	topic *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{topic: p}
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.topic.Publish(ctx, msg)
}

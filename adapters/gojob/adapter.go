package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-config-monitor/core"
)

const (
	JobIDRefresh    = "config_monitor.refresh"
	KindJob         = "job"
	DedupPolicyDrop = "drop"
)

const (
	paramSignalID    = "signal_id"
	paramOrigin      = "origin"
	paramContextID   = "context_id"
	paramDestination = "destination"
	paramOccurredAt  = "occurred_at"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage maps a refresh signal onto a go-job message keyed by the
// signal id so redelivered signals collapse in the queue.
func ToExecutionMessage(signal core.RefreshSignal) *job.ExecutionMessage {
	occurredAt := ""
	if !signal.OccurredAt.IsZero() {
		occurredAt = signal.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	return &job.ExecutionMessage{
		JobID:      JobIDRefresh,
		ScriptPath: JobIDRefresh,
		Parameters: map[string]any{
			paramSignalID:    signal.ID,
			paramOrigin:      signal.Origin,
			paramContextID:   signal.ContextID,
			paramDestination: signal.Destination,
			paramOccurredAt:  occurredAt,
		},
		IdempotencyKey: strings.TrimSpace(signal.ID),
		DedupPolicy:    job.DeduplicationPolicy(DedupPolicyDrop),
	}
}

// FromExecutionMessage restores the refresh signal carried by a job message.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.RefreshSignal, error) {
	if msg == nil {
		return core.RefreshSignal{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDRefresh {
		return core.RefreshSignal{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	signal := core.RefreshSignal{
		ID:          stringParam(msg.Parameters, paramSignalID),
		Origin:      stringParam(msg.Parameters, paramOrigin),
		ContextID:   stringParam(msg.Parameters, paramContextID),
		Destination: stringParam(msg.Parameters, paramDestination),
	}
	if signal.ID == "" {
		signal.ID = strings.TrimSpace(msg.IdempotencyKey)
	}
	if signal.Destination == "" {
		return core.RefreshSignal{}, fmt.Errorf("gojob: refresh job has no destination")
	}
	if raw := stringParam(msg.Parameters, paramOccurredAt); raw != "" {
		occurredAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return core.RefreshSignal{}, fmt.Errorf("gojob: parse occurred_at: %w", err)
		}
		signal.OccurredAt = occurredAt.UTC()
	}
	return signal, nil
}

// RefreshJobPublisher hands refresh signals to a go-job queue instead of
// publishing them inline.
type RefreshJobPublisher struct {
	enqueuer queue.Enqueuer
}

func NewRefreshJobPublisher(enqueuer queue.Enqueuer) *RefreshJobPublisher {
	return &RefreshJobPublisher{enqueuer: enqueuer}
}

func (p *RefreshJobPublisher) Kind() string {
	return KindJob
}

func (p *RefreshJobPublisher) PublishRefresh(ctx context.Context, signal core.RefreshSignal) error {
	if p == nil || p.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(signal.Destination) == "" {
		return fmt.Errorf("gojob: refresh destination is required")
	}
	return p.enqueuer.Enqueue(ctx, ToExecutionMessage(signal))
}

// RefreshWorker drains queued refresh jobs into a downstream publisher.
type RefreshWorker struct {
	dequeuer  queue.Dequeuer
	publisher core.RefreshPublisher
	policy    RetryPolicy
	backoff   time.Duration
}

func NewRefreshWorker(
	dequeuer queue.Dequeuer,
	publisher core.RefreshPublisher,
	policy RetryPolicy,
) *RefreshWorker {
	return &RefreshWorker{
		dequeuer:  dequeuer,
		publisher: publisher,
		policy:    policy,
		backoff:   time.Second,
	}
}

// ProcessNext handles one delivery. Malformed jobs are dead-lettered, publish
// failures are nacked under the retry policy.
func (w *RefreshWorker) ProcessNext(ctx context.Context, attempt int) error {
	if w == nil || w.dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is not configured")
	}
	if w.publisher == nil {
		return fmt.Errorf("gojob: refresh publisher is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}

	signal, err := FromExecutionMessage(delivery.Message())
	if err != nil {
		if nackErr := delivery.Nack(ctx, queue.NackOptions{
			DeadLetter: true,
			Reason:     err.Error(),
		}); nackErr != nil {
			return fmt.Errorf("gojob: dead-letter malformed job: %w", nackErr)
		}
		return err
	}

	if err := w.publisher.PublishRefresh(ctx, signal); err != nil {
		opts := w.policy.NormalizeAttempt(queue.NackOptions{
			Delay:   w.backoff * time.Duration(max(attempt, 1)),
			Requeue: true,
			Reason:  err.Error(),
		}, attempt)
		if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
			return fmt.Errorf("gojob: nack refresh job: %w", nackErr)
		}
		return err
	}
	return delivery.Ack(ctx)
}

// LoggingHook reports worker lifecycle events through the monitor logger.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.log("debug", "refresh job started", event)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.log("info", "refresh job delivered", event)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.log("error", "refresh job failed", event)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.log("warn", "refresh job retrying", event)
}

func (h *LoggingHook) log(level string, message string, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	args := eventArgs(event)
	switch level {
	case "debug":
		h.logger.Debug(message, args...)
	case "warn":
		h.logger.Warn(message, args...)
	case "error":
		h.logger.Error(message, args...)
	default:
		h.logger.Info(message, args...)
	}
}

func eventArgs(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	args := []any{
		"attempt", event.Attempt,
		"duration", event.Duration,
	}
	if message != nil {
		args = append(args,
			"job_id", message.JobID,
			"destination", stringParam(message.Parameters, paramDestination),
		)
	}
	if event.Delay > 0 {
		args = append(args, "delay", event.Delay)
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	return args
}

func stringParam(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

var (
	_ core.RefreshPublisher = (*RefreshJobPublisher)(nil)
	_ worker.Hook           = (*LoggingHook)(nil)
)

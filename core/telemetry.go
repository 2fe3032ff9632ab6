package core

import (
	"context"
	"sort"
	"strings"
	"time"
)

const (
	MetricRefreshPublished = "config_monitor.refresh.published"
	metricPrefix           = "config_monitor."
)

// NopMetricsRecorder drops every sample.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}

// notifyOperation tracks one NotifyByPath or NotifyByForm call until it is
// reported through finish.
type notifyOperation struct {
	name      string
	surface   string
	startedAt time.Time
	fields    map[string]any
}

func startNotify(name string, surface string) *notifyOperation {
	return &notifyOperation{
		name:      name,
		surface:   surface,
		startedAt: time.Now(),
		fields:    map[string]any{"surface": surface},
	}
}

func (op *notifyOperation) set(key string, value any) {
	op.fields[key] = value
}

// finish emits <prefix><name>.total and .duration_ms tagged with the outcome,
// then logs "<name> succeeded" or "<name> failed".
func (m *Monitor) finish(ctx context.Context, op *notifyOperation, services []string, err error) {
	if m == nil || op == nil {
		return
	}
	elapsed := time.Since(op.startedAt)
	status := "success"
	level, message := "info", op.name+" succeeded"
	if err != nil {
		status = "failure"
		level, message = "error", op.name+" failed"
		op.set("error", err.Error())
	}
	op.set("services", services)
	op.set("event_type", op.name)
	op.set("status", status)
	op.set("duration_ms", elapsed.Milliseconds())

	tags := map[string]string{"operation": op.name, "status": status, "surface": op.surface}
	if m.metricsRecorder != nil {
		m.metricsRecorder.IncCounter(ctx, metricPrefix+op.name+".total", 1, tags)
		m.metricsRecorder.ObserveHistogram(ctx, metricPrefix+op.name+".duration_ms", float64(elapsed.Milliseconds()), tags)
	}
	emit(ctx, m.logger, level, message, op.fields)
}

// announceRefresh records one published refresh signal.
func (m *Monitor) announceRefresh(ctx context.Context, destination string) {
	if m == nil {
		return
	}
	emit(ctx, m.logger, "info", "Refresh for: "+destination, map[string]any{"destination": destination})
	if m.metricsRecorder != nil {
		m.metricsRecorder.IncCounter(ctx, MetricRefreshPublished, 1, map[string]string{"destination": destination})
	}
}

// emit attaches fields through WithFields when the logger supports it and
// falls back to sorted key/value arguments otherwise.
func emit(ctx context.Context, logger Logger, level string, message string, fields map[string]any) {
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	var args []any
	if fielded, ok := logger.(FieldsLogger); ok {
		logger = fielded.WithFields(fields)
	} else {
		args = keyValues(fields)
	}
	switch strings.ToLower(level) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func keyValues(fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricTaskSamplesTotal    = "mhrw.task.samples.total"
	metricTaskAcceptanceRatio = "mhrw.task.acceptance_ratio"
	metricTaskDuration        = "mhrw.task.duration.seconds"
	metricTaskErrorsTotal     = "mhrw.task.errors.total"

	attrTaskIndex = "task_index"
)

// TaskMetrics holds OTel instruments for dispatcher task-level metrics:
// per-task sample counts, the final moving-average acceptance ratio,
// and wall-clock duration, per SPEC_FULL.md §4.8 EXPANDED.
type TaskMetrics struct {
	samplesTotal    metric.Int64Counter
	acceptanceRatio metric.Float64Histogram
	duration        metric.Float64Histogram
	errorsTotal     metric.Int64Counter
}

// TaskRunStats summarises one completed task for metrics recording.
type TaskRunStats struct {
	TaskIndex       int
	Samples         int64
	AcceptanceRatio float64
	Duration        time.Duration
	Err             error
}

// NewTaskMetrics creates task metric instruments from the given meter.
func NewTaskMetrics(mt metric.Meter) (*TaskMetrics, error) {
	samples, err := mt.Int64Counter(metricTaskSamplesTotal,
		metric.WithDescription("Total live-phase samples collected across tasks"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTaskSamplesTotal, err)
	}

	ratio, err := mt.Float64Histogram(metricTaskAcceptanceRatio,
		metric.WithDescription("Final live-phase acceptance ratio per task"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.25, 0.3, 0.35, 0.4, 0.5, 0.7, 1.0),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTaskAcceptanceRatio, err)
	}

	dur, err := mt.Float64Histogram(metricTaskDuration,
		metric.WithDescription("Wall-clock duration of one task's walk"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTaskDuration, err)
	}

	errs, err := mt.Int64Counter(metricTaskErrorsTotal,
		metric.WithDescription("Total tasks that ended in an error (including interruption)"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTaskErrorsTotal, err)
	}

	return &TaskMetrics{
		samplesTotal:    samples,
		acceptanceRatio: ratio,
		duration:        dur,
		errorsTotal:     errs,
	}, nil
}

// RecordTask records one completed task's stats. Safe to call on a nil
// receiver (no-op), so callers need not branch on whether metrics are
// configured.
func (tm *TaskMetrics) RecordTask(ctx context.Context, stats TaskRunStats) {
	if tm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Int(attrTaskIndex, stats.TaskIndex))

	tm.duration.Record(ctx, stats.Duration.Seconds(), attrs)

	if stats.Err != nil {
		tm.errorsTotal.Add(ctx, 1, attrs)

		return
	}

	tm.samplesTotal.Add(ctx, stats.Samples, attrs)
	tm.acceptanceRatio.Record(ctx, stats.AcceptanceRatio, attrs)
}

// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otasyncq

import (
	"context"
	"time"

	"github.com/petenewcomb/asyncq-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func newMeter() metric.Meter {
	return otel.GetMeterProvider().Meter(instrumentationName)
}

// MetricsRun adds metrics collection to a task function. It records the
// number of runs and their durations, plus separate counts of runs that asked
// to be run again, were cancelled, or panicked.
func MetricsRun(metricName string, fn asyncq.RunFunc) asyncq.RunFunc {
	meter := newMeter()
	runCounter, _ := meter.Int64Counter(metricName + ".count")
	runDuration, _ := meter.Float64Histogram(metricName+".duration",
		metric.WithUnit("s"))
	rerunCounter, _ := meter.Int64Counter(metricName + ".reruns")
	cancelCounter, _ := meter.Int64Counter(metricName + ".cancelled")
	errorCounter, _ := meter.Int64Counter(metricName + ".errors")

	return func(ctx context.Context, workerID int) asyncq.Status {
		startTime := time.Now()
		runCounter.Add(ctx, 1)

		didPanic := true
		defer func() {
			runDuration.Record(ctx, time.Since(startTime).Seconds())
			if didPanic {
				errorCounter.Add(ctx, 1)
			}
		}()

		status := fn(ctx, workerID)
		didPanic = false

		switch status {
		case asyncq.NotStarted:
			rerunCounter.Add(ctx, 1)
		case asyncq.Cancelled:
			cancelCounter.Add(ctx, 1)
		}
		return status
	}
}

// ObservePool registers observable gauges reporting a pool's queue size and
// running task count as "<name>.queued" and "<name>.running". Both values are
// taken from the same [asyncq.Pool.Stats] snapshot. Call Unregister on the
// result once the pool is stopped.
func ObservePool(name string, pool *asyncq.Pool) (metric.Registration, error) {
	meter := newMeter()
	queued, err := meter.Int64ObservableGauge(name+".queued",
		metric.WithDescription("Number of tasks waiting in the queue"))
	if err != nil {
		return nil, err
	}
	running, err := meter.Int64ObservableGauge(name+".running",
		metric.WithDescription("Number of tasks being run by workers"))
	if err != nil {
		return nil, err
	}
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := pool.Stats()
		o.ObserveInt64(queued, int64(stats.Queued))
		o.ObserveInt64(running, int64(stats.Running))
		return nil
	}, queued, running)
}

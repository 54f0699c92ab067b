// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otasyncq

import (
	"context"
	"time"

	"github.com/petenewcomb/asyncq-go"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// LoggedRun adds structured logging to a task function. Each run is logged
// with its worker, duration, and resulting status. Cancelled runs are logged
// at warning level, everything else at debug level.
func LoggedRun(operationName string, fn asyncq.RunFunc) asyncq.RunFunc {
	return func(ctx context.Context, workerID int) asyncq.Status {
		logger := zap.L().With(
			zap.String("operation", operationName),
			zap.String("component", "otasyncq"),
			zap.Int("worker_id", workerID))

		logger.Debug("Starting task")
		startTime := time.Now()
		status := fn(ctx, workerID)
		duration := time.Since(startTime)

		switch status {
		case asyncq.Cancelled:
			logger.Warn("Task cancelled",
				zap.Duration("duration", duration))
		case asyncq.NotStarted:
			logger.Debug("Task yielded",
				zap.Duration("duration", duration))
		default:
			logger.Debug("Task completed",
				zap.Duration("duration", duration),
				zap.Stringer("status", status))
		}
		return status
	}
}

// WorkerHooks returns a copy of config whose thread callbacks also log worker
// start and exit and track the number of live workers in the
// "<name>.workers" up/down counter. Callbacks already present in config are
// still called.
func WorkerHooks(name string, config asyncq.Config) asyncq.Config {
	meter := newMeter()
	live, _ := meter.Int64UpDownCounter(name+".workers",
		metric.WithDescription("Number of pool workers currently running"))

	started := config.OnThreadStarted
	config.OnThreadStarted = func(workerID int) {
		zap.L().Info("Worker started",
			zap.String("pool", name),
			zap.String("component", "otasyncq"),
			zap.Int("worker_id", workerID))
		live.Add(context.Background(), 1)
		if started != nil {
			started(workerID)
		}
	}

	exiting := config.OnThreadExiting
	config.OnThreadExiting = func(workerID int) {
		if exiting != nil {
			exiting(workerID)
		}
		live.Add(context.Background(), -1)
		zap.L().Info("Worker exiting",
			zap.String("pool", name),
			zap.String("component", "otasyncq"),
			zap.Int("worker_id", workerID))
	}
	return config
}

// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otasyncq

import (
	"context"
	"fmt"

	"github.com/petenewcomb/asyncq-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/petenewcomb/asyncq-go/otasyncq"

// TracedRun adds a span with the given operation name around each run of a
// task function. The span records the worker and the status the run returned.
// A task that asks to be run again gets a new span for every run.
func TracedRun(operationName string, fn asyncq.RunFunc) asyncq.RunFunc {
	return func(ctx context.Context, workerID int) asyncq.Status {
		tracer := otel.Tracer(instrumentationName)
		ctx, span := tracer.Start(ctx, operationName,
			trace.WithAttributes(attribute.Int("asyncq.worker_id", workerID)))
		defer span.End()

		returned := false
		defer func() {
			if !returned {
				span.SetStatus(codes.Error, "task panicked")
			}
		}()
		status := fn(ctx, workerID)
		returned = true

		span.SetAttributes(attribute.String("asyncq.status", status.String()))
		if status == asyncq.Cancelled {
			span.SetStatus(codes.Error, fmt.Sprintf("%s cancelled", operationName))
		}
		return status
	}
}

// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package otasyncq provides OpenTelemetry and zap instrumentation for asyncq
// tasks and pools. Task wrappers add logging, metrics, and spans to a
// [asyncq.RunFunc], [TracedTask] carries the trace context of the goroutine
// that created a task over to the worker that runs it, and [WorkerHooks] and
// [ObservePool] report on the pool itself.
package otasyncq

import (
	"context"

	"github.com/petenewcomb/asyncq-go"
	"go.opentelemetry.io/otel/trace"
)

// TracedTask is a task that remembers the span that was current when it was
// created. Its Run span is parented on that span even though the task runs
// later, on a worker whose context knows nothing of the producer.
type TracedTask struct {
	asyncq.TaskBase
	operationName string
	parent        trace.SpanContext
	fn            asyncq.RunFunc
}

// NewTracedTask returns a task with the given priority that runs fn inside a
// span named operationName, parented on the span found in ctx, if any.
//
// Panics if fn is nil or priority is NaN.
func NewTracedTask(
	ctx context.Context,
	operationName string,
	priority float64,
	fn asyncq.RunFunc,
) *TracedTask {
	if fn == nil {
		panic("run function must be non-nil")
	}
	t := &TracedTask{
		operationName: operationName,
		parent:        trace.SpanFromContext(ctx).SpanContext(),
		fn:            TracedRun(operationName, fn),
	}
	t.SetPriority(priority)
	return t
}

// Run runs the wrapped function with the producer's span context attached.
func (t *TracedTask) Run(ctx context.Context, workerID int) asyncq.Status {
	return t.fn(propagate(ctx, t.parent), workerID)
}

// SpanContext returns the span context captured when the task was created.
func (t *TracedTask) SpanContext() trace.SpanContext {
	return t.parent
}

func propagate(ctx context.Context, parent trace.SpanContext) context.Context {
	if !parent.IsValid() {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, parent)
}

// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package asyncq

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Bounds of the polling interval used by WaitForAllTasksContext.
const (
	idlePollInitialInterval = 50 * time.Microsecond
	idlePollMaxInterval     = 10 * time.Millisecond
)

// WaitForAllTasksContext is like [Pool.WaitForAllTasks] but gives up when ctx
// is done, returning the context's error. It polls [Pool.Stats] with
// exponential backoff, so it may return slightly later than the moment the
// pool becomes idle.
//
// Returns [ErrStopped] if the pool is found to be stopped but not yet idle.
func (p *Pool) WaitForAllTasksContext(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = idlePollInitialInterval
	policy.MaxInterval = idlePollMaxInterval
	policy.MaxElapsedTime = 0 // bounded by ctx only

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		stats, stopped := p.statsAndStopped()
		if stats.Idle() {
			return nil
		}
		if stopped {
			// Queued tasks are being dropped rather than run.
			return backoff.Permanent(ErrStopped)
		}
		return errNotIdle
	}

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (p *Pool) statsAndStopped() (Stats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Queued:  p.queue.Len(),
		Running: p.running.Load(),
	}, p.stop
}

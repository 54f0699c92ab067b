// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package sim generates random task graphs and executes them both against an
// [asyncq.Pool] and against a sequential model of the pool's scheduling rules.
//
// A plan is a list of tasks, each with a priority, the number of times it must
// be run before it finishes, a set of prerequisites drawn from earlier tasks,
// and an arrival step at which it is enqueued. When the pool is driven one
// task at a time through [asyncq.Pool.ProcessTask] its behavior is fully
// deterministic, so [Estimate] predicts the exact sequence of task runs that
// [Run] must observe. [RunConcurrent] executes a plan on real workers, where
// only ordering constraints implied by prerequisites can be checked.
package sim

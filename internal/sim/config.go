// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package sim

import "time"

// Config bounds the shape of generated plans.
type Config struct {
	MaxTasks       int
	MaxRuns        int           // times a task must run before finishing
	MaxPrereqs     int
	MaxArrival     int           // latest step at which a task may be enqueued
	PriorityLevels int           // priorities are drawn from [0, PriorityLevels)
	MaxSteps       int           // guards against livelock in Estimate and Run
	Timeout        time.Duration // guards against livelock in RunConcurrent
}

// DefaultConfig keeps priority levels few so that ties are common.
var DefaultConfig = Config{
	MaxTasks:       24,
	MaxRuns:        3,
	MaxPrereqs:     3,
	MaxArrival:     10,
	PriorityLevels: 4,
	MaxSteps:       100_000,
	Timeout:        10 * time.Second,
}

// NewConfig returns a copy of DefaultConfig for adjustment.
func NewConfig() *Config {
	c := DefaultConfig
	return &c
}

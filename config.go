// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package asyncq

import (
	"runtime"

	"go.uber.org/zap"
)

// Config holds the construction options for a [Pool].
type Config struct {
	// Name prefixes worker names in logs and profiler labels. Defaults to
	// "asyncq".
	Name string

	// NumThreads is the number of worker goroutines. Zero creates a pool with
	// no workers whose queue is drained only by calls to [Pool.ProcessTask].
	// Negative values are invalid.
	NumThreads int

	// AllowedCoreMask, if non-zero, pins each worker to one of the CPU cores
	// whose bit is set, assigned round-robin by worker index. Each pinned
	// worker occupies its own OS thread for its lifetime. Pinning failures are
	// logged and otherwise ignored.
	AllowedCoreMask uint64

	// OnThreadStarted and OnThreadExiting, if set, are called once by each
	// worker on its own goroutine, before it processes its first task and
	// after it processes its last.
	OnThreadStarted func(workerID int)
	OnThreadExiting func(workerID int)

	// Logger receives the pool's diagnostics. Defaults to zap.L().
	Logger *zap.Logger
}

// DefaultConfig returns a configuration with one worker per CPU.
func DefaultConfig() Config {
	return Config{
		Name:       defaultName,
		NumThreads: runtime.NumCPU(),
	}
}

const defaultName = "asyncq"

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.Logger == nil {
		c.Logger = zap.L()
	}
	return c
}

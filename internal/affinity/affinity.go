// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package affinity pins worker threads to CPU cores. Pinning is advisory: a
// failure leaves the thread schedulable on any core and is reported to the
// caller rather than treated as fatal.
package affinity

import (
	"math/bits"
	"runtime"

	"github.com/petenewcomb/asyncq-go/internal/cerr"
)

const (
	ErrEmptyMask   = cerr.Error("no cores allowed")
	ErrSingleCore  = cerr.Error("fewer than two cores available")
	ErrUnsupported = cerr.Error("thread affinity not supported on this platform")
)

// SelectCore deterministically picks one of the cores set in allowedMask for
// the given worker, distributing workers round-robin over the allowed cores.
// Returns false if allowedMask is empty.
func SelectCore(workerIndex int, allowedMask uint64) (int, bool) {
	n := bits.OnesCount64(allowedMask)
	if n == 0 {
		return 0, false
	}
	skip := (workerIndex%n + n) % n
	for mask := allowedMask; ; mask &= mask - 1 {
		if skip == 0 {
			return bits.TrailingZeros64(mask), true
		}
		skip--
	}
}

// Pin restricts the calling OS thread to the core chosen by [SelectCore] and
// returns the thread's previous affinity mask (first 64 cores only). The
// caller must have locked its goroutine to the thread with
// runtime.LockOSThread for this to be meaningful.
//
// Returns 0 and an error if no core could be selected, the machine has fewer
// than two cores, or the platform does not support pinning.
func Pin(workerIndex int, allowedMask uint64) (uint64, error) {
	if runtime.NumCPU() < 2 {
		return 0, ErrSingleCore
	}
	core, ok := SelectCore(workerIndex, allowedMask)
	if !ok {
		return 0, ErrEmptyMask
	}
	return setThreadAffinity(core)
}

// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

//go:build linux

package affinity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func setThreadAffinity(core int) (uint64, error) {
	var set unix.CPUSet

	// pid 0 means the calling thread.
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 0, fmt.Errorf("getting thread affinity: %w", err)
	}
	var previous uint64
	for cpu := range 64 {
		if set.IsSet(cpu) {
			previous |= 1 << cpu
		}
	}

	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return 0, fmt.Errorf("pinning thread to core %d: %w", core, err)
	}
	return previous, nil
}

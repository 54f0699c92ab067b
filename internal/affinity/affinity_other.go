// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

//go:build !linux

package affinity

func setThreadAffinity(int) (uint64, error) {
	return 0, ErrUnsupported
}

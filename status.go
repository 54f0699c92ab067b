// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package asyncq

import "fmt"

// Status is the execution state of a [Task].
type Status int32

const (
	NotStarted Status = iota // Queued, blocked, or asking to be run again
	Running                  // Currently executing on a worker
	Complete                 // Finished successfully
	Cancelled                // Finished without doing its work
)

// IsFinished reports whether s is a terminal state. Finished tasks are never
// run again.
func (s Status) IsFinished() bool {
	return s == Complete || s == Cancelled
}

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Running:
		return "Running"
	case Complete:
		return "Complete"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

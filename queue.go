// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package asyncq

import (
	"cmp"
	"slices"

	"github.com/petenewcomb/asyncq-go/internal/heap"
)

// queueEntry is a task waiting in the queue together with its prerequisites.
// Entries are consumed by exactly one pop; a task that goes back into the
// queue gets a new entry.
type queueEntry struct {
	task     Task
	prereqs  []prerequisite
	priority float64 // queue key, task.Priority() as of the last push or rekey
	seq      uint64  // insertion order among equal keys
	position int
}

func (e *queueEntry) Before(other *queueEntry) bool {
	if e.priority != other.priority {
		return e.priority > other.priority
	}
	return e.seq < other.seq
}

func (e *queueEntry) SetPosition(position int) {
	e.position = position
}

func (e *queueEntry) Position() int {
	return e.position
}

// taskQueue orders entries by descending priority, first-in first-out among
// equal priorities. It is not safe for concurrent use; the pool calls it only
// with its mutex held.
type taskQueue struct {
	heap    heap.Heap[*queueEntry]
	nextSeq uint64
}

func (q *taskQueue) Len() int {
	return q.heap.Len()
}

func (q *taskQueue) Push(task Task, prereqs []prerequisite, priority float64) *queueEntry {
	e := &queueEntry{
		task:     task,
		prereqs:  prereqs,
		priority: priority,
		seq:      q.nextSeq,
	}
	q.nextSeq++
	q.heap.Push(e)
	return e
}

func (q *taskQueue) PopFront() (*queueEntry, bool) {
	return q.heap.Pop()
}

// Find returns the first entry, in heap order, for the given task.
func (q *taskQueue) Find(task Task) (*queueEntry, bool) {
	b := task.base()
	for e := range q.heap.All() {
		if e.task.base() == b {
			return e, true
		}
	}
	return nil, false
}

func (q *taskQueue) Remove(e *queueEntry) bool {
	return q.heap.Remove(e)
}

// Rekey moves an entry to a new priority. The entry is treated as newly
// inserted, so it goes behind existing entries of the same priority.
func (q *taskQueue) Rekey(e *queueEntry, priority float64) {
	e.priority = priority
	e.seq = q.nextSeq
	q.nextSeq++
	q.heap.Fix(e)
}

// RekeyAll re-reads the priority of every entry's task and re-inserts those
// whose priority changed, preserving their relative insertion order. Returns
// the number of entries re-keyed.
func (q *taskQueue) RekeyAll() int {
	type change struct {
		entry    *queueEntry
		priority float64
	}
	var changes []change
	for e := range q.heap.All() {
		if p := e.task.Priority(); p != e.priority {
			changes = append(changes, change{e, p})
		}
	}
	slices.SortFunc(changes, func(a, b change) int {
		return cmp.Compare(a.entry.seq, b.entry.seq)
	})
	for _, c := range changes {
		q.Rekey(c.entry, c.priority)
	}
	return len(changes)
}

// Clear drops every entry.
func (q *taskQueue) Clear() int {
	n := q.heap.Len()
	q.heap.Clear()
	return n
}

// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package asyncq

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// A Batch collects tasks and their prerequisites so that they can be checked
// for dependency cycles and enqueued together with [Pool.EnqueueBatch]. A task
// whose prerequisites form a cycle can never run and would otherwise circle
// the queue indefinitely.
//
// The zero value is an empty batch ready to use.
type Batch struct {
	items []batchItem
}

type batchItem struct {
	task    Task
	prereqs []Task
}

// Add records a task and its prerequisites. Prerequisites need not be part of
// the batch. Returns the batch to allow chaining.
//
// Panics if task or any prerequisite is nil.
func (b *Batch) Add(task Task, prerequisites ...Task) *Batch {
	if task == nil {
		panic("task must be non-nil")
	}
	for _, pt := range prerequisites {
		if pt == nil {
			panic("prerequisite must be non-nil")
		}
	}
	b.items = append(b.items, batchItem{
		task:    task,
		prereqs: append([]Task(nil), prerequisites...),
	})
	return b
}

// Len returns the number of tasks added to the batch.
func (b *Batch) Len() int {
	return len(b.items)
}

// order returns the batch's items sorted so that each comes after any of its
// prerequisites that are also in the batch.
func (b *Batch) order() ([]batchItem, error) {
	itemsByTask := make(map[*TaskBase][]batchItem, len(b.items))
	var edges []toposort.Edge
	for _, item := range b.items {
		node := item.task.base()
		itemsByTask[node] = append(itemsByTask[node], item)
		if len(item.prereqs) == 0 {
			// Edge from nil so that tasks without prerequisites are included.
			edges = append(edges, toposort.Edge{nil, node})
			continue
		}
		for _, pt := range item.prereqs {
			if pt.base() == node {
				return nil, fmt.Errorf("%w: task is its own prerequisite", ErrCycle)
			}
			// Edge (prerequisite, task) means the prerequisite comes first.
			edges = append(edges, toposort.Edge{pt.base(), node})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCycle, err)
	}

	ordered := make([]batchItem, 0, len(b.items))
	for _, node := range sorted {
		tb, ok := node.(*TaskBase)
		if !ok {
			continue
		}
		// Prerequisites from outside the batch appear in the sort too.
		ordered = append(ordered, itemsByTask[tb]...)
		delete(itemsByTask, tb)
	}
	if len(ordered) != len(b.items) {
		return nil, fmt.Errorf("%w: %d of %d tasks could not be ordered",
			ErrCycle, len(b.items)-len(ordered), len(b.items))
	}
	return ordered, nil
}

// EnqueueBatch enqueues every task in the batch as with [Pool.EnqueueTask],
// prerequisites first. If the prerequisites within the batch form a cycle, no
// task is enqueued and an error wrapping [ErrCycle] is returned.
//
// Panics under the same conditions as [Pool.EnqueueTask].
func (p *Pool) EnqueueBatch(b *Batch) error {
	ordered, err := b.order()
	if err != nil {
		return err
	}
	for _, item := range ordered {
		p.EnqueueTask(item.task, item.prereqs...)
	}
	return nil
}

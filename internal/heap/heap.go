// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package heap provides a generic, position-tracking wrapper around the
// standard library heap, so that items can be removed or re-ordered in
// O(log n) without searching for them.
package heap

import (
	"container/heap"
	"iter"
)

// Item is the interface for items stored in the heap.
type Item[T any] interface {
	// Before returns true if this item should be popped before the other.
	Before(other T) bool
	// SetPosition is called when the item's position in the heap changes.
	// Valid positions are greater than zero; zero means not in the heap.
	SetPosition(position int)
	// Position returns the item's current position in the heap.
	Position() int
}

// Heap is a generic heap of items that implement the Item interface. The item
// for which Before returns true against all others is at the front. The zero
// value is an empty heap ready to use without initialization.
type Heap[T Item[T]] struct {
	impl heapImpl[T]
}

type heapImpl[T Item[T]] struct {
	items []T
}

func (h *Heap[T]) Len() int {
	return len(h.impl.items)
}

// Push adds an item that is not already in a heap.
func (h *Heap[T]) Push(item T) {
	if item.Position() != 0 {
		panic("item is already in a heap")
	}
	heap.Push(&h.impl, item)
}

// Pop removes and returns the front item. Returns the zero value of T and
// false if the heap is empty.
func (h *Heap[T]) Pop() (T, bool) {
	if len(h.impl.items) == 0 {
		var zero T
		return zero, false
	}
	return heap.Pop(&h.impl).(T), true
}

// Peek returns the front item without removing it. Returns the zero value of
// T and false if the heap is empty.
func (h *Heap[T]) Peek() (T, bool) {
	if len(h.impl.items) == 0 {
		var zero T
		return zero, false
	}
	return h.impl.items[0], true
}

// Remove removes an item from the heap. Returns false if the item was not in
// the heap.
func (h *Heap[T]) Remove(item T) bool {
	p := item.Position()
	if p < 0 {
		panic("item reports invalid position")
	}
	if p == 0 {
		return false
	}
	heap.Remove(&h.impl, p-1)
	return true
}

// Fix re-establishes heap order after the ordering of an item in the heap has
// changed.
func (h *Heap[T]) Fix(item T) {
	p := item.Position()
	if p <= 0 {
		panic("item is not in the heap")
	}
	heap.Fix(&h.impl, p-1)
}

// All iterates over the items in heap (not priority) order. The heap must not
// be modified during iteration.
func (h *Heap[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, item := range h.impl.items {
			if !yield(item) {
				return
			}
		}
	}
}

// Clear removes all items, resetting their positions.
func (h *Heap[T]) Clear() {
	for i, item := range h.impl.items {
		item.SetPosition(0)
		h.impl.items[i] = *new(T)
	}
	h.impl.items = h.impl.items[:0]
}

// Implementation of container/heap.Interface for heapImpl

func (h *heapImpl[T]) Len() int {
	return len(h.items)
}

func (h *heapImpl[T]) Less(i, j int) bool {
	return h.items[i].Before(h.items[j])
}

func (h *heapImpl[T]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].SetPosition(i + 1)
	h.items[j].SetPosition(j + 1)
}

func (h *heapImpl[T]) Push(x any) {
	item := x.(T)
	item.SetPosition(len(h.items) + 1)
	h.items = append(h.items, item)
}

func (h *heapImpl[T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = *new(T) // avoid memory leak
	h.items = old[0 : n-1]
	item.SetPosition(0)
	return item
}

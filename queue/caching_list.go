// Package queue implements the input-ingestion buffer: a generic
// recycle-caching FIFO (CachingList) and the InputQueueItem payload it
// holds for the input operator.
package queue

import "sync"

// Resettable is implemented by item types a CachingList can recycle: Reset
// clears a consumed item back to a logically-empty state so it can be handed
// out again by GetEmpty without a fresh allocation. T is typically a pointer
// type (e.g. *InputQueueItem), since items are shared by reference between
// the cache and the live queue.
type Resettable interface {
	Reset()
}

// CachingList is a FIFO of T with a side cache of recycled items. An item is,
// at all times, in exactly one of: the recycle cache, the live queue, or in
// flight with a caller that has not yet called PushBack or Recycle.
type CachingList[T Resettable] struct {
	mu      sync.Mutex
	live    []T
	cache   []T
	prophet int // index into live, relative to the current front
	newItem func() T
}

// New returns an empty CachingList. newItem constructs a fresh item when the
// recycle cache is empty.
func New[T Resettable](newItem func() T) *CachingList[T] {
	return &CachingList[T]{newItem: newItem}
}

// GetEmpty returns an item from the recycle cache, allocating a new one via
// newItem if the cache is empty. The returned item is owned by the caller
// until PushBack is called on it.
func (c *CachingList[T]) GetEmpty() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.cache); n > 0 {
		item := c.cache[n-1]
		c.cache = c.cache[:n-1]
		return item
	}
	return c.newItem()
}

// PushBack appends a filled item to the live queue.
func (c *CachingList[T]) PushBack(item T) {
	c.mu.Lock()
	c.live = append(c.live, item)
	c.mu.Unlock()
}

// PopFront removes and returns the oldest live item, and true, or the zero
// value and false if the queue is empty. Popping past the prophet cursor
// retreats it to stay relative to the new front.
func (c *CachingList[T]) PopFront() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.live) == 0 {
		var zero T
		return zero, false
	}
	item := c.live[0]
	c.live = c.live[1:]
	if c.prophet > 0 {
		c.prophet--
	}
	return item, true
}

// PeekFront returns the oldest live item without removing it, and true, or
// the zero value and false if the queue is empty.
func (c *CachingList[T]) PeekFront() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.live) == 0 {
		var zero T
		return zero, false
	}
	return c.live[0], true
}

// Len returns the number of items currently in the live queue.
func (c *CachingList[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Recycle resets item and returns it to the recycle cache for reuse by a
// future GetEmpty call.
func (c *CachingList[T]) Recycle(item T) {
	item.Reset()
	c.mu.Lock()
	c.cache = append(c.cache, item)
	c.mu.Unlock()
}

// CanProphetAdvance reports whether the prophet cursor has not yet reached
// the live tail, i.e. whether PeekProphet/AdvanceProphet can make progress
// without waiting for more data.
func (c *CachingList[T]) CanProphetAdvance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prophet < len(c.live)
}

// PeekProphet returns the item at the prophet cursor without consuming it,
// and true, or the zero value and false if the cursor has reached the live
// tail.
func (c *CachingList[T]) PeekProphet() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prophet >= len(c.live) {
		var zero T
		return zero, false
	}
	return c.live[c.prophet], true
}

// AdvanceProphet moves the prophet cursor forward by one, if possible.
// Returns false if the cursor was already at the live tail.
func (c *CachingList[T]) AdvanceProphet() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prophet >= len(c.live) {
		return false
	}
	c.prophet++
	return true
}

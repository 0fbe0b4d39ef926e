// Package gevent implements a recyclable completion-event pool. An Event
// signals that a producing device queue has finished writing a buffer; a
// Pool hands out and recycles events per device so callers never pay for a
// fresh buffer allocation on every iteration.
package gevent

import (
	"context"
	"fmt"
	"sync"

	"github.com/openfluke/pipeflow/gpu"
	"github.com/openfluke/webgpu/wgpu"
)

// Event is a one-shot-per-record completion fence, backed by a small staging
// buffer whose MapAsync completion is the "fired" signal — the idiomatic
// WebGPU stand-in for a CUDA event.
type Event struct {
	deviceID int
	buf      *wgpu.Buffer
}

const eventFenceSize = 4

func newEvent(deviceID int) (*Event, error) {
	c, err := gpu.GetContext()
	if err != nil {
		return nil, fmt.Errorf("gevent: new event requires a GPU context: %w", err)
	}
	buf, err := c.NewStagingBuffer(eventFenceSize, false)
	if err != nil {
		return nil, fmt.Errorf("gevent: new event: %w", err)
	}
	return &Event{deviceID: deviceID, buf: buf}, nil
}

// DeviceID returns the device this event is bound to.
func (e *Event) DeviceID() int {
	return e.deviceID
}

// Record enqueues a copy of the first eventFenceSize bytes of src into the
// event's fence buffer, so the fence is ordered after any work on src already
// submitted to the same device queue. A nil src enqueues nothing. Record does
// not map the fence buffer; Wait does.
func (e *Event) Record(src *wgpu.Buffer) error {
	c, err := gpu.GetContext()
	if err != nil {
		return fmt.Errorf("gevent: record requires a GPU context: %w", err)
	}
	if src != nil {
		if err := c.CopyBufferToBuffer(src, e.buf, eventFenceSize); err != nil {
			return fmt.Errorf("gevent: record: %w", err)
		}
	}
	return nil
}

// Wait blocks (polling the device) until the event's fence map completes or
// ctx is done, then immediately unmaps so the event is re-armable. This is
// the Go analogue of cudaEventSynchronize.
func (e *Event) Wait(ctx context.Context) error {
	c, err := gpu.GetContext()
	if err != nil {
		return fmt.Errorf("gevent: wait requires a GPU context: %w", err)
	}
	if err := c.MapAndWait(ctx, e.buf, wgpu.MapModeRead, eventFenceSize); err != nil {
		return fmt.Errorf("gevent: wait: %w", err)
	}
	e.buf.Unmap()
	return nil
}

// deviceFreeList is one device's free list of recycled Events, independently
// lockable so Get/Put traffic for one device never contends with another.
type deviceFreeList struct {
	mu   sync.Mutex
	free []*Event
}

// Pool is a per-device recyclable free list of Events. Safe for concurrent
// use; each device's free list has its own mutex, so Get/Put on different
// devices never contend. The pool-wide mutex guards only the one-time
// creation of a device's free list, never the Get/Put hot path.
type Pool struct {
	mu    sync.Mutex
	lists map[int]*deviceFreeList
}

// NewPool returns an empty event pool. Tests and pipelines each construct
// their own instance rather than sharing a process-wide singleton, so
// cross-talk between unrelated pipelines never happens.
func NewPool() *Pool {
	return &Pool{lists: make(map[int]*deviceFreeList)}
}

func (p *Pool) listFor(deviceID int) *deviceFreeList {
	p.mu.Lock()
	l, ok := p.lists[deviceID]
	if !ok {
		l = &deviceFreeList{}
		p.lists[deviceID] = l
	}
	p.mu.Unlock()
	return l
}

// Get returns an event bound to deviceID, creating one if the pool's free
// list for that device is empty. The returned event is in a recordable
// state — any previous usage has already had Wait observed by whoever last
// held it.
func (p *Pool) Get(deviceID int) (*Event, error) {
	l := p.listFor(deviceID)
	l.mu.Lock()
	if n := len(l.free); n > 0 {
		e := l.free[n-1]
		l.free = l.free[:n-1]
		l.mu.Unlock()
		return e, nil
	}
	l.mu.Unlock()
	return newEvent(deviceID)
}

// Put returns event to its device's free list for reuse.
func (p *Pool) Put(event *Event) {
	if event == nil {
		return
	}
	l := p.listFor(event.deviceID)
	l.mu.Lock()
	l.free = append(l.free, event)
	l.mu.Unlock()
}

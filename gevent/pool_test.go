package gevent

// These tests exercise Pool's free-list bookkeeping directly, constructing
// Events by literal rather than through newEvent, so they never require a
// real GPU adapter to be present.

import "testing"

// TestPoolRoundTrip verifies that Put(e) followed by Get(same device) with
// no intervening Get returns e itself.
func TestPoolRoundTrip(t *testing.T) {
	p := NewPool()
	e := &Event{deviceID: 0}

	p.Put(e)
	got, err := p.Get(0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != e {
		t.Errorf("Get after Put should return the same event back")
	}
}

// TestPoolPerDeviceIsolation verifies free lists for different devices never
// cross-contaminate.
func TestPoolPerDeviceIsolation(t *testing.T) {
	p := NewPool()
	e0 := &Event{deviceID: 0}
	e1 := &Event{deviceID: 1}

	p.Put(e0)
	p.Put(e1)

	got1, err := p.Get(1)
	if err != nil {
		t.Fatalf("Get(1) failed: %v", err)
	}
	if got1 != e1 {
		t.Errorf("Get(1) should return the device-1 event, not %v", got1)
	}

	got0, err := p.Get(0)
	if err != nil {
		t.Fatalf("Get(0) failed: %v", err)
	}
	if got0 != e0 {
		t.Errorf("Get(0) should return the device-0 event, not %v", got0)
	}
}

// TestPoolPutNilIsNoop verifies Put(nil) does not corrupt the free list.
func TestPoolPutNilIsNoop(t *testing.T) {
	p := NewPool()
	p.Put(nil)
	if len(p.lists) != 0 {
		t.Errorf("Put(nil) should not add anything to any free list")
	}
}

// TestLeaseGetIsIdempotentForStableDevice verifies repeated Get calls for
// the same pool+device return the same leased event without round-tripping
// through the pool.
func TestLeaseGetIsIdempotentForStableDevice(t *testing.T) {
	p := NewPool()
	p.Put(&Event{deviceID: 0})

	var l Lease
	e1, err := l.Get(p, 0)
	if err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	e2, err := l.Get(p, 0)
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if e1 != e2 {
		t.Errorf("Lease.Get for the same device should be idempotent")
	}
	if len(p.lists[0].free) != 0 {
		t.Errorf("an idempotent Get should not return the event to the pool in between")
	}
}

// TestLeaseGetSwitchingDeviceReleasesOld verifies leasing for a new device
// id first returns the previously-held event to its pool.
func TestLeaseGetSwitchingDeviceReleasesOld(t *testing.T) {
	p := NewPool()
	p.Put(&Event{deviceID: 0})
	p.Put(&Event{deviceID: 1})

	var l Lease
	first, err := l.Get(p, 0)
	if err != nil {
		t.Fatalf("Get(0) failed: %v", err)
	}
	if _, err := l.Get(p, 1); err != nil {
		t.Fatalf("Get(1) failed: %v", err)
	}

	back, err := p.Get(0)
	if err != nil {
		t.Fatalf("Get(0) after switch failed: %v", err)
	}
	if back != first {
		t.Errorf("switching device should have returned the old event to pool 0's free list")
	}
}

// TestLeaseReleaseClearsLease verifies Release puts the held event back and
// leaves the lease holding nothing.
func TestLeaseReleaseClearsLease(t *testing.T) {
	p := NewPool()
	p.Put(&Event{deviceID: 0})

	var l Lease
	if _, err := l.Get(p, 0); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	l.Release()
	if l.Peek() != nil {
		t.Errorf("Release should clear the lease's held event")
	}
	if len(p.lists[0].free) != 1 {
		t.Errorf("Release should return the event to its pool")
	}
}

// TestLeaseReleaseOnEmptyLeaseIsNoop verifies releasing a lease that never
// held an event does not panic or touch any pool.
func TestLeaseReleaseOnEmptyLeaseIsNoop(t *testing.T) {
	var l Lease
	l.Release() // must not panic
	if l.Peek() != nil {
		t.Errorf("an empty lease should have nothing to peek")
	}
}

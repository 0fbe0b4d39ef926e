package gevent

// Lease holds at most one leased Event and the device id it was leased for.
// Get is idempotent for a stable device id; leasing for a different device
// id first returns the old event to its pool, then leases a fresh one.
// Release puts the held event back and clears the lease — callers call it
// when the owning InputQueueItem is recycled.
type Lease struct {
	pool  *Pool
	event *Event
}

// Get ensures the lease holds an event bound to deviceID, leasing one from
// pool if needed.
func (l *Lease) Get(pool *Pool, deviceID int) (*Event, error) {
	if l.event != nil && l.event.deviceID == deviceID && l.pool == pool {
		return l.event, nil
	}
	l.Release()

	e, err := pool.Get(deviceID)
	if err != nil {
		return nil, err
	}
	l.pool = pool
	l.event = e
	return e, nil
}

// Peek returns the currently leased event, if any, without leasing a new
// one.
func (l *Lease) Peek() *Event {
	return l.event
}

// Release returns any held event to its pool and clears the lease.
func (l *Lease) Release() {
	if l.event != nil && l.pool != nil {
		l.pool.Put(l.event)
	}
	l.event = nil
	l.pool = nil
}

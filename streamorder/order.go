// Package streamorder defines the access-order abstraction that tags every
// buffer and memory operation with the synchronization domain it belongs to:
// either the host, or a specific device's stream.
package streamorder

import "fmt"

// Order identifies the synchronization domain an operation is sequenced in.
// The zero value is the host order.
type Order struct {
	deviceID int
	isDevice bool
	set      bool
}

// Host returns the host (synchronous) access order.
func Host() Order {
	return Order{}
}

// Device returns the access order bound to the given device id's stream.
func Device(deviceID int) Order {
	return Order{deviceID: deviceID, isDevice: true, set: true}
}

// IsHost reports whether this order is the host order.
func (o Order) IsHost() bool {
	return !o.isDevice
}

// IsDevice reports whether this order is bound to a device stream.
func (o Order) IsDevice() bool {
	return o.isDevice
}

// DeviceID returns the bound device id. Only meaningful if IsDevice is true.
func (o Order) DeviceID() int {
	return o.deviceID
}

// HasValue reports whether the order carries an explicit value, as opposed
// to a zero Order used as a "not set, use default" sentinel by callers that
// need to distinguish "unset" from "host". Callers that never need the
// distinction can ignore this and treat the zero value as Host().
func (o Order) HasValue() bool {
	return o.isDevice || o.set
}

// WithValue marks a host order as explicitly set, distinguishing it from an
// unset zero value in APIs (e.g. scratch.Dynamic's dealloc orders) where
// "not provided" defaults to another order instead of Host.
func (o Order) WithValue() Order {
	o.set = true
	return o
}

func (o Order) String() string {
	if o.IsHost() {
		return "host"
	}
	return fmt.Sprintf("device(%d)", o.deviceID)
}

// Reconcile reports whether a consumer observing data produced in `producer`
// order must wait before touching it: true exactly when the producer is a
// device order, whatever the consumer's order. Two tensor lists compose
// only after this wait has been inserted by the caller (gevent.Event.Wait or
// a stream-wait equivalent) — Reconcile itself performs no synchronization,
// it only decides whether one is needed.
func Reconcile(producer, consumer Order) (needsWait bool) {
	return producer.IsDevice()
}

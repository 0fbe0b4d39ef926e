package queue

import (
	"github.com/openfluke/pipeflow/gevent"
	"github.com/openfluke/pipeflow/tensor"
)

// InputQueueItem is a slot holding one batch of data as it moves through an
// input operator's queue. Invariant: CopyPerformed implies the lease's event
// has been recorded in the producer's order, or the copy was host-synchronous
// and no event is needed.
type InputQueueItem struct {
	Data          *tensor.List
	DataID        string
	Lease         gevent.Lease
	CopyRequested bool
	CopyPerformed bool
}

// NewInputQueueItem returns a freshly allocated, logically-empty item.
func NewInputQueueItem() *InputQueueItem {
	return &InputQueueItem{}
}

// Reset clears the item back to a logically-empty state, releasing its
// leased event back to its pool. Called by CachingList.Recycle.
func (it *InputQueueItem) Reset() {
	it.Data = nil
	it.DataID = ""
	it.CopyRequested = false
	it.CopyPerformed = false
	it.Lease.Release()
}

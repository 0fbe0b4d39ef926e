package pipeline

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/openfluke/pipeflow/gevent"
	"github.com/openfluke/pipeflow/queue"
	"github.com/openfluke/pipeflow/streamorder"
	"github.com/openfluke/pipeflow/tensor"
)

// InputOperator bridges externally supplied batches into the DAG. It has no
// pipeline-internal inputs and at least one output, and is the only node
// type the executor feeds from outside the graph.
type InputOperator struct {
	name        string
	outputNames []string
	backend     tensor.Backend
	deviceID    int
	noCopy      bool
	blocking    bool

	layout []string
	dtype  []tensor.DType
	ndim   []int

	mu      sync.Mutex
	cond    *sync.Cond
	running bool
	q       *queue.CachingList[*queue.InputQueueItem]

	events *gevent.Pool

	warnedMixedContiguity atomic.Bool

	copyStream streamorder.Order
}

// InputOperatorConfig names the construction parameters of an InputOperator.
type InputOperatorConfig struct {
	Name        string
	OutputNames []string // defaults to [Name] if empty
	Backend     tensor.Backend
	DeviceID    int
	NoCopy      bool
	Blocking    bool
	Layout      []string
	DType       []tensor.DType
	NDim        []int
	Events      *gevent.Pool
	CopyStream  streamorder.Order
}

// NewInputOperator constructs an input operator in accordance with cfg.
func NewInputOperator(cfg InputOperatorConfig) *InputOperator {
	outputNames := cfg.OutputNames
	if len(outputNames) == 0 {
		outputNames = []string{cfg.Name}
	}
	op := &InputOperator{
		name:        cfg.Name,
		outputNames: outputNames,
		backend:    cfg.Backend,
		deviceID:   cfg.DeviceID,
		noCopy:     cfg.NoCopy,
		blocking:   cfg.Blocking,
		layout:     cfg.Layout,
		dtype:      cfg.DType,
		ndim:       cfg.NDim,
		running:    true,
		events:     cfg.Events,
		copyStream: cfg.CopyStream,
	}
	op.q = queue.New(func() *queue.InputQueueItem { return queue.NewInputQueueItem() })
	op.cond = sync.NewCond(&op.mu)
	return op
}

func (op *InputOperator) InLayout() []string     { return op.layout }
func (op *InputOperator) InDType() []tensor.DType { return op.dtype }
func (op *InputOperator) InNDim() []int          { return op.ndim }
func (op *InputOperator) Backend() tensor.Backend { return op.backend }

// Setup/Run satisfy the Operator interface so an InputOperator can sit in
// the same OperatorNode machinery as any other node; the executor calls
// ForwardCurrentData directly rather than Run for input nodes, but keeping
// the interface satisfied lets introspection treat all nodes uniformly.
func (op *InputOperator) Setup(ws *Workspace) ([]Shape, bool, error) { return nil, true, nil }
func (op *InputOperator) Run(ws *Workspace) error                   { return nil }

// GetFeedCount returns the number of queued items awaiting consumption.
func (op *InputOperator) GetFeedCount() int {
	return op.q.Len()
}

// BreakWaiting cancels any blocked consumer; subsequent waits return
// Cancelled immediately without advancing the prophet or consumption cursor.
func (op *InputOperator) BreakWaiting() {
	op.mu.Lock()
	op.running = false
	op.mu.Unlock()
	op.cond.Broadcast()
}

// SetDataSource enqueues batch for a future iteration, resolving the
// copy/share policy for this feed and signaling any blocked consumer.
func (op *InputOperator) SetDataSource(batch *tensor.List, settings FeedSettings) error {
	if batch == nil || batch.NumSamples() == 0 {
		return newErr(InvalidArgument, op.name, -1, "empty batch")
	}
	if err := batch.Validate(); err != nil {
		return wrapErr(InvalidArgument, op.name, -1, err, "invalid batch")
	}

	item := op.q.GetEmpty()
	resolved, err := op.resolve(batch, settings, item)
	if err != nil {
		op.q.Recycle(item)
		return err
	}
	item.Data = resolved
	item.DataID = settings.DataID

	op.mu.Lock()
	op.q.PushBack(item)
	op.mu.Unlock()
	op.cond.Broadcast()
	return nil
}

// resolve implements the share/copy decision table from the component
// design: share is attempted first unless forced off; a device share that
// cannot be satisfied falls back to copy and raises the mixed-contiguity
// warning (once per operator instance).
func (op *InputOperator) resolve(src *tensor.List, settings FeedSettings, item *queue.InputQueueItem) (*tensor.List, error) {
	wantShare := settings.Mode == CopyForceNone || (settings.Mode == CopyDefault && op.noCopy)

	if wantShare {
		if shared, ok := op.tryShare(src); ok {
			item.CopyRequested = false
			item.CopyPerformed = false
			return shared, nil
		}
		if settings.Mode == CopyForceNone {
			return nil, newErr(InvalidArgument, op.name, -1, "FORCE_NO_COPY requested but source cannot be shared")
		}
		if op.backend == tensor.Device && src.Backend == tensor.Device {
			op.warnMixedContiguityOnce()
		}
	}

	return op.copyInto(src, settings, item)
}

// tryShare attempts a zero-copy share. For host backends this is always
// possible (a direct reference); for device backends it requires the source
// to already be contiguous and on this operator's device.
func (op *InputOperator) tryShare(src *tensor.List) (*tensor.List, bool) {
	if src.Backend != op.backend {
		return nil, false
	}
	if op.backend == tensor.Host {
		shared := *src
		shared.Pinned = false // destination pinned status is reconciled to this operator's default
		return &shared, true
	}
	// device backend
	if src.Contiguous && src.DeviceID == op.deviceID {
		shared := *src
		return &shared, true
	}
	return nil, false
}

func (op *InputOperator) warnMixedContiguityOnce() {
	if op.warnedMixedContiguity.CompareAndSwap(false, true) {
		log.Printf("pipeline: input %q: sharing a non-contiguous GPU source falls back to a copy; "+
			"mixing contiguous and non-contiguous inputs to the same input operator may indicate a bug", op.name)
	}
}

func (op *InputOperator) copyInto(src *tensor.List, settings FeedSettings, item *queue.InputQueueItem) (*tensor.List, error) {
	item.CopyRequested = true
	dst := src.Clone()
	dst.Backend = op.backend
	dst.DeviceID = op.deviceID

	order := settings.Order
	if op.backend == tensor.Host {
		order = streamorder.Host()
	} else if !order.HasValue() {
		order = op.copyStream
	}
	dst.Order = order

	item.CopyPerformed = true

	if order.IsDevice() && op.events != nil {
		ev, err := item.Lease.Get(op.events, order.DeviceID())
		if err != nil {
			return nil, wrapErr(ResourceExhausted, op.name, -1, err, "failed to lease completion event")
		}
		if err := ev.Record(nil); err != nil {
			return nil, wrapErr(DeviceError, op.name, -1, err, "failed to record completion event")
		}
		if settings.Sync {
			if err := ev.Wait(context.Background()); err != nil {
				return nil, wrapErr(DeviceError, op.name, -1, err, "sync wait on copy failed")
			}
		}
	}

	return dst, nil
}

// NextBatchSize reports the sample count of the item at the prophet cursor
// without consuming it, blocking (if blocking=true) until it can advance or
// BreakWaiting is called.
func (op *InputOperator) NextBatchSize(ctx context.Context) (int, error) {
	item, err := op.waitForProphet(ctx)
	if err != nil {
		return 0, err
	}
	return item.Data.NumSamples(), nil
}

// Advance moves the prophet cursor forward by one, applying the same
// blocking/cancellation rules as NextBatchSize. A cancelled wait returns
// Cancelled without advancing the cursor.
func (op *InputOperator) Advance(ctx context.Context) error {
	_, err := op.waitForProphet(ctx)
	if err != nil {
		return err
	}
	op.mu.Lock()
	op.q.AdvanceProphet()
	op.mu.Unlock()
	return nil
}

func (op *InputOperator) waitForProphet(ctx context.Context) (*queue.InputQueueItem, error) {
	op.mu.Lock()
	defer op.mu.Unlock()

	for {
		if item, ok := op.q.PeekProphet(); ok {
			return item, nil
		}
		if !op.running {
			return nil, newErr(Cancelled, op.name, -1, "BreakWaiting called while waiting on prophet cursor")
		}
		if !op.blocking {
			return nil, newErr(NoData, op.name, -1, "non-blocking input operator has no queued data")
		}

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				op.cond.Broadcast()
			case <-done:
			}
		}()
		op.cond.Wait()
		close(done)

		if ctx.Err() != nil {
			return nil, wrapErr(Cancelled, op.name, -1, ctx.Err(), "context cancelled while waiting for data")
		}
	}
}

// ForwardCurrentData moves the head item's payload out of the queue. If the
// item was produced in a device order and holds a leased completion event,
// ForwardCurrentData waits on that event (bounded by ctx) before returning
// the data, then recycles the item.
func (op *InputOperator) ForwardCurrentData(ctx context.Context, targetOrder streamorder.Order) (*tensor.List, string, error) {
	op.mu.Lock()
	for {
		if _, ok := op.q.PeekFront(); ok {
			break
		}
		if !op.running {
			op.mu.Unlock()
			return nil, "", newErr(Cancelled, op.name, -1, "BreakWaiting called while waiting for data")
		}
		if !op.blocking {
			op.mu.Unlock()
			return nil, "", newErr(NoData, op.name, -1, "non-blocking input operator has no queued data")
		}
		op.cond.Wait()
	}
	item, _ := op.q.PopFront()
	op.mu.Unlock()

	if streamorder.Reconcile(item.Data.Order, targetOrder) {
		if ev := item.Lease.Peek(); ev != nil {
			if err := ev.Wait(ctx); err != nil {
				return nil, "", wrapErr(DeviceError, op.name, -1, err, "stream-wait on producing event failed")
			}
		}
	}

	data, dataID := item.Data, item.DataID
	op.q.Recycle(item)
	return data, dataID, nil
}

// PeekCurrentData returns the head item's payload without consuming it, for
// callers (e.g. GetFeedCount-adjacent introspection) that need to inspect
// but not advance the queue.
func (op *InputOperator) PeekCurrentData() (*tensor.List, bool) {
	op.mu.Lock()
	defer op.mu.Unlock()
	item, ok := op.q.PeekFront()
	if !ok {
		return nil, false
	}
	return item.Data, true
}

package pipeline

import (
	"context"
	"sync"

	"github.com/openfluke/pipeflow/gevent"
	"github.com/openfluke/pipeflow/internal/workerpool"
	"github.com/openfluke/pipeflow/scratch"
	"github.com/openfluke/pipeflow/streamorder"
	"github.com/openfluke/pipeflow/tensor"
)

// IterationStatus is the state machine position of one in-flight iteration.
type IterationStatus int

const (
	Scheduled IterationStatus = iota
	CPUDone
	MixedDone
	GPUDone
	Released
	Failed
)

func (s IterationStatus) String() string {
	switch s {
	case Scheduled:
		return "Scheduled"
	case CPUDone:
		return "CPUDone"
	case MixedDone:
		return "MixedDone"
	case GPUDone:
		return "GPUDone"
	case Released:
		return "Released"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

type iterationState struct {
	index  int
	status IterationStatus
	ws     *Workspace
	err    error
}

// ExecutorConfig names the dials the executor is constructed with.
type ExecutorConfig struct {
	Pipelined     bool
	Async         bool
	PrefetchDepth int
	NumThreads    int
	DeviceID      int
}

// Executor is the pipelined, multi-stage scheduler: it runs the operator
// DAG's CPU/Mixed/GPU stages across bounded per-stage queues, honoring the
// prefetch-depth bound on iterations simultaneously in flight.
//
// When cfg.Pipelined is set, each stage is driven by its own goroutine
// reading from its own depth-P channel and handing its result to the next
// stage's channel: iteration i's GPU stage can run concurrently with
// iteration i+1's CPU stage, exactly the overlap the bounded per-stage
// queues exist to allow. When cfg.Pipelined is unset, all three stages for
// one iteration run back to back in a single call, either inline (sync) or
// on one background goroutine (async) — the simpler, non-overlapping mode.
//
// Within a stage, a node's declared input edges are resolved by name out of
// the workspace's per-iteration buffer table rather than carried through as
// one flat slice: the table is seeded from every external input's declared
// output names before the CPU stage runs, and grows by one entry per
// declared output edge as each node completes, so a Mixed-stage node sees
// exactly the buffers its own OpSpec.Inputs name, not whatever the previous
// node in the stage happened to produce.
type Executor struct {
	cfg    ExecutorConfig
	nodes  []*OperatorNode
	inputs []*InputOperator
	// outputNames is the pipeline's requested output edges, in Build() order;
	// the executor assembles the workspace's final Outputs from these once
	// the GPU stage completes.
	outputNames []string

	cpuPool *workerpool.Pool
	events  *gevent.Pool

	mu         sync.Mutex
	cond       *sync.Cond
	nextSched  int
	nextOutput int
	states     map[int]*iterationState

	runQueue chan int // non-pipelined path: iteration indices drained by backgroundLoop or run inline

	cpuQueue   chan int // pipelined path: stage-boundary channels, each depth P
	mixedQueue chan *stageHandoff
	gpuQueue   chan *stageHandoff

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// stageHandoff carries one iteration's workspace across a stage boundary in
// the pipelined executor.
type stageHandoff struct {
	idx int
	ws  *Workspace
}

// NewExecutor constructs an executor over nodes, fed by inputs, surfacing
// outputNames as the pipeline's requested outputs. If cfg.Pipelined is set,
// three stage-worker goroutines are launched, connected by bounded handoff
// channels. Otherwise, if cfg.Async is true, a single background goroutine
// drains runQueue; if neither is set, Run executes the iteration's stages
// inline before returning.
func NewExecutor(cfg ExecutorConfig, inputs []*InputOperator, nodes []*OperatorNode, outputNames []string) *Executor {
	if cfg.PrefetchDepth <= 0 {
		cfg.PrefetchDepth = 2
	}
	e := &Executor{
		cfg:         cfg,
		nodes:       nodes,
		inputs:      inputs,
		outputNames: outputNames,
		cpuPool:     workerpool.New(cfg.NumThreads),
		events:      gevent.NewPool(),
		states:      make(map[int]*iterationState),
		done:        make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)

	if cfg.Pipelined {
		e.cpuQueue = make(chan int, cfg.PrefetchDepth)
		e.mixedQueue = make(chan *stageHandoff, cfg.PrefetchDepth)
		e.gpuQueue = make(chan *stageHandoff, cfg.PrefetchDepth)
		e.wg.Add(3)
		go e.cpuStageWorker()
		go e.mixedStageWorker()
		go e.gpuStageWorker()
		return e
	}

	e.runQueue = make(chan int, cfg.PrefetchDepth)
	if cfg.Async {
		e.wg.Add(1)
		go e.backgroundLoop()
	}
	return e
}

func (e *Executor) order() streamorder.Order {
	if e.cfg.DeviceID >= 0 {
		return streamorder.Device(e.cfg.DeviceID)
	}
	return streamorder.Host()
}

// Run enqueues one iteration's work. It blocks only if the pipeline queue is
// full (PrefetchDepth iterations already in flight). When pipelined, the
// first call must be issued twice in sequence by the caller (prefetch
// warm-up) to reach steady-state overlap.
func (e *Executor) Run() error {
	e.mu.Lock()
	idx := e.nextSched
	e.nextSched++
	e.states[idx] = &iterationState{index: idx, status: Scheduled}
	e.mu.Unlock()

	if e.cfg.Pipelined {
		select {
		case e.cpuQueue <- idx:
		case <-e.done:
			return newErr(Cancelled, "", idx, "executor closed")
		}
		return nil
	}

	if e.cfg.Async {
		select {
		case e.runQueue <- idx:
		case <-e.done:
			return newErr(Cancelled, "", idx, "executor closed")
		}
		return nil
	}

	return e.runIteration(idx)
}

func (e *Executor) backgroundLoop() {
	defer e.wg.Done()
	for {
		select {
		case idx, ok := <-e.runQueue:
			if !ok {
				return
			}
			if err := e.runIteration(idx); err != nil {
				e.mu.Lock()
				if st := e.states[idx]; st != nil {
					st.status = Failed
					st.err = err
				}
				e.mu.Unlock()
			}
		case <-e.done:
			return
		}
	}
}

// forwardInputs pulls one batch from every external input and seeds ws's
// named-edge table with it under each input's declared output names, so the
// CPU stage's nodes can resolve their declared inputs by name.
func (e *Executor) forwardInputs(ctx context.Context, order streamorder.Order, ws *Workspace) error {
	for _, in := range e.inputs {
		data, _, err := in.ForwardCurrentData(ctx, order)
		if err != nil {
			return err
		}
		for _, name := range in.outputNames {
			ws.putEdge(name, data)
		}
	}
	return nil
}

// finalizeOutputs assembles ws.Outputs from the pipeline's requested output
// names, looked up in ws's named-edge table after every stage has run. This
// replaces whatever per-node Outputs slice the last node to run left behind.
func (e *Executor) finalizeOutputs(ws *Workspace) {
	outs := make([]*tensor.List, len(e.outputNames))
	for i, name := range e.outputNames {
		tl, _ := ws.edge(name)
		outs[i] = tl
	}
	ws.Outputs = outs
	ws.outputWritten = nil
}

// cpuStageWorker pulls iteration indices off cpuQueue, forwards every
// external input's current batch into a fresh workspace, runs the CPU
// stage, and hands the workspace to the Mixed stage. It is the pipelined
// path's only producer of mixedQueue, and closes it once cpuQueue is drained
// and closed.
func (e *Executor) cpuStageWorker() {
	defer e.wg.Done()
	defer close(e.mixedQueue)
	for idx := range e.cpuQueue {
		order := e.order()
		ws := NewWorkspace(idx, e.cpuPool, order)

		if err := e.forwardInputs(context.Background(), order, ws); err != nil {
			e.setState(idx, Failed, err)
			continue
		}

		if err := e.runStage(StageCPU, ws); err != nil {
			e.setState(idx, Failed, err)
			continue
		}
		e.setState(idx, CPUDone, nil)

		select {
		case e.mixedQueue <- &stageHandoff{idx: idx, ws: ws}:
		case <-e.done:
			return
		}
	}
}

// mixedStageWorker runs the Mixed stage for each handoff from the CPU stage
// and forwards it to the GPU stage, overlapping with cpuStageWorker and
// gpuStageWorker working on neighboring iterations.
func (e *Executor) mixedStageWorker() {
	defer e.wg.Done()
	defer close(e.gpuQueue)
	for h := range e.mixedQueue {
		if err := e.runStage(StageMixed, h.ws); err != nil {
			e.setState(h.idx, Failed, err)
			continue
		}
		e.setState(h.idx, MixedDone, nil)

		select {
		case e.gpuQueue <- h:
		case <-e.done:
			return
		}
	}
}

// gpuStageWorker runs the GPU stage, the last stage, assembles the
// pipeline's requested outputs, and publishes the finished workspace to
// iterationState for Outputs to retrieve.
func (e *Executor) gpuStageWorker() {
	defer e.wg.Done()
	for h := range e.gpuQueue {
		if err := e.runStage(StageGPU, h.ws); err != nil {
			e.setState(h.idx, Failed, err)
			continue
		}
		e.finalizeOutputs(h.ws)
		e.mu.Lock()
		if st := e.states[h.idx]; st != nil {
			st.ws = h.ws
		}
		e.mu.Unlock()
		e.setState(h.idx, GPUDone, nil)
	}
}

// runIteration executes every stage, in order, for iteration idx, short
// circuiting on the first stage error. Used by the non-pipelined path only.
func (e *Executor) runIteration(idx int) error {
	order := e.order()
	ws := NewWorkspace(idx, e.cpuPool, order)

	e.setState(idx, Scheduled, nil)

	if err := e.forwardInputs(context.Background(), order, ws); err != nil {
		e.setState(idx, Failed, err)
		return err
	}

	for _, stage := range []Stage{StageCPU, StageMixed, StageGPU} {
		if err := e.runStage(stage, ws); err != nil {
			e.setState(idx, Failed, err)
			return err
		}
		switch stage {
		case StageCPU:
			e.setState(idx, CPUDone, nil)
		case StageMixed:
			e.setState(idx, MixedDone, nil)
		case StageGPU:
			e.setState(idx, GPUDone, nil)
		}
	}

	e.finalizeOutputs(ws)

	e.mu.Lock()
	if st := e.states[idx]; st != nil {
		st.ws = ws
	}
	e.mu.Unlock()
	return nil
}

// runStage runs every node classified into stage, in declaration order.
// Before each node's Run, its declared input edges are resolved by name
// against ws's named-edge table and its own output slots are freshly sized;
// after Run returns, each of its declared outputs is published into the
// table under its name so a later node (in this stage or a later one) that
// declares that name as an input sees it. A fresh scratchpad is constructed
// immediately before each operator's Run call and closed immediately after
// it returns, so scratch memory from one operator is never visible to, or
// held open across, the next.
func (e *Executor) runStage(stage Stage, ws *Workspace) error {
	for _, n := range e.nodes {
		if n.Stage != stage {
			continue
		}

		inputs := make([]*tensor.List, len(n.Spec.Inputs))
		for i, in := range n.Spec.Inputs {
			tl, ok := ws.edge(in.Name)
			if !ok {
				return newErr(GraphInvalid, n.Name, ws.Iteration, "input edge %q has not been produced yet", in.Name)
			}
			inputs[i] = tl
		}
		ws.Inputs = inputs
		ws.Outputs = make([]*tensor.List, len(n.Spec.Outputs))
		ws.outputWritten = make([]bool, len(n.Spec.Outputs))

		if err := n.EnsureSetup(ws); err != nil {
			return err
		}

		sp := scratch.New(scratch.WithDeviceOrder(ws.Order))
		ws.Scratch = sp
		runErr := n.Op.Run(ws)
		sp.Close()
		ws.Scratch = nil

		if runErr != nil {
			return wrapErr(OperatorFailure, n.Name, ws.Iteration, runErr, "Run failed")
		}

		for i, out := range n.Spec.Outputs {
			if !ws.outputWritten[i] {
				return newErr(OperatorFailure, n.Name, ws.Iteration, "operator did not write declared output %q", out.Name)
			}
			ws.putEdge(out.Name, ws.Outputs[i])
		}
	}
	return nil
}

func (e *Executor) setState(idx int, status IterationStatus, err error) {
	e.mu.Lock()
	st := e.states[idx]
	if st == nil {
		e.mu.Unlock()
		return
	}
	st.status = status
	if err != nil {
		st.err = err
	}
	e.mu.Unlock()
	e.cond.Broadcast()
}

// Outputs retrieves the next completed iteration, blocking until it reaches
// GPUDone or Failed. Iterations are surfaced strictly in the order they were
// scheduled.
func (e *Executor) Outputs(into *Workspace) error {
	idx := e.nextOutput

	e.mu.Lock()
	for {
		st := e.states[idx]
		if st == nil {
			e.mu.Unlock()
			return newErr(NoData, "", idx, "no such iteration scheduled")
		}
		if st.status == GPUDone || st.status == Failed {
			break
		}
		select {
		case <-e.done:
			e.mu.Unlock()
			return newErr(Cancelled, "", idx, "executor closed")
		default:
		}
		e.cond.Wait()
	}

	st := e.states[idx]
	delete(e.states, idx)
	e.nextOutput++
	err := st.err
	ws := st.ws
	e.mu.Unlock()

	if st.status == Failed {
		return err
	}

	*into = *ws
	return nil
}

// Close stops the background/stage-worker goroutines (if any) and joins
// them.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		if e.cfg.Pipelined {
			close(e.cpuQueue)
		} else {
			close(e.runQueue)
		}
		e.cond.Broadcast()
	})
	e.wg.Wait()
}

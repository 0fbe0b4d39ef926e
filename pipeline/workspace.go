package pipeline

import (
	"github.com/openfluke/pipeflow/internal/workerpool"
	"github.com/openfluke/pipeflow/scratch"
	"github.com/openfluke/pipeflow/streamorder"
	"github.com/openfluke/pipeflow/tensor"
)

// Workspace is the per-iteration handle an operator's Setup/Run receive. The
// executor re-slices Inputs/Outputs immediately before each node's call:
// Inputs holds that node's declared input edges, resolved by name from
// whichever node (or the external input) most recently produced them;
// Outputs holds write-once slots for that node's own declared outputs. Once
// a node returns, the executor publishes each of its outputs into the
// workspace's internal named-edge table under its declared name, so the next
// node that declares that name as an input sees it. Scratch is not part of
// the iteration's lifetime: the executor swaps in a fresh scratchpad
// immediately before each operator call and closes it immediately after, so
// Scratch is only non-nil for the duration of that one call.
type Workspace struct {
	Iteration int
	Inputs    []*tensor.List
	Outputs   []*tensor.List

	outputWritten []bool
	edges         map[string]*tensor.List

	Scratch *scratch.Dynamic
	Pool    *workerpool.Pool
	Order   streamorder.Order
}

// NewWorkspace returns an empty workspace for one iteration. Inputs/Outputs
// are assigned per node by the executor; edges starts empty and is seeded by
// the external input(s) before the CPU stage runs.
func NewWorkspace(iteration int, pool *workerpool.Pool, order streamorder.Order) *Workspace {
	return &Workspace{
		Iteration: iteration,
		edges:     make(map[string]*tensor.List),
		Pool:      pool,
		Order:     order,
	}
}

// SetOutput writes output slot i of whichever node is currently running.
// Returns an error if the slot has already been written for this call.
func (ws *Workspace) SetOutput(i int, tl *tensor.List) error {
	if i < 0 || i >= len(ws.Outputs) {
		return newErr(InvalidArgument, "", ws.Iteration, "output index %d out of range [0,%d)", i, len(ws.Outputs))
	}
	if ws.outputWritten[i] {
		return newErr(InvalidArgument, "", ws.Iteration, "output %d already written this call", i)
	}
	ws.Outputs[i] = tl
	ws.outputWritten[i] = true
	return nil
}

// putEdge publishes tl as the current value of the named buffer, for the
// next node (or the pipeline's requested outputs) to read by name.
func (ws *Workspace) putEdge(name string, tl *tensor.List) {
	ws.edges[name] = tl
}

// edge looks up the current value of a named buffer.
func (ws *Workspace) edge(name string) (*tensor.List, bool) {
	tl, ok := ws.edges[name]
	return tl, ok
}

package pipeline

import "github.com/openfluke/pipeflow/tensor"

// Shape is a produced-output shape hint returned by Setup, when an operator
// can infer it ahead of Run.
type Shape = []int

// Operator is the external-collaborator contract every non-input node in
// the graph implements. Operators must be re-entrant across iterations
// (Setup/Run may be called again for iteration i+1 once iteration i has
// returned) but need not be thread-safe within a single iteration — the
// executor never calls Setup or Run on the same node from two goroutines at
// once. Operators consume scratch memory only via ws.Scratch.
type Operator interface {
	// Setup may be called more than once if shape inference is deferred; it
	// reports produced shapes (if known) and whether they could be inferred.
	Setup(ws *Workspace) (produced []Shape, ok bool, err error)
	Run(ws *Workspace) error
	Backend() tensor.Backend
	InLayout() []string
	InDType() []tensor.DType
	InNDim() []int
}

// OperatorFactory constructs operator instances from an OpSpec. Pipelines
// are handed a factory at construction; AddOperator looks the named
// operator up in it.
type OperatorFactory interface {
	New(spec OpSpec) (Operator, error)
}

// FactoryFunc adapts a plain function to an OperatorFactory.
type FactoryFunc func(spec OpSpec) (Operator, error)

func (f FactoryFunc) New(spec OpSpec) (Operator, error) { return f(spec) }

// Registry is a simple name -> constructor OperatorFactory, mirroring the
// explicit-registration style used elsewhere in this codebase's ancestry in
// place of reflection-based discovery.
type Registry struct {
	ctors map[string]func(OpSpec) (Operator, error)
}

// NewRegistry returns an empty operator registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]func(OpSpec) (Operator, error))}
}

// Register adds a named constructor to the registry.
func (r *Registry) Register(name string, ctor func(OpSpec) (Operator, error)) {
	r.ctors[name] = ctor
}

// New implements OperatorFactory.
func (r *Registry) New(spec OpSpec) (Operator, error) {
	ctor, ok := r.ctors[spec.OpName]
	if !ok {
		return nil, newErr(GraphInvalid, spec.OpName, -1, "no operator registered with this name")
	}
	return ctor(spec)
}

// OperatorNode wraps a constructed Operator with the graph-adjacency
// bookkeeping the executor needs: its stage, its input/output edge names,
// and whether Setup has already produced shapes.
type OperatorNode struct {
	Name     string
	Op       Operator
	Spec     OpSpec
	Stage    Stage
	setupRun bool
	shapes   []Shape
}

// NewOperatorNode wraps op for graph placement, classifying its stage from
// its declared backend and the backends of its declared inputs: an operator
// whose own backend is Device but which reads at least one Host input is
// Mixed; otherwise it is CPU (Host backend) or GPU (Device backend, all
// inputs already on device).
func NewOperatorNode(name string, op Operator, spec OpSpec) *OperatorNode {
	stage := StageCPU
	if op.Backend() == tensor.Device {
		stage = StageGPU
		for _, in := range spec.Inputs {
			if in.Device == tensor.Host {
				stage = StageMixed
				break
			}
		}
	}
	return &OperatorNode{Name: name, Op: op, Spec: spec, Stage: stage}
}

// EnsureSetup calls Setup at most once unless the operator defers shape
// inference (ok == false), in which case the executor retries on a
// subsequent iteration.
func (n *OperatorNode) EnsureSetup(ws *Workspace) error {
	if n.setupRun {
		return nil
	}
	shapes, ok, err := n.Op.Setup(ws)
	if err != nil {
		return wrapErr(OperatorFailure, n.Name, ws.Iteration, err, "Setup failed")
	}
	if ok {
		n.setupRun = true
		n.shapes = shapes
	}
	return nil
}

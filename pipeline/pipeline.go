// Package pipeline implements the three core subsystems that run a
// data-loading operator DAG: the input operator and its queue, the
// pipelined multi-stage executor, and the error taxonomy they report
// through. The stream-ordered scratchpad and completion-event pool live in
// the sibling scratch and gevent packages and are wired in here.
package pipeline

import "github.com/openfluke/pipeflow/tensor"

// Options configure a Pipeline at construction.
type Options struct {
	BatchSize     int
	NumThreads    int
	DeviceID      int // -1 for host-only pipelines
	Seed          int64
	Pipelined     bool
	PrefetchDepth int
	Async         bool
}

// Option mutates an Options value.
type Option func(*Options)

func WithBatchSize(n int) Option        { return func(o *Options) { o.BatchSize = n } }
func WithNumThreads(n int) Option       { return func(o *Options) { o.NumThreads = n } }
func WithDeviceID(id int) Option        { return func(o *Options) { o.DeviceID = id } }
func WithSeed(seed int64) Option        { return func(o *Options) { o.Seed = seed } }
func WithPipelined(b bool) Option       { return func(o *Options) { o.Pipelined = b } }
func WithPrefetchDepth(p int) Option    { return func(o *Options) { o.PrefetchDepth = p } }
func WithAsync(b bool) Option           { return func(o *Options) { o.Async = b } }

func defaultOptions() Options {
	return Options{BatchSize: 1, NumThreads: 1, DeviceID: -1, PrefetchDepth: 2}
}

// Pipeline is a constructed, optionally built, operator DAG together with
// the executor that runs it. Operators are owned by the Pipeline for its
// entire lifetime and destroyed on Close.
type Pipeline struct {
	opts    Options
	factory OperatorFactory

	specs  []namedSpec
	nodes  []*OperatorNode
	inputs []*InputOperator

	built    bool
	outputs  []string
	executor *Executor

	prefetchWarmedUp bool
}

type namedSpec struct {
	name string
	spec OpSpec
}

// New constructs an unbuilt Pipeline. factory resolves OpSpec.OpName to
// concrete Operator instances for every non-input node added via
// AddOperator.
func New(factory OperatorFactory, opts ...Option) (*Pipeline, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.BatchSize <= 0 {
		return nil, newErr(InvalidArgument, "", -1, "batch size must be positive")
	}
	return &Pipeline{opts: o, factory: factory}, nil
}

// AddExternalInput declares one of the pipeline's input operators. At least
// one must be added before Build; more than one may be added, each under a
// distinct Name, to feed more than one named external input into the DAG.
func (p *Pipeline) AddExternalInput(cfg InputOperatorConfig) error {
	if p.built {
		return newErr(GraphInvalid, "", -1, "cannot add an input after Build")
	}
	for _, in := range p.inputs {
		if in.name == cfg.Name {
			return newErr(GraphInvalid, cfg.Name, -1, "pipeline already has an external input named %q", cfg.Name)
		}
	}
	p.inputs = append(p.inputs, NewInputOperator(cfg))
	return nil
}

// inputByName returns the declared external input named name, or an error
// if none matches.
func (p *Pipeline) inputByName(name string) (*InputOperator, error) {
	for _, in := range p.inputs {
		if in.name == name {
			return in, nil
		}
	}
	return nil, newErr(InvalidArgument, name, -1, "no external input named %q", name)
}

// AddOperator names a new operator to construct via the pipeline's factory
// once Build is called.
func (p *Pipeline) AddOperator(name string, spec OpSpec) error {
	if p.built {
		return newErr(GraphInvalid, name, -1, "cannot add an operator after Build")
	}
	for _, s := range p.specs {
		if s.name == name {
			return newErr(GraphInvalid, name, -1, "duplicate operator name")
		}
	}
	p.specs = append(p.specs, namedSpec{name: name, spec: spec})
	return nil
}

// Build freezes the graph: constructs every operator via the factory,
// classifies it into a stage, and checks that every input edge and every
// requested output has a producer and that no buffer has two producers.
// Build does not check for cycles or for device-placement consistency, and
// does not reorder nodes: within a stage they run in the order they were
// added, and a node whose input is not yet produced when it runs fails that
// iteration with GraphInvalid.
func (p *Pipeline) Build(outputs ...string) error {
	if p.built {
		return newErr(GraphInvalid, "", -1, "pipeline already built")
	}
	if len(p.inputs) == 0 {
		return newErr(GraphInvalid, "", -1, "pipeline has no external input")
	}
	if len(outputs) == 0 {
		return newErr(InvalidArgument, "", -1, "Build requires at least one output name")
	}

	producers := map[string]string{}
	for _, in := range p.inputs {
		for _, out := range in.outputNames {
			if existing, dup := producers[out]; dup {
				return newErr(GraphInvalid, in.name, -1, "buffer %q already produced by %q", out, existing)
			}
			producers[out] = in.name
		}
	}

	nodes := make([]*OperatorNode, 0, len(p.specs))
	for _, ns := range p.specs {
		op, err := p.factory.New(ns.spec)
		if err != nil {
			return wrapErr(GraphInvalid, ns.name, -1, err, "failed to construct operator")
		}
		node := NewOperatorNode(ns.name, op, ns.spec)
		nodes = append(nodes, node)
		for _, out := range ns.spec.Outputs {
			if existing, dup := producers[out.Name]; dup {
				return newErr(GraphInvalid, ns.name, -1, "buffer %q already produced by %q", out.Name, existing)
			}
			producers[out.Name] = ns.name
		}
	}

	for _, ns := range p.specs {
		for _, in := range ns.spec.Inputs {
			if _, ok := producers[in.Name]; !ok {
				return newErr(GraphInvalid, ns.name, -1, "input %q has no producer", in.Name)
			}
		}
	}

	for _, name := range outputs {
		if _, ok := producers[name]; !ok {
			return newErr(GraphInvalid, "", -1, "requested output %q has no producer", name)
		}
	}

	p.nodes = nodes
	p.outputs = outputs
	p.built = true
	p.executor = NewExecutor(ExecutorConfig{
		Pipelined:     p.opts.Pipelined,
		Async:         p.opts.Async,
		PrefetchDepth: p.opts.PrefetchDepth,
		NumThreads:    p.opts.NumThreads,
		DeviceID:      p.opts.DeviceID,
	}, p.inputs, nodes, outputs)
	return nil
}

// Run enqueues one iteration's work. See Executor.Run for the prefetch
// warm-up contract when Pipelined is set.
func (p *Pipeline) Run() error {
	if !p.built {
		return newErr(GraphInvalid, "", -1, "pipeline not built")
	}
	return p.executor.Run()
}

// Prefetch issues the two Run() calls required to warm up a pipelined
// executor before the first Outputs() call, or a single Run() call when the
// pipeline is not pipelined. Later calls are no-ops.
func (p *Pipeline) Prefetch() error {
	if !p.built {
		return newErr(GraphInvalid, "", -1, "pipeline not built")
	}
	if p.prefetchWarmedUp {
		return nil
	}
	if err := p.executor.Run(); err != nil {
		return err
	}
	if p.opts.Pipelined {
		if err := p.executor.Run(); err != nil {
			return err
		}
	}
	p.prefetchWarmedUp = true
	return nil
}

// Outputs retrieves the next completed iteration into ws.
func (p *Pipeline) Outputs(ws *Workspace) error {
	if !p.built {
		return newErr(GraphInvalid, "", -1, "pipeline not built")
	}
	return p.executor.Outputs(ws)
}

// FeedInput feeds one batch into the external input named name.
func (p *Pipeline) FeedInput(name string, tl *tensor.List, opts ...FeedOption) error {
	in, err := p.inputByName(name)
	if err != nil {
		return err
	}
	return in.SetDataSource(tl, resolveFeedSettings(opts))
}

// GetFeedCount returns the number of queued, not-yet-consumed items on the
// external input named name.
func (p *Pipeline) GetFeedCount(name string) (int, error) {
	in, err := p.inputByName(name)
	if err != nil {
		return 0, err
	}
	return in.GetFeedCount(), nil
}

// BreakWaiting cancels any blocked consumer of every declared external
// input.
func (p *Pipeline) BreakWaiting() {
	for _, in := range p.inputs {
		in.BreakWaiting()
	}
}

// Close stops the executor and joins its goroutines. It does not touch the
// input operators. The pipeline must not be used after Close.
func (p *Pipeline) Close() {
	if p.executor != nil {
		p.executor.Close()
	}
}

// Desc describes one input or output edge for introspection.
type Desc struct {
	Name   string
	Device tensor.Backend
	NDim   int
	DType  tensor.DType
	Layout string
}

// InputCount returns the number of declared input schema entries across
// every external input added via AddExternalInput.
func (p *Pipeline) InputCount() int {
	n := 0
	for _, in := range p.inputs {
		n += len(in.layout)
	}
	return n
}

// OutputCount returns the number of requested outputs from Build.
func (p *Pipeline) OutputCount() int {
	return len(p.outputs)
}

// InputDesc returns the descriptor for declared input schema entry i, index
// i running across every external input in the order they were added.
func (p *Pipeline) InputDesc(i int) (Desc, error) {
	if i < 0 {
		return Desc{}, newErr(InvalidArgument, "", -1, "input index %d out of range", i)
	}
	for _, in := range p.inputs {
		if i < len(in.layout) {
			name := in.name
			if i < len(in.outputNames) {
				name = in.outputNames[i]
			}
			return Desc{
				Name:   name,
				Device: in.backend,
				NDim:   in.ndim[i],
				DType:  in.dtype[i],
				Layout: in.layout[i],
			}, nil
		}
		i -= len(in.layout)
	}
	return Desc{}, newErr(InvalidArgument, "", -1, "input index out of range")
}

// InputDescByName returns the descriptor for the declared input schema entry
// whose output name is name, for callers that address inputs by name rather
// than position.
func (p *Pipeline) InputDescByName(name string) (Desc, error) {
	base := 0
	for _, in := range p.inputs {
		for i, n := range in.outputNames {
			if n == name && i < len(in.layout) {
				return p.InputDesc(base + i)
			}
		}
		base += len(in.layout)
	}
	return Desc{}, newErr(InvalidArgument, "", -1, "no input named %q", name)
}

// OutputDesc returns the descriptor for output i. Only Name is filled in;
// Device, NDim, DType and Layout are left at their zero values.
func (p *Pipeline) OutputDesc(i int) (Desc, error) {
	if i < 0 || i >= len(p.outputs) {
		return Desc{}, newErr(InvalidArgument, "", -1, "output index %d out of range", i)
	}
	return Desc{Name: p.outputs[i]}, nil
}

// CheckpointHook is the caller-supplied collaborator that produces and
// consumes opaque checkpoint blobs. The core has no checkpoint format of its
// own; Pipeline.Checkpoint and Pipeline.Restore pass blobs through to it.
type CheckpointHook interface {
	Checkpoint() ([]byte, error)
	Restore([]byte) error
}

// Checkpoint delegates to hook, if one is set, otherwise returns an empty
// blob.
func (p *Pipeline) Checkpoint(hook CheckpointHook) ([]byte, error) {
	if hook == nil {
		return nil, nil
	}
	blob, err := hook.Checkpoint()
	if err != nil {
		return nil, wrapErr(CheckpointCorrupt, "", -1, err, "checkpoint collaborator failed")
	}
	return blob, nil
}

// Restore delegates to hook, if one is set.
func (p *Pipeline) Restore(hook CheckpointHook, blob []byte) error {
	if hook == nil {
		return nil
	}
	if err := hook.Restore(blob); err != nil {
		return wrapErr(CheckpointCorrupt, "", -1, err, "restore collaborator failed")
	}
	return nil
}

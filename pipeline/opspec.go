package pipeline

import "github.com/openfluke/pipeflow/tensor"

// Stage classifies an operator by the backend its work runs on. Stages are
// totally ordered CPU -> Mixed -> GPU.
type Stage int

const (
	StageCPU Stage = iota
	StageMixed
	StageGPU
)

func (s Stage) String() string {
	switch s {
	case StageCPU:
		return "cpu"
	case StageMixed:
		return "mixed"
	case StageGPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// ArgValue is the value type carried in an OpSpec's string-keyed argument
// dictionary.
type ArgValue struct {
	Int    int
	Float  float64
	String string
	Bool   bool
}

// EdgeDesc names one input or output edge of an operator, tagged with the
// storage device it lives on.
type EdgeDesc struct {
	Name   string
	Device tensor.Backend
}

// OpSpec names an operator to add to a Pipeline, its argument dictionary,
// and its declared inputs/outputs.
type OpSpec struct {
	OpName  string
	Args    map[string]ArgValue
	Inputs  []EdgeDesc
	Outputs []EdgeDesc
}

// Arg returns the value of a named argument, and whether it was present.
func (s OpSpec) Arg(name string) (ArgValue, bool) {
	v, ok := s.Args[name]
	return v, ok
}

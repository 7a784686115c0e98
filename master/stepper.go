package master

import (
	"context"
	"fmt"

	"fmucosim/coupling"
	"fmucosim/discipline"
)

// Stepper is a coupling.Block the master can actually advance: a slave
// discipline or a static block, uniformly, across one macro step.
type Stepper interface {
	coupling.Block
	Step(ctx context.Context, currentTime, stepSize float64, inputs map[string]float64) (map[string]float64, error)
}

// DisciplineBlock adapts a discipline.Discipline to Stepper. One macro
// step is one Execute call. Outside do_step mode that call is overridden to
// span stepSize from the discipline's own current time, whatever its
// configured time step (the discipline still sub-steps internally at its own
// granularity; the master only observes the row at macro-step arrival). In
// do_step mode no override is made: the call advances by the discipline's
// own configured time step.
// DisciplineBlock's inputs/outputs are the names exposed to the coupling
// graph, which must be unique system-wide; alias maps any of them that
// differ from the underlying FMU variable name back to it. This is what
// lets two instances of the same model (e.g. two mass_spring slaves) coexist
// in one system: each gets its own alias prefix even though both
// descriptors declare the same underlying variable names.
type DisciplineBlock struct {
	name    string
	disc    *discipline.Discipline
	inputs  []string
	outputs []string
	alias   map[string]string // graph name -> underlying FMU variable name
}

// NewDisciplineBlock names disc and declares which of its variables
// participate in the coupling graph. alias may be nil when the graph
// names already match the descriptor's variable names.
func NewDisciplineBlock(name string, disc *discipline.Discipline, inputs, outputs []string, alias map[string]string) *DisciplineBlock {
	return &DisciplineBlock{name: name, disc: disc, inputs: inputs, outputs: outputs, alias: alias}
}

func (b *DisciplineBlock) underlying(graphName string) string {
	if real, ok := b.alias[graphName]; ok {
		return real
	}
	return graphName
}

func (b *DisciplineBlock) Name() string      { return b.name }
func (b *DisciplineBlock) Inputs() []string  { return b.inputs }
func (b *DisciplineBlock) Outputs() []string { return b.outputs }

// Discipline exposes the underlying discipline, for the master's
// terminate-on-fatal and snapshot paths.
func (b *DisciplineBlock) Discipline() *discipline.Discipline { return b.disc }

// Terminate shuts down the underlying slave handle, satisfying the
// master's Terminator interface for the fatal-failure teardown path.
func (b *DisciplineBlock) Terminate() error { return b.disc.Handle().Terminate() }

// MarshalState delegates to the underlying handle's snapshot.Snapshotable
// implementation, if it has one, satisfying the master's snapshotable
// interface for the checkpoint path.
func (b *DisciplineBlock) MarshalState() ([]byte, error) {
	s, ok := b.disc.Handle().(interface{ MarshalState() ([]byte, error) })
	if !ok {
		return nil, fmt.Errorf("master: block %q's handle does not support state snapshotting", b.name)
	}
	return s.MarshalState()
}

// UnmarshalState delegates to the underlying handle's snapshot.Snapshotable
// implementation, if it has one.
func (b *DisciplineBlock) UnmarshalState(blob []byte) error {
	s, ok := b.disc.Handle().(interface{ UnmarshalState([]byte) error })
	if !ok {
		return fmt.Errorf("master: block %q's handle does not support state restoration", b.name)
	}
	return s.UnmarshalState(blob)
}

// SetCurrentTime tells the underlying discipline it has already advanced to
// t externally (by a master-level snapshot restore), so its own next Step
// does not mistake t for a fresh start and reset the handle it was just
// restored into.
func (b *DisciplineBlock) SetCurrentTime(t float64) {
	b.disc.SetCurrent(t)
}

func (b *DisciplineBlock) Step(_ context.Context, _, stepSize float64, inputs map[string]float64) (map[string]float64, error) {
	sources := make(map[string]discipline.ValueSource, len(inputs))
	for name, v := range inputs {
		v := v
		sources[b.underlying(name)] = discipline.ValueSource{Constant: &v}
	}

	if !b.disc.IsDoStepMode() {
		span := stepSize
		b.disc.SetNextExecution(nil, &span, nil)
	}
	result, err := b.disc.Execute(sources)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(b.outputs))
	for _, graphName := range b.outputs {
		values := result.Outputs[b.underlying(graphName)]
		if len(values) == 0 {
			continue
		}
		out[graphName] = values[len(values)-1]
	}
	return out, nil
}

// StaticBlockStepper adapts a coupling.StaticBlock to Stepper: evaluation
// ignores currentTime/stepSize entirely, matching spec.md §3's "a static
// block is a pure function invoked identically but with no internal
// state."
type StaticBlockStepper struct {
	*coupling.StaticBlock
}

func (s StaticBlockStepper) Step(_ context.Context, _, _ float64, inputs map[string]float64) (map[string]float64, error) {
	return s.Apply(inputs), nil
}

// Package virtualfmu provides small, closed-form slave.Handle
// implementations that stand in for real FMU archives, grounded on
// gemseo-fmu's own reference disciplines (sellar, mass-spring). They exist
// so the co-simulation core is exercised end-to-end by this repository's
// own tests without a real FMU binary and loader, which are out of scope.
package virtualfmu

import (
	"fmt"
	"log"

	"fmucosim/fmi"
	"fmucosim/slave"
)

// base carries the lifecycle bookkeeping common to every virtual model:
// state transitions and the value-reference table. Concrete models embed it
// and supply DoStep.
type base struct {
	descriptor *fmi.Descriptor
	state      slave.State
	kind       fmi.Kind
	time       float64
	values     map[uint32]float64
	starts     map[uint32]float64
}

func newBase(d *fmi.Descriptor) base {
	starts := make(map[uint32]float64, len(d.Variables))
	values := make(map[uint32]float64, len(d.Variables))
	for _, v := range d.Variables {
		if v.Start != nil {
			starts[v.Reference] = *v.Start
			values[v.Reference] = *v.Start
		}
	}
	return base{descriptor: d, state: slave.Uninstantiated, values: values, starts: starts}
}

func (b *base) Descriptor() *fmi.Descriptor { return b.descriptor }

func (b *base) State() slave.State { return b.state }

func (b *base) invalid(op string) error {
	return fmt.Errorf("%w: %s from state %s", slave.ErrInvalidTransition, op, b.state)
}

func (b *base) Instantiate(requested fmi.Kind) error {
	if b.state != slave.Uninstantiated {
		return b.invalid("instantiate")
	}
	kind, err := slave.ResolveKind(requested, b.descriptor.Kinds)
	if err != nil {
		return err
	}
	if kind != requested {
		log.Printf("virtualfmu: %s does not offer %s; running as %s", b.descriptor.ModelName, requested, kind)
	}
	b.kind = kind
	b.state = slave.Instantiated
	return nil
}

func (b *base) Setup(startTime float64, _ *float64) error {
	if b.state != slave.Instantiated {
		return b.invalid("setup")
	}
	b.time = startTime
	return nil
}

func (b *base) EnterInitializationMode() error {
	if b.state != slave.Instantiated {
		return b.invalid("enter_init")
	}
	return nil
}

func (b *base) ExitInitializationMode() error {
	if b.state != slave.Instantiated {
		return b.invalid("exit_init")
	}
	b.state = slave.Initialized
	return nil
}

func (b *base) SetReal(refs []uint32, values []float64) error {
	if b.state == slave.Terminated || b.state == slave.Failed {
		return b.invalid("set_real")
	}
	if len(refs) != len(values) {
		return fmt.Errorf("virtualfmu: set_real refs/values length mismatch: %d != %d", len(refs), len(values))
	}
	for i, ref := range refs {
		b.values[ref] = values[i]
	}
	return nil
}

func (b *base) GetReal(refs []uint32) ([]float64, error) {
	if b.state == slave.Terminated || b.state == slave.Failed {
		return nil, b.invalid("get_real")
	}
	out := make([]float64, len(refs))
	for i, ref := range refs {
		out[i] = b.values[ref]
	}
	return out, nil
}

// beginStep validates the lifecycle precondition for do_step and marks the
// handle Stepping; the caller still must supply the actual outcome.
func (b *base) beginStep() error {
	if b.state != slave.Initialized && b.state != slave.Stepping {
		return b.invalid("do_step")
	}
	return nil
}

func (b *base) Reset() error {
	if b.state == slave.Terminated || b.state == slave.Failed {
		return b.invalid("reset")
	}
	for ref, v := range b.starts {
		b.values[ref] = v
	}
	for ref := range b.values {
		if _, ok := b.starts[ref]; !ok {
			b.values[ref] = 0
		}
	}
	b.time = 0
	b.state = slave.Instantiated
	return nil
}

func (b *base) Terminate() error {
	b.state = slave.Terminated
	return nil
}

func (b *base) Free() error {
	return nil
}

// baseState and restoreBaseState capture and reapply the base bookkeeping
// (time and value table); each concrete model's MarshalState/UnmarshalState
// (snapshot.Snapshotable) wraps them.
func (b *base) baseState() (time float64, values map[uint32]float64) {
	clone := make(map[uint32]float64, len(b.values))
	for k, v := range b.values {
		clone[k] = v
	}
	return b.time, clone
}

func (b *base) restoreBaseState(time float64, values map[uint32]float64) {
	b.time = time
	for k, v := range values {
		b.values[k] = v
	}
}

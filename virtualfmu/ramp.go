package virtualfmu

import (
	jsoniter "github.com/json-iterator/go"

	"fmucosim/fmi"
	"fmucosim/slave"
)

// Variable names used by Ramp, exported so callers can wire them without
// magic strings.
const (
	RampInputH  = "h"
	RampOutputY = "y"
)

const (
	rampRefH uint32 = iota
	rampRefY
)

// Ramp is the one-parameter, one-output virtual model from the ramp
// scenario: y = h * t, a co-simulation-only slave with no internal
// sub-stepping of its own (it has no ODE state, so one do_step is one
// closed-form evaluation).
type Ramp struct {
	base
}

// NewRamp returns a Handle computing y = h*t over a co-simulation-only
// descriptor.
func NewRamp() slave.Handle {
	d := &fmi.Descriptor{
		ModelName: "ramp",
		Version:   fmi.FMI2,
		Kinds:     fmi.CoSimulation,
		Variables: []fmi.Variable{
			{Name: RampInputH, Reference: rampRefH, Causality: fmi.Parameter, Start: floatPtr(0)},
			{Name: RampOutputY, Reference: rampRefY, Causality: fmi.Output},
		},
	}
	return &Ramp{base: newBase(d)}
}

func (r *Ramp) DoStep(currentTime, stepSize float64) (slave.StepOutcome, error) {
	if err := r.beginStep(); err != nil {
		return slave.StepFatal, err
	}
	r.time = currentTime + stepSize
	r.values[rampRefY] = r.values[rampRefH] * r.time
	r.state = slave.Stepping
	return slave.StepOK, nil
}

type rampState struct {
	Time   float64            `json:"time"`
	Values map[uint32]float64 `json:"values"`
}

func (r *Ramp) MarshalState() ([]byte, error) {
	t, values := r.baseState()
	return jsoniter.Marshal(rampState{Time: t, Values: values})
}

func (r *Ramp) UnmarshalState(blob []byte) error {
	var s rampState
	if err := jsoniter.Unmarshal(blob, &s); err != nil {
		return err
	}
	r.restoreBaseState(s.Time, s.Values)
	return nil
}

func floatPtr(v float64) *float64 { return &v }

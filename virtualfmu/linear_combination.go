package virtualfmu

import (
	jsoniter "github.com/json-iterator/go"

	"fmucosim/fmi"
	"fmucosim/slave"
)

// Variable names for LinearCombination.
const (
	LinearComboInputU1     = "u1"
	LinearComboInputU2     = "u2"
	LinearComboParameterK1 = "k1"
	LinearComboParameterK2 = "k2"
	LinearComboOutputY     = "y"
)

const (
	comboRefU1 uint32 = iota
	comboRefU2
	comboRefK1
	comboRefK2
	comboRefY
)

// LinearCombination computes y(t+dt) = k1*u1 + k2*u2 at each do_step,
// grounded on the time-series-parameter scenario: it has no internal ODE
// state, so do_step is one closed-form evaluation of whatever inputs are
// currently set.
type LinearCombination struct {
	base
}

// NewLinearCombination returns a Handle over the descriptor above, with
// k1 = k2 = 1 by default.
func NewLinearCombination() slave.Handle {
	d := &fmi.Descriptor{
		ModelName: "linear_combination",
		Version:   fmi.FMI2,
		Kinds:     fmi.CoSimulation,
		Variables: []fmi.Variable{
			{Name: LinearComboInputU1, Reference: comboRefU1, Causality: fmi.Input, Start: floatPtr(0)},
			{Name: LinearComboInputU2, Reference: comboRefU2, Causality: fmi.Input, Start: floatPtr(0)},
			{Name: LinearComboParameterK1, Reference: comboRefK1, Causality: fmi.Parameter, Start: floatPtr(1)},
			{Name: LinearComboParameterK2, Reference: comboRefK2, Causality: fmi.Parameter, Start: floatPtr(1)},
			{Name: LinearComboOutputY, Reference: comboRefY, Causality: fmi.Output},
		},
	}
	return &LinearCombination{base: newBase(d)}
}

func (l *LinearCombination) DoStep(currentTime, stepSize float64) (slave.StepOutcome, error) {
	if err := l.beginStep(); err != nil {
		return slave.StepFatal, err
	}
	l.time = currentTime + stepSize
	l.values[comboRefY] = l.values[comboRefK1]*l.values[comboRefU1] + l.values[comboRefK2]*l.values[comboRefU2]
	l.state = slave.Stepping
	return slave.StepOK, nil
}

type linearComboState struct {
	Time   float64            `json:"time"`
	Values map[uint32]float64 `json:"values"`
}

func (l *LinearCombination) MarshalState() ([]byte, error) {
	t, values := l.baseState()
	return jsoniter.Marshal(linearComboState{Time: t, Values: values})
}

func (l *LinearCombination) UnmarshalState(blob []byte) error {
	var s linearComboState
	if err := jsoniter.Unmarshal(blob, &s); err != nil {
		return err
	}
	l.restoreBaseState(s.Time, s.Values)
	return nil
}

package virtualfmu

import (
	jsoniter "github.com/json-iterator/go"

	"fmucosim/fmi"
	"fmucosim/integrator"
	"fmucosim/slave"
)

// Variable names for MassSpring. forceIn is the coupling seam: connecting
// two instances' position outputs through a static spring-force block into
// each other's forceIn reproduces the two-mass coupling scenario (§8 S2)
// without this package needing to know about coupling at all.
const (
	MassSpringParamMass      = "mass"
	MassSpringParamStiffness = "stiffness"
	MassSpringParamDamping   = "damping"
	MassSpringInputForce     = "force_in"
	MassSpringOutputPosition = "x"
	MassSpringOutputVelocity = "v"
)

const (
	msRefMass uint32 = iota
	msRefStiffness
	msRefDamping
	msRefForceIn
	msRefX
	msRefV
)

// MassSpring is a single damped harmonic oscillator, a model-exchange slave
// grounded on gemseo-fmu's mass_spring_system example: dx/dt = v,
// m*dv/dt = force_in - stiffness*x - damping*v. It embeds a pluggable
// integrator.Solver (default "bdf1") since model-exchange slaves provide
// their own caller-supplied ODE integrator (§4.C).
type MassSpring struct {
	base
	solver integrator.Solver
}

// NewMassSpring returns a model-exchange Handle with initial position x0,
// velocity v0, and solver selected by name (see integrator.Lookup); an empty
// name selects "bdf1".
func NewMassSpring(mass, stiffness, damping, x0, v0 float64, solverName string) (slave.Handle, error) {
	if solverName == "" {
		solverName = "bdf1"
	}
	solver, err := integrator.Lookup(solverName)
	if err != nil {
		return nil, err
	}

	d := &fmi.Descriptor{
		ModelName: "mass_spring",
		Version:   fmi.FMI2,
		Kinds:     fmi.ModelExchange,
		Variables: []fmi.Variable{
			{Name: MassSpringParamMass, Reference: msRefMass, Causality: fmi.Parameter, Start: floatPtr(mass)},
			{Name: MassSpringParamStiffness, Reference: msRefStiffness, Causality: fmi.Parameter, Start: floatPtr(stiffness)},
			{Name: MassSpringParamDamping, Reference: msRefDamping, Causality: fmi.Parameter, Start: floatPtr(damping)},
			{Name: MassSpringInputForce, Reference: msRefForceIn, Causality: fmi.Input, Start: floatPtr(0)},
			{Name: MassSpringOutputPosition, Reference: msRefX, Causality: fmi.Output, Start: floatPtr(x0)},
			{Name: MassSpringOutputVelocity, Reference: msRefV, Causality: fmi.Output, Start: floatPtr(v0)},
		},
	}

	return &MassSpring{base: newBase(d), solver: solver}, nil
}

func (m *MassSpring) deriv(_ float64, y []float64) []float64 {
	x, v := y[0], y[1]
	mass := m.values[msRefMass]
	stiffness := m.values[msRefStiffness]
	damping := m.values[msRefDamping]
	force := m.values[msRefForceIn]
	return []float64{v, (force - stiffness*x - damping*v) / mass}
}

func (m *MassSpring) DoStep(currentTime, stepSize float64) (slave.StepOutcome, error) {
	if err := m.beginStep(); err != nil {
		return slave.StepFatal, err
	}

	y0 := []float64{m.values[msRefX], m.values[msRefV]}
	y1, err := m.solver.Step(m.deriv, y0, currentTime, stepSize)
	if err != nil {
		return slave.StepDiscard, err
	}

	m.time = currentTime + stepSize
	m.values[msRefX] = y1[0]
	m.values[msRefV] = y1[1]
	m.state = slave.Stepping
	return slave.StepOK, nil
}

type massSpringState struct {
	Time   float64            `json:"time"`
	Values map[uint32]float64 `json:"values"`
}

func (m *MassSpring) MarshalState() ([]byte, error) {
	t, values := m.baseState()
	return jsoniter.Marshal(massSpringState{Time: t, Values: values})
}

func (m *MassSpring) UnmarshalState(blob []byte) error {
	var s massSpringState
	if err := jsoniter.Unmarshal(blob, &s); err != nil {
		return err
	}
	m.restoreBaseState(s.Time, s.Values)
	return nil
}

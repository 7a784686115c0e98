// Package discipline drives a single slave.Handle through a full macro-step
// invocation: resetting/restarting it, registering time-varying inputs,
// advancing it across one or more integration points, and sampling its
// outputs into a trajectory. Grounded field-for-field on gemseo-fmu's
// BaseFMUDiscipline (_run / __run_one_step / __run_to_final_time /
// __set_model_inputs / __do_when_step_finished).
package discipline

import (
	"errors"
	"fmt"
	"log"

	"fmucosim/fmi"
	"fmucosim/slave"
	"fmucosim/timeseries"
)

// ValueSource is one input's value definition for an Execute call: exactly
// one of Constant, Series, or Callable should be set. Series interpolation
// semantics (hold vs linear) are decided by the target variable's declared
// causality, not by which field is populated.
type ValueSource struct {
	Constant *float64
	Series   *timeseries.Series
	Callable func(t float64) float64
}

func (v ValueSource) isTimeVarying() bool {
	return v.Series != nil || v.Callable != nil
}

func (v ValueSource) evaluate(t float64, semantics timeseries.Semantics) (float64, error) {
	switch {
	case v.Series != nil:
		return v.Series.At(t, semantics)
	case v.Callable != nil:
		return v.Callable(t), nil
	case v.Constant != nil:
		return *v.Constant, nil
	default:
		return 0, errors.New("discipline: empty value source")
	}
}

// Result is one Execute call's output: a shared time column (present once,
// regardless of how many outputs were sampled) and one value sequence per
// output variable.
type Result struct {
	Time    []float64
	Outputs map[string][]float64
}

// Config holds the per-discipline options enumerated in §4.D. Zero values
// trigger the documented defaulting: InitialTime/FinalTime/TimeStep fall
// back to the descriptor's default experiment, then InitialTime and
// TimeStep to 0 and FinalTime to the resolved initial time.
type Config struct {
	InitialTime     *float64
	FinalTime       *float64
	TimeStep        float64
	Restart         bool
	DoStep          bool
	UseCoSimulation bool
	AddTimeToOutput bool
	InputNames      []string // empty = all inputs and parameters; []{"none"} = no inputs
	OutputNames     []string // empty = all outputs
}

// ErrExperimentOutsideBounds is returned at construction when the requested
// initial time precedes the descriptor's minimum start time.
var ErrExperimentOutsideBounds = errors.New("discipline: experiment outside descriptor bounds")

// ErrAlreadyAtFinalTime is returned by Execute when current time has
// already reached final time and restart was not requested.
var ErrAlreadyAtFinalTime = errors.New("discipline: already at final time")

// StepRejectedError is returned when the slave discards a proposed step
// (choice (a) of the open question in §9: surfaced unchanged, never
// auto-subdivided).
type StepRejectedError struct {
	AttemptedStepSize float64
}

func (e *StepRejectedError) Error() string {
	return fmt.Sprintf("discipline: step of size %g was rejected by the slave", e.AttemptedStepSize)
}

// SlaveFatalError wraps an irrecoverable error returned by the slave handle.
type SlaveFatalError struct {
	Err error
}

func (e *SlaveFatalError) Error() string { return fmt.Sprintf("discipline: slave fatal: %v", e.Err) }
func (e *SlaveFatalError) Unwrap() error { return e.Err }

// Discipline is a single-slave time-stepper sitting atop a slave.Handle.
type Discipline struct {
	handle slave.Handle
	config Config

	initialTime float64
	finalTime   float64
	timeStep    float64

	current     float64
	completions int

	pending *override
}

type override struct {
	restart        *bool
	simulationTime *float64
	timeStep       *float64
}

// New instantiates a handle from factory, applies cfg's defaulting rules
// against its descriptor, brackets initialization, and returns a ready
// Discipline sitting at current time = initial time.
func New(factory slave.Factory, cfg Config) (*Discipline, error) {
	handle, err := factory()
	if err != nil {
		return nil, fmt.Errorf("discipline: factory: %w", err)
	}

	d := &Discipline{handle: handle, config: cfg}
	if err := d.resolveTimeBounds(); err != nil {
		return nil, err
	}

	kind := fmi.ModelExchange
	if cfg.UseCoSimulation {
		kind = fmi.CoSimulation
	}
	if err := handle.Instantiate(kind); err != nil {
		return nil, err
	}
	if err := d.bracketInit(d.initialTime); err != nil {
		return nil, err
	}

	d.current = d.initialTime
	return d, nil
}

func (d *Discipline) resolveTimeBounds() error {
	descriptor := d.handle.Descriptor()
	var experiment *fmi.DefaultExperiment
	if descriptor != nil {
		experiment = descriptor.DefaultExperiment
	}

	switch {
	case d.config.InitialTime != nil:
		d.initialTime = *d.config.InitialTime
	case experiment != nil && experiment.StartTime != nil:
		d.initialTime = *experiment.StartTime
	default:
		d.initialTime = 0
	}

	if experiment != nil && experiment.StartTime != nil && d.initialTime < *experiment.StartTime {
		return fmt.Errorf("%w: requested start %g precedes descriptor minimum %g",
			ErrExperimentOutsideBounds, d.initialTime, *experiment.StartTime)
	}

	switch {
	case d.config.FinalTime != nil:
		d.finalTime = *d.config.FinalTime
	case experiment != nil && experiment.StopTime != nil:
		d.finalTime = *experiment.StopTime
	default:
		d.finalTime = d.initialTime
	}

	switch {
	case d.config.TimeStep > 0:
		d.timeStep = d.config.TimeStep
	case experiment != nil && experiment.StepSize != nil && *experiment.StepSize > 0:
		d.timeStep = *experiment.StepSize
	default:
		log.Printf("discipline: %s has no time step hint; the slave will integrate internally over the full span", descriptorName(descriptor))
		d.timeStep = 0
	}

	return nil
}

func descriptorName(d *fmi.Descriptor) string {
	if d == nil {
		return "slave"
	}
	return d.ModelName
}

func (d *Discipline) bracketInit(startTime float64) error {
	if err := d.handle.Setup(startTime, nil); err != nil {
		return err
	}
	if err := d.handle.EnterInitializationMode(); err != nil {
		return err
	}
	return d.handle.ExitInitializationMode()
}

// SetNextExecution overrides restart/simulationTime/timeStep for the single
// next Execute call only; any field left nil keeps the Config default.
func (d *Discipline) SetNextExecution(restart *bool, simulationTime *float64, timeStep *float64) {
	d.pending = &override{restart: restart, simulationTime: simulationTime, timeStep: timeStep}
}

// Execute runs one macro-step invocation with the given inputs, per §4.D.
func (d *Discipline) Execute(inputs map[string]ValueSource) (*Result, error) {
	restart := d.config.Restart
	var simulationTime *float64
	timeStep := d.timeStep
	if d.pending != nil {
		if d.pending.restart != nil {
			restart = *d.pending.restart
		}
		simulationTime = d.pending.simulationTime
		if d.pending.timeStep != nil {
			timeStep = *d.pending.timeStep
		}
		d.pending = nil
	}

	// Step 1: restart-or-at-initial resets the handle and re-brackets init.
	if restart || d.current == d.initialTime {
		if err := d.handle.Reset(); err != nil {
			return nil, err
		}
		if err := d.bracketInit(d.initialTime); err != nil {
			return nil, err
		}
		d.current = d.initialTime
	}

	// Step 2: refuse when parked at final time above initial time.
	if d.current == d.finalTime && d.finalTime > d.initialTime {
		return nil, ErrAlreadyAtFinalTime
	}

	// Step 3: register time-varying inputs, set constants once.
	if err := d.setConstantInputs(inputs); err != nil {
		return nil, err
	}

	var result *Result
	var err error
	if d.config.DoStep {
		result, err = d.runOneStep(inputs, timeStep)
	} else {
		target := d.finalTime
		if simulationTime != nil {
			target = d.current + *simulationTime
			if target > d.finalTime {
				log.Printf("discipline: requested stop time %g exceeds final time %g, clamping", target, d.finalTime)
				target = d.finalTime
			}
		}
		result, err = d.runToTarget(inputs, target, timeStep)
	}
	if err != nil {
		return nil, err
	}

	d.completions++
	return result, nil
}

func (d *Discipline) setConstantInputs(inputs map[string]ValueSource) error {
	descriptor := d.handle.Descriptor()
	for name, src := range inputs {
		if src.isTimeVarying() {
			continue
		}
		v, ok := descriptor.VariableByName(name)
		if !ok {
			return fmt.Errorf("discipline: unknown input variable %q", name)
		}
		value, err := src.evaluate(d.current, semanticsFor(v.Causality))
		if err != nil {
			return err
		}
		if err := d.handle.SetReal([]uint32{v.Reference}, []float64{value}); err != nil {
			return err
		}
	}
	return nil
}

func semanticsFor(c fmi.Causality) timeseries.Semantics {
	if c == fmi.Parameter {
		return timeseries.Hold
	}
	return timeseries.Linear
}

// applyTimeVaryingInputs re-evaluates every registered time-series/callable
// input at t and writes it to the handle. This is the step-finished
// contract of §4.D step 4 / §9's "coroutine/callback style": a data
// contract, not a literal callback.
func (d *Discipline) applyTimeVaryingInputs(inputs map[string]ValueSource, t float64) error {
	descriptor := d.handle.Descriptor()
	for name, src := range inputs {
		if !src.isTimeVarying() {
			continue
		}
		v, ok := descriptor.VariableByName(name)
		if !ok {
			return fmt.Errorf("discipline: unknown input variable %q", name)
		}
		value, err := src.evaluate(t, semanticsFor(v.Causality))
		if err != nil {
			return err
		}
		if err := d.handle.SetReal([]uint32{v.Reference}, []float64{value}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Discipline) outputNames() []string {
	if len(d.config.OutputNames) > 0 {
		return d.config.OutputNames
	}
	var names []string
	for _, v := range d.handle.Descriptor().VariablesByCausality(fmi.Output) {
		names = append(names, v.Name)
	}
	return names
}

func (d *Discipline) sampleOutputs() (map[string]float64, error) {
	names := d.outputNames()
	refs := make([]uint32, len(names))
	for i, name := range names {
		v, ok := d.handle.Descriptor().VariableByName(name)
		if !ok {
			return nil, fmt.Errorf("discipline: unknown output variable %q", name)
		}
		refs[i] = v.Reference
	}
	values, err := d.handle.GetReal(refs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(names))
	for i, name := range names {
		out[name] = values[i]
	}
	return out, nil
}

func newResult(names []string) *Result {
	outputs := make(map[string][]float64, len(names))
	for _, n := range names {
		outputs[n] = nil
	}
	return &Result{Outputs: outputs}
}

func (d *Discipline) appendSample(r *Result, t float64, sample map[string]float64) {
	r.Time = append(r.Time, t)
	for name, v := range sample {
		r.Outputs[name] = append(r.Outputs[name], v)
	}
}

// runOneStep implements the do_step = true path: one advance by timeStep,
// inputs evaluated at the arrival time, a single output row emitted.
func (d *Discipline) runOneStep(inputs map[string]ValueSource, timeStep float64) (*Result, error) {
	arrival := d.current + timeStep
	if arrival > d.finalTime {
		arrival = d.finalTime
	}

	if err := d.applyTimeVaryingInputs(inputs, arrival); err != nil {
		return nil, err
	}

	outcome, err := d.handle.DoStep(d.current, arrival-d.current)
	if err := d.handleStepOutcome(outcome, err, arrival-d.current); err != nil {
		return nil, err
	}

	d.current = arrival
	sample, err := d.sampleOutputs()
	if err != nil {
		return nil, err
	}

	result := newResult(d.outputNames())
	d.appendSample(result, d.current, sample)
	return result, nil
}

// runToTarget implements the do_step = false path: repeated integration
// points from current time to target, re-evaluating time-varying inputs at
// every point and sampling outputs at every point.
func (d *Discipline) runToTarget(inputs map[string]ValueSource, target float64, timeStep float64) (*Result, error) {
	result := newResult(d.outputNames())

	sample, err := d.sampleOutputs()
	if err != nil {
		return nil, err
	}
	d.appendSample(result, d.current, sample)

	step := timeStep
	if step <= 0 {
		step = target - d.current
	}

	for d.current < target {
		h := step
		if d.current+h > target {
			h = target - d.current
		}
		if h <= 0 {
			break
		}

		arrival := d.current + h
		// A floating-point remainder far smaller than one step is folded into
		// this step, so accumulated rounding never adds a sliver step.
		if remainder := target - arrival; remainder > 0 && remainder <= 1e-9*step {
			h = target - d.current
			arrival = target
		}
		if err := d.applyTimeVaryingInputs(inputs, arrival); err != nil {
			return nil, err
		}

		outcome, err := d.handle.DoStep(d.current, h)
		if err := d.handleStepOutcome(outcome, err, h); err != nil {
			return nil, err
		}

		d.current = arrival
		sample, err := d.sampleOutputs()
		if err != nil {
			return nil, err
		}
		d.appendSample(result, d.current, sample)
	}

	return result, nil
}

func (d *Discipline) handleStepOutcome(outcome slave.StepOutcome, err error, attempted float64) error {
	switch outcome {
	case slave.StepOK:
		return nil
	case slave.StepDiscard:
		return &StepRejectedError{AttemptedStepSize: attempted}
	case slave.StepFatal:
		return &SlaveFatalError{Err: err}
	default:
		return err
	}
}

// Current returns the discipline's current simulated time.
func (d *Discipline) Current() float64 { return d.current }

// SetCurrent forces the discipline's bookkeeping of its own current time,
// without touching the underlying handle. It exists for a master-level
// snapshot restore: the handle's own state is restored separately via
// Handle()'s Snapshotable methods, and without this the discipline would
// still believe it sits at its initial time and reset the handle right back
// to scratch on its next Execute.
func (d *Discipline) SetCurrent(t float64) { d.current = t }

// Completions returns the number of successful Execute invocations.
func (d *Discipline) Completions() int { return d.completions }

// Handle returns the underlying slave handle, for master-level coordination
// (terminate, snapshot).
func (d *Discipline) Handle() slave.Handle { return d.handle }

// IsDoStepMode reports whether this discipline was configured with
// do_step = true, so a caller driving it at a coarser granularity (e.g.
// the master's macro-step loop) knows whether to override the next
// Execute's span via SetNextExecution or to let the discipline's own
// configured time step govern the single discrete advance.
func (d *Discipline) IsDoStepMode() bool { return d.config.DoStep }

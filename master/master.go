// Package master drives the macro-step loop coupling slave disciplines and
// static blocks together, grounded on original_source's
// TimeSteppingSystem.__simulate_to_final_time/__simulate_one_time_step
// (§4.G).
package master

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"fmucosim/coupling"
	"fmucosim/discipline"
	"fmucosim/monitor"
	"fmucosim/snapshot"
	"fmucosim/timemgr"
	"fmucosim/timeseries"
	"fmucosim/trajectory"
)

// ExternalInput is a value source for a block input that the coupling
// graph does not wire to any other block's output: a constant, a sampled
// time series, or a caller-supplied callable. Semantics selects hold vs.
// linear interpolation for Series; the zero value is Hold, matching
// timeseries.Semantics's own zero value.
type ExternalInput struct {
	Constant  *float64
	Series    *timeseries.Series
	Semantics timeseries.Semantics
	Callable  func(t float64) float64
}

func (e ExternalInput) evaluate(t float64) (float64, error) {
	switch {
	case e.Series != nil:
		return e.Series.At(t, e.Semantics)
	case e.Callable != nil:
		return e.Callable(t), nil
	case e.Constant != nil:
		return *e.Constant, nil
	default:
		return 0, fmt.Errorf("master: empty external input")
	}
}

// Config selects the master's coupling strategy and dispatch mode.
type Config struct {
	Strategy coupling.Strategy
	// Concurrent requests goroutine dispatch for independent blocks when
	// Strategy is Jacobi (§5). Gauss-Seidel is always sequential, since
	// each block's inputs may depend on another block stepped earlier in
	// the same macro step.
	Concurrent bool
	// Updates, if non-nil, receives one TrajectoryUpdate per completed
	// macro step, merging every block's outputs produced that step. The
	// send never blocks the run: a full or unread channel drops the
	// sample, matching monitor.Hub's own slow-subscriber behavior.
	Updates chan<- monitor.TrajectoryUpdate
}

// StepRejected reports that a block discarded a proposed macro step. It
// carries both sizes named in §4.G: the step the master intended, and the
// step size the block actually attempted before discarding (normally
// equal, but kept distinct since a discipline in do_step mode may attempt
// a different span than the macro step requested).
type StepRejected struct {
	Block             string
	IntendedStepSize  float64
	AttemptedStepSize float64
	Err               error
}

func (e *StepRejected) Error() string {
	return fmt.Sprintf("master: block %q rejected step (intended %g, attempted %g): %v",
		e.Block, e.IntendedStepSize, e.AttemptedStepSize, e.Err)
}
func (e *StepRejected) Unwrap() error { return e.Err }

// SlaveFatalError reports an irrecoverable error from a block, which aborts
// the whole run and terminates every block.
type SlaveFatalError struct {
	Block string
	Err   error
}

func (e *SlaveFatalError) Error() string { return fmt.Sprintf("master: block %q failed fatally: %v", e.Block, e.Err) }
func (e *SlaveFatalError) Unwrap() error { return e.Err }

// Terminator is implemented by blocks the master must shut down on fatal
// failure; static blocks have nothing to terminate and need not implement
// it.
type Terminator interface {
	Terminate() error
}

// snapshotable is implemented by blocks whose internal state can be
// persisted and restored across a run (DisciplineBlock delegates to its
// slave handle's snapshot.Snapshotable); static blocks carry no state of
// their own and need not implement it.
type snapshotable interface {
	MarshalState() ([]byte, error)
	UnmarshalState([]byte) error
}

// Master advances a set of blocks in macro steps from t0 to tFinal,
// resolving each block's wired inputs via the coupling graph and any
// externally-supplied inputs, and recording every output into a
// trajectory.Store.
type Master struct {
	blocks      map[string]Stepper
	order       []string // declaration order, for deterministic snapshot/restart iteration and reverse-order termination
	graph       *coupling.Graph
	config      Config
	timemgr     *timemgr.Manager
	trajectory  *trajectory.Store
	external    map[string]map[string]ExternalInput // block name -> input name -> source
	lastOutputs map[string]map[string]float64       // previous macro step's outputs, for Jacobi
}

// New builds a Master over blocks (in declaration order), wiring them into
// a coupling.Graph and preparing a timemgr.Manager spanning [t0, tFinal]
// with macro step dt.
func New(blocks []Stepper, config Config, t0, tFinal, dt float64, external map[string]map[string]ExternalInput) (*Master, error) {
	coupled := make([]coupling.Block, len(blocks))
	byName := make(map[string]Stepper, len(blocks))
	order := make([]string, len(blocks))
	for i, b := range blocks {
		coupled[i] = b
		byName[b.Name()] = b
		order[i] = b.Name()
	}

	graph, err := coupling.New(coupled)
	if err != nil {
		return nil, err
	}
	if _, err := graph.Order(config.Strategy); err != nil {
		return nil, err
	}

	tm, err := timemgr.New(t0, tFinal, dt)
	if err != nil {
		return nil, err
	}

	if external == nil {
		external = make(map[string]map[string]ExternalInput)
	}

	return &Master{
		blocks:      byName,
		order:       order,
		graph:       graph,
		config:      config,
		timemgr:     tm,
		trajectory:  trajectory.NewStore(),
		external:    external,
		lastOutputs: make(map[string]map[string]float64, len(blocks)),
	}, nil
}

// Trajectory returns the store every macro step's outputs are recorded
// into.
func (m *Master) Trajectory() *trajectory.Store { return m.trajectory }

// Current returns the simulated time the master has reached.
func (m *Master) Current() float64 { return m.timemgr.Current() }

// Restart resets the time manager to t0 and clears the trajectory, per
// §4.G's "at restart = true entry... the trajectory is cleared".
// Every block with a SetCurrentTime method (DisciplineBlock) is moved back
// to t0, so its discipline's own restart-at-initial-time semantics reset
// its handle on its next Execute/Step; a discipline whose initial time
// differs from t0 is not reset that way.
func (m *Master) Restart() {
	m.timemgr.Reset()
	m.trajectory.Reset()
	m.lastOutputs = make(map[string]map[string]float64, len(m.blocks))
	for _, name := range m.order {
		if setter, ok := m.blocks[name].(interface{ SetCurrentTime(float64) }); ok {
			setter.SetCurrentTime(m.timemgr.Initial())
		}
	}
}

// Snapshot captures the current time, trajectory, and every snapshotable
// block's internal state into a snapshot.State ready for snapshot.Save, per
// §4.K. Blocks that do not implement snapshotable (static blocks) are
// simply omitted from SlaveBlobs.
func (m *Master) Snapshot() (*snapshot.State, error) {
	blobs := make(map[string][]byte)
	for _, name := range m.order {
		block, ok := m.blocks[name].(snapshotable)
		if !ok {
			continue
		}
		blob, err := block.MarshalState()
		if err != nil {
			return nil, fmt.Errorf("master: snapshotting block %q: %w", name, err)
		}
		blobs[name] = blob
	}
	return snapshot.BuildState(m.Current(), blobs, m.trajectory), nil
}

// Restore replaces the master's current time, trajectory, and every
// snapshotable block's internal state from a previously captured
// snapshot.State, so a resumed run continues exactly where Snapshot left
// off (§8 property 7). A block named in state.SlaveBlobs that does not
// implement snapshotable is an error: the blob cannot be applied anywhere.
func (m *Master) Restore(state *snapshot.State) error {
	restoredTrajectory, err := snapshot.Restore(state)
	if err != nil {
		return err
	}
	if err := m.timemgr.SetCurrent(state.TCurrent); err != nil {
		return err
	}

	for name, blob := range state.SlaveBlobs {
		block, ok := m.blocks[name]
		if !ok {
			continue
		}
		restorable, ok := block.(snapshotable)
		if !ok {
			return fmt.Errorf("master: block %q has no state to restore", name)
		}
		if err := restorable.UnmarshalState(blob); err != nil {
			return fmt.Errorf("master: restoring block %q: %w", name, err)
		}
		// A DisciplineBlock's own discipline.Discipline tracks its current
		// time independently of the master's timemgr; without this it would
		// mistake the restored handle for a fresh one on its next Step and
		// reset it right back to its initial state.
		if setter, ok := block.(interface{ SetCurrentTime(float64) }); ok {
			setter.SetCurrentTime(state.TCurrent)
		}
	}

	m.trajectory = restoredTrajectory
	m.lastOutputs = make(map[string]map[string]float64, len(m.blocks))
	return nil
}

// Run advances from the current time to tFinal in macro steps, per §4.G
// steps 1-5, stopping early on ctx cancellation (checked at macro-step
// boundaries), a StepRejected, or a SlaveFatalError (which also terminates
// every block in reverse declaration order before returning).
func (m *Master) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		stepSize, err := m.timemgr.NextStep()
		if err == timemgr.ErrNoRemaining {
			return nil
		}
		if err != nil {
			return err
		}

		if err := m.runMacroStep(ctx, stepSize); err != nil {
			if fatal, ok := err.(*SlaveFatalError); ok {
				m.terminateAll()
				return fatal
			}
			return err
		}

		m.timemgr.Advance(stepSize)
	}
}

func (m *Master) runMacroStep(ctx context.Context, stepSize float64) error {
	order, err := m.graph.Order(m.config.Strategy)
	if err != nil {
		return err
	}

	currentTime := m.timemgr.Current()
	produced := make(map[string]map[string]float64, len(order))

	if m.config.Strategy == coupling.Jacobi && m.config.Concurrent {
		if err := m.runJacobiConcurrent(ctx, order, currentTime, stepSize, produced); err != nil {
			return err
		}
	} else {
		for _, id := range order {
			block := m.blocks[m.graph.Blocks()[id].Name()]
			if err := m.stepOne(ctx, block, currentTime, stepSize, produced); err != nil {
				return err
			}
		}
	}

	m.lastOutputs = produced
	arrival := currentTime + stepSize
	for name, outputs := range produced {
		if err := m.trajectory.AppendRow(name, arrival, outputs); err != nil {
			return err
		}
	}
	m.publishUpdate(arrival, produced)
	return nil
}

func (m *Master) publishUpdate(t float64, produced map[string]map[string]float64) {
	if m.config.Updates == nil {
		return
	}
	values := make(map[string]float64)
	for _, outputs := range produced {
		for name, v := range outputs {
			values[name] = v
		}
	}
	select {
	case m.config.Updates <- monitor.TrajectoryUpdate{Time: t, Values: values}:
	default:
	}
}

func (m *Master) runJacobiConcurrent(ctx context.Context, order []coupling.BlockID, currentTime, stepSize float64, produced map[string]map[string]float64) error {
	group, groupCtx := errgroup.WithContext(ctx)
	results := make([]map[string]float64, len(order))
	names := make([]string, len(order))

	for i, id := range order {
		i, id := i, id
		name := m.graph.Blocks()[id].Name()
		names[i] = name
		block := m.blocks[name]
		group.Go(func() error {
			inputs, err := m.resolveInputs(block, currentTime)
			if err != nil {
				return err
			}
			out, err := block.Step(groupCtx, currentTime, stepSize, inputs)
			if err != nil {
				return m.classifyStepError(name, stepSize, err)
			}
			results[i] = out
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	for i, name := range names {
		produced[name] = results[i]
	}
	return nil
}

func (m *Master) stepOne(ctx context.Context, block Stepper, currentTime, stepSize float64, produced map[string]map[string]float64) error {
	inputs, err := m.resolveInputs(block, currentTime)
	if err != nil {
		return err
	}

	// Gauss-Seidel reads from outputs already produced earlier in this
	// same macro step, for any input wired to a block stepped before this
	// one in topological order.
	if m.config.Strategy == coupling.GaussSeidel {
		for name, value := range m.wiredInputs(block, produced) {
			inputs[name] = value
		}
	}

	out, err := block.Step(ctx, currentTime, stepSize, inputs)
	if err != nil {
		return m.classifyStepError(block.Name(), stepSize, err)
	}
	produced[block.Name()] = out
	return nil
}

// resolveInputs starts from external inputs and, for Jacobi, from the
// previous macro step's (or initial) wired values.
func (m *Master) resolveInputs(block Stepper, currentTime float64) (map[string]float64, error) {
	inputs := make(map[string]float64, len(block.Inputs()))
	for _, name := range block.Inputs() {
		if src, ok := m.external[block.Name()][name]; ok {
			v, err := src.evaluate(currentTime)
			if err != nil {
				return nil, err
			}
			inputs[name] = v
			continue
		}
		if m.config.Strategy == coupling.Jacobi {
			if producer, ok := m.graph.Producer(name); ok {
				producerName := m.graph.Blocks()[producer].Name()
				if prev, ok := m.lastOutputs[producerName]; ok {
					if v, ok := prev[name]; ok {
						inputs[name] = v
					}
				}
			}
		}
	}
	return inputs, nil
}

// wiredInputs returns, for Gauss-Seidel only, the subset of block's inputs
// whose producer has already stepped earlier in this macro step.
func (m *Master) wiredInputs(block Stepper, produced map[string]map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for _, name := range block.Inputs() {
		producer, ok := m.graph.Producer(name)
		if !ok {
			continue
		}
		producerName := m.graph.Blocks()[producer].Name()
		if vals, ok := produced[producerName]; ok {
			if v, ok := vals[name]; ok {
				out[name] = v
			}
		}
	}
	return out
}

func (m *Master) classifyStepError(blockName string, intendedStep float64, err error) error {
	var rejected *discipline.StepRejectedError
	if errors.As(err, &rejected) {
		return &StepRejected{Block: blockName, IntendedStepSize: intendedStep, AttemptedStepSize: rejected.AttemptedStepSize, Err: err}
	}
	return &SlaveFatalError{Block: blockName, Err: err}
}

func (m *Master) terminateAll() {
	for i := len(m.order) - 1; i >= 0; i-- {
		if t, ok := m.blocks[m.order[i]].(Terminator); ok {
			_ = t.Terminate()
		}
	}
}

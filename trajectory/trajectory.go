// Package trajectory is the append-only time-indexed store every block's
// outputs are recorded into during a run, and the materializer that turns
// it into contiguous arrays afterward (§4.H).
package trajectory

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNonMonotonicTime is returned when a block's time column would stop
// being non-decreasing, either on append or at materialization.
var ErrNonMonotonicTime = errors.New("trajectory: time column is not non-decreasing")

// ErrLengthMismatch is returned at materialization when an output's
// recorded length does not match its block's time column length.
var ErrLengthMismatch = errors.New("trajectory: output length does not match time column length")

type blockTrace struct {
	mu      sync.Mutex
	time    []float64
	outputs map[string][]float64
}

// Store holds one blockTrace per block name, in first-write order.
type Store struct {
	mu     sync.RWMutex
	blocks map[string]*blockTrace
	order  []string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{blocks: make(map[string]*blockTrace)}
}

func (s *Store) ensureBlock(name string) *blockTrace {
	s.mu.Lock()
	defer s.mu.Unlock()
	bt, ok := s.blocks[name]
	if !ok {
		bt = &blockTrace{outputs: make(map[string][]float64)}
		s.blocks[name] = bt
		s.order = append(s.order, name)
	}
	return bt
}

// AppendRow records one block's output values at time t: a single shared
// time sample plus every output named in values, matching §4.G step 4's
// "append (t_current + step, value) to the trajectory for every declared
// output" applied once per block per macro step.
func (s *Store) AppendRow(block string, t float64, values map[string]float64) error {
	bt := s.ensureBlock(block)
	bt.mu.Lock()
	defer bt.mu.Unlock()

	if n := len(bt.time); n > 0 && t < bt.time[n-1] {
		return fmt.Errorf("%w: block %q time %g precedes previous %g", ErrNonMonotonicTime, block, t, bt.time[n-1])
	}
	bt.time = append(bt.time, t)

	for name, v := range values {
		bt.outputs[name] = append(bt.outputs[name], v)
	}
	return nil
}

// Reset discards every recorded sample, for a restart = true macro-step
// entry (§4.G).
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = make(map[string]*blockTrace)
	s.order = nil
}

// BlockRows is one block's recorded samples: a shared time column and one
// array per output name, both in append order.
type BlockRows struct {
	Time    []float64
	Outputs map[string][]float64
}

// Export returns every block's rows keyed by block name, for persistence
// (snapshot.BuildState) where the output-to-block association must
// survive a round trip that Materialize's flattened column map discards.
func (s *Store) Export() map[string]BlockRows {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]BlockRows, len(s.order))
	for _, name := range s.order {
		bt := s.blocks[name]
		bt.mu.Lock()
		outputs := make(map[string][]float64, len(bt.outputs))
		for k, v := range bt.outputs {
			outputs[k] = append([]float64(nil), v...)
		}
		out[name] = BlockRows{
			Time:    append([]float64(nil), bt.time...),
			Outputs: outputs,
		}
		bt.mu.Unlock()
	}
	return out
}

// Import replays a previously Exported set of block rows into a fresh
// Store, preserving append order and each output's per-sample values.
func Import(blocks map[string]BlockRows) (*Store, error) {
	store := NewStore()
	for name, rows := range blocks {
		for i, t := range rows.Time {
			row := make(map[string]float64, len(rows.Outputs))
			for out, vals := range rows.Outputs {
				if i < len(vals) {
					row[out] = vals[i]
				}
			}
			if err := store.AppendRow(name, t, row); err != nil {
				return nil, err
			}
		}
	}
	return store, nil
}

// Materialized is the post-run form of a Store: one contiguous array per
// output, plus one "<block>:time" array per block.
type Materialized struct {
	Columns map[string][]float64
}

// Materialize validates every block's invariants (matching lengths,
// non-decreasing time) and returns the contiguous column form.
func (s *Store) Materialize() (*Materialized, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	columns := make(map[string][]float64)
	for _, name := range s.order {
		bt := s.blocks[name]
		bt.mu.Lock()

		for i := 1; i < len(bt.time); i++ {
			if bt.time[i] < bt.time[i-1] {
				bt.mu.Unlock()
				return nil, fmt.Errorf("%w: block %q", ErrNonMonotonicTime, name)
			}
		}

		timeColumn := append([]float64(nil), bt.time...)
		columns[name+":time"] = timeColumn

		for out, vals := range bt.outputs {
			if len(vals) != len(timeColumn) {
				bt.mu.Unlock()
				return nil, fmt.Errorf("%w: block %q output %q has %d samples, time has %d",
					ErrLengthMismatch, name, out, len(vals), len(timeColumn))
			}
			columns[out] = append([]float64(nil), vals...)
		}

		bt.mu.Unlock()
	}

	return &Materialized{Columns: columns}, nil
}

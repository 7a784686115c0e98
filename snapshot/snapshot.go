// Package snapshot persists and restores a run's (t_current, slave states,
// trajectory so far) per §6's "Persisted state" and §4.K, so a process can
// checkpoint and later resume a master.Master run exactly.
package snapshot

import (
	"io"

	jsoniter "github.com/json-iterator/go"

	"fmucosim/trajectory"
)

// Snapshotable is implemented by a slave.Handle that can serialize and
// restore its own internal state as an opaque blob; virtualfmu's models all
// implement it. master.Master.Snapshot/Restore apply it to every block that
// supports it, via SlaveBlobs below.
type Snapshotable interface {
	MarshalState() ([]byte, error)
	UnmarshalState([]byte) error
}

// State is the persisted form of a run: the time the master had reached,
// one opaque blob per named block, and every trajectory sample recorded
// so far, keyed per block so the output-to-block association survives
// the round trip (trajectory.Store.Export/Import).
type State struct {
	TCurrent   float64                        `json:"t_current"`
	SlaveBlobs map[string][]byte              `json:"slave_blobs"`
	Trajectory map[string]trajectory.BlockRows `json:"trajectory"`
}

// Save encodes s as JSON to w, via jsoniter, matching the "fast drop-in
// JSON" role this dependency fills elsewhere in the corpus (both aistore
// variants use it identically).
func Save(w io.Writer, s *State) error {
	return jsoniter.NewEncoder(w).Encode(s)
}

// Load decodes a State previously written by Save.
func Load(r io.Reader) (*State, error) {
	var s State
	if err := jsoniter.NewDecoder(r).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// BuildState assembles a State from a master's current time, the
// already-marshaled slave blobs keyed by block name, and the store's
// recorded rows.
func BuildState(tCurrent float64, slaveBlobs map[string][]byte, store *trajectory.Store) *State {
	return &State{
		TCurrent:   tCurrent,
		SlaveBlobs: slaveBlobs,
		Trajectory: store.Export(),
	}
}

// Restore rebuilds a trajectory.Store from a previously persisted State, so
// Materialize behaves as if the run had never been interrupted. It does not
// touch SlaveBlobs: applying those to live slave handles is master-level
// work (master.Master.Restore), since only the master knows which block
// name maps to which Snapshotable handle.
func Restore(s *State) (*trajectory.Store, error) {
	return trajectory.Import(s.Trajectory)
}

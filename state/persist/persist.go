// Package persist implements the key-value snapshot store of spec §4.G
// ("Optionally persists every k-th block...") and §6 ("Persisted
// snapshot layout"), modeled as a capability interface with a composite
// fan-out implementation per spec §9 "Dynamic dispatch over
// persistors" — no inheritance hierarchy, several back-ends satisfying
// one common interface.
package persist

import (
	"fmt"

	"github.com/kysee/rollup-statekeeper/state"
)

// Snapshot bundles a global-state snapshot with the external
// checkpoints spec §6's layout stores alongside it: the last included
// block offset and the upstream message-bus ("kafka_offset") offset.
type Snapshot struct {
	BlockOffset uint64
	KafkaOffset uint64
	GlobalState state.GlobalStateSnapshot
}

// Persistor is the capability interface spec §9 calls for: several
// back-ends (file/database, in-memory, composite) all satisfy it; none
// of them know about the others.
type Persistor interface {
	// Save writes the snapshot for blockID. Implementations may
	// overwrite a prior snapshot for the same blockID.
	Save(blockID uint64, snap Snapshot) error
	// Load reads back a previously-saved snapshot.
	Load(blockID uint64) (Snapshot, error)
	// Latest reports the highest blockID saved so far, or ok=false if
	// nothing has ever been persisted (used on restart to resume from
	// the last snapshot per spec §7 "User-visible behavior").
	Latest() (blockID uint64, ok bool, err error)
}

// ErrNotFound is returned by Load when no snapshot exists for the
// requested blockID.
var ErrNotFound = fmt.Errorf("persist: no snapshot for requested block")

// InMemoryPersistor is a trivial Persistor backed by a map, used by
// tests and as one leg of a CompositePersistor.
type InMemoryPersistor struct {
	snapshots map[uint64]Snapshot
	latest    uint64
	hasAny    bool
}

// NewInMemoryPersistor builds an empty in-memory persistor.
func NewInMemoryPersistor() *InMemoryPersistor {
	return &InMemoryPersistor{snapshots: make(map[uint64]Snapshot)}
}

func (p *InMemoryPersistor) Save(blockID uint64, snap Snapshot) error {
	p.snapshots[blockID] = snap
	if !p.hasAny || blockID > p.latest {
		p.latest = blockID
		p.hasAny = true
	}
	return nil
}

func (p *InMemoryPersistor) Load(blockID uint64) (Snapshot, error) {
	snap, ok := p.snapshots[blockID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (p *InMemoryPersistor) Latest() (uint64, bool, error) {
	return p.latest, p.hasAny, nil
}

// CompositePersistor fans a Save out to every backend and satisfies
// Load/Latest from the first backend that has an answer, matching
// spec §9's "composite implementation that fans out; no inheritance
// hierarchy".
type CompositePersistor struct {
	backends []Persistor
}

// NewCompositePersistor builds a composite over the given backends, in
// priority order for Load/Latest.
func NewCompositePersistor(backends ...Persistor) *CompositePersistor {
	return &CompositePersistor{backends: backends}
}

func (c *CompositePersistor) Save(blockID uint64, snap Snapshot) error {
	for _, b := range c.backends {
		if err := b.Save(blockID, snap); err != nil {
			return fmt.Errorf("composite persistor: %w", err)
		}
	}
	return nil
}

func (c *CompositePersistor) Load(blockID uint64) (Snapshot, error) {
	var lastErr error
	for _, b := range c.backends {
		snap, err := b.Load(blockID)
		if err == nil {
			return snap, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrNotFound
	}
	return Snapshot{}, lastErr
}

func (c *CompositePersistor) Latest() (uint64, bool, error) {
	for _, b := range c.backends {
		blockID, ok, err := b.Latest()
		if err != nil {
			return 0, false, err
		}
		if ok {
			return blockID, true, nil
		}
	}
	return 0, false, nil
}

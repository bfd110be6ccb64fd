package state

import (
	"fmt"

	"github.com/kysee/rollup-statekeeper/types"
)

// TreeSnapshot is the serializable form of a Tree: its shape (height,
// default leaf) plus every non-default node, keyed by "level:index" so
// a plain map round-trips through encoding/json (spec §6 "Persisted
// snapshot layout").
type TreeSnapshot struct {
	Height      uint
	DefaultLeaf types.F
	Nodes       map[string]types.F
}

// Snapshot captures every non-default node of t.
func (t *Tree) Snapshot() TreeSnapshot {
	nodes := make(map[string]types.F)
	for level, m := range t.data {
		for idx, v := range m {
			nodes[fmt.Sprintf("%d:%d", level, idx)] = v
		}
	}
	return TreeSnapshot{Height: t.height, DefaultLeaf: t.defaults[0], Nodes: nodes}
}

// TreeFromSnapshot rebuilds a Tree from a prior Snapshot, recomputing
// the default cascade and replaying the stored non-default nodes.
func TreeFromSnapshot(snap TreeSnapshot) *Tree {
	t := NewTree(snap.Height, snap.DefaultLeaf)
	for key, v := range snap.Nodes {
		var level uint
		var idx uint32
		if _, err := fmt.Sscanf(key, "%d:%d", &level, &idx); err != nil {
			panic(fmt.Sprintf("persist: malformed tree snapshot key %q: %v", key, err))
		}
		t.data[level][idx] = v
	}
	return t
}

// GlobalStateSnapshot is the serializable form of a GlobalState: the
// sub-tree heights needed to reconstruct default cascades, the account
// tree, every account record, and every per-account balance/order
// sub-tree and allocator bookkeeping map (spec §6 "Persisted snapshot
// layout": account_tree, account_states, balance_trees/<id>,
// order_trees/<id>).
type GlobalStateSnapshot struct {
	HBal, HOrd, HAcc uint
	Verbose          bool

	AccountTree TreeSnapshot
	Accounts    map[uint32]AccountState

	BalanceTrees map[uint32]TreeSnapshot
	OrderTrees   map[uint32]TreeSnapshot

	OrderSlotByID      map[uint32]map[uint32]uint32
	OrderByAccountSlot map[uint32]map[uint32]Order
	NextOrderPosition  map[uint32]uint32
	NextOrderID        map[uint32]uint32
}

// Snapshot captures the entirety of s's state for persistence.
func (s *GlobalState) Snapshot() GlobalStateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balanceTrees := make(map[uint32]TreeSnapshot, len(s.balanceTrees))
	for id, tr := range s.balanceTrees {
		balanceTrees[id] = tr.Snapshot()
	}
	orderTrees := make(map[uint32]TreeSnapshot, len(s.orderTrees))
	for id, tr := range s.orderTrees {
		orderTrees[id] = tr.Snapshot()
	}
	accounts := make(map[uint32]AccountState, len(s.accounts))
	for id, acc := range s.accounts {
		accounts[id] = acc
	}
	orderSlotByID := make(map[uint32]map[uint32]uint32, len(s.orderSlotByID))
	for accID, m := range s.orderSlotByID {
		inner := make(map[uint32]uint32, len(m))
		for k, v := range m {
			inner[k] = v
		}
		orderSlotByID[accID] = inner
	}
	orderByAccountSlot := make(map[uint32]map[uint32]Order, len(s.orderByAccountSlot))
	for accID, m := range s.orderByAccountSlot {
		inner := make(map[uint32]Order, len(m))
		for k, v := range m {
			inner[k] = v
		}
		orderByAccountSlot[accID] = inner
	}
	nextOrderPosition := make(map[uint32]uint32, len(s.nextOrderPosition))
	for k, v := range s.nextOrderPosition {
		nextOrderPosition[k] = v
	}
	nextOrderID := make(map[uint32]uint32, len(s.nextOrderID))
	for k, v := range s.nextOrderID {
		nextOrderID[k] = v
	}

	return GlobalStateSnapshot{
		HBal: s.hBal, HOrd: s.hOrd, HAcc: s.hAcc, Verbose: s.verbose,
		AccountTree:        s.accountTree.Snapshot(),
		Accounts:           accounts,
		BalanceTrees:       balanceTrees,
		OrderTrees:         orderTrees,
		OrderSlotByID:      orderSlotByID,
		OrderByAccountSlot: orderByAccountSlot,
		NextOrderPosition:  nextOrderPosition,
		NextOrderID:        nextOrderID,
	}
}

// RestoreGlobalState rebuilds a GlobalState from a prior Snapshot,
// overwriting the empty state NewGlobalState seeds so every stored node
// and allocator position is preserved exactly.
func RestoreGlobalState(snap GlobalStateSnapshot) *GlobalState {
	s := NewGlobalState(snap.HBal, snap.HOrd, snap.HAcc, snap.Verbose)

	s.accountTree = TreeFromSnapshot(snap.AccountTree)
	for id, acc := range snap.Accounts {
		s.accounts[id] = acc
	}
	for id, ts := range snap.BalanceTrees {
		s.balanceTrees[id] = TreeFromSnapshot(ts)
	}
	for id, ts := range snap.OrderTrees {
		s.orderTrees[id] = TreeFromSnapshot(ts)
	}
	for accID, m := range snap.OrderSlotByID {
		inner := make(map[uint32]uint32, len(m))
		for k, v := range m {
			inner[k] = v
		}
		s.orderSlotByID[accID] = inner
	}
	for accID, m := range snap.OrderByAccountSlot {
		inner := make(map[uint32]Order, len(m))
		for k, v := range m {
			inner[k] = v
		}
		s.orderByAccountSlot[accID] = inner
	}
	for k, v := range snap.NextOrderPosition {
		s.nextOrderPosition[k] = v
	}
	for k, v := range snap.NextOrderID {
		s.nextOrderID[k] = v
	}
	return s
}

package persist

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/kysee/rollup-statekeeper/state"
)

// Key names inside a block's badger instance (spec §6 "Persisted
// snapshot layout").
const (
	keyBlockOffset  = "block_offset"
	keyKafkaOffset  = "kafka_offset"
	keyAccountTree  = "account_tree"
	keyAccountState = "account_states"
)

func keyBalanceTree(accountID uint32) []byte {
	return []byte(fmt.Sprintf("balance_trees/%d", accountID))
}

func keyOrderTree(accountID uint32) []byte {
	return []byte(fmt.Sprintf("order_trees/%d", accountID))
}

// BadgerPersistor stores one snapshot per block id as its own badger
// instance under persistDir/<block_id>.db, matching spec §6 literally:
// "Under persist_dir/<block_id>.db: keys block_offset, kafka_offset,
// account_tree, account_states, balance_trees/<account_id>,
// order_trees/<account_id>". Each key holds a gob-encoded
// sub-structure — no example repo in the retrieval pack wires a
// dedicated serialization library for an internal Go-struct-to-bytes
// store (the pack's encoding/json usage is for the external block
// record, whose format spec §6 pins to decimal strings; protobuf is
// only reachable transitively through zrnt's generated SSZ types, which
// this domain does not use), so the stdlib's encoding/gob is the
// idiomatic choice here.
type BadgerPersistor struct {
	dir string
}

// NewBadgerPersistor roots snapshots under dir (spec §6 `persist_dir`).
func NewBadgerPersistor(dir string) *BadgerPersistor {
	return &BadgerPersistor{dir: dir}
}

func (p *BadgerPersistor) blockDBPath(blockID uint64) string {
	return filepath.Join(p.dir, fmt.Sprintf("%d.db", blockID))
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("persist: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("persist: gob decode: %w", err)
	}
	return nil
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// Save opens a fresh badger instance for blockID and writes every key
// of spec §6's layout in one transaction.
func (p *BadgerPersistor) Save(blockID uint64, snap Snapshot) error {
	path := p.blockDBPath(blockID)
	db, err := badger.Open(badger.DefaultOptions(path))
	if err != nil {
		return fmt.Errorf("persist: open %s: %w", path, err)
	}
	defer db.Close()

	accountTreeBytes, err := gobEncode(snap.GlobalState.AccountTree)
	if err != nil {
		return err
	}
	accountsBytes, err := gobEncode(snap.GlobalState.Accounts)
	if err != nil {
		return err
	}

	return db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyBlockOffset), uint64Bytes(snap.BlockOffset)); err != nil {
			return err
		}
		if err := txn.Set([]byte(keyKafkaOffset), uint64Bytes(snap.KafkaOffset)); err != nil {
			return err
		}
		if err := txn.Set([]byte(keyAccountTree), accountTreeBytes); err != nil {
			return err
		}
		if err := txn.Set([]byte(keyAccountState), accountsBytes); err != nil {
			return err
		}
		for accountID, tree := range snap.GlobalState.BalanceTrees {
			b, err := gobEncode(tree)
			if err != nil {
				return err
			}
			if err := txn.Set(keyBalanceTree(accountID), b); err != nil {
				return err
			}
		}
		for accountID, tree := range snap.GlobalState.OrderTrees {
			b, err := gobEncode(tree)
			if err != nil {
				return err
			}
			if err := txn.Set(keyOrderTree(accountID), b); err != nil {
				return err
			}
		}
		return saveAllocatorState(txn, snap.GlobalState)
	})
}

// allocator bookkeeping (order-slot maps, next-order-id counters) is
// not named in spec §6's key list verbatim but must round-trip for the
// recovered state to behave identically — stored under one combined
// key alongside the named ones.
const keyAllocatorState = "allocator_state"

type allocatorState struct {
	OrderSlotByID      map[uint32]map[uint32]uint32
	OrderByAccountSlot map[uint32]map[uint32]state.Order
	NextOrderPosition  map[uint32]uint32
	NextOrderID        map[uint32]uint32
	HBal, HOrd, HAcc   uint
	Verbose            bool
}

func saveAllocatorState(txn *badger.Txn, snap state.GlobalStateSnapshot) error {
	b, err := gobEncode(allocatorState{
		OrderSlotByID:      snap.OrderSlotByID,
		OrderByAccountSlot: snap.OrderByAccountSlot,
		NextOrderPosition:  snap.NextOrderPosition,
		NextOrderID:        snap.NextOrderID,
		HBal:               snap.HBal,
		HOrd:               snap.HOrd,
		HAcc:               snap.HAcc,
		Verbose:            snap.Verbose,
	})
	if err != nil {
		return err
	}
	return txn.Set([]byte(keyAllocatorState), b)
}

// Load reopens blockID's badger instance and reconstructs its Snapshot.
func (p *BadgerPersistor) Load(blockID uint64) (Snapshot, error) {
	path := p.blockDBPath(blockID)
	if _, err := os.Stat(path); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	db, err := badger.Open(badger.DefaultOptions(path))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: open %s: %v", ErrNotFound, path, err)
	}
	defer db.Close()

	var snap Snapshot
	var alloc allocatorState
	var accountTree state.TreeSnapshot
	var accounts map[uint32]state.AccountState
	balanceTrees := make(map[uint32]state.TreeSnapshot)
	orderTrees := make(map[uint32]state.TreeSnapshot)

	err = db.View(func(txn *badger.Txn) error {
		if err := getAndDecode(txn, []byte(keyBlockOffset), func(b []byte) error {
			snap.BlockOffset = bytesToUint64(b)
			return nil
		}); err != nil {
			return err
		}
		if err := getAndDecode(txn, []byte(keyKafkaOffset), func(b []byte) error {
			snap.KafkaOffset = bytesToUint64(b)
			return nil
		}); err != nil {
			return err
		}
		if err := getAndDecode(txn, []byte(keyAccountTree), func(b []byte) error {
			return gobDecode(b, &accountTree)
		}); err != nil {
			return err
		}
		if err := getAndDecode(txn, []byte(keyAccountState), func(b []byte) error {
			return gobDecode(b, &accounts)
		}); err != nil {
			return err
		}
		if err := getAndDecode(txn, []byte(keyAllocatorState), func(b []byte) error {
			return gobDecode(b, &alloc)
		}); err != nil {
			return err
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			var accountID uint32
			if n, _ := fmt.Sscanf(key, "balance_trees/%d", &accountID); n == 1 {
				var ts state.TreeSnapshot
				if err := item.Value(func(v []byte) error { return gobDecode(v, &ts) }); err != nil {
					return err
				}
				balanceTrees[accountID] = ts
			} else if n, _ := fmt.Sscanf(key, "order_trees/%d", &accountID); n == 1 {
				var ts state.TreeSnapshot
				if err := item.Value(func(v []byte) error { return gobDecode(v, &ts) }); err != nil {
					return err
				}
				orderTrees[accountID] = ts
			}
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	snap.GlobalState = state.GlobalStateSnapshot{
		HBal: alloc.HBal, HOrd: alloc.HOrd, HAcc: alloc.HAcc, Verbose: alloc.Verbose,
		AccountTree:        accountTree,
		Accounts:           accounts,
		BalanceTrees:       balanceTrees,
		OrderTrees:         orderTrees,
		OrderSlotByID:      alloc.OrderSlotByID,
		OrderByAccountSlot: alloc.OrderByAccountSlot,
		NextOrderPosition:  alloc.NextOrderPosition,
		NextOrderID:        alloc.NextOrderID,
	}
	return snap, nil
}

func getAndDecode(txn *badger.Txn, key []byte, fn func([]byte) error) error {
	item, err := txn.Get(key)
	if err != nil {
		return fmt.Errorf("persist: get %s: %w", key, err)
	}
	return item.Value(fn)
}

// Latest walks persistDir for the highest-numbered <block_id>.db entry.
// Entries are matched by name only; none is opened.
func (p *BadgerPersistor) Latest() (uint64, bool, error) {
	matches, err := filepath.Glob(filepath.Join(p.dir, "*.db"))
	if err != nil {
		return 0, false, fmt.Errorf("persist: glob %s: %w", p.dir, err)
	}
	var (
		best  uint64
		found bool
	)
	for _, m := range matches {
		base := filepath.Base(m)
		var id uint64
		if n, _ := fmt.Sscanf(base, "%d.db", &id); n != 1 {
			continue
		}
		if !found || id > best {
			best, found = id, true
		}
	}
	return best, found, nil
}

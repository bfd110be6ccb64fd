// Package state implements the global-state engine: the sparse Merkle
// tree, the account/order/balance model built on top of it, the
// transaction-apply witness generator, the block former and the
// pub-data codec (spec §4.B-§4.H).
package state

import (
	"fmt"
	"sync"

	"github.com/kysee/rollup-statekeeper/types"
)

// MerkleProof is the result of Tree.GetProof: the leaf, the root it was
// read against, and the ordered sibling hashes from leaf to root
// (spec §4.B).
type MerkleProof struct {
	Root         types.F
	Leaf         types.F
	PathElements types.MerklePath
}

// hashCacheItem records one level's precomputed sibling pair and its
// resulting parent hash, used by SetValueParallel's cache-hit/miss
// protocol (spec §4.B, §5).
type hashCacheItem struct {
	left, right types.F
	result      types.F
}

// Tree is a height-h sparse binary Merkle tree over field leaves with a
// precomputed empty-node cascade (spec §4.B), grounded on
// original_source/src/state/merkle_tree.rs's `Tree`. Only non-default
// nodes are stored; `get_value` on a missing node returns the default
// for that level.
type Tree struct {
	height  uint
	defaults []types.F // defaults[0] = defaultLeaf, defaults[i+1] = H(defaults[i], defaults[i])

	// data[level][index] holds only non-default nodes; data[0] is
	// leaves, data[height] is the (singleton) root.
	data []map[uint32]types.F
}

// NewTree precomputes the default-node cascade for a tree of the given
// height and default leaf value. Root = defaults[height] until any leaf
// is set.
func NewTree(height uint, defaultLeaf types.F) *Tree {
	defaults := make([]types.F, height+1)
	defaults[0] = defaultLeaf
	for i := uint(0); i < height; i++ {
		defaults[i+1] = types.Hash2(defaults[i], defaults[i])
	}
	data := make([]map[uint32]types.F, height+1)
	for i := range data {
		data[i] = make(map[uint32]types.F)
	}
	return &Tree{height: height, defaults: defaults, data: data}
}

// MaxLeafNum returns 2^height, the logical leaf count.
func (t *Tree) MaxLeafNum() uint32 {
	return uint32(1) << t.height
}

// Height returns the tree's configured height.
func (t *Tree) Height() uint { return t.height }

func siblingIdx(i uint32) uint32 {
	return i ^ 1
}

func parentIdx(i uint32) uint32 {
	return i >> 1
}

// GetValue returns the node at (level, idx), or the level's default if
// it was never written.
func (t *Tree) GetValue(level uint, idx uint32) types.F {
	if v, ok := t.data[level][idx]; ok {
		return v
	}
	return t.defaults[level]
}

// GetLeaf is GetValue(0, idx).
func (t *Tree) GetLeaf(idx uint32) types.F {
	return t.GetValue(0, idx)
}

// Root returns the tree's current root.
func (t *Tree) Root() types.F {
	return t.GetValue(t.height, 0)
}

func (t *Tree) recalculateParent(level uint, idx uint32) {
	lhs := t.GetValue(level-1, idx*2)
	rhs := t.GetValue(level-1, idx*2+1)
	t.data[level][idx] = types.Hash2(lhs, rhs)
}

// SetValue writes leaf idx and walks up recomputing each ancestor with
// one 2-input hash (spec §4.B). A value equal to the current leaf is a
// no-op; idx >= 2^height is a programmer error and panics.
func (t *Tree) SetValue(idx uint32, value types.F) {
	if idx >= t.MaxLeafNum() {
		panic(fmt.Sprintf("merkle tree: index %d out of range for height %d", idx, t.height))
	}
	if types.Eq(t.GetLeaf(idx), value) {
		return
	}
	t.data[0][idx] = value
	cur := idx
	for level := uint(1); level <= t.height; level++ {
		cur = parentIdx(cur)
		t.recalculateParent(level, cur)
	}
}

// GetProof returns the sibling hashes from leaf idx up to the root
// (spec §4.B `get_proof`).
func (t *Tree) GetProof(idx uint32) MerkleProof {
	leaf := t.GetLeaf(idx)
	path := make(types.MerklePath, 0, t.height)
	cur := idx
	for level := uint(0); level < t.height; level++ {
		path = append(path, t.GetValue(level, siblingIdx(cur)))
		cur = parentIdx(cur)
	}
	return MerkleProof{Root: t.Root(), Leaf: leaf, PathElements: path}
}

// leafUpdate is one (index, value) pair for a batched write.
type leafUpdate struct {
	idx   uint32
	value types.F
}

// SetValueParallel applies a batch of leaf updates, chunked by
// parallelism, using the two-phase precompute/commit protocol of
// spec §4.B / §5: within a chunk, each update's hash cascade is
// precomputed in parallel against the tree state as observed before the
// chunk is applied; updates are then committed sequentially, reusing a
// precomputed level's result only while the observed sibling pair still
// matches what was precomputed (a "cache hit"). The first mismatch
// ("cache miss") forces that level and every level above it to be
// recomputed fresh, since a Merkle tree's ancestors all depend on it.
// The result is bit-identical to applying the same updates one at a
// time with SetValue.
func (t *Tree) SetValueParallel(updates []leafUpdate, parallelism int) {
	if parallelism <= 0 {
		parallelism = 8
	}
	for start := 0; start < len(updates); start += parallelism {
		end := start + parallelism
		if end > len(updates) {
			end = len(updates)
		}
		chunk := updates[start:end]
		precomputed := make([][]hashCacheItem, len(chunk))

		var wg sync.WaitGroup
		for i, u := range chunk {
			wg.Add(1)
			go func(i int, u leafUpdate) {
				defer wg.Done()
				precomputed[i] = t.prepareDiff(u.idx, u.value)
			}(i, u)
		}
		wg.Wait()

		for i, u := range chunk {
			t.applyDiff(u.idx, u.value, precomputed[i])
		}
	}
}

// prepareDiff computes, level by level, the sibling pair and resulting
// parent hash an update to idx would produce, entirely read-only
// against the tree as it stood when this function was called. Safe to
// run concurrently with other prepareDiff calls in the same chunk,
// since none of them mutate the tree.
func (t *Tree) prepareDiff(idx uint32, value types.F) []hashCacheItem {
	out := make([]hashCacheItem, t.height)
	curIdx := idx
	curValue := value
	for i := uint(0); i < t.height; i++ {
		var left, right types.F
		if curIdx%2 == 0 {
			left, right = curValue, t.GetValue(i, curIdx+1)
		} else {
			left, right = t.GetValue(i, curIdx-1), curValue
		}
		curValue = types.Hash2(left, right)
		curIdx = parentIdx(curIdx)
		out[i] = hashCacheItem{left: left, right: right, result: curValue}
	}
	return out
}

// applyDiff commits idx=value, reusing precomputed[i] for level i+1
// while the sibling pair it was computed against still matches what is
// now actually stored; once it diverges (because an earlier update in
// the same chunk touched a shared ancestor), every subsequent level is
// recomputed fresh.
func (t *Tree) applyDiff(idx uint32, value types.F, precomputed []hashCacheItem) {
	t.data[0][idx] = value
	cacheMiss := false
	curIdx := idx
	for i := uint(0); i < t.height; i++ {
		var left, right types.F
		if curIdx%2 == 0 {
			left, right = t.GetValue(i, curIdx), t.GetValue(i, curIdx+1)
		} else {
			left, right = t.GetValue(i, curIdx-1), t.GetValue(i, curIdx)
		}
		curIdx = parentIdx(curIdx)
		if !cacheMiss && (!types.Eq(precomputed[i].left, left) || !types.Eq(precomputed[i].right, right)) {
			cacheMiss = true
		}
		if cacheMiss {
			t.data[i+1][curIdx] = types.Hash2(left, right)
		} else {
			t.data[i+1][curIdx] = precomputed[i].result
		}
	}
}

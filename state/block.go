package state

import (
	"crypto/sha256"

	"github.com/kysee/rollup-statekeeper/types"
)

// BlockFormer buffers witnessed RawTx records until NTx accumulate,
// then emits a fixed-size L2Block with its pub-data hash (spec §4.G
// "Block former"), grounded on
// original_source/src/state/global_state.rs's per-block forging loop.
type BlockFormer struct {
	wg          *WitnessGenerator
	nTx         int
	cfg         PubDataConfig
	nextBlockID uint64
	pending     []types.RawTx
}

// NewBlockFormer builds a block former over wg, buffering nTx
// transactions per block.
func NewBlockFormer(wg *WitnessGenerator, nTx int, cfg PubDataConfig) *BlockFormer {
	return &BlockFormer{wg: wg, nTx: nTx, cfg: cfg, pending: make([]types.RawTx, 0, nTx)}
}

// AddRawTx appends an already-witnessed transaction to the pending
// buffer. When the buffer reaches NTx, the block is forged and
// returned; otherwise the second return value is false.
func (bf *BlockFormer) AddRawTx(tx types.RawTx) (*types.L2Block, bool) {
	bf.pending = append(bf.pending, tx)
	if len(bf.pending) < bf.nTx {
		return nil, false
	}
	return bf.Forge(), true
}

// Forge assembles an L2Block from the current pending buffer and
// resets it. Returns nil if the buffer is empty.
func (bf *BlockFormer) Forge() *types.L2Block {
	n := len(bf.pending)
	if n == 0 {
		return nil
	}

	block := &types.L2Block{
		BlockID:             bf.nextBlockID,
		OldRoot:             bf.pending[0].RootBefore,
		NewRoot:             bf.pending[n-1].RootAfter,
		TxsType:             make([]types.TxType, n),
		Txs:                 make([]types.Payload, n),
		BalancePathElements: make([][4]types.MerklePath, n),
		OrderPathElements:   make([][2]types.MerklePath, n),
		AccountPathElements: make([][2]types.MerklePath, n),
		OrderRoots:          make([][2]types.F, n),
		OldAccountRoots:     make([]types.F, n),
		NewAccountRoots:     make([]types.F, n),
	}
	for i, tx := range bf.pending {
		block.TxsType[i] = tx.TxType
		block.Txs[i] = tx.Payload
		block.BalancePathElements[i] = [4]types.MerklePath{tx.BalancePath0, tx.BalancePath1, tx.BalancePath2, tx.BalancePath3}
		block.OrderPathElements[i] = [2]types.MerklePath{tx.OrderPath0, tx.OrderPath1}
		block.AccountPathElements[i] = [2]types.MerklePath{tx.AccountPath0, tx.AccountPath1}
		block.OrderRoots[i] = [2]types.F{tx.OrderRoot0, tx.OrderRoot1}
		block.OldAccountRoots[i] = tx.RootBefore
		block.NewAccountRoots[i] = tx.RootAfter
	}

	pubData := EncodeBlockPubData(block.TxsType, block.Txs, bf.cfg)
	block.TxDataHash = sha256.Sum256(pubData)

	bf.pending = bf.pending[:0]
	bf.nextBlockID++
	return block
}

// FlushWithNop pads an incomplete buffer with Nop transactions up to
// NTx and forges the resulting block (spec §4.G `flush_with_nop`,
// §5 "External shutdown ... triggers a flush_with_nop"). Returns nil
// if the buffer is already empty.
func (bf *BlockFormer) FlushWithNop() *types.L2Block {
	if len(bf.pending) == 0 {
		return nil
	}
	for len(bf.pending) < bf.nTx {
		bf.pending = append(bf.pending, bf.wg.Nop())
	}
	return bf.Forge()
}

// PendingLen reports how many transactions are currently buffered.
func (bf *BlockFormer) PendingLen() int {
	return len(bf.pending)
}

// NextBlockID reports the id the next forged block will carry.
func (bf *BlockFormer) NextBlockID() uint64 {
	return bf.nextBlockID
}

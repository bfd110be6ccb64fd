package state

import (
	"testing"

	"github.com/kysee/rollup-statekeeper/types"
	"github.com/stretchr/testify/require"
)

func newTestState() *GlobalState {
	return NewGlobalState(2, 3, 2, false)
}

func TestInitAccountOverflowsAboveHeight(t *testing.T) {
	gs := newTestState()
	require.NoError(t, gs.InitAccount(3, 0)) // 2^2 - 1 == 3, last valid id
	require.ErrorIs(t, gs.InitAccount(4, 0), ErrAccountOverflow)
}

func TestInitAccountIsIdempotent(t *testing.T) {
	gs := newTestState()
	require.NoError(t, gs.InitAccount(0, 0))
	root1 := gs.Root()
	require.NoError(t, gs.InitAccount(0, 0))
	require.True(t, types.Eq(root1, gs.Root()))
}

func TestSetAccountL2AddrRefreshesRoot(t *testing.T) {
	gs := newTestState()
	require.NoError(t, gs.InitAccount(0, 0))
	before := gs.Root()
	gs.SetAccountL2Addr(0, types.OneF(), types.U32ToF(7), types.U32ToF(8))
	require.False(t, types.Eq(before, gs.Root()))
	require.True(t, gs.HasAccount(0))
}

func TestSetTokenBalanceRoundTrip(t *testing.T) {
	gs := newTestState()
	require.NoError(t, gs.InitAccount(0, 0))
	gs.SetTokenBalance(0, 1, types.U32ToF(500))
	require.True(t, types.Eq(gs.GetTokenBalance(0, 1), types.U32ToF(500)))
	require.True(t, types.IsZero(gs.GetTokenBalance(0, 0)))
}

func TestGetTokenBalanceOfMissingAccountIsZero(t *testing.T) {
	gs := newTestState()
	require.True(t, types.IsZero(gs.GetTokenBalance(99, 0)))
}

func TestFindOrInsertOrderReusesExistingSlot(t *testing.T) {
	gs := newTestState()
	require.NoError(t, gs.InitAccount(0, 0))

	order := Order{OrderID: 42, TokenSell: 0, TokenBuy: 1, TotalSell: types.U32ToF(10), TotalBuy: types.U32ToF(20)}
	pos1, _ := gs.FindOrInsertOrder(0, order)

	pos2, prior := gs.FindOrInsertOrder(0, order)
	require.Equal(t, pos1, pos2)
	require.True(t, types.Eq(prior.Hash(), order.Hash()))
}

func TestFindOrInsertOrderAllocatesNextEmptyOrFilledSlot(t *testing.T) {
	gs := newTestState()
	require.NoError(t, gs.InitAccount(0, 5)) // H_ord = 3, start allocating at slot 5

	order := Order{OrderID: 1, TotalSell: types.U32ToF(1), TotalBuy: types.U32ToF(1)}
	pos, priorOccupant := gs.FindOrInsertOrder(0, order)
	require.Equal(t, uint32(5), pos)
	require.True(t, priorOccupant.IsEmpty())
}

func TestOrderSlotAllocatorPanicsWhenAllSlotsLiveAndUnfilled(t *testing.T) {
	gs := newTestState() // H_ord = 3 -> 8 slots
	require.NoError(t, gs.InitAccount(0, 0))

	// Fill 7 slots; the 8th allocation below takes the last free slot and
	// the allocator then finds no empty-or-filled slot to advance to.
	for i := uint32(0); i < 7; i++ {
		order := Order{OrderID: i + 1, TotalSell: types.U32ToF(100), TotalBuy: types.U32ToF(100)}
		gs.FindOrInsertOrder(0, order)
	}

	require.Panics(t, func() {
		gs.FindOrInsertOrder(0, Order{OrderID: 999, TotalSell: types.U32ToF(1), TotalBuy: types.U32ToF(1)})
	})
}

func TestBatchUpdateRefreshesAccountTreeOncePerAccount(t *testing.T) {
	gs := newTestState()
	require.NoError(t, gs.InitAccount(0, 0))
	require.NoError(t, gs.InitAccount(1, 0))

	gs.BatchUpdate([]AccountUpdate{
		{AccountID: 0, Balances: []BalanceSet{{TokenID: 0, Value: types.U32ToF(10)}}},
		{AccountID: 1, Balances: []BalanceSet{{TokenID: 0, Value: types.U32ToF(20)}}},
	}, false)

	require.True(t, types.Eq(gs.GetTokenBalance(0, 0), types.U32ToF(10)))
	require.True(t, types.Eq(gs.GetTokenBalance(1, 0), types.U32ToF(20)))
	require.True(t, types.Eq(gs.accountTree.GetLeaf(0), gs.accounts[0].Hash()))
	require.True(t, types.Eq(gs.accountTree.GetLeaf(1), gs.accounts[1].Hash()))
}

func TestBatchUpdateParallelMatchesSequential(t *testing.T) {
	seq := newTestState()
	par := newTestState()
	for _, gs := range []*GlobalState{seq, par} {
		require.NoError(t, gs.InitAccount(0, 0))
		require.NoError(t, gs.InitAccount(1, 0))
		require.NoError(t, gs.InitAccount(2, 0))
		require.NoError(t, gs.InitAccount(3, 0))
	}

	updates := func() []AccountUpdate {
		return []AccountUpdate{
			{AccountID: 0, Balances: []BalanceSet{{TokenID: 0, Value: types.U32ToF(1)}}},
			{AccountID: 1, Balances: []BalanceSet{{TokenID: 1, Value: types.U32ToF(2)}}},
			{AccountID: 2, Balances: []BalanceSet{{TokenID: 0, Value: types.U32ToF(3)}}},
			{AccountID: 3, Balances: []BalanceSet{{TokenID: 1, Value: types.U32ToF(4)}}},
		}
	}

	seq.BatchUpdate(updates(), false)
	par.BatchUpdate(updates(), true)

	require.True(t, types.Eq(seq.Root(), par.Root()))
}

func TestAccountProofFoldsToRoot(t *testing.T) {
	gs := newTestState()
	require.NoError(t, gs.InitAccount(0, 0))
	gs.SetAccountL2Addr(0, types.OneF(), types.U32ToF(11), types.U32ToF(22))

	proof := gs.AccountProof(0)
	require.True(t, types.Eq(proof.Leaf, gs.accounts[0].Hash()))
	require.True(t, types.Eq(proof.Root, gs.Root()))
}

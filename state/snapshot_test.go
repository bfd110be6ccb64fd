package state

import (
	"testing"

	"github.com/kysee/rollup-statekeeper/types"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTripPreservesRootAndBalances(t *testing.T) {
	gs := newTestState()
	wg := NewWitnessGenerator(gs, types.DefaultSignatureVerifier)
	wg.Deposit(types.DepositTx{AccountID: 0, TokenID: 0, Amount: types.U32ToF(1000),
		L2Key: &types.L2Key{Ay: types.U32ToF(1), EthAddr: types.U32ToF(1)}})
	wg.Transfer(types.TransferTx{From: 0, To: 1, TokenID: 0, Amount: types.U32ToF(300),
		L2Key: &types.L2Key{Ay: types.U32ToF(2), EthAddr: types.U32ToF(2)}})
	order := Order{OrderID: 7, TotalSell: types.U32ToF(1), TotalBuy: types.U32ToF(2)}
	gs.FindOrInsertOrder(0, order)

	snap := gs.Snapshot()
	restored := RestoreGlobalState(snap)

	require.True(t, types.Eq(gs.Root(), restored.Root()))
	require.True(t, types.Eq(gs.GetTokenBalance(0, 0), restored.GetTokenBalance(0, 0)))
	require.True(t, types.Eq(gs.GetTokenBalance(1, 0), restored.GetTokenBalance(1, 0)))

	pos, prior := restored.FindOrInsertOrder(0, order)
	require.True(t, types.Eq(prior.Hash(), order.Hash()))

	origPos, _ := gs.FindOrInsertOrder(0, order)
	require.Equal(t, origPos, pos)
}

func TestSnapshotRoundTripPreservesAllocatorPosition(t *testing.T) {
	gs := newTestState()
	require.NoError(t, gs.InitAccount(0, 5))

	restored := RestoreGlobalState(gs.Snapshot())
	order := Order{OrderID: 1, TotalSell: types.U32ToF(1), TotalBuy: types.U32ToF(1)}
	pos, _ := restored.FindOrInsertOrder(0, order)
	require.Equal(t, uint32(5), pos)
}

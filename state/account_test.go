package state

import (
	"testing"

	"github.com/kysee/rollup-statekeeper/types"
	"github.com/stretchr/testify/require"
)

func TestOrderEmptyAndFilled(t *testing.T) {
	o := EmptyOrder()
	require.True(t, o.IsEmpty())
	require.True(t, o.IsEmptyOrFilled())
	require.False(t, o.IsFilled())

	o.TotalBuy = types.U32ToF(100)
	o.TotalSell = types.U32ToF(100)
	require.False(t, o.IsEmpty())
	require.False(t, o.IsFilled())

	o.FilledBuy = types.U32ToF(100)
	require.True(t, o.IsFilled())
	require.True(t, o.IsEmptyOrFilled())
}

func TestOrderHashIsDeterministicAndPositional(t *testing.T) {
	a := Order{OrderID: 1, TokenBuy: 2, TokenSell: 3, TotalBuy: types.U32ToF(10), TotalSell: types.U32ToF(20)}
	b := Order{OrderID: 1, TokenBuy: 2, TokenSell: 3, TotalBuy: types.U32ToF(10), TotalSell: types.U32ToF(20)}
	require.True(t, types.Eq(a.Hash(), b.Hash()))

	c := Order{OrderID: 1, TokenBuy: 3, TokenSell: 2, TotalBuy: types.U32ToF(10), TotalSell: types.U32ToF(20)}
	require.False(t, types.Eq(a.Hash(), c.Hash()), "swapping token_buy/token_sell must change the hash")
}

func TestAccountStateEmptyIffAyZero(t *testing.T) {
	acc := EmptyAccountState(types.ZeroF(), types.ZeroF())
	require.True(t, acc.IsEmpty())

	acc.Ay = types.U32ToF(1)
	require.False(t, acc.IsEmpty())
}

func TestAccountStateHashChangesWithSubRoots(t *testing.T) {
	acc1 := AccountState{BalanceRoot: types.U32ToF(1), OrderRoot: types.U32ToF(2)}
	acc2 := AccountState{BalanceRoot: types.U32ToF(3), OrderRoot: types.U32ToF(2)}
	require.False(t, types.Eq(acc1.Hash(), acc2.Hash()))
}

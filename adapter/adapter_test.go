package adapter

import (
	"os"
	"testing"

	"github.com/kysee/rollup-statekeeper/state"
	"github.com/kysee/rollup-statekeeper/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestAdapter() (*state.GlobalState, *Adapter) {
	gs := state.NewGlobalState(2, 3, 2, false)
	wg := state.NewWitnessGenerator(gs, types.DefaultSignatureVerifier)
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	return gs, New(wg, log)
}

func registerAccount(a *Adapter, accountID uint32) {
	a.ApplyUserRegistration(UserRegistrationEvent{
		AccountID: accountID,
		Sign:      types.ZeroF(),
		Ay:        types.U32ToF(accountID + 100),
		EthAddr:   types.U32ToF(accountID + 200),
	})
}

func TestApplyUserRegistrationSetsL2Key(t *testing.T) {
	gs, a := newTestAdapter()
	registerAccount(a, 0)
	require.True(t, gs.HasAccount(0))
}

func TestApplyDepositCreditsBalanceAndWarnsOnMismatchOnly(t *testing.T) {
	gs, a := newTestAdapter()
	registerAccount(a, 0)

	a.ApplyDeposit(DepositEvent{
		AccountID:    0,
		TokenID:      1,
		Amount:       types.U32ToF(500),
		PriorBalance: types.ZeroF(),
	})
	require.True(t, types.Eq(gs.GetTokenBalance(0, 1), types.U32ToF(500)))

	// A stale PriorBalance does not block the deposit from applying.
	a.ApplyDeposit(DepositEvent{
		AccountID:    0,
		TokenID:      1,
		Amount:       types.U32ToF(10),
		PriorBalance: types.U32ToF(999),
	})
	require.True(t, types.Eq(gs.GetTokenBalance(0, 1), types.U32ToF(510)))
}

func TestApplyOrderPutThenFinishCancelsWithoutTouchingBalances(t *testing.T) {
	gs, a := newTestAdapter()
	registerAccount(a, 0)
	a.ApplyDeposit(DepositEvent{AccountID: 0, TokenID: 1, Amount: types.U32ToF(500)})

	a.ApplyOrderPut(OrderPutEvent{AccountID: 0, OrderID: 1, TokenIDSell: 1, TokenIDBuy: 2,
		AmountSell: types.U32ToF(100), AmountBuy: types.U32ToF(50)})
	_, ok := a.takeOrder(0, 1)
	require.True(t, ok)

	a.ApplyOrderFinish(OrderFinishEvent{AccountID: 0, OrderID: 1})
	_, ok = a.takeOrder(0, 1)
	require.False(t, ok)
	require.True(t, types.Eq(gs.GetTokenBalance(0, 1), types.U32ToF(500)))
}

func TestApplyOrderFinishOnUnknownOrderIsANoop(t *testing.T) {
	_, a := newTestAdapter()
	registerAccount(a, 0)
	require.NotPanics(t, func() {
		a.ApplyOrderFinish(OrderFinishEvent{AccountID: 0, OrderID: 99})
	})
}

func TestApplyOrderExpiredBehavesLikeFinish(t *testing.T) {
	_, a := newTestAdapter()
	registerAccount(a, 0)
	a.ApplyOrderPut(OrderPutEvent{AccountID: 0, OrderID: 1, TokenIDSell: 1, TokenIDBuy: 2,
		AmountSell: types.U32ToF(10), AmountBuy: types.U32ToF(5)})

	a.ApplyOrderExpired(OrderExpiredEvent{AccountID: 0, OrderID: 1})
	_, ok := a.takeOrder(0, 1)
	require.False(t, ok)
}

func TestApplyTradeConsumesRememberedOrderDefinitions(t *testing.T) {
	gs, a := newTestAdapter()
	registerAccount(a, 0)
	registerAccount(a, 1)
	a.ApplyDeposit(DepositEvent{AccountID: 0, TokenID: 1, Amount: types.U32ToF(1000)})
	a.ApplyDeposit(DepositEvent{AccountID: 1, TokenID: 2, Amount: types.U32ToF(1000)})

	a.ApplyOrderPut(OrderPutEvent{AccountID: 0, OrderID: 1, TokenIDSell: 1, TokenIDBuy: 2,
		AmountSell: types.U32ToF(100), AmountBuy: types.U32ToF(200)})
	a.ApplyOrderPut(OrderPutEvent{AccountID: 1, OrderID: 1, TokenIDSell: 2, TokenIDBuy: 1,
		AmountSell: types.U32ToF(200), AmountBuy: types.U32ToF(100)})

	raw, err := a.ApplyTrade(TradeEvent{
		Order1AccountID: 0, Order2AccountID: 1,
		TokenID1to2: 1, TokenID2to1: 2,
		Amount1to2: types.U32ToF(50), Amount2to1: types.U32ToF(100),
		Order1ID: 1, Order2ID: 1,
		Order1IsNew: true, Order1: OrderPutEvent{TokenIDSell: 1, TokenIDBuy: 2, AmountSell: types.U32ToF(100), AmountBuy: types.U32ToF(200)},
		Order2IsNew: true, Order2: OrderPutEvent{TokenIDSell: 2, TokenIDBuy: 1, AmountSell: types.U32ToF(200), AmountBuy: types.U32ToF(100)},
	})
	require.NoError(t, err)
	require.Equal(t, types.TxSpotTrade, raw.TxType)
	require.True(t, types.Eq(gs.GetTokenBalance(0, 1), types.U32ToF(950)))
	require.True(t, types.Eq(gs.GetTokenBalance(0, 2), types.U32ToF(100)))
	require.True(t, types.Eq(gs.GetTokenBalance(1, 2), types.U32ToF(900)))
	require.True(t, types.Eq(gs.GetTokenBalance(1, 1), types.U32ToF(50)))

	_, ok := a.takeOrder(0, 1)
	require.False(t, ok)
}

func TestApplyTradeRejectsOrderMarkedKnownButAbsentFromState(t *testing.T) {
	_, a := newTestAdapter()
	registerAccount(a, 0)
	registerAccount(a, 1)

	_, err := a.ApplyTrade(TradeEvent{
		Order1AccountID: 0, Order2AccountID: 1,
		TokenID1to2: 1, TokenID2to1: 2,
		Amount1to2: types.U32ToF(1), Amount2to1: types.U32ToF(1),
		Order1ID: 5, Order2ID: 6,
		Order1IsNew: false,
		Order2IsNew: false,
	})
	require.Error(t, err)
}

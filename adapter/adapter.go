package adapter

import (
	"fmt"

	"github.com/kysee/rollup-statekeeper/state"
	"github.com/kysee/rollup-statekeeper/types"
	"github.com/rs/zerolog"
)

// Adapter turns exchange-engine events into RawTx values by driving a
// state.WitnessGenerator, implementing spec §4.I's per-event-type
// rules. It is the only component that remembers PUT/UPDATE order
// definitions between the time an order is placed and the time it
// first trades or is cancelled — the state engine itself only learns
// of an order at first trade (spec §4.F "Full spot trade": "If a
// sub-order is provided, it must be new").
type Adapter struct {
	wg  *state.WitnessGenerator
	log zerolog.Logger

	// resting holds orders the engine has told us about via PUT/UPDATE
	// but that have not yet traded, keyed by (accountID, orderID).
	resting map[uint32]map[uint32]OrderPutEvent
}

// New builds an adapter over wg, logging through log.
func New(wg *state.WitnessGenerator, log zerolog.Logger) *Adapter {
	return &Adapter{
		wg:      wg,
		log:     log,
		resting: make(map[uint32]map[uint32]OrderPutEvent),
	}
}

func (a *Adapter) rememberOrder(ev OrderPutEvent) {
	byAccount, ok := a.resting[ev.AccountID]
	if !ok {
		byAccount = make(map[uint32]OrderPutEvent)
		a.resting[ev.AccountID] = byAccount
	}
	byAccount[ev.OrderID] = ev
}

func (a *Adapter) forgetOrder(accountID, orderID uint32) {
	if byAccount, ok := a.resting[accountID]; ok {
		delete(byAccount, orderID)
	}
}

func (a *Adapter) takeOrder(accountID, orderID uint32) (OrderPutEvent, bool) {
	byAccount, ok := a.resting[accountID]
	if !ok {
		return OrderPutEvent{}, false
	}
	ev, ok := byAccount[orderID]
	return ev, ok
}

// ApplyUserRegistration registers a new account's L2 key as a
// deposit-to-new of zero amount in token 0 (spec §4.I "User
// registration -> deposit-to-new with zero amount").
func (a *Adapter) ApplyUserRegistration(ev UserRegistrationEvent) types.RawTx {
	return a.wg.Deposit(types.DepositTx{
		AccountID: ev.AccountID,
		TokenID:   0,
		Amount:    types.ZeroF(),
		L2Key:     &types.L2Key{Sign: ev.Sign, Ay: ev.Ay, EthAddr: ev.EthAddr},
	})
}

// ApplyDeposit applies a balance-change event (spec §4.I "Balance
// change (deposit) -> deposit to old"). A mismatch between ev's
// declared PriorBalance and the state's own prior balance is logged
// rather than treated as fatal: the rollup's own ledger is the
// authority on balances, and a stale upstream view is an operational
// anomaly to flag, not one of the fatal state-invariant violations
// spec §7 reserves for things like balance underflow or a double L2
// key (category 3, "fatal/panic") — this is a softer cross-check.
func (a *Adapter) ApplyDeposit(ev DepositEvent) types.RawTx {
	if a.wg.State().HasAccount(ev.AccountID) {
		known := a.wg.State().GetTokenBalance(ev.AccountID, ev.TokenID)
		if !types.Eq(known, ev.PriorBalance) {
			a.log.Warn().
				Uint32("account_id", ev.AccountID).
				Uint32("token_id", ev.TokenID).
				Msg("deposit prior-balance mismatch between event source and state")
		}
	}
	return a.wg.Deposit(types.DepositTx{
		AccountID: ev.AccountID,
		TokenID:   ev.TokenID,
		Amount:    ev.Amount,
		L2Key:     ev.L2Key,
	})
}

// ApplyOrderPut remembers ev locally; it mutates no state (spec §4.I
// "Order PUT -> remembered locally; no state mutation yet").
func (a *Adapter) ApplyOrderPut(ev OrderPutEvent) {
	a.rememberOrder(ev)
}

// ApplyOrderUpdate overwrites a previously remembered order the same
// way a PUT would, per spec §6's grouping of PUT/UPDATE/FINISH/EXPIRED
// as one family of order events.
func (a *Adapter) ApplyOrderUpdate(ev OrderUpdateEvent) {
	a.rememberOrder(OrderPutEvent(ev))
}

// ApplyOrderFinish drops any remembered PUT/UPDATE for the order and
// cancels it in state if the state still maps it to a slot (a filled
// order that has not yet been displaced from its slot is cancelled
// too); otherwise the state is left unchanged (spec §4.I "Order
// FINISH -> cancel order if known; otherwise ignore").
func (a *Adapter) ApplyOrderFinish(ev OrderFinishEvent) {
	a.forgetOrder(ev.AccountID, ev.OrderID)
	a.wg.State().CancelOrder(ev.AccountID, ev.OrderID)
}

// ApplyOrderExpired is handled identically to ApplyOrderFinish (spec
// §4.I does not distinguish FINISH from EXPIRED's effect on state).
func (a *Adapter) ApplyOrderExpired(ev OrderExpiredEvent) {
	a.ApplyOrderFinish(OrderFinishEvent(ev))
}

// ApplyTrade executes a matched trade (spec §4.I "Trade ->
// full-spot-trade, optionally with signature verification of each
// order against the stored public key before apply"). Each side's
// order is supplied fresh only when new, its definition taken from a
// remembered PUT/UPDATE or else from the event itself; an order already
// known to state (from an earlier trade or a PlaceOrder) is referenced
// by id alone, mirroring resolveOrder's own new-vs-known contract. An
// order marked known that state has no record of is returned as an
// error; a failed signature check panics.
func (a *Adapter) ApplyTrade(ev TradeEvent) (types.RawTx, error) {
	maker, err := a.resolveTradeOrder(ev.Order1AccountID, ev.Order1ID, ev.Order1IsNew, ev.Order1)
	if err != nil {
		return types.RawTx{}, err
	}
	taker, err := a.resolveTradeOrder(ev.Order2AccountID, ev.Order2ID, ev.Order2IsNew, ev.Order2)
	if err != nil {
		return types.RawTx{}, err
	}

	if ev.VerifySignatures {
		if err := a.verifyOrderSignature(ev.Order1AccountID, maker); err != nil {
			panic(fmt.Sprintf("trade: maker order %d: %v", ev.Order1ID, err))
		}
		if err := a.verifyOrderSignature(ev.Order2AccountID, taker); err != nil {
			panic(fmt.Sprintf("trade: taker order %d: %v", ev.Order2ID, err))
		}
	}

	raw := a.wg.SpotTrade(types.SpotTradeTx{
		Order1AccountID: ev.Order1AccountID,
		Order2AccountID: ev.Order2AccountID,
		TokenID1to2:     ev.TokenID1to2,
		TokenID2to1:     ev.TokenID2to1,
		Amount1to2:      ev.Amount1to2,
		Amount2to1:      ev.Amount2to1,
		Order1ID:        ev.Order1ID,
		Order2ID:        ev.Order2ID,
		MakerOrder:      maker,
		TakerOrder:      taker,
	})

	a.forgetOrder(ev.Order1AccountID, ev.Order1ID)
	a.forgetOrder(ev.Order2AccountID, ev.Order2ID)
	return raw, nil
}

// resolveTradeOrder builds the *types.SpotTradeOrder a trade's side
// needs: nil when the order is already known to state, or a full
// definition sourced from the adapter's remembered PUT/UPDATE (falling
// back to the event's own inline definition) when it is new.
func (a *Adapter) resolveTradeOrder(accountID, orderID uint32, isNew bool, inline OrderPutEvent) (*types.SpotTradeOrder, error) {
	if !isNew {
		if !a.wg.State().OrderIsKnown(accountID, orderID) {
			return nil, fmt.Errorf("trade: order %d for account %d marked known but state has no record of it", orderID, accountID)
		}
		return nil, nil
	}
	def := inline
	if remembered, ok := a.takeOrder(accountID, orderID); ok {
		def = remembered
	}
	return &types.SpotTradeOrder{
		TokenIDSell: def.TokenIDSell,
		TokenIDBuy:  def.TokenIDBuy,
		AmountSell:  def.AmountSell,
		AmountBuy:   def.AmountBuy,
		Sig:         def.Sig,
	}, nil
}

func (a *Adapter) verifyOrderSignature(accountID uint32, def *types.SpotTradeOrder) error {
	if def == nil {
		// Order already resolved from state; its signature was checked
		// (or deliberately not) when it was first placed.
		return nil
	}
	acct := a.wg.State().GetAccount(accountID)
	msgHash := a.wg.MessageHash(types.TxPlaceOrder,
		types.U32ToF(accountID), types.U32ToF(def.TokenIDSell), types.U32ToF(def.TokenIDBuy),
		def.AmountSell, def.AmountBuy)
	ok, err := a.wg.CheckSig(acct.Ay, msgHash, def.Sig)
	if err != nil {
		return fmt.Errorf("signature check: %w", err)
	}
	if !ok {
		return fmt.Errorf("signature check failed")
	}
	return nil
}

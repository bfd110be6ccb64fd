package state

import (
	"fmt"

	"github.com/kysee/rollup-statekeeper/types"
)

// WitnessGenerator is the façade of spec §4.F: given a typed
// transaction it captures the pre-state Merkle proofs, mutates the
// global state, captures the post-state proofs, and assembles a
// fixed-width payload — grounded on
// original_source/src/state/global_state.rs's witness-producing
// methods (`deposit`, `transfer`, `withdraw`, `spot_trade`, ...).
type WitnessGenerator struct {
	state    *GlobalState
	verifier types.SignatureVerifier
}

// NewWitnessGenerator builds a witness generator over state, using
// verifier for on-request signature checks (spec §4.F "Signature
// semantics" / `check_sig`).
func NewWitnessGenerator(state *GlobalState, verifier types.SignatureVerifier) *WitnessGenerator {
	return &WitnessGenerator{state: state, verifier: verifier}
}

// CheckSig verifies sig against ay and msgHash on request; it is never
// invoked implicitly by the apply methods below (spec §4.F: "the state
// engine does not verify but can verify on request").
func (w *WitnessGenerator) CheckSig(ay types.PublicKey, msgHash types.F, sig types.Signature) (bool, error) {
	return w.verifier.Verify(ay, msgHash, sig)
}

// State exposes the underlying global state so callers that sit above
// the witness generator (the message adapter's order bookkeeping) can
// make read-only queries without duplicating state.
func (w *WitnessGenerator) State() *GlobalState {
	return w.state
}

// MessageHash builds the domain-separated hash a tx-type's signature
// is taken over: H(tx_type, fields...) (spec §4.F "Signature
// semantics").
func (w *WitnessGenerator) MessageHash(txType types.TxType, fields ...types.F) types.F {
	inputs := make([]types.F, 0, len(fields)+1)
	inputs = append(inputs, types.U32ToF(uint32(txType)))
	inputs = append(inputs, fields...)
	return types.Hash(inputs...)
}

// Nop emits a trivial-proof witness that leaves the state unchanged,
// used to pad partial blocks (spec §4.F "Nop").
func (w *WitnessGenerator) Nop() types.RawTx {
	root := w.state.Root()
	balancePath := w.state.TrivialBalancePathElements()
	orderPath := w.state.TrivialOrderPathElements()
	accountProof := w.state.AccountProof(0)

	return types.RawTx{
		TxType:       types.TxNop,
		BalancePath0: balancePath,
		BalancePath1: balancePath,
		BalancePath2: balancePath,
		BalancePath3: balancePath,
		OrderPath0:   orderPath,
		OrderPath1:   orderPath,
		OrderRoot0:   w.state.defaultOrderRoot,
		OrderRoot1:   w.state.defaultOrderRoot,
		AccountPath0: accountProof.PathElements,
		AccountPath1: accountProof.PathElements,
		RootBefore:   root,
		RootAfter:    root,
	}
}

// Deposit applies a balance-change event (spec §4.F "Deposit"). The
// account is created implicitly if it does not yet exist (spec §3
// "Lifecycle"). If tx.L2Key is set the account must currently be
// empty (deposit-to-new); otherwise it must already carry an L2 key.
func (w *WitnessGenerator) Deposit(tx types.DepositTx) types.RawTx {
	rootBefore := w.state.Root()

	if !w.state.accountExists(tx.AccountID) {
		if err := w.state.InitAccount(tx.AccountID, 0); err != nil {
			panic(fmt.Sprintf("deposit: %v", err))
		}
	}

	dstIsNew := tx.L2Key != nil
	if dstIsNew {
		if w.state.HasAccount(tx.AccountID) {
			panic(fmt.Sprintf("deposit: account %d already has an L2 key", tx.AccountID))
		}
	} else if !w.state.HasAccount(tx.AccountID) {
		panic(fmt.Sprintf("deposit: account %d has no L2 key", tx.AccountID))
	}

	acctBefore := w.state.GetAccount(tx.AccountID)
	balanceBefore := w.state.BalanceProof(tx.AccountID, tx.TokenID)
	accountProofBefore := w.state.AccountProof(tx.AccountID)

	oldBalance := balanceBefore.Leaf
	newBalance := types.Add(oldBalance, tx.Amount)

	if dstIsNew {
		w.state.SetAccountL2Addr(tx.AccountID, tx.L2Key.Sign, tx.L2Key.Ay, tx.L2Key.EthAddr)
	}
	w.state.SetTokenBalance(tx.AccountID, tx.TokenID, newBalance)

	acctAfter := w.state.GetAccount(tx.AccountID)
	balanceAfter := w.state.BalanceProof(tx.AccountID, tx.TokenID)
	accountProofAfter := w.state.AccountProof(tx.AccountID)

	var payload types.Payload
	payload[types.IdxTokenID] = types.U32ToF(tx.TokenID)
	payload[types.IdxAmount] = tx.Amount
	payload[types.IdxAccountID1] = types.U32ToF(tx.AccountID)
	payload[types.IdxAccountID2] = types.U32ToF(tx.AccountID)
	payload[types.IdxBalance1] = oldBalance
	payload[types.IdxBalance2] = newBalance
	payload[types.IdxNonce1] = acctBefore.Nonce
	payload[types.IdxNonce2] = acctAfter.Nonce
	payload[types.IdxEthAddr1] = acctBefore.EthAddr
	payload[types.IdxEthAddr2] = acctAfter.EthAddr
	payload[types.IdxSign1] = acctBefore.Sign
	payload[types.IdxSign2] = acctAfter.Sign
	payload[types.IdxAy1] = acctBefore.Ay
	payload[types.IdxAy2] = acctAfter.Ay
	if dstIsNew {
		payload[types.IdxDstIsNew] = types.OneF()
	}

	trivialOrder := w.state.TrivialOrderPathElements()

	return types.RawTx{
		TxType:       types.TxDeposit,
		Payload:      payload,
		BalancePath0: balanceBefore.PathElements,
		BalancePath1: balanceAfter.PathElements,
		BalancePath2: balanceBefore.PathElements,
		BalancePath3: balanceAfter.PathElements,
		OrderPath0:   trivialOrder,
		OrderPath1:   trivialOrder,
		OrderRoot0:   acctAfter.OrderRoot,
		OrderRoot1:   acctAfter.OrderRoot,
		AccountPath0: accountProofBefore.PathElements,
		AccountPath1: accountProofAfter.PathElements,
		RootBefore:   rootBefore,
		RootAfter:    w.state.Root(),
	}
}

// Transfer moves a balance between two accounts (spec §4.F
// "Transfer"). `from` must already exist with sufficient balance
// (fatal underflow otherwise); `to` may be created via tx.L2Key.
func (w *WitnessGenerator) Transfer(tx types.TransferTx) types.RawTx {
	rootBefore := w.state.Root()

	if tx.From == tx.To {
		panic(fmt.Sprintf("transfer: account %d cannot transfer to itself", tx.From))
	}
	if !w.state.accountExists(tx.From) || !w.state.HasAccount(tx.From) {
		panic(fmt.Sprintf("transfer: source account %d has no L2 key", tx.From))
	}
	if !w.state.accountExists(tx.To) {
		if err := w.state.InitAccount(tx.To, 0); err != nil {
			panic(fmt.Sprintf("transfer: %v", err))
		}
	}
	dstIsNew := tx.L2Key != nil
	if dstIsNew {
		if w.state.HasAccount(tx.To) {
			panic(fmt.Sprintf("transfer: destination account %d already has an L2 key", tx.To))
		}
	} else if !w.state.HasAccount(tx.To) {
		panic(fmt.Sprintf("transfer: destination account %d has no L2 key", tx.To))
	}

	fromBefore := w.state.GetAccount(tx.From)
	fromBalanceBefore := w.state.BalanceProof(tx.From, tx.TokenID)
	toBalanceBefore := w.state.BalanceProof(tx.To, tx.TokenID)

	oldFromBalance := fromBalanceBefore.Leaf
	if types.FToBig(oldFromBalance).Cmp(types.FToBig(tx.Amount)) < 0 {
		panic(fmt.Sprintf("transfer: account %d balance underflow (has %s, needs %s)",
			tx.From, types.FToDecimalString(oldFromBalance), types.FToDecimalString(tx.Amount)))
	}
	newFromBalance := types.Sub(oldFromBalance, tx.Amount)
	oldToBalance := toBalanceBefore.Leaf
	newToBalance := types.Add(oldToBalance, tx.Amount)
	newFromNonce := types.Add(fromBefore.Nonce, types.OneF())

	if dstIsNew {
		w.state.SetAccountL2Addr(tx.To, tx.L2Key.Sign, tx.L2Key.Ay, tx.L2Key.EthAddr)
	}

	w.state.BatchUpdate([]AccountUpdate{
		{
			AccountID: tx.From,
			Balances:  []BalanceSet{{TokenID: tx.TokenID, Value: newFromBalance}},
			NewNonce:  &newFromNonce,
		},
		{
			AccountID: tx.To,
			Balances:  []BalanceSet{{TokenID: tx.TokenID, Value: newToBalance}},
		},
	}, false)

	fromBalanceAfter := w.state.BalanceProof(tx.From, tx.TokenID)
	fromAccountProof := w.state.AccountProof(tx.From)
	fromAfter := w.state.GetAccount(tx.From)

	// Per spec §4.F "Transfer": the `to` proof, like the `from` proof
	// above, is captured after the batch update, so each side's
	// pre-update proof is paired with its post-update one.
	toBalanceAfter := w.state.BalanceProof(tx.To, tx.TokenID)
	toAccountProof := w.state.AccountProof(tx.To)
	toAfter := w.state.GetAccount(tx.To)

	var payload types.Payload
	payload[types.IdxTokenID] = types.U32ToF(tx.TokenID)
	payload[types.IdxAmount] = tx.Amount
	payload[types.IdxAccountID1] = types.U32ToF(tx.From)
	payload[types.IdxAccountID2] = types.U32ToF(tx.To)
	payload[types.IdxBalance1] = oldFromBalance
	payload[types.IdxBalance2] = newFromBalance
	payload[types.IdxBalance3] = oldToBalance
	payload[types.IdxBalance4] = newToBalance
	payload[types.IdxNonce1] = newFromNonce
	payload[types.IdxNonce2] = toAfter.Nonce
	payload[types.IdxEthAddr1] = fromAfter.EthAddr
	payload[types.IdxEthAddr2] = toAfter.EthAddr
	payload[types.IdxSign1] = fromAfter.Sign
	payload[types.IdxSign2] = toAfter.Sign
	payload[types.IdxAy1] = fromAfter.Ay
	payload[types.IdxAy2] = toAfter.Ay
	payload[types.IdxSigL2Hash] = tx.Sig.Hash
	payload[types.IdxS] = tx.Sig.S
	payload[types.IdxR8x] = tx.Sig.R8x
	payload[types.IdxR8y] = tx.Sig.R8y
	payload[types.IdxEnableSigCheck1] = types.OneF()
	if dstIsNew {
		payload[types.IdxDstIsNew] = types.OneF()
	}

	trivialOrder := w.state.TrivialOrderPathElements()

	return types.RawTx{
		TxType:       types.TxTransfer,
		Payload:      payload,
		BalancePath0: fromBalanceBefore.PathElements,
		BalancePath1: fromBalanceAfter.PathElements,
		BalancePath2: toBalanceBefore.PathElements,
		BalancePath3: toBalanceAfter.PathElements,
		OrderPath0:   trivialOrder,
		OrderPath1:   trivialOrder,
		OrderRoot0:   fromAfter.OrderRoot,
		OrderRoot1:   toAfter.OrderRoot,
		AccountPath0: fromAccountProof.PathElements,
		AccountPath1: toAccountProof.PathElements,
		RootBefore:   rootBefore,
		RootAfter:    w.state.Root(),
	}
}

// Withdraw removes a balance with no L2 recipient (spec §4.F
// "Withdraw"). The account must exist with sufficient balance (fatal
// underflow otherwise); its nonce increments.
func (w *WitnessGenerator) Withdraw(tx types.WithdrawTx) types.RawTx {
	rootBefore := w.state.Root()

	if !w.state.accountExists(tx.AccountID) || !w.state.HasAccount(tx.AccountID) {
		panic(fmt.Sprintf("withdraw: account %d has no L2 key", tx.AccountID))
	}

	acctBefore := w.state.GetAccount(tx.AccountID)
	balanceBefore := w.state.BalanceProof(tx.AccountID, tx.TokenID)

	oldBalance := balanceBefore.Leaf
	if types.FToBig(oldBalance).Cmp(types.FToBig(tx.Amount)) < 0 {
		panic(fmt.Sprintf("withdraw: account %d balance underflow (has %s, needs %s)",
			tx.AccountID, types.FToDecimalString(oldBalance), types.FToDecimalString(tx.Amount)))
	}
	newBalance := types.Sub(oldBalance, tx.Amount)
	newNonce := types.Add(acctBefore.Nonce, types.OneF())

	w.state.BatchUpdate([]AccountUpdate{
		{
			AccountID: tx.AccountID,
			Balances:  []BalanceSet{{TokenID: tx.TokenID, Value: newBalance}},
			NewNonce:  &newNonce,
		},
	}, false)

	balanceAfter := w.state.BalanceProof(tx.AccountID, tx.TokenID)
	accountProof := w.state.AccountProof(tx.AccountID)
	acctAfter := w.state.GetAccount(tx.AccountID)

	var payload types.Payload
	payload[types.IdxTokenID] = types.U32ToF(tx.TokenID)
	payload[types.IdxAmount] = tx.Amount
	payload[types.IdxAccountID1] = types.U32ToF(tx.AccountID)
	payload[types.IdxAccountID2] = types.U32ToF(tx.AccountID)
	payload[types.IdxBalance1] = oldBalance
	payload[types.IdxBalance2] = newBalance
	payload[types.IdxNonce1] = acctBefore.Nonce
	payload[types.IdxNonce2] = newNonce
	payload[types.IdxEthAddr1] = acctBefore.EthAddr
	payload[types.IdxEthAddr2] = acctAfter.EthAddr
	payload[types.IdxSign1] = acctBefore.Sign
	payload[types.IdxSign2] = acctAfter.Sign
	payload[types.IdxAy1] = acctBefore.Ay
	payload[types.IdxAy2] = acctAfter.Ay
	payload[types.IdxSigL2Hash] = tx.Sig.Hash
	payload[types.IdxS] = tx.Sig.S
	payload[types.IdxR8x] = tx.Sig.R8x
	payload[types.IdxR8y] = tx.Sig.R8y
	payload[types.IdxEnableSigCheck1] = types.OneF()

	trivialOrder := w.state.TrivialOrderPathElements()

	return types.RawTx{
		TxType:       types.TxWithdraw,
		Payload:      payload,
		BalancePath0: balanceBefore.PathElements,
		BalancePath1: balanceAfter.PathElements,
		BalancePath2: balanceBefore.PathElements,
		BalancePath3: balanceAfter.PathElements,
		OrderPath0:   trivialOrder,
		OrderPath1:   trivialOrder,
		OrderRoot0:   acctAfter.OrderRoot,
		OrderRoot1:   acctAfter.OrderRoot,
		AccountPath0: accountProof.PathElements,
		AccountPath1: accountProof.PathElements,
		RootBefore:   rootBefore,
		RootAfter:    w.state.Root(),
	}
}

// PlaceOrder opens a new resting order for an account, without moving
// any balance — placing an order only reserves intent, funds move when
// a spot trade executes against it (spec §9 "Supplemented features").
// The account must already hold sufficient balance in the sell token.
func (w *WitnessGenerator) PlaceOrder(tx types.PlaceOrderTx) types.RawTx {
	rootBefore := w.state.Root()

	if !w.state.HasAccount(tx.AccountID) {
		panic(fmt.Sprintf("place order: account %d has no L2 key", tx.AccountID))
	}
	sellBalance := w.state.GetTokenBalance(tx.AccountID, tx.TokenIDSell)
	if types.FToBig(sellBalance).Cmp(types.FToBig(tx.AmountSell)) < 0 {
		panic(fmt.Sprintf("place order: account %d balance underflow in token %d", tx.AccountID, tx.TokenIDSell))
	}

	orderID := w.state.NextOrderID(tx.AccountID)
	pos, alreadyMapped := w.state.LocateOrderSlot(tx.AccountID, orderID)
	if alreadyMapped {
		panic(fmt.Sprintf("place order: freshly minted order id %d for account %d is already mapped", orderID, tx.AccountID))
	}

	acctBefore := w.state.GetAccount(tx.AccountID)
	orderProofBefore := w.state.OrderProof(tx.AccountID, pos)
	accountProofBefore := w.state.AccountProof(tx.AccountID)

	order := Order{
		OrderID:   orderID,
		TokenSell: tx.TokenIDSell,
		TokenBuy:  tx.TokenIDBuy,
		TotalSell: tx.AmountSell,
		TotalBuy:  tx.AmountBuy,
		Sig:       tx.Sig,
	}
	w.state.SetAccountOrder(tx.AccountID, pos, order)

	orderProofAfter := w.state.OrderProof(tx.AccountID, pos)
	accountProofAfter := w.state.AccountProof(tx.AccountID)
	acctAfter := w.state.GetAccount(tx.AccountID)

	var payload types.Payload
	payload[types.IdxAccountID1] = types.U32ToF(tx.AccountID)
	payload[types.IdxAccountID2] = types.U32ToF(tx.AccountID)
	payload[types.IdxTokenID] = types.U32ToF(tx.TokenIDSell)
	payload[types.IdxTokenID2] = types.U32ToF(tx.TokenIDBuy)
	payload[types.IdxAmount] = tx.AmountSell
	payload[types.IdxAmount2] = tx.AmountBuy
	payload[types.IdxOrder1ID] = types.U32ToF(orderID)
	payload[types.IdxOrder1Pos] = types.U32ToF(pos)
	payload[types.IdxOrder1AmountSell] = tx.AmountSell
	payload[types.IdxOrder1AmountBuy] = tx.AmountBuy
	payload[types.IdxSigL2Hash] = tx.Sig.Hash
	payload[types.IdxS] = tx.Sig.S
	payload[types.IdxR8x] = tx.Sig.R8x
	payload[types.IdxR8y] = tx.Sig.R8y
	payload[types.IdxEnableSigCheck1] = types.OneF()

	trivialBalance := w.state.BalanceProof(tx.AccountID, tx.TokenIDSell)

	return types.RawTx{
		TxType:       types.TxPlaceOrder,
		Payload:      payload,
		BalancePath0: trivialBalance.PathElements,
		BalancePath1: trivialBalance.PathElements,
		BalancePath2: trivialBalance.PathElements,
		BalancePath3: trivialBalance.PathElements,
		OrderPath0:   orderProofBefore.PathElements,
		OrderPath1:   orderProofAfter.PathElements,
		OrderRoot0:   acctBefore.OrderRoot,
		OrderRoot1:   acctAfter.OrderRoot,
		AccountPath0: accountProofBefore.PathElements,
		AccountPath1: accountProofAfter.PathElements,
		RootBefore:   rootBefore,
		RootAfter:    w.state.Root(),
	}
}

// resolveOrder determines the Order and slot a spot trade's side
// refers to: if orderID is already known to the account, it must NOT
// be supplied as new (def == nil required) and the existing order is
// returned; otherwise def must be supplied and a fresh zero-filled
// order is built from it (spec §4.F "Full spot trade": "If a sub-order
// is provided, it must be new ...; if omitted, the state must already
// know the order").
func (w *WitnessGenerator) resolveOrder(accountID, orderID uint32, def *types.SpotTradeOrder) (Order, uint32) {
	pos, alreadyMapped := w.state.LocateOrderSlot(accountID, orderID)
	if alreadyMapped {
		if def != nil {
			panic(fmt.Sprintf("spot trade: order %d for account %d already exists but was supplied as new", orderID, accountID))
		}
		return w.state.GetAccountOrder(accountID, pos), pos
	}
	if def == nil {
		panic(fmt.Sprintf("spot trade: order %d for account %d is unknown and was not supplied", orderID, accountID))
	}
	return Order{
		OrderID:   orderID,
		TokenSell: def.TokenIDSell,
		TokenBuy:  def.TokenIDBuy,
		TotalSell: def.AmountSell,
		TotalBuy:  def.AmountBuy,
		Sig:       def.Sig,
	}, pos
}

// SpotTrade executes a two-sided trade between two distinct, existing
// accounts (spec §4.F "Full spot trade"). TokenID1to2/Amount1to2 is the
// token/amount flowing from account 1 to account 2; TokenID2to1/
// Amount2to1 flows the other way. Both sell-side balances must cover
// the traded amount.
func (w *WitnessGenerator) SpotTrade(tx types.SpotTradeTx) types.RawTx {
	rootBefore := w.state.Root()

	if tx.Order1AccountID == tx.Order2AccountID {
		panic(fmt.Sprintf("spot trade: account %d cannot trade with itself", tx.Order1AccountID))
	}
	if !w.state.HasAccount(tx.Order1AccountID) {
		panic(fmt.Sprintf("spot trade: account %d has no L2 key", tx.Order1AccountID))
	}
	if !w.state.HasAccount(tx.Order2AccountID) {
		panic(fmt.Sprintf("spot trade: account %d has no L2 key", tx.Order2AccountID))
	}

	order1, pos1 := w.resolveOrder(tx.Order1AccountID, tx.Order1ID, tx.MakerOrder)
	order2, pos2 := w.resolveOrder(tx.Order2AccountID, tx.Order2ID, tx.TakerOrder)

	balanceProof1Before := w.state.BalanceProof(tx.Order1AccountID, tx.TokenID1to2)
	balanceProof2Before := w.state.BalanceProof(tx.Order2AccountID, tx.TokenID2to1)
	orderProof1Before := w.state.OrderProof(tx.Order1AccountID, pos1)
	orderProof2Before := w.state.OrderProof(tx.Order2AccountID, pos2)

	sellBalance1 := balanceProof1Before.Leaf
	if types.FToBig(sellBalance1).Cmp(types.FToBig(tx.Amount1to2)) < 0 {
		panic(fmt.Sprintf("spot trade: account %d balance underflow in token %d", tx.Order1AccountID, tx.TokenID1to2))
	}
	sellBalance2 := balanceProof2Before.Leaf
	if types.FToBig(sellBalance2).Cmp(types.FToBig(tx.Amount2to1)) < 0 {
		panic(fmt.Sprintf("spot trade: account %d balance underflow in token %d", tx.Order2AccountID, tx.TokenID2to1))
	}

	order1.FilledSell = types.Add(order1.FilledSell, tx.Amount1to2)
	order1.FilledBuy = types.Add(order1.FilledBuy, tx.Amount2to1)
	order2.FilledSell = types.Add(order2.FilledSell, tx.Amount2to1)
	order2.FilledBuy = types.Add(order2.FilledBuy, tx.Amount1to2)

	newBalance1Sell := types.Sub(sellBalance1, tx.Amount1to2)
	newBalance1Buy := types.Add(w.state.GetTokenBalance(tx.Order1AccountID, tx.TokenID2to1), tx.Amount2to1)
	newBalance2Sell := types.Sub(sellBalance2, tx.Amount2to1)
	newBalance2Buy := types.Add(w.state.GetTokenBalance(tx.Order2AccountID, tx.TokenID1to2), tx.Amount1to2)

	w.state.BatchUpdate([]AccountUpdate{
		{
			AccountID: tx.Order1AccountID,
			Balances: []BalanceSet{
				{TokenID: tx.TokenID1to2, Value: newBalance1Sell},
				{TokenID: tx.TokenID2to1, Value: newBalance1Buy},
			},
			Orders: []OrderSet{{Pos: pos1, Order: order1}},
		},
		{
			AccountID: tx.Order2AccountID,
			Balances: []BalanceSet{
				{TokenID: tx.TokenID2to1, Value: newBalance2Sell},
				{TokenID: tx.TokenID1to2, Value: newBalance2Buy},
			},
			Orders: []OrderSet{{Pos: pos2, Order: order2}},
		},
	}, true)

	balanceProof1After := w.state.BalanceProof(tx.Order1AccountID, tx.TokenID1to2)
	balanceProof2After := w.state.BalanceProof(tx.Order2AccountID, tx.TokenID2to1)
	orderProof1After := w.state.OrderProof(tx.Order1AccountID, pos1)
	orderProof2After := w.state.OrderProof(tx.Order2AccountID, pos2)
	accountProof1After := w.state.AccountProof(tx.Order1AccountID)
	accountProof2After := w.state.AccountProof(tx.Order2AccountID)
	acct1After := w.state.GetAccount(tx.Order1AccountID)
	acct2After := w.state.GetAccount(tx.Order2AccountID)

	_ = orderProof1Before
	_ = orderProof2Before

	var payload types.Payload
	payload[types.IdxAccountID1] = types.U32ToF(tx.Order1AccountID)
	payload[types.IdxAccountID2] = types.U32ToF(tx.Order2AccountID)
	payload[types.IdxTokenID] = types.U32ToF(tx.TokenID1to2)
	payload[types.IdxTokenID2] = types.U32ToF(tx.TokenID2to1)
	payload[types.IdxAmount] = tx.Amount1to2
	payload[types.IdxAmount2] = tx.Amount2to1
	payload[types.IdxBalance1] = sellBalance1
	payload[types.IdxBalance2] = newBalance1Sell
	payload[types.IdxBalance3] = sellBalance2
	payload[types.IdxBalance4] = newBalance2Sell
	payload[types.IdxOrder1ID] = types.U32ToF(order1.OrderID)
	payload[types.IdxOrder1Pos] = types.U32ToF(pos1)
	payload[types.IdxOrder1AmountSell] = order1.TotalSell
	payload[types.IdxOrder1AmountBuy] = order1.TotalBuy
	payload[types.IdxOrder1FilledSell] = order1.FilledSell
	payload[types.IdxOrder1FilledBuy] = order1.FilledBuy
	payload[types.IdxOrder2ID] = types.U32ToF(order2.OrderID)
	payload[types.IdxOrder2Pos] = types.U32ToF(pos2)
	payload[types.IdxOrder2AmountSell] = order2.TotalSell
	payload[types.IdxOrder2AmountBuy] = order2.TotalBuy
	payload[types.IdxOrder2FilledSell] = order2.FilledSell
	payload[types.IdxOrder2FilledBuy] = order2.FilledBuy
	payload[types.IdxEthAddr1] = acct1After.EthAddr
	payload[types.IdxEthAddr2] = acct2After.EthAddr
	payload[types.IdxAy1] = acct1After.Ay
	payload[types.IdxAy2] = acct2After.Ay

	return types.RawTx{
		TxType:       types.TxSpotTrade,
		Payload:      payload,
		BalancePath0: balanceProof1Before.PathElements,
		BalancePath1: balanceProof1After.PathElements,
		BalancePath2: balanceProof2Before.PathElements,
		BalancePath3: balanceProof2After.PathElements,
		OrderPath0:   orderProof1After.PathElements,
		OrderPath1:   orderProof2After.PathElements,
		OrderRoot0:   acct1After.OrderRoot,
		OrderRoot1:   acct2After.OrderRoot,
		AccountPath0: accountProof1After.PathElements,
		AccountPath1: accountProof2After.PathElements,
		RootBefore:   rootBefore,
		RootAfter:    w.state.Root(),
	}
}

// UserRegister sets an account's L2 key without moving a balance
// (spec §4.F "User / key registration"). The account is created
// implicitly if needed and must not already carry an L2 key.
func (w *WitnessGenerator) UserRegister(tx types.UserRegisterTx) types.RawTx {
	rootBefore := w.state.Root()

	if !w.state.accountExists(tx.AccountID) {
		if err := w.state.InitAccount(tx.AccountID, 0); err != nil {
			panic(fmt.Sprintf("user register: %v", err))
		}
	}
	if w.state.HasAccount(tx.AccountID) {
		panic(fmt.Sprintf("user register: account %d already has an L2 key", tx.AccountID))
	}

	acctBefore := w.state.GetAccount(tx.AccountID)
	accountProofBefore := w.state.AccountProof(tx.AccountID)

	w.state.SetAccountL2Addr(tx.AccountID, tx.Sign, tx.Ay, tx.EthAddr)

	acctAfter := w.state.GetAccount(tx.AccountID)
	accountProofAfter := w.state.AccountProof(tx.AccountID)
	balanceProof := w.state.BalanceProof(tx.AccountID, 0)

	var payload types.Payload
	payload[types.IdxAccountID1] = types.U32ToF(tx.AccountID)
	payload[types.IdxAccountID2] = types.U32ToF(tx.AccountID)
	payload[types.IdxSign1] = acctBefore.Sign
	payload[types.IdxSign2] = acctAfter.Sign
	payload[types.IdxAy1] = acctBefore.Ay
	payload[types.IdxAy2] = acctAfter.Ay
	payload[types.IdxEthAddr1] = acctBefore.EthAddr
	payload[types.IdxEthAddr2] = acctAfter.EthAddr
	payload[types.IdxDstIsNew] = types.OneF()

	trivialOrder := w.state.TrivialOrderPathElements()

	return types.RawTx{
		TxType:       types.TxUserRegister,
		Payload:      payload,
		BalancePath0: balanceProof.PathElements,
		BalancePath1: balanceProof.PathElements,
		BalancePath2: balanceProof.PathElements,
		BalancePath3: balanceProof.PathElements,
		OrderPath0:   trivialOrder,
		OrderPath1:   trivialOrder,
		OrderRoot0:   acctAfter.OrderRoot,
		OrderRoot1:   acctAfter.OrderRoot,
		AccountPath0: accountProofBefore.PathElements,
		AccountPath1: accountProofAfter.PathElements,
		RootBefore:   rootBefore,
		RootAfter:    w.state.Root(),
	}
}

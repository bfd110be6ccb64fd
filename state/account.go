package state

import "github.com/kysee/rollup-statekeeper/types"

// Order is the spot-order record of spec §3: an immutable conceptual
// identity (OrderID) plus mutable fill state, grounded on
// original_source/src/state/common.rs's `Order`.
type Order struct {
	OrderID    uint32
	TokenSell  uint32
	TokenBuy   uint32
	TotalSell  types.F
	TotalBuy   types.F
	FilledSell types.F
	FilledBuy  types.F
	Sig        types.Signature
}

// EmptyOrder is the default occupant of an order-tree slot.
func EmptyOrder() Order {
	return Order{}
}

// IsFilled reports whether the order has reached either side of its fill
// target (spec §3 "Filled when filled_buy >= total_buy OR filled_sell
// >= total_sell").
func (o Order) IsFilled() bool {
	return types.FToBig(o.FilledBuy).Cmp(types.FToBig(o.TotalBuy)) >= 0 ||
		types.FToBig(o.FilledSell).Cmp(types.FToBig(o.TotalSell)) >= 0
}

// IsEmpty reports whether the slot has never held a real order.
func (o Order) IsEmpty() bool {
	return types.IsZero(o.TotalBuy) && types.IsZero(o.TotalSell) && types.IsZero(o.FilledBuy) && types.IsZero(o.FilledSell)
}

// IsEmptyOrFilled is the predicate the order-slot allocator uses to
// decide whether a slot may be reused (spec §4.D "Order-slot allocator").
func (o Order) IsEmptyOrFilled() bool {
	return o.IsEmpty() || o.IsFilled()
}

// Hash computes H(pack(order_id | token_buy<<32 | token_sell<<64),
// filled_sell, filled_buy, total_sell, total_buy) per spec §3.
func (o Order) Hash() types.F {
	packed := types.U32ToF(o.OrderID)
	packed = types.Add(packed, types.Shl(types.U32ToF(o.TokenBuy), 32))
	packed = types.Add(packed, types.Shl(types.U32ToF(o.TokenSell), 64))
	return types.Hash(packed, o.FilledSell, o.FilledBuy, o.TotalSell, o.TotalBuy)
}

// AccountState is the per-account record of spec §3: L2 key material
// plus the roots of its two sub-trees, grounded on
// original_source/src/state/common.rs's `AccountState`.
type AccountState struct {
	Nonce       types.F
	Sign        types.F
	Ay          types.F
	EthAddr     types.F
	BalanceRoot types.F
	OrderRoot   types.F
}

// EmptyAccountState is the account record of an account that has never
// been assigned an L2 key, parameterized by the default sub-tree roots
// (spec §3 "An account is empty iff ay = 0").
func EmptyAccountState(balanceRoot, orderRoot types.F) AccountState {
	return AccountState{BalanceRoot: balanceRoot, OrderRoot: orderRoot}
}

// IsEmpty reports whether the account has never had an L2 key set.
func (a AccountState) IsEmpty() bool {
	return types.IsZero(a.Ay)
}

// Hash computes H(pack(nonce | sign<<40), balance_root, ay, eth_addr,
// order_root) per spec §3.
func (a AccountState) Hash() types.F {
	packed := types.Add(a.Nonce, types.Shl(a.Sign, 40))
	return types.Hash(packed, a.BalanceRoot, a.Ay, a.EthAddr, a.OrderRoot)
}

// Package adapter translates the exchange engine's external events
// into the typed layer-2 transactions state.WitnessGenerator applies
// (spec §4.I "Message adapter"), grounded on the teacher's
// provers/file_fetcher.go "read one JSON blob, decode it" shape.
package adapter

import "github.com/kysee/rollup-statekeeper/types"

// Offset is the monotonically increasing external message-bus position
// every inbound event carries, for checkpointing (spec §6 "Inbound
// event schema").
type Offset uint64

// UserRegistrationEvent registers an account's L2 key. The BabyJubJub
// public-key decompression spec §4.I names is assumed already
// performed by the event producer: Sign/Ay arrive pre-decomposed
// rather than as a single compressed point, since the producer's wire
// format for the compressed key is not specified and hand-rolling a
// decoder against gnark-crypto's internal point encoding cannot be
// verified without a toolchain run.
type UserRegistrationEvent struct {
	AccountID uint32
	Sign      types.F
	Ay        types.F
	EthAddr   types.F
	Offset    Offset
}

// DepositEvent is a balance-change event (spec §4.I "Balance change
// (deposit) -> deposit to old"). PriorBalance is the engine's own
// record of the account's balance before this deposit, cross-checked
// against the state's value.
type DepositEvent struct {
	AccountID    uint32
	TokenID      uint32
	Amount       types.F
	PriorBalance types.F
	// L2Key is set only when this deposit also registers a new
	// account's key (spec §4.F "l2key? ... deposit-to-new").
	L2Key *types.L2Key
	Offset Offset
}

// OrderPutEvent places a resting order (spec §4.I "Order PUT ->
// remembered locally; no state mutation yet").
type OrderPutEvent struct {
	AccountID   uint32
	OrderID     uint32
	TokenIDSell uint32
	TokenIDBuy  uint32
	AmountSell  types.F
	AmountBuy   types.F
	Sig         types.Signature
	Offset      Offset
}

// OrderUpdateEvent revises a remembered order's terms before it ever
// trades. Not literally named by spec §4.I's bullet list (only
// PUT/FINISH are), but spec §6's inbound schema enumerates
// PUT/UPDATE/FINISH/EXPIRED together; treated the same as a PUT
// overwrite of the locally-remembered definition.
type OrderUpdateEvent OrderPutEvent

// OrderFinishEvent cancels a resting order (spec §4.I "Order FINISH ->
// cancel order if known; otherwise ignore").
type OrderFinishEvent struct {
	AccountID uint32
	OrderID   uint32
	Offset    Offset
}

// OrderExpiredEvent is spec §6's fourth enumerated order-event kind;
// handled identically to OrderFinishEvent (both remove a resting order
// from consideration), since spec §4.I does not distinguish their
// apply-time behavior.
type OrderExpiredEvent OrderFinishEvent

// TradeEvent is a matched trade between two orders (spec §4.I "Trade ->
// full-spot-trade, optionally with signature verification"). Either
// side's order fields are populated only when IsNew (the order has
// never traded before and the engine must supply its full definition);
// an order already known to state needs only its id.
type TradeEvent struct {
	Order1AccountID uint32
	Order2AccountID uint32
	TokenID1to2     uint32
	TokenID2to1     uint32
	Amount1to2      types.F
	Amount2to1      types.F
	Order1ID        uint32
	Order2ID        uint32

	Order1IsNew bool
	Order1      OrderPutEvent // valid iff Order1IsNew
	Order2IsNew bool
	Order2      OrderPutEvent // valid iff Order2IsNew

	// VerifySignatures requests CheckSig against each order's stored
	// public key before apply (spec §4.I "optionally with signature
	// verification of each order against the stored public key").
	VerifySignatures bool

	Offset Offset
}

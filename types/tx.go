package types

// TxType enumerates the seven layer-2 transaction kinds the witness
// generator understands (spec §4.F).
type TxType int

const (
	TxNop TxType = iota
	TxDeposit
	TxTransfer
	TxWithdraw
	TxPlaceOrder
	TxSpotTrade
	TxUserRegister
)

func (t TxType) String() string {
	switch t {
	case TxNop:
		return "Nop"
	case TxDeposit:
		return "Deposit"
	case TxTransfer:
		return "Transfer"
	case TxWithdraw:
		return "Withdraw"
	case TxPlaceOrder:
		return "PlaceOrder"
	case TxSpotTrade:
		return "SpotTrade"
	case TxUserRegister:
		return "UserRegister"
	default:
		return "Unknown"
	}
}

// TxLength is the fixed width of the per-transaction payload vector
// (spec §4.F "Payload layout"). Every tx type fills a subset of these
// slots; the rest stay zero.
const TxLength = 36

// payload index table — a stable wire contract the circuit reads by
// the same positions (spec §4.F).
const (
	IdxTokenID = iota
	IdxAmount
	IdxAccountID1
	IdxAccountID2
	IdxEthAddr1
	IdxEthAddr2
	IdxSign1
	IdxSign2
	IdxAy1
	IdxAy2
	IdxNonce1
	IdxNonce2
	IdxBalance1
	IdxBalance2
	IdxBalance3
	IdxBalance4
	IdxSigL2Hash
	IdxS
	IdxR8x
	IdxR8y
	IdxDstIsNew
	IdxEnableSigCheck1

	// spot-trade fields; place-order also fills TokenID2, Amount2,
	// Order1ID and Order1Pos
	IdxTokenID2
	IdxAmount2
	IdxOrder1ID
	IdxOrder1Pos
	IdxOrder1AmountSell
	IdxOrder1AmountBuy
	IdxOrder1FilledSell
	IdxOrder1FilledBuy
	IdxOrder2ID
	IdxOrder2Pos
	IdxOrder2AmountSell
	IdxOrder2AmountBuy
	IdxOrder2FilledSell
	IdxOrder2FilledBuy
)

// Payload is one fully-populated transaction payload vector.
type Payload [TxLength]F

// MerklePath is the ordered list of sibling hashes from a leaf to the
// root (spec §4.B `get_proof`).
type MerklePath []F

// RawTx is the fully-witnessed record of one applied transaction:
// payload plus every Merkle path and root snapshot the proving circuit
// needs (spec §4.F / glossary "Raw-tx").
type RawTx struct {
	TxType  TxType
	Payload Payload

	BalancePath0 MerklePath
	BalancePath1 MerklePath
	BalancePath2 MerklePath
	BalancePath3 MerklePath

	OrderPath0 MerklePath
	OrderPath1 MerklePath
	OrderRoot0 F
	OrderRoot1 F

	AccountPath0 MerklePath
	AccountPath1 MerklePath

	RootBefore F
	RootAfter  F

	// Offset is the external message offset this tx was derived from,
	// carried through for checkpointing (spec §6 "Inbound event schema").
	Offset uint64
}

// L2Block is a fixed-size (NTx) sequence of witnessed transactions plus
// the pair of Merkle roots and pub-data digest the circuit proves
// (spec §6 "Outbound block record").
type L2Block struct {
	BlockID    uint64
	OldRoot    F
	NewRoot    F
	TxDataHash [32]byte

	TxsType []TxType
	Txs     []Payload

	BalancePathElements [][4]MerklePath
	OrderPathElements   [][2]MerklePath
	AccountPathElements [][2]MerklePath
	OrderRoots          [][2]F

	OldAccountRoots []F
	NewAccountRoots []F
}

// DepositTx carries a balance-change event into the state (spec §4.F
// "Deposit"). L2Key is non-nil for deposit-to-new.
type DepositTx struct {
	AccountID uint32
	TokenID   uint32
	Amount    F
	L2Key     *L2Key
}

// L2Key is the (sign, ay, eth_addr) tuple a deposit-to-new or
// registration transaction sets on a previously-empty account.
type L2Key struct {
	Sign    F
	Ay      F
	EthAddr F
}

// TransferTx moves a balance between two accounts (spec §4.F "Transfer").
type TransferTx struct {
	From    uint32
	To      uint32
	TokenID uint32
	Amount  F
	Sig     Signature
	L2Key   *L2Key // set when `to` is new
}

// WithdrawTx removes a balance with no on-chain recipient (spec §4.F
// "Withdraw").
type WithdrawTx struct {
	AccountID uint32
	TokenID   uint32
	Amount    F
	Sig       Signature
}

// PlaceOrderTx opens or replaces a resting order in its account's order
// tree (spec §9 "Supplemented features" — PlaceOrder).
type PlaceOrderTx struct {
	AccountID   uint32
	TokenIDSell uint32
	TokenIDBuy  uint32
	AmountSell  F
	AmountBuy   F
	Sig         Signature
}

// SpotTradeOrder is the definition of one side's brand-new order in a
// full spot trade (SpotTradeTx.MakerOrder/TakerOrder). A side whose
// order the state already knows is passed as nil instead and is
// identified by SpotTradeTx.Order1ID/Order2ID.
type SpotTradeOrder struct {
	AccountID   uint32
	OrderID     uint32
	IsNew       bool
	TokenIDSell uint32
	TokenIDBuy  uint32
	AmountSell  F
	AmountBuy   F
	Sig         Signature
}

// SpotTradeTx is the full two-sided trade of spec §4.F "Full spot trade".
type SpotTradeTx struct {
	Order1AccountID uint32
	Order2AccountID uint32
	TokenID1to2     uint32
	TokenID2to1     uint32
	Amount1to2      F
	Amount2to1      F
	Order1ID        uint32
	Order2ID        uint32

	MakerOrder *SpotTradeOrder // order1's definition, if new
	TakerOrder *SpotTradeOrder // order2's definition, if new
}

// UserRegisterTx sets an account's L2 key without moving a balance
// (spec §4.F "User / key registration").
type UserRegisterTx struct {
	AccountID uint32
	Sign      F
	Ay        F
	EthAddr   F
}

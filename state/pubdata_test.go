package state

import (
	"testing"

	"github.com/kysee/rollup-statekeeper/types"
	"github.com/stretchr/testify/require"
)

func testPubDataConfig() PubDataConfig {
	return PubDataConfig{HAcc: 2, HBal: 2, HOrd: 3, AmountLen: 5}
}

func TestEncodeDecodeNopRoundTrips(t *testing.T) {
	cfg := testPubDataConfig()
	txsType := []types.TxType{types.TxNop}
	txs := []types.Payload{{}}

	data := EncodeBlockPubData(txsType, txs, cfg)
	decoded, err := DecodeBlockPubData(data, txsType, cfg)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	require.Equal(t, types.TxNop, decoded[0].TxType)
}

func TestEncodeDecodeDepositRoundTripsAmount(t *testing.T) {
	cfg := testPubDataConfig()
	amount, err := types.NewAmountCodec(cfg.AmountLen).FromDecimal("123000", 0)
	require.NoError(t, err)
	amountF := amount.ToFr()

	var p types.Payload
	p[types.IdxAccountID1] = types.U32ToF(1)
	p[types.IdxTokenID] = types.U32ToF(2)
	p[types.IdxAmount] = amountF

	txsType := []types.TxType{types.TxDeposit}
	data := EncodeBlockPubData(txsType, []types.Payload{p}, cfg)

	decoded, err := DecodeBlockPubData(data, txsType, cfg)
	require.NoError(t, err)
	require.Equal(t, uint32(1), decoded[0].AccountID1)
	require.Equal(t, uint32(2), decoded[0].TokenID)
	require.True(t, types.Eq(decoded[0].Amount, amountF))
}

func TestEncodeDecodeSpotTradeRoundTripsBothAmounts(t *testing.T) {
	cfg := testPubDataConfig()
	codec := types.NewAmountCodec(cfg.AmountLen)
	amount1, err := codec.FromDecimal("120", 0)
	require.NoError(t, err)
	amount2, err := codec.FromDecimal("1200", 0)
	require.NoError(t, err)

	var p types.Payload
	p[types.IdxAccountID1] = types.U32ToF(0)
	p[types.IdxAccountID2] = types.U32ToF(1)
	p[types.IdxTokenID] = types.U32ToF(0)
	p[types.IdxTokenID2] = types.U32ToF(1)
	p[types.IdxAmount] = amount1.ToFr()
	p[types.IdxAmount2] = amount2.ToFr()
	p[types.IdxOrder1Pos] = types.U32ToF(2)
	p[types.IdxOrder2Pos] = types.U32ToF(3)
	p[types.IdxOrder1ID] = types.U32ToF(10)
	p[types.IdxOrder2ID] = types.U32ToF(11)

	txsType := []types.TxType{types.TxSpotTrade}
	data := EncodeBlockPubData(txsType, []types.Payload{p}, cfg)

	decoded, err := DecodeBlockPubData(data, txsType, cfg)
	require.NoError(t, err)
	d := decoded[0]
	require.Equal(t, uint32(0), d.AccountID1)
	require.Equal(t, uint32(1), d.AccountID2)
	require.True(t, types.Eq(d.Amount, amount1.ToFr()))
	require.True(t, types.Eq(d.Amount2, amount2.ToFr()))
	require.Equal(t, uint32(2), d.OrderPos1)
	require.Equal(t, uint32(3), d.OrderPos2)
	require.Equal(t, uint32(10), d.OrderID1)
	require.Equal(t, uint32(11), d.OrderID2)
}

func TestEncodeDecodeLargeAmountSurvivesCompaction(t *testing.T) {
	// A decimal value with many trailing zeros should survive the
	// significand/exponent round-trip even though the raw scaled value
	// (10^12) does not fit the 35-bit significand field on its own.
	cfg := testPubDataConfig()
	codec := types.NewAmountCodec(cfg.AmountLen)
	amount, err := codec.FromDecimal("1000000", 6)
	require.NoError(t, err)
	amountF := amount.ToFr()

	var p types.Payload
	p[types.IdxAmount] = amountF
	txsType := []types.TxType{types.TxWithdraw}
	data := EncodeBlockPubData(txsType, []types.Payload{p}, cfg)

	decoded, err := DecodeBlockPubData(data, txsType, cfg)
	require.NoError(t, err)
	require.True(t, types.Eq(decoded[0].Amount, amountF))
}

func TestDecodeBlockPubDataErrorsOnTruncatedStream(t *testing.T) {
	cfg := testPubDataConfig()
	txsType := []types.TxType{types.TxDeposit}
	_, err := DecodeBlockPubData([]byte{}, txsType, cfg)
	require.Error(t, err)
}

func TestRecoverReplaysDepositTransferWithdrawToSameRoot(t *testing.T) {
	cfg := testPubDataConfig()
	gs := NewGlobalState(cfg.HBal, cfg.HOrd, cfg.HAcc, false)
	wg := NewWitnessGenerator(gs, types.DefaultSignatureVerifier)

	wg.Deposit(types.DepositTx{AccountID: 0, TokenID: 0, Amount: types.U32ToF(1000),
		L2Key: &types.L2Key{Ay: types.U32ToF(1), EthAddr: types.U32ToF(1)}})
	wg.Transfer(types.TransferTx{From: 0, To: 1, TokenID: 0, Amount: types.U32ToF(300),
		L2Key: &types.L2Key{Ay: types.U32ToF(2), EthAddr: types.U32ToF(2)}})
	wg.Withdraw(types.WithdrawTx{AccountID: 1, TokenID: 0, Amount: types.U32ToF(50)})

	txsType := []types.TxType{types.TxDeposit, types.TxTransfer, types.TxWithdraw}
	txs := []types.Payload{}
	_ = txs

	// Re-derive the payloads the way a block former would have buffered
	// them, by replaying the same operations on a fresh state and
	// capturing each RawTx's Payload.
	fresh := NewGlobalState(cfg.HBal, cfg.HOrd, cfg.HAcc, false)
	freshWg := NewWitnessGenerator(fresh, types.DefaultSignatureVerifier)
	var payloads []types.Payload
	payloads = append(payloads, freshWg.Deposit(types.DepositTx{AccountID: 0, TokenID: 0, Amount: types.U32ToF(1000),
		L2Key: &types.L2Key{Ay: types.U32ToF(1), EthAddr: types.U32ToF(1)}}).Payload)
	payloads = append(payloads, freshWg.Transfer(types.TransferTx{From: 0, To: 1, TokenID: 0, Amount: types.U32ToF(300),
		L2Key: &types.L2Key{Ay: types.U32ToF(2), EthAddr: types.U32ToF(2)}}).Payload)
	payloads = append(payloads, freshWg.Withdraw(types.WithdrawTx{AccountID: 1, TokenID: 0, Amount: types.U32ToF(50)}).Payload)

	data := EncodeBlockPubData(txsType, payloads, cfg)
	decoded, err := DecodeBlockPubData(data, txsType, cfg)
	require.NoError(t, err)

	recoverState := NewGlobalState(cfg.HBal, cfg.HOrd, cfg.HAcc, false)
	require.NoError(t, recoverState.InitAccount(0, 0))
	recoverState.SetAccountL2Addr(0, types.ZeroF(), types.U32ToF(1), types.U32ToF(1))
	require.NoError(t, recoverState.InitAccount(1, 0))
	recoverState.SetAccountL2Addr(1, types.ZeroF(), types.U32ToF(2), types.U32ToF(2))

	root, err := Recover(recoverState, types.DefaultSignatureVerifier, decoded)
	require.NoError(t, err)
	require.True(t, types.Eq(root, gs.Root()))
}

package keeper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kysee/rollup-statekeeper/state"
	"github.com/kysee/rollup-statekeeper/types"
	"github.com/stretchr/testify/require"
)

func buildTestBlock(t *testing.T) *types.L2Block {
	t.Helper()
	gs := state.NewGlobalState(2, 3, 2, false)
	wg := state.NewWitnessGenerator(gs, types.DefaultSignatureVerifier)
	bf := state.NewBlockFormer(wg, 1, state.PubDataConfig{HAcc: 2, HBal: 2, HOrd: 3, AmountLen: 5})

	tx := wg.Deposit(types.DepositTx{AccountID: 0, TokenID: 0, Amount: types.U32ToF(10),
		L2Key: &types.L2Key{Ay: types.U32ToF(1), EthAddr: types.U32ToF(1)}})
	block, forged := bf.AddRawTx(tx)
	require.True(t, forged)
	return block
}

func TestNewBlockRecordRendersFieldElementsAsDecimalStrings(t *testing.T) {
	block := buildTestBlock(t)
	rec := NewBlockRecord(block)

	require.Equal(t, block.BlockID, rec.BlockID)
	require.Equal(t, types.FToDecimalString(block.OldRoot), rec.OldRoot)
	require.Equal(t, types.FToDecimalString(block.NewRoot), rec.NewRoot)
	require.Len(t, rec.TxsType, 1)
	require.Equal(t, "Deposit", rec.TxsType[0])
	require.Len(t, rec.EncodedTxs[0], types.TxLength)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.Contains(t, string(data), `"blockId"`)
}

func TestFileSinkWritesOneJSONFilePerBlock(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)
	block := buildTestBlock(t)

	require.NoError(t, sink.EmitBlock(block))

	path := filepath.Join(dir, "0.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec BlockRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	require.Equal(t, uint64(0), rec.BlockID)
}

func TestMultiSinkFansOutToEveryBackend(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	multi := NewMultiSink(a, b)
	block := buildTestBlock(t)

	require.NoError(t, multi.EmitBlock(block))
	require.Len(t, a.blocks, 1)
	require.Len(t, b.blocks, 1)
}

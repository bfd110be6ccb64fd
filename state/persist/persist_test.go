package persist

import (
	"testing"

	"github.com/kysee/rollup-statekeeper/state"
	"github.com/kysee/rollup-statekeeper/types"
	"github.com/stretchr/testify/require"
)

func buildTestState() *state.GlobalState {
	gs := state.NewGlobalState(2, 3, 2, false)
	wg := state.NewWitnessGenerator(gs, types.DefaultSignatureVerifier)
	wg.Deposit(types.DepositTx{AccountID: 0, TokenID: 0, Amount: types.U32ToF(500),
		L2Key: &types.L2Key{Ay: types.U32ToF(1), EthAddr: types.U32ToF(1)}})
	return gs
}

func TestInMemoryPersistorSaveLoadRoundTrips(t *testing.T) {
	p := NewInMemoryPersistor()
	gs := buildTestState()

	snap := Snapshot{BlockOffset: 10, KafkaOffset: 99, GlobalState: gs.Snapshot()}
	require.NoError(t, p.Save(3, snap))

	loaded, err := p.Load(3)
	require.NoError(t, err)
	require.Equal(t, uint64(10), loaded.BlockOffset)
	require.Equal(t, uint64(99), loaded.KafkaOffset)

	restored := state.RestoreGlobalState(loaded.GlobalState)
	require.True(t, types.Eq(gs.Root(), restored.Root()))
}

func TestInMemoryPersistorLatestTracksHighestBlockID(t *testing.T) {
	p := NewInMemoryPersistor()
	_, ok, err := p.Latest()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, p.Save(1, Snapshot{}))
	require.NoError(t, p.Save(5, Snapshot{}))
	require.NoError(t, p.Save(3, Snapshot{}))

	latest, ok, err := p.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5), latest)
}

func TestInMemoryPersistorLoadMissingReturnsNotFound(t *testing.T) {
	p := NewInMemoryPersistor()
	_, err := p.Load(42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompositePersistorFansOutSaveAndFallsBackOnLoad(t *testing.T) {
	primary := NewInMemoryPersistor()
	secondary := NewInMemoryPersistor()
	composite := NewCompositePersistor(primary, secondary)

	gs := buildTestState()
	snap := Snapshot{BlockOffset: 1, GlobalState: gs.Snapshot()}
	require.NoError(t, composite.Save(0, snap))

	// Both backends received the write.
	_, err := primary.Load(0)
	require.NoError(t, err)
	_, err = secondary.Load(0)
	require.NoError(t, err)

	// Removing the snapshot from the primary (simulated) still lets the
	// composite answer from the secondary.
	delete(primary.snapshots, 0)
	loaded, err := composite.Load(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), loaded.BlockOffset)
}

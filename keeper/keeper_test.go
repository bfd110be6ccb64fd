package keeper

import (
	"context"
	"os"
	"testing"

	"github.com/kysee/rollup-statekeeper/adapter"
	keepertypes "github.com/kysee/rollup-statekeeper/keeper/types"
	"github.com/kysee/rollup-statekeeper/state/persist"
	"github.com/kysee/rollup-statekeeper/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// sliceEventSource replays a fixed list of events, then calls onDrain
// (typically the test's context-cancel func) exactly once the first
// time it runs dry, so a test driving Run via this source terminates
// deterministically instead of busy-polling forever.
type sliceEventSource struct {
	events  []any
	pos     int
	onDrain func()
	drained bool
}

func (s *sliceEventSource) Next(ctx context.Context) (any, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if s.pos >= len(s.events) {
		if !s.drained {
			s.drained = true
			if s.onDrain != nil {
				s.onDrain()
			}
		}
		return nil, adapter.ErrNoEvent
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// countingSink counts forged blocks instead of writing anywhere.
type countingSink struct {
	blocks []*types.L2Block
}

func (s *countingSink) EmitBlock(block *types.L2Block) error {
	s.blocks = append(s.blocks, block)
	return nil
}

func testConfig() *keepertypes.Config {
	return &keepertypes.Config{NTx: 2, HAcc: 2, HBal: 3, HOrd: 2, AmountLen: 5}
}

func TestApplyDepositsFormsABlockOnceBufferFills(t *testing.T) {
	sink := &countingSink{}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	sk := New(testConfig(), nil, sink, log)

	require.NoError(t, sk.apply(adapter.UserRegistrationEvent{
		AccountID: 0, Sign: types.ZeroF(), Ay: types.U32ToF(1), EthAddr: types.U32ToF(2),
	}))
	require.NoError(t, sk.apply(adapter.DepositEvent{AccountID: 0, TokenID: 1, Amount: types.U32ToF(100)}))
	require.Len(t, sink.blocks, 1)
	require.Equal(t, uint64(0), sink.blocks[0].BlockID)
}

func TestApplyUnrecognizedEventTypeReturnsError(t *testing.T) {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	sk := New(testConfig(), nil, &countingSink{}, log)
	err := sk.apply("not an event")
	require.Error(t, err)
}

func TestRunDrainsEventsFormsBlocksAndStopsOnNoMoreEvents(t *testing.T) {
	sink := &countingSink{}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	sk := New(testConfig(), nil, sink, log)

	ctx, cancel := context.WithCancel(context.Background())
	src := &sliceEventSource{onDrain: cancel, events: []any{
		adapter.UserRegistrationEvent{AccountID: 0, Sign: types.ZeroF(), Ay: types.U32ToF(1), EthAddr: types.U32ToF(2)},
		adapter.DepositEvent{AccountID: 0, TokenID: 1, Amount: types.U32ToF(100)},
	}}

	require.NoError(t, sk.Run(ctx, src))
	require.Len(t, sink.blocks, 1)
}

func TestRunFlushesPartialBlockOnShutdown(t *testing.T) {
	sink := &countingSink{}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := testConfig()
	cfg.NTx = 5
	sk := New(cfg, nil, sink, log)
	require.NoError(t, sk.apply(adapter.UserRegistrationEvent{
		AccountID: 0, Sign: types.ZeroF(), Ay: types.U32ToF(1), EthAddr: types.U32ToF(2),
	}))
	require.Empty(t, sink.blocks, "partial buffer must not forge until NTx is reached")

	// Run observes an already-cancelled context before consuming any
	// further events, so it shuts down by flushing the one buffered tx.
	src := &sliceEventSource{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sk.Run(ctx, src)
	require.NoError(t, err)
	require.Len(t, sink.blocks, 1)
	require.Equal(t, cfg.NTx, len(sink.blocks[0].TxsType))
}

func TestResumeRestoresFromPersistedSnapshot(t *testing.T) {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := testConfig()
	cfg.PersistEveryNBlock = 1

	p := persist.NewInMemoryPersistor()
	sk := New(cfg, p, &countingSink{}, log)
	require.NoError(t, sk.apply(adapter.UserRegistrationEvent{
		AccountID: 0, Sign: types.ZeroF(), Ay: types.U32ToF(1), EthAddr: types.U32ToF(2),
	}))
	require.NoError(t, sk.apply(adapter.DepositEvent{AccountID: 0, TokenID: 1, Amount: types.U32ToF(500)}))
	rootBefore := sk.Root()

	resumed := New(cfg, p, &countingSink{}, log)
	require.NoError(t, resumed.Resume())
	require.True(t, types.Eq(rootBefore, resumed.Root()))
}

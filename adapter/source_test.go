package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeEventFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.ndjson")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileEventSourceDecodesEachEventType(t *testing.T) {
	path := writeEventFile(t,
		`{"type":"user_registration","data":{"accountId":0,"sign":"0","ay":"7","ethAddr":"8","offset":1}}`,
		`{"type":"deposit","data":{"accountId":0,"tokenId":1,"amount":"100","priorBalance":"0","offset":2}}`,
		`{"type":"order_put","data":{"accountId":0,"orderId":1,"tokenIdSell":1,"tokenIdBuy":2,"amountSell":"10","amountBuy":"5","offset":3}}`,
		`{"type":"order_finish","data":{"accountId":0,"orderId":1,"offset":4}}`,
	)
	src, err := NewFileEventSource(path)
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()

	ev1, err := src.Next(ctx)
	require.NoError(t, err)
	reg, ok := ev1.(UserRegistrationEvent)
	require.True(t, ok)
	require.Equal(t, uint32(0), reg.AccountID)
	require.Equal(t, Offset(1), reg.Offset)

	ev2, err := src.Next(ctx)
	require.NoError(t, err)
	dep, ok := ev2.(DepositEvent)
	require.True(t, ok)
	require.Equal(t, uint32(1), dep.TokenID)

	ev3, err := src.Next(ctx)
	require.NoError(t, err)
	put, ok := ev3.(OrderPutEvent)
	require.True(t, ok)
	require.Equal(t, uint32(1), put.OrderID)

	ev4, err := src.Next(ctx)
	require.NoError(t, err)
	finish, ok := ev4.(OrderFinishEvent)
	require.True(t, ok)
	require.Equal(t, uint32(1), finish.OrderID)

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, ErrNoEvent)
}

func TestFileEventSourceRejectsUnrecognizedType(t *testing.T) {
	path := writeEventFile(t, `{"type":"bogus","data":{}}`)
	src, err := NewFileEventSource(path)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Next(context.Background())
	require.Error(t, err)
}

func TestFileEventSourceDecodesTradeWithNewOrders(t *testing.T) {
	path := writeEventFile(t,
		`{"type":"trade","data":{"order1AccountId":0,"order2AccountId":1,"tokenId1to2":1,"tokenId2to1":2,`+
			`"amount1to2":"50","amount2to1":"100","order1Id":1,"order2Id":1,`+
			`"order1IsNew":true,"order1":{"tokenIdSell":1,"tokenIdBuy":2,"amountSell":"100","amountBuy":"200"},`+
			`"order2IsNew":true,"order2":{"tokenIdSell":2,"tokenIdBuy":1,"amountSell":"200","amountBuy":"100"},`+
			`"offset":9}}`,
	)
	src, err := NewFileEventSource(path)
	require.NoError(t, err)
	defer src.Close()

	ev, err := src.Next(context.Background())
	require.NoError(t, err)
	trade, ok := ev.(TradeEvent)
	require.True(t, ok)
	require.True(t, trade.Order1IsNew)
	require.Equal(t, uint32(1), trade.TokenID1to2)
	require.Equal(t, Offset(9), trade.Offset)
}

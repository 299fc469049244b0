package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "orders")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "orders", []byte(`{"order_id":"o-1"}`)))
	assert.JSONEq(t, `{"order_id":"o-1"}`, string(receive(t, ch)))
}

func TestPatternSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "book:*")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "book:ETH", []byte(`1`)))
	assert.Equal(t, "1", string(receive(t, ch)))
}

func TestSubscriptionClosesOnCancel(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, "orders")
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamAppendReadAndLatest(t *testing.T) {
	c, mr := newTestClient(t)
	bus := NewSignalBus(c)
	ctx := context.Background()

	for _, p := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		require.NoError(t, bus.StreamAppend(ctx, "orders:log", []byte(p)))
	}
	assert.True(t, mr.Exists(testPrefix+"orders:log"))

	all, err := bus.StreamRead(ctx, "orders:log", "0", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.JSONEq(t, `{"n":1}`, string(all[0].Payload))

	rest, err := bus.StreamRead(ctx, "orders:log", all[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, all[1].ID, rest[0].ID)

	latest, err := bus.StreamLatest(ctx, "orders:log", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.JSONEq(t, `{"n":3}`, string(latest[0].Payload))
	assert.JSONEq(t, `{"n":2}`, string(latest[1].Payload))
}

func TestStreamLatestMissingStreamIsEmpty(t *testing.T) {
	c, _ := newTestClient(t)
	latest, err := NewSignalBus(c).StreamLatest(context.Background(), "orders:log", 5)
	require.NoError(t, err)
	assert.NotNil(t, latest)
	assert.Empty(t, latest)
}

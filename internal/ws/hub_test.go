package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestClient(hub *Hub, userID uuid.UUID) *Client {
	return &Client{hub: hub, userID: userID, send: make(chan []byte, 16)}
}

func startHub(t *testing.T) (*Hub, context.CancelFunc, chan struct{}) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	return hub, cancel, stopped
}

func TestHub_BroadcastToUser(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, cancel, stopped := startHub(t)
	userID := uuid.New()
	other := uuid.New()
	client := newTestClient(hub, userID)
	stranger := newTestClient(hub, other)
	hub.Register(client)
	hub.Register(stranger)

	require.NoError(t, hub.BroadcastToUser(userID, "deal.stage_changed", map[string]string{"stage": "Won"}))

	select {
	case raw := <-client.send:
		var ev struct {
			Type string            `json:"type"`
			Data map[string]string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, "deal.stage_changed", ev.Type)
		assert.Equal(t, "Won", ev.Data["stage"])
	case <-time.After(time.Second):
		t.Fatal("событие не доставлено")
	}
	assert.Empty(t, stranger.send)

	cancel()
	<-stopped
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, cancel, stopped := startHub(t)
	client := newTestClient(hub, uuid.New())
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.Connections(client.userID) == 1 }, time.Second, 5*time.Millisecond)

	hub.Unregister(client)
	_, ok := <-client.send
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Connections(client.userID))

	// повторная отписка не паникует
	hub.Unregister(client)

	cancel()
	<-stopped
}

func TestHub_ShutdownClosesClientsAndRejectsBroadcast(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, cancel, stopped := startHub(t)
	client := newTestClient(hub, uuid.New())
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.Connections(client.userID) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped

	_, ok := <-client.send
	assert.False(t, ok)

	// буфер broadcast может принять сообщение, но после заполнения хаб сообщает об остановке
	var err error
	for i := 0; i < 64 && err == nil; i++ {
		err = hub.BroadcastToUser(client.userID, "x", nil)
	}
	assert.ErrorIs(t, err, ErrHubStopped)

	hub.Register(newTestClient(hub, uuid.New()))
}

func TestHub_SlowClientDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, cancel, stopped := startHub(t)
	userID := uuid.New()
	client := &Client{hub: hub, userID: userID, send: make(chan []byte)}
	hub.Register(client)

	require.NoError(t, hub.BroadcastToUser(userID, "x", nil))
	require.Eventually(t, func() bool { return hub.Connections(userID) == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped
}

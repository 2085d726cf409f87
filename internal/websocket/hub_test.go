package websocket

import (
	"encoding/json"
	"testing"

	"diarylink/internal/models"

	"github.com/stretchr/testify/require"
)

func newTestClient(hub *Hub, userID string, buffer int) *Client {
	return &Client{
		hub:    hub,
		send:   make(chan []byte, buffer),
		UserID: userID,
	}
}

func TestHubRegisterAndPush(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "u1", 16)
	hub.register(client)

	require.True(t, hub.HasSubscribers("u1"))
	require.False(t, hub.HasSubscribers("u2"))

	snapshot := &models.PendingSnapshot{UserID: "u1"}
	hub.PushSnapshot("u1", snapshot)

	payload := <-client.send
	var decoded models.PendingSnapshot
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, "u1", decoded.UserID)
}

func TestHubMultipleConnectionsPerUser(t *testing.T) {
	hub := NewHub()
	first := newTestClient(hub, "u1", 16)
	second := newTestClient(hub, "u1", 16)
	hub.register(first)
	hub.register(second)

	hub.PushSnapshot("u1", &models.PendingSnapshot{UserID: "u1"})

	// Every connection of the user gets the snapshot.
	require.NotEmpty(t, <-first.send)
	require.NotEmpty(t, <-second.send)

	hub.unregister(first)
	require.True(t, hub.HasSubscribers("u1"))
	hub.unregister(second)
	require.False(t, hub.HasSubscribers("u1"))
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "u1", 16)
	hub.register(client)
	hub.unregister(client)

	_, open := <-client.send
	require.False(t, open)

	// Double unregister is a no-op, no panic on the closed channel.
	hub.unregister(client)
}

func TestHubDropsClientWithFullBuffer(t *testing.T) {
	hub := NewHub()
	stuck := newTestClient(hub, "u1", 0)
	hub.register(stuck)

	// Nobody drains stuck.send, so the non-blocking push drops the client.
	hub.PushSnapshot("u1", &models.PendingSnapshot{UserID: "u1"})
	require.False(t, hub.HasSubscribers("u1"))

	_, open := <-stuck.send
	require.False(t, open)
}

func TestHubPushToUnknownUserIsNoop(t *testing.T) {
	hub := NewHub()
	hub.PushSnapshot("nobody", &models.PendingSnapshot{UserID: "nobody"})
	require.False(t, hub.HasSubscribers("nobody"))
}

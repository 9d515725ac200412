package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubClient(hub *WSHub, id, tenantID string, buffer int) *Client {
	c := &Client{
		ID:       id,
		TenantID: tenantID,
		Send:     make(chan []byte, buffer),
		Hub:      hub,
	}
	hub.clients[c] = true
	return c
}

func TestDispatchFiltersByTenant(t *testing.T) {
	hub := NewWSHub(nil)
	mine := newHubClient(hub, "c1", "tenant-1", 4)
	other := newHubClient(hub, "c2", "tenant-2", 4)

	hub.dispatch(broadcastItem{tenantID: "tenant-1", agentID: "agent-1", payload: []byte("update")})

	require.Len(t, mine.Send, 1)
	assert.Empty(t, other.Send)
}

func TestDispatchAgentFilter(t *testing.T) {
	hub := NewWSHub(nil)
	all := newHubClient(hub, "c1", "tenant-1", 4)
	filtered := newHubClient(hub, "c2", "tenant-1", 4)
	filtered.AgentID = "agent-2"

	hub.dispatch(broadcastItem{tenantID: "tenant-1", agentID: "agent-1", payload: []byte("update")})

	assert.Len(t, all.Send, 1)
	assert.Empty(t, filtered.Send)
}

func TestDispatchDropsSlowClientWithoutBlocking(t *testing.T) {
	hub := NewWSHub(nil)
	slow := newHubClient(hub, "slow", "tenant-1", 1)
	slow.Send <- []byte("backlog") // buffer full
	fast := newHubClient(hub, "fast", "tenant-1", 4)

	done := make(chan struct{})
	go func() {
		hub.dispatch(broadcastItem{tenantID: "tenant-1", payload: []byte("update")})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on a slow client")
	}

	hub.mu.RLock()
	_, stillRegistered := hub.clients[slow]
	hub.mu.RUnlock()
	assert.False(t, stillRegistered)
	require.Len(t, fast.Send, 1)

	// The slow client's channel was closed after the undelivered backlog.
	<-slow.Send
	_, open := <-slow.Send
	assert.False(t, open)
}

package wsgateway

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestHub() *Hub {
	return &Hub{
		log:    zerolog.Nop(),
		topics: make(map[string]map[*Client]bool),
	}
}

func newTestClient(userID string) *Client {
	return &Client{
		send:   make(chan []byte, 1),
		userID: userID,
		topics: make(map[string]bool),
	}
}

func TestAllowedTopic(t *testing.T) {
	client := &Client{userID: "alice", topics: make(map[string]bool)}

	assert.True(t, client.allowedTopic("chat:sessions"))
	assert.True(t, client.allowedTopic("chat:conversation:conv_01h2x3y4z5"))
	assert.True(t, client.allowedTopic("chat:inbox:alice"))

	// other users' inboxes are off limits
	assert.False(t, client.allowedTopic("chat:inbox:bob"))
	assert.False(t, client.allowedTopic("orders:created"))
	assert.False(t, client.allowedTopic(""))
}

func TestEnqueue(t *testing.T) {
	client := newTestClient("alice")

	assert.True(t, client.enqueue([]byte("first")))
	// buffer of one is full now
	assert.False(t, client.enqueue([]byte("second")))
	assert.Equal(t, []byte("first"), <-client.send)
}

func TestEnqueueAfterDetachIsDropped(t *testing.T) {
	hub := newTestHub()
	client := newTestClient("alice")
	hub.detachClient(client)

	// readPump may still try to answer a control frame after the hub
	// dropped the connection; the payload must be discarded, not panic
	assert.NotPanics(t, func() {
		assert.False(t, client.enqueue([]byte(`{"error":"invalid_json"}`)))
	})
}

func TestDetachClientIsIdempotent(t *testing.T) {
	hub := newTestHub()
	client := newTestClient("alice")
	hub.addSubscription(&subscription{client: client, topic: "chat:inbox:alice"})

	hub.detachClient(client)
	assert.NotPanics(t, func() { hub.detachClient(client) })

	_, open := <-client.send
	assert.False(t, open)
	assert.Empty(t, hub.topics)
}

func TestSubscribeAfterDetachIsIgnored(t *testing.T) {
	hub := newTestHub()
	client := newTestClient("alice")
	hub.detachClient(client)

	hub.addSubscription(&subscription{client: client, topic: "chat:inbox:alice"})

	assert.Empty(t, hub.topics)
	assert.Empty(t, client.topics)
}

package wsgateway

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fitloop-server/services/chat-api/internal/infrastructure/metrics"
)

// topicPattern matches every broadcast topic the publisher emits on.
const topicPattern = "chat:*"

type subscription struct {
	client *Client
	topic  string
}

type delivery struct {
	topic   string
	payload []byte
}

// Hub fans redis pub/sub deliveries out to local websocket clients. Each
// client holds a set of topic subscriptions; the hub itself keeps a single
// pattern subscription against redis so cross-instance deliveries work.
type Hub struct {
	rdb *redis.Client
	log zerolog.Logger

	topics map[string]map[*Client]bool

	subscribe   chan *subscription
	unsubscribe chan *subscription
	detach      chan *Client
	deliveries  chan *delivery
}

// NewHub builds the hub and starts its event loop. The redis client is shared
// with the publisher so both sides agree on addressing.
func NewHub(ctx context.Context, rdb *redis.Client, log zerolog.Logger) *Hub {
	h := &Hub{
		rdb:         rdb,
		log:         log.With().Str("component", "ws-hub").Logger(),
		topics:      make(map[string]map[*Client]bool),
		subscribe:   make(chan *subscription),
		unsubscribe: make(chan *subscription),
		detach:      make(chan *Client),
		deliveries:  make(chan *delivery, 256),
	}
	go h.run(ctx)
	return h
}

func (h *Hub) run(ctx context.Context) {
	pubsub := h.rdb.PSubscribe(ctx, topicPattern)
	defer pubsub.Close()

	go func() {
		for msg := range pubsub.Channel() {
			h.deliveries <- &delivery{topic: msg.Channel, payload: []byte(msg.Payload)}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case sub := <-h.subscribe:
			h.addSubscription(sub)
		case sub := <-h.unsubscribe:
			h.dropSubscription(sub.client, sub.topic)
			delete(sub.client.topics, sub.topic)
		case client := <-h.detach:
			h.detachClient(client)
		case d := <-h.deliveries:
			clients, ok := h.topics[d.topic]
			if !ok {
				continue
			}
			for c := range clients {
				if !c.enqueue(d.payload) {
					// slow consumer, drop the connection
					h.detachClient(c)
				}
			}
		}
	}
}

// addSubscription registers a topic for a client. A detach can land between a
// readPump control frame and the hub picking it up, so detached clients are
// ignored rather than re-registered against a closed send channel.
func (h *Hub) addSubscription(sub *subscription) {
	if sub.client.detached {
		return
	}
	if _, ok := h.topics[sub.topic]; !ok {
		h.topics[sub.topic] = make(map[*Client]bool)
	}
	h.topics[sub.topic][sub.client] = true
	sub.client.topics[sub.topic] = true
}

func (h *Hub) dropSubscription(client *Client, topic string) {
	clients, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.topics, topic)
	}
}

func (h *Hub) detachClient(client *Client) {
	if client.detached {
		return
	}
	client.detached = true
	for topic := range client.topics {
		h.dropSubscription(client, topic)
	}
	client.closeSend()
	metrics.WebsocketClients.Dec()
	h.log.Debug().Str("user_id", client.userID).Msg("websocket client detached")
}

func (h *Hub) closeAll() {
	for _, clients := range h.topics {
		for c := range clients {
			h.detachClient(c)
		}
	}
}

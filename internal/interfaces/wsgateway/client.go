package wsgateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fitloop-server/services/chat-api/internal/domain/chat"
	"fitloop-server/services/chat-api/internal/infrastructure/metrics"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// control frames only; event payloads flow server to client
	maxControlBytes = 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one websocket connection with its topic subscriptions.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string

	// topics and detached are owned by the hub goroutine.
	topics   map[string]bool
	detached bool

	// mu guards send against a close racing an enqueue.
	mu     sync.Mutex
	closed bool
}

// enqueue hands a payload to the write pump. It reports false when the
// payload was dropped, either because the client is gone or because its
// buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// controlMessage is the client to server frame for managing subscriptions.
type controlMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// Handle upgrades GET /ws connections. The user id comes from the auth
// middleware when enabled, or from the user_id query parameter in
// development. Initial subscriptions arrive via the topics query parameter.
func (h *Hub) Handle(c *gin.Context) {
	userID := c.GetString("auth_user_id")
	if userID == "" {
		userID = c.Query("user_id")
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user identity is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		topics: make(map[string]bool),
	}

	metrics.WebsocketClients.Inc()
	h.log.Debug().Str("user_id", userID).Msg("websocket client attached")

	for _, topic := range strings.Split(c.Query("topics"), ",") {
		topic = strings.TrimSpace(topic)
		if client.allowedTopic(topic) {
			h.subscribe <- &subscription{client: client, topic: topic}
		}
	}

	go client.writePump()
	client.readPump()
}

// allowedTopic restricts subscriptions to chat topics, and inbox topics to
// the connection's own user.
func (c *Client) allowedTopic(topic string) bool {
	switch {
	case topic == chat.SessionsTopic():
		return true
	case strings.HasPrefix(topic, "chat:conversation:"):
		return true
	case topic == chat.InboxTopic(c.userID):
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.detach <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxControlBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.enqueue([]byte(`{"error":"invalid_json"}`))
			continue
		}

		switch msg.Action {
		case "subscribe":
			if !c.allowedTopic(msg.Topic) {
				c.enqueue([]byte(`{"error":"topic_not_allowed"}`))
				continue
			}
			c.hub.subscribe <- &subscription{client: c, topic: msg.Topic}
		case "unsubscribe":
			c.hub.unsubscribe <- &subscription{client: c, topic: msg.Topic}
		default:
			c.enqueue([]byte(`{"error":"unsupported_action"}`))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker((pongWait * 9) / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fitloop-server/services/chat-api/internal/config"
)

// Envelope is the wire shape of every broadcast event. Subscribers key
// deduplication off the payload's own id field; the envelope itself carries
// no delivery guarantees beyond at-least-once.
type Envelope struct {
	Event   string          `json:"event"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher fans events out over redis pub/sub. One Publisher is constructed
// at startup and shared across all requests; reconnects are handled by the
// pooled redis client.
type Publisher struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewPublisher connects the shared redis client and verifies the connection.
func NewPublisher(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Publisher{
		client: client,
		log:    log.With().Str("component", "broadcast").Logger(),
	}, nil
}

// Publish marshals the envelope and fires it at the topic. Best-effort: the
// caller logs the returned error but never fails a request on it.
func (p *Publisher) Publish(ctx context.Context, topic, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	envelope, err := json.Marshal(Envelope{
		Event:   event,
		Topic:   topic,
		Payload: raw,
	})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event, err)
	}

	if err := p.client.Publish(ctx, topic, envelope).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event, topic, err)
	}

	p.log.Debug().Str("topic", topic).Str("event", event).Msg("event published")
	return nil
}

// Client exposes the shared redis client for subscribers (websocket gateway).
func (p *Publisher) Client() *redis.Client {
	return p.client
}

// Close releases the shared redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}

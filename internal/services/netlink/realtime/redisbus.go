package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/zenite-os/zenite/internal/platform/logging"
)

const (
	// DefaultChannelPrefix namespaces campaign channels in Redis.
	DefaultChannelPrefix = "zenite:netlink:campaign:"

	redisPingTimeout = 2 * time.Second
)

// RedisBus shares campaign channels between NetLink instances through Redis
// pub/sub. Events travel as msgpack envelopes.
type RedisBus struct {
	client *redis.Client
	prefix string
	logger logging.Logger

	mu     sync.Mutex
	closed bool
}

// NewRedisBus connects to the Redis URL and verifies the connection.
func NewRedisBus(ctx context.Context, rawURL string, logger logging.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return NewRedisBusFromClient(client, DefaultChannelPrefix, logger), nil
}

// NewRedisBusFromClient wraps an existing client.
func NewRedisBusFromClient(client *redis.Client, prefix string, logger logging.Logger) *RedisBus {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &RedisBus{client: client, prefix: prefix, logger: logger}
}

// Channel returns the Redis channel carrying campaignID.
func (b *RedisBus) Channel(campaignID string) string {
	return b.prefix + strings.TrimSpace(campaignID)
}

// Publish encodes event and publishes it on the campaign channel.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	if err := b.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(event.CampaignID) == "" {
		return errors.New("campaign id is required")
	}
	body, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.Channel(event.CampaignID), body).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe opens a Redis subscription for campaignID.
func (b *RedisBus) Subscribe(ctx context.Context, campaignID string) (Subscription, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return nil, errors.New("campaign id is required")
	}

	pubsub := b.client.Subscribe(ctx, b.Channel(campaignID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", campaignID, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan Event, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go sub.pump(b.logger.With(logging.Fields{"campaign_id": campaignID}))
	return sub, nil
}

// Close releases the Redis client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}

func (b *RedisBus) ready() error {
	if b == nil || b.client == nil {
		return errors.New("redis bus is not configured")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	return nil
}

// EncodeEvent renders the msgpack envelope published on Redis.
func EncodeEvent(event Event) ([]byte, error) {
	body, err := msgpack.Marshal(&event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return body, nil
}

// DecodeEvent parses a msgpack envelope.
func DecodeEvent(body []byte) (Event, error) {
	var event Event
	if err := msgpack.Unmarshal(body, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) pump(logger logging.Logger) {
	defer close(s.events)
	messages := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			event, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				logger.Warn("drop malformed event", logging.Fields{"channel": msg.Channel, "error": err.Error()})
				continue
			}
			select {
			case s.events <- event:
			case <-s.done:
				return
			default:
				logger.Warn("drop event for slow subscriber", logging.Fields{"channel": msg.Channel})
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

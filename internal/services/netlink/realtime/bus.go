package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// subscriptionBuffer bounds events queued for one slow subscriber.
const subscriptionBuffer = 64

// ErrBusClosed is returned after Close.
var ErrBusClosed = errors.New("realtime bus is closed")

// Bus fans campaign events out to subscribers.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, campaignID string) (Subscription, error)
	Close() error
}

// Subscription delivers events for one campaign until closed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// MemoryBus is an in-process Bus. Events for a subscriber whose buffer is
// full are dropped.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryBus returns an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[*memorySubscription]struct{})}
}

// Publish delivers event to every current subscriber of its campaign.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	campaignID := strings.TrimSpace(event.CampaignID)
	if campaignID == "" {
		return errors.New("campaign id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	for sub := range b.subs[campaignID] {
		select {
		case sub.events <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for campaignID.
func (b *MemoryBus) Subscribe(ctx context.Context, campaignID string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return nil, errors.New("campaign id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	sub := &memorySubscription{
		bus:        b,
		campaignID: campaignID,
		events:     make(chan Event, subscriptionBuffer),
	}
	if b.subs[campaignID] == nil {
		b.subs[campaignID] = make(map[*memorySubscription]struct{})
	}
	b.subs[campaignID][sub] = struct{}{}
	return sub, nil
}

// Close ends every subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for sub := range subs {
			close(sub.events)
		}
	}
	b.subs = nil
	return nil
}

func (b *MemoryBus) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subs[sub.campaignID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.events)
	if len(subs) == 0 {
		delete(b.subs, sub.campaignID)
	}
}

type memorySubscription struct {
	bus        *MemoryBus
	campaignID string
	events     chan Event
	once       sync.Once
}

func (s *memorySubscription) Events() <-chan Event {
	return s.events
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.remove(s)
	})
	return nil
}

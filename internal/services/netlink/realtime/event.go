package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Stream names the logical table a change belongs to.
type Stream string

const (
	StreamDiceRolls       Stream = "dice_rolls"
	StreamCampaignMembers Stream = "campaign_members"
	StreamChatMessages    Stream = "chat_messages"
	StreamCampaigns       Stream = "campaigns"
)

// Op is the row-level operation of a change.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// BroadcastEvent names an ad-hoc GM broadcast.
type BroadcastEvent string

const (
	BroadcastInitiative BroadcastEvent = "initiative"
	BroadcastMusic      BroadcastEvent = "music"
	BroadcastMemberData BroadcastEvent = "member_data"
)

// ParseBroadcastEvent validates a broadcast name.
func ParseBroadcastEvent(raw string) (BroadcastEvent, error) {
	switch event := BroadcastEvent(strings.TrimSpace(strings.ToLower(raw))); event {
	case BroadcastInitiative, BroadcastMusic, BroadcastMemberData:
		return event, nil
	default:
		return "", fmt.Errorf("unknown broadcast event %q", raw)
	}
}

// Kind separates row changes from broadcasts on the bus.
type Kind string

const (
	KindChange    Kind = "change"
	KindBroadcast Kind = "broadcast"
)

// Event is the bus envelope. Record holds the JSON row for changes and the
// broadcast body for broadcasts.
type Event struct {
	Kind       Kind            `msgpack:"kind"`
	CampaignID string          `msgpack:"campaign_id"`
	Stream     Stream          `msgpack:"stream,omitempty"`
	Op         Op              `msgpack:"op,omitempty"`
	Broadcast  BroadcastEvent  `msgpack:"broadcast,omitempty"`
	SenderID   string          `msgpack:"sender_id,omitempty"`
	Record     json.RawMessage `msgpack:"record,omitempty"`
	OccurredAt time.Time       `msgpack:"occurred_at"`
}

// NewChange builds a change event carrying record encoded as JSON.
func NewChange(campaignID string, stream Stream, op Op, record any, at time.Time) (Event, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s record: %w", stream, err)
	}
	return Event{
		Kind:       KindChange,
		CampaignID: campaignID,
		Stream:     stream,
		Op:         op,
		Record:     body,
		OccurredAt: at.UTC(),
	}, nil
}

// NewBroadcast builds a broadcast event.
func NewBroadcast(campaignID string, event BroadcastEvent, senderID string, body json.RawMessage, at time.Time) Event {
	return Event{
		Kind:       KindBroadcast,
		CampaignID: campaignID,
		Broadcast:  event,
		SenderID:   senderID,
		Record:     body,
		OccurredAt: at.UTC(),
	}
}

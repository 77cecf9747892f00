package realtime

import (
	"encoding/json"
	"time"
)

// Client frame types.
const (
	FrameSubscribe   = "realtime.subscribe"
	FrameUnsubscribe = "realtime.unsubscribe"
	FrameBroadcast   = "realtime.broadcast"
	FramePing        = "realtime.ping"
)

// Server frame types.
const (
	FrameSubscribed = "realtime.subscribed"
	FrameChange     = "realtime.change"
	FrameError      = "realtime.error"
	FramePong       = "realtime.pong"
)

// Frame is one websocket message in either direction.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload selects the campaign channel.
type SubscribePayload struct {
	CampaignID string `json:"campaign_id"`
}

// SubscribedPayload acknowledges a subscription.
type SubscribedPayload struct {
	CampaignID string `json:"campaign_id"`
	ServerTime string `json:"server_time"`
}

// BroadcastPayload carries a broadcast in both directions. SenderID is set
// by the server.
type BroadcastPayload struct {
	CampaignID string          `json:"campaign_id"`
	Event      string          `json:"event"`
	SenderID   string          `json:"sender_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// ChangePayload is a row-level change notification.
type ChangePayload struct {
	CampaignID string          `json:"campaign_id"`
	Table      string          `json:"table"`
	Type       string          `json:"type"`
	Record     json.RawMessage `json:"record,omitempty"`
	CommitAt   string          `json:"commit_timestamp"`
}

// ErrorEnvelope wraps an error frame payload.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a rejected frame.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// FrameForEvent renders a bus event as the server frame clients receive.
func FrameForEvent(event Event) (Frame, error) {
	var (
		frameType string
		payload   any
	)
	switch event.Kind {
	case KindBroadcast:
		frameType = FrameBroadcast
		payload = BroadcastPayload{
			CampaignID: event.CampaignID,
			Event:      string(event.Broadcast),
			SenderID:   event.SenderID,
			Payload:    event.Record,
		}
	default:
		frameType = FrameChange
		payload = ChangePayload{
			CampaignID: event.CampaignID,
			Table:      string(event.Stream),
			Type:       string(event.Op),
			Record:     event.Record,
			CommitAt:   event.OccurredAt.UTC().Format(time.RFC3339Nano),
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: frameType, Payload: body}, nil
}

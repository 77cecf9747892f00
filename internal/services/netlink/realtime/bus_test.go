package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestMemoryBusDeliversPerCampaign(t *testing.T) {
	bus := NewMemoryBus()
	defer func() { _ = bus.Close() }()
	ctx := context.Background()

	subA, err := bus.Subscribe(ctx, "camp-a")
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	subB, err := bus.Subscribe(ctx, "camp-b")
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	event, err := NewChange("camp-a", StreamDiceRolls, OpInsert, map[string]any{"id": "r1", "total": 14}, time.Now())
	if err != nil {
		t.Fatalf("new change: %v", err)
	}
	if err := bus.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := receive(t, subA)
	if got.Stream != StreamDiceRolls || got.Op != OpInsert {
		t.Fatalf("event = %+v", got)
	}
	select {
	case leaked := <-subB.Events():
		t.Fatalf("campaign b received %+v", leaked)
	default:
	}
}

func TestMemoryBusCloseSubscription(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()
	sub, err := bus.Subscribe(ctx, "camp-a")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close twice: %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel")
	}
	if err := bus.Publish(ctx, NewBroadcast("camp-a", BroadcastMusic, "gm", nil, time.Now())); err != nil {
		t.Fatalf("publish without subscribers: %v", err)
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("close bus: %v", err)
	}
	if _, err := bus.Subscribe(ctx, "camp-a"); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("subscribe after close err = %v", err)
	}
}

func TestMemoryBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewMemoryBus()
	defer func() { _ = bus.Close() }()
	ctx := context.Background()
	sub, err := bus.Subscribe(ctx, "camp-a")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	for i := 0; i < subscriptionBuffer+10; i++ {
		if err := bus.Publish(ctx, NewBroadcast("camp-a", BroadcastInitiative, "gm", nil, time.Now())); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if got := len(sub.Events()); got != subscriptionBuffer {
		t.Fatalf("queued = %d, want %d", got, subscriptionBuffer)
	}
}

func TestEventEnvelopeCodec(t *testing.T) {
	at := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	event := NewBroadcast("camp-a", BroadcastMemberData, "gm", json.RawMessage(`{"user_id":"p1"}`), at)

	body, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeEvent(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != KindBroadcast || got.Broadcast != BroadcastMemberData || got.SenderID != "gm" {
		t.Fatalf("event = %+v", got)
	}
	if string(got.Record) != `{"user_id":"p1"}` || !got.OccurredAt.Equal(at) {
		t.Fatalf("record = %s at %s", got.Record, got.OccurredAt)
	}
	if _, err := DecodeEvent([]byte{0xc1}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestParseBroadcastEvent(t *testing.T) {
	for _, raw := range []string{"initiative", "MUSIC", " member_data "} {
		if _, err := ParseBroadcastEvent(raw); err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
	}
	if _, err := ParseBroadcastEvent("fireworks"); err == nil {
		t.Fatal("expected error")
	}
}

func TestFrameForEvent(t *testing.T) {
	at := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	change, err := NewChange("camp-a", StreamChatMessages, OpInsert, map[string]string{"body": "hi"}, at)
	if err != nil {
		t.Fatalf("new change: %v", err)
	}
	frame, err := FrameForEvent(change)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if frame.Type != FrameChange {
		t.Fatalf("type = %s", frame.Type)
	}
	var payload ChangePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Table != "chat_messages" || payload.Type != "INSERT" || string(payload.Record) != `{"body":"hi"}` {
		t.Fatalf("payload = %+v", payload)
	}

	frame, err = FrameForEvent(NewBroadcast("camp-a", BroadcastMusic, "gm", json.RawMessage(`{"track":"neon"}`), at))
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if frame.Type != FrameBroadcast {
		t.Fatalf("type = %s", frame.Type)
	}
}

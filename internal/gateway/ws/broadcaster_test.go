package ws

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestBroadcaster_FanoutReachesEverySession(t *testing.T) {
	r := newTestRegistry()
	conns := []*fakeConn{{}, {}, {}}
	for i, c := range conns {
		r.Connect(c, NewConnectionID(int64(i+1)), int64(i+1), "player")
	}

	b := NewBroadcaster(nil, r, "gateway.events.broadcast.test", zerolog.Nop())
	sent := b.Fanout("chat.message", []byte(`{"text":"hi"}`))
	if sent != 3 {
		t.Fatalf("expected 3 deliveries, got %d", sent)
	}

	for _, c := range conns {
		var frame map[string]any
		if err := json.Unmarshal(c.frames[0], &frame); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		if frame["type"] != "event" || frame["topic"] != "chat.message" {
			t.Fatalf("unexpected wrapper: %v", frame)
		}
		payload := frame["payload"].(map[string]any)
		if payload["text"] != "hi" {
			t.Fatalf("payload lost: %v", frame)
		}
	}
}

func TestBroadcaster_InvalidPayloadDropped(t *testing.T) {
	r := newTestRegistry()
	conn := &fakeConn{}
	r.Connect(conn, "ws_1_a", 1, "player")

	b := NewBroadcaster(nil, r, "q", zerolog.Nop())
	if sent := b.Fanout("chat.message", []byte(`}{`)); sent != 0 {
		t.Fatalf("invalid payload must not fan out")
	}
	if conn.frameCount() != 0 {
		t.Fatalf("no frame expected")
	}
}

func TestBroadcaster_EmptyRegistry(t *testing.T) {
	b := NewBroadcaster(nil, newTestRegistry(), "q", zerolog.Nop())
	if sent := b.Fanout("t", []byte(`{}`)); sent != 0 {
		t.Fatalf("no sessions, no deliveries")
	}
}

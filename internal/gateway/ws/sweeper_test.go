package ws

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSweeper_ClosesIdleSessions(t *testing.T) {
	r := newTestRegistry()
	base := time.Now()
	r.now = func() time.Time { return base }

	idle := &fakeConn{}
	fresh := &fakeConn{}
	r.Connect(idle, "ws_1_idle", 1, "player")

	r.now = func() time.Time { return base.Add(2 * time.Minute) }
	r.Connect(fresh, "ws_2_fresh", 2, "player")

	s := NewSweeper(r, time.Second, time.Minute, zerolog.Nop())
	s.sweep()

	if !idle.isClosed() {
		t.Fatalf("idle session must be closed")
	}
	code, reason := parseClose(t, idle.closeMsg)
	if code != 1008 || reason != "Idle timeout" {
		t.Fatalf("expected 1008/Idle timeout, got %d/%q", code, reason)
	}
	if fresh.isClosed() {
		t.Fatalf("active session must survive")
	}
	if r.Len() != 1 {
		t.Fatalf("registry must hold only the fresh session, got %d", r.Len())
	}
}

func TestSweeper_ZeroTimeoutDisablesSweep(t *testing.T) {
	r := newTestRegistry()
	base := time.Now().Add(-time.Hour)
	r.now = func() time.Time { return base }
	conn := &fakeConn{}
	r.Connect(conn, "ws_1_old", 1, "player")

	s := NewSweeper(r, 10*time.Millisecond, 0, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	<-done

	if conn.isClosed() || r.Len() != 1 {
		t.Fatalf("zero idle timeout must disable the sweep entirely")
	}
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	r := newTestRegistry()
	s := NewSweeper(r, 5*time.Millisecond, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper must stop when its context is cancelled")
	}
}

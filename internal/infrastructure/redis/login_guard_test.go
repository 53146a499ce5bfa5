package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestGuard(t *testing.T, maxAttempts int, window, banTTL time.Duration) (*LoginGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	client := NewClientFromRedis(rdb)
	return NewLoginGuard(client, maxAttempts, window, banTTL), mr
}

func TestLoginGuard_BanAfterMaxAttempts(t *testing.T) {
	guard, mr := newTestGuard(t, 3, 300*time.Second, 900*time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		banned, err := guard.RegisterFailure(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if banned {
			t.Fatalf("attempt %d must not ban yet", i+1)
		}
	}

	banned, err := guard.RegisterFailure(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !banned {
		t.Fatalf("third failure must install the ban")
	}

	// Counter is gone once the ban exists.
	if mr.Exists("auth:rate:login:alice") {
		t.Fatalf("rate counter must be deleted when the ban is installed")
	}
	if !mr.Exists("auth:ban:login:alice") {
		t.Fatalf("ban flag must exist")
	}

	isBanned, err := guard.IsBanned(ctx, "alice")
	if err != nil || !isBanned {
		t.Fatalf("IsBanned must report the ban: %v %v", isBanned, err)
	}
}

func TestLoginGuard_WindowTTLSetOnFirstIncrementOnly(t *testing.T) {
	guard, mr := newTestGuard(t, 10, 300*time.Second, 900*time.Second)
	ctx := context.Background()

	if _, err := guard.RegisterFailure(ctx, "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ttl := mr.TTL("auth:rate:login:bob")
	if ttl <= 0 || ttl > 300*time.Second {
		t.Fatalf("window TTL must be armed on creation, got %v", ttl)
	}

	// A later failure must not re-arm the window.
	mr.FastForward(100 * time.Second)
	if _, err := guard.RegisterFailure(ctx, "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := mr.TTL("auth:rate:login:bob"); got > 200*time.Second {
		t.Fatalf("window TTL must keep sliding down, got %v", got)
	}
}

func TestLoginGuard_BanExpires(t *testing.T) {
	guard, mr := newTestGuard(t, 1, 300*time.Second, 900*time.Second)
	ctx := context.Background()

	banned, err := guard.RegisterFailure(ctx, "carol")
	if err != nil || !banned {
		t.Fatalf("single-attempt threshold must ban immediately: %v %v", banned, err)
	}

	mr.FastForward(901 * time.Second)

	isBanned, err := guard.IsBanned(ctx, "carol")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isBanned {
		t.Fatalf("ban must clear after its TTL")
	}
}

func TestLoginGuard_ResetClearsCounter(t *testing.T) {
	guard, mr := newTestGuard(t, 5, 300*time.Second, 900*time.Second)
	ctx := context.Background()

	_, _ = guard.RegisterFailure(ctx, "dave")
	_, _ = guard.RegisterFailure(ctx, "dave")

	if err := guard.Reset(ctx, "dave"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mr.Exists("auth:rate:login:dave") {
		t.Fatalf("reset must delete the rate counter")
	}

	// Fresh window after reset: failures start over.
	banned, _ := guard.RegisterFailure(ctx, "dave")
	if banned {
		t.Fatalf("counter must have restarted from zero")
	}
	if got, _ := mr.Get("auth:rate:login:dave"); got != "1" {
		t.Fatalf("expected counter 1, got %q", got)
	}
}

func TestLoginGuard_PrincipalsAreIsolated(t *testing.T) {
	guard, _ := newTestGuard(t, 2, 300*time.Second, 900*time.Second)
	ctx := context.Background()

	_, _ = guard.RegisterFailure(ctx, "eve")
	banned, _ := guard.RegisterFailure(ctx, "eve")
	if !banned {
		t.Fatalf("eve must be banned")
	}

	if isBanned, _ := guard.IsBanned(ctx, "frank"); isBanned {
		t.Fatalf("frank's counter is independent")
	}
}

package redis

import (
	"context"
	"time"

	"github.com/codexdlc/gatewaykit/internal/domain"
)

// Key shapes for the brute-force counters. The window counter lives under
// rate; reaching the threshold installs the ban flag and drops the counter.
func rateKey(username string) string { return "auth:rate:login:" + username }
func banKey(username string) string  { return "auth:ban:login:" + username }

// LoginGuard is the sliding-window brute-force counter with ban. All state
// transitions happen server-side in Lua so concurrent failures cannot race
// the window TTL or double-install the ban.
type LoginGuard struct {
	client      *Client
	maxAttempts int
	window      time.Duration
	banTTL      time.Duration
}

func NewLoginGuard(client *Client, maxAttempts int, window, banTTL time.Duration) *LoginGuard {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	if banTTL <= 0 {
		banTTL = 15 * time.Minute
	}
	return &LoginGuard{client: client, maxAttempts: maxAttempts, window: window, banTTL: banTTL}
}

// INCR the counter, arm the window TTL only on first increment, and when the
// threshold is reached install the ban flag and delete the counter, all in
// one hop. Returns 1 when the ban was just installed.
const registerFailureLua = `
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if c >= tonumber(ARGV[2]) then
  redis.call("SET", KEYS[2], "1", "PX", ARGV[3])
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`

// IsBanned reports whether the principal currently carries the ban flag.
func (g *LoginGuard) IsBanned(ctx context.Context, username string) (bool, error) {
	n, err := g.client.rdb.Exists(ctx, banKey(username)).Result()
	if err != nil {
		return false, domain.ErrRedisUnavailable(err)
	}
	return n > 0, nil
}

// RegisterFailure counts one failed attempt and reports whether this attempt
// tripped the ban.
func (g *LoginGuard) RegisterFailure(ctx context.Context, username string) (bool, error) {
	res, err := g.client.rdb.Eval(ctx, registerFailureLua,
		[]string{rateKey(username), banKey(username)},
		g.window.Milliseconds(),
		g.maxAttempts,
		g.banTTL.Milliseconds(),
	).Result()
	if err != nil {
		return false, domain.ErrRedisUnavailable(err)
	}
	banned, ok := res.(int64)
	if !ok {
		return false, domain.ErrRedisUnavailable(nil)
	}
	return banned == 1, nil
}

// Reset clears the window counter after a successful login.
func (g *LoginGuard) Reset(ctx context.Context, username string) error {
	if err := g.client.rdb.Del(ctx, rateKey(username)).Err(); err != nil {
		return domain.ErrRedisUnavailable(err)
	}
	return nil
}

package quota

// Daily distribution quota per chat user
// A day is the UTC calendar date; the counter is reset on the first request of a new date

import (
	"context"
	"fmt"
	"sync"
	"time"

	logging "airdrop-bot/internal/infra/log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultDailyMax = 3

// Tracker - TryConsume reports whether userID may receive one more distribution today
// and records it when allowed.
type Tracker interface {
	TryConsume(ctx context.Context, userID string) (bool, error)
}

type usage struct {
	date  string
	count int
}

// MemoryTracker keeps counters for a single process.
type MemoryTracker struct {
	mu    sync.Mutex
	max   int
	now   func() time.Time
	usage map[string]usage
}

func NewMemoryTracker(max int) *MemoryTracker {
	if max <= 0 {
		max = DefaultDailyMax
	}
	return &MemoryTracker{max: max, now: time.Now, usage: map[string]usage{}}
}

// WithClock replaces time.Now.
func (t *MemoryTracker) WithClock(now func() time.Time) *MemoryTracker {
	t.now = now
	return t
}

func (t *MemoryTracker) TryConsume(_ context.Context, userID string) (bool, error) {
	today := Day(t.now())

	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.usage[userID]
	if u.date != today {
		u = usage{date: today}
	}
	if u.count >= t.max {
		t.usage[userID] = u
		return false, nil
	}
	u.count++
	t.usage[userID] = u
	return true, nil
}

// Day is the UTC date key of t.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// consumeScript increments the counter only while it is below the limit.
// KEYS[1] quota key, ARGV[1] limit, ARGV[2] ttl seconds. Returns 1 when consumed.
const consumeScript = `
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
if used >= tonumber(ARGV[1]) then
  return 0
end
redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[2])
return 1
`

const keyTTL = 48 * time.Hour

// Evaler is the part of *redis.Client the tracker needs.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisTracker shares counters between bot instances.
type RedisTracker struct {
	client Evaler
	max    int
	now    func() time.Time
}

func NewRedisTracker(client Evaler, max int) *RedisTracker {
	if max <= 0 {
		max = DefaultDailyMax
	}
	return &RedisTracker{client: client, max: max, now: time.Now}
}

func (t *RedisTracker) WithClock(now func() time.Time) *RedisTracker {
	t.now = now
	return t
}

// Key is the counter key of userID for the UTC date of now.
func Key(userID string, now time.Time) string {
	return fmt.Sprintf("quota:%s:%s", userID, Day(now))
}

func (t *RedisTracker) TryConsume(ctx context.Context, userID string) (bool, error) {
	key := Key(userID, t.now())
	res, err := t.client.Eval(ctx, consumeScript, []string{key}, t.max, int(keyTTL.Seconds())).Int64()
	if err != nil {
		return false, fmt.Errorf("quota script failed for %s: %w", userID, err)
	}
	return res == 1, nil
}

// DialRedis connects and pings addr.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.LogInfo("Connected to Redis", zap.String("addr", addr))
	return rdb, nil
}

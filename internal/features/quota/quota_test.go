package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestMemoryTracker_DailyLimitAndRollover(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)}
	tr := NewMemoryTracker(3).WithClock(c.now)
	ctx := context.Background()

	var got []bool
	for i := 0; i < 4; i++ {
		ok, err := tr.TryConsume(ctx, "u1")
		require.NoError(t, err)
		got = append(got, ok)
	}
	assert.Equal(t, []bool{true, true, true, false}, got)

	// other users are independent
	ok, _ := tr.TryConsume(ctx, "u2")
	assert.True(t, ok)

	c.t = c.t.Add(2 * time.Minute)
	ok, _ = tr.TryConsume(ctx, "u1")
	assert.True(t, ok)
}

func TestMemoryTracker_UsesUTCDate(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	// 08:00 KST on Mar 2 is still Mar 1 in UTC
	c := &clock{t: time.Date(2025, 3, 2, 8, 0, 0, 0, seoul)}
	tr := NewMemoryTracker(1).WithClock(c.now)

	ok, _ := tr.TryConsume(context.Background(), "u")
	assert.True(t, ok)

	c.t = time.Date(2025, 3, 2, 8, 30, 0, 0, seoul)
	ok, _ = tr.TryConsume(context.Background(), "u")
	assert.False(t, ok)

	c.t = time.Date(2025, 3, 2, 9, 0, 0, 0, seoul)
	ok, _ = tr.TryConsume(context.Background(), "u")
	assert.True(t, ok)
}

func TestMemoryTracker_ConcurrentNeverExceeds(t *testing.T) {
	tr := NewMemoryTracker(3)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := tr.TryConsume(context.Background(), "same"); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, granted)
}

// fakeRedis evaluates the consume script against a map.
type fakeRedis struct {
	mu     sync.Mutex
	counts map[string]int64
	keys   []string
	err    error
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	f.keys = append(f.keys, keys[0])
	limit := int64(args[0].(int))
	if f.counts[keys[0]] >= limit {
		return redis.NewCmdResult(int64(0), nil)
	}
	f.counts[keys[0]]++
	return redis.NewCmdResult(int64(1), nil)
}

func TestRedisTracker(t *testing.T) {
	fr := &fakeRedis{counts: map[string]int64{}}
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewRedisTracker(fr, 2).WithClock(c.now)

	a, _ := tr.TryConsume(context.Background(), "42")
	b, _ := tr.TryConsume(context.Background(), "42")
	d, _ := tr.TryConsume(context.Background(), "42")
	assert.Equal(t, []bool{true, true, false}, []bool{a, b, d})
	assert.Equal(t, "quota:42:2025-03-01", fr.keys[0])

	c.t = c.t.Add(24 * time.Hour)
	ok, _ := tr.TryConsume(context.Background(), "42")
	assert.True(t, ok)
	assert.Equal(t, "quota:42:2025-03-02", fr.keys[len(fr.keys)-1])
}

func TestRedisTracker_Error(t *testing.T) {
	tr := NewRedisTracker(&fakeRedis{err: errors.New("conn refused")}, 3)
	ok, err := tr.TryConsume(context.Background(), "1")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "conn refused")
}

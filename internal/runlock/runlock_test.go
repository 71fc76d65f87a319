package runlock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horse.fit/newsdesk/internal/news"
)

func TestLocalRejectsSecondAcquire(t *testing.T) {
	t.Parallel()

	lock := NewLocal()
	ctx := context.Background()

	lease, err := lock.TryAcquire(ctx)
	require.NoError(t, err)

	_, err = lock.TryAcquire(ctx)
	assert.ErrorIs(t, err, news.ErrRunInProgress)

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))

	again, err := lock.TryAcquire(ctx)
	require.NoError(t, err)

	// A stale double release must not free the new holder's lock.
	require.NoError(t, lease.Release(ctx))
	_, err = lock.TryAcquire(ctx)
	assert.ErrorIs(t, err, news.ErrRunInProgress)
	require.NoError(t, again.Release(ctx))
}

func TestLocalSingleWinnerUnderContention(t *testing.T) {
	t.Parallel()

	lock := NewLocal()
	var winners atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lock.TryAcquire(context.Background()); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

type fakeRedis struct {
	mu       sync.Mutex
	values   map[string]string
	ttls     map[string]time.Duration
	renewals int
	failing  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.values[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return redis.NewCmdResult(nil, errors.New("connection refused"))
	}
	if f.values[keys[0]] != args[0].(string) {
		return redis.NewCmdResult(int64(0), nil)
	}
	if script == renewScript {
		f.renewals++
		f.ttls[keys[0]] = time.Duration(args[1].(int64)) * time.Millisecond
		return redis.NewCmdResult(int64(1), nil)
	}
	delete(f.values, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeRedis) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}

func (f *fakeRedis) renewCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renewals
}

func (f *fakeRedis) fail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = true
}

func TestRedisLockTokenCheckedRelease(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	lock := NewRedis(client, "", 0)
	ctx := context.Background()

	lease, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	client.mu.Lock()
	assert.Equal(t, DefaultTTL, client.ttls[DefaultKey])
	client.mu.Unlock()

	_, err = NewRedis(client, DefaultKey, time.Minute).TryAcquire(ctx)
	assert.ErrorIs(t, err, news.ErrRunInProgress)

	require.NoError(t, lease.Release(ctx))
	next, err := lock.TryAcquire(ctx)
	require.NoError(t, err)

	// The first lease's token no longer matches, so it cannot free the key.
	require.NoError(t, lease.Release(ctx))
	_, err = lock.TryAcquire(ctx)
	assert.ErrorIs(t, err, news.ErrRunInProgress)

	require.NoError(t, next.Release(ctx))
}

func TestRedisLeaseRenewsWhileHeld(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	lock := NewRedis(client, "renew", 90*time.Millisecond)
	lock.renewEvery = 5 * time.Millisecond
	ctx := context.Background()

	lease, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return client.renewCount() >= 3 }, time.Second, time.Millisecond)

	client.mu.Lock()
	assert.Equal(t, 90*time.Millisecond, client.ttls["renew"])
	client.mu.Unlock()
	select {
	case <-lease.Lost():
		t.Fatal("lease reported lost while renewing")
	default:
	}

	require.NoError(t, lease.Release(ctx))
	stopped := client.renewCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, client.renewCount(), "renewal continued after release")

	again, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedisLeaseLostWhenKeyTakenOver(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	lock := NewRedis(client, "takeover", time.Minute)
	lock.renewEvery = 5 * time.Millisecond
	ctx := context.Background()

	lease, err := lock.TryAcquire(ctx)
	require.NoError(t, err)

	// The key expired and another process took it.
	client.set("takeover", "someone-else")

	select {
	case <-lease.Lost():
	case <-time.After(time.Second):
		t.Fatal("lease was not reported lost")
	}

	require.NoError(t, lease.Release(ctx))
	client.mu.Lock()
	assert.Equal(t, "someone-else", client.values["takeover"])
	client.mu.Unlock()
}

func TestRedisLeaseLostAfterFailedRenewalsOutlastTTL(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	lock := NewRedis(client, "outage", 30*time.Millisecond)
	lock.renewEvery = 5 * time.Millisecond

	lease, err := lock.TryAcquire(context.Background())
	require.NoError(t, err)
	client.fail()

	select {
	case <-lease.Lost():
	case <-time.After(time.Second):
		t.Fatal("lease was not reported lost after renewals kept failing")
	}
}

func TestLocalLeaseIsNeverLost(t *testing.T) {
	t.Parallel()

	lease, err := NewLocal().TryAcquire(context.Background())
	require.NoError(t, err)
	assert.Nil(t, lease.Lost())
	require.NoError(t, lease.Release(context.Background()))
}

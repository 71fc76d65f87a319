package runlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"horse.fit/newsdesk/internal/news"
)

const (
	DefaultKey = "newsdesk:run-lock"
	DefaultTTL = 30 * time.Minute
)

// Deletes the key only while it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Extends the key's expiry only while it still holds our token.
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

type redisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Redis is a lock shared by every process pointed at the same Redis. A held
// lease renews its TTL every third of it, so the TTL only bounds how long a
// crashed holder blocks new runs.
type Redis struct {
	client     redisClient
	key        string
	ttl        time.Duration
	renewEvery time.Duration
}

func NewRedis(client redisClient, key string, ttl time.Duration) *Redis {
	if strings.TrimSpace(key) == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	renewEvery := ttl / 3
	if renewEvery <= 0 {
		renewEvery = ttl
	}
	return &Redis{client: client, key: key, ttl: ttl, renewEvery: renewEvery}
}

// DialRedis parses a redis:// URL, falling back to treating it as host:port.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *Redis) TryAcquire(ctx context.Context) (Lease, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, errRunInProgress()
	}
	lease := &redisLease{
		lock:  r,
		token: token,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		lost:  make(chan struct{}),
	}
	go lease.keepAlive()
	return lease, nil
}

// renew reports whether the key still belongs to token.
func (r *Redis) renew(token string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.renewEvery)
	defer cancel()
	n, err := r.client.Eval(ctx, renewScript, []string{r.key}, token, r.ttl.Milliseconds()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return n == 1, nil
}

type redisLease struct {
	lock  *Redis
	token string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	lost     chan struct{}
}

// keepAlive renews the TTL until Release. Transient errors are retried on
// the next tick; the lease counts as lost once the key belongs to someone
// else or no renewal has succeeded for a whole TTL.
func (l *redisLease) keepAlive() {
	defer close(l.done)
	ticker := time.NewTicker(l.lock.renewEvery)
	defer ticker.Stop()

	renewed := time.Now()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
		held, err := l.lock.renew(l.token)
		switch {
		case err == nil && held:
			renewed = time.Now()
			continue
		case err == nil:
			close(l.lost)
			return
		case time.Since(renewed) >= l.lock.ttl:
			close(l.lost)
			return
		}
	}
}

func (l *redisLease) Lost() <-chan struct{} {
	return l.lost
}

func (l *redisLease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done

	err := l.lock.client.Eval(context.WithoutCancel(ctx), releaseScript, []string{l.lock.key}, l.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

func errRunInProgress() error {
	return fmt.Errorf("collection run: %w", news.ErrRunInProgress)
}

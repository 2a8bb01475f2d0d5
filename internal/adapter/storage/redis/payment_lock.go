package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// PaymentLock implements ports.ProcessingLock using Redis SET NX.
// Webhook deliveries for the same payment queue up behind the holder
// instead of racing the first-completion guard.
type PaymentLock struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewPaymentLock creates a new Redis-backed processing lock. The TTL caps
// how long a crashed holder can block the key.
func NewPaymentLock(client *goredis.Client) *PaymentLock {
	return &PaymentLock{
		client: client,
		prefix: "lock:",
		ttl:    30 * time.Second,
		retry:  50 * time.Millisecond,
	}
}

// Acquire blocks until the lock for key is held or ctx expires, and returns
// a release func. Release deletes the key; an expired lock releases itself.
func (l *PaymentLock) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	for {
		ok, err := l.client.SetNX(ctx, redisKey, 1, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock acquire: %w", err)
		}
		if ok {
			return func() {
				l.client.Del(context.Background(), redisKey)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis lock acquire: %w", ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

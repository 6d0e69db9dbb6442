package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "membership"

// Membership caches positive membership lookups in redis. Only "is a
// member" is stored, so a user who leaves a channel is re-checked once the
// entry expires.
type Membership struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// Open connects to redis and pings it.
func Open(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("empty redis addr")
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return c, nil
}

func NewMembership(rdb redis.Cmdable, ttl time.Duration) *Membership {
	return &Membership{rdb: rdb, ttl: ttl}
}

func (m *Membership) IsMember(ctx context.Context, userID int64, chatRef string) (bool, error) {
	err := m.rdb.Get(ctx, key(userID, chatRef)).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}

func (m *Membership) RememberMember(ctx context.Context, userID int64, chatRef string) error {
	if m.ttl <= 0 {
		return nil
	}
	return m.rdb.Set(ctx, key(userID, chatRef), "1", m.ttl).Err()
}

func key(userID int64, chatRef string) string {
	return keyPrefix + ":" + strconv.FormatInt(userID, 10) + ":" + chatRef
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/baharkarakas/user-accounts/internal/models"
)

const keyUser = "user:"

// UserCache caches single users by id in Redis. Password hashes are never
// written; cached users come back with an empty PasswordHash.
type UserCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewUserCache(rdb *redis.Client, ttl time.Duration) *UserCache {
	return &UserCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached user, or ok=false on a miss.
func (c *UserCache) Get(ctx context.Context, id int64) (models.User, bool, error) {
	b, err := c.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, err
	}
	var u models.User
	if err := json.Unmarshal(b, &u); err != nil {
		return models.User{}, false, err
	}
	return u, true, nil
}

func (c *UserCache) Set(ctx context.Context, u models.User) error {
	b, err := encode(u)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(u.ID), b, c.ttl).Err()
}

func (c *UserCache) Invalidate(ctx context.Context, id int64) error {
	return c.rdb.Del(ctx, key(id)).Err()
}

// encode relies on models.User keeping PasswordHash out of JSON.
func encode(u models.User) ([]byte, error) { return json.Marshal(u) }

func key(id int64) string { return keyUser + strconv.FormatInt(id, 10) }

package review

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type listPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisList pushes items onto a list for a review worker to pop.
type RedisList struct {
	client listPusher
	key    string
}

// NewRedisList returns the list queue and the underlying client so the
// caller can close it on shutdown.
func NewRedisList(o RedisOptions) (*RedisList, *redis.Client) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})
	return &RedisList{client: rdb, key: o.Key}, rdb
}

func (r *RedisList) Flag(ctx context.Context, item Item) error {
	b, err := json.Marshal(stamp(item))
	if err != nil {
		return err
	}
	if err := r.client.LPush(ctx, r.key, b).Err(); err != nil {
		return fmt.Errorf("push review item: %w", err)
	}
	return nil
}

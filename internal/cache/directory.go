// Package cache keeps a Redis read-through copy of the member directory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"teaminova/internal/viewmodel"
)

const directoryKey = "teaminova:members"

// Loader reads the directory from the record store.
type Loader func(ctx context.Context) ([]viewmodel.Member, error)

// Directory caches the unmasked member list. A nil Directory or nil client
// always reads through.
type Directory struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewDirectory(client *redis.Client, ttl time.Duration) *Directory {
	if ttl < 0 {
		ttl = 0
	}
	return &Directory{redis: client, ttl: ttl}
}

func (d *Directory) Members(ctx context.Context, load Loader) ([]viewmodel.Member, error) {
	if members, ok := d.loadFromCache(ctx); ok {
		return members, nil
	}
	members, err := load(ctx)
	if err != nil {
		return nil, err
	}
	d.store(ctx, members)
	return members, nil
}

// Evict drops the cached directory after a membership or role change.
func (d *Directory) Evict(ctx context.Context) {
	if d == nil || d.redis == nil {
		return
	}
	_ = d.redis.Del(ctx, directoryKey).Err()
}

func (d *Directory) loadFromCache(ctx context.Context) ([]viewmodel.Member, bool) {
	if d == nil || d.redis == nil {
		return nil, false
	}
	data, err := d.redis.Get(ctx, directoryKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			_ = d.redis.Del(ctx, directoryKey).Err()
		}
		return nil, false
	}
	var members []viewmodel.Member
	if err := json.Unmarshal(data, &members); err != nil {
		_ = d.redis.Del(ctx, directoryKey).Err()
		return nil, false
	}
	return members, true
}

func (d *Directory) store(ctx context.Context, members []viewmodel.Member) {
	if d == nil || d.redis == nil || d.ttl == 0 {
		return
	}
	data, err := json.Marshal(members)
	if err != nil {
		return
	}
	_ = d.redis.Set(ctx, directoryKey, data, d.ttl).Err()
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
)

const keyPrefix = "voxroom:room:"

// Redis stores room records as JSON with a sliding TTL.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis parses a redis:// url and pings the server.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(rdb, ttl), nil
}

func NewRedisWithClient(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func key(id domain.RoomID) string { return keyPrefix + string(id) }

func (s *Redis) Save(ctx context.Context, room domain.Room) error {
	room.Peers = nil
	b, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key(room.ID), b, s.ttl).Err()
}

func (s *Redis) Delete(ctx context.Context, id domain.RoomID) error {
	return s.rdb.Del(ctx, key(id)).Err()
}

func (s *Redis) Exists(ctx context.Context, id domain.RoomID) (bool, error) {
	n, err := s.rdb.Exists(ctx, key(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Redis) Get(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	b, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, core.ErrRoomNotStored
	}
	if err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	if err := json.Unmarshal(b, &room); err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s: %w", id, err)
	}
	if s.ttl > 0 {
		s.rdb.Expire(ctx, key(id), s.ttl)
	}
	return room, nil
}

func (s *Redis) Close() error { return s.rdb.Close() }

var _ core.RoomStore = (*Redis)(nil)

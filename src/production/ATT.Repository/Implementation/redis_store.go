package implementation

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	interfaces "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Repository/Interfaces"
)

type RedisIdentityStore struct {
	client *redis.Client
	prefix string
}

// NewRedisIdentityStore connects and pings the server. Keys are stored without expiry.
func NewRedisIdentityStore(ctx context.Context, addr, password string, db int, prefix string) (*RedisIdentityStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to ping Redis: %w", err)
	}

	return &RedisIdentityStore{client: client, prefix: prefix}, nil
}

func (s *RedisIdentityStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", interfaces.ErrNotFound
		}
		return "", err
	}
	return v, nil
}

func (s *RedisIdentityStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.prefix+key, value, 0).Err()
}

func (s *RedisIdentityStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisIdentityStore) Close() error {
	return s.client.Close()
}

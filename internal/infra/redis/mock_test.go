package redis

import (
	"context"
	"time"
)

// mockRedisClient mocks the Redis client wrapper.
type mockRedisClient struct {
	GetFunc         func(ctx context.Context, key string) (string, error)
	SetFunc         func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNXFunc       func(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	DelFunc         func(ctx context.Context, keys ...string) error
	DelIfEqualsFunc func(ctx context.Context, key, value string) (bool, error)
	IncrFunc        func(ctx context.Context, key string) (int64, error)
	ExpireFunc      func(ctx context.Context, key string, expiration time.Duration) error
}

var _ RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return m.SetNXFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	return m.DelIfEqualsFunc(ctx, key, value)
}
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return nil }

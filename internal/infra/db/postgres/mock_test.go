//go:build !integration

package postgres

import (
	"context"
	"time"

	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/repository"
	red "snipr-audio/internal/infra/redis"
)

// mockInnerJobRepo mocks the database repository that the job decorator wraps.
type mockInnerJobRepo struct {
	SaveFunc             func(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error
	FindByIDFunc         func(ctx context.Context, tx repository.Tx, id string) (*model.ConversionJob, error)
	ListByOwnerFunc      func(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.ConversionJob, error)
	ClaimNextPendingFunc func(ctx context.Context) (*model.ConversionJob, error)
	FailStaleFunc        func(ctx context.Context, olderThan time.Time, reason string, exclude []string) (int, error)
}

func (m *mockInnerJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	return m.SaveFunc(ctx, tx, job)
}
func (m *mockInnerJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ConversionJob, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerJobRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.ConversionJob, error) {
	return m.ListByOwnerFunc(ctx, tx, ownerID, limit)
}
func (m *mockInnerJobRepo) ClaimNextPending(ctx context.Context) (*model.ConversionJob, error) {
	return m.ClaimNextPendingFunc(ctx)
}
func (m *mockInnerJobRepo) FailStale(ctx context.Context, olderThan time.Time, reason string, exclude []string) (int, error) {
	return m.FailStaleFunc(ctx, olderThan, reason, exclude)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return false, nil
}
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	return false, nil
}
func (m *mockRedisClient) Close() error { return nil }

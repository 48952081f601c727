package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"snipr-audio/internal/domain/ports/adapter"
)

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	counts := map[string]int64{}
	var expired []string
	client := &mockRedisClient{
		IncrFunc: func(ctx context.Context, key string) (int64, error) {
			counts[key]++
			return counts[key], nil
		},
		ExpireFunc: func(ctx context.Context, key string, expiration time.Duration) error {
			if expiration != time.Hour {
				t.Errorf("unexpected window %v", expiration)
			}
			expired = append(expired, key)
			return nil
		},
	}
	rl := NewRateLimiter(client)
	key := adapter.SubmissionKey("owner-1")

	for i := 1; i <= 3; i++ {
		ok, err := rl.Allow(ctx, key, 2, time.Hour)
		if err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
		if want := i <= 2; ok != want {
			t.Errorf("attempt %d: allowed=%v want %v", i, ok, want)
		}
	}
	if len(expired) != 1 || expired[0] != "rate_limit:submit:owner-1" {
		t.Errorf("expire should run once on first hit, got %v", expired)
	}

	t.Run("redis error is surfaced", func(t *testing.T) {
		boom := errors.New("down")
		rl := NewRateLimiter(&mockRedisClient{
			IncrFunc: func(ctx context.Context, key string) (int64, error) { return 0, boom },
		})
		if _, err := rl.Allow(ctx, key, 1, time.Minute); !errors.Is(err, boom) {
			t.Fatalf("expected redis error, got %v", err)
		}
	})
}

func TestFeedCache(t *testing.T) {
	ctx := context.Background()
	store := map[string]string{}
	client := &mockRedisClient{
		GetFunc: func(ctx context.Context, key string) (string, error) {
			v, ok := store[key]
			if !ok {
				return "", Nil
			}
			return v, nil
		},
		SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
			store[key] = value.(string)
			return nil
		},
		DelFunc: func(ctx context.Context, keys ...string) error {
			for _, k := range keys {
				delete(store, k)
			}
			return nil
		},
	}
	cache := NewFeedCache(client)

	if _, ok, err := cache.Get(ctx, "owner", "feed-a"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	doc := []byte("<rss>\n<channel/></rss>")
	if err := cache.Set(ctx, "owner", "feed-a", doc, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := cache.Get(ctx, "owner", "feed-a")
	if err != nil || !ok || string(got) != string(doc) {
		t.Fatalf("expected hit with doc, got ok=%v err=%v doc=%q", ok, err, got)
	}

	t.Run("rotated feed id misses", func(t *testing.T) {
		if _, ok, _ := cache.Get(ctx, "owner", "feed-b"); ok {
			t.Error("document for old feed id must not be served")
		}
	})

	t.Run("invalidate removes document", func(t *testing.T) {
		if err := cache.Invalidate(ctx, "owner"); err != nil {
			t.Fatalf("invalidate: %v", err)
		}
		if _, ok, _ := cache.Get(ctx, "owner", "feed-a"); ok {
			t.Error("expected miss after invalidate")
		}
	})

	t.Run("redis error is returned", func(t *testing.T) {
		boom := errors.New("down")
		c := NewFeedCache(&mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", boom },
		})
		if _, _, err := c.Get(ctx, "owner", "feed-a"); !errors.Is(err, boom) {
			t.Fatalf("expected error, got %v", err)
		}
	})
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("acquires and releases with token", func(t *testing.T) {
		var held string
		l := NewLocker(&mockRedisClient{
			SetNXFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
				if held != "" {
					return false, nil
				}
				held = value.(string)
				return true, nil
			},
			DelIfEqualsFunc: func(ctx context.Context, key, value string) (bool, error) {
				if value != held {
					return false, nil
				}
				held = ""
				return true, nil
			},
		})
		l.wait = time.Millisecond

		token, err := l.TryLock(ctx, StaleRecoveryKey, time.Minute)
		if err != nil || token == "" {
			t.Fatalf("expected lock, got token=%q err=%v", token, err)
		}
		if _, err := l.TryLock(ctx, StaleRecoveryKey, time.Minute); !errors.Is(err, ErrLockHeld) {
			t.Fatalf("expected ErrLockHeld, got %v", err)
		}
		if err := l.Unlock(ctx, StaleRecoveryKey, token); err != nil {
			t.Fatalf("unlock: %v", err)
		}
		if held != "" {
			t.Error("lock should be released")
		}
	})

	t.Run("persistent redis error is returned", func(t *testing.T) {
		boom := errors.New("down")
		l := NewLocker(&mockRedisClient{
			SetNXFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
				return false, boom
			},
		})
		l.wait = time.Millisecond
		if _, err := l.TryLock(ctx, "k", time.Second); !errors.Is(err, boom) {
			t.Fatalf("expected redis error, got %v", err)
		}
	})
}

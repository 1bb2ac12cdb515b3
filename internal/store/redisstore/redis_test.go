package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"supplyrecon/internal/errx"
)

type fakeRedis struct {
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestSessionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	s := NewSessions(rdb)

	if _, ok, err := s.Load(ctx, "tg:1"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := s.Save(ctx, "tg:1", []byte(`{"state":"AWAITING_SUPPLIER"}`), time.Hour); err != nil {
		t.Fatal(err)
	}
	if rdb.ttl["supplyrecon:session:tg:1"] != time.Hour {
		t.Fatalf("ttl not forwarded: %v", rdb.ttl)
	}
	blob, ok, err := s.Load(ctx, "tg:1")
	if err != nil || !ok || string(blob) != `{"state":"AWAITING_SUPPLIER"}` {
		t.Fatalf("unexpected load %q ok=%v err=%v", blob, ok, err)
	}
	if err := s.Delete(ctx, "tg:1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Load(ctx, "tg:1"); ok {
		t.Fatal("session should be gone")
	}
}

func TestSessionsWrapErrors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection reset")
	_, _, err := NewSessions(rdb).Load(context.Background(), "k")
	if !errors.Is(err, errx.ErrStorage) || !errx.Transient(err) {
		t.Fatalf("expected transient storage error, got %v", err)
	}
}

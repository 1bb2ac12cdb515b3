// Package redisstore keeps resolution sessions in Redis so several
// processes can serve the same conversations.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"supplyrecon/internal/errx"
	"supplyrecon/internal/logx"
	"supplyrecon/internal/store"
)

type Config struct {
	URL          string
	ReadTimeout  int
	WriteTimeout int
	DialTimeout  int
}

func (c Config) New(ctx context.Context) (*redis.Client, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, err
	}
	opts.ReadTimeout = time.Duration(c.ReadTimeout) * time.Second
	opts.WriteTimeout = time.Duration(c.WriteTimeout) * time.Second
	opts.DialTimeout = time.Duration(c.DialTimeout) * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Client is the subset of redis.Cmdable the session store needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Sessions struct {
	rdb    Client
	prefix string
}

func NewSessions(rdb Client) *Sessions {
	return &Sessions{rdb: rdb, prefix: "supplyrecon:session:"}
}

func (s *Sessions) key(conversation string) string {
	return fmt.Sprintf("%s%s", s.prefix, conversation)
}

func (s *Sessions) Load(ctx context.Context, conversation string) ([]byte, bool, error) {
	key := s.key(conversation)
	blob, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session from redis")
		return nil, false, errx.Wrap(err, errx.KindStorage, "load session").MarkTransient()
	}
	return blob, true, nil
}

func (s *Sessions) Save(ctx context.Context, conversation string, blob []byte, ttl time.Duration) error {
	key := s.key(conversation)
	if err := s.rdb.Set(ctx, key, blob, ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save session to redis")
		return errx.Wrap(err, errx.KindStorage, "save session").MarkTransient()
	}
	return nil
}

func (s *Sessions) Delete(ctx context.Context, conversation string) error {
	key := s.key(conversation)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete session from redis")
		return errx.Wrap(err, errx.KindStorage, "delete session")
	}
	return nil
}

var _ store.SessionStore = (*Sessions)(nil)

package queue

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each queue as one hash (id -> JSON record) under
// "<prefix>:queue:<name>". HSETNX gives the exclusive write.
type RedisStore struct {
	client *redis.Client
	prefix string
	queues map[string]struct{}
	owned  bool
}

// RedisOptions configures the redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// ConnectRedis builds a client from a host:port or redis:// URL and verifies
// the server answers.
func ConnectRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(opts.Addr, "redis://") || strings.HasPrefix(opts.Addr, "rediss://") {
		parsed, err := redis.ParseURL(opts.Addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(parsed)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

// NewRedisStore serves the named queues from client. The store closes the
// client only when owned is true.
func NewRedisStore(client *redis.Client, prefix string, queues []string, owned bool) *RedisStore {
	known := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		known[q] = struct{}{}
	}
	if prefix == "" {
		prefix = "ytcollector"
	}
	return &RedisStore{client: client, prefix: prefix, queues: known, owned: owned}
}

func (s *RedisStore) key(queue string) (string, error) {
	if _, ok := s.queues[queue]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	return s.prefix + ":queue:" + queue, nil
}

func (s *RedisStore) check(queue, id string) (string, error) {
	key, err := s.key(queue)
	if err != nil {
		return "", err
	}
	return key, ValidateID(id)
}

func (s *RedisStore) Write(ctx context.Context, queue string, item Item) error {
	key, err := s.check(queue, item.ID)
	if err != nil {
		return err
	}
	payload, err := encodeItem(item)
	if err != nil {
		return err
	}
	created, err := s.client.HSetNX(ctx, key, item.ID, payload).Result()
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", queue, item.ID, err)
	}
	if !created {
		return fmt.Errorf("%s/%s: %w", queue, item.ID, ErrAlreadyExists)
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context, queue, id string) (Item, error) {
	key, err := s.check(queue, id)
	if err != nil {
		return Item{}, err
	}
	payload, err := s.client.HGet(ctx, key, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Item{}, fmt.Errorf("%s/%s: %w", queue, id, ErrNotFound)
	}
	if err != nil {
		return Item{}, fmt.Errorf("read %s/%s: %w", queue, id, err)
	}
	return decodeItem(id, payload)
}

func (s *RedisStore) List(ctx context.Context, queue string) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		key, err := s.key(queue)
		if err != nil {
			yield(Item{}, err)
			return
		}
		ids, err := s.client.HKeys(ctx, key).Result()
		if err != nil {
			yield(Item{}, fmt.Errorf("list %s: %w", queue, err))
			return
		}
		slices.Sort(ids)
		for _, id := range ids {
			item, err := s.Read(ctx, queue, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if !yield(item, err) {
				return
			}
		}
	}
}

func (s *RedisStore) Remove(ctx context.Context, queue, id string) error {
	key, err := s.check(queue, id)
	if err != nil {
		return err
	}
	removed, err := s.client.HDel(ctx, key, id).Result()
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", queue, id, err)
	}
	if removed == 0 {
		return fmt.Errorf("%s/%s: %w", queue, id, ErrNotFound)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, queue, id string) (bool, error) {
	key, err := s.check(queue, id)
	if err != nil {
		return false, err
	}
	ok, err := s.client.HExists(ctx, key, id).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s/%s: %w", queue, id, err)
	}
	return ok, nil
}

func (s *RedisStore) Replace(ctx context.Context, queue string, item Item) error {
	key, err := s.check(queue, item.ID)
	if err != nil {
		return err
	}
	payload, err := encodeItem(item)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, key, item.ID, payload).Err(); err != nil {
		return fmt.Errorf("replace %s/%s: %w", queue, item.ID, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}

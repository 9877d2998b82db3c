package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix    = "pharmaconnect:doc:"
	redisChangeNotify = "pharmaconnect:doc-changes"
)

// RedisStore persists documents in Redis. Its pub/sub channel delivers
// change notifications across processes and hosts, the closest analog to a
// browser storage event this client has.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(address, password string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       0,
		}),
	}
}

// NewRedisStoreFromClient wraps an existing client, used by tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: redis get %s: %w", key, err)
	}
	return value, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisKeyPrefix+key, value, 0)
	pipe.Publish(ctx, redisChangeNotify, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storage: redis put %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisKeyPrefix+key)
	pipe.Publish(ctx, redisChangeNotify, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storage: redis delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Watch(ctx context.Context) (<-chan string, func(), error) {
	pubsub := s.client.Subscribe(ctx, redisChangeNotify)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("storage: redis subscribe: %w", err)
	}

	stream := make(chan string, 16)
	watchCtx, cancelCtx := context.WithCancel(ctx)
	cancel := func() {
		cancelCtx()
		_ = pubsub.Close()
	}
	go func() {
		defer close(stream)
		channel := pubsub.Channel()
		for {
			select {
			case <-watchCtx.Done():
				return
			case message, ok := <-channel:
				if !ok {
					return
				}
				select {
				case stream <- message.Payload:
				default:
				}
			}
		}
	}()
	return stream, cancel, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

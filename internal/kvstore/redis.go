package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// casScript atomically compares the stored value to ARGV[1] and, if equal
// (including both-absent), writes ARGV[2] with optional expiry ARGV[3]
// (milliseconds, "0" for no expiry). Returns 1 on success, 0 on mismatch.
const casScript = `
local current = redis.call("GET", KEYS[1])
local expected = ARGV[1]
if expected == "" then expected = false end
if current == expected or (current == false and expected == false) then
	redis.call("SET", KEYS[1], ARGV[2])
	local ttl = tonumber(ARGV[3])
	if ttl and ttl > 0 then
		redis.call("PEXPIRE", KEYS[1], ttl)
	end
	return 1
end
return 0
`

// RedisStore is a Store backed by a shared Redis instance, used when
// multiple runtime processes need to see the same kvstore (cluster
// deployments, the same role goa-ai's registry uses Redis/Pulse for).
type RedisStore struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, script: redis.NewScript(casScript)}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kvstore: redis get: %w", err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kvstore: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kvstore: redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, expected, newValue []byte, ttl time.Duration) error {
	expectedArg := ""
	if expected != nil {
		expectedArg = string(expected)
	}
	result, err := s.script.Run(ctx, s.client, []string{key}, expectedArg, string(newValue), ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("kvstore: redis cas: %w", err)
	}
	if result == 0 {
		return ErrCASMismatch
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Entries live in three keys sharing one hash slot: a sorted set ordered by an
// insertion sequence (eviction order), a sorted set scored by insertion time in unix
// milliseconds (expiry order), and the sequence counter itself. Expiry sweeps by
// time, so replicas with skewed clocks cannot hide expired entries behind a newer
// head. Every mutation runs as a single Lua script.
const (
	opInsert         = "insert"
	opInsertIfAbsent = "insert_nx"
	opLen            = "len"
)

var storeScript = redis.NewScript(`
local order, times, seq = KEYS[1], KEYS[2], KEYS[3]
local op = ARGV[1]
local now = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local capacity = tonumber(ARGV[4])
local member = ARGV[5]

local cutoff = now - ttl
local expired = redis.call('ZRANGEBYSCORE', times, '-inf', cutoff)
for _, m in ipairs(expired) do
  redis.call('ZREM', order, m)
end
if #expired > 0 then
  redis.call('ZREMRANGEBYSCORE', times, '-inf', cutoff)
end

if op == 'len' then
  return redis.call('ZCARD', order)
end

if redis.call('ZSCORE', times, member) then
  if op == 'insert_nx' then return 0 end
  redis.call('ZREM', order, member)
  redis.call('ZREM', times, member)
end

while redis.call('ZCARD', order) >= capacity do
  local oldest = redis.call('ZRANGE', order, 0, 0)
  redis.call('ZREM', order, oldest[1])
  redis.call('ZREM', times, oldest[1])
end

local n = redis.call('INCR', seq)
redis.call('ZADD', order, n, member)
redis.call('ZADD', times, now, member)
redis.call('PEXPIRE', order, ttl)
redis.call('PEXPIRE', times, ttl)
redis.call('PEXPIRE', seq, ttl)
return 1
`)

// RedisStore is a Store shared by every replica pointing at the same Redis.
type RedisStore struct {
	client *redis.Client
	opts   Options
	order  string
	times  string
	seq    string
}

func NewRedisStore(client *redis.Client, keyName string, opts Options) (*RedisStore, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	if keyName == "" {
		return nil, fmt.Errorf("%w: key name is required", ErrInvalidOptions)
	}

	return &RedisStore{
		client: client,
		opts:   opts,
		order:  fmt.Sprintf("{%s}:order", keyName),
		times:  fmt.Sprintf("{%s}:times", keyName),
		seq:    fmt.Sprintf("{%s}:seq", keyName),
	}, nil
}

func (s *RedisStore) Contains(ctx context.Context, key string) (bool, error) {
	score, err := s.client.ZScore(ctx, s.times, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("dedup contains: %w", err)
	}
	return s.nowMillis()-int64(score) < s.opts.TTL.Milliseconds(), nil
}

func (s *RedisStore) Insert(ctx context.Context, key string) error {
	if _, err := s.run(ctx, opInsert, key); err != nil {
		return fmt.Errorf("dedup insert: %w", err)
	}
	return nil
}

func (s *RedisStore) InsertIfAbsent(ctx context.Context, key string) (bool, error) {
	n, err := s.run(ctx, opInsertIfAbsent, key)
	if err != nil {
		return false, fmt.Errorf("dedup insert if absent: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.order, key)
		pipe.ZRem(ctx, s.times, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dedup remove: %w", err)
	}
	return nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.run(ctx, opLen, "")
	if err != nil {
		return 0, fmt.Errorf("dedup len: %w", err)
	}
	return n, nil
}

// Ping reports whether Redis is reachable, for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) run(ctx context.Context, op, key string) (int, error) {
	return storeScript.Run(ctx, s.client,
		[]string{s.order, s.times, s.seq},
		op, s.nowMillis(), s.opts.TTL.Milliseconds(), s.opts.Capacity, key,
	).Int()
}

func (s *RedisStore) nowMillis() int64 {
	return s.opts.Now().UnixMilli()
}

// Package redislock keeps the slot lock table in Redis so every engine
// instance in a cluster sees the same locks. Each operation is one Lua
// script, so acquire and renew are atomic conditional writes.
package redislock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mmynk/groupcart/internal/models"
	"github.com/mmynk/groupcart/internal/storage"
)

var _ storage.SlotLockStore = (*Store)(nil)

const defaultPrefix = "groupcart:slot:"

// KEYS[1] slot key; ARGV group, until, now, grace
var acquireScript = goredis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'group')
local current = tonumber(redis.call('HGET', KEYS[1], 'until') or '0')
if holder and holder ~= ARGV[1] and current >= tonumber(ARGV[3]) then
  return {0, holder, current, 0}
end
local until = tonumber(ARGV[2])
if holder == ARGV[1] then
  until = math.max(current, until)
end
local version = redis.call('HINCRBY', KEYS[1], 'version', 1)
redis.call('HSET', KEYS[1], 'group', ARGV[1], 'until', until)
redis.call('EXPIREAT', KEYS[1], until + tonumber(ARGV[4]))
return {1, ARGV[1], until, version}
`)

// KEYS[1] slot key; ARGV group, until, now, grace
var renewScript = goredis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'group')
if not holder or holder ~= ARGV[1] then
  return {-1}
end
local current = tonumber(redis.call('HGET', KEYS[1], 'until'))
if current < tonumber(ARGV[3]) then
  return {-2}
end
local extended = math.max(current, tonumber(ARGV[2]))
local version = redis.call('HINCRBY', KEYS[1], 'version', 1)
redis.call('HSET', KEYS[1], 'until', extended)
redis.call('EXPIREAT', KEYS[1], extended + tonumber(ARGV[4]))
return {1, holder, extended, version}
`)

// KEYS[1] slot key; ARGV group
var releaseScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'group') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Store implements storage.SlotLockStore on Redis hashes.
type Store struct {
	rdb    *goredis.Client
	prefix string

	// grace keeps expired records around for inspection before Redis
	// drops them.
	grace time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int, grace time.Duration) (*Store, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewWithClient(rdb, defaultPrefix, grace), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *goredis.Client, prefix string, grace time.Duration) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix, grace: grace}
}

// Client exposes the underlying client so other components can share it.
func (s *Store) Client() *goredis.Client {
	return s.rdb
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) key(slotID string) string {
	return s.prefix + slotID
}

func (s *Store) graceSeconds() int64 {
	g := int64(s.grace / time.Second)
	if g < 1 {
		g = 1
	}
	return g
}

// AcquireSlot takes the slot if free, expired, or already ours.
func (s *Store) AcquireSlot(ctx context.Context, slotID, groupID string, lockedUntil, now int64) (*models.SlotLock, error) {
	res, err := acquireScript.Run(ctx, s.rdb, []string{s.key(slotID)},
		groupID, lockedUntil, now, s.graceSeconds()).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire slot lock: %w", err)
	}
	if toInt64(res[0]) == 0 {
		return nil, fmt.Errorf("slot %s held by %v: %w", slotID, res[1], storage.ErrSlotHeld)
	}
	return &models.SlotLock{
		SlotID:      slotID,
		GroupID:     toString(res[1]),
		LockedUntil: toInt64(res[2]),
		LockVersion: toInt64(res[3]),
	}, nil
}

// RenewSlot extends a live lock the group holds.
func (s *Store) RenewSlot(ctx context.Context, slotID, groupID string, lockedUntil, now int64) (*models.SlotLock, error) {
	res, err := renewScript.Run(ctx, s.rdb, []string{s.key(slotID)},
		groupID, lockedUntil, now, s.graceSeconds()).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to renew slot lock: %w", err)
	}
	switch toInt64(res[0]) {
	case -1:
		return nil, fmt.Errorf("slot %s: %w", slotID, storage.ErrNotHolder)
	case -2:
		return nil, fmt.Errorf("slot %s: %w", slotID, storage.ErrLockLapsed)
	}
	return &models.SlotLock{
		SlotID:      slotID,
		GroupID:     toString(res[1]),
		LockedUntil: toInt64(res[2]),
		LockVersion: toInt64(res[3]),
	}, nil
}

// ReleaseSlot deletes the lock if groupID holds it.
func (s *Store) ReleaseSlot(ctx context.Context, slotID, groupID string) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{s.key(slotID)}, groupID).Err(); err != nil {
		return fmt.Errorf("failed to release slot lock: %w", err)
	}
	return nil
}

// GetSlotLock reads the live lock on a slot.
func (s *Store) GetSlotLock(ctx context.Context, slotID string, now int64) (*models.SlotLock, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(slotID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get slot lock: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("slot %s: %w", slotID, storage.ErrNotFound)
	}

	lock := &models.SlotLock{SlotID: slotID, GroupID: fields["group"]}
	if lock.LockedUntil, err = strconv.ParseInt(fields["until"], 10, 64); err != nil {
		return nil, fmt.Errorf("bad slot lock expiry %q: %w", fields["until"], err)
	}
	if lock.LockVersion, err = strconv.ParseInt(fields["version"], 10, 64); err != nil {
		return nil, fmt.Errorf("bad slot lock version %q: %w", fields["version"], err)
	}
	if lock.Expired(now) {
		return nil, fmt.Errorf("slot %s: %w", slotID, storage.ErrNotFound)
	}
	return lock, nil
}

// ReapExpiredLocks is a no-op: every key carries an EXPIREAT of its expiry
// plus the grace period, so Redis reclaims them on its own.
func (s *Store) ReapExpiredLocks(ctx context.Context, before int64) (int64, error) {
	return 0, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	}
	return 0
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case int64:
		return strconv.FormatInt(s, 10)
	}
	return ""
}

package redislock

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mmynk/groupcart/internal/storage"
)

// newTestStore connects to REDIS_ADDR or skips. Every test gets its own key
// prefix so runs never collide.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return NewWithClient(rdb, "groupcart-test:"+uuid.NewString()+":", time.Minute)
}

func TestRedisSlotLocks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	lock, err := store.AcquireSlot(ctx, "S", "g1", now+1800, now)
	if err != nil {
		t.Fatalf("AcquireSlot failed: %v", err)
	}
	if lock.GroupID != "g1" || lock.LockVersion != 1 {
		t.Errorf("unexpected lock: %+v", lock)
	}

	if _, err := store.AcquireSlot(ctx, "S", "g2", now+1800, now); !errors.Is(err, storage.ErrSlotHeld) {
		t.Errorf("Expected ErrSlotHeld, got %v", err)
	}

	// The holder asking for a shorter lock keeps the longer one.
	lock, err = store.AcquireSlot(ctx, "S", "g1", now+60, now)
	if err != nil {
		t.Fatalf("AcquireSlot by holder failed: %v", err)
	}
	if lock.LockedUntil != now+1800 || lock.LockVersion != 2 {
		t.Errorf("re-acquire shortened the lock: %+v", lock)
	}

	lock, err = store.RenewSlot(ctx, "S", "g1", now+3600, now+60)
	if err != nil {
		t.Fatalf("RenewSlot failed: %v", err)
	}
	if lock.LockedUntil != now+3600 || lock.LockVersion != 3 {
		t.Errorf("unexpected renewed lock: %+v", lock)
	}

	if _, err := store.RenewSlot(ctx, "S", "g2", now+3600, now+60); !errors.Is(err, storage.ErrNotHolder) {
		t.Errorf("Expected ErrNotHolder, got %v", err)
	}
	if _, err := store.RenewSlot(ctx, "S", "g1", now+9000, now+3601); !errors.Is(err, storage.ErrLockLapsed) {
		t.Errorf("Expected ErrLockLapsed, got %v", err)
	}

	// 31 minutes past a 30 minute lock on a fresh slot
	if _, err := store.AcquireSlot(ctx, "T", "g1", now+30*60, now); err != nil {
		t.Fatalf("AcquireSlot failed: %v", err)
	}
	lock, err = store.AcquireSlot(ctx, "T", "g2", now+31*60+1800, now+31*60)
	if err != nil {
		t.Fatalf("expected takeover after expiry, got %v", err)
	}
	if lock.GroupID != "g2" {
		t.Errorf("holder = %s, want g2", lock.GroupID)
	}

	if err := store.ReleaseSlot(ctx, "T", "g1"); err != nil {
		t.Fatalf("ReleaseSlot failed: %v", err)
	}
	if got, err := store.GetSlotLock(ctx, "T", now+31*60); err != nil || got.GroupID != "g2" {
		t.Errorf("release by non-holder changed the lock: %+v, %v", got, err)
	}
	if err := store.ReleaseSlot(ctx, "T", "g2"); err != nil {
		t.Fatalf("ReleaseSlot failed: %v", err)
	}
	if _, err := store.GetSlotLock(ctx, "T", now+31*60); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after release, got %v", err)
	}
}

func TestRedisAcquireConcurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	const groups = 16
	var wg sync.WaitGroup
	errs := make([]error, groups)
	for i := 0; i < groups; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.AcquireSlot(ctx, "race", uuid.NewString(), now+600, now)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, storage.ErrSlotHeld) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("Expected one winner, got %d", winners)
	}
}

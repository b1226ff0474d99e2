package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mmynk/groupcart/internal/models"
	"github.com/mmynk/groupcart/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleGroup() *models.Group {
	return &models.Group{
		Name:          "Hostel B lunch",
		OwnerMemberID: "m-owner",
		Status:        models.GroupStatusForming,
		Members: []models.Member{
			{ID: "m-owner", UserID: "alice", Role: models.MemberRoleOwner, JoinedAt: 100},
			{ID: "m-bob", UserID: "bob", Role: models.MemberRoleParticipant, JoinedAt: 200},
		},
		Invites: []models.Invite{
			{Token: "tok-1", Phone: "9000000001", Status: models.InviteStatusPending, CreatedAt: 150, ExpiresAt: 1000},
		},
		Items: []models.CartItem{
			{ID: "i-1", OwnerMemberID: "m-owner", CatalogRef: "dosa", Quantity: 2, PriceAtTime: 150, AddedAt: 300},
			{ID: "i-2", OwnerMemberID: "m-bob", CatalogRef: "thali", Quantity: 1, PriceAtTime: 300, AddedAt: 301},
		},
		Total: 600,
	}
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("CreateGroup generates ID and version", func(t *testing.T) {
		group := sampleGroup()
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		if group.ID == "" {
			t.Error("Expected group ID to be generated")
		}
		if group.Version != 1 {
			t.Errorf("Expected version 1, got %d", group.Version)
		}
		if group.CreatedAt == 0 {
			t.Error("Expected CreatedAt to be set")
		}
	})

	t.Run("GetGroup retrieves complete aggregate", func(t *testing.T) {
		original := sampleGroup()
		original.Split = &models.PaymentSplit{
			Policy: models.SplitPolicy{Type: models.SplitTypePercentage, Entries: []models.SplitEntry{
				{MemberID: "m-owner", Percent: 40},
				{MemberID: "m-bob", Percent: 60},
			}},
			CapturedTotal: 600,
			Obligations: []models.Obligation{
				{MemberID: "m-owner", Amount: 240},
				{MemberID: "m-bob", Amount: 360},
			},
		}
		if err := store.CreateGroup(ctx, original); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		got, err := store.GetGroup(ctx, original.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got.Name != original.Name || got.Status != models.GroupStatusForming || got.Total != 600 {
			t.Errorf("group mismatch: got %+v", got)
		}
		if len(got.Members) != 2 || got.Members[0].ID != "m-owner" || got.Members[1].ID != "m-bob" {
			t.Errorf("members out of join order: %+v", got.Members)
		}
		if len(got.Items) != 2 || got.Items[0].PriceAtTime != 150 {
			t.Errorf("items mismatch: %+v", got.Items)
		}
		if len(got.Invites) != 1 || got.Invites[0].Token != "tok-1" {
			t.Errorf("invites mismatch: %+v", got.Invites)
		}
		if got.Split == nil || got.Split.Policy.Type != models.SplitTypePercentage {
			t.Fatalf("split mismatch: %+v", got.Split)
		}
		if len(got.Split.Obligations) != 2 || got.Split.Obligations[1].Amount != 360 {
			t.Errorf("obligations mismatch: %+v", got.Split.Obligations)
		}
		if got.Order != nil {
			t.Errorf("expected no order, got %+v", got.Order)
		}
	})

	t.Run("GetGroup returns ErrNotFound for nonexistent group", func(t *testing.T) {
		_, err := store.GetGroup(ctx, "nonexistent-id")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("CommitIfVersion bumps version and rewrites children", func(t *testing.T) {
		group := sampleGroup()
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		group.Items = group.Items[:1]
		group.Total = 300
		group.Status = models.GroupStatusOrdered
		group.Order = &models.GroupOrder{
			OrderID:     "ext-1",
			Total:       300,
			PlacedAt:    500,
			Obligations: []models.Obligation{{MemberID: "m-owner", Amount: 300}},
		}
		if err := store.CommitIfVersion(ctx, group, 1); err != nil {
			t.Fatalf("CommitIfVersion failed: %v", err)
		}
		if group.Version != 2 {
			t.Errorf("Expected version 2, got %d", group.Version)
		}

		got, err := store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got.Version != 2 || len(got.Items) != 1 || got.Total != 300 {
			t.Errorf("commit not applied: %+v", got)
		}
		if got.Order == nil || got.Order.OrderID != "ext-1" || len(got.Order.Obligations) != 1 {
			t.Errorf("order not persisted: %+v", got.Order)
		}
	})

	t.Run("CommitIfVersion rejects stale version", func(t *testing.T) {
		group := sampleGroup()
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		stale := group.Clone()

		if err := store.CommitIfVersion(ctx, group, 1); err != nil {
			t.Fatalf("first commit failed: %v", err)
		}
		err := store.CommitIfVersion(ctx, stale, 1)
		if !errors.Is(err, storage.ErrVersionConflict) {
			t.Errorf("Expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("CommitIfVersion on missing group", func(t *testing.T) {
		group := sampleGroup()
		group.ID = "ghost"
		err := store.CommitIfVersion(ctx, group, 1)
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListGroupsByUser and FindInviteGroup", func(t *testing.T) {
		group := sampleGroup()
		group.Members[1].UserID = "carol"
		group.Invites[0].Token = "tok-carol"
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		groups, err := store.ListGroupsByUser(ctx, "carol")
		if err != nil {
			t.Fatalf("ListGroupsByUser failed: %v", err)
		}
		if len(groups) != 1 || groups[0].ID != group.ID {
			t.Errorf("Expected carol's single group, got %d groups", len(groups))
		}

		groupID, err := store.FindInviteGroup(ctx, "tok-carol")
		if err != nil {
			t.Fatalf("FindInviteGroup failed: %v", err)
		}
		if groupID != group.ID {
			t.Errorf("FindInviteGroup = %s, want %s", groupID, group.ID)
		}

		if _, err := store.FindInviteGroup(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListGroupsByStatus", func(t *testing.T) {
		group := sampleGroup()
		group.Status = models.GroupStatusOrdering
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		ids, err := store.ListGroupsByStatus(ctx, models.GroupStatusOrdering)
		if err != nil {
			t.Fatalf("ListGroupsByStatus failed: %v", err)
		}
		if len(ids) != 1 || ids[0] != group.ID {
			t.Errorf("ListGroupsByStatus = %v, want [%s]", ids, group.ID)
		}
	})
}

func TestCommitIfVersionSingleWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := sampleGroup()
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := group.Clone()
			g.Status = models.GroupStatusOrdering
			err := store.CommitIfVersion(ctx, g, 1)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, storage.ErrVersionConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one winner, got %d", wins)
	}
}

func TestSlotLocks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("acquire free slot", func(t *testing.T) {
		lock, err := store.AcquireSlot(ctx, "slot-1", "g1", 1800, 0)
		if err != nil {
			t.Fatalf("AcquireSlot failed: %v", err)
		}
		if lock.GroupID != "g1" || lock.LockedUntil != 1800 || lock.LockVersion != 1 {
			t.Errorf("unexpected lock: %+v", lock)
		}
	})

	t.Run("second group is refused while lock is live", func(t *testing.T) {
		_, err := store.AcquireSlot(ctx, "slot-1", "g2", 1900, 100)
		if !errors.Is(err, storage.ErrSlotHeld) {
			t.Errorf("Expected ErrSlotHeld, got %v", err)
		}
	})

	t.Run("holder re-acquire extends", func(t *testing.T) {
		lock, err := store.AcquireSlot(ctx, "slot-1", "g1", 2000, 100)
		if err != nil {
			t.Fatalf("AcquireSlot failed: %v", err)
		}
		if lock.LockedUntil != 2000 || lock.LockVersion != 2 {
			t.Errorf("unexpected lock: %+v", lock)
		}
	})

	t.Run("holder re-acquire never shortens", func(t *testing.T) {
		lock, err := store.AcquireSlot(ctx, "slot-1", "g1", 160, 100)
		if err != nil {
			t.Fatalf("AcquireSlot failed: %v", err)
		}
		if lock.LockedUntil != 2000 || lock.LockVersion != 3 {
			t.Errorf("unexpected lock: %+v", lock)
		}
	})

	t.Run("renew by holder", func(t *testing.T) {
		lock, err := store.RenewSlot(ctx, "slot-1", "g1", 2500, 200)
		if err != nil {
			t.Fatalf("RenewSlot failed: %v", err)
		}
		if lock.LockedUntil != 2500 {
			t.Errorf("LockedUntil = %d, want 2500", lock.LockedUntil)
		}
	})

	t.Run("renew by other group", func(t *testing.T) {
		_, err := store.RenewSlot(ctx, "slot-1", "g2", 2600, 200)
		if !errors.Is(err, storage.ErrNotHolder) {
			t.Errorf("Expected ErrNotHolder, got %v", err)
		}
	})

	t.Run("renew after expiry", func(t *testing.T) {
		_, err := store.RenewSlot(ctx, "slot-1", "g1", 4000, 2501)
		if !errors.Is(err, storage.ErrLockLapsed) {
			t.Errorf("Expected ErrLockLapsed, got %v", err)
		}
	})

	t.Run("expired lock is free for another group", func(t *testing.T) {
		if _, err := store.GetSlotLock(ctx, "slot-1", 2501); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected expired lock to read as free, got %v", err)
		}
		lock, err := store.AcquireSlot(ctx, "slot-1", "g2", 4300, 2501)
		if err != nil {
			t.Fatalf("AcquireSlot failed: %v", err)
		}
		if lock.GroupID != "g2" {
			t.Errorf("holder = %s, want g2", lock.GroupID)
		}
	})

	t.Run("release by non holder is a no-op", func(t *testing.T) {
		if err := store.ReleaseSlot(ctx, "slot-1", "g1"); err != nil {
			t.Fatalf("ReleaseSlot failed: %v", err)
		}
		lock, err := store.GetSlotLock(ctx, "slot-1", 2600)
		if err != nil || lock.GroupID != "g2" {
			t.Errorf("Expected g2 to still hold slot-1, got %+v, %v", lock, err)
		}
	})

	t.Run("reap expired", func(t *testing.T) {
		if _, err := store.AcquireSlot(ctx, "slot-2", "g3", 10, 0); err != nil {
			t.Fatalf("AcquireSlot failed: %v", err)
		}
		n, err := store.ReapExpiredLocks(ctx, 100)
		if err != nil {
			t.Fatalf("ReapExpiredLocks failed: %v", err)
		}
		if n != 1 {
			t.Errorf("reaped %d locks, want 1", n)
		}
	})
}

func TestAcquireSlotConcurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const groups = 10
	var wg sync.WaitGroup
	results := make([]error, groups)
	for i := 0; i < groups; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = store.AcquireSlot(ctx, "slot-S", "group-"+string(rune('a'+i)), 1800, 0)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, storage.ErrSlotHeld):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("Expected exactly one holder, got %d", winners)
	}
}

func TestIdempotencyKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.ReserveKey(ctx, "alice:AddCartItem", "k1", "fp", 10)
	if err != nil {
		t.Fatalf("ReserveKey failed: %v", err)
	}
	if rec.Completed {
		t.Error("fresh reservation should not be completed")
	}

	rec, err = store.ReserveKey(ctx, "alice:AddCartItem", "k1", "fp", 11)
	if !errors.Is(err, storage.ErrKeyExists) {
		t.Fatalf("Expected ErrKeyExists, got %v", err)
	}
	if rec.Completed {
		t.Error("in-flight reservation reported completed")
	}

	if err := store.CompleteKey(ctx, "alice:AddCartItem", "k1", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("CompleteKey failed: %v", err)
	}
	rec, err = store.ReserveKey(ctx, "alice:AddCartItem", "k1", "fp", 12)
	if !errors.Is(err, storage.ErrKeyExists) {
		t.Fatalf("Expected ErrKeyExists, got %v", err)
	}
	if !rec.Completed || string(rec.Result) != `{"ok":true}` || rec.Fingerprint != "fp" {
		t.Errorf("unexpected record: %+v", rec)
	}

	// Release only drops uncompleted keys
	if err := store.ReleaseKey(ctx, "alice:AddCartItem", "k1"); err != nil {
		t.Fatalf("ReleaseKey failed: %v", err)
	}
	if _, err := store.ReserveKey(ctx, "alice:AddCartItem", "k1", "fp", 13); !errors.Is(err, storage.ErrKeyExists) {
		t.Errorf("completed key should survive release, got %v", err)
	}

	// Same key in another scope is independent
	if _, err := store.ReserveKey(ctx, "bob:AddCartItem", "k1", "fp", 14); err != nil {
		t.Errorf("Expected separate scope to reserve, got %v", err)
	}

	n, err := store.PurgeKeys(ctx, 100)
	if err != nil {
		t.Fatalf("PurgeKeys failed: %v", err)
	}
	if n != 2 {
		t.Errorf("purged %d keys, want 2", n)
	}
}

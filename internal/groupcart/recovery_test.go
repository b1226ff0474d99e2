package groupcart

import (
	"context"
	"testing"
	"time"

	"github.com/mmynk/groupcart/internal/models"
)

// stuckInOrdering moves a group with a live lock into ordering directly, as
// if the process died right after winning the gate.
func (h *harness) stuckInOrdering(t *testing.T, slotID string) *models.Group {
	t.Helper()
	ctx := context.Background()

	g := h.formGroup(t, "alice", "bob")
	h.add(t, "alice", g.ID, "dosa", 2)
	h.add(t, "bob", g.ID, "thali", 1)
	if _, err := h.engine.LockSlot(ctx, as("alice"), g.ID, slotID, 30); err != nil {
		t.Fatalf("LockSlot failed: %v", err)
	}

	current, err := h.store.GetGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	next := current.Clone()
	if err := finalizeSplit(next, h.clock.Now().Unix()); err != nil {
		t.Fatalf("finalizeSplit failed: %v", err)
	}
	next.Status = models.GroupStatusOrdering
	next.OrderingSince = h.clock.Now().Unix()
	if err := h.store.CommitIfVersion(ctx, next, current.Version); err != nil {
		t.Fatalf("CommitIfVersion failed: %v", err)
	}
	return next
}

func TestSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("leaves recent ordering groups alone", func(t *testing.T) {
		h := newHarness(t)
		g := h.stuckInOrdering(t, "slot-1")
		h.clock.Advance(time.Minute)

		res, err := h.engine.Sweep(ctx)
		if err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
		if res != (SweepResult{}) {
			t.Errorf("Expected no changes, got %+v", res)
		}
		got, _ := h.engine.GetGroup(ctx, "alice", g.ID)
		if got.Status != models.GroupStatusOrdering {
			t.Errorf("Status = %s, want ordering", got.Status)
		}
	})

	t.Run("order exists", func(t *testing.T) {
		h := newHarness(t)
		g := h.stuckInOrdering(t, "slot-1")
		h.orders.orders[g.ID] = "order-recovered"
		h.clock.Advance(3 * time.Minute)

		res, err := h.engine.Sweep(ctx)
		if err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
		if res.Reconciled != 1 {
			t.Errorf("Reconciled = %d, want 1", res.Reconciled)
		}
		got, _ := h.engine.GetGroup(ctx, "alice", g.ID)
		if got.Status != models.GroupStatusOrdered || got.Order == nil || got.Order.OrderID != "order-recovered" {
			t.Errorf("After sweep: status %s, order %+v", got.Status, got.Order)
		}
		if got.Order.Total != 600 || len(got.Order.Obligations) != 2 {
			t.Errorf("Unexpected recovered order: %+v", got.Order)
		}
	})

	t.Run("no order and live lock", func(t *testing.T) {
		h := newHarness(t)
		g := h.stuckInOrdering(t, "slot-1")
		h.clock.Advance(3 * time.Minute)

		res, err := h.engine.Sweep(ctx)
		if err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
		if res.Reverted != 1 {
			t.Errorf("Reverted = %d, want 1", res.Reverted)
		}
		got, _ := h.engine.GetGroup(ctx, "alice", g.ID)
		if got.Status != models.GroupStatusSlotLocked || got.OrderingSince != 0 {
			t.Errorf("After sweep: status %s, ordering_since %d", got.Status, got.OrderingSince)
		}

		placed, err := h.engine.PlaceGroupOrder(ctx, as("bob"), g.ID)
		if err != nil {
			t.Fatalf("PlaceGroupOrder after revert failed: %v", err)
		}
		if placed.Status != models.GroupStatusOrdered {
			t.Errorf("Status = %s, want ordered", placed.Status)
		}
	})

	t.Run("no order and lapsed lock", func(t *testing.T) {
		h := newHarness(t)
		g := h.stuckInOrdering(t, "slot-1")
		h.clock.Advance(45 * time.Minute)

		res, err := h.engine.Sweep(ctx)
		if err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
		if res.Expired != 1 {
			t.Errorf("Expired = %d, want 1", res.Expired)
		}
		got, _ := h.engine.GetGroup(ctx, "alice", g.ID)
		if got.Status != models.GroupStatusExpired {
			t.Errorf("Status = %s, want expired", got.Status)
		}
	})

	t.Run("slot_locked with lapsed lock expires", func(t *testing.T) {
		h := newHarness(t)
		live := h.formGroup(t, "alice")
		stale := h.formGroup(t, "bob")
		if _, err := h.engine.LockSlot(ctx, as("alice"), live.ID, "slot-live", 60); err != nil {
			t.Fatalf("LockSlot failed: %v", err)
		}
		if _, err := h.engine.LockSlot(ctx, as("bob"), stale.ID, "slot-stale", 10); err != nil {
			t.Fatalf("LockSlot failed: %v", err)
		}
		h.clock.Advance(20 * time.Minute)

		res, err := h.engine.Sweep(ctx)
		if err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
		if res.Expired != 1 {
			t.Errorf("Expired = %d, want 1", res.Expired)
		}
		if got, _ := h.engine.GetGroup(ctx, "alice", live.ID); got.Status != models.GroupStatusSlotLocked {
			t.Errorf("Live group status = %s", got.Status)
		}
		if got, _ := h.engine.GetGroup(ctx, "bob", stale.ID); got.Status != models.GroupStatusExpired {
			t.Errorf("Stale group status = %s", got.Status)
		}
	})
}

func TestReap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.formGroup(t, "alice")

	if _, err := h.engine.LockSlot(ctx, as("alice"), g.ID, "slot-1", 10); err != nil {
		t.Fatalf("LockSlot failed: %v", err)
	}
	if _, err := h.engine.CreateGroup(ctx, Caller{UserID: "alice", IdempotencyKey: "k-1"}, "Dinner"); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	res, err := h.engine.Reap(ctx)
	if err != nil {
		t.Fatalf("Reap failed: %v", err)
	}
	if res.Locks != 0 || res.Keys != 0 {
		t.Errorf("Nothing should be reaped yet, got %+v", res)
	}

	h.clock.Advance(25 * time.Hour)
	res, err = h.engine.Reap(ctx)
	if err != nil {
		t.Fatalf("Reap failed: %v", err)
	}
	if res.Locks != 1 || res.Keys != 1 {
		t.Errorf("Expected one lock and one key reaped, got %+v", res)
	}
}

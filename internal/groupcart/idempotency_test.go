package groupcart

import (
	"context"
	"errors"
	"testing"

	"github.com/mmynk/groupcart/internal/models"
)

func TestIdempotentReplay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.formGroup(t, "alice", "bob")

	c := Caller{UserID: "bob", IdempotencyKey: "add-1"}
	first, err := h.engine.AddCartItem(ctx, c, g.ID, "thali", 1)
	if err != nil {
		t.Fatalf("AddCartItem failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := h.engine.AddCartItem(ctx, c, g.ID, "thali", 1)
		if err != nil {
			t.Fatalf("Replay %d failed: %v", i, err)
		}
		if again.Version != first.Version || again.Total != first.Total {
			t.Errorf("Replay %d returned version %d total %d, want %d/%d", i, again.Version, again.Total, first.Version, first.Total)
		}
	}

	got, _ := h.engine.GetGroup(ctx, "bob", g.ID)
	if got.Total != 300 || len(got.Items) != 1 || got.Items[0].Quantity != 1 {
		t.Errorf("Expected a single thali, got total %d items %+v", got.Total, got.Items)
	}

	t.Run("same key, different request", func(t *testing.T) {
		if _, err := h.engine.AddCartItem(ctx, c, g.ID, "thali", 2); !errors.Is(err, ErrIdempotencyKeyReused) {
			t.Errorf("Expected ErrIdempotencyKeyReused, got %v", err)
		}
	})

	t.Run("keys are scoped per user", func(t *testing.T) {
		other := Caller{UserID: "alice", IdempotencyKey: "add-1"}
		got, err := h.engine.AddCartItem(ctx, other, g.ID, "thali", 1)
		if err != nil {
			t.Fatalf("AddCartItem failed: %v", err)
		}
		if got.Total != 600 {
			t.Errorf("Total = %d, want 600", got.Total)
		}
	})

	t.Run("failed request can be retried with the same key", func(t *testing.T) {
		retry := Caller{UserID: "bob", IdempotencyKey: "add-2"}
		if _, err := h.engine.AddCartItem(ctx, retry, g.ID, "samosa", 1); err == nil {
			t.Fatal("Expected unknown catalog item to fail")
		}
		h.catalog.Set("samosa", 25)
		got, err := h.engine.AddCartItem(ctx, retry, g.ID, "samosa", 1)
		if err != nil {
			t.Fatalf("Retry failed: %v", err)
		}
		if got.Total != 625 {
			t.Errorf("Total = %d, want 625", got.Total)
		}
	})

	t.Run("in flight", func(t *testing.T) {
		req := struct {
			GroupID string `json:"group_id"`
		}{g.ID}
		fp, err := fingerprintOf("cancel_group", req)
		if err != nil {
			t.Fatalf("fingerprintOf failed: %v", err)
		}
		if _, err := h.store.ReserveKey(ctx, "alice:cancel_group", "cancel-1", fp, h.engine.now()); err != nil {
			t.Fatalf("ReserveKey failed: %v", err)
		}
		_, err = h.engine.CancelGroup(ctx, Caller{UserID: "alice", IdempotencyKey: "cancel-1"}, g.ID)
		if !errors.Is(err, ErrRequestInFlight) {
			t.Errorf("Expected ErrRequestInFlight, got %v", err)
		}
	})
}

func TestIdempotentPlacement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.formGroup(t, "alice")
	h.add(t, "alice", g.ID, "dosa", 1)
	if _, err := h.engine.LockSlot(ctx, as("alice"), g.ID, "slot-1", 30); err != nil {
		t.Fatalf("LockSlot failed: %v", err)
	}

	c := Caller{UserID: "alice", IdempotencyKey: "place-1"}
	first, err := h.engine.PlaceGroupOrder(ctx, c, g.ID)
	if err != nil {
		t.Fatalf("PlaceGroupOrder failed: %v", err)
	}
	second, err := h.engine.PlaceGroupOrder(ctx, c, g.ID)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if second.Status != models.GroupStatusOrdered || second.Order.OrderID != first.Order.OrderID {
		t.Errorf("Replay returned %s / %+v", second.Status, second.Order)
	}
	if h.orders.Calls() != 1 {
		t.Errorf("Order service called %d times", h.orders.Calls())
	}
}

func TestFingerprintDependsOnOperation(t *testing.T) {
	req := struct {
		GroupID string `json:"group_id"`
	}{"g-1"}
	a, err := fingerprintOf("cancel_group", req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := fingerprintOf("release_slot", req)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("Expected different fingerprints for different operations")
	}
	if len(a) != 64 {
		t.Errorf("Expected a hex blake2b-256 digest, got %d chars", len(a))
	}
}

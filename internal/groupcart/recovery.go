package groupcart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/groupcart/internal/events"
	"github.com/mmynk/groupcart/internal/models"
)

// SweepResult counts what one recovery sweep did.
type SweepResult struct {
	// Reconciled groups were stuck in ordering but the order existed.
	Reconciled int `json:"reconciled"`
	// Reverted groups were stuck in ordering and went back to slot_locked.
	Reverted int `json:"reverted"`
	// Expired groups lost their slot lock without ordering.
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// Sweep reconciles groups that cannot make progress on their own.
//
// A group in ordering for longer than OrderingTimeout had its placement
// interrupted. The order service is asked whether the order exists: if it
// does the group becomes ordered, otherwise it returns to slot_locked while
// its lock is live, or expires. A group in slot_locked whose lock lapsed
// expires.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	ordering, err := e.groups.ListGroupsByStatus(ctx, models.GroupStatusOrdering)
	if err != nil {
		return res, fmt.Errorf("failed to list ordering groups: %w", err)
	}
	cutoff := e.now() - int64(e.opts.OrderingTimeout.Seconds())
	for _, id := range ordering {
		outcome, err := e.reconcileOrdering(ctx, id, cutoff)
		if err != nil {
			res.Failed++
			e.metrics.SweepOutcome("failed")
			slog.ErrorContext(ctx, "Failed to reconcile ordering group", "group_id", id, "error", err)
			continue
		}
		res.count(outcome)
	}

	locked, err := e.groups.ListGroupsByStatus(ctx, models.GroupStatusSlotLocked)
	if err != nil {
		return res, fmt.Errorf("failed to list slot_locked groups: %w", err)
	}
	for _, id := range locked {
		outcome, err := e.expireIfLapsed(ctx, id)
		if err != nil {
			res.Failed++
			e.metrics.SweepOutcome("failed")
			slog.ErrorContext(ctx, "Failed to check slot lock", "group_id", id, "error", err)
			continue
		}
		res.count(outcome)
	}

	if res != (SweepResult{}) {
		slog.InfoContext(ctx, "Recovery sweep finished",
			"reconciled", res.Reconciled,
			"reverted", res.Reverted,
			"expired", res.Expired,
			"failed", res.Failed,
		)
	}
	return res, nil
}

func (r *SweepResult) count(outcome string) {
	switch outcome {
	case "reconciled":
		r.Reconciled++
	case "reverted":
		r.Reverted++
	case "expired":
		r.Expired++
	}
}

func (e *Engine) reconcileOrdering(ctx context.Context, groupID string, cutoff int64) (string, error) {
	g, err := e.load(ctx, groupID)
	if err != nil {
		return "", err
	}
	if g.Status != models.GroupStatusOrdering || g.OrderingSince > cutoff {
		return "", nil
	}

	orderID, found, err := e.orders.LookupOrder(ctx, g.ID)
	if err != nil {
		return "", fmt.Errorf("failed to look up order: %w", err)
	}

	var outcome string
	updated, err := e.update(ctx, "sweep", groupID, func(g *models.Group, now int64) error {
		outcome = ""
		if g.Status != models.GroupStatusOrdering {
			return errNoChange
		}
		if found {
			recordOrder(g, orderID, now)
			outcome = "reconciled"
			return nil
		}
		live, err := e.liveLock(ctx, g, now)
		if err != nil {
			return err
		}
		g.OrderingSince = 0
		if live {
			g.Status = models.GroupStatusSlotLocked
			outcome = "reverted"
			return nil
		}
		g.Status = models.GroupStatusExpired
		g.SlotID = ""
		g.SlotLockedUntil = 0
		outcome = "expired"
		return nil
	})
	if err != nil {
		return "", err
	}
	if outcome == "" {
		return "", nil
	}

	e.metrics.SweepOutcome(outcome)
	slog.InfoContext(ctx, "Reconciled stuck group", "group_id", groupID, "outcome", outcome, "order_id", orderID)
	switch outcome {
	case "reconciled":
		e.metrics.Placement("ordered")
		e.publish(ctx, events.OrderPlaced, updated, "", map[string]any{"order_id": orderID, "recovered": true})
	case "reverted":
		e.publish(ctx, events.OrderFailed, updated, "", map[string]any{"recovered": true})
	case "expired":
		e.publish(ctx, events.GroupExpired, updated, "", nil)
	}
	return outcome, nil
}

func (e *Engine) expireIfLapsed(ctx context.Context, groupID string) (string, error) {
	expired := false
	updated, err := e.update(ctx, "sweep", groupID, func(g *models.Group, now int64) error {
		expired = false
		if g.Status != models.GroupStatusSlotLocked {
			return errNoChange
		}
		live, err := e.liveLock(ctx, g, now)
		if err != nil {
			return err
		}
		if live {
			return errNoChange
		}
		g.Status = models.GroupStatusExpired
		g.SlotID = ""
		g.SlotLockedUntil = 0
		expired = true
		return nil
	})
	if errors.Is(err, ErrGroupNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !expired {
		return "", nil
	}
	e.metrics.SweepOutcome("expired")
	slog.InfoContext(ctx, "Group expired after slot lock lapsed", "group_id", groupID)
	e.publish(ctx, events.GroupExpired, updated, "", nil)
	return "expired", nil
}

// ReapResult counts records deleted by Reap.
type ReapResult struct {
	Locks int64 `json:"locks"`
	Keys  int64 `json:"keys"`
}

// Reap deletes slot lock records that expired more than ReapAfter ago and
// idempotency records older than IdempotencyRetention. Correctness never
// depends on it; it only bounds storage.
func (e *Engine) Reap(ctx context.Context) (ReapResult, error) {
	var res ReapResult
	now := e.now()

	n, err := e.locks.ReapExpiredLocks(ctx, now-int64(e.opts.ReapAfter.Seconds()))
	if err != nil {
		return res, fmt.Errorf("failed to reap slot locks: %w", err)
	}
	res.Locks = n
	e.metrics.Reaped("slot_lock", n)

	if e.keys != nil {
		n, err = e.keys.PurgeKeys(ctx, now-int64(e.opts.IdempotencyRetention.Seconds()))
		if err != nil {
			return res, fmt.Errorf("failed to purge idempotency keys: %w", err)
		}
		res.Keys = n
		e.metrics.Reaped("idempotency_key", n)
	}

	if res.Locks > 0 || res.Keys > 0 {
		slog.InfoContext(ctx, "Reaped stale records", "locks", res.Locks, "keys", res.Keys)
	}
	return res, nil
}

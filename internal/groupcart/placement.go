package groupcart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/groupcart/internal/calculator"
	"github.com/mmynk/groupcart/internal/events"
	"github.com/mmynk/groupcart/internal/models"
)

// PlaceGroupOrder places the single order for the group.
//
// The move to ordering is the gate: of any number of concurrent callers only
// the one whose commit wins calls the order service. Everyone else sees the
// group in ordering or ordered. On success the group is ordered and carries
// its GroupOrder. If the order service keeps failing the group goes back to
// slot_locked and ErrOrderPlacementFailed is returned; placing again is safe.
func (e *Engine) PlaceGroupOrder(ctx context.Context, c Caller, groupID string) (*models.Group, error) {
	req := struct {
		GroupID string `json:"group_id"`
	}{groupID}
	return runIdempotent(ctx, e, c, "place_group_order", req, func() (*models.Group, error) {
		return e.placeGroupOrder(ctx, c.UserID, groupID)
	})
}

func (e *Engine) placeGroupOrder(ctx context.Context, userID, groupID string) (*models.Group, error) {
	var (
		lapsed  bool
		already bool
	)
	g, err := e.update(ctx, "place_group_order", groupID, func(g *models.Group, now int64) error {
		lapsed, already = false, false
		if _, err := requireMember(g, userID); err != nil {
			return err
		}
		switch g.Status {
		case models.GroupStatusOrdered:
			already = true
			return errNoChange
		case models.GroupStatusOrdering:
			return fmt.Errorf("%w: order placement already in progress", ErrConflict)
		case models.GroupStatusForming, models.GroupStatusSlotLocked:
		default:
			return fmt.Errorf("%w: status is %s", ErrGroupClosed, g.Status)
		}
		if g.SlotID == "" {
			return ErrNoSlotLock
		}
		live, err := e.liveLock(ctx, g, now)
		if err != nil {
			return err
		}
		if !live {
			lapsed = true
			g.Status = models.GroupStatusExpired
			g.SlotID = ""
			g.SlotLockedUntil = 0
			return nil
		}
		if len(g.Items) == 0 {
			return ErrEmptyCart
		}
		if err := finalizeSplit(g, now); err != nil {
			return err
		}

		g.Status = models.GroupStatusOrdering
		g.OrderingSince = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSplitMismatch) || errors.Is(err, ErrEmptyCart) || errors.Is(err, ErrNoSlotLock) {
			e.metrics.Placement("rejected")
		}
		return nil, err
	}
	if already {
		return g, nil
	}
	if lapsed {
		e.metrics.Placement("lock_expired")
		slog.WarnContext(ctx, "Slot lock lapsed before placement", "group_id", g.ID)
		e.publish(ctx, events.GroupExpired, g, userID, nil)
		return nil, ErrLockExpired
	}

	slog.InfoContext(ctx, "Ordering gate won", "group_id", g.ID, "version", g.Version, "total", g.Total)

	// The order service call and the final commit must not be cut short by
	// the caller going away; an abandoned gate is left for the sweeper.
	bg := context.WithoutCancel(ctx)
	orderID, err := e.createOrder(bg, g)
	if err != nil {
		return nil, e.revertOrdering(bg, g, userID, err)
	}
	return e.finishOrder(bg, g.ID, orderID, userID)
}

// finalizeSplit makes sure the group carries a split resolved against the
// live total. A group without a split is split equally.
func finalizeSplit(g *models.Group, now int64) error {
	total := g.RecomputeTotal()
	if g.Split == nil {
		g.Split = &models.PaymentSplit{
			GroupID: g.ID,
			Policy:  models.SplitPolicy{Type: models.SplitTypeEqual},
		}
	}
	if !g.Split.Stale(total) {
		return nil
	}
	obligations, err := calculator.Resolve(g.Split.Policy, total, g.Members, g.OwnerMemberID)
	if err != nil {
		return fmt.Errorf("%w: split is stale and cannot be resolved against total %d: %v", ErrSplitMismatch, total, err)
	}
	g.Split.Obligations = obligations
	g.Split.CapturedTotal = total
	g.Split.UpdatedAt = now
	return nil
}

// createOrder calls the order service up to OrderAttempts times with the
// group id as idempotency key.
func (e *Engine) createOrder(ctx context.Context, g *models.Group) (string, error) {
	req := models.OrderRequest{
		GroupID: g.ID,
		SlotID:  g.SlotID,
		Items:   g.Items,
		Payers:  g.Split.Obligations,
		Total:   g.Total,
	}
	var lastErr error
	for attempt := 1; attempt <= e.opts.OrderAttempts; attempt++ {
		orderID, err := e.orders.CreateOrder(ctx, g.ID, req)
		if err == nil {
			return orderID, nil
		}
		lastErr = err
		slog.WarnContext(ctx, "Order service call failed",
			"group_id", g.ID,
			"attempt", attempt,
			"error", err,
		)
		if attempt < e.opts.OrderAttempts {
			if err := sleep(ctx, e.opts.OrderBackoff); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

// finishOrder records the external order and moves the group to ordered.
func (e *Engine) finishOrder(ctx context.Context, groupID, orderID, actor string) (*models.Group, error) {
	g, err := e.update(ctx, "finish_order", groupID, func(g *models.Group, now int64) error {
		if g.Order != nil {
			return errNoChange
		}
		recordOrder(g, orderID, now)
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to record placed order", "group_id", groupID, "order_id", orderID, "error", err)
		return nil, err
	}

	e.metrics.Placement("ordered")
	slog.InfoContext(ctx, "Group order placed", "group_id", g.ID, "order_id", orderID, "total", g.Total)
	e.publish(ctx, events.OrderPlaced, g, actor, map[string]any{"order_id": orderID})
	return g, nil
}

// revertOrdering puts a group whose order failed back to slot_locked.
func (e *Engine) revertOrdering(ctx context.Context, g *models.Group, actor string, cause error) error {
	e.metrics.Placement("failed")
	reverted, err := e.update(ctx, "revert_ordering", g.ID, func(g *models.Group, now int64) error {
		if g.Status != models.GroupStatusOrdering {
			return errNoChange
		}
		g.Status = models.GroupStatusSlotLocked
		g.OrderingSince = 0
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to revert group after order failure", "group_id", g.ID, "error", err)
	} else {
		e.publish(ctx, events.OrderFailed, reverted, actor, map[string]any{"error": cause.Error()})
	}
	return fmt.Errorf("%w: %v", ErrOrderPlacementFailed, cause)
}

func recordOrder(g *models.Group, orderID string, now int64) {
	var obligations []models.Obligation
	if g.Split != nil {
		obligations = append(obligations, g.Split.Obligations...)
	}
	g.Order = &models.GroupOrder{
		GroupID:     g.ID,
		OrderID:     orderID,
		Obligations: obligations,
		Total:       g.Total,
		PlacedAt:    now,
	}
	g.Status = models.GroupStatusOrdered
	g.OrderingSince = 0
}

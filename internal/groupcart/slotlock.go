package groupcart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/groupcart/internal/events"
	"github.com/mmynk/groupcart/internal/models"
	"github.com/mmynk/groupcart/internal/storage"
)

// LockSlot takes an exclusive hold on a pickup slot for the group for the
// given number of minutes and moves the group to slot_locked. Any member may
// lock. Locking the slot the group already holds extends it; locking a
// different slot gives up the previous one.
func (e *Engine) LockSlot(ctx context.Context, c Caller, groupID, slotID string, minutes int) (*models.Group, error) {
	req := struct {
		GroupID string `json:"group_id"`
		SlotID  string `json:"slot_id"`
		Minutes int    `json:"minutes"`
	}{groupID, slotID, minutes}
	return runIdempotent(ctx, e, c, "lock_slot", req, func() (*models.Group, error) {
		return e.lockSlot(ctx, c.UserID, groupID, slotID, minutes)
	})
}

func (e *Engine) lockSlot(ctx context.Context, userID, groupID, slotID string, minutes int) (*models.Group, error) {
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		return nil, fmt.Errorf("%w: slot is required", ErrInvalidArgument)
	}
	if err := e.validateMinutes(minutes); err != nil {
		return nil, err
	}

	current, err := e.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := requireMember(current, userID); err != nil {
		return nil, err
	}
	if err := requireLockable(current); err != nil {
		return nil, err
	}
	heldBefore := current.Status == models.GroupStatusSlotLocked && current.SlotID == slotID

	now := e.now()
	lock, err := e.locks.AcquireSlot(ctx, slotID, groupID, now+int64(minutes)*60, now)
	if errors.Is(err, storage.ErrSlotHeld) {
		e.metrics.SlotLock("held")
		return nil, ErrSlotAlreadyLocked
	}
	if err != nil {
		e.metrics.SlotLock("error")
		return nil, fmt.Errorf("failed to acquire slot: %w", err)
	}

	var previous string
	g, err := e.update(ctx, "lock_slot", groupID, func(g *models.Group, now int64) error {
		if _, err := requireMember(g, userID); err != nil {
			return err
		}
		if err := requireLockable(g); err != nil {
			return err
		}
		previous = ""
		if g.SlotID != "" && g.SlotID != slotID {
			previous = g.SlotID
		}
		g.Status = models.GroupStatusSlotLocked
		g.SlotID = lock.SlotID
		g.SlotLockedUntil = lock.LockedUntil
		return nil
	})
	if err != nil {
		e.abandonSlot(context.WithoutCancel(ctx), groupID, slotID, heldBefore)
		e.metrics.SlotLock("aborted")
		return nil, err
	}
	if previous != "" {
		if err := e.locks.ReleaseSlot(ctx, previous, groupID); err != nil {
			slog.WarnContext(ctx, "Failed to release previous slot", "slot_id", previous, "group_id", groupID, "error", err)
		}
	}

	e.metrics.SlotLock("acquired")
	slog.InfoContext(ctx, "Slot locked",
		"group_id", g.ID,
		"slot_id", slotID,
		"locked_until", lock.LockedUntil,
		"lock_version", lock.LockVersion,
	)
	e.publish(ctx, events.SlotLocked, g, userID, map[string]any{"slot_id": slotID, "locked_until": lock.LockedUntil})
	return g, nil
}

// abandonSlot releases a slot acquired for a lock whose commit failed,
// unless the stored group still holds it. The group may have changed since
// it was loaded for the acquire (a concurrent cancel frees the slot), so it
// is read again. heldBefore is only used when that read fails.
func (e *Engine) abandonSlot(ctx context.Context, groupID, slotID string, heldBefore bool) {
	keep := heldBefore
	g, err := e.load(ctx, groupID)
	switch {
	case err == nil:
		keep = g.Status == models.GroupStatusSlotLocked && g.SlotID == slotID
	case errors.Is(err, ErrGroupNotFound):
		keep = false
	default:
		slog.WarnContext(ctx, "Failed to reload group after aborted lock", "group_id", groupID, "error", err)
	}
	if keep {
		return
	}
	if err := e.locks.ReleaseSlot(ctx, slotID, groupID); err != nil {
		slog.WarnContext(ctx, "Failed to release slot after aborted lock", "slot_id", slotID, "group_id", groupID, "error", err)
	}
}

// RenewSlot extends the group's lock. It fails with ErrLockExpired if the
// lock already lapsed, even when no other group has taken the slot yet.
func (e *Engine) RenewSlot(ctx context.Context, c Caller, groupID string, minutes int) (*models.Group, error) {
	req := struct {
		GroupID string `json:"group_id"`
		Minutes int    `json:"minutes"`
	}{groupID, minutes}
	return runIdempotent(ctx, e, c, "renew_slot", req, func() (*models.Group, error) {
		return e.renewSlot(ctx, c.UserID, groupID, minutes)
	})
}

func (e *Engine) renewSlot(ctx context.Context, userID, groupID string, minutes int) (*models.Group, error) {
	if err := e.validateMinutes(minutes); err != nil {
		return nil, err
	}
	current, err := e.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := requireMember(current, userID); err != nil {
		return nil, err
	}
	if current.Status != models.GroupStatusSlotLocked || current.SlotID == "" {
		return nil, ErrNoSlotLock
	}

	now := e.now()
	lock, err := e.locks.RenewSlot(ctx, current.SlotID, groupID, now+int64(minutes)*60, now)
	switch {
	case errors.Is(err, storage.ErrLockLapsed), errors.Is(err, storage.ErrNotHolder):
		return nil, ErrLockExpired
	case err != nil:
		return nil, fmt.Errorf("failed to renew slot: %w", err)
	}

	g, err := e.update(ctx, "renew_slot", groupID, func(g *models.Group, now int64) error {
		if g.Status != models.GroupStatusSlotLocked || g.SlotID != lock.SlotID {
			return errNoChange
		}
		g.SlotLockedUntil = lock.LockedUntil
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Slot renewed", "group_id", g.ID, "slot_id", lock.SlotID, "locked_until", lock.LockedUntil)
	e.publish(ctx, events.SlotRenewed, g, userID, map[string]any{"slot_id": lock.SlotID, "locked_until": lock.LockedUntil})
	return g, nil
}

// ReleaseSlot gives the slot back and returns the group to forming so the
// cart can change again.
func (e *Engine) ReleaseSlot(ctx context.Context, c Caller, groupID string) (*models.Group, error) {
	req := struct {
		GroupID string `json:"group_id"`
	}{groupID}
	return runIdempotent(ctx, e, c, "release_slot", req, func() (*models.Group, error) {
		return e.releaseSlot(ctx, c.UserID, groupID)
	})
}

func (e *Engine) releaseSlot(ctx context.Context, userID, groupID string) (*models.Group, error) {
	var slotID string
	g, err := e.update(ctx, "release_slot", groupID, func(g *models.Group, now int64) error {
		slotID = ""
		if _, err := requireMember(g, userID); err != nil {
			return err
		}
		switch g.Status {
		case models.GroupStatusSlotLocked:
		case models.GroupStatusForming:
			return errNoChange
		default:
			return fmt.Errorf("%w: status is %s", ErrGroupClosed, g.Status)
		}
		slotID = g.SlotID
		g.Status = models.GroupStatusForming
		g.SlotID = ""
		g.SlotLockedUntil = 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	if slotID == "" {
		return g, nil
	}

	if err := e.locks.ReleaseSlot(ctx, slotID, groupID); err != nil {
		slog.WarnContext(ctx, "Failed to release slot", "slot_id", slotID, "group_id", groupID, "error", err)
	}
	slog.InfoContext(ctx, "Slot released", "group_id", g.ID, "slot_id", slotID)
	e.publish(ctx, events.SlotReleased, g, userID, map[string]any{"slot_id": slotID})
	return g, nil
}

// GetSlotLock returns the live lock on a slot, or nil if it is free.
func (e *Engine) GetSlotLock(ctx context.Context, slotID string) (*models.SlotLock, error) {
	lock, err := e.locks.GetSlotLock(ctx, slotID, e.now())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot lock: %w", err)
	}
	return lock, nil
}

func (e *Engine) validateMinutes(minutes int) error {
	if minutes <= 0 || minutes > e.opts.MaxLockMinutes {
		return fmt.Errorf("%w: lock duration must be between 1 and %d minutes", ErrInvalidArgument, e.opts.MaxLockMinutes)
	}
	return nil
}

func requireLockable(g *models.Group) error {
	switch g.Status {
	case models.GroupStatusForming, models.GroupStatusSlotLocked:
		return nil
	}
	return fmt.Errorf("%w: status is %s", ErrGroupClosed, g.Status)
}

// liveLock reports whether the group still holds an unexpired lock on its
// slot according to the lock table.
func (e *Engine) liveLock(ctx context.Context, g *models.Group, now int64) (bool, error) {
	if g.SlotID == "" {
		return false, nil
	}
	lock, err := e.locks.GetSlotLock(ctx, g.SlotID, now)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read slot lock: %w", err)
	}
	return lock.GroupID == g.ID, nil
}

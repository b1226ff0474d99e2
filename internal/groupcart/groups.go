package groupcart

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mmynk/groupcart/internal/events"
	"github.com/mmynk/groupcart/internal/models"
)

// CreateGroup starts a new group in forming with the caller as owner.
func (e *Engine) CreateGroup(ctx context.Context, c Caller, name string) (*models.Group, error) {
	req := struct {
		Name string `json:"name"`
	}{name}
	return runIdempotent(ctx, e, c, "create_group", req, func() (*models.Group, error) {
		return e.createGroup(ctx, c.UserID, name)
	})
}

func (e *Engine) createGroup(ctx context.Context, userID, name string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidArgument)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidArgument)
	}

	now := e.now()
	groupID := uuid.NewString()
	owner := models.Member{
		ID:       uuid.NewString(),
		GroupID:  groupID,
		UserID:   userID,
		Role:     models.MemberRoleOwner,
		JoinedAt: now,
	}
	g := &models.Group{
		ID:            groupID,
		Name:          name,
		OwnerMemberID: owner.ID,
		Status:        models.GroupStatusForming,
		Members:       []models.Member{owner},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.groups.CreateGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	slog.InfoContext(ctx, "Group created", "group_id", g.ID, "owner", userID)
	e.publish(ctx, events.GroupCreated, g, userID, nil)
	return g, nil
}

// GetGroup returns the group if the caller is one of its members.
func (e *Engine) GetGroup(ctx context.Context, userID, groupID string) (*models.Group, error) {
	g, err := e.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := requireMember(g, userID); err != nil {
		return nil, err
	}
	return g, nil
}

// ListMyGroups returns every group the user belongs to, in any status.
func (e *Engine) ListMyGroups(ctx context.Context, userID string) ([]*models.Group, error) {
	groups, err := e.groups.ListGroupsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

// CancelGroup abandons the group. Any member may cancel while the group is
// forming or holds a slot; the slot is freed. A group in ordering cannot be
// cancelled until the placement attempt resolves.
func (e *Engine) CancelGroup(ctx context.Context, c Caller, groupID string) (*models.Group, error) {
	req := struct {
		GroupID string `json:"group_id"`
	}{groupID}
	return runIdempotent(ctx, e, c, "cancel_group", req, func() (*models.Group, error) {
		return e.cancelGroup(ctx, c.UserID, groupID)
	})
}

func (e *Engine) cancelGroup(ctx context.Context, userID, groupID string) (*models.Group, error) {
	var slotID string
	changed := false
	g, err := e.update(ctx, "cancel_group", groupID, func(g *models.Group, now int64) error {
		slotID, changed = "", false
		if _, err := requireMember(g, userID); err != nil {
			return err
		}
		switch g.Status {
		case models.GroupStatusForming, models.GroupStatusSlotLocked:
		case models.GroupStatusCancelled:
			return errNoChange
		default:
			return fmt.Errorf("%w: cannot cancel while %s", ErrGroupClosed, g.Status)
		}
		slotID, changed = g.SlotID, true
		g.Status = models.GroupStatusCancelled
		g.SlotID = ""
		g.SlotLockedUntil = 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return g, nil
	}

	if slotID != "" {
		if err := e.locks.ReleaseSlot(ctx, slotID, g.ID); err != nil {
			slog.WarnContext(ctx, "Failed to release slot of cancelled group", "group_id", g.ID, "slot_id", slotID, "error", err)
		}
	}
	slog.InfoContext(ctx, "Group cancelled", "group_id", g.ID, "by", userID)
	e.publish(ctx, events.GroupCancelled, g, userID, nil)
	return g, nil
}

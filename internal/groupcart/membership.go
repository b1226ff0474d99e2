package groupcart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mmynk/groupcart/internal/events"
	"github.com/mmynk/groupcart/internal/models"
	"github.com/mmynk/groupcart/internal/storage"
)

// InviteMember creates a pending invite for a phone number. Only the owner
// may invite, and only while the group is forming. Inviting a phone that
// already has a live pending invite returns that invite.
func (e *Engine) InviteMember(ctx context.Context, c Caller, groupID, phone string) (*models.Invite, error) {
	req := struct {
		GroupID string `json:"group_id"`
		Phone   string `json:"phone"`
	}{groupID, phone}
	return runIdempotent(ctx, e, c, "invite_member", req, func() (*models.Invite, error) {
		return e.inviteMember(ctx, c.UserID, groupID, phone)
	})
}

func (e *Engine) inviteMember(ctx context.Context, userID, groupID, phone string) (*models.Invite, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("%w: phone is required", ErrInvalidArgument)
	}

	var invite models.Invite
	created := false
	g, err := e.update(ctx, "invite_member", groupID, func(g *models.Group, now int64) error {
		created = false
		if _, err := requireOwner(g, userID); err != nil {
			return err
		}
		if err := requireForming(g); err != nil {
			return err
		}

		kept := g.Invites[:0]
		for _, inv := range g.Invites {
			if inv.Phone == phone && inv.Status == models.InviteStatusPending {
				if !inv.Expired(now) {
					invite = inv
					return errNoChange
				}
				// Replaced below by a fresh invite.
				continue
			}
			kept = append(kept, inv)
		}
		invite = models.Invite{
			Token:     uuid.NewString(),
			GroupID:   g.ID,
			Phone:     phone,
			Status:    models.InviteStatusPending,
			CreatedAt: now,
			ExpiresAt: now + int64(e.opts.InviteTTL.Seconds()),
		}
		g.Invites = append(kept, invite)
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		slog.InfoContext(ctx, "Member invited", "group_id", g.ID, "invite_expires_at", invite.ExpiresAt)
		e.publish(ctx, events.MemberInvited, g, userID, map[string]any{"phone": phone})
	}
	return &invite, nil
}

// AcceptInvite turns an invite token into a participant membership.
func (e *Engine) AcceptInvite(ctx context.Context, c Caller, token string) (*models.Group, error) {
	req := struct {
		Token string `json:"token"`
	}{token}
	return runIdempotent(ctx, e, c, "accept_invite", req, func() (*models.Group, error) {
		return e.acceptInvite(ctx, c.UserID, token)
	})
}

func (e *Engine) acceptInvite(ctx context.Context, userID, token string) (*models.Group, error) {
	if token == "" || userID == "" {
		return nil, fmt.Errorf("%w: token and user are required", ErrInvalidArgument)
	}
	groupID, err := e.groups.FindInviteGroup(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invite: %w", err)
	}

	g, err := e.update(ctx, "accept_invite", groupID, func(g *models.Group, now int64) error {
		var inv *models.Invite
		for i := range g.Invites {
			if g.Invites[i].Token == token {
				inv = &g.Invites[i]
				break
			}
		}
		if inv == nil {
			return ErrInviteNotFound
		}
		if _, ok := g.MemberByUser(userID); ok {
			return ErrAlreadyMember
		}
		if err := requireForming(g); err != nil {
			return err
		}
		if inv.Status != models.InviteStatusPending {
			return fmt.Errorf("%w: invite already used", ErrInviteNotFound)
		}
		if inv.Expired(now) {
			return ErrInviteExpired
		}

		inv.Status = models.InviteStatusAccepted
		inv.AcceptedBy = userID
		g.Members = append(g.Members, models.Member{
			ID:       uuid.NewString(),
			GroupID:  g.ID,
			UserID:   userID,
			Role:     models.MemberRoleParticipant,
			JoinedAt: now,
		})
		refreshTotals(g, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Member joined", "group_id", g.ID, "user_id", userID, "members", len(g.Members))
	e.publish(ctx, events.MemberJoined, g, userID, nil)
	return g, nil
}

// RemoveMember removes a participant. Owner only, forming only. The
// member's items are forfeited and the total and split are recomputed.
func (e *Engine) RemoveMember(ctx context.Context, c Caller, groupID, memberID string) (*models.Group, error) {
	req := struct {
		GroupID  string `json:"group_id"`
		MemberID string `json:"member_id"`
	}{groupID, memberID}
	return runIdempotent(ctx, e, c, "remove_member", req, func() (*models.Group, error) {
		g, err := e.update(ctx, "remove_member", groupID, func(g *models.Group, now int64) error {
			owner, err := requireOwner(g, c.UserID)
			if err != nil {
				return err
			}
			if err := requireForming(g); err != nil {
				return err
			}
			if memberID == owner.ID {
				return fmt.Errorf("%w: the owner cannot be removed", ErrInvalidArgument)
			}
			if _, ok := g.MemberByID(memberID); !ok {
				return fmt.Errorf("%w: member %s", ErrNotMember, memberID)
			}
			dropMember(g, memberID, now)
			return nil
		})
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Member removed", "group_id", g.ID, "member_id", memberID, "total", g.Total)
		e.publish(ctx, events.MemberRemoved, g, c.UserID, map[string]any{"member_id": memberID})
		return g, nil
	})
}

// LeaveGroup lets a participant leave while the group is forming, with the
// same forfeit rules as removal. The owner cannot leave; they cancel.
func (e *Engine) LeaveGroup(ctx context.Context, c Caller, groupID string) (*models.Group, error) {
	req := struct {
		GroupID string `json:"group_id"`
	}{groupID}
	return runIdempotent(ctx, e, c, "leave_group", req, func() (*models.Group, error) {
		var memberID string
		g, err := e.update(ctx, "leave_group", groupID, func(g *models.Group, now int64) error {
			m, err := requireMember(g, c.UserID)
			if err != nil {
				return err
			}
			if m.Role == models.MemberRoleOwner {
				return fmt.Errorf("%w: the owner cannot leave, cancel the group instead", ErrInvalidArgument)
			}
			if err := requireForming(g); err != nil {
				return err
			}
			memberID = m.ID
			dropMember(g, memberID, now)
			return nil
		})
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Member left", "group_id", g.ID, "member_id", memberID)
		e.publish(ctx, events.MemberRemoved, g, c.UserID, map[string]any{"member_id": memberID, "left": true})
		return g, nil
	})
}

// dropMember deletes the member, their items and their split entries.
func dropMember(g *models.Group, memberID string, now int64) {
	members := g.Members[:0]
	for _, m := range g.Members {
		if m.ID != memberID {
			members = append(members, m)
		}
	}
	g.Members = members

	items := g.Items[:0]
	for _, item := range g.Items {
		if item.OwnerMemberID != memberID {
			items = append(items, item)
		}
	}
	g.Items = items

	if g.Split != nil {
		entries := g.Split.Policy.Entries[:0]
		for _, entry := range g.Split.Policy.Entries {
			if entry.MemberID != memberID {
				entries = append(entries, entry)
			}
		}
		g.Split.Policy.Entries = entries
	}
	refreshTotals(g, now)
}

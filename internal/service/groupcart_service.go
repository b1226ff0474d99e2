// Package service exposes the group cart engine over Connect.
package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/mmynk/groupcart/internal/groupcart"
	"github.com/mmynk/groupcart/internal/middleware"
	"github.com/mmynk/groupcart/internal/models"
)

// GroupCartService implements the Connect GroupCartService.
// Every method expects the caller's identity in the context (see
// middleware.RequireAuth).
type GroupCartService struct {
	engine *groupcart.Engine
}

// NewGroupCartService creates a GroupCartService backed by the given engine.
func NewGroupCartService(engine *groupcart.Engine) *GroupCartService {
	return &GroupCartService{engine: engine}
}

// caller builds the engine caller from the authenticated user and the
// idempotency key in the message or, failing that, the header.
func caller[T any](ctx context.Context, req *connect.Request[T], key string) groupcart.Caller {
	if key == "" {
		key = req.Header().Get(middleware.IdempotencyKeyHeader)
	}
	return groupcart.Caller{UserID: middleware.GetUserID(ctx), IdempotencyKey: key}
}

// groupResponse shows the group as the authenticated caller may see it.
func groupResponse(ctx context.Context, g *models.Group) *GroupResponse {
	return &GroupResponse{Group: g.ViewFor(middleware.GetUserID(ctx))}
}

func (s *GroupCartService) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[GroupResponse], error) {
	slog.InfoContext(ctx, "CreateGroup request received", "name", req.Msg.Name)

	g, err := s.engine.CreateGroup(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.Name)
	if err != nil {
		return nil, toConnectError(ctx, CreateGroupProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

func (s *GroupCartService) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GroupResponse], error) {
	g, err := s.engine.GetGroup(ctx, middleware.GetUserID(ctx), req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(ctx, GetGroupProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

func (s *GroupCartService) ListMyGroups(ctx context.Context, req *connect.Request[ListMyGroupsRequest]) (*connect.Response[ListMyGroupsResponse], error) {
	userID := middleware.GetUserID(ctx)
	groups, err := s.engine.ListMyGroups(ctx, userID)
	if err != nil {
		return nil, toConnectError(ctx, ListMyGroupsProcedure, err)
	}
	for i, g := range groups {
		groups[i] = g.ViewFor(userID)
	}
	slog.DebugContext(ctx, "ListMyGroups successful", "count", len(groups))
	return connect.NewResponse(&ListMyGroupsResponse{Groups: groups}), nil
}

func (s *GroupCartService) InviteMember(ctx context.Context, req *connect.Request[InviteMemberRequest]) (*connect.Response[InviteMemberResponse], error) {
	slog.InfoContext(ctx, "InviteMember request received", "group_id", req.Msg.GroupID)

	inv, err := s.engine.InviteMember(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.GroupID, req.Msg.Phone)
	if err != nil {
		return nil, toConnectError(ctx, InviteMemberProcedure, err)
	}
	return connect.NewResponse(&InviteMemberResponse{Invite: inv}), nil
}

func (s *GroupCartService) AcceptInvite(ctx context.Context, req *connect.Request[AcceptInviteRequest]) (*connect.Response[GroupResponse], error) {
	g, err := s.engine.AcceptInvite(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.Token)
	if err != nil {
		return nil, toConnectError(ctx, AcceptInviteProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

func (s *GroupCartService) RemoveMember(ctx context.Context, req *connect.Request[RemoveMemberRequest]) (*connect.Response[GroupResponse], error) {
	slog.InfoContext(ctx, "RemoveMember request received", "group_id", req.Msg.GroupID, "member_id", req.Msg.MemberID)

	g, err := s.engine.RemoveMember(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.GroupID, req.Msg.MemberID)
	if err != nil {
		return nil, toConnectError(ctx, RemoveMemberProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

func (s *GroupCartService) LeaveGroup(ctx context.Context, req *connect.Request[LeaveGroupRequest]) (*connect.Response[GroupResponse], error) {
	g, err := s.engine.LeaveGroup(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(ctx, LeaveGroupProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

func (s *GroupCartService) AddCartItem(ctx context.Context, req *connect.Request[AddCartItemRequest]) (*connect.Response[GroupResponse], error) {
	g, err := s.engine.AddCartItem(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.GroupID, req.Msg.CatalogRef, req.Msg.Quantity)
	if err != nil {
		return nil, toConnectError(ctx, AddCartItemProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

func (s *GroupCartService) RemoveCartItem(ctx context.Context, req *connect.Request[RemoveCartItemRequest]) (*connect.Response[GroupResponse], error) {
	g, err := s.engine.RemoveCartItem(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.GroupID, req.Msg.ItemID)
	if err != nil {
		return nil, toConnectError(ctx, RemoveCartItemProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

func (s *GroupCartService) UpdateCartItem(ctx context.Context, req *connect.Request[UpdateCartItemRequest]) (*connect.Response[GroupResponse], error) {
	g, err := s.engine.UpdateCartItem(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.GroupID, req.Msg.ItemID, req.Msg.Quantity)
	if err != nil {
		return nil, toConnectError(ctx, UpdateCartItemProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

func (s *GroupCartService) LockSlot(ctx context.Context, req *connect.Request[LockSlotRequest]) (*connect.Response[GroupResponse], error) {
	slog.InfoContext(ctx, "LockSlot request received",
		"group_id", req.Msg.GroupID,
		"slot_id", req.Msg.SlotID,
		"duration_minutes", req.Msg.DurationMinutes,
	)

	g, err := s.engine.LockSlot(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.GroupID, req.Msg.SlotID, req.Msg.DurationMinutes)
	if err != nil {
		return nil, toConnectError(ctx, LockSlotProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

func (s *GroupCartService) RenewSlot(ctx context.Context, req *connect.Request[RenewSlotRequest]) (*connect.Response[GroupResponse], error) {
	g, err := s.engine.RenewSlot(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.GroupID, req.Msg.DurationMinutes)
	if err != nil {
		return nil, toConnectError(ctx, RenewSlotProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

func (s *GroupCartService) ReleaseSlot(ctx context.Context, req *connect.Request[ReleaseSlotRequest]) (*connect.Response[GroupResponse], error) {
	g, err := s.engine.ReleaseSlot(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(ctx, ReleaseSlotProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

func (s *GroupCartService) GetSlotLock(ctx context.Context, req *connect.Request[GetSlotLockRequest]) (*connect.Response[GetSlotLockResponse], error) {
	lock, err := s.engine.GetSlotLock(ctx, req.Msg.SlotID)
	if err != nil {
		return nil, toConnectError(ctx, GetSlotLockProcedure, err)
	}
	return connect.NewResponse(&GetSlotLockResponse{Lock: lock}), nil
}

func (s *GroupCartService) SetPaymentSplit(ctx context.Context, req *connect.Request[SetPaymentSplitRequest]) (*connect.Response[GroupResponse], error) {
	slog.InfoContext(ctx, "SetPaymentSplit request received",
		"group_id", req.Msg.GroupID,
		"type", req.Msg.Policy.Type,
		"entries", len(req.Msg.Policy.Entries),
	)

	g, err := s.engine.SetPaymentSplit(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.GroupID, req.Msg.Policy)
	if err != nil {
		return nil, toConnectError(ctx, SetPaymentSplitProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

func (s *GroupCartService) PlaceGroupOrder(ctx context.Context, req *connect.Request[PlaceGroupOrderRequest]) (*connect.Response[GroupResponse], error) {
	slog.InfoContext(ctx, "PlaceGroupOrder request received", "group_id", req.Msg.GroupID)

	g, err := s.engine.PlaceGroupOrder(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(ctx, PlaceGroupOrderProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

func (s *GroupCartService) CancelGroup(ctx context.Context, req *connect.Request[CancelGroupRequest]) (*connect.Response[GroupResponse], error) {
	slog.InfoContext(ctx, "CancelGroup request received", "group_id", req.Msg.GroupID)

	g, err := s.engine.CancelGroup(ctx, caller(ctx, req, req.Msg.IdempotencyKey), req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(ctx, CancelGroupProcedure, err)
	}
	return connect.NewResponse(groupResponse(ctx, g)), nil
}

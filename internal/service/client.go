package service

import (
	"context"

	"connectrpc.com/connect"
)

func (c *GroupCartServiceClient) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[GroupResponse], error) {
	return c.createGroup.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GroupResponse], error) {
	return c.getGroup.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) ListMyGroups(ctx context.Context, req *connect.Request[ListMyGroupsRequest]) (*connect.Response[ListMyGroupsResponse], error) {
	return c.listMyGroups.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) InviteMember(ctx context.Context, req *connect.Request[InviteMemberRequest]) (*connect.Response[InviteMemberResponse], error) {
	return c.inviteMember.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) AcceptInvite(ctx context.Context, req *connect.Request[AcceptInviteRequest]) (*connect.Response[GroupResponse], error) {
	return c.acceptInvite.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) RemoveMember(ctx context.Context, req *connect.Request[RemoveMemberRequest]) (*connect.Response[GroupResponse], error) {
	return c.removeMember.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) LeaveGroup(ctx context.Context, req *connect.Request[LeaveGroupRequest]) (*connect.Response[GroupResponse], error) {
	return c.leaveGroup.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) AddCartItem(ctx context.Context, req *connect.Request[AddCartItemRequest]) (*connect.Response[GroupResponse], error) {
	return c.addCartItem.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) RemoveCartItem(ctx context.Context, req *connect.Request[RemoveCartItemRequest]) (*connect.Response[GroupResponse], error) {
	return c.removeCartItem.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) UpdateCartItem(ctx context.Context, req *connect.Request[UpdateCartItemRequest]) (*connect.Response[GroupResponse], error) {
	return c.updateCartItem.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) LockSlot(ctx context.Context, req *connect.Request[LockSlotRequest]) (*connect.Response[GroupResponse], error) {
	return c.lockSlot.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) RenewSlot(ctx context.Context, req *connect.Request[RenewSlotRequest]) (*connect.Response[GroupResponse], error) {
	return c.renewSlot.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) ReleaseSlot(ctx context.Context, req *connect.Request[ReleaseSlotRequest]) (*connect.Response[GroupResponse], error) {
	return c.releaseSlot.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) GetSlotLock(ctx context.Context, req *connect.Request[GetSlotLockRequest]) (*connect.Response[GetSlotLockResponse], error) {
	return c.getSlotLock.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) SetPaymentSplit(ctx context.Context, req *connect.Request[SetPaymentSplitRequest]) (*connect.Response[GroupResponse], error) {
	return c.setPaymentSplit.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) PlaceGroupOrder(ctx context.Context, req *connect.Request[PlaceGroupOrderRequest]) (*connect.Response[GroupResponse], error) {
	return c.placeGroupOrder.CallUnary(ctx, req)
}

func (c *GroupCartServiceClient) CancelGroup(ctx context.Context, req *connect.Request[CancelGroupRequest]) (*connect.Response[GroupResponse], error) {
	return c.cancelGroup.CallUnary(ctx, req)
}

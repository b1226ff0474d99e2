package service

import (
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/mmynk/groupcart/pkg/connectjson"
)

// GroupCartServiceName is the fully-qualified name of the service.
const GroupCartServiceName = "groupcart.v1.GroupCartService"

// Procedure paths, one per RPC.
const (
	CreateGroupProcedure     = "/" + GroupCartServiceName + "/CreateGroup"
	GetGroupProcedure        = "/" + GroupCartServiceName + "/GetGroup"
	ListMyGroupsProcedure    = "/" + GroupCartServiceName + "/ListMyGroups"
	InviteMemberProcedure    = "/" + GroupCartServiceName + "/InviteMember"
	AcceptInviteProcedure    = "/" + GroupCartServiceName + "/AcceptInvite"
	RemoveMemberProcedure    = "/" + GroupCartServiceName + "/RemoveMember"
	LeaveGroupProcedure      = "/" + GroupCartServiceName + "/LeaveGroup"
	AddCartItemProcedure     = "/" + GroupCartServiceName + "/AddCartItem"
	RemoveCartItemProcedure  = "/" + GroupCartServiceName + "/RemoveCartItem"
	UpdateCartItemProcedure  = "/" + GroupCartServiceName + "/UpdateCartItem"
	LockSlotProcedure        = "/" + GroupCartServiceName + "/LockSlot"
	RenewSlotProcedure       = "/" + GroupCartServiceName + "/RenewSlot"
	ReleaseSlotProcedure     = "/" + GroupCartServiceName + "/ReleaseSlot"
	GetSlotLockProcedure     = "/" + GroupCartServiceName + "/GetSlotLock"
	SetPaymentSplitProcedure = "/" + GroupCartServiceName + "/SetPaymentSplit"
	PlaceGroupOrderProcedure = "/" + GroupCartServiceName + "/PlaceGroupOrder"
	CancelGroupProcedure     = "/" + GroupCartServiceName + "/CancelGroup"
)

// NewGroupCartServiceHandler builds an HTTP handler for every procedure of
// the service. It returns the path to mount the handler on.
func NewGroupCartServiceHandler(svc *GroupCartService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(connectjson.Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateGroupProcedure, connect.NewUnaryHandler(CreateGroupProcedure, svc.CreateGroup, opts...))
	mux.Handle(GetGroupProcedure, connect.NewUnaryHandler(GetGroupProcedure, svc.GetGroup, opts...))
	mux.Handle(ListMyGroupsProcedure, connect.NewUnaryHandler(ListMyGroupsProcedure, svc.ListMyGroups, opts...))
	mux.Handle(InviteMemberProcedure, connect.NewUnaryHandler(InviteMemberProcedure, svc.InviteMember, opts...))
	mux.Handle(AcceptInviteProcedure, connect.NewUnaryHandler(AcceptInviteProcedure, svc.AcceptInvite, opts...))
	mux.Handle(RemoveMemberProcedure, connect.NewUnaryHandler(RemoveMemberProcedure, svc.RemoveMember, opts...))
	mux.Handle(LeaveGroupProcedure, connect.NewUnaryHandler(LeaveGroupProcedure, svc.LeaveGroup, opts...))
	mux.Handle(AddCartItemProcedure, connect.NewUnaryHandler(AddCartItemProcedure, svc.AddCartItem, opts...))
	mux.Handle(RemoveCartItemProcedure, connect.NewUnaryHandler(RemoveCartItemProcedure, svc.RemoveCartItem, opts...))
	mux.Handle(UpdateCartItemProcedure, connect.NewUnaryHandler(UpdateCartItemProcedure, svc.UpdateCartItem, opts...))
	mux.Handle(LockSlotProcedure, connect.NewUnaryHandler(LockSlotProcedure, svc.LockSlot, opts...))
	mux.Handle(RenewSlotProcedure, connect.NewUnaryHandler(RenewSlotProcedure, svc.RenewSlot, opts...))
	mux.Handle(ReleaseSlotProcedure, connect.NewUnaryHandler(ReleaseSlotProcedure, svc.ReleaseSlot, opts...))
	mux.Handle(GetSlotLockProcedure, connect.NewUnaryHandler(GetSlotLockProcedure, svc.GetSlotLock, opts...))
	mux.Handle(SetPaymentSplitProcedure, connect.NewUnaryHandler(SetPaymentSplitProcedure, svc.SetPaymentSplit, opts...))
	mux.Handle(PlaceGroupOrderProcedure, connect.NewUnaryHandler(PlaceGroupOrderProcedure, svc.PlaceGroupOrder, opts...))
	mux.Handle(CancelGroupProcedure, connect.NewUnaryHandler(CancelGroupProcedure, svc.CancelGroup, opts...))

	return "/" + GroupCartServiceName + "/", mux
}

// GroupCartServiceClient calls GroupCartService over Connect.
type GroupCartServiceClient struct {
	createGroup     *connect.Client[CreateGroupRequest, GroupResponse]
	getGroup        *connect.Client[GetGroupRequest, GroupResponse]
	listMyGroups    *connect.Client[ListMyGroupsRequest, ListMyGroupsResponse]
	inviteMember    *connect.Client[InviteMemberRequest, InviteMemberResponse]
	acceptInvite    *connect.Client[AcceptInviteRequest, GroupResponse]
	removeMember    *connect.Client[RemoveMemberRequest, GroupResponse]
	leaveGroup      *connect.Client[LeaveGroupRequest, GroupResponse]
	addCartItem     *connect.Client[AddCartItemRequest, GroupResponse]
	removeCartItem  *connect.Client[RemoveCartItemRequest, GroupResponse]
	updateCartItem  *connect.Client[UpdateCartItemRequest, GroupResponse]
	lockSlot        *connect.Client[LockSlotRequest, GroupResponse]
	renewSlot       *connect.Client[RenewSlotRequest, GroupResponse]
	releaseSlot     *connect.Client[ReleaseSlotRequest, GroupResponse]
	getSlotLock     *connect.Client[GetSlotLockRequest, GetSlotLockResponse]
	setPaymentSplit *connect.Client[SetPaymentSplitRequest, GroupResponse]
	placeGroupOrder *connect.Client[PlaceGroupOrderRequest, GroupResponse]
	cancelGroup     *connect.Client[CancelGroupRequest, GroupResponse]
}

// NewGroupCartServiceClient creates a client for the service at baseURL
// (for example http://localhost:8080).
func NewGroupCartServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *GroupCartServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(connectjson.Codec{})}, opts...)
	return &GroupCartServiceClient{
		createGroup:     connect.NewClient[CreateGroupRequest, GroupResponse](httpClient, baseURL+CreateGroupProcedure, opts...),
		getGroup:        connect.NewClient[GetGroupRequest, GroupResponse](httpClient, baseURL+GetGroupProcedure, opts...),
		listMyGroups:    connect.NewClient[ListMyGroupsRequest, ListMyGroupsResponse](httpClient, baseURL+ListMyGroupsProcedure, opts...),
		inviteMember:    connect.NewClient[InviteMemberRequest, InviteMemberResponse](httpClient, baseURL+InviteMemberProcedure, opts...),
		acceptInvite:    connect.NewClient[AcceptInviteRequest, GroupResponse](httpClient, baseURL+AcceptInviteProcedure, opts...),
		removeMember:    connect.NewClient[RemoveMemberRequest, GroupResponse](httpClient, baseURL+RemoveMemberProcedure, opts...),
		leaveGroup:      connect.NewClient[LeaveGroupRequest, GroupResponse](httpClient, baseURL+LeaveGroupProcedure, opts...),
		addCartItem:     connect.NewClient[AddCartItemRequest, GroupResponse](httpClient, baseURL+AddCartItemProcedure, opts...),
		removeCartItem:  connect.NewClient[RemoveCartItemRequest, GroupResponse](httpClient, baseURL+RemoveCartItemProcedure, opts...),
		updateCartItem:  connect.NewClient[UpdateCartItemRequest, GroupResponse](httpClient, baseURL+UpdateCartItemProcedure, opts...),
		lockSlot:        connect.NewClient[LockSlotRequest, GroupResponse](httpClient, baseURL+LockSlotProcedure, opts...),
		renewSlot:       connect.NewClient[RenewSlotRequest, GroupResponse](httpClient, baseURL+RenewSlotProcedure, opts...),
		releaseSlot:     connect.NewClient[ReleaseSlotRequest, GroupResponse](httpClient, baseURL+ReleaseSlotProcedure, opts...),
		getSlotLock:     connect.NewClient[GetSlotLockRequest, GetSlotLockResponse](httpClient, baseURL+GetSlotLockProcedure, opts...),
		setPaymentSplit: connect.NewClient[SetPaymentSplitRequest, GroupResponse](httpClient, baseURL+SetPaymentSplitProcedure, opts...),
		placeGroupOrder: connect.NewClient[PlaceGroupOrderRequest, GroupResponse](httpClient, baseURL+PlaceGroupOrderProcedure, opts...),
		cancelGroup:     connect.NewClient[CancelGroupRequest, GroupResponse](httpClient, baseURL+CancelGroupProcedure, opts...),
	}
}

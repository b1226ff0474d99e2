package service

import "github.com/mmynk/groupcart/internal/models"

// Requests carry an optional idempotency_key. When it is empty the
// Idempotency-Key header is used instead.

type CreateGroupRequest struct {
	Name           string `json:"name"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type GetGroupRequest struct {
	GroupID string `json:"group_id"`
}

type ListMyGroupsRequest struct{}

type ListMyGroupsResponse struct {
	Groups []*models.Group `json:"groups"`
}

type InviteMemberRequest struct {
	GroupID        string `json:"group_id"`
	Phone          string `json:"phone"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type InviteMemberResponse struct {
	Invite *models.Invite `json:"invite"`
}

type AcceptInviteRequest struct {
	Token          string `json:"token"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type RemoveMemberRequest struct {
	GroupID        string `json:"group_id"`
	MemberID       string `json:"member_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type LeaveGroupRequest struct {
	GroupID        string `json:"group_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type AddCartItemRequest struct {
	GroupID        string `json:"group_id"`
	CatalogRef     string `json:"catalog_ref"`
	Quantity       int64  `json:"quantity"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type RemoveCartItemRequest struct {
	GroupID        string `json:"group_id"`
	ItemID         string `json:"item_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type UpdateCartItemRequest struct {
	GroupID        string `json:"group_id"`
	ItemID         string `json:"item_id"`
	Quantity       int64  `json:"quantity"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type LockSlotRequest struct {
	GroupID         string `json:"group_id"`
	SlotID          string `json:"slot_id"`
	DurationMinutes int    `json:"duration_minutes"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

type RenewSlotRequest struct {
	GroupID         string `json:"group_id"`
	DurationMinutes int    `json:"duration_minutes"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

type ReleaseSlotRequest struct {
	GroupID        string `json:"group_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type GetSlotLockRequest struct {
	SlotID string `json:"slot_id"`
}

type GetSlotLockResponse struct {
	// Lock is nil when the slot is free.
	Lock *models.SlotLock `json:"lock"`
}

type SetPaymentSplitRequest struct {
	GroupID        string             `json:"group_id"`
	Policy         models.SplitPolicy `json:"policy"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

type PlaceGroupOrderRequest struct {
	GroupID        string `json:"group_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type CancelGroupRequest struct {
	GroupID        string `json:"group_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// GroupResponse is returned by every call that changes or reads one group.
type GroupResponse struct {
	Group *models.Group `json:"group"`
}

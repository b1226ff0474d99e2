package models

// GroupOrder records the external order created for a group.
// At most one exists per group.
type GroupOrder struct {
	GroupID string `json:"group_id"`

	// OrderID is the id returned by the order service.
	OrderID string `json:"order_id"`

	Obligations []Obligation `json:"obligations"`
	Total       int64        `json:"total"`
	PlacedAt    int64        `json:"placed_at"`
}

// SlotLock is an exclusive, time-bounded hold on a pickup slot.
// At most one unexpired lock exists per slot across all groups.
type SlotLock struct {
	SlotID  string `json:"slot_id"`
	GroupID string `json:"group_id"`

	// LockedUntil is the Unix timestamp after which the lock is void.
	LockedUntil int64 `json:"locked_until"`

	// LockVersion increases on every acquire or renew.
	LockVersion int64 `json:"lock_version"`
}

// Expired reports whether the lock has lapsed at now.
func (l SlotLock) Expired(now int64) bool {
	return now > l.LockedUntil
}

// OrderRequest is what the order service receives when a group places its
// order. Items carry the prices captured at add time.
type OrderRequest struct {
	GroupID string       `json:"group_id"`
	SlotID  string       `json:"slot_id"`
	Items   []CartItem   `json:"items"`
	Payers  []Obligation `json:"payers"`
	Total   int64        `json:"total"`
}

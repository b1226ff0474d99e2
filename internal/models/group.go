package models

import "math"

// GroupStatus is the lifecycle state of a group cart.
type GroupStatus string

const (
	GroupStatusForming    GroupStatus = "forming"
	GroupStatusSlotLocked GroupStatus = "slot_locked"
	GroupStatusOrdering   GroupStatus = "ordering"
	GroupStatusOrdered    GroupStatus = "ordered"
	GroupStatusCancelled  GroupStatus = "cancelled"
	GroupStatusExpired    GroupStatus = "expired"
)

// Terminal reports whether no further transitions are possible.
func (s GroupStatus) Terminal() bool {
	switch s {
	case GroupStatusOrdered, GroupStatusCancelled, GroupStatusExpired:
		return true
	}
	return false
}

// Group is the shared cart aggregate.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Hostel B lunch").
	Name string `json:"name"`

	// OwnerMemberID is the member id of the owner. The owner is always
	// Members[0].
	OwnerMemberID string `json:"owner_member_id"`

	Status GroupStatus `json:"status"`

	// Version increases by one on every committed mutation.
	Version int64 `json:"version"`

	// Total is the sum of quantity * price_at_time over Items.
	Total int64 `json:"total"`

	// SlotID is the slot this group currently holds a lock on, if any.
	SlotID string `json:"slot_id,omitempty"`

	// SlotLockedUntil mirrors the lock expiry as last seen by this group.
	// The slot lock table is authoritative.
	SlotLockedUntil int64 `json:"slot_locked_until,omitempty"`

	// OrderingSince is set when the group enters the ordering state.
	OrderingSince int64 `json:"ordering_since,omitempty"`

	Members []Member      `json:"members"`
	Invites []Invite      `json:"invites,omitempty"`
	Items   []CartItem    `json:"items"`
	Split   *PaymentSplit `json:"split,omitempty"`
	Order   *GroupOrder   `json:"order,omitempty"`

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp of the last committed mutation.
	UpdatedAt int64 `json:"updated_at"`
}

// MemberByUser returns the member for a user id.
func (g *Group) MemberByUser(userID string) (*Member, bool) {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i], true
		}
	}
	return nil, false
}

// ViewFor returns the group as userID may see it. Invite tokens are
// bearer secrets, so only the owner gets them; everyone else sees the
// invites without tokens. g is not modified.
func (g *Group) ViewFor(userID string) *Group {
	if m, ok := g.MemberByUser(userID); ok && m.ID == g.OwnerMemberID {
		return g
	}
	if len(g.Invites) == 0 {
		return g
	}
	v := *g
	v.Invites = make([]Invite, len(g.Invites))
	copy(v.Invites, g.Invites)
	for i := range v.Invites {
		v.Invites[i].Token = ""
	}
	return &v
}

// MemberByID returns the member with the given member id.
func (g *Group) MemberByID(memberID string) (*Member, bool) {
	for i := range g.Members {
		if g.Members[i].ID == memberID {
			return &g.Members[i], true
		}
	}
	return nil, false
}

// ItemByID returns the cart item with the given id.
func (g *Group) ItemByID(itemID string) (*CartItem, bool) {
	for i := range g.Items {
		if g.Items[i].ID == itemID {
			return &g.Items[i], true
		}
	}
	return nil, false
}

// RecomputeTotal sets Total from Items and returns it.
func (g *Group) RecomputeTotal() int64 {
	var total int64
	for _, item := range g.Items {
		total += item.LineTotal()
	}
	g.Total = total
	return total
}

// CheckedTotal sums the line totals. ok is false if any line or the sum
// overflows int64.
func (g *Group) CheckedTotal() (int64, bool) {
	var total int64
	for _, item := range g.Items {
		line, ok := item.CheckedLineTotal()
		if !ok || total > math.MaxInt64-line {
			return 0, false
		}
		total += line
	}
	return total, true
}

// Clone returns a deep copy so a mutator can work on it without touching
// the loaded state.
func (g *Group) Clone() *Group {
	c := *g
	c.Members = append([]Member(nil), g.Members...)
	c.Invites = append([]Invite(nil), g.Invites...)
	c.Items = append([]CartItem(nil), g.Items...)
	if g.Split != nil {
		c.Split = g.Split.Clone()
	}
	if g.Order != nil {
		o := *g.Order
		o.Obligations = append([]Obligation(nil), g.Order.Obligations...)
		c.Order = &o
	}
	return &c
}

package models

import "math"

// CartItem is one line in the group cart.
type CartItem struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id"`

	// OwnerMemberID is the member that added the line. Only that member may
	// change it; the group owner may remove it.
	OwnerMemberID string `json:"owner_member_id"`

	// CatalogRef identifies the menu/catalog item.
	CatalogRef string `json:"catalog_ref"`

	Quantity int64 `json:"quantity"`

	// PriceAtTime is the unit price captured from the catalog when the line
	// was added. It is never refreshed.
	PriceAtTime int64 `json:"price_at_time"`

	AddedAt int64 `json:"added_at"`
}

// LineTotal is quantity * price_at_time.
func (i CartItem) LineTotal() int64 {
	return i.Quantity * i.PriceAtTime
}

// CheckedLineTotal is LineTotal with ok false when the product does not
// fit in an int64 or either factor is negative.
func (i CartItem) CheckedLineTotal() (int64, bool) {
	if i.Quantity < 0 || i.PriceAtTime < 0 {
		return 0, false
	}
	if i.Quantity != 0 && i.PriceAtTime > math.MaxInt64/i.Quantity {
		return 0, false
	}
	return i.Quantity * i.PriceAtTime, true
}

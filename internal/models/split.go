package models

// SplitType selects how the group total is divided.
type SplitType string

const (
	SplitTypeEqual      SplitType = "equal"
	SplitTypeAmount     SplitType = "amount"
	SplitTypePercentage SplitType = "percentage"

	// SplitTypeUnified makes the owner pay for the whole group.
	SplitTypeUnified SplitType = "unified"
)

// SplitEntry is one member's rule within a policy.
// Amount is used by SplitTypeAmount, Percent by SplitTypePercentage.
type SplitEntry struct {
	MemberID string `json:"member_id"`
	Amount   int64  `json:"amount,omitempty"`
	Percent  int64  `json:"percent,omitempty"`
}

// SplitPolicy is what members submit.
type SplitPolicy struct {
	Type    SplitType    `json:"type"`
	Entries []SplitEntry `json:"entries,omitempty"`
}

// Obligation is what one member owes, in minor units.
type Obligation struct {
	MemberID string `json:"member_id"`
	Amount   int64  `json:"amount"`
}

// PaymentSplit is a policy together with its resolution against a total.
type PaymentSplit struct {
	GroupID string      `json:"group_id"`
	Policy  SplitPolicy `json:"policy"`

	// CapturedTotal is the group total Obligations were resolved against.
	// A split whose CapturedTotal differs from the live total is stale.
	CapturedTotal int64 `json:"captured_total"`

	Obligations []Obligation `json:"obligations"`
	UpdatedAt   int64        `json:"updated_at"`
}

// Stale reports whether the split must be resolved again before it can be
// used: it was captured against a different total, or its last resolution
// failed and left no obligations.
func (s *PaymentSplit) Stale(total int64) bool {
	return s.CapturedTotal != total || len(s.Obligations) == 0
}

// Clone returns a deep copy.
func (s *PaymentSplit) Clone() *PaymentSplit {
	c := *s
	c.Policy.Entries = append([]SplitEntry(nil), s.Policy.Entries...)
	c.Obligations = append([]Obligation(nil), s.Obligations...)
	return &c
}

package models

// MemberRole distinguishes the group owner from everyone else.
type MemberRole string

const (
	MemberRoleOwner       MemberRole = "owner"
	MemberRoleParticipant MemberRole = "participant"
)

// Member is a user that belongs to a group.
// Members are kept in join order; that order breaks ties in split rounding.
type Member struct {
	ID       string     `json:"id"`
	GroupID  string     `json:"group_id"`
	UserID   string     `json:"user_id"`
	Role     MemberRole `json:"role"`
	JoinedAt int64      `json:"joined_at"`
}

// InviteStatus tracks an invitation.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
)

// Invite is an invitation sent by the owner to a phone number.
type Invite struct {
	// Token is the opaque value the invitee presents to accept.
	Token     string       `json:"token"`
	GroupID   string       `json:"group_id"`
	Phone     string       `json:"phone"`
	Status    InviteStatus `json:"status"`
	CreatedAt int64        `json:"created_at"`
	ExpiresAt int64        `json:"expires_at"`

	// AcceptedBy is the user id that accepted the invite.
	AcceptedBy string `json:"accepted_by,omitempty"`
}

// Expired reports whether the invite can no longer be accepted at now.
func (i Invite) Expired(now int64) bool {
	return now > i.ExpiresAt
}

package auth

import (
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated account.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name,omitempty"`
	PasswordHash string     `json:"-"` // never serialized
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Role represents organization-level roles, ordered by privilege.
type Role string

const (
	// RoleNone means no confirmed membership in the organization.
	RoleNone Role = ""
	// RoleMember has baseline access to the organization.
	RoleMember Role = "member"
	// RoleAdmin can manage membership, including bulk import.
	RoleAdmin Role = "admin"
	// RoleOwner has full access: billing, licensing, deletion.
	RoleOwner Role = "owner"
)

// Level returns the privilege rank of the role. Higher outranks lower.
func (r Role) Level() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r grants at least the privilege of min.
func (r Role) AtLeast(min Role) bool {
	return r.Level() >= min.Level()
}

// Valid reports whether r is one of the three assignable roles.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleMember
}

// MembershipStatus tracks the lifecycle of a membership. Only
// Confirmed memberships grant operational access.
type MembershipStatus string

const (
	StatusInvited   MembershipStatus = "invited"
	StatusAccepted  MembershipStatus = "accepted"
	StatusConfirmed MembershipStatus = "confirmed"
	StatusRevoked   MembershipStatus = "revoked"
)

// Membership relates a user to an organization with exactly one role
// and one status. A user may hold memberships in many organizations.
type Membership struct {
	ID             int64            `json:"id"`
	OrganizationID uuid.UUID        `json:"organization_id"`
	UserID         *int64           `json:"user_id,omitempty"` // nil until an invited directory record signs up
	Email          string           `json:"email,omitempty"`
	Role           Role             `json:"role"`
	Status         MembershipStatus `json:"status"`
	ExternalID     string           `json:"external_id,omitempty"` // directory-sync key
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	RevokedAt      *time.Time       `json:"revoked_at,omitempty"`
}

// Operational reports whether the membership grants access.
func (m *Membership) Operational() bool {
	return m.Status == StatusConfirmed
}

package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// MembershipSource is the narrow read interface the resolver needs.
// The Postgres store in pkg/orgs satisfies it.
type MembershipSource interface {
	// GetMembership returns the caller's membership in the
	// organization, or a not-found error when none exists.
	GetMembership(ctx context.Context, userID int64, orgID uuid.UUID) (*Membership, error)
}

// RoleResolver determines a caller's role within an organization from
// their Confirmed membership. It is read-only and side-effect-free.
type RoleResolver struct {
	source MembershipSource
}

// NewRoleResolver creates a resolver backed by the given source.
func NewRoleResolver(source MembershipSource) *RoleResolver {
	return &RoleResolver{source: source}
}

// Resolve returns the caller's role in the organization, or RoleNone
// when the caller has no Confirmed membership there. A nonexistent
// organization resolves to RoleNone like any other lack of access, so
// existence is not leaked. Storage failures propagate; they are never
// silently downgraded to RoleNone.
func (r *RoleResolver) Resolve(ctx context.Context, userID int64, orgID uuid.UUID) (Role, error) {
	m, err := r.source.GetMembership(ctx, userID, orgID)
	if err != nil {
		if isNotFound(err) {
			return RoleNone, nil
		}
		return RoleNone, err
	}
	if m == nil || !m.Operational() {
		return RoleNone, nil
	}
	return m.Role, nil
}

// isNotFound matches the domain not-found code without importing
// pkg/orgs, which imports this package.
func isNotFound(err error) bool {
	var c interface{ ErrorCode() string }
	if errors.As(err, &c) {
		return c.ErrorCode() == "not_found"
	}
	return false
}

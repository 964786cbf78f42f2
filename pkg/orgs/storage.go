package orgs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/harborgate/orgd/pkg/auth"
)

// Storage is the persistence collaborator. Every call may fail with a
// storage-unavailable error; callers propagate it, never suppress it.
// Record-level consistency (unique constraints, atomic single-statement
// updates) is the store's responsibility.
type Storage interface {
	// Organizations.
	CreateOrganization(ctx context.Context, org *Organization) error
	// CreateOrganizationWithOwner inserts the organization and its
	// founding membership atomically. A failure leaves neither row
	// behind, so an organization can never exist without its owner.
	CreateOrganizationWithOwner(ctx context.Context, org *Organization, founder *auth.Membership) error
	GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error)
	UpdateOrganization(ctx context.Context, id uuid.UUID, updates *OrganizationUpdate) error
	// SoftDeleteOrganization marks the organization deleted. Deleted
	// organizations are invisible to every read.
	SoftDeleteOrganization(ctx context.Context, id uuid.UUID) error
	// ListOrganizationsForUser returns the active organizations where
	// the user holds a Confirmed membership.
	ListOrganizationsForUser(ctx context.Context, userID int64) ([]*Organization, error)
	SetOrganizationKeys(ctx context.Context, id uuid.UUID, publicKey, encryptedPrivateKey string) error
	// SetSubscriptionRefs records the gateway customer/subscription
	// references after the gateway has confirmed them.
	SetSubscriptionRefs(ctx context.Context, id uuid.UUID, customerID, subscriptionID string) error
	// SetEntitlements writes the seat and storage counts. Only called
	// after the gateway accepted the adjustment.
	SetEntitlements(ctx context.Context, id uuid.UUID, seats, maxStorageGB int) error
	// SetLicense binds a license document and installation id to the
	// organization, superseding any previous license.
	SetLicense(ctx context.Context, id uuid.UUID, licenseKey string, installationID uuid.UUID) error
	SaveTaxProfile(ctx context.Context, id uuid.UUID, profile *TaxProfile) error

	// Users and memberships.
	GetUser(ctx context.Context, userID int64) (*auth.User, error)
	GetMembership(ctx context.Context, userID int64, orgID uuid.UUID) (*auth.Membership, error)
	// UpsertMembership merges a directory-sourced membership keyed by
	// (organization, external id). overwrite=true replaces the existing
	// row's email and role and resurrects a revoked row; the status of
	// an active row is preserved, since directory batches carry no
	// status. false leaves an existing row untouched.
	UpsertMembership(ctx context.Context, m *auth.Membership, overwrite bool) error
	// RevokeMembership soft-deletes the user's membership.
	RevokeMembership(ctx context.Context, orgID uuid.UUID, userID int64) error
	// SoftDeleteMembershipByExternalID revokes the membership matching
	// a directory external id. Missing ids are not an error.
	SoftDeleteMembershipByExternalID(ctx context.Context, orgID uuid.UUID, externalID string) error
	// CountConfirmedOwners returns the number of Confirmed Owner
	// memberships, consulted before any removal that could leave zero.
	CountConfirmedOwners(ctx context.Context, orgID uuid.UUID) (int, error)
	// PurgeRevokedMemberships hard-deletes memberships revoked before
	// the cutoff and returns how many rows were removed.
	PurgeRevokedMemberships(ctx context.Context, before time.Time) (int64, error)

	// Groups.
	UpsertGroup(ctx context.Context, g *Group, overwrite bool) error

	// API credential. Both writes are atomic single statements.
	InitAPICredential(ctx context.Context, orgID uuid.UUID, credential string) (string, error)
	ReplaceAPICredential(ctx context.Context, orgID uuid.UUID, credential string) error
	// GetAPICredential reads the current credential. Implementations
	// must not serve it from any cache: a rotation performed by another
	// process invalidates the previous credential immediately, and an
	// authentication check may never observe the rotated-out value.
	GetAPICredential(ctx context.Context, orgID uuid.UUID) (string, error)
}

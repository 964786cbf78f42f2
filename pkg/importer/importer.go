package importer

import (
	"context"

	"github.com/google/uuid"

	"github.com/harborgate/orgd/pkg/auth"
	"github.com/harborgate/orgd/pkg/orgs"
)

// MaxBatchRecords caps hosted-mode batches: group count and non-deleted
// user count may each not exceed this unless the batch is explicitly
// flagged as a large import. Self-hosted deployments have no cap.
const MaxBatchRecords = 2000

// GroupRecord is a directory-sourced group.
type GroupRecord struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

// UserRecord is a directory-sourced member. Deleted records are
// revocations delivered inline with the adds.
type UserRecord struct {
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email"`
	Role       auth.Role `json:"role,omitempty"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// Batch is one directory-sync payload. Transient: built per request,
// discarded after processing.
type Batch struct {
	Groups             []GroupRecord `json:"groups"`
	Users              []UserRecord  `json:"users"`
	RemovedExternalIDs []string      `json:"removed_external_ids"`
	// OverwriteExisting replaces the email and role of records whose
	// external id already exists and resurrects revoked ones; the
	// membership status of an active record is preserved, since batches
	// carry no status. false leaves existing records untouched.
	OverwriteExisting bool `json:"overwrite_existing"`
	// LargeImport bypasses the hosted-mode size cap.
	LargeImport bool `json:"large_import"`
}

// nonDeletedUsers counts the user records that would be created or
// updated rather than revoked.
func (b *Batch) nonDeletedUsers() int {
	n := 0
	for _, u := range b.Users {
		if !u.Deleted {
			n++
		}
	}
	return n
}

// Store is the persistence slice the processor needs. All three
// operations are keyed by external id and replay-safe.
type Store interface {
	UpsertGroup(ctx context.Context, g *orgs.Group, overwrite bool) error
	UpsertMembership(ctx context.Context, m *auth.Membership, overwrite bool) error
	SoftDeleteMembershipByExternalID(ctx context.Context, orgID uuid.UUID, externalID string) error
}

// Processor merges directory-sync batches into an organization's
// groups and memberships. The merge is effectively idempotent:
// re-submitting an identical batch leaves the same final state, which
// is also the recovery path after a partial failure. No multi-record
// transaction is attempted, the caller replays.
type Processor struct {
	store  Store
	hosted bool
}

// NewProcessor creates a processor. hosted enables the batch size cap.
func NewProcessor(store Store, hosted bool) *Processor {
	return &Processor{store: store, hosted: hosted}
}

// Import validates the whole batch first, then applies groups, user
// adds/updates, inline deletions, and the removal list, in that order.
// Removals are soft deletes; nothing is purged here.
func (p *Processor) Import(ctx context.Context, org *orgs.Organization, batch *Batch) error {
	if err := p.validate(batch); err != nil {
		return err
	}

	for i := range batch.Groups {
		g := &orgs.Group{
			OrganizationID: org.ID,
			Name:           batch.Groups[i].Name,
			ExternalID:     batch.Groups[i].ExternalID,
		}
		if err := p.store.UpsertGroup(ctx, g, batch.OverwriteExisting); err != nil {
			return err
		}
	}

	for i := range batch.Users {
		u := &batch.Users[i]
		if u.Deleted {
			if err := p.store.SoftDeleteMembershipByExternalID(ctx, org.ID, u.ExternalID); err != nil {
				return err
			}
			continue
		}
		role := u.Role
		if role == auth.RoleNone {
			role = auth.RoleMember
		}
		// Invited lands only on new or resurrected rows; the store
		// keeps an active row's status.
		m := &auth.Membership{
			OrganizationID: org.ID,
			Email:          u.Email,
			Role:           role,
			Status:         auth.StatusInvited,
			ExternalID:     u.ExternalID,
		}
		if err := p.store.UpsertMembership(ctx, m, batch.OverwriteExisting); err != nil {
			return err
		}
	}

	for _, externalID := range batch.RemovedExternalIDs {
		if err := p.store.SoftDeleteMembershipByExternalID(ctx, org.ID, externalID); err != nil {
			return err
		}
	}
	return nil
}

// validate rejects the batch before any side effect.
func (p *Processor) validate(batch *Batch) error {
	if p.hosted && !batch.LargeImport {
		if len(batch.Groups) > MaxBatchRecords {
			return orgs.ErrValidation("batch exceeds %d groups; flag it as a large import", MaxBatchRecords)
		}
		if n := batch.nonDeletedUsers(); n > MaxBatchRecords {
			return orgs.ErrValidation("batch exceeds %d users; flag it as a large import", MaxBatchRecords)
		}
	}
	for _, g := range batch.Groups {
		if g.ExternalID == "" {
			return orgs.ErrValidation("group %q has no external id", g.Name)
		}
	}
	for _, u := range batch.Users {
		if u.ExternalID == "" {
			return orgs.ErrValidation("user %q has no external id", u.Email)
		}
		if u.Role != auth.RoleNone && !u.Role.Valid() {
			return orgs.ErrValidation("user %q has unknown role %q", u.Email, u.Role)
		}
	}
	for _, id := range batch.RemovedExternalIDs {
		if id == "" {
			return orgs.ErrValidation("removal list contains an empty external id")
		}
	}
	return nil
}

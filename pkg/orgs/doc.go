// Package orgs holds the organization data model, the domain error
// taxonomy, and the Storage collaborator.
//
// # Overview
//
// Organizations are tenants: membership, billing references, license
// binding, a member-sharing key pair, and the rotatable API credential
// all hang off the organization row. PostgresStore is the canonical
// Storage implementation; CachedStorage adds an in-process LRU read
// cache; MembershipPurger hard-deletes long-revoked memberships on a
// schedule.
//
// # Error taxonomy
//
// Domain errors carry a Code. The central rule: authorization failures
// and genuinely missing resources share CodeNotFound, so callers can
// never learn whether an organization exists without access to it.
// Deletions are soft; a deleted organization is not-found to every
// read and write.
//
// # Consistency
//
// The store provides record-level consistency only. The API credential
// writes are single statements (init-if-unset and unconditional swap),
// so rotation has no window where both or neither credential is valid.
// Membership upserts are keyed by (organization, external id) for
// directory sync and are replay-safe.
//
// # Related Packages
//
//   - pkg/auth: users, roles, memberships
//   - pkg/billing: payment gateway orchestration
//   - pkg/command: the gated command dispatcher
package orgs

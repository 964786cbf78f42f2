// Package auth provides the identity primitives of the organization
// control plane: users, the three-tier organization role model
// (owner > admin > member), membership records, role resolution, the
// sensitive-operation guard, and the organization API credential.
//
// Role resolution only considers Confirmed memberships. A caller
// without one resolves to RoleNone, the same outcome a nonexistent
// organization produces, so the resolver never reveals whether an
// organization exists.
//
// The SensitiveOperationGuard re-verifies the caller's password before
// irreversible commands. Failures consume a fixed minimum wall-clock
// delay (default 2s) so timing cannot distinguish a wrong credential
// from a slow path; successes return immediately. An optional
// Redis-backed attempt limiter bounds failures per user across
// instances.
//
// API credentials are opaque "org_"-prefixed secrets. Issue and rotate
// are atomic at the store level: there is never a window where the
// credential is unset, or where two credentials are valid.
package auth

// Package license issues and consumes the signed license documents
// that entitle self-hosted installations.
//
// A license is an RS256-signed JWT binding an organization id, a
// freshly generated installation id, and the entitlements (seats,
// storage, features) current at issue time. Hosted deployments sign;
// self-hosted deployments hold only the public key and verify. Once a
// license has been applied, its installation id pins the organization:
// later updates must carry the same id, so a license exported for one
// installation cannot be transplanted into another.
package license

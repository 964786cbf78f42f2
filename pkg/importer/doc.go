// Package importer merges directory-sync batches into an
// organization's groups and memberships.
//
// Records are keyed by caller-supplied external ids, removals are soft
// deletes, and the merge is effectively idempotent: replaying an
// identical batch converges on the same state, which doubles as the
// recovery path after a partial failure. Hosted deployments cap batch
// size at MaxBatchRecords unless the caller flags a large import;
// self-hosted deployments have no cap.
package importer

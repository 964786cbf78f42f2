// Package command is the authorization-gated command layer.
//
// Every operation of the service is a Command with one row in a policy
// table declaring its minimum role, the deployment modes it exists in,
// and whether the sensitive-operation guard must re-verify the
// caller's credential first. A single Dispatcher consults the table
// and executes the fixed sequence parse, role, mode, guard, invoke,
// short-circuiting at the first failure. Callers without sufficient
// access get the same not-found outcome as callers naming a
// nonexistent organization.
package command

// Package audit records the outcome of every gated command.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how a command ended.
type Outcome string

const (
	// OutcomeSuccess means the command completed.
	OutcomeSuccess Outcome = "success"
	// OutcomeDenied means the command was rejected before its domain
	// component ran: authorization, mode, or guard failure.
	OutcomeDenied Outcome = "denied"
	// OutcomeFailure means the domain component ran and failed.
	OutcomeFailure Outcome = "failure"
)

// Event is one audit log entry.
type Event struct {
	ID             int64      `json:"id"`
	Timestamp      time.Time  `json:"timestamp"`
	Command        string     `json:"command"`
	Outcome        Outcome    `json:"outcome"`
	UserID         int64      `json:"user_id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	RequestID      string     `json:"request_id,omitempty"`
	Message        string     `json:"message,omitempty"`
}

// Logger persists audit events.
type Logger interface {
	// Record writes an audit event. Failures must not abort the
	// command that produced the event; callers log and continue.
	Record(ctx context.Context, event *Event) error

	// Close flushes any buffered events.
	Close() error
}

// NopLogger discards all events. Used when auditing is disabled.
type NopLogger struct{}

func (NopLogger) Record(context.Context, *Event) error { return nil }
func (NopLogger) Close() error                         { return nil }

package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// DBLogger persists audit events to PostgreSQL.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger and ensures the
// audit table exists.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure command_audit table: %w", err)
	}
	return logger, nil
}

func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS command_audit (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		command VARCHAR(100) NOT NULL,
		outcome VARCHAR(20) NOT NULL,
		user_id BIGINT NOT NULL,
		organization_id UUID,
		request_id VARCHAR(100),
		message TEXT,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_command_audit_timestamp ON command_audit(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_command_audit_command ON command_audit(command);
	CREATE INDEX IF NOT EXISTS idx_command_audit_user_id ON command_audit(user_id);
	CREATE INDEX IF NOT EXISTS idx_command_audit_organization_id ON command_audit(organization_id);
	`

	_, err := l.db.Exec(query)
	return err
}

// Record inserts one audit event.
func (l *DBLogger) Record(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO command_audit (
			timestamp, command, outcome, user_id, organization_id, request_id, message
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.Command, event.Outcome,
		event.UserID, event.OrganizationID, event.RequestID, event.Message,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close is a no-op; the logger does not own the database handle.
func (l *DBLogger) Close() error {
	return nil
}

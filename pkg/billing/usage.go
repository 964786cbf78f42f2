package billing

import (
	"context"
	"database/sql"

	"github.com/harborgate/orgd/pkg/orgs"
)

// PostgresUsage reports resource occupation from the primary database.
type PostgresUsage struct {
	db *sql.DB
}

// NewPostgresUsage creates a new PostgresUsage.
func NewPostgresUsage(db *sql.DB) *PostgresUsage {
	return &PostgresUsage{db: db}
}

// OccupiedSeats counts memberships that hold a seat: everything except
// Revoked, since an outstanding invite already reserves its seat.
func (u *PostgresUsage) OccupiedSeats(ctx context.Context, org *orgs.Organization) (int, error) {
	query := `SELECT COUNT(*) FROM memberships WHERE organization_id = $1 AND status != 'revoked'`
	var count int
	if err := u.db.QueryRowContext(ctx, query, org.ID).Scan(&count); err != nil {
		return 0, orgs.ErrStorage("count occupied seats", err)
	}
	return count, nil
}

// UsedStorageGB returns the organization's current storage use,
// rounded up to whole GB.
func (u *PostgresUsage) UsedStorageGB(ctx context.Context, org *orgs.Organization) (int, error) {
	query := `SELECT COALESCE(SUM(size_bytes), 0) FROM stored_objects WHERE organization_id = $1`
	var bytes int64
	if err := u.db.QueryRowContext(ctx, query, org.ID).Scan(&bytes); err != nil {
		return 0, orgs.ErrStorage("sum used storage", err)
	}
	const gb = 1024 * 1024 * 1024
	return int((bytes + gb - 1) / gb), nil
}

package orgs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver

	"github.com/harborgate/orgd/pkg/auth"
)

// PostgresStore implements Storage using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orgColumns = `id, name, business_name, billing_email, gateway_customer_id, gateway_subscription_id,
	       seats, max_storage_gb, public_key, encrypted_private_key, api_credential,
	       tax_profile, installation_id, license_key, status, created_at, updated_at`

// queryRower is satisfied by *sql.DB and *sql.Tx, so the insert helpers
// run inside or outside a transaction.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CreateOrganization inserts a new active organization.
func (s *PostgresStore) CreateOrganization(ctx context.Context, org *Organization) error {
	return insertOrganization(ctx, s.db, org)
}

// CreateOrganizationWithOwner inserts the organization and its founding
// membership in one transaction. A failed membership insert rolls the
// organization row back, so no owner-less organization can persist.
func (s *PostgresStore) CreateOrganizationWithOwner(ctx context.Context, org *Organization, founder *auth.Membership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ErrStorage("create organization", err)
	}
	defer tx.Rollback()

	if err := insertOrganization(ctx, tx, org); err != nil {
		return err
	}
	founder.OrganizationID = org.ID
	if err := insertMembership(ctx, tx, founder); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return ErrStorage("create organization", err)
	}
	return nil
}

func insertOrganization(ctx context.Context, q queryRower, org *Organization) error {
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	if org.Status == "" {
		org.Status = OrgStatusActive
	}
	if org.Seats <= 0 {
		org.Seats = 1
	}

	taxJSON, err := marshalTaxProfile(org.TaxProfile)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO organizations (id, name, business_name, billing_email, seats, max_storage_gb,
		                           public_key, encrypted_private_key, api_credential, tax_profile, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err = q.QueryRowContext(ctx, query, org.ID, org.Name, org.BusinessName, org.BillingEmail,
		org.Seats, org.MaxStorageGB, org.PublicKey, org.EncryptedPrivateKey, org.APICredential,
		taxJSON, org.Status).
		Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return ErrStorage("create organization", err)
	}
	return nil
}

// GetOrganization retrieves an active organization by id. Deleted
// organizations return not-found.
func (s *PostgresStore) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM organizations
		WHERE id = $1 AND status != 'deleted'
	`, orgColumns)
	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound("organization not found")
	}
	if err != nil {
		return nil, ErrStorage("get organization", err)
	}
	return org, nil
}

// UpdateOrganization applies the non-nil display fields.
func (s *PostgresStore) UpdateOrganization(ctx context.Context, id uuid.UUID, updates *OrganizationUpdate) error {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if updates.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *updates.Name)
		argPos++
	}
	if updates.BusinessName != nil {
		setClauses = append(setClauses, fmt.Sprintf("business_name = $%d", argPos))
		args = append(args, *updates.BusinessName)
		argPos++
	}
	if updates.BillingEmail != nil {
		setClauses = append(setClauses, fmt.Sprintf("billing_email = $%d", argPos))
		args = append(args, *updates.BillingEmail)
		argPos++
	}

	if len(setClauses) == 0 {
		return nil // Nothing to update
	}
	setClauses = append(setClauses, "updated_at = NOW()")

	args = append(args, id)
	query := fmt.Sprintf("UPDATE organizations SET %s WHERE id = $%d AND status != 'deleted'",
		strings.Join(setClauses, ", "), argPos)

	return s.execExpectingRow(ctx, "update organization", query, args...)
}

// SoftDeleteOrganization marks the organization deleted.
func (s *PostgresStore) SoftDeleteOrganization(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE organizations SET status = 'deleted', updated_at = NOW() WHERE id = $1 AND status != 'deleted'`
	return s.execExpectingRow(ctx, "delete organization", query, id)
}

// ListOrganizationsForUser lists active organizations where the user
// holds a Confirmed membership.
func (s *PostgresStore) ListOrganizationsForUser(ctx context.Context, userID int64) ([]*Organization, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT %s
		FROM organizations o
		JOIN memberships m ON o.id = m.organization_id
		WHERE m.user_id = $1 AND m.status = 'confirmed' AND o.status != 'deleted'
		ORDER BY o.created_at DESC
	`, prefixColumns("o", orgColumns))
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, ErrStorage("list organizations", err)
	}
	defer rows.Close()

	var result []*Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, ErrStorage("scan organization", err)
		}
		result = append(result, org)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrStorage("list organizations", err)
	}
	return result, nil
}

// SetOrganizationKeys stores the member-sharing key pair.
func (s *PostgresStore) SetOrganizationKeys(ctx context.Context, id uuid.UUID, publicKey, encryptedPrivateKey string) error {
	query := `
		UPDATE organizations SET public_key = $2, encrypted_private_key = $3, updated_at = NOW()
		WHERE id = $1 AND status != 'deleted'
	`
	return s.execExpectingRow(ctx, "set organization keys", query, id, publicKey, encryptedPrivateKey)
}

// SetSubscriptionRefs records gateway references after the gateway
// confirmed them.
func (s *PostgresStore) SetSubscriptionRefs(ctx context.Context, id uuid.UUID, customerID, subscriptionID string) error {
	query := `
		UPDATE organizations SET gateway_customer_id = $2, gateway_subscription_id = $3, updated_at = NOW()
		WHERE id = $1 AND status != 'deleted'
	`
	return s.execExpectingRow(ctx, "set subscription refs", query, id, customerID, subscriptionID)
}

// SetEntitlements writes seat and storage counts.
func (s *PostgresStore) SetEntitlements(ctx context.Context, id uuid.UUID, seats, maxStorageGB int) error {
	query := `
		UPDATE organizations SET seats = $2, max_storage_gb = $3, updated_at = NOW()
		WHERE id = $1 AND status != 'deleted'
	`
	return s.execExpectingRow(ctx, "set entitlements", query, id, seats, maxStorageGB)
}

// SetLicense binds a license document and installation id.
func (s *PostgresStore) SetLicense(ctx context.Context, id uuid.UUID, licenseKey string, installationID uuid.UUID) error {
	query := `
		UPDATE organizations SET license_key = $2, installation_id = $3, updated_at = NOW()
		WHERE id = $1 AND status != 'deleted'
	`
	return s.execExpectingRow(ctx, "set license", query, id, licenseKey, installationID)
}

// SaveTaxProfile replaces the stored tax profile.
func (s *PostgresStore) SaveTaxProfile(ctx context.Context, id uuid.UUID, profile *TaxProfile) error {
	taxJSON, err := marshalTaxProfile(profile)
	if err != nil {
		return err
	}
	query := `UPDATE organizations SET tax_profile = $2, updated_at = NOW() WHERE id = $1 AND status != 'deleted'`
	return s.execExpectingRow(ctx, "save tax profile", query, id, taxJSON)
}

// GetUser retrieves a user by id.
func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (*auth.User, error) {
	query := `
		SELECT id, email, name, password_hash, is_active, created_at, updated_at, last_login_at
		FROM users
		WHERE id = $1
	`
	user := &auth.User{}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound("user not found")
	}
	if err != nil {
		return nil, ErrStorage("get user", err)
	}
	return user, nil
}

// GetMembership retrieves the user's membership in an organization.
func (s *PostgresStore) GetMembership(ctx context.Context, userID int64, orgID uuid.UUID) (*auth.Membership, error) {
	query := `
		SELECT id, organization_id, user_id, email, role, status, external_id, created_at, updated_at, revoked_at
		FROM memberships
		WHERE user_id = $1 AND organization_id = $2
	`
	m := &auth.Membership{}
	err := s.db.QueryRowContext(ctx, query, userID, orgID).Scan(
		&m.ID, &m.OrganizationID, &m.UserID, &m.Email, &m.Role, &m.Status,
		&m.ExternalID, &m.CreatedAt, &m.UpdatedAt, &m.RevokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound("membership not found")
	}
	if err != nil {
		return nil, ErrStorage("get membership", err)
	}
	return m, nil
}

func insertMembership(ctx context.Context, q queryRower, m *auth.Membership) error {
	query := `
		INSERT INTO memberships (organization_id, user_id, email, role, status, external_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := q.QueryRowContext(ctx, query, m.OrganizationID, m.UserID, m.Email, m.Role, m.Status, m.ExternalID).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return ErrStorage("add membership", err)
	}
	return nil
}

// UpsertMembership merges a directory-sourced membership keyed by
// (organization, external id). With overwrite the existing row's email
// and role are replaced and a revoked row is resurrected with the
// incoming status; the status of an active row is preserved, because
// directory batches carry no status and must not demote a member who
// already accepted. Without overwrite an existing row is left
// untouched.
func (s *PostgresStore) UpsertMembership(ctx context.Context, m *auth.Membership, overwrite bool) error {
	var query string
	if overwrite {
		query = `
			INSERT INTO memberships (organization_id, user_id, email, role, status, external_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (organization_id, external_id) DO UPDATE
			SET email = EXCLUDED.email, role = EXCLUDED.role,
			    status = CASE WHEN memberships.revoked_at IS NULL THEN memberships.status ELSE EXCLUDED.status END,
			    revoked_at = NULL, updated_at = NOW()
		`
	} else {
		query = `
			INSERT INTO memberships (organization_id, user_id, email, role, status, external_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (organization_id, external_id) DO NOTHING
		`
	}
	if _, err := s.db.ExecContext(ctx, query, m.OrganizationID, m.UserID, m.Email, m.Role, m.Status, m.ExternalID); err != nil {
		return ErrStorage("upsert membership", err)
	}
	return nil
}

// RevokeMembership soft-deletes the user's membership.
func (s *PostgresStore) RevokeMembership(ctx context.Context, orgID uuid.UUID, userID int64) error {
	query := `
		UPDATE memberships SET status = 'revoked', revoked_at = NOW(), updated_at = NOW()
		WHERE organization_id = $1 AND user_id = $2 AND status != 'revoked'
	`
	return s.execExpectingRow(ctx, "revoke membership", query, orgID, userID)
}

// SoftDeleteMembershipByExternalID revokes the membership matching a
// directory external id. A missing id is not an error: removals are
// replay-safe.
func (s *PostgresStore) SoftDeleteMembershipByExternalID(ctx context.Context, orgID uuid.UUID, externalID string) error {
	query := `
		UPDATE memberships SET status = 'revoked', revoked_at = NOW(), updated_at = NOW()
		WHERE organization_id = $1 AND external_id = $2 AND status != 'revoked'
	`
	if _, err := s.db.ExecContext(ctx, query, orgID, externalID); err != nil {
		return ErrStorage("soft delete membership", err)
	}
	return nil
}

// CountConfirmedOwners counts Confirmed Owner memberships.
func (s *PostgresStore) CountConfirmedOwners(ctx context.Context, orgID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM memberships
		WHERE organization_id = $1 AND role = 'owner' AND status = 'confirmed'
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, orgID).Scan(&count); err != nil {
		return 0, ErrStorage("count owners", err)
	}
	return count, nil
}

// PurgeRevokedMemberships hard-deletes memberships revoked before the
// cutoff.
func (s *PostgresStore) PurgeRevokedMemberships(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM memberships WHERE status = 'revoked' AND revoked_at < $1`
	result, err := s.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, ErrStorage("purge memberships", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, ErrStorage("purge memberships", err)
	}
	return purged, nil
}

// UpsertGroup merges a group keyed by (organization, external id).
func (s *PostgresStore) UpsertGroup(ctx context.Context, g *Group, overwrite bool) error {
	var query string
	if overwrite {
		query = `
			INSERT INTO groups (organization_id, name, external_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (organization_id, external_id) DO UPDATE
			SET name = EXCLUDED.name, updated_at = NOW()
		`
	} else {
		query = `
			INSERT INTO groups (organization_id, name, external_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (organization_id, external_id) DO NOTHING
		`
	}
	if _, err := s.db.ExecContext(ctx, query, g.OrganizationID, g.Name, g.ExternalID); err != nil {
		return ErrStorage("upsert group", err)
	}
	return nil
}

// InitAPICredential sets the credential only when none is set, in one
// statement, and returns whichever credential is current afterwards.
// Concurrent first issues converge on a single winner.
func (s *PostgresStore) InitAPICredential(ctx context.Context, orgID uuid.UUID, credential string) (string, error) {
	query := `
		UPDATE organizations
		SET api_credential = CASE WHEN api_credential = '' THEN $2 ELSE api_credential END,
		    updated_at = NOW()
		WHERE id = $1 AND status != 'deleted'
		RETURNING api_credential
	`
	var current string
	err := s.db.QueryRowContext(ctx, query, orgID, credential).Scan(&current)
	if err == sql.ErrNoRows {
		return "", ErrNotFound("organization not found")
	}
	if err != nil {
		return "", ErrStorage("init api credential", err)
	}
	return current, nil
}

// ReplaceAPICredential swaps in the new credential unconditionally. The
// single UPDATE invalidates the previous credential in the same
// statement, so there is no window where both or neither are valid.
func (s *PostgresStore) ReplaceAPICredential(ctx context.Context, orgID uuid.UUID, credential string) error {
	query := `UPDATE organizations SET api_credential = $2, updated_at = NOW() WHERE id = $1 AND status != 'deleted'`
	return s.execExpectingRow(ctx, "replace api credential", query, orgID, credential)
}

// GetAPICredential reads the current credential straight from the
// database. This read is the authentication source of truth and goes
// around every cache, so a rotation done by any process is observed
// immediately.
func (s *PostgresStore) GetAPICredential(ctx context.Context, orgID uuid.UUID) (string, error) {
	query := `SELECT api_credential FROM organizations WHERE id = $1 AND status != 'deleted'`
	var credential string
	err := s.db.QueryRowContext(ctx, query, orgID).Scan(&credential)
	if err == sql.ErrNoRows {
		return "", ErrNotFound("organization not found")
	}
	if err != nil {
		return "", ErrStorage("get api credential", err)
	}
	return credential, nil
}

// execExpectingRow runs an UPDATE that must match exactly one row;
// zero matched rows means the target does not exist.
func (s *PostgresStore) execExpectingRow(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return ErrStorage(op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return ErrStorage(op, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound(op + ": no matching row")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrganization(row rowScanner) (*Organization, error) {
	org := &Organization{}
	var taxJSON []byte
	err := row.Scan(
		&org.ID, &org.Name, &org.BusinessName, &org.BillingEmail,
		&org.GatewayCustomerID, &org.GatewaySubscriptionID,
		&org.Seats, &org.MaxStorageGB, &org.PublicKey, &org.EncryptedPrivateKey,
		&org.APICredential, &taxJSON, &org.InstallationID, &org.LicenseKey,
		&org.Status, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(taxJSON) > 0 {
		org.TaxProfile = &TaxProfile{}
		if err := json.Unmarshal(taxJSON, org.TaxProfile); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tax profile: %w", err)
		}
	}
	return org, nil
}

func marshalTaxProfile(profile *TaxProfile) (interface{}, error) {
	if profile == nil {
		return nil, nil
	}
	taxJSON, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tax profile: %w", err)
	}
	return taxJSON, nil
}

// prefixColumns qualifies each column in a comma-separated list with a
// table alias for join queries.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

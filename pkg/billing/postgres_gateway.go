package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harborgate/orgd/pkg/orgs"
)

// PostgresGateway implements Gateway against processor state mirrored
// in PostgreSQL. The processor API calls themselves are stubbed the
// same way a sandbox-mode processor behaves; the persistence, error
// codes, and state transitions are real.
type PostgresGateway struct {
	db *sql.DB
}

// NewPostgresGateway creates a new PostgresGateway.
func NewPostgresGateway(db *sql.DB) *PostgresGateway {
	return &PostgresGateway{db: db}
}

// GetBilling retrieves the payment-source summary for an organization.
func (g *PostgresGateway) GetBilling(ctx context.Context, org *orgs.Organization) (*BillingInfo, error) {
	query := `
		SELECT type, brand, last4, exp_month, exp_year, bank_name, bank_verified,
		       balance_cents, currency, updated_at
		FROM payment_methods
		WHERE organization_id = $1 AND is_default = true
	`
	info := &BillingInfo{OrganizationID: org.ID}
	var brand, last4, bankName, currency sql.NullString
	var expMonth, expYear sql.NullInt64
	err := g.db.QueryRowContext(ctx, query, org.ID).Scan(
		&info.Type, &brand, &last4, &expMonth, &expYear,
		&bankName, &info.BankVerified, &info.BalanceCents, &currency, &info.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		// Never subscribed: an empty summary, not an error.
		return info, nil
	}
	if err != nil {
		return nil, &GatewayError{Code: GatewayCodeUnavailable, Msg: "failed to get billing", Err: err}
	}

	info.Brand = brand.String
	info.Last4 = last4.String
	info.ExpMonth = int(expMonth.Int64)
	info.ExpYear = int(expYear.Int64)
	info.BankName = bankName.String
	info.Currency = currency.String
	return info, nil
}

// GetSubscription retrieves the subscription state for an organization.
func (g *PostgresGateway) GetSubscription(ctx context.Context, org *orgs.Organization) (*Subscription, error) {
	query := `
		SELECT plan, gateway_customer_id, gateway_subscription_id, status, seats, max_storage_gb,
		       current_period_start, current_period_end, cancel_at, canceled_at, created_at, updated_at
		FROM subscriptions
		WHERE organization_id = $1
	`
	sub := &Subscription{OrganizationID: org.ID}
	err := g.db.QueryRowContext(ctx, query, org.ID).Scan(
		&sub.Plan, &sub.GatewayCustomerID, &sub.GatewaySubscriptionID, &sub.Status,
		&sub.Seats, &sub.MaxStorageGB,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAt, &sub.CanceledAt,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &GatewayError{Code: GatewayCodeNoSubscription, Msg: "no subscription"}
	}
	if err != nil {
		return nil, &GatewayError{Code: GatewayCodeUnavailable, Msg: "failed to get subscription", Err: err}
	}
	return sub, nil
}

// Subscribe creates the processor customer and subscription. In
// sandbox mode the processor ids are derived locally; the row is the
// source of truth for later calls.
func (g *PostgresGateway) Subscribe(ctx context.Context, org *orgs.Organization, plan Plan) (string, string, *PaymentConfirmation, error) {
	customerID := fmt.Sprintf("cus_%s", org.ID)
	subscriptionID := fmt.Sprintf("sub_%s", uuid.New())
	periodStart := time.Now().UTC()
	periodEnd := periodStart.AddDate(0, 1, 0)

	query := `
		INSERT INTO subscriptions (organization_id, plan, gateway_customer_id, gateway_subscription_id,
		                           status, seats, max_storage_gb, current_period_start, current_period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (organization_id) DO UPDATE
		SET plan = EXCLUDED.plan, status = EXCLUDED.status, updated_at = NOW()
	`
	_, err := g.db.ExecContext(ctx, query, org.ID, plan, customerID, subscriptionID,
		SubscriptionStatusActive, org.Seats, org.MaxStorageGB, periodStart, periodEnd)
	if err != nil {
		return "", "", nil, &GatewayError{Code: GatewayCodeUnavailable, Msg: "failed to create subscription", Err: err}
	}
	return customerID, subscriptionID, nil, nil
}

// ChangePlan moves the subscription to a new plan.
func (g *PostgresGateway) ChangePlan(ctx context.Context, org *orgs.Organization, plan Plan) (*PaymentConfirmation, error) {
	query := `UPDATE subscriptions SET plan = $2, updated_at = NOW() WHERE organization_id = $1 AND status != 'canceled'`
	if err := g.execExpectingRow(ctx, "failed to change plan", query, org.ID, plan); err != nil {
		return nil, err
	}
	return nil, nil
}

// ReplacePaymentMethod swaps the default payment method in a single
// transaction so the previous method stays intact on failure.
func (g *PostgresGateway) ReplacePaymentMethod(ctx context.Context, org *orgs.Organization, token string, methodType PaymentMethodType) error {
	// A sandbox processor rejects tokens it did not issue.
	if len(token) < 4 || token[:4] != "tok_" {
		return &GatewayError{Code: GatewayCodeInvalidToken, Msg: "payment method token rejected"}
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return &GatewayError{Code: GatewayCodeUnavailable, Msg: "failed to begin transaction", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE payment_methods SET is_default = false WHERE organization_id = $1`, org.ID); err != nil {
		return &GatewayError{Code: GatewayCodeUnavailable, Msg: "failed to unset default", Err: err}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO payment_methods (organization_id, gateway_token, type, is_default, bank_verified)
		VALUES ($1, $2, $3, true, $4)
	`, org.ID, token, methodType, methodType != PaymentMethodTypeBankAccount); err != nil {
		return &GatewayError{Code: GatewayCodeUnavailable, Msg: "failed to store payment method", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &GatewayError{Code: GatewayCodeUnavailable, Msg: "failed to commit", Err: err}
	}
	return nil
}

// SetSeats sets the absolute seat count on the subscription.
func (g *PostgresGateway) SetSeats(ctx context.Context, org *orgs.Organization, seats int) (*PaymentConfirmation, error) {
	query := `UPDATE subscriptions SET seats = $2, updated_at = NOW() WHERE organization_id = $1 AND status = 'active'`
	if err := g.execExpectingRow(ctx, "failed to set seats", query, org.ID, seats); err != nil {
		return nil, err
	}
	return nil, nil
}

// SetStorage sets the absolute storage allowance on the subscription.
func (g *PostgresGateway) SetStorage(ctx context.Context, org *orgs.Organization, maxStorageGB int) (*PaymentConfirmation, error) {
	query := `UPDATE subscriptions SET max_storage_gb = $2, updated_at = NOW() WHERE organization_id = $1 AND status = 'active'`
	if err := g.execExpectingRow(ctx, "failed to set storage", query, org.ID, maxStorageGB); err != nil {
		return nil, err
	}
	return nil, nil
}

// VerifyBankAccount confirms micro-deposit amounts against the stored
// expectation. A mismatch clears nothing; the caller must re-initiate.
func (g *PostgresGateway) VerifyBankAccount(ctx context.Context, org *orgs.Organization, amount1, amount2 int64) error {
	query := `
		UPDATE payment_methods
		SET bank_verified = true, updated_at = NOW()
		WHERE organization_id = $1 AND type = 'bank_account' AND is_default = true
		  AND verify_amount1 = $2 AND verify_amount2 = $3 AND bank_verified = false
	`
	result, err := g.db.ExecContext(ctx, query, org.ID, amount1, amount2)
	if err != nil {
		return &GatewayError{Code: GatewayCodeUnavailable, Msg: "failed to verify bank account", Err: err}
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return &GatewayError{Code: GatewayCodeUnavailable, Msg: "failed to get rows affected", Err: err}
	}
	if rowsAffected == 0 {
		return &GatewayError{Code: GatewayCodeVerificationMismatch, Msg: "verification amounts do not match"}
	}
	return nil
}

// CancelSubscription marks the subscription canceled at period end.
func (g *PostgresGateway) CancelSubscription(ctx context.Context, org *orgs.Organization) error {
	query := `
		UPDATE subscriptions
		SET status = 'canceled', canceled_at = NOW(), cancel_at = current_period_end, updated_at = NOW()
		WHERE organization_id = $1 AND status = 'active'
	`
	return g.execExpectingRow(ctx, "failed to cancel subscription", query, org.ID)
}

// ReinstateSubscription reactivates a canceled subscription while its
// period is still running; afterwards the failure carries
// GatewayCodePeriodEnded.
func (g *PostgresGateway) ReinstateSubscription(ctx context.Context, org *orgs.Organization) error {
	query := `
		UPDATE subscriptions
		SET status = 'active', canceled_at = NULL, cancel_at = NULL, updated_at = NOW()
		WHERE organization_id = $1 AND status = 'canceled' AND current_period_end > NOW()
	`
	result, err := g.db.ExecContext(ctx, query, org.ID)
	if err != nil {
		return &GatewayError{Code: GatewayCodeUnavailable, Msg: "failed to reinstate subscription", Err: err}
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return &GatewayError{Code: GatewayCodeUnavailable, Msg: "failed to get rows affected", Err: err}
	}
	if rowsAffected == 0 {
		return &GatewayError{Code: GatewayCodePeriodEnded, Msg: "billing period ended"}
	}
	return nil
}

// GetTaxInfo reads the processor-side tax profile.
func (g *PostgresGateway) GetTaxInfo(ctx context.Context, org *orgs.Organization) (*orgs.TaxProfile, error) {
	query := `
		SELECT country, tax_id, name, address, city, postal_code
		FROM tax_profiles
		WHERE organization_id = $1
	`
	profile := &orgs.TaxProfile{}
	err := g.db.QueryRowContext(ctx, query, org.ID).Scan(
		&profile.Country, &profile.TaxID, &profile.Name,
		&profile.Address, &profile.City, &profile.PostalCode,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &GatewayError{Code: GatewayCodeUnavailable, Msg: "failed to get tax info", Err: err}
	}
	return profile, nil
}

// SaveTaxInfo upserts the processor-side tax profile.
func (g *PostgresGateway) SaveTaxInfo(ctx context.Context, org *orgs.Organization, profile *orgs.TaxProfile) error {
	query := `
		INSERT INTO tax_profiles (organization_id, country, tax_id, name, address, city, postal_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id) DO UPDATE
		SET country = EXCLUDED.country, tax_id = EXCLUDED.tax_id, name = EXCLUDED.name,
		    address = EXCLUDED.address, city = EXCLUDED.city, postal_code = EXCLUDED.postal_code,
		    updated_at = NOW()
	`
	_, err := g.db.ExecContext(ctx, query, org.ID, profile.Country, profile.TaxID,
		profile.Name, profile.Address, profile.City, profile.PostalCode)
	if err != nil {
		return &GatewayError{Code: GatewayCodeUnavailable, Msg: "failed to save tax info", Err: err}
	}
	return nil
}

func (g *PostgresGateway) execExpectingRow(ctx context.Context, msg, query string, args ...interface{}) error {
	result, err := g.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &GatewayError{Code: GatewayCodeUnavailable, Msg: msg, Err: err}
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return &GatewayError{Code: GatewayCodeUnavailable, Msg: msg, Err: err}
	}
	if rowsAffected == 0 {
		return &GatewayError{Code: GatewayCodeNoSubscription, Msg: "no active subscription"}
	}
	return nil
}

package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/harborgate/orgd/pkg/orgs"
)

// Gateway error codes a processor failure may carry.
const (
	GatewayCodeDeclined             = "card_declined"
	GatewayCodeInvalidToken         = "invalid_token"
	GatewayCodePeriodEnded          = "period_ended"
	GatewayCodeVerificationMismatch = "verification_mismatch"
	GatewayCodeNoSubscription       = "no_subscription"
	GatewayCodeUnavailable          = "unavailable"
)

// GatewayError is a payment-processor failure, passed through to the
// caller with the processor-specific code intact. Never retried here.
type GatewayError struct {
	Code string
	Msg  string
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("gateway: %s: %s", e.Code, e.Msg)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ErrorCode maps every gateway failure onto the domain taxonomy.
func (e *GatewayError) ErrorCode() string { return string(orgs.CodeGateway) }

// GatewayCodeOf returns the processor code of the first GatewayError in
// err's chain, or "".
func GatewayCodeOf(err error) string {
	var e *GatewayError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Gateway is the payment-processor collaborator. Every method may fail
// with a *GatewayError; the orchestrator never calls the store before a
// gateway call has succeeded.
type Gateway interface {
	// GetBilling returns the payment-source summary.
	GetBilling(ctx context.Context, org *orgs.Organization) (*BillingInfo, error)
	// GetSubscription returns the current subscription state.
	GetSubscription(ctx context.Context, org *orgs.Organization) (*Subscription, error)
	// Subscribe creates the customer and subscription for a plan and
	// returns the gateway references. May require client confirmation.
	Subscribe(ctx context.Context, org *orgs.Organization, plan Plan) (customerID, subscriptionID string, confirmation *PaymentConfirmation, err error)
	// ChangePlan moves an existing subscription to a new plan.
	ChangePlan(ctx context.Context, org *orgs.Organization, plan Plan) (*PaymentConfirmation, error)
	// ReplacePaymentMethod swaps the stored payment method for the
	// tokenized one. On failure the previous method stays intact.
	ReplacePaymentMethod(ctx context.Context, org *orgs.Organization, token string, methodType PaymentMethodType) error
	// SetSeats sets the subscription's absolute seat count.
	SetSeats(ctx context.Context, org *orgs.Organization, seats int) (*PaymentConfirmation, error)
	// SetStorage sets the subscription's absolute storage allowance.
	SetStorage(ctx context.Context, org *orgs.Organization, maxStorageGB int) (*PaymentConfirmation, error)
	// VerifyBankAccount confirms a micro-deposit verification.
	VerifyBankAccount(ctx context.Context, org *orgs.Organization, amount1, amount2 int64) error
	// CancelSubscription cancels at period end.
	CancelSubscription(ctx context.Context, org *orgs.Organization) error
	// ReinstateSubscription undoes a cancellation; fails with
	// GatewayCodePeriodEnded once the period is over.
	ReinstateSubscription(ctx context.Context, org *orgs.Organization) error
	// GetTaxInfo / SaveTaxInfo pass the tax profile through.
	GetTaxInfo(ctx context.Context, org *orgs.Organization) (*orgs.TaxProfile, error)
	SaveTaxInfo(ctx context.Context, org *orgs.Organization, profile *orgs.TaxProfile) error
}

// UsageSource reports current resource occupation, consulted before a
// shrink so entitlements never drop below what is in use.
type UsageSource interface {
	OccupiedSeats(ctx context.Context, org *orgs.Organization) (int, error)
	UsedStorageGB(ctx context.Context, org *orgs.Organization) (int, error)
}

package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/harborgate/orgd/pkg/orgs"
)

// Store is the slice of persistence the orchestrator writes to. Writes
// happen only after the gateway confirmed the corresponding change.
type Store interface {
	SetSubscriptionRefs(ctx context.Context, id uuid.UUID, customerID, subscriptionID string) error
	SetEntitlements(ctx context.Context, id uuid.UUID, seats, maxStorageGB int) error
	SaveTaxProfile(ctx context.Context, id uuid.UUID, profile *orgs.TaxProfile) error
}

// Orchestrator carries out billing adjustments against the payment
// gateway. Every adjustment is all-or-nothing per call: the gateway
// confirms first, local state changes second, and a gateway failure
// leaves local state untouched. Nothing here retries or deduplicates;
// replays are the caller's responsibility.
type Orchestrator struct {
	gateway Gateway
	store   Store
	usage   UsageSource
}

// NewOrchestrator creates a billing orchestrator.
func NewOrchestrator(gateway Gateway, store Store, usage UsageSource) *Orchestrator {
	return &Orchestrator{
		gateway: gateway,
		store:   store,
		usage:   usage,
	}
}

// GetBilling returns the organization's payment-source summary.
func (o *Orchestrator) GetBilling(ctx context.Context, org *orgs.Organization) (*BillingInfo, error) {
	return o.gateway.GetBilling(ctx, org)
}

// GetSubscription returns the organization's subscription state.
func (o *Orchestrator) GetSubscription(ctx context.Context, org *orgs.Organization) (*Subscription, error) {
	return o.gateway.GetSubscription(ctx, org)
}

// UpgradePlan subscribes the organization to a plan, creating the
// gateway customer and subscription on first upgrade. The gateway
// references are persisted only after the gateway accepted the plan.
func (o *Orchestrator) UpgradePlan(ctx context.Context, org *orgs.Organization, plan Plan) (*PaymentConfirmation, error) {
	if !plan.Valid() {
		return nil, orgs.ErrValidation("unknown plan %q", plan)
	}

	if !org.Subscribed() {
		customerID, subscriptionID, confirmation, err := o.gateway.Subscribe(ctx, org, plan)
		if err != nil {
			return nil, err
		}
		if err := o.store.SetSubscriptionRefs(ctx, org.ID, customerID, subscriptionID); err != nil {
			return nil, err
		}
		return confirmation, nil
	}
	return o.gateway.ChangePlan(ctx, org, plan)
}

// ReplacePaymentMethod atomically swaps the stored payment method and,
// when a tax profile is supplied, updates it too. A gateway rejection
// of the token leaves the previous method intact and writes nothing.
func (o *Orchestrator) ReplacePaymentMethod(ctx context.Context, org *orgs.Organization, token string, methodType PaymentMethodType, taxProfile *orgs.TaxProfile) error {
	if token == "" {
		return orgs.ErrValidation("payment method token is required")
	}
	if !methodType.Valid() {
		return orgs.ErrValidation("unknown payment method type %q", methodType)
	}

	if err := o.gateway.ReplacePaymentMethod(ctx, org, token, methodType); err != nil {
		return err
	}
	if taxProfile != nil {
		if err := o.gateway.SaveTaxInfo(ctx, org, taxProfile); err != nil {
			return err
		}
		if err := o.store.SaveTaxProfile(ctx, org.ID, taxProfile); err != nil {
			return err
		}
	}
	return nil
}

// AdjustSeats changes the seat count by a signed delta. A shrink below
// the currently occupied seats is rejected before any side effect; a
// gateway failure leaves the stored count unchanged. The returned
// confirmation, when non-nil, must be completed client-side.
func (o *Orchestrator) AdjustSeats(ctx context.Context, org *orgs.Organization, delta int) (*PaymentConfirmation, error) {
	if delta == 0 {
		return nil, nil
	}
	newSeats := org.Seats + delta
	if newSeats < 1 {
		return nil, orgs.ErrValidation("seat count cannot drop below 1")
	}
	if delta < 0 {
		occupied, err := o.usage.OccupiedSeats(ctx, org)
		if err != nil {
			return nil, err
		}
		if newSeats < occupied {
			return nil, orgs.ErrValidation("cannot reduce seats below %d currently occupied", occupied)
		}
	}

	confirmation, err := o.gateway.SetSeats(ctx, org, newSeats)
	if err != nil {
		return nil, err
	}
	if err := o.store.SetEntitlements(ctx, org.ID, newSeats, org.MaxStorageGB); err != nil {
		return nil, err
	}
	return confirmation, nil
}

// AdjustStorage changes the storage allowance by a signed delta in GB,
// with the same shrink guard and all-or-nothing ordering as AdjustSeats.
func (o *Orchestrator) AdjustStorage(ctx context.Context, org *orgs.Organization, delta int) (*PaymentConfirmation, error) {
	if delta == 0 {
		return nil, nil
	}
	newStorage := org.MaxStorageGB + delta
	if newStorage < 0 {
		return nil, orgs.ErrValidation("storage allowance cannot be negative")
	}
	if delta < 0 {
		used, err := o.usage.UsedStorageGB(ctx, org)
		if err != nil {
			return nil, err
		}
		if newStorage < used {
			return nil, orgs.ErrValidation("cannot reduce storage below %d GB currently used", used)
		}
	}

	confirmation, err := o.gateway.SetStorage(ctx, org, newStorage)
	if err != nil {
		return nil, err
	}
	if err := o.store.SetEntitlements(ctx, org.ID, org.Seats, newStorage); err != nil {
		return nil, err
	}
	return confirmation, nil
}

// VerifyBankAccount confirms a previously initiated micro-deposit
// verification. Exactly two positive amounts in minor currency units;
// a mismatch is not retried, the caller must re-initiate.
func (o *Orchestrator) VerifyBankAccount(ctx context.Context, org *orgs.Organization, amount1, amount2 int64) error {
	if amount1 <= 0 || amount2 <= 0 {
		return orgs.ErrValidation("verification amounts must be positive")
	}
	return o.gateway.VerifyBankAccount(ctx, org, amount1, amount2)
}

// CancelSubscription cancels the subscription at the gateway. The
// cancellation stays reversible until the billing period ends.
func (o *Orchestrator) CancelSubscription(ctx context.Context, org *orgs.Organization) error {
	if !org.Subscribed() {
		return orgs.ErrValidation("organization has no subscription")
	}
	return o.gateway.CancelSubscription(ctx, org)
}

// ReinstateSubscription undoes a cancellation. Once the billing period
// has ended the failure is a domain error, not a gateway error: the
// subscription is gone and a new one must be created.
func (o *Orchestrator) ReinstateSubscription(ctx context.Context, org *orgs.Organization) error {
	if !org.Subscribed() {
		return orgs.ErrValidation("organization has no subscription")
	}
	err := o.gateway.ReinstateSubscription(ctx, org)
	if GatewayCodeOf(err) == GatewayCodePeriodEnded {
		return orgs.ErrInvariant("billing period has ended; subscription cannot be reinstated")
	}
	return err
}

// GetTaxInfo reads the tax profile through the gateway.
func (o *Orchestrator) GetTaxInfo(ctx context.Context, org *orgs.Organization) (*orgs.TaxProfile, error) {
	return o.gateway.GetTaxInfo(ctx, org)
}

// SaveTaxInfo writes the tax profile to the gateway first, then to
// local storage.
func (o *Orchestrator) SaveTaxInfo(ctx context.Context, org *orgs.Organization, profile *orgs.TaxProfile) error {
	if profile == nil || profile.Country == "" {
		return orgs.ErrValidation("tax profile requires a country")
	}
	if err := o.gateway.SaveTaxInfo(ctx, org, profile); err != nil {
		return err
	}
	return o.store.SaveTaxProfile(ctx, org.ID, profile)
}

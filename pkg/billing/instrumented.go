package billing

import (
	"context"
	"time"

	"github.com/harborgate/orgd/pkg/observability"
	"github.com/harborgate/orgd/pkg/orgs"
)

// NewInstrumentedGateway wraps gateway so every call is counted and
// timed per operation. A nil metrics returns the gateway unchanged.
func NewInstrumentedGateway(gateway Gateway, metrics *observability.Metrics) Gateway {
	if metrics == nil {
		return gateway
	}
	return &instrumentedGateway{gateway: gateway, metrics: metrics}
}

type instrumentedGateway struct {
	gateway Gateway
	metrics *observability.Metrics
}

func (g *instrumentedGateway) observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	g.metrics.GatewayCallsTotal.WithLabelValues(op, status).Inc()
	g.metrics.GatewayCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (g *instrumentedGateway) GetBilling(ctx context.Context, org *orgs.Organization) (*BillingInfo, error) {
	start := time.Now()
	info, err := g.gateway.GetBilling(ctx, org)
	g.observe("get_billing", start, err)
	return info, err
}

func (g *instrumentedGateway) GetSubscription(ctx context.Context, org *orgs.Organization) (*Subscription, error) {
	start := time.Now()
	sub, err := g.gateway.GetSubscription(ctx, org)
	g.observe("get_subscription", start, err)
	return sub, err
}

func (g *instrumentedGateway) Subscribe(ctx context.Context, org *orgs.Organization, plan Plan) (string, string, *PaymentConfirmation, error) {
	start := time.Now()
	customerID, subscriptionID, confirmation, err := g.gateway.Subscribe(ctx, org, plan)
	g.observe("subscribe", start, err)
	return customerID, subscriptionID, confirmation, err
}

func (g *instrumentedGateway) ChangePlan(ctx context.Context, org *orgs.Organization, plan Plan) (*PaymentConfirmation, error) {
	start := time.Now()
	confirmation, err := g.gateway.ChangePlan(ctx, org, plan)
	g.observe("change_plan", start, err)
	return confirmation, err
}

func (g *instrumentedGateway) ReplacePaymentMethod(ctx context.Context, org *orgs.Organization, token string, methodType PaymentMethodType) error {
	start := time.Now()
	err := g.gateway.ReplacePaymentMethod(ctx, org, token, methodType)
	g.observe("replace_payment_method", start, err)
	return err
}

func (g *instrumentedGateway) SetSeats(ctx context.Context, org *orgs.Organization, seats int) (*PaymentConfirmation, error) {
	start := time.Now()
	confirmation, err := g.gateway.SetSeats(ctx, org, seats)
	g.observe("set_seats", start, err)
	return confirmation, err
}

func (g *instrumentedGateway) SetStorage(ctx context.Context, org *orgs.Organization, maxStorageGB int) (*PaymentConfirmation, error) {
	start := time.Now()
	confirmation, err := g.gateway.SetStorage(ctx, org, maxStorageGB)
	g.observe("set_storage", start, err)
	return confirmation, err
}

func (g *instrumentedGateway) VerifyBankAccount(ctx context.Context, org *orgs.Organization, amount1, amount2 int64) error {
	start := time.Now()
	err := g.gateway.VerifyBankAccount(ctx, org, amount1, amount2)
	g.observe("verify_bank_account", start, err)
	return err
}

func (g *instrumentedGateway) CancelSubscription(ctx context.Context, org *orgs.Organization) error {
	start := time.Now()
	err := g.gateway.CancelSubscription(ctx, org)
	g.observe("cancel_subscription", start, err)
	return err
}

func (g *instrumentedGateway) ReinstateSubscription(ctx context.Context, org *orgs.Organization) error {
	start := time.Now()
	err := g.gateway.ReinstateSubscription(ctx, org)
	g.observe("reinstate_subscription", start, err)
	return err
}

func (g *instrumentedGateway) GetTaxInfo(ctx context.Context, org *orgs.Organization) (*orgs.TaxProfile, error) {
	start := time.Now()
	profile, err := g.gateway.GetTaxInfo(ctx, org)
	g.observe("get_tax_info", start, err)
	return profile, err
}

func (g *instrumentedGateway) SaveTaxInfo(ctx context.Context, org *orgs.Organization, profile *orgs.TaxProfile) error {
	start := time.Now()
	err := g.gateway.SaveTaxInfo(ctx, org, profile)
	g.observe("save_tax_info", start, err)
	return err
}

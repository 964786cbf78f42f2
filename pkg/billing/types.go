package billing

import (
	"time"

	"github.com/google/uuid"
)

// Plan represents a subscription plan tier.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanTeams    Plan = "teams"
	PlanBusiness Plan = "business"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanTeams || p == PlanBusiness
}

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

// Subscription is the gateway-side subscription state for an
// organization, read through the gateway collaborator.
type Subscription struct {
	OrganizationID        uuid.UUID          `json:"organization_id"`
	Plan                  Plan               `json:"plan"`
	GatewayCustomerID     string             `json:"gateway_customer_id,omitempty"`
	GatewaySubscriptionID string             `json:"gateway_subscription_id,omitempty"`
	Status                SubscriptionStatus `json:"status"`
	Seats                 int                `json:"seats"`
	MaxStorageGB          int                `json:"max_storage_gb"`
	CurrentPeriodStart    *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd      *time.Time         `json:"current_period_end,omitempty"`
	CancelAt              *time.Time         `json:"cancel_at,omitempty"`
	CanceledAt            *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// Reinstatable reports whether a canceled subscription can still be
// reinstated: cancellation is reversible until the billing period ends.
func (s *Subscription) Reinstatable(now time.Time) bool {
	if s.Status != SubscriptionStatusCanceled {
		return false
	}
	return s.CurrentPeriodEnd != nil && now.Before(*s.CurrentPeriodEnd)
}

// PaymentMethodType represents the type of payment method
type PaymentMethodType string

const (
	PaymentMethodTypeCard        PaymentMethodType = "card"
	PaymentMethodTypeBankAccount PaymentMethodType = "bank_account"
)

// Valid reports whether t is a supported payment method type.
func (t PaymentMethodType) Valid() bool {
	return t == PaymentMethodTypeCard || t == PaymentMethodTypeBankAccount
}

// BillingInfo is the payment-source summary shown to owners. It never
// contains a full card or account number.
type BillingInfo struct {
	OrganizationID uuid.UUID         `json:"organization_id"`
	Type           PaymentMethodType `json:"type,omitempty"`
	Brand          string            `json:"brand,omitempty"`
	Last4          string            `json:"last4,omitempty"`
	ExpMonth       int               `json:"exp_month,omitempty"`
	ExpYear        int               `json:"exp_year,omitempty"`
	BankName       string            `json:"bank_name,omitempty"`
	BankVerified   bool              `json:"bank_verified,omitempty"`
	BalanceCents   int64             `json:"balance_cents"`
	Currency       string            `json:"currency,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// PaymentConfirmation is returned when an adjustment needs additional
// client-side payment authentication before it settles. The service
// never completes the confirmation itself; the token goes back to the
// caller.
type PaymentConfirmation struct {
	ClientSecret string `json:"client_secret"`
	PaymentID    string `json:"payment_id,omitempty"`
}

package orgs

import (
	"time"

	"github.com/google/uuid"
)

// OrgStatus tracks the organization lifecycle.
type OrgStatus string

const (
	// OrgStatusActive is a live organization.
	OrgStatusActive OrgStatus = "active"
	// OrgStatusDeleted is a soft-deleted organization. Deleted
	// organizations are never returned by reads.
	OrgStatusDeleted OrgStatus = "deleted"
)

// TaxProfile is the billing tax information attached to an
// organization, passed through to the payment gateway.
type TaxProfile struct {
	Country    string `json:"country"`
	TaxID      string `json:"tax_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// Organization is the tenant record. Storage owns it; the rest of the
// service holds it only for the duration of one request.
type Organization struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	BusinessName string    `json:"business_name,omitempty"`
	BillingEmail string    `json:"billing_email"`

	// Gateway references are nil when the organization never
	// subscribed, or runs self-hosted.
	GatewayCustomerID     *string `json:"-"`
	GatewaySubscriptionID *string `json:"-"`

	Seats        int `json:"seats"`
	MaxStorageGB int `json:"max_storage_gb"`

	// Asymmetric key pair for sharing secrets with members. The
	// private key is encrypted with a key the service never sees.
	PublicKey           string `json:"public_key,omitempty"`
	EncryptedPrivateKey string `json:"-"`

	// APICredential is the opaque machine-access secret. Rotatable.
	APICredential string `json:"-"`

	TaxProfile *TaxProfile `json:"tax_profile,omitempty"`

	// Self-hosted license binding. InstallationID is set the first
	// time a license is applied and pins later license updates.
	InstallationID *uuid.UUID `json:"installation_id,omitempty"`
	LicenseKey     string     `json:"-"`

	Status    OrgStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscribed reports whether the organization has a live payment
// gateway subscription.
func (o *Organization) Subscribed() bool {
	return o.GatewaySubscriptionID != nil && *o.GatewaySubscriptionID != ""
}

// Deleted reports whether the organization is soft-deleted.
func (o *Organization) Deleted() bool {
	return o.Status == OrgStatusDeleted
}

// OrganizationUpdate carries the mutable display fields of an
// organization. Nil fields are left unchanged.
type OrganizationUpdate struct {
	Name         *string `json:"name,omitempty"`
	BusinessName *string `json:"business_name,omitempty"`
	BillingEmail *string `json:"billing_email,omitempty"`
}

// Group is a named member collection inside an organization, keyed for
// directory sync by an external id.
type Group struct {
	ID             int64     `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	ExternalID     string    `json:"external_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

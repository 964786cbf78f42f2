package license

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/harborgate/orgd/pkg/orgs"
)

// Store is the slice of persistence the manager writes license state
// through.
type Store interface {
	SetLicense(ctx context.Context, id uuid.UUID, licenseKey string, installationID uuid.UUID) error
	SetEntitlements(ctx context.Context, id uuid.UUID, seats, maxStorageGB int) error
	SetOrganizationKeys(ctx context.Context, id uuid.UUID, publicKey, encryptedPrivateKey string) error
}

// KeyPair is the member-sharing key pair provisioned on first license
// application of a self-hosted instance.
type KeyPair struct {
	PublicKey           string `json:"public_key"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
}

// Manager issues and consumes license documents. The two sides are
// asymmetric: a hosted deployment generates licenses for export, a
// self-hosted deployment applies and updates them. Mode gating happens
// at dispatch; the manager implements both halves.
type Manager struct {
	signer   Signer
	store    Store
	validity time.Duration
}

// NewManager creates a license manager. Non-positive validity falls
// back to DefaultValidity.
func NewManager(signer Signer, store Store, validity time.Duration) *Manager {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &Manager{
		signer:   signer,
		store:    store,
		validity: validity,
	}
}

// Generate issues a license for export to a self-hosted installation.
// The installation id is freshly generated per license; the
// entitlements are the organization's current ones. An organization
// without an active subscription has nothing to license.
func (m *Manager) Generate(ctx context.Context, org *orgs.Organization) (*License, error) {
	if !org.Subscribed() {
		return nil, orgs.ErrValidation("organization has no active subscription to license")
	}

	now := time.Now()
	claims := &Claims{
		OrganizationID: org.ID,
		InstallationID: uuid.New(),
		Seats:          org.Seats,
		MaxStorageGB:   org.MaxStorageGB,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "orgd",
			Subject:   org.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.validity)),
		},
	}

	token, err := m.signer.Sign(claims)
	if err != nil {
		return nil, &orgs.Error{Code: orgs.CodeGateway, Msg: "failed to sign license", Err: err}
	}
	return &License{Token: token, Claims: *claims}, nil
}

// Apply accepts a license on a self-hosted instance. The signature and
// expiration are validated before anything else; a license bound to a
// different organization is invalid. On the first application the
// member-sharing key pair is provisioned alongside the license.
func (m *Manager) Apply(ctx context.Context, org *orgs.Organization, token string, keys *KeyPair) error {
	claims, err := m.verifyFor(org, token)
	if err != nil {
		return err
	}
	if org.InstallationID != nil && *org.InstallationID != claims.InstallationID {
		return orgs.ErrValidation("license is bound to a different installation")
	}

	if org.PublicKey == "" && keys != nil {
		if err := m.store.SetOrganizationKeys(ctx, org.ID, keys.PublicKey, keys.EncryptedPrivateKey); err != nil {
			return err
		}
	}
	return m.bind(ctx, org, token, claims)
}

// Update supersedes the current license. The incoming license must be
// bound to the installation id already associated with the
// organization; a license minted for another installation cannot be
// transplanted here.
func (m *Manager) Update(ctx context.Context, org *orgs.Organization, token string) error {
	claims, err := m.verifyFor(org, token)
	if err != nil {
		return err
	}
	if org.InstallationID == nil {
		return orgs.ErrValidation("no license applied to this organization yet")
	}
	if *org.InstallationID != claims.InstallationID {
		return orgs.ErrValidation("license is bound to a different installation")
	}
	return m.bind(ctx, org, token, claims)
}

func (m *Manager) verifyFor(org *orgs.Organization, token string) (*Claims, error) {
	claims, err := m.signer.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.OrganizationID != org.ID {
		return nil, orgs.ErrValidation("license is not bound to this organization")
	}
	return claims, nil
}

func (m *Manager) bind(ctx context.Context, org *orgs.Organization, token string, claims *Claims) error {
	if err := m.store.SetLicense(ctx, org.ID, token, claims.InstallationID); err != nil {
		return err
	}
	return m.store.SetEntitlements(ctx, org.ID, claims.Seats, claims.MaxStorageGB)
}

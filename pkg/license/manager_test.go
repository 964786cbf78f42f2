package license

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborgate/orgd/pkg/orgs"
)

func testKeyPEM(t *testing.T) ([]byte, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})
	return privPEM, pubPEM
}

type licenseStore struct {
	licenseKey     string
	installationID uuid.UUID
	seats          int
	maxStorageGB   int
	publicKey      string
	privateKey     string
	err            error
}

func (s *licenseStore) SetLicense(_ context.Context, _ uuid.UUID, licenseKey string, installationID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.licenseKey = licenseKey
	s.installationID = installationID
	return nil
}

func (s *licenseStore) SetEntitlements(_ context.Context, _ uuid.UUID, seats, maxStorageGB int) error {
	if s.err != nil {
		return s.err
	}
	s.seats = seats
	s.maxStorageGB = maxStorageGB
	return nil
}

func (s *licenseStore) SetOrganizationKeys(_ context.Context, _ uuid.UUID, publicKey, encryptedPrivateKey string) error {
	if s.err != nil {
		return s.err
	}
	s.publicKey = publicKey
	s.privateKey = encryptedPrivateKey
	return nil
}

func subscribedOrg() *orgs.Organization {
	subID := "sub_1"
	return &orgs.Organization{
		ID:                    uuid.New(),
		Name:                  "acme",
		Seats:                 25,
		MaxStorageGB:          100,
		GatewaySubscriptionID: &subID,
	}
}

func TestGenerate(t *testing.T) {
	privPEM, _ := testKeyPEM(t)
	signer, err := NewRSASigner(privPEM)
	require.NoError(t, err)
	manager := NewManager(signer, &licenseStore{}, 0)
	ctx := context.Background()

	t.Run("carries entitlements and fresh installation id", func(t *testing.T) {
		org := subscribedOrg()
		lic, err := manager.Generate(ctx, org)
		require.NoError(t, err)

		assert.Equal(t, org.ID, lic.Claims.OrganizationID)
		assert.NotEqual(t, uuid.Nil, lic.Claims.InstallationID)
		assert.Equal(t, 25, lic.Claims.Seats)
		assert.Equal(t, 100, lic.Claims.MaxStorageGB)
		assert.False(t, lic.Claims.Expired(time.Now()))

		// Round-trips through verification.
		claims, err := signer.Verify(lic.Token)
		require.NoError(t, err)
		assert.Equal(t, lic.Claims.InstallationID, claims.InstallationID)

		// Each license gets its own installation id.
		second, err := manager.Generate(ctx, org)
		require.NoError(t, err)
		assert.NotEqual(t, lic.Claims.InstallationID, second.Claims.InstallationID)
	})

	t.Run("requires an active subscription", func(t *testing.T) {
		org := subscribedOrg()
		org.GatewaySubscriptionID = nil

		_, err := manager.Generate(ctx, org)
		require.Error(t, err)
		assert.Equal(t, orgs.CodeValidation, orgs.ErrorCodeOf(err))
	})
}

func TestApply(t *testing.T) {
	privPEM, pubPEM := testKeyPEM(t)
	signer, err := NewRSASigner(privPEM)
	require.NoError(t, err)
	verifier, err := NewRSAVerifier(pubPEM)
	require.NoError(t, err)
	ctx := context.Background()

	issue := func(t *testing.T, org *orgs.Organization) *License {
		t.Helper()
		lic, err := NewManager(signer, &licenseStore{}, 0).Generate(ctx, org)
		require.NoError(t, err)
		return lic
	}

	t.Run("first application provisions keys and binds", func(t *testing.T) {
		org := subscribedOrg()
		lic := issue(t, org)

		store := &licenseStore{}
		manager := NewManager(verifier, store, 0)
		keys := &KeyPair{PublicKey: "pub-pem", EncryptedPrivateKey: "enc-priv"}

		require.NoError(t, manager.Apply(ctx, org, lic.Token, keys))
		assert.Equal(t, lic.Token, store.licenseKey)
		assert.Equal(t, lic.Claims.InstallationID, store.installationID)
		assert.Equal(t, 25, store.seats)
		assert.Equal(t, "pub-pem", store.publicKey)
	})

	t.Run("existing keys are not overwritten", func(t *testing.T) {
		org := subscribedOrg()
		org.PublicKey = "already-set"
		lic := issue(t, org)

		store := &licenseStore{}
		manager := NewManager(verifier, store, 0)

		require.NoError(t, manager.Apply(ctx, org, lic.Token, &KeyPair{PublicKey: "new"}))
		assert.Empty(t, store.publicKey)
	})

	t.Run("rejects a license for another organization", func(t *testing.T) {
		other := subscribedOrg()
		lic := issue(t, other)

		manager := NewManager(verifier, &licenseStore{}, 0)
		err := manager.Apply(ctx, subscribedOrg(), lic.Token, nil)
		require.Error(t, err)
		assert.Equal(t, orgs.CodeValidation, orgs.ErrorCodeOf(err))
	})

	t.Run("rejects a tampered token", func(t *testing.T) {
		org := subscribedOrg()
		lic := issue(t, org)

		manager := NewManager(verifier, &licenseStore{}, 0)
		err := manager.Apply(ctx, org, lic.Token+"x", nil)
		require.Error(t, err)
		assert.Equal(t, orgs.CodeValidation, orgs.ErrorCodeOf(err))
	})

	t.Run("rejects an expired license", func(t *testing.T) {
		org := subscribedOrg()
		claims := &Claims{
			OrganizationID: org.ID,
			InstallationID: uuid.New(),
			Seats:          5,
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(time.Now().Add(-48 * time.Hour)),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-24 * time.Hour)),
			},
		}
		token, err := signer.Sign(claims)
		require.NoError(t, err)

		manager := NewManager(verifier, &licenseStore{}, 0)
		err = manager.Apply(ctx, org, token, nil)
		require.Error(t, err)
		assert.Equal(t, orgs.CodeValidation, orgs.ErrorCodeOf(err))
	})
}

func TestUpdate(t *testing.T) {
	privPEM, pubPEM := testKeyPEM(t)
	signer, err := NewRSASigner(privPEM)
	require.NoError(t, err)
	verifier, err := NewRSAVerifier(pubPEM)
	require.NoError(t, err)
	ctx := context.Background()

	signFor := func(t *testing.T, org *orgs.Organization, installationID uuid.UUID, seats int) string {
		t.Helper()
		token, err := signer.Sign(&Claims{
			OrganizationID: org.ID,
			InstallationID: installationID,
			Seats:          seats,
			MaxStorageGB:   50,
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		require.NoError(t, err)
		return token
	}

	t.Run("supersedes with matching installation id", func(t *testing.T) {
		org := subscribedOrg()
		installationID := uuid.New()
		org.InstallationID = &installationID

		store := &licenseStore{}
		manager := NewManager(verifier, store, 0)

		token := signFor(t, org, installationID, 50)
		require.NoError(t, manager.Update(ctx, org, token))
		assert.Equal(t, 50, store.seats)
		assert.Equal(t, installationID, store.installationID)
	})

	t.Run("rejects a different installation id", func(t *testing.T) {
		org := subscribedOrg()
		installationID := uuid.New()
		org.InstallationID = &installationID

		store := &licenseStore{}
		manager := NewManager(verifier, store, 0)

		token := signFor(t, org, uuid.New(), 50)
		err := manager.Update(ctx, org, token)
		require.Error(t, err)
		assert.Equal(t, orgs.CodeValidation, orgs.ErrorCodeOf(err))
		assert.Empty(t, store.licenseKey)
	})

	t.Run("rejects update before any license is applied", func(t *testing.T) {
		org := subscribedOrg()
		manager := NewManager(verifier, &licenseStore{}, 0)

		token := signFor(t, org, uuid.New(), 50)
		err := manager.Update(ctx, org, token)
		require.Error(t, err)
		assert.Equal(t, orgs.CodeValidation, orgs.ErrorCodeOf(err))
	})
}

func TestVerifyOnlySignerCannotSign(t *testing.T) {
	_, pubPEM := testKeyPEM(t)
	verifier, err := NewRSAVerifier(pubPEM)
	require.NoError(t, err)

	_, err = verifier.Sign(&Claims{})
	require.Error(t, err)
}

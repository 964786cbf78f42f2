package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

const (
	// CredentialPrefix identifies organization API credentials.
	CredentialPrefix = "org_"
	// CredentialLength is the number of random bytes per credential.
	CredentialLength = 32
)

// GenerateCredential creates a new opaque API credential.
// Format: org_<base64url(32 random bytes)>.
func GenerateCredential() (string, error) {
	randomBytes := make([]byte, CredentialLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return CredentialPrefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// CredentialEqual compares two credentials in constant time.
func CredentialEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// CredentialStore is the persistence the credential manager needs.
// Both write operations must be atomic single statements so there is
// never a window where the credential is unset or two are valid.
type CredentialStore interface {
	// InitAPICredential sets the credential only when none is set and
	// returns whichever credential is current afterwards.
	InitAPICredential(ctx context.Context, orgID uuid.UUID, credential string) (string, error)
	// ReplaceAPICredential unconditionally swaps in the new
	// credential, invalidating the previous one in the same statement.
	ReplaceAPICredential(ctx context.Context, orgID uuid.UUID, credential string) error
}

// CredentialManager issues and rotates the long-lived API credential
// for machine access to an organization.
type CredentialManager struct {
	store CredentialStore
}

// NewCredentialManager creates a credential manager.
func NewCredentialManager(store CredentialStore) *CredentialManager {
	return &CredentialManager{store: store}
}

// IssueOrReturn returns the organization's API credential, issuing one
// first if the organization has never had one. Concurrent first issues
// converge on a single credential because the store's init is atomic.
func (m *CredentialManager) IssueOrReturn(ctx context.Context, orgID uuid.UUID) (string, error) {
	credential, err := GenerateCredential()
	if err != nil {
		return "", err
	}
	current, err := m.store.InitAPICredential(ctx, orgID, credential)
	if err != nil {
		return "", err
	}
	return current, nil
}

// Rotate replaces the credential. The previous credential is invalid
// the instant the new one is readable; there is no window where both
// or neither are valid.
func (m *CredentialManager) Rotate(ctx context.Context, orgID uuid.UUID) (string, error) {
	credential, err := GenerateCredential()
	if err != nil {
		return "", err
	}
	if err := m.store.ReplaceAPICredential(ctx, orgID, credential); err != nil {
		return "", err
	}
	return credential, nil
}

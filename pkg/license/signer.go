package license

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/harborgate/orgd/pkg/orgs"
)

// Signer signs and verifies license documents. A hosted deployment
// holds both halves of the key; a self-hosted deployment verifies with
// the public key only and cannot sign.
type Signer interface {
	// Sign produces a signed license document from the claims.
	Sign(claims *Claims) (string, error)
	// Verify checks the signature and expiration and returns the
	// decoded claims. Any failure is an invalid license.
	Verify(token string) (*Claims, error)
}

// RSASigner implements Signer with RS256. privateKey may be nil for a
// verify-only instance.
type RSASigner struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// NewRSASigner creates a signing-capable Signer from a PEM private key.
func NewRSASigner(privateKeyPEM []byte) (*RSASigner, error) {
	if len(privateKeyPEM) == 0 {
		return nil, errors.New("license private key not provided")
	}
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse license private key: %w", err)
	}
	return &RSASigner{privateKey: privateKey, publicKey: &privateKey.PublicKey}, nil
}

// NewRSAVerifier creates a verify-only Signer from a PEM public key.
func NewRSAVerifier(publicKeyPEM []byte) (*RSASigner, error) {
	if len(publicKeyPEM) == 0 {
		return nil, errors.New("license public key not provided")
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse license public key: %w", err)
	}
	return &RSASigner{publicKey: publicKey}, nil
}

// Sign signs the claims with RS256.
func (s *RSASigner) Sign(claims *Claims) (string, error) {
	if s.privateKey == nil {
		return "", errors.New("signer has no private key")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign license: %w", err)
	}
	return signed, nil
}

// Verify checks signature, signing method, and expiration. Every
// failure collapses into the same invalid-license outcome; the reason
// is kept in the wrapped error for operators, not for callers.
func (s *RSASigner) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodRS256 {
			return nil, errors.New("invalid signing method")
		}
		return s.publicKey, nil
	})
	if err != nil {
		return nil, &orgs.Error{Code: orgs.CodeValidation, Msg: "invalid license", Err: err}
	}
	if !parsed.Valid {
		return nil, orgs.ErrValidation("invalid license")
	}
	if claims.Expired(time.Now()) {
		return nil, orgs.ErrValidation("license expired")
	}
	return claims, nil
}

package license

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultValidity is how long a generated license stays valid.
const DefaultValidity = 365 * 24 * time.Hour

// Claims is the signed content of a license document. A license binds
// an organization to an installation with its entitlements; it is
// immutable once issued, a new license supersedes the old one.
type Claims struct {
	OrganizationID uuid.UUID `json:"org_id"`
	InstallationID uuid.UUID `json:"installation_id"`
	Seats          int       `json:"seats"`
	MaxStorageGB   int       `json:"max_storage_gb"`
	Features       []string  `json:"features,omitempty"`
	jwt.RegisteredClaims
}

// License pairs the signed document with its decoded claims.
type License struct {
	Token  string `json:"token"`
	Claims Claims `json:"claims"`
}

// Expired reports whether the license has passed its expiration.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

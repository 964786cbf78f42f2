package orgs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/harborgate/orgd/pkg/observability"
)

// DefaultOrgCacheSize bounds the in-process organization cache.
const DefaultOrgCacheSize = 1024

// DefaultOrgCacheTTL bounds how stale a cached organization row may be
// across instances. Mutations on this instance invalidate immediately;
// mutations elsewhere become visible after at most the TTL.
const DefaultOrgCacheTTL = 30 * time.Second

// CachedStorage wraps a Storage with a read-through, TTL-bounded LRU
// cache on GetOrganization. Every organization mutation on this
// instance invalidates the entry; writes from other instances are
// picked up when the TTL expires. Only display fields may be served
// stale: GetAPICredential always reads through to the store, because
// credential checks must observe a rotation immediately.
type CachedStorage struct {
	Storage
	cache   *expirable.LRU[uuid.UUID, *Organization]
	metrics *observability.Metrics
}

// NewCachedStorage wraps inner with an organization read cache of the
// given size and TTL. Non-positive values fall back to the defaults;
// metrics may be nil.
func NewCachedStorage(inner Storage, size int, ttl time.Duration, metrics *observability.Metrics) *CachedStorage {
	if size <= 0 {
		size = DefaultOrgCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultOrgCacheTTL
	}
	return &CachedStorage{
		Storage: inner,
		cache:   expirable.NewLRU[uuid.UUID, *Organization](size, nil, ttl),
		metrics: metrics,
	}
}

// GetOrganization serves from cache when possible. Not-found results
// are not cached; a freshly created organization must be readable
// immediately.
func (c *CachedStorage) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	if org, ok := c.cache.Get(id); ok {
		if c.metrics != nil {
			c.metrics.CacheHitsTotal.WithLabelValues("organization").Inc()
		}
		return org, nil
	}
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues("organization").Inc()
	}
	org, err := c.Storage.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, org)
	return org, nil
}

// GetAPICredential always reads through to the store. A credential
// rotated by another instance is invalid the instant the rotation
// commits, and authentication may never accept the rotated-out value
// from a cached row.
func (c *CachedStorage) GetAPICredential(ctx context.Context, orgID uuid.UUID) (string, error) {
	return c.Storage.GetAPICredential(ctx, orgID)
}

func (c *CachedStorage) UpdateOrganization(ctx context.Context, id uuid.UUID, updates *OrganizationUpdate) error {
	err := c.Storage.UpdateOrganization(ctx, id, updates)
	c.cache.Remove(id)
	return err
}

func (c *CachedStorage) SoftDeleteOrganization(ctx context.Context, id uuid.UUID) error {
	err := c.Storage.SoftDeleteOrganization(ctx, id)
	c.cache.Remove(id)
	return err
}

func (c *CachedStorage) SetOrganizationKeys(ctx context.Context, id uuid.UUID, publicKey, encryptedPrivateKey string) error {
	err := c.Storage.SetOrganizationKeys(ctx, id, publicKey, encryptedPrivateKey)
	c.cache.Remove(id)
	return err
}

func (c *CachedStorage) SetSubscriptionRefs(ctx context.Context, id uuid.UUID, customerID, subscriptionID string) error {
	err := c.Storage.SetSubscriptionRefs(ctx, id, customerID, subscriptionID)
	c.cache.Remove(id)
	return err
}

func (c *CachedStorage) SetEntitlements(ctx context.Context, id uuid.UUID, seats, maxStorageGB int) error {
	err := c.Storage.SetEntitlements(ctx, id, seats, maxStorageGB)
	c.cache.Remove(id)
	return err
}

func (c *CachedStorage) SetLicense(ctx context.Context, id uuid.UUID, licenseKey string, installationID uuid.UUID) error {
	err := c.Storage.SetLicense(ctx, id, licenseKey, installationID)
	c.cache.Remove(id)
	return err
}

func (c *CachedStorage) SaveTaxProfile(ctx context.Context, id uuid.UUID, profile *TaxProfile) error {
	err := c.Storage.SaveTaxProfile(ctx, id, profile)
	c.cache.Remove(id)
	return err
}

func (c *CachedStorage) InitAPICredential(ctx context.Context, orgID uuid.UUID, credential string) (string, error) {
	current, err := c.Storage.InitAPICredential(ctx, orgID, credential)
	c.cache.Remove(orgID)
	return current, err
}

func (c *CachedStorage) ReplaceAPICredential(ctx context.Context, orgID uuid.UUID, credential string) error {
	err := c.Storage.ReplaceAPICredential(ctx, orgID, credential)
	c.cache.Remove(orgID)
	return err
}

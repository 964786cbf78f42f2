package orgs

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborgate/orgd/pkg/observability"
)

func newCached(store Storage) *CachedStorage {
	return NewCachedStorage(store, 16, time.Minute, nil)
}

func TestCachedStorageGetOrganization(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	cached := newCached(store)
	ctx := context.Background()

	orgID := uuid.New()
	now := time.Now()
	org := &Organization{
		ID: orgID, Name: "acme", BillingEmail: "billing@acme.test",
		Seats: 1, Status: OrgStatusActive, CreatedAt: now, UpdatedAt: now,
	}

	// Only one query is expected; the second read is served from cache.
	mock.ExpectQuery(`SELECT (.+) FROM organizations`).
		WithArgs(orgID).
		WillReturnRows(orgRows(org))

	first, err := cached.GetOrganization(ctx, orgID)
	require.NoError(t, err)
	second, err := cached.GetOrganization(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStorageInvalidatesOnMutation(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	cached := newCached(store)
	ctx := context.Background()

	orgID := uuid.New()
	now := time.Now()
	org := &Organization{
		ID: orgID, Name: "acme", BillingEmail: "billing@acme.test",
		Seats: 1, Status: OrgStatusActive, CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectQuery(`SELECT (.+) FROM organizations`).
		WithArgs(orgID).
		WillReturnRows(orgRows(org))
	_, err := cached.GetOrganization(ctx, orgID)
	require.NoError(t, err)

	// A seat change evicts the cached row.
	mock.ExpectExec(`UPDATE organizations SET seats = \$2`).
		WithArgs(orgID, 5, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, cached.SetEntitlements(ctx, orgID, 5, 10))

	// The next read goes back to the store.
	updated := *org
	updated.Seats = 5
	updated.MaxStorageGB = 10
	mock.ExpectQuery(`SELECT (.+) FROM organizations`).
		WithArgs(orgID).
		WillReturnRows(orgRows(&updated))

	got, err := cached.GetOrganization(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Seats)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStorageDoesNotCacheNotFound(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	cached := newCached(store)
	ctx := context.Background()

	orgID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM organizations`).
		WithArgs(orgID).
		WillReturnError(sql.ErrNoRows)

	_, err := cached.GetOrganization(ctx, orgID)
	require.Error(t, err)

	// The organization shows up afterwards; the cache must not pin the
	// earlier miss.
	org := &Organization{
		ID: orgID, Name: "acme", BillingEmail: "billing@acme.test",
		Seats: 1, Status: OrgStatusActive, CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectQuery(`SELECT (.+) FROM organizations`).
		WithArgs(orgID).
		WillReturnRows(orgRows(org))

	got, err := cached.GetOrganization(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, orgID, got.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStorageCredentialReadBypassesCache(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	cached := newCached(store)
	ctx := context.Background()

	orgID := uuid.New()
	now := time.Now()
	org := &Organization{
		ID: orgID, Name: "acme", BillingEmail: "billing@acme.test",
		APICredential: "org_before_rotation",
		Seats:         1, Status: OrgStatusActive, CreatedAt: now, UpdatedAt: now,
	}

	// Pin the organization row, old credential and all, into the cache.
	mock.ExpectQuery(`SELECT (.+) FROM organizations`).
		WithArgs(orgID).
		WillReturnRows(orgRows(org))
	_, err := cached.GetOrganization(ctx, orgID)
	require.NoError(t, err)

	// Another instance has since rotated the credential. The credential
	// read must hit the database and see the rotation, even though the
	// cached row still carries the old value.
	mock.ExpectQuery(`SELECT api_credential FROM organizations`).
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"api_credential"}).AddRow("org_after_rotation"))

	credential, err := cached.GetAPICredential(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "org_after_rotation", credential)

	// The display read is still the cached (stale) row; no extra query.
	stale, err := cached.GetOrganization(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "org_before_rotation", stale.APICredential)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStorageRecordsHitsAndMisses(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	m := observability.NewMetrics(prometheus.NewRegistry())
	cached := NewCachedStorage(store, 16, time.Minute, m)
	ctx := context.Background()

	orgID := uuid.New()
	now := time.Now()
	org := &Organization{
		ID: orgID, Name: "acme", BillingEmail: "billing@acme.test",
		Seats: 1, Status: OrgStatusActive, CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectQuery(`SELECT (.+) FROM organizations`).
		WithArgs(orgID).
		WillReturnRows(orgRows(org))

	_, err := cached.GetOrganization(ctx, orgID)
	require.NoError(t, err)
	_, err = cached.GetOrganization(ctx, orgID)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("organization")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("organization")))
}

package importer

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborgate/orgd/pkg/auth"
	"github.com/harborgate/orgd/pkg/orgs"
)

// memberState mirrors what the store would hold for one external id.
type memberState struct {
	email   string
	role    auth.Role
	status  auth.MembershipStatus
	revoked bool
}

// fakeImportStore models the upsert semantics of the real store so
// idempotency can be asserted on final state.
type fakeImportStore struct {
	groups  map[string]string // external id -> name
	members map[string]memberState
	calls   int
	failAt  int // fail the Nth call, 0 disables
}

func newFakeImportStore() *fakeImportStore {
	return &fakeImportStore{
		groups:  make(map[string]string),
		members: make(map[string]memberState),
	}
}

func (s *fakeImportStore) tick() error {
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return orgs.ErrStorage("import", fmt.Errorf("connection reset"))
	}
	return nil
}

func (s *fakeImportStore) UpsertGroup(_ context.Context, g *orgs.Group, overwrite bool) error {
	if err := s.tick(); err != nil {
		return err
	}
	if _, exists := s.groups[g.ExternalID]; exists && !overwrite {
		return nil
	}
	s.groups[g.ExternalID] = g.Name
	return nil
}

func (s *fakeImportStore) UpsertMembership(_ context.Context, m *auth.Membership, overwrite bool) error {
	if err := s.tick(); err != nil {
		return err
	}
	next := memberState{email: m.Email, role: m.Role, status: m.Status}
	if existing, exists := s.members[m.ExternalID]; exists {
		if !overwrite {
			return nil
		}
		// Overwrite resurrects a revoked row with the incoming status
		// but never changes an active row's status.
		if !existing.revoked {
			next.status = existing.status
		}
	}
	s.members[m.ExternalID] = next
	return nil
}

func (s *fakeImportStore) SoftDeleteMembershipByExternalID(_ context.Context, _ uuid.UUID, externalID string) error {
	if err := s.tick(); err != nil {
		return err
	}
	if m, exists := s.members[externalID]; exists {
		m.revoked = true
		s.members[externalID] = m
	}
	return nil
}

func testBatch() *Batch {
	return &Batch{
		Groups: []GroupRecord{
			{ExternalID: "grp-1", Name: "engineering"},
			{ExternalID: "grp-2", Name: "sales"},
		},
		Users: []UserRecord{
			{ExternalID: "usr-1", Email: "a@acme.test", Role: auth.RoleAdmin},
			{ExternalID: "usr-2", Email: "b@acme.test"},
			{ExternalID: "usr-3", Email: "c@acme.test", Deleted: true},
		},
		RemovedExternalIDs: []string{"usr-9"},
	}
}

func TestImportMergesBatch(t *testing.T) {
	store := newFakeImportStore()
	p := NewProcessor(store, true)
	org := &orgs.Organization{ID: uuid.New()}

	require.NoError(t, p.Import(context.Background(), org, testBatch()))

	assert.Equal(t, "engineering", store.groups["grp-1"])
	assert.Equal(t, "sales", store.groups["grp-2"])
	assert.Equal(t, auth.RoleAdmin, store.members["usr-1"].role)
	// Records without a role default to member.
	assert.Equal(t, auth.RoleMember, store.members["usr-2"].role)
	// Inline-deleted records never get created.
	_, exists := store.members["usr-3"]
	assert.False(t, exists)
}

func TestImportIsIdempotent(t *testing.T) {
	store := newFakeImportStore()
	p := NewProcessor(store, true)
	org := &orgs.Organization{ID: uuid.New()}
	batch := testBatch()

	require.NoError(t, p.Import(context.Background(), org, batch))
	groupsAfterFirst := map[string]string{}
	for k, v := range store.groups {
		groupsAfterFirst[k] = v
	}
	membersAfterFirst := map[string]memberState{}
	for k, v := range store.members {
		membersAfterFirst[k] = v
	}

	require.NoError(t, p.Import(context.Background(), org, batch))
	assert.Equal(t, groupsAfterFirst, store.groups)
	assert.Equal(t, membersAfterFirst, store.members)
}

func TestImportOverwriteFlag(t *testing.T) {
	ctx := context.Background()
	org := &orgs.Organization{ID: uuid.New()}

	t.Run("false skips existing records", func(t *testing.T) {
		store := newFakeImportStore()
		store.members["usr-1"] = memberState{email: "old@acme.test", role: auth.RoleMember}
		p := NewProcessor(store, true)

		batch := &Batch{Users: []UserRecord{{ExternalID: "usr-1", Email: "new@acme.test", Role: auth.RoleAdmin}}}
		require.NoError(t, p.Import(ctx, org, batch))
		assert.Equal(t, "old@acme.test", store.members["usr-1"].email)
	})

	t.Run("true replaces existing records", func(t *testing.T) {
		store := newFakeImportStore()
		store.members["usr-1"] = memberState{email: "old@acme.test", role: auth.RoleMember}
		p := NewProcessor(store, true)

		batch := &Batch{
			Users:             []UserRecord{{ExternalID: "usr-1", Email: "new@acme.test", Role: auth.RoleAdmin}},
			OverwriteExisting: true,
		}
		require.NoError(t, p.Import(ctx, org, batch))
		assert.Equal(t, "new@acme.test", store.members["usr-1"].email)
		assert.Equal(t, auth.RoleAdmin, store.members["usr-1"].role)
	})

	t.Run("confirmed member keeps confirmed status", func(t *testing.T) {
		store := newFakeImportStore()
		store.members["usr-1"] = memberState{email: "old@acme.test", role: auth.RoleMember, status: auth.StatusConfirmed}
		p := NewProcessor(store, true)

		// A directory re-sync replays everyone it knows about. The
		// member already accepted their invite; the overwrite must not
		// bounce them back to invited.
		batch := &Batch{
			Users:             []UserRecord{{ExternalID: "usr-1", Email: "new@acme.test", Role: auth.RoleAdmin}},
			OverwriteExisting: true,
		}
		require.NoError(t, p.Import(ctx, org, batch))
		assert.Equal(t, auth.StatusConfirmed, store.members["usr-1"].status)
		assert.Equal(t, "new@acme.test", store.members["usr-1"].email)
		assert.Equal(t, auth.RoleAdmin, store.members["usr-1"].role)
	})

	t.Run("revoked member resurrects as invited", func(t *testing.T) {
		store := newFakeImportStore()
		store.members["usr-1"] = memberState{email: "old@acme.test", role: auth.RoleMember, status: auth.StatusConfirmed, revoked: true}
		p := NewProcessor(store, true)

		batch := &Batch{
			Users:             []UserRecord{{ExternalID: "usr-1", Email: "old@acme.test", Role: auth.RoleMember}},
			OverwriteExisting: true,
		}
		require.NoError(t, p.Import(ctx, org, batch))
		assert.Equal(t, auth.StatusInvited, store.members["usr-1"].status)
	})
}

func TestImportRemovalsAreSoftDeletes(t *testing.T) {
	store := newFakeImportStore()
	store.members["usr-1"] = memberState{email: "a@acme.test", role: auth.RoleMember}
	p := NewProcessor(store, true)
	org := &orgs.Organization{ID: uuid.New()}

	batch := &Batch{RemovedExternalIDs: []string{"usr-1", "usr-never-existed"}}
	require.NoError(t, p.Import(context.Background(), org, batch))

	// Revoked, not gone.
	m, exists := store.members["usr-1"]
	require.True(t, exists)
	assert.True(t, m.revoked)
}

func oversizedBatch() *Batch {
	users := make([]UserRecord, MaxBatchRecords+1)
	for i := range users {
		users[i] = UserRecord{ExternalID: fmt.Sprintf("usr-%d", i), Email: fmt.Sprintf("u%d@acme.test", i)}
	}
	return &Batch{Users: users}
}

func TestImportSizeCap(t *testing.T) {
	ctx := context.Background()
	org := &orgs.Organization{ID: uuid.New()}

	t.Run("hosted rejects oversized batch before side effects", func(t *testing.T) {
		store := newFakeImportStore()
		p := NewProcessor(store, true)

		err := p.Import(ctx, org, oversizedBatch())
		require.Error(t, err)
		assert.Equal(t, orgs.CodeValidation, orgs.ErrorCodeOf(err))
		assert.Zero(t, store.calls)
	})

	t.Run("large-import flag bypasses the cap", func(t *testing.T) {
		store := newFakeImportStore()
		p := NewProcessor(store, true)

		batch := oversizedBatch()
		batch.LargeImport = true
		require.NoError(t, p.Import(ctx, org, batch))
		assert.Len(t, store.members, MaxBatchRecords+1)
	})

	t.Run("self-hosted has no cap", func(t *testing.T) {
		store := newFakeImportStore()
		p := NewProcessor(store, false)

		require.NoError(t, p.Import(ctx, org, oversizedBatch()))
		assert.Len(t, store.members, MaxBatchRecords+1)
	})

	t.Run("deleted records do not count toward the cap", func(t *testing.T) {
		store := newFakeImportStore()
		p := NewProcessor(store, true)

		batch := oversizedBatch()
		for i := range batch.Users {
			if i >= MaxBatchRecords {
				batch.Users[i].Deleted = true
			}
		}
		require.NoError(t, p.Import(ctx, org, batch))
	})
}

func TestImportValidation(t *testing.T) {
	ctx := context.Background()
	org := &orgs.Organization{ID: uuid.New()}
	store := newFakeImportStore()
	p := NewProcessor(store, true)

	tests := []struct {
		name  string
		batch *Batch
	}{
		{"group without external id", &Batch{Groups: []GroupRecord{{Name: "eng"}}}},
		{"user without external id", &Batch{Users: []UserRecord{{Email: "a@acme.test"}}}},
		{"user with unknown role", &Batch{Users: []UserRecord{{ExternalID: "u1", Role: auth.Role("root")}}}},
		{"empty removal id", &Batch{RemovedExternalIDs: []string{""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Import(ctx, org, tt.batch)
			require.Error(t, err)
			assert.Equal(t, orgs.CodeValidation, orgs.ErrorCodeOf(err))
		})
	}
	assert.Zero(t, store.calls)
}

func TestImportPartialFailureIsReplayable(t *testing.T) {
	store := newFakeImportStore()
	store.failAt = 3 // fail mid-batch
	p := NewProcessor(store, true)
	org := &orgs.Organization{ID: uuid.New()}
	batch := testBatch()

	err := p.Import(context.Background(), org, batch)
	require.Error(t, err)
	assert.Equal(t, orgs.CodeStorageUnavailable, orgs.ErrorCodeOf(err))

	// Replaying the identical batch converges on the full state.
	store.failAt = 0
	require.NoError(t, p.Import(context.Background(), org, batch))
	assert.Equal(t, "engineering", store.groups["grp-1"])
	assert.Equal(t, "sales", store.groups["grp-2"])
	assert.Contains(t, store.members, "usr-1")
	assert.Contains(t, store.members, "usr-2")
}

package governance_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/d9705996/commune/internal/audit"
	"github.com/d9705996/commune/internal/governance"
	"github.com/d9705996/commune/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCommunity_CreatorBecomesOwner(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	c := f.community(t, alice, "  Book Club ", true)

	assert.Equal(t, "book-club", c.UniqueURL)
	assert.Equal(t, "Book Club", c.Name)
	assert.True(t, c.IsActive)
	assert.True(t, c.IsPrivate)
	assert.Equal(t, model.RoleOwner, f.role(t, c.ID, alice))
	assert.Equal(t, []string{audit.ActionCommunityCreated}, f.auditActions(t, c.ID))
}

func TestCreateCommunity_SuffixesTakenURL(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	first := f.community(t, alice, "Book Club", false)
	second := f.community(t, alice, "book club!", false)
	third := f.community(t, alice, "BOOK CLUB", false)

	assert.Equal(t, "book-club", first.UniqueURL)
	assert.Equal(t, "book-club-1", second.UniqueURL)
	assert.Equal(t, "book-club-2", third.UniqueURL)
}

func TestCreateCommunity_ConcurrentSameNameGetDistinctURLs(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	const n = 8
	urls := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := f.svc.CreateCommunity(context.Background(), alice, governance.CreateCommunityInput{Name: "Chess"})
			errs[i] = err
			if err == nil {
				urls[i] = c.UniqueURL
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range urls {
		require.NoError(t, errs[i])
		assert.False(t, seen[urls[i]], "duplicate url %q", urls[i])
		seen[urls[i]] = true
	}
	assert.True(t, seen["chess"])
	assert.True(t, seen["chess-7"])
}

func TestCreateCommunity_EmptyNameUsesFallback(t *testing.T) {
	f := newFixture(t)
	c := f.community(t, f.user(t, "alice"), "???", false)
	assert.Equal(t, "community", c.UniqueURL)
}

func TestGetCommunityByURL(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	c := f.community(t, alice, "Gardening", false)
	ctx := context.Background()

	got, err := f.svc.GetCommunityByURL(ctx, "gardening")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = f.svc.GetCommunityByURL(ctx, "nope")
	assertKind(t, err, governance.KindNotFound, governance.ReasonCommunityNotFound)
	assert.True(t, errors.Is(err, governance.ErrNotFound))
}

func TestDeactivate_FreesURLAndBlocksReactivation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	ctx := context.Background()

	old := f.community(t, alice, "Hiking", false)
	require.NoError(t, f.svc.DeactivateCommunity(ctx, old.ID, alice))

	_, err := f.svc.GetCommunityByURL(ctx, "hiking")
	assertKind(t, err, governance.KindNotFound, "")

	// The URL is reusable once the first community is inactive.
	replacement := f.community(t, bob, "Hiking", false)
	assert.Equal(t, "hiking", replacement.UniqueURL)

	err = f.svc.ReactivateCommunity(ctx, old.ID, alice)
	assertKind(t, err, governance.KindConflict, governance.ReasonURLExists)

	require.NoError(t, f.svc.DeactivateCommunity(ctx, replacement.ID, bob))
	require.NoError(t, f.svc.ReactivateCommunity(ctx, old.ID, alice))

	got, err := f.svc.GetCommunityByURL(ctx, "hiking")
	require.NoError(t, err)
	assert.Equal(t, old.ID, got.ID)
}

func TestDeactivate_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	carol := f.user(t, "carol")
	c := f.community(t, alice, "Chess", false)
	f.setRole(t, c.ID, carol, model.RoleOrganizer)
	ctx := context.Background()

	err := f.svc.DeactivateCommunity(ctx, c.ID, carol)
	assertKind(t, err, governance.KindForbidden, governance.ReasonInsufficientRole)

	require.NoError(t, f.svc.DeactivateCommunity(ctx, c.ID, alice))
	err = f.svc.DeactivateCommunity(ctx, c.ID, alice)
	assertKind(t, err, governance.KindInvalidState, governance.ReasonCommunityInactive)
}

func TestUpdateCommunity(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	dave := f.user(t, "dave")
	c := f.community(t, alice, "Chess", false)
	f.setRole(t, c.ID, dave, model.RoleMember)
	ctx := context.Background()

	name := "Chess & Go"
	private := true
	_, err := f.svc.UpdateCommunity(ctx, c.ID, dave, governance.UpdateCommunityInput{Name: &name})
	assertKind(t, err, governance.KindForbidden, "")

	got, err := f.svc.UpdateCommunity(ctx, c.ID, alice, governance.UpdateCommunityInput{Name: &name, IsPrivate: &private})
	require.NoError(t, err)
	assert.Equal(t, "Chess & Go", got.Name)
	assert.True(t, got.IsPrivate)
	assert.Equal(t, "chess", got.UniqueURL, "renaming keeps the URL")
	assert.Contains(t, f.auditActions(t, c.ID), audit.ActionCommunityUpdated)
}

func TestDeleteCommunity_RemovesDependents(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	dave := f.user(t, "dave")
	c := f.community(t, alice, "Chess", false)
	f.setRole(t, c.ID, dave, model.RoleMember)
	_, err := f.svc.Restrict(context.Background(), alice, governance.RestrictInput{
		CommunityID: c.ID, UserID: dave, Type: model.RestrictionMute,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteCommunity(context.Background(), c.ID, alice))

	for _, m := range []any{&model.Membership{}, &model.Restriction{}} {
		var n int64
		require.NoError(t, f.db.Model(m).Where("community_id = ?", c.ID).Count(&n).Error)
		assert.Zero(t, n, "%T", m)
	}
	_, err = f.svc.GetCommunity(context.Background(), c.ID)
	assertKind(t, err, governance.KindNotFound, "")
	assert.Contains(t, f.auditActions(t, c.ID), audit.ActionCommunityDeleted)
}

func TestListCommunities_HidesPrivateFromOutsiders(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	dave := f.user(t, "dave")
	f.community(t, alice, "Open", false)
	f.community(t, alice, "Secret", true)
	ctx := context.Background()

	names := func(cs []model.Community) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.Name)
		}
		return out
	}

	got, err := f.svc.ListCommunities(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"Open", "Secret"}, names(got))

	got, err = f.svc.ListCommunities(ctx, dave)
	require.NoError(t, err)
	assert.Equal(t, []string{"Open"}, names(got))
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t, withSink(failingSink{}))
	alice := f.user(t, "alice")

	c, err := f.svc.CreateCommunity(context.Background(), alice, governance.CreateCommunityInput{Name: "Robust"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, f.role(t, c.ID, alice))
	assert.Empty(t, f.auditActions(t, c.ID))
}

package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/internal/testutil"
	appErr "github.com/foundernet/engine/pkg/errors"
	"github.com/foundernet/engine/pkg/retry"
)

func newProfiles(store *testutil.MemFounders) ProfileService {
	return NewProfileService(store, retry.Default())
}

func TestFetchAfterProvisionConvergesWithinBudget(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	store.ReadLag = 600 * time.Millisecond
	a := newIdentity(store, "a@example.com")

	_, err := NewProvisioner(store).Provision(ctx, a, a.ID.String(), "a@example.com", models.FounderFields{FullName: ptr("Test")})
	require.NoError(t, err)

	start := time.Now()
	l, err := newProfiles(store).FetchProfile(ctx, a, a.ID, FetchOptions{MaxAttempts: 3, Backoff: 500 * time.Millisecond})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.True(t, l.Found)
	assert.Equal(t, "Test", l.Founder.FullName)
	assert.Greater(t, l.Attempts, 1)
	assert.Less(t, elapsed, 1500*time.Millisecond)
}

func TestFetchAbsentIsValueNotError(t *testing.T) {
	store := testutil.NewMemFounders()
	a := newIdentity(store, "a@example.com")

	l, err := newProfiles(store).FetchProfile(context.Background(), a, a.ID, FetchOptions{MaxAttempts: 2, Backoff: time.Millisecond})
	require.NoError(t, err)
	assert.False(t, l.Found)
	assert.False(t, l.RetryExhausted)
	assert.Equal(t, 2, l.Attempts)
	assert.Nil(t, l.Founder)
}

func TestFetchTransientFailuresSetRetryExhausted(t *testing.T) {
	store := testutil.NewMemFounders()
	a := newIdentity(store, "a@example.com")
	store.Seed(models.Founder{ID: a.ID, Email: "a@example.com"})
	store.FailReads = 10

	l, err := newProfiles(store).FetchProfile(context.Background(), a, a.ID, FetchOptions{MaxAttempts: 3, Backoff: time.Millisecond})
	require.NoError(t, err)
	assert.False(t, l.Found)
	assert.True(t, l.RetryExhausted)
	assert.Equal(t, 3, l.Attempts)
}

func TestFetchRecoversFromTransientFailure(t *testing.T) {
	store := testutil.NewMemFounders()
	a := newIdentity(store, "a@example.com")
	store.Seed(models.Founder{ID: a.ID, Email: "a@example.com"})
	store.FailReads = 1

	l, err := newProfiles(store).FetchProfile(context.Background(), a, a.ID, FetchOptions{Backoff: time.Millisecond})
	require.NoError(t, err)
	assert.True(t, l.Found)
	assert.Equal(t, 2, l.Attempts)
}

func TestFetchDeniedIsNotRetried(t *testing.T) {
	store := testutil.NewMemFounders()

	_, err := newProfiles(store).FetchProfile(context.Background(), policy.Anonymous(), uuid.New(), FetchOptions{Backoff: time.Millisecond})
	require.Error(t, err)
	assert.True(t, appErr.IsCode(err, appErr.CodePolicyDenied))
	assert.Zero(t, store.ReadCalls)
}

func TestFetchHonoursCancellation(t *testing.T) {
	store := testutil.NewMemFounders()
	a := newIdentity(store, "a@example.com")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newProfiles(store).FetchProfile(ctx, a, a.ID, FetchOptions{MaxAttempts: 10, Backoff: 200 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, appErr.IsCode(err, appErr.CodeDeadline))
}

func TestPolicyIsolationAndDiscoverabilityToggle(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	profiles := newProfiles(store)
	prov := NewProvisioner(store)
	a := newIdentity(store, "a@example.com")
	b := newIdentity(store, "b@example.com")
	once := FetchOptions{MaxAttempts: 1, Backoff: time.Millisecond}

	_, err := prov.Provision(ctx, b, b.ID.String(), "b@example.com", models.FounderFields{
		FullName:     ptr("Private B"),
		Discoverable: ptr(false),
	})
	require.NoError(t, err)

	l, err := profiles.FetchProfile(ctx, a, b.ID, once)
	require.NoError(t, err)
	assert.False(t, l.Found, "private profile leaked to another identity")

	_, err = profiles.Update(ctx, b, b.ID, models.FounderFields{Discoverable: ptr(true)})
	require.NoError(t, err)
	l, err = profiles.FetchProfile(ctx, a, b.ID, once)
	require.NoError(t, err)
	require.True(t, l.Found)
	assert.Equal(t, "Private B", l.Founder.FullName)

	_, err = profiles.Update(ctx, b, b.ID, models.FounderFields{Discoverable: ptr(false)})
	require.NoError(t, err)
	l, err = profiles.FetchProfile(ctx, a, b.ID, once)
	require.NoError(t, err)
	assert.False(t, l.Found)

	l, err = profiles.FetchProfile(ctx, b, b.ID, once)
	require.NoError(t, err)
	assert.True(t, l.Found, "owner must always see own profile")
}

func TestOnlyOwnerMayChangeDiscoverability(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	profiles := newProfiles(store)
	a := newIdentity(store, "a@example.com")
	b := newIdentity(store, "b@example.com")
	store.Seed(models.Founder{ID: b.ID, Email: "b@example.com", ProfileVisible: true})

	_, err := profiles.Update(ctx, a, b.ID, models.FounderFields{Discoverable: ptr(false)})
	require.Error(t, err)
	assert.True(t, appErr.IsCode(err, appErr.CodePolicyDenied))

	row, _ := store.Raw(b.ID)
	assert.True(t, row.ProfileVisible)
}

func TestAnonymousIsDeniedEverything(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	profiles := newProfiles(store)
	id := uuid.New()
	store.Seed(models.Founder{ID: id, Email: "b@example.com", ProfileVisible: true})
	anon := policy.Anonymous()

	_, err := profiles.FetchProfile(ctx, anon, id, FetchOptions{})
	assert.True(t, appErr.IsCode(err, appErr.CodePolicyDenied), "select")

	rows, err := profiles.ListDiscoverable(ctx, anon, nil)
	assert.True(t, appErr.IsCode(err, appErr.CodePolicyDenied), "list")
	assert.Nil(t, rows)

	_, err = NewProvisioner(store).Provision(ctx, anon, id.String(), "b@example.com", models.FounderFields{})
	assert.True(t, appErr.IsCode(err, appErr.CodePolicyDenied), "insert")

	_, err = profiles.Update(ctx, anon, id, models.FounderFields{FullName: ptr("x")})
	assert.True(t, appErr.IsCode(err, appErr.CodePolicyDenied), "update")

	err = profiles.Delete(ctx, anon, id)
	assert.True(t, appErr.IsCode(err, appErr.CodePolicyDenied), "delete")

	row, ok := store.Raw(id)
	require.True(t, ok)
	assert.Empty(t, row.FullName)
	assert.Zero(t, store.ReadCalls)
}

func TestCompleteOnboardingNeverResets(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	profiles := newProfiles(store)
	a := newIdentity(store, "a@example.com")
	store.Seed(models.Founder{ID: a.ID, Email: "a@example.com", OnboardingStep: 2})

	f, err := profiles.CompleteOnboarding(ctx, a, a.ID)
	require.NoError(t, err)
	assert.True(t, f.OnboardingCompleted)

	f, err = profiles.Update(ctx, a, a.ID, models.FounderFields{OnboardingStep: ptr(0), Bio: ptr("hello")})
	require.NoError(t, err)
	assert.True(t, f.OnboardingCompleted)
	assert.Equal(t, 2, f.OnboardingStep)
}

func TestUpdateRequiresFields(t *testing.T) {
	store := testutil.NewMemFounders()
	a := newIdentity(store, "a@example.com")

	_, err := newProfiles(store).Update(context.Background(), a, a.ID, models.FounderFields{})
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}

func TestUpdateDeniesAnonymousBeforeValidating(t *testing.T) {
	store := testutil.NewMemFounders()
	id := uuid.New()

	for name, fields := range map[string]models.FounderFields{
		"empty":   {},
		"invalid": {OnboardingStep: ptr(-5)},
	} {
		_, err := newProfiles(store).Update(context.Background(), policy.Anonymous(), id, fields)
		assert.True(t, appErr.IsCode(err, appErr.CodePolicyDenied), "%s: got %v", name, err)
	}
}

func TestListDiscoverableReportsEffectivePage(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	a := newIdentity(store, "a@example.com")
	profiles := newProfiles(store)

	for _, tc := range []struct {
		in         ProfileFilters
		page, size int
	}{
		{ProfileFilters{}, 1, DefaultPageSize},
		{ProfileFilters{Page: -3, PageSize: -1}, 1, DefaultPageSize},
		{ProfileFilters{Page: 2, PageSize: 50}, 2, 50},
		{ProfileFilters{Page: 1, PageSize: 500}, 1, MaxPageSize},
	} {
		f := tc.in
		_, err := profiles.ListDiscoverable(ctx, a, &f)
		require.NoError(t, err)
		assert.Equal(t, tc.page, f.Page, "%+v", tc.in)
		assert.Equal(t, tc.size, f.PageSize, "%+v", tc.in)
	}
}

func TestListDiscoverableHidesPrivateRows(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	a := newIdentity(store, "a@example.com")
	now := time.Now()
	for i, visible := range []bool{true, false, true} {
		store.Seed(models.Founder{
			ID:             uuid.New(),
			Email:          uuid.NewString() + "@example.com",
			ProfileVisible: visible,
			CreatedAt:      now.Add(time.Duration(i) * time.Second),
		})
	}

	rows, err := newProfiles(store).ListDiscoverable(ctx, a, &ProfileFilters{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	for _, r := range rows {
		assert.True(t, r.ProfileVisible)
	}

	rows, err = newProfiles(store).ListDiscoverable(ctx, a, &ProfileFilters{Page: 2, PageSize: 1})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDeleteOwnProfile(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	profiles := newProfiles(store)
	a := newIdentity(store, "a@example.com")
	b := newIdentity(store, "b@example.com")
	store.Seed(models.Founder{ID: a.ID, Email: "a@example.com", ProfileVisible: true})

	err := profiles.Delete(ctx, b, a.ID)
	assert.True(t, appErr.IsCode(err, appErr.CodePolicyDenied))

	require.NoError(t, profiles.Delete(ctx, a, a.ID))
	assert.Zero(t, store.Count())

	err = profiles.Delete(ctx, a, a.ID)
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

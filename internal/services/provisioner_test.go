package services

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/internal/testutil"
	appErr "github.com/foundernet/engine/pkg/errors"
	"github.com/foundernet/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

func ptr[T any](v T) *T { return &v }

func newIdentity(store *testutil.MemFounders, email string) policy.Actor {
	id := uuid.New()
	store.RegisterIdentity(id, email)
	return policy.As(id)
}

func TestProvisionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	p := NewProvisioner(store)
	a := newIdentity(store, "a@example.com")
	fields := models.FounderFields{FullName: ptr("Test"), Tags: []string{"ai", "fintech"}}

	first, err := p.Provision(ctx, a, a.ID.String(), "a@example.com", fields)
	require.NoError(t, err)
	second, err := p.Provision(ctx, a, a.ID.String(), "a@example.com", fields)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Count())
	assert.Equal(t, a.ID, second.ID)
	assert.Equal(t, first.FullName, second.FullName)
	assert.Equal(t, first.Tags, second.Tags)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.False(t, second.OnboardingCompleted)
	assert.True(t, second.ProfileVisible)
}

func TestProvisionMergesOnlyProvidedFields(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	p := NewProvisioner(store)
	a := newIdentity(store, "a@example.com")

	_, err := p.Provision(ctx, a, a.ID.String(), "a@example.com", models.FounderFields{
		FullName:    ptr("Ada"),
		CompanyName: ptr("Engines Ltd"),
	})
	require.NoError(t, err)

	f, err := p.Provision(ctx, a, a.ID.String(), "A@Example.com", models.FounderFields{Role: ptr("CEO")})
	require.NoError(t, err)
	assert.Equal(t, "Ada", f.FullName)
	assert.Equal(t, "Engines Ltd", f.CompanyName)
	assert.Equal(t, "CEO", f.Role)
}

func TestProvisionValidationFailsBeforeStore(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	p := NewProvisioner(store)
	a := newIdentity(store, "a@example.com")

	tests := []struct {
		name   string
		id     string
		email  string
		fields models.FounderFields
	}{
		{"malformed id", "u1", "a@example.com", models.FounderFields{}},
		{"missing email", a.ID.String(), "   ", models.FounderFields{}},
		{"bad email", a.ID.String(), "not-an-email", models.FounderFields{}},
		{"oversized name", a.ID.String(), "a@example.com", models.FounderFields{FullName: ptr(string(make([]byte, 200)))}},
		{"bad link", a.ID.String(), "a@example.com", models.FounderFields{Links: map[string]string{"linkedin": "not a url"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Provision(ctx, a, tt.id, tt.email, tt.fields)
			require.Error(t, err)
			assert.True(t, appErr.IsCode(err, appErr.CodeInvalid), err)
		})
	}
	assert.Zero(t, store.ProvisionCalls)
}

func TestProvisionForSomeoneElseIsDenied(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	p := NewProvisioner(store)
	a := newIdentity(store, "a@example.com")
	b := newIdentity(store, "b@example.com")

	_, err := p.Provision(ctx, a, b.ID.String(), "b@example.com", models.FounderFields{})
	require.Error(t, err)
	assert.True(t, appErr.IsCode(err, appErr.CodePolicyDenied))
	assert.Zero(t, store.Count())
	assert.Zero(t, store.ProvisionCalls)
}

func TestProvisionAnonymousIsDenied(t *testing.T) {
	store := testutil.NewMemFounders()
	p := NewProvisioner(store)

	_, err := p.Provision(context.Background(), policy.Anonymous(), uuid.NewString(), "a@example.com", models.FounderFields{})
	assert.True(t, appErr.IsCode(err, appErr.CodePolicyDenied))
	assert.Zero(t, store.Count())
}

func TestProvisionAdoptsOrphanByEmail(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	p := NewProvisioner(store)

	orphanID := uuid.New()
	store.Seed(models.Founder{ID: orphanID, Email: "a@example.com", FullName: "From earlier signup", ProfileVisible: true})
	a := newIdentity(store, "a@example.com")

	f, err := p.Provision(ctx, a, a.ID.String(), "a@example.com", models.FounderFields{CompanyName: ptr("New Co")})
	require.NoError(t, err)

	assert.Equal(t, 1, store.Count())
	assert.Equal(t, a.ID, f.ID)
	assert.Equal(t, "From earlier signup", f.FullName)
	assert.Equal(t, "New Co", f.CompanyName)
	_, stillThere := store.Raw(orphanID)
	assert.False(t, stillThere)
}

func TestProvisionEmailHeldByLiveIdentityConflicts(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	p := NewProvisioner(store)

	// b's profile carries an email that a now signs up with.
	b := newIdentity(store, "b@example.com")
	store.Seed(models.Founder{ID: b.ID, Email: "shared@example.com", ProfileVisible: true})
	a := newIdentity(store, "shared@example.com")

	_, err := p.Provision(ctx, a, a.ID.String(), "shared@example.com", models.FounderFields{})
	require.Error(t, err)
	assert.True(t, appErr.IsCode(err, appErr.CodeConflict))
	assert.Equal(t, 1, store.Count())
}

func TestProvisionRejectsEmailOfAnotherIdentity(t *testing.T) {
	store := testutil.NewMemFounders()
	p := NewProvisioner(store)
	a := newIdentity(store, "a@example.com")

	_, err := p.Provision(context.Background(), a, a.ID.String(), "b@example.com", models.FounderFields{})
	assert.True(t, appErr.IsCode(err, appErr.CodePolicyDenied))
}

func TestProvisionOnboardingIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	p := NewProvisioner(store)
	a := newIdentity(store, "a@example.com")

	f, err := p.Provision(ctx, a, a.ID.String(), "a@example.com", models.FounderFields{OnboardingStep: ptr(2)})
	require.NoError(t, err)
	assert.False(t, f.OnboardingCompleted)

	f, err = p.Provision(ctx, a, a.ID.String(), "a@example.com", models.FounderFields{OnboardingStep: ptr(5), CompleteOnboarding: true})
	require.NoError(t, err)
	assert.True(t, f.OnboardingCompleted)

	f, err = p.Provision(ctx, a, a.ID.String(), "a@example.com", models.FounderFields{OnboardingStep: ptr(1)})
	require.NoError(t, err)
	assert.True(t, f.OnboardingCompleted)
	assert.Equal(t, 5, f.OnboardingStep)
}

func TestProvisionConcurrentCallsConverge(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemFounders()
	p := NewProvisioner(store)
	a := newIdentity(store, "a@example.com")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Provision(ctx, a, a.ID.String(), "a@example.com", models.FounderFields{FullName: ptr("Test")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.Count())
}

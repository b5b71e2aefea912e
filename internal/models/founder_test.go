package models

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestFounderFieldsNormalize(t *testing.T) {
	f := FounderFields{
		FullName: ptr("  Ada Lovelace "),
		Tags:     []string{" fintech", "AI", "", "ai", "climate "},
	}
	f.Normalize()

	assert.Equal(t, "Ada Lovelace", *f.FullName)
	assert.Equal(t, []string{"fintech", "AI", "climate"}, f.Tags)
}

func TestFounderFieldsColumnsOnlyProvided(t *testing.T) {
	f := FounderFields{
		CompanyName:        ptr("Analytical Engines"),
		Discoverable:       ptr(false),
		Tags:               []string{},
		CompleteOnboarding: true,
	}
	cols := f.Columns()

	assert.Equal(t, map[string]any{
		"company_name":        "Analytical Engines",
		DiscoverabilityColumn: false,
		"tags":                pq.StringArray{},
	}, cols)
	assert.NotContains(t, cols, "onboarding_completed")
	assert.False(t, f.Empty())
	assert.True(t, FounderFields{}.Empty())
}

func TestFounderFieldsApplyIsMonotonic(t *testing.T) {
	p := &Founder{FullName: "Old", OnboardingStep: 3, OnboardingCompleted: true, ProfileVisible: true}

	FounderFields{FullName: ptr("New"), OnboardingStep: ptr(1), Discoverable: ptr(false)}.Apply(p)

	assert.Equal(t, "New", p.FullName)
	assert.Equal(t, 3, p.OnboardingStep)
	assert.True(t, p.OnboardingCompleted)
	assert.False(t, p.ProfileVisible)
}

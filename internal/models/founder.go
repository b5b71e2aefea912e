package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

const (
	// FoundersTable is the profile table guarded by row-level security.
	FoundersTable = "founders"
	// DiscoverabilityColumn is the one column that controls visibility to
	// other identities.
	DiscoverabilityColumn = "profile_visible"
)

// LegacyDiscoverabilityColumns were used for the same purpose in older
// schemas and must not coexist with DiscoverabilityColumn.
var LegacyDiscoverabilityColumns = []string{"is_visible"}

// Founder is the per-identity profile row. ID is the owning identity's id;
// there is no separate foreign key column.
type Founder struct {
	ID                  uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Email               string            `gorm:"not null" json:"email"`
	FullName            string            `gorm:"not null;default:''" json:"full_name"`
	CompanyName         string            `gorm:"not null;default:''" json:"company_name"`
	Role                string            `gorm:"not null;default:''" json:"role"`
	Industry            string            `gorm:"not null;default:''" json:"industry"`
	Bio                 string            `gorm:"type:text;not null;default:''" json:"bio"`
	Tags                pq.StringArray    `gorm:"type:text[];not null;default:'{}'" json:"tags"`
	Location            string            `gorm:"not null;default:''" json:"location"`
	Links               datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"links"`
	AvatarURL           string            `gorm:"not null;default:''" json:"avatar_url"`
	ProfileVisible      bool              `gorm:"column:profile_visible;not null;default:true" json:"profile_visible"`
	OnboardingCompleted bool              `gorm:"not null;default:false" json:"onboarding_completed"`
	OnboardingStep      int               `gorm:"not null;default:0" json:"onboarding_step"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

func (Founder) TableName() string { return FoundersTable }

// FounderFields is the set of optional profile attributes accepted by
// provisioning and profile edits. A nil pointer (or nil slice/map) means
// "leave the stored value alone".
type FounderFields struct {
	FullName       *string           `json:"full_name,omitempty" validate:"omitempty,max=120"`
	CompanyName    *string           `json:"company_name,omitempty" validate:"omitempty,max=120"`
	Role           *string           `json:"role,omitempty" validate:"omitempty,max=80"`
	Industry       *string           `json:"industry,omitempty" validate:"omitempty,max=80"`
	Location       *string           `json:"location,omitempty" validate:"omitempty,max=120"`
	Bio            *string           `json:"bio,omitempty" validate:"omitempty,max=2000"`
	Tags           []string          `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=40"`
	Links          map[string]string `json:"links,omitempty" validate:"omitempty,max=10,dive,keys,min=1,max=32,endkeys,url"`
	AvatarURL      *string           `json:"avatar_url,omitempty" validate:"omitempty,max=512"`
	Discoverable   *bool             `json:"discoverable,omitempty"`
	OnboardingStep *int              `json:"onboarding_step,omitempty" validate:"omitempty,gte=0,lte=100"`
	// CompleteOnboarding can only move the flag to true.
	CompleteOnboarding bool `json:"complete_onboarding,omitempty"`
}

// Normalize trims text values and drops blank or repeated tags, keeping
// the first occurrence order.
func (f *FounderFields) Normalize() {
	for _, p := range []*string{f.FullName, f.CompanyName, f.Role, f.Industry, f.Location, f.Bio, f.AvatarURL} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	if f.Tags != nil {
		seen := make(map[string]struct{}, len(f.Tags))
		out := make([]string, 0, len(f.Tags))
		for _, t := range f.Tags {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			k := strings.ToLower(t)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, t)
		}
		f.Tags = out
	}
}

// Columns returns the provided plain attributes keyed by column name. The
// onboarding columns are excluded; they only move forward and are merged
// with expressions by the store.
func (f FounderFields) Columns() map[string]any {
	cols := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			cols[col] = *v
		}
	}
	set("full_name", f.FullName)
	set("company_name", f.CompanyName)
	set("role", f.Role)
	set("industry", f.Industry)
	set("location", f.Location)
	set("bio", f.Bio)
	set("avatar_url", f.AvatarURL)
	if f.Tags != nil {
		cols["tags"] = pq.StringArray(f.Tags)
	}
	if f.Links != nil {
		links := datatypes.JSONMap{}
		for k, v := range f.Links {
			links[k] = v
		}
		cols["links"] = links
	}
	if f.Discoverable != nil {
		cols[DiscoverabilityColumn] = *f.Discoverable
	}
	return cols
}

// Empty reports whether applying f would change nothing.
func (f FounderFields) Empty() bool {
	return len(f.Columns()) == 0 && f.OnboardingStep == nil && !f.CompleteOnboarding
}

// Apply merges f into p using the same rules as the store: provided values
// overwrite, onboarding progress never moves backwards.
func (f FounderFields) Apply(p *Founder) {
	if f.FullName != nil {
		p.FullName = *f.FullName
	}
	if f.CompanyName != nil {
		p.CompanyName = *f.CompanyName
	}
	if f.Role != nil {
		p.Role = *f.Role
	}
	if f.Industry != nil {
		p.Industry = *f.Industry
	}
	if f.Location != nil {
		p.Location = *f.Location
	}
	if f.Bio != nil {
		p.Bio = *f.Bio
	}
	if f.AvatarURL != nil {
		p.AvatarURL = *f.AvatarURL
	}
	if f.Tags != nil {
		p.Tags = append(pq.StringArray{}, f.Tags...)
	}
	if f.Links != nil {
		p.Links = datatypes.JSONMap{}
		for k, v := range f.Links {
			p.Links[k] = v
		}
	}
	if f.Discoverable != nil {
		p.ProfileVisible = *f.Discoverable
	}
	if f.OnboardingStep != nil && *f.OnboardingStep > p.OnboardingStep {
		p.OnboardingStep = *f.OnboardingStep
	}
	if f.CompleteOnboarding {
		p.OnboardingCompleted = true
	}
}

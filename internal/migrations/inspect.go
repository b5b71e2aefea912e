package migrations

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
)

// Report is the observed state of the founders schema.
type Report struct {
	Columns       []string `json:"columns"`
	RLSEnabled    bool     `json:"rls_enabled"`
	RLSForced     bool     `json:"rls_forced"`
	Policies      []string `json:"policies"`
	EmailIndex    bool     `json:"email_index"`
	AdoptFunction bool     `json:"adopt_function"`
	// BucketError is set when the avatar bucket could not be verified.
	BucketError string `json:"bucket_error,omitempty"`
}

// Inspect reads the catalog. It changes nothing.
func Inspect(ctx context.Context, db *gorm.DB) (*Report, error) {
	db = db.WithContext(ctx)
	r := &Report{}

	if err := db.Raw(`SELECT column_name FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = ? ORDER BY ordinal_position`, models.FoundersTable).
		Scan(&r.Columns).Error; err != nil {
		return nil, fmt.Errorf("inspect columns: %w", err)
	}
	if len(r.Columns) == 0 {
		return r, nil
	}

	var rls struct {
		Enabled bool
		Forced  bool
	}
	if err := db.Raw(`SELECT relrowsecurity AS enabled, relforcerowsecurity AS forced
		FROM pg_class WHERE oid = ?::regclass`, policy.Founders.Qualified()).
		Scan(&rls).Error; err != nil {
		return nil, fmt.Errorf("inspect rls: %w", err)
	}
	r.RLSEnabled, r.RLSForced = rls.Enabled, rls.Forced

	if err := db.Raw(`SELECT policyname FROM pg_policies
		WHERE schemaname = ? AND tablename = ? ORDER BY policyname`, policy.Founders.Schema, policy.Founders.Table).
		Scan(&r.Policies).Error; err != nil {
		return nil, fmt.Errorf("inspect policies: %w", err)
	}

	var n int64
	if err := db.Raw(`SELECT count(*) FROM pg_indexes WHERE schemaname = 'public' AND indexname = ?`, FounderEmailIndex).
		Scan(&n).Error; err != nil {
		return nil, fmt.Errorf("inspect indexes: %w", err)
	}
	r.EmailIndex = n > 0

	if err := db.Raw(`SELECT count(*) FROM pg_proc p JOIN pg_namespace ns ON ns.oid = p.pronamespace
		WHERE ns.nspname || '.' || p.proname = ? AND p.prosecdef`, AdoptOrphanFunction).
		Scan(&n).Error; err != nil {
		return nil, fmt.Errorf("inspect functions: %w", err)
	}
	r.AdoptFunction = n > 0
	return r, nil
}

// Drift lists every difference between r and the declared schema. An empty
// result means the schema is as migrated.
func (r *Report) Drift() []string {
	if len(r.Columns) == 0 {
		return []string{"table " + policy.Founders.Qualified() + " does not exist"}
	}
	var out []string
	if !slices.Contains(r.Columns, models.DiscoverabilityColumn) {
		out = append(out, "missing discoverability column "+models.DiscoverabilityColumn)
	}
	for _, c := range models.LegacyDiscoverabilityColumns {
		if slices.Contains(r.Columns, c) {
			out = append(out, "legacy discoverability column "+c+" still present")
		}
	}
	if slices.Contains(r.Columns, "user_id") {
		out = append(out, "legacy user_id column still present")
	}
	if !r.RLSEnabled {
		out = append(out, "row level security is disabled")
	}
	if r.RLSForced {
		out = append(out, "row level security is forced; orphan adoption will fail")
	}
	want := policy.Founders.Names()
	for _, p := range want {
		if !slices.Contains(r.Policies, p) {
			out = append(out, "missing policy "+p)
		}
	}
	for _, p := range r.Policies {
		if !slices.Contains(want, p) {
			out = append(out, "unexpected policy "+p)
		}
	}
	if !r.EmailIndex {
		out = append(out, "missing unique index "+FounderEmailIndex)
	}
	if !r.AdoptFunction {
		out = append(out, "missing security definer function "+AdoptOrphanFunction)
	}
	if r.BucketError != "" {
		out = append(out, "avatar bucket: "+r.BucketError)
	}
	return out
}

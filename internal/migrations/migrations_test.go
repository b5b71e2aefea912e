package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundernet/engine/internal/policy"
)

func cleanReport() *Report {
	return &Report{
		Columns:       []string{"id", "email", "profile_visible"},
		RLSEnabled:    true,
		Policies:      policy.Founders.Names(),
		EmailIndex:    true,
		AdoptFunction: true,
	}
}

func TestDriftClean(t *testing.T) {
	assert.Empty(t, cleanReport().Drift())
}

func TestDriftMissingTable(t *testing.T) {
	d := (&Report{}).Drift()
	require.Len(t, d, 1)
	assert.Contains(t, d[0], "does not exist")
}

func TestDriftFindsLegacyColumnsAndPolicies(t *testing.T) {
	r := cleanReport()
	r.Columns = append(r.Columns, "is_visible", "user_id")
	r.Policies = []string{"founders_select_own_or_discoverable", "Public profiles are viewable by everyone"}
	r.RLSForced = true
	r.BucketError = "avatars: no such directory"

	d := strings.Join(r.Drift(), "\n")
	assert.Contains(t, d, "legacy discoverability column is_visible")
	assert.Contains(t, d, "legacy user_id column")
	assert.Contains(t, d, "missing policy founders_insert_self")
	assert.Contains(t, d, "unexpected policy Public profiles are viewable by everyone")
	assert.Contains(t, d, "forced")
	assert.Contains(t, d, "avatar bucket")
}

func TestStatementsSplitsPolicyScript(t *testing.T) {
	stmts := Statements(policy.Founders.SQL())

	// enable, revoke, grant, then drop+create per rule
	require.Len(t, stmts, 3+2*len(policy.Founders.Rules))
	assert.Equal(t, "ALTER TABLE public.founders ENABLE ROW LEVEL SECURITY", stmts[0])
	for _, s := range stmts {
		assert.False(t, strings.HasSuffix(s, ";"), s)
	}
}

func TestStepsAreNamedAndUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range Steps() {
		require.NotEmpty(t, s.Name)
		require.NotNil(t, s.Run)
		assert.False(t, seen[s.Name], s.Name)
		seen[s.Name] = true
	}
	assert.True(t, seen["founders_policies"])
}

func TestAdoptFunctionRaisesClaimedState(t *testing.T) {
	assert.Contains(t, adoptOrphanSQL, "SECURITY DEFINER")
	assert.Contains(t, adoptOrphanSQL, "ERRCODE = '"+SQLStateEmailClaimed+"'")
}

package policy

import "github.com/foundernet/engine/internal/models"

const ownerSQL = "id = auth.uid()"

func owner(a Actor, r Row) bool { return a.ID == r.ID }

// Founders guards public.founders. Reads are open to the owner and, for
// discoverable rows, to every authenticated identity; writes are owner only.
var Founders = RuleSet{
	Schema: "public",
	Table:  models.FoundersTable,
	Rules: []Rule{
		{
			Name:      "founders_select_own_or_discoverable",
			Operation: Select,
			Using:     ownerSQL + " OR " + models.DiscoverabilityColumn,
			Allow:     func(a Actor, r Row) bool { return owner(a, r) || r.Discoverable },
		},
		{
			Name:      "founders_insert_self",
			Operation: Insert,
			WithCheck: ownerSQL,
			Allow:     owner,
		},
		{
			Name:      "founders_update_own",
			Operation: Update,
			Using:     ownerSQL,
			WithCheck: ownerSQL,
			Allow:     owner,
		},
		{
			Name:      "founders_delete_own",
			Operation: Delete,
			Using:     ownerSQL,
			Allow:     owner,
		},
	},
}

// Package policy declares the row-level access rules for founder profiles.
//
// The same RuleSet value is rendered to Postgres RLS policies by the
// migrations and evaluated in process before any statement reaches the
// store, so a denial always surfaces as a policy_denied error and never as
// an empty result.
package policy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/foundernet/engine/internal/models"
	appErr "github.com/foundernet/engine/pkg/errors"
)

// Operation is a statement kind a rule applies to.
type Operation string

const (
	Select Operation = "SELECT"
	Insert Operation = "INSERT"
	Update Operation = "UPDATE"
	Delete Operation = "DELETE"
)

// Database roles a request runs under.
const (
	RoleAnon          = "anon"
	RoleAuthenticated = "authenticated"
)

// Actor is the identity on whose behalf a statement runs. The zero value
// is the anonymous actor.
type Actor struct {
	ID uuid.UUID
}

// Anonymous returns the unauthenticated actor.
func Anonymous() Actor { return Actor{} }

// As returns the actor for an authenticated identity.
func As(id uuid.UUID) Actor { return Actor{ID: id} }

func (a Actor) Authenticated() bool { return a.ID != uuid.Nil }

// Role is the database role the actor's statements run under.
func (a Actor) Role() string {
	if a.Authenticated() {
		return RoleAuthenticated
	}
	return RoleAnon
}

func (a Actor) String() string {
	if !a.Authenticated() {
		return RoleAnon
	}
	return a.ID.String()
}

// Row is the part of a founder row the rules look at.
type Row struct {
	ID           uuid.UUID
	Discoverable bool
}

// RowOf projects a founder onto the rule inputs.
func RowOf(f *models.Founder) Row {
	return Row{ID: f.ID, Discoverable: f.ProfileVisible}
}

// Rule is one policy: SQL predicates for the store and the equivalent Go
// predicate for in-process checks.
type Rule struct {
	Name      string
	Operation Operation
	Using     string
	WithCheck string
	Allow     func(Actor, Row) bool
}

// RuleSet is every policy on one table. Operations without a rule are denied.
type RuleSet struct {
	Schema string
	Table  string
	Rules  []Rule
}

func (rs RuleSet) rule(op Operation) (Rule, bool) {
	for _, r := range rs.Rules {
		if r.Operation == op {
			return r, true
		}
	}
	return Rule{}, false
}

// Qualified returns schema.table.
func (rs RuleSet) Qualified() string { return rs.Schema + "." + rs.Table }

// Gate is the statement-level check: it fails when actor may not run op on
// the table at all, whatever the rows. Reads whose rows are not known yet
// pass Gate and are then filtered row by row.
func (rs RuleSet) Gate(actor Actor, op Operation) error {
	_, err := rs.gate(actor, op)
	return err
}

func (rs RuleSet) gate(actor Actor, op Operation) (Rule, error) {
	if !actor.Authenticated() {
		return Rule{}, appErr.PolicyDenied(fmt.Sprintf("anonymous %s on %s is not allowed", op, rs.Table)).
			WithMeta("operation", string(op))
	}
	r, ok := rs.rule(op)
	if !ok {
		return Rule{}, appErr.PolicyDenied(fmt.Sprintf("no policy permits %s on %s", op, rs.Table)).
			WithMeta("operation", string(op))
	}
	return r, nil
}

// Authorize returns a policy_denied error unless actor may perform op on row.
func (rs RuleSet) Authorize(actor Actor, op Operation, row Row) error {
	r, err := rs.gate(actor, op)
	if err != nil {
		return err
	}
	if !r.Allow(actor, row) {
		return appErr.PolicyDenied(fmt.Sprintf("%s on %s %s denied by %s", op, rs.Table, row.ID, r.Name)).
			WithMeta("operation", string(op)).
			WithMeta("policy", r.Name)
	}
	return nil
}

// Permits is Authorize as a boolean, for filtering reads.
func (rs RuleSet) Permits(actor Actor, op Operation, row Row) bool {
	return rs.Authorize(actor, op, row) == nil
}

// Names lists the policy names in declaration order.
func (rs RuleSet) Names() []string {
	out := make([]string, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		out = append(out, r.Name)
	}
	return out
}

// SQL renders the rule set as idempotent Postgres statements: RLS enabled,
// no grants for anon, one policy per rule for authenticated. RLS is not
// forced; SECURITY DEFINER functions owned by the table owner must see
// every row.
func (rs RuleSet) SQL() string {
	t := rs.Qualified()
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ENABLE ROW LEVEL SECURITY;\n", t)
	fmt.Fprintf(&b, "REVOKE ALL ON %s FROM PUBLIC, %s;\n", t, RoleAnon)

	ops := make([]string, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		ops = append(ops, string(r.Operation))
	}
	fmt.Fprintf(&b, "GRANT %s ON %s TO %s;\n", strings.Join(ops, ", "), t, RoleAuthenticated)

	for _, r := range rs.Rules {
		b.WriteString("\n")
		fmt.Fprintf(&b, "DROP POLICY IF EXISTS %s ON %s;\n", r.Name, t)
		fmt.Fprintf(&b, "CREATE POLICY %s ON %s\n  FOR %s TO %s", r.Name, t, r.Operation, RoleAuthenticated)
		if r.Using != "" {
			fmt.Fprintf(&b, "\n  USING (%s)", r.Using)
		}
		if r.WithCheck != "" {
			fmt.Fprintf(&b, "\n  WITH CHECK (%s)", r.WithCheck)
		}
		b.WriteString(";\n")
	}
	return b.String()
}

// Package migrations owns the schema: the auth schema and roles, the
// identity and founder tables, legacy column reconciliation, the RLS
// policies rendered from policy.Founders, and the orphan adoption function.
package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/pkg/logger"
)

// Step is one named, idempotent migration.
type Step struct {
	Name string
	Run  func(*gorm.DB) error
}

// Steps returns every migration in order. Each step is safe to re-run.
func Steps() []Step {
	return []Step{
		{"extensions", enableExtensions},
		{"auth_schema", createAuthSchema},
		{"roles", createRoles},
		{"auth_functions", createAuthFunctions},
		{"models", autoMigrate},
		{"legacy_discoverability", foldLegacyDiscoverability},
		{"legacy_user_id", dropLegacyUserID},
		{"email_indexes", createEmailIndexes},
		{"founders_policies", installPolicies},
		{"adopt_orphan_function", installAdoptFunction},
	}
}

// registerModels returns all models that need migration.
func registerModels() []any {
	return []any{
		&models.Identity{},
		&models.Founder{},
	}
}

// Run executes all migrations in one transaction.
func Run(ctx context.Context, db *gorm.DB) error {
	log := logger.Named("migrations")
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, s := range Steps() {
			if err := s.Run(tx); err != nil {
				return fmt.Errorf("migration %s: %w", s.Name, err)
			}
			log.Info("migration applied", zap.String("step", s.Name))
		}
		return nil
	})
}

func execAll(db *gorm.DB, stmts ...string) error {
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return err
		}
	}
	return nil
}

func enableExtensions(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error
}

func createAuthSchema(db *gorm.DB) error {
	return db.Exec(`CREATE SCHEMA IF NOT EXISTS auth`).Error
}

// createRoles creates the request roles and makes the migrating user a
// member of both so the application can SET ROLE into them.
func createRoles(db *gorm.DB) error {
	return execAll(db,
		createRolesSQL,
		`GRANT anon, authenticated TO CURRENT_USER`,
	)
}

func createAuthFunctions(db *gorm.DB) error {
	return execAll(db,
		authUIDSQL,
		authRoleSQL,
		`GRANT USAGE ON SCHEMA auth TO anon, authenticated`,
		`GRANT USAGE ON SCHEMA public TO anon, authenticated`,
		`GRANT EXECUTE ON FUNCTION auth.uid(), auth.role() TO anon, authenticated`,
	)
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(registerModels()...)
}

// foldLegacyDiscoverability merges older visibility columns into
// profile_visible, keeping a row visible only if every column agreed, and
// drops them.
func foldLegacyDiscoverability(db *gorm.DB) error {
	m := db.Migrator()
	for _, col := range models.LegacyDiscoverabilityColumns {
		if !m.HasColumn(&models.Founder{}, col) {
			continue
		}
		q := fmt.Sprintf(`UPDATE %s SET %s = %s AND COALESCE(%s, false)`,
			models.FoundersTable, models.DiscoverabilityColumn, models.DiscoverabilityColumn, col)
		if err := db.Exec(q).Error; err != nil {
			return err
		}
		if err := m.DropColumn(&models.Founder{}, col); err != nil {
			return err
		}
	}
	return nil
}

// dropLegacyUserID re-keys rows that carried the identity in a separate
// user_id column, then drops the column.
func dropLegacyUserID(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasColumn(&models.Founder{}, "user_id") {
		return nil
	}
	q := fmt.Sprintf(`UPDATE %s SET id = user_id WHERE user_id IS NOT NULL AND id <> user_id`, models.FoundersTable)
	if err := db.Exec(q).Error; err != nil {
		return err
	}
	return m.DropColumn(&models.Founder{}, "user_id")
}

func createEmailIndexes(db *gorm.DB) error {
	return execAll(db,
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON public.%s (lower(email))`, FounderEmailIndex, models.FoundersTable),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON auth.users (lower(email))`, IdentityEmailIndex),
	)
}

func installPolicies(db *gorm.DB) error {
	return execAll(db, Statements(policy.Founders.SQL())...)
}

func installAdoptFunction(db *gorm.DB) error {
	return execAll(db,
		adoptOrphanSQL,
		`REVOKE ALL ON FUNCTION `+AdoptOrphanFunction+`(text) FROM PUBLIC`,
		`GRANT EXECUTE ON FUNCTION `+AdoptOrphanFunction+`(text) TO authenticated`,
	)
}

// Statements splits a script of simple statements, one per ";\n". It does
// not understand dollar quoting.
func Statements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";\n") {
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, ";")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

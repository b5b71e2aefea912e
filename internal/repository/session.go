package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/foundernet/engine/internal/policy"
)

// scoped runs fn in a transaction that carries actor's role and JWT claims,
// so the founders RLS policies evaluate auth.uid() as actor.
func scoped(ctx context.Context, db *gorm.DB, actor policy.Actor, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := ""
		if actor.Authenticated() {
			sub = actor.ID.String()
		}
		if err := tx.Exec(
			"SELECT set_config('request.jwt.claim.sub', ?, true), set_config('request.jwt.claim.role', ?, true)",
			sub, actor.Role(),
		).Error; err != nil {
			return err
		}
		// Role comes from a closed set, never from input.
		if err := tx.Exec("SET LOCAL ROLE " + actor.Role()).Error; err != nil {
			return err
		}
		return fn(tx)
	})
}

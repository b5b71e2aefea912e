package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/foundernet/engine/internal/migrations"
	"github.com/foundernet/engine/internal/models"
	appErr "github.com/foundernet/engine/pkg/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want appErr.Code
	}{
		{"rls violation", &pgconn.PgError{Code: "42501"}, appErr.CodePolicyDenied},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: migrations.FounderEmailIndex}, appErr.CodeConflict},
		{"email claimed", &pgconn.PgError{Code: migrations.SQLStateEmailClaimed}, appErr.CodeConflict},
		{"bad uuid text", &pgconn.PgError{Code: "22P02"}, appErr.CodeInvalid},
		{"not null", &pgconn.PgError{Code: "23502"}, appErr.CodeInvalid},
		{"connection failure", &pgconn.PgError{Code: "08006"}, appErr.CodeUnavailable},
		{"serialization", &pgconn.PgError{Code: "40001"}, appErr.CodeUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, appErr.CodeUnavailable},
		{"other sqlstate", &pgconn.PgError{Code: "42P01"}, appErr.CodeInternal},
		{"deadline", context.DeadlineExceeded, appErr.CodeUnavailable},
		{"bad conn", fmt.Errorf("exec: %w", driver.ErrBadConn), appErr.CodeUnavailable},
		{"plain", errors.New("boom"), appErr.CodeInternal},
		{"already classified", appErr.New(appErr.CodeNotFound, "gone"), appErr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, appErr.CodeOf(classify(tt.err, "op")))
		})
	}
	assert.NoError(t, classify(nil, "op"))
}

func TestIsEmailRace(t *testing.T) {
	race := classify(&pgconn.PgError{Code: "23505", ConstraintName: migrations.FounderEmailIndex}, "op")
	claimed := classify(&pgconn.PgError{Code: migrations.SQLStateEmailClaimed}, "op")
	pkey := classify(&pgconn.PgError{Code: "23505", ConstraintName: "founders_pkey"}, "op")

	assert.True(t, IsEmailRace(race))
	assert.False(t, IsEmailRace(claimed))
	assert.False(t, IsEmailRace(pkey))
	assert.False(t, IsEmailRace(errors.New("x")))
}

func TestUpsertAssignmentsKeepOnboardingMonotonic(t *testing.T) {
	name := "Ada"
	set := upsertAssignments(models.FounderFields{FullName: &name})

	cols := make([]string, 0, len(set))
	for _, a := range set {
		cols = append(cols, a.Column.Name)
	}
	assert.Equal(t, []string{"full_name", "updated_at", "onboarding_step", "onboarding_completed"}, cols)
	assert.NotContains(t, cols, "email")
	assert.NotContains(t, cols, "created_at")
}

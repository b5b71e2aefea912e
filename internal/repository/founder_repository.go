package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/foundernet/engine/internal/migrations"
	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
	appErr "github.com/foundernet/engine/pkg/errors"
)

// ProvisionInput is one provisioning request after validation.
type ProvisionInput struct {
	ID     uuid.UUID
	Email  string
	Fields models.FounderFields
}

// ProvisionResult is the row after the upsert. AdoptedFrom is set when an
// orphaned row was re-keyed to ID.
type ProvisionResult struct {
	Founder     *models.Founder
	AdoptedFrom *uuid.UUID
}

// FounderRepository is the policy-gated store for founder profiles. Every
// call runs as actor; rows the actor may not see are absent, statements the
// actor may not run fail with policy_denied.
type FounderRepository interface {
	// Provision adopts an orphan with the same email if there is one, then
	// upserts on id and reads the row back, all in one transaction.
	Provision(ctx context.Context, actor policy.Actor, in ProvisionInput) (*ProvisionResult, error)
	// FindByID returns nil, nil when no visible row has that id.
	FindByID(ctx context.Context, actor policy.Actor, id uuid.UUID) (*models.Founder, error)
	ListDiscoverable(ctx context.Context, actor policy.Actor, limit, offset int) ([]models.Founder, error)
	Update(ctx context.Context, actor policy.Actor, id uuid.UUID, fields models.FounderFields) (*models.Founder, error)
	Delete(ctx context.Context, actor policy.Actor, id uuid.UUID) error
}

type founderRepository struct {
	db     *gorm.DB
	reader *gorm.DB
}

// NewFounderRepository writes through db and reads through reader, which
// may lag behind db. A nil reader reads from db.
func NewFounderRepository(db, reader *gorm.DB) FounderRepository {
	if reader == nil {
		reader = db
	}
	return &founderRepository{db: db, reader: reader}
}

func (r *founderRepository) Provision(ctx context.Context, actor policy.Actor, in ProvisionInput) (*ProvisionResult, error) {
	res := &ProvisionResult{}
	err := scoped(ctx, r.db, actor, func(tx *gorm.DB) error {
		var prev sql.NullString
		if err := tx.Raw("SELECT "+migrations.AdoptOrphanFunction+"(?)", in.Email).Row().Scan(&prev); err != nil {
			return err
		}
		if prev.Valid {
			id, err := uuid.Parse(prev.String)
			if err != nil {
				return fmt.Errorf("adopt returned %q: %w", prev.String, err)
			}
			res.AdoptedFrom = &id
		}

		now := time.Now().UTC()
		values := in.Fields.Columns()
		values["id"] = in.ID
		values["email"] = in.Email
		values["onboarding_step"] = 0
		if in.Fields.OnboardingStep != nil {
			values["onboarding_step"] = *in.Fields.OnboardingStep
		}
		values["onboarding_completed"] = in.Fields.CompleteOnboarding
		values["created_at"] = now
		values["updated_at"] = now

		err := tx.Model(&models.Founder{}).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: upsertAssignments(in.Fields),
			}).
			Create(values).Error
		if err != nil {
			return err
		}

		var f models.Founder
		if err := tx.First(&f, "id = ?", in.ID).Error; err != nil {
			return err
		}
		res.Founder = &f
		return nil
	})
	if err != nil {
		return nil, classify(err, "provision founder failed")
	}
	return res, nil
}

// upsertAssignments overwrites the provided columns and merges the
// onboarding columns so they never move backwards.
func upsertAssignments(fields models.FounderFields) clause.Set {
	cols := make([]string, 0, 8)
	for c := range fields.Columns() {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	set := clause.AssignmentColumns(append(cols, "updated_at"))
	t := models.FoundersTable
	set = append(set,
		clause.Assignment{
			Column: clause.Column{Name: "onboarding_step"},
			Value:  gorm.Expr("GREATEST(" + t + ".onboarding_step, excluded.onboarding_step)"),
		},
		clause.Assignment{
			Column: clause.Column{Name: "onboarding_completed"},
			Value:  gorm.Expr(t + ".onboarding_completed OR excluded.onboarding_completed"),
		},
	)
	return set
}

func (r *founderRepository) FindByID(ctx context.Context, actor policy.Actor, id uuid.UUID) (*models.Founder, error) {
	var rows []models.Founder
	err := scoped(ctx, r.reader, actor, func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).Limit(1).Find(&rows).Error
	})
	if err != nil {
		return nil, classify(err, "find founder failed")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *founderRepository) ListDiscoverable(ctx context.Context, actor policy.Actor, limit, offset int) ([]models.Founder, error) {
	var rows []models.Founder
	err := scoped(ctx, r.reader, actor, func(tx *gorm.DB) error {
		return tx.Where(models.DiscoverabilityColumn+" = ?", true).
			Order("created_at DESC, id").
			Limit(limit).
			Offset(offset).
			Find(&rows).Error
	})
	if err != nil {
		return nil, classify(err, "list founders failed")
	}
	return rows, nil
}

func (r *founderRepository) Update(ctx context.Context, actor policy.Actor, id uuid.UUID, fields models.FounderFields) (*models.Founder, error) {
	updates := fields.Columns()
	if fields.OnboardingStep != nil {
		updates["onboarding_step"] = gorm.Expr("GREATEST(onboarding_step, ?)", *fields.OnboardingStep)
	}
	if fields.CompleteOnboarding {
		updates["onboarding_completed"] = true
	}
	updates["updated_at"] = time.Now().UTC()

	var f models.Founder
	err := scoped(ctx, r.db, actor, func(tx *gorm.DB) error {
		res := tx.Model(&models.Founder{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return appErr.New(appErr.CodeNotFound, fmt.Sprintf("founder %s not found", id))
		}
		return tx.First(&f, "id = ?", id).Error
	})
	if err != nil {
		return nil, classify(err, "update founder failed")
	}
	return &f, nil
}

func (r *founderRepository) Delete(ctx context.Context, actor policy.Actor, id uuid.UUID) error {
	err := scoped(ctx, r.db, actor, func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Founder{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return appErr.New(appErr.CodeNotFound, fmt.Sprintf("founder %s not found", id))
		}
		return nil
	})
	return classify(err, "delete founder failed")
}

package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/internal/repository"
	"github.com/foundernet/engine/internal/validators"
	"github.com/foundernet/engine/pkg/logger"
)

// Provisioner makes sure an identity has exactly one founder profile.
type Provisioner interface {
	// Provision creates or merges the profile keyed on identityID. It is
	// safe to repeat: retries, double submits and queued replays all land
	// in the same upsert.
	Provision(ctx context.Context, actor policy.Actor, identityID, email string, fields models.FounderFields) (*models.Founder, error)
}

type provisioner struct {
	founders repository.FounderRepository
}

func NewProvisioner(founders repository.FounderRepository) Provisioner {
	return &provisioner{founders: founders}
}

var _ Provisioner = (*provisioner)(nil)

func (p *provisioner) Provision(ctx context.Context, actor policy.Actor, identityID, email string, fields models.FounderFields) (*models.Founder, error) {
	id, err := validators.IdentityID(identityID)
	if err != nil {
		return nil, err
	}
	email, err = validators.Email(email)
	if err != nil {
		return nil, err
	}
	fields.Normalize()
	if err := validators.Struct(fields); err != nil {
		return nil, err
	}
	if err := policy.Founders.Authorize(actor, policy.Insert, policy.Row{ID: id}); err != nil {
		return nil, err
	}

	in := repository.ProvisionInput{ID: id, Email: email, Fields: fields}
	res, err := p.founders.Provision(ctx, actor, in)
	if repository.IsEmailRace(err) {
		// Another row took the email between adoption and insert; the second
		// pass adopts it or reports who holds it.
		logger.L().Warn("founder email race, retrying provision", zap.String("founder_id", id.String()))
		res, err = p.founders.Provision(ctx, actor, in)
	}
	if err != nil {
		logger.L().Warn("provision founder failed",
			zap.String("founder_id", id.String()),
			zap.Error(err),
		)
		return nil, err
	}

	fieldsLog := []zap.Field{
		zap.String("founder_id", id.String()),
		zap.Bool("onboarding_completed", res.Founder.OnboardingCompleted),
	}
	if res.AdoptedFrom != nil {
		fieldsLog = append(fieldsLog, zap.String("adopted_from", res.AdoptedFrom.String()))
	}
	logger.L().Info("founder provisioned", fieldsLog...)
	return res.Founder, nil
}

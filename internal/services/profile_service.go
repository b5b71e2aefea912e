package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/internal/repository"
	"github.com/foundernet/engine/internal/storage"
	"github.com/foundernet/engine/internal/validators"
	appErr "github.com/foundernet/engine/pkg/errors"
	"github.com/foundernet/engine/pkg/logger"
	"github.com/foundernet/engine/pkg/retry"
)

// ProfileService reads and edits founder profiles on behalf of an actor.
type ProfileService interface {
	// FetchProfile reads a profile, retrying while it is absent or the
	// store is unreachable. Absence is a Lookup value, never an error.
	FetchProfile(ctx context.Context, actor policy.Actor, id uuid.UUID, opts FetchOptions) (Lookup, error)
	ListDiscoverable(ctx context.Context, actor policy.Actor, filters *ProfileFilters) ([]models.Founder, error)
	Update(ctx context.Context, actor policy.Actor, id uuid.UUID, fields models.FounderFields) (*models.Founder, error)
	CompleteOnboarding(ctx context.Context, actor policy.Actor, id uuid.UUID) (*models.Founder, error)
	Delete(ctx context.Context, actor policy.Actor, id uuid.UUID) error
}

// FetchOptions bounds FetchProfile. Zero values take the service defaults.
type FetchOptions struct {
	MaxAttempts int
	Backoff     time.Duration
	// Multiplier above 1 grows the backoff exponentially.
	Multiplier float64
}

// Lookup is the outcome of FetchProfile.
type Lookup struct {
	Founder *models.Founder `json:"founder,omitempty"`
	Found   bool            `json:"found"`
	// RetryExhausted is set when the last attempts failed transiently, so
	// the profile may exist but could not be read.
	RetryExhausted bool `json:"retry_exhausted"`
	Attempts       int  `json:"attempts"`
}

// ProfileFilters selects a page of discoverable profiles. ListDiscoverable
// rewrites it to the page and size it actually used.
type ProfileFilters struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func (f *ProfileFilters) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.PageSize <= 0:
		f.PageSize = DefaultPageSize
	case f.PageSize > MaxPageSize:
		f.PageSize = MaxPageSize
	}
}

type profileService struct {
	founders repository.FounderRepository
	defaults retry.Policy
	avatars  storage.Bucket
}

type ProfileOption func(*profileService)

// WithAvatarBucket makes Delete remove the founder's avatar objects too.
func WithAvatarBucket(b storage.Bucket) ProfileOption {
	return func(s *profileService) { s.avatars = b }
}

// NewProfileService reads through founders; defaults apply to fetches that
// leave FetchOptions unset.
func NewProfileService(founders repository.FounderRepository, defaults retry.Policy, opts ...ProfileOption) ProfileService {
	s := &profileService{founders: founders, defaults: defaults.Normalize()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ProfileService = (*profileService)(nil)

var errAbsent = errors.New("founder not visible yet")

func (s *profileService) policyFor(opts FetchOptions) retry.Policy {
	p := s.defaults
	if opts.MaxAttempts > 0 {
		p.MaxAttempts = opts.MaxAttempts
	}
	if opts.Backoff > 0 {
		p.Backoff = opts.Backoff
	}
	if opts.Multiplier > 0 {
		p.Multiplier = opts.Multiplier
		p.MaxBackoff = 0
	}
	return p.Normalize()
}

func (s *profileService) FetchProfile(ctx context.Context, actor policy.Actor, id uuid.UUID, opts FetchOptions) (Lookup, error) {
	if err := policy.Founders.Gate(actor, policy.Select); err != nil {
		return Lookup{}, err
	}
	if id == uuid.Nil {
		return Lookup{}, appErr.Invalid("founder id must not be the nil UUID")
	}

	var (
		found     *models.Founder
		transient bool
	)
	attempts, err := retry.Do(ctx, s.policyFor(opts), func(ctx context.Context, attempt int) error {
		f, err := s.founders.FindByID(ctx, actor, id)
		switch {
		case err == nil && f != nil:
			found = f
			return nil
		case err == nil:
			transient = false
			return errAbsent
		case appErr.Retryable(err):
			transient = true
			logger.L().Debug("fetch founder transient failure",
				zap.String("founder_id", id.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		default:
			return retry.Permanent(err)
		}
	})

	l := Lookup{Founder: found, Found: found != nil, Attempts: attempts}
	switch {
	case err == nil:
		return l, nil
	case ctx.Err() != nil:
		return l, appErr.Wrap(ctx.Err(), appErr.CodeDeadline, "fetch founder canceled")
	case errors.Is(err, errAbsent), appErr.Retryable(err):
		l.RetryExhausted = transient
		logger.L().Info("founder not found",
			zap.String("founder_id", id.String()),
			zap.Int("attempts", attempts),
			zap.Bool("retry_exhausted", l.RetryExhausted),
		)
		return l, nil
	default:
		return l, err
	}
}

func (s *profileService) ListDiscoverable(ctx context.Context, actor policy.Actor, filters *ProfileFilters) ([]models.Founder, error) {
	if err := policy.Founders.Gate(actor, policy.Select); err != nil {
		return nil, err
	}
	if filters == nil {
		filters = &ProfileFilters{}
	}
	filters.normalize()
	return s.founders.ListDiscoverable(ctx, actor, filters.PageSize, (filters.Page-1)*filters.PageSize)
}

func (s *profileService) Update(ctx context.Context, actor policy.Actor, id uuid.UUID, fields models.FounderFields) (*models.Founder, error) {
	if err := policy.Founders.Gate(actor, policy.Update); err != nil {
		return nil, err
	}
	fields.Normalize()
	if err := validators.Struct(fields); err != nil {
		return nil, err
	}
	if fields.Empty() {
		return nil, appErr.Invalid("no fields to update")
	}
	if err := policy.Founders.Authorize(actor, policy.Update, policy.Row{ID: id}); err != nil {
		return nil, err
	}

	f, err := s.founders.Update(ctx, actor, id, fields)
	if err != nil {
		return nil, err
	}
	logger.L().Info("founder updated",
		zap.String("founder_id", id.String()),
		zap.Bool("profile_visible", f.ProfileVisible),
		zap.Int("onboarding_step", f.OnboardingStep),
	)
	return f, nil
}

func (s *profileService) CompleteOnboarding(ctx context.Context, actor policy.Actor, id uuid.UUID) (*models.Founder, error) {
	return s.Update(ctx, actor, id, models.FounderFields{CompleteOnboarding: true})
}

func (s *profileService) Delete(ctx context.Context, actor policy.Actor, id uuid.UUID) error {
	if err := policy.Founders.Authorize(actor, policy.Delete, policy.Row{ID: id}); err != nil {
		return err
	}
	if err := s.founders.Delete(ctx, actor, id); err != nil {
		return err
	}
	logger.L().Info("founder deleted", zap.String("founder_id", id.String()))

	// The row is gone; leftover objects are logged rather than failing the call.
	if s.avatars != nil {
		if err := s.avatars.DeletePrefix(context.WithoutCancel(ctx), id.String()); err != nil {
			logger.L().Warn("delete avatar objects failed",
				zap.String("founder_id", id.String()),
				zap.String("bucket", s.avatars.Name()),
				zap.Error(err),
			)
		}
	}
	return nil
}

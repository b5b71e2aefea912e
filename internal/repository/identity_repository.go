package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/foundernet/engine/internal/models"
	appErr "github.com/foundernet/engine/pkg/errors"
)

// IdentityRepository stores identities in auth.users. It runs as the
// connection's own role; the anon and authenticated roles have no access
// to the auth schema tables.
type IdentityRepository interface {
	BaseRepository[models.Identity]
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
}

type identityRepository struct {
	BaseRepository[models.Identity]
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) IdentityRepository {
	return &identityRepository{
		BaseRepository: NewBaseRepository[models.Identity](db),
		db:             db,
	}
}

func (r *identityRepository) Create(ctx context.Context, obj *models.Identity) error {
	err := r.BaseRepository.Create(ctx, obj)
	if appErr.IsCode(err, appErr.CodeConflict) {
		return appErr.Wrap(err, appErr.CodeAlreadyExists, "email already registered")
	}
	return err
}

func (r *identityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var u models.Identity
	err := r.db.WithContext(ctx).Where("lower(email) = lower(?)", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErr.New(appErr.CodeNotFound, "identity not found")
	}
	if err != nil {
		return nil, classify(err, "get identity by email failed")
	}
	return &u, nil
}

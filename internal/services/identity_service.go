package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/internal/repository"
	"github.com/foundernet/engine/internal/validators"
	appErr "github.com/foundernet/engine/pkg/errors"
	"github.com/foundernet/engine/pkg/logger"
)

// IdentityService creates and authenticates identities and issues the
// bearer tokens the policy layer trusts.
type IdentityService interface {
	SignUp(ctx context.Context, email, password string) (*models.Identity, error)
	SignIn(ctx context.Context, email, password string) (string, *models.Identity, error)
	// Verify turns a bearer token into the acting identity.
	Verify(token string) (policy.Actor, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Identity, error)
}

type IdentityOptions struct {
	Secret      []byte
	TokenTTL    time.Duration
	Autoconfirm bool
}

type identityService struct {
	identities repository.IdentityRepository
	opts       IdentityOptions
	now        func() time.Time
}

func NewIdentityService(identities repository.IdentityRepository, opts IdentityOptions) IdentityService {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	return &identityService{identities: identities, opts: opts, now: time.Now}
}

func (s *identityService) SignUp(ctx context.Context, email, password string) (*models.Identity, error) {
	email, err := validators.Email(email)
	if err != nil {
		return nil, err
	}
	if err := validators.Password(password); err != nil {
		return nil, err
	}

	ph, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.Identity{Email: email, PasswordHash: string(ph)}
	if s.opts.Autoconfirm {
		now := s.now().UTC()
		u.EmailConfirmedAt = &now
	}
	if err := s.identities.Create(ctx, u); err != nil {
		return nil, err
	}

	logger.L().Info("identity created",
		zap.String("identity_id", u.ID.String()),
		zap.Bool("confirmed", u.Confirmed()),
	)
	return u, nil
}

func (s *identityService) SignIn(ctx context.Context, email, password string) (string, *models.Identity, error) {
	email, err := validators.Email(email)
	if err != nil {
		return "", nil, err
	}
	u, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return "", nil, appErr.New(appErr.CodeUnauthorized, "invalid credentials")
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, appErr.New(appErr.CodeUnauthorized, "invalid credentials")
	}
	if !u.Confirmed() {
		return "", nil, appErr.New(appErr.CodeUnauthorized, "email not confirmed")
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   u.ID.String(),
		"email": u.Email,
		"role":  policy.RoleAuthenticated,
		"iat":   now.Unix(),
		"exp":   now.Add(s.opts.TokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.opts.Secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, u, nil
}

func (s *identityService) Verify(tokenStr string) (policy.Actor, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return s.opts.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return policy.Anonymous(), appErr.Wrap(err, appErr.CodeUnauthorized, "token expired")
		}
		return policy.Anonymous(), appErr.Wrap(err, appErr.CodeUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return policy.Anonymous(), appErr.New(appErr.CodeUnauthorized, "invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil || id == uuid.Nil {
		return policy.Anonymous(), appErr.New(appErr.CodeUnauthorized, "invalid token subject")
	}
	return policy.As(id), nil
}

func (s *identityService) Get(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	var u models.Identity
	if err := s.identities.GetByID(ctx, id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

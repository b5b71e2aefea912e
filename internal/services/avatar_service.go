package services

import (
	"bytes"
	"context"
	"io"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/internal/storage"
	appErr "github.com/foundernet/engine/pkg/errors"
	"github.com/foundernet/engine/pkg/logger"
	"github.com/foundernet/engine/pkg/utils"
)

// AvatarSize is the edge length of stored avatars.
const AvatarSize = 512

type AvatarService interface {
	// Upload normalises the image, stores it in the avatar bucket and points
	// the owner's profile at it.
	Upload(ctx context.Context, actor policy.Actor, id uuid.UUID, r io.Reader) (*models.Founder, error)
}

type avatarService struct {
	bucket   storage.Bucket
	profiles ProfileService
}

func NewAvatarService(bucket storage.Bucket, profiles ProfileService) AvatarService {
	return &avatarService{bucket: bucket, profiles: profiles}
}

func (s *avatarService) Upload(ctx context.Context, actor policy.Actor, id uuid.UUID, r io.Reader) (*models.Founder, error) {
	if err := policy.Founders.Authorize(actor, policy.Update, policy.Row{ID: id}); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "avatar is not a supported image")
	}
	img = imaging.Fill(img, AvatarSize, AvatarSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "encode avatar failed")
	}

	prev, err := s.currentAvatar(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	key := utils.ContentKey(id.String(), buf.Bytes(), "jpg")
	url, err := s.bucket.Put(ctx, key, &buf)
	if err != nil {
		return nil, err
	}
	log := logger.L().With(
		zap.String("founder_id", id.String()),
		zap.String("bucket", s.bucket.Name()),
		zap.String("key", key),
	)

	f, err := s.profiles.Update(ctx, actor, id, models.FounderFields{AvatarURL: &url})
	if err != nil {
		s.remove(context.WithoutCancel(ctx), log, key)
		return nil, err
	}
	log.Info("avatar stored")

	if old, ok := s.bucket.KeyOf(prev); ok && old != key {
		s.remove(ctx, log, old)
	}
	return f, nil
}

// currentAvatar returns the avatar path the profile points at, or "" when
// there is none or the profile does not exist.
func (s *avatarService) currentAvatar(ctx context.Context, actor policy.Actor, id uuid.UUID) (string, error) {
	l, err := s.profiles.FetchProfile(ctx, actor, id, FetchOptions{MaxAttempts: 1})
	if err != nil {
		return "", err
	}
	if !l.Found {
		return "", nil
	}
	return l.Founder.AvatarURL, nil
}

func (s *avatarService) remove(ctx context.Context, log *zap.Logger, key string) {
	err := s.bucket.Delete(ctx, key)
	if err != nil && !appErr.IsCode(err, appErr.CodeNotFound) {
		log.Warn("delete avatar object failed", zap.String("object", key), zap.Error(err))
	}
}

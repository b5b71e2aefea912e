// Package app assembles the stores and services shared by the binaries.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/foundernet/engine/internal/repository"
	"github.com/foundernet/engine/internal/services"
	"github.com/foundernet/engine/internal/storage"
	"github.com/foundernet/engine/pkg/config"
	"github.com/foundernet/engine/pkg/database"
	"github.com/foundernet/engine/pkg/logger"
	"github.com/foundernet/engine/pkg/retry"
)

// App holds open connections and the services built on them.
type App struct {
	Config *config.Config
	DB     *gorm.DB
	// Reader is DB unless a replica URL is configured.
	Reader *gorm.DB
	Bucket *storage.LocalBucket
	// IdentityRepo reads identities directly, outside any actor scope.
	IdentityRepo repository.IdentityRepository

	Identities  services.IdentityService
	Provisioner services.Provisioner
	Profiles    services.ProfileService
	Avatars     services.AvatarService
}

// Open connects to the database and builds the services. The avatar bucket
// must already exist; it is created by the migrate command.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	verbose := cfg.AppEnv != "production"
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, database.Options{Verbose: verbose})
	if err != nil {
		return nil, err
	}
	reader := db
	if cfg.DatabaseReadURL != "" {
		reader, err = database.OpenPostgres(ctx, cfg.ReadDatabaseURL(), database.Options{Verbose: verbose})
		if err != nil {
			database.Close(db)
			return nil, fmt.Errorf("open read replica: %w", err)
		}
		logger.L().Info("reading founders from replica")
	}

	bucket := storage.NewLocalBucket(cfg.StorageDir, storage.AvatarBucket)
	if err := bucket.Verify(); err != nil {
		logger.L().Warn("avatar bucket unavailable", zap.String("dir", bucket.Dir()), zap.Error(err))
	}

	founders := repository.NewFounderRepository(db, reader)
	identities := repository.NewIdentityRepository(db)
	profiles := services.NewProfileService(founders, retry.Policy{
		MaxAttempts: cfg.FetchMaxAttempts,
		Backoff:     cfg.FetchBackoff,
	}, services.WithAvatarBucket(bucket))

	return &App{
		Config: cfg,
		DB:     db,
		Reader: reader,
		Bucket: bucket,

		IdentityRepo: identities,
		Identities: services.NewIdentityService(identities, services.IdentityOptions{
			Secret:      []byte(cfg.JWTSecret),
			TokenTTL:    cfg.TokenTTL,
			Autoconfirm: cfg.Autoconfirm,
		}),
		Provisioner: services.NewProvisioner(founders),
		Profiles:    profiles,
		Avatars:     services.NewAvatarService(bucket, profiles),
	}, nil
}

// Ping checks the primary connection.
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *App) Close() {
	if a.Reader != a.DB {
		database.Close(a.Reader)
	}
	database.Close(a.DB)
}

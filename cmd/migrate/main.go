package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/foundernet/engine/internal/migrations"
	"github.com/foundernet/engine/internal/storage"
	"github.com/foundernet/engine/pkg/config"
	"github.com/foundernet/engine/pkg/database"
	"github.com/foundernet/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, database.Options{Verbose: true})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if err := migrations.Run(ctx, db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	bucket := storage.NewLocalBucket(cfg.StorageDir, storage.AvatarBucket)
	if err := bucket.Ensure(); err != nil {
		log.Fatal("create avatar bucket failed", zap.Error(err))
	}

	fmt.Fprintln(os.Stdout, "migrations completed")
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinderbin/cfg"
	"cinderbin/pkg/secrets"
	"cinderbin/svc/api"
	"cinderbin/svc/auth"
	"cinderbin/svc/blob"
	"cinderbin/svc/cache"
	"cinderbin/svc/db"
	"cinderbin/svc/svc"
	"cinderbin/svc/util"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	util.InitLog(c.LogLevel, c.Environment == "development")
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	defer c.Wipe()
	util.Info().Msg("starting cinderbin API")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if c.CleanupTokenFromSecrets {
		adapter, err := secrets.NewAdapter(ctx)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to initialize secrets adapter")
			os.Exit(1)
		}
		token, err := adapter.GetSecret(ctx, "CLEANUP_TOKEN")
		if err != nil {
			util.Fatal().Err(err).Msg("failed to load cleanup token from secrets backend")
			os.Exit(1)
		}
		c.CleanupToken = cfg.NewSecret(token)
		util.Info().Msg("cleanup token loaded from secrets backend")
	}

	store, err := db.NewWithConfig(c.DatabaseDSN, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize database")
		os.Exit(1)
	}
	defer store.Close()
	util.Info().Str("dsn", c.DatabaseDSN).Msg("database initialized")

	var rdb *db.Redis
	if c.RedisURL != "" {
		rdb, err = db.NewRedis(c.RedisURL, c)
		if err != nil {
			if c.Environment == "production" {
				util.Fatal().Err(err).Msg("CRITICAL: Redis required in production")
				os.Exit(1)
			}
			util.Warn().Err(err).Msg("redis unavailable (dev mode)")
		} else {
			util.Info().Msg("redis connected")
		}
	}
	if rdb != nil {
		defer rdb.Close()
	}

	lruCache, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create LRU cache")
		os.Exit(1)
	}
	util.Info().Int("size", c.LRUCacheSize).Msg("LRU cache initialized")

	hasher, err := auth.NewHasher(c.ScryptN, c.ScryptR, c.ScryptP, c.ScryptKeyLen)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize hasher")
		os.Exit(1)
	}

	var blobs blob.Store
	switch c.BlobBackend {
	case "s3":
		blobs, err = blob.NewS3Store(ctx, c.S3Region, c.S3Bucket, c.S3PublicBaseURL)
	default:
		blobs, err = blob.NewLocalStore(c.BlobLocalDir, c.BlobBaseURL)
	}
	if err != nil {
		util.Fatal().Err(err).Str("backend", c.BlobBackend).Msg("failed to initialize blob store")
		os.Exit(1)
	}
	util.Info().Str("backend", c.BlobBackend).Msg("blob store initialized")

	pasteSvc := svc.NewPaste(store, blobs, lruCache, rdb, hasher, c)
	reaper := svc.NewReaper(store, blobs, lruCache, rdb, c.ReapBlobDeletesPerSec)
	go reaper.Run(ctx, c.CleanupInterval)

	server := api.NewServer(c, pasteSvc, reaper, store, rdb)

	util.Info().Str("port", c.Port).Str("environment", c.Environment).Msg("server starting")
	go func() {
		if err := server.Start(); err != nil {
			util.Fatal().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	util.Info().Msg("shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown error")
	}
	cancel()
	util.Info().Msg("shutdown complete")
}

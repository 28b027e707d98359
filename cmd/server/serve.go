package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"scholarships/internal/config"
	httpdelivery "scholarships/internal/delivery/http"
	"scholarships/internal/docstore"
	"scholarships/internal/docstore/cache"
	"scholarships/internal/domain"
	"scholarships/internal/logging"
	"scholarships/internal/repository/memory"
	mongorepo "scholarships/internal/repository/mongo"
	"scholarships/internal/usecase"
	"scholarships/internal/validate"
	"scholarships/pkg/utils"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}

	cmd.Flags().Int("port", 8080, "HTTP server port")
	cmd.Flags().String("store", config.StoreMongo, "storage backend: mongo or memory")
	cobra.CheckErr(v.BindPFlag(config.VServerPort, cmd.Flags().Lookup("port")))
	cobra.CheckErr(v.BindPFlag(config.VStoreBackend, cmd.Flags().Lookup("store")))

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	level := cfg.Log.Level
	if cfg.Log.Development && level == "info" {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Development: cfg.Log.Development, Level: level})
	if err != nil {
		return err
	}
	defer logger.Sync()

	validator, err := validate.New()
	if err != nil {
		return err
	}

	repo, cleanup, err := newRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	requestIDs, err := utils.NewRequestIDGenerator(cfg.Server.NodeID)
	if err != nil {
		return err
	}

	uc := usecase.NewScholarshipUseCase(repo, validator, usecase.Config{
		Clock:        utils.SystemClock,
		DefaultLimit: cfg.List.DefaultLimit,
		MaxLimit:     cfg.List.MaxLimit,
	}, logger)
	router := httpdelivery.NewRouter(httpdelivery.NewScholarshipHandler(uc, logger), requestIDs, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Backend),
			zap.String("cache", cfg.Cache.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newRepository builds the configured repository and a function releasing
// everything it holds
func newRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (domain.ScholarshipRepository, func(), error) {
	if cfg.Store.Backend == config.StoreMemory {
		logger.Warn("Using the in-memory store; data is lost on exit")
		return memory.NewScholarshipRepository(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Mongo.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	logger.Info("Connected to MongoDB",
		zap.String("database", cfg.Mongo.Database),
		zap.String("collection", cfg.Mongo.Collection))

	docCache, err := newCache(cfg)
	if err != nil {
		client.Disconnect(context.Background())
		return nil, nil, err
	}

	collection := client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
	store, err := docstore.NewStorage[*domain.Record](collection, docCache, &docstore.Options{
		VersionField:      domain.VersionField,
		CacheTTL:          cfg.Cache.TTL,
		CacheQueryResults: true,
		Logger:            logger,
	})
	if err != nil {
		docCache.Close()
		client.Disconnect(context.Background())
		return nil, nil, err
	}

	cleanup := func() {
		store.Close()
		if err := docCache.Close(); err != nil {
			logger.Warn("Failed to close cache", zap.Error(err))
		}
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Warn("Failed to disconnect from MongoDB", zap.Error(err))
		}
	}
	return mongorepo.NewScholarshipRepository(store, logger), cleanup, nil
}

func newCache(cfg *config.Config) (cache.Cache[*domain.Record], error) {
	cacheOptions := cache.CacheOptions{DefaultTTL: cfg.Cache.TTL, MaxItems: cfg.Cache.MaxItems}

	switch cfg.Cache.Backend {
	case config.CacheRedis:
		redisOptions := cache.DefaultRedisCacheOptions()
		redisOptions.CacheOptions = cacheOptions
		redisOptions.Addr = cfg.Redis.Addr
		redisOptions.Password = cfg.Redis.Password
		redisOptions.DB = cfg.Redis.DB
		return cache.NewRedisCache[*domain.Record](redisOptions)
	case config.CacheBadger:
		return cache.NewBadgerCache[*domain.Record](cfg.Badger.Path, &cacheOptions)
	case config.CacheNone:
		return cache.NewNopCache[*domain.Record](), nil
	default:
		return cache.NewMemoryCache[*domain.Record](&cacheOptions), nil
	}
}

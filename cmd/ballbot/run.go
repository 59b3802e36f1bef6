package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pronto-ballbot/internal/bot"
	"pronto-ballbot/internal/cache"
	"pronto-ballbot/internal/catalog"
	"pronto-ballbot/internal/config"
	"pronto-ballbot/internal/directory"
	"pronto-ballbot/internal/game"
	"pronto-ballbot/internal/handler"
	"pronto-ballbot/internal/logging"
	"pronto-ballbot/internal/middleware"
	"pronto-ballbot/internal/poller"
	"pronto-ballbot/internal/pronto"
	"pronto-ballbot/internal/publisher"
	"pronto-ballbot/internal/repository"
	"pronto-ballbot/internal/router"
)

func runBot(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if cfg.App.IsDevelopment() {
		logger = logger.WithOptions(zap.Development())
	}

	logger.Info("Starting",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("env", cfg.App.Environment),
		zap.String("bubble", cfg.Pronto.BubbleID),
	)

	repo, err := repository.Open(ctx, cfg.InventoryDB, logger)
	if err != nil {
		return fmt.Errorf("failed to open inventory store: %w", err)
	}
	defer repo.Close()

	items, err := catalog.Open(cfg.Game.CatalogPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	members, err := directory.Load(cfg.Game.MembersPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load member directory: %w", err)
	}

	cursorStore, store, err := openCursorStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	client := pronto.NewClient(cfg.Pronto, nil, logger)
	pub := publisher.New(client, cfg.Pronto.BubbleID, publisher.OptionsFromConfig(cfg.Publish), logger)
	pub.SetAssetCache(store, cfg.Publish.AssetCacheTTL)

	cursor := poller.NewCursor(cursorStore, logger)
	if err := cursor.Restore(ctx); err != nil {
		logger.Warn("Could not restore cursor, starting fresh", zap.Error(err))
	}

	dispatcher := poller.NewDispatcher(client, cfg.Pronto.BubbleID, nil, cursor, cfg.Poll.Interval, logger)
	engine := game.NewEngine(repo, items, pub, rand.New(rand.NewSource(time.Now().UnixNano())), logger)
	dispatcher.SetHandler(bot.New(bot.Config{
		Game:         engine,
		Announcer:    pub,
		Members:      members,
		Waiter:       dispatcher,
		SpawnTimeout: cfg.Game.SpawnTimeout,
		Logger:       logger,
	}))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	if cfg.Game.CatalogWatch {
		g.Go(func() error {
			return items.Watch(gctx)
		})
	}

	if cfg.Status.Enabled {
		srv := &http.Server{
			Addr: cfg.Status.Address(),
			Handler: router.New(router.Config{
				Handler:          handler.New(cfg.App.Name, cfg.App.Version, dispatcher),
				InventoryHandler: handler.NewInventoryHandler(engine),
				AdminHandler: handler.NewAdminHandler(handler.AdminConfig{
					Dispatcher:    dispatcher,
					InventoryRepo: repo,
					Cache:         store,
					DBType:        cfg.InventoryDB.Type,
					CatalogSize:   func() int { return items.Current().Len() },
				}),
				AuthMiddleware: middleware.APIKeyAuth(cfg.Status.APIKeys),
				Logger:         logger,
			}),
			ReadTimeout:  cfg.Status.ReadTimeout,
			WriteTimeout: cfg.Status.WriteTimeout,
		}

		g.Go(func() error {
			logger.Info("Status server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Status.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Stopped")
	return nil
}

// openCursorStore returns the cursor store together with the cache backing
// it. The cache also holds reusable media uploads and is closed by the caller.
func openCursorStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*poller.CacheCursorStore, cache.Cache, error) {
	c, err := openCache(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return poller.NewCacheCursorStore(c, cfg.Poll.CursorKey), c, nil
}

// openCache connects to Redis when CURSOR_STORE=redis and otherwise returns
// an in-process cache that forgets everything on restart.
func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	switch cfg.Poll.CursorStore {
	case "redis":
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rc, err := cache.NewRedisCache(connectCtx, cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.KeyPrefix,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return rc, nil
	default:
		return cache.NewMemoryCache(time.Minute), nil
	}
}

package app

import (
	"path/filepath"

	"github.com/clipstash/clipstash/internal/catalog"
	"github.com/clipstash/clipstash/internal/config"
	"github.com/clipstash/clipstash/internal/downloader"
	"github.com/clipstash/clipstash/internal/store"
	"github.com/clipstash/clipstash/internal/watcher"
	"github.com/clipstash/clipstash/utils"
)

// App is the process-wide context object: every component is constructed
// once here and passed down explicitly, with a lifecycle tied to the
// process instead of ambient global state.
type App struct {
	Cfg        *config.Config
	DB         *store.Store
	Bus        *downloader.Bus
	Catalog    *catalog.Client
	Engine     *downloader.Coordinator
	Reconciler *catalog.Reconciler
	Watcher    *watcher.Watcher
}

func New(cfg *config.Config) (*App, error) {
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	bus := downloader.NewBus()
	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL, utils.NewStashHTTPClient(utils.HTTPClientConfig{
		Timeout:   cfg.Catalog.Timeout,
		UserAgent: cfg.Transfer.UserAgent,
	}))
	transferClient := utils.NewStashHTTPClient(utils.HTTPClientConfig{
		Timeout:   cfg.Transfer.Timeout,
		KATimeout: cfg.Transfer.KATimeout,
		UserAgent: cfg.Transfer.UserAgent,
	})
	engine := downloader.NewCoordinator(downloader.Config{
		SegmentDir:      cfg.SegmentDir(),
		MediaDir:        filepath.Join(cfg.Storage.DataDir, cfg.Storage.MediaDir),
		ChunkSize:       cfg.Transfer.ChunkSizeBytes,
		SegmentWorkers:  cfg.Transfer.SegmentWorkers,
		MaxActiveVideos: cfg.Transfer.MaxActiveVideos,
		RetryAttempts:   cfg.Transfer.RetryAttempts,
		RetryBackoff:    cfg.Transfer.RetryBackoff,
	}, db, transferClient, catalogClient.MediaURL, bus)
	if err := engine.Recover(); err != nil {
		db.Close()
		return nil, err
	}
	reconciler := catalog.NewReconciler(db, engine, bus)
	return &App{
		Cfg:        cfg,
		DB:         db,
		Bus:        bus,
		Catalog:    catalogClient,
		Engine:     engine,
		Reconciler: reconciler,
		Watcher: watcher.New(catalogClient, reconciler, bus, db, cfg.Catalog.AccessCode,
			cfg.Watch.SyncInterval, cfg.Watch.OptimizingInterval),
	}, nil
}

// Close winds down live downloads (persisting their paused state) and
// closes the store.
func (a *App) Close() error {
	a.Engine.Shutdown()
	return a.DB.Close()
}

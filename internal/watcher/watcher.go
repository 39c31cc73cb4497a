package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipstash/clipstash/internal/catalog"
	"github.com/clipstash/clipstash/internal/downloader"
	"github.com/clipstash/clipstash/internal/model"
	"github.com/clipstash/clipstash/internal/store"
	"github.com/clipstash/clipstash/utils"
)

// Watcher drives periodic catalog syncs and the optimizing poll as
// explicit, cancellable ticker tasks.
type Watcher struct {
	client             *catalog.Client
	reconciler         *catalog.Reconciler
	bus                *downloader.Bus
	db                 *store.Store
	code               string
	syncInterval       time.Duration
	optimizingInterval time.Duration
	log                zerolog.Logger

	pollMu  sync.Mutex
	polling bool
}

func New(client *catalog.Client, reconciler *catalog.Reconciler, bus *downloader.Bus, db *store.Store, code string, syncInterval, optimizingInterval time.Duration) *Watcher {
	if syncInterval <= 0 {
		syncInterval = 5 * time.Minute
	}
	if optimizingInterval <= 0 {
		optimizingInterval = 30 * time.Second
	}
	return &Watcher{
		client:             client,
		reconciler:         reconciler,
		bus:                bus,
		db:                 db,
		code:               code,
		syncInterval:       syncInterval,
		optimizingInterval: optimizingInterval,
		log:                utils.GetLogger("watcher"),
	}
}

// SyncOnce fetches the catalog and reconciles local state against it. A
// fetch failure publishes an offline event and leaves every tracked
// download untouched; the last-known list stays authoritative.
func (w *Watcher) SyncOnce(ctx context.Context) ([]model.RemoteVideo, error) {
	videos, err := w.client.FetchCatalog(ctx, w.code)
	if err != nil {
		w.log.Warn().Err(err).Msg("Catalog fetch failed, staying on cached list")
		w.bus.Publish(model.Event{
			Type:    model.EventOffline,
			Kind:    model.FailureCatalogUnreachable,
			Message: err.Error(),
		})
		return nil, err
	}
	if err := w.reconciler.Reconcile(videos); err != nil {
		w.log.Error().Err(err).Msg("Reconciliation finished with errors")
	}
	return videos, nil
}

// Run syncs immediately and then on every tick until ctx is cancelled.
// Every sync re-arms the optimizing poll, so a video that starts
// optimizing after startup is still tracked at the short cadence.
func (w *Watcher) Run(ctx context.Context) {
	w.syncAndArm(ctx)
	ticker := time.NewTicker(w.syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.syncAndArm(ctx)
		}
	}
}

func (w *Watcher) syncAndArm(ctx context.Context) {
	w.SyncOnce(ctx)
	w.armOptimizingPoll(ctx)
}

// armOptimizingPoll starts a background PollOptimizing when any tracked
// video is optimizing and no poll is already running.
func (w *Watcher) armOptimizingPoll(ctx context.Context) {
	records, err := w.db.ListDownloads()
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to list downloads for optimizing poll")
		return
	}
	optimizing := false
	for i := range records {
		if records[i].Video.IsOptimizing {
			optimizing = true
			break
		}
	}
	if !optimizing {
		return
	}
	w.pollMu.Lock()
	defer w.pollMu.Unlock()
	if w.polling {
		return
	}
	w.polling = true
	go func() {
		defer func() {
			w.pollMu.Lock()
			w.polling = false
			w.pollMu.Unlock()
		}()
		if err := w.PollOptimizing(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("Optimizing poll stopped")
		}
	}()
}

// PollOptimizing re-syncs on a short interval while any tracked video is
// still optimizing on the server. It returns nil once none remain, or
// ctx.Err() on cancellation.
func (w *Watcher) PollOptimizing(ctx context.Context) error {
	ticker := time.NewTicker(w.optimizingInterval)
	defer ticker.Stop()
	for {
		records, err := w.db.ListDownloads()
		if err != nil {
			return err
		}
		remaining := 0
		for i := range records {
			if records[i].Video.IsOptimizing {
				remaining++
			}
		}
		if remaining == 0 {
			return nil
		}
		w.log.Debug().Int("optimizing", remaining).Msg("Waiting for server-side optimization")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		w.SyncOnce(ctx)
	}
}

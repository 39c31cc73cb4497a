package catalog

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/clipstash/clipstash/internal/downloader"
	"github.com/clipstash/clipstash/internal/model"
	"github.com/clipstash/clipstash/internal/store"
	"github.com/clipstash/clipstash/utils"
)

// Engine is the slice of the download coordinator the reconciler drives.
type Engine interface {
	Start(videoID string) error
	StopWait(videoID string)
	Forget(videoID string) error
	UpdateVideo(videoID string, v model.RemoteVideo) error
	InvalidatePlan(videoID string) error
	Active(videoID string) bool
}

// Reconciler aligns locally tracked downloads with a freshly fetched
// catalog list. Every effect is keyed off a difference between stored and
// fresh state, so running it twice with the same list is a no-op.
type Reconciler struct {
	db     *store.Store
	engine Engine
	bus    *downloader.Bus
	log    zerolog.Logger
}

func NewReconciler(db *store.Store, engine Engine, bus *downloader.Bus) *Reconciler {
	return &Reconciler{
		db:     db,
		engine: engine,
		bus:    bus,
		log:    utils.GetLogger("reconciler"),
	}
}

// Reconcile applies a fresh catalog list: removed videos lose all local
// data, changed videos are updated (resuming or restarting downloads as
// needed), and new videos get a NotStarted record. Videos still
// optimizing are never auto-started.
func (r *Reconciler) Reconcile(fresh []model.RemoteVideo) error {
	prev, err := r.db.ListDownloads()
	if err != nil {
		return err
	}
	freshByID := make(map[string]model.RemoteVideo, len(fresh))
	for _, v := range fresh {
		freshByID[v.ID] = v
	}
	prevIDs := make(map[string]bool, len(prev))

	var errs []error
	for i := range prev {
		prevIDs[prev[i].VideoID] = true
		v, stillListed := freshByID[prev[i].VideoID]
		if !stillListed {
			r.removeVideo(&prev[i])
			continue
		}
		if err := r.updateVideo(&prev[i], v); err != nil {
			errs = append(errs, err)
		}
	}
	for _, v := range fresh {
		if prevIDs[v.ID] {
			continue
		}
		rec := model.TrackedDownload{
			VideoID:    v.ID,
			Status:     model.StatusNotStarted,
			TotalBytes: v.SizeBytes,
			Video:      v,
		}
		if err := r.db.PutDownload(&rec); err != nil {
			errs = append(errs, err)
			continue
		}
		r.log.Info().Str("videoId", v.ID).Bool("optimizing", v.IsOptimizing).Msg("Tracking new catalog video")
	}
	return errors.Join(errs...)
}

// removeVideo drops every local trace of a video that left the catalog.
// Cleanup is best effort; a failed file deletion is logged and does not
// keep the record around.
func (r *Reconciler) removeVideo(rec *model.TrackedDownload) {
	log := r.log.With().Str("videoId", rec.VideoID).Logger()
	if err := r.engine.Forget(rec.VideoID); err != nil {
		log.Warn().Err(err).Msg("Failed to drop download data for removed video")
		return
	}
	if err := r.db.DeleteBookmark(rec.VideoID); err != nil {
		log.Warn().Err(err).Msg("Failed to clear playback bookmark")
	}
	log.Info().Msg("Removed video no longer in catalog")
	r.bus.Publish(model.Event{Type: model.EventRemoved, VideoID: rec.VideoID})
}

// updateVideo merges fresh remote metadata into the tracked record
// without discarding download progress. A locator change while the video
// was downloading (or stuck in error) resumes automatically with the new
// locator; if the size changed too, the old segment plan is invalid and
// the download restarts from zero.
func (r *Reconciler) updateVideo(rec *model.TrackedDownload, v model.RemoteVideo) error {
	wasOptimizing := rec.Video.IsOptimizing
	locatorChanged := v.SourceLocator != rec.Video.SourceLocator
	sizeChanged := v.SizeBytes > 0 && rec.TotalBytes > 0 && v.SizeBytes != rec.TotalBytes
	needResume := locatorChanged && (rec.Status == model.StatusDownloading || rec.Status == model.StatusError)

	if locatorChanged && r.engine.Active(rec.VideoID) {
		r.engine.StopWait(rec.VideoID)
		// The wound-down task persisted fresh byte counts; reload before
		// writing anything back.
		current, err := r.db.GetDownload(rec.VideoID)
		if err != nil {
			return err
		}
		if current != nil {
			*rec = *current
		}
	}
	if rec.Video != v {
		// The engine owns the write so a live task's progress persists
		// cannot clobber the metadata update.
		if err := r.engine.UpdateVideo(rec.VideoID, v); err != nil {
			return err
		}
		rec.Video = v
		if rec.Status == model.StatusNotStarted && v.SizeBytes > 0 {
			rec.TotalBytes = v.SizeBytes
		}
	}
	if locatorChanged && sizeChanged {
		r.log.Warn().Str("videoId", rec.VideoID).Str("kind", string(model.FailureSizeMismatch)).
			Int64("had", rec.TotalBytes).Int64("now", v.SizeBytes).
			Msg("Remote size changed, invalidating segment plan")
		if err := r.engine.InvalidatePlan(rec.VideoID); err != nil {
			return err
		}
	}
	if wasOptimizing && !v.IsOptimizing {
		r.log.Info().Str("videoId", rec.VideoID).Msg("Video finished optimizing")
		r.bus.Publish(model.Event{Type: model.EventVideoReady, VideoID: rec.VideoID, TotalBytes: v.SizeBytes})
	}
	if needResume {
		r.log.Info().Str("videoId", rec.VideoID).Msg("Source locator changed, resuming download")
		if err := r.engine.Start(rec.VideoID); err != nil {
			return err
		}
	}
	return nil
}

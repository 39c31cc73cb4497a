package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clipstash/clipstash/internal/model"
	"github.com/clipstash/clipstash/internal/store"
	"github.com/clipstash/clipstash/utils"
)

var (
	ErrUnknownVideo    = errors.New("unknown video id")
	ErrStillOptimizing = errors.New("video is still optimizing on the server")
	ErrAlreadyComplete = errors.New("video is already downloaded")
)

type Config struct {
	SegmentDir      string
	MediaDir        string
	ChunkSize       int64
	SegmentWorkers  int
	MaxActiveVideos int
	RetryAttempts   int
	RetryBackoff    time.Duration
}

func (c *Config) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.SegmentWorkers <= 0 {
		c.SegmentWorkers = 3
	}
	if c.MaxActiveVideos <= 0 {
		c.MaxActiveVideos = 2
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
}

const (
	stopPaused  = "paused"
	stopRemoved = "removed"
)

// task is the live handle for one in-flight video download. At most one
// exists per video id.
type task struct {
	id      string
	videoID string
	rec     *model.TrackedDownload
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	reason string
}

func (t *task) requestStop(reason string) {
	t.mu.Lock()
	if t.reason == "" {
		t.reason = reason
	}
	t.mu.Unlock()
	t.cancel()
}

func (t *task) stopReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Coordinator owns the mutable download state for every tracked video and
// drives the planner, fetcher and stores through the per-video state
// machine. All record mutations funnel through it; the stores are written
// before events are published.
type Coordinator struct {
	cfg     Config
	db      *store.Store
	client  utils.HTTPDoer
	resolve func(locator string) string
	bus     *Bus
	log     zerolog.Logger

	mu       sync.Mutex
	tasks    map[string]*task
	lastEmit map[string]int64
	slots    chan struct{}
}

// NewCoordinator wires the engine together. resolve turns a source
// locator into a fetchable URL; tests inject their own.
func NewCoordinator(cfg Config, db *store.Store, client utils.HTTPDoer, resolve func(string) string, bus *Bus) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		cfg:      cfg,
		db:       db,
		client:   client,
		resolve:  resolve,
		bus:      bus,
		log:      utils.GetLogger("coordinator"),
		tasks:    make(map[string]*task),
		lastEmit: make(map[string]int64),
		slots:    make(chan struct{}, cfg.MaxActiveVideos),
	}
}

// Recover reverts records left Downloading by a previous process to
// Paused. A stale download never resumes seamlessly; the user (or the
// reconciler) restarts it explicitly.
func (c *Coordinator) Recover() error {
	records, err := c.db.ListDownloads()
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].Status != model.StatusDownloading {
			continue
		}
		records[i].Status = model.StatusPaused
		records[i].ErrorMessage = ""
		if err := c.db.PutDownload(&records[i]); err != nil {
			return err
		}
		c.log.Info().Str("videoId", records[i].VideoID).Msg("Reverted stale download to paused")
	}
	return nil
}

// List returns every tracked download record.
func (c *Coordinator) List() ([]model.TrackedDownload, error) {
	return c.db.ListDownloads()
}

// Active reports whether a live task exists for the video id.
func (c *Coordinator) Active(videoID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tasks[videoID]
	return ok
}

// Start begins or resumes the download for a video id. It returns after
// persisting the Downloading transition and emitting the current
// aggregate progress; the transfer itself runs in the background. A
// second start while a task is live is a no-op.
func (c *Coordinator) Start(videoID string) error {
	c.mu.Lock()
	if _, running := c.tasks[videoID]; running {
		c.mu.Unlock()
		return nil
	}
	rec, err := c.db.GetDownload(videoID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if rec == nil {
		c.mu.Unlock()
		return ErrUnknownVideo
	}
	if rec.Status == model.StatusCompleted {
		c.mu.Unlock()
		return ErrAlreadyComplete
	}
	if rec.Video.IsOptimizing {
		c.mu.Unlock()
		return ErrStillOptimizing
	}
	rec.Status = model.StatusDownloading
	rec.ErrorMessage = ""
	rec.SourceLocatorSnapshot = rec.Video.SourceLocator
	if err := c.db.PutDownload(rec); err != nil {
		c.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:      uuid.NewString(),
		videoID: videoID,
		rec:     rec,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.tasks[videoID] = t
	c.lastEmit[videoID] = rec.DownloadedBytes
	downloaded, total := rec.DownloadedBytes, rec.TotalBytes
	c.mu.Unlock()

	c.bus.Publish(model.Event{
		Type:            model.EventProgress,
		VideoID:         videoID,
		DownloadedBytes: downloaded,
		TotalBytes:      total,
	})
	go c.run(ctx, t, rec)
	return nil
}

// Pause stops a video's in-flight segment fetches at their next read
// checkpoint, keeping partial data for a later resume. Pausing a video
// without a live task only matters for stale Downloading records.
func (c *Coordinator) Pause(videoID string) error {
	c.mu.Lock()
	t := c.tasks[videoID]
	c.mu.Unlock()
	if t != nil {
		t.requestStop(stopPaused)
		return nil
	}
	rec, err := c.db.GetDownload(videoID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrUnknownVideo
	}
	if rec.Status == model.StatusDownloading {
		c.setStatus(rec, model.StatusPaused)
	}
	return nil
}

// StopWait stops a video's task like Pause but blocks until it has fully
// wound down and persisted its state. Used by the reconciler before it
// rewrites a record.
func (c *Coordinator) StopWait(videoID string) {
	c.mu.Lock()
	t := c.tasks[videoID]
	c.mu.Unlock()
	if t == nil {
		return
	}
	t.requestStop(stopPaused)
	<-t.done
}

// Cancel aborts any transfer and deletes all local data for the video:
// segment records, part-files and merged output. The tracked record is
// reset to NotStarted with zero bytes.
func (c *Coordinator) Cancel(videoID string) error {
	rec, err := c.discardLocalData(videoID)
	if err != nil {
		return err
	}
	rec.Status = model.StatusNotStarted
	rec.DownloadedBytes = 0
	rec.TotalBytes = rec.Video.SizeBytes
	rec.ErrorMessage = ""
	rec.OutputPath = ""
	rec.SourceLocatorSnapshot = ""
	return c.db.PutDownload(rec)
}

// Forget removes a video from local tracking entirely: everything Cancel
// drops, plus the tracked record itself. Called by the reconciler when a
// video disappears from the catalog.
func (c *Coordinator) Forget(videoID string) error {
	if _, err := c.discardLocalData(videoID); err != nil && !errors.Is(err, ErrUnknownVideo) {
		return err
	}
	return c.db.DeleteDownload(videoID)
}

// UpdateVideo merges fresh catalog metadata into a video's record. While
// a task is live the write goes through the task's own record under the
// coordinator lock, so a concurrent progress persist can neither clobber
// nor be clobbered by it.
func (c *Coordinator) UpdateVideo(videoID string, v model.RemoteVideo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.tasks[videoID]; t != nil {
		t.rec.Video = v
		return c.db.PutDownload(t.rec)
	}
	rec, err := c.db.GetDownload(videoID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrUnknownVideo
	}
	rec.Video = v
	if rec.Status == model.StatusNotStarted && v.SizeBytes > 0 {
		rec.TotalBytes = v.SizeBytes
	}
	return c.db.PutDownload(rec)
}

// InvalidatePlan throws away a video's segment records and part-files
// because the remote size changed and the old byte ranges no longer
// apply. The tracked record survives with its byte counters zeroed.
func (c *Coordinator) InvalidatePlan(videoID string) error {
	c.StopWait(videoID)
	if err := c.db.DeleteSegments(videoID); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(c.cfg.SegmentDir, videoID)); err != nil {
		c.log.Warn().Err(err).Str("videoId", videoID).Msg("Failed to remove segment files")
	}
	rec, err := c.db.GetDownload(videoID)
	if err != nil || rec == nil {
		return err
	}
	rec.DownloadedBytes = 0
	rec.TotalBytes = rec.Video.SizeBytes
	c.mu.Lock()
	delete(c.lastEmit, videoID)
	c.mu.Unlock()
	return c.db.PutDownload(rec)
}

// Shutdown stops every live task and waits for them to persist their
// paused state. Safe to call before closing the store.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	live := make([]*task, 0, len(c.tasks))
	for _, t := range c.tasks {
		t.requestStop(stopPaused)
		live = append(live, t)
	}
	c.mu.Unlock()
	for _, t := range live {
		<-t.done
	}
}

func (c *Coordinator) discardLocalData(videoID string) (*model.TrackedDownload, error) {
	c.mu.Lock()
	t := c.tasks[videoID]
	if t != nil {
		t.requestStop(stopRemoved)
	}
	c.mu.Unlock()
	if t != nil {
		<-t.done
	}
	rec, err := c.db.GetDownload(videoID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrUnknownVideo
	}
	if err := c.db.DeleteSegments(videoID); err != nil {
		return nil, err
	}
	// File removals are best effort; a stray part-file never blocks
	// dropping the record.
	if err := os.RemoveAll(filepath.Join(c.cfg.SegmentDir, videoID)); err != nil {
		c.log.Warn().Err(err).Str("videoId", videoID).Msg("Failed to remove segment files")
	}
	out := rec.OutputPath
	if out == "" {
		out = c.outputPath(rec)
	}
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		c.log.Warn().Err(err).Str("videoId", videoID).Msg("Failed to remove output file")
	}
	c.mu.Lock()
	delete(c.lastEmit, videoID)
	c.mu.Unlock()
	return rec, nil
}

func (c *Coordinator) outputPath(rec *model.TrackedDownload) string {
	ext := filepath.Ext(utils.SanitizeLocator(rec.Video.SourceLocator))
	return filepath.Join(c.cfg.MediaDir, rec.VideoID+ext)
}

// run executes one download attempt for a video. It owns the record until
// it returns; every state transition is persisted before its event is
// published.
func (c *Coordinator) run(ctx context.Context, t *task, rec *model.TrackedDownload) {
	log := c.log.With().Str("videoId", rec.VideoID).Str("taskId", t.id).Logger()
	defer close(t.done)
	defer func() {
		c.mu.Lock()
		delete(c.tasks, rec.VideoID)
		c.mu.Unlock()
	}()

	// Bound concurrently active videos.
	select {
	case c.slots <- struct{}{}:
		defer func() { <-c.slots }()
	case <-ctx.Done():
		if t.stopReason() == stopPaused {
			c.setStatus(rec, model.StatusPaused)
		}
		return
	}

	url := c.resolve(rec.Video.SourceLocator)
	if rec.TotalBytes <= 0 {
		size, err := probeSize(ctx, c.client, url)
		if err != nil {
			if ctx.Err() != nil {
				if t.stopReason() == stopPaused {
					c.setStatus(rec, model.StatusPaused)
				}
				return
			}
			log.Warn().Err(err).Str("kind", string(model.FailureSizeUnknown)).Msg("Size probe failed, using single-segment plan")
		} else {
			c.mu.Lock()
			rec.TotalBytes = size
			if err := c.db.PutDownload(rec); err != nil {
				log.Error().Err(err).Msg("Failed to persist total size")
			}
			c.mu.Unlock()
		}
	}

	segs, err := c.prepareSegments(rec, log)
	if err != nil {
		c.fail(rec, model.FailureSegmentTransfer, err)
		return
	}

	jobCh := make(chan *model.SegmentRecord, len(segs))
	pending := 0
	for i := range segs {
		if !segs[i].Complete {
			jobCh <- &segs[i]
			pending++
		}
	}
	close(jobCh)

	var segFailure error
	if pending > 0 {
		workers := c.cfg.SegmentWorkers
		if workers > pending {
			workers = pending
		}
		var failMu sync.Mutex
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for seg := range jobCh {
					if ctx.Err() != nil {
						continue
					}
					if err := c.downloadSegment(ctx, rec, seg, url); err != nil {
						if ctx.Err() != nil {
							continue
						}
						failMu.Lock()
						if segFailure == nil {
							segFailure = fmt.Errorf("segment %d: %w", seg.Index, err)
						}
						failMu.Unlock()
						// One exhausted segment fails the video; stop the rest.
						t.cancel()
					}
				}
			}()
		}
		wg.Wait()
	}

	switch {
	case t.stopReason() == stopRemoved:
		// Cancel/Forget owns the record from here.
		return
	case segFailure != nil:
		c.fail(rec, model.FailureSegmentTransfer, segFailure)
	case ctx.Err() != nil:
		c.setStatus(rec, model.StatusPaused)
	default:
		c.finishMerge(rec, segs, log)
	}
}

// prepareSegments loads persisted segment records and validates them
// against a freshly computed plan, restarting from zero when the plan no
// longer matches.
func (c *Coordinator) prepareSegments(rec *model.TrackedDownload, log zerolog.Logger) ([]model.SegmentRecord, error) {
	plan := PlanSegments(rec.VideoID, rec.TotalBytes, c.cfg.ChunkSize)
	segs, err := c.db.GetSegments(rec.VideoID)
	if err != nil {
		return nil, err
	}
	if len(segs) > 0 && PlanMatches(segs, plan) {
		return segs, nil
	}
	// An open-ended plan accepts any single stored segment from offset
	// zero; its recorded end came from a previous EOF.
	if len(plan) == 1 && plan[0].End < 0 && len(segs) == 1 && segs[0].Start == 0 {
		return segs, nil
	}
	if len(segs) > 0 {
		log.Info().Str("kind", string(model.FailureSizeMismatch)).Int("had", len(segs)).Int("want", len(plan)).Msg("Stored segment plan invalid, restarting from zero")
		if err := c.db.DeleteSegments(rec.VideoID); err != nil {
			return nil, err
		}
		if err := os.RemoveAll(filepath.Join(c.cfg.SegmentDir, rec.VideoID)); err != nil {
			log.Warn().Err(err).Msg("Failed to remove stale segment files")
		}
	}
	if err := c.db.PutSegments(plan); err != nil {
		return nil, err
	}
	c.mu.Lock()
	rec.DownloadedBytes = 0
	err = c.db.PutDownload(rec)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// downloadSegment fetches one segment with bounded retries and linear
// backoff. A retried segment resumes from its part-file, never from zero.
func (c *Coordinator) downloadSegment(ctx context.Context, rec *model.TrackedDownload, seg *model.SegmentRecord, url string) error {
	log := c.log.With().Str("videoId", rec.VideoID).Int("segment", seg.Index).Logger()
	onDelta := func(delta int64) {
		c.applyProgress(rec, seg, delta)
	}
	var lastErr error
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			log.Debug().Int("attempt", attempt+1).Msg("Retrying segment")
			select {
			case <-time.After(time.Duration(attempt) * c.cfg.RetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := fetchSegment(ctx, c.client, url, c.cfg.SegmentDir, seg, onDelta)
		if err == nil {
			if err := c.persistSegment(rec, seg); err != nil {
				return err
			}
			log.Debug().Int64("bytes", seg.BytesReceived).Msg("Segment complete")
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		lastErr = err
		log.Error().Err(err).Int("attempt", attempt+1).Msg("Segment transfer failed")
	}
	return lastErr
}

// applyProgress is the single entry point for byte-count changes. It
// persists segment and record state, then publishes a progress event.
// Emitted aggregates never regress within an attempt.
func (c *Coordinator) applyProgress(rec *model.TrackedDownload, seg *model.SegmentRecord, delta int64) {
	c.mu.Lock()
	seg.BytesReceived += delta
	if seg.BytesReceived < 0 {
		seg.BytesReceived = 0
	}
	rec.DownloadedBytes += delta
	if rec.DownloadedBytes < 0 {
		rec.DownloadedBytes = 0
	}
	if err := c.db.PutSegment(seg); err != nil {
		c.log.Error().Err(err).Str("videoId", rec.VideoID).Msg("Failed to persist segment progress")
	}
	if err := c.db.PutDownload(rec); err != nil {
		c.log.Error().Err(err).Str("videoId", rec.VideoID).Msg("Failed to persist download progress")
	}
	downloaded, total := rec.DownloadedBytes, rec.TotalBytes
	emit := downloaded >= c.lastEmit[rec.VideoID]
	if emit {
		c.lastEmit[rec.VideoID] = downloaded
	}
	// Published under the lock: two workers racing here must deliver
	// their aggregates in watermark order. Publish never blocks.
	if emit && delta > 0 {
		c.bus.Publish(model.Event{
			Type:            model.EventProgress,
			VideoID:         rec.VideoID,
			DownloadedBytes: downloaded,
			TotalBytes:      total,
		})
	}
	c.mu.Unlock()
}

func (c *Coordinator) persistSegment(rec *model.TrackedDownload, seg *model.SegmentRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.db.PutSegment(seg); err != nil {
		return err
	}
	return c.db.PutDownload(rec)
}

func (c *Coordinator) setStatus(rec *model.TrackedDownload, status model.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec.Status = status
	rec.ErrorMessage = ""
	if err := c.db.PutDownload(rec); err != nil {
		c.log.Error().Err(err).Str("videoId", rec.VideoID).Msg("Failed to persist status")
	}
}

func (c *Coordinator) fail(rec *model.TrackedDownload, kind model.FailureKind, cause error) {
	c.mu.Lock()
	rec.Status = model.StatusError
	rec.ErrorMessage = cause.Error()
	if err := c.db.PutDownload(rec); err != nil {
		c.log.Error().Err(err).Str("videoId", rec.VideoID).Msg("Failed to persist error state")
	}
	downloaded, total := rec.DownloadedBytes, rec.TotalBytes
	c.mu.Unlock()
	c.log.Error().Err(cause).Str("videoId", rec.VideoID).Str("kind", string(kind)).Msg("Download failed")
	c.bus.Publish(model.Event{
		Type:            model.EventFailed,
		VideoID:         rec.VideoID,
		DownloadedBytes: downloaded,
		TotalBytes:      total,
		Kind:            kind,
		Message:         cause.Error(),
	})
}

// finishMerge concatenates completed segments into the final output file.
// Only a verified merge transitions the record to Completed; on failure
// the part-files stay so the merge can be retried without refetching.
func (c *Coordinator) finishMerge(rec *model.TrackedDownload, segs []model.SegmentRecord, log zerolog.Logger) {
	out := c.outputPath(rec)
	if err := mergeSegments(c.cfg.SegmentDir, rec.VideoID, segs, out, rec.TotalBytes); err != nil {
		c.fail(rec, model.FailureMerge, fmt.Errorf("merge: %w", err))
		return
	}
	c.mu.Lock()
	rec.Status = model.StatusCompleted
	if rec.TotalBytes <= 0 {
		rec.TotalBytes = rec.DownloadedBytes
	}
	rec.OutputPath = out
	rec.ErrorMessage = ""
	var persistErr error
	if err := c.db.PutSegments(segs); err != nil {
		persistErr = err
	}
	if err := c.db.PutDownload(rec); err != nil && persistErr == nil {
		persistErr = err
	}
	downloaded, total := rec.DownloadedBytes, rec.TotalBytes
	c.mu.Unlock()
	if persistErr != nil {
		c.fail(rec, model.FailureMerge, persistErr)
		return
	}
	if err := os.RemoveAll(filepath.Join(c.cfg.SegmentDir, rec.VideoID)); err != nil {
		log.Warn().Err(err).Msg("Failed to remove part files after merge")
	}
	log.Info().Int64("bytes", downloaded).Str("output", out).Msg("Download complete")
	c.bus.Publish(model.Event{
		Type:            model.EventCompleted,
		VideoID:         rec.VideoID,
		DownloadedBytes: downloaded,
		TotalBytes:      total,
		OutputPath:      out,
	})
}

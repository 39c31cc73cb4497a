package catalog

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstash/clipstash/internal/downloader"
	"github.com/clipstash/clipstash/internal/model"
	"github.com/clipstash/clipstash/internal/store"
)

// fakeEngine records which coordinator operations the reconciler invokes
// and mirrors Forget's record cleanup so removal can be asserted against
// the store.
type fakeEngine struct {
	db *store.Store

	mu     sync.Mutex
	calls  []string
	active map[string]bool
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Start(videoID string) error {
	f.record("start:" + videoID)
	return nil
}

func (f *fakeEngine) StopWait(videoID string) {
	f.record("stopwait:" + videoID)
}

func (f *fakeEngine) Forget(videoID string) error {
	f.record("forget:" + videoID)
	if err := f.db.DeleteSegments(videoID); err != nil {
		return err
	}
	return f.db.DeleteDownload(videoID)
}

func (f *fakeEngine) UpdateVideo(videoID string, v model.RemoteVideo) error {
	f.record("update:" + videoID)
	rec, err := f.db.GetDownload(videoID)
	if err != nil {
		return err
	}
	if rec == nil {
		return errors.New("unknown video id")
	}
	rec.Video = v
	if rec.Status == model.StatusNotStarted && v.SizeBytes > 0 {
		rec.TotalBytes = v.SizeBytes
	}
	return f.db.PutDownload(rec)
}

func (f *fakeEngine) InvalidatePlan(videoID string) error {
	f.record("invalidate:" + videoID)
	return f.db.DeleteSegments(videoID)
}

func (f *fakeEngine) Active(videoID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[videoID]
}

type reconcilerFixture struct {
	db     *store.Store
	engine *fakeEngine
	rec    *Reconciler
	events <-chan model.Event
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "clipstash.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := downloader.NewBus()
	events, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)
	engine := &fakeEngine{db: db, active: make(map[string]bool)}
	return &reconcilerFixture{
		db:     db,
		engine: engine,
		rec:    NewReconciler(db, engine, bus),
		events: events,
	}
}

// drainEvents collects everything already published. Reconcile publishes
// synchronously, so nothing is in flight once it returns.
func (f *reconcilerFixture) drainEvents() []model.Event {
	var out []model.Event
	for {
		select {
		case ev := <-f.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (f *reconcilerFixture) track(t *testing.T, rec model.TrackedDownload) {
	t.Helper()
	require.NoError(t, f.db.PutDownload(&rec))
}

func remote(id, locator string, size int64, optimizing bool) model.RemoteVideo {
	return model.RemoteVideo{ID: id, SourceLocator: locator, SizeBytes: size, IsOptimizing: optimizing}
}

func TestReconcileRemovesVideosMissingFromCatalog(t *testing.T) {
	f := newReconcilerFixture(t)
	v1 := remote("v1", "clip1.mp4", 1000, false)
	v2 := remote("v2", "clip2.mp4", 2000, false)
	f.track(t, model.TrackedDownload{VideoID: "v1", Status: model.StatusCompleted, DownloadedBytes: 1000, TotalBytes: 1000, Video: v1})
	f.track(t, model.TrackedDownload{VideoID: "v2", Status: model.StatusPaused, DownloadedBytes: 500, TotalBytes: 2000, Video: v2})
	require.NoError(t, f.db.PutSegment(&model.SegmentRecord{VideoID: "v2", Index: 0, Start: 0, End: 1999, BytesReceived: 500}))
	require.NoError(t, f.db.PutBookmark(&model.Bookmark{VideoID: "v2", PositionS: 33}))

	require.NoError(t, f.rec.Reconcile([]model.RemoteVideo{v1}))

	gone, err := f.db.GetDownload("v2")
	require.NoError(t, err)
	assert.Nil(t, gone)
	segs, err := f.db.GetSegments("v2")
	require.NoError(t, err)
	assert.Empty(t, segs)
	bm, err := f.db.GetBookmark("v2")
	require.NoError(t, err)
	assert.Nil(t, bm)

	kept, err := f.db.GetDownload("v1")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, model.StatusCompleted, kept.Status)

	events := f.drainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventRemoved, events[0].Type)
	assert.Equal(t, "v2", events[0].VideoID)
}

func TestReconcileTracksNewVideosWithoutStarting(t *testing.T) {
	f := newReconcilerFixture(t)
	fresh := []model.RemoteVideo{
		remote("v1", "clip1.mp4", 1000, false),
		remote("v2", "clip2.mp4", 0, true),
	}
	require.NoError(t, f.rec.Reconcile(fresh))

	for _, id := range []string{"v1", "v2"} {
		rec, err := f.db.GetDownload(id)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, model.StatusNotStarted, rec.Status)
	}
	rec, _ := f.db.GetDownload("v2")
	assert.True(t, rec.Video.IsOptimizing)

	assert.Empty(t, f.engine.callLog(), "discovery must never auto-start downloads")
	assert.Empty(t, f.drainEvents())
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newReconcilerFixture(t)
	fresh := []model.RemoteVideo{
		remote("v1", "clip1.mp4", 1000, false),
		remote("v2", "clip2.mp4", 2000, true),
	}
	require.NoError(t, f.rec.Reconcile(fresh))
	f.drainEvents()

	require.NoError(t, f.rec.Reconcile(fresh))
	assert.Empty(t, f.engine.callLog())
	assert.Empty(t, f.drainEvents())
}

func TestReconcileLocatorChangeResumesInterruptedDownload(t *testing.T) {
	f := newReconcilerFixture(t)
	f.track(t, model.TrackedDownload{
		VideoID:         "v1",
		Status:          model.StatusError,
		DownloadedBytes: 500,
		TotalBytes:      1000,
		Video:           remote("v1", "clip1.mp4", 1000, false),
	})

	renamed := remote("v1", "clip1-v2.mp4", 1000, false)
	require.NoError(t, f.rec.Reconcile([]model.RemoteVideo{renamed}))

	rec, err := f.db.GetDownload("v1")
	require.NoError(t, err)
	assert.Equal(t, "clip1-v2.mp4", rec.Video.SourceLocator)
	assert.Equal(t, int64(500), rec.DownloadedBytes, "unchanged size keeps partial progress")

	calls := f.engine.callLog()
	assert.Contains(t, calls, "start:v1")
	assert.NotContains(t, calls, "invalidate:v1", "same size must keep the segment plan")
}

func TestReconcileLocatorChangeOnPausedVideoDoesNotResume(t *testing.T) {
	f := newReconcilerFixture(t)
	f.track(t, model.TrackedDownload{
		VideoID:         "v1",
		Status:          model.StatusPaused,
		DownloadedBytes: 500,
		TotalBytes:      1000,
		Video:           remote("v1", "clip1.mp4", 1000, false),
	})

	require.NoError(t, f.rec.Reconcile([]model.RemoteVideo{remote("v1", "clip1-v2.mp4", 1000, false)}))

	rec, err := f.db.GetDownload("v1")
	require.NoError(t, err)
	assert.Equal(t, "clip1-v2.mp4", rec.Video.SourceLocator)
	assert.NotContains(t, f.engine.callLog(), "start:v1", "paused stays paused")
}

func TestReconcileMetadataChangeWhileActiveGoesThroughEngine(t *testing.T) {
	f := newReconcilerFixture(t)
	f.track(t, model.TrackedDownload{
		VideoID:         "v1",
		Status:          model.StatusDownloading,
		DownloadedBytes: 500,
		TotalBytes:      1000,
		Video:           remote("v1", "clip1.mp4", 1000, false),
	})
	f.engine.active["v1"] = true

	retitled := remote("v1", "clip1.mp4", 1000, false)
	retitled.Title = "New title"
	require.NoError(t, f.rec.Reconcile([]model.RemoteVideo{retitled}))

	calls := f.engine.callLog()
	assert.Contains(t, calls, "update:v1", "metadata writes go through the engine, not past it")
	assert.NotContains(t, calls, "stopwait:v1", "a title change must not interrupt the transfer")

	rec, err := f.db.GetDownload("v1")
	require.NoError(t, err)
	assert.Equal(t, "New title", rec.Video.Title)
	assert.Equal(t, int64(500), rec.DownloadedBytes)
}

func TestReconcileSizeChangeInvalidatesPlan(t *testing.T) {
	f := newReconcilerFixture(t)
	f.track(t, model.TrackedDownload{
		VideoID:         "v1",
		Status:          model.StatusDownloading,
		DownloadedBytes: 500,
		TotalBytes:      1000,
		Video:           remote("v1", "clip1.mp4", 1000, false),
	})
	f.engine.active["v1"] = true

	reencoded := remote("v1", "clip1-hq.mp4", 4000, false)
	require.NoError(t, f.rec.Reconcile([]model.RemoteVideo{reencoded}))

	calls := f.engine.callLog()
	assert.Contains(t, calls, "stopwait:v1")
	assert.Contains(t, calls, "invalidate:v1")
	assert.Contains(t, calls, "start:v1")
}

func TestReconcileOptimizingFinishEmitsVideoReadyOnce(t *testing.T) {
	f := newReconcilerFixture(t)
	f.track(t, model.TrackedDownload{
		VideoID: "v1",
		Status:  model.StatusNotStarted,
		Video:   remote("v1", "clip1.mp4", 0, true),
	})

	ready := remote("v1", "clip1.mp4", 3000, false)
	require.NoError(t, f.rec.Reconcile([]model.RemoteVideo{ready}))

	events := f.drainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventVideoReady, events[0].Type)
	assert.Equal(t, "v1", events[0].VideoID)
	assert.Equal(t, int64(3000), events[0].TotalBytes)

	rec, err := f.db.GetDownload("v1")
	require.NoError(t, err)
	assert.False(t, rec.Video.IsOptimizing)
	assert.Equal(t, int64(3000), rec.TotalBytes)
	assert.NotContains(t, f.engine.callLog(), "start:v1", "becoming ready must not auto-start")

	require.NoError(t, f.rec.Reconcile([]model.RemoteVideo{ready}))
	assert.Empty(t, f.drainEvents(), "ready event fires only on the transition")
}

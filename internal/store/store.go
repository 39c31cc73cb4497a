package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/clipstash/clipstash/internal/model"
	"github.com/clipstash/clipstash/utils"
)

const (
	downloadsBucket = "downloads"
	segmentsBucket  = "segments"
	bookmarksBucket = "bookmarks"
)

// Store is the durable record of tracked downloads, segment resume points
// and playback bookmarks. All writes commit synchronously so a process
// kill leaves on-disk state consistent with the last published event.
type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	log := utils.GetLogger("store")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("error creating data directory: %w", err)
	}
	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("error opening database %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{downloadsBucket, segmentsBucket, bookmarksBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating buckets: %w", err)
	}
	log.Debug().Str("path", path).Msg("Database opened")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// GetDownload returns the tracked record for a video id, or nil when the
// id is unknown.
func (s *Store) GetDownload(videoID string) (*model.TrackedDownload, error) {
	var rec *model.TrackedDownload
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(downloadsBucket)).Get([]byte(videoID))
		if raw == nil {
			return nil
		}
		rec = &model.TrackedDownload{}
		return json.Unmarshal(raw, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) PutDownload(rec *model.TrackedDownload) error {
	rec.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(downloadsBucket)).Put([]byte(rec.VideoID), raw)
	})
}

func (s *Store) DeleteDownload(videoID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(downloadsBucket)).Delete([]byte(videoID))
	})
}

func (s *Store) ListDownloads() ([]model.TrackedDownload, error) {
	var records []model.TrackedDownload
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(downloadsBucket)).ForEach(func(k, v []byte) error {
			var rec model.TrackedDownload
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt download record %s: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].VideoID < records[j].VideoID })
	return records, nil
}

func segmentKey(videoID string, index int) []byte {
	return fmt.Appendf(nil, "%s/%06d", videoID, index)
}

func (s *Store) PutSegment(seg *model.SegmentRecord) error {
	raw, err := json.Marshal(seg)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(segmentsBucket)).Put(segmentKey(seg.VideoID, seg.Index), raw)
	})
}

// PutSegments writes a full segment set in one transaction, used when a
// fresh plan replaces the previous one.
func (s *Store) PutSegments(segs []model.SegmentRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(segmentsBucket))
		for i := range segs {
			raw, err := json.Marshal(&segs[i])
			if err != nil {
				return err
			}
			if err := bucket.Put(segmentKey(segs[i].VideoID, segs[i].Index), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSegments returns a video's segment records ordered by index.
func (s *Store) GetSegments(videoID string) ([]model.SegmentRecord, error) {
	var segs []model.SegmentRecord
	prefix := []byte(videoID + "/")
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(segmentsBucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var seg model.SegmentRecord
			if err := json.Unmarshal(v, &seg); err != nil {
				return fmt.Errorf("corrupt segment record %s: %w", k, err)
			}
			segs = append(segs, seg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].Index < segs[j].Index })
	return segs, nil
}

func (s *Store) DeleteSegments(videoID string) error {
	prefix := []byte(videoID + "/")
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(segmentsBucket))
		c := bucket.Cursor()
		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) PutBookmark(bm *model.Bookmark) error {
	bm.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(bm)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bookmarksBucket)).Put([]byte(bm.VideoID), raw)
	})
}

func (s *Store) GetBookmark(videoID string) (*model.Bookmark, error) {
	var bm *model.Bookmark
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bookmarksBucket)).Get([]byte(videoID))
		if raw == nil {
			return nil
		}
		bm = &model.Bookmark{}
		return json.Unmarshal(raw, bm)
	})
	if err != nil {
		return nil, err
	}
	return bm, nil
}

func (s *Store) DeleteBookmark(videoID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bookmarksBucket)).Delete([]byte(videoID))
	})
}

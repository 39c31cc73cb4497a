package downloader

import "github.com/clipstash/clipstash/internal/model"

// DefaultChunkSize splits a clip into 4 MiB segments unless configured
// otherwise.
const DefaultChunkSize int64 = 4 * 1024 * 1024

// PlanSegments computes the fixed ordered segment plan for a video of
// totalSize bytes. The plan covers [0, totalSize) with contiguous,
// non-overlapping ranges of chunkSize bytes, the last one possibly
// shorter. Deterministic for the same inputs so a resumed download can
// match persisted records against a recomputed plan by index.
//
// An unknown size (totalSize <= 0) falls back to a single open-ended
// segment; its end is fixed once the transfer reaches EOF.
func PlanSegments(videoID string, totalSize, chunkSize int64) []model.SegmentRecord {
	if totalSize <= 0 {
		return []model.SegmentRecord{{VideoID: videoID, Index: 0, Start: 0, End: -1}}
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	segs := make([]model.SegmentRecord, 0, int((totalSize+chunkSize-1)/chunkSize))
	for start := int64(0); start < totalSize; start += chunkSize {
		end := start + chunkSize - 1
		if end > totalSize-1 {
			end = totalSize - 1
		}
		segs = append(segs, model.SegmentRecord{
			VideoID: videoID,
			Index:   len(segs),
			Start:   start,
			End:     end,
		})
	}
	return segs
}

// PlanMatches reports whether previously persisted segment records line up
// with a freshly computed plan. Any difference in count or ranges means the
// remote resource changed and partial data is no longer valid.
func PlanMatches(have, plan []model.SegmentRecord) bool {
	if len(have) != len(plan) {
		return false
	}
	for i := range plan {
		if have[i].Index != plan[i].Index || have[i].Start != plan[i].Start || have[i].End != plan[i].End {
			return false
		}
	}
	return true
}

package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstash/clipstash/internal/model"
)

func TestPlanSegmentsCoversRangeExactly(t *testing.T) {
	tests := []struct {
		name      string
		totalSize int64
		chunkSize int64
		wantCount int
	}{
		{"even split", 3_000_000, 1_000_000, 3},
		{"short tail", 2_500_000, 1_000_000, 3},
		{"single chunk", 100, 1_000_000, 1},
		{"exact chunk", 1_000_000, 1_000_000, 1},
		{"one byte", 1, 4096, 1},
		{"chunk plus one", 4097, 4096, 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			segs := PlanSegments("vid", test.totalSize, test.chunkSize)
			require.Len(t, segs, test.wantCount)

			var covered int64
			for i, seg := range segs {
				assert.Equal(t, i, seg.Index)
				assert.Equal(t, "vid", seg.VideoID)
				if i == 0 {
					assert.Equal(t, int64(0), seg.Start)
				} else {
					// Contiguous and non-overlapping.
					assert.Equal(t, segs[i-1].End+1, seg.Start)
				}
				require.GreaterOrEqual(t, seg.End, seg.Start)
				covered += seg.Size()
			}
			assert.Equal(t, test.totalSize, covered)
			assert.Equal(t, test.totalSize-1, segs[len(segs)-1].End)
		})
	}
}

func TestPlanSegmentsUnknownSizeFallsBackToSingleSegment(t *testing.T) {
	for _, totalSize := range []int64{0, -1} {
		segs := PlanSegments("vid", totalSize, 1_000_000)
		require.Len(t, segs, 1)
		assert.Equal(t, int64(0), segs[0].Start)
		assert.Equal(t, int64(-1), segs[0].End)
		assert.Equal(t, int64(-1), segs[0].Size())
	}
}

func TestPlanSegmentsDeterministic(t *testing.T) {
	a := PlanSegments("vid", 10_000_000, 3_000_000)
	b := PlanSegments("vid", 10_000_000, 3_000_000)
	assert.Equal(t, a, b)
}

func TestPlanMatches(t *testing.T) {
	plan := PlanSegments("vid", 3_000_000, 1_000_000)

	stored := make([]model.SegmentRecord, len(plan))
	copy(stored, plan)
	stored[1].BytesReceived = 12345
	stored[2].Complete = true
	assert.True(t, PlanMatches(stored, plan), "progress fields must not affect plan identity")

	shorter := PlanSegments("vid", 2_000_000, 1_000_000)
	assert.False(t, PlanMatches(shorter, plan))

	shifted := make([]model.SegmentRecord, len(plan))
	copy(shifted, plan)
	shifted[1].Start++
	assert.False(t, PlanMatches(shifted, plan))
}

package downloader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/clipstash/clipstash/internal/model"
)

// mergeSegments concatenates a video's part-files in index order into the
// final output file, verifying byte counts along the way. Part-files are
// left in place; the caller removes them only after a successful merge.
func mergeSegments(segRoot, videoID string, segs []model.SegmentRecord, outputPath string, totalBytes int64) error {
	for i := range segs {
		if !segs[i].Complete {
			return fmt.Errorf("segment %d is not complete", segs[i].Index)
		}
	}
	if len(segs) == 0 {
		return errors.New("no segments to merge")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	destFile, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer destFile.Close()

	var totalWritten int64
	for i := range segs {
		partPath := segmentPath(segRoot, videoID, segs[i].Index)
		partFile, err := os.Open(partPath)
		if err != nil {
			return fmt.Errorf("error opening part file %s: %w", partPath, err)
		}
		fileInfo, err := partFile.Stat()
		if err != nil {
			partFile.Close()
			return fmt.Errorf("error getting part file info: %w", err)
		}
		partSize := fileInfo.Size()
		if want := segs[i].Size(); want > 0 && partSize != want {
			partFile.Close()
			return fmt.Errorf("part %d is %d bytes, expected %d", segs[i].Index, partSize, want)
		}
		written, err := io.Copy(destFile, partFile)
		partFile.Close()
		if err != nil {
			return fmt.Errorf("error copying part data: %w", err)
		}
		if written != partSize {
			return fmt.Errorf("wrote %d bytes but part size is %d", written, partSize)
		}
		totalWritten += written
	}
	if totalBytes > 0 && totalWritten != totalBytes {
		return fmt.Errorf("total written bytes (%d) doesn't match expected size (%d)", totalWritten, totalBytes)
	}
	return destFile.Sync()
}

package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/clipstash/clipstash/internal/model"
	"github.com/clipstash/clipstash/utils"
)

const fetchBufferSize = 256 * 1024

var (
	ErrSizeUnknown         = errors.New("server did not report a usable size")
	ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")
)

// probeSize issues a HEAD request to learn the total byte size of a
// resource. Callers fall back to a single open-ended segment when it
// fails.
func probeSize(ctx context.Context, client utils.HTTPDoer, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSizeUnknown, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: unexpected status %d", ErrSizeUnknown, resp.StatusCode)
	}
	contentLength := resp.Header.Get("Content-Length")
	if contentLength == "" {
		return 0, ErrSizeUnknown
	}
	size, err := strconv.ParseInt(contentLength, 10, 64)
	if err != nil || size <= 0 {
		return 0, ErrSizeUnknown
	}
	return size, nil
}

func segmentPath(segRoot, videoID string, index int) string {
	return filepath.Join(segRoot, videoID, fmt.Sprintf("%s.part%d", videoID, index))
}

// fetchSegment transfers one byte range into its part-file, resuming from
// whatever offset the file already holds rather than starting over. Byte
// deltas are reported through onDelta; the record is only mutated through
// that callback so the coordinator stays the single writer. Retrying is
// the caller's responsibility.
func fetchSegment(ctx context.Context, client utils.HTTPDoer, url, segRoot string, seg *model.SegmentRecord, onDelta func(int64)) error {
	path := segmentPath(segRoot, seg.VideoID, seg.Index)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating segment directory: %w", err)
	}
	expected := seg.Size()
	resumeOffset := int64(0)
	if fileInfo, err := os.Stat(path); err == nil {
		resumeOffset = fileInfo.Size()
		if expected > 0 && resumeOffset == expected {
			// Already fully on disk, only the record lagged behind.
			if d := resumeOffset - seg.BytesReceived; d != 0 {
				onDelta(d)
			}
			seg.Complete = true
			return nil
		}
		if expected > 0 && resumeOffset > expected {
			// Oversized part-file cannot be trusted.
			os.Remove(path)
			if seg.BytesReceived > 0 {
				onDelta(-seg.BytesReceived)
			}
			resumeOffset = 0
		}
	}
	if d := resumeOffset - seg.BytesReceived; d != 0 {
		// Record and file disagree (partial write before a crash); the
		// file is authoritative.
		onDelta(d)
	}

	flag := os.O_WRONLY | os.O_CREATE
	if resumeOffset > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	partFile, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return fmt.Errorf("error opening part file: %w", err)
	}
	defer partFile.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	startByte := seg.Start + resumeOffset
	switch {
	case seg.End >= 0:
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", startByte, seg.End))
	case startByte > 0:
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		if startByte > 0 {
			return fmt.Errorf("server ignored range request for offset %d", startByte)
		}
	case http.StatusRequestedRangeNotSatisfiable:
		return ErrRangeNotSatisfiable
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	buffer := make([]byte, fetchBufferSize)
	var received int64
	for {
		// Cooperative cancellation checkpoint between network reads.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := partFile.Write(buffer[:bytesRead]); writeErr != nil {
				return writeErr
			}
			received += int64(bytesRead)
			onDelta(int64(bytesRead))
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return readErr
		}
	}
	if expected > 0 && resumeOffset+received != expected {
		return fmt.Errorf("segment size mismatch: expected %d bytes, have %d", expected, resumeOffset+received)
	}
	if seg.End < 0 {
		seg.End = seg.Start + resumeOffset + received - 1
	}
	seg.Complete = true
	return nil
}

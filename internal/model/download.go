package model

import "time"

// TrackedDownload is the client-owned record of one video's download.
// Mutated only by the download coordinator and the catalog reconciler;
// persisted after every state transition.
type TrackedDownload struct {
	VideoID               string      `json:"videoId"`
	Status                Status      `json:"status"`
	DownloadedBytes       int64       `json:"downloadedBytes"`
	TotalBytes            int64       `json:"totalBytes"` // 0 while unknown
	ErrorMessage          string      `json:"errorMessage,omitempty"`
	SourceLocatorSnapshot string      `json:"sourceLocatorSnapshot,omitempty"`
	Video                 RemoteVideo `json:"video"`
	OutputPath            string      `json:"outputPath,omitempty"`
	UpdatedAt             time.Time   `json:"updatedAt"`
}

// Fraction returns aggregate progress in [0,1], or 0 while the total is
// unknown.
func (t *TrackedDownload) Fraction() float64 {
	if t.TotalBytes <= 0 {
		return 0
	}
	f := float64(t.DownloadedBytes) / float64(t.TotalBytes)
	if f > 1 {
		f = 1
	}
	return f
}

// SegmentRecord is the durable resume point for one byte range of a video.
// The range is [Start, End] inclusive; End < 0 marks an open-ended segment
// used when the total size is unknown.
type SegmentRecord struct {
	VideoID       string `json:"videoId"`
	Index         int    `json:"index"`
	Start         int64  `json:"start"`
	End           int64  `json:"end"`
	BytesReceived int64  `json:"bytesReceived"`
	Complete      bool   `json:"complete"`
}

// Size returns the byte length of the segment, or -1 if open-ended.
func (s *SegmentRecord) Size() int64 {
	if s.End < 0 {
		return -1
	}
	return s.End - s.Start + 1
}

// Bookmark is a playback position for a downloaded video, owned by the
// player collaborator and cleared when the video leaves the catalog.
type Bookmark struct {
	VideoID   string    `json:"videoId"`
	PositionS float64   `json:"positionSeconds"`
	UpdatedAt time.Time `json:"updatedAt"`
}

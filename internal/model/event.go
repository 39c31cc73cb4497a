package model

// EventType identifies what a bus event reports.
type EventType string

const (
	// EventProgress carries aggregate downloaded bytes for a video
	EventProgress EventType = "progress"

	// EventCompleted is terminal for a download attempt; OutputPath is set
	EventCompleted EventType = "completed"

	// EventFailed is terminal for a download attempt; Kind and Message are set
	EventFailed EventType = "failed"

	// EventRemoved means a video left the catalog and local data was dropped
	EventRemoved EventType = "removed"

	// EventVideoReady means a video finished optimizing and can be fetched
	EventVideoReady EventType = "video_ready"

	// EventOffline means a catalog fetch failed and cached state is in use
	EventOffline EventType = "offline"
)

// FailureKind classifies a failed event per the engine's error taxonomy.
type FailureKind string

const (
	FailureSizeUnknown        FailureKind = "size_unknown"
	FailureSegmentTransfer    FailureKind = "segment_transfer_failed"
	FailureMerge              FailureKind = "merge_failed"
	FailureCatalogUnreachable FailureKind = "catalog_unreachable"
	FailureSizeMismatch       FailureKind = "size_mismatch"
)

// Event is the single canonical notification type published by the engine.
// Consumers subscribe to the bus rather than being wired in as delegates.
type Event struct {
	Type            EventType
	VideoID         string
	DownloadedBytes int64
	TotalBytes      int64
	OutputPath      string
	Kind            FailureKind
	Message         string
}

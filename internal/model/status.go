package model

// Status represents the download state of a tracked video.
type Status string

const (
	// StatusNotStarted means the video is known but no bytes were fetched
	StatusNotStarted Status = "NotStarted"

	// StatusDownloading means a download task is (or was) actively fetching
	StatusDownloading Status = "Downloading"

	// StatusPaused means the download was stopped with partial data kept
	StatusPaused Status = "Paused"

	// StatusCompleted means all segments were fetched and merged
	StatusCompleted Status = "Completed"

	// StatusError means the download failed and awaits a manual retry
	StatusError Status = "Error"
)

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further progress events follow without a
// new start call.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanStart reports whether a start call is meaningful in this state.
func (s Status) CanStart() bool {
	return s == StatusNotStarted || s == StatusPaused || s == StatusError
}

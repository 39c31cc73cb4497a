package model

// RemoteVideo is the server-authoritative catalog record for one clip.
// The client never mutates it; a catalog sync replaces the whole value.
type RemoteVideo struct {
	ID            string `json:"id"`
	SourceLocator string `json:"filename"`
	SizeBytes     int64  `json:"size"` // 0 until the server knows it
	IsOptimizing  bool   `json:"optimizing"`
	Title         string `json:"title"`
}

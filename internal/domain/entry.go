package domain

import "time"

// Handle is an opaque, platform-issued reference to an already-uploaded
// artifact that can be reused for delivery without re-uploading.
type Handle string

// String returns the string representation of the Handle.
func (h Handle) String() string {
	return string(h)
}

// CacheEntry is one persisted row of the variant cache: everything
// needed to re-deliver a previously produced artifact.
type CacheEntry struct {
	ContentKey   ContentKey
	VariantKey   VariantKey
	Kind         MediaKind
	Handle       Handle
	HandleUnique string
	Width        int
	Height       int
	Duration     int // seconds
	Size         int64
	RecipeUsed   string
	Title        string
	SourceURL    string
	CreatedAt    time.Time
}

// Artifact is a locally produced media file awaiting delivery. It only
// exists between a successful acquisition and the end of the delivery
// attempt; the cache stores handles, never local paths.
type Artifact struct {
	Path       string
	Kind       MediaKind
	Size       int64
	RecipeUsed string
	Title      string
	SourceURL  string
	Duration   int
	Width      int
	Height     int
	ThumbPath  string
}

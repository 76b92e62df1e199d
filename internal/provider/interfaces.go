package provider

import "context"

// Format describes one delivery variant offered by the source platform,
// as reported by the metadata tool.
type Format struct {
	ID       string  `json:"format_id"`
	Ext      string  `json:"ext"`
	VCodec   string  `json:"vcodec"`
	ACodec   string  `json:"acodec"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	TBR      float64 `json:"tbr"`
	Filesize int64   `json:"filesize"`

	// FilesizeApprox stands in when the exact size is unknown.
	FilesizeApprox int64 `json:"filesize_approx"`
}

// HasVideo reports whether the format carries a video stream.
func (f Format) HasVideo() bool {
	return f.VCodec != "" && f.VCodec != "none"
}

// HasAudio reports whether the format carries an audio stream.
func (f Format) HasAudio() bool {
	return f.ACodec != "" && f.ACodec != "none"
}

// Size returns the exact size when known, otherwise the approximation.
func (f Format) Size() int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return f.FilesizeApprox
}

// MediaInfo is the metadata tool's view of a URL: identity hints plus
// the available delivery variants.
type MediaInfo struct {
	Extractor    string   `json:"extractor"`
	ExtractorKey string   `json:"extractor_key"`
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Track        string   `json:"track"`
	Artist       string   `json:"artist"`
	Uploader     string   `json:"uploader"`
	Formats      []Format `json:"formats"`
}

// Metadata probes a URL for identity hints and available variants.
// Failures mean absence of metadata, never a fatal condition; callers
// are expected to fall back.
type Metadata interface {
	Probe(ctx context.Context, url string) (*MediaInfo, error)
}

// FetchRequest describes one invocation of the external fetch tool. The
// selector string is opaque to the core and passed through verbatim.
type FetchRequest struct {
	URL          string
	Selector     string
	MergeFormat  string // output container for merged streams, e.g. "mp4"
	ExtractAudio bool
	AudioFormat  string // container when ExtractAudio is set
	UserAgent    string
	Referer      string
	UseCookies   bool
	MaxDownloads int
}

// Fetcher downloads a URL according to a request and returns the local
// file path. Failures are reported as *domain.FetchError with the
// tool's diagnostic output attached.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (string, error)
}

// Dimensions are the best-effort probed properties of a local file.
type Dimensions struct {
	Duration int // seconds
	Width    int
	Height   int
}

// Transcoder wraps the local media toolchain. ProbeDimensions and
// MakeThumbnail are best-effort and never fatal; the conversion calls
// return real errors.
type Transcoder interface {
	// ProbeDimensions inspects a local file. On failure it degrades to
	// a fixed default instead of returning an error.
	ProbeDimensions(ctx context.Context, path string) Dimensions

	// MakeThumbnail produces a small preview image next to the input
	// file. Returns "" when no thumbnail could be produced.
	MakeThumbnail(ctx context.Context, path string) string

	// ToSilentAnimation re-encodes the input as a silent mp4, stepping
	// down through a fixed quality ladder until the output fits
	// targetSize (the last attempt is returned even when it does not).
	ToSilentAnimation(ctx context.Context, path string, targetSize int64) (string, error)

	// ToGIF converts the input to an animated GIF, stepping down
	// through a fixed ladder until the output fits sizeLimit.
	ToGIF(ctx context.Context, path string, sizeLimit int64) (string, error)
}

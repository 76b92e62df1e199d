package identity

import (
	"context"
	"log/slog"
	"strings"

	"github.com/iconidentify/mediarelay/internal/domain"
	"github.com/iconidentify/mediarelay/internal/provider"
)

// Resolver turns a user-supplied URL into a canonical content key plus a
// display title. Resolution is total: every failure degrades to a wider
// fallback and the final one (a URL hash) cannot fail, it merely stops
// deduplicating across URL surface forms.
type Resolver struct {
	metadata provider.Metadata
	logger   *slog.Logger
}

// NewResolver creates a content identity resolver.
func NewResolver(metadata provider.Metadata, logger *slog.Logger) *Resolver {
	return &Resolver{
		metadata: metadata,
		logger:   logger,
	}
}

// Resolve returns the canonical ContentKey for a URL and the title when
// one is known. The title is "" when resolution degraded past the
// metadata probe.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (domain.ContentKey, string) {
	normalized := NormalizeURL(rawURL)

	info, err := r.metadata.Probe(ctx, normalized)
	if err == nil {
		extractor := info.ExtractorKey
		if extractor == "" {
			extractor = info.Extractor
		}
		extractor = strings.ToLower(extractor)

		id := info.ID
		// The probe sometimes names the platform but loses the ID;
		// recover it from the URL directly.
		if extractor == "youtube" && id == "" {
			id = ExtractYouTubeID(normalized)
		}

		if id != "" {
			title := info.Title
			if title == "" {
				title = "video"
			}
			return domain.NewContentKey(extractor, id), title
		}
	} else {
		r.logger.Warn("metadata probe failed, falling back to pattern extraction",
			"url", rawURL,
			"error", err,
		)
	}

	if id := ExtractYouTubeID(normalized); id != "" {
		return domain.NewContentKey("youtube", id), ""
	}

	return domain.HashedContentKey(normalized), ""
}

// Classification of a source by its available variants.
type MediaClass string

const (
	ClassVideo   MediaClass = "video"
	ClassAudio   MediaClass = "audio"
	ClassUnknown MediaClass = "unknown"
)

// Classify probes the variant list to decide whether the source is
// video-capable, audio-only, or unknown. A failed probe is unknown.
func (r *Resolver) Classify(ctx context.Context, rawURL string) MediaClass {
	info, err := r.metadata.Probe(ctx, NormalizeURL(rawURL))
	if err != nil {
		return ClassUnknown
	}

	hasVideo := false
	hasAudioOnly := false
	for _, f := range info.Formats {
		if f.HasVideo() {
			hasVideo = true
		} else if f.HasAudio() {
			hasAudioOnly = true
		}
	}

	switch {
	case hasVideo:
		return ClassVideo
	case hasAudioOnly:
		return ClassAudio
	default:
		return ClassUnknown
	}
}

// TrackInfo returns a display title and artist for audio captions,
// preferring track metadata over the generic title and the uploader as
// the artist of last resort.
func (r *Resolver) TrackInfo(ctx context.Context, rawURL, fallbackTitle string) (title, artist string) {
	info, err := r.metadata.Probe(ctx, NormalizeURL(rawURL))
	if err != nil {
		if fallbackTitle != "" {
			return fallbackTitle, ""
		}
		return "Audio", ""
	}

	title = info.Track
	if title == "" {
		title = info.Title
	}
	if title == "" {
		title = fallbackTitle
	}
	if title == "" {
		title = "Audio"
	}

	artist = info.Artist
	if artist == "" {
		artist = info.Uploader
	}
	return title, artist
}

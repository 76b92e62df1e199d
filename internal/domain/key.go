package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// ContentKey is the canonical identity of a piece of media, independent
// of which URL surface form was used to request it. Format:
// "<extractor>:<source-id>" with the extractor always lower-cased.
type ContentKey string

// String returns the string representation of the ContentKey.
func (k ContentKey) String() string {
	return string(k)
}

// Extractor returns the extractor prefix of the key, or "" when the key
// has no ":" separator.
func (k ContentKey) Extractor() string {
	if i := strings.Index(string(k), ":"); i >= 0 {
		return string(k)[:i]
	}
	return ""
}

// SourceID returns the part of the key after the extractor prefix.
func (k ContentKey) SourceID() string {
	if i := strings.Index(string(k), ":"); i >= 0 {
		return string(k)[i+1:]
	}
	return string(k)
}

// Canonical lower-cases the extractor prefix ("YouTube:abc" ->
// "youtube:abc"). Keys without a separator pass through unchanged.
func (k ContentKey) Canonical() ContentKey {
	i := strings.Index(string(k), ":")
	if i < 0 {
		return k
	}
	return ContentKey(strings.ToLower(string(k)[:i]) + string(k)[i:])
}

// NewContentKey builds a canonical key from an extractor name and a
// source ID.
func NewContentKey(extractor, id string) ContentKey {
	if extractor == "" {
		extractor = "unknown"
	}
	return ContentKey(strings.ToLower(extractor) + ":" + id)
}

// HashedContentKey is the last-resort identity for URLs whose extractor
// and ID cannot be determined. It never fails but does not deduplicate
// across URL surface forms.
func HashedContentKey(url string) ContentKey {
	sum := sha1.Sum([]byte(url))
	return ContentKey("urlsha1:" + hex.EncodeToString(sum[:])[:16])
}

// MediaKind classifies the delivered artifact.
type MediaKind string

const (
	KindVideo     MediaKind = "video"
	KindAudio     MediaKind = "audio"
	KindAnimation MediaKind = "animation"
)

// VariantKey identifies a delivery profile for a piece of content. The
// key fully determines the recipe (selector, container, size ceiling)
// used to produce the artifact.
type VariantKey string

const (
	// VariantSmartVideo is the default bounded-quality video profile.
	VariantSmartVideo VariantKey = "video:smart1080"

	// VariantAudioMP3 is the default audio profile.
	VariantAudioMP3 VariantKey = "audio:mp3"

	// VariantAnimation is the silent looping-video profile with a
	// 50 MB output ceiling.
	VariantAnimation VariantKey = "anim:50"

	// VariantGIF is the animated-GIF profile, sharing the animation
	// size ceiling.
	VariantGIF VariantKey = "anim:gif"

	// VariantAuto asks the pipeline to classify the source and pick
	// between the smart video and audio profiles itself.
	VariantAuto VariantKey = "auto"
)

const formatPrefix = "video:fmt="

// String returns the string representation of the VariantKey.
func (v VariantKey) String() string {
	return string(v)
}

// FormatVariant builds the explicit-format variant key for a selector
// string. The selector is opaque to this package and passed through to
// the fetch tool verbatim.
func FormatVariant(selector string) VariantKey {
	return VariantKey(formatPrefix + selector)
}

// FormatSelector returns the explicit selector embedded in the key and
// whether the key is an explicit-format request.
func (v VariantKey) FormatSelector() (string, bool) {
	if strings.HasPrefix(string(v), formatPrefix) {
		return string(v)[len(formatPrefix):], true
	}
	return "", false
}

// AudioFormat returns the audio container embedded in an "audio:<fmt>"
// key and whether the key is an audio request.
func (v VariantKey) AudioFormat() (string, bool) {
	if strings.HasPrefix(string(v), "audio:") {
		return string(v)[len("audio:"):], true
	}
	return "", false
}

// Kind maps the variant to the kind of artifact it produces. VariantAuto
// reports KindVideo; the pipeline refines it after classification.
func (v VariantKey) Kind() MediaKind {
	switch {
	case strings.HasPrefix(string(v), "audio:"):
		return KindAudio
	case strings.HasPrefix(string(v), "anim:"):
		return KindAnimation
	default:
		return KindVideo
	}
}

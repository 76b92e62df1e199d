package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/iconidentify/mediarelay/internal/domain"
	"github.com/iconidentify/mediarelay/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockMetadata implements provider.Metadata for testing.
type mockMetadata struct {
	mu    sync.Mutex
	info  *provider.MediaInfo
	err   error
	calls []string
}

func (m *mockMetadata) Probe(ctx context.Context, url string) (*provider.MediaInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, url)
	if m.err != nil {
		return nil, m.err
	}
	return m.info, nil
}

func TestResolve_FromMetadata(t *testing.T) {
	md := &mockMetadata{info: &provider.MediaInfo{
		ExtractorKey: "Youtube",
		ID:           "xyz98765432",
		Title:        "A Title",
	}}
	r := NewResolver(md, testLogger())

	key, title := r.Resolve(context.Background(), "https://www.youtube.com/watch?v=xyz98765432")

	if key != domain.ContentKey("youtube:xyz98765432") {
		t.Errorf("key = %q, want youtube:xyz98765432", key)
	}
	if title != "A Title" {
		t.Errorf("title = %q, want A Title", title)
	}
}

func TestResolve_SurfaceFormsConverge(t *testing.T) {
	md := &mockMetadata{info: &provider.MediaInfo{
		Extractor: "youtube",
		ID:        "abc12345678",
		Title:     "Same Video",
	}}
	r := NewResolver(md, testLogger())

	k1, _ := r.Resolve(context.Background(), "https://youtu.be/abc12345678")
	k2, _ := r.Resolve(context.Background(), "https://www.youtube.com/watch?v=abc12345678&t=30")

	if k1 != k2 {
		t.Errorf("surface forms diverged: %q vs %q", k1, k2)
	}
	if k1 != domain.ContentKey("youtube:abc12345678") {
		t.Errorf("key = %q, want youtube:abc12345678", k1)
	}

	// Both probes should have seen the canonical watch URL.
	for _, u := range md.calls {
		if u != "https://www.youtube.com/watch?v=abc12345678" {
			t.Errorf("probe saw non-normalized URL %q", u)
		}
	}
}

func TestResolve_RecoversEmptyID(t *testing.T) {
	md := &mockMetadata{info: &provider.MediaInfo{
		ExtractorKey: "Youtube",
		ID:           "",
		Title:        "No ID",
	}}
	r := NewResolver(md, testLogger())

	key, _ := r.Resolve(context.Background(), "https://youtu.be/abc12345678")

	if key != domain.ContentKey("youtube:abc12345678") {
		t.Errorf("key = %q, want recovered youtube:abc12345678", key)
	}
}

func TestResolve_ProbeFailurePatternFallback(t *testing.T) {
	md := &mockMetadata{err: errors.New("tool exploded")}
	r := NewResolver(md, testLogger())

	key, title := r.Resolve(context.Background(), "https://youtu.be/abc12345678")

	if key != domain.ContentKey("youtube:abc12345678") {
		t.Errorf("key = %q, want youtube:abc12345678", key)
	}
	if title != "" {
		t.Errorf("title = %q, want empty after degraded resolution", title)
	}
}

func TestResolve_HashFallbackIsTotal(t *testing.T) {
	md := &mockMetadata{err: errors.New("tool exploded")}
	r := NewResolver(md, testLogger())

	key, title := r.Resolve(context.Background(), "https://example.com/some/opaque/page")

	if !strings.HasPrefix(key.String(), "urlsha1:") {
		t.Errorf("key = %q, want urlsha1: prefix", key)
	}
	if title != "" {
		t.Errorf("title = %q, want empty", title)
	}

	// Same URL must hash to the same key.
	key2, _ := r.Resolve(context.Background(), "https://example.com/some/opaque/page")
	if key != key2 {
		t.Errorf("hash fallback not deterministic: %q vs %q", key, key2)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		formats []provider.Format
		err     error
		want    MediaClass
	}{
		{
			"video capable",
			[]provider.Format{
				{ID: "137", VCodec: "avc1", ACodec: "none"},
				{ID: "140", VCodec: "none", ACodec: "mp4a"},
			},
			nil,
			ClassVideo,
		},
		{
			"audio only",
			[]provider.Format{
				{ID: "140", VCodec: "none", ACodec: "mp4a"},
			},
			nil,
			ClassAudio,
		},
		{
			"no formats",
			nil,
			nil,
			ClassUnknown,
		},
		{
			"probe failure",
			nil,
			errors.New("boom"),
			ClassUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := &mockMetadata{info: &provider.MediaInfo{Formats: tt.formats}, err: tt.err}
			r := NewResolver(md, testLogger())

			if got := r.Classify(context.Background(), "https://example.com/v"); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrackInfo(t *testing.T) {
	md := &mockMetadata{info: &provider.MediaInfo{
		Title:    "Full Upload Title",
		Track:    "Song Name",
		Artist:   "Band",
		Uploader: "channel",
	}}
	r := NewResolver(md, testLogger())

	title, artist := r.TrackInfo(context.Background(), "https://example.com/v", "")
	if title != "Song Name" || artist != "Band" {
		t.Errorf("TrackInfo() = %q/%q, want Song Name/Band", title, artist)
	}

	md.info = &provider.MediaInfo{Title: "Only Title", Uploader: "channel"}
	title, artist = r.TrackInfo(context.Background(), "https://example.com/v", "")
	if title != "Only Title" || artist != "channel" {
		t.Errorf("TrackInfo() = %q/%q, want Only Title/channel", title, artist)
	}

	md.err = errors.New("boom")
	title, artist = r.TrackInfo(context.Background(), "https://example.com/v", "fallback")
	if title != "fallback" || artist != "" {
		t.Errorf("TrackInfo() degraded = %q/%q, want fallback/empty", title, artist)
	}
}

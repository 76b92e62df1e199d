package cachestore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iconidentify/mediarelay/internal/domain"
	"github.com/iconidentify/mediarelay/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"), testLogger())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleEntry() *domain.CacheEntry {
	return &domain.CacheEntry{
		ContentKey: "youtube:abc12345678",
		VariantKey: domain.VariantSmartVideo,
		Kind:       domain.KindVideo,
		Handle:     "handle-1",
		Width:      1920,
		Height:     1080,
		Duration:   120,
		Size:       31457280,
		RecipeUsed: "smart1080",
		Title:      "Test Video",
		SourceURL:  "https://www.youtube.com/watch?v=abc12345678",
	}
}

func TestStore_PutGet(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, sampleEntry()); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := store.Get(ctx, "youtube:abc12345678", domain.VariantSmartVideo)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	if got.Handle != "handle-1" {
		t.Errorf("Handle = %q, want handle-1", got.Handle)
	}
	if got.Size != 31457280 {
		t.Errorf("Size = %d, want 31457280", got.Size)
	}
	if got.Kind != domain.KindVideo {
		t.Errorf("Kind = %q, want video", got.Kind)
	}
	if got.RecipeUsed != "smart1080" {
		t.Errorf("RecipeUsed = %q, want smart1080", got.RecipeUsed)
	}
}

func TestStore_PutCountsWrite(t *testing.T) {
	store := testStore(t)
	before := testutil.ToFloat64(metrics.CacheWrites)

	if err := store.Put(context.Background(), sampleEntry()); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	if delta := testutil.ToFloat64(metrics.CacheWrites) - before; delta != 1 {
		t.Errorf("cache write counter delta = %v, want 1", delta)
	}
}

func TestStore_GetMiss(t *testing.T) {
	store := testStore(t)

	_, err := store.Get(context.Background(), "youtube:missing0000", domain.VariantSmartVideo)
	if !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("Get() miss error = %v, want ErrEntryNotFound", err)
	}
}

func TestStore_UpsertOverwrites(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, sampleEntry()); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	updated := sampleEntry()
	updated.Handle = "handle-2"
	updated.Size = 1024
	if err := store.Put(ctx, updated); err != nil {
		t.Fatalf("Put() overwrite error: %v", err)
	}

	got, err := store.Get(ctx, "youtube:abc12345678", domain.VariantSmartVideo)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Handle != "handle-2" || got.Size != 1024 {
		t.Errorf("entry not overwritten: handle=%q size=%d", got.Handle, got.Size)
	}
}

func TestStore_VariantsAreIndependent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	video := sampleEntry()
	if err := store.Put(ctx, video); err != nil {
		t.Fatal(err)
	}

	audio := sampleEntry()
	audio.VariantKey = domain.VariantAudioMP3
	audio.Kind = domain.KindAudio
	audio.Handle = "audio-handle"
	if err := store.Put(ctx, audio); err != nil {
		t.Fatal(err)
	}

	gotVideo, err := store.Get(ctx, "youtube:abc12345678", domain.VariantSmartVideo)
	if err != nil {
		t.Fatal(err)
	}
	gotAudio, err := store.Get(ctx, "youtube:abc12345678", domain.VariantAudioMP3)
	if err != nil {
		t.Fatal(err)
	}

	if gotVideo.Handle == gotAudio.Handle {
		t.Error("variants share a handle, want independent rows")
	}
}

func TestStore_PutCanonicalizesKey(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	entry := sampleEntry()
	entry.ContentKey = "YouTube:abc12345678"
	if err := store.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get(ctx, "youtube:abc12345678", domain.VariantSmartVideo); err != nil {
		t.Errorf("Get() with canonical key after mixed-case Put: %v", err)
	}
}

func TestStore_GetAnyCompatProbe(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	// Simulate a legacy row written before canonicalization by
	// inserting the mixed-case spelling directly.
	_, err := store.db.Exec(`
		INSERT INTO cache (content_key, variant_key, kind, handle)
		VALUES ('YouTube:abc12345678', 'video:smart1080', 'video', 'legacy-handle')`)
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.GetAny(ctx, "youtube:abc12345678", domain.VariantSmartVideo)
	if err != nil {
		t.Fatalf("GetAny() error: %v", err)
	}
	if got.Handle != "legacy-handle" {
		t.Errorf("Handle = %q, want legacy-handle", got.Handle)
	}

	// And the probe is bounded: unrelated spellings stay misses.
	if _, err := store.GetAny(ctx, "vimeo:abc12345678", domain.VariantSmartVideo); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("GetAny() unrelated key error = %v, want ErrEntryNotFound", err)
	}
}

func TestCompatKeys_Bounded(t *testing.T) {
	alts := compatKeys("soundcloud:track-99")

	want := map[domain.ContentKey]bool{
		"soundcloud:track-99": true,
		"Soundcloud:track-99": true,
		"SOUNDCLOUD:track-99": true,
		"YouTube:track-99":    true,
		"youtube:track-99":    true,
	}
	if len(alts) != len(want) {
		t.Fatalf("compatKeys() returned %d spellings, want %d: %v", len(alts), len(want), alts)
	}
	for _, k := range alts {
		if !want[k] {
			t.Errorf("unexpected compat spelling %q", k)
		}
	}
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open("/nonexistent-dir/sub/cache.db", testLogger())
	if !errors.Is(err, domain.ErrCacheUnavailable) {
		t.Errorf("Open() error = %v, want ErrCacheUnavailable", err)
	}
}

package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/mediarelay/internal/domain"
	"github.com/iconidentify/mediarelay/internal/pipeline"
	"github.com/iconidentify/mediarelay/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockResolver struct {
	resolveResult *service.ResolveResult
	resolveErr    error
	lookupEntry   *domain.CacheEntry
	lookupErr     error
	inventory     *pipeline.FormatInventory
	formatsErr    error
	job           *domain.ResolveJob
	jobErr        error

	submittedVariant domain.VariantKey
	resolvedVariant  domain.VariantKey
}

func (m *mockResolver) Resolve(_ context.Context, _ string, variant domain.VariantKey) (*service.ResolveResult, error) {
	m.resolvedVariant = variant
	return m.resolveResult, m.resolveErr
}

func (m *mockResolver) Lookup(_ context.Context, _ string, _ domain.VariantKey) (*domain.CacheEntry, error) {
	return m.lookupEntry, m.lookupErr
}

func (m *mockResolver) Formats(context.Context, string) (*pipeline.FormatInventory, error) {
	return m.inventory, m.formatsErr
}

func (m *mockResolver) Submit(_ context.Context, url string, variant domain.VariantKey) (*domain.ResolveJob, error) {
	m.submittedVariant = variant
	if m.jobErr != nil {
		return nil, m.jobErr
	}
	return domain.NewResolveJob("job-1", url, variant, 2), nil
}

func (m *mockResolver) Job(context.Context, domain.JobID) (*domain.ResolveJob, error) {
	return m.job, m.jobErr
}

func sampleEntry() *domain.CacheEntry {
	return &domain.CacheEntry{
		ContentKey: "youtube:dQw4w9WgXcQ",
		VariantKey: domain.VariantSmartVideo,
		Kind:       domain.KindVideo,
		Handle:     "handle-1",
		Size:       30 << 20,
		RecipeUsed: "bv*[height<=1080]+ba/b[height<=1080]/b",
		Title:      "Some Video",
	}
}

func TestResolve_QueuesJobByDefault(t *testing.T) {
	svc := &mockResolver{}
	h := NewResolveHandler(svc, testLogger())

	body := `{"url":"https://youtu.be/dQw4w9WgXcQ","variant":"video"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Resolve(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp JobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID == "" {
		t.Error("expected a job ID")
	}
	if resp.Status != string(domain.JobStatusQueued) {
		t.Errorf("status = %q, want queued", resp.Status)
	}
	if svc.submittedVariant != domain.VariantSmartVideo {
		t.Errorf("submitted variant = %q, want video:smart1080", svc.submittedVariant)
	}
}

func TestResolve_WaitReturnsEntry(t *testing.T) {
	svc := &mockResolver{resolveResult: &service.ResolveResult{
		Entry:     sampleEntry(),
		Key:       "youtube:dQw4w9WgXcQ",
		FromCache: true,
	}}
	h := NewResolveHandler(svc, testLogger())

	body := `{"url":"https://youtu.be/dQw4w9WgXcQ","wait":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Resolve(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var resp EntryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Handle != "handle-1" {
		t.Errorf("handle = %q", resp.Handle)
	}
	if !resp.FromCache {
		t.Error("from_cache should be true")
	}
	if svc.resolvedVariant != domain.VariantAuto {
		t.Errorf("variant = %q, want auto default", svc.resolvedVariant)
	}
}

func TestResolve_ExplicitFormatOverridesVariant(t *testing.T) {
	svc := &mockResolver{resolveResult: &service.ResolveResult{Entry: sampleEntry()}}
	h := NewResolveHandler(svc, testLogger())

	body := `{"url":"https://youtu.be/dQw4w9WgXcQ","variant":"video","format":"137+140","wait":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Resolve(rec, req)

	if svc.resolvedVariant != domain.FormatVariant("137+140") {
		t.Errorf("variant = %q, want video:fmt=137+140", svc.resolvedVariant)
	}
}

func TestResolve_InvalidBody(t *testing.T) {
	h := NewResolveHandler(&mockResolver{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Resolve(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestResolve_UnknownVariant(t *testing.T) {
	h := NewResolveHandler(&mockResolver{}, testLogger())

	body := `{"url":"https://youtu.be/dQw4w9WgXcQ","variant":"hologram"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Resolve(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestResolve_InvalidURL(t *testing.T) {
	svc := &mockResolver{jobErr: domain.ErrInvalidURL}
	h := NewResolveHandler(svc, testLogger())

	body := `{"url":"not a url"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Resolve(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestResolve_ManualPick(t *testing.T) {
	svc := &mockResolver{resolveResult: &service.ResolveResult{
		Key:             "urlsha1:0123456789abcdef",
		NeedsManualPick: true,
	}}
	h := NewResolveHandler(svc, testLogger())

	body := `{"url":"https://example.com/mystery","wait":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Resolve(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp ManualPickResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "manual_pick" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestGetJob(t *testing.T) {
	job := domain.NewResolveJob("job-1", "https://youtu.be/dQw4w9WgXcQ", domain.VariantSmartVideo, 2)
	job.MarkCompleted("youtube:dQw4w9WgXcQ", "handle-1", false)
	h := NewResolveHandler(&mockResolver{job: job}, testLogger())

	r := chi.NewRouter()
	r.Get("/api/v1/jobs/{jobID}", h.GetJob)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp JobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Handle != "handle-1" {
		t.Errorf("handle = %q", resp.Handle)
	}
	if resp.Status != string(domain.JobStatusCompleted) {
		t.Errorf("status = %q, want completed", resp.Status)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	h := NewResolveHandler(&mockResolver{jobErr: domain.ErrJobNotFound}, testLogger())

	r := chi.NewRouter()
	r.Get("/api/v1/jobs/{jobID}", h.GetJob)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestLookup_Hit(t *testing.T) {
	h := NewResolveHandler(&mockResolver{lookupEntry: sampleEntry()}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache?url=https://youtu.be/dQw4w9WgXcQ&variant=video", nil)
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp EntryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ContentKey != "youtube:dQw4w9WgXcQ" {
		t.Errorf("content_key = %q", resp.ContentKey)
	}
}

func TestLookup_Miss(t *testing.T) {
	h := NewResolveHandler(&mockResolver{lookupErr: domain.ErrEntryNotFound}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache?url=https://youtu.be/dQw4w9WgXcQ", nil)
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestFormats(t *testing.T) {
	h := NewResolveHandler(&mockResolver{inventory: &pipeline.FormatInventory{Title: "Clip"}}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/formats?url=https://youtu.be/dQw4w9WgXcQ", nil)
	rec := httptest.NewRecorder()
	h.Formats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp pipeline.FormatInventory
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Title != "Clip" {
		t.Errorf("title = %q", resp.Title)
	}
}

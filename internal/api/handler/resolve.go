package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/mediarelay/internal/domain"
	"github.com/iconidentify/mediarelay/internal/pipeline"
	"github.com/iconidentify/mediarelay/internal/service"
)

// Resolver is the handler's view of the resolver service.
type Resolver interface {
	Resolve(ctx context.Context, url string, variant domain.VariantKey) (*service.ResolveResult, error)
	Lookup(ctx context.Context, url string, variant domain.VariantKey) (*domain.CacheEntry, error)
	Formats(ctx context.Context, url string) (*pipeline.FormatInventory, error)
	Submit(ctx context.Context, url string, variant domain.VariantKey) (*domain.ResolveJob, error)
	Job(ctx context.Context, id domain.JobID) (*domain.ResolveJob, error)
}

// ResolveHandler handles resolution-related HTTP requests.
type ResolveHandler struct {
	svc    Resolver
	logger *slog.Logger
}

// NewResolveHandler creates a new resolve handler.
func NewResolveHandler(svc Resolver, logger *slog.Logger) *ResolveHandler {
	return &ResolveHandler{
		svc:    svc,
		logger: logger,
	}
}

// ResolveRequest is the JSON request body for resolution.
type ResolveRequest struct {
	URL string `json:"url"`

	// Variant picks the delivery profile: "auto" (default), "video",
	// "audio", "anim" or "gif".
	Variant string `json:"variant,omitempty"`

	// Format requests an explicit selector and overrides Variant.
	Format string `json:"format,omitempty"`

	// Wait makes the request synchronous: the response carries the
	// resolved entry instead of a queued job.
	Wait bool `json:"wait,omitempty"`
}

// EntryResponse represents a cached handle in responses.
type EntryResponse struct {
	ContentKey string `json:"content_key"`
	Variant    string `json:"variant"`
	Kind       string `json:"kind"`
	Handle     string `json:"handle"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Duration   int    `json:"duration_seconds,omitempty"`
	Size       int64  `json:"size_bytes,omitempty"`
	RecipeUsed string `json:"recipe_used,omitempty"`
	Title      string `json:"title,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`
	FromCache  bool   `json:"from_cache"`
}

// JobResponse represents a resolve job in responses.
type JobResponse struct {
	JobID      string    `json:"job_id"`
	URL        string    `json:"url"`
	Variant    string    `json:"variant"`
	Status     string    `json:"status"`
	ContentKey string    `json:"content_key,omitempty"`
	Handle     string    `json:"handle,omitempty"`
	FromCache  bool      `json:"from_cache,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ManualPickResponse tells the caller to choose a format explicitly.
type ManualPickResponse struct {
	Status     string `json:"status"`
	ContentKey string `json:"content_key"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message"`
}

// Resolve handles POST /api/v1/resolve
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	variant, ok := parseVariant(req.Variant, req.Format)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown variant")
		return
	}

	if !req.Wait {
		job, err := h.svc.Submit(r.Context(), req.URL, variant)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidURL) {
				h.writeError(w, http.StatusBadRequest, "invalid media URL")
				return
			}
			h.logger.Error("submit failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to queue resolution")
			return
		}
		h.writeJSON(w, http.StatusAccepted, jobResponse(job))
		return
	}

	result, err := h.svc.Resolve(r.Context(), req.URL, variant)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidURL) {
			h.writeError(w, http.StatusBadRequest, "invalid media URL")
			return
		}
		h.logger.Error("resolve failed", "url", req.URL, "error", err)
		h.writeError(w, http.StatusBadGateway, "resolution failed")
		return
	}
	if result.NeedsManualPick {
		h.writeJSON(w, http.StatusConflict, ManualPickResponse{
			Status:     "manual_pick",
			ContentKey: string(result.Key),
			Title:      result.Title,
			Message:    "source could not be classified, pick a format explicitly",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, entryResponse(result.Entry, result.FromCache))
}

// GetJob handles GET /api/v1/jobs/{jobID}
func (h *ResolveHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(chi.URLParam(r, "jobID"))

	job, err := h.svc.Job(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			h.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("job lookup failed", "job_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	h.writeJSON(w, http.StatusOK, jobResponse(job))
}

// Lookup handles GET /api/v1/cache
func (h *ResolveHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	variant, ok := parseVariant(r.URL.Query().Get("variant"), r.URL.Query().Get("format"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown variant")
		return
	}

	entry, err := h.svc.Lookup(r.Context(), rawURL, variant)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidURL):
			h.writeError(w, http.StatusBadRequest, "invalid media URL")
		case errors.Is(err, domain.ErrEntryNotFound):
			h.writeError(w, http.StatusNotFound, "no cached handle")
		default:
			h.logger.Error("cache lookup failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "cache lookup failed")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, entryResponse(entry, true))
}

// Formats handles GET /api/v1/formats
func (h *ResolveHandler) Formats(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")

	inv, err := h.svc.Formats(r.Context(), rawURL)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidURL) {
			h.writeError(w, http.StatusBadRequest, "invalid media URL")
			return
		}
		h.logger.Error("format probe failed", "url", rawURL, "error", err)
		h.writeError(w, http.StatusBadGateway, "format probe failed")
		return
	}
	h.writeJSON(w, http.StatusOK, inv)
}

// parseVariant maps the request's variant/format fields to a variant
// key. An explicit format selector wins over the named variant.
func parseVariant(variant, format string) (domain.VariantKey, bool) {
	if format != "" {
		return domain.FormatVariant(format), true
	}
	switch variant {
	case "", "auto":
		return domain.VariantAuto, true
	case "video":
		return domain.VariantSmartVideo, true
	case "audio":
		return domain.VariantAudioMP3, true
	case "anim":
		return domain.VariantAnimation, true
	case "gif":
		return domain.VariantGIF, true
	default:
		return "", false
	}
}

func entryResponse(entry *domain.CacheEntry, fromCache bool) EntryResponse {
	return EntryResponse{
		ContentKey: string(entry.ContentKey),
		Variant:    string(entry.VariantKey),
		Kind:       string(entry.Kind),
		Handle:     string(entry.Handle),
		Width:      entry.Width,
		Height:     entry.Height,
		Duration:   entry.Duration,
		Size:       entry.Size,
		RecipeUsed: entry.RecipeUsed,
		Title:      entry.Title,
		SourceURL:  entry.SourceURL,
		FromCache:  fromCache,
	}
}

func jobResponse(job *domain.ResolveJob) JobResponse {
	return JobResponse{
		JobID:      string(job.ID),
		URL:        job.URL,
		Variant:    string(job.Variant),
		Status:     string(job.Status),
		ContentKey: string(job.ContentKey),
		Handle:     string(job.Handle),
		FromCache:  job.FromCache,
		Attempts:   job.Attempts,
		Error:      job.LastError,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
}

func (h *ResolveHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *ResolveHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

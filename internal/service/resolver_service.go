// Package service orchestrates resolution: identity, cache fast path,
// in-flight deduplication, acquisition and delivery.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/iconidentify/mediarelay/internal/domain"
	"github.com/iconidentify/mediarelay/internal/identity"
	"github.com/iconidentify/mediarelay/internal/inflight"
	"github.com/iconidentify/mediarelay/internal/lifecycle"
	"github.com/iconidentify/mediarelay/internal/metrics"
	"github.com/iconidentify/mediarelay/internal/pipeline"
	"github.com/iconidentify/mediarelay/internal/repository"
)

// Cache is the service's read view of the variant cache; writes happen
// in the delivery router.
type Cache interface {
	GetAny(ctx context.Context, key domain.ContentKey, variant domain.VariantKey) (*domain.CacheEntry, error)
}

// Acquirer produces artifacts. Implemented by pipeline.Pipeline.
type Acquirer interface {
	Acquire(ctx context.Context, req pipeline.Request) (*domain.Artifact, error)
	ProbeFormats(ctx context.Context, url string) (*pipeline.FormatInventory, error)
}

// Deliverer uploads artifacts and writes the cache entry. Implemented
// by delivery.Router.
type Deliverer interface {
	Deliver(ctx context.Context, key domain.ContentKey, variant domain.VariantKey, art *domain.Artifact) (*domain.CacheEntry, error)
}

// ResolveResult is the outcome of a resolution.
type ResolveResult struct {
	Entry     *domain.CacheEntry
	Key       domain.ContentKey
	Title     string
	FromCache bool

	// NeedsManualPick is set when auto-detection exhausted both default
	// profiles; the caller should offer the format inventory instead.
	NeedsManualPick bool
}

// ResolverService turns URLs into cached artifact handles.
type ResolverService struct {
	identity   *identity.Resolver
	cache      Cache
	acquirer   Acquirer
	deliverer  Deliverer
	locks      *inflight.Coordinator
	jobs       repository.JobRepository
	heavySem   chan struct{}
	maxRetries int
	logger     *slog.Logger
}

// NewResolverService creates the orchestrator. maxParallel bounds the
// number of concurrent heavy acquisitions across all callers.
func NewResolverService(
	ident *identity.Resolver,
	cache Cache,
	acquirer Acquirer,
	deliverer Deliverer,
	jobs repository.JobRepository,
	maxParallel int,
	maxRetries int,
	logger *slog.Logger,
) *ResolverService {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &ResolverService{
		identity:   ident,
		cache:      cache,
		acquirer:   acquirer,
		deliverer:  deliverer,
		locks:      inflight.NewCoordinator(),
		jobs:       jobs,
		heavySem:   make(chan struct{}, maxParallel),
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Resolve returns a reusable handle for the URL and variant, producing
// the artifact only when no cached handle exists. Concurrent calls for
// the same (content, variant) pair collapse into one production run.
func (s *ResolverService) Resolve(ctx context.Context, rawURL string, variant domain.VariantKey) (*ResolveResult, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	key, title := s.identity.Resolve(ctx, rawURL)

	if entry := s.cacheLookup(ctx, key, variant); entry != nil {
		return &ResolveResult{Entry: entry, Key: key, Title: entry.Title, FromCache: true}, nil
	}

	release := s.lockFor(key, variant)
	metrics.InflightResolutions.Inc()
	defer func() {
		metrics.InflightResolutions.Dec()
		release()
	}()

	// Another request may have produced the handle while this one
	// waited on the lock.
	if entry := s.cacheLookup(ctx, key, variant); entry != nil {
		return &ResolveResult{Entry: entry, Key: key, Title: entry.Title, FromCache: true}, nil
	}

	task := lifecycle.NewTask(s.logger)
	defer task.Cleanup()

	select {
	case s.heavySem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	metrics.HeavyJobsActive.Inc()
	art, err := s.acquirer.Acquire(ctx, pipeline.Request{
		URL:     rawURL,
		Variant: variant,
		Title:   title,
		Task:    task,
	})
	metrics.HeavyJobsActive.Dec()
	<-s.heavySem

	if err != nil {
		if errors.Is(err, domain.ErrManualPickRequired) {
			return &ResolveResult{Key: key, Title: title, NeedsManualPick: true}, nil
		}
		return nil, err
	}

	entry, err := s.deliverer.Deliver(ctx, key, effectiveVariant(variant, art), art)
	if err != nil {
		return nil, err
	}
	return &ResolveResult{Entry: entry, Key: key, Title: entry.Title}, nil
}

// Lookup is the cache-only read path: it resolves identity and checks
// the cache without ever producing an artifact.
func (s *ResolverService) Lookup(ctx context.Context, rawURL string, variant domain.VariantKey) (*domain.CacheEntry, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	key, _ := s.identity.Resolve(ctx, rawURL)
	if entry := s.cacheLookup(ctx, key, variant); entry != nil {
		return entry, nil
	}
	return nil, domain.ErrEntryNotFound
}

// Formats returns the source's format inventory for manual selection.
func (s *ResolverService) Formats(ctx context.Context, rawURL string) (*pipeline.FormatInventory, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	return s.acquirer.ProbeFormats(ctx, rawURL)
}

// Submit queues a resolution for background processing and returns the
// job immediately.
func (s *ResolverService) Submit(ctx context.Context, rawURL string, variant domain.VariantKey) (*domain.ResolveJob, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if variant == "" {
		variant = domain.VariantAuto
	}
	job := domain.NewResolveJob(domain.JobID(uuid.New().String()), rawURL, variant, s.maxRetries)
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("resolve job queued", "job_id", job.ID, "variant", variant)
	return job, nil
}

// Job returns the current state of a queued resolution.
func (s *ResolverService) Job(ctx context.Context, id domain.JobID) (*domain.ResolveJob, error) {
	return s.jobs.Get(ctx, id)
}

// Process runs one queued job to completion. A manual-pick outcome is
// terminal, not a failure; the returned error is only for outcomes the
// worker should retry.
func (s *ResolverService) Process(ctx context.Context, job *domain.ResolveJob) error {
	result, err := s.Resolve(ctx, job.URL, job.Variant)
	if err != nil {
		return err
	}
	if result.NeedsManualPick {
		job.MarkManualPick(result.Key)
		return nil
	}
	job.MarkCompleted(result.Key, result.Entry.Handle, result.FromCache)
	return nil
}

// lockFor takes the in-flight lock for the variant. An auto request
// locks every concrete variant it may end up producing, in a fixed
// order, so a concurrent explicit request for one of them cannot start
// a second production run while classification is still undecided.
func (s *ResolverService) lockFor(key domain.ContentKey, variant domain.VariantKey) (release func()) {
	variants := lookupVariants(variant)
	releases := make([]func(), 0, len(variants))
	for _, v := range variants {
		releases = append(releases, s.locks.Lock(key, v))
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}

func (s *ResolverService) cacheLookup(ctx context.Context, key domain.ContentKey, variant domain.VariantKey) *domain.CacheEntry {
	for _, v := range lookupVariants(variant) {
		entry, err := s.cache.GetAny(ctx, key, v)
		if err == nil {
			result := "hit"
			if entry.ContentKey != key.Canonical() {
				result = "compat_hit"
			}
			metrics.CacheLookups.WithLabelValues(result).Inc()
			return entry
		}
		if !errors.Is(err, domain.ErrEntryNotFound) {
			s.logger.Error("cache lookup failed", "content_key", key, "variant", v, "error", err)
		}
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()
	return nil
}

// lookupVariants expands the auto variant into the concrete variants it
// may satisfy, video first.
func lookupVariants(variant domain.VariantKey) []domain.VariantKey {
	if variant == domain.VariantAuto {
		return []domain.VariantKey{domain.VariantSmartVideo, domain.VariantAudioMP3}
	}
	return []domain.VariantKey{variant}
}

// effectiveVariant maps the auto variant to the concrete variant the
// produced artifact belongs to, so the cache row is found by later
// direct requests for that variant.
func effectiveVariant(requested domain.VariantKey, art *domain.Artifact) domain.VariantKey {
	if requested != domain.VariantAuto {
		return requested
	}
	if art.Kind == domain.KindAudio {
		return domain.VariantAudioMP3
	}
	return domain.VariantSmartVideo
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return domain.ErrInvalidURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.ErrInvalidURL
	}
	return nil
}

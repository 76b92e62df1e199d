// Package pipeline turns a URL plus a variant key into a local artifact.
// Each variant has a fixed, ordered list of recipes; later recipes are
// only tried after the earlier ones fail, and the recipe that actually
// produced the artifact is recorded on it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/iconidentify/mediarelay/internal/config"
	"github.com/iconidentify/mediarelay/internal/domain"
	"github.com/iconidentify/mediarelay/internal/identity"
	"github.com/iconidentify/mediarelay/internal/lifecycle"
	"github.com/iconidentify/mediarelay/internal/metrics"
	"github.com/iconidentify/mediarelay/internal/provider"
)

// Request asks for one artifact. Title is the display title already
// resolved for the content; every file the acquisition creates is
// registered on Task.
type Request struct {
	URL     string
	Variant domain.VariantKey
	Title   string
	Task    *lifecycle.Task
}

// Pipeline owns the acquisition cascades.
type Pipeline struct {
	fetcher     provider.Fetcher
	transcoder  provider.Transcoder
	resolver    *identity.Resolver
	metadata    provider.Metadata
	cfg         config.FetchConfig
	animCeiling int64
	logger      *slog.Logger
}

func New(
	fetcher provider.Fetcher,
	transcoder provider.Transcoder,
	resolver *identity.Resolver,
	metadata provider.Metadata,
	cfg config.FetchConfig,
	animCeiling int64,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		fetcher:     fetcher,
		transcoder:  transcoder,
		resolver:    resolver,
		metadata:    metadata,
		cfg:         cfg,
		animCeiling: animCeiling,
		logger:      logger,
	}
}

// Acquire produces the artifact for the request, walking the variant's
// cascade in order. The returned artifact's RecipeUsed names the recipe
// that succeeded, which may differ from the one the variant implies.
func (p *Pipeline) Acquire(ctx context.Context, req Request) (*domain.Artifact, error) {
	if selector, ok := req.Variant.FormatSelector(); ok {
		return p.acquireExplicit(ctx, req, selector)
	}
	if format, ok := req.Variant.AudioFormat(); ok {
		return p.acquireAudio(ctx, req, format)
	}
	switch req.Variant {
	case domain.VariantSmartVideo:
		return p.acquireSmart(ctx, req)
	case domain.VariantAnimation:
		return p.acquireAnimation(ctx, req)
	case domain.VariantGIF:
		return p.acquireGIF(ctx, req)
	case domain.VariantAuto:
		return p.acquireAuto(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported variant %q", req.Variant)
	}
}

// acquireExplicit fetches an exact selector and falls back once to the
// smart profile, so a stale format ID degrades instead of failing.
func (p *Pipeline) acquireExplicit(ctx context.Context, req Request, selector string) (*domain.Artifact, error) {
	art, err := p.fetchVideo(ctx, req, selector, false)
	if err == nil {
		return art, nil
	}

	p.logger.Warn("explicit format failed, falling back to smart profile",
		"url", req.URL,
		"selector", selector,
		"error", err,
	)
	metrics.FallbackAttempts.WithLabelValues(string(domain.KindVideo)).Inc()

	art, smartErr := p.acquireSmart(ctx, req)
	if smartErr != nil {
		return nil, errors.Join(domain.ErrCascadeExhausted, err, smartErr)
	}
	return art, nil
}

// acquireSmart fetches the bounded-quality profile and retries once with
// the widest selector plus browser-like headers, which clears most
// selector and bot-check failures.
func (p *Pipeline) acquireSmart(ctx context.Context, req Request) (*domain.Artifact, error) {
	art, err := p.fetchVideo(ctx, req, p.cfg.SmartSelector, false)
	if err == nil {
		return art, nil
	}

	p.logger.Warn("smart profile failed, retrying with best selector and headers",
		"url", req.URL,
		"error", err,
	)
	metrics.FallbackAttempts.WithLabelValues(string(domain.KindVideo)).Inc()

	art, retryErr := p.fetchVideo(ctx, req, "best", true)
	if retryErr != nil {
		return nil, errors.Join(domain.ErrCascadeExhausted, err, retryErr)
	}
	return art, nil
}

// acquireAudio is a single-attempt fetch with audio extraction.
func (p *Pipeline) acquireAudio(ctx context.Context, req Request, format string) (*domain.Artifact, error) {
	start := time.Now()
	path, err := p.fetcher.Fetch(ctx, provider.FetchRequest{
		URL:          req.URL,
		ExtractAudio: true,
		AudioFormat:  format,
		MaxDownloads: 1,
	})
	if err != nil {
		metrics.AcquisitionDuration.WithLabelValues(string(domain.KindAudio), "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.AcquisitionDuration.WithLabelValues(string(domain.KindAudio), "ok").Observe(time.Since(start).Seconds())
	req.Task.Track(path)

	size, err := fileSize(path)
	if err != nil {
		return nil, err
	}
	metrics.AcquisitionBytes.WithLabelValues(string(domain.KindAudio)).Observe(float64(size))

	title, artist := p.resolver.TrackInfo(ctx, req.URL, req.Title)
	caption := title
	if artist != "" {
		caption = artist + " - " + title
	}

	dims := p.transcoder.ProbeDimensions(ctx, path)
	return &domain.Artifact{
		Path:       path,
		Kind:       domain.KindAudio,
		Size:       size,
		RecipeUsed: "audio:" + format,
		Title:      caption,
		SourceURL:  req.URL,
		Duration:   dims.Duration,
	}, nil
}

// acquireAnimation fetches the small-video profile and re-encodes it as
// a silent animation under the configured ceiling.
func (p *Pipeline) acquireAnimation(ctx context.Context, req Request) (*domain.Artifact, error) {
	start := time.Now()
	path, err := p.fetcher.Fetch(ctx, provider.FetchRequest{
		URL:          req.URL,
		Selector:     p.cfg.AnimSelector,
		MergeFormat:  "mp4",
		MaxDownloads: 1,
	})
	if err != nil {
		metrics.AcquisitionDuration.WithLabelValues(string(domain.KindAnimation), "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	req.Task.Track(path)

	out, err := p.transcoder.ToSilentAnimation(ctx, path, p.animCeiling)
	if err != nil {
		metrics.AcquisitionDuration.WithLabelValues(string(domain.KindAnimation), "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.AcquisitionDuration.WithLabelValues(string(domain.KindAnimation), "ok").Observe(time.Since(start).Seconds())
	req.Task.Track(out)

	size, err := fileSize(out)
	if err != nil {
		return nil, err
	}
	metrics.AcquisitionBytes.WithLabelValues(string(domain.KindAnimation)).Observe(float64(size))

	dims := p.transcoder.ProbeDimensions(ctx, out)
	return &domain.Artifact{
		Path:       out,
		Kind:       domain.KindAnimation,
		Size:       size,
		RecipeUsed: "anim:" + p.cfg.AnimSelector,
		Title:      req.Title,
		SourceURL:  req.URL,
		Duration:   dims.Duration,
		Width:      dims.Width,
		Height:     dims.Height,
	}, nil
}

// acquireGIF fetches the small-video profile and converts it to an
// animated GIF under the animation ceiling.
func (p *Pipeline) acquireGIF(ctx context.Context, req Request) (*domain.Artifact, error) {
	start := time.Now()
	path, err := p.fetcher.Fetch(ctx, provider.FetchRequest{
		URL:          req.URL,
		Selector:     p.cfg.AnimSelector,
		MergeFormat:  "mp4",
		MaxDownloads: 1,
	})
	if err != nil {
		metrics.AcquisitionDuration.WithLabelValues(string(domain.KindAnimation), "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	req.Task.Track(path)

	out, err := p.transcoder.ToGIF(ctx, path, p.animCeiling)
	if err != nil {
		metrics.AcquisitionDuration.WithLabelValues(string(domain.KindAnimation), "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.AcquisitionDuration.WithLabelValues(string(domain.KindAnimation), "ok").Observe(time.Since(start).Seconds())
	req.Task.Track(out)

	size, err := fileSize(out)
	if err != nil {
		return nil, err
	}
	metrics.AcquisitionBytes.WithLabelValues(string(domain.KindAnimation)).Observe(float64(size))

	dims := p.transcoder.ProbeDimensions(ctx, out)
	return &domain.Artifact{
		Path:       out,
		Kind:       domain.KindAnimation,
		Size:       size,
		RecipeUsed: "gif:" + p.cfg.AnimSelector,
		Title:      req.Title,
		SourceURL:  req.URL,
		Duration:   dims.Duration,
		Width:      dims.Width,
		Height:     dims.Height,
	}, nil
}

// acquireAuto classifies the source and tries the matching profile
// first, the other one second. When classification fails entirely and
// both profiles fail too, the caller gets ErrManualPickRequired so the
// user can pick a format by hand.
func (p *Pipeline) acquireAuto(ctx context.Context, req Request) (*domain.Artifact, error) {
	class := p.resolver.Classify(ctx, req.URL)

	switch class {
	case identity.ClassAudio:
		art, audioErr := p.acquireAudio(ctx, req, "mp3")
		if audioErr == nil {
			return art, nil
		}
		metrics.FallbackAttempts.WithLabelValues(string(domain.KindAudio)).Inc()
		art, videoErr := p.acquireSmart(ctx, req)
		if videoErr != nil {
			return nil, errors.Join(domain.ErrCascadeExhausted, audioErr, videoErr)
		}
		return art, nil

	case identity.ClassVideo:
		art, videoErr := p.acquireSmart(ctx, req)
		if videoErr == nil {
			return art, nil
		}
		metrics.FallbackAttempts.WithLabelValues(string(domain.KindVideo)).Inc()
		art, audioErr := p.acquireAudio(ctx, req, "mp3")
		if audioErr != nil {
			return nil, errors.Join(domain.ErrCascadeExhausted, videoErr, audioErr)
		}
		return art, nil

	default:
		art, videoErr := p.acquireSmart(ctx, req)
		if videoErr == nil {
			return art, nil
		}
		metrics.FallbackAttempts.WithLabelValues(string(domain.KindVideo)).Inc()
		art, audioErr := p.acquireAudio(ctx, req, "mp3")
		if audioErr == nil {
			return art, nil
		}
		p.logger.Warn("auto acquisition exhausted both profiles",
			"url", req.URL,
			"video_error", videoErr,
			"audio_error", audioErr,
		)
		return nil, domain.ErrManualPickRequired
	}
}

// fetchVideo runs one video fetch attempt and packages the result. When
// withHeaders is set the request carries the configured user agent, the
// URL's origin as referer, and cookies if any are configured.
func (p *Pipeline) fetchVideo(ctx context.Context, req Request, selector string, withHeaders bool) (*domain.Artifact, error) {
	freq := provider.FetchRequest{
		URL:          req.URL,
		Selector:     selector,
		MergeFormat:  "mp4",
		MaxDownloads: 1,
	}
	if withHeaders {
		freq.UserAgent = p.cfg.UserAgent
		freq.Referer = identity.Origin(req.URL)
		freq.UseCookies = true
	}

	start := time.Now()
	path, err := p.fetcher.Fetch(ctx, freq)
	if err != nil {
		metrics.AcquisitionDuration.WithLabelValues(string(domain.KindVideo), "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.AcquisitionDuration.WithLabelValues(string(domain.KindVideo), "ok").Observe(time.Since(start).Seconds())
	req.Task.Track(path)

	size, err := fileSize(path)
	if err != nil {
		return nil, err
	}
	metrics.AcquisitionBytes.WithLabelValues(string(domain.KindVideo)).Observe(float64(size))

	dims := p.transcoder.ProbeDimensions(ctx, path)
	thumb := p.transcoder.MakeThumbnail(ctx, path)
	req.Task.Track(thumb)

	return &domain.Artifact{
		Path:       path,
		Kind:       domain.KindVideo,
		Size:       size,
		RecipeUsed: selector,
		Title:      req.Title,
		SourceURL:  req.URL,
		Duration:   dims.Duration,
		Width:      dims.Width,
		Height:     dims.Height,
		ThumbPath:  thumb,
	}, nil
}

// FormatInventory lists the source's delivery variants for manual
// format selection.
type FormatInventory struct {
	Title   string            `json:"title"`
	Formats []provider.Format `json:"formats"`
}

// ProbeFormats returns the format inventory for a URL.
func (p *Pipeline) ProbeFormats(ctx context.Context, url string) (*FormatInventory, error) {
	info, err := p.metadata.Probe(ctx, identity.NormalizeURL(url))
	if err != nil {
		return nil, err
	}
	return &FormatInventory{Title: info.Title, Formats: info.Formats}, nil
}

func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat artifact: %w", err)
	}
	return fi.Size(), nil
}

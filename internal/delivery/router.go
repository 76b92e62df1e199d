// Package delivery routes a finished artifact to the upload path that
// can carry it, then records the resulting handle in the variant cache.
// The router is the only writer of cache entries.
package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iconidentify/mediarelay/internal/config"
	"github.com/iconidentify/mediarelay/internal/domain"
	"github.com/iconidentify/mediarelay/internal/metrics"
)

// UploadResult carries the reusable handle a delivery produced.
type UploadResult struct {
	Handle       domain.Handle
	HandleUnique string
}

// MessageRef points at a message the secondary identity posted, so the
// primary identity can forward it.
type MessageRef struct {
	Channel   string
	MessageID int64
}

// PrimaryUploader is the identity whose handles are served to clients.
// It is subject to the direct-upload size limit.
type PrimaryUploader interface {
	// UploadSmall sends the artifact directly. Only valid for
	// artifacts at or under the size threshold.
	UploadSmall(ctx context.Context, art *domain.Artifact) (UploadResult, error)

	// Forward copies a relayed message into the primary identity's
	// scope; the handle of the forwarded copy is the reusable one.
	Forward(ctx context.Context, ref MessageRef) (UploadResult, error)
}

// SecondaryUploader is the large-file identity used for the relay path.
type SecondaryUploader interface {
	SendTo(ctx context.Context, target string, art *domain.Artifact) (MessageRef, error)
}

// Store is the router's view of the variant cache.
type Store interface {
	Put(ctx context.Context, entry *domain.CacheEntry) error
}

// Router decides between direct upload and the relay path by artifact
// size, then persists the handle.
type Router struct {
	primary   PrimaryUploader
	secondary SecondaryUploader
	store     Store
	cfg       config.DeliveryConfig
	logger    *slog.Logger
}

func NewRouter(
	primary PrimaryUploader,
	secondary SecondaryUploader,
	store Store,
	cfg config.DeliveryConfig,
	logger *slog.Logger,
) *Router {
	return &Router{
		primary:   primary,
		secondary: secondary,
		store:     store,
		cfg:       cfg,
		logger:    logger,
	}
}

// Deliver uploads the artifact and writes the cache entry under the
// variant that was originally requested, so the next request for the
// same pair is a cache hit even when the artifact came from a fallback
// recipe. Artifacts at the threshold exactly still go direct.
func (r *Router) Deliver(
	ctx context.Context,
	key domain.ContentKey,
	variant domain.VariantKey,
	art *domain.Artifact,
) (*domain.CacheEntry, error) {
	var (
		res UploadResult
		err error
	)
	if art.Size <= r.cfg.SizeThreshold {
		res, err = r.primary.UploadSmall(ctx, art)
		if err == nil {
			metrics.DirectDeliveries.Inc()
		}
	} else {
		res, err = r.relay(ctx, art)
		if err == nil {
			metrics.RelayDeliveries.Inc()
		}
	}
	if err != nil {
		return nil, err
	}

	entry := &domain.CacheEntry{
		ContentKey:   key.Canonical(),
		VariantKey:   variant,
		Kind:         art.Kind,
		Handle:       res.Handle,
		HandleUnique: res.HandleUnique,
		Width:        art.Width,
		Height:       art.Height,
		Duration:     art.Duration,
		Size:         art.Size,
		RecipeUsed:   art.RecipeUsed,
		Title:        art.Title,
		SourceURL:    art.SourceURL,
	}
	// A lost cache write breaks the dedup guarantee, so the request
	// fails even though the upload itself went through.
	if err := r.store.Put(ctx, entry); err != nil {
		r.logger.Error("cache write failed after delivery",
			"content_key", key,
			"variant", variant,
			"error", err,
		)
		return nil, fmt.Errorf("record delivered handle: %w", err)
	}
	return entry, nil
}

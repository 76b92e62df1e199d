package delivery

import (
	"context"
	"strconv"

	"github.com/iconidentify/mediarelay/internal/domain"
	"github.com/iconidentify/mediarelay/internal/metrics"
)

// Relay step numbers, kept stable for error reporting and metrics.
const (
	relayStepDM      = 1
	relayStepChannel = 2
	relayStepForward = 3
)

// relay moves an oversized artifact through the secondary identity.
// The secondary first drops a copy in the primary's DM for history,
// then posts to the shared relay channel, and finally the primary
// forwards the channel copy so the reusable handle belongs to it. A
// failure at any step aborts the whole delivery; no cache entry is
// written for a partial relay.
func (r *Router) relay(ctx context.Context, art *domain.Artifact) (UploadResult, error) {
	if r.cfg.PrimaryDM != "" {
		if _, err := r.secondary.SendTo(ctx, r.cfg.PrimaryDM, art); err != nil {
			metrics.RelayFailures.WithLabelValues(strconv.Itoa(relayStepDM)).Inc()
			return UploadResult{}, domain.NewRelayError(relayStepDM, err)
		}
	}

	ref, err := r.secondary.SendTo(ctx, r.cfg.RelayChannel, art)
	if err != nil {
		metrics.RelayFailures.WithLabelValues(strconv.Itoa(relayStepChannel)).Inc()
		return UploadResult{}, domain.NewRelayError(relayStepChannel, err)
	}

	res, err := r.primary.Forward(ctx, ref)
	if err != nil {
		metrics.RelayFailures.WithLabelValues(strconv.Itoa(relayStepForward)).Inc()
		return UploadResult{}, domain.NewRelayError(relayStepForward, err)
	}

	r.logger.Info("relayed oversized artifact",
		"size", art.Size,
		"channel", ref.Channel,
		"message_id", ref.MessageID,
	)
	return res, nil
}

package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunPurger deletes expired sessions every interval until ctx is cancelled.
// Storage TTLs evict on their own; this covers backends without one.
func RunPurger(ctx context.Context, sessions *Sessions, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		return
	}
	logger = logger.With().Str("component", "session-purger").Logger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpired(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("purge failed")
				continue
			}
			if n > 0 {
				logger.Info().Int64("deleted", n).Msg("purged expired sessions")
			}
		}
	}
}

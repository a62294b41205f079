// internal/consumer/consumer.go

// Package consumer reads the sample buffer on its own schedule.
// Consumers never append; the poller is the only producer.
package consumer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-acquisition/internal/buffer"
)

// View is the read-only half of the sample buffer.
type View interface {
	Keys() []buffer.Key
	Snapshot(sourceID uint8, channel string) []buffer.Sample
	SnapshotRate(sourceID uint8, channel string, window time.Duration) int
	Total(sourceID uint8, channel string) uint64
}

// Consumer is invoked periodically with the buffer view.
type Consumer interface {
	Name() string
	Consume(ctx context.Context, v View) error
}

// Run calls c every interval until ctx is done.
// Consumer errors are logged, never fatal.
func Run(ctx context.Context, interval time.Duration, v View, c Consumer, log zerolog.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	log = log.With().Str("consumer", c.Name()).Logger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("consumer started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("consumer stopped")
			return
		case <-ticker.C:
			if err := c.Consume(ctx, v); err != nil {
				log.Warn().Err(err).Msg("consume failed")
			}
		}
	}
}

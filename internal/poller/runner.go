// internal/poller/runner.go
package poller

import (
	"context"

	"golang.org/x/time/rate"
)

// Run ticks until ctx is done. One goroutine per bus. No overlap.
// The client is disconnected on every exit path.
func (p *Poller) Run(ctx context.Context) error {
	defer func() {
		if err := p.client.Disconnect(); err != nil {
			p.log.Warn().Err(err).Msg("disconnect on exit")
		}
		p.log.Info().Msg("poller stopped")
	}()

	pace := max(p.cfg.Interval, p.cfg.MinYield)
	lim := rate.NewLimiter(rate.Every(pace), 1)

	p.log.Info().
		Dur("pace", pace).
		Int("sources", len(p.cfg.Sources)).
		Strs("channels", p.cfg.Channels).
		Bool("enabled", p.Enabled()).
		Msg("poller running")

	for {
		if !p.Enabled() {
			select {
			case <-ctx.Done():
				return nil
			case <-p.wake:
				continue
			}
		}

		if err := lim.Wait(ctx); err != nil {
			return nil
		}
		p.Tick(ctx)
	}
}

// internal/poller/builder.go
package poller

import (
	"errors"

	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/modbus-acquisition/internal/config"
	"github.com/tamzrod/modbus-acquisition/internal/device"
)

// Build constructs the device client and poller for one bus.
// The link is not opened here: the first tick connects, so a dead port at
// startup does not keep the other buses from running.
func Build(b cfg.BusConfig, store Store, log zerolog.Logger, opts ...device.Option) (*Poller, error) {
	if len(b.Sources) == 0 {
		return nil, errors.New("poller: bus has no sources")
	}
	opts = append([]device.Option{device.WithLogger(log.With().Str("bus", b.Name).Logger())}, opts...)

	client, err := device.New(device.Config{
		Link:       b.LinkConfig(),
		SourceID:   b.Sources[0],
		MaxRetries: b.Retry.MaxRetries,
		RetryDelay: b.Retry.Delay(),
		Decoder: device.Decoder{
			Divisor: b.Decode.Divisor,
			Signed:  b.Decode.Signed,
		},
	}, opts...)
	if err != nil {
		return nil, err
	}

	return New(
		Config{
			Bus:          b.Name,
			Sources:      b.Sources,
			Channels:     b.Channels,
			Interval:     b.Poll.Interval,
			MinYield:     b.Poll.MinYield,
			ResetAfter:   b.Retry.ResetAfter,
			StartEnabled: b.Poll.Enabled(),
		},
		client,
		store,
		WithLogger(log),
	)
}

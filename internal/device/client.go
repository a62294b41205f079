// internal/device/client.go

// Package device wraps a Link with the reconnect state machine and the decode step.
//
//	Disconnected --connect ok------------------> Connected
//	Connected    --transient read failure------> Disconnected
//	Disconnected --connect fail, retries left--> Disconnected (after RetryDelay)
//	Disconnected --retries exhausted-----------> Failed (until Reset or Connect)
//
// Connection retry is slow and bounded. Per-read transient failures are not retried
// here; the poller's next tick is the retry.
package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-acquisition/internal/link"
	"github.com/tamzrod/modbus-acquisition/internal/metrics"
	"github.com/tamzrod/modbus-acquisition/internal/status"
)

// Config is the static configuration of a client.
type Config struct {
	Link link.Config

	// SourceID is the default slave address, used by ReadDefault.
	SourceID uint8

	// StartRegister is the first holding register read (0 by convention).
	StartRegister uint16

	MaxRetries int
	RetryDelay time.Duration

	Decoder Decoder
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client is a resilient Modbus master for one link.
type Client struct {
	cfg   Config
	open  link.Opener
	sleep SleepFunc
	log   zerolog.Logger

	opMu  sync.Mutex // serializes Connect, Read, Disconnect, Reset
	link  link.Link
	state atomic.Int32
}

// Option customizes a Client.
type Option func(*Client)

// WithOpener replaces link.Open.
func WithOpener(o link.Opener) Option {
	return func(c *Client) { c.open = o }
}

// WithSleep replaces the retry delay wait.
func WithSleep(s SleepFunc) Option {
	return func(c *Client) { c.sleep = s }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Disconnected client. It does not open the link.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.MaxRetries <= 0 {
		return nil, errors.New("device: max retries must be > 0")
	}
	if cfg.RetryDelay < 0 {
		return nil, errors.New("device: retry delay must be >= 0")
	}
	if cfg.Decoder.Divisor == 0 {
		cfg.Decoder = DefaultDecoder
	}

	c := &Client{
		cfg:   cfg,
		open:  link.Open,
		sleep: sleepCtx,
		log:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With().Str("address", cfg.Link.Address).Logger()
	c.setState(status.Disconnected)
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() status.State {
	return status.State(c.state.Load())
}

// Address returns the link address.
func (c *Client) Address() string {
	return c.cfg.Link.Address
}

// Connect opens the link, retrying with a fixed delay.
// A Connected client returns nil immediately. On a Failed client this is the
// manual reconnect: success clears Failed.
func (c *Client) Connect(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.State() == status.Connected && c.link != nil && c.link.IsOpen() {
		return nil
	}
	c.dropLink()
	c.setState(status.Connecting)

	var last error
	attempts := 0
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		attempts = attempt
		l, err := c.open(c.cfg.Link)
		if err == nil {
			c.link = l
			c.setState(status.Connected)
			metrics.ConnectAttempts.WithLabelValues(c.cfg.Link.Address, "ok").Inc()
			c.log.Info().Int("attempt", attempt).Msg("link connected")
			return nil
		}
		last = err
		metrics.ConnectAttempts.WithLabelValues(c.cfg.Link.Address, "error").Inc()

		if link.KindOf(err) == link.KindInvalidConfig {
			// retrying cannot fix the configuration
			c.log.Error().Err(err).Msg("invalid link configuration")
			break
		}

		c.log.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_retries", c.cfg.MaxRetries).
			Msg("link open failed")

		if attempt == c.cfg.MaxRetries {
			break
		}
		if err := c.sleep(ctx, c.cfg.RetryDelay); err != nil {
			c.setState(status.Disconnected)
			return err
		}
	}

	c.setState(status.Failed)
	c.log.Error().Err(last).Int("attempts", attempts).Msg("connect retries exhausted, client failed")
	return &ConnectError{Address: c.cfg.Link.Address, Attempts: attempts, Last: last}
}

// Read reads count registers from sourceID and decodes them.
// A client that is not Connected connects first, within the same call.
func (c *Client) Read(ctx context.Context, sourceID uint8, count uint16) ([]float64, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	switch c.State() {
	case status.Failed:
		return nil, ErrFailed
	case status.Connected:
		if c.link == nil || !c.link.IsOpen() {
			c.dropLink()
			c.setState(status.Disconnected)
		}
	}

	if c.State() != status.Connected {
		if err := c.connectLocked(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.link.Transact(link.Request{
		SourceID: sourceID,
		Address:  c.cfg.StartRegister,
		Quantity: count,
	})
	if err != nil {
		rerr := readError(sourceID, err)
		if rerr.Kind == ReadTransient {
			c.dropLink()
			c.setState(status.Disconnected)
		}
		return nil, rerr
	}

	return c.cfg.Decoder.Decode(resp.Registers), nil
}

// ReadDefault reads from the configured default source.
func (c *Client) ReadDefault(ctx context.Context, count uint16) ([]float64, error) {
	return c.Read(ctx, c.cfg.SourceID, count)
}

// Disconnect closes the link if open and leaves the client Disconnected.
func (c *Client) Disconnect() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	err := c.dropLink()
	c.setState(status.Disconnected)
	return err
}

// Reset clears Failed without connecting.
func (c *Client) Reset() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.State() == status.Failed {
		c.setState(status.Disconnected)
		c.log.Info().Msg("client reset")
	}
}

func (c *Client) dropLink() error {
	if c.link == nil {
		return nil
	}
	err := c.link.Close()
	c.link = nil
	if err != nil {
		c.log.Debug().Err(err).Msg("link close failed")
	}
	return err
}

func (c *Client) setState(s status.State) {
	c.state.Store(int32(s))
	metrics.ConnectionState.WithLabelValues(c.cfg.Link.Address).Set(float64(s))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

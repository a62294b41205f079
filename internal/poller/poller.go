// internal/poller/poller.go

// Package poller drives one bus: it reads every configured source round-robin
// and appends the decoded channels to the sample buffer.
package poller

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-acquisition/internal/buffer"
	"github.com/tamzrod/modbus-acquisition/internal/device"
	"github.com/tamzrod/modbus-acquisition/internal/metrics"
	"github.com/tamzrod/modbus-acquisition/internal/status"
)

// DefaultMinYield is the pause floor between ticks.
const DefaultMinYield = time.Millisecond

// Reader abstracts the device client operations needed by the poller.
type Reader interface {
	Read(ctx context.Context, sourceID uint8, count uint16) ([]float64, error)
	State() status.State
	Reset()
	Disconnect() error
	Address() string
}

// Store is the producer half of the sample buffer.
type Store interface {
	Append(sourceID uint8, channel string, value float64, at time.Time) buffer.Sample
	SnapshotRate(sourceID uint8, channel string, window time.Duration) int
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Bus      string
	Sources  []uint8
	Channels []string // one per register, in register order

	Interval time.Duration // 0 = as fast as possible
	MinYield time.Duration

	// ResetAfter revives a Failed client after this long. 0 = explicit reset only.
	ResetAfter time.Duration

	StartEnabled bool
}

// Poller is a round-robin reader for one bus.
type Poller struct {
	cfg    Config
	client Reader
	store  Store
	log    zerolog.Logger
	now    func() time.Time

	enabled atomic.Bool
	wake    chan struct{}

	mu       sync.Mutex
	statuses map[uint8]*status.SourceStatus
	failedAt time.Time
}

// Option customizes a Poller.
type Option func(*Poller)

// WithLogger sets the poller logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) { p.log = l }
}

// WithClock replaces time.Now for sample timestamps and status.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// New creates a poller with immutable config.
func New(cfg Config, client Reader, store Store, opts ...Option) (*Poller, error) {
	if cfg.Bus == "" {
		return nil, errors.New("poller: bus name required")
	}
	if client == nil || store == nil {
		return nil, errors.New("poller: client and store required")
	}
	if len(cfg.Sources) == 0 {
		return nil, errors.New("poller: at least one source required")
	}
	if len(cfg.Channels) == 0 || len(cfg.Channels) > 125 {
		return nil, errors.New("poller: 1 to 125 channels required")
	}
	if cfg.Interval < 0 || cfg.MinYield < 0 || cfg.ResetAfter < 0 {
		return nil, errors.New("poller: durations must be >= 0")
	}
	if cfg.MinYield == 0 {
		cfg.MinYield = DefaultMinYield
	}

	p := &Poller{
		cfg:      cfg,
		client:   client,
		store:    store,
		log:      zerolog.Nop(),
		now:      time.Now,
		wake:     make(chan struct{}, 1),
		statuses: make(map[uint8]*status.SourceStatus, len(cfg.Sources)),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With().Str("bus", cfg.Bus).Logger()

	for _, sid := range cfg.Sources {
		p.statuses[sid] = &status.SourceStatus{Bus: cfg.Bus, SourceID: sid}
	}
	p.enabled.Store(cfg.StartEnabled)
	metrics.PollEnabled.WithLabelValues(cfg.Bus).Set(boolGauge(cfg.StartEnabled))
	return p, nil
}

// Bus returns the bus name.
func (p *Poller) Bus() string { return p.cfg.Bus }

// State returns the client connection state.
func (p *Poller) State() status.State { return p.client.State() }

// Enabled reports the Start/Stop toggle.
func (p *Poller) Enabled() bool { return p.enabled.Load() }

// SetEnabled flips the Start/Stop toggle. It takes effect between ticks.
func (p *Poller) SetEnabled(on bool) {
	if p.enabled.Swap(on) == on {
		return
	}
	metrics.PollEnabled.WithLabelValues(p.cfg.Bus).Set(boolGauge(on))
	if on {
		p.log.Info().Msg("polling started")
		select {
		case p.wake <- struct{}{}:
		default:
		}
	} else {
		p.log.Info().Msg("polling stopped")
	}
}

// Reset clears a Failed client so the next tick reconnects.
func (p *Poller) Reset() {
	wasFailed := p.client.State() == status.Failed
	p.client.Reset()
	p.mu.Lock()
	p.failedAt = time.Time{}
	p.mu.Unlock()
	if wasFailed {
		p.log.Info().Msg("bus reset")
	}
}

// Tick reads every source once. No-op while disabled.
// Errors are logged and counted; none of them stops the poller.
func (p *Poller) Tick(ctx context.Context) TickResult {
	if !p.Enabled() {
		return TickResult{At: p.now(), Skipped: true}
	}
	p.autoReset()

	res := TickResult{
		At:      p.now(),
		Sources: make([]SourceResult, 0, len(p.cfg.Sources)),
	}
	count := uint16(len(p.cfg.Channels))

	for _, sid := range p.cfg.Sources {
		// shutdown and stop are honoured between reads, never mid-transaction
		if ctx.Err() != nil || !p.Enabled() {
			break
		}

		start := time.Now()
		values, err := p.client.Read(ctx, sid, count)
		metrics.ReadDuration.WithLabelValues(p.cfg.Bus).Observe(time.Since(start).Seconds())

		res.Sources = append(res.Sources, p.record(sid, values, err, p.now()))
	}
	return res
}

// record appends a successful read or classifies a failure.
func (p *Poller) record(sid uint8, values []float64, err error, at time.Time) SourceResult {
	r := SourceResult{SourceID: sid, Err: err}
	src := strconv.Itoa(int(sid))
	log := p.log.With().Uint8("source_id", sid).Logger()

	if err == nil {
		n := min(len(values), len(p.cfg.Channels))
		for i := 0; i < n; i++ {
			ch := p.cfg.Channels[i]
			p.store.Append(sid, ch, values[i], at)
			metrics.SamplesTotal.WithLabelValues(p.cfg.Bus, src, ch).Inc()
		}
		r.Outcome = OutcomeOK
		r.Samples = n
		p.mark(sid, func(s *status.SourceStatus) {
			if s.Health == status.HealthError || s.Health == status.HealthFailed {
				log.Info().
					Uint16("seconds_in_error", s.SecondsInError(at)).
					Uint32("errors", s.ConsecutiveErrors).
					Msg("source recovered")
			}
			s.MarkOK(at)
		})
		return r
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.Outcome = OutcomeCancelled
		return r

	case errors.Is(err, device.ErrRemoteRejected):
		r.Outcome = OutcomeRejected
		log.Warn().Err(err).Msg("read rejected")

	case errors.Is(err, device.ErrRetriesExhausted):
		r.Outcome = OutcomeFailed
		log.Error().Err(err).Str("address", p.client.Address()).Msg("connect retries exhausted, source failed")
		p.mu.Lock()
		if p.failedAt.IsZero() {
			p.failedAt = at
		}
		p.mu.Unlock()

	case errors.Is(err, device.ErrFailed):
		r.Outcome = OutcomeFailed
		log.Debug().Msg("client failed, waiting for reset")

	default:
		r.Outcome = OutcomeTransient
		log.Warn().Err(err).Msg("read failed, retrying next tick")
	}

	health := status.HealthError
	if r.Outcome == OutcomeFailed {
		health = status.HealthFailed
	}
	metrics.ReadErrors.WithLabelValues(p.cfg.Bus, src, r.Outcome.String()).Inc()
	p.mark(sid, func(s *status.SourceStatus) { s.MarkError(at, health, err) })
	return r
}

func (p *Poller) mark(sid uint8, fn func(*status.SourceStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.statuses[sid]; ok {
		fn(s)
	}
}

// autoReset revives a Failed client once ResetAfter has elapsed.
func (p *Poller) autoReset() {
	if p.cfg.ResetAfter <= 0 || p.client.State() != status.Failed {
		return
	}
	p.mu.Lock()
	since := p.failedAt
	p.mu.Unlock()
	if since.IsZero() || p.now().Sub(since) < p.cfg.ResetAfter {
		return
	}
	p.log.Info().Dur("after", p.cfg.ResetAfter).Msg("auto reset of failed client")
	p.Reset()
}

// Statuses returns a copy of every source status, ordered by source id.
func (p *Poller) Statuses() []status.SourceStatus {
	state := p.client.State().String()
	enabled := p.Enabled()

	p.mu.Lock()
	out := make([]status.SourceStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		c := *s
		c.State = state
		if !enabled {
			c.Health = status.HealthDisabled
		}
		c.HealthName = status.HealthName(c.Health)
		out = append(out, c)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Rates returns the sample count per series within the trailing window.
func (p *Poller) Rates(window time.Duration) map[buffer.Key]int {
	out := make(map[buffer.Key]int, len(p.cfg.Sources)*len(p.cfg.Channels))
	for _, sid := range p.cfg.Sources {
		for _, ch := range p.cfg.Channels {
			out[buffer.Key{SourceID: sid, Channel: ch}] = p.store.SnapshotRate(sid, ch, window)
		}
	}
	return out
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// internal/consumer/rates.go
package consumer

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-acquisition/internal/buffer"
	"github.com/tamzrod/modbus-acquisition/internal/metrics"
)

// ChannelRate is the throughput of one series.
type ChannelRate struct {
	SourceID  uint8   `json:"source_id"`
	Channel   string  `json:"channel"`
	PerSecond float64 `json:"per_second"`
	Total     uint64  `json:"total"`
}

// RateReport is one evaluation of the rate reporter.
type RateReport struct {
	At         time.Time     `json:"at"`
	Window     time.Duration `json:"window_ns"`
	Channels   []ChannelRate `json:"channels"`
	Total      float64       `json:"total_per_second"`
	Average    float64       `json:"average_per_second"`
	SinceStart float64       `json:"since_start_per_second"` // cumulative points / elapsed
}

// RateReporter computes per-channel throughput over a trailing window.
type RateReporter struct {
	window time.Duration
	log    zerolog.Logger
	now    func() time.Time
	start  time.Time

	mu   sync.RWMutex
	last RateReport
}

// NewRateReporter creates a reporter. window <= 0 means one second.
func NewRateReporter(window time.Duration, log zerolog.Logger) *RateReporter {
	if window <= 0 {
		window = time.Second
	}
	r := &RateReporter{window: window, log: log, now: time.Now}
	r.start = r.now()
	return r
}

// WithClock replaces time.Now. The start time is reset to the new clock.
func (r *RateReporter) WithClock(now func() time.Time) *RateReporter {
	r.now = now
	r.start = now()
	return r
}

func (r *RateReporter) Name() string { return "rates" }

// Consume evaluates rates, updates the gauges and logs a summary line.
func (r *RateReporter) Consume(_ context.Context, v View) error {
	rep := r.Evaluate(v)

	for _, c := range rep.Channels {
		metrics.ChannelRate.WithLabelValues(strconv.Itoa(int(c.SourceID)), c.Channel).Set(c.PerSecond)
	}

	ev := r.log.Info().
		Float64("total_per_second", rep.Total).
		Float64("average_per_second", rep.Average).
		Float64("since_start_per_second", rep.SinceStart)
	rates := zerolog.Dict()
	for _, c := range rep.Channels {
		rates.Float64(buffer.Key{SourceID: c.SourceID, Channel: c.Channel}.String(), c.PerSecond)
	}
	ev.Dict("rates", rates).Msg("acquisition rate")

	r.mu.Lock()
	r.last = rep
	r.mu.Unlock()
	return nil
}

// Evaluate computes a report without side effects.
func (r *RateReporter) Evaluate(v View) RateReport {
	now := r.now()
	rep := RateReport{At: now, Window: r.window}
	secs := r.window.Seconds()

	var cumulative uint64
	for _, k := range v.Keys() {
		n := v.SnapshotRate(k.SourceID, k.Channel, r.window)
		total := v.Total(k.SourceID, k.Channel)
		cr := ChannelRate{
			SourceID:  k.SourceID,
			Channel:   k.Channel,
			PerSecond: float64(n) / secs,
			Total:     total,
		}
		rep.Channels = append(rep.Channels, cr)
		rep.Total += cr.PerSecond
		cumulative += total
	}
	if len(rep.Channels) > 0 {
		rep.Average = rep.Total / float64(len(rep.Channels))
	}
	if elapsed := now.Sub(r.start).Seconds(); elapsed > 0 {
		rep.SinceStart = float64(cumulative) / elapsed
	}
	return rep
}

// Last returns the most recent report.
func (r *RateReporter) Last() RateReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

var _ Consumer = (*RateReporter)(nil)
var _ View = (*buffer.Buffer)(nil)

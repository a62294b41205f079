// internal/buffer/buffer.go

// Package buffer holds the rolling sample windows shared by pollers and consumers.
//
// One Buffer is created per acquisition session and passed to the pollers (writers)
// and consumers (readers). All access goes through a single RWMutex, so a reader
// never sees a series with a length that disagrees with its sequence indices.
package buffer

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// DefaultCapacity is the rolling window length per series.
const DefaultCapacity = 500

// Key identifies one series.
type Key struct {
	SourceID uint8  `json:"source_id"`
	Channel  string `json:"channel"`
}

func (k Key) String() string {
	return strconv.Itoa(int(k.SourceID)) + "/" + k.Channel
}

// Sample is one decoded value. Immutable once appended.
type Sample struct {
	Seq     uint64    `json:"seq"`
	Channel string    `json:"channel"`
	Value   float64   `json:"value"`
	At      time.Time `json:"at"`
}

// Buffer is a fixed-capacity rolling window per (source, channel).
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	series   map[Key]*series
	now      func() time.Time
}

// New creates a buffer. capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		series:   make(map[Key]*series),
		now:      time.Now,
	}
}

// WithClock replaces the clock used by SnapshotRate.
func (b *Buffer) WithClock(now func() time.Time) *Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	return b
}

// Capacity returns the per-series window length.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Append assigns the next sequence index of the series and pushes the sample,
// evicting the oldest one when the window is full.
func (b *Buffer) Append(sourceID uint8, channel string, value float64, at time.Time) Sample {
	k := Key{SourceID: sourceID, Channel: channel}

	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.series[k]
	if !ok {
		s = newSeries(b.capacity)
		b.series[k] = s
	}

	smp := Sample{Seq: s.next, Channel: channel, Value: value, At: at}
	s.push(smp)
	return smp
}

// Snapshot returns a copy of the current window, oldest first.
func (b *Buffer) Snapshot(sourceID uint8, channel string) []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.series[Key{SourceID: sourceID, Channel: channel}]
	if !ok {
		return nil
	}
	return s.copy()
}

// SnapshotRate counts samples captured within the trailing window ending now.
func (b *Buffer) SnapshotRate(sourceID uint8, channel string, window time.Duration) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.series[Key{SourceID: sourceID, Channel: channel}]
	if !ok || window < 0 {
		return 0
	}

	now := b.now()
	from := now.Add(-window)

	n := 0
	s.each(func(smp Sample) {
		if !smp.At.Before(from) && !smp.At.After(now) {
			n++
		}
	})
	return n
}

// PruneBefore drops samples whose sequence index is below minSeq.
// It returns the number of samples removed.
func (b *Buffer) PruneBefore(sourceID uint8, channel string, minSeq uint64) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.series[Key{SourceID: sourceID, Channel: channel}]
	if !ok {
		return 0
	}
	return s.dropBefore(minSeq)
}

// Total returns the number of samples ever appended to the series.
func (b *Buffer) Total(sourceID uint8, channel string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.series[Key{SourceID: sourceID, Channel: channel}]
	if !ok {
		return 0
	}
	return s.next
}

// Keys returns all series keys ordered by source then channel.
func (b *Buffer) Keys() []Key {
	b.mu.RLock()
	keys := make([]Key, 0, len(b.series))
	for k := range b.series {
		keys = append(keys, k)
	}
	b.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SourceID != keys[j].SourceID {
			return keys[i].SourceID < keys[j].SourceID
		}
		return keys[i].Channel < keys[j].Channel
	})
	return keys
}

// internal/server/server_test.go
package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/modbus-acquisition/internal/buffer"
	"github.com/tamzrod/modbus-acquisition/internal/status"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeBus struct {
	name    string
	state   status.State
	enabled bool
	resets  int
	window  time.Duration
	rates   map[buffer.Key]int
}

func (b *fakeBus) Bus() string         { return b.name }
func (b *fakeBus) State() status.State { return b.state }
func (b *fakeBus) Enabled() bool       { return b.enabled }
func (b *fakeBus) SetEnabled(on bool)  { b.enabled = on }
func (b *fakeBus) Reset()              { b.resets++; b.state = status.Disconnected }

func (b *fakeBus) Statuses() []status.SourceStatus {
	return []status.SourceStatus{{Bus: b.name, SourceID: 2, Health: status.HealthOK, HealthName: "ok", State: b.state.String()}}
}
func (b *fakeBus) Rates(w time.Duration) map[buffer.Key]int {
	b.window = w
	return b.rates
}

func newTestServer(t *testing.T, buses ...Bus) (*Server, *buffer.Buffer) {
	t.Helper()
	buf := buffer.New(10)
	return New("localhost:0", 1000, 1000, buses, buf, zerolog.Nop()), buf
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReady(t *testing.T) {
	a := &fakeBus{name: "a", state: status.Failed}
	b := &fakeBus{name: "b", state: status.Disconnected}
	s, _ := newTestServer(t, a, b)
	h := s.Handler()

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/ready").Code)

	b.state = status.Connected
	rec := do(t, h, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "READY", rec.Body.String())
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSources(t *testing.T) {
	s, _ := newTestServer(t, &fakeBus{name: "rs485-0", state: status.Connected, enabled: true})
	rec := do(t, s.Handler(), http.MethodGet, "/api/sources")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var out []busStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "connected", out[0].State)
	assert.True(t, out[0].Enabled)
	assert.Equal(t, uint8(2), out[0].Sources[0].SourceID)
}

func TestSnapshot(t *testing.T) {
	s, buf := newTestServer(t)
	for i := 0; i < 4; i++ {
		buf.Append(2, "A0", float64(i), t0)
	}
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/snapshot?source=2&channel=A0")
	require.Equal(t, http.StatusOK, rec.Code)
	var out snapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, uint64(4), out.Total)
	assert.Len(t, out.Samples, 4)

	rec = do(t, h, http.MethodGet, "/api/snapshot?source=2&channel=A0&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Samples, 2)
	assert.Equal(t, uint64(3), out.Samples[1].Seq)
}

func TestSnapshotBadRequests(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	cases := map[string]int{
		"/api/snapshot?channel=A0":            http.StatusBadRequest,
		"/api/snapshot?source=0&channel=A0":   http.StatusBadRequest,
		"/api/snapshot?source=300&channel=A0": http.StatusBadRequest,
		"/api/snapshot?source=2":              http.StatusBadRequest,
		"/api/snapshot?source=2&channel=A9":   http.StatusNotFound,
	}
	for target, want := range cases {
		assert.Equal(t, want, do(t, h, http.MethodGet, target).Code, target)
	}
}

func TestRates(t *testing.T) {
	bus := &fakeBus{name: "b0", rates: map[buffer.Key]int{
		{SourceID: 2, Channel: "A1"}: 5,
		{SourceID: 2, Channel: "A0"}: 10,
	}}
	s, _ := newTestServer(t, bus)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/rates?window=500ms")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500*time.Millisecond, bus.window)

	var out []rateEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "A0", out[0].Channel)
	assert.Equal(t, 20.0, out[0].PerSecond)

	do(t, h, http.MethodGet, "/api/rates")
	assert.Equal(t, time.Second, bus.window)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/rates?window=-1s").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/rates?window=soon").Code)
}

func TestPollToggle(t *testing.T) {
	a := &fakeBus{name: "a", enabled: true}
	b := &fakeBus{name: "b", enabled: true}
	s, _ := newTestServer(t, a, b)
	h := s.Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/poll/stop?bus=a").Code)
	assert.False(t, a.enabled)
	assert.True(t, b.enabled)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/poll/stop").Code)
	assert.False(t, b.enabled)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/poll/start").Code)
	assert.True(t, a.enabled)
	assert.True(t, b.enabled)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/poll/start?bus=zzz").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/poll/start").Code)
}

func TestReset(t *testing.T) {
	a := &fakeBus{name: "a", state: status.Failed}
	s, _ := newTestServer(t, a)
	h := s.Handler()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/bus/reset").Code)

	rec := do(t, h, http.MethodPost, "/api/bus/reset?bus=a")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, a.resets)
	assert.True(t, strings.Contains(rec.Body.String(), `"state":"disconnected"`))
}

func TestRateLimit(t *testing.T) {
	s := New("localhost:0", 1, 2, nil, buffer.New(1), zerolog.Nop())
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/health").Code)

	// metrics is not limited
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics").Code)
}

func TestResetLogsOnlyFailedBus(t *testing.T) {
	var out bytes.Buffer
	a := &fakeBus{name: "a", state: status.Connected}
	s := New("localhost:0", 1000, 1000, []Bus{a}, buffer.New(1), zerolog.New(&out))
	h := s.Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/bus/reset?bus=a").Code)
	assert.NotContains(t, out.String(), "bus reset requested")

	a.state = status.Failed
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/bus/reset?bus=a").Code)
	assert.Contains(t, out.String(), "bus reset requested")
}

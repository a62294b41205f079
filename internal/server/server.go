// internal/server/server.go

// Package server exposes metrics, health and read-only acquisition queries over HTTP,
// plus the Start/Stop and reset controls of each bus.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tamzrod/modbus-acquisition/internal/buffer"
	"github.com/tamzrod/modbus-acquisition/internal/status"
)

const defaultRateWindow = time.Second

// Bus is the poller surface the server controls.
type Bus interface {
	Bus() string
	State() status.State
	Enabled() bool
	SetEnabled(on bool)
	Reset()
	Statuses() []status.SourceStatus
	Rates(window time.Duration) map[buffer.Key]int
}

// View is the read-only buffer surface the server queries.
type View interface {
	Snapshot(sourceID uint8, channel string) []buffer.Sample
	Total(sourceID uint8, channel string) uint64
}

// Server is the HTTP surface.
type Server struct {
	buses   []Bus
	byName  map[string]Bus
	view    View
	limiter *rate.Limiter
	log     zerolog.Logger
	http    *http.Server
}

// New builds the server. rps and burst bound the request rate of every route but /metrics.
func New(addr string, rps float64, burst int, buses []Bus, view View, log zerolog.Logger) *Server {
	s := &Server{
		buses:   buses,
		byName:  make(map[string]Bus, len(buses)),
		view:    view,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}
	for _, b := range buses {
		s.byName[b.Bus()] = b
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", s.limit(s.handleHealth))
	mux.HandleFunc("GET /ready", s.limit(s.handleReady))

	mux.HandleFunc("GET /api/sources", s.limit(s.handleSources))
	mux.HandleFunc("GET /api/snapshot", s.limit(s.handleSnapshot))
	mux.HandleFunc("GET /api/rates", s.limit(s.handleRates))

	mux.HandleFunc("POST /api/poll/start", s.limit(s.handlePoll(true)))
	mux.HandleFunc("POST /api/poll/stop", s.limit(s.handlePoll(false)))
	mux.HandleFunc("POST /api/bus/reset", s.limit(s.handleReset))
	return mux
}

// ListenAndServe blocks until Shutdown. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// limit wraps a handler with the shared rate limiter.
func (s *Server) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.log.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("rate limit exceeded")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// ---- health ----

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		s.log.Error().Err(err).Msg("failed to write health response")
	}
}

// handleReady reports ready once at least one bus holds an open link.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	for _, b := range s.buses {
		if b.State() == status.Connected {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("READY")); err != nil {
				s.log.Error().Err(err).Msg("failed to write readiness response")
			}
			return
		}
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	if _, err := w.Write([]byte("NOT READY: no bus connected")); err != nil {
		s.log.Error().Err(err).Msg("failed to write readiness response")
	}
}

// ---- queries ----

type busStatus struct {
	Bus     string                `json:"bus"`
	State   string                `json:"state"`
	Enabled bool                  `json:"enabled"`
	Sources []status.SourceStatus `json:"sources"`
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	out := make([]busStatus, 0, len(s.buses))
	for _, b := range s.buses {
		out = append(out, describe(b))
	}
	s.writeJSON(w, http.StatusOK, out)
}

type snapshotResponse struct {
	SourceID uint8           `json:"source_id"`
	Channel  string          `json:"channel"`
	Total    uint64          `json:"total"`
	Samples  []buffer.Sample `json:"samples"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sid, err := strconv.ParseUint(q.Get("source"), 10, 8)
	if err != nil || sid < 1 || sid > 247 {
		http.Error(w, "source must be 1-247", http.StatusBadRequest)
		return
	}
	ch := q.Get("channel")
	if ch == "" {
		http.Error(w, "channel required", http.StatusBadRequest)
		return
	}

	samples := s.view.Snapshot(uint8(sid), ch)
	total := s.view.Total(uint8(sid), ch)
	if samples == nil && total == 0 {
		http.Error(w, "unknown series", http.StatusNotFound)
		return
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "limit must be >= 0", http.StatusBadRequest)
			return
		}
		if n < len(samples) {
			samples = samples[len(samples)-n:]
		}
	}
	if samples == nil {
		samples = []buffer.Sample{}
	}

	s.writeJSON(w, http.StatusOK, snapshotResponse{
		SourceID: uint8(sid),
		Channel:  ch,
		Total:    total,
		Samples:  samples,
	})
}

type rateEntry struct {
	Bus       string  `json:"bus"`
	SourceID  uint8   `json:"source_id"`
	Channel   string  `json:"channel"`
	Count     int     `json:"count"`
	PerSecond float64 `json:"per_second"`
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	window := defaultRateWindow
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "window must be a positive duration", http.StatusBadRequest)
			return
		}
		window = d
	}

	out := make([]rateEntry, 0)
	for _, b := range s.buses {
		for k, n := range b.Rates(window) {
			out = append(out, rateEntry{
				Bus:       b.Bus(),
				SourceID:  k.SourceID,
				Channel:   k.Channel,
				Count:     n,
				PerSecond: float64(n) / window.Seconds(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bus != out[j].Bus {
			return out[i].Bus < out[j].Bus
		}
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].Channel < out[j].Channel
	})
	s.writeJSON(w, http.StatusOK, out)
}

// ---- controls ----

// handlePoll toggles one bus (?bus=name) or all of them.
func (s *Server) handlePoll(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targets, ok := s.selectBuses(w, r, false)
		if !ok {
			return
		}
		out := make([]busStatus, 0, len(targets))
		for _, b := range targets {
			b.SetEnabled(on)
			out = append(out, describe(b))
		}
		s.log.Info().Bool("enabled", on).Int("buses", len(targets)).Str("remote_addr", r.RemoteAddr).Msg("poll toggled")
		s.writeJSON(w, http.StatusOK, out)
	}
}

// handleReset clears a Failed bus so its next tick reconnects.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	targets, ok := s.selectBuses(w, r, true)
	if !ok {
		return
	}
	b := targets[0]
	if b.State() == status.Failed {
		s.log.Info().Str("bus", b.Bus()).Str("remote_addr", r.RemoteAddr).Msg("bus reset requested")
	}
	b.Reset()
	s.writeJSON(w, http.StatusOK, describe(b))
}

func (s *Server) selectBuses(w http.ResponseWriter, r *http.Request, required bool) ([]Bus, bool) {
	name := r.URL.Query().Get("bus")
	if name == "" {
		if required {
			http.Error(w, "bus required", http.StatusBadRequest)
			return nil, false
		}
		return s.buses, true
	}
	b, ok := s.byName[name]
	if !ok {
		http.Error(w, "unknown bus", http.StatusNotFound)
		return nil, false
	}
	return []Bus{b}, true
}

func describe(b Bus) busStatus {
	return busStatus{
		Bus:     b.Bus(),
		State:   b.State().String(),
		Enabled: b.Enabled(),
		Sources: b.Statuses(),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("failed to write response")
	}
}

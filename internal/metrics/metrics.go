// internal/metrics/metrics.go

// Package metrics provides Prometheus metrics for the acquisition core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SamplesTotal counts samples appended to the buffer
	SamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acq_samples_total",
		Help: "Total number of decoded samples appended to the sample buffer",
	}, []string{"bus", "source", "channel"})

	// ReadErrors counts failed reads by error kind
	ReadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acq_read_errors_total",
		Help: "Total number of failed register reads by kind (transient, rejected, connect, failed)",
	}, []string{"bus", "source", "kind"})

	// ReadDuration tracks register read latency including implicit reconnects
	ReadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acq_read_duration_seconds",
		Help:    "Duration of one register read transaction in seconds",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"bus"})

	// ConnectAttempts counts link open attempts by outcome
	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acq_connect_attempts_total",
		Help: "Total number of link open attempts by result",
	}, []string{"address", "result"})

	// ConnectionState exposes the client state (0 disconnected, 1 connecting, 2 connected, 3 failed)
	ConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acq_connection_state",
		Help: "Device client connection state (0 disconnected, 1 connecting, 2 connected, 3 failed)",
	}, []string{"address"})

	// ChannelRate is the number of samples per second per channel over the trailing window
	ChannelRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acq_channel_rate_samples_per_second",
		Help: "Samples received per second per channel over the trailing window",
	}, []string{"source", "channel"})

	// PollEnabled is 1 while the bus poller is enabled
	PollEnabled = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acq_poll_enabled",
		Help: "1 while polling is enabled for the bus",
	}, []string{"bus"})

	// MQTTPublished counts samples published by the MQTT consumer
	MQTTPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acq_mqtt_published_total",
		Help: "Total number of samples published to MQTT",
	})

	// MQTTErrors counts failed MQTT publishes
	MQTTErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acq_mqtt_publish_errors_total",
		Help: "Total number of failed MQTT publishes",
	})
)

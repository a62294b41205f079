// internal/config/load.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultLogLevel      = "info"
	DefaultListen        = "localhost:9100"
	DefaultRateLimit     = 20
	DefaultBurst         = 40
	DefaultCapacity      = 500
	DefaultBaudRate      = 115200
	DefaultDataBits      = 8
	DefaultParity        = "N"
	DefaultStopBits      = 1
	DefaultTimeout       = 2 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = time.Second
	DefaultDivisor       = 1000
	DefaultMinYield      = time.Millisecond
	DefaultRatesInterval = time.Second
	DefaultRatesWindow   = time.Second
	DefaultMQTTInterval  = 200 * time.Millisecond
	DefaultTopicPrefix   = "acq"
	DefaultClientID      = "acquire"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error. Variables already set are kept.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads path, checks it against the JSON schema, applies ACQ_* environment
// overrides and defaults, validates and normalizes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	Normalize(&cfg)
	return &cfg, nil
}

// applyEnvironmentOverrides applies ACQ_* variables. Bus level overrides
// target the first bus, which is the single-port deployment of the scripts.
func (c *Config) applyEnvironmentOverrides() {
	if v := os.Getenv("ACQ_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ACQ_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("ACQ_HTTP_LISTEN"); v != "" {
		c.HTTP.Listen = v
	}
	if v, ok := envInt("ACQ_BUFFER_CAPACITY"); ok {
		c.Buffer.Capacity = v
	}

	if len(c.Buses) > 0 {
		b := &c.Buses[0]
		if v := os.Getenv("ACQ_SERIAL_PORT"); v != "" {
			b.Link.Address = v
		}
		if v, ok := envInt("ACQ_BAUD_RATE"); ok {
			b.Link.BaudRate = v
		}
		if v, ok := envDuration("ACQ_TIMEOUT"); ok {
			b.Link.Timeout = v
		}
		if v, ok := envInt("ACQ_MAX_RETRIES"); ok {
			b.Retry.MaxRetries = v
		}
		if v, ok := envDuration("ACQ_RETRY_DELAY"); ok {
			b.Retry.RetryDelay = &v
		}
		if v, ok := envDuration("ACQ_POLL_INTERVAL"); ok {
			b.Poll.Interval = v
		}
	}

	if v := os.Getenv("ACQ_MQTT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err == nil {
			c.Consumers.MQTT.Enabled = enabled
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse ACQ_MQTT_ENABLED '%s': %v\n", v, err)
		}
	}
	if v := os.Getenv("ACQ_MQTT_BROKER"); v != "" {
		c.Consumers.MQTT.Broker = v
	}
	if v := os.Getenv("ACQ_MQTT_USERNAME"); v != "" {
		c.Consumers.MQTT.Username = v
	}
	if v := os.Getenv("ACQ_MQTT_PASSWORD"); v != "" {
		c.Consumers.MQTT.Password = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to parse %s '%s': %v\n", key, v, err)
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to parse %s '%s': %v\n", key, v, err)
		return 0, false
	}
	return d, true
}

// setDefaults fills zero values.
func (c *Config) setDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = DefaultListen
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = DefaultRateLimit
	}
	if c.HTTP.Burst == 0 {
		c.HTTP.Burst = DefaultBurst
	}
	if c.Buffer.Capacity == 0 {
		c.Buffer.Capacity = DefaultCapacity
	}

	for i := range c.Buses {
		b := &c.Buses[i]
		if b.Link.Transport == "" {
			b.Link.Transport = "rtu"
		}
		if b.Link.Timeout == 0 {
			b.Link.Timeout = DefaultTimeout
		}
		if b.Link.Transport == "rtu" {
			if b.Link.BaudRate == 0 {
				b.Link.BaudRate = DefaultBaudRate
			}
			if b.Link.DataBits == 0 {
				b.Link.DataBits = DefaultDataBits
			}
			if b.Link.Parity == "" {
				b.Link.Parity = DefaultParity
			}
			if b.Link.StopBits == 0 {
				b.Link.StopBits = DefaultStopBits
			}
		}
		if b.Retry.MaxRetries == 0 {
			b.Retry.MaxRetries = DefaultMaxRetries
		}
		if b.Retry.RetryDelay == nil {
			d := DefaultRetryDelay
			b.Retry.RetryDelay = &d
		}
		if b.Decode.Divisor == 0 {
			b.Decode.Divisor = DefaultDivisor
		}
		if b.Poll.MinYield == 0 {
			b.Poll.MinYield = DefaultMinYield
		}
	}

	r := &c.Consumers.Rates
	if r.Interval == 0 {
		r.Interval = DefaultRatesInterval
	}
	if r.Window == 0 {
		r.Window = DefaultRatesWindow
	}

	m := &c.Consumers.MQTT
	if m.Interval == 0 {
		m.Interval = DefaultMQTTInterval
	}
	if m.TopicPrefix == "" {
		m.TopicPrefix = DefaultTopicPrefix
	}
	if m.ClientID == "" {
		m.ClientID = DefaultClientID
	}
}

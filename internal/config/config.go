// internal/config/config.go
package config

import "time"

type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	HTTP      HTTPConfig      `yaml:"http"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Buses     []BusConfig     `yaml:"buses" validate:"required,min=1,dive"`
	Consumers ConsumersConfig `yaml:"consumers"`
}

// ---- AMBIENT ----

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error fatal"`
	File  string `yaml:"file"` // optional, logged alongside the console
}

type HTTPConfig struct {
	Listen    string  `yaml:"listen" validate:"required"`
	RateLimit float64 `yaml:"rate_limit" validate:"gt=0"` // requests per second
	Burst     int     `yaml:"burst" validate:"gt=0"`
}

type BufferConfig struct {
	Capacity int `yaml:"capacity" validate:"gt=0"`
}

// ---- BUS ----

// BusConfig is one physical link and the slaves reachable on it.
type BusConfig struct {
	Name     string       `yaml:"name" validate:"required"`
	Link     LinkConfig   `yaml:"link"`
	Retry    RetryConfig  `yaml:"retry"`
	Decode   DecodeConfig `yaml:"decode"`
	Poll     PollConfig   `yaml:"poll"`
	Sources  []uint8      `yaml:"sources" validate:"required,min=1,dive,min=1,max=247"`
	Channels []string     `yaml:"channels" validate:"required,min=3,max=4,dive,required"`
}

type LinkConfig struct {
	Transport   string        `yaml:"transport" validate:"oneof=rtu tcp rtuovertcp udp"`
	Address     string        `yaml:"address" validate:"required"`
	BaudRate    int           `yaml:"baud_rate"`
	DataBits    int           `yaml:"data_bits"`
	Parity      string        `yaml:"parity" validate:"omitempty,oneof=N E O n e o"`
	StopBits    int           `yaml:"stop_bits"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	IdleTimeout time.Duration `yaml:"idle_timeout" validate:"gte=0"`
}

type RetryConfig struct {
	MaxRetries int            `yaml:"max_retries" validate:"gt=0"`
	RetryDelay *time.Duration `yaml:"retry_delay" validate:"omitempty,gte=0"` // nil = default, 0 = no delay
	ResetAfter time.Duration  `yaml:"reset_after" validate:"gte=0"`           // 0 = manual reset only
}

type DecodeConfig struct {
	Divisor float64 `yaml:"divisor" validate:"gt=0"`
	Signed  bool    `yaml:"signed"`
}

type PollConfig struct {
	Interval     time.Duration `yaml:"interval" validate:"gte=0"` // 0 = as fast as possible
	MinYield     time.Duration `yaml:"min_yield" validate:"gte=0"`
	StartEnabled *bool         `yaml:"start_enabled"`
}

// Delay returns the connect retry delay.
func (r RetryConfig) Delay() time.Duration {
	if r.RetryDelay == nil {
		return DefaultRetryDelay
	}
	return *r.RetryDelay
}

// Enabled reports whether polling starts enabled (default true).
func (p PollConfig) Enabled() bool {
	return p.StartEnabled == nil || *p.StartEnabled
}

// ---- CONSUMERS ----

type ConsumersConfig struct {
	Rates RatesConfig `yaml:"rates"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
}

type RatesConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	Window   time.Duration `yaml:"window" validate:"gt=0"`
}

type MQTTConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Broker      string        `yaml:"broker" validate:"required_if=Enabled true"`
	ClientID    string        `yaml:"client_id"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Interval    time.Duration `yaml:"interval" validate:"gte=0"`
	QoS         byte          `yaml:"qos" validate:"lte=2"`
}

// internal/config/normalize.go
package config

import "strings"

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	for bi := range cfg.Buses {
		b := &cfg.Buses[bi]

		// parity accepted in either case, stored upper
		b.Link.Parity = strings.ToUpper(b.Link.Parity)

		// network transports carry no serial framing
		if b.Link.Transport != "rtu" {
			b.Link.BaudRate = 0
			b.Link.DataBits = 0
			b.Link.Parity = ""
			b.Link.StopBits = 0
		}

		// a poll interval below the yield floor is the floor
		if b.Poll.Interval > 0 && b.Poll.Interval < b.Poll.MinYield {
			b.Poll.Interval = b.Poll.MinYield
		}
	}

	m := &cfg.Consumers.MQTT
	m.TopicPrefix = strings.Trim(m.TopicPrefix, "/")
}

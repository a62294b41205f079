// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tamzrod/modbus-acquisition/internal/link"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	// ------------------------------------------------------------
	// FIELD CONSTRAINTS (struct tags)
	// ------------------------------------------------------------

	if err := validate.Struct(cfg); err != nil {
		return formatFieldErrors(err)
	}

	// ------------------------------------------------------------
	// CROSS-FIELD RULES
	// ------------------------------------------------------------

	names := make(map[string]struct{})
	// key = transport | address
	owners := make(map[string]string)
	// series are keyed by source id, so a source belongs to one bus
	sourceOwner := make(map[uint8]string)

	for _, b := range cfg.Buses {
		if _, exists := names[b.Name]; exists {
			return fmt.Errorf("duplicate bus name %q", b.Name)
		}
		names[b.Name] = struct{}{}

		if err := b.LinkConfig().Validate(); err != nil {
			return fmt.Errorf("bus %q: link: %w", b.Name, err)
		}

		key := b.Link.Transport + "|" + b.Link.Address
		if prev, exists := owners[key]; exists {
			return fmt.Errorf(
				"link collision: %s %s used by buses %q and %q",
				b.Link.Transport,
				b.Link.Address,
				prev,
				b.Name,
			)
		}
		owners[key] = b.Name

		seen := make(map[uint8]struct{}, len(b.Sources))
		for _, s := range b.Sources {
			if _, exists := seen[s]; exists {
				return fmt.Errorf("bus %q: source %d listed twice", b.Name, s)
			}
			seen[s] = struct{}{}

			if prev, exists := sourceOwner[s]; exists {
				return fmt.Errorf(
					"source collision: source %d polled by buses %q and %q",
					s,
					prev,
					b.Name,
				)
			}
			sourceOwner[s] = b.Name
		}

		chans := make(map[string]struct{}, len(b.Channels))
		for _, ch := range b.Channels {
			if _, exists := chans[ch]; exists {
				return fmt.Errorf("bus %q: channel %q listed twice", b.Name, ch)
			}
			chans[ch] = struct{}{}
		}
	}

	return nil
}

// LinkConfig converts the bus link section.
func (b BusConfig) LinkConfig() link.Config {
	return link.Config{
		Transport:   b.Link.Transport,
		Address:     b.Link.Address,
		BaudRate:    b.Link.BaudRate,
		DataBits:    b.Link.DataBits,
		Parity:      strings.ToUpper(b.Link.Parity),
		StopBits:    b.Link.StopBits,
		Timeout:     b.Link.Timeout,
		IdleTimeout: b.Link.IdleTimeout,
	}
}

func formatFieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

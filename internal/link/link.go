// internal/link/link.go

// Package link owns one physical Modbus connection.
// It opens, closes and performs single read-holding-registers transactions.
// There is no retry policy here: every call is one attempt.
package link

import (
	"fmt"
	"time"
)

// Transport names accepted in Config.Transport.
const (
	TransportRTU        = "rtu"
	TransportTCP        = "tcp"
	TransportRTUOverTCP = "rtuovertcp"
	TransportUDP        = "udp"
)

// Link is one open transport.
type Link interface {
	// Transact sends one read-holding-registers request and waits for the response,
	// a remote exception, or the configured timeout.
	Transact(req Request) (Response, error)

	// Close releases the transport. Safe to call more than once.
	Close() error

	// IsOpen reports whether the transport is still claimed.
	IsOpen() bool
}

// Opener opens a Link. One attempt per call.
type Opener func(cfg Config) (Link, error)

// Config is the transport configuration of one link.
type Config struct {
	Transport string
	Address   string // serial device path, or host:port for network transports

	BaudRate int
	DataBits int
	Parity   string // "N", "E" or "O"
	StopBits int

	Timeout     time.Duration
	IdleTimeout time.Duration
}

// Request is one read of Quantity holding registers starting at Address.
type Request struct {
	SourceID uint8
	Address  uint16
	Quantity uint16
}

// Response carries the raw register words of a successful read.
type Response struct {
	SourceID  uint8
	Registers []uint16
}

// Supported serial line speeds.
var baudRates = map[int]struct{}{
	9600:   {},
	19200:  {},
	38400:  {},
	57600:  {},
	115200: {},
}

// Validate checks the configuration without touching the transport.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportRTU, TransportTCP, TransportRTUOverTCP, TransportUDP:
	default:
		return fmt.Errorf("unsupported transport %q", c.Transport)
	}
	if c.Address == "" {
		return fmt.Errorf("address required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	if !c.serial() {
		return nil
	}
	if _, ok := baudRates[c.BaudRate]; !ok {
		return fmt.Errorf("unsupported baud rate %d", c.BaudRate)
	}
	if c.DataBits != 7 && c.DataBits != 8 {
		return fmt.Errorf("data bits must be 7 or 8, got %d", c.DataBits)
	}
	switch c.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("parity must be N, E or O, got %q", c.Parity)
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return fmt.Errorf("stop bits must be 1 or 2, got %d", c.StopBits)
	}
	return nil
}

func (c Config) serial() bool {
	return c.Transport == TransportRTU
}

// Open opens a link for cfg. It dispatches on cfg.Transport.
func Open(cfg Config) (Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalidConfig, Op: "open", Address: cfg.Address, Err: err}
	}
	if cfg.serial() {
		return openRTU(cfg)
	}
	return openNetwork(cfg)
}

// checkResponse verifies the register count of a response.
func checkResponse(req Request, regs []uint16, address string) (Response, error) {
	if len(regs) != int(req.Quantity) {
		return Response{}, &Error{
			Kind:    KindIO,
			Op:      "transact",
			Address: address,
			Err:     fmt.Errorf("register count mismatch: got=%d want=%d", len(regs), req.Quantity),
		}
	}
	return Response{SourceID: req.SourceID, Registers: regs}, nil
}

// unpackRegisters decodes big-endian register words.
func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}

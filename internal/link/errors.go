// internal/link/errors.go
package link

import (
	"errors"
	"fmt"
)

// Kind classifies link failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnavailable
	KindInvalidConfig
	KindTimeout
	KindIO
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindInvalidConfig:
		return "invalid_config"
	case KindTimeout:
		return "timeout"
	case KindIO:
		return "io"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is a transport-level failure.
type Error struct {
	Kind    Kind
	Op      string // "open", "transact", "close"
	Address string
	Code    byte // Modbus exception code, KindProtocol only
	Err     error
}

func (e *Error) Error() string {
	if e.Kind == KindProtocol {
		return fmt.Sprintf("link %s %s: %s (exception 0x%02x): %v", e.Op, e.Address, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("link %s %s: %s: %v", e.Op, e.Address, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExceptionCode returns the remote exception code as a uint16 status code.
func (e *Error) ExceptionCode() uint16 {
	return uint16(e.Code)
}

// KindOf returns the Kind of err, or KindUnknown if err is not a link error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

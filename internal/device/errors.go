// internal/device/errors.go
package device

import (
	"errors"
	"fmt"

	"github.com/tamzrod/modbus-acquisition/internal/link"
)

var (
	// ErrRetriesExhausted: Connect failed MaxRetries consecutive times.
	ErrRetriesExhausted = errors.New("device: connect retries exhausted")

	// ErrFailed: the client is Failed and needs Reset or an explicit Connect.
	ErrFailed = errors.New("device: client failed, reset required")

	// ErrTransient: a read failed on timeout or IO. The next poll retries.
	ErrTransient = errors.New("device: transient read failure")

	// ErrRemoteRejected: the slave answered with a Modbus exception.
	ErrRemoteRejected = errors.New("device: request rejected by remote")
)

// ConnectError is returned when every connect attempt failed.
type ConnectError struct {
	Address  string
	Attempts int
	Last     error // last link error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %d attempts failed: %v", e.Address, e.Attempts, e.Last)
}

func (e *ConnectError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Last}
}

// ReadKind distinguishes read failures.
type ReadKind int

const (
	ReadTransient ReadKind = iota
	ReadRemoteRejected
)

func (k ReadKind) String() string {
	if k == ReadRemoteRejected {
		return "rejected"
	}
	return "transient"
}

// ReadError is a failed Read.
type ReadError struct {
	Kind     ReadKind
	SourceID uint8
	Code     byte // exception code for ReadRemoteRejected
	Err      error
}

func (e *ReadError) Error() string {
	if e.Kind == ReadRemoteRejected {
		return fmt.Sprintf("read source %d: rejected (exception 0x%02x): %v", e.SourceID, e.Code, e.Err)
	}
	return fmt.Sprintf("read source %d: transient: %v", e.SourceID, e.Err)
}

func (e *ReadError) Unwrap() []error {
	if e.Kind == ReadRemoteRejected {
		return []error{ErrRemoteRejected, e.Err}
	}
	return []error{ErrTransient, e.Err}
}

// readError maps a link failure onto the client contract.
func readError(sourceID uint8, err error) *ReadError {
	var le *link.Error
	if errors.As(err, &le) && le.Kind == link.KindProtocol {
		return &ReadError{Kind: ReadRemoteRejected, SourceID: sourceID, Code: le.Code, Err: err}
	}
	return &ReadError{Kind: ReadTransient, SourceID: sourceID, Err: err}
}

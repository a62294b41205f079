// internal/status/errcode.go
package status

import "errors"

// ErrorCode extracts a best-effort uint16 code from an error without assuming concrete types.
// If the error does not expose a code, returns 1 (generic error).
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ExceptionCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		if c := a.Code(); c != 0 {
			return c
		}
		return 1
	}
	var b coderB
	if errors.As(err, &b) {
		if c := b.ExceptionCode(); c != 0 {
			return c
		}
		return 1
	}

	return 1
}

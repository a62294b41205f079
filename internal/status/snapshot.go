// internal/status/snapshot.go
package status

import "time"

// SourceStatus is the health of one polled source as seen by its poller.
// It holds current state only; history lives in metrics and logs.
type SourceStatus struct {
	Bus      string `json:"bus"`
	SourceID uint8  `json:"source_id"`

	Health        uint16 `json:"health"`
	HealthName    string `json:"health_name"`
	State         string `json:"state"`
	LastErrorCode uint16 `json:"last_error_code"`
	LastError     string `json:"last_error,omitempty"`

	ConsecutiveErrors uint32    `json:"consecutive_errors"`
	LastSuccess       time.Time `json:"last_success,omitempty"`
	ErrorSince        time.Time `json:"error_since,omitempty"`
}

// SecondsInError returns how long the source has been unhealthy, saturating at 65535.
func (s SourceStatus) SecondsInError(now time.Time) uint16 {
	if s.ErrorSince.IsZero() || s.Health == HealthOK {
		return 0
	}
	d := now.Sub(s.ErrorSince) / time.Second
	if d < 0 {
		return 0
	}
	if d > 65535 {
		return 65535
	}
	return uint16(d)
}

// MarkOK records a successful poll.
func (s *SourceStatus) MarkOK(at time.Time) {
	s.Health = HealthOK
	s.LastErrorCode = 0
	s.LastError = ""
	s.ConsecutiveErrors = 0
	s.LastSuccess = at
	s.ErrorSince = time.Time{}
}

// MarkError records a failed poll. ErrorSince is kept across consecutive errors.
func (s *SourceStatus) MarkError(at time.Time, health uint16, err error) {
	if s.Health == HealthOK || s.ErrorSince.IsZero() {
		s.ErrorSince = at
	}
	s.Health = health
	s.LastErrorCode = ErrorCode(err)
	if err != nil {
		s.LastError = err.Error()
	}
	s.ConsecutiveErrors++
}

// internal/status/state.go
package status

// State is the connection state of a device client.
type State int32

// ---- CONNECTION STATES ----

const (
	// Disconnected: no open link. Read triggers a connect.
	Disconnected State = iota

	// Connecting: a connect retry loop is in progress.
	Connecting

	// Connected: the link reports itself open.
	Connected

	// Failed: connect retries exhausted. Terminal until reset.
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ---- HEALTH CODES ----

// Health codes are stable numeric values, safe to expose to operators.
const (
	HealthUnknown  uint16 = 0
	HealthOK       uint16 = 1
	HealthError    uint16 = 2
	HealthFailed   uint16 = 3
	HealthDisabled uint16 = 4
)

// HealthName returns the label used for a health code.
func HealthName(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthFailed:
		return "failed"
	case HealthDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// internal/device/decode.go
package device

// Decoder turns raw register words into physical units.
type Decoder struct {
	Divisor float64 // e.g. 1000 for millivolt -> volt
	Signed  bool    // interpret words as two's complement int16
}

// DefaultDecoder converts millivolt registers to volts.
var DefaultDecoder = Decoder{Divisor: 1000}

// Decode scales every register.
func (d Decoder) Decode(regs []uint16) []float64 {
	div := d.Divisor
	if div == 0 {
		div = 1
	}
	out := make([]float64, len(regs))
	for i, r := range regs {
		if d.Signed {
			out[i] = float64(int16(r)) / div
		} else {
			out[i] = float64(r) / div
		}
	}
	return out
}

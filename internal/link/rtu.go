// internal/link/rtu.go
package link

import (
	"errors"
	"net"
	"os"
	"sync"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
)

// rtuLink is a Modbus RTU master on a serial port.
// It serializes requests because it mutates SlaveId per transaction.
type rtuLink struct {
	mu      sync.Mutex
	address string
	handler *modbus.RTUClientHandler
	client  modbus.Client
	open    bool
}

func openRTU(cfg Config) (Link, error) {
	h := modbus.NewRTUClientHandler(cfg.Address)
	h.BaudRate = cfg.BaudRate
	h.DataBits = cfg.DataBits
	h.Parity = cfg.Parity
	h.StopBits = cfg.StopBits
	h.Timeout = cfg.Timeout
	if cfg.IdleTimeout > 0 {
		h.IdleTimeout = cfg.IdleTimeout
	}

	if err := h.Connect(); err != nil {
		return nil, &Error{Kind: KindUnavailable, Op: "open", Address: cfg.Address, Err: err}
	}

	return &rtuLink{
		address: cfg.Address,
		handler: h,
		client:  modbus.NewClient(h),
		open:    true,
	}, nil
}

func (l *rtuLink) Transact(req Request) (Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open {
		return Response{}, &Error{Kind: KindIO, Op: "transact", Address: l.address, Err: errors.New("link closed")}
	}

	l.handler.SlaveId = req.SourceID

	raw, err := l.client.ReadHoldingRegisters(req.Address, req.Quantity)
	if err != nil {
		return Response{}, classifyRTU(l.address, err)
	}
	return checkResponse(req, unpackRegisters(raw), l.address)
}

func (l *rtuLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open {
		return nil
	}
	l.open = false
	if err := l.handler.Close(); err != nil {
		return &Error{Kind: KindIO, Op: "close", Address: l.address, Err: err}
	}
	return nil
}

func (l *rtuLink) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// classifyRTU maps goburrow errors onto link kinds.
func classifyRTU(address string, err error) error {
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return &Error{Kind: KindProtocol, Op: "transact", Address: address, Code: mbErr.ExceptionCode, Err: err}
	}
	if isTimeout(err) {
		return &Error{Kind: KindTimeout, Op: "transact", Address: address, Err: err}
	}
	return &Error{Kind: KindIO, Op: "transact", Address: address, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, serial.ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// internal/link/network.go
package link

import (
	"errors"
	"sync"

	smodbus "github.com/simonvetter/modbus"
)

// networkLink speaks Modbus over TCP, RTU-over-TCP or UDP.
// These are the transports of the Ethernet firmware variants of the instrument.
type networkLink struct {
	mu      sync.Mutex
	address string
	client  *smodbus.ModbusClient
	open    bool
}

func openNetwork(cfg Config) (Link, error) {
	client, err := smodbus.NewClient(&smodbus.ClientConfiguration{
		URL:     cfg.Transport + "://" + cfg.Address,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, &Error{Kind: KindInvalidConfig, Op: "open", Address: cfg.Address, Err: err}
	}
	if err := client.Open(); err != nil {
		return nil, &Error{Kind: KindUnavailable, Op: "open", Address: cfg.Address, Err: err}
	}
	return &networkLink{address: cfg.Address, client: client, open: true}, nil
}

func (l *networkLink) Transact(req Request) (Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open {
		return Response{}, &Error{Kind: KindIO, Op: "transact", Address: l.address, Err: errors.New("link closed")}
	}

	l.client.SetUnitId(req.SourceID)

	regs, err := l.client.ReadRegisters(req.Address, req.Quantity, smodbus.HOLDING_REGISTER)
	if err != nil {
		return Response{}, classifyNetwork(l.address, err)
	}
	return checkResponse(req, regs, l.address)
}

func (l *networkLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open {
		return nil
	}
	l.open = false
	if err := l.client.Close(); err != nil {
		return &Error{Kind: KindIO, Op: "close", Address: l.address, Err: err}
	}
	return nil
}

func (l *networkLink) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// Exception errors of simonvetter/modbus and their wire codes.
var networkExceptions = []struct {
	err  error
	code byte
}{
	{smodbus.ErrIllegalFunction, 0x01},
	{smodbus.ErrIllegalDataAddress, 0x02},
	{smodbus.ErrIllegalDataValue, 0x03},
	{smodbus.ErrServerDeviceFailure, 0x04},
	{smodbus.ErrAcknowledge, 0x05},
	{smodbus.ErrServerDeviceBusy, 0x06},
	{smodbus.ErrMemoryParityError, 0x08},
	{smodbus.ErrGWPathUnavailable, 0x0a},
	{smodbus.ErrGWTargetFailedToRespond, 0x0b},
}

func classifyNetwork(address string, err error) error {
	for _, ex := range networkExceptions {
		if errors.Is(err, ex.err) {
			return &Error{Kind: KindProtocol, Op: "transact", Address: address, Code: ex.code, Err: err}
		}
	}
	if errors.Is(err, smodbus.ErrRequestTimedOut) || isTimeout(err) {
		return &Error{Kind: KindTimeout, Op: "transact", Address: address, Err: err}
	}
	return &Error{Kind: KindIO, Op: "transact", Address: address, Err: err}
}

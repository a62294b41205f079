// internal/poller/builder_test.go
package poller

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-acquisition/internal/buffer"
	cfg "github.com/tamzrod/modbus-acquisition/internal/config"
	"github.com/tamzrod/modbus-acquisition/internal/device"
	"github.com/tamzrod/modbus-acquisition/internal/link"
)

type stubLink struct{ open bool }

func (l *stubLink) Transact(req link.Request) (link.Response, error) {
	regs := make([]uint16, req.Quantity)
	for i := range regs {
		regs[i] = uint16(1000 * (i + 1))
	}
	return link.Response{SourceID: req.SourceID, Registers: regs}, nil
}

func (l *stubLink) Close() error { l.open = false; return nil }
func (l *stubLink) IsOpen() bool { return l.open }

func TestBuild(t *testing.T) {
	enabled := true
	b := cfg.BusConfig{
		Name: "rs485-0",
		Link: cfg.LinkConfig{
			Transport: "rtu", Address: "/dev/ttyUSB0",
			BaudRate: 115200, DataBits: 8, Parity: "N", StopBits: 1,
			Timeout: time.Second,
		},
		Retry:    cfg.RetryConfig{MaxRetries: 3},
		Decode:   cfg.DecodeConfig{Divisor: 1000},
		Poll:     cfg.PollConfig{MinYield: time.Millisecond, StartEnabled: &enabled},
		Sources:  []uint8{2},
		Channels: []string{"A0", "A1", "A2"},
	}

	opened := 0
	opener := func(c link.Config) (link.Link, error) {
		opened++
		if c.Address != "/dev/ttyUSB0" || c.BaudRate != 115200 {
			t.Fatalf("unexpected link config %+v", c)
		}
		return &stubLink{open: true}, nil
	}

	buf := buffer.New(10)
	p, err := Build(b, buf, zerolog.Nop(), device.WithOpener(opener))
	if err != nil {
		t.Fatalf("Build err=%v", err)
	}
	if opened != 0 {
		t.Fatalf("link opened at build time")
	}
	if p.Bus() != "rs485-0" || !p.Enabled() {
		t.Fatalf("unexpected poller %+v", p.cfg)
	}

	res := p.Tick(context.Background())
	if res.Appended() != 3 {
		t.Fatalf("appended=%d", res.Appended())
	}
	if got := buf.Snapshot(2, "A2")[0].Value; got != 3 {
		t.Fatalf("A2=%v, want 3", got)
	}
}

func TestBuild_NoSources(t *testing.T) {
	if _, err := Build(cfg.BusConfig{Name: "b"}, buffer.New(1), zerolog.Nop()); err == nil {
		t.Fatalf("expected error")
	}
}

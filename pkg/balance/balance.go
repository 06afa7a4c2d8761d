// Package balance drives an MT-SICS analytical balance over RS-232.
//
// A single reader goroutine owns the receive side of the port and
// publishes the newest parsed weight; everything else only writes
// commands. That keeps request/reply races off the serial line when
// several loops poll the scale at once.
package balance

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Mettler-Toledo scales ship at 4800 bps factory default.
const (
	DefaultBaud = 4800
	readTimeout = 2 * time.Second
)

// MT-SICS commands. ST tares, SI requests an immediate (possibly
// unstable) weight report.
var (
	cmdTare   = []byte("ST\r\n")
	cmdWeight = []byte("SI\r\n")
)

// Reading is one parsed weight report.
type Reading struct {
	Grams float64
	At    time.Time
}

// Balance holds the serial port and the latest-reading mailbox.
type Balance struct {
	port serial.Port

	mu   sync.Mutex
	last Reading
	seen bool
}

// Open connects to the scale on the given port at 4800 8N1.
func Open(portName string) (*Balance, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open balance port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set balance read timeout: %w", err)
	}
	return &Balance{port: port}, nil
}

func (b *Balance) Close() error {
	return b.port.Close()
}

// Tare zeroes the scale. The pan needs several seconds to settle
// afterwards; callers own that wait.
func (b *Balance) Tare() error {
	if _, err := b.port.Write(cmdTare); err != nil {
		return fmt.Errorf("tare: %w", err)
	}
	return nil
}

// RequestWeight asks the scale for an immediate reading. The reply
// arrives asynchronously through Run.
func (b *Balance) RequestWeight() error {
	if _, err := b.port.Write(cmdWeight); err != nil {
		return fmt.Errorf("request weight: %w", err)
	}
	return nil
}

// Run consumes the receive side of the port until ctx is cancelled,
// publishing every line that parses as a weight. Call it from its own
// goroutine.
func (b *Balance) Run(ctx context.Context) error {
	return b.consume(ctx, b.port)
}

func (b *Balance) consume(ctx context.Context, r io.Reader) error {
	var pending []byte
	buf := make([]byte, 64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			var lines []string
			pending, lines = splitLines(append(pending, buf[:n]...))
			for _, line := range lines {
				if grams, ok := ParseWeight(line); ok {
					b.publish(Reading{Grams: grams, At: time.Now()})
				}
			}
		}
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return fmt.Errorf("balance read: %w", err)
		}
	}
}

func (b *Balance) publish(r Reading) {
	b.mu.Lock()
	b.last, b.seen = r, true
	b.mu.Unlock()
}

// Latest reports the newest parsed reading, if any has arrived yet.
func (b *Balance) Latest() (Reading, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.seen
}

// Weight reports the newest weight in grams, zero before the first
// reading.
func (b *Balance) Weight() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last.Grams
}

// Package pump drives a Masterflex L/S peristaltic pump over its
// RS-232 satellite protocol.
//
// Commands travel as STX-framed ASCII addressed by a two-digit
// satellite number ("P01...") and terminated by CR. The drive answers
// most commands with a single ACK byte and status queries with short
// STX-framed text. Replies are collected by draining the port after a
// settle window; the drive offers no stronger reply framing.
package pump

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultBaud = 4800

	// The drive needs a beat before its reply shows up on the wire.
	settleDelay = 300 * time.Millisecond
	// Gap between the commands of a composite sequence.
	commandGap  = 100 * time.Millisecond
	readTimeout = 100 * time.Millisecond

	stx = 0x02
	cr  = 0x0D
	ack = 0x06
	enq = 0x05
)

// Direction selects the rotation sense. The speed command encodes it
// as a sign (+ clockwise, - counterclockwise); the K command spells
// it out.
type Direction string

const (
	Clockwise        Direction = "CW"
	CounterClockwise Direction = "CCW"
)

func (d Direction) sign() string {
	if d == Clockwise {
		return "+"
	}
	return "-"
}

// Pump holds the serial port and the satellite address of one drive.
type Pump struct {
	port    serial.Port
	station string
	mu      sync.Mutex
}

// Open connects to the drive on the given port at 4800 7O1. number is
// the satellite address the drive will answer to, usually 1.
func Open(portName string, number int) (*Pump, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaud,
		DataBits: 7,
		Parity:   serial.OddParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open pump port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set pump read timeout: %w", err)
	}
	port.ResetInputBuffer()
	port.ResetOutputBuffer()
	return &Pump{port: port, station: station(number)}, nil
}

func (p *Pump) Close() error {
	return p.port.Close()
}

func station(number int) string {
	return fmt.Sprintf("%02d", number)
}

// frame wraps a command body in STX/CR satellite framing.
func frame(body string) []byte {
	pkt := make([]byte, 0, len(body)+2)
	pkt = append(pkt, stx)
	pkt = append(pkt, body...)
	return append(pkt, cr)
}

// command prefixes a body with this drive's satellite address.
func (p *Pump) command(body string) string {
	return "P" + p.station + body
}

// speedCommand formats the speed body. Below 100 RPM the drive wants
// a tenths digit, at or above it a bare integer.
func speedCommand(station string, rpm float64, dir Direction) string {
	if rpm < 100 {
		return fmt.Sprintf("P%sS%s%.1f", station, dir.sign(), rpm)
	}
	return fmt.Sprintf("P%sS%s%.0f", station, dir.sign(), rpm)
}

func isACK(resp []byte) bool {
	return len(resp) == 1 && resp[0] == ack
}

// send writes one framed command and, when wantReply, drains whatever
// the drive returns within the settle window.
func (p *Pump) send(body string, wantReply bool) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.port.Write(frame(body)); err != nil {
		return nil, fmt.Errorf("pump write %q: %w", body, err)
	}
	if !wantReply {
		return nil, nil
	}
	time.Sleep(settleDelay)
	return p.drain()
}

// drain reads until the port goes quiet.
func (p *Pump) drain() ([]byte, error) {
	var out []byte
	buf := make([]byte, 64)
	for {
		n, err := p.port.Read(buf)
		if err != nil {
			return out, fmt.Errorf("pump read: %w", err)
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, buf[:n]...)
	}
}

// requireACK sends a command that must be acknowledged.
func (p *Pump) requireACK(body string) error {
	resp, err := p.send(body, true)
	if err != nil {
		return err
	}
	if !isACK(resp) {
		return fmt.Errorf("pump command %s: no ACK (reply %q)", body, resp)
	}
	return nil
}

// Assign claims the satellite number. A fresh drive answers ACK; one
// that already holds the number stays silent, so an empty reply also
// counts.
func (p *Pump) Assign() error {
	resp, err := p.send(p.command(""), true)
	if err != nil {
		return err
	}
	if len(resp) != 0 && !isACK(resp) {
		return fmt.Errorf("pump rejected number assignment: %q", resp)
	}
	return nil
}

// EnableRemote puts the drive under serial control. The front panel
// stays locked out until EnableLocal.
func (p *Pump) EnableRemote() error {
	return p.requireACK(p.command("R"))
}

// EnableLocal hands the drive back to its front panel.
func (p *Pump) EnableLocal() error {
	return p.requireACK(p.command("L"))
}

// SetSpeed programs the running speed and rotation sense.
func (p *Pump) SetSpeed(rpm float64, dir Direction) error {
	return p.requireACK(speedCommand(p.station, rpm, dir))
}

// SetRevolutions programs the metered run length for the next Start.
func (p *Pump) SetRevolutions(revs float64) error {
	return p.requireACK(p.command(fmt.Sprintf("V%.2f", revs)))
}

// Start runs the programmed number of revolutions.
func (p *Pump) Start() error {
	return p.requireACK(p.command("G"))
}

// StartContinuous floods the tubing: halt, set rotation, zero the
// counter, fill speed, then run unmetered (G0) until Stop.
func (p *Pump) StartContinuous(fillRPM float64, dir Direction) error {
	if _, err := p.send(p.command("H"), false); err != nil {
		return err
	}
	time.Sleep(commandGap)
	if _, err := p.send(p.command("K"+string(dir)), false); err != nil {
		return err
	}
	time.Sleep(commandGap)
	if _, err := p.send(p.command("Z"), true); err != nil {
		return err
	}
	time.Sleep(commandGap)
	if err := p.SetSpeed(fillRPM, dir); err != nil {
		return err
	}
	return p.requireACK(p.command("G0"))
}

// Stop halts the drive.
func (p *Pump) Stop() error {
	return p.requireACK(p.command("H"))
}

// ZeroCounter resets the revolutions counter.
func (p *Pump) ZeroCounter() error {
	return p.requireACK(p.command("Z"))
}

// Status asks for the short status reply.
func (p *Pump) Status() ([]byte, error) {
	return p.send(p.command("?"), true)
}

// StatusReport asks for the long status report.
func (p *Pump) StatusReport() ([]byte, error) {
	return p.send(p.command("I"), true)
}

// SpeedReadback asks the drive to report its programmed speed.
func (p *Pump) SpeedReadback() ([]byte, error) {
	return p.send(p.command("S"), true)
}

// RevsRemaining asks how many revolutions are left in the metered run.
func (p *Pump) RevsRemaining() ([]byte, error) {
	return p.send(p.command("Y"), true)
}

// Send writes one raw command body, without the address prefix, and
// returns whatever the drive replies. Diagnostic tools use it to probe
// command variants the typed methods do not cover.
func (p *Pump) Send(body string) ([]byte, error) {
	return p.send(body, true)
}

// Station returns the two-digit satellite address this drive answers to.
func (p *Pump) Station() string {
	return p.station
}

// Enquire pokes the drive with a bare ENQ, the lowest-level liveness
// probe the protocol has. An unnumbered drive answers with its model
// string.
func (p *Pump) Enquire() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.port.Write([]byte{enq}); err != nil {
		return nil, fmt.Errorf("pump write ENQ: %w", err)
	}
	time.Sleep(settleDelay)
	return p.drain()
}

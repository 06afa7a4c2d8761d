package dilute

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/quantalab/wetbench/pkg/pump"
)

type fakeScale struct {
	weight   float64
	tares    int
	requests int
}

func (s *fakeScale) Tare() error          { s.tares++; return nil }
func (s *fakeScale) RequestWeight() error { s.requests++; return nil }
func (s *fakeScale) Weight() float64      { return s.weight }

// fakePump records the command verbs it receives. Status and
// RevsRemaining replies come from queues whose last entry repeats;
// empty queues answer ACK, which reads as an immediate stop.
type fakePump struct {
	calls   []string
	revsSet float64
	speeds  []float64
	onStart func()

	statusQ [][]byte
	statusN int
	revsQ   [][]byte
	revsN   int
}

func (p *fakePump) SetSpeed(rpm float64, dir pump.Direction) error {
	p.speeds = append(p.speeds, rpm)
	p.calls = append(p.calls, "speed")
	return nil
}

func (p *fakePump) SetRevolutions(revs float64) error {
	p.revsSet = revs
	p.calls = append(p.calls, "revs")
	return nil
}

func (p *fakePump) Start() error {
	p.calls = append(p.calls, "start")
	if p.onStart != nil {
		p.onStart()
	}
	return nil
}

func (p *fakePump) StartContinuous(fillRPM float64, dir pump.Direction) error {
	p.speeds = append(p.speeds, fillRPM)
	p.calls = append(p.calls, "continuous")
	return nil
}

func (p *fakePump) Stop() error {
	p.calls = append(p.calls, "stop")
	return nil
}

func (p *fakePump) Status() ([]byte, error) {
	p.calls = append(p.calls, "status")
	return nextReply(p.statusQ, &p.statusN), nil
}

func (p *fakePump) RevsRemaining() ([]byte, error) {
	p.calls = append(p.calls, "revs?")
	return nextReply(p.revsQ, &p.revsN), nil
}

func (p *fakePump) EnableLocal() error {
	p.calls = append(p.calls, "local")
	return nil
}

func nextReply(q [][]byte, n *int) []byte {
	if len(q) == 0 {
		return []byte{0x06}
	}
	if *n >= len(q) {
		return q[len(q)-1]
	}
	r := q[*n]
	*n++
	return r
}

func countCalls(calls []string, verb string) int {
	n := 0
	for _, c := range calls {
		if c == verb {
			n++
		}
	}
	return n
}

// fastConfig shrinks every wait so a full cycle finishes in
// milliseconds.
func fastConfig() Config {
	return Config{
		SkipFill:       true,
		Cycles:         1,
		PumpTimeout:    time.Second,
		PrepDelay:      time.Millisecond,
		TareDelay:      time.Millisecond,
		SampleWindow:   time.Millisecond,
		WeightInterval: time.Millisecond,
		StatusInterval: time.Millisecond,
		SettleDelay:    time.Millisecond,
		RestDelay:      time.Millisecond,
		FillDuration:   time.Millisecond,
	}
}

func TestRun_FullCycle(t *testing.T) {
	scale := &fakeScale{weight: 2.0}
	p := &fakePump{}
	// The metered run lands the solvent as soon as the pump starts.
	p.onStart = func() { scale.weight = 41.8 }

	cfg := fastConfig()
	cfg.ReportFile = filepath.Join(t.TempDir(), "concentration_data.csv")

	c := NewController(p, scale, cfg)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"speed", "revs", "start", "status", "revs?", "stop", "local"}
	if !reflect.DeepEqual(p.calls, want) {
		t.Errorf("pump calls = %v, want %v", p.calls, want)
	}
	if math.Abs(p.revsSet-14.4785) > 0.001 {
		t.Errorf("programmed revolutions = %f, want 14.4785", p.revsSet)
	}
	if scale.tares != 1 {
		t.Errorf("tares = %d, want 1", scale.tares)
	}
	if scale.requests != 2 {
		t.Errorf("weight requests = %d, want 2", scale.requests)
	}

	f, err := os.Open(cfg.ReportFile)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("report has %d rows, want header plus one", len(records))
	}
	row := records[1]
	if row[1] != "2.0000" || row[2] != "41.8000" || row[3] != "39.8000" || row[4] != "4.7847" {
		t.Errorf("report row = %q", row)
	}
}

func TestRun_NoSampleSkipsDispense(t *testing.T) {
	scale := &fakeScale{}
	p := &fakePump{}

	c := NewController(p, scale, fastConfig())
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"speed", "stop", "local"}
	if !reflect.DeepEqual(p.calls, want) {
		t.Errorf("pump calls = %v, want %v", p.calls, want)
	}
	if scale.tares != 1 {
		t.Errorf("tares = %d, want 1", scale.tares)
	}
	if scale.requests != 0 {
		t.Errorf("weight requests = %d, want 0", scale.requests)
	}
}

func TestRun_FillsTubing(t *testing.T) {
	scale := &fakeScale{}
	p := &fakePump{}

	cfg := fastConfig()
	cfg.SkipFill = false
	cfg.FillRate = 60

	c := NewController(p, scale, cfg)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"continuous", "stop", "speed", "stop", "local"}
	if !reflect.DeepEqual(p.calls, want) {
		t.Errorf("pump calls = %v, want %v", p.calls, want)
	}
	if p.speeds[0] != 60 {
		t.Errorf("fill speed = %f, want 60", p.speeds[0])
	}
}

func TestDispense_StopViaStatus(t *testing.T) {
	scale := &fakeScale{weight: 2.0}
	p := &fakePump{
		statusQ: [][]byte{[]byte("\x02P01I1+23.1"), []byte("\x02P01S")},
		revsQ:   [][]byte{[]byte("12.45")},
	}

	c := NewController(p, scale, fastConfig())
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if n := countCalls(p.calls, "status"); n != 2 {
		t.Errorf("status polls = %d, want 2", n)
	}
	// Only the cleanup stop: the drive halted itself.
	if n := countCalls(p.calls, "stop"); n != 1 {
		t.Errorf("stops = %d, want 1", n)
	}
}

func TestDispense_ForceStopAtCeiling(t *testing.T) {
	scale := &fakeScale{weight: 2.0}
	p := &fakePump{
		statusQ: [][]byte{[]byte("\x02P01I1+23.1")},
		revsQ:   [][]byte{[]byte("12.45")},
	}

	cfg := fastConfig()
	// At this speed the ceiling lands around 24ms, far inside the
	// hard timeout.
	cfg.FlowRate = 60000

	c := NewController(p, scale, cfg)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Force stop plus the cleanup stop.
	if n := countCalls(p.calls, "stop"); n != 2 {
		t.Errorf("stops = %d, want 2", n)
	}
}

func TestRun_Cancelled(t *testing.T) {
	scale := &fakeScale{weight: 2.0}
	p := &fakePump{}

	cfg := fastConfig()
	cfg.Cycles = 0
	cfg.TareDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewController(p, scale, cfg)
	err := c.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	n := len(p.calls)
	if n < 2 || p.calls[n-2] != "stop" || p.calls[n-1] != "local" {
		t.Errorf("cleanup missing, calls = %v", p.calls)
	}
}

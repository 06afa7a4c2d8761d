package dilute

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/quantalab/wetbench/pkg/pump"
)

// Doser is the slice of the pump driver the controller needs.
type Doser interface {
	SetSpeed(rpm float64, dir pump.Direction) error
	SetRevolutions(revs float64) error
	Start() error
	StartContinuous(fillRPM float64, dir pump.Direction) error
	Stop() error
	Status() ([]byte, error)
	RevsRemaining() ([]byte, error)
	EnableLocal() error
}

// Scale is the slice of the balance the controller needs. Weight
// reports the newest reading from the balance mailbox.
type Scale interface {
	Tare() error
	RequestWeight() error
	Weight() float64
}

// Phase names where a dilution cycle currently is.
type Phase int

const (
	Idle Phase = iota
	FillingTubing
	Preparing
	Taring
	AwaitingSample
	ComputingDose
	Dispensing
	Settling
	Reporting
	Resting
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case FillingTubing:
		return "filling tubing"
	case Preparing:
		return "preparing"
	case Taring:
		return "taring"
	case AwaitingSample:
		return "awaiting sample"
	case ComputingDose:
		return "computing dose"
	case Dispensing:
		return "dispensing"
	case Settling:
		return "settling"
	case Reporting:
		return "reporting"
	case Resting:
		return "resting"
	}
	return "unknown"
}

// State is one observable snapshot of the running cycle.
type State struct {
	Phase     Phase
	Cycle     int
	Countdown int     // seconds left in the current timed phase
	Weight    float64 // newest balance reading in grams
	Progress  float64 // dispense progress against expected time, percent
	Dose      *Dose
	Result    *CycleResult
	Timestamp time.Time
	Error     error
}

// Config tunes a dilution run. Zero fields fall back to the bench
// defaults.
type Config struct {
	Ratio          float64 // sample mass over total solution mass
	MLPerRev       float64
	FlowRate       float64 // dispense speed, RPM
	FillRate       float64 // tubing fill speed, RPM
	Direction      pump.Direction
	PumpTimeout    time.Duration // hard cap on one metered run
	PrepDelay      time.Duration
	TareDelay      time.Duration
	SampleWindow   time.Duration
	WeightInterval time.Duration
	StatusInterval time.Duration
	SettleDelay    time.Duration
	RestDelay      time.Duration
	FillDuration   time.Duration
	SkipFill       bool
	Cycles         int    // 0 runs until cancelled
	ReportFile     string // empty disables the CSV log
}

func (c *Config) applyDefaults() {
	if c.Ratio == 0 {
		c.Ratio = DefaultRatio
	}
	if c.MLPerRev == 0 {
		c.MLPerRev = pump.DefaultMLPerRev
	}
	if c.FlowRate == 0 {
		c.FlowRate = DefaultFlowRate
	}
	if c.FillRate == 0 {
		c.FillRate = DefaultFillRate
	}
	if c.Direction == "" {
		c.Direction = pump.CounterClockwise
	}
	if c.PumpTimeout == 0 {
		c.PumpTimeout = 60 * time.Second
	}
	if c.PrepDelay == 0 {
		c.PrepDelay = 10 * time.Second
	}
	if c.TareDelay == 0 {
		c.TareDelay = 20 * time.Second
	}
	if c.SampleWindow == 0 {
		c.SampleWindow = 20 * time.Second
	}
	if c.WeightInterval == 0 {
		c.WeightInterval = 500 * time.Millisecond
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = time.Second
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 30 * time.Second
	}
	if c.RestDelay == 0 {
		c.RestDelay = 15 * time.Second
	}
	if c.FillDuration == 0 {
		c.FillDuration = 30 * time.Second
	}
}

// Controller runs the dilution cycle state machine.
type Controller struct {
	pump  Doser
	scale Scale
	cfg   Config

	mu      sync.Mutex
	running bool
	stateCh chan State
	logCh   chan string
}

// NewController wires a pump and a scale into a cycle controller.
func NewController(p Doser, s Scale, cfg Config) *Controller {
	cfg.applyDefaults()
	return &Controller{
		pump:    p,
		scale:   s,
		cfg:     cfg,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Config returns the effective configuration after defaults.
func (c *Controller) Config() Config {
	return c.cfg
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

func (c *Controller) publish(s State) {
	s.Timestamp = time.Now()
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

// Run drives dilution cycles until ctx is cancelled or the configured
// cycle count completes. On exit the pump is stopped and handed back
// to its front panel.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()
	defer c.cleanup()

	if c.cfg.SkipFill {
		c.log("Skipping tubing fill")
	} else if err := c.fillTubing(ctx); err != nil {
		return err
	}

	if err := c.pump.SetSpeed(c.cfg.FlowRate, c.cfg.Direction); err != nil {
		return fmt.Errorf("set dispense speed: %w", err)
	}

	for cycle := 1; c.cfg.Cycles == 0 || cycle <= c.cfg.Cycles; cycle++ {
		if err := c.runCycle(ctx, cycle); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) fillTubing(ctx context.Context) error {
	c.log("Auto tubing fill: %.0f RPM for %.0fs", c.cfg.FillRate, c.cfg.FillDuration.Seconds())
	if err := c.pump.StartContinuous(c.cfg.FillRate, c.cfg.Direction); err != nil {
		return fmt.Errorf("start tubing fill: %w", err)
	}
	if err := c.wait(ctx, FillingTubing, 0, c.cfg.FillDuration); err != nil {
		c.pump.Stop()
		return err
	}
	if err := c.pump.Stop(); err != nil {
		return fmt.Errorf("stop tubing fill: %w", err)
	}
	c.log("Tubing fill complete")
	return nil
}

func (c *Controller) runCycle(ctx context.Context, cycle int) error {
	c.log("=== Cycle %d (%.2f%% w/w) ===", cycle, c.cfg.Ratio*100)

	if err := c.wait(ctx, Preparing, cycle, c.cfg.PrepDelay); err != nil {
		return err
	}

	c.log("Taring balance")
	if err := c.scale.Tare(); err != nil {
		return fmt.Errorf("tare: %w", err)
	}
	if err := c.wait(ctx, Taring, cycle, c.cfg.TareDelay); err != nil {
		return err
	}

	if err := c.wait(ctx, AwaitingSample, cycle, c.cfg.SampleWindow); err != nil {
		return err
	}

	sample := c.scale.Weight()
	dose, err := ComputeDose(sample, c.cfg.Ratio, c.cfg.MLPerRev)
	if errors.Is(err, ErrNoSample) {
		c.log("No sample found, skipping cycle")
		return nil
	}
	if err != nil {
		return err
	}
	if dose.Clamped {
		c.log("Dose below minimum, raised to %.1f revolutions", MinRevolutions)
	}
	c.log("Sample %.4fg, dispensing %.4fml (%.4f revs at %.4f ml/rev)",
		dose.SampleGrams, dose.VolumeML, dose.Revolutions, c.cfg.MLPerRev)
	c.publish(State{Phase: ComputingDose, Cycle: cycle, Weight: sample, Dose: &dose})

	if err := c.dispense(ctx, cycle, dose); err != nil {
		return err
	}

	// Ask for a fresh reading on both sides of the settle window so
	// the final weight is not a stale pre-dispense line.
	if err := c.scale.RequestWeight(); err != nil {
		c.log("Warning: weight request failed: %v", err)
	}
	c.log("Waiting %.0fs for fluid to settle", c.cfg.SettleDelay.Seconds())
	if err := c.wait(ctx, Settling, cycle, c.cfg.SettleDelay); err != nil {
		return err
	}
	if err := c.scale.RequestWeight(); err != nil {
		c.log("Warning: weight request failed: %v", err)
	}
	if err := sleepCtx(ctx, c.cfg.WeightInterval); err != nil {
		return err
	}

	final := c.scale.Weight()
	result := CycleResult{
		At:            time.Now(),
		SampleGrams:   dose.SampleGrams,
		FinalGrams:    final,
		VolumeAddedML: final - dose.SampleGrams,
		Percent:       Concentration(dose.SampleGrams, final),
	}
	c.report(cycle, dose, result)

	return c.wait(ctx, Resting, cycle, c.cfg.RestDelay)
}

// dispense programs the metered run and watches it until the drive
// reports a stop, the wall-clock ceiling passes, or the hard timeout
// fires.
func (c *Controller) dispense(ctx context.Context, cycle int, dose Dose) error {
	if err := c.pump.SetRevolutions(dose.Revolutions); err != nil {
		return fmt.Errorf("program revolutions: %w", err)
	}
	if err := c.pump.Start(); err != nil {
		return fmt.Errorf("start pump: %w", err)
	}

	expected := dose.EstimatedRunTime(c.cfg.FlowRate)
	ceiling := dose.ForceStopAfter(c.cfg.FlowRate)
	c.log("Pump running, expecting %.1fs", expected.Seconds())

	start := time.Now()
	var lastPoll time.Time
	for {
		elapsed := time.Since(start)
		if elapsed >= c.cfg.PumpTimeout {
			c.log("Timeout, forcing pump stop")
			if err := c.pump.Stop(); err != nil {
				c.log("Warning: pump stop failed: %v", err)
			}
			return nil
		}

		if now := time.Now(); now.Sub(lastPoll) >= c.cfg.StatusInterval {
			lastPoll = now
			status, serr := c.pump.Status()
			revs, rerr := c.pump.RevsRemaining()
			switch {
			case serr != nil:
				c.log("Warning: status poll failed: %v", serr)
			case rerr != nil:
				c.log("Warning: revolutions poll failed: %v", rerr)
			default:
				byStatus, byCounter := pump.DetectStop(status, revs)
				if byStatus {
					c.log("Detected pump stop via status")
				}
				if byCounter {
					c.log("Detected pump stop via revolutions counter")
				}
				if byStatus || byCounter {
					return nil
				}
			}
		}

		if elapsed >= ceiling {
			if err := c.pump.Stop(); err != nil {
				c.log("Warning: pump stop failed: %v", err)
			}
			c.log("Force stopped pump after %.1fs (expected %.1fs)",
				elapsed.Seconds(), expected.Seconds())
			return nil
		}

		progress := 0.0
		if expected > 0 {
			progress = elapsed.Seconds() / expected.Seconds() * 100
		}
		c.publish(State{
			Phase:    Dispensing,
			Cycle:    cycle,
			Weight:   c.scale.Weight(),
			Progress: progress,
			Dose:     &dose,
		})

		if err := sleepCtx(ctx, c.cfg.WeightInterval); err != nil {
			c.pump.Stop()
			return err
		}
	}
}

func (c *Controller) report(cycle int, dose Dose, r CycleResult) {
	c.log("Results: sample %.4fg, final %.4fg, added %.4fml (commanded %.4fml)",
		r.SampleGrams, r.FinalGrams, r.VolumeAddedML, dose.VolumeML)
	c.log("Concentration %.4f%% (target %.4f%%)", r.Percent, dose.TargetPercent)
	if diff := math.Abs(r.Percent - dose.TargetPercent); diff > 1.0 {
		c.log("Warning: concentration off by %.4f points (%.1f%% relative)",
			diff, diff/dose.TargetPercent*100)
	}
	c.publish(State{
		Phase:  Reporting,
		Cycle:  cycle,
		Weight: r.FinalGrams,
		Dose:   &dose,
		Result: &r,
	})
	if c.cfg.ReportFile != "" {
		if err := AppendReport(c.cfg.ReportFile, r); err != nil {
			c.log("Warning: report append failed: %v", err)
		}
	}
}

// wait sleeps through a timed phase in one-second beats so state
// snapshots can carry a countdown and a live weight.
func (c *Controller) wait(ctx context.Context, phase Phase, cycle int, d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return nil
		}
		c.publish(State{
			Phase:     phase,
			Cycle:     cycle,
			Countdown: int(math.Ceil(left.Seconds())),
			Weight:    c.scale.Weight(),
		})
		beat := time.Second
		if left < beat {
			beat = left
		}
		if err := sleepCtx(ctx, beat); err != nil {
			return err
		}
	}
}

func (c *Controller) cleanup() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if err := c.pump.Stop(); err != nil {
		c.log("Warning: pump stop failed: %v", err)
	}
	if err := c.pump.EnableLocal(); err != nil {
		c.log("Warning: return to local control failed: %v", err)
	} else {
		c.log("Pump returned to local control")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

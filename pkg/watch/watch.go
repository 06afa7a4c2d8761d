// Package watch streams live balance readings, flags stability and
// optionally appends them to a CSV log or serves them over a
// websocket.
package watch

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Scale is the balance surface the watcher polls.
type Scale interface {
	RequestWeight() error
	Weight() float64
}

// State is one weight observation.
type State struct {
	Weight    float64   `json:"weight"`
	Delta     float64   `json:"delta"` // change since the previous reading
	Stable    bool      `json:"stable"`
	Timestamp time.Time `json:"timestamp"`
	Error     error     `json:"-"`
}

// Config tunes the watcher. Zero fields fall back to defaults.
type Config struct {
	Interval  time.Duration // poll period
	Window    int           // readings in the stability window
	Threshold float64       // stddev bound for a stable reading, grams
	CSVPath   string        // optional append log
}

func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = time.Second
	}
	if c.Window < 2 {
		c.Window = 10
	}
	if c.Threshold == 0 {
		c.Threshold = 0.0005
	}
}

// Controller polls the scale and publishes observations.
type Controller struct {
	scale Scale
	cfg   Config

	mu      sync.Mutex
	running bool
	window  []float64
	stateCh chan State
	logCh   chan string
}

// NewController wires a scale into a watcher.
func NewController(s Scale, cfg Config) *Controller {
	cfg.applyDefaults()
	return &Controller{
		scale:   s,
		cfg:     cfg,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
}

// States returns a channel that receives weight observations.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Run polls until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	c.log("Weight watch started, polling every %s", c.cfg.Interval)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			c.step()
		}
	}
}

func (c *Controller) step() {
	// The reply to this request lands via the balance reader; the
	// mailbox value read below trails it by at most one tick.
	if err := c.scale.RequestWeight(); err != nil {
		c.log("Weight request failed: %v", err)
		c.sendState(State{Error: err, Timestamp: time.Now()})
		return
	}

	w := c.scale.Weight()
	var delta float64
	if n := len(c.window); n > 0 {
		delta = w - c.window[n-1]
	}
	c.window = append(c.window, w)
	if len(c.window) > c.cfg.Window {
		c.window = c.window[1:]
	}

	s := State{
		Weight:    w,
		Delta:     delta,
		Stable:    stableWindow(c.window, c.cfg.Window, c.cfg.Threshold),
		Timestamp: time.Now(),
	}
	c.sendState(s)

	if c.cfg.CSVPath != "" {
		if err := appendReading(c.cfg.CSVPath, s); err != nil {
			c.log("CSV append failed: %v", err)
		}
	}
}

func (c *Controller) sendState(s State) {
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

// stableWindow reports whether the readings have settled: the window
// is full and its standard deviation sits inside the threshold.
func stableWindow(window []float64, size int, threshold float64) bool {
	if len(window) < size {
		return false
	}
	return stat.StdDev(window, nil) < threshold
}

// appendReading adds one observation row to the CSV log, writing the
// header first when the file is new.
func appendReading(path string, s State) error {
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open weight log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		w.Write([]string{"Timestamp", "Weight (g)", "Delta (g)", "Stable"})
	}
	w.Write([]string{
		s.Timestamp.Format("2006-01-02 15:04:05"),
		strconv.FormatFloat(s.Weight, 'f', 4, 64),
		strconv.FormatFloat(s.Delta, 'f', 4, 64),
		strconv.FormatBool(s.Stable),
	})
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write weight log: %w", err)
	}
	return nil
}

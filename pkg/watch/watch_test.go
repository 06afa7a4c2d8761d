package watch

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeScale struct {
	mu      sync.Mutex
	weights []float64
	idx     int
	reqErr  error
}

func (f *fakeScale) RequestWeight() error {
	return f.reqErr
}

func (f *fakeScale) Weight() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.weights[f.idx]
	if f.idx < len(f.weights)-1 {
		f.idx++
	}
	return w
}

func TestStableWindow(t *testing.T) {
	tests := []struct {
		name      string
		window    []float64
		size      int
		threshold float64
		want      bool
	}{
		{"empty", nil, 5, 0.001, false},
		{"partial window", []float64{1.0, 1.0}, 5, 0.001, false},
		{"settled", []float64{5.0001, 5.0002, 5.0001}, 3, 0.001, true},
		{"still moving", []float64{4.9, 5.1, 5.3}, 3, 0.001, false},
		{"flat", []float64{2.5, 2.5, 2.5, 2.5}, 4, 0.0005, true},
	}

	for _, tt := range tests {
		if got := stableWindow(tt.window, tt.size, tt.threshold); got != tt.want {
			t.Errorf("%s: stableWindow() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAppendReading(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.csv")

	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	readings := []State{
		{Weight: 1.2345, Delta: 0, Stable: false, Timestamp: now},
		{Weight: 1.2347, Delta: 0.0002, Stable: true, Timestamp: now.Add(time.Second)},
	}
	for _, s := range readings {
		if err := appendReading(path, s); err != nil {
			t.Fatalf("appendReading failed: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2 readings", len(rows))
	}
	if rows[0][0] != "Timestamp" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "1.2345" {
		t.Errorf("first weight = %q, want 1.2345", rows[1][1])
	}
	if rows[2][3] != "true" {
		t.Errorf("second stable = %q, want true", rows[2][3])
	}
}

func TestController_Run(t *testing.T) {
	scale := &fakeScale{weights: []float64{1.0, 1.5, 1.5, 1.5, 1.5, 1.5}}
	ctrl := NewController(scale, Config{
		Interval:  5 * time.Millisecond,
		Window:    3,
		Threshold: 0.001,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	var states []State
	deadline := time.After(2 * time.Second)
	for len(states) < 5 {
		select {
		case s := <-ctrl.States():
			states = append(states, s)
		case <-deadline:
			t.Fatalf("timed out after %d states", len(states))
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}

	// Once the window fills with the settled value the state goes stable.
	last := states[len(states)-1]
	if !last.Stable {
		t.Errorf("last state not stable: %+v", last)
	}
	if math.Abs(last.Weight-1.5) > 1e-9 {
		t.Errorf("last weight = %f, want 1.5", last.Weight)
	}
}

func TestController_RunTwice(t *testing.T) {
	scale := &fakeScale{weights: []float64{1.0}}
	ctrl := NewController(scale, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	// Give the first Run a moment to mark itself running.
	time.Sleep(20 * time.Millisecond)
	if err := ctrl.Run(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("second Run returned %v, want already running error", err)
	}
}

func TestController_RequestError(t *testing.T) {
	scale := &fakeScale{weights: []float64{0}, reqErr: errors.New("port gone")}
	ctrl := NewController(scale, Config{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	select {
	case s := <-ctrl.States():
		if s.Error == nil {
			t.Errorf("expected error state, got %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no state received")
	}
}

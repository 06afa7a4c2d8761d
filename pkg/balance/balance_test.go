package balance

import (
	"context"
	"math"
	"strings"
	"testing"
)

func TestParseWeight(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{"S S      1.2345 g", 1.2345, true},
		{"S S     -0.0012 g", -0.0012, true},
		{"S D     21.5 g", 21.5, true},
		{"39.79998", 39.8, true},
		{"1.23456789", 1.2346, true},
		{"0.0000", 0, true},
		{"ES", 0, false},
		{"", 0, false},
		{"g . -", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseWeight(tt.line)
		if ok != tt.ok {
			t.Errorf("ParseWeight(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if math.Abs(got-tt.want) > 0.00001 {
			t.Errorf("ParseWeight(%q) = %f, want %f", tt.line, got, tt.want)
		}
	}
}

func TestSplitLines_Chunked(t *testing.T) {
	rest, lines := splitLines([]byte("S S 1.2"))
	if len(lines) != 0 {
		t.Fatalf("got %d lines from a partial chunk", len(lines))
	}

	rest, lines = splitLines(append(rest, []byte("345 g\r\nS S 2")...))
	if len(lines) != 1 || lines[0] != "S S 1.2345 g" {
		t.Fatalf("lines = %q", lines)
	}
	if string(rest) != "S S 2" {
		t.Errorf("rest = %q", rest)
	}
}

func TestSplitLines_BlankAndBareCR(t *testing.T) {
	_, lines := splitLines([]byte("a\r\n\r\nb\n"))
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Errorf("lines = %q", lines)
	}
}

func TestConsume_PublishesNewest(t *testing.T) {
	var b Balance
	r := strings.NewReader("S S      1.0000 g\r\nES\r\nS S      2.5000 g\r\n")

	err := b.consume(context.Background(), r)
	if err == nil {
		t.Fatal("consume did not surface the reader EOF")
	}

	reading, ok := b.Latest()
	if !ok {
		t.Fatal("no reading published")
	}
	if math.Abs(reading.Grams-2.5) > 0.00001 {
		t.Errorf("latest = %f, want 2.5", reading.Grams)
	}
}

func TestConsume_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var b Balance
	if err := b.consume(ctx, strings.NewReader("")); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWeight_NoReading(t *testing.T) {
	var b Balance
	if w := b.Weight(); w != 0 {
		t.Errorf("weight before any reading = %f", w)
	}
	if _, ok := b.Latest(); ok {
		t.Error("Latest reported a reading before any arrived")
	}
}

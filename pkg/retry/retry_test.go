package retry

import (
	"errors"
	"testing"
)

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(5, 0, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 3 {
		t.Errorf("Do made %d calls, want 3", calls)
	}
}

func TestDo_ReturnsLastError(t *testing.T) {
	wantErr := errors.New("still broken")
	calls := 0
	err := Do(4, 0, func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Do returned %v, want %v", err, wantErr)
	}
	if calls != 4 {
		t.Errorf("Do made %d calls, want 4", calls)
	}
}

func TestValue_ReturnsFirstSuccess(t *testing.T) {
	calls := 0
	got, err := Value(3, 0, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("garbled")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Value returned error: %v", err)
	}
	if got != 42 {
		t.Errorf("Value returned %d, want 42", got)
	}
	if calls != 2 {
		t.Errorf("Value made %d calls, want 2", calls)
	}
}

func TestValue_Exhausted(t *testing.T) {
	got, err := Value(2, 0, func() ([]float64, error) {
		return nil, errors.New("no reading")
	})
	if err == nil {
		t.Fatal("Value returned nil error after exhausting attempts")
	}
	if got != nil {
		t.Errorf("Value returned %v, want zero value", got)
	}
}

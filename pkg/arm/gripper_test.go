package arm

import (
	"path/filepath"
	"testing"
)

func TestGripperCalibration_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gripper_calibration.json")

	cal := NewGripperCalibration(12, 248)
	if cal.Timestamp == "" {
		t.Error("expected timestamp to be set")
	}

	if err := cal.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadGripperCalibration(path)
	if err != nil {
		t.Fatalf("LoadGripperCalibration failed: %v", err)
	}

	if loaded.ClosedZero != 12 {
		t.Errorf("ClosedZero = %d, want 12", loaded.ClosedZero)
	}
	if loaded.OpenMax != 248 {
		t.Errorf("OpenMax = %d, want 248", loaded.OpenMax)
	}
	if loaded.Timestamp != cal.Timestamp {
		t.Errorf("Timestamp = %q, want %q", loaded.Timestamp, cal.Timestamp)
	}
}

func TestGripperCalibration_Span(t *testing.T) {
	cal := GripperCalibration{ClosedZero: 10, OpenMax: 250}
	if got := cal.Span(); got != 240 {
		t.Errorf("Span() = %d, want 240", got)
	}
}

func TestLoadGripperCalibration_Missing(t *testing.T) {
	_, err := LoadGripperCalibration(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

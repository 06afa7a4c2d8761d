package arm

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPositionStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "positions.json")

	s := NewPositionStore()
	s.Set("home", Position{
		Angles:      []float64{0, 0, 0, 0, 0, 0},
		Coordinates: []float64{56.5, -63.4, 412.1, -90.25, 0.5, -90},
		Description: "Safe resting pose",
	})
	s.Set("above_vial", Position{
		Angles:      []float64{-45.5, 20.1, -60.7, 40.6, 45, 0},
		Description: "Hover over the vial rack",
	})

	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadPositions(path)
	if err != nil {
		t.Fatalf("LoadPositions: %v", err)
	}
	if loaded.Info.RobotModel != "MyCobot 280" {
		t.Errorf("robot model = %q", loaded.Info.RobotModel)
	}
	if loaded.Info.TotalPositions != 2 {
		t.Errorf("total positions = %d, want 2", loaded.Info.TotalPositions)
	}

	angles, ok := loaded.Angles("above_vial")
	if !ok {
		t.Fatal("above_vial missing after reload")
	}
	for i, want := range []float64{-45.5, 20.1, -60.7, 40.6, 45, 0} {
		if math.Abs(angles[i]-want) > 0.001 {
			t.Errorf("joint %d: got %f, want %f", i+1, angles[i], want)
		}
	}

	if _, ok := loaded.Angles("nonexistent"); ok {
		t.Error("Angles returned a pose that was never stored")
	}
}

func TestLoadLatest(t *testing.T) {
	dir := t.TempDir()

	old := NewPositionStore()
	old.Set("home", Position{Angles: []float64{0, 0, 0, 0, 0, 0}})
	oldPath := filepath.Join(dir, "positions_20250101_120000.json")
	if err := old.Save(oldPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	recent := NewPositionStore()
	recent.Set("home", Position{Angles: []float64{1, 2, 3, 4, 5, 6}})
	recentPath := filepath.Join(dir, "positions_20250601_120000.json")
	if err := recent.Save(recentPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Ensure distinct modification times regardless of filesystem resolution.
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	s, path, err := LoadLatest(filepath.Join(dir, "positions_*.json"))
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if path != recentPath {
		t.Errorf("picked %s, want %s", path, recentPath)
	}
	angles, _ := s.Angles("home")
	if math.Abs(angles[0]-1) > 0.001 {
		t.Errorf("loaded stale store, home[0] = %f", angles[0])
	}
}

func TestLoadLatest_NoMatch(t *testing.T) {
	if _, _, err := LoadLatest(filepath.Join(t.TempDir(), "positions_*.json")); err == nil {
		t.Error("LoadLatest succeeded with no files")
	}
}

func TestLoadPositions_Missing(t *testing.T) {
	if _, err := LoadPositions(filepath.Join(t.TempDir(), "gone.json")); err == nil {
		t.Error("LoadPositions succeeded on a missing file")
	}
}

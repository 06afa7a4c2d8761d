package bench

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wetbench.json")

	cfg := Config{
		Arm:     DeviceConfig{Port: "/dev/ttyAMA0"},
		Balance: DeviceConfig{Port: "/dev/ttyUSB0"},
		Pump:    PumpConfig{Port: "/dev/ttyUSB1", Number: 1},
		Profile: "narrow-bore",
	}

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom failed: %v", err)
	}

	if loaded.Arm.Port != cfg.Arm.Port {
		t.Errorf("Arm.Port = %q, want %q", loaded.Arm.Port, cfg.Arm.Port)
	}
	if loaded.Balance.Port != cfg.Balance.Port {
		t.Errorf("Balance.Port = %q, want %q", loaded.Balance.Port, cfg.Balance.Port)
	}
	if loaded.Pump.Port != cfg.Pump.Port {
		t.Errorf("Pump.Port = %q, want %q", loaded.Pump.Port, cfg.Pump.Port)
	}
	if loaded.Pump.Number != 1 {
		t.Errorf("Pump.Number = %d, want 1", loaded.Pump.Number)
	}
	if loaded.Profile != cfg.Profile {
		t.Errorf("Profile = %q, want %q", loaded.Profile, cfg.Profile)
	}
}

func TestConfig_LoadMissing(t *testing.T) {
	_, err := LoadConfigFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestConfig_IsComplete(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"empty", Config{}, false},
		{"arm only", Config{Arm: DeviceConfig{Port: "/dev/ttyAMA0"}}, false},
		{"all set", Config{
			Arm:     DeviceConfig{Port: "a"},
			Balance: DeviceConfig{Port: "b"},
			Pump:    PumpConfig{Port: "c"},
		}, true},
	}

	for _, tt := range tests {
		if got := tt.cfg.IsComplete(); got != tt.want {
			t.Errorf("%s: IsComplete() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

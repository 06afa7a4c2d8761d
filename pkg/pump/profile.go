package pump

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultMLPerRev is the tubing calibration assumed when no profile
// overrides it, in millilitres per revolution.
const DefaultMLPerRev = 2.7489

// DefaultProfileFile is where named calibrations live, relative to the
// working directory.
const DefaultProfileFile = "pump_calibrations.json"

// Profile is one stored tubing calibration.
type Profile struct {
	MLPerRevolution float64 `json:"ml_per_revolution"`
	Date            string  `json:"date,omitempty"`
	Description     string  `json:"description,omitempty"`
}

// ProfileStore is the on-disk set of named calibrations.
type ProfileStore struct {
	Profiles map[string]Profile `json:"profiles"`
}

// LoadProfiles reads a calibration file. A missing file yields an
// empty store so first runs work without setup.
func LoadProfiles(path string) (*ProfileStore, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ProfileStore{Profiles: map[string]Profile{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	var s ProfileStore
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse calibration file %s: %w", path, err)
	}
	if s.Profiles == nil {
		s.Profiles = map[string]Profile{}
	}
	return &s, nil
}

func (s *ProfileStore) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal calibration file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write calibration file: %w", err)
	}
	return nil
}

func (s *ProfileStore) Get(name string) (Profile, bool) {
	p, ok := s.Profiles[name]
	return p, ok
}

func (s *ProfileStore) Set(name string, p Profile) {
	if s.Profiles == nil {
		s.Profiles = map[string]Profile{}
	}
	s.Profiles[name] = p
}

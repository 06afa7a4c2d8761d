package arm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Position is one taught pose: the joint angles plus the cartesian
// readout captured at record time. Poses are captured by physically
// moving the arm, never computed.
type Position struct {
	Angles      []float64 `json:"angles"`
	Coordinates []float64 `json:"coordinates"`
	Description string    `json:"description"`
	Timestamp   string    `json:"timestamp"`
}

// Layout describes a container grid in a cup collection file.
type Layout struct {
	Type            string `json:"type,omitempty"`
	TotalContainers int    `json:"total_containers,omitempty"`
	Description     string `json:"description,omitempty"`
}

// CollectionInfo is the header block of a position file.
type CollectionInfo struct {
	RobotModel     string  `json:"robot_model"`
	Date           string  `json:"calibration_date"`
	TotalPositions int     `json:"total_positions"`
	Layout         *Layout `json:"layout,omitempty"`
}

// PositionStore holds taught poses keyed by name, persisted as JSON.
type PositionStore struct {
	Info      CollectionInfo      `json:"calibration_info"`
	Positions map[string]Position `json:"positions"`
}

// NewPositionStore returns an empty store stamped with the robot model
// and the current date.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		Info: CollectionInfo{
			RobotModel: "MyCobot 280",
			Date:       time.Now().Format(time.RFC3339),
		},
		Positions: make(map[string]Position),
	}
}

// LoadPositions loads a position file.
func LoadPositions(path string) (*PositionStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read position file: %w", err)
	}

	var store PositionStore
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("parse position JSON: %w", err)
	}
	if store.Positions == nil {
		store.Positions = make(map[string]Position)
	}
	return &store, nil
}

// LoadLatest loads the newest file matching the glob pattern. Teaching
// runs write timestamped captures; sequences always want the latest.
func LoadLatest(pattern string) (*PositionStore, string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, "", fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, "", fmt.Errorf("no position file matches %q", pattern)
	}

	newest := matches[0]
	var newestMod time.Time
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			continue
		}
		if fi.ModTime().After(newestMod) {
			newest = m
			newestMod = fi.ModTime()
		}
	}

	store, err := LoadPositions(newest)
	if err != nil {
		return nil, "", err
	}
	return store, newest, nil
}

// Save writes the store as indented JSON, refreshing the position count.
func (s *PositionStore) Save(path string) error {
	s.Info.TotalPositions = len(s.Positions)
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Set records a pose under the given name.
func (s *PositionStore) Set(name string, p Position) {
	if s.Positions == nil {
		s.Positions = make(map[string]Position)
	}
	s.Positions[name] = p
}

// Get returns the named pose.
func (s *PositionStore) Get(name string) (Position, bool) {
	p, ok := s.Positions[name]
	return p, ok
}

// Angles returns the joint angles of the named pose.
func (s *PositionStore) Angles(name string) ([]float64, bool) {
	p, ok := s.Positions[name]
	if !ok {
		return nil, false
	}
	return p.Angles, true
}

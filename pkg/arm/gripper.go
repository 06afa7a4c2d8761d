package arm

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const DefaultGripperFile = "gripper_calibration.json"

// GripperCalibration maps the gripper encoder to its physical travel.
// ClosedZero is the raw value with the jaws fully closed, OpenMax the
// value at full opening. Both are captured by hand in free mode.
type GripperCalibration struct {
	Timestamp  string `json:"timestamp"`
	ClosedZero int    `json:"closed_zero"`
	OpenMax    int    `json:"open_max"`
}

// NewGripperCalibration returns a calibration stamped with the current time.
func NewGripperCalibration(closedZero, openMax int) *GripperCalibration {
	return &GripperCalibration{
		Timestamp:  time.Now().Format(time.RFC3339),
		ClosedZero: closedZero,
		OpenMax:    openMax,
	}
}

// LoadGripperCalibration loads a gripper calibration file.
func LoadGripperCalibration(path string) (*GripperCalibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gripper calibration: %w", err)
	}
	var cal GripperCalibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("parse gripper calibration: %w", err)
	}
	return &cal, nil
}

// Save writes the calibration as indented JSON.
func (g *GripperCalibration) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Span returns the encoder travel between closed and open.
func (g *GripperCalibration) Span() int {
	return g.OpenMax - g.ClosedZero
}

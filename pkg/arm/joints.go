// Package arm provides a serial driver for the MyCobot 280 robot arm.
package arm

// JointName identifies a joint in the arm.
type JointName string

// Joint names for the MyCobot 280, base to flange.
const (
	BaseRotate JointName = "base_rotate"
	Shoulder   JointName = "shoulder"
	Elbow      JointName = "elbow"
	WristPitch JointName = "wrist_pitch"
	WristRoll  JointName = "wrist_roll"
	Flange     JointName = "flange"
)

// NumJoints is the number of joints (and servo IDs 1..NumJoints).
const NumJoints = 6

// AllJoints returns all joint names in order (matching servo IDs 1-6).
func AllJoints() []JointName {
	return []JointName{
		BaseRotate,
		Shoulder,
		Elbow,
		WristPitch,
		WristRoll,
		Flange,
	}
}

// HomeAngles returns the all-zero joint pose.
func HomeAngles() []float64 {
	return make([]float64, NumJoints)
}

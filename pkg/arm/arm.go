package arm

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaud is the MyCobot 280 USB serial rate.
	DefaultBaud = 115200

	queryTimeout = 2 * time.Second
)

// Gripper state flags for SetGripperState.
const (
	GripperOpen  = 0
	GripperClose = 1
)

// Arm is a connection to a MyCobot 280 over its USB serial port.
// Movement commands are fire-and-forget; the arm gives no completion
// signal, so callers pace themselves with waits.
type Arm struct {
	port serial.Port
	mu   sync.Mutex
}

// NewArm opens the arm's serial port (115200 8N1).
func NewArm(port string) (*Arm, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: DefaultBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open arm port: %w", err)
	}
	if err := p.SetReadTimeout(100 * time.Millisecond); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &Arm{port: p}, nil
}

// Close closes the arm's serial port.
func (a *Arm) Close() error {
	return a.port.Close()
}

func (a *Arm) send(genre byte, data ...byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.port.Write(buildFrame(genre, data...)); err != nil {
		return fmt.Errorf("write frame 0x%02x: %w", genre, err)
	}
	return nil
}

// query sends a frame and reads back the response frame of the same genre.
func (a *Arm) query(genre byte, data ...byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.port.ResetInputBuffer()
	if _, err := a.port.Write(buildFrame(genre, data...)); err != nil {
		return nil, fmt.Errorf("write frame 0x%02x: %w", genre, err)
	}

	var pending []byte
	chunk := make([]byte, 64)
	deadline := time.Now().Add(queryTimeout)
	for time.Now().Before(deadline) {
		n, err := a.port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("read frame 0x%02x: %w", genre, err)
		}
		if n == 0 {
			continue
		}
		pending = append(pending, chunk[:n]...)
		payload, consumed, ok := extractFrame(pending, genre)
		if ok {
			return payload, nil
		}
		pending = pending[consumed:]
	}
	return nil, fmt.Errorf("no response to frame 0x%02x", genre)
}

// PowerOn powers up all servos. The controller needs a couple of
// seconds afterwards before it accepts motion commands.
func (a *Arm) PowerOn() error {
	return a.send(cmdPowerOn)
}

// ReleaseAllServos drops torque on every joint so the arm can be moved
// by hand.
func (a *Arm) ReleaseAllServos() error {
	return a.send(cmdReleaseAllServos)
}

// SetFreeMode toggles free-move mode (torque off when on is true).
func (a *Arm) SetFreeMode(on bool) error {
	var flag byte
	if on {
		flag = 1
	}
	return a.send(cmdSetFreeMode, flag)
}

// IsControllerConnected reports whether the Atom controller answers.
func (a *Arm) IsControllerConnected() (bool, error) {
	payload, err := a.query(cmdIsControllerConnected)
	if err != nil {
		return false, err
	}
	return len(payload) > 0 && payload[0] == 1, nil
}

// GetAngles reads the current joint angles in degrees.
func (a *Arm) GetAngles() ([]float64, error) {
	payload, err := a.query(cmdGetAngles)
	if err != nil {
		return nil, err
	}
	return decodeAngles(payload)
}

// SendAngle moves a single joint (servo ID 1-6) to an angle in degrees
// at the given speed (0-100).
func (a *Arm) SendAngle(joint int, angle float64, speed int) error {
	if joint < 1 || joint > NumJoints {
		return fmt.Errorf("joint %d out of range 1-%d", joint, NumJoints)
	}
	data := append([]byte{byte(joint)}, encodeAngle(angle)...)
	data = append(data, byte(speed))
	return a.send(cmdSendAngle, data...)
}

// SendAngles moves all six joints to the given angles in degrees at the
// given speed (0-100).
func (a *Arm) SendAngles(angles []float64, speed int) error {
	if len(angles) != NumJoints {
		return fmt.Errorf("got %d angles, want %d", len(angles), NumJoints)
	}
	data := append(encodeAngles(angles), byte(speed))
	return a.send(cmdSendAngles, data...)
}

// GetCoords reads the cartesian pose: x,y,z in mm and rx,ry,rz in degrees.
func (a *Arm) GetCoords() ([]float64, error) {
	payload, err := a.query(cmdGetCoords)
	if err != nil {
		return nil, err
	}
	return decodeCoords(payload)
}

// GetServoVoltages reads each servo's supply voltage in volts.
func (a *Arm) GetServoVoltages() ([]float64, error) {
	payload, err := a.query(cmdGetServoVoltages)
	if err != nil {
		return nil, err
	}
	if len(payload) < NumJoints {
		return nil, fmt.Errorf("voltage payload is %d bytes, want %d", len(payload), NumJoints)
	}
	volts := make([]float64, NumJoints)
	for i := range volts {
		volts[i] = float64(payload[i]) / 10
	}
	return volts, nil
}

// SetServoCalibration stamps the joint's current angle as its zero
// reference. This permanently rewrites the servo's offset.
func (a *Arm) SetServoCalibration(joint int) error {
	if joint < 1 || joint > NumJoints {
		return fmt.Errorf("joint %d out of range 1-%d", joint, NumJoints)
	}
	return a.send(cmdSetServoCalibration, byte(joint))
}

// SetGripperState opens (GripperOpen) or closes (GripperClose) the
// adaptive gripper at the given speed (0-100).
func (a *Arm) SetGripperState(flag, speed int) error {
	return a.send(cmdSetGripperState, byte(flag), byte(speed))
}

// SetGripperValue moves the gripper to an opening value (0-100) at the
// given speed.
func (a *Arm) SetGripperValue(value, speed int) error {
	return a.send(cmdSetGripperValue, byte(value), byte(speed))
}

// GetGripperValue reads the gripper encoder value.
func (a *Arm) GetGripperValue() (int, error) {
	payload, err := a.query(cmdGetGripperValue)
	if err != nil {
		return 0, err
	}
	if len(payload) == 0 {
		return 0, fmt.Errorf("empty gripper value response")
	}
	return int(payload[0]), nil
}

// SetGripperCalibration stamps the gripper's current position as its
// zero reference.
func (a *Arm) SetGripperCalibration() error {
	return a.send(cmdSetGripperCalibration)
}

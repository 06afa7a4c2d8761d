package arm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame layout: FE FE <len> <genre> <data...> FA, where len counts the
// genre byte, the data bytes and the footer.
const (
	frameHeader = 0xFE
	frameFooter = 0xFA
)

// Command genres of the MyCobot 280 host protocol.
const (
	cmdPowerOn               = 0x10
	cmdReleaseAllServos      = 0x13
	cmdIsControllerConnected = 0x14
	cmdSetFreeMode           = 0x1A
	cmdGetAngles             = 0x20
	cmdSendAngle             = 0x21
	cmdSendAngles            = 0x22
	cmdGetCoords             = 0x23
	cmdGetServoVoltages      = 0x32
	cmdSetServoCalibration   = 0x54
	cmdGetGripperValue       = 0x65
	cmdSetGripperState       = 0x66
	cmdSetGripperValue       = 0x67
	cmdSetGripperCalibration = 0x68
)

func buildFrame(genre byte, data ...byte) []byte {
	frame := make([]byte, 0, len(data)+5)
	frame = append(frame, frameHeader, frameHeader, byte(len(data)+2), genre)
	frame = append(frame, data...)
	return append(frame, frameFooter)
}

// extractFrame scans buf for a complete frame with the wanted genre and
// returns its data bytes plus the number of bytes consumed. Garbage
// before the header and frames for other genres are skipped.
func extractFrame(buf []byte, genre byte) (data []byte, consumed int, found bool) {
	for i := 0; i+3 < len(buf); i++ {
		if buf[i] != frameHeader || buf[i+1] != frameHeader {
			continue
		}
		// Longest reply payload is 12 bytes (angles, coords), so a
		// length byte outside [2,16] marks a false header.
		length := int(buf[i+2])
		if length < 2 || length > 16 {
			continue
		}
		end := i + 3 + length
		if end > len(buf) {
			// Frame not fully received yet; keep from the header on
			return nil, i, false
		}
		if buf[end-1] != frameFooter {
			continue
		}
		if buf[i+3] != genre {
			i = end - 1
			continue
		}
		return buf[i+4 : end-1], end, true
	}
	// No frame; keep a tail that could be the start of one
	if consumed = len(buf) - 3; consumed < 0 {
		consumed = 0
	}
	return nil, consumed, false
}

// Angles ride as big-endian int16 hundredths of a degree.

func encodeAngle(deg float64) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(int16(math.Round(deg*100))))
	return b
}

func decodeAngle(b []byte) float64 {
	return float64(int16(binary.BigEndian.Uint16(b))) / 100
}

func encodeAngles(angles []float64) []byte {
	b := make([]byte, 0, 2*len(angles))
	for _, a := range angles {
		b = append(b, encodeAngle(a)...)
	}
	return b
}

func decodeAngles(data []byte) ([]float64, error) {
	if len(data) != 2*NumJoints {
		return nil, fmt.Errorf("angle payload is %d bytes, want %d", len(data), 2*NumJoints)
	}
	angles := make([]float64, NumJoints)
	for i := range angles {
		angles[i] = decodeAngle(data[2*i : 2*i+2])
	}
	return angles, nil
}

// Coords are x,y,z in tenths of a millimetre followed by rx,ry,rz in
// hundredths of a degree.
func decodeCoords(data []byte) ([]float64, error) {
	if len(data) != 12 {
		return nil, fmt.Errorf("coord payload is %d bytes, want 12", len(data))
	}
	coords := make([]float64, 6)
	for i := 0; i < 3; i++ {
		coords[i] = float64(int16(binary.BigEndian.Uint16(data[2*i:2*i+2]))) / 10
	}
	for i := 3; i < 6; i++ {
		coords[i] = float64(int16(binary.BigEndian.Uint16(data[2*i:2*i+2]))) / 100
	}
	return coords, nil
}

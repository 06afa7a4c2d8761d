package arm

import (
	"bytes"
	"math"
	"testing"
)

func TestBuildFrame(t *testing.T) {
	tests := []struct {
		name  string
		genre byte
		data  []byte
		want  []byte
	}{
		{"power on", cmdPowerOn, nil, []byte{0xFE, 0xFE, 0x02, 0x10, 0xFA}},
		{"free mode on", cmdSetFreeMode, []byte{1}, []byte{0xFE, 0xFE, 0x03, 0x1A, 0x01, 0xFA}},
		{"gripper close", cmdSetGripperState, []byte{1, 50}, []byte{0xFE, 0xFE, 0x04, 0x66, 0x01, 0x32, 0xFA}},
	}

	for _, tt := range tests {
		got := buildFrame(tt.genre, tt.data...)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("%s: buildFrame = % x, want % x", tt.name, got, tt.want)
		}
	}
}

func TestAngleCodec_RoundTrip(t *testing.T) {
	angles := []float64{0, 45.5, -60.25, 90, -135.7, 179.99}

	for _, a := range angles {
		got := decodeAngle(encodeAngle(a))
		if math.Abs(got-a) > 0.005 {
			t.Errorf("angle %f round-tripped to %f", a, got)
		}
	}
}

func TestEncodeAngle_Negative(t *testing.T) {
	// -90 degrees = -9000 hundredths = 0xDCD8 two's complement
	got := encodeAngle(-90)
	want := []byte{0xDC, 0xD8}
	if !bytes.Equal(got, want) {
		t.Errorf("encodeAngle(-90) = % x, want % x", got, want)
	}
}

func TestDecodeAngles(t *testing.T) {
	pose := []float64{0, 45, -60, 30, 45, 0}
	got, err := decodeAngles(encodeAngles(pose))
	if err != nil {
		t.Fatalf("decodeAngles: %v", err)
	}
	for i := range pose {
		if math.Abs(got[i]-pose[i]) > 0.005 {
			t.Errorf("joint %d: got %f, want %f", i+1, got[i], pose[i])
		}
	}
}

func TestDecodeAngles_BadLength(t *testing.T) {
	if _, err := decodeAngles([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Error("decodeAngles accepted a short payload")
	}
}

func TestDecodeCoords(t *testing.T) {
	// x=150.5mm y=-20.0mm z=100.0mm rx=90.00 ry=-45.00 rz=0.00
	data := []byte{
		0x05, 0xE1, // 1505
		0xFF, 0x38, // -200
		0x03, 0xE8, // 1000
		0x23, 0x28, // 9000
		0xEE, 0x6C, // -4500
		0x00, 0x00,
	}
	want := []float64{150.5, -20, 100, 90, -45, 0}

	got, err := decodeCoords(data)
	if err != nil {
		t.Fatalf("decodeCoords: %v", err)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 0.005 {
			t.Errorf("coord %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestExtractFrame(t *testing.T) {
	frame := buildFrame(cmdGetAngles, encodeAngles([]float64{1, 2, 3, 4, 5, 6})...)

	t.Run("leading garbage", func(t *testing.T) {
		buf := append([]byte{0x00, 0x41, 0xFE}, frame...)
		data, consumed, ok := extractFrame(buf, cmdGetAngles)
		if !ok {
			t.Fatal("frame not found after garbage")
		}
		if consumed != len(buf) {
			t.Errorf("consumed %d bytes, want %d", consumed, len(buf))
		}
		if len(data) != 12 {
			t.Errorf("payload is %d bytes, want 12", len(data))
		}
	})

	t.Run("incomplete", func(t *testing.T) {
		_, consumed, ok := extractFrame(frame[:6], cmdGetAngles)
		if ok {
			t.Fatal("incomplete frame reported as found")
		}
		if consumed != 0 {
			t.Errorf("incomplete frame consumed %d bytes, want 0", consumed)
		}
	})

	t.Run("other genre skipped", func(t *testing.T) {
		other := buildFrame(cmdGetCoords, make([]byte, 12)...)
		buf := append(append([]byte{}, other...), frame...)
		data, _, ok := extractFrame(buf, cmdGetAngles)
		if !ok {
			t.Fatal("frame not found behind other genre")
		}
		angles, err := decodeAngles(data)
		if err != nil {
			t.Fatalf("decodeAngles: %v", err)
		}
		if math.Abs(angles[0]-1) > 0.005 {
			t.Errorf("first angle = %f, want 1", angles[0])
		}
	})

	t.Run("no frame", func(t *testing.T) {
		_, _, ok := extractFrame([]byte{0x01, 0x02, 0x03, 0x04, 0x05}, cmdGetAngles)
		if ok {
			t.Error("found a frame in pure garbage")
		}
	})
}

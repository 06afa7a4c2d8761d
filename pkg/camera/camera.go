// Package camera grabs snapshots from the bench webcam for run
// documentation.
package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"
)

const DefaultDir = "photos"

// Capture grabs one frame from the given device and writes it as a
// timestamped PNG under dir. It returns the path written.
func Capture(deviceID int, dir string) (string, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create photo dir: %w", err)
	}

	cam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return "", fmt.Errorf("open camera %d: %w", deviceID, err)
	}
	defer cam.Close()

	img := gocv.NewMat()
	defer img.Close()

	if ok := cam.Read(&img); !ok || img.Empty() {
		return "", fmt.Errorf("camera %d returned no frame", deviceID)
	}

	path := filepath.Join(dir, fmt.Sprintf("photo_%s.png", time.Now().Format("20060102_150405")))
	if ok := gocv.IMWrite(path, img); !ok {
		return "", fmt.Errorf("write %s failed", path)
	}
	return path, nil
}

// Periodic captures a frame every interval until ctx is cancelled,
// reporting each write through logf.
func Periodic(ctx context.Context, deviceID int, dir string, interval time.Duration, logf func(format string, args ...any)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			path, err := Capture(deviceID, dir)
			if err != nil {
				logf("Snapshot failed: %v", err)
				continue
			}
			logf("Saved %s", path)
		}
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantalab/wetbench/pkg/camera"
)

type SnapshotCommand struct {
	Device int           `long:"device" default:"0" description:"Camera device id"`
	Dir    string        `long:"dir" default:"photos" description:"Directory for captured frames"`
	Every  time.Duration `long:"every" description:"Capture repeatedly at this interval instead of once"`
}

func (c *SnapshotCommand) Execute(args []string) error {
	if c.Every <= 0 {
		path, err := camera.Capture(c.Device, c.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error capturing frame: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved %s\n", path)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Capturing from device %d every %s, Ctrl-C to stop\n", c.Device, c.Every)
	camera.Periodic(ctx, c.Device, c.Dir, c.Every, func(format string, args ...any) {
		fmt.Printf(format+"\n", args...)
	})
	fmt.Println("Capture stopped.")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantalab/wetbench/pkg/arm"
	"github.com/quantalab/wetbench/pkg/sequence"
)

type TransferCommand struct {
	Port      string `long:"port" description:"Arm serial port (default from wetbench.json)"`
	Routine   string `long:"routine" default:"vial" choice:"vial" choice:"cup" description:"Taught routine to run"`
	Container int    `long:"container" default:"1" description:"Rack slot to fetch (cup routine)"`
	Positions string `long:"positions" description:"Position file (default newest matching teach capture)"`
}

func (c *TransferCommand) Execute(args []string) error {
	port := c.Port
	if port == "" {
		port = loadBench().Arm.Port
	}
	if port == "" {
		fmt.Fprintln(os.Stderr, "Arm port is required. Run 'bench-info' or pass --port.")
		os.Exit(1)
	}

	var (
		steps  []sequence.Step
		timing sequence.Timing
		patt   string
	)
	switch c.Routine {
	case "cup":
		steps = sequence.CupSteps(c.Container)
		timing = sequence.CupTiming
		patt = sequence.CupPositionsPattern
	default:
		steps = sequence.VialSteps()
		timing = sequence.VialTiming
		patt = sequence.VialPositionsPattern
	}

	fmt.Println(headerStyle.Render("Wetbench Transfer"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	var (
		store *arm.PositionStore
		path  string
		err   error
	)
	if c.Positions != "" {
		path = c.Positions
		store, err = arm.LoadPositions(path)
	} else {
		store, path, err = arm.LoadLatest(patt)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading positions: %v\n", err)
		fmt.Fprintln(os.Stderr, "Teach the routine first with 'wetbench teach'.")
		os.Exit(1)
	}
	fmt.Printf("Loaded %d positions from %s\n", len(store.Positions), path)

	a, err := arm.NewArm(port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to arm: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	runner := sequence.NewRunner(a, store, timing, func(format string, args ...any) {
		fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
	})

	// Catch half-taught position files before asking the user to clear
	// the bench.
	if err := runner.Validate(steps); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Teach the routine again with 'wetbench teach'.")
		os.Exit(1)
	}

	fmt.Println()
	waitForUser(fmt.Sprintf("About to run the %s routine (%d steps). Clear the bench around the arm, then continue.",
		c.Routine, len(steps)))

	if err := a.PowerOn(); err != nil {
		fmt.Fprintf(os.Stderr, "Error powering on arm: %v\n", err)
		os.Exit(1)
	}
	time.Sleep(3 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Run(ctx, steps); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("\nTransfer interrupted.")
			return nil
		}
		fmt.Fprintf(os.Stderr, "Transfer failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Transfer complete!"))
	return nil
}

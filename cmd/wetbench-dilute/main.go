package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantalab/wetbench/pkg/balance"
	"github.com/quantalab/wetbench/pkg/bench"
	"github.com/quantalab/wetbench/pkg/dilute"
	"github.com/quantalab/wetbench/pkg/pump"
	"github.com/quantalab/wetbench/pkg/retry"
)

// Console twin of 'wetbench dilute' for headless benches: same cycle
// controller, plain log lines instead of the TUI.
func main() {
	var (
		pumpPort       = flag.String("pump.port", "", "Pump serial port (optional if wetbench.json exists)")
		pumpNumber     = flag.Int("pump.number", 0, "Pump satellite number")
		balancePort    = flag.String("balance.port", "", "Balance serial port (optional if wetbench.json exists)")
		ratio          = flag.Float64("ratio", 0, "Sample to total solution mass ratio (default 1/20.9)")
		flowRate       = flag.Float64("flow-rate", 0, "Dispense speed in RPM (default 30)")
		fillRate       = flag.Float64("fill-rate", 0, "Tubing fill speed in RPM (default 60)")
		mlPerRev       = flag.Float64("ml-per-rev", 0, "Tubing delivery in ml per revolution (default 2.7489)")
		profile        = flag.String("profile", "", "Named tubing calibration from pump_calibrations.json")
		timeout        = flag.Duration("timeout", 0, "Hard cap on one metered run (default 1m)")
		tareDelay      = flag.Duration("tare-delay", 0, "Wait after taring (default 20s)")
		sampleTime     = flag.Duration("sample-time", 0, "Window for placing the sample (default 20s)")
		weightInterval = flag.Duration("weight-interval", 0, "Pause between weight readings (default 500ms)")
		skipFill       = flag.Bool("skip-fill", false, "Skip the tubing fill step")
		cycles         = flag.Int("cycles", 0, "Number of cycles to run (0 = until interrupted)")
		report         = flag.String("report", dilute.DefaultReportFile, "CSV file for cycle results")
	)
	flag.Parse()

	pPort, bPort := *pumpPort, *balancePort
	number := *pumpNumber
	profileName := *profile

	if pPort == "" || bPort == "" {
		cfg, err := bench.LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "No ports specified and cannot load %s: %v\n", bench.DefaultConfigFile, err)
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprintln(os.Stderr, "Run 'go run ./cmd/bench-info' to detect and configure ports,")
			fmt.Fprintln(os.Stderr, "or specify ports manually with --pump.port and --balance.port")
			os.Exit(1)
		}
		if pPort == "" {
			pPort = cfg.Pump.Port
		}
		if bPort == "" {
			bPort = cfg.Balance.Port
		}
		if number == 0 {
			number = cfg.Pump.Number
		}
		if profileName == "" {
			profileName = cfg.Profile
		}
		fmt.Printf("Loaded configuration from %s\n", bench.DefaultConfigFile)
	}
	if number == 0 {
		number = 1
	}

	perRev := *mlPerRev
	if profileName != "" {
		store, err := pump.LoadProfiles(pump.DefaultProfileFile)
		if err != nil {
			log.Fatalf("Failed to load calibrations: %v", err)
		}
		if p, ok := store.Get(profileName); ok {
			perRev = p.MLPerRevolution
			fmt.Printf("Loaded profile %q: %.4f ml/revolution\n", profileName, perRev)
		} else {
			fmt.Printf("Profile %q not found, using default\n", profileName)
		}
	}

	p, err := pump.Open(pPort, number)
	if err != nil {
		log.Fatalf("Failed to open pump: %v", err)
	}
	defer p.Close()

	// The drive sometimes misses the first poke after power-up.
	if err := retry.Do(3, time.Second, p.Assign); err != nil {
		log.Fatalf("Pump did not take its satellite number: %v", err)
	}
	if err := retry.Do(3, time.Second, p.EnableRemote); err != nil {
		log.Fatalf("Pump did not enter remote mode: %v", err)
	}

	b, err := balance.Open(bPort)
	if err != nil {
		log.Fatalf("Failed to open balance: %v", err)
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Balance reader error: %v", err)
		}
	}()

	ctrl := dilute.NewController(p, b, dilute.Config{
		Ratio:          *ratio,
		MLPerRev:       perRev,
		FlowRate:       *flowRate,
		FillRate:       *fillRate,
		PumpTimeout:    *timeout,
		TareDelay:      *tareDelay,
		SampleWindow:   *sampleTime,
		WeightInterval: *weightInterval,
		SkipFill:       *skipFill,
		Cycles:         *cycles,
		ReportFile:     *report,
	})

	eff := ctrl.Config()
	fmt.Printf("Target concentration %.4f%% w/w at %.0f RPM, %.4f ml/revolution\n",
		eff.Ratio*100, eff.FlowRate, eff.MLPerRev)
	if *cycles > 0 {
		fmt.Printf("Running %d cycles, Ctrl-C to stop early\n", *cycles)
	} else {
		fmt.Println("Running until Ctrl-C")
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	var runErr error
run:
	for {
		select {
		case msg := <-ctrl.Logs():
			fmt.Println(msg)
		case runErr = <-done:
			break run
		}
	}

	// Flush whatever the controller logged on its way out.
flush:
	for {
		select {
		case msg := <-ctrl.Logs():
			fmt.Println(msg)
		default:
			break flush
		}
	}

	switch {
	case errors.Is(runErr, context.Canceled):
		fmt.Println("Dilution stopped.")
	case runErr != nil:
		log.Fatalf("Dilution failed: %v", runErr)
	default:
		fmt.Println("Dilution complete.")
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/quantalab/wetbench/pkg/balance"
	"github.com/quantalab/wetbench/pkg/pump"
	"github.com/quantalab/wetbench/pkg/retry"
)

type PumpCalCommand struct {
	PumpPort    string  `long:"pump-port" description:"Pump serial port (default from wetbench.json)"`
	BalancePort string  `long:"balance-port" description:"Balance serial port (default from wetbench.json)"`
	PumpNumber  int     `long:"pump-number" description:"Pump satellite number (default 1)"`
	Revolutions float64 `long:"revolutions" default:"10" description:"Revolutions to dispense"`
	FlowRate    float64 `long:"flow-rate" default:"30" description:"Dispense speed in RPM"`
	Runs        int     `long:"runs" default:"1" description:"Repeat the measurement this many times"`
	Name        string  `long:"name" default:"default" description:"Profile name to save the result under"`
	NoSave      bool    `long:"no-save" description:"Print the result without saving a profile"`
}

func (c *PumpCalCommand) Execute(args []string) error {
	pumpPort, balancePort := c.PumpPort, c.BalancePort
	number := c.PumpNumber
	if pumpPort == "" || balancePort == "" {
		cfg := loadBench()
		if pumpPort == "" {
			pumpPort = cfg.Pump.Port
		}
		if balancePort == "" {
			balancePort = cfg.Balance.Port
		}
		if number == 0 {
			number = cfg.Pump.Number
		}
	}
	if number == 0 {
		number = 1
	}
	if c.Runs < 1 {
		c.Runs = 1
	}
	if pumpPort == "" || balancePort == "" {
		fmt.Fprintln(os.Stderr, "Pump and balance ports are required. Run 'bench-info' or pass --pump-port and --balance-port.")
		os.Exit(1)
	}

	fmt.Println(headerStyle.Render("Wetbench Pump Calibration"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	p, err := pump.Open(pumpPort, number)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening pump: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()
	defer p.EnableLocal()

	if err := retry.Do(3, time.Second, p.Assign); err != nil {
		fmt.Fprintf(os.Stderr, "Pump did not take its satellite number: %v\n", err)
		os.Exit(1)
	}
	if err := retry.Do(3, time.Second, p.EnableRemote); err != nil {
		fmt.Fprintf(os.Stderr, "Pump did not enter remote mode: %v\n", err)
		os.Exit(1)
	}

	b, err := balance.Open(balancePort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening balance: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go b.Run(ctx)

	if err := p.SetSpeed(c.FlowRate, pump.CounterClockwise); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting speed: %v\n", err)
		os.Exit(1)
	}

	vals := make([]float64, 0, c.Runs)
	for run := 1; run <= c.Runs; run++ {
		if c.Runs > 1 {
			fmt.Println()
			fmt.Println(subHeaderStyle.Render(fmt.Sprintf("━━━ Run %d of %d ━━━", run, c.Runs)))
		}
		perRev, err := c.calibrateOnce(ctx, p, b, run)
		if err != nil {
			p.Stop()
			return interrupted()
		}
		vals = append(vals, perRev)
	}

	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Calibration results ━━━"))
	perRev := vals[0]
	desc := fmt.Sprintf("Gravimetric calibration over %.2f revolutions", c.Revolutions)
	if len(vals) > 1 {
		mean := stat.Mean(vals, nil)
		sd := stat.StdDev(vals, nil)
		for i, v := range vals {
			fmt.Printf("Run %d:           %.4f g/rev\n", i+1, v)
		}
		fmt.Printf("Std deviation:   %.4f g/rev\n", sd)
		fmt.Printf("CV:              %.2f%%\n", sd/mean*100)
		fmt.Println(successStyle.Render(fmt.Sprintf("Mean delivery:   %.4f g/rev", mean)))
		perRev = mean
		desc = fmt.Sprintf("Gravimetric calibration, mean of %d runs of %.2f revolutions", len(vals), c.Revolutions)
	} else {
		fmt.Println(successStyle.Render(fmt.Sprintf("Delivery:        %.4f g/rev", perRev)))
	}

	if c.NoSave {
		return nil
	}

	// Aqueous solvent, so grams map to millilitres directly.
	store, err := pump.LoadProfiles(pump.DefaultProfileFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading calibrations: %v\n", err)
		os.Exit(1)
	}
	store.Set(c.Name, pump.Profile{
		MLPerRevolution: perRev,
		Date:            time.Now().Format(time.RFC3339),
		Description:     desc,
	})
	if err := store.Save(pump.DefaultProfileFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving calibration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("Saved profile %q to %s\n", c.Name, pump.DefaultProfileFile)
	fmt.Println("Use it with: " + headerStyle.Render("wetbench dilute --profile "+c.Name))
	return nil
}

// calibrateOnce tares, dispenses the configured revolutions and weighs
// the delivery, returning grams per revolution.
func (c *PumpCalCommand) calibrateOnce(ctx context.Context, p *pump.Pump, b *balance.Balance, run int) (float64, error) {
	if run > 1 {
		waitForUser("Empty or replace the receiving container, then continue.")
	}

	fmt.Println("Taring the balance...")
	if err := b.Tare(); err != nil {
		fmt.Fprintf(os.Stderr, "Tare failed: %v\n", err)
		os.Exit(1)
	}
	if err := pauseCtx(ctx, 5*time.Second); err != nil {
		return 0, err
	}

	initial := readWeight(b)
	fmt.Printf("Initial weight: %.4f g\n", initial)
	fmt.Println()

	if run == 1 {
		waitForUser("Place the receiving container and check the tubing, then continue.")
	} else {
		waitForUser("Continue to start dispensing.")
	}

	fmt.Printf("Dispensing %.2f revolutions at %.0f RPM...\n", c.Revolutions, c.FlowRate)
	if err := p.SetRevolutions(c.Revolutions); err != nil {
		fmt.Fprintf(os.Stderr, "Error programming revolutions: %v\n", err)
		os.Exit(1)
	}
	if err := p.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting pump: %v\n", err)
		os.Exit(1)
	}

	// Expected run time plus a 50% margin.
	window := time.Duration(60 / c.FlowRate * c.Revolutions * 1.5 * float64(time.Second))
	start := time.Now()
	for time.Since(start) < window {
		fmt.Printf("\r  %5.1fs  %.4f g", time.Since(start).Seconds(), readWeight(b))
		if err := pauseCtx(ctx, 500*time.Millisecond); err != nil {
			return 0, err
		}
	}
	fmt.Println()

	if err := p.Stop(); err != nil {
		fmt.Printf("Warning: pump stop failed: %v\n", err)
	}

	fmt.Println("Waiting for the balance to settle...")
	if err := pauseCtx(ctx, 10*time.Second); err != nil {
		return 0, err
	}

	final := readWeight(b)
	change := final - initial
	fmt.Printf("Initial %.4f g, final %.4f g, change %.4f g over %.2f revolutions\n",
		initial, final, change, c.Revolutions)
	return change / c.Revolutions, nil
}

// readWeight asks for a fresh reading and gives the reply a beat to
// land in the mailbox.
func readWeight(b *balance.Balance) float64 {
	if err := b.RequestWeight(); err != nil {
		return b.Weight()
	}
	time.Sleep(300 * time.Millisecond)
	return b.Weight()
}

func interrupted() error {
	fmt.Println("\nCalibration interrupted.")
	return nil
}

func pauseCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

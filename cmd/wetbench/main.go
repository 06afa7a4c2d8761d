package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/quantalab/wetbench/pkg/bench"
)

type Options struct {
	Dilute     DiluteCommand     `command:"dilute" description:"Run closed-loop dilution cycles with the pump and balance"`
	Watch      WatchCommand      `command:"watch" description:"Stream live balance readings"`
	Teach      TeachCommand      `command:"teach" description:"Record arm positions by moving it by hand"`
	Transfer   TransferCommand   `command:"transfer" description:"Run a taught transfer routine against the balance"`
	PumpCal    PumpCalCommand    `command:"pump-cal" description:"Measure tubing delivery per revolution on the balance"`
	PumpCheck  PumpCheckCommand  `command:"pump-check" description:"Exercise the pump protocol end to end"`
	GripperCal GripperCalCommand `command:"gripper-cal" description:"Calibrate the gripper encoder travel"`
	JointCal   JointCalCommand   `command:"joint-cal" description:"Stamp the current pose as each joint's zero"`
	ArmCheck   ArmCheckCommand   `command:"arm-check" description:"Stress the arm and watch for power problems"`
	Snapshot   SnapshotCommand   `command:"snapshot" description:"Grab a photo from the bench camera"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Wetbench - lab bench automation for the MyCobot 280 arm, balance and pump"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadBench reads wetbench.json, exiting with a hint when it is absent.
// Commands call it only after their port flags came up empty.
func loadBench() *bench.Config {
	cfg, err := bench.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "No bench configuration found. Run 'bench-info' to detect ports first.")
		os.Exit(1)
	}
	return cfg
}

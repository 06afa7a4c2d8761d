package main

import (
	"fmt"
	"os"
	"time"

	"github.com/quantalab/wetbench/pkg/arm"
)

type GripperCalCommand struct {
	Port   string `long:"port" description:"Arm serial port (default from wetbench.json)"`
	Output string `long:"output" default:"gripper_calibration.json" description:"Calibration file to write"`
}

func (c *GripperCalCommand) Execute(args []string) error {
	port := c.Port
	if port == "" {
		port = loadBench().Arm.Port
	}
	if port == "" {
		fmt.Fprintln(os.Stderr, "Arm port is required. Run 'bench-info' or pass --port.")
		os.Exit(1)
	}

	fmt.Println(headerStyle.Render("Wetbench Gripper Calibration"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	a, err := arm.NewArm(port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to arm: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.PowerOn(); err != nil {
		fmt.Fprintf(os.Stderr, "Error powering on arm: %v\n", err)
		os.Exit(1)
	}
	time.Sleep(2 * time.Second)

	// Closed end first: the encoder zero is stamped there.
	fmt.Println(subHeaderStyle.Render("━━━ Closed position ━━━"))
	if err := a.SetFreeMode(true); err != nil {
		fmt.Fprintf(os.Stderr, "Error entering free mode: %v\n", err)
		os.Exit(1)
	}
	waitForUser("Pull the gripper fully closed by hand, then continue.")

	a.SetFreeMode(false)
	time.Sleep(200 * time.Millisecond)

	fmt.Println("Stamping the closed position as encoder zero...")
	if err := a.SetGripperCalibration(); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting gripper zero: %v\n", err)
		os.Exit(1)
	}
	time.Sleep(500 * time.Millisecond)

	closedZero, err := a.GetGripperValue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading gripper encoder: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Closed encoder value: %d\n", closedZero)
	fmt.Println()

	fmt.Println(subHeaderStyle.Render("━━━ Open position ━━━"))
	if err := a.SetFreeMode(true); err != nil {
		fmt.Fprintf(os.Stderr, "Error entering free mode: %v\n", err)
		os.Exit(1)
	}
	waitForUser("Pull the gripper fully open by hand, then continue.")

	a.SetFreeMode(false)
	time.Sleep(200 * time.Millisecond)

	openMax, err := a.GetGripperValue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading gripper encoder: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Open encoder value: %d\n", openMax)

	cal := arm.NewGripperCalibration(closedZero, openMax)
	if cal.Span() <= 0 {
		fmt.Println()
		fmt.Println("Warning: open value is not above closed value. Check the")
		fmt.Println("gripper linkage and run the calibration again.")
	}

	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Movement test ━━━"))
	fmt.Println("Cycling the gripper under power...")
	if err := a.SetGripperState(arm.GripperClose, 50); err != nil {
		fmt.Printf("Warning: close failed: %v\n", err)
	}
	time.Sleep(2 * time.Second)
	if err := a.SetGripperState(arm.GripperOpen, 50); err != nil {
		fmt.Printf("Warning: open failed: %v\n", err)
	}
	time.Sleep(2 * time.Second)
	if val, err := a.GetGripperValue(); err == nil {
		fmt.Printf("Encoder after reopen: %d (expected near %d)\n", val, openMax)
	}

	if err := cal.Save(c.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving calibration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Gripper calibrated!"))
	fmt.Printf("Travel %d counts, saved to %s\n", cal.Span(), c.Output)
	return nil
}

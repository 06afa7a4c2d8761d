package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/quantalab/wetbench/pkg/arm"
)

type JointCalCommand struct {
	Port string `long:"port" description:"Arm serial port (default from wetbench.json)"`
	Yes  bool   `long:"yes" description:"Skip the confirmation prompt"`
}

func (c *JointCalCommand) Execute(args []string) error {
	port := c.Port
	if port == "" {
		port = loadBench().Arm.Port
	}
	if port == "" {
		fmt.Fprintln(os.Stderr, "Arm port is required. Run 'bench-info' or pass --port.")
		os.Exit(1)
	}

	fmt.Println(headerStyle.Render("Wetbench Joint Calibration"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println()
	fmt.Println("This stamps the arm's current pose as the zero reference of")
	fmt.Println("every joint. It permanently rewrites the servo offsets, so the")
	fmt.Println("arm must be seated in its zero fixture before continuing.")
	fmt.Println()

	if !c.Yes {
		var proceed bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Stamp the current pose as zero for all six joints?").
					Affirmative("Calibrate").
					Negative("Cancel").
					Value(&proceed),
			),
		)
		if err := form.Run(); err != nil || !proceed {
			fmt.Println("Calibration cancelled.")
			return nil
		}
	}

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

	joints := arm.AllJoints()
	for i, name := range joints {
		joint := i + 1
		fmt.Printf("  Joint %d (%s)... ", joint, name)
		if err := a.SetServoCalibration(joint); err != nil {
			fmt.Println(failStyle.Render("FAILED"))
			fmt.Fprintf(os.Stderr, "Error calibrating joint %d: %v\n", joint, err)
			os.Exit(1)
		}
		fmt.Println(successStyle.Render("done"))
		time.Sleep(100 * time.Millisecond)
	}

	if angles, err := a.GetAngles(); err == nil {
		fmt.Printf("\nReadback angles: %v\n", angles)
	}

	fmt.Println()
	fmt.Println(successStyle.Render("All joints calibrated to the zero reference."))
	return nil
}

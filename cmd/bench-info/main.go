package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"go.bug.st/serial"

	"github.com/quantalab/wetbench/pkg/arm"
	"github.com/quantalab/wetbench/pkg/balance"
	"github.com/quantalab/wetbench/pkg/bench"
	"github.com/quantalab/wetbench/pkg/pump"
)

func main() {
	fmt.Println("🧪 Wetbench Port Scanner")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		os.Exit(1)
	}

	var candidates []string
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		candidates = append(candidates, port)
	}

	if len(candidates) == 0 {
		fmt.Println("No serial ports found.")
		fmt.Println("Make sure the arm, balance and pump are connected and powered on.")
		os.Exit(1)
	}

	fmt.Printf("Probing %d port(s)...\n", len(candidates))

	detected := make(map[string]string) // port -> instrument
	for _, port := range candidates {
		switch {
		case probeArm(port):
			fmt.Printf("  Found arm controller on %s\n", port)
			detected[port] = "arm"
		case probePump(port):
			fmt.Printf("  Found pump drive on %s\n", port)
			detected[port] = "pump"
		case probeBalance(port):
			fmt.Printf("  Found balance on %s\n", port)
			detected[port] = "balance"
		default:
			fmt.Printf("  Nothing answered on %s\n", port)
		}
	}
	fmt.Println()

	armPort := pickPort("arm", candidates, detected)
	balancePort := pickPort("balance", candidates, detected)
	pumpPort := pickPort("pump", candidates, detected)

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("Configuration:")
	printRole("Arm", armPort)
	printRole("Balance", balancePort)
	printRole("Pump", pumpPort)
	fmt.Println()

	// Keep the pump number and calibration profile from an earlier run.
	cfg := bench.Config{}
	if existing, err := bench.LoadConfig(); err == nil {
		cfg = *existing
	}
	cfg.Arm.Port = armPort
	cfg.Balance.Port = balancePort
	cfg.Pump.Port = pumpPort
	if cfg.Pump.Number == 0 {
		cfg.Pump.Number = 1
	}

	if err := cfg.Save(); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Configuration saved to %s\n", bench.DefaultConfigFile)
	fmt.Println()

	if cfg.IsComplete() {
		fmt.Println("Run a dilution with:")
		fmt.Println("  go run ./cmd/wetbench dilute")
	} else {
		fmt.Println("⚠ Some instruments are missing. Connect them and run this")
		fmt.Println("  command again, or pass ports as flags to each command.")
	}
}

// probeArm asks the MyCobot base controller whether an Atom unit is
// attached, which only answers on a real arm.
func probeArm(port string) bool {
	a, err := arm.NewArm(port)
	if err != nil {
		return false
	}
	defer a.Close()

	ok, err := a.IsControllerConnected()
	return err == nil && ok
}

// probePump sends a Masterflex ENQ. An unassigned drive reports
// <STX>P?, a numbered one <STX>P<nn>, and some firmware just ACKs.
func probePump(port string) bool {
	p, err := pump.Open(port, 1)
	if err != nil {
		return false
	}
	defer p.Close()

	resp, err := p.Enquire()
	if err != nil || len(resp) == 0 {
		return false
	}
	if resp[0] == 0x06 {
		return true
	}
	return len(resp) >= 2 && resp[0] == 0x02 && resp[1] == 'P'
}

// probeBalance requests an immediate weight and checks the reply
// parses as an MT-SICS report.
func probeBalance(port string) bool {
	mode := &serial.Mode{
		BaudRate: balance.DefaultBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(port, mode)
	if err != nil {
		return false
	}
	defer sp.Close()

	if err := sp.SetReadTimeout(2 * time.Second); err != nil {
		return false
	}
	if _, err := sp.Write([]byte("SI\r\n")); err != nil {
		return false
	}

	buf := make([]byte, 64)
	n, err := sp.Read(buf)
	if err != nil || n == 0 {
		return false
	}
	_, ok := balance.ParseWeight(string(buf[:n]))
	return ok
}

func pickPort(instrument string, candidates []string, detected map[string]string) string {
	var opts []huh.Option[string]
	for _, port := range candidates {
		label := port
		if found, ok := detected[port]; ok {
			label = fmt.Sprintf("%s (%s detected)", port, found)
		}
		opts = append(opts, huh.NewOption(label, port))
	}
	opts = append(opts, huh.NewOption("Skip", ""))

	// Preselect the port that answered this instrument's probe.
	var choice string
	for _, port := range candidates {
		if detected[port] == instrument {
			choice = port
			break
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Which port is the %s on?", instrument)).
				Options(opts...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return ""
	}
	return choice
}

func printRole(name, port string) {
	if port != "" {
		fmt.Printf("  %-8s %s\n", name+":", port)
	} else {
		fmt.Printf("  %-8s (not found)\n", name+":")
	}
}

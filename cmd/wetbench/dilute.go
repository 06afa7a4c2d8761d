package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/quantalab/wetbench/pkg/balance"
	"github.com/quantalab/wetbench/pkg/dilute"
	"github.com/quantalab/wetbench/pkg/pump"
	"github.com/quantalab/wetbench/pkg/retry"
)

type DiluteCommand struct {
	PumpPort       string        `long:"pump-port" description:"Pump serial port (default from wetbench.json)"`
	BalancePort    string        `long:"balance-port" description:"Balance serial port (default from wetbench.json)"`
	PumpNumber     int           `long:"pump-number" description:"Pump satellite number (default 1)"`
	Ratio          float64       `long:"ratio" description:"Sample to total solution mass ratio (default 1/20.9)"`
	FlowRate       float64       `long:"flow-rate" description:"Dispense speed in RPM (default 30)"`
	FillRate       float64       `long:"fill-rate" description:"Tubing fill speed in RPM (default 60)"`
	MLPerRev       float64       `long:"ml-per-rev" description:"Tubing delivery in ml per revolution (default 2.7489)"`
	Profile        string        `long:"profile" description:"Named tubing calibration from pump_calibrations.json"`
	Timeout        time.Duration `long:"timeout" description:"Hard cap on one metered run (default 60s)"`
	TareDelay      time.Duration `long:"tare-delay" description:"Wait after taring (default 20s)"`
	SampleTime     time.Duration `long:"sample-time" description:"Window for placing the sample (default 20s)"`
	WeightInterval time.Duration `long:"weight-interval" description:"Pause between weight readings (default 500ms)"`
	SkipFill       bool          `long:"skip-fill" description:"Skip the tubing fill step"`
	Cycles         int           `long:"cycles" description:"Number of cycles to run (0 = until interrupted)"`
	Report         string        `long:"report" default:"concentration_data.csv" description:"CSV file for cycle results"`
	Plain          bool          `long:"plain" description:"Plain console output instead of the TUI"`
}

const (
	headerHeight = 2 // title + blank line
	statusHeight = 2 // status row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const weightSeries = "weight"

type diluteModel struct {
	ctrl     *dilute.Controller
	chart    *streamlinechart.Model
	width    int      // terminal width
	height   int      // terminal height
	logs     []string // last N log messages
	state    dilute.State
	quitting bool
	runErr   error
}

func (m *diluteModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type diluteStateMsg dilute.State
type diluteLogMsg string
type diluteDoneMsg struct{ err error }

func waitForDiluteState(ctrl *dilute.Controller) tea.Cmd {
	return func() tea.Msg {
		return diluteStateMsg(<-ctrl.States())
	}
}

func waitForDiluteLog(ctrl *dilute.Controller) tea.Cmd {
	return func() tea.Msg {
		return diluteLogMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *diluteModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - statusHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *diluteModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialDiluteModel(ctrl *dilute.Controller) diluteModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, 50),
	)
	chart.SetDataSetStyles(weightSeries, runes.ThinLineStyle,
		lipgloss.NewStyle().Foreground(lipgloss.Color("51")))

	return diluteModel{
		ctrl:  ctrl,
		chart: &chart,
	}
}

func (m diluteModel) Init() tea.Cmd {
	// Start listening for state and log updates
	return tea.Batch(
		waitForDiluteState(m.ctrl),
		waitForDiluteLog(m.ctrl),
	)
}

func (m diluteModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case diluteStateMsg:
		m.state = dilute.State(msg)
		if m.state.Error == nil {
			m.chart.PushDataSet(weightSeries, m.state.Weight)
			m.chart.DrawAll()
		}
		return m, waitForDiluteState(m.ctrl)

	case diluteLogMsg:
		m.addLog(string(msg))
		return m, waitForDiluteLog(m.ctrl)

	case diluteDoneMsg:
		m.quitting = true
		m.runErr = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m diluteModel) View() string {
	if m.quitting {
		if m.runErr != nil {
			return fmt.Sprintf("Dilution failed: %v\n", m.runErr)
		}
		return "Dilution stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Wetbench Dilute"))
	if m.state.Cycle > 0 {
		sb.WriteString(fmt.Sprintf(" - cycle %d", m.state.Cycle))
	}
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Status row
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m diluteModel) renderStatus() string {
	phase := m.state.Phase.String()
	if m.state.Countdown > 0 {
		phase = fmt.Sprintf("%s (%ds)", phase, m.state.Countdown)
	}
	parts := []string{
		phase,
		fmt.Sprintf("%.4f g", m.state.Weight),
	}
	if m.state.Phase == dilute.Dispensing {
		parts = append(parts, fmt.Sprintf("%.0f%%", m.state.Progress))
	}
	if d := m.state.Dose; d != nil {
		parts = append(parts, fmt.Sprintf("dose %.4f ml", d.VolumeML))
	}
	if r := m.state.Result; r != nil {
		parts = append(parts, fmt.Sprintf("conc %.4f%%", r.Percent))
	}
	return statusStyle.Render(strings.Join(parts, "  "))
}

func (c *DiluteCommand) Execute(args []string) error {
	pumpPort, balancePort := c.PumpPort, c.BalancePort
	number := c.PumpNumber
	profile := c.Profile

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
		if profile == "" {
			profile = cfg.Profile
		}
	}
	if number == 0 {
		number = 1
	}
	if pumpPort == "" || balancePort == "" {
		fmt.Fprintln(os.Stderr, "Pump and balance ports are required. Run 'bench-info' or pass --pump-port and --balance-port.")
		os.Exit(1)
	}

	mlPerRev := c.MLPerRev
	if profile != "" {
		store, err := pump.LoadProfiles(pump.DefaultProfileFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading calibrations: %v\n", err)
			os.Exit(1)
		}
		if p, ok := store.Get(profile); ok {
			mlPerRev = p.MLPerRevolution
			fmt.Printf("Loaded profile %q: %.4f ml/revolution\n", profile, mlPerRev)
		} else {
			fmt.Printf("Profile %q not found, using default\n", profile)
		}
	}

	p, err := pump.Open(pumpPort, number)
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

	b, err := balance.Open(balancePort)
	if err != nil {
		log.Fatalf("Failed to open balance: %v", err)
	}
	defer b.Close()

	// The TUI owns ctrl+c through its key handler; plain mode needs
	// the signal.
	var ctx context.Context
	var cancel context.CancelFunc
	if c.Plain {
		ctx, cancel = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	go func() {
		if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Balance reader error: %v", err)
		}
	}()

	ctrl := dilute.NewController(p, b, dilute.Config{
		Ratio:          c.Ratio,
		MLPerRev:       mlPerRev,
		FlowRate:       c.FlowRate,
		FillRate:       c.FillRate,
		PumpTimeout:    c.Timeout,
		TareDelay:      c.TareDelay,
		SampleWindow:   c.SampleTime,
		WeightInterval: c.WeightInterval,
		SkipFill:       c.SkipFill,
		Cycles:         c.Cycles,
		ReportFile:     c.Report,
	})

	if c.Plain {
		runDiluteConsole(ctx, ctrl)
		return nil
	}

	prog := tea.NewProgram(initialDiluteModel(ctrl), tea.WithAltScreen())

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := ctrl.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		prog.Send(diluteDoneMsg{err: err})
	}()

	if _, err := prog.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}

	// Quitting mid-cycle: stop the controller and let it finish the
	// pump cleanup before the ports close.
	cancel()
	<-done

	return nil
}

// runDiluteConsole narrates the run as plain log lines until the
// controller finishes or the context is cancelled.
func runDiluteConsole(ctx context.Context, ctrl *dilute.Controller) {
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
		fmt.Fprintf(os.Stderr, "Dilution failed: %v\n", runErr)
		os.Exit(1)
	default:
		fmt.Println("Dilution complete.")
	}
}

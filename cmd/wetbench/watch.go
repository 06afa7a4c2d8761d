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
	"github.com/quantalab/wetbench/pkg/watch"
)

type WatchCommand struct {
	Port      string        `long:"port" description:"Balance serial port (default from wetbench.json)"`
	Interval  time.Duration `long:"interval" description:"Poll period (default 1s)"`
	Window    int           `long:"window" description:"Readings in the stability window (default 10)"`
	Threshold float64       `long:"threshold" description:"Stddev bound for a stable reading in grams (default 0.0005)"`
	CSV       string        `long:"csv" description:"Append readings to this CSV file"`
	Serve     string        `long:"serve" description:"Publish readings as a websocket feed on this address (e.g. :8080)"`
	Tare      bool          `long:"tare" description:"Tare the balance before watching"`
}

var stableStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))

type watchModel struct {
	ctrl     *watch.Controller
	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []string
	state    watch.State
	quitting bool
}

func (m *watchModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

type watchStateMsg watch.State
type watchLogMsg string

func waitForWeight(ctrl *watch.Controller) tea.Cmd {
	return func() tea.Msg {
		return watchStateMsg(<-ctrl.States())
	}
}

func waitForWatchLog(ctrl *watch.Controller) tea.Cmd {
	return func() tea.Msg {
		return watchLogMsg(<-ctrl.Logs())
	}
}

func (m *watchModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
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

func (m *watchModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialWatchModel(ctrl *watch.Controller) watchModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, 100),
	)
	chart.SetDataSetStyles(weightSeries, runes.ThinLineStyle,
		lipgloss.NewStyle().Foreground(lipgloss.Color("51")))

	return watchModel{
		ctrl:  ctrl,
		chart: &chart,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		waitForWeight(m.ctrl),
		waitForWatchLog(m.ctrl),
	)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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

	case watchStateMsg:
		m.state = watch.State(msg)
		if m.state.Error == nil {
			m.chart.PushDataSet(weightSeries, m.state.Weight)
			m.chart.DrawAll()
		}
		return m, waitForWeight(m.ctrl)

	case watchLogMsg:
		m.addLog(string(msg))
		return m, waitForWatchLog(m.ctrl)
	}

	return m, nil
}

func (m watchModel) View() string {
	if m.quitting {
		return "Watch stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Wetbench Watch"))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	status := fmt.Sprintf("%.4f g  delta %+.4f g  ", m.state.Weight, m.state.Delta)
	sb.WriteString(statusStyle.Render(status))
	if m.state.Stable {
		sb.WriteString(stableStyle.Render("STABLE"))
	} else {
		sb.WriteString(statusStyle.Render("settling"))
	}
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9"))

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

func (c *WatchCommand) Execute(args []string) error {
	port := c.Port
	if port == "" {
		port = loadBench().Balance.Port
	}
	if port == "" {
		fmt.Fprintln(os.Stderr, "Balance port is required. Run 'bench-info' or pass --port.")
		os.Exit(1)
	}

	b, err := balance.Open(port)
	if err != nil {
		log.Fatalf("Failed to open balance: %v", err)
	}
	defer b.Close()

	if c.Tare {
		fmt.Println("Taring balance...")
		if err := b.Tare(); err != nil {
			log.Fatalf("Tare failed: %v", err)
		}
	}

	ctrl := watch.NewController(b, watch.Config{
		Interval:  c.Interval,
		Window:    c.Window,
		Threshold: c.Threshold,
		CSVPath:   c.CSV,
	})

	if c.Serve != "" {
		return c.serve(b, ctrl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Balance reader error: %v", err)
		}
	}()
	go func() {
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Watch error: %v", err)
		}
	}()

	p := tea.NewProgram(initialWatchModel(ctrl), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}

	return nil
}

// serve runs headless: readings go to websocket clients, logs to stdout.
func (c *WatchCommand) serve(b *balance.Balance, ctrl *watch.Controller) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Balance reader error: %v", err)
		}
	}()
	go func() {
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Watch error: %v", err)
		}
	}()
	go func() {
		for msg := range ctrl.Logs() {
			fmt.Println(msg)
		}
	}()

	fmt.Printf("Serving weight feed on ws://%s/ws\n", c.Serve)
	if err := watch.Serve(ctx, c.Serve, ctrl.States()); err != nil {
		log.Fatalf("Feed server error: %v", err)
	}
	fmt.Println("Watch stopped.")
	return nil
}

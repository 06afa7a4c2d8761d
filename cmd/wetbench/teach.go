package main

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/quantalab/wetbench/pkg/arm"
	"github.com/quantalab/wetbench/pkg/retry"
	"github.com/quantalab/wetbench/pkg/sequence"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type TeachCommand struct {
	Port       string `long:"port" description:"Arm serial port (default from wetbench.json)"`
	Routine    string `long:"routine" default:"vial" choice:"vial" choice:"cup" description:"Position set to record"`
	Containers int    `long:"containers" default:"6" description:"Rack slots to record (cup routine)"`
	Output     string `long:"output" description:"Position file to write (default timestamped)"`
}

// namedPose is one stop of a teaching run.
type namedPose struct {
	name        string
	description string
}

var vialPoses = []namedPose{
	{"above_vial", "Safe approach height above the vial"},
	{"grab_vial", "Gripper at surface level around the vial"},
	{"lift_vial", "Vial lifted clear of the surface"},
	{"above_balance", "Safe approach height above the balance"},
	{"place_balance", "Vial resting on the balance pan"},
	{"retreat_balance", "Clear of the balance after release"},
}

var cupPoses = []namedPose{
	{"shared_safe_height", "High transit position clearing every container"},
	{"balance_position", "Gripper placing a container on the balance pan"},
	{"balance_safe_height", "Safe height above the balance"},
}

func (c *TeachCommand) Execute(args []string) error {
	port := c.Port
	if port == "" {
		port = loadBench().Arm.Port
	}
	if port == "" {
		fmt.Fprintln(os.Stderr, "Arm port is required. Run 'bench-info' or pass --port.")
		os.Exit(1)
	}

	fmt.Println(headerStyle.Render("Wetbench Teach"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))
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
	time.Sleep(3 * time.Second)

	ok, err := retry.Value(3, 2*time.Second, a.IsControllerConnected)
	if err != nil || !ok {
		fmt.Println("Warning: controller did not respond; proceeding anyway")
	}

	switch c.Routine {
	case "cup":
		return c.teachCups(a)
	default:
		return c.teachVials(a)
	}
}

func (c *TeachCommand) teachVials(a *arm.Arm) error {
	fmt.Println("Recording the vial transfer positions. Each joint will go")
	fmt.Println("limp so you can place the arm by hand.")
	fmt.Println()
	waitForUser("The arm will move to its zero pose first. Clear the bench around it.")

	store := arm.NewPositionStore()

	fmt.Println(subHeaderStyle.Render("━━━ Home position ━━━"))
	angles, coords := resetToZero(a)
	store.Set("home_position", arm.Position{
		Angles:      angles,
		Coordinates: coords,
		Description: "Starting home position (all joints at zero)",
		Timestamp:   time.Now().Format(time.RFC3339),
	})

	for _, p := range vialPoses {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ " + p.name + " ━━━"))
		pos, err := recordPose(a, p.name, p.description)
		if err != nil {
			fmt.Printf("Skipping %s: %v\n", p.name, err)
			continue
		}
		store.Set(p.name, pos)
	}

	fmt.Println()
	fmt.Println("Returning arm to home for verification...")
	resetToZero(a)

	output := c.Output
	if output == "" {
		output = fmt.Sprintf("vial_transfer_positions_%s.json", time.Now().Format("20060102_150405"))
	}
	return finishTeaching(store, output)
}

func (c *TeachCommand) teachCups(a *arm.Arm) error {
	fmt.Printf("Recording the container routine: %d rack slots plus the\n", c.Containers)
	fmt.Println("shared transit and balance positions.")
	fmt.Println()
	waitForUser("The servos release as soon as teaching starts. Support the arm so it cannot drop.")

	store := arm.NewPositionStore()
	store.Info.Layout = &arm.Layout{
		Type:            "shared_safe_height",
		TotalContainers: c.Containers,
		Description:     "Container rack with one shared safe transit height",
	}

	for _, p := range cupPoses {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ " + p.name + " ━━━"))
		pos, err := recordPose(a, p.name, p.description)
		if err != nil {
			fmt.Printf("Skipping %s: %v\n", p.name, err)
			continue
		}
		store.Set(p.name, pos)
	}

	for i := 1; i <= c.Containers; i++ {
		name := sequence.CupPickupPose(i)
		fmt.Println()
		fmt.Println(subHeaderStyle.Render(fmt.Sprintf("━━━ container %d of %d ━━━", i, c.Containers)))
		pos, err := recordPose(a, name, fmt.Sprintf("Gripper around container %d in its rack slot", i))
		if err != nil {
			fmt.Printf("Skipping %s: %v\n", name, err)
			continue
		}
		store.Set(name, pos)
	}

	output := c.Output
	if output == "" {
		output = fmt.Sprintf("cup_collection_positions_%s.json", time.Now().Format("20060102_150405"))
	}
	return finishTeaching(store, output)
}

func finishTeaching(store *arm.PositionStore, output string) error {
	if err := store.Save(output); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving positions: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Teaching complete!"))
	fmt.Printf("%d positions saved to %s\n", len(store.Positions), output)
	fmt.Println()
	fmt.Println("Run the routine with: " + headerStyle.Render("wetbench transfer"))
	return nil
}

// resetToZero drives each joint to zero one at a time, then reads the
// settled pose back. Single-joint moves keep the current draw down.
func resetToZero(a *arm.Arm) (angles, coords []float64) {
	fmt.Println("Moving all joints to zero...")
	for joint := 1; joint <= arm.NumJoints; joint++ {
		if err := a.SendAngle(joint, 0, 30); err != nil {
			fmt.Printf("  Warning: joint %d move failed: %v\n", joint, err)
		}
		time.Sleep(1500 * time.Millisecond)
	}
	time.Sleep(4 * time.Second)

	angles, err := retry.Value(5, time.Second, a.GetAngles)
	if err != nil {
		fmt.Printf("  Warning: could not verify zero position: %v\n", err)
		angles = arm.HomeAngles()
	}
	coords, err = retry.Value(5, time.Second, a.GetCoords)
	if err != nil {
		coords = make([]float64, arm.NumJoints)
	}
	return round2(angles), round2(coords)
}

// recordPose releases the servos, shows live angles while the user
// places the arm by hand, and reads the settled pose back on Enter.
func recordPose(a *arm.Arm, name, description string) (arm.Position, error) {
	fmt.Println(description)
	if err := a.ReleaseAllServos(); err != nil {
		return arm.Position{}, fmt.Errorf("release servos: %w", err)
	}
	time.Sleep(500 * time.Millisecond)
	fmt.Println(dimStyle.Render("Joints are free to move by hand"))

	if _, err := tea.NewProgram(newPoseModel(a, name)).Run(); err != nil {
		return arm.Position{}, fmt.Errorf("pose display: %w", err)
	}

	angles, err := retry.Value(5, time.Second, a.GetAngles)
	if err != nil {
		return arm.Position{}, fmt.Errorf("read angles: %w", err)
	}
	coords, err := retry.Value(5, time.Second, a.GetCoords)
	if err != nil {
		return arm.Position{}, fmt.Errorf("read coords: %w", err)
	}

	pos := arm.Position{
		Angles:      round2(angles),
		Coordinates: round2(coords),
		Description: description,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Recorded %s", name)))
	fmt.Printf("  Angles: %v\n", pos.Angles)
	fmt.Printf("  Coords: %v\n", pos.Coordinates)
	return pos, nil
}

func round2(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = math.Round(v*100) / 100
	}
	return out
}

func waitForUser(prompt string) {
	fmt.Println(prompt)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("").
				Affirmative("Continue").
				Negative("").
				Value(new(bool)),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
}

// Pose recording TUI model
type poseModel struct {
	arm      *arm.Arm
	pose     string
	angles   []float64
	coords   []float64
	readErr  error
	quitting bool
}

type poseTickMsg time.Time

func poseTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return poseTickMsg(t)
	})
}

func newPoseModel(a *arm.Arm, pose string) poseModel {
	return poseModel{arm: a, pose: pose}
}

func (m poseModel) Init() tea.Cmd {
	return poseTick()
}

func (m poseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case poseTickMsg:
		// Read the released joints; a dropped read keeps the last row
		angles, err := m.arm.GetAngles()
		if err != nil {
			m.readErr = err
			return m, poseTick()
		}
		m.angles = angles
		m.readErr = nil
		if coords, err := m.arm.GetCoords(); err == nil {
			m.coords = coords
		}
		return m, poseTick()
	}

	return m, nil
}

func (m poseModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Move the arm to %s by hand.\n\n", m.pose))

	// Table styles
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableJointStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, arm.NumJoints)
	for i, name := range arm.AllJoints() {
		angle := "-"
		if i < len(m.angles) {
			angle = fmt.Sprintf("%.2f", m.angles[i])
		}
		rows = append(rows, []string{string(name), angle})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Angle").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 0 {
				return tableJointStyle
			}
			return tableCellStyle
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n")
	if len(m.coords) >= arm.NumJoints {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("Coords: %.1f %.1f %.1f / %.1f %.1f %.1f",
			m.coords[0], m.coords[1], m.coords[2], m.coords[3], m.coords[4], m.coords[5])))
		sb.WriteString("\n")
	}
	if m.readErr != nil {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("read error: %v", m.readErr)))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render("Press Enter to record"))

	return sb.String()
}

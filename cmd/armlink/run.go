package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/armlink/pkg/arm"
	"github.com/gwillem/armlink/pkg/control"
)

type RunCommand struct {
	Config   string  `long:"config" env:"ARMLINK_CONFIG" description:"Path to the configuration file"`
	Port     string  `long:"port" env:"ARMLINK_PORT" description:"Override the configured serial port"`
	Baud     int     `long:"baud" env:"ARMLINK_BAUD" description:"Override the configured baud rate"`
	Hz       int     `long:"hz" description:"Override the control loop frequency"`
	LogLevel string  `long:"log-level" env:"ARMLINK_LOG_LEVEL" default:"info" description:"Log verbosity (debug, info, warn, error)"`
	Step     float64 `long:"step" default:"0.01" description:"Nudge distance in meters for the arrow keys"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Joint colors - one distinct color per trace
var jointColors = []string{
	"196", // red
	"208", // orange
	"226", // yellow
	"46",  // green
	"51",  // cyan
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	gripperStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("201")).Bold(true)
)

func jointLabel(i int) string {
	return fmt.Sprintf("J%d", i+1)
}

type runModel struct {
	loop       *control.Loop
	step       float64
	chart      *streamlinechart.Model
	width      int             // terminal width
	height     int             // terminal height
	logs       []string        // last N log messages
	quitting   bool
	state      control.State
	haveState  bool
	lastJoints arm.JointVector // previous joints to detect movement
}

func (m *runModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement checks if any joint has moved since the last state
func (m *runModel) hasMovement(joints arm.JointVector) bool {
	if m.lastJoints == nil || len(m.lastJoints) != len(joints) {
		return true // first reading, consider it movement
	}
	for i, pos := range joints {
		if m.lastJoints[i] != pos {
			return true
		}
	}
	return false
}

// Messages from the control loop
type stateMsg control.State
type logMsg string

func waitForState(loop *control.Loop) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-loop.States())
	}
}

func waitForLog(loop *control.Loop) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-loop.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *runModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *runModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialRunModel(loop *control.Loop, step float64) runModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-180, 180),
	)

	// Set up data set styles for each joint
	for i, color := range jointColors {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
		chart.SetDataSetStyles(jointLabel(i), runes.ThinLineStyle, style)
	}

	return runModel{
		loop:  loop,
		step:  step,
		chart: &chart,
	}
}

func (m runModel) Init() tea.Cmd {
	// Start listening for state and log updates
	return tea.Batch(
		waitForState(m.loop),
		waitForLog(m.loop),
	)
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateMsg:
		state := control.State(msg)
		if state.Joints != nil {
			// Only update chart if there's movement (freeze when idle)
			if m.hasMovement(state.Joints) {
				for i, pos := range state.Joints {
					m.chart.PushDataSet(jointLabel(i), pos)
				}
				m.chart.DrawAll()
				m.lastJoints = state.Joints.Clone()
			}
		}
		m.state = state
		m.haveState = true
		return m, waitForState(m.loop)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.loop)
	}

	return m, nil
}

func (m runModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}

	// Every other key builds an intent from the latest feedback, so
	// nothing can move until the arm has reported in.
	if !m.haveState {
		return m, nil
	}

	switch key {
	case "h":
		m.loop.Submit(arm.NewJointTeach(m.state.Joints.Clone(), m.state.Gripper))
	case "g":
		next := arm.GripperClose
		if m.state.Gripper == arm.GripperClose {
			next = arm.GripperOpen
		}
		m.loop.Submit(arm.NewGripperOnly(next))
	case "t":
		m.loop.Submit(arm.NewTaskControl(m.state.Pose, arm.GripperUndetermined))
	case "m":
		m.loop.Submit(arm.NewManual(m.state.Pose, arm.GripperUndetermined))
	case "up", "down", "left", "right", "pgup", "pgdown":
		m.loop.Submit(arm.NewManual(m.nudgedPose(key), arm.GripperUndetermined))
	}

	return m, nil
}

// nudgedPose shifts the current pose one step along the axis mapped to key.
func (m runModel) nudgedPose(key string) arm.Pose {
	pose := m.state.Pose
	switch key {
	case "up":
		pose.Z += m.step
	case "down":
		pose.Z -= m.step
	case "left":
		pose.X -= m.step
	case "right":
		pose.X += m.step
	case "pgup":
		pose.Y += m.step
	case "pgdown":
		pose.Y -= m.step
	}
	return pose
}

func (m runModel) View() string {
	if m.quitting {
		return "Control loop stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Armlink"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.loop.Hz()))
	if m.haveState {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  mode:%s  link:%s", m.state.Mode, m.state.Link)))
	}
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("q quit | h hold | g gripper | t task | m manual | arrows/pgup/pgdn nudge")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m runModel) renderLegend() string {
	var items []string
	for i, color := range jointColors {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+jointLabel(i))
	}
	if m.haveState {
		items = append(items, gripperStyle.Render("gripper:"+m.state.Gripper.String()))
		items = append(items, statusStyle.Render(fmt.Sprintf("x:%.3f y:%.3f z:%.3f",
			m.state.Pose.X, m.state.Pose.Y, m.state.Pose.Z)))
	}
	return strings.Join(items, "  ")
}

func (c *RunCommand) Execute(args []string) error {
	path := c.Config
	if path == "" {
		path = control.DefaultConfigFile
	}
	cfg, err := control.LoadConfigFrom(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "No configuration found. Run 'armlink setup' first.")
		os.Exit(1)
	}
	if c.Port != "" {
		cfg.Link.Port = c.Port
	}
	if c.Baud > 0 {
		cfg.Link.BaudRate = c.Baud
	}
	if c.Hz > 0 {
		cfg.Motion.Hz = c.Hz
	}

	fmt.Printf("Loaded configuration from %s\n", path)

	// Everything the loop logs reaches the dashboard through the hook.
	// Writing to stdout would tear the TUI.
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	link, err := control.NewLink(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create link: %v", err)
	}

	loop, err := control.NewLoop(control.LoopConfig{Config: cfg, Link: link, Logger: logger})
	if err != nil {
		log.Fatalf("Failed to create loop: %v", err)
	}
	logger.AddHook(loop.LogHook())

	// Start control loop in background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := loop.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Loop error: %v", err)
		}
	}()

	// Run TUI
	p := tea.NewProgram(initialRunModel(loop, c.Step), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}

	return nil
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/armlink/pkg/arm"
	"github.com/gwillem/armlink/pkg/control"
	"github.com/gwillem/armlink/pkg/transport"
	"github.com/gwillem/armlink/pkg/wire"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	Config string `long:"config" env:"ARMLINK_CONFIG" description:"Path to write the configuration file"`
}

// linkCandidate is one arm found during the scan.
type linkCandidate struct {
	kind  string
	port  string
	label string
}

const (
	probeBaud      = 115200    // framed-protocol controllers
	servoBusBaud   = 1_000_000 // feetech bus servos
	probeBusWindow = 2 * time.Second
)

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Armlink Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━"))
	fmt.Println()

	candidates := scanForArms()
	if len(candidates) == 0 {
		fmt.Println("No arms found.")
		fmt.Println("Make sure the arm is connected and powered on.")
		os.Exit(1)
	}

	fmt.Println()
	choice := chooseLink(candidates)

	cfg := control.DefaultConfig()
	cfg.Link.Kind = choice.kind
	cfg.Link.Port = choice.port
	if choice.kind == control.LinkFeetech {
		cfg.Link.BaudRate = servoBusBaud
		cfg.Link.Feetech = control.FeetechArmConfig{
			Joints:  transport.DefaultFeetechCalibration(len(cfg.Arm.Links)),
			Gripper: transport.DefaultGripperServo(len(cfg.Arm.Links) + 1),
		}
	}

	path := c.Config
	if path == "" {
		path = control.DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		if !confirmOverwrite(path) {
			fmt.Println("Keeping the existing configuration.")
			return nil
		}
	}
	if err := cfg.SaveTo(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	if choice.kind == control.LinkFeetech {
		fmt.Println(dimStyle.Render("Servo ranges use factory defaults. Edit " + path + " to match your arm."))
		fmt.Println()
	}
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", path)
	fmt.Println()
	fmt.Println("Start the control loop with: " + headerStyle.Render("armlink run"))

	return nil
}

// scanForArms walks every serial port looking for either a framed-protocol
// controller or a bare servo bus.
func scanForArms() []linkCandidate {
	fmt.Println("Scanning for robot arms...")
	fmt.Println()

	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var candidates []linkCandidate

	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		if reply, ok := probeController(port, probeBaud); ok {
			fmt.Printf("  Found arm controller on %s (%s)\n", port, reply)
			candidates = append(candidates, linkCandidate{
				kind:  control.LinkSerial,
				port:  port,
				label: fmt.Sprintf("Arm controller on %s (%s)", port, reply),
			})
			continue
		}

		if n, ok := probeServoBus(port); ok {
			fmt.Printf("  Found servo bus on %s (%d servos)\n", port, n)
			candidates = append(candidates, linkCandidate{
				kind:  control.LinkFeetech,
				port:  port,
				label: fmt.Sprintf("Direct servo bus on %s (%d servos)", port, n),
			})
		}
	}

	return candidates
}

// probeController sends the identify command and checks the reply for the
// controller token.
func probeController(portName string, baud int) (string, bool) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return "", false
	}
	defer port.Close()

	port.SetReadTimeout(100 * time.Millisecond)
	port.ResetInputBuffer()

	if _, err := port.Write([]byte(wire.DefaultHandshakeCommand)); err != nil {
		return "", false
	}

	reply := readReply(port, time.Second)
	if !strings.Contains(reply, wire.DefaultHandshakeToken) {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(reply), "$#"), true
}

// readReply accumulates bytes until the frame end marker or the deadline.
func readReply(port serial.Port, timeout time.Duration) string {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)
	var reply []byte
	for time.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil {
			break
		}
		reply = append(reply, buf[:n]...)
		if bytes.IndexByte(reply, wire.EndMarker) >= 0 {
			break
		}
	}
	return string(reply)
}

// probeServoBus looks for a bus carrying one servo per joint plus a gripper
// servo on sequential IDs starting at 1.
func probeServoBus(portName string) (int, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), probeBusWindow)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     portName,
		BaudRate: servoBusBaud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return 0, false
	}
	defer bus.Close()

	want := len(arm.DefaultLinks()) + 1
	servos, err := bus.Scan(ctx, 1, want)
	if err != nil {
		return 0, false
	}

	ids := make(map[int]bool)
	for _, s := range servos {
		ids[s.ID] = true
	}
	for id := 1; id <= want; id++ {
		if !ids[id] {
			return 0, false
		}
	}

	return len(servos), true
}

func chooseLink(candidates []linkCandidate) linkCandidate {
	options := make([]huh.Option[int], len(candidates))
	for i, c := range candidates {
		options[i] = huh.NewOption(c.label, i)
	}

	var idx int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Which link should the control loop use?").
				Description("The arms found during the scan").
				Options(options...).
				Value(&idx),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	return candidates[idx]
}

func confirmOverwrite(path string) bool {
	overwrite := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("%s already exists. Overwrite it?", path)).
				Affirmative("Overwrite").
				Negative("Keep").
				Value(&overwrite),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return overwrite
}

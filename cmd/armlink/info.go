package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/gwillem/armlink/pkg/control"
	"github.com/gwillem/armlink/pkg/kinematics"
	"github.com/gwillem/armlink/pkg/wire"
)

type InfoCommand struct {
	Config string `long:"config" env:"ARMLINK_CONFIG" description:"Path to the configuration file"`
	Port   string `long:"port" env:"ARMLINK_PORT" description:"Probe this port instead of the configured one"`
	Baud   int    `long:"baud" env:"ARMLINK_BAUD" description:"Override the configured baud rate"`
}

func (c *InfoCommand) Execute(args []string) error {
	cfg := loadOrDefaultConfig(c.Config)
	if cfg.Link.Kind == "" {
		cfg.Link.Kind = control.LinkSerial
	}
	if c.Port != "" {
		cfg.Link.Port = c.Port
	}
	if c.Baud > 0 {
		cfg.Link.BaudRate = c.Baud
	}

	fmt.Println(headerStyle.Render("Armlink Info"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	if cfg.Link.Kind == control.LinkSerial {
		port, reply, ok := findController(cfg.Link.Port, cfg.Link.BaudRate)
		if !ok {
			fmt.Fprintln(os.Stderr, "No arm controller found. Check cabling and power.")
			os.Exit(1)
		}
		fmt.Printf("Controller on %s identifies as %s\n", port, successStyle.Render(reply))
		cfg.Link.Port = port
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	link, err := control.NewLink(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating link: %v\n", err)
		os.Exit(1)
	}
	defer link.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := link.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "No arm found: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(successStyle.Render("Connected") +
		dimStyle.Render(fmt.Sprintf(" (%s link, state %s)", cfg.Link.Kind, link.State())))
	fmt.Println()

	fmt.Println(subHeaderStyle.Render("Waiting for a feedback report..."))
	fmt.Println()

	select {
	case rep := <-link.Reports():
		printReport(cfg, rep, logger)
	case <-time.After(3 * time.Second):
		fmt.Println("No feedback received. The arm is connected but silent.")
	}

	return nil
}

// loadOrDefaultConfig falls back to defaults so info can probe an arm
// before setup has ever run.
func loadOrDefaultConfig(path string) *control.Config {
	if path == "" {
		path = control.DefaultConfigFile
	}
	cfg, err := control.LoadConfigFrom(path)
	if err != nil {
		return control.DefaultConfig()
	}
	return cfg
}

// findController handshakes the configured port, or every port when none
// is configured, and returns the first one that identifies itself.
func findController(configured string, baud int) (port, reply string, ok bool) {
	ports := []string{configured}
	if configured == "" {
		list, err := serial.GetPortsList()
		if err != nil {
			return "", "", false
		}
		ports = list
	}

	for _, p := range ports {
		if strings.Contains(p, "Bluetooth") {
			continue
		}
		if reply, ok := probeController(p, baud); ok {
			return p, reply, true
		}
	}
	return "", "", false
}

func printReport(cfg *control.Config, rep wire.Report, logger logrus.FieldLogger) {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, len(rep.Joints)+1)
	for i, angle := range rep.Joints {
		rows = append(rows, []string{fmt.Sprintf("J%d", i+1), fmt.Sprintf("%.1f°", angle)})
	}
	rows = append(rows, []string{"Gripper", rep.Gripper.String()})

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Angle").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		})
	fmt.Println(t.Render())
	fmt.Println()

	solver, err := kinematics.NewSolver(cfg.Arm.Links, cfg.Arm.Limits, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building solver: %v\n", err)
		return
	}
	pose, err := solver.SolveFK(rep.Joints)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing pose: %v\n", err)
		return
	}

	fmt.Printf("End effector: x=%.3f m  y=%.3f m  z=%.3f m\n", pose.X, pose.Y, pose.Z)
	fmt.Printf("Orientation:  yaw=%.1f°  pitch=%.1f°  roll=%.1f°\n", pose.Yaw, pose.Pitch, pose.Roll)
}

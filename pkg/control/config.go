package control

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/armlink/pkg/arm"
	"github.com/gwillem/armlink/pkg/transport"
	"github.com/gwillem/armlink/pkg/wire"
)

const DefaultConfigFile = "armlink.json"

// Link kinds.
const (
	LinkSerial  = "serial"
	LinkFeetech = "feetech"
)

// Config holds the persisted armlink configuration.
type Config struct {
	Link   LinkConfig   `json:"link"`
	Motion MotionConfig `json:"motion"`
	Arm    ArmConfig    `json:"arm"`
}

// LinkConfig selects and tunes the transport.
type LinkConfig struct {
	Kind               string `json:"kind"`
	Port               string `json:"port"`
	BaudRate           int    `json:"baud_rate"`
	ReconnectMs        int    `json:"reconnect_ms"`
	ReceiveTimeoutMs   int    `json:"receive_timeout_ms"`
	HandshakeTimeoutMs int    `json:"handshake_timeout_ms"`
	HandshakeCommand   string `json:"handshake_command,omitempty"`
	HandshakeToken     string `json:"handshake_token,omitempty"`
	QueueSize          int    `json:"queue_size,omitempty"`

	// Feetech holds servo calibrations for the feetech link kind.
	Feetech FeetechArmConfig `json:"feetech"`
}

// FeetechArmConfig holds servo calibrations for a direct-drive arm.
type FeetechArmConfig struct {
	Joints  []transport.ServoCalibration `json:"joints,omitempty"`
	Gripper transport.ServoCalibration   `json:"gripper"`
}

// MotionConfig tunes the control loop.
type MotionConfig struct {
	Hz          int `json:"hz"`
	SmoothingMs int `json:"smoothing_ms"`
}

// ArmConfig describes the arm geometry and gripper angles.
type ArmConfig struct {
	Links  []arm.LinkParameter `json:"links"`
	Limits []arm.JointLimit    `json:"limits"`

	GripperOpenAngle  float64 `json:"gripper_open_angle"`
	GripperCloseAngle float64 `json:"gripper_close_angle"`
	GripperOpenMin    float64 `json:"gripper_open_min"`
	GripperCloseMax   float64 `json:"gripper_close_max"`
}

func (l LinkConfig) Reconnect() time.Duration {
	return time.Duration(l.ReconnectMs) * time.Millisecond
}

func (l LinkConfig) ReceiveTimeout() time.Duration {
	return time.Duration(l.ReceiveTimeoutMs) * time.Millisecond
}

func (l LinkConfig) HandshakeTimeout() time.Duration {
	return time.Duration(l.HandshakeTimeoutMs) * time.Millisecond
}

func (m MotionConfig) Smoothing() time.Duration {
	return time.Duration(m.SmoothingMs) * time.Millisecond
}

// DefaultConfig returns the configuration for a stock five joint arm on
// a serial link.
func DefaultConfig() *Config {
	return &Config{
		Link: LinkConfig{
			Kind:               LinkSerial,
			BaudRate:           115200,
			ReconnectMs:        2000,
			ReceiveTimeoutMs:   500,
			HandshakeTimeoutMs: 1000,
		},
		Motion: MotionConfig{Hz: 60, SmoothingMs: 500},
		Arm: ArmConfig{
			Links:             arm.DefaultLinks(),
			Limits:            arm.DefaultLimits(),
			GripperOpenAngle:  arm.DefaultGripperOpenAngle,
			GripperCloseAngle: arm.DefaultGripperCloseAngle,
			GripperOpenMin:    arm.DefaultGripperOpenMin,
			GripperCloseMax:   arm.DefaultGripperCloseMax,
		},
	}
}

// LoadConfig loads configuration from the default config file.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists.
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}

// NewLink builds the transport for the configured link kind.
func NewLink(cfg *Config, log logrus.FieldLogger) (transport.Link, error) {
	switch cfg.Link.Kind {
	case "", LinkSerial:
		return transport.NewSerialLink(transport.SerialConfig{
			Port:              cfg.Link.Port,
			BaudRate:          cfg.Link.BaudRate,
			ReconnectInterval: cfg.Link.Reconnect(),
			ReceiveTimeout:    cfg.Link.ReceiveTimeout(),
			HandshakeTimeout:  cfg.Link.HandshakeTimeout(),
			HandshakeCommand:  cfg.Link.HandshakeCommand,
			HandshakeToken:    cfg.Link.HandshakeToken,
			QueueSize:         cfg.Link.QueueSize,
			Codec: wire.Codec{
				DOF:             len(cfg.Arm.Links),
				GripperOpenMin:  cfg.Arm.GripperOpenMin,
				GripperCloseMax: cfg.Arm.GripperCloseMax,
			},
			GripperOpenAngle:  cfg.Arm.GripperOpenAngle,
			GripperCloseAngle: cfg.Arm.GripperCloseAngle,
			Logger:            log,
		}), nil

	case LinkFeetech:
		return transport.NewFeetechLink(transport.FeetechConfig{
			Port:              cfg.Link.Port,
			BaudRate:          cfg.Link.BaudRate,
			Joints:            cfg.Link.Feetech.Joints,
			Gripper:           cfg.Link.Feetech.Gripper,
			ReconnectInterval: cfg.Link.Reconnect(),
			QueueSize:         cfg.Link.QueueSize,
			GripperOpenAngle:  cfg.Arm.GripperOpenAngle,
			GripperCloseAngle: cfg.Arm.GripperCloseAngle,
			GripperOpenMin:    cfg.Arm.GripperOpenMin,
			GripperCloseMax:   cfg.Arm.GripperCloseMax,
			Logger:            log,
		}), nil
	}
	return nil, fmt.Errorf("unknown link kind %q", cfg.Link.Kind)
}

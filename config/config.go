package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moosethebrown/tello-net-bridge/drone"
	"gopkg.in/yaml.v3"
)

type MqttConfig struct {
	Broker            string `json:"broker" yaml:"broker"`
	ConnTimeout       int    `json:"connTimeout" yaml:"connTimeout"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	DroneId           string `json:"droneId" yaml:"droneId"`
	AnnounceTopic     string `json:"announceTopic" yaml:"announceTopic"`
	AnnounceTimeout   int    `json:"announceTimeout" yaml:"announceTimeout"`
	DisconnectTimeout int    `json:"disconnectTimeout" yaml:"disconnectTimeout"`
	CertCheck         bool   `json:"certCheck" yaml:"certCheck"`
}

// reply timeouts per command family, in milliseconds
type TimeoutConfig struct {
	Control int `json:"control" yaml:"control"`
	Query   int `json:"query" yaml:"query"`
	Motion  int `json:"motion" yaml:"motion"`
	Launch  int `json:"launch" yaml:"launch"`
}

type DroneConfig struct {
	Address          string        `json:"address" yaml:"address"`
	CommandPort      int           `json:"commandPort" yaml:"commandPort"`
	LocalCommandPort int           `json:"localCommandPort" yaml:"localCommandPort"`
	TelemetryPort    int           `json:"telemetryPort" yaml:"telemetryPort"`
	Attempts         int           `json:"attempts" yaml:"attempts"`
	Timeouts         TimeoutConfig `json:"timeouts" yaml:"timeouts"`

	// extra telemetry keys and their types: int, float, bool or text
	TelemetryKeys       map[string]string `json:"telemetryKeys" yaml:"telemetryKeys"`
	MissionPadOnConnect bool              `json:"missionPadOnConnect" yaml:"missionPadOnConnect"`
	AutoConnect         bool              `json:"autoConnect" yaml:"autoConnect"`
}

// JSON or YAML bridge configuration
type Config struct {
	Drone             *DroneConfig `json:"drone" yaml:"drone"`
	Mqtt              *MqttConfig  `json:"mqtt" yaml:"mqtt"`
	AnnounceInterval  int          `json:"announceInterval" yaml:"announceInterval"`
	TelemetryInterval int          `json:"telemetryInterval" yaml:"telemetryInterval"`
	NetLossLand       bool         `json:"netLossLand" yaml:"netLossLand"`
	LogLevel          string       `json:"logLevel" yaml:"logLevel"`
	LogFile           string       `json:"logFile" yaml:"logFile"`
	LogMaxSizeMb      int          `json:"logMaxSizeMb" yaml:"logMaxSizeMb"`
	LogMaxBackups     int          `json:"logMaxBackups" yaml:"logMaxBackups"`
	LogMaxAgeDays     int          `json:"logMaxAgeDays" yaml:"logMaxAgeDays"`
}

// NewConfig reads a configuration file. Files ending in .yml or .yaml are
// parsed as YAML, anything else as JSON. Missing values get defaults.
func NewConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyDefaults fills in every value left at zero.
func (c *Config) ApplyDefaults() {
	if c.Drone == nil {
		c.Drone = &DroneConfig{}
	}
	d := c.Drone
	if d.Address == "" {
		d.Address = "192.168.10.1"
	}
	if d.CommandPort == 0 {
		d.CommandPort = 8889
	}
	if d.LocalCommandPort == 0 {
		d.LocalCommandPort = 8889
	}
	if d.TelemetryPort == 0 {
		d.TelemetryPort = 8890
	}
	if d.Attempts == 0 {
		d.Attempts = 3
	}
	defaults := drone.DefaultPolicy()
	setMs := func(v *int, f drone.Family) {
		if *v == 0 {
			*v = int(defaults.Timeouts[f].Milliseconds())
		}
	}
	setMs(&d.Timeouts.Control, drone.FamilyControl)
	setMs(&d.Timeouts.Query, drone.FamilyQuery)
	setMs(&d.Timeouts.Motion, drone.FamilyMotion)
	setMs(&d.Timeouts.Launch, drone.FamilyLaunch)

	if m := c.Mqtt; m != nil {
		if m.ConnTimeout == 0 {
			m.ConnTimeout = 5000
		}
		if m.AnnounceTimeout == 0 {
			m.AnnounceTimeout = 2000
		}
		if m.DisconnectTimeout == 0 {
			m.DisconnectTimeout = 1000
		}
		if m.DroneId == "" {
			m.DroneId = "tello"
		}
		if m.AnnounceTopic == "" {
			m.AnnounceTopic = "drone/announce"
		}
	}

	if c.AnnounceInterval == 0 {
		c.AnnounceInterval = 3000
	}
	if c.TelemetryInterval == 0 {
		c.TelemetryInterval = 500
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMb == 0 {
		c.LogMaxSizeMb = 10
	}
}

// Validate rejects configurations the bridge cannot run with.
func (c *Config) Validate() error {
	if c.Drone == nil {
		return errors.New("drone section missing")
	}
	if c.Mqtt == nil || c.Mqtt.Broker == "" {
		return errors.New("mqtt broker not configured")
	}
	ports := map[string]int{
		"drone.commandPort":      c.Drone.CommandPort,
		"drone.localCommandPort": c.Drone.LocalCommandPort,
		"drone.telemetryPort":    c.Drone.TelemetryPort,
	}
	for name, p := range ports {
		if p < 0 || p > 65535 {
			return fmt.Errorf("%s out of range: %d", name, p)
		}
	}
	if c.Drone.Attempts < 1 {
		return fmt.Errorf("drone.attempts must be at least 1, got %d", c.Drone.Attempts)
	}
	t := c.Drone.Timeouts
	if t.Control < 0 || t.Query < 0 || t.Motion < 0 || t.Launch < 0 {
		return errors.New("drone.timeouts must not be negative")
	}
	if _, err := c.Drone.KeyTypes(); err != nil {
		return err
	}
	if c.AnnounceInterval < 0 || c.TelemetryInterval < 0 {
		return errors.New("intervals must not be negative")
	}
	return nil
}

// Policy converts the retry settings for the drone session.
func (d *DroneConfig) Policy() drone.Policy {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return drone.Policy{
		Attempts: d.Attempts,
		Timeouts: map[drone.Family]time.Duration{
			drone.FamilyControl: ms(d.Timeouts.Control),
			drone.FamilyQuery:   ms(d.Timeouts.Query),
			drone.FamilyMotion:  ms(d.Timeouts.Motion),
			drone.FamilyLaunch:  ms(d.Timeouts.Launch),
		},
	}
}

// KeyTypes parses the extra telemetry key table.
func (d *DroneConfig) KeyTypes() (map[string]drone.Kind, error) {
	out := make(map[string]drone.Kind, len(d.TelemetryKeys))
	for key, name := range d.TelemetryKeys {
		kind, err := drone.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("drone.telemetryKeys.%s: %w", key, err)
		}
		out[key] = kind
	}
	return out, nil
}

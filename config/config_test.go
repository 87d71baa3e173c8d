package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/moosethebrown/tello-net-bridge/drone"
)

func writeConfig(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %s", err)
	}
	return path
}

func TestJSONConfig(t *testing.T) {
	path := writeConfig(t, "bridge.conf", `{
		"drone": {
			"address": "10.0.0.5",
			"attempts": 5,
			"timeouts": {"motion": 4000},
			"telemetryKeys": {"armed": "bool"}
		},
		"mqtt": {"broker": "tcp://localhost:1883", "droneId": "tello-1"},
		"netLossLand": true,
		"logLevel": "debug"
	}`)

	cfg, err := NewConfig(path)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	if cfg.Drone.Address != "10.0.0.5" || cfg.Drone.Attempts != 5 {
		t.Errorf("Expected explicit drone values, got %+v", cfg.Drone)
	}
	if cfg.Drone.CommandPort != 8889 || cfg.Drone.TelemetryPort != 8890 {
		t.Errorf("Expected default ports, got %d and %d", cfg.Drone.CommandPort, cfg.Drone.TelemetryPort)
	}
	if cfg.Mqtt.DroneId != "tello-1" || cfg.Mqtt.AnnounceTopic != "drone/announce" {
		t.Errorf("Expected mqtt values, got %+v", cfg.Mqtt)
	}
	if !cfg.NetLossLand || cfg.LogLevel != "debug" {
		t.Errorf("Expected netLossLand and debug level")
	}

	policy := cfg.Drone.Policy()
	if policy.Attempts != 5 {
		t.Errorf("Expected 5 attempts, got %d", policy.Attempts)
	}
	if d := policy.Timeouts[drone.FamilyMotion]; d != 4*time.Second {
		t.Errorf("Expected motion timeout 4s, got %s", d)
	}
	if d := policy.Timeouts[drone.FamilyLaunch]; d != 7*time.Second {
		t.Errorf("Expected default launch timeout 7s, got %s", d)
	}

	keys, err := cfg.Drone.KeyTypes()
	if err != nil || keys["armed"] != drone.KindBool {
		t.Errorf("Expected armed to be a bool key, got %v (%v)", keys, err)
	}
}

func TestYAMLConfig(t *testing.T) {
	path := writeConfig(t, "bridge.yaml", `
drone:
  localCommandPort: 9000
  missionPadOnConnect: true
  autoConnect: true
mqtt:
  broker: ssl://broker.example.com:8883
  certCheck: true
telemetryInterval: 200
logFile: /var/log/tello-net-bridge.log
`)

	cfg, err := NewConfig(path)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if cfg.Drone.LocalCommandPort != 9000 || !cfg.Drone.MissionPadOnConnect || !cfg.Drone.AutoConnect {
		t.Errorf("Expected yaml drone values, got %+v", cfg.Drone)
	}
	if !cfg.Mqtt.CertCheck || cfg.Mqtt.DroneId != "tello" {
		t.Errorf("Expected certCheck and default drone id, got %+v", cfg.Mqtt)
	}
	if cfg.TelemetryInterval != 200 || cfg.AnnounceInterval != 3000 {
		t.Errorf("Expected intervals 200 and 3000, got %d and %d", cfg.TelemetryInterval, cfg.AnnounceInterval)
	}
	if cfg.LogFile != "/var/log/tello-net-bridge.log" || cfg.LogMaxSizeMb != 10 {
		t.Errorf("Expected log file settings, got %s %d", cfg.LogFile, cfg.LogMaxSizeMb)
	}
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		errText string
	}{
		{"no broker", "a.json", `{"drone": {}}`, "broker"},
		{"bad port", "b.json", `{"drone": {"telemetryPort": 70000}, "mqtt": {"broker": "tcp://x:1883"}}`, "telemetryPort"},
		{"bad attempts", "c.json", `{"drone": {"attempts": -1}, "mqtt": {"broker": "tcp://x:1883"}}`, "attempts"},
		{"bad key type", "d.yml", "drone:\n  telemetryKeys:\n    wind: complex\nmqtt:\n  broker: tcp://x:1883\n", "wind"},
		{"bad json", "e.json", `{"drone": `, "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatalf("Expected an error")
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("Expected error mentioning %q, got %q", tt.errText, err)
			}
		})
	}

	if _, err := NewConfig(filepath.Join(t.TempDir(), "missing.conf")); err == nil {
		t.Errorf("Expected missing file to fail")
	}
}

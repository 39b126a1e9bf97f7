package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `
robot_id: "test-rover-01"

logging:
  level: "debug"
  log_path: "/var/log/rover"

server:
  http_port: 9090

zeromq:
  command_connect_address: "tcp://gateway:5555"
  publish_bind_address: "tcp://*:5556"
  reconnect_interval_ms: 500

motor:
  in1_pin: "GPIO13"
  in2_pin: "GPIO27"
  in3_pin: "GPIO22"
  in4_pin: "GPIO23"
  default_duration_s: 0.3

sensors:
  - position: "front"
    trigger_pin: "GPIO5"
    echo_pin: "GPIO6"
  - position: "back"
    trigger_pin: "GPIO24"
    echo_pin: "GPIO25"
    error_budget: 20

obstacle:
  threshold_cm: 40

data:
  directory: "/data/rover"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "rover_config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return tempDir
}

func TestLoadConfig(t *testing.T) {
	dir := writeConfig(t, validConfig)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.RobotID != "test-rover-01" {
		t.Errorf("Expected robot_id test-rover-01, got %s", cfg.RobotID)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected logging level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("Expected http_port 9090, got %d", cfg.Server.HTTPPort)
	}
	if cfg.ZeroMQ.CommandConnectAddress != "tcp://gateway:5555" {
		t.Errorf("Expected command_connect_address tcp://gateway:5555, got %s", cfg.ZeroMQ.CommandConnectAddress)
	}
	if cfg.Motor.In1Pin != "GPIO13" {
		t.Errorf("Expected in1_pin GPIO13, got %s", cfg.Motor.In1Pin)
	}
	if cfg.Motor.DefaultDurationS != 0.3 {
		t.Errorf("Expected default_duration_s 0.3, got %f", cfg.Motor.DefaultDurationS)
	}
	if len(cfg.Sensors) != 2 {
		t.Fatalf("Expected 2 sensors, got %d", len(cfg.Sensors))
	}
	if cfg.Sensors[1].Position != "back" {
		t.Errorf("Expected second sensor position back, got %s", cfg.Sensors[1].Position)
	}
	if cfg.Obstacle.ThresholdCm != 40 {
		t.Errorf("Expected threshold_cm 40, got %f", cfg.Obstacle.ThresholdCm)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := writeConfig(t, validConfig)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	// Fields omitted from the YAML should pick up defaults
	if cfg.Motor.StaleAfterMs != 2000 {
		t.Errorf("Expected default stale_after_ms 2000, got %d", cfg.Motor.StaleAfterMs)
	}
	if cfg.Obstacle.TickMs != 500 {
		t.Errorf("Expected default tick_ms 500, got %d", cfg.Obstacle.TickMs)
	}
	if cfg.Sensors[0].EchoTimeoutMs != 40 {
		t.Errorf("Expected default echo_timeout_ms 40, got %d", cfg.Sensors[0].EchoTimeoutMs)
	}
	if cfg.Sensors[0].ErrorBudget != 10 {
		t.Errorf("Expected default error_budget 10, got %d", cfg.Sensors[0].ErrorBudget)
	}
	if cfg.Sensors[1].ErrorBudget != 20 {
		t.Errorf("Expected explicit error_budget 20, got %d", cfg.Sensors[1].ErrorBudget)
	}
	if cfg.Navigation.TiltPitchDeg != 40 {
		t.Errorf("Expected default tilt_pitch_deg 40, got %f", cfg.Navigation.TiltPitchDeg)
	}
	if cfg.Navigation.TiltRotateTicks != 3 {
		t.Errorf("Expected default tilt_rotate_ticks 3, got %d", cfg.Navigation.TiltRotateTicks)
	}
	if cfg.Supervisor.LivenessIntervalS != 5 {
		t.Errorf("Expected default liveness_interval_s 5, got %d", cfg.Supervisor.LivenessIntervalS)
	}
	if cfg.Supervisor.RestartBudget != 3 {
		t.Errorf("Expected default restart_budget 3, got %d", cfg.Supervisor.RestartBudget)
	}
	if cfg.Battery.SerialPort != "/dev/ttyUSB0" {
		t.Errorf("Expected default serial_port /dev/ttyUSB0, got %s", cfg.Battery.SerialPort)
	}
	if cfg.Battery.PublishIntervalS != 60 {
		t.Errorf("Expected default publish_interval_s 60, got %d", cfg.Battery.PublishIntervalS)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	tests := []struct {
		name      string
		remove    string
		wantError string
	}{
		{"missing robot_id", `robot_id: "test-rover-01"`, "robot_id"},
		{"missing command address", `command_connect_address: "tcp://gateway:5555"`, "zeromq.command_connect_address"},
		{"missing publish address", `publish_bind_address: "tcp://*:5556"`, "zeromq.publish_bind_address"},
		{"missing data directory", `directory: "/data/rover"`, "data.directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := strings.Replace(validConfig, tt.remove, "", 1)
			dir := writeConfig(t, content)

			_, err := LoadConfig(dir)
			if err == nil {
				t.Fatalf("Expected error for %s, got nil", tt.name)
			}
			if !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("Expected error to mention %q, got: %v", tt.wantError, err)
			}
		})
	}
}

func TestLoadConfigBadSensorPosition(t *testing.T) {
	content := strings.Replace(validConfig, `position: "back"`, `position: "sideways"`, 1)
	dir := writeConfig(t, content)

	_, err := LoadConfig(dir)
	if err == nil {
		t.Fatal("Expected error for invalid sensor position, got nil")
	}
	if !strings.Contains(err.Error(), "position") {
		t.Errorf("Expected error to mention position, got: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	if err == nil {
		t.Fatal("Expected error for missing config file, got nil")
	}
}

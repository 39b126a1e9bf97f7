package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full rover controller configuration loaded from
// rover_config.yaml.
type Config struct {
	RobotID    string           `yaml:"robot_id"`
	Logging    LoggingConfig    `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
	ZeroMQ     ZeroMQConfig     `yaml:"zeromq"`
	Motor      MotorConfig      `yaml:"motor"`
	Sensors    []SensorConfig   `yaml:"sensors"`
	Obstacle   ObstacleConfig   `yaml:"obstacle"`
	Navigation NavigationConfig `yaml:"navigation"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Battery    BatteryConfig    `yaml:"battery"`
	Videocall  VideocallConfig  `yaml:"videocall"`
	Data       DataConfig       `yaml:"data"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// ZeroMQConfig holds message-bus settings
type ZeroMQConfig struct {
	CommandConnectAddress string `yaml:"command_connect_address"`
	PublishBindAddress    string `yaml:"publish_bind_address"`
	ReconnectIntervalMs   int    `yaml:"reconnect_interval_ms"`
}

// MotorConfig holds drive pin assignments and actuation defaults.
// Pin names follow periph.io conventions, e.g. "GPIO13".
type MotorConfig struct {
	In1Pin           string  `yaml:"in1_pin"`
	In2Pin           string  `yaml:"in2_pin"`
	In3Pin           string  `yaml:"in3_pin"`
	In4Pin           string  `yaml:"in4_pin"`
	DefaultDurationS float64 `yaml:"default_duration_s"`
	StaleAfterMs     int64   `yaml:"stale_after_ms"`
}

// SensorConfig holds one ultrasonic sensor's pin pair and sampling settings
type SensorConfig struct {
	Position       string `yaml:"position"` // "front" or "back"
	TriggerPin     string `yaml:"trigger_pin"`
	EchoPin        string `yaml:"echo_pin"`
	SampleDelayMs  int    `yaml:"sample_delay_ms"`
	EchoTimeoutMs  int    `yaml:"echo_timeout_ms"`
	ErrorBudget    int    `yaml:"error_budget"`
	ErrorBackoffMs int    `yaml:"error_backoff_ms"`
}

// ObstacleConfig holds obstacle monitor settings
type ObstacleConfig struct {
	ThresholdCm float64 `yaml:"threshold_cm"`
	TickMs      int     `yaml:"tick_ms"`
}

// NavigationConfig holds the marker-following decision thresholds.
// The maneuver tick counts are empirically tuned on the physical robot;
// do not re-derive them.
type NavigationConfig struct {
	TiltPitchDeg     float64 `yaml:"tilt_pitch_deg"`
	TiltBackoffMm    float64 `yaml:"tilt_backoff_mm"`
	ApproachStopMm   float64 `yaml:"approach_stop_mm"`
	TiltRotateTicks  int     `yaml:"tilt_rotate_ticks"`
	TiltAdvanceTicks int     `yaml:"tilt_advance_ticks"`
}

// SupervisorConfig holds worker lifecycle settings
type SupervisorConfig struct {
	LivenessIntervalS int `yaml:"liveness_interval_s"`
	RestartBudget     int `yaml:"restart_budget"`
	ShutdownGraceS    int `yaml:"shutdown_grace_s"`
}

// BatteryConfig holds the serial battery monitor settings
type BatteryConfig struct {
	Enabled          bool   `yaml:"enabled"`
	SerialPort       string `yaml:"serial_port"`
	BaudRate         int    `yaml:"baud_rate"`
	PublishIntervalS int    `yaml:"publish_interval_s"`
}

// VideocallConfig holds the external video call collaborator settings.
// When command is empty, video call requests are rejected.
type VideocallConfig struct {
	Command string `yaml:"command,omitempty"`
}

// DataConfig holds data directory settings
type DataConfig struct {
	Directory string `yaml:"directory"`
}

// LoadConfig loads the rover configuration from rover_config.yaml in the
// given directory, validates required fields and applies defaults.
func LoadConfig(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, "rover_config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file '%s': %w", configPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file '%s': %w", configPath, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.RobotID == "" {
		return fmt.Errorf("missing required field in config: robot_id")
	}
	if c.ZeroMQ.CommandConnectAddress == "" {
		return fmt.Errorf("missing required field in config: zeromq.command_connect_address")
	}
	if c.ZeroMQ.PublishBindAddress == "" {
		return fmt.Errorf("missing required field in config: zeromq.publish_bind_address")
	}
	if c.Motor.In1Pin == "" || c.Motor.In2Pin == "" || c.Motor.In3Pin == "" || c.Motor.In4Pin == "" {
		return fmt.Errorf("missing required field in config: motor pin assignments (in1_pin..in4_pin)")
	}
	if len(c.Sensors) == 0 {
		return fmt.Errorf("missing required field in config: sensors")
	}
	for i, s := range c.Sensors {
		if s.Position != "front" && s.Position != "back" {
			return fmt.Errorf("sensors[%d]: position must be \"front\" or \"back\", got %q", i, s.Position)
		}
		if s.TriggerPin == "" || s.EchoPin == "" {
			return fmt.Errorf("sensors[%d]: trigger_pin and echo_pin are required", i)
		}
	}
	if c.Data.Directory == "" {
		return fmt.Errorf("missing required field in config: data.directory")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.ZeroMQ.ReconnectIntervalMs == 0 {
		c.ZeroMQ.ReconnectIntervalMs = 1000
	}
	if c.Motor.DefaultDurationS == 0 {
		c.Motor.DefaultDurationS = 0.2
	}
	if c.Motor.StaleAfterMs == 0 {
		c.Motor.StaleAfterMs = 2000
	}
	for i := range c.Sensors {
		if c.Sensors[i].SampleDelayMs == 0 {
			c.Sensors[i].SampleDelayMs = 100
		}
		if c.Sensors[i].EchoTimeoutMs == 0 {
			c.Sensors[i].EchoTimeoutMs = 40
		}
		if c.Sensors[i].ErrorBudget == 0 {
			c.Sensors[i].ErrorBudget = 10
		}
		if c.Sensors[i].ErrorBackoffMs == 0 {
			c.Sensors[i].ErrorBackoffMs = 500
		}
	}
	if c.Obstacle.ThresholdCm == 0 {
		c.Obstacle.ThresholdCm = 50
	}
	if c.Obstacle.TickMs == 0 {
		c.Obstacle.TickMs = 500
	}
	if c.Navigation.TiltPitchDeg == 0 {
		c.Navigation.TiltPitchDeg = 40
	}
	if c.Navigation.TiltBackoffMm == 0 {
		c.Navigation.TiltBackoffMm = 500
	}
	if c.Navigation.ApproachStopMm == 0 {
		c.Navigation.ApproachStopMm = 300
	}
	if c.Navigation.TiltRotateTicks == 0 {
		c.Navigation.TiltRotateTicks = 3
	}
	if c.Navigation.TiltAdvanceTicks == 0 {
		c.Navigation.TiltAdvanceTicks = 2
	}
	if c.Supervisor.LivenessIntervalS == 0 {
		c.Supervisor.LivenessIntervalS = 5
	}
	if c.Supervisor.RestartBudget == 0 {
		c.Supervisor.RestartBudget = 3
	}
	if c.Supervisor.ShutdownGraceS == 0 {
		c.Supervisor.ShutdownGraceS = 5
	}
	if c.Battery.SerialPort == "" {
		c.Battery.SerialPort = "/dev/ttyUSB0"
	}
	if c.Battery.BaudRate == 0 {
		c.Battery.BaudRate = 9600
	}
	if c.Battery.PublishIntervalS == 0 {
		c.Battery.PublishIntervalS = 60
	}
}

// DefaultDuration returns the default drive duration as a time.Duration.
func (c *MotorConfig) DefaultDuration() time.Duration {
	return time.Duration(c.DefaultDurationS * float64(time.Second))
}

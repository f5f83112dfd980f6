// Package config loads the flight computer configuration from a YAML file.
// Every calibration threshold lives here rather than in the algorithms.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	SensorModeHardware = "hardware"
	SensorModeSim      = "sim"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the complete flight computer configuration.
type Config struct {
	Debug      bool          `yaml:"debug"`
	LogLevel   string        `yaml:"logLevel"`
	TickPeriod time.Duration `yaml:"tickPeriod"`

	Sensors   SensorsConfig   `yaml:"sensors"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Phase     PhaseConfig     `yaml:"phase"`
	Pyro      PyroConfig      `yaml:"pyro"`
	Canards   CanardConfig    `yaml:"canards"`
	AuxLink   AuxLinkConfig   `yaml:"auxLink"`
	Startup   StartupConfig   `yaml:"startup"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// SensorsConfig selects and addresses the barometer and inertial unit.
type SensorsConfig struct {
	Mode               string `yaml:"mode"`
	I2CBus             byte   `yaml:"i2cBus"`
	BaroAddress        byte   `yaml:"baroAddress"`
	IMUAddress         byte   `yaml:"imuAddress"`
	CalibrationSamples int    `yaml:"calibrationSamples"`
}

// EstimatorConfig holds the noise model used to derive the fixed gain.
type EstimatorConfig struct {
	PositionVariance float64 `yaml:"positionVariance"` // m²
	AccelVariance    float64 `yaml:"accelVariance"`    // (m/s²)²
	ProcessVariance  float64 `yaml:"processVariance"`  // jerk spectral density
	Depth            int     `yaml:"depth"`            // most Riccati iterations
	Tolerance        float64 `yaml:"tolerance"`        // relative to the largest gain element
}

// PhaseConfig holds the transition thresholds of the flight phase machine.
type PhaseConfig struct {
	LaunchAccel    float64       `yaml:"launchAccel"` // m/s², gravity removed
	LaunchDwell    time.Duration `yaml:"launchDwell"`
	BurnoutAccel   float64       `yaml:"burnoutAccel"`
	ControlDelay   time.Duration `yaml:"controlDelay"`
	MainAltitude   float64       `yaml:"mainAltitude"` // m above launchpad
	SettleVelocity float64       `yaml:"settleVelocity"`
	SettleDwell    time.Duration `yaml:"settleDwell"`
}

// PyroConfig maps the two pyro channels onto GPIO pins.
type PyroConfig struct {
	Channel1Fire  int           `yaml:"channel1Fire"`
	Channel1Sense int           `yaml:"channel1Sense"`
	Channel2Fire  int           `yaml:"channel2Fire"`
	Channel2Sense int           `yaml:"channel2Sense"`
	FireDuration  time.Duration `yaml:"fireDuration"`
}

// CanardConfig describes the two control-surface drives.
type CanardConfig struct {
	Enabled  bool      `yaml:"enabled"`
	Pins     [2]string `yaml:"pins"`
	Gain     float64   `yaml:"gain"`     // degrees of deflection per °/s of roll rate
	LimitDeg float64   `yaml:"limitDeg"` // absolute deflection limit
}

// AuxLinkConfig enables the optional handshake with the auxiliary computer.
type AuxLinkConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Port             string        `yaml:"port"`
	BaudRate         int           `yaml:"baudRate"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
}

// StartupConfig holds the pre-flight waits and the status indicator pins.
type StartupConfig struct {
	GoPin       int            `yaml:"goPin"` // arming input, 0 to go without waiting
	GoTimeout   time.Duration  `yaml:"goTimeout"`
	StopTimeout time.Duration  `yaml:"stopTimeout"`
	BlinkPeriod time.Duration  `yaml:"blinkPeriod"`
	Indicators  map[string]int `yaml:"indicators"` // subsystem name -> GPIO pin
}

// TelemetryConfig says where frames go.
type TelemetryConfig struct {
	Path       string         `yaml:"path"`
	FlushEvery int            `yaml:"flushEvery"`
	Downlink   DownlinkConfig `yaml:"downlink"`
}

// DownlinkConfig enables the websocket broadcast of live frames.
type DownlinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a configuration with placeholder calibration values.
// Flight values must come from the integrating team's calibration file.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		TickPeriod: 10 * time.Millisecond,
		Sensors: SensorsConfig{
			Mode:               SensorModeHardware,
			I2CBus:             1,
			BaroAddress:        0x76,
			IMUAddress:         0x28,
			CalibrationSamples: 100,
		},
		Estimator: EstimatorConfig{
			PositionVariance: 1.0,
			AccelVariance:    0.25,
			ProcessVariance:  1.0,
			Depth:            50000,
			Tolerance:        1e-6,
		},
		Phase: PhaseConfig{
			LaunchAccel:    20,
			LaunchDwell:    50 * time.Millisecond,
			BurnoutAccel:   -2,
			ControlDelay:   time.Second,
			MainAltitude:   300,
			SettleVelocity: 1,
			SettleDwell:    5 * time.Second,
		},
		Pyro: PyroConfig{
			Channel1Fire:  17,
			Channel1Sense: 27,
			Channel2Fire:  22,
			Channel2Sense: 23,
			FireDuration:  time.Second,
		},
		Canards: CanardConfig{
			Pins:     [2]string{"P9_14", "P9_16"},
			Gain:     0.05,
			LimitDeg: 10,
		},
		AuxLink: AuxLinkConfig{
			Port:             "/dev/ttyS0",
			BaudRate:         115200,
			HandshakeTimeout: 5 * time.Second,
		},
		Startup: StartupConfig{
			GoTimeout:   10 * time.Minute,
			StopTimeout: time.Second,
			BlinkPeriod: 250 * time.Millisecond,
			Indicators: map[string]int{
				"barometer": 5,
				"imu":       6,
				"pyro1":     13,
				"pyro2":     19,
				"auxlink":   26,
			},
		},
		Telemetry: TelemetryConfig{
			Path:       "TELEM.DAT",
			FlushEvery: 100,
			Downlink:   DownlinkConfig{Addr: ":8000"},
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes YAML bytes over the defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every field that would make the flight core unsafe to run.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.TickPeriod > 0, "tickPeriod must be positive, got %s", c.TickPeriod)
	check(c.Sensors.Mode == SensorModeHardware || c.Sensors.Mode == SensorModeSim,
		"sensors.mode must be %q or %q, got %q", SensorModeHardware, SensorModeSim, c.Sensors.Mode)
	check(c.Sensors.CalibrationSamples > 0, "sensors.calibrationSamples must be positive")
	check(c.Estimator.PositionVariance > 0, "estimator.positionVariance must be positive")
	check(c.Estimator.AccelVariance > 0, "estimator.accelVariance must be positive")
	check(c.Estimator.ProcessVariance > 0, "estimator.processVariance must be positive")
	check(c.Estimator.Depth > 0, "estimator.depth must be positive")
	check(c.Estimator.Tolerance > 0, "estimator.tolerance must be positive")
	check(c.Phase.LaunchAccel > c.Phase.BurnoutAccel, "phase.launchAccel must exceed phase.burnoutAccel")
	check(c.Phase.LaunchDwell >= 0 && c.Phase.SettleDwell >= 0 && c.Phase.ControlDelay >= 0,
		"phase dwell times must not be negative")
	check(c.Phase.SettleVelocity > 0, "phase.settleVelocity must be positive")
	check(c.Pyro.Channel1Fire != c.Pyro.Channel2Fire, "pyro channels must use distinct fire pins")
	check(c.Startup.StopTimeout > 0, "startup.stopTimeout must be positive")
	check(c.Startup.GoTimeout > 0, "startup.goTimeout must be positive")
	check(c.Startup.BlinkPeriod > 0, "startup.blinkPeriod must be positive")
	check(c.Telemetry.Path != "", "telemetry.path must be set")
	check(c.Telemetry.FlushEvery > 0, "telemetry.flushEvery must be positive")
	if c.AuxLink.Enabled {
		check(c.AuxLink.Port != "", "auxLink.port must be set when the aux link is enabled")
		check(c.AuxLink.BaudRate > 0, "auxLink.baudRate must be positive")
		check(c.AuxLink.HandshakeTimeout > 0, "auxLink.handshakeTimeout must be positive")
	}
	if c.Canards.Enabled {
		check(c.Canards.LimitDeg > 0, "canards.limitDeg must be positive")
	}
	if c.Telemetry.Downlink.Enabled {
		check(c.Telemetry.Downlink.Addr != "", "telemetry.downlink.addr must be set")
	}
	return err
}

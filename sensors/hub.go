// Package sensors polls the barometer and inertial unit once per tick and
// assembles a single Reading from them.
package sensors

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/westphae/quaternion"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

var ErrNoSamples = errors.New("no valid samples for calibration")

// WithLogger sets the logger for the hub
func WithLogger(logger *zap.Logger) func(h *Hub) {
	return func(h *Hub) {
		h.logger = logger.Named("sensors")
	}
}

// WithClock sets the clock used to pace calibration samples
func WithClock(c clock.Clock) func(h *Hub) {
	return func(h *Hub) {
		h.clock = c
	}
}

// Hub wraps the two sensor capability objects.
// A failed update keeps the previous values so that a dropout degrades the
// estimate instead of stopping the loop.
type Hub struct {
	baro Barometer
	imu  IMU

	last Reading

	baroDropouts, imuDropouts uint64

	clock  clock.Clock
	logger *zap.Logger
}

// NewHub creates a Hub around the given capability objects.
func NewHub(baro Barometer, imu IMU, options ...func(h *Hub)) *Hub {
	h := Hub{
		baro:   baro,
		imu:    imu,
		clock:  clock.New(),
		logger: zap.NewNop(),
		last:   Reading{QuatW: 1},
	}

	for _, option := range options {
		option(&h)
	}

	return &h
}

// InitBarometer initializes the barometer driver.
func (h *Hub) InitBarometer() error {
	if err := h.baro.Init(); err != nil {
		return fmt.Errorf("barometer init: %w", err)
	}
	return nil
}

// InitIMU initializes the inertial unit driver.
func (h *Hub) InitIMU() error {
	if err := h.imu.Init(); err != nil {
		return fmt.Errorf("imu init: %w", err)
	}
	return nil
}

// Poll updates both sensors and returns the assembled reading.
func (h *Hub) Poll() Reading {
	if err := h.baro.Update(); err != nil {
		h.baroDropouts++
	} else {
		b := h.baro.Data()
		h.last.Pressure = b.Pressure
		h.last.Temperature = b.Temperature
		h.last.BaroAltitude = b.Altitude
	}

	if err := h.imu.Update(); err != nil {
		h.imuDropouts++
	} else {
		m := h.imu.Data()
		h.last.AccelX, h.last.AccelY, h.last.AccelZ = m.A1, m.A2, m.A3
		h.last.GyroX, h.last.GyroY, h.last.GyroZ = m.G1, m.G2, m.G3
		h.last.QuatW, h.last.QuatX, h.last.QuatY, h.last.QuatZ = m.Q0, m.Q1, m.Q2, m.Q3
		h.last.IMUTemperature = m.Temp
		h.last.AccelVertical = VerticalComponent(m.Q0, m.Q1, m.Q2, m.Q3, m.A1, m.A2, m.A3)
	}

	return h.last
}

// Dropouts returns how many barometer and inertial unit updates have failed.
func (h *Hub) Dropouts() (baro, imu uint64) {
	return h.baroDropouts, h.imuDropouts
}

// Calibrate polls n readings spaced by interval while the vehicle is at rest
// and returns the launchpad altitude and the rest vertical specific force.
func (h *Hub) Calibrate(n int, interval time.Duration) (Calibration, error) {
	alts := make([]float64, 0, n)
	accs := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		baroBefore, imuBefore := h.Dropouts()
		r := h.Poll()
		baroAfter, imuAfter := h.Dropouts()
		if baroAfter == baroBefore {
			alts = append(alts, r.BaroAltitude)
		}
		if imuAfter == imuBefore {
			accs = append(accs, r.AccelVertical)
		}
		if interval > 0 {
			h.clock.Sleep(interval)
		}
	}

	if len(alts) == 0 {
		return Calibration{}, fmt.Errorf("barometer: %w", ErrNoSamples)
	}

	var c Calibration
	c.Samples = len(alts)
	c.LaunchpadAltitude, c.AltitudeVariance = stat.MeanVariance(alts, nil)
	if len(accs) > 0 {
		c.Gravity, c.AccelVariance = stat.MeanVariance(accs, nil)
	} else {
		c.Gravity = StandardGravity
		h.logger.Warn("no inertial samples during calibration, assuming standard gravity")
	}

	h.logger.Info("rest calibration complete",
		zap.Int("samples", c.Samples),
		zap.Float64("launchpadAltitude", c.LaunchpadAltitude),
		zap.Float64("gravity", c.Gravity))
	return c, nil
}

// VerticalComponent rotates the body-frame vector (a1, a2, a3) into the earth
// frame with quaternion q and returns its vertical component.
// A zero quaternion is treated as the identity rotation.
func VerticalComponent(q0, q1, q2, q3, a1, a2, a3 float64) float64 {
	nn := q0*q0 + q1*q1 + q2*q2 + q3*q3
	if nn == 0 {
		return a3
	}
	q := quaternion.Quaternion{W: q0, X: q1, Y: q2, Z: q3}
	v := quaternion.Quaternion{X: a1, Y: a2, Z: a3}
	return quaternion.Prod(q, v, quaternion.Quaternion.Conj(q)).Z / nn
}

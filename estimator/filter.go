package estimator

import (
	"errors"

	"github.com/westphae/gorocket/sensors"
)

// Estimate is the filtered vertical state.
type Estimate struct {
	Altitude     float64 // m above the launchpad
	Velocity     float64 // m/s, up positive
	Acceleration float64 // m/s², gravity removed
	Time         float64 // s since the filter was initialized
}

// Filter applies the fixed gain each tick. It holds exactly one live estimate.
type Filter struct {
	gain    Gain
	ground  float64
	gravity float64
	est     Estimate
}

// Initialize computes the gain and returns a filter at rest on the launchpad.
// initialAltitude is the launchpad barometric altitude that readings are
// referenced to. If the gain did not converge, the filter is still returned
// together with ErrGainNotConverged so the caller can fly in degraded mode.
func Initialize(dt, positionVariance, accelVariance, initialAltitude float64, options ...Option) (*Filter, error) {
	s := newSettings(options)
	g, err := ComputeGain(dt, positionVariance, accelVariance, options...)
	if err != nil && !errors.Is(err, ErrGainNotConverged) {
		return nil, err
	}
	return &Filter{gain: g, ground: initialAltitude, gravity: s.gravity}, err
}

// Update propagates the estimate over dt with constant-acceleration
// kinematics, then corrects it with the barometric altitude and the vertical
// accelerometer reading. It never fails and never allocates.
func (f *Filter) Update(r sensors.Reading, dt float64) Estimate {
	e := &f.est

	// Predict
	alt := e.Altitude + e.Velocity*dt + 0.5*e.Acceleration*dt*dt
	vel := e.Velocity + e.Acceleration*dt
	acc := e.Acceleration

	// Correct
	k := &f.gain.K
	yAlt := r.BaroAltitude - f.ground - alt
	yAcc := r.AccelVertical - f.gravity - acc
	e.Altitude = alt + k[0][0]*yAlt + k[0][1]*yAcc
	e.Velocity = vel + k[1][0]*yAlt + k[1][1]*yAcc
	e.Acceleration = acc + k[2][0]*yAlt + k[2][1]*yAcc
	e.Time += dt

	return *e
}

// Estimate returns the current estimate.
func (f *Filter) Estimate() Estimate {
	return f.est
}

// Gain returns the fixed gain.
func (f *Filter) Gain() Gain {
	return f.gain
}

// Ground returns the launchpad altitude readings are referenced to.
func (f *Filter) Ground() float64 {
	return f.ground
}

// Gravity returns the vertical specific force removed from the accelerometer.
func (f *Filter) Gravity() float64 {
	return f.gravity
}

package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/westphae/gorocket/sensors"
	"github.com/westphae/gorocket/sensors/bmp280"
	"github.com/westphae/quaternion"
)

const (
	lapseRate  = 0.0065 // K/m
	padTemp    = 15.0   // °C
	imuTemp    = 25
	baroExpInv = 1 / 0.190284
)

// Noise holds the Gaussian standard deviations added to the sensors.
type Noise struct {
	Altitude float64 // m
	Accel    float64 // m/s²
	Gyro     float64 // °/s
}

// DefaultNoise is roughly what a BMP280 and BNO055 show at rest.
var DefaultNoise = Noise{Altitude: 0.3, Accel: 0.05, Gyro: 0.1}

// WithPadAltitude sets the launchpad altitude above mean sea level
func WithPadAltitude(m float64) func(v *Vehicle) {
	return func(v *Vehicle) {
		v.pad = m
	}
}

// WithNoise sets the sensor noise
func WithNoise(n Noise) func(v *Vehicle) {
	return func(v *Vehicle) {
		v.noise = n
	}
}

// WithSeed seeds the noise source so runs are repeatable
func WithSeed(seed int64) func(v *Vehicle) {
	return func(v *Vehicle) {
		v.rnd = rand.New(rand.NewSource(seed))
	}
}

// WithTilt mounts the vehicle tilted by deg from vertical about the earth X axis.
func WithTilt(deg float64) func(v *Vehicle) {
	return func(v *Vehicle) {
		v.tilt = axisAngle(1, 0, 0, deg)
	}
}

// Vehicle flies a profile and serves the simulated sensors. Each sensor hub
// poll is one step: the barometer samples the current time and the inertial
// unit samples it and then advances the clock by the step.
type Vehicle struct {
	profile *Profile
	dt      float64
	t       float64

	pad   float64
	tilt  quaternion.Quaternion
	noise Noise
	rnd   *rand.Rand
}

// NewVehicle puts a vehicle at the start of profile, stepping by dt.
func NewVehicle(p *Profile, dt time.Duration, options ...func(v *Vehicle)) *Vehicle {
	v := Vehicle{
		profile: p,
		dt:      dt.Seconds(),
		t:       p.BeginTime(),
		tilt:    quaternion.Quaternion{W: 1},
		noise:   DefaultNoise,
		rnd:     rand.New(rand.NewSource(1)),
	}

	for _, option := range options {
		option(&v)
	}

	return &v
}

// Time returns the simulation time of the next sample.
func (v *Vehicle) Time() float64 {
	return v.t
}

// Done reports whether the profile has run out.
func (v *Vehicle) Done() bool {
	return v.t > v.profile.EndTime()
}

// Truth returns the true state at the current time.
func (v *Vehicle) Truth() (State, error) {
	return v.profile.Interpolate(v.t)
}

// PadAltitude returns the launchpad altitude above mean sea level.
func (v *Vehicle) PadAltitude() float64 {
	return v.pad
}

// Barometer returns the simulated barometer.
func (v *Vehicle) Barometer() *Barometer {
	return &Barometer{v: v}
}

// IMU returns the simulated inertial unit.
func (v *Vehicle) IMU() *IMU {
	return &IMU{v: v}
}

// Barometer is a simulated sensors.Barometer.
type Barometer struct {
	v       *Vehicle
	data    sensors.BaroData
	InitErr error // returned by Init when set
}

func (b *Barometer) Init() error {
	return b.InitErr
}

func (b *Barometer) Update() error {
	st, err := b.v.Truth()
	if err != nil {
		return err
	}
	alt := b.v.pad + st.Altitude + b.v.noise.Altitude*b.v.rnd.NormFloat64()
	b.data.Pressure = Pressure(alt)
	b.data.Temperature = padTemp - lapseRate*st.Altitude
	b.data.Altitude = bmp280.CalcAltitude(b.data.Pressure)
	return nil
}

func (b *Barometer) Data() sensors.BaroData {
	return b.data
}

// IMU is a simulated sensors.IMU. Its orientation is the mounting tilt
// followed by the accumulated roll about the body Z axis.
type IMU struct {
	v       *Vehicle
	data    sensors.IMUData
	InitErr error // returned by Init when set
}

func (m *IMU) Init() error {
	return m.InitErr
}

func (m *IMU) Update() error {
	v := m.v
	st, err := v.Truth()
	if err != nil {
		return err
	}
	v.t += v.dt

	q := quaternion.Prod(v.tilt, axisAngle(0, 0, 1, st.Roll))
	f := quaternion.Quaternion{Z: st.Acceleration + sensors.StandardGravity}
	b := quaternion.Prod(quaternion.Quaternion.Conj(q), f, q)

	n := v.noise
	m.data = sensors.IMUData{
		A1:   b.X + n.Accel*v.rnd.NormFloat64(),
		A2:   b.Y + n.Accel*v.rnd.NormFloat64(),
		A3:   b.Z + n.Accel*v.rnd.NormFloat64(),
		G1:   n.Gyro * v.rnd.NormFloat64(),
		G2:   n.Gyro * v.rnd.NormFloat64(),
		G3:   st.RollRate + n.Gyro*v.rnd.NormFloat64(),
		Q0:   q.W,
		Q1:   q.X,
		Q2:   q.Y,
		Q3:   q.Z,
		Temp: imuTemp,
	}
	return nil
}

func (m *IMU) Data() sensors.IMUData {
	return m.data
}

// Pressure is the standard-atmosphere pressure in hPa at altitude m, the
// inverse of bmp280.CalcAltitude.
func Pressure(altitude float64) float64 {
	return bmp280.QNH * math.Pow(1-altitude/44330.77, baroExpInv)
}

// axisAngle is the rotation by deg about the unit axis (x, y, z).
func axisAngle(x, y, z, deg float64) quaternion.Quaternion {
	s, c := math.Sincos(deg * math.Pi / 360)
	return quaternion.Quaternion{W: c, X: x * s, Y: y * s, Z: z * s}
}

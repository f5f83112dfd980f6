package sim

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/westphae/gorocket/actuator"
	"github.com/westphae/gorocket/auxlink"
	"github.com/westphae/gorocket/sensors"
)

func TestFlightProfile(t *testing.T) {
	p := Flight(5)

	at, apogee := p.Apogee()
	assert.InDelta(t, 32.5, at, 1e-9)
	assert.InDelta(t, 3437.5, apogee, 1e-9)

	end, err := p.Interpolate(p.EndTime())
	require.NoError(t, err)
	assert.InDelta(t, 0, end.Altitude, 1e-9, "lands on the pad")
	assert.Zero(t, end.Velocity)

	pad, err := p.Interpolate(2)
	require.NoError(t, err)
	assert.Zero(t, pad.Altitude)
	assert.Zero(t, pad.Acceleration)

	burn, err := p.Interpolate(6)
	require.NoError(t, err)
	assert.InDelta(t, 100, burn.Acceleration, 1e-9)
	assert.InDelta(t, 100, burn.Velocity, 1e-9)
	assert.InDelta(t, 50, burn.Altitude, 1e-9)
	assert.InDelta(t, 8, burn.RollRate, 1e-9)

	// Velocity and altitude are continuous across every knot.
	for _, k := range p.Knots()[1:] {
		before, err := p.Interpolate(k.T - 1e-7)
		require.NoError(t, err)
		after, err := p.Interpolate(k.T)
		require.NoError(t, err)
		assert.InDelta(t, before.Velocity, after.Velocity, 1e-3, "velocity at %gs", k.T)
		assert.InDelta(t, before.Altitude, after.Altitude, 1e-3, "altitude at %gs", k.T)
	}
}

func TestFlightWithoutPadTime(t *testing.T) {
	p := Flight(0)
	assert.Zero(t, p.BeginTime())
	_, apogee := p.Apogee()
	assert.InDelta(t, 3437.5, apogee, 1e-9)
}

func TestInterpolateOutOfRange(t *testing.T) {
	p := Flight(1)
	for _, tt := range []float64{-0.01, p.EndTime() + 0.01} {
		_, err := p.Interpolate(tt)
		assert.ErrorIs(t, err, ErrOutOfRange, "t=%g", tt)
	}
}

func TestNewProfileRejects(t *testing.T) {
	cases := []struct {
		name  string
		knots []Knot
	}{
		{"empty", nil},
		{"single", []Knot{{T: 0}}},
		{"repeated time", []Knot{{T: 0}, {T: 1}, {T: 1}}},
		{"backwards", []Knot{{T: 2}, {T: 1}}},
		{"NaN", []Knot{{T: 0}, {T: math.NaN()}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewProfile(c.knots)
			assert.ErrorIs(t, err, ErrBadProfile)
		})
	}
}

func TestReadProfile(t *testing.T) {
	p, err := ReadProfile(strings.NewReader("t, velocity, note, roll\n0, 0, pad, 0\n2, 100, burn, 10\n12, 0, coast, 0\n"))
	require.NoError(t, err)
	require.Len(t, p.Knots(), 3)
	assert.Equal(t, Knot{T: 2, Velocity: 100, RollRate: 10}, p.Knots()[1])
	_, apogee := p.Apogee()
	assert.InDelta(t, 600, apogee, 1e-9)

	p, err = ReadProfile(strings.NewReader("t,velocity\n0,0\n1,5\n"))
	require.NoError(t, err)
	assert.Zero(t, p.Knots()[1].RollRate)

	for _, in := range []string{
		"",
		"time,velocity\n0,0\n1,1\n",
		"t,velocity\n0,0\n1,fast\n",
		"t,velocity\n0,0\n",
	} {
		_, err := ReadProfile(strings.NewReader(in))
		assert.Error(t, err, "%q", in)
	}
}

func TestPressureInvertsBarometricAltitude(t *testing.T) {
	for _, h := range []float64{-100, 0, 250, 1401.5, 4000} {
		v := NewVehicle(Flight(1), 10*time.Millisecond, WithPadAltitude(h), WithNoise(Noise{}))
		b := v.Barometer()
		require.NoError(t, b.Update())
		assert.InDelta(t, h, b.Data().Altitude, 1e-6)
	}
	assert.InDelta(t, 1013.25, Pressure(0), 1e-9)
}

func TestVehicleAtRest(t *testing.T) {
	const dt = 10 * time.Millisecond
	v := NewVehicle(Flight(5), dt, WithPadAltitude(1400), WithNoise(Noise{}), WithTilt(5))
	hub := sensors.NewHub(v.Barometer(), v.IMU())
	require.NoError(t, hub.InitBarometer())
	require.NoError(t, hub.InitIMU())

	for i := 0; i < 100; i++ {
		assert.InDelta(t, float64(i)*dt.Seconds(), v.Time(), 1e-9)
		r := hub.Poll()
		assert.InDelta(t, sensors.StandardGravity, r.AccelVertical, 1e-9)
		assert.InDelta(t, 1400, r.BaroAltitude, 1e-6)
		assert.NotZero(t, r.AccelY, "tilted mount shows gravity off the body Z axis")
	}
	baro, imu := hub.Dropouts()
	assert.Zero(t, baro)
	assert.Zero(t, imu)
}

func TestVehicleInFlight(t *testing.T) {
	const dt = 10 * time.Millisecond
	v := NewVehicle(Flight(0), dt, WithNoise(Noise{}))
	hub := sensors.NewHub(v.Barometer(), v.IMU())
	var r sensors.Reading
	for v.Time() < 1 {
		r = hub.Poll()
	}
	assert.InDelta(t, 100+sensors.StandardGravity, r.AccelVertical, 1e-9)
	assert.InDelta(t, 100+sensors.StandardGravity, r.AccelZ, 1e-9, "roll leaves the body Z axis vertical")
	assert.Greater(t, r.GyroZ, 0.0)
	assert.Less(t, r.BaroAltitude, 51.0)
	assert.Greater(t, r.BaroAltitude, 45.0)
}

func TestVehicleRunsOut(t *testing.T) {
	p, err := NewProfile([]Knot{{T: 0}, {T: 0.055}})
	require.NoError(t, err)
	v := NewVehicle(p, 10*time.Millisecond)
	hub := sensors.NewHub(v.Barometer(), v.IMU())
	for i := 0; i < 10; i++ {
		hub.Poll()
	}
	assert.True(t, v.Done())
	baro, imu := hub.Dropouts()
	assert.EqualValues(t, 4, baro)
	assert.EqualValues(t, 4, imu)
}

func TestNoiseIsRepeatable(t *testing.T) {
	sample := func() []float64 {
		v := NewVehicle(Flight(1), 10*time.Millisecond, WithSeed(42))
		hub := sensors.NewHub(v.Barometer(), v.IMU())
		var out []float64
		for i := 0; i < 20; i++ {
			r := hub.Poll()
			out = append(out, r.BaroAltitude, r.AccelZ)
		}
		return out
	}
	assert.Equal(t, sample(), sample())
}

func TestInitErrors(t *testing.T) {
	v := NewVehicle(Flight(1), 10*time.Millisecond)
	b, m := v.Barometer(), v.IMU()
	assert.NoError(t, b.Init())
	b.InitErr = assert.AnError
	m.InitErr = assert.AnError
	assert.ErrorIs(t, b.Init(), assert.AnError)
	assert.ErrorIs(t, m.Init(), assert.AnError)
}

func TestBoard(t *testing.T) {
	b := NewBoard()
	a := actuator.New(b.ActuatorPins())
	require.NoError(t, a.Attach(actuator.Pyro1))
	require.NoError(t, a.Attach(actuator.Pyro2))
	assert.Zero(t, b.Fire[0].Rises())

	require.NoError(t, b.Fire[1].Write(actuator.High))
	require.NoError(t, b.Fire[1].Write(actuator.High))
	require.NoError(t, b.Fire[1].Write(actuator.Low))
	assert.Equal(t, 1, b.Fire[1].Rises())
	assert.Equal(t, 4, b.Fire[1].Writes())

	assert.Len(t, b.IndicatorOutputs(), len(b.Indicators))
	require.NoError(t, b.Canards[0].SetDuty(1500000))
	assert.Equal(t, 1500000, b.Canards[0].Duty())
}

func TestAuxPeer(t *testing.T) {
	peer := NewAuxPeer(auxlink.AOK)
	reply, err := auxlink.Handshake(context.Background(), peer, auxlink.AOK, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, auxlink.AOK, reply)

	peer.Reply = auxlink.ERR
	reply, err = auxlink.Handshake(context.Background(), peer, auxlink.ERR, time.Second, nil)
	assert.ErrorIs(t, err, auxlink.ErrRejected)
	assert.Equal(t, auxlink.ERR, reply)
	assert.Equal(t, []auxlink.Token{auxlink.AOK, auxlink.ERR}, peer.Received())
}

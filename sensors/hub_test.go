package sensors

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBaro struct {
	alts   []float64
	i      int
	fail   map[int]bool
	initEr error
	d      BaroData
}

func (b *fakeBaro) Init() error { return b.initEr }

func (b *fakeBaro) Update() error {
	defer func() { b.i++ }()
	if b.fail[b.i] {
		return errors.New("i2c nack")
	}
	b.d = BaroData{Pressure: 1000, Temperature: 20, Altitude: b.alts[b.i%len(b.alts)]}
	return nil
}

func (b *fakeBaro) Data() BaroData { return b.d }

type fakeIMU struct {
	d    IMUData
	fail bool
}

func (m *fakeIMU) Init() error { return nil }

func (m *fakeIMU) Update() error {
	if m.fail {
		return errors.New("imu timeout")
	}
	return nil
}

func (m *fakeIMU) Data() IMUData { return m.d }

func TestVerticalComponent(t *testing.T) {
	s := math.Sqrt(0.5)
	tests := []struct {
		name           string
		q0, q1, q2, q3 float64
		a1, a2, a3     float64
		want           float64
	}{
		{"identity", 1, 0, 0, 0, 0.1, 0.2, 9.8, 9.8},
		{"zero quaternion", 0, 0, 0, 0, 0.1, 0.2, 9.8, 9.8},
		{"roll 90 about x", s, s, 0, 0, 0, 9.8, 0, 9.8},
		{"pitch 90 about y", s, 0, s, 0, 9.8, 0, 0, -9.8},
		{"unnormalized identity", 2, 0, 0, 0, 0, 0, 3, 3},
		{"upside down", 0, 1, 0, 0, 0, 0, 9.8, -9.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerticalComponent(tt.q0, tt.q1, tt.q2, tt.q3, tt.a1, tt.a2, tt.a3)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPollKeepsLastValuesOnDropout(t *testing.T) {
	baro := &fakeBaro{alts: []float64{100, 101, 102}, fail: map[int]bool{1: true}}
	imu := &fakeIMU{d: IMUData{A3: 9.8, Q0: 1, Temp: 25}}
	h := NewHub(baro, imu)

	r := h.Poll()
	assert.Equal(t, 100.0, r.BaroAltitude)
	assert.InDelta(t, 9.8, r.AccelVertical, 1e-12)
	assert.Equal(t, int8(25), r.IMUTemperature)

	r = h.Poll()
	assert.Equal(t, 100.0, r.BaroAltitude, "dropout keeps previous altitude")

	imu.fail = true
	r = h.Poll()
	assert.Equal(t, 102.0, r.BaroAltitude)
	assert.InDelta(t, 9.8, r.AccelVertical, 1e-12)

	b, i := h.Dropouts()
	assert.Equal(t, uint64(1), b)
	assert.Equal(t, uint64(1), i)
}

func TestCalibrate(t *testing.T) {
	baro := &fakeBaro{alts: []float64{99, 101}}
	imu := &fakeIMU{d: IMUData{A3: 9.79, Q0: 1}}
	h := NewHub(baro, imu)

	c, err := h.Calibrate(10, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Samples)
	assert.InDelta(t, 100, c.LaunchpadAltitude, 1e-9)
	assert.InDelta(t, 9.79, c.Gravity, 1e-9)
	assert.Greater(t, c.AltitudeVariance, 0.0)
}

func TestCalibrateWithoutBarometer(t *testing.T) {
	baro := &fakeBaro{alts: []float64{0}, fail: map[int]bool{0: true, 1: true, 2: true}}
	h := NewHub(baro, &fakeIMU{d: IMUData{Q0: 1}})

	_, err := h.Calibrate(3, 0)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestCalibrateWithoutIMUAssumesStandardGravity(t *testing.T) {
	h := NewHub(&fakeBaro{alts: []float64{50}}, &fakeIMU{fail: true})

	c, err := h.Calibrate(4, 0)
	require.NoError(t, err)
	assert.Equal(t, StandardGravity, c.Gravity)
}

func TestInitWrapsDriverErrors(t *testing.T) {
	boom := errors.New("chip id mismatch")
	h := NewHub(&fakeBaro{initEr: boom}, &fakeIMU{})
	assert.ErrorIs(t, h.InitBarometer(), boom)
	assert.NoError(t, h.InitIMU())
}

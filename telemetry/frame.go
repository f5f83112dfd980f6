// Package telemetry assembles the per-tick telemetry frame, persists it, and
// decodes recorded files for postflight analysis.
package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/westphae/gorocket/phase"
)

// FrameSize is the length of one encoded frame: 19 float32 fields, the
// phase byte and the IMU temperature byte, packed little-endian.
const FrameSize = 19*4 + 1 + 1

var ErrShortFrame = errors.New("telemetry frame truncated")

// Frame is one tick's record, in wire order.
type Frame struct {
	Time  float32 // s since the flight loop started
	Phase phase.Phase

	Altitude     float32 // filtered, m above launchpad
	Velocity     float32 // filtered, m/s
	Acceleration float32 // filtered, m/s²

	Pressure     float32 // hPa
	Temperature  float32 // °C
	BaroAltitude float32 // m

	IMUTemperature int8 // °C

	AccelX, AccelY, AccelZ, AccelVertical float32 // m/s²
	GyroX, GyroY, GyroZ                   float32 // °/s
	QuatW, QuatX, QuatY, QuatZ            float32

	LaunchpadAltitude float32 // m

	// Status is the ledger mask at capture. It travels with live frames but
	// is not part of the recorded layout.
	Status byte
}

type encoder struct {
	b []byte
	i int
}

func (e *encoder) f32(v float32) {
	binary.LittleEndian.PutUint32(e.b[e.i:], math.Float32bits(v))
	e.i += 4
}

func (e *encoder) u8(v byte) {
	e.b[e.i] = v
	e.i++
}

type decoder struct {
	b []byte
	i int
}

func (d *decoder) f32() float32 {
	v := math.Float32frombits(binary.LittleEndian.Uint32(d.b[d.i:]))
	d.i += 4
	return v
}

func (d *decoder) u8() byte {
	v := d.b[d.i]
	d.i++
	return v
}

// Encode writes f into b, which must hold at least FrameSize bytes.
func (f *Frame) Encode(b []byte) error {
	if len(b) < FrameSize {
		return fmt.Errorf("encode into %d bytes: %w", len(b), ErrShortFrame)
	}
	f.put((*[FrameSize]byte)(b))
	return nil
}

// put encodes f into a record-sized buffer.
func (f *Frame) put(b *[FrameSize]byte) {
	e := encoder{b: b[:]}
	e.f32(f.Time)
	e.u8(byte(f.Phase))
	e.f32(f.Altitude)
	e.f32(f.Velocity)
	e.f32(f.Acceleration)
	e.f32(f.Pressure)
	e.f32(f.Temperature)
	e.f32(f.BaroAltitude)
	e.u8(byte(f.IMUTemperature))
	e.f32(f.AccelX)
	e.f32(f.AccelY)
	e.f32(f.AccelZ)
	e.f32(f.AccelVertical)
	e.f32(f.GyroX)
	e.f32(f.GyroY)
	e.f32(f.GyroZ)
	e.f32(f.QuatW)
	e.f32(f.QuatX)
	e.f32(f.QuatY)
	e.f32(f.QuatZ)
	e.f32(f.LaunchpadAltitude)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (f *Frame) MarshalBinary() ([]byte, error) {
	b := make([]byte, FrameSize)
	return b, f.Encode(b)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Phase bytes outside
// the known set are kept as is.
func (f *Frame) UnmarshalBinary(b []byte) error {
	if len(b) < FrameSize {
		return fmt.Errorf("decode %d bytes: %w", len(b), ErrShortFrame)
	}
	d := decoder{b: b}
	f.Time = d.f32()
	f.Phase = phase.Phase(d.u8())
	f.Altitude = d.f32()
	f.Velocity = d.f32()
	f.Acceleration = d.f32()
	f.Pressure = d.f32()
	f.Temperature = d.f32()
	f.BaroAltitude = d.f32()
	f.IMUTemperature = int8(d.u8())
	f.AccelX = d.f32()
	f.AccelY = d.f32()
	f.AccelZ = d.f32()
	f.AccelVertical = d.f32()
	f.GyroX = d.f32()
	f.GyroY = d.f32()
	f.GyroZ = d.f32()
	f.QuatW = d.f32()
	f.QuatX = d.f32()
	f.QuatY = d.f32()
	f.QuatZ = d.f32()
	f.LaunchpadAltitude = d.f32()
	f.Status = 0
	return nil
}

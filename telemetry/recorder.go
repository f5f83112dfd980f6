package telemetry

import (
	"github.com/westphae/gorocket/estimator"
	"github.com/westphae/gorocket/ledger"
	"github.com/westphae/gorocket/phase"
	"github.com/westphae/gorocket/sensors"
	"go.uber.org/zap"
)

// Sink receives every encoded frame in order. record is only valid for the
// duration of the call.
type Sink interface {
	Append(f *Frame, record []byte) error
}

// WithLogger sets the logger for the recorder
func WithLogger(logger *zap.Logger) func(r *Recorder) {
	return func(r *Recorder) {
		r.logger = logger.Named("telemetry")
	}
}

// WithSink adds a destination for frames. Sinks are written in the order added.
func WithSink(s Sink) func(r *Recorder) {
	return func(r *Recorder) {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
}

// Recorder turns each tick's state into a Frame and hands it to the sinks.
// A failing sink is logged and counted; it never stops the caller.
type Recorder struct {
	launchpad float32
	buf       [FrameSize]byte
	sinks     []Sink

	frames  uint64
	dropped uint64

	logger *zap.Logger
}

// NewRecorder returns a recorder stamping every frame with the launchpad altitude.
func NewRecorder(launchpadAltitude float64, options ...func(r *Recorder)) *Recorder {
	r := Recorder{
		launchpad: float32(launchpadAltitude),
		logger:    zap.NewNop(),
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Capture assembles the frame for one tick.
func (r *Recorder) Capture(t float64, ph phase.Phase, est estimator.Estimate, rd sensors.Reading, snap ledger.Snapshot) Frame {
	return Frame{
		Time:              float32(t),
		Phase:             ph,
		Altitude:          float32(est.Altitude),
		Velocity:          float32(est.Velocity),
		Acceleration:      float32(est.Acceleration),
		Pressure:          float32(rd.Pressure),
		Temperature:       float32(rd.Temperature),
		BaroAltitude:      float32(rd.BaroAltitude),
		IMUTemperature:    rd.IMUTemperature,
		AccelX:            float32(rd.AccelX),
		AccelY:            float32(rd.AccelY),
		AccelZ:            float32(rd.AccelZ),
		AccelVertical:     float32(rd.AccelVertical),
		GyroX:             float32(rd.GyroX),
		GyroY:             float32(rd.GyroY),
		GyroZ:             float32(rd.GyroZ),
		QuatW:             float32(rd.QuatW),
		QuatX:             float32(rd.QuatX),
		QuatY:             float32(rd.QuatY),
		QuatZ:             float32(rd.QuatZ),
		LaunchpadAltitude: r.launchpad,
		Status:            snap.Mask(),
	}
}

// Append encodes f and writes it to every sink. It reports whether every sink
// accepted the frame.
func (r *Recorder) Append(f Frame) bool {
	r.frames++
	f.put(&r.buf)

	ok := true
	for _, s := range r.sinks {
		if err := s.Append(&f, r.buf[:]); err != nil {
			ok = false
			r.dropped++
			// First failure, then every thousandth.
			if r.dropped == 1 || r.dropped%1000 == 0 {
				r.logger.Warn("telemetry sink failed",
					zap.Error(err),
					zap.Uint64("dropped", r.dropped),
					zap.Float32("time", f.Time))
			}
		}
	}
	return ok
}

// Frames returns how many frames have been appended.
func (r *Recorder) Frames() uint64 {
	return r.frames
}

// Dropped returns how many sink writes have failed.
func (r *Recorder) Dropped() uint64 {
	return r.dropped
}

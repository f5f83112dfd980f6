// Package flight runs the fixed-period flight loop: poll, estimate, decide,
// act and record, once per tick on a single goroutine.
package flight

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/westphae/gorocket/actuator"
	"github.com/westphae/gorocket/estimator"
	"github.com/westphae/gorocket/ledger"
	"github.com/westphae/gorocket/phase"
	"github.com/westphae/gorocket/sensors"
	"github.com/westphae/gorocket/startup"
	"github.com/westphae/gorocket/telemetry"
	"go.uber.org/zap"
)

// Summary describes a finished run of the loop.
type Summary struct {
	Ticks       uint64
	Elapsed     time.Duration // mission time of the last tick
	Phase       phase.Phase
	Transitions []phase.Transition
	Frames      uint64
	Dropped     uint64
}

// WithLogger sets the logger for the loop
func WithLogger(logger *zap.Logger) func(l *Loop) {
	return func(l *Loop) {
		l.logger = logger.Named("flight")
	}
}

// WithClock sets the clock whose ticker paces the loop
func WithClock(c clock.Clock) func(l *Loop) {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithMaxTicks stops the loop after n ticks even if it has not concluded.
// Zero means no limit.
func WithMaxTicks(n uint64) func(l *Loop) {
	return func(l *Loop) {
		l.maxTicks = n
	}
}

// Loop owns everything handed off by startup for the rest of the mission.
type Loop struct {
	period time.Duration
	dt     float64

	hub      *sensors.Hub
	filter   *estimator.Filter
	ctrl     *phase.Controller
	act      *actuator.Actuator
	ledger   *ledger.Ledger
	recorder *telemetry.Recorder

	ticks    uint64
	maxTicks uint64
	last     estimator.Estimate

	clock  clock.Clock
	logger *zap.Logger
}

// New builds the loop from the startup hand-off.
func New(h *startup.Handoff, ctrl *phase.Controller, rec *telemetry.Recorder, period time.Duration, options ...func(l *Loop)) *Loop {
	l := Loop{
		period:   period,
		dt:       period.Seconds(),
		hub:      h.Hub,
		filter:   h.Filter,
		ctrl:     ctrl,
		act:      h.Actuator,
		ledger:   h.Ledger,
		recorder: rec,
		clock:    clock.New(),
		logger:   zap.NewNop(),
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

// Elapsed is the mission time of the next tick.
func (l *Loop) Elapsed() time.Duration {
	return time.Duration(l.ticks) * l.period
}

// Step runs one tick and reports whether the mission is over.
func (l *Loop) Step() bool {
	elapsed := l.Elapsed()
	l.ticks++

	r := l.hub.Poll()
	l.last = l.filter.Update(r, l.dt)
	l.act.Advance(elapsed)

	if tr, ok := l.ctrl.Evaluate(l.last, elapsed); ok {
		l.act.Enter(tr.To)
		if err := l.act.Execute(tr.Action); err != nil {
			l.logger.Warn("phase entry action failed",
				zap.Stringer("phase", tr.To), zap.Stringer("action", tr.Action), zap.Error(err))
		}
		l.logger.Info("phase transition",
			zap.Stringer("from", tr.From),
			zap.Stringer("to", tr.To),
			zap.Duration("at", tr.At),
			zap.Float64("altitude", l.last.Altitude),
			zap.Float64("velocity", l.last.Velocity))
	}

	// Roll is about the body Z axis.
	if err := l.act.Track(r.GyroZ); err != nil {
		l.logger.Debug("canard tracking", zap.Error(err))
	}
	if err := l.act.Release(); err != nil {
		l.logger.Warn("releasing pyro output", zap.Error(err))
	}

	f := l.recorder.Capture(elapsed.Seconds(), l.ctrl.Phase(), l.last, r, l.ledger.Snapshot())
	l.recorder.Append(f)

	if l.ctrl.Phase() == phase.Concluded {
		return true
	}
	return l.maxTicks > 0 && l.ticks >= l.maxTicks
}

// Run steps the loop on every tick of the clock until the mission concludes.
// ctx is honoured only while the vehicle is still in Prelaunch; once launch
// is detected the loop runs to the end.
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	ticker := l.clock.Ticker(l.period)
	defer ticker.Stop()

	l.logger.Info("flight loop started", zap.Duration("period", l.period))
	done := ctx.Done()
	for {
		select {
		case <-ticker.C:
		case <-done:
			if l.ctrl.Phase() == phase.Prelaunch {
				l.logger.Info("flight loop cancelled on the pad", zap.Error(ctx.Err()))
				return l.Summary(), ctx.Err()
			}
			done = nil
			l.logger.Warn("ignoring cancellation in flight", zap.Stringer("phase", l.ctrl.Phase()))
			continue
		}
		if l.Step() {
			return l.finish(), nil
		}
	}
}

// RunUnpaced steps the loop back to back without waiting for the clock, for
// replaying a simulated flight faster than real time. Mission time still
// advances by the period on every tick.
func (l *Loop) RunUnpaced(ctx context.Context) (Summary, error) {
	l.logger.Info("unpaced flight loop started", zap.Duration("period", l.period))
	for {
		if l.ctrl.Phase() == phase.Prelaunch {
			if err := ctx.Err(); err != nil {
				l.logger.Info("flight loop cancelled on the pad", zap.Error(err))
				return l.Summary(), err
			}
		}
		if l.Step() {
			return l.finish(), nil
		}
	}
}

func (l *Loop) finish() Summary {
	s := l.Summary()
	l.logger.Info("flight loop finished",
		zap.Stringer("phase", s.Phase),
		zap.Uint64("ticks", s.Ticks),
		zap.Duration("elapsed", s.Elapsed),
		zap.Uint64("frames", s.Frames),
		zap.Uint64("dropped", s.Dropped))
	return s
}

// Summary reports the state of the loop so far.
func (l *Loop) Summary() Summary {
	var elapsed time.Duration
	if l.ticks > 0 {
		elapsed = time.Duration(l.ticks-1) * l.period
	}
	return Summary{
		Ticks:       l.ticks,
		Elapsed:     elapsed,
		Phase:       l.ctrl.Phase(),
		Transitions: l.ctrl.History(),
		Frames:      l.recorder.Frames(),
		Dropped:     l.recorder.Dropped(),
	}
}

// Estimate returns the estimate of the last tick.
func (l *Loop) Estimate() estimator.Estimate {
	return l.last
}

// Package startup brings the flight computer from power-on to the hand-off
// of every output to the flight loop.
package startup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/westphae/gorocket/actuator"
	"github.com/westphae/gorocket/auxlink"
	"github.com/westphae/gorocket/config"
	"github.com/westphae/gorocket/estimator"
	"github.com/westphae/gorocket/indicator"
	"github.com/westphae/gorocket/ledger"
	"github.com/westphae/gorocket/sensors"
	"go.uber.org/zap"
)

// goPollInterval is how often the go signal is sampled while waiting.
const goPollInterval = 50 * time.Millisecond

// GoSignal reports whether the launch go signal is present.
type GoSignal interface {
	Ready() (bool, error)
}

// PinSignal is a go signal read from a digital input that is high when go.
// embd.DigitalPin satisfies the embedded interface.
type PinSignal struct {
	Pin interface {
		Read() (int, error)
	}
}

func (p PinSignal) Ready() (bool, error) {
	v, err := p.Pin.Read()
	return v == 1, err
}

// Devices are the collaborators startup brings up. AuxLink is only used
// when the aux link is enabled; AuxLinkErr carries a failure to open it.
type Devices struct {
	Hub        *sensors.Hub
	Actuator   *actuator.Actuator
	Ledger     *ledger.Ledger
	Indicators map[ledger.Subsystem]indicator.Output
	AuxLink    auxlink.Port
	AuxLinkErr error
	GoSignal   GoSignal // nil goes without waiting
}

// Handoff is everything the flight loop takes exclusive ownership of.
type Handoff struct {
	Hub         *sensors.Hub
	Filter      *estimator.Filter
	Actuator    *actuator.Actuator
	Ledger      *ledger.Ledger
	Calibration sensors.Calibration

	Lights     []indicator.Light // as shown by the indicator task
	GoTimedOut bool              // startup proceeded without a go signal
	JoinErr    error             // the indicator task did not stop in time
}

// WithLogger sets the logger for the coordinator
func WithLogger(logger *zap.Logger) func(c *Coordinator) {
	return func(c *Coordinator) {
		c.logger = logger.Named("startup")
	}
}

// WithClock sets the clock for every bounded wait
func WithClock(clk clock.Clock) func(c *Coordinator) {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

// Coordinator runs the startup sequence once.
type Coordinator struct {
	cfg *config.Config
	dev Devices

	clock  clock.Clock
	logger *zap.Logger
}

func New(cfg *config.Config, dev Devices, options ...func(c *Coordinator)) *Coordinator {
	c := Coordinator{
		cfg:    cfg,
		dev:    dev,
		clock:  clock.New(),
		logger: zap.NewNop(),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Run brings up every subsystem, recording each outcome in the ledger, and
// returns the hand-off for the flight loop. Subsystem failures are recorded
// and startup continues. It fails only when the indicator task cannot be
// started, the estimator parameters are invalid, or ctx is cancelled
// before the hand-off.
func (c *Coordinator) Run(ctx context.Context) (*Handoff, error) {
	l := c.dev.Ledger
	h := &Handoff{Hub: c.dev.Hub, Actuator: c.dev.Actuator, Ledger: l}

	// Sensors
	l.Report(ledger.Barometer, c.dev.Hub.InitBarometer())
	l.Report(ledger.IMU, c.dev.Hub.InitIMU())

	// Outputs
	l.Report(ledger.Pyro1, c.dev.Actuator.Attach(actuator.Pyro1))
	l.Report(ledger.Pyro2, c.dev.Actuator.Attach(actuator.Pyro2))
	if err := c.dev.Actuator.AttachCanards(); err != nil {
		c.logger.Warn("canards unavailable", zap.Error(err))
	}

	// Rest calibration and gain
	cal, err := c.dev.Hub.Calibrate(c.cfg.Sensors.CalibrationSamples, c.cfg.TickPeriod)
	if err != nil {
		l.Report(ledger.Barometer, fmt.Errorf("rest calibration: %w", err))
		cal = sensors.Calibration{Gravity: sensors.StandardGravity}
	}
	h.Calibration = cal

	ec := c.cfg.Estimator
	h.Filter, err = estimator.Initialize(c.cfg.TickPeriod.Seconds(), ec.PositionVariance, ec.AccelVariance, cal.LaunchpadAltitude,
		estimator.WithDepth(ec.Depth),
		estimator.WithTolerance(ec.Tolerance),
		estimator.WithProcessVariance(ec.ProcessVariance),
		estimator.WithGravity(cal.Gravity))
	switch {
	case errors.Is(err, estimator.ErrGainNotConverged):
		c.logger.Warn("estimator gain did not converge, flying with the last gain", zap.Error(err))
		l.Report(ledger.Estimator, err)
	case err != nil:
		return nil, fmt.Errorf("estimator: %w", err)
	default:
		l.Report(ledger.Estimator, nil)
	}

	// The indicator config is complete before the task starts and is never
	// updated. The aux handshake comes after, so an aux light blinks while the
	// exchange is pending whatever the outcome; the result goes to the ledger,
	// the log and the telemetry status mask.
	icfg := indicator.NewConfig(l.Snapshot(), c.dev.Indicators, c.cfg.Startup.BlinkPeriod)
	h.Lights = icfg.Lights()
	task := indicator.NewTask(icfg, indicator.WithClock(c.clock), indicator.WithLogger(c.logger))
	if err := task.Start(); err != nil {
		return nil, fmt.Errorf("starting indicator task: %w", err)
	}
	c.logger.Info("indicator task started", zap.Bool("allGo", l.AllGo()), zap.Int("faults", l.Snapshot().Faults))

	waitErr := c.handshake(ctx)
	if waitErr == nil {
		h.GoTimedOut, waitErr = c.waitForGo(ctx)
	}

	task.Stop()
	if err := task.Join(c.cfg.Startup.StopTimeout); err != nil {
		c.logger.Warn("indicator task did not stop, proceeding", zap.Duration("timeout", c.cfg.Startup.StopTimeout), zap.Error(err))
		h.JoinErr = err
	}
	if err := icfg.Lower(); err != nil {
		c.logger.Warn("lowering indicator outputs", zap.Error(err))
	}

	if waitErr != nil {
		return nil, waitErr
	}
	c.logger.Info("handing off to flight loop",
		zap.Bool("allGo", l.AllGo()),
		zap.Float64("launchpadAltitude", cal.LaunchpadAltitude),
		zap.Float64("gravity", cal.Gravity))
	return h, nil
}

// handshake exchanges go/no-go tokens with the aux computer when enabled.
// Only context cancellation is returned; link faults go to the ledger.
func (c *Coordinator) handshake(ctx context.Context) error {
	ac := c.cfg.AuxLink
	if !ac.Enabled {
		return nil
	}
	l := c.dev.Ledger
	if c.dev.AuxLinkErr != nil || c.dev.AuxLink == nil {
		err := c.dev.AuxLinkErr
		if err == nil {
			err = errors.New("aux link port not open")
		}
		l.Report(ledger.AuxLink, err)
		return nil
	}

	token := auxlink.ERR
	if l.AllGo() {
		token = auxlink.AOK
	}
	reply, err := auxlink.Handshake(ctx, c.dev.AuxLink, token, ac.HandshakeTimeout, c.clock)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	l.Report(ledger.AuxLink, err)
	c.logger.Info("aux link handshake", zap.Stringer("sent", token), zap.Stringer("reply", reply), zap.Error(err))
	return nil
}

// waitForGo polls the go signal until it is present or the go timeout
// passes. A timeout is reported but does not stop startup.
func (c *Coordinator) waitForGo(ctx context.Context) (timedOut bool, err error) {
	if c.dev.GoSignal == nil {
		return false, nil
	}
	timeout := c.cfg.Startup.GoTimeout
	deadline := c.clock.Timer(timeout)
	defer deadline.Stop()
	poll := c.clock.Ticker(goPollInterval)
	defer poll.Stop()

	for {
		ready, err := c.dev.GoSignal.Ready()
		if err != nil {
			c.logger.Debug("reading go signal", zap.Error(err))
		}
		if ready {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			c.logger.Warn("no go signal, proceeding", zap.Duration("timeout", timeout))
			return true, nil
		case <-poll.C:
		}
	}
}

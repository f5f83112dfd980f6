// Package mission assembles the flight computer from its configuration and
// flies it: startup, telemetry sinks and the flight loop.
package mission

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/westphae/gorocket/config"
	"github.com/westphae/gorocket/flight"
	"github.com/westphae/gorocket/phase"
	"github.com/westphae/gorocket/startup"
	"github.com/westphae/gorocket/telemetry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const shutdownTimeout = 2 * time.Second

// WithLogger sets the logger for every component of the mission
func WithLogger(logger *zap.Logger) func(m *Mission) {
	return func(m *Mission) {
		m.logger = logger
	}
}

// WithClock sets the clock for startup and the flight loop
func WithClock(c clock.Clock) func(m *Mission) {
	return func(m *Mission) {
		m.clock = c
	}
}

// WithUnpaced runs the flight loop back to back instead of on the clock.
// Only meaningful with a simulated rig.
func WithUnpaced() func(m *Mission) {
	return func(m *Mission) {
		m.unpaced = true
	}
}

// Mission flies a rig once.
type Mission struct {
	cfg *config.Config
	rig *Rig

	unpaced bool
	addr    net.Addr // downlink listener, once open

	clock  clock.Clock
	logger *zap.Logger
}

func New(cfg *config.Config, rig *Rig, options ...func(m *Mission)) *Mission {
	m := Mission{
		cfg:    cfg,
		rig:    rig,
		clock:  clock.New(),
		logger: zap.NewNop(),
	}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// Fly runs startup and then the flight loop until the mission concludes.
func (m *Mission) Fly(ctx context.Context) (flight.Summary, error) {
	coord := startup.New(m.cfg, m.rig.Devices, startup.WithLogger(m.logger), startup.WithClock(m.clock))
	h, err := coord.Run(ctx)
	if err != nil {
		return flight.Summary{}, fmt.Errorf("startup: %w", err)
	}
	for _, f := range h.Ledger.Faults() {
		m.logger.Warn("flying with fault", zap.Stringer("subsystem", f.Subsystem), zap.String("diagnostic", f.Diagnostic), zap.Error(f.Err))
	}

	sinks, closeSinks := m.openSinks()
	opts := []func(r *telemetry.Recorder){telemetry.WithLogger(m.logger)}
	for _, s := range sinks {
		opts = append(opts, telemetry.WithSink(s))
	}
	rec := telemetry.NewRecorder(h.Calibration.LaunchpadAltitude, opts...)

	loop := flight.New(h, phase.NewController(phase.ThresholdsFrom(m.cfg.Phase)), rec, m.cfg.TickPeriod,
		flight.WithLogger(m.logger), flight.WithClock(m.clock))

	var s flight.Summary
	if m.unpaced {
		s, err = loop.RunUnpaced(ctx)
	} else {
		s, err = loop.Run(ctx)
	}
	if cerr := closeSinks(); cerr != nil {
		m.logger.Warn("closing telemetry", zap.Error(cerr))
	}
	return s, err
}

// DownlinkAddr returns the address the downlink listens on, or nil.
func (m *Mission) DownlinkAddr() net.Addr {
	return m.addr
}

// openSinks opens the telemetry file and, when enabled, the websocket
// downlink with its HTTP server. Neither failing stops the flight: a file
// that cannot be opened is replaced by a sink that drops every frame.
func (m *Mission) openSinks() ([]telemetry.Sink, func() error) {
	tc := m.cfg.Telemetry
	var (
		sinks   []telemetry.Sink
		closers []func() error
	)
	file, err := telemetry.CreateFileSink(tc.Path, tc.FlushEvery)
	if err != nil {
		m.logger.Error("telemetry file unavailable, flying without it", zap.String("path", tc.Path), zap.Error(err))
		sinks = append(sinks, telemetry.LostSink{Err: err})
	} else {
		sinks = append(sinks, file)
		closers = append(closers, file.Close)
	}

	if tc.Downlink.Enabled {
		dl := telemetry.NewDownlink(m.logger)
		ln, err := net.Listen("tcp", tc.Downlink.Addr)
		if err != nil {
			// The downlink is optional; fly without it.
			m.logger.Warn("downlink unavailable", zap.String("addr", tc.Downlink.Addr), zap.Error(err))
		} else {
			m.addr = ln.Addr()
			mux := http.NewServeMux()
			mux.Handle("/room", dl)
			srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go dl.Run()
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					m.logger.Warn("downlink server stopped", zap.Error(err))
				}
			}()
			m.logger.Info("downlink listening", zap.Stringer("addr", ln.Addr()))
			sinks = append(sinks, dl)
			closers = append(closers, dl.Close, func() error {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(ctx)
			})
		}
	}

	closeAll := func() error {
		var err error
		for _, c := range closers {
			err = multierr.Append(err, c())
		}
		return err
	}
	return sinks, closeAll
}

// flightcore runs the flight computer: startup on the pad, then the flight
// loop until the vehicle is back on the ground.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/westphae/gorocket/config"
	"github.com/westphae/gorocket/mission"
	"github.com/westphae/gorocket/sim"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		launchAt   float64
	)
	flagSet := pflag.NewFlagSet("flightcore", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "YAML configuration file; built-in defaults when empty")
	flagSet.Float64Var(&launchAt, "sim-launch-at", 10, "seconds after power-up the simulated vehicle lifts off (sim mode)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}

	logger, err := mission.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rig *mission.Rig
	switch cfg.Sensors.Mode {
	case config.SensorModeSim:
		logger.Info("flying a simulated vehicle", zap.Float64("launchAt", launchAt))
		rig = mission.OpenSim(cfg, sim.NewVehicle(sim.Flight(launchAt), cfg.TickPeriod), logger)
	default:
		if rig, err = mission.OpenHardware(cfg, logger); err != nil {
			return err
		}
	}
	defer func() {
		if err := rig.Close(); err != nil {
			logger.Warn("closing devices", zap.Error(err))
		}
	}()

	s, err := mission.New(cfg, rig, mission.WithLogger(logger)).Fly(ctx)
	if err != nil {
		return err
	}
	logger.Info("mission complete",
		zap.Stringer("phase", s.Phase),
		zap.Duration("elapsed", s.Elapsed),
		zap.Uint64("frames", s.Frames),
		zap.Uint64("dropped", s.Dropped))
	return nil
}

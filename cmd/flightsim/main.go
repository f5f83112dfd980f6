// flightsim flies the flight core against a simulated vehicle and board, on
// the pad to touchdown, and records telemetry like a real flight.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
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
		configPath  string
		profilePath string
		outPath     string
		launchAt    float64
		padAltitude float64
		tilt        float64
		seed        int64
		realtime    bool
		quiet       bool
		auxLink     bool
	)
	flagSet := pflag.NewFlagSet("flightsim", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "YAML configuration file; built-in defaults when empty")
	flagSet.StringVarP(&profilePath, "profile", "p", "", "CSV velocity profile (t,velocity[,roll]); a standard flight when empty")
	flagSet.StringVarP(&outPath, "out", "o", "", "telemetry file, overriding the configuration")
	flagSet.Float64Var(&launchAt, "launch-at", 5, "lift-off time of the standard flight, seconds")
	flagSet.Float64Var(&padAltitude, "pad-altitude", 0, "launch pad altitude, meters")
	flagSet.Float64Var(&tilt, "tilt", 0, "vehicle tilt from vertical, degrees")
	flagSet.Int64Var(&seed, "seed", 1, "sensor noise seed")
	flagSet.BoolVar(&realtime, "realtime", false, "pace the loop on the wall clock")
	flagSet.BoolVar(&auxLink, "auxlink", true, "simulate the auxiliary processor handshake")
	flagSet.BoolVarP(&quiet, "quiet", "q", false, "log warnings and errors only")
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
	cfg.Sensors.Mode = config.SensorModeSim
	cfg.AuxLink.Enabled = auxLink
	if outPath != "" {
		cfg.Telemetry.Path = outPath
	}
	if quiet {
		cfg.LogLevel = "warn"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	profile := sim.Flight(launchAt)
	if profilePath != "" {
		f, err := os.Open(profilePath)
		if err != nil {
			return err
		}
		profile, err = sim.ReadProfile(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", profilePath, err)
		}
	}

	logger, err := mission.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	v := sim.NewVehicle(profile, cfg.TickPeriod,
		sim.WithPadAltitude(padAltitude), sim.WithTilt(tilt), sim.WithSeed(seed))
	rig := mission.OpenSim(cfg, v, logger)
	defer rig.Close()

	opts := []func(m *mission.Mission){mission.WithLogger(logger)}
	if !realtime {
		opts = append(opts, mission.WithUnpaced())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := mission.New(cfg, rig, opts...).Fly(ctx)
	if err != nil {
		return err
	}

	at, apogee := profile.Apogee()
	fmt.Printf("Flew %s profile to %s in %s of mission time\n",
		humanize.Ftoa(profile.EndTime()-profile.BeginTime())+" s", s.Phase, s.Elapsed)
	fmt.Printf("Profile apogee %.1f m above the pad at %.2f s\n", apogee, at)
	for _, tr := range s.Transitions {
		fmt.Printf("  %8.2f s  %s -> %s\n", tr.At.Seconds(), tr.From, tr.To)
	}
	fmt.Printf("Recorded %s frames (%s dropped) to %s\n",
		humanize.Comma(int64(s.Frames)), humanize.Comma(int64(s.Dropped)), cfg.Telemetry.Path)
	for _, f := range rig.Devices.Ledger.Faults() {
		logger.Warn("fault", zap.Stringer("subsystem", f.Subsystem), zap.String("diagnostic", f.Diagnostic))
	}
	return nil
}

package mission

import (
	"fmt"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all" // Empty import needed to initialize embd library.
	_ "github.com/kidoman/embd/host/rpi" // Empty import needed to initialize embd library.
	"github.com/westphae/gorocket/actuator"
	"github.com/westphae/gorocket/auxlink"
	"github.com/westphae/gorocket/config"
	"github.com/westphae/gorocket/indicator"
	"github.com/westphae/gorocket/ledger"
	"github.com/westphae/gorocket/sensors"
	"github.com/westphae/gorocket/sensors/bmp280"
	"github.com/westphae/gorocket/sensors/bno055"
	"github.com/westphae/gorocket/sim"
	"github.com/westphae/gorocket/startup"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Rig is the set of devices a mission flies with, real or simulated.
type Rig struct {
	Devices startup.Devices

	// Set for simulated rigs only.
	Vehicle *sim.Vehicle
	Board   *sim.Board
	AuxPeer *sim.AuxPeer

	closers []func() error
}

// Close releases every device in reverse order of opening.
func (r *Rig) Close() error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.closers[i]())
	}
	r.closers = nil
	return err
}

// OpenHardware opens the sensors and pins of the flight board. Pins that fail
// to open are logged and left for startup to record as faults; only a failure
// to bring up the buses themselves is returned.
func OpenHardware(cfg *config.Config, logger *zap.Logger) (*Rig, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := new(Rig)

	if err := embd.InitI2C(); err != nil {
		return nil, fmt.Errorf("initializing I2C: %w", err)
	}
	r.closers = append(r.closers, embd.CloseI2C)
	if err := embd.InitGPIO(); err != nil {
		return nil, multierr.Append(fmt.Errorf("initializing GPIO: %w", err), r.Close())
	}
	r.closers = append(r.closers, embd.CloseGPIO)

	bus := embd.NewI2CBus(cfg.Sensors.I2CBus)
	baro := bmp280.New(bus, cfg.Sensors.BaroAddress)
	r.closers = append(r.closers, baro.Close)
	imu := bno055.New(bus, cfg.Sensors.IMUAddress)
	hub := sensors.NewHub(baro, imu, sensors.WithLogger(logger))

	pins, closePins, err := actuator.OpenPins(cfg.Pyro, cfg.Canards)
	if err != nil {
		logger.Warn("opening actuator pins", zap.Error(err))
	}
	r.closers = append(r.closers, closePins)

	outs, closeOuts, err := indicator.OpenOutputs(cfg.Startup.Indicators)
	if err != nil {
		logger.Warn("opening indicator pins", zap.Error(err))
	}
	r.closers = append(r.closers, closeOuts)

	r.Devices = startup.Devices{
		Hub:        hub,
		Actuator:   actuator.New(pins, actuatorOptions(cfg, logger)...),
		Ledger:     ledger.New(indicatorPins(cfg)),
		Indicators: outs,
	}

	if cfg.AuxLink.Enabled {
		port, err := auxlink.Open(cfg.AuxLink.Port, cfg.AuxLink.BaudRate)
		if err != nil {
			r.Devices.AuxLinkErr = err
		} else {
			r.Devices.AuxLink = port
			r.closers = append(r.closers, port.Close)
		}
	}

	if cfg.Startup.GoPin != 0 {
		pin, err := embd.NewDigitalPin(cfg.Startup.GoPin)
		if err == nil {
			err = pin.SetDirection(embd.In)
		}
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("go signal pin %d: %w", cfg.Startup.GoPin, err), r.Close())
		}
		r.closers = append(r.closers, pin.Close)
		r.Devices.GoSignal = startup.PinSignal{Pin: pin}
	}

	return r, nil
}

// OpenSim wires a simulated vehicle and board. The aux peer answers AOK and
// there is no go signal to wait for.
func OpenSim(cfg *config.Config, v *sim.Vehicle, logger *zap.Logger) *Rig {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Rig{Vehicle: v, Board: sim.NewBoard()}
	r.Devices = startup.Devices{
		Hub:        sensors.NewHub(v.Barometer(), v.IMU(), sensors.WithLogger(logger)),
		Actuator:   actuator.New(r.Board.ActuatorPins(), actuatorOptions(cfg, logger)...),
		Ledger:     ledger.New(indicatorPins(cfg)),
		Indicators: r.Board.IndicatorOutputs(),
	}
	if cfg.AuxLink.Enabled {
		r.AuxPeer = sim.NewAuxPeer(auxlink.AOK)
		r.Devices.AuxLink = r.AuxPeer
	}
	return r
}

func actuatorOptions(cfg *config.Config, logger *zap.Logger) []func(a *actuator.Actuator) {
	opts := []func(a *actuator.Actuator){
		actuator.WithLogger(logger),
		actuator.WithFireDuration(cfg.Pyro.FireDuration),
	}
	if cfg.Canards.Enabled {
		opts = append(opts, actuator.WithCanards(cfg.Canards.Gain, cfg.Canards.LimitDeg))
	}
	return opts
}

// indicatorPins maps the configured indicator pins for fault reporting.
func indicatorPins(cfg *config.Config) map[ledger.Subsystem]int {
	pins := make(map[ledger.Subsystem]int, len(cfg.Startup.Indicators))
	for name, pin := range cfg.Startup.Indicators {
		if s, ok := ledger.ParseSubsystem(name); ok {
			pins[s] = pin
		}
	}
	return pins
}

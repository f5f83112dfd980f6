package actuator

import (
	"fmt"

	"github.com/kidoman/embd"
	"github.com/westphae/gorocket/config"
	"go.uber.org/multierr"
)

// OpenPins opens the GPIO and PWM pins named in the configuration.
// A pin that cannot be opened is left nil so that the channel fails its
// Attach check; the errors are combined in the returned error.
// The caller must have called embd.InitGPIO.
func OpenPins(pc config.PyroConfig, cc config.CanardConfig) (Pins, func() error, error) {
	var (
		pins    Pins
		closers []func() error
		errs    error
	)

	fires := [2]int{pc.Channel1Fire, pc.Channel2Fire}
	senses := [2]int{pc.Channel1Sense, pc.Channel2Sense}
	for i := range fires {
		fire, err := openDigital(fires[i], embd.Out)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s fire pin %d: %w", Channel(i), fires[i], err))
		} else {
			pins.Fire[i] = fire
			closers = append(closers, fire.Close)
		}

		if senses[i] == 0 {
			continue
		}
		sense, err := openDigital(senses[i], embd.In)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s sense pin %d: %w", Channel(i), senses[i], err))
			continue
		}
		pins.Sense[i] = sense
		closers = append(closers, sense.Close)
	}

	if cc.Enabled {
		for i, key := range cc.Pins {
			pwm, err := embd.NewPWMPin(key)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("canard %d pin %s: %w", i, key, err))
				continue
			}
			pins.Canards[i] = pwm
			closers = append(closers, pwm.Close)
		}
	}

	closeAll := func() error {
		var err error
		for _, c := range closers {
			err = multierr.Append(err, c())
		}
		return err
	}
	return pins, closeAll, errs
}

func openDigital(n int, dir embd.Direction) (embd.DigitalPin, error) {
	pin, err := embd.NewDigitalPin(n)
	if err != nil {
		return nil, err
	}
	if err := pin.SetDirection(dir); err != nil {
		return nil, multierr.Append(err, pin.Close())
	}
	return pin, nil
}

package indicator

import (
	"fmt"

	"github.com/kidoman/embd"
	"github.com/westphae/gorocket/ledger"
	"go.uber.org/multierr"
)

// OpenOutputs opens a GPIO output for every named subsystem pin.
// Unknown subsystem names and pins that fail to open are reported in the
// combined error and left out of the result.
func OpenOutputs(pins map[string]int) (map[ledger.Subsystem]Output, func() error, error) {
	var (
		outs    = make(map[ledger.Subsystem]Output, len(pins))
		closers []func() error
		errs    error
	)
	for name, n := range pins {
		s, ok := ledger.ParseSubsystem(name)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("unknown indicator subsystem %q", name))
			continue
		}
		pin, err := embd.NewDigitalPin(n)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("indicator %s pin %d: %w", name, n, err))
			continue
		}
		if err := pin.SetDirection(embd.Out); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("indicator %s pin %d: %w", name, n, multierr.Append(err, pin.Close())))
			continue
		}
		outs[s] = pin
		closers = append(closers, pin.Close)
	}
	closeAll := func() error {
		var err error
		for _, c := range closers {
			err = multierr.Append(err, c())
		}
		return err
	}
	return outs, closeAll, errs
}

// Package indicator shows subsystem status on output pins while the vehicle
// waits on the pad. It runs as a transient task that startup stops before
// the flight loop takes over the outputs.
package indicator

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/westphae/gorocket/ledger"
	"go.uber.org/zap"
)

var (
	ErrNoLights       = errors.New("no indicator lights configured")
	ErrAlreadyStarted = errors.New("indicator task already started")
	ErrJoinTimeout    = errors.New("indicator task did not stop in time")
)

// Output is a digital output pin. embd.DigitalPin satisfies it.
type Output interface {
	Write(val int) error
}

// Light is one subsystem's indicator.
type Light struct {
	Subsystem ledger.Subsystem
	Pin       Output
	Online    bool
}

// Config is the fixed set of lights the task drives. It is built before the
// task starts and never changes afterwards.
type Config struct {
	lights      []Light
	blinkPeriod time.Duration
}

// NewConfig takes the subsystem statuses from snap. Subsystems without an
// output are skipped.
func NewConfig(snap ledger.Snapshot, outputs map[ledger.Subsystem]Output, blinkPeriod time.Duration) Config {
	c := Config{blinkPeriod: blinkPeriod}
	for s, pin := range outputs {
		if pin == nil {
			continue
		}
		c.lights = append(c.lights, Light{Subsystem: s, Pin: pin, Online: snap.Status[s] == ledger.Online})
	}
	sort.Slice(c.lights, func(i, j int) bool { return c.lights[i].Subsystem < c.lights[j].Subsystem })
	return c
}

// Lights returns a copy of the configured lights.
func (c Config) Lights() []Light {
	return append([]Light(nil), c.lights...)
}

// Lower drives every configured pin low and returns the first error.
func (c Config) Lower() error {
	var err error
	for _, l := range c.lights {
		if werr := l.Pin.Write(low); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

const (
	low  = 0
	high = 1
)

// WithLogger sets the logger for the task
func WithLogger(logger *zap.Logger) func(t *Task) {
	return func(t *Task) {
		t.logger = logger.Named("indicator")
	}
}

// WithClock sets the clock driving the blink pattern and join timeout
func WithClock(c clock.Clock) func(t *Task) {
	return func(t *Task) {
		t.clock = c
	}
}

// Task blinks the lights of OFFLINE subsystems and holds ONLINE ones steady.
// It owns its pins from Start until it has stopped.
type Task struct {
	cfg Config

	mu       sync.Mutex
	started  bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	clock  clock.Clock
	logger *zap.Logger
}

func NewTask(cfg Config, options ...func(t *Task)) *Task {
	t := Task{
		cfg:    cfg,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		clock:  clock.New(),
		logger: zap.NewNop(),
	}

	for _, option := range options {
		option(&t)
	}

	return &t
}

// Start launches the task goroutine.
func (t *Task) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrAlreadyStarted
	}
	if len(t.cfg.lights) == 0 {
		return ErrNoLights
	}
	if t.cfg.blinkPeriod <= 0 {
		return errors.New("indicator blink period must be positive")
	}
	t.started = true
	go t.run()
	return nil
}

func (t *Task) run() {
	defer close(t.done)

	ticker := t.clock.Ticker(t.cfg.blinkPeriod)
	defer ticker.Stop()

	on := true
	t.show(on)
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			on = !on
			t.show(on)
		}
	}
}

func (t *Task) show(on bool) {
	for _, l := range t.cfg.lights {
		v := low
		if l.Online || on {
			v = high
		}
		if err := l.Pin.Write(v); err != nil {
			t.logger.Debug("indicator write failed", zap.Stringer("subsystem", l.Subsystem), zap.Error(err))
		}
	}
}

// Stop asks the task to end. It is safe to call more than once.
func (t *Task) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Join waits at most timeout for the task to end. A task that was never
// started has nothing to wait for.
func (t *Task) Join(timeout time.Duration) error {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return nil
	}

	timer := t.clock.Timer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return nil
	case <-timer.C:
		return ErrJoinTimeout
	}
}

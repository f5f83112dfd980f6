// Package actuator drives the two pyro channels and the two canards.
// Every command is checked against the allow-list of the active phase.
package actuator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/westphae/gorocket/phase"
	"go.uber.org/zap"
)

var (
	ErrNotAllowed   = errors.New("command not allowed in this phase")
	ErrNotArmed     = errors.New("pyro channels are not armed")
	ErrNotAttached  = errors.New("output not attached")
	ErrNoContinuity = errors.New("no continuity across pyro channel")
)

// Logic levels, matching embd.Low and embd.High.
const (
	Low  = 0
	High = 1
)

// Output is a digital output pin. embd.DigitalPin satisfies it.
type Output interface {
	Write(val int) error
}

// Input is a digital input pin. embd.DigitalPin satisfies it.
type Input interface {
	Read() (int, error)
}

// Servo is a PWM output. embd.PWMPin satisfies it.
type Servo interface {
	SetPeriod(ns int) error
	SetDuty(ns int) error
}

// Channel selects a pyro channel.
type Channel int

const (
	Pyro1 Channel = iota // drogue
	Pyro2                // main
)

func (c Channel) String() string {
	return fmt.Sprintf("pyro%d", int(c)+1)
}

// Canard PWM timing: 50 Hz frame, 1.5 ms neutral, 0.5 ms per 45°.
const (
	servoPeriodNs  = 20000000
	servoNeutralNs = 1500000
	servoNsPerDeg  = 500000.0 / 45
)

// Pins are the outputs the actuator owns. Nil entries are unattached.
type Pins struct {
	Fire    [2]Output
	Sense   [2]Input
	Canards [2]Servo
}

type pyro struct {
	fire     Output
	sense    Input
	firing   bool
	fired    bool
	firedAt  time.Duration // mission time
	attached bool
}

type canard struct {
	servo Servo
	set   bool
	deg   float64
}

// WithLogger sets the logger for the actuator
func WithLogger(logger *zap.Logger) func(a *Actuator) {
	return func(a *Actuator) {
		a.logger = logger.Named("actuator")
	}
}

// WithFireDuration sets how long a pyro output is held high
func WithFireDuration(d time.Duration) func(a *Actuator) {
	return func(a *Actuator) {
		a.fireDuration = d
	}
}

// WithCanards enables roll-rate tracking with the given proportional gain
// (degrees per °/s) and absolute deflection limit in degrees.
func WithCanards(gain, limitDeg float64) func(a *Actuator) {
	return func(a *Actuator) {
		a.canardsEnabled = true
		a.gain = gain
		a.limitDeg = limitDeg
	}
}

// Actuator owns the pyro and canard outputs during flight.
// It is not safe for concurrent use; the flight loop is its only caller.
type Actuator struct {
	phase   phase.Phase
	armed   bool
	engaged bool

	pyros   [2]pyro
	canards [2]canard

	canardsEnabled bool
	gain, limitDeg float64
	fireDuration   time.Duration
	now            time.Duration // mission time of the current tick

	logger *zap.Logger
}

// New returns an actuator around pins. Nothing is written until Attach.
func New(pins Pins, options ...func(a *Actuator)) *Actuator {
	a := Actuator{
		fireDuration: time.Second,
		logger:       zap.NewNop(),
	}
	for i := range a.pyros {
		a.pyros[i].fire = pins.Fire[i]
		a.pyros[i].sense = pins.Sense[i]
	}
	for i := range a.canards {
		a.canards[i].servo = pins.Canards[i]
	}

	for _, option := range options {
		option(&a)
	}

	return &a
}

// Attach drives the channel's fire output low and checks continuity across
// the igniter. A channel with no sense input is assumed continuous.
func (a *Actuator) Attach(ch Channel) error {
	p, err := a.pyro(ch)
	if err != nil {
		return err
	}
	if p.fire == nil {
		return fmt.Errorf("%s fire output: %w", ch, ErrNotAttached)
	}
	if err := p.fire.Write(Low); err != nil {
		return fmt.Errorf("%s fire output: %w", ch, err)
	}
	p.attached = true

	if p.sense == nil {
		return nil
	}
	v, err := p.sense.Read()
	if err != nil {
		return fmt.Errorf("%s continuity sense: %w", ch, err)
	}
	if v != High {
		return fmt.Errorf("%s: %w", ch, ErrNoContinuity)
	}
	return nil
}

// AttachCanards sets the PWM frame of both canard drives and centres them.
func (a *Actuator) AttachCanards() error {
	if !a.canardsEnabled {
		return nil
	}
	for i := range a.canards {
		s := a.canards[i].servo
		if s == nil {
			return fmt.Errorf("canard %d: %w", i, ErrNotAttached)
		}
		if err := s.SetPeriod(servoPeriodNs); err != nil {
			return fmt.Errorf("canard %d period: %w", i, err)
		}
		if err := a.writeCanard(i, 0); err != nil {
			return err
		}
	}
	return nil
}

// Advance sets the mission time of the current tick. Fire pulses are timed
// against it, so a replayed flight actuates exactly like a paced one.
func (a *Actuator) Advance(elapsed time.Duration) {
	a.now = elapsed
}

// Enter records the new active phase. Leaving CoastWithControl stows the canards.
func (a *Actuator) Enter(p phase.Phase) {
	a.phase = p
	if p != phase.CoastWithControl && a.engaged {
		a.engaged = false
		a.stow()
	}
}

// Execute carries out the entry action of a phase.
func (a *Actuator) Execute(action phase.Action) error {
	switch action {
	case phase.ActionNone:
		return nil
	case phase.ActionArmPyros:
		return a.Arm()
	case phase.ActionStowCanards:
		a.engaged = false
		return a.stow()
	case phase.ActionEngageCanards:
		if a.phase != phase.CoastWithControl {
			return fmt.Errorf("engage canards in %s: %w", a.phase, ErrNotAllowed)
		}
		a.engaged = a.canardsEnabled
		return nil
	case phase.ActionFireDrogue:
		return a.FirePyro(Pyro1)
	case phase.ActionFireMain:
		return a.FirePyro(Pyro2)
	case phase.ActionSafeAll:
		return a.Safe()
	}
	return fmt.Errorf("unknown action %s", action)
}

// Arm enables the pyro channels.
func (a *Actuator) Arm() error {
	if a.phase < phase.PoweredFlight || a.phase >= phase.Concluded {
		return fmt.Errorf("arm in %s: %w", a.phase, ErrNotAllowed)
	}
	if !a.armed {
		a.armed = true
		a.logger.Info("pyro channels armed", zap.Stringer("phase", a.phase))
	}
	return nil
}

// Armed reports whether the pyro channels are armed.
func (a *Actuator) Armed() bool {
	return a.armed
}

// FirePyro drives a channel's fire output high. Pyro1 may fire only in
// DrogueDescent and Pyro2 only in MainDescent. Firing a channel that has
// already fired is a no-op.
func (a *Actuator) FirePyro(ch Channel) error {
	p, err := a.pyro(ch)
	if err != nil {
		return err
	}
	if !(ch == Pyro1 && a.phase == phase.DrogueDescent) && !(ch == Pyro2 && a.phase == phase.MainDescent) {
		return fmt.Errorf("fire %s in %s: %w", ch, a.phase, ErrNotAllowed)
	}
	if !a.armed {
		return fmt.Errorf("fire %s: %w", ch, ErrNotArmed)
	}
	if p.fired {
		return nil
	}
	if p.fire == nil {
		return fmt.Errorf("fire %s: %w", ch, ErrNotAttached)
	}
	if err := p.fire.Write(High); err != nil {
		return fmt.Errorf("fire %s: %w", ch, err)
	}
	p.fired, p.firing, p.firedAt = true, true, a.now
	a.logger.Info("pyro fired", zap.Stringer("channel", ch), zap.Stringer("phase", a.phase), zap.Duration("at", a.now))
	return nil
}

// Fired reports whether ch has been fired.
func (a *Actuator) Fired(ch Channel) bool {
	p, err := a.pyro(ch)
	return err == nil && p.fired
}

// Release drops any fire output that has been high for the fire duration of
// mission time. The flight loop calls it every tick after Advance.
func (a *Actuator) Release() error {
	var err error
	for i := range a.pyros {
		p := &a.pyros[i]
		if !p.firing || a.now-p.firedAt < a.fireDuration {
			continue
		}
		if werr := p.fire.Write(Low); werr != nil {
			err = fmt.Errorf("release %s: %w", Channel(i), werr)
			continue
		}
		p.firing = false
	}
	return err
}

// SetCanard commands canard i to deg degrees, clamped to the deflection
// limit. Only allowed in CoastWithControl. Repeating a position is a no-op.
func (a *Actuator) SetCanard(i int, deg float64) error {
	if i < 0 || i >= len(a.canards) {
		return fmt.Errorf("canard %d does not exist", i)
	}
	if a.phase != phase.CoastWithControl {
		return fmt.Errorf("set canard %d in %s: %w", i, a.phase, ErrNotAllowed)
	}
	if !a.canardsEnabled {
		return nil
	}
	return a.writeCanard(i, a.clamp(deg))
}

// Canard returns the last commanded deflection of canard i.
func (a *Actuator) Canard(i int) float64 {
	if i < 0 || i >= len(a.canards) {
		return 0
	}
	return a.canards[i].deg
}

// Track counters the roll rate (°/s) with opposite deflection of the two
// canards. It does nothing unless the canards are engaged.
func (a *Actuator) Track(rollRate float64) error {
	if !a.engaged || a.phase != phase.CoastWithControl {
		return nil
	}
	cmd := a.clamp(-a.gain * rollRate)
	if err := a.SetCanard(0, cmd); err != nil {
		return err
	}
	return a.SetCanard(1, -cmd)
}

// Engaged reports whether the canards are tracking.
func (a *Actuator) Engaged() bool {
	return a.engaged
}

// Safe disarms, drives both fire outputs low and stows the canards.
func (a *Actuator) Safe() error {
	a.armed = false
	a.engaged = false
	var err error
	for i := range a.pyros {
		p := &a.pyros[i]
		if p.fire == nil || !p.attached {
			continue
		}
		if werr := p.fire.Write(Low); werr != nil {
			err = fmt.Errorf("safe %s: %w", Channel(i), werr)
		}
		p.firing = false
	}
	if serr := a.stow(); serr != nil && err == nil {
		err = serr
	}
	return err
}

func (a *Actuator) stow() error {
	if !a.canardsEnabled {
		return nil
	}
	var err error
	for i := range a.canards {
		if a.canards[i].servo == nil {
			continue
		}
		if werr := a.writeCanard(i, 0); werr != nil {
			err = werr
		}
	}
	return err
}

func (a *Actuator) writeCanard(i int, deg float64) error {
	c := &a.canards[i]
	if c.set && c.deg == deg {
		return nil
	}
	if c.servo == nil {
		return fmt.Errorf("canard %d: %w", i, ErrNotAttached)
	}
	if err := c.servo.SetDuty(servoNeutralNs + int(math.Round(deg*servoNsPerDeg))); err != nil {
		return fmt.Errorf("canard %d: %w", i, err)
	}
	c.set, c.deg = true, deg
	return nil
}

func (a *Actuator) clamp(deg float64) float64 {
	return math.Max(-a.limitDeg, math.Min(a.limitDeg, deg))
}

func (a *Actuator) pyro(ch Channel) (*pyro, error) {
	if ch != Pyro1 && ch != Pyro2 {
		return nil, fmt.Errorf("pyro channel %d does not exist", int(ch))
	}
	return &a.pyros[ch], nil
}

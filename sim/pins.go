package sim

import (
	"sync"

	"github.com/westphae/gorocket/actuator"
	"github.com/westphae/gorocket/indicator"
	"github.com/westphae/gorocket/ledger"
)

// Pin is a simulated digital pin. Reads return the last level written, or
// the initial level.
type Pin struct {
	mu     sync.Mutex
	level  int
	writes int
	rises  int
}

// NewPin returns a pin reading level until it is written.
func NewPin(level int) *Pin {
	return &Pin{level: level}
}

func (p *Pin) Write(val int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if val != 0 && p.level == 0 {
		p.rises++
	}
	p.level = val
	p.writes++
	return nil
}

func (p *Pin) Read() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, nil
}

// Rises counts low to high edges.
func (p *Pin) Rises() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rises
}

// Writes counts every write.
func (p *Pin) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// Servo is a simulated PWM output.
type Servo struct {
	mu           sync.Mutex
	period, duty int
}

func (s *Servo) SetPeriod(ns int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.period = ns
	return nil
}

func (s *Servo) SetDuty(ns int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duty = ns
	return nil
}

// Duty returns the last duty cycle, ns.
func (s *Servo) Duty() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duty
}

// Board is a full set of simulated outputs: both pyro channels with
// continuity, both canards and one indicator per subsystem.
type Board struct {
	Fire       [2]*Pin
	Sense      [2]*Pin
	Canards    [2]*Servo
	Indicators map[ledger.Subsystem]*Pin
}

// NewBoard returns a board with igniters connected.
func NewBoard() *Board {
	b := Board{Indicators: make(map[ledger.Subsystem]*Pin)}
	for i := range b.Fire {
		b.Fire[i] = NewPin(actuator.Low)
		b.Sense[i] = NewPin(actuator.High)
		b.Canards[i] = &Servo{}
	}
	for _, s := range ledger.Subsystems {
		b.Indicators[s] = NewPin(0)
	}
	return &b
}

// ActuatorPins returns the pins in the form the actuator takes them.
func (b *Board) ActuatorPins() actuator.Pins {
	var pins actuator.Pins
	for i := range b.Fire {
		pins.Fire[i] = b.Fire[i]
		pins.Sense[i] = b.Sense[i]
		pins.Canards[i] = b.Canards[i]
	}
	return pins
}

// IndicatorOutputs returns the indicator pins keyed by subsystem.
func (b *Board) IndicatorOutputs() map[ledger.Subsystem]indicator.Output {
	outs := make(map[ledger.Subsystem]indicator.Output, len(b.Indicators))
	for s, p := range b.Indicators {
		outs[s] = p
	}
	return outs
}

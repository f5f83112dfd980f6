// Package ledger tracks the ONLINE/OFFLINE state of every subsystem and the
// faults recorded against them.
package ledger

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

type Status uint8

const (
	Offline Status = iota
	Online
)

func (s Status) String() string {
	if s == Online {
		return "ONLINE"
	}
	return "OFFLINE"
}

type Subsystem uint8

const (
	Barometer Subsystem = iota
	IMU
	Pyro1
	Pyro2
	AuxLink
	Estimator
	numSubsystems
)

// Subsystems lists every tracked subsystem in ledger order.
var Subsystems = [numSubsystems]Subsystem{Barometer, IMU, Pyro1, Pyro2, AuxLink, Estimator}

// critical subsystems gate AllGo. AuxLink and Estimator are tracked only.
var critical = [...]Subsystem{Barometer, IMU, Pyro1, Pyro2}

var names = [numSubsystems]string{"barometer", "imu", "pyro1", "pyro2", "auxlink", "estimator"}

var diagnostics = [numSubsystems]string{"BARO_FAULT", "IMU_FAULT", "PYRO1_FAULT", "PYRO2_FAULT", "AUX_FAULT", "GAIN_FAULT"}

func (s Subsystem) String() string {
	if s < numSubsystems {
		return names[s]
	}
	return fmt.Sprintf("subsystem(%d)", uint8(s))
}

// Diagnostic is the stable identifier recorded with a fault of this subsystem.
func (s Subsystem) Diagnostic() string {
	if s < numSubsystems {
		return diagnostics[s]
	}
	return "UNKNOWN_FAULT"
}

// ParseSubsystem maps a configuration name onto a Subsystem.
func ParseSubsystem(name string) (Subsystem, bool) {
	for i, n := range names {
		if n == name {
			return Subsystem(i), true
		}
	}
	return 0, false
}

// Fault is one failed outcome reported against a subsystem.
type Fault struct {
	Subsystem  Subsystem
	Diagnostic string
	Pin        int // Indicator pin, 0 if none is mapped
	Err        error
}

func (f Fault) Error() string {
	return fmt.Sprintf("%s (%s): %v", f.Subsystem, f.Diagnostic, f.Err)
}

func (f Fault) Unwrap() error {
	return f.Err
}

// Snapshot is an immutable copy of the ledger state.
type Snapshot struct {
	Status [numSubsystems]Status
	Pins   [numSubsystems]int
	Faults int
}

// AllGo reports whether every mission-critical subsystem was ONLINE at snapshot time.
func (s Snapshot) AllGo() bool {
	for _, c := range critical {
		if s.Status[c] != Online {
			return false
		}
	}
	return true
}

// Mask packs the statuses into a byte, bit i set when Subsystems[i] is ONLINE.
func (s Snapshot) Mask() byte {
	var m byte
	for i, st := range s.Status {
		if st == Online {
			m |= 1 << uint(i)
		}
	}
	return m
}

// Ledger is the status record shared by startup, the indicator and telemetry.
type Ledger struct {
	mu     sync.RWMutex
	status [numSubsystems]Status
	pins   [numSubsystems]int
	faults []Fault
}

// New returns a ledger with every subsystem OFFLINE. pins maps subsystems to
// the indicator pins that show their state.
func New(pins map[Subsystem]int) *Ledger {
	l := new(Ledger)
	for s, p := range pins {
		if s < numSubsystems {
			l.pins[s] = p
		}
	}
	return l
}

// Report records the outcome of bringing up (or checking) a subsystem.
// A nil err marks it ONLINE; anything else marks it OFFLINE and records a fault.
func (l *Ledger) Report(s Subsystem, err error) {
	if s >= numSubsystems {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		l.status[s] = Online
		return
	}
	l.status[s] = Offline
	l.faults = append(l.faults, Fault{
		Subsystem:  s,
		Diagnostic: s.Diagnostic(),
		Pin:        l.pins[s],
		Err:        err,
	})
}

// Status returns the current status of s.
func (l *Ledger) Status(s Subsystem) Status {
	if s >= numSubsystems {
		return Offline
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status[s]
}

// Pin returns the indicator pin mapped to s.
func (l *Ledger) Pin(s Subsystem) int {
	if s >= numSubsystems {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pins[s]
}

// AllGo is true iff the barometer, inertial unit and both pyro channels are ONLINE.
func (l *Ledger) AllGo() bool {
	return l.Snapshot().AllGo()
}

// Snapshot copies the current state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{Status: l.status, Pins: l.pins, Faults: len(l.faults)}
}

// Faults returns the recorded faults in report order.
func (l *Ledger) Faults() []Fault {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Fault(nil), l.faults...)
}

// Err combines every recorded fault, or returns nil when there are none.
func (l *Ledger) Err() error {
	var err error
	for _, f := range l.Faults() {
		err = multierr.Append(err, f)
	}
	return err
}

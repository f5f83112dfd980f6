// Package sim provides a simulated vehicle for bench runs of the flight core.
// A flight is described by a piecewise-linear velocity profile; simulated
// barometer and inertial unit sample it once per tick.
package sim

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

var (
	ErrOutOfRange = errors.New("requested time is outside of profile")
	ErrBadProfile = errors.New("invalid profile")
)

// Knot is one breakpoint of a profile. Velocity and roll rate are linear
// between knots.
type Knot struct {
	T        float64 // s
	Velocity float64 // m/s, up positive
	RollRate float64 // °/s about the body Z axis
}

// State is the true vehicle state at a point in time.
type State struct {
	T            float64
	Altitude     float64 // m above the launchpad
	Velocity     float64
	Acceleration float64 // m/s², gravity removed
	RollRate     float64
	Roll         float64 // °
}

// Profile is a flight defined by piecewise-linear interpolation.
type Profile struct {
	knots []Knot
	t     []float64
	alt   []float64 // altitude at each knot
	roll  []float64 // roll angle at each knot
}

// NewProfile checks that the knot times increase and integrates the
// altitude and roll angle at every knot.
func NewProfile(knots []Knot) (*Profile, error) {
	if len(knots) < 2 {
		return nil, fmt.Errorf("%w: need at least two knots, got %d", ErrBadProfile, len(knots))
	}
	p := Profile{
		knots: append([]Knot(nil), knots...),
		t:     make([]float64, len(knots)),
		alt:   make([]float64, len(knots)),
		roll:  make([]float64, len(knots)),
	}
	for i, k := range knots {
		p.t[i] = k.T
		if i == 0 {
			continue
		}
		h := k.T - knots[i-1].T
		if !(h > 0) {
			return nil, fmt.Errorf("%w: knot %d at %gs does not follow %gs", ErrBadProfile, i, k.T, knots[i-1].T)
		}
		p.alt[i] = p.alt[i-1] + (knots[i-1].Velocity+k.Velocity)/2*h
		p.roll[i] = p.roll[i-1] + (knots[i-1].RollRate+k.RollRate)/2*h
	}
	return &p, nil
}

// BeginTime returns the time stamp when the profile begins
func (p *Profile) BeginTime() float64 {
	return p.t[0]
}

// EndTime returns the time stamp of the last knot
func (p *Profile) EndTime() float64 {
	return p.t[len(p.t)-1]
}

// Knots returns a copy of the breakpoints.
func (p *Profile) Knots() []Knot {
	return append([]Knot(nil), p.knots...)
}

// Interpolate the true state at time t.
func (p *Profile) Interpolate(t float64) (State, error) {
	if t < p.t[0] || t > p.t[len(p.t)-1] {
		return State{}, ErrOutOfRange
	}
	ix := 0
	if t > p.t[0] {
		ix = sort.SearchFloat64s(p.t, t) - 1
	}

	k0, k1 := p.knots[ix], p.knots[ix+1]
	ddt := k1.T - k0.T
	tau := t - k0.T
	a := (k1.Velocity - k0.Velocity) / ddt
	r := (k1.RollRate - k0.RollRate) / ddt

	return State{
		T:            t,
		Altitude:     p.alt[ix] + k0.Velocity*tau + a*tau*tau/2,
		Velocity:     k0.Velocity + a*tau,
		Acceleration: a,
		RollRate:     k0.RollRate + r*tau,
		Roll:         p.roll[ix] + k0.RollRate*tau + r*tau*tau/2,
	}, nil
}

// Apogee returns the highest knot altitude and its time. Velocity is linear
// between knots, so the peak always lies on a knot where it changes sign.
func (p *Profile) Apogee() (t, altitude float64) {
	for i, a := range p.alt {
		if a > altitude {
			t, altitude = p.t[i], a
		}
	}
	return t, altitude
}

// Flight returns a vertical flight that sits on the pad for launchAt seconds,
// burns for 2.5 s to 250 m/s and coasts to apogee with a slow roll. It then
// descends at 30 m/s under drogue and at 6 m/s under main from 250 m, lands
// and rests for 30 s.
func Flight(launchAt float64) *Profile {
	const (
		burn, burnout   = 2.5, 250.0
		decel           = 10.0
		spin            = 20.0
		drogue, main    = 30.0, 6.0
		deploy          = 3.0
		mainAltitude    = 250.0
		touchdown, rest = 0.5, 30.0
	)

	knots := []Knot{{T: 0}}
	if launchAt > 0 {
		knots = append(knots, Knot{T: launchAt})
	}
	alt := 0.0
	add := func(dt, v, roll float64) {
		last := knots[len(knots)-1]
		alt += (last.Velocity + v) / 2 * dt
		knots = append(knots, Knot{T: last.T + dt, Velocity: v, RollRate: roll})
	}

	add(burn, burnout, spin)
	add(burnout/decel, 0, 0)
	add(deploy, -drogue, 0)
	add((alt-mainAltitude)/drogue, -drogue, 0)
	add(deploy, -main, 0)
	add((alt-main*touchdown/2)/main, -main, 0)
	add(touchdown, 0, 0)
	add(rest, 0, 0)

	p, err := NewProfile(knots)
	if err != nil {
		panic(err)
	}
	return p
}

// ReadProfile reads knots from CSV with a header naming the columns t,
// velocity and, optionally, roll. Other columns are ignored.
func ReadProfile(r io.Reader) (*Profile, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	rec, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading profile header: %w", err)
	}
	fields := make(map[string]int, len(rec))
	for i, k := range rec {
		fields[k] = i
	}
	ti, okT := fields["t"]
	vi, okV := fields["velocity"]
	if !okT || !okV {
		return nil, fmt.Errorf("%w: header needs t and velocity columns", ErrBadProfile)
	}
	ri, okR := fields["roll"]

	var knots []Knot
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading profile: %w", err)
		}
		var k Knot
		if k.T, err = strconv.ParseFloat(rec[ti], 64); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadProfile, line, err)
		}
		if k.Velocity, err = strconv.ParseFloat(rec[vi], 64); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadProfile, line, err)
		}
		if okR {
			if k.RollRate, err = strconv.ParseFloat(rec[ri], 64); err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrBadProfile, line, err)
			}
		}
		knots = append(knots, k)
	}
	return NewProfile(knots)
}

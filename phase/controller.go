package phase

import (
	"math"
	"time"

	"github.com/westphae/gorocket/config"
	"github.com/westphae/gorocket/estimator"
)

// Thresholds are the calibration values of the transition triggers.
type Thresholds struct {
	LaunchAccel    float64       // m/s² above which launch is suspected
	LaunchDwell    time.Duration // how long LaunchAccel must be exceeded
	BurnoutAccel   float64       // m/s² below which the motor is out
	ControlDelay   time.Duration // time in Coast before canards engage
	MainAltitude   float64       // m above the pad at which the main deploys
	SettleVelocity float64       // m/s below which the vehicle is landed
	SettleDwell    time.Duration // how long speed must stay below SettleVelocity
}

// ThresholdsFrom takes the thresholds from the phase section of the configuration.
func ThresholdsFrom(pc config.PhaseConfig) Thresholds {
	return Thresholds{
		LaunchAccel:    pc.LaunchAccel,
		LaunchDwell:    pc.LaunchDwell,
		BurnoutAccel:   pc.BurnoutAccel,
		ControlDelay:   pc.ControlDelay,
		MainAltitude:   pc.MainAltitude,
		SettleVelocity: pc.SettleVelocity,
		SettleDwell:    pc.SettleDwell,
	}
}

// Transition records one phase change.
type Transition struct {
	From, To Phase
	At       time.Duration // mission time of the tick that fired
	Action   Action
}

// Controller is the flight phase state machine.
// Phases only ever advance one step at a time, so each is entered at most once.
type Controller struct {
	th    Thresholds
	phase Phase

	dwelling   bool
	dwellStart time.Duration
	prevVel    float64 // filtered velocity of the previous call
	enteredAt  time.Duration

	history []Transition
}

// NewController returns a controller in Prelaunch.
func NewController(th Thresholds) *Controller {
	return &Controller{
		th:      th,
		history: make([]Transition, 0, int(numPhases)-1),
	}
}

// Phase returns the active phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// History returns the transitions taken so far, oldest first.
func (c *Controller) History() []Transition {
	return append([]Transition(nil), c.history...)
}

// Evaluate checks the trigger of the active phase against the estimate at
// mission time elapsed. It fires at most one transition per call and returns
// it with true, or the zero Transition and false.
func (c *Controller) Evaluate(est estimator.Estimate, elapsed time.Duration) (Transition, bool) {
	var fire bool
	switch c.phase {
	case Prelaunch:
		fire = c.sustained(est.Acceleration > c.th.LaunchAccel, elapsed, c.th.LaunchDwell)
	case PoweredFlight:
		fire = est.Acceleration < c.th.BurnoutAccel
	case Coast:
		fire = elapsed-c.enteredAt >= c.th.ControlDelay
	case CoastWithControl:
		// Apogee: velocity changes sign from one tick to the next.
		fire = c.prevVel > 0 && est.Velocity < 0
	case DrogueDescent:
		fire = est.Altitude < c.th.MainAltitude
	case MainDescent:
		fire = c.sustained(math.Abs(est.Velocity) < c.th.SettleVelocity, elapsed, c.th.SettleDwell)
	}
	c.prevVel = est.Velocity

	if !fire {
		return Transition{}, false
	}
	return c.advance(elapsed), true
}

// sustained tracks how long cond has held continuously and reports whether
// that is at least dwell.
func (c *Controller) sustained(cond bool, elapsed, dwell time.Duration) bool {
	if !cond {
		c.dwelling = false
		return false
	}
	if !c.dwelling {
		c.dwelling = true
		c.dwellStart = elapsed
	}
	return elapsed-c.dwellStart >= dwell
}

func (c *Controller) advance(elapsed time.Duration) Transition {
	tr := Transition{
		From:   c.phase,
		To:     c.phase + 1,
		At:     elapsed,
		Action: EntryAction(c.phase + 1),
	}
	c.phase = tr.To
	c.enteredAt = elapsed
	c.dwelling = false
	c.history = append(c.history, tr)
	return tr
}

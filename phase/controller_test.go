package phase

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/westphae/gorocket/config"
	"github.com/westphae/gorocket/estimator"
)

const tick = 10 * time.Millisecond

var testThresholds = Thresholds{
	LaunchAccel:    20,
	LaunchDwell:    50 * time.Millisecond,
	BurnoutAccel:   -2,
	ControlDelay:   time.Second,
	MainAltitude:   300,
	SettleVelocity: 1,
	SettleDwell:    2 * time.Second,
}

func at(i int) time.Duration { return time.Duration(i) * tick }

func TestLaunchDetectedOnceAfterDwell(t *testing.T) {
	c := NewController(testThresholds)

	accel := func(i int) float64 {
		switch {
		case i >= 3 && i <= 5: // 30 ms spike, too short
			return 30
		case i >= 10:
			return 30
		}
		return 0
	}

	var fired []int
	for i := 0; i < 40; i++ {
		tr, ok := c.Evaluate(estimator.Estimate{Acceleration: accel(i)}, at(i))
		if ok {
			fired = append(fired, i)
			assert.Equal(t, Prelaunch, tr.From)
			assert.Equal(t, PoweredFlight, tr.To)
			assert.Equal(t, ActionArmPyros, tr.Action)
			assert.Equal(t, at(i), tr.At)
		}
	}
	// Spike starts at tick 10; 50 ms later is tick 15.
	assert.Equal(t, []int{15}, fired)
	assert.Equal(t, PoweredFlight, c.Phase())
}

func TestZeroDwellFiresOnFirstTick(t *testing.T) {
	th := testThresholds
	th.LaunchDwell = 0
	c := NewController(th)
	_, ok := c.Evaluate(estimator.Estimate{Acceleration: 21}, 0)
	assert.True(t, ok)
}

// fly drives the controller through a scripted sequence and returns the tick
// index of every transition.
func fly(t *testing.T, c *Controller, ests []estimator.Estimate) map[Phase]int {
	t.Helper()
	entered := map[Phase]int{}
	for i, e := range ests {
		if tr, ok := c.Evaluate(e, at(i)); ok {
			_, dup := entered[tr.To]
			require.False(t, dup, "%s entered twice", tr.To)
			entered[tr.To] = i
		}
	}
	return entered
}

func TestFullSequence(t *testing.T) {
	var ests []estimator.Estimate
	add := func(n int, e estimator.Estimate) {
		for i := 0; i < n; i++ {
			ests = append(ests, e)
		}
	}
	add(10, estimator.Estimate{})
	add(20, estimator.Estimate{Acceleration: 50, Velocity: 20})
	add(150, estimator.Estimate{Acceleration: -12, Velocity: 80, Altitude: 900})
	add(5, estimator.Estimate{Velocity: -3, Altitude: 1200})
	add(10, estimator.Estimate{Velocity: -20, Altitude: 250})
	add(300, estimator.Estimate{Velocity: -0.2, Altitude: 0})

	c := NewController(testThresholds)
	entered := fly(t, c, ests)

	assert.Equal(t, 15, entered[PoweredFlight])
	assert.Equal(t, 30, entered[Coast])
	assert.Equal(t, 130, entered[CoastWithControl], "one second after burnout")
	assert.Equal(t, 180, entered[DrogueDescent])
	assert.Equal(t, 185, entered[MainDescent])
	assert.Equal(t, 395, entered[Concluded], "two seconds after speed settled at tick 195")
	assert.Equal(t, Concluded, c.Phase())

	h := c.History()
	require.Len(t, h, 6)
	wantActions := []Action{ActionArmPyros, ActionStowCanards, ActionEngageCanards, ActionFireDrogue, ActionFireMain, ActionSafeAll}
	for i, tr := range h {
		assert.Equal(t, Phase(i), tr.From)
		assert.Equal(t, Phase(i+1), tr.To)
		assert.Equal(t, wantActions[i], tr.Action)
	}
}

func TestOneTransitionPerTick(t *testing.T) {
	th := testThresholds
	th.LaunchDwell = 0
	th.ControlDelay = 0
	c := NewController(th)

	// Satisfies every trigger at once.
	e := estimator.Estimate{Acceleration: 100, Velocity: 0.5, Altitude: 0}
	_, ok := c.Evaluate(e, 0)
	require.True(t, ok)
	assert.Equal(t, PoweredFlight, c.Phase())

	up := estimator.Estimate{Acceleration: -100, Velocity: 0.5, Altitude: 0}
	down := estimator.Estimate{Acceleration: -100, Velocity: -0.5, Altitude: 0}
	for i, step := range []struct {
		e    estimator.Estimate
		want Phase
	}{
		{up, Coast},
		{up, CoastWithControl},
		{down, DrogueDescent},
		{down, MainDescent},
	} {
		tr, ok := c.Evaluate(step.e, at(i+1))
		require.True(t, ok)
		assert.Equal(t, step.want, tr.To)
	}
}

func TestApogeeIsSignChange(t *testing.T) {
	th := testThresholds
	th.LaunchDwell = 0
	th.ControlDelay = 0
	c := NewController(th)
	for i, e := range []estimator.Estimate{
		{Acceleration: 30},  // launch
		{Acceleration: -10}, // burnout
		{},                  // control
	} {
		_, ok := c.Evaluate(e, at(i))
		require.True(t, ok)
	}
	require.Equal(t, CoastWithControl, c.Phase())

	// Only a positive velocity on the tick right before a negative one is an
	// apogee; an earlier climb does not count.
	for i, v := range []float64{-1, 0.1, 0, -0.1, -0.2} {
		_, ok := c.Evaluate(estimator.Estimate{Velocity: v}, at(3+i))
		assert.False(t, ok, "velocity %g", v)
	}
	_, ok := c.Evaluate(estimator.Estimate{Velocity: 0.2}, at(8))
	assert.False(t, ok)
	tr, ok := c.Evaluate(estimator.Estimate{Velocity: -0.1}, at(9))
	assert.True(t, ok)
	assert.Equal(t, ActionFireDrogue, tr.Action)
}

func TestSettleDwellResets(t *testing.T) {
	c := NewController(testThresholds)
	c.phase = MainDescent

	i := 0
	step := func(v float64, n int) bool {
		fired := false
		for k := 0; k < n; k++ {
			if _, ok := c.Evaluate(estimator.Estimate{Velocity: v}, at(i)); ok {
				fired = true
			}
			i++
		}
		return fired
	}
	assert.False(t, step(-0.5, 150), "1.5 s is short of the dwell")
	assert.False(t, step(-5, 1), "a gust resets the dwell")
	assert.False(t, step(0.5, 200))
	assert.True(t, step(0.5, 1))
	assert.Equal(t, Concluded, c.Phase())
}

func TestConcludedIsTerminal(t *testing.T) {
	c := NewController(testThresholds)
	c.phase = Concluded
	for i := 0; i < 100; i++ {
		_, ok := c.Evaluate(estimator.Estimate{Acceleration: 100, Velocity: -50}, at(i))
		assert.False(t, ok)
	}
}

func TestMonotonicUnderRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	th := testThresholds
	th.LaunchDwell = 20 * time.Millisecond
	th.ControlDelay = 100 * time.Millisecond
	th.SettleDwell = 30 * time.Millisecond

	for run := 0; run < 200; run++ {
		c := NewController(th)
		seen := map[Phase]bool{Prelaunch: true}
		last := Prelaunch
		for i := 0; i < 2000; i++ {
			e := estimator.Estimate{
				Altitude:     rng.Float64()*2000 - 100,
				Velocity:     rng.NormFloat64() * 50,
				Acceleration: rng.NormFloat64() * 30,
			}
			tr, ok := c.Evaluate(e, at(i))
			if !ok {
				require.Equal(t, last, c.Phase())
				continue
			}
			require.Equal(t, last, tr.From)
			require.Equal(t, last+1, tr.To)
			require.False(t, seen[tr.To], "%s revisited", tr.To)
			seen[tr.To] = true
			last = tr.To
		}
	}
}

func TestLabels(t *testing.T) {
	want := []string{"PRELTOFF", "PWFLIGHT", "CRUISING", "CRSCANRD", "FALLDROG", "FALLMAIN", "CONCLUDE"}
	for i, w := range want {
		assert.Equal(t, w, Phase(i).Label())
		assert.True(t, Phase(i).Valid())
	}
	assert.Equal(t, "UNKNOWN", Phase(9).Label())
	assert.False(t, Phase(9).Valid())
	assert.Equal(t, "COAST_WITH_CONTROL", CoastWithControl.String())
	assert.Equal(t, ActionNone, EntryAction(Phase(200)))
}

func TestThresholdsFromDefaultConfig(t *testing.T) {
	pc := config.Default().Phase
	pc.SettleDwell = 2 * time.Second
	assert.Equal(t, testThresholds, ThresholdsFrom(pc))
}

package actuator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/westphae/gorocket/phase"
)

type fakePin struct {
	writes []int
	level  int
	err    error
}

func (p *fakePin) Write(val int) error {
	if p.err != nil {
		return p.err
	}
	p.writes = append(p.writes, val)
	return nil
}

func (p *fakePin) Read() (int, error) {
	return p.level, p.err
}

type fakeServo struct {
	period int
	duties []int
}

func (s *fakeServo) SetPeriod(ns int) error { s.period = ns; return nil }
func (s *fakeServo) SetDuty(ns int) error   { s.duties = append(s.duties, ns); return nil }

type rig struct {
	fire   [2]*fakePin
	sense  [2]*fakePin
	servos [2]*fakeServo
	act    *Actuator
}

func newRig(canards bool) *rig {
	r := &rig{}
	var pins Pins
	for i := 0; i < 2; i++ {
		r.fire[i] = &fakePin{}
		r.sense[i] = &fakePin{level: High}
		r.servos[i] = &fakeServo{}
		pins.Fire[i] = r.fire[i]
		pins.Sense[i] = r.sense[i]
		pins.Canards[i] = r.servos[i]
	}
	options := []func(*Actuator){WithFireDuration(500 * time.Millisecond)}
	if canards {
		options = append(options, WithCanards(0.1, 10))
	}
	r.act = New(pins, options...)
	return r
}

func (r *rig) enter(t *testing.T, p phase.Phase) {
	t.Helper()
	r.act.Enter(p)
	require.NoError(t, r.act.Execute(phase.EntryAction(p)))
}

func TestAttachChecksContinuity(t *testing.T) {
	r := newRig(false)
	r.sense[1].level = Low

	assert.NoError(t, r.act.Attach(Pyro1))
	assert.ErrorIs(t, r.act.Attach(Pyro2), ErrNoContinuity)
	assert.Equal(t, []int{Low}, r.fire[0].writes)

	boom := errors.New("gpio")
	r.sense[0].err = boom
	assert.ErrorIs(t, r.act.Attach(Pyro1), boom)

	assert.ErrorIs(t, New(Pins{}).Attach(Pyro1), ErrNotAttached)
	assert.Error(t, r.act.Attach(Channel(5)))
}

func TestAttachWithoutSenseAssumesContinuity(t *testing.T) {
	fire := &fakePin{}
	a := New(Pins{Fire: [2]Output{fire, nil}})
	assert.NoError(t, a.Attach(Pyro1))
}

func TestAllowList(t *testing.T) {
	cases := []struct {
		phase  phase.Phase
		arm    bool
		fire1  bool
		fire2  bool
		canard bool
	}{
		{phase.Prelaunch, false, false, false, false},
		{phase.PoweredFlight, true, false, false, false},
		{phase.Coast, true, false, false, false},
		{phase.CoastWithControl, true, false, false, true},
		{phase.DrogueDescent, true, true, false, false},
		{phase.MainDescent, true, false, true, false},
		{phase.Concluded, false, false, false, false},
	}
	for _, c := range cases {
		t.Run(c.phase.String(), func(t *testing.T) {
			r := newRig(true)
			r.act.armed = true
			r.act.Enter(c.phase)

			check := func(allowed bool, err error) {
				t.Helper()
				if allowed {
					assert.NoError(t, err)
				} else {
					assert.ErrorIs(t, err, ErrNotAllowed)
				}
			}
			check(c.fire1, r.act.FirePyro(Pyro1))
			check(c.fire2, r.act.FirePyro(Pyro2))
			check(c.canard, r.act.SetCanard(0, 3))
			check(c.arm, r.act.Arm())
		})
	}
}

func TestFireRequiresArm(t *testing.T) {
	r := newRig(false)
	r.act.Enter(phase.DrogueDescent)
	assert.ErrorIs(t, r.act.FirePyro(Pyro1), ErrNotArmed)
	assert.Empty(t, r.fire[0].writes)
}

func TestFireIsIdempotentAndReleases(t *testing.T) {
	r := newRig(false)
	require.NoError(t, r.act.Attach(Pyro1))
	r.enter(t, phase.PoweredFlight)
	r.enter(t, phase.Coast)
	r.enter(t, phase.CoastWithControl)
	r.act.Advance(30 * time.Second)
	r.enter(t, phase.DrogueDescent)

	assert.True(t, r.act.Fired(Pyro1))
	assert.False(t, r.act.Fired(Pyro2))
	require.NoError(t, r.act.FirePyro(Pyro1))
	assert.Equal(t, []int{Low, High}, r.fire[0].writes, "second fire must not pulse again")

	r.act.Advance(30*time.Second + 400*time.Millisecond)
	require.NoError(t, r.act.Release())
	assert.Equal(t, []int{Low, High}, r.fire[0].writes)

	r.act.Advance(30*time.Second + 500*time.Millisecond)
	require.NoError(t, r.act.Release())
	assert.Equal(t, []int{Low, High, Low}, r.fire[0].writes)

	require.NoError(t, r.act.Release())
	assert.Len(t, r.fire[0].writes, 3)
}

func TestPulseTimedInMissionTime(t *testing.T) {
	r := newRig(false)
	require.NoError(t, r.act.Attach(Pyro1))
	require.NoError(t, r.act.Attach(Pyro2))
	for p := phase.PoweredFlight; p <= phase.DrogueDescent; p++ {
		r.act.Advance(time.Duration(p) * 10 * time.Second)
		r.enter(t, p)
	}

	for tick := time.Duration(1); tick < 50; tick++ {
		r.act.Advance(40*time.Second + tick*10*time.Millisecond)
		require.NoError(t, r.act.Release())
	}
	assert.Equal(t, []int{Low, High}, r.fire[0].writes, "still high at 490 ms")
	r.act.Advance(40*time.Second + 500*time.Millisecond)
	require.NoError(t, r.act.Release())
	assert.Equal(t, []int{Low, High, Low}, r.fire[0].writes, "drogue released after 500 ms of mission time")

	r.act.Advance(100 * time.Second)
	r.enter(t, phase.MainDescent)
	require.NoError(t, r.act.Release())
	assert.Equal(t, []int{Low, High}, r.fire[1].writes, "main is still high on the tick it fired")
	r.act.Advance(100*time.Second + 500*time.Millisecond)
	require.NoError(t, r.act.Release())
	assert.Equal(t, []int{Low, High, Low}, r.fire[1].writes)
}

func TestCanardTracking(t *testing.T) {
	r := newRig(true)
	require.NoError(t, r.act.AttachCanards())
	assert.Equal(t, servoPeriodNs, r.servos[0].period)
	assert.Equal(t, []int{servoNeutralNs}, r.servos[0].duties)

	r.enter(t, phase.PoweredFlight)
	require.NoError(t, r.act.Track(50))
	assert.False(t, r.act.Engaged())

	r.enter(t, phase.Coast)
	r.enter(t, phase.CoastWithControl)
	assert.True(t, r.act.Engaged())

	require.NoError(t, r.act.Track(20)) // -2° / +2°
	assert.InDelta(t, -2, r.act.Canard(0), 1e-12)
	assert.InDelta(t, 2, r.act.Canard(1), 1e-12)

	require.NoError(t, r.act.Track(20))
	assert.Len(t, r.servos[0].duties, 2, "same position is not rewritten")

	require.NoError(t, r.act.Track(-1000))
	assert.InDelta(t, 10, r.act.Canard(0), 1e-12, "clamped to the limit")
	assert.Equal(t, servoNeutralNs+int(math.Round(10*servoNsPerDeg)), r.servos[0].duties[2])

	r.enter(t, phase.DrogueDescent)
	assert.False(t, r.act.Engaged())
	assert.Zero(t, r.act.Canard(0))
	assert.Zero(t, r.act.Canard(1))
}

func TestCanardsDisabled(t *testing.T) {
	r := newRig(false)
	require.NoError(t, r.act.AttachCanards())
	r.act.Enter(phase.CoastWithControl)
	require.NoError(t, r.act.Execute(phase.ActionEngageCanards))
	assert.False(t, r.act.Engaged())
	require.NoError(t, r.act.SetCanard(0, 5))
	assert.Empty(t, r.servos[0].duties)
}

func TestSafeAll(t *testing.T) {
	r := newRig(true)
	require.NoError(t, r.act.Attach(Pyro1))
	require.NoError(t, r.act.Attach(Pyro2))
	require.NoError(t, r.act.AttachCanards())
	for p := phase.PoweredFlight; p <= phase.MainDescent; p++ {
		r.enter(t, p)
	}
	assert.True(t, r.act.Fired(Pyro2))

	r.enter(t, phase.Concluded)
	assert.False(t, r.act.Armed())
	assert.Equal(t, Low, r.fire[0].writes[len(r.fire[0].writes)-1])
	assert.Equal(t, Low, r.fire[1].writes[len(r.fire[1].writes)-1])
}

func TestEngageOutsideControlPhase(t *testing.T) {
	r := newRig(true)
	r.act.Enter(phase.Coast)
	assert.ErrorIs(t, r.act.Execute(phase.ActionEngageCanards), ErrNotAllowed)
}

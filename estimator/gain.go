// Package estimator implements a fixed-gain Kalman filter for altitude,
// vertical velocity and vertical acceleration.
//
// The gain is the steady-state solution of the discrete Riccati recursion for
// a constant-acceleration model, computed once before flight. Each in-flight
// update is then a handful of multiply-adds with no matrix inversion.
package estimator

import (
	"errors"
	"fmt"
	"math"

	"github.com/skelterjohn/go.matrix"
	"github.com/westphae/gorocket/sensors"
)

const (
	DefaultDepth           = 50000
	DefaultTolerance       = 1e-6
	DefaultProcessVariance = 1.0
)

var (
	ErrInvalidParameter = errors.New("estimator parameters must be positive")
	ErrGainNotConverged = errors.New("estimator gain did not converge")
)

// Gain holds the steady-state blending coefficients.
// Rows are altitude, velocity, acceleration; columns are the barometric
// altitude and vertical acceleration innovations.
type Gain struct {
	K          [3][2]float64
	DeltaT     float64
	Iterations int
	Residual   float64 // Largest change in K over the final iteration
}

// largest is the magnitude of the largest gain element.
func (g Gain) largest() float64 {
	var m float64
	for _, row := range g.K {
		for _, k := range row {
			m = math.Max(m, math.Abs(k))
		}
	}
	return m
}

type settings struct {
	depth           int
	tolerance       float64
	processVariance float64
	gravity         float64
}

// Option tunes gain computation and filter setup.
type Option func(*settings)

// WithDepth sets the most Riccati iterations run before giving up.
func WithDepth(n int) Option {
	return func(s *settings) { s.depth = n }
}

// WithTolerance sets the largest change in any gain element, relative to the
// largest element, that still counts as converged.
func WithTolerance(tol float64) Option {
	return func(s *settings) { s.tolerance = tol }
}

// WithProcessVariance sets the jerk noise spectral density of the model.
func WithProcessVariance(q float64) Option {
	return func(s *settings) { s.processVariance = q }
}

// WithGravity sets the rest-calibrated vertical specific force removed from
// the accelerometer before filtering.
func WithGravity(g float64) Option {
	return func(s *settings) { s.gravity = g }
}

func newSettings(options []Option) settings {
	s := settings{
		depth:           DefaultDepth,
		tolerance:       DefaultTolerance,
		processVariance: DefaultProcessVariance,
		gravity:         sensors.StandardGravity,
	}
	for _, option := range options {
		option(&s)
	}
	return s
}

// model holds the constant matrices of the recursion.
type model struct {
	f, ft *matrix.DenseMatrix // State transition
	h, ht *matrix.DenseMatrix // Observation: altitude and acceleration
	q     *matrix.DenseMatrix // Process noise
	r     *matrix.DenseMatrix // Measurement noise
	eye   *matrix.DenseMatrix
}

func newModel(dt, positionVariance, accelVariance, processVariance float64) *model {
	m := new(model)
	m.f = matrix.MakeDenseMatrix([]float64{
		1, dt, dt * dt / 2,
		0, 1, dt,
		0, 0, 1,
	}, 3, 3)
	m.ft = m.f.Transpose()
	m.h = matrix.MakeDenseMatrix([]float64{
		1, 0, 0,
		0, 0, 1,
	}, 2, 3)
	m.ht = m.h.Transpose()

	// White jerk noise enters through g = [dt³/6, dt²/2, dt]
	g := matrix.MakeDenseMatrix([]float64{dt * dt * dt / 6, dt * dt / 2, dt}, 3, 1)
	m.q = matrix.Scaled(matrix.Product(g, g.Transpose()), processVariance)
	m.r = matrix.Diagonal([]float64{positionVariance, accelVariance})
	m.eye = matrix.Eye(3)
	return m
}

// step advances the covariance p by one predict/correct cycle and returns the
// gain used along with the corrected covariance.
func (m *model) step(p *matrix.DenseMatrix) (k, pNext *matrix.DenseMatrix, err error) {
	pp := matrix.Sum(matrix.Product(m.f, matrix.Product(p, m.ft)), m.q)
	s := matrix.Sum(matrix.Product(m.h, matrix.Product(pp, m.ht)), m.r)
	sInv, err := s.Inverse()
	if err != nil {
		return nil, nil, fmt.Errorf("innovation covariance not invertible: %w", err)
	}
	k = matrix.Product(pp, matrix.Product(m.ht, sInv))
	pNext = matrix.Product(matrix.Difference(m.eye, matrix.Product(k, m.h)), pp)
	return k, pNext, nil
}

// ComputeGain iterates the Riccati recursion until one further iteration
// changes no gain element by more than the tolerance times the largest
// element, or until depth iterations have run. On ErrGainNotConverged the
// last gain is still returned.
func ComputeGain(dt, positionVariance, accelVariance float64, options ...Option) (Gain, error) {
	s := newSettings(options)
	if !(dt > 0) || !(positionVariance > 0) || !(accelVariance > 0) || !(s.processVariance > 0) || s.depth < 1 {
		return Gain{}, fmt.Errorf("%w: dt=%g positionVariance=%g accelVariance=%g processVariance=%g depth=%d",
			ErrInvalidParameter, dt, positionVariance, accelVariance, s.processVariance, s.depth)
	}

	m := newModel(dt, positionVariance, accelVariance, s.processVariance)
	p := matrix.Diagonal([]float64{positionVariance, 1, accelVariance})

	k, p, err := m.step(p)
	if err != nil {
		return Gain{}, err
	}

	g := Gain{DeltaT: dt}
	for g.Iterations = 1; ; g.Iterations++ {
		kNext, pNext, err := m.step(p)
		if err != nil {
			return Gain{}, err
		}
		g.Residual = 0
		for i := 0; i < 3; i++ {
			for j := 0; j < 2; j++ {
				g.K[i][j] = k.Get(i, j)
				g.Residual = math.Max(g.Residual, math.Abs(kNext.Get(i, j)-k.Get(i, j)))
			}
		}
		if g.Residual <= s.tolerance*g.largest() || g.Iterations >= s.depth {
			break
		}
		k, p = kNext, pNext
	}
	if !(g.Residual <= s.tolerance*g.largest()) {
		return g, fmt.Errorf("%w: residual %g after %d iterations (tolerance %g of %g)",
			ErrGainNotConverged, g.Residual, g.Iterations, s.tolerance, g.largest())
	}
	return g, nil
}

// Package state post-processes raw sensor data into joint snapshots.
//
// Affetto's sensor stream delivers, per joint, a position and the two
// actuator line pressures. Each stream is smoothed with a moving
// average and joint velocity is estimated by backward difference.
package state

import (
	"fmt"
	"time"
)

// Filter is an n-point moving average over a scalar stream. The buffer
// starts zero-filled, so early outputs ramp up from zero.
type Filter struct {
	buf []float64
	idx int
	sum float64
}

// DefaultFilterPoints is the window size used when none is configured.
const DefaultFilterPoints = 5

// NewFilter creates a moving-average filter over n points. Non-positive
// n falls back to DefaultFilterPoints.
func NewFilter(n int) *Filter {
	if n <= 0 {
		n = DefaultFilterPoints
	}
	return &Filter{buf: make([]float64, n)}
}

// Update pushes a sample and returns the current window average.
func (f *Filter) Update(x float64) float64 {
	f.sum += x - f.buf[f.idx]
	f.buf[f.idx] = x
	f.idx = (f.idx + 1) % len(f.buf)
	return f.sum / float64(len(f.buf))
}

// Snapshot is one processed sensor sample. It is created fresh per
// inbound datagram and never mutated afterwards.
type Snapshot struct {
	Time time.Time
	Seq  uint64 // increments per ingested datagram

	Q  []float64 // filtered joint positions
	DQ []float64 // estimated joint velocities
	PA []float64 // filtered channel-A pressures
	PB []float64 // filtered channel-B pressures

	RawQ  []float64
	RawPA []float64
	RawPB []float64
}

// Estimator turns raw sensor arrays into snapshots. It keeps the
// per-stream filters and the previous position for differentiation.
type Estimator struct {
	dof int
	dt  float64

	qf, paf, pbf []*Filter
	qPrev        []float64
	primed       bool
	seq          uint64
}

// NewEstimator creates an estimator for dof joints sampled every dt
// seconds, filtering each stream over points samples.
func NewEstimator(dof int, dt float64, points int) (*Estimator, error) {
	if dof <= 0 {
		return nil, fmt.Errorf("state: joint count must be positive, got %d", dof)
	}
	if dt <= 0 {
		return nil, fmt.Errorf("state: sample period must be positive, got %g", dt)
	}
	e := &Estimator{
		dof:   dof,
		dt:    dt,
		qf:    make([]*Filter, dof),
		paf:   make([]*Filter, dof),
		pbf:   make([]*Filter, dof),
		qPrev: make([]float64, dof),
	}
	for j := 0; j < dof; j++ {
		e.qf[j] = NewFilter(points)
		e.paf[j] = NewFilter(points)
		e.pbf[j] = NewFilter(points)
	}
	return e, nil
}

// DOF returns the joint count the estimator was built for.
func (e *Estimator) DOF() int { return e.dof }

// Update ingests one raw sensor array laid out as q0 pa0 pb0 q1 pa1
// pb1 ... and returns a fresh snapshot.
func (e *Estimator) Update(raw []float64, now time.Time) (*Snapshot, error) {
	if len(raw) != 3*e.dof {
		return nil, fmt.Errorf("state: sensor array has %d values, want %d", len(raw), 3*e.dof)
	}
	e.seq++
	s := &Snapshot{
		Time:  now,
		Seq:   e.seq,
		Q:     make([]float64, e.dof),
		DQ:    make([]float64, e.dof),
		PA:    make([]float64, e.dof),
		PB:    make([]float64, e.dof),
		RawQ:  make([]float64, e.dof),
		RawPA: make([]float64, e.dof),
		RawPB: make([]float64, e.dof),
	}
	for j := 0; j < e.dof; j++ {
		s.RawQ[j] = raw[3*j]
		s.RawPA[j] = raw[3*j+1]
		s.RawPB[j] = raw[3*j+2]
		s.Q[j] = e.qf[j].Update(s.RawQ[j])
		s.PA[j] = e.paf[j].Update(s.RawPA[j])
		s.PB[j] = e.pbf[j].Update(s.RawPB[j])
		if e.primed {
			s.DQ[j] = (s.Q[j] - e.qPrev[j]) / e.dt
		}
		e.qPrev[j] = s.Q[j]
	}
	e.primed = true
	return s, nil
}

// Package control implements the per-joint pressure control law.
//
// Each joint is actuated by two antagonistic channels (ca/cb). A
// channel command is computed by a discrete PID law, optionally with a
// pressure feed-forward term (PIDF), and clamped to the valve input
// range. Integral state is kept per joint-channel and owned by the
// caller.
package control

import (
	"math"
	"strings"
)

// Channel selects one of a joint's two antagonistic pressure lines.
type Channel int

const (
	ChannelA Channel = iota
	ChannelB
)

func (c Channel) String() string {
	if c == ChannelB {
		return "cb"
	}
	return "ca"
}

// Scheme selects the feedback law.
type Scheme int

const (
	PID Scheme = iota
	PIDF
)

func (s Scheme) String() string {
	if s == PIDF {
		return "pidf"
	}
	return "pid"
}

// ParseScheme accepts the configuration spellings of a scheme name.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(s) {
	case "", "pid":
		return PID, nil
	case "pidf":
		return PIDF, nil
	default:
		return 0, configErrorf("unknown feedback scheme %q", s)
	}
}

// Range bounds the commanded valve pressure.
type Range struct {
	Min, Max float64
}

// Clamp limits v to the range. Clamping is idempotent.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Span returns the range width.
func (r Range) Span() float64 { return r.Max - r.Min }

// Gains holds the per-joint tuning arrays. PressGain is used only by
// the PIDF scheme.
type Gains struct {
	KP        []float64
	KD        []float64
	KI        []float64
	Stiff     []float64
	PressGain []float64
}

// Validate checks that every array matches the joint count and that
// all values are finite. PressGain is required only for PIDF.
func (g Gains) Validate(dof int, scheme Scheme) error {
	arrays := map[string][]float64{
		"kP":    g.KP,
		"kD":    g.KD,
		"kI":    g.KI,
		"stiff": g.Stiff,
	}
	if scheme == PIDF {
		arrays["press_gain"] = g.PressGain
	}
	for name, a := range arrays {
		if len(a) != dof {
			return configErrorf("gain array %s has length %d, want %d", name, len(a), dof)
		}
		for i, v := range a {
			if !finite(v) {
				return &InvalidGainError{Gain: name, Joint: i, Value: v}
			}
		}
	}
	return nil
}

// State is the runtime state of one joint-channel, persisted across
// ticks for the lifetime of a control session.
type State struct {
	integral float64
	prevErr  float64
	primed   bool
}

// Reset zeroes the accumulated state, as done at session start.
func (s *State) Reset() { *s = State{} }

// Law computes channel pressure commands. It is immutable after
// construction and safe to share; per-channel state travels through
// Step.
type Law struct {
	scheme Scheme
	gains  Gains
	rng    Range
	bound  []float64 // per-joint anti-windup bound on the integral
}

// NewLaw validates the gain arrays against the joint count and derives
// the per-joint anti-windup bounds from the input range.
func NewLaw(scheme Scheme, gains Gains, rng Range, dof int) (*Law, error) {
	if dof <= 0 {
		return nil, configErrorf("joint count must be positive, got %d", dof)
	}
	if rng.Span() <= 0 {
		return nil, configErrorf("input range [%g,%g] is empty", rng.Min, rng.Max)
	}
	if err := gains.Validate(dof, scheme); err != nil {
		return nil, err
	}
	l := &Law{scheme: scheme, gains: gains, rng: rng, bound: make([]float64, dof)}
	for j := 0; j < dof; j++ {
		// The integral can never usefully exceed the output span the
		// kI term maps it onto.
		if ki := gains.KI[j]; ki > 0 {
			l.bound[j] = rng.Span() / ki
		} else {
			l.bound[j] = rng.Span()
		}
	}
	return l, nil
}

// Scheme returns the configured feedback scheme.
func (l *Law) Scheme() Scheme { return l.scheme }

// Range returns the valve input range commands are clamped to.
func (l *Law) Range() Range { return l.rng }

// Step computes the pressure command for one joint-channel.
//
// ref and meas are the desired and measured values, ff the feed-forward
// pressure (the filtered pa-pb difference; ignored under plain PID) and
// dt the tick period. st accumulates integral and previous error across
// calls and must belong to this joint-channel only.
func (l *Law) Step(joint int, ch Channel, ref, meas, ff, dt float64, st *State) (float64, error) {
	if joint < 0 || joint >= len(l.bound) {
		return 0, configErrorf("joint index %d out of range [0,%d)", joint, len(l.bound))
	}
	if dt <= 0 || !finite(dt) {
		return 0, &InvalidGainError{Gain: "dt", Joint: joint, Value: dt}
	}
	kP, kD, kI, stiff := l.gains.KP[joint], l.gains.KD[joint], l.gains.KI[joint], l.gains.Stiff[joint]
	for _, g := range [...]struct {
		name  string
		value float64
	}{{"kP", kP}, {"kD", kD}, {"kI", kI}, {"stiff", stiff}} {
		if !finite(g.value) {
			return 0, &InvalidGainError{Gain: g.name, Joint: joint, Value: g.value}
		}
	}
	if !finite(ref) || !finite(meas) {
		return 0, &InvalidGainError{Gain: "input", Joint: joint, Value: ref}
	}

	e := ref - meas
	integral := clampAbs(st.integral+e*dt, l.bound[joint])

	var deriv float64
	if st.primed {
		deriv = (e - st.prevErr) / dt
	}

	u := stiff + kP*e + kI*integral + kD*deriv
	if l.scheme == PIDF {
		d := l.gains.PressGain[joint] * ff
		if ch == ChannelA {
			u -= d
		} else {
			u += d
		}
	}

	out := l.rng.Clamp(u)
	// Clamped integration: while the output is saturated, stop
	// accumulating error that pushes further into saturation.
	if (out < u && e > 0) || (out > u && e < 0) {
		integral = st.integral
	}

	st.integral = integral
	st.prevErr = e
	st.primed = true
	return out, nil
}

func clampAbs(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

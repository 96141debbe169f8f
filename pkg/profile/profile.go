// Package profile generates per-joint reference trajectories.
//
// A profile maps elapsed session time to a desired value for one
// actuation channel. Profiles are pure and stateless: the same t always
// yields the same value.
package profile

import (
	"fmt"
	"math"
)

// Profile produces the reference value at elapsed time t.
type Profile interface {
	At(t float64) float64
}

// Constant returns a fixed value for all t.
type Constant struct {
	Value float64
}

func (c Constant) At(t float64) float64 { return c.Value }

// Sinusoidal oscillates around a base value after an idle period.
// For t < Idletime it returns Base; afterwards
// Base + Amplitude*sin(2*pi/Period*(t-Idletime) + Phase).
type Sinusoidal struct {
	Amplitude float64
	Period    float64
	Base      float64
	Idletime  float64
	Phase     float64
}

func (s Sinusoidal) At(t float64) float64 {
	if t < s.Idletime {
		return s.Base
	}
	omega := 2 * math.Pi / s.Period
	return s.Base + s.Amplitude*math.Sin(omega*(t-s.Idletime)+s.Phase)
}

// New constructs a profile by name from a complete parameter map.
func New(name string, params map[string]float64) (Profile, error) {
	for key := range params {
		if !validParam(name, key) {
			return nil, fmt.Errorf("profile %q: unknown parameter %q", name, key)
		}
	}
	switch name {
	case "constant":
		return Constant{Value: params["value"]}, nil
	case "sinusoidal":
		if params["period"] <= 0 {
			return nil, fmt.Errorf("profile %q: period must be positive, got %g", name, params["period"])
		}
		return Sinusoidal{
			Amplitude: params["amplitude"],
			Period:    params["period"],
			Base:      params["base"],
			Idletime:  params["idletime"],
			Phase:     params["phase"],
		}, nil
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
}

var paramNames = map[string][]string{
	"constant":   {"value"},
	"sinusoidal": {"amplitude", "period", "base", "idletime", "phase"},
}

func validParam(profile, key string) bool {
	for _, n := range paramNames[profile] {
		if n == key {
			return true
		}
	}
	return false
}

package control

import (
	"strconv"
	"strings"
)

// DefaultInactivePressure is commanded to inactive joints when a spec
// does not name a pressure.
const DefaultInactivePressure = 0

// InactiveSpec excludes joints from closed-loop control and holds them
// at a fixed pressure on both channels. Joints is a selector string:
// a single index ("3"), a comma list ("1,3,5"), an inclusive range
// ("7-12"), or a mix ("8,10-12").
type InactiveSpec struct {
	Joints   string
	Pressure float64
}

// ResolveInactive expands a spec list into a joint-index to pressure
// mapping. Later specs win on conflicting indices.
func ResolveInactive(specs []InactiveSpec, dof int) (map[int]float64, error) {
	m := make(map[int]float64)
	for _, s := range specs {
		idx, err := ParseJointSelector(s.Joints, dof)
		if err != nil {
			return nil, err
		}
		for _, j := range idx {
			m[j] = s.Pressure
		}
	}
	return m, nil
}

// ParseJointSelector expands a selector string into joint indices,
// validated against the joint count.
func ParseJointSelector(s string, dof int) ([]int, error) {
	var idx []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, configErrorf("empty element in joint selector %q", s)
		}
		lo, hi, err := parseSelectorPart(part)
		if err != nil {
			return nil, configErrorf("malformed joint selector %q: %v", s, err)
		}
		if lo > hi {
			return nil, configErrorf("joint selector %q: range %d-%d is reversed", s, lo, hi)
		}
		for j := lo; j <= hi; j++ {
			if j < 0 || j >= dof {
				return nil, configErrorf("joint selector %q: index %d out of range [0,%d)", s, j, dof)
			}
			idx = append(idx, j)
		}
	}
	return idx, nil
}

func parseSelectorPart(part string) (lo, hi int, err error) {
	if a, b, ok := strings.Cut(part, "-"); ok {
		if lo, err = strconv.Atoi(strings.TrimSpace(a)); err != nil {
			return 0, 0, err
		}
		if hi, err = strconv.Atoi(strings.TrimSpace(b)); err != nil {
			return 0, 0, err
		}
		return lo, hi, nil
	}
	if lo, err = strconv.Atoi(part); err != nil {
		return 0, 0, err
	}
	return lo, lo, nil
}

package profile

import "fmt"

// Spec names a profile and overrides some of its parameters. An empty
// Profile inherits the enclosing level's choice; Params override the
// inherited parameter set key by key.
type Spec struct {
	Profile string
	Params  map[string]float64
}

// JointSpec layers joint-level settings over the session default, and
// channel-level settings (CA/CB) over the joint level.
type JointSpec struct {
	Spec
	CA *Spec
	CB *Spec
}

// DefaultParams returns the built-in parameter defaults per profile.
// Overrides from configuration are merged on top before resolution.
func DefaultParams() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"constant": {
			"value": 0,
		},
		"sinusoidal": {
			"amplitude": 127,
			"period":    10,
			"base":      127,
			"idletime":  5,
			"phase":     0,
		},
	}
}

// Table holds the resolved profile for every joint and channel.
type Table struct {
	a, b []Profile
}

// resolved is one fully merged profile selection during table building.
type resolved struct {
	name   string
	params map[string]float64
}

// BuildTable resolves the layered profile configuration into concrete
// per-joint-channel profiles. base applies to every joint; joints maps
// joint index to its overrides. paramDefaults augments or replaces the
// built-in per-profile defaults and may be nil.
func BuildTable(dof int, base Spec, joints map[int]JointSpec, paramDefaults map[string]map[string]float64) (*Table, error) {
	if dof <= 0 {
		return nil, fmt.Errorf("profile table: joint count must be positive, got %d", dof)
	}
	defaults := DefaultParams()
	for name, params := range paramDefaults {
		d, ok := defaults[name]
		if !ok {
			d = make(map[string]float64)
			defaults[name] = d
		}
		for k, v := range params {
			d[k] = v
		}
	}

	if base.Profile == "" {
		base.Profile = "constant"
	}
	root, err := layer(resolved{name: base.Profile, params: defaults[base.Profile]}, Spec{Params: base.Params}, defaults)
	if err != nil {
		return nil, err
	}

	t := &Table{a: make([]Profile, dof), b: make([]Profile, dof)}
	for j := 0; j < dof; j++ {
		t.a[j], err = New(root.name, root.params)
		if err != nil {
			return nil, err
		}
		t.b[j] = t.a[j]
	}

	for j, js := range joints {
		if j < 0 || j >= dof {
			return nil, fmt.Errorf("profile table: joint index %d out of range [0,%d)", j, dof)
		}
		jl, err := layer(root, js.Spec, defaults)
		if err != nil {
			return nil, fmt.Errorf("joint %d: %w", j, err)
		}
		if t.a[j], err = buildChannel(jl, js.CA, defaults); err != nil {
			return nil, fmt.Errorf("joint %d ca: %w", j, err)
		}
		if t.b[j], err = buildChannel(jl, js.CB, defaults); err != nil {
			return nil, fmt.Errorf("joint %d cb: %w", j, err)
		}
	}
	return t, nil
}

func buildChannel(parent resolved, s *Spec, defaults map[string]map[string]float64) (Profile, error) {
	r := parent
	if s != nil {
		var err error
		if r, err = layer(parent, *s, defaults); err != nil {
			return nil, err
		}
	}
	return New(r.name, r.params)
}

// layer merges a child spec onto its parent. A child selecting a
// different profile restarts from that profile's defaults instead of
// inheriting the parent's parameters.
func layer(parent resolved, s Spec, defaults map[string]map[string]float64) (resolved, error) {
	name := s.Profile
	if name == "" {
		name = parent.name
	}
	var src map[string]float64
	if name == parent.name {
		src = parent.params
	} else {
		var ok bool
		if src, ok = defaults[name]; !ok {
			return resolved{}, fmt.Errorf("unknown profile %q", name)
		}
	}
	params := make(map[string]float64, len(src)+len(s.Params))
	for k, v := range src {
		params[k] = v
	}
	for k, v := range s.Params {
		params[k] = v
	}
	return resolved{name: name, params: params}, nil
}

// DOF returns the number of joints the table covers.
func (t *Table) DOF() int { return len(t.a) }

// A returns the channel-A profile of joint j.
func (t *Table) A(j int) Profile { return t.a[j] }

// B returns the channel-B profile of joint j.
func (t *Table) B(j int) Profile { return t.b[j] }

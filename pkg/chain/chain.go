// Package chain models Affetto's kinematic chain and joint indexing.
//
// The chain is a tree of links declared in configuration. Only revolute
// links are controllable joints; their declaration order defines the
// joint indices used by every sensor and command datagram on the wire.
package chain

import "fmt"

// JointType classifies a link.
type JointType string

const (
	Fixed    JointType = "fixed"
	Revolute JointType = "revolute"
)

// Link is one declared element of the chain.
type Link struct {
	Name   string
	Type   JointType
	Parent string // name of the parent link, empty for the root

	// Range bounds the joint coordinate; nil means unconstrained.
	Range *[2]float64

	// Frame is an optional static 4x4 transform, meaningful only for
	// fixed links. It is carried, not interpreted.
	Frame *[4][4]float64
}

// ConfigError reports an invalid chain declaration.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return "chain: " + e.msg }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

const rootIndex = -1

// Model is the immutable chain built from a link declaration list.
// Links are kept in a flat arena with integer parent indices.
type Model struct {
	links  []Link
	parent []int // index into links, rootIndex for the root

	joints      []int          // link index per joint, declaration order
	jointByName map[string]int // link name -> joint index
}

// Build validates a link declaration list and constructs the chain.
// It fails if a name is duplicated, a parent reference is unresolved,
// the declaration holds a cycle, or there is not exactly one root.
func Build(links []Link) (*Model, error) {
	if len(links) == 0 {
		return nil, configErrorf("no links declared")
	}

	byName := make(map[string]int, len(links))
	for i, l := range links {
		if l.Name == "" {
			return nil, configErrorf("link %d has no name", i)
		}
		if _, dup := byName[l.Name]; dup {
			return nil, configErrorf("duplicate link name %q", l.Name)
		}
		if l.Type != Fixed && l.Type != Revolute {
			return nil, configErrorf("link %q has unknown joint type %q", l.Name, l.Type)
		}
		byName[l.Name] = i
	}

	m := &Model{
		links:       make([]Link, len(links)),
		parent:      make([]int, len(links)),
		jointByName: make(map[string]int),
	}
	copy(m.links, links)

	roots := 0
	for i, l := range links {
		if l.Parent == "" {
			m.parent[i] = rootIndex
			roots++
			continue
		}
		p, ok := byName[l.Parent]
		if !ok {
			return nil, configErrorf("link %q has unresolved parent %q", l.Name, l.Parent)
		}
		if p == i {
			return nil, configErrorf("link %q is its own parent", l.Name)
		}
		m.parent[i] = p
	}
	if roots != 1 {
		return nil, configErrorf("chain must have exactly one root, got %d", roots)
	}

	// A parent walk longer than the link count means a cycle.
	for i, l := range links {
		steps := 0
		for p := m.parent[i]; p != rootIndex; p = m.parent[p] {
			steps++
			if steps > len(links) {
				return nil, configErrorf("cycle detected through link %q", l.Name)
			}
		}
	}

	for i, l := range links {
		if l.Type == Revolute {
			m.jointByName[l.Name] = len(m.joints)
			m.joints = append(m.joints, i)
		}
	}
	return m, nil
}

// DOF returns the number of controllable joints.
func (m *Model) DOF() int { return len(m.joints) }

// Links returns the number of declared links, joints included.
func (m *Model) Links() int { return len(m.links) }

// JointName returns the link name of joint index j.
func (m *Model) JointName(j int) (string, error) {
	if j < 0 || j >= len(m.joints) {
		return "", configErrorf("joint index %d out of range [0,%d)", j, len(m.joints))
	}
	return m.links[m.joints[j]].Name, nil
}

// JointIndex returns the joint index for a link name.
func (m *Model) JointIndex(name string) (int, bool) {
	j, ok := m.jointByName[name]
	return j, ok
}

// JointRange returns the declared bounds of joint j. bounded is false
// when the joint is unconstrained.
func (m *Model) JointRange(j int) (min, max float64, bounded bool) {
	if j < 0 || j >= len(m.joints) {
		return 0, 0, false
	}
	r := m.links[m.joints[j]].Range
	if r == nil {
		return 0, 0, false
	}
	return r[0], r[1], true
}

// LinkAt returns a copy of the i-th declared link.
func (m *Model) LinkAt(i int) (Link, error) {
	if i < 0 || i >= len(m.links) {
		return Link{}, configErrorf("link index %d out of range [0,%d)", i, len(m.links))
	}
	return m.links[i], nil
}

// ParentOf returns the declaration index of link i's parent, or -1 for
// the root.
func (m *Model) ParentOf(i int) int {
	if i < 0 || i >= len(m.parent) {
		return rootIndex
	}
	return m.parent[i]
}

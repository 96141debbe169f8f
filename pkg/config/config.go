// Package config loads the TOML configuration describing an Affetto
// robot and validates it into the shapes the control core consumes.
package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/affetto/affctrl/pkg/chain"
	"github.com/affetto/affctrl/pkg/control"
	"github.com/affetto/affctrl/pkg/profile"
	"github.com/affetto/affctrl/pkg/state"
)

// Defaults applied for omitted fields.
const (
	DefaultCtrlFreq        = 30
	DefaultInputMin        = 0
	DefaultInputMax        = 255
	DefaultMaxSendFailures = 10
	DefaultMockSensorRate  = 100
)

// Config is the root of the TOML document.
type Config struct {
	Affetto Affetto `toml:"affetto"`
}

// Affetto groups everything describing one robot.
type Affetto struct {
	Name    string        `toml:"name"`
	Chain   ChainConfig   `toml:"chain"`
	Comm    CommConfig    `toml:"comm"`
	State   StateConfig   `toml:"state"`
	Ctrl    CtrlConfig    `toml:"ctrl"`
	Command CommandConfig `toml:"command"`
	Mock    MockConfig    `toml:"mock"`
}

// ChainConfig declares the kinematic chain.
type ChainConfig struct {
	Links []LinkConfig `toml:"link"`
}

// LinkConfig is one [[affetto.chain.link]] entry.
type LinkConfig struct {
	Name      string    `toml:"name"`
	JointType string    `toml:"jointtype"`
	Parent    string    `toml:"parent"`
	Range     []float64 `toml:"range"`
}

// Node is a host/port pair.
type Node struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr formats the node as host:port.
func (n Node) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// CommConfig holds the UDP endpoints: Local is where sensor datagrams
// arrive, Remote is where command datagrams go.
type CommConfig struct {
	Local  Node `toml:"local"`
	Remote Node `toml:"remote"`
}

// StateConfig tunes sensor post-processing.
type StateConfig struct {
	Freq         float64 `toml:"freq"`
	FilterPoints int     `toml:"filter_points"`
}

// CtrlConfig holds the control-law settings.
type CtrlConfig struct {
	Scheme          string           `toml:"scheme"`
	Freq            float64          `toml:"freq"`
	InputRange      []float64        `toml:"input_range"`
	MaxSendFailures int              `toml:"max_send_failures"`
	PID             GainsConfig      `toml:"pid"`
	PIDF            GainsConfig      `toml:"pidf"`
	Inactive        []InactiveConfig `toml:"inactive"`
}

// GainsConfig holds the per-joint gain arrays of one scheme.
type GainsConfig struct {
	KP        []float64 `toml:"kP"`
	KD        []float64 `toml:"kD"`
	KI        []float64 `toml:"kI"`
	Stiff     []float64 `toml:"stiff"`
	PressGain []float64 `toml:"press_gain"`
}

// InactiveConfig is one [[affetto.ctrl.inactive]] entry. A nil
// Pressure falls back to control.DefaultInactivePressure.
type InactiveConfig struct {
	Joints   string   `toml:"joints"`
	Pressure *float64 `toml:"pressure"`
}

// ProfileConfig selects a command profile and parameter overrides.
type ProfileConfig struct {
	Profile string             `toml:"profile"`
	Params  map[string]float64 `toml:"params"`
}

// JointCommandConfig layers profile settings for one joint, with
// optional per-channel overrides.
type JointCommandConfig struct {
	Index   int                `toml:"index"`
	Profile string             `toml:"profile"`
	Params  map[string]float64 `toml:"params"`
	CA      *ProfileConfig     `toml:"ca"`
	CB      *ProfileConfig     `toml:"cb"`
}

// CommandConfig holds the session-wide command profile, per-profile
// default overrides, and per-joint settings.
type CommandConfig struct {
	Profile  string                        `toml:"profile"`
	Params   map[string]float64            `toml:"params"`
	Profiles map[string]map[string]float64 `toml:"profiles"`
	Joints   []JointCommandConfig          `toml:"joint"`
}

// MockConfig tunes the fake robot.
type MockConfig struct {
	SensorRate float64 `toml:"sensor_rate"`
}

// Load reads and parses the TOML file at path.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	c.applyDefaults()
	return &c, nil
}

// Parse decodes a TOML document from a string.
func Parse(doc string) (*Config, error) {
	var c Config
	if _, err := toml.Decode(doc, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	a := &c.Affetto
	if a.Name == "" {
		a.Name = "affetto"
	}
	if a.Ctrl.Freq == 0 {
		a.Ctrl.Freq = DefaultCtrlFreq
	}
	if len(a.Ctrl.InputRange) == 0 {
		a.Ctrl.InputRange = []float64{DefaultInputMin, DefaultInputMax}
	}
	if a.Ctrl.MaxSendFailures == 0 {
		a.Ctrl.MaxSendFailures = DefaultMaxSendFailures
	}
	if a.State.Freq == 0 {
		a.State.Freq = a.Ctrl.Freq
	}
	if a.State.FilterPoints == 0 {
		a.State.FilterPoints = state.DefaultFilterPoints
	}
	if a.Mock.SensorRate == 0 {
		a.Mock.SensorRate = DefaultMockSensorRate
	}
}

// BuildChain constructs the chain model from the link declarations.
func (c *Config) BuildChain() (*chain.Model, error) {
	links := make([]chain.Link, 0, len(c.Affetto.Chain.Links))
	for _, lc := range c.Affetto.Chain.Links {
		l := chain.Link{
			Name:   lc.Name,
			Type:   chain.JointType(lc.JointType),
			Parent: lc.Parent,
		}
		switch len(lc.Range) {
		case 0:
		case 2:
			l.Range = &[2]float64{lc.Range[0], lc.Range[1]}
		default:
			return nil, fmt.Errorf("link %q: range needs two bounds, got %d", lc.Name, len(lc.Range))
		}
		links = append(links, l)
	}
	return chain.Build(links)
}

// Scheme parses the configured feedback scheme.
func (c *Config) Scheme() (control.Scheme, error) {
	return control.ParseScheme(c.Affetto.Ctrl.Scheme)
}

// Gains returns the gain arrays of the configured scheme.
func (c *Config) Gains() (control.Gains, error) {
	scheme, err := c.Scheme()
	if err != nil {
		return control.Gains{}, err
	}
	gc := c.Affetto.Ctrl.PID
	if scheme == control.PIDF {
		gc = c.Affetto.Ctrl.PIDF
	}
	return control.Gains{
		KP:        gc.KP,
		KD:        gc.KD,
		KI:        gc.KI,
		Stiff:     gc.Stiff,
		PressGain: gc.PressGain,
	}, nil
}

// InputRange returns the valve pressure bounds.
func (c *Config) InputRange() (control.Range, error) {
	ir := c.Affetto.Ctrl.InputRange
	if len(ir) != 2 {
		return control.Range{}, fmt.Errorf("input_range needs two bounds, got %d", len(ir))
	}
	return control.Range{Min: ir[0], Max: ir[1]}, nil
}

// InactiveSpecs converts the inactive-joint entries, applying the
// default pressure where omitted.
func (c *Config) InactiveSpecs() []control.InactiveSpec {
	specs := make([]control.InactiveSpec, 0, len(c.Affetto.Ctrl.Inactive))
	for _, ic := range c.Affetto.Ctrl.Inactive {
		p := float64(control.DefaultInactivePressure)
		if ic.Pressure != nil {
			p = *ic.Pressure
		}
		specs = append(specs, control.InactiveSpec{Joints: ic.Joints, Pressure: p})
	}
	return specs
}

// ProfileTable resolves the command profile configuration for dof
// joints.
func (c *Config) ProfileTable(dof int) (*profile.Table, error) {
	cmd := c.Affetto.Command
	base := profile.Spec{Profile: cmd.Profile, Params: cmd.Params}
	joints := make(map[int]profile.JointSpec, len(cmd.Joints))
	for _, jc := range cmd.Joints {
		if _, dup := joints[jc.Index]; dup {
			return nil, fmt.Errorf("duplicate command settings for joint %d", jc.Index)
		}
		js := profile.JointSpec{
			Spec: profile.Spec{Profile: jc.Profile, Params: jc.Params},
		}
		if jc.CA != nil {
			js.CA = &profile.Spec{Profile: jc.CA.Profile, Params: jc.CA.Params}
		}
		if jc.CB != nil {
			js.CB = &profile.Spec{Profile: jc.CB.Profile, Params: jc.CB.Params}
		}
		joints[jc.Index] = js
	}
	return profile.BuildTable(dof, base, joints, cmd.Profiles)
}

// Package affctrl drives the Affetto pneumatic robot over a UDP link.
//
// Affetto's joints are antagonistically actuated: each joint has two
// opposing pressure channels (ca/cb). This module samples joint sensor
// state at a fixed rate, computes per-joint PID or PIDF pressure
// commands, and streams them to the robot's real-time valve controller.
//
// # Installation
//
//	go install github.com/affetto/affctrl/cmd/affctrl@latest
//
// # Usage
//
// Describe the robot, gains and command profiles in a TOML file, then:
//
//	affctrl run -c affetto.toml
//
// To exercise the control loop without hardware, start a fake robot in
// another terminal first:
//
//	affctrl mock -c affetto.toml
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/affctrl: CLI with run and mock commands
//   - pkg/chain: kinematic chain model and joint indexing
//   - pkg/profile: reference command profiles (constant, sinusoidal)
//   - pkg/control: PID/PIDF control law and inactive-joint overrides
//   - pkg/comm: UDP datagram codec, command sender, sensor receiver
//   - pkg/state: sensor filtering and velocity estimation
//   - pkg/timing: fixed-rate absolute-schedule timer
//   - pkg/loop: the sense-compute-send control loop
//   - pkg/sessionlog: per-tick CSV session recording
//   - pkg/config: TOML configuration boundary
//   - pkg/mock: fake robot for bench runs
package affctrl

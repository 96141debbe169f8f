// Package mock fakes Affetto's real-time controller process.
//
// It emits synthetic sensor datagrams at the configured rate and
// drains inbound command datagrams, so the control stack can be run
// end to end without hardware.
package mock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"

	"github.com/affetto/affctrl/pkg/comm"
	"github.com/affetto/affctrl/pkg/timing"
)

// Robot is the fake robot endpoint.
type Robot struct {
	dof        int
	sensorAddr string // where sensor datagrams go
	cmdAddr    string // where command datagrams arrive
	rate       float64

	// Log, when set, receives one line per emitted datagram batch.
	Log func(format string, args ...any)
}

// New creates a fake robot for dof joints. sensorAddr is the
// controller host's sensor endpoint, cmdAddr the local address to
// absorb commands on.
func New(dof int, sensorAddr, cmdAddr string, rate float64) (*Robot, error) {
	if dof <= 0 {
		return nil, fmt.Errorf("mock: joint count must be positive, got %d", dof)
	}
	return &Robot{dof: dof, sensorAddr: sensorAddr, cmdAddr: cmdAddr, rate: rate}, nil
}

// Run emits sensor data until ctx is done. Received commands are read
// and discarded.
func (r *Robot) Run(ctx context.Context) error {
	out, err := net.Dial("udp4", r.sensorAddr)
	if err != nil {
		return fmt.Errorf("mock: dial sensor endpoint: %w", err)
	}
	defer out.Close()

	ua, err := net.ResolveUDPAddr("udp4", r.cmdAddr)
	if err != nil {
		return fmt.Errorf("mock: resolve command endpoint: %w", err)
	}
	in, err := net.ListenUDP("udp4", ua)
	if err != nil {
		return fmt.Errorf("mock: bind command endpoint: %w", err)
	}
	defer in.Close()
	go drain(in)

	timer, err := timing.NewTimer(r.rate)
	if err != nil {
		return err
	}
	timer.Start()

	values := make([]int, 3*r.dof)
	for {
		if err := timer.Wait(ctx); err != nil {
			return err
		}
		for i := range values {
			values[i] = rand.Intn(256)
		}
		payload := encode(values)
		if _, err := out.Write(payload); err != nil {
			return fmt.Errorf("mock: send sensor datagram: %w", err)
		}
		if r.Log != nil {
			r.Log("t=%.2f: sent %d bytes to %s", timer.Elapsed().Seconds(), len(payload), r.sensorAddr)
		}
	}
}

func drain(conn *net.UDPConn) {
	buf := make([]byte, comm.DefaultBufSize)
	for {
		if _, _, err := conn.ReadFromUDP(buf); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
		}
	}
}

func encode(values []int) []byte {
	b := make([]byte, 0, 4*len(values))
	for i, v := range values {
		if i > 0 {
			b = append(b, ' ')
		}
		b = fmt.Appendf(b, "%d", v)
	}
	return b
}

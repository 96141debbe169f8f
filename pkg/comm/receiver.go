package comm

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/affetto/affctrl/pkg/state"
)

// Receiver ingests sensor datagrams in the background and publishes the
// latest processed snapshot. The handoff is a single atomic pointer
// swap: the control loop always reads a complete snapshot and never
// blocks on ingestion.
type Receiver struct {
	conn *net.UDPConn
	est  *state.Estimator

	latest  atomic.Pointer[state.Snapshot]
	dropped atomic.Uint64

	done chan struct{}
}

// ListenReceiver binds the sensor address (host:port) and starts the
// ingestion goroutine.
func ListenReceiver(addr string, est *state.Estimator) (*Receiver, error) {
	ua, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve sensor address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", ua)
	if err != nil {
		return nil, fmt.Errorf("bind sensor socket: %w", err)
	}
	r := &Receiver{
		conn: conn,
		est:  est,
		done: make(chan struct{}),
	}
	go r.run()
	return r, nil
}

func (r *Receiver) run() {
	defer close(r.done)
	buf := make([]byte, DefaultBufSize)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.dropped.Add(1)
			continue
		}
		raw, err := ParseSensorData(buf[:n], r.est.DOF())
		if err != nil {
			r.dropped.Add(1)
			continue
		}
		snap, err := r.est.Update(raw, time.Now())
		if err != nil {
			r.dropped.Add(1)
			continue
		}
		r.latest.Store(snap)
	}
}

// Latest returns the most recently published snapshot, or nil before
// the first datagram arrives.
func (r *Receiver) Latest() *state.Snapshot {
	return r.latest.Load()
}

// Dropped reports how many datagrams were discarded as malformed or
// failed reads.
func (r *Receiver) Dropped() uint64 { return r.dropped.Load() }

// Close shuts the socket and waits for the ingestion goroutine.
func (r *Receiver) Close() error {
	err := r.conn.Close()
	<-r.done
	return err
}

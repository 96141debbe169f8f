// Package loop runs the fixed-rate sense-compute-send control session.
//
// Each tick the loop reads the latest published sensor snapshot,
// evaluates the per-joint command profiles and control law (or the
// fixed override pressure for inactive joints), and hands the assembled
// command to the transport. The loop never blocks on the sensor path:
// if no fresh snapshot arrived it reuses the previous one and counts a
// stale sample.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/affetto/affctrl/pkg/chain"
	"github.com/affetto/affctrl/pkg/control"
	"github.com/affetto/affctrl/pkg/profile"
	"github.com/affetto/affctrl/pkg/sessionlog"
	"github.com/affetto/affctrl/pkg/state"
	"github.com/affetto/affctrl/pkg/timing"
)

// Source publishes the latest sensor snapshot. Latest returns nil
// until the first datagram has been ingested.
type Source interface {
	Latest() *state.Snapshot
}

// Sink transmits one command datagram, fire-and-forget.
type Sink interface {
	Send(ca, cb []float64) error
}

// Phase is the session lifecycle state.
type Phase int32

const (
	Idle Phase = iota
	Running
	Stopping
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

var (
	// ErrAlreadyRunning is returned by Start on a running session.
	ErrAlreadyRunning = errors.New("loop: already running")
	// ErrNotRunning is returned by Stop when no session is running.
	ErrNotRunning = errors.New("loop: not running")
)

// TransportError reports that command transmission kept failing beyond
// the configured tolerance. It aborts the session: actuating on stale
// commands indefinitely is worse than stopping.
type TransportError struct {
	Consecutive int
	Err         error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("loop: %d consecutive send failures: %v", e.Consecutive, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config assembles a control session.
type Config struct {
	Chain      *chain.Model
	Scheme     control.Scheme
	Gains      control.Gains
	InputRange control.Range
	Freq       float64

	// Inactive maps joint index to a fixed override pressure applied
	// to both channels, bypassing the control law.
	Inactive map[int]float64

	Profiles *profile.Table

	// MaxSendFailures is how many consecutive transport failures are
	// tolerated before the session aborts. Zero means the default of
	// 10.
	MaxSendFailures int

	// Recorder, when set, receives one row per tick. It is owned by
	// the loop while running; dump it after Stop.
	Recorder *sessionlog.Recorder
}

// State is a per-tick status update published to the host.
type State struct {
	Tick    uint64
	Elapsed time.Duration
	Q       []float64 // measured joint positions
	CA      []float64 // commanded channel-A pressures
	CB      []float64 // commanded channel-B pressures
	Stale   uint64    // stale-sample count so far
	Err     error     // fatal session error, on the final update
}

// plan is the per-joint dispatch entry resolved at start: either a
// fixed override or active closed-loop control.
type plan struct {
	override bool
	pressure float64

	profA, profB profile.Profile
	stA, stB     control.State
}

// Loop is the control session state machine. One Loop may be started
// and stopped repeatedly; runtime state is rebuilt on every start.
type Loop struct {
	cfg  Config
	src  Source
	sink Sink

	mu      sync.Mutex
	phase   atomic.Int32
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	maxFail int

	law   *control.Law
	plans []plan
	timer *timing.Timer

	startNano atomic.Int64
	ticks     atomic.Uint64
	stale     atomic.Uint64

	stateCh chan State
	logCh   chan string
}

// New creates an idle loop. Configuration is validated at Start.
func New(cfg Config, src Source, sink Sink) *Loop {
	return &Loop{
		cfg:     cfg,
		src:     src,
		sink:    sink,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
}

// States returns the channel carrying per-tick status updates. Stale
// updates are dropped in favor of fresh ones.
func (l *Loop) States() <-chan State { return l.stateCh }

// Logs returns the channel carrying log messages.
func (l *Loop) Logs() <-chan string { return l.logCh }

// Phase returns the current lifecycle phase.
func (l *Loop) Phase() Phase { return Phase(l.phase.Load()) }

// Ticks returns the number of completed ticks this session.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// StaleSamples returns how many ticks reused the previous snapshot.
func (l *Loop) StaleSamples() uint64 { return l.stale.Load() }

// Elapsed returns the session time, zero when no session has run.
func (l *Loop) Elapsed() time.Duration {
	ns := l.startNano.Load()
	if ns == 0 {
		return 0
	}
	return time.Duration(time.Now().UnixNano() - ns)
}

// Err returns the fatal error of the last session, if any. Orderly
// cancellation is not an error.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if isCancellation(l.runErr) {
		return nil
	}
	return l.runErr
}

// Start validates the configuration, resolves the per-joint dispatch
// table and launches the session goroutine. It fails with
// ErrAlreadyRunning if a session is active, and with the underlying
// configuration error on any chain/gain/profile mismatch.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch Phase(l.phase.Load()) {
	case Running, Stopping:
		return ErrAlreadyRunning
	}

	if l.cfg.Chain == nil {
		return fmt.Errorf("loop: no chain model")
	}
	dof := l.cfg.Chain.DOF()
	law, err := control.NewLaw(l.cfg.Scheme, l.cfg.Gains, l.cfg.InputRange, dof)
	if err != nil {
		return err
	}
	if l.cfg.Profiles == nil {
		return fmt.Errorf("loop: no profile table")
	}
	if l.cfg.Profiles.DOF() != dof {
		return fmt.Errorf("loop: profile table covers %d joints, chain has %d", l.cfg.Profiles.DOF(), dof)
	}
	for j := range l.cfg.Inactive {
		if j < 0 || j >= dof {
			return fmt.Errorf("loop: inactive joint index %d out of range [0,%d)", j, dof)
		}
	}
	timer, err := timing.NewTimer(l.cfg.Freq)
	if err != nil {
		return err
	}

	l.law = law
	l.timer = timer
	l.plans = make([]plan, dof)
	for j := 0; j < dof; j++ {
		if p, ok := l.cfg.Inactive[j]; ok {
			l.plans[j] = plan{override: true, pressure: l.cfg.InputRange.Clamp(p)}
			continue
		}
		l.plans[j] = plan{profA: l.cfg.Profiles.A(j), profB: l.cfg.Profiles.B(j)}
	}
	l.maxFail = l.cfg.MaxSendFailures
	if l.maxFail <= 0 {
		l.maxFail = 10
	}
	if l.cfg.Recorder != nil {
		l.cfg.Recorder.SetLabels(recordLabels(dof))
	}

	l.runErr = nil
	l.ticks.Store(0)
	l.stale.Store(0)
	l.done = make(chan struct{})
	ctx, l.cancel = context.WithCancel(ctx)
	l.phase.Store(int32(Running))
	go l.run(ctx)
	return nil
}

// Stop signals the session to exit, waits for the in-flight tick to
// finish, and releases runtime state. Stopping an idle loop returns
// ErrNotRunning.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if Phase(l.phase.Load()) != Running {
		l.mu.Unlock()
		return ErrNotRunning
	}
	l.phase.Store(int32(Stopping))
	l.cancel()
	done := l.done
	l.mu.Unlock()

	<-done

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.runErr != nil && !isCancellation(l.runErr) {
		return l.runErr
	}
	return nil
}

// isCancellation reports whether err is an orderly shutdown signal
// rather than a session fault.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Done returns a channel closed when the current session exits. It is
// nil before the first Start.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

func (l *Loop) run(ctx context.Context) {
	var fatal error
	defer func() {
		l.mu.Lock()
		l.runErr = fatal
		l.plans = nil
		l.phase.Store(int32(Stopped))
		close(l.done)
		l.mu.Unlock()
		if fatal != nil && !isCancellation(fatal) {
			l.log("session aborted: %v", fatal)
		} else {
			l.log("session stopped after %d ticks (%d stale)", l.ticks.Load(), l.stale.Load())
		}
		l.sendState(State{Tick: l.ticks.Load(), Stale: l.stale.Load(), Err: fatal})
	}()

	// The session clock starts with the first sensor sample; command
	// profiles idle against real data, not against link-up delay.
	l.log("waiting for first sensor sample")
	snap, err := l.awaitFirstSample(ctx)
	if err != nil {
		fatal = err
		return
	}
	dof := len(l.plans)
	if len(snap.Q) != dof {
		fatal = fmt.Errorf("loop: snapshot has %d joints, chain has %d", len(snap.Q), dof)
		return
	}
	l.timer.Start()
	l.startNano.Store(time.Now().UnixNano())
	l.log("session started at %g Hz, %d joints (%d inactive)", l.cfg.Freq, dof, len(l.cfg.Inactive))

	dt := l.timer.Period().Seconds()
	consecFails := 0
	for {
		if err := l.timer.Wait(ctx); err != nil {
			fatal = err
			return
		}

		if latest := l.src.Latest(); latest != nil && latest.Seq != snap.Seq {
			if len(latest.Q) != dof {
				fatal = fmt.Errorf("loop: snapshot has %d joints, chain has %d", len(latest.Q), dof)
				return
			}
			snap = latest
		} else {
			l.stale.Add(1)
		}

		elapsed := l.timer.Elapsed()
		t := elapsed.Seconds()

		ca := make([]float64, dof)
		cb := make([]float64, dof)
		refA := make([]float64, dof)
		refB := make([]float64, dof)
		for j := range l.plans {
			p := &l.plans[j]
			if p.override {
				ca[j] = p.pressure
				cb[j] = p.pressure
				refA[j] = p.pressure
				refB[j] = p.pressure
				continue
			}
			refA[j] = p.profA.At(t)
			refB[j] = p.profB.At(t)
			ff := snap.PA[j] - snap.PB[j]
			var err error
			ca[j], err = l.law.Step(j, control.ChannelA, refA[j], snap.Q[j], ff, dt, &p.stA)
			if err == nil {
				cb[j], err = l.law.Step(j, control.ChannelB, refB[j], snap.Q[j], ff, dt, &p.stB)
			}
			if err != nil {
				// Fatal: no partial command leaves the loop.
				fatal = err
				return
			}
		}

		if err := l.sink.Send(ca, cb); err != nil {
			consecFails++
			l.log("send failed (%d/%d): %v", consecFails, l.maxFail, err)
			if consecFails >= l.maxFail {
				fatal = &TransportError{Consecutive: consecFails, Err: err}
				return
			}
		} else {
			consecFails = 0
		}

		tick := l.ticks.Add(1)
		if l.cfg.Recorder != nil {
			l.cfg.Recorder.Store(recordRow(t, snap, refA, refB, ca, cb))
		}
		l.sendState(State{
			Tick:    tick,
			Elapsed: elapsed,
			Q:       snap.Q,
			CA:      ca,
			CB:      cb,
			Stale:   l.stale.Load(),
		})
	}
}

// awaitFirstSample polls the source until a snapshot exists or the
// session is cancelled.
func (l *Loop) awaitFirstSample(ctx context.Context) (*state.Snapshot, error) {
	poll := time.NewTicker(time.Millisecond)
	defer poll.Stop()
	for {
		if snap := l.src.Latest(); snap != nil {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-poll.C:
		}
	}
}

func (l *Loop) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case l.logCh <- msg:
	default:
		// Drop if channel full
	}
}

func (l *Loop) sendState(s State) {
	select {
	case l.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-l.stateCh:
		default:
		}
		select {
		case l.stateCh <- s:
		default:
		}
	}
}

func recordLabels(dof int) []string {
	labels := []string{"t"}
	for _, group := range []string{"rq", "rpa", "rpb", "q", "dq", "pa", "pb", "refa", "refb", "ca", "cb"} {
		for i := 0; i < dof; i++ {
			labels = append(labels, fmt.Sprintf("%s%d", group, i))
		}
	}
	return labels
}

func recordRow(t float64, snap *state.Snapshot, refA, refB, ca, cb []float64) []float64 {
	row := make([]float64, 0, 1+11*len(ca))
	row = append(row, t)
	for _, group := range [][]float64{snap.RawQ, snap.RawPA, snap.RawPB, snap.Q, snap.DQ, snap.PA, snap.PB, refA, refB, ca, cb} {
		row = append(row, group...)
	}
	return row
}

package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/affetto/affctrl/pkg/chain"
	"github.com/affetto/affctrl/pkg/control"
	"github.com/affetto/affctrl/pkg/profile"
	"github.com/affetto/affctrl/pkg/sessionlog"
	"github.com/affetto/affctrl/pkg/state"
)

type fakeSource struct {
	mu   sync.Mutex
	snap *state.Snapshot
}

func (s *fakeSource) Latest() *state.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fakeSource) set(snap *state.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

type sent struct {
	ca, cb []float64
}

type fakeSink struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (s *fakeSink) Send(ca, cb []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sent{
		ca: append([]float64(nil), ca...),
		cb: append([]float64(nil), cb...),
	})
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSink) last() sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

func testChain(t *testing.T, dof int) *chain.Model {
	t.Helper()
	links := []chain.Link{{Name: "base", Type: chain.Fixed}}
	parent := "base"
	for i := 0; i < dof; i++ {
		name := fmt.Sprintf("joint%d", i)
		links = append(links, chain.Link{Name: name, Type: chain.Revolute, Parent: parent})
		parent = name
	}
	m, err := chain.Build(links)
	if err != nil {
		t.Fatalf("chain.Build failed: %v", err)
	}
	return m
}

func testGains(dof int, stiff float64) control.Gains {
	fill := func(v float64) []float64 {
		a := make([]float64, dof)
		for i := range a {
			a[i] = v
		}
		return a
	}
	return control.Gains{KP: fill(0), KD: fill(0), KI: fill(0), Stiff: fill(stiff)}
}

func testSnapshot(seq uint64, dof int) *state.Snapshot {
	return &state.Snapshot{
		Seq:   seq,
		Time:  time.Now(),
		Q:     make([]float64, dof),
		DQ:    make([]float64, dof),
		PA:    make([]float64, dof),
		PB:    make([]float64, dof),
		RawQ:  make([]float64, dof),
		RawPA: make([]float64, dof),
		RawPB: make([]float64, dof),
	}
}

func testConfig(t *testing.T, dof int) Config {
	t.Helper()
	tbl, err := profile.BuildTable(dof, profile.Spec{}, nil, nil)
	if err != nil {
		t.Fatalf("BuildTable failed: %v", err)
	}
	return Config{
		Chain:      testChain(t, dof),
		Scheme:     control.PID,
		Gains:      testGains(dof, 150),
		InputRange: control.Range{Min: 0, Max: 255},
		Freq:       500,
		Profiles:   tbl,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoop_InactiveOverride(t *testing.T) {
	const dof = 13
	cfg := testConfig(t, dof)
	var err error
	cfg.Inactive, err = control.ResolveInactive([]control.InactiveSpec{
		{Joints: "7-12", Pressure: 100},
	}, dof)
	if err != nil {
		t.Fatalf("ResolveInactive failed: %v", err)
	}

	src := &fakeSource{}
	src.set(testSnapshot(1, dof))
	sink := &fakeSink{}
	l := New(cfg, src, sink)

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "a few ticks", func() bool { return sink.count() >= 5 })
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, cmd := range sink.sent {
		if len(cmd.ca) != dof || len(cmd.cb) != dof {
			t.Fatalf("command length %d/%d, want %d", len(cmd.ca), len(cmd.cb), dof)
		}
		for j := 0; j < dof; j++ {
			wantA := 150.0 // stiffness-only law
			if j >= 7 {
				wantA = 100 // override
			}
			if cmd.ca[j] != wantA || cmd.cb[j] != wantA {
				t.Fatalf("joint %d command = %g/%g, want %g", j, cmd.ca[j], cmd.cb[j], wantA)
			}
		}
	}
}

func TestLoop_StaleSampleReuse(t *testing.T) {
	cfg := testConfig(t, 2)
	src := &fakeSource{}
	src.set(testSnapshot(1, 2)) // never refreshed
	sink := &fakeSink{}
	l := New(cfg, src, sink)

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "ticks despite a silent sensor", func() bool { return sink.count() >= 10 })
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if l.StaleSamples() == 0 {
		t.Error("stale samples were not counted")
	}
	// Every tick still emitted a complete command.
	if got := sink.last(); len(got.ca) != 2 || got.ca[0] != 150 {
		t.Errorf("last command = %+v", got)
	}
	if l.Ticks() < 10 {
		t.Errorf("Ticks = %d, want >= 10", l.Ticks())
	}
}

func TestLoop_Lifecycle(t *testing.T) {
	cfg := testConfig(t, 2)
	src := &fakeSource{}
	src.set(testSnapshot(1, 2))
	l := New(cfg, src, &fakeSink{})

	if err := l.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop from idle = %v, want ErrNotRunning", err)
	}
	if got := l.Phase(); got != Idle {
		t.Errorf("Phase = %v, want idle", got)
	}

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := l.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
	waitFor(t, "running phase ticks", func() bool { return l.Ticks() >= 1 })

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := l.Phase(); got != Stopped {
		t.Errorf("Phase after Stop = %v, want stopped", got)
	}
	if err := l.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop after Stop = %v, want ErrNotRunning", err)
	}

	// A stopped loop may be started again with fresh runtime state.
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestLoop_GainMismatchFailsStart(t *testing.T) {
	cfg := testConfig(t, 3)
	cfg.Gains = testGains(2, 150) // chain has 3 joints
	l := New(cfg, &fakeSource{}, &fakeSink{})

	err := l.Start(context.Background())
	if err == nil {
		t.Fatal("Start should fail on gain length mismatch")
	}
	var ce *control.ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("error is %T, want *control.ConfigError", err)
	}
	if got := l.Phase(); got != Idle {
		t.Errorf("Phase = %v, want idle after failed start", got)
	}
}

func TestLoop_TransportEscalation(t *testing.T) {
	cfg := testConfig(t, 2)
	cfg.MaxSendFailures = 3
	src := &fakeSource{}
	src.set(testSnapshot(1, 2))
	sink := &fakeSink{err: errors.New("wire cut")}
	l := New(cfg, src, sink)

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not abort on persistent send failure")
	}

	var te *TransportError
	if err := l.Err(); !errors.As(err, &te) {
		t.Fatalf("Err = %v, want *TransportError", err)
	} else if te.Consecutive != 3 {
		t.Errorf("Consecutive = %d, want 3", te.Consecutive)
	}
	if got := l.Phase(); got != Stopped {
		t.Errorf("Phase = %v, want stopped", got)
	}
}

func TestLoop_RecordsSession(t *testing.T) {
	const dof = 2
	cfg := testConfig(t, dof)
	rec := sessionlog.New()
	cfg.Recorder = rec

	src := &fakeSource{}
	src.set(testSnapshot(1, dof))
	sink := &fakeSink{}
	l := New(cfg, src, sink)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "recorded rows", func() bool { return sink.count() >= 3 })
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if rec.Len() == 0 {
		t.Fatal("no rows recorded")
	}
	path := t.TempDir() + "/session.csv"
	if err := rec.Dump(path, true); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	header := strings.SplitN(string(data), "\n", 2)[0]
	// t plus eleven per-joint groups: rq rpa rpb q dq pa pb refa refb ca cb.
	if got, want := len(strings.Split(header, ",")), 1+11*dof; got != want {
		t.Errorf("header has %d columns, want %d: %s", got, want, header)
	}
}

func TestLoop_ProfileDrivesReference(t *testing.T) {
	// kP=1, stiff=0: command equals the reference (clamped), so a
	// constant profile of 42 on a zero measurement yields 42.
	const dof = 1
	cfg := testConfig(t, dof)
	cfg.Gains = control.Gains{
		KP: []float64{1}, KD: []float64{0}, KI: []float64{0}, Stiff: []float64{0},
	}
	tbl, err := profile.BuildTable(dof, profile.Spec{
		Profile: "constant",
		Params:  map[string]float64{"value": 42},
	}, nil, nil)
	if err != nil {
		t.Fatalf("BuildTable failed: %v", err)
	}
	cfg.Profiles = tbl

	src := &fakeSource{}
	src.set(testSnapshot(1, dof))
	sink := &fakeSink{}
	l := New(cfg, src, sink)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "ticks", func() bool { return sink.count() >= 3 })
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := sink.last(); got.ca[0] != 42 || got.cb[0] != 42 {
		t.Errorf("command = %g/%g, want 42/42", got.ca[0], got.cb[0])
	}
}

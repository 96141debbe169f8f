package main

import (
	"context"
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/affetto/affctrl/pkg/comm"
	"github.com/affetto/affctrl/pkg/config"
	"github.com/affetto/affctrl/pkg/control"
	"github.com/affetto/affctrl/pkg/loop"
	"github.com/affetto/affctrl/pkg/sessionlog"
	"github.com/affetto/affctrl/pkg/state"
)

type RunCommand struct {
	Config   string  `short:"c" long:"config" default:"affetto.toml" description:"Robot configuration file"`
	Output   string  `short:"o" long:"output" description:"Record the session to this CSV file"`
	Time     float64 `short:"t" long:"time" description:"Stop after this many seconds (0 = until quit)"`
	Headless bool    `long:"headless" description:"Run without the TUI"`
}

func (cmd *RunCommand) Execute(args []string) error {
	cfg, err := config.Load(cmd.Config)
	if err != nil {
		return err
	}

	model, err := cfg.BuildChain()
	if err != nil {
		return err
	}
	dof := model.DOF()

	scheme, err := cfg.Scheme()
	if err != nil {
		return err
	}
	gains, err := cfg.Gains()
	if err != nil {
		return err
	}
	inputRange, err := cfg.InputRange()
	if err != nil {
		return err
	}
	inactive, err := control.ResolveInactive(cfg.InactiveSpecs(), dof)
	if err != nil {
		return err
	}
	profiles, err := cfg.ProfileTable(dof)
	if err != nil {
		return err
	}

	est, err := state.NewEstimator(dof, 1/cfg.Affetto.State.Freq, cfg.Affetto.State.FilterPoints)
	if err != nil {
		return err
	}
	receiver, err := comm.ListenReceiver(cfg.Affetto.Comm.Local.Addr(), est)
	if err != nil {
		return err
	}
	defer receiver.Close()

	sender, err := comm.DialSender(cfg.Affetto.Comm.Remote.Addr())
	if err != nil {
		return err
	}
	defer sender.Close()

	var recorder *sessionlog.Recorder
	if cmd.Output != "" {
		recorder = sessionlog.New()
	}

	l := loop.New(loop.Config{
		Chain:           model,
		Scheme:          scheme,
		Gains:           gains,
		InputRange:      inputRange,
		Freq:            cfg.Affetto.Ctrl.Freq,
		Inactive:        inactive,
		Profiles:        profiles,
		MaxSendFailures: cfg.Affetto.Ctrl.MaxSendFailures,
		Recorder:        recorder,
	}, receiver, sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cmd.Time > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cmd.Time*float64(time.Second)))
		defer cancel()
	}

	if err := l.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("%s: controlling %d joints (%s) at %g Hz, commands to %s\n",
		cfg.Affetto.Name, dof, scheme, cfg.Affetto.Ctrl.Freq, cfg.Affetto.Comm.Remote.Addr())

	if cmd.Headless {
		err = runHeadless(l)
	} else {
		err = runTUI(l, inputRange, dof)
	}

	if stopErr := l.Stop(); stopErr != nil && stopErr != loop.ErrNotRunning && err == nil {
		err = stopErr
	}
	if recorder != nil && recorder.Len() > 0 {
		if dumpErr := recorder.Dump(cmd.Output, false); dumpErr != nil {
			log.Printf("Failed to write session log: %v", dumpErr)
		} else {
			fmt.Printf("Session log: %d rows\n", recorder.Len())
		}
	}
	fmt.Printf("Session: %d ticks, %d stale samples\n", l.Ticks(), l.StaleSamples())
	return err
}

// runHeadless drains the loop's channels and blocks until the session
// ends on its own (timeout, fatal error).
func runHeadless(l *loop.Loop) error {
	for {
		select {
		case msg := <-l.Logs():
			fmt.Println(msg)
		case <-l.States():
		case <-l.Done():
			err := l.Err()
			if err == context.Canceled || err == context.DeadlineExceeded {
				return nil
			}
			return err
		}
	}
}

func runTUI(l *loop.Loop, rng control.Range, dof int) error {
	p := tea.NewProgram(initialModel(l, rng, dof), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}

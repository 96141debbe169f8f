package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/affetto/affctrl/pkg/config"
	"github.com/affetto/affctrl/pkg/mock"
)

type MockCommand struct {
	Config  string  `short:"c" long:"config" default:"affetto.toml" description:"Robot configuration file"`
	Time    float64 `short:"t" long:"time" description:"Stop after this many seconds (0 = until interrupted)"`
	Verbose bool    `short:"v" long:"verbose" description:"Log every emitted sensor batch"`
}

func (cmd *MockCommand) Execute(args []string) error {
	cfg, err := config.Load(cmd.Config)
	if err != nil {
		return err
	}
	model, err := cfg.BuildChain()
	if err != nil {
		return err
	}
	dof := model.DOF()

	// The mock sits on the robot side: sensor data goes to the
	// controller's local endpoint, commands arrive on the remote one.
	sensorAddr := cfg.Affetto.Comm.Local.Addr()
	cmdAddr := cfg.Affetto.Comm.Remote.Addr()
	rate := cfg.Affetto.Mock.SensorRate

	robot, err := mock.New(dof, sensorAddr, cmdAddr, rate)
	if err != nil {
		return err
	}
	if cmd.Verbose {
		robot.Log = func(format string, args ...any) {
			fmt.Printf(format+"\n", args...)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cmd.Time > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cmd.Time*float64(time.Second)))
		defer cancel()
	}

	fmt.Printf("mock robot: %d joints, sensor data to %s at %g Hz, commands on %s\n",
		dof, sensorAddr, rate, cmdAddr)

	err = robot.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

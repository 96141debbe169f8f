package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Run  RunCommand  `command:"run" description:"Start a control session against the robot"`
	Mock MockCommand `command:"mock" description:"Run a fake robot endpoint for bench testing"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "affctrl - control CLI for the Affetto pneumatic robot"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

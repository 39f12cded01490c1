package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

type Options struct {
	Setup SetupCommand `command:"setup" description:"Probe for an arm and write the configuration file"`
	Run   RunCommand   `command:"run" description:"Start the control loop with a live dashboard"`
	Info  InfoCommand  `command:"info" description:"Connect once and print what the arm reports"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	// A .env file next to the binary can set the ARMLINK_* variables
	// picked up by the env tags below.
	godotenv.Load()

	parser.LongDescription = "Armlink - motion control CLI for 5-DOF serial arms"

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

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
)

const usageString = `desim drives the display engine commit core against simulated hardware.

Usage:

	%s <command> [arguments]

The commands are:

	run      execute a command script against a simulated engine
	peek     dump the core registers of a real engine through /dev/mem
	profiles list the known hardware profiles
`

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), usageString, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log.Default().SetFlags(0)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	switch flag.Arg(0) {
	case "run":
		runMain(flag.Args())
	case "peek":
		peekMain(flag.Args())
	case "profiles":
		profilesMain()
	default:
		fmt.Fprintf(flag.CommandLine.Output(), "unknown command: %s\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}
}
